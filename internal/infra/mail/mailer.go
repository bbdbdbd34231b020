package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/config"
	"github.com/Satya1612t/ela/internal/infra/logger"
)

const defaultSendTimeout = 10 * time.Second

// SMTPMailer delivers mail through an authenticated SMTP relay.
type SMTPMailer struct {
	client  *gomail.Client
	from    string
	timeout time.Duration
	logger  *zap.Logger
}

var _ port.Mailer = (*SMTPMailer)(nil)

// New returns an SMTP mailer when a host is configured, otherwise a LogMailer.
func New(cfg config.MailSettings, log *zap.Logger) (port.Mailer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Host) == "" {
		log.Warn("mail host not configured, using log mailer")
		return NewLogMailer(log), nil
	}
	return NewSMTPMailer(cfg, log)
}

// NewSMTPMailer builds the go-mail client. No connection is opened until Send.
func NewSMTPMailer(cfg config.MailSettings, log *zap.Logger) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mail: from address is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(timeout),
	}
	if cfg.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.User),
			gomail.WithPassword(cfg.Pass),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: create client: %w", err)
	}

	return &SMTPMailer{client: client, from: cfg.From, timeout: timeout, logger: log}, nil
}

// Send delivers a single message.
func (m *SMTPMailer) Send(ctx context.Context, message port.Mail) error {
	msg, err := buildMessage(m.from, message)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}

	m.logger.Info("mail sent",
		zap.String("to", logger.MaskEmail(message.To)),
		zap.String("subject", message.Subject),
	)
	return nil
}

func buildMessage(from string, message port.Mail) (*gomail.Msg, error) {
	if strings.TrimSpace(message.To) == "" {
		return nil, errors.New("mail: recipient is required")
	}

	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("mail: invalid from address: %w", err)
	}
	if err := msg.To(message.To); err != nil {
		return nil, fmt.Errorf("mail: invalid recipient: %w", err)
	}
	msg.Subject(message.Subject)

	switch {
	case message.Text != "" && message.HTML != "":
		msg.SetBodyString(gomail.TypeTextPlain, message.Text)
		msg.AddAlternativeString(gomail.TypeTextHTML, message.HTML)
	case message.HTML != "":
		msg.SetBodyString(gomail.TypeTextHTML, message.HTML)
	default:
		msg.SetBodyString(gomail.TypeTextPlain, message.Text)
	}

	return msg, nil
}

// LogMailer records messages in the log instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

var _ port.Mailer = (*LogMailer)(nil)

// NewLogMailer returns a mailer for environments without SMTP.
func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{logger: log}
}

func (m *LogMailer) Send(_ context.Context, message port.Mail) error {
	m.logger.Info("mail (not sent)",
		zap.String("to", logger.MaskEmail(message.To)),
		zap.String("subject", message.Subject),
	)
	return nil
}
