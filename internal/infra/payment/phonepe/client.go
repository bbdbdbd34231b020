package phonepe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/config"
)

const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"

	sandboxBaseURL     = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	sandboxOAuthURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox/v1/oauth/token"
	productionBaseURL  = "https://api.phonepe.com/apis/pg"
	productionOAuthURL = "https://api.phonepe.com/apis/identity-manager/v1/oauth/token"

	payPath    = "/checkout/v2/pay"
	statusPath = "/checkout/v2/order/%s/status"
	refundPath = "/payments/v2/refund"

	paymentFlowCheckout = "PG_CHECKOUT"
	tokenRefreshSkew    = time.Minute
	maxResponseBytes    = 1 << 20
	defaultTimeout      = 10 * time.Second
)

var tracer = otel.Tracer("github.com/Satya1612t/ela/internal/infra/payment/phonepe")

// Options configures a Client. BaseURL and OAuthURL override the environment defaults.
type Options struct {
	Env              string
	ClientID         string
	ClientSecret     string
	ClientVersion    int
	CallbackUsername string
	CallbackPassword string
	Timeout          time.Duration
	RatePerSecond    float64
	Burst            int
	BaseURL          string
	OAuthURL         string
	HTTPClient       *http.Client
}

// Client talks to the PhonePe Standard Checkout v2 API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	oauthURL      string
	clientID      string
	clientSecret  string
	clientVersion int
	callbackAuth  []byte
	limiter       *rate.Limiter
	logger        *zap.Logger
	now           func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

var _ port.PaymentGateway = (*Client)(nil)

// NewFromConfig builds a Client from application settings.
func NewFromConfig(cfg config.PhonePeSettings, logger *zap.Logger) (*Client, error) {
	return New(Options{
		Env:              cfg.Env,
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		ClientVersion:    cfg.ClientVersion,
		CallbackUsername: cfg.CallbackUsername,
		CallbackPassword: cfg.CallbackPassword,
		Timeout:          cfg.Timeout,
		RatePerSecond:    cfg.RatePerSecond,
		Burst:            cfg.Burst,
	}, logger)
}

// New validates opts and builds a Client.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(opts.ClientID) == "" || strings.TrimSpace(opts.ClientSecret) == "" {
		return nil, errors.New("phonepe: client id and secret are required")
	}
	if opts.CallbackUsername == "" || opts.CallbackPassword == "" {
		return nil, errors.New("phonepe: callback username and password are required")
	}

	baseURL, oauthURL := opts.BaseURL, opts.OAuthURL
	switch strings.ToLower(strings.TrimSpace(opts.Env)) {
	case "", EnvSandbox:
		baseURL = firstNonEmpty(baseURL, sandboxBaseURL)
		oauthURL = firstNonEmpty(oauthURL, sandboxOAuthURL)
	case EnvProduction:
		baseURL = firstNonEmpty(baseURL, productionBaseURL)
		oauthURL = firstNonEmpty(oauthURL, productionOAuthURL)
	default:
		return nil, fmt.Errorf("phonepe: unknown environment %q", opts.Env)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	version := opts.ClientVersion
	if version <= 0 {
		version = 1
	}

	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(baseURL, "/"),
		oauthURL:      oauthURL,
		clientID:      opts.ClientID,
		clientSecret:  opts.ClientSecret,
		clientVersion: version,
		callbackAuth:  []byte(CallbackAuthorization(opts.CallbackUsername, opts.CallbackPassword)),
		limiter:       rate.NewLimiter(limit, burst),
		logger:        logger,
		now:           time.Now,
	}, nil
}

// CallbackAuthorization is the header value PhonePe sends with webhooks: hex(sha256("username:password")).
func CallbackAuthorization(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

type payRequest struct {
	MerchantOrderID string      `json:"merchantOrderId"`
	Amount          int64       `json:"amount"`
	PaymentFlow     paymentFlow `json:"paymentFlow"`
}

type paymentFlow struct {
	Type         string       `json:"type"`
	MerchantUrls merchantUrls `json:"merchantUrls"`
}

type merchantUrls struct {
	RedirectURL string `json:"redirectUrl"`
}

type payResponse struct {
	OrderID     string `json:"orderId"`
	State       string `json:"state"`
	ExpireAt    int64  `json:"expireAt"`
	RedirectURL string `json:"redirectUrl"`
}

type paymentDetail struct {
	TransactionID string `json:"transactionId"`
	PaymentMode   string `json:"paymentMode"`
	Timestamp     int64  `json:"timestamp"`
	Amount        int64  `json:"amount"`
	State         string `json:"state"`
}

type orderStatusResponse struct {
	OrderID        string          `json:"orderId"`
	State          string          `json:"state"`
	Amount         int64           `json:"amount"`
	ExpireAt       int64           `json:"expireAt"`
	PaymentDetails []paymentDetail `json:"paymentDetails"`
}

type refundRequest struct {
	MerchantRefundID        string `json:"merchantRefundId"`
	OriginalMerchantOrderID string `json:"originalMerchantOrderId"`
	Amount                  int64  `json:"amount"`
}

type refundResponse struct {
	RefundID string `json:"refundId"`
	Amount   int64  `json:"amount"`
	State    string `json:"state"`
}

type callbackBody struct {
	Event   string          `json:"event"`
	Type    string          `json:"type"`
	Payload callbackPayload `json:"payload"`
}

type callbackPayload struct {
	MerchantOrderID string          `json:"merchantOrderId"`
	OrderID         string          `json:"orderId"`
	State           string          `json:"state"`
	Amount          int64           `json:"amount"`
	PaymentDetails  []paymentDetail `json:"paymentDetails"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	TokenType   string `json:"token_type"`
}

// Initiate creates a checkout order and returns the hosted payment page URL.
func (c *Client) Initiate(ctx context.Context, amountMinor int64, merchantOrderID, redirectURL string) (port.GatewayInitiation, error) {
	if amountMinor <= 0 {
		return port.GatewayInitiation{}, fmt.Errorf("%w: %d minor units", ErrInvalidAmount, amountMinor)
	}

	req := payRequest{
		MerchantOrderID: merchantOrderID,
		Amount:          amountMinor,
		PaymentFlow: paymentFlow{
			Type:         paymentFlowCheckout,
			MerchantUrls: merchantUrls{RedirectURL: redirectURL},
		},
	}

	var resp payResponse
	raw, err := c.call(ctx, "pay", http.MethodPost, payPath, req, &resp)
	if err != nil {
		return port.GatewayInitiation{}, err
	}

	result := port.GatewayInitiation{
		OrderID:     resp.OrderID,
		State:       resp.State,
		RedirectURL: resp.RedirectURL,
		Raw:         raw,
	}
	if resp.ExpireAt > 0 {
		result.ExpiresAt = time.UnixMilli(resp.ExpireAt).UTC()
	}
	return result, nil
}

// CheckStatus fetches the gateway's view of an order.
func (c *Client) CheckStatus(ctx context.Context, merchantOrderID string) (port.GatewayStatus, error) {
	var resp orderStatusResponse
	path := fmt.Sprintf(statusPath, url.PathEscape(merchantOrderID))
	raw, err := c.call(ctx, "status", http.MethodGet, path, nil, &resp)
	if err != nil {
		return port.GatewayStatus{}, err
	}

	return port.GatewayStatus{
		OrderID:       resp.OrderID,
		State:         resp.State,
		Amount:        resp.Amount,
		TransactionID: latestTransactionID(resp.PaymentDetails),
		Raw:           raw,
	}, nil
}

// InitiateRefund requests a refund against a completed order.
func (c *Client) InitiateRefund(ctx context.Context, amountMinor int64, originalMerchantOrderID, refundID string) (port.GatewayRefund, error) {
	if amountMinor <= 0 {
		return port.GatewayRefund{}, fmt.Errorf("%w: %d minor units", ErrInvalidAmount, amountMinor)
	}

	req := refundRequest{
		MerchantRefundID:        refundID,
		OriginalMerchantOrderID: originalMerchantOrderID,
		Amount:                  amountMinor,
	}

	var resp refundResponse
	raw, err := c.call(ctx, "refund", http.MethodPost, refundPath, req, &resp)
	if err != nil {
		return port.GatewayRefund{}, err
	}

	return port.GatewayRefund{
		RefundID: resp.RefundID,
		State:    resp.State,
		Amount:   resp.Amount,
		Raw:      raw,
	}, nil
}

// ValidateCallback authenticates a webhook and decodes its payload. No field is trusted before the
// Authorization header matches.
func (c *Client) ValidateCallback(authorization string, body []byte) (port.VerifiedCallback, error) {
	got := []byte(strings.ToLower(strings.TrimSpace(authorization)))
	if subtle.ConstantTimeCompare(got, c.callbackAuth) != 1 {
		return port.VerifiedCallback{}, ErrCallbackUnauthorized
	}

	var decoded callbackBody
	if err := json.Unmarshal(body, &decoded); err != nil {
		return port.VerifiedCallback{}, fmt.Errorf("%w: %v", ErrCallbackMalformed, err)
	}
	if decoded.Payload.MerchantOrderID == "" || decoded.Payload.State == "" {
		return port.VerifiedCallback{}, fmt.Errorf("%w: merchantOrderId and state are required", ErrCallbackMalformed)
	}

	event := decoded.Event
	if event == "" {
		event = decoded.Type
	}

	return port.VerifiedCallback{
		Event:           event,
		MerchantOrderID: decoded.Payload.MerchantOrderID,
		OrderID:         decoded.Payload.OrderID,
		State:           decoded.Payload.State,
		Amount:          decoded.Payload.Amount,
		TransactionID:   latestTransactionID(decoded.Payload.PaymentDetails),
		Raw:             json.RawMessage(append([]byte(nil), body...)),
	}, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, reqBody, out any) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "phonepe."+op)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("phonepe.path", path))

	raw, err := c.doCall(ctx, op, method, path, reqBody, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("phonepe call failed",
			zap.String("op", op),
			zap.Bool("retryable", IsRetryable(err)),
			zap.Error(err),
		)
	}
	return raw, err
}

func (c *Client) doCall(ctx context.Context, op, method, path string, reqBody, out any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UnexpectedError{Op: op, Err: err}
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return nil, &UnexpectedError{Op: op, Err: err}
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &UnexpectedError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "O-Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	status, raw, err := c.do(req)
	if err != nil {
		return nil, &UnexpectedError{Op: op, Err: err}
	}
	if status == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if status < 200 || status > 299 {
		return nil, gatewayErrorFrom(op, status, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return nil, &UnexpectedError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return raw, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Add(tokenRefreshSkew).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_version", strconv.Itoa(c.clientVersion))
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &UnexpectedError{Op: "oauth", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, raw, err := c.do(req)
	if err != nil {
		return "", &UnexpectedError{Op: "oauth", Err: err}
	}
	if status < 200 || status > 299 {
		return "", gatewayErrorFrom("oauth", status, raw)
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.AccessToken == "" {
		return "", &UnexpectedError{Op: "oauth", Err: fmt.Errorf("decode token response: %v", err)}
	}

	c.accessToken = resp.AccessToken
	c.tokenExpiry = time.Unix(resp.ExpiresAt, 0)
	return c.accessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func gatewayErrorFrom(op string, status int, raw []byte) *GatewayError {
	gatewayErr := &GatewayError{Op: op, StatusCode: status, Message: http.StatusText(status)}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Code != "" {
			gatewayErr.Code = body.Code
		}
		if body.Message != "" {
			gatewayErr.Message = body.Message
		}
	}
	return gatewayErr
}

func latestTransactionID(details []paymentDetail) string {
	var (
		id     string
		latest int64 = -1
	)
	for _, detail := range details {
		if detail.TransactionID != "" && detail.Timestamp >= latest {
			id = detail.TransactionID
			latest = detail.Timestamp
		}
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
