package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App        AppSettings        `mapstructure:"app"`
	Postgres   PostgresSettings   `mapstructure:"postgres"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Kafka      KafkaSettings      `mapstructure:"kafka"`
	JWT        JWTSettings        `mapstructure:"jwt"`
	Encryption EncryptionSettings `mapstructure:"encryption"`
	Firebase   FirebaseSettings   `mapstructure:"firebase"`
	PhonePe    PhonePeSettings    `mapstructure:"phonepe"`
	Mail       MailSettings       `mapstructure:"mail"`
	Cookie     CookieSettings     `mapstructure:"cookie"`
	Tokens     TokenSweepSettings `mapstructure:"tokens"`
	GRPC       GRPCSettings       `mapstructure:"grpc"`
	Telemetry  TelemetrySettings  `mapstructure:"telemetry"`
	RateLimit  RateLimitSettings  `mapstructure:"rate_limit"`
	CORS       CORSSettings       `mapstructure:"cors"`
	Admin      AdminSettings      `mapstructure:"admin"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type GRPCSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection backing rate limits
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Idempotent  bool     `mapstructure:"idempotent"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts int           `mapstructure:"register_max_attempts"`
	RefreshMaxAttempts  int           `mapstructure:"refresh_max_attempts"`
	CallbackMaxAttempts int           `mapstructure:"callback_max_attempts"`
}

// JWTSettings holds the HS256 secrets for the two token classes.
type JWTSettings struct {
	Secret          string        `mapstructure:"secret"`
	RefreshSecret   string        `mapstructure:"refresh_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// EncryptionSettings points at the directory holding public.pem and private.pem.
type EncryptionSettings struct {
	KeysPath string `mapstructure:"keys_path"`
}

type FirebaseSettings struct {
	CredPath string        `mapstructure:"cred_path"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PhonePeSettings struct {
	Env              string        `mapstructure:"env"`
	ClientID         string        `mapstructure:"client_id"`
	ClientSecret     string        `mapstructure:"client_secret"`
	ClientVersion    int           `mapstructure:"client_version"`
	CallbackUsername string        `mapstructure:"callback_username"`
	CallbackPassword string        `mapstructure:"callback_password"`
	RedirectURL      string        `mapstructure:"redirect_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RatePerSecond    float64       `mapstructure:"rate_per_second"`
	Burst            int           `mapstructure:"burst"`
}

type MailSettings struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	User    string        `mapstructure:"user"`
	Pass    string        `mapstructure:"pass"`
	From    string        `mapstructure:"from"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CookieSettings struct {
	Domain string `mapstructure:"domain"`
	Secure bool   `mapstructure:"secure"`
}

type TokenSweepSettings struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type CORSSettings struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AdminSettings names the ADMIN account provisioned at start-up. An empty phone skips it.
type AdminSettings struct {
	Phone string `mapstructure:"phone"`
	Email string `mapstructure:"email"`
	Name  string `mapstructure:"name"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("NEXA")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"grpc.host",
		"grpc.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.schema",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.rate_limit_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.idempotent",
		"jwt.secret",
		"jwt.refresh_secret",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"encryption.keys_path",
		"firebase.cred_path",
		"firebase.timeout",
		"phonepe.env",
		"phonepe.client_id",
		"phonepe.client_secret",
		"phonepe.client_version",
		"phonepe.callback_username",
		"phonepe.callback_password",
		"phonepe.redirect_url",
		"phonepe.timeout",
		"phonepe.rate_per_second",
		"phonepe.burst",
		"mail.host",
		"mail.port",
		"mail.user",
		"mail.pass",
		"mail.from",
		"mail.timeout",
		"cookie.domain",
		"cookie.secure",
		"tokens.sweep_interval",
		"cors.allowed_origins",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.register_max_attempts",
		"rate_limit.refresh_max_attempts",
		"rate_limit.callback_max_attempts",
		"admin.phone",
		"admin.email",
		"admin.name",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("jwt.secret (JWT_SECRET) is required"))
	}
	if strings.TrimSpace(c.JWT.RefreshSecret) == "" {
		errs = append(errs, errors.New("jwt.refresh_secret (JWT_REFRESH_SECRET) is required"))
	}
	if c.JWT.Secret != "" && c.JWT.Secret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("jwt.secret and jwt.refresh_secret must differ"))
	}
	if strings.TrimSpace(c.Encryption.KeysPath) == "" {
		errs = append(errs, errors.New("encryption.keys_path (ENCRYPTION_KEYS_PATH) is required"))
	}
	switch c.PhonePe.Env {
	case "sandbox", "production":
	default:
		errs = append(errs, fmt.Errorf("phonepe.env must be sandbox or production, got %q", c.PhonePe.Env))
	}
	if strings.TrimSpace(c.Admin.Phone) != "" && (strings.TrimSpace(c.Admin.Email) == "" || strings.TrimSpace(c.Admin.Name) == "") {
		errs = append(errs, errors.New("admin.email and admin.name are required when admin.phone is set"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "nexa-backoffice")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "nexa")
	v.SetDefault("postgres.password", "nexa_password")
	v.SetDefault("postgres.database", "nexa")
	v.SetDefault("postgres.schema", "nexa")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.rate_limit_prefix", "nexa:rate-limit")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "nexa")
	v.SetDefault("kafka.idempotent", true)

	v.SetDefault("jwt.access_token_ttl", "24h")
	v.SetDefault("jwt.refresh_token_ttl", "168h")

	v.SetDefault("encryption.keys_path", "./cert")

	v.SetDefault("firebase.timeout", "5s")

	v.SetDefault("phonepe.env", "sandbox")
	v.SetDefault("phonepe.client_version", 1)
	v.SetDefault("phonepe.redirect_url", "http://localhost:5173/payment-response")
	v.SetDefault("phonepe.timeout", "10s")
	v.SetDefault("phonepe.rate_per_second", 10.0)
	v.SetDefault("phonepe.burst", 5)

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.timeout", "10s")

	v.SetDefault("cookie.secure", true)

	v.SetDefault("tokens.sweep_interval", "1h")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "nexa-backoffice")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 10)
	v.SetDefault("rate_limit.register_max_attempts", 5)
	v.SetDefault("rate_limit.refresh_max_attempts", 20)
	v.SetDefault("rate_limit.callback_max_attempts", 120)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "NEXA_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
