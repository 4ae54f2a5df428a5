package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/shaharia-lab/verimail/internal/notification"
	"github.com/shaharia-lab/verimail/internal/storage"
	"github.com/shaharia-lab/verimail/internal/verification"
)

// AppConfig holds all application-level configuration loaded from environment variables.
type AppConfig struct {
	// MailTransport selects the delivery variant: smtp or mailgun.
	MailTransport string `envconfig:"MAIL_TRANSPORT" default:"smtp"`

	SMTPHost      string `envconfig:"SMTP_HOST"`
	SMTPPort      int    `envconfig:"SMTP_PORT"`
	SMTPUsername  string `envconfig:"SMTP_USERNAME"`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD"`
	SMTPFromEmail string `envconfig:"SMTP_FROM_EMAIL"`
	// SMTPTLS is starttls, mandatory, ssl_tls or none.
	SMTPTLS string `envconfig:"SMTP_TLS" default:"starttls"`

	MailgunAPIURL string `envconfig:"MAILGUN_API_URL"`
	MailgunAPIKey string `envconfig:"MAILGUN_API_KEY"`
	FromEmail     string `envconfig:"FROM_EMAIL"`

	// VerificationLinkBase is the URL the token is appended to.
	VerificationLinkBase string `envconfig:"VERIFICATION_LINK_BASE"`
	// Older deployments set the base under these names.
	LegacySMTPVerificationLink string `envconfig:"SMTP_VERIFICATION_LINK"`
	LegacyVerificationLink     string `envconfig:"VERIFICATION_LINK"`

	DBHost           string        `envconfig:"DB_HOST"`
	LegacyDBHostIP   string        `envconfig:"DB_HOST_IP"`
	DBPort           int           `envconfig:"DB_PORT" default:"5432"`
	DBUser           string        `envconfig:"DB_USER"`
	DBPassword       string        `envconfig:"DB_PASSWORD"`
	DBDatabase       string        `envconfig:"DB_DATABASE"`
	DBTable          string        `envconfig:"DB_TABLE"`
	DBSSLMode        string        `envconfig:"DB_SSLMODE" default:"prefer"`
	DBConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"5s"`

	EmailSubject  string        `envconfig:"EMAIL_SUBJECT"`
	LinkTTL       time.Duration `envconfig:"LINK_TTL"`
	TokenEncoding string        `envconfig:"VERIFICATION_TOKEN_ENCODING" default:"plain"`
	SendTimeout   time.Duration `envconfig:"SEND_TIMEOUT" default:"30s"`
	RecordTimeout time.Duration `envconfig:"RECORD_TIMEOUT" default:"10s"`

	// Port is the HTTP server port. Defaults to 8990.
	Port int `envconfig:"PORT" default:"8990"`

	// DataDir holds the delivery log and log files. Defaults to ~/.verimail.
	DataDir string `envconfig:"VERIMAIL_DATA_DIR"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Kafka is optional; it is enabled when both brokers and topics are set.
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopics  []string `envconfig:"KAFKA_TOPICS"`
	KafkaGroup   string   `envconfig:"KAFKA_GROUP" default:"verimail"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// DeliveryLogRetention is how long delivery log rows are kept. Zero keeps them forever.
	DeliveryLogRetention time.Duration `envconfig:"DELIVERY_LOG_RETENTION" default:"720h"`
}

// Load reads AppConfig from the environment. Each existing file in envFiles
// is loaded first with godotenv; variables already set in the process win.
// With no envFiles, ./.env is used when present.
func Load(envFiles ...string) (*AppConfig, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("loading env file %s: %w", f, err)
		}
	}

	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".verimail")
	}
	return &c, nil
}

// Transport returns the parsed transport kind.
func (c *AppConfig) Transport() (notification.Kind, error) {
	return notification.ParseKind(c.MailTransport)
}

// LinkBase resolves the verification base URL, falling back to legacy names.
func (c *AppConfig) LinkBase() string {
	return firstNonEmpty(c.VerificationLinkBase, c.LegacySMTPVerificationLink, c.LegacyVerificationLink)
}

// FromAddress resolves the sender for the active transport. Each transport
// historically read its own variable; the other is accepted as a fallback.
func (c *AppConfig) FromAddress() string {
	if strings.EqualFold(c.MailTransport, string(notification.KindMailgun)) {
		return firstNonEmpty(c.FromEmail, c.SMTPFromEmail)
	}
	return firstNonEmpty(c.SMTPFromEmail, c.FromEmail)
}

// DatabaseHost resolves DB_HOST, falling back to DB_HOST_IP.
func (c *AppConfig) DatabaseHost() string {
	return firstNonEmpty(c.DBHost, c.LegacyDBHostIP)
}

// Validate reports every missing or invalid setting in one error so a
// misconfigured deployment fails at startup with the full list.
func (c *AppConfig) Validate() error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	var errs []error
	kind, err := c.Transport()
	if err != nil {
		errs = append(errs, err)
	}
	switch kind {
	case notification.KindSMTP:
		require("SMTP_HOST", c.SMTPHost)
		switch {
		case c.SMTPPort == 0:
			missing = append(missing, "SMTP_PORT")
		case c.SMTPPort < 0 || c.SMTPPort > 65535:
			errs = append(errs, fmt.Errorf("invalid SMTP_PORT %d", c.SMTPPort))
		}
		require("SMTP_USERNAME", c.SMTPUsername)
		require("SMTP_PASSWORD", c.SMTPPassword)
		require("SMTP_FROM_EMAIL", c.FromAddress())
		switch c.SMTPTLS {
		case "", "starttls", "mandatory", "ssl_tls", "none":
		default:
			errs = append(errs, fmt.Errorf("invalid SMTP_TLS %q", c.SMTPTLS))
		}
	case notification.KindMailgun:
		require("MAILGUN_API_URL", c.MailgunAPIURL)
		require("MAILGUN_API_KEY", c.MailgunAPIKey)
		require("FROM_EMAIL", c.FromAddress())
	}
	require("VERIFICATION_LINK_BASE", c.LinkBase())
	require("DB_HOST", c.DatabaseHost())
	require("DB_USER", c.DBUser)
	require("DB_PASSWORD", c.DBPassword)
	require("DB_DATABASE", c.DBDatabase)
	require("DB_TABLE", c.DBTable)

	if len(missing) > 0 {
		errs = append([]error{fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))}, errs...)
	}
	if _, err := verification.ParseEncoding(c.TokenEncoding); err != nil {
		errs = append(errs, err)
	}
	if c.SendTimeout <= 0 {
		errs = append(errs, errors.New("SEND_TIMEOUT must be positive"))
	}
	if c.RecordTimeout <= 0 {
		errs = append(errs, errors.New("RECORD_TIMEOUT must be positive"))
	}
	if len(c.KafkaBrokers) > 0 && len(c.KafkaTopics) == 0 {
		errs = append(errs, errors.New("KAFKA_TOPICS is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

// TransportConfig builds the tagged transport configuration.
func (c *AppConfig) TransportConfig() (notification.TransportConfig, error) {
	kind, err := c.Transport()
	if err != nil {
		return notification.TransportConfig{}, err
	}
	return notification.TransportConfig{
		Kind: kind,
		SMTP: notification.SMTPConfig{
			Host:       c.SMTPHost,
			Port:       c.SMTPPort,
			Username:   c.SMTPUsername,
			Password:   c.SMTPPassword,
			Encryption: c.SMTPTLS,
			Timeout:    c.SendTimeout,
		},
		Mailgun: notification.MailgunConfig{
			APIURL: c.MailgunAPIURL,
			APIKey: c.MailgunAPIKey,
		},
	}, nil
}

// PostgresConfig returns the user database connection settings.
func (c *AppConfig) PostgresConfig() storage.PostgresConfig {
	return storage.PostgresConfig{
		Host:           c.DatabaseHost(),
		Port:           c.DBPort,
		User:           c.DBUser,
		Password:       c.DBPassword,
		Database:       c.DBDatabase,
		SSLMode:        c.DBSSLMode,
		ConnectTimeout: c.DBConnectTimeout,
	}
}

// KafkaEnabled reports whether the Kafka consumer should run.
func (c *AppConfig) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && len(c.KafkaTopics) > 0
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogDir returns the path to the log directory.
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// DeliveryLogPath returns the path of the SQLite delivery log.
func (c *AppConfig) DeliveryLogPath() string {
	return filepath.Join(c.DataDir, "verimail.db")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
