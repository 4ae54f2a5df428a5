package notification

import (
	"fmt"
	"strings"
	"time"
)

// Kind names a transport variant. Exactly one is active per deployment.
type Kind string

// Transport variants.
const (
	KindSMTP    Kind = "smtp"
	KindMailgun Kind = "mailgun"
)

// SMTPConfig holds connection parameters for the SMTP transport.
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	// Encryption is "starttls" (opportunistic, the default), "mandatory" or "ssl_tls".
	Encryption string        `json:"encryption"`
	Timeout    time.Duration `json:"timeout"`
}

// MailgunConfig holds parameters for the Mailgun HTTP API transport.
type MailgunConfig struct {
	// APIURL is the full messages endpoint, e.g.
	// https://api.mailgun.net/v3/mg.example.com/messages.
	APIURL string `json:"api_url"`
	APIKey string `json:"api_key"`
}

// TransportConfig selects and configures one transport variant.
type TransportConfig struct {
	Kind    Kind
	SMTP    SMTPConfig
	Mailgun MailgunConfig
}

// ParseKind validates a transport name. Empty means KindSMTP.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindSMTP:
		return KindSMTP, nil
	case KindMailgun:
		return KindMailgun, nil
	}
	return "", fmt.Errorf("unknown mail transport %q", s)
}

// NewTransport builds the configured transport variant.
func NewTransport(cfg TransportConfig) (Transport, error) {
	switch cfg.Kind {
	case KindSMTP, "":
		return NewSMTPTransport(cfg.SMTP), nil
	case KindMailgun:
		return NewMailgunTransport(cfg.Mailgun, nil), nil
	}
	return nil, fmt.Errorf("unknown mail transport %q", cfg.Kind)
}
