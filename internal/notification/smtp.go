package notification

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"

	"github.com/wneessen/go-mail"
)

// SMTPTransport delivers mail via an authenticated SMTP session using the
// go-mail library. A new connection is opened for every message.
type SMTPTransport struct {
	config SMTPConfig
}

// NewSMTPTransport creates a new SMTPTransport with the given configuration.
func NewSMTPTransport(config SMTPConfig) *SMTPTransport {
	return &SMTPTransport{config: config}
}

// Name returns the transport identifier.
func (p *SMTPTransport) Name() string { return string(KindSMTP) }

// Send delivers msg using the configured SMTP server.
func (p *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m, kind, err := buildMsg(msg)
	if err != nil {
		return &TransportError{Transport: p.Name(), Kind: kind, Err: err}
	}

	opts := []mail.Option{
		mail.WithPort(p.config.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(p.config.Username),
		mail.WithPassword(p.config.Password),
	}
	if p.config.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(p.config.Timeout))
	}
	if p.config.Encryption == "ssl_tls" {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(tlsPolicyFromEncryption(p.config.Encryption)))
	}

	c, err := mail.NewClient(p.config.Host, opts...)
	if err != nil {
		return &TransportError{Transport: p.Name(), Kind: ConnectFailure, Err: fmt.Errorf("creating mail client: %w", err)}
	}

	if err := c.DialWithContext(ctx); err != nil {
		return &TransportError{Transport: p.Name(), Kind: classifyDialError(err), Err: err}
	}
	defer func() { _ = c.Close() }()

	if err := c.Send(m); err != nil {
		return &TransportError{Transport: p.Name(), Kind: classifySendError(err), Err: err}
	}
	return nil
}

func buildMsg(msg Message) (*mail.Msg, TransportErrorKind, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, RejectedMessage, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, RejectedRecipient, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)

	// Plain-text part first so HTML is the preferred alternative.
	if msg.TextBody != "" {
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	} else {
		m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	}
	return m, "", nil
}

// tlsPolicyFromEncryption converts the encryption string to a go-mail TLSPolicy.
// Anything unrecognised falls back to opportunistic STARTTLS.
func tlsPolicyFromEncryption(enc string) mail.TLSPolicy {
	switch enc {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}

// SMTP reply codes that mean the credentials were refused.
var authReplyCodes = map[int]bool{530: true, 534: true, 535: true, 538: true}

// authUnsupportedErrs are returned by go-mail when the server does not offer
// the configured AUTH mechanism.
var authUnsupportedErrs = []error{
	mail.ErrPlainAuthNotSupported,
	mail.ErrLoginAuthNotSupported,
	mail.ErrNoSupportedAuthDiscovered,
}

func classifyDialError(err error) TransportErrorKind {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && authReplyCodes[tpErr.Code] {
		return AuthFailure
	}
	for _, unsupported := range authUnsupportedErrs {
		if errors.Is(err, unsupported) {
			return AuthFailure
		}
	}
	return ConnectFailure
}

func classifySendError(err error) TransportErrorKind {
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		switch sendErr.Reason {
		case mail.ErrSMTPRcptTo, mail.ErrGetRcpts:
			return RejectedRecipient
		case mail.ErrSMTPMailFrom, mail.ErrSMTPData, mail.ErrSMTPDataClose, mail.ErrWriteContent:
			return RejectedMessage
		}
	}
	return ConnectFailure
}
