// Package notification renders verification mail and hands it to a mail
// transport (direct SMTP or an HTTP mail API).
package notification

import "context"

// Message is a fully rendered email ready for a Transport.
type Message struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Transport is the interface for mail delivery backends.
type Transport interface {
	// Name returns the transport identifier (e.g. "smtp").
	Name() string
	// Send delivers the message. Failures are reported as *TransportError.
	Send(ctx context.Context, msg Message) error
}
