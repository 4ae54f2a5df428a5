package notification

import "fmt"

// TransportErrorKind classifies a delivery failure.
type TransportErrorKind string

// Transport failure kinds.
const (
	AuthFailure       TransportErrorKind = "auth_failure"
	ConnectFailure    TransportErrorKind = "connect_failure"
	RejectedRecipient TransportErrorKind = "rejected_recipient"
	RejectedMessage   TransportErrorKind = "rejected_message"
	ProviderRejected  TransportErrorKind = "provider_rejected"
)

// TransportError is returned by every Transport implementation.
type TransportError struct {
	Transport  string
	Kind       TransportErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Kind == ProviderRejected {
		return fmt.Sprintf("%s: provider rejected message with status %d: %s", e.Transport, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Transport, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Transport, e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Err }
