package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxErrorBody caps how much of a rejection body is kept for diagnostics.
const maxErrorBody = 4 << 10

// MailgunTransport delivers mail through the Mailgun messages API with a
// single form-encoded POST per message.
type MailgunTransport struct {
	config MailgunConfig
	client *http.Client
}

// NewMailgunTransport creates a MailgunTransport. A nil client gets an
// instrumented default client without its own timeout; callers bound each
// send with a context deadline.
func NewMailgunTransport(config MailgunConfig, client *http.Client) *MailgunTransport {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &MailgunTransport{config: config, client: client}
}

// Name returns the transport identifier.
func (p *MailgunTransport) Name() string { return string(KindMailgun) }

// Send posts msg to the configured endpoint. Only HTTP 200 counts as accepted.
func (p *MailgunTransport) Send(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("from", msg.From)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("text", msg.TextBody)
	form.Set("html", msg.HTMLBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &TransportError{Transport: p.Name(), Kind: ConnectFailure, Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return &TransportError{Transport: p.Name(), Kind: ConnectFailure, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		return &TransportError{
			Transport:  p.Name(),
			Kind:       ProviderRejected,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return nil
}
