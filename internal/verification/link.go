// Package verification builds the verification links embedded in outgoing mail.
//
// The token in a link is a reversible encoding of the recipient's email, not a
// secret. Any expiry promised to the user must be enforced by the endpoint that
// consumes the link.
package verification

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shaharia-lab/verimail/internal/event"
)

// Encoding selects how the identity is turned into a path segment.
type Encoding string

const (
	// EncodingPlain path-escapes the raw email: BASE/alice@example.com.
	EncodingPlain Encoding = "plain"
	// EncodingBase64URL uses unpadded URL-safe base64 of the email.
	EncodingBase64URL Encoding = "base64url"
)

// ParseEncoding validates an encoding name. Empty means EncodingPlain.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingPlain:
		return EncodingPlain, nil
	case EncodingBase64URL:
		return EncodingBase64URL, nil
	}
	return "", fmt.Errorf("unknown token encoding %q", s)
}

// Link is a verification URL for one recipient.
type Link struct {
	Target *url.URL
}

func (l Link) String() string {
	if l.Target == nil {
		return ""
	}
	return l.Target.String()
}

// Composer derives verification links from identities.
type Composer struct {
	base     *url.URL
	encoding Encoding
}

// NewComposer parses the configured base URL. The base must be absolute.
func NewComposer(baseURL string, enc Encoding) (*Composer, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parsing verification link base: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("verification link base %q must be an absolute URL", baseURL)
	}
	if enc == "" {
		enc = EncodingPlain
	}
	if _, err := ParseEncoding(string(enc)); err != nil {
		return nil, err
	}
	return &Composer{base: u, encoding: enc}, nil
}

// Compose returns BASE + "/" + token for the identity.
func (c *Composer) Compose(id event.UserIdentity) (Link, error) {
	if id.Email == "" {
		return Link{}, errors.New("compose: identity has no email")
	}

	token := c.encode(id.Email)

	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + token
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + "/" + url.PathEscape(token)
	u.Fragment = ""

	return Link{Target: &u}, nil
}

// Token recovers the email from a link produced by Compose.
func (c *Composer) Token(l Link) (string, error) {
	if l.Target == nil {
		return "", errors.New("token: empty link")
	}
	basePath := strings.TrimRight(c.base.Path, "/") + "/"
	if !strings.HasPrefix(l.Target.Path, basePath) {
		return "", fmt.Errorf("token: %q is not under %q", l.Target.Path, basePath)
	}
	segment := strings.TrimPrefix(l.Target.Path, basePath)
	return c.decode(segment)
}

func (c *Composer) encode(email string) string {
	if c.encoding == EncodingBase64URL {
		return base64.RawURLEncoding.EncodeToString([]byte(email))
	}
	return email
}

func (c *Composer) decode(segment string) (string, error) {
	if c.encoding == EncodingBase64URL {
		b, err := base64.RawURLEncoding.DecodeString(segment)
		if err != nil {
			return "", fmt.Errorf("token: %w", err)
		}
		return string(b), nil
	}
	return segment, nil
}
