// Package event turns raw channel messages into typed user identities.
package event

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// UserIdentity is the recipient derived from a "user registered" notification.
type UserIdentity struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
}

// DecodeErrorKind classifies why a payload could not be decoded.
type DecodeErrorKind string

// Decode failure kinds.
const (
	MissingField     DecodeErrorKind = "missing_field"
	MalformedPayload DecodeErrorKind = "malformed_payload"
)

// DecodeError is returned when a raw message cannot be turned into a UserIdentity.
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Kind == MissingField:
		return fmt.Sprintf("decode: missing field %q", e.Field)
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("decode: malformed field %q: %v", e.Field, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("decode: malformed payload: %v", e.Err)
	default:
		return "decode: malformed payload"
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// userPayload is the JSON shape published on user registration. The producer
// historically published the user row's username, which is the email.
type userPayload struct {
	Email     *string `json:"email"`
	Username  *string `json:"username"`
	FirstName string  `json:"firstName"`
	FirstSnk  string  `json:"first_name"`
}

// Decode parses one raw notification into a UserIdentity. The payload may be a
// JSON object or base64-wrapped JSON.
func Decode(raw []byte) (UserIdentity, error) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 {
		return UserIdentity{}, &DecodeError{Kind: MalformedPayload, Err: errors.New("empty payload")}
	}

	if data[0] != '{' {
		decoded, err := decodeBase64(string(data))
		if err != nil {
			return UserIdentity{}, &DecodeError{Kind: MalformedPayload, Err: err}
		}
		data = bytes.TrimSpace(decoded)
	}

	var p userPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&p); err != nil {
		return UserIdentity{}, &DecodeError{Kind: MalformedPayload, Err: err}
	}
	if dec.More() {
		return UserIdentity{}, &DecodeError{Kind: MalformedPayload, Err: errors.New("trailing data after JSON object")}
	}

	email := ""
	switch {
	case p.Email != nil:
		email = strings.TrimSpace(*p.Email)
	case p.Username != nil:
		email = strings.TrimSpace(*p.Username)
	}
	if email == "" {
		return UserIdentity{}, &DecodeError{Kind: MissingField, Field: "email"}
	}
	if err := validateAddress(email); err != nil {
		return UserIdentity{}, &DecodeError{Kind: MalformedPayload, Field: "email", Err: err}
	}

	first := p.FirstName
	if first == "" {
		first = p.FirstSnk
	}

	return UserIdentity{Email: email, FirstName: strings.TrimSpace(first)}, nil
}

// validateAddress accepts bare addresses only; display-name forms are rejected
// because the email doubles as the stored username.
func validateAddress(s string) error {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return err
	}
	if addr.Name != "" || strings.ContainsAny(s, "<>") {
		return fmt.Errorf("%q is not a bare address", s)
	}
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("payload is neither JSON nor base64: %w", lastErr)
}
