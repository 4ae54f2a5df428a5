package notification_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/verimail/internal/notification"
)

func testMessage() notification.Message {
	return notification.Message{
		From:     "noreply@example.com",
		To:       "alice@example.com",
		Subject:  "Verify Your Email",
		HTMLBody: "<p>hi</p>",
		TextBody: "hi",
	}
}

func TestMailgunTransport_Success(t *testing.T) {
	var gotAuth, gotContentType string
	var gotForm map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		assert.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for _, k := range []string{"from", "to", "subject", "text", "html"} {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"<1@mg>","message":"Queued. Thank you."}`))
	}))
	defer srv.Close()

	tr := notification.NewMailgunTransport(notification.MailgunConfig{APIURL: srv.URL, APIKey: "key-123"}, srv.Client())
	require.NoError(t, tr.Send(context.Background(), testMessage()))

	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("api:key-123")), gotAuth)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, map[string]string{
		"from":    "noreply@example.com",
		"to":      "alice@example.com",
		"subject": "Verify Your Email",
		"text":    "hi",
		"html":    "<p>hi</p>",
	}, gotForm)
	assert.Equal(t, "mailgun", tr.Name())
}

func TestMailgunTransport_NonOKIsRejected(t *testing.T) {
	for _, status := range []int{http.StatusAccepted, http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte("nope\n"))
			}))
			defer srv.Close()

			tr := notification.NewMailgunTransport(notification.MailgunConfig{APIURL: srv.URL, APIKey: "k"}, srv.Client())
			err := tr.Send(context.Background(), testMessage())

			var te *notification.TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, notification.ProviderRejected, te.Kind)
			assert.Equal(t, status, te.StatusCode)
			assert.Equal(t, "nope", te.Body)
		})
	}
}

func TestMailgunTransport_ConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := notification.NewMailgunTransport(notification.MailgunConfig{APIURL: url, APIKey: "k"}, nil)
	err := tr.Send(context.Background(), testMessage())

	var te *notification.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, notification.ConnectFailure, te.Kind)
}

func TestMailgunTransport_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	tr := notification.NewMailgunTransport(notification.MailgunConfig{APIURL: srv.URL, APIKey: "k"}, srv.Client())
	err := tr.Send(ctx, testMessage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSMTPTransport_ConnectFailure(t *testing.T) {
	// Grab a free port and release it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tr := notification.NewSMTPTransport(notification.SMTPConfig{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "user",
		Password: "pass",
		Timeout:  time.Second,
	})

	err = tr.Send(context.Background(), testMessage())

	var te *notification.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, notification.ConnectFailure, te.Kind)
	assert.Equal(t, "smtp", tr.Name())
}

func TestSMTPTransport_InvalidRecipient(t *testing.T) {
	tr := notification.NewSMTPTransport(notification.SMTPConfig{Host: "127.0.0.1", Port: 1})
	msg := testMessage()
	msg.To = "not an address"

	err := tr.Send(context.Background(), msg)

	var te *notification.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, notification.RejectedRecipient, te.Kind)
}

func TestNewTransport(t *testing.T) {
	smtp, err := notification.NewTransport(notification.TransportConfig{Kind: notification.KindSMTP})
	require.NoError(t, err)
	assert.Equal(t, "smtp", smtp.Name())

	mg, err := notification.NewTransport(notification.TransportConfig{Kind: notification.KindMailgun})
	require.NoError(t, err)
	assert.Equal(t, "mailgun", mg.Name())

	_, err = notification.NewTransport(notification.TransportConfig{Kind: "pigeon"})
	require.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := notification.ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, notification.KindSMTP, k)

	k, err = notification.ParseKind(" MailGun ")
	require.NoError(t, err)
	assert.Equal(t, notification.KindMailgun, k)

	_, err = notification.ParseKind("ses")
	require.Error(t, err)
}

func TestTransportError_Error(t *testing.T) {
	assert.Equal(t, "mailgun: provider rejected message with status 400: bad",
		(&notification.TransportError{Transport: "mailgun", Kind: notification.ProviderRejected, StatusCode: 400, Body: "bad"}).Error())
	assert.Equal(t, "smtp: auth_failure: denied",
		(&notification.TransportError{Transport: "smtp", Kind: notification.AuthFailure, Err: errors.New("denied")}).Error())
}
