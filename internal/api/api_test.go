package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/verimail/internal/api"
	"github.com/shaharia-lab/verimail/internal/dispatch"
	"github.com/shaharia-lab/verimail/internal/event"
	"github.com/shaharia-lab/verimail/internal/storage"
	"github.com/shaharia-lab/verimail/internal/storage/mocks"
)

// --- stub dispatcher ---

type stubDispatcher struct {
	mu      sync.Mutex
	batches [][]event.Message
}

func (d *stubDispatcher) Dispatch(_ context.Context, msgs []event.Message) dispatch.BatchOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, msgs)

	var out dispatch.BatchOutcome
	for _, m := range msgs {
		if _, err := event.Decode(m.Body); err != nil {
			out.Results = append(out.Results, dispatch.Result{MessageID: m.ID, Status: dispatch.StatusFailed, Stage: dispatch.StageDecoded})
			out.Failed++
			continue
		}
		out.Results = append(out.Results, dispatch.Result{MessageID: m.ID, Status: dispatch.StatusSent, Stage: dispatch.StageRecorded})
		out.Succeeded++
	}
	return out
}

func newRouter(d api.BatchDispatcher, store storage.DeliveryLogStore) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", api.New(d, store, nil).Mount)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// --- events ---

func TestPushEvents_LambdaBatch(t *testing.T) {
	d := &stubDispatcher{}
	h := newRouter(d, nil)

	body := `{"Records":[
		{"Sns":{"MessageId":"m-1","Message":"{\"email\":\"a@example.com\"}"}},
		{"Sns":{"MessageId":"m-2","Message":"{\"firstName\":\"x\"}"}},
		{"Sns":{"MessageId":"m-3","Message":"{\"email\":\"c@example.com\"}"}}
	]}`
	rec := do(t, h, http.MethodPost, "/api/events", body)

	require.Equal(t, http.StatusOK, rec.Code, "partial failure still answers 200")
	var out dispatch.BatchOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Succeeded)
	assert.Equal(t, 1, out.Failed)
	require.Len(t, out.Results, 3)
	assert.Equal(t, "m-2", out.Results[1].MessageID)
	assert.Equal(t, dispatch.StatusFailed, out.Results[1].Status)

	require.Len(t, d.batches, 1)
	assert.Len(t, d.batches[0], 3)
}

func TestPushEvents_SNSNotification(t *testing.T) {
	d := &stubDispatcher{}
	h := newRouter(d, nil)

	body := `{"Type":"Notification","MessageId":"sns-1","TopicArn":"arn:aws:sns:eu-west-1:1:users","Message":"{\"email\":\"alice@example.com\",\"firstName\":\"Alice\"}"}`
	rec := do(t, h, http.MethodPost, "/api/events", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, d.batches, 1)
	require.Len(t, d.batches[0], 1)
	assert.Equal(t, "sns-1", d.batches[0][0].ID)
}

func TestPushEvents_SubscriptionConfirmation(t *testing.T) {
	d := &stubDispatcher{}
	h := newRouter(d, nil)

	body := `{"Type":"SubscriptionConfirmation","TopicArn":"arn:aws:sns:eu-west-1:1:users","SubscribeURL":"https://sns.example.com/confirm?token=abc"}`
	rec := do(t, h, http.MethodPost, "/api/events", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"acknowledged","type":"SubscriptionConfirmation"}`, rec.Body.String())
	assert.Empty(t, d.batches, "control messages are not dispatched")
}

func TestPushEvents_Unparseable(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"unknown sns type", `{"Type":"Weird","Message":"x"}`},
		{"truncated records", `{"Records":[`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDispatcher{}
			rec := do(t, newRouter(d, nil), http.MethodPost, "/api/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, d.batches)
		})
	}
}

func TestPushEvents_TooLarge(t *testing.T) {
	d := &stubDispatcher{}
	body := `{"email":"` + strings.Repeat("a", 2<<20) + `@example.com"}`
	rec := do(t, newRouter(d, nil), http.MethodPost, "/api/events", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// --- deliveries ---

func TestListDeliveries(t *testing.T) {
	store := &mocks.MockDeliveryLogStore{}
	store.On("ListDeliveries", mock.Anything, "alice@example.com", 10).
		Return([]storage.DeliveryLogEntry{{MessageID: "m-1", Recipient: "alice@example.com", Status: "sent"}}, nil).Once()

	rec := do(t, newRouter(&stubDispatcher{}, store), http.MethodGet, "/api/deliveries?limit=10&recipient=alice@example.com", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []storage.DeliveryLogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "m-1", got[0].MessageID)
	store.AssertExpectations(t)
}

func TestListDeliveries_DefaultsAndCaps(t *testing.T) {
	store := &mocks.MockDeliveryLogStore{}
	store.On("ListDeliveries", mock.Anything, "", 50).Return(nil, nil).Once()
	store.On("ListDeliveries", mock.Anything, "", 500).Return([]storage.DeliveryLogEntry{}, nil).Once()
	h := newRouter(&stubDispatcher{}, store)

	rec := do(t, h, http.MethodGet, "/api/deliveries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/deliveries?limit=100000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	store.AssertExpectations(t)
}

func TestListDeliveries_Errors(t *testing.T) {
	store := &mocks.MockDeliveryLogStore{}
	store.On("ListDeliveries", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("locked"))

	h := newRouter(&stubDispatcher{}, store)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/deliveries?limit=abc", "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/api/deliveries", "").Code)

	noLog := newRouter(&stubDispatcher{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, noLog, http.MethodGet, "/api/deliveries", "").Code)
}

func TestVersion(t *testing.T) {
	rec := do(t, newRouter(&stubDispatcher{}, nil), http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "dev", got["version"])
}
