package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/shaharia-lab/verimail/internal/event"
)

// snsMessageTypeHeader is set by SNS on every HTTP(S) delivery.
const snsMessageTypeHeader = "X-Amz-Sns-Message-Type"

// handlePushEvents accepts one channel delivery, dispatches every message in
// it and returns the batch outcome. A processed batch answers 200 even when
// some messages failed, so the channel does not redeliver the whole batch.
func (s *Server) handlePushEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "delivery too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	msgs, err := event.ParseBatch(body)
	if errors.Is(err, event.ErrSubscriptionControl) {
		s.acknowledgeControl(w, r, body)
		return
	}
	if err != nil {
		s.logger.Warn("rejected unparseable delivery", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := s.dispatcher.Dispatch(r.Context(), msgs)
	writeJSON(w, http.StatusOK, out)
}

// acknowledgeControl logs an SNS subscription handshake. Confirmation is left
// to the operator, who can follow the logged SubscribeURL.
func (s *Server) acknowledgeControl(w http.ResponseWriter, r *http.Request, body []byte) {
	ctrl, err := event.ParseControl(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("subscription control message received",
		"type", ctrl.Type,
		"header_type", r.Header.Get(snsMessageTypeHeader),
		"topic_arn", ctrl.TopicArn,
		"subscribe_url", ctrl.SubscribeURL)
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged", "type": ctrl.Type})
}
