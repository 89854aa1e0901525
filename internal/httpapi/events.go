package httpapi

import (
	"net/http"

	plerrors "github.com/R3E-Network/gamification-engine/internal/platform/errors"
	"github.com/R3E-Network/gamification-engine/internal/platform/httputil"
)

type postEventResponse struct {
	EventID       string `json:"eventId"`
	ListenerCount int    `json:"listenerCount"`
}

// handlePostEvent validates and publishes a caller-supplied event onto
// the bus. The body is `{eventName, ...data}`: every field besides
// eventName becomes the event's data payload. Handler errors collected
// by Emit are reported but do not change the response status: the
// event was accepted regardless of whether every listener succeeded.
func (s *Service) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	eventName, _ := body["eventName"].(string)
	if !validEventName(eventName) {
		writeServiceError(w, r, plerrors.InvalidFormat("eventName", "non-empty dot-delimited [a-z0-9._-] tokens"))
		return
	}
	delete(body, "eventName")

	// An X-Request-Id lets a caller safely retry a POST after a timed-out
	// response without risking a duplicate event; omitting the header
	// skips the check entirely, so existing callers are unaffected.
	if requestID := r.Header.Get("X-Request-Id"); requestID != "" {
		if !s.replay.ValidateAndMark(requestID) {
			writeServiceError(w, r, plerrors.Conflict("duplicate request"))
			return
		}
	}

	result, err := s.deps.Bus.Emit(eventName, body)
	if err != nil {
		writeServiceError(w, r, plerrors.InvalidInput("eventName", err.Error()))
		return
	}

	writeJSON(w, http.StatusAccepted, postEventResponse{
		EventID:       result.EventID,
		ListenerCount: result.ListenerCount,
	})
}
