package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	plerrors "github.com/R3E-Network/gamification-engine/internal/platform/errors"
	"github.com/R3E-Network/gamification-engine/internal/platform/httputil"
)

var (
	errNotConnected    = errors.New("storage not connected")
	errWebhookDegraded = errors.New("webhook queue degraded")
)

// eventNameSegment, applied by validEventName, matches spec.md §6's "non-empty dot-delimited tokens
// over [a-z0-9._-]" — each dot-separated segment must itself be
// non-empty, so "points..awarded" and leading/trailing dots are
// rejected even though the character class alone would accept them.
var eventNameSegment = regexp.MustCompile(`^[a-z0-9_-]+$`)

func validEventName(name string) bool {
	if name == "" {
		return false
	}
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			if !eventNameSegment.MatchString(name[start:i]) {
				return false
			}
			start = i + 1
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError renders a *plerrors.ServiceError using its own HTTP
// status/code/message/details; any other error is treated as an
// internal failure so handlers never leak raw Go error strings.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *plerrors.ServiceError
	if errors.As(err, &svcErr) {
		httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
		return
	}
	httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, "", "internal server error", nil)
}
