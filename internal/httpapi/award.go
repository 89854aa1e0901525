package httpapi

import (
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	plerrors "github.com/R3E-Network/gamification-engine/internal/platform/errors"
	"github.com/R3E-Network/gamification-engine/internal/platform/httputil"
)

const maxAwardAmount = 1_000_000

type awardRequest struct {
	UserID string  `json:"userId"`
	Points float64 `json:"points"`
	Reason string  `json:"reason"`
}

func validateAwardAmount(points float64) error {
	if math.IsNaN(points) || math.IsInf(points, 0) {
		return plerrors.GamInvalidAmount("must be finite")
	}
	if points <= 0 {
		return plerrors.GamInvalidAmount("must be positive")
	}
	if points > maxAwardAmount {
		return plerrors.GamInvalidAmount("must be at most 1000000")
	}
	return nil
}

// handlePostAward implements `POST /<module>/award`. Only the points
// module exposes a caller-facing award route; every other module
// advances state through domain events rather than a direct award
// call. Admin-gated unless public-endpoints mode is enabled.
func (s *Service) handlePostAward(w http.ResponseWriter, r *http.Request) {
	moduleName := chi.URLParam(r, "module")
	if moduleName != "points" || s.deps.Points == nil {
		writeServiceError(w, r, plerrors.GamNotFound("module award route", moduleName))
		return
	}
	if !s.authorizeAward(r) {
		writeServiceError(w, r, plerrors.Forbidden("award requires admin key or public-endpoints mode"))
		return
	}

	var req awardRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeServiceError(w, r, plerrors.MissingParameter("userId"))
		return
	}
	if err := validateAwardAmount(req.Points); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := s.deps.Points.Award(r.Context(), req.UserID, int64(req.Points), req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type adminAwardRequest struct {
	UserID string  `json:"userId"`
	Points float64 `json:"points"`
	Reason string  `json:"reason"`
}

// handleAdminAward implements `POST /admin/award`: always admin-gated,
// and every successful call writes an audit record.
func (s *Service) handleAdminAward(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok || !p.Admin {
		writeServiceError(w, r, plerrors.Forbidden("admin key required"))
		return
	}
	if s.deps.Points == nil {
		writeServiceError(w, r, plerrors.GamNotFound("module", "points"))
		return
	}

	var req adminAwardRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeServiceError(w, r, plerrors.MissingParameter("userId"))
		return
	}
	if err := validateAwardAmount(req.Points); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := s.deps.Points.Award(r.Context(), req.UserID, int64(req.Points), req.Reason)
	if err != nil {
		s.logger.LogAudit(r.Context(), "admin.award", "user", req.UserID, "failure")
		writeServiceError(w, r, err)
		return
	}

	s.logger.LogAudit(r.Context(), "admin.award", "user", req.UserID, "success")
	writeJSON(w, http.StatusOK, result)
}
