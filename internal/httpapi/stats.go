package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	plerrors "github.com/R3E-Network/gamification-engine/internal/platform/errors"
)

// handleGetStats aggregates GetUserStats across every wired module,
// namespaced by module name. One module failing does not fail the
// whole response: its entry is omitted and the error is logged.
func (s *Service) handleGetStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !s.authorizeUserAccess(r, userID) {
		writeServiceError(w, r, plerrors.Forbidden("not authorized for this user"))
		return
	}

	out := make(map[string]interface{}, len(s.deps.Modules))
	for name, m := range s.deps.Modules {
		stats, err := m.GetUserStats(r.Context(), userID)
		if err != nil {
			s.logger.WithContext(r.Context()).WithError(err).Warn("module stats failed")
			continue
		}
		out[name] = stats
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetModuleStats reads a single module's state for userId.
func (s *Service) handleGetModuleStats(w http.ResponseWriter, r *http.Request) {
	moduleName := chi.URLParam(r, "module")
	userID := chi.URLParam(r, "userId")

	m, ok := s.deps.Modules[moduleName]
	if !ok {
		writeServiceError(w, r, plerrors.GamNotFound("module", moduleName))
		return
	}
	if !s.authorizeUserAccess(r, userID) {
		writeServiceError(w, r, plerrors.Forbidden("not authorized for this user"))
		return
	}

	stats, err := m.GetUserStats(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleAdminReset clears every module's state for userId. Always
// admin-gated; every successful call writes an audit record.
func (s *Service) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok || !p.Admin {
		writeServiceError(w, r, plerrors.Forbidden("admin key required"))
		return
	}

	userID := chi.URLParam(r, "userId")
	failed := make([]string, 0)
	for name, m := range s.deps.Modules {
		if err := m.ResetUser(r.Context(), userID); err != nil {
			s.logger.WithContext(r.Context()).WithError(err).WithField("module", name).Warn("module reset failed")
			failed = append(failed, name)
		}
	}

	result := "success"
	if len(failed) > 0 {
		result = "partial_failure"
	}
	s.logger.LogAudit(r.Context(), "admin.reset", "user", userID, result)

	writeJSON(w, http.StatusOK, map[string]interface{}{"reset": true, "failedModules": failed})
}
