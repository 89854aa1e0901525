package httpapi

import (
	"net/http"
	"strconv"

	plerrors "github.com/R3E-Network/gamification-engine/internal/platform/errors"
	"github.com/R3E-Network/gamification-engine/internal/platform/httputil"
)

// rateLimitMiddleware enforces internal/ratelimit's decision for every
// request on the protected route group, keyed by the caller's X-API-Key
// (falling back to client IP for unauthenticated callers so the limiter
// can still throttle credential-guessing traffic) composed with the
// request's URL path. It always sets the X-RateLimit-* headers per
// spec.md §4.11 and adds Retry-After on denial.
func (s *Service) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		identity := r.Header.Get("X-API-Key")
		authenticated := identity != ""
		if !authenticated {
			identity = httputil.ClientIP(r)
		}

		decision, err := s.deps.Limiter.Allow(r.Context(), identity, r.URL.Path, authenticated)
		if err != nil {
			s.logger.WithContext(r.Context()).WithError(err).Warn("rate limiter error, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(decision.RetryAfter.Seconds()), 10))
			writeServiceError(w, r, plerrors.RateLimitExceeded(int(decision.Limit), r.URL.Path))
			return
		}

		next.ServeHTTP(w, r)
	})
}
