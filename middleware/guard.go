package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/goSession/apierr"
	"github.com/MrEthical07/goSession/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session snapshot Guard attached to an allowed
// request. Unprotected and public requests carry none.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(session.Session)
	return s, ok
}

// DecisionHook observes each decision Guard makes.
type DecisionHook func(r *http.Request, d Decision)

// Guard enforces g on every request.
func Guard(g *RouteGuard, hooks ...DecisionHook) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}

			d := g.decide(cleanPath(r.URL.Path), r.URL.RawQuery)
			for _, hook := range hooks {
				hook(r, d)
			}
			switch {
			case d.Allowed:
				if d.Reason == ReasonAuthenticated {
					r = r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, d.Session))
				}
				next.ServeHTTP(w, r)
			case d.Reason == ReasonForbiddenRole:
				writeError(w, http.StatusForbidden, "forbidden", "role not permitted")
			case wantsJSON(r):
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			default:
				http.Redirect(w, r, d.RedirectTo, http.StatusSeeOther)
			}
		})
	}
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apierr.Envelope{Error: apierr.EnvelopeError{Code: code, Message: msg}})
}
