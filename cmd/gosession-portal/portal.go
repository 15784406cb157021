package main

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/apierr"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// publicPaths are served without a session.
var publicPaths = []string{"/login", "/logout", "/metrics", "/healthz"}

type portal struct {
	client *goSession.Client
	log    *slog.Logger

	mu         sync.Mutex
	lastReason string
}

func (p *portal) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Get("/login", p.loginPage)

	// Form posts from another origin are refused.
	csrf := http.NewCrossOriginProtection()
	r.Group(func(r chi.Router) {
		r.Use(csrf.Handler)
		r.Post("/login", p.login)
		r.Post("/logout", p.logout)
	})
	r.Handle("/metrics", prometheus.NewExporter(p.client).Handler())

	r.Group(func(r chi.Router) {
		r.Use(p.client.Guard())
		r.Get("/", p.index)
		r.Get("/api/me", p.me)
	})
	return r
}

// signedOut runs when a 401 or another process ends the session. The next page
// load goes through the guard and lands on /login with this reason shown.
func (p *portal) signedOut(_ context.Context, reason string) {
	p.mu.Lock()
	p.lastReason = reason
	p.mu.Unlock()
	p.log.Info("portal.signed_out", "reason", reason)
}

func (p *portal) takeReason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.lastReason
	p.lastReason = ""
	return r
}

type loginView struct {
	Error       string
	Notice      string
	RedirectURI string
}

func (p *portal) loginPage(w http.ResponseWriter, r *http.Request) {
	if p.client.IsAuthenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	view := loginView{
		Error:       r.URL.Query().Get("error"),
		Notice:      p.takeReason(),
		RedirectURI: safeRedirect(r.URL.Query().Get("redirect_uri")),
	}
	render(w, http.StatusOK, loginTmpl, view)
}

func (p *portal) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	target := safeRedirect(r.PostForm.Get("redirect_uri"))
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")
	if email == "" || password == "" {
		redirectLogin(w, r, "Email and password are required", target)
		return
	}

	if _, err := p.client.Login(r.Context(), email, password); err != nil {
		msg := "Sign-in failed, try again"
		switch {
		case apierr.IsAuthentication(err):
			msg = "Invalid email or password"
		case apierr.IsNetwork(err):
			msg = "The server is unreachable"
		default:
			var apiErr *apierr.Error
			if errors.As(err, &apiErr) && apiErr.Code == "rate_limited" {
				msg = "Too many attempts, wait a few minutes"
			}
		}
		p.log.Info("portal.login_failed", "err", err)
		redirectLogin(w, r, msg, target)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (p *portal) logout(w http.ResponseWriter, r *http.Request) {
	if err := p.client.Logout(r.Context()); err != nil {
		p.log.Warn("portal.logout_failed", "err", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type indexView struct {
	Session session.Session
	Expires string
}

func (p *portal) index(w http.ResponseWriter, r *http.Request) {
	s, _ := middleware.SessionFromContext(r.Context())
	view := indexView{Session: s}
	if !s.TokenExpiry.IsZero() {
		view.Expires = s.TokenExpiry.Local().Format(time.RFC1123)
	}
	render(w, http.StatusOK, indexTmpl, view)
}

// me revalidates against the backend so a revoked session is noticed.
func (p *portal) me(w http.ResponseWriter, r *http.Request) {
	s, err := p.client.Validate(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if apierr.IsAuthentication(err) || errors.Is(err, goSession.ErrNotAuthenticated) {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, apierr.Envelope{Error: apierr.EnvelopeError{Code: "session_error", Message: err.Error()}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           s.UserID,
		"email":        s.Email,
		"display_name": s.DisplayName,
		"role":         s.Role,
		"token_expiry": s.TokenExpiry,
	})
}

// safeRedirect keeps post-login redirects on this host and off the login page.
func safeRedirect(raw string) string {
	target := middleware.SanitizeRedirect(raw)
	if target == "/login" || strings.HasPrefix(target, "/login?") || strings.HasPrefix(target, "/login/") {
		return "/"
	}
	return target
}

func redirectLogin(w http.ResponseWriter, r *http.Request, msg, target string) {
	q := url.Values{"error": {msg}}
	if target != "/" {
		q.Set("redirect_uri", target)
	}
	http.Redirect(w, r, "/login?"+q.Encode(), http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func render(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = tmpl.Execute(w, data)
}

var loginTmpl = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
{{if .Notice}}<p class="notice">Signed out: {{.Notice}}</p>{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
  <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
  <label>Email <input type="email" name="email" autocomplete="username" required></label>
  <label>Password <input type="password" name="password" autocomplete="current-password" required></label>
  <button type="submit">Sign in</button>
</form>
</body></html>
`))

var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Portal</title></head>
<body>
<h1>Hello, {{with .Session.DisplayName}}{{.}}{{else}}{{.Session.Email}}{{end}}</h1>
<dl>
  <dt>Email</dt><dd>{{.Session.Email}}</dd>
  {{with .Session.Role}}<dt>Role</dt><dd>{{.}}</dd>{{end}}
  {{with .Expires}}<dt>Token expires</dt><dd>{{.}}</dd>{{end}}
</dl>
<form method="post" action="/logout"><button type="submit">Sign out</button></form>
</body></html>
`))
