package middleware

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/MrEthical07/goSession/session"
)

const (
	// DefaultLoginPath is used when RouteOptions.LoginPath is empty.
	DefaultLoginPath = "/login"
	// RedirectParam carries the originally requested path to the login page.
	RedirectParam = "redirect_uri"
)

// Decision reasons.
const (
	ReasonUnprotected     = "unprotected"
	ReasonPublic          = "public"
	ReasonAuthenticated   = "authenticated"
	ReasonUnauthenticated = "unauthenticated"
	ReasonForbiddenRole   = "forbidden_role"
)

// SessionReader is the read side of session.Manager.
type SessionReader interface {
	Current() (session.Session, bool)
}

// RouteOptions configures a RouteGuard. Patterns are path prefixes matched on
// segment boundaries: "/payroll" covers "/payroll" and "/payroll/run" but not
// "/payrolls".
type RouteOptions struct {
	// Protected routes require an authenticated session.
	Protected []string
	// Public routes are allowed even under a protected prefix.
	Public []string
	// Roles maps a prefix to the roles allowed under it. The longest matching
	// prefix applies. A role prefix is implicitly protected.
	Roles     map[string][]string
	LoginPath string
}

// Decision is the outcome of a guard check.
type Decision struct {
	Allowed bool
	// RedirectTo is the login URL for unauthenticated denials. It is empty for
	// allowed paths and role denials.
	RedirectTo string
	Reason     string
	Session    session.Session
}

// RouteGuard decides whether a path may be visited with the current session.
type RouteGuard struct {
	sessions  SessionReader
	protected []string
	public    []string
	roles     []rolePrefix
	loginPath string
}

type rolePrefix struct {
	prefix string
	roles  []string
}

// NewRouteGuard validates opts.
func NewRouteGuard(sessions SessionReader, opts RouteOptions) (*RouteGuard, error) {
	if sessions == nil {
		return nil, errors.New("middleware: session reader is required")
	}

	g := &RouteGuard{sessions: sessions, loginPath: opts.LoginPath}
	if g.loginPath == "" {
		g.loginPath = DefaultLoginPath
	}
	if !strings.HasPrefix(g.loginPath, "/") {
		return nil, errors.New("middleware: login path must start with /")
	}

	var err error
	if g.protected, err = normalizePrefixes(opts.Protected); err != nil {
		return nil, err
	}
	if g.public, err = normalizePrefixes(opts.Public); err != nil {
		return nil, err
	}
	g.public = append(g.public, g.loginPath)

	for prefix, roles := range opts.Roles {
		p, err := normalizePrefix(prefix)
		if err != nil {
			return nil, err
		}
		if len(roles) == 0 {
			return nil, errors.New("middleware: role route " + p + " lists no roles")
		}
		g.roles = append(g.roles, rolePrefix{prefix: p, roles: append([]string(nil), roles...)})
	}
	sort.Slice(g.roles, func(i, j int) bool { return len(g.roles[i].prefix) > len(g.roles[j].prefix) })

	return g, nil
}

// LoginPath returns the configured login path.
func (g *RouteGuard) LoginPath() string { return g.loginPath }

// Check decides whether target may be visited. target is a request URI and may
// carry a query string, which is kept in the redirect target. The path is
// unescaped and dot segments are resolved before matching.
func (g *RouteGuard) Check(target string) Decision {
	reqPath, rawQuery, _ := strings.Cut(target, "?")
	if decoded, err := url.PathUnescape(reqPath); err == nil {
		reqPath = decoded
	}
	return g.decide(cleanPath(reqPath), rawQuery)
}

func (g *RouteGuard) decide(reqPath, rawQuery string) Decision {
	if matchAny(g.public, reqPath) {
		return Decision{Allowed: true, Reason: ReasonPublic}
	}

	required, roleRoute := g.requiredRoles(reqPath)
	if !roleRoute && !matchAny(g.protected, reqPath) {
		return Decision{Allowed: true, Reason: ReasonUnprotected}
	}

	s, ok := g.sessions.Current()
	if !ok {
		target := (&url.URL{Path: reqPath}).EscapedPath()
		if rawQuery != "" {
			target += "?" + rawQuery
		}
		return Decision{Reason: ReasonUnauthenticated, RedirectTo: g.LoginURL(target)}
	}
	if roleRoute && !s.HasRole(required...) {
		return Decision{Reason: ReasonForbiddenRole, Session: s}
	}
	return Decision{Allowed: true, Reason: ReasonAuthenticated, Session: s}
}

// LoginURL returns the login path with target as a sanitised redirect_uri.
func (g *RouteGuard) LoginURL(target string) string {
	target = SanitizeRedirect(target)
	if target == "/" {
		return g.loginPath
	}
	return g.loginPath + "?" + RedirectParam + "=" + url.QueryEscape(target)
}

func (g *RouteGuard) requiredRoles(path string) ([]string, bool) {
	for _, r := range g.roles {
		if matchPrefix(r.prefix, path) {
			return r.roles, true
		}
	}
	return nil, false
}

// SanitizeRedirect returns raw when it is a local absolute path, and "/" otherwise.
// Schemes, hosts, protocol-relative and backslash tricks are rejected.
func SanitizeRedirect(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "/"
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, `/\`) || strings.ContainsFunc(raw, unicode.IsControl) {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	return raw
}

// cleanPath returns the rooted, dot-segment-free form of a decoded request path.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func normalizePrefixes(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, p := range in {
		n, err := normalizePrefix(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func normalizePrefix(p string) (string, error) {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		return "", errors.New("middleware: route pattern must start with /: " + p)
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p, nil
}

func matchAny(prefixes []string, path string) bool {
	for _, p := range prefixes {
		if matchPrefix(p, path) {
			return true
		}
	}
	return false
}

func matchPrefix(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
