package authserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, s.maxBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, s.trustProxy)
	if s.limiter != nil {
		if err := s.limiter.Check(ctx, email, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				s.record(ctx, audit.Event{Type: audit.LoginThrottled, Email: email, IP: ip})
			}
			s.writeThrottle(ctx, w, email, err)
			return
		}
	}

	u, err := s.users.UserByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		s.log.Error("authserver.login.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	ok := false
	if err == nil {
		ok, _ = s.hasher.Verify(req.Password, u.PasswordHash)
	} else {
		_, _ = s.hasher.Verify(req.Password, s.dummyHash)
	}
	if !ok {
		s.log.Info("authserver.login.denied", "email", email, "ip", ip)
		s.record(ctx, audit.Event{Type: audit.LoginFailed, Email: email, IP: ip})
		if s.limiter != nil {
			if err := s.limiter.Fail(ctx, email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
				s.log.Warn("authserver.login.throttle.fail", "err", err)
			}
		}
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, email); err != nil {
			s.log.Warn("authserver.login.throttle_reset.fail", "err", err)
		}
	}
	s.maybeRehash(ctx, u, req.Password)

	sid, refresh, err := s.sessions.open(ctx, u.ID)
	if err != nil {
		s.log.Error("authserver.login.open_session.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}
	s.record(ctx, audit.Event{Type: audit.LoginSucceeded, UserID: u.ID, SessionID: sid, IP: ip})
	s.writeTokens(w, u, sid, refresh)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, s.maxBody, &req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	ctx := r.Context()
	entry, next, err := s.sessions.rotate(ctx, req.RefreshToken)
	switch {
	case errors.Is(err, ErrRefreshReused):
		ip := clientIP(r, s.trustProxy)
		s.log.Warn("authserver.refresh.reuse", "ip", ip)
		s.record(ctx, audit.Event{Type: audit.RefreshReused, IP: ip})
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is no longer valid")
		return
	case errors.Is(err, ErrInvalidRefresh):
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is no longer valid")
		return
	case err != nil:
		s.log.Error("authserver.refresh.rotate.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	u, err := s.users.UserByID(ctx, entry.UID)
	if err != nil {
		_ = s.sessions.revoke(ctx, entry.SID)
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is no longer valid")
		return
	}
	s.record(ctx, audit.Event{Type: audit.TokenRefreshed, UserID: u.ID, SessionID: entry.SID, IP: clientIP(r, s.trustProxy)})
	s.writeTokens(w, u, entry.SID, next)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if err := s.sessions.revoke(r.Context(), claims.SID); err != nil {
		s.log.Error("authserver.logout.revoke.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}
	s.record(r.Context(), audit.Event{Type: audit.LoggedOut, UserID: claims.UID, SessionID: claims.SID, IP: clientIP(r, s.trustProxy)})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	u, err := s.users.UserByID(r.Context(), claims.UID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unknown user")
		return
	}
	writeJSON(w, http.StatusOK, profile(u))
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, s.maxBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := password.CheckPolicy(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "weak_password", err.Error())
		return
	}

	ctx := r.Context()
	u, err := s.users.UserByID(ctx, claims.UID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unknown user")
		return
	}
	// A wrong current password is a 400 so the client keeps its session.
	if ok, _ := s.hasher.Verify(req.CurrentPassword, u.PasswordHash); !ok {
		writeError(w, http.StatusBadRequest, "invalid_current_password", "current password is incorrect")
		return
	}
	if !s.setPassword(ctx, w, u.ID, req.NewPassword) {
		return
	}
	n, err := s.sessions.revokeOthers(ctx, u.ID, claims.SID)
	if err != nil {
		s.log.Warn("authserver.password.revoke_others.fail", "err", err)
	} else {
		s.log.Info("authserver.password.changed", "uid", u.ID, "revoked", n)
	}
	s.record(ctx, audit.Event{Type: audit.PasswordChanged, UserID: u.ID, SessionID: claims.SID, IP: clientIP(r, s.trustProxy), Revoked: n})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, s.maxBody, &req); err != nil || normalizeEmail(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	ctx := r.Context()
	// Always 202 so the endpoint does not reveal which emails exist.
	defer w.WriteHeader(http.StatusAccepted)

	u, err := s.users.UserByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			s.log.Error("authserver.forgot.lookup.fail", "err", err)
		}
		return
	}
	token, expires, err := s.sessions.issueReset(ctx, u.ID)
	if err != nil {
		s.log.Error("authserver.forgot.issue.fail", "err", err)
		return
	}
	s.record(ctx, audit.Event{Type: audit.PasswordResetRequested, UserID: u.ID, IP: clientIP(r, s.trustProxy)})
	if s.mailer == nil {
		s.log.Warn("authserver.forgot.no_mailer", "uid", u.ID)
		return
	}
	if err := s.mailer.SendReset(ctx, u, token, expires); err != nil {
		s.log.Error("authserver.forgot.send.fail", "uid", u.ID, "err", err)
	}
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, s.maxBody, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token and new_password are required")
		return
	}
	if err := password.CheckPolicy(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "weak_password", err.Error())
		return
	}

	ctx := r.Context()
	uid, err := s.sessions.consumeReset(ctx, req.Token)
	if errors.Is(err, ErrInvalidResetToken) {
		writeError(w, http.StatusBadRequest, "invalid_reset_token", "reset token is invalid or expired")
		return
	}
	if err != nil {
		s.log.Error("authserver.reset.consume.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}
	if !s.setPassword(ctx, w, uid, req.NewPassword) {
		return
	}
	n, err := s.sessions.revokeOthers(ctx, uid, "")
	if err != nil {
		s.log.Warn("authserver.reset.revoke.fail", "err", err)
	}
	s.record(ctx, audit.Event{Type: audit.PasswordReset, UserID: uid, IP: clientIP(r, s.trustProxy), Revoked: n})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setPassword(ctx context.Context, w http.ResponseWriter, uid, plain string) bool {
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		writeError(w, http.StatusBadRequest, "weak_password", err.Error())
		return false
	}
	if err := s.users.SetPasswordHash(ctx, uid, hash, time.Now().UTC()); err != nil {
		s.log.Error("authserver.password.store.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return false
	}
	return true
}

func (s *Server) maybeRehash(ctx context.Context, u User, plain string) {
	stale, err := s.hasher.NeedsRehash(u.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return
	}
	if err := s.users.SetPasswordHash(ctx, u.ID, hash, time.Now().UTC()); err != nil {
		s.log.Warn("authserver.login.rehash.fail", "uid", u.ID, "err", err)
	}
}

func (s *Server) writeTokens(w http.ResponseWriter, u User, sid, refresh string) {
	access, expires, err := s.tokens.CreateAccess(u.ID, sid, u.Role)
	if err != nil {
		s.log.Error("authserver.token.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, authapi.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    expires,
		ExpiresIn:    int64(s.tokens.TTL() / time.Second),
		User:         profile(u),
	})
}

func (s *Server) writeThrottle(ctx context.Context, w http.ResponseWriter, email string, err error) {
	if !errors.Is(err, rate.ErrRateLimited) {
		s.log.Error("authserver.login.throttle.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}
	if after := s.limiter.RetryAfter(ctx, email); after > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(after.Round(time.Second)/time.Second)))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

// requireAuth verifies the bearer token and that its session is still alive.
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (*jwt.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return nil, false
	}
	alive, err := s.sessions.alive(r.Context(), claims.SID)
	if err != nil {
		s.log.Error("authserver.auth.session.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return nil, false
	}
	if !alive {
		writeError(w, http.StatusUnauthorized, "session_revoked", "session has ended")
		return nil, false
	}
	return claims, true
}

func (s *Server) record(ctx context.Context, e audit.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	s.audit.Emit(ctx, e)
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return ""
	}
	return host
}
