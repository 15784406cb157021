package authapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/apierr"
	"github.com/MrEthical07/goSession/httpclient"
)

// Endpoint paths, relative to the API base URL.
const (
	PathLogin          = "/auth/login"
	PathLogout         = "/auth/logout"
	PathRefresh        = "/auth/refresh"
	PathMe             = "/auth/me"
	PathChangePassword = "/auth/change-password"
	PathForgotPassword = "/auth/forgot-password"
	PathResetPassword  = "/auth/reset-password"
)

// Service calls the auth endpoints.
type Service struct {
	client *httpclient.Client
	now    func() time.Time
}

// New returns a Service sending through client.
func New(client *httpclient.Client) *Service {
	return &Service{client: client, now: time.Now}
}

// Login exchanges credentials for tokens. A 401 means invalid credentials and does
// not trigger the client's unauthorized hook.
func (s *Service) Login(ctx context.Context, creds Credentials) (TokenResponse, error) {
	const op = "login"
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return TokenResponse{}, invalid(op, "missing_credentials", "email and password are required")
	}

	return s.tokenCall(ctx, httpclient.Request{
		Op:                   op,
		Method:               http.MethodPost,
		Path:                 PathLogin,
		Body:                 creds,
		SkipAuth:             true,
		SkipUnauthorizedHook: true,
	})
}

// Logout revokes the current bearer's session on the backend.
func (s *Service) Logout(ctx context.Context) error {
	return s.client.Do(ctx, httpclient.Request{
		Op:                   "logout",
		Method:               http.MethodPost,
		Path:                 PathLogout,
		SkipUnauthorizedHook: true,
	}, nil)
}

// LogoutToken is Logout with an explicit bearer, for callers that already dropped
// the session locally.
func (s *Service) LogoutToken(ctx context.Context, token string) error {
	return s.client.Do(ctx, httpclient.Request{
		Op:                   "logout",
		Method:               http.MethodPost,
		Path:                 PathLogout,
		Token:                token,
		SkipAuth:             token == "",
		SkipUnauthorizedHook: true,
	}, nil)
}

// Refresh exchanges a refresh token for a new token pair. The caller decides what a
// 401 means, so the unauthorized hook is skipped.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	const op = "refresh"
	if refreshToken == "" {
		return TokenResponse{}, invalid(op, "missing_refresh_token", "refresh token is required")
	}
	return s.tokenCall(ctx, httpclient.Request{
		Op:                   op,
		Method:               http.MethodPost,
		Path:                 PathRefresh,
		Body:                 refreshRequest{RefreshToken: refreshToken},
		SkipAuth:             true,
		SkipUnauthorizedHook: true,
	})
}

// Me returns the profile of the current bearer.
func (s *Service) Me(ctx context.Context) (UserProfile, error) {
	var out UserProfile
	err := s.client.Do(ctx, httpclient.Request{Op: "me", Method: http.MethodGet, Path: PathMe}, &out)
	if err != nil {
		return UserProfile{}, err
	}
	if out.ID == "" {
		return UserProfile{}, malformed("me", "profile has no id")
	}
	return out, nil
}

// MeToken returns the profile of token. A 401 is returned to the caller without
// reaching the unauthorized hook, so a profile fetch for a token that is not yet
// the session's cannot clear the current one.
func (s *Service) MeToken(ctx context.Context, token string) (UserProfile, error) {
	const op = "me"
	if token == "" {
		return UserProfile{}, invalid(op, "missing_token", "token is required")
	}
	var out UserProfile
	err := s.client.Do(ctx, httpclient.Request{
		Op:                   op,
		Method:               http.MethodGet,
		Path:                 PathMe,
		Token:                token,
		SkipUnauthorizedHook: true,
	}, &out)
	if err != nil {
		return UserProfile{}, err
	}
	if out.ID == "" {
		return UserProfile{}, malformed(op, "profile has no id")
	}
	return out, nil
}

// Validate is Me under the name the session layer uses.
func (s *Service) Validate(ctx context.Context) (UserProfile, error) {
	return s.Me(ctx)
}

// ChangePassword changes the current user's password.
func (s *Service) ChangePassword(ctx context.Context, current, next string) error {
	const op = "change_password"
	if current == "" || next == "" {
		return invalid(op, "missing_password", "current and new password are required")
	}
	return s.client.Do(ctx, httpclient.Request{
		Op:     op,
		Method: http.MethodPost,
		Path:   PathChangePassword,
		Body:   changePasswordRequest{CurrentPassword: current, NewPassword: next},
	}, nil)
}

// ForgotPassword asks the backend to send a reset link. The backend answers 202
// whether or not the address exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	const op = "forgot_password"
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid(op, "missing_email", "email is required")
	}
	return s.client.Do(ctx, httpclient.Request{
		Op:                   op,
		Method:               http.MethodPost,
		Path:                 PathForgotPassword,
		Body:                 forgotPasswordRequest{Email: email},
		SkipAuth:             true,
		SkipUnauthorizedHook: true,
	}, nil)
}

// ResetPassword sets a new password using a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	const op = "reset_password"
	if token == "" || next == "" {
		return invalid(op, "missing_field", "token and new password are required")
	}
	return s.client.Do(ctx, httpclient.Request{
		Op:                   op,
		Method:               http.MethodPost,
		Path:                 PathResetPassword,
		Body:                 resetPasswordRequest{Token: token, NewPassword: next},
		SkipAuth:             true,
		SkipUnauthorizedHook: true,
	}, nil)
}

func (s *Service) tokenCall(ctx context.Context, req httpclient.Request) (TokenResponse, error) {
	var out TokenResponse
	if err := s.client.Do(ctx, req, &out); err != nil {
		return TokenResponse{}, err
	}
	if out.AccessToken == "" {
		return TokenResponse{}, malformed(req.Op, "response has no access_token")
	}
	if out.ExpiresAt.IsZero() {
		out.ExpiresAt = out.Expiry(s.now())
	}
	return out, nil
}

func invalid(op, code, msg string) *apierr.Error {
	return &apierr.Error{Kind: apierr.KindValidation, Op: op, Code: code, Message: msg}
}

func malformed(op, msg string) *apierr.Error {
	return &apierr.Error{Kind: apierr.KindServer, Status: http.StatusOK, Op: op, Message: msg}
}
