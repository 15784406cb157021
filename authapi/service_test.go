package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/apierr"
	"github.com/MrEthical07/goSession/httpclient"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]string
}

func newService(t *testing.T, status int, resp any, tokens oauth2.TokenSource) (*Service, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if resp != nil {
			_ = json.NewEncoder(w).Encode(resp)
		}
	}))
	t.Cleanup(srv.Close)

	hookCalls := 0
	client, err := httpclient.New(httpclient.Options{
		BaseURL: srv.URL,
		Tokens:  tokens,
		OnUnauthorized: func(context.Context, string, *apierr.Error) {
			hookCalls++
			t.Errorf("unexpected unauthorized hook call %d", hookCalls)
		},
	})
	require.NoError(t, err)
	return New(client), &calls
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return tok
}

func TestLoginSendsCredentialsAndDecodes(t *testing.T) {
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	svc, calls := newService(t, http.StatusOK, map[string]any{
		"access_token":  "access",
		"refresh_token": "refresh",
		"token_type":    "Bearer",
		"expires_at":    expires.Format(time.RFC3339),
		"user":          map[string]string{"id": "u1", "email": "ada@example.com", "display_name": "Ada", "role": "hr_admin"},
	}, nil)

	resp, err := svc.Login(context.Background(), Credentials{Email: " ada@example.com ", Password: "pw"})
	require.NoError(t, err)

	assert.Equal(t, "access", resp.AccessToken)
	assert.Equal(t, "refresh", resp.RefreshToken)
	assert.True(t, expires.Equal(resp.ExpiresAt))
	require.NotNil(t, resp.User)
	assert.Equal(t, "hr_admin", resp.User.Role)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, PathLogin, call.path)
	assert.Empty(t, call.auth)
	assert.Equal(t, "ada@example.com", call.body["email"])
	assert.Equal(t, "pw", call.body["password"])
}

func TestLoginInvalidCredentialsSkipsHook(t *testing.T) {
	svc, _ := newService(t, http.StatusUnauthorized, map[string]any{
		"error": map[string]string{"code": "invalid_credentials", "message": "invalid credentials"},
	}, nil)

	_, err := svc.Login(context.Background(), Credentials{Email: "a@b.c", Password: "nope"})
	require.Error(t, err)
	assert.True(t, apierr.IsAuthentication(err))

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_credentials", apiErr.Code)
}

func TestLoginRejectsEmptyInputLocally(t *testing.T) {
	svc, calls := newService(t, http.StatusOK, nil, nil)
	_, err := svc.Login(context.Background(), Credentials{Email: "  ", Password: "x"})
	assert.True(t, apierr.IsValidation(err))
	assert.Empty(t, *calls)
}

func TestLoginWithoutAccessTokenIsServerError(t *testing.T) {
	svc, _ := newService(t, http.StatusOK, map[string]any{"token_type": "Bearer"}, nil)
	_, err := svc.Login(context.Background(), Credentials{Email: "a@b.c", Password: "x"})
	assert.True(t, apierr.IsServer(err))
}

func TestExpiryFallbacks(t *testing.T) {
	received := time.Date(2031, 5, 1, 12, 0, 0, 0, time.UTC)

	resp := TokenResponse{AccessToken: "opaque", ExpiresIn: 900}
	assert.Equal(t, received.Add(15*time.Minute), resp.Expiry(received))

	exp := received.Add(time.Hour).Truncate(time.Second)
	resp = TokenResponse{AccessToken: signed(t, exp)}
	assert.True(t, exp.Equal(resp.Expiry(received)))

	resp = TokenResponse{AccessToken: "opaque"}
	assert.True(t, resp.Expiry(received).IsZero())

	_, ok := UnverifiedExpiry("a.b.c")
	assert.False(t, ok)
}

func TestRefreshPostsRefreshToken(t *testing.T) {
	svc, calls := newService(t, http.StatusOK, map[string]any{"access_token": "a2", "expires_in": 60}, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "stale"}))

	resp, err := svc.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "a2", resp.AccessToken)
	assert.False(t, resp.ExpiresAt.IsZero())

	call := (*calls)[0]
	assert.Equal(t, PathRefresh, call.path)
	assert.Equal(t, "r1", call.body["refresh_token"])
	assert.Empty(t, call.auth)

	_, err = svc.Refresh(context.Background(), "")
	assert.True(t, apierr.IsValidation(err))
}

func TestRefreshUnauthorizedSkipsHook(t *testing.T) {
	svc, _ := newService(t, http.StatusUnauthorized, nil, nil)
	_, err := svc.Refresh(context.Background(), "revoked")
	assert.True(t, apierr.IsAuthentication(err))
}

func TestMeUsesBearer(t *testing.T) {
	svc, calls := newService(t, http.StatusOK, map[string]string{"id": "u1", "display_name": "Ada"}, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}))

	profile, err := svc.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.DisplayName)
	assert.Equal(t, "Bearer tok", (*calls)[0].auth)
	assert.Equal(t, http.MethodGet, (*calls)[0].method)
}

func TestMeWithoutIDIsServerError(t *testing.T) {
	svc, _ := newService(t, http.StatusOK, map[string]string{}, nil)
	_, err := svc.Me(context.Background())
	assert.True(t, apierr.IsServer(err))
}

func TestMeTokenPinsTokenAndSkipsHook(t *testing.T) {
	svc, calls := newService(t, http.StatusOK, map[string]string{"id": "u2"}, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "cur"}))
	profile, err := svc.MeToken(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "u2", profile.ID)
	assert.Equal(t, "Bearer fresh", (*calls)[0].auth)

	svc, _ = newService(t, http.StatusUnauthorized, map[string]any{"error": map[string]string{"code": "unauthorized"}}, nil)
	_, err = svc.MeToken(context.Background(), "fresh")
	assert.True(t, apierr.IsAuthentication(err))

	_, err = svc.MeToken(context.Background(), "")
	assert.True(t, apierr.IsValidation(err))
}

func TestLogoutVariants(t *testing.T) {
	svc, calls := newService(t, http.StatusNoContent, nil, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "cur"}))

	require.NoError(t, svc.Logout(context.Background()))
	require.NoError(t, svc.LogoutToken(context.Background(), "old"))

	require.Len(t, *calls, 2)
	assert.Equal(t, "Bearer cur", (*calls)[0].auth)
	assert.Equal(t, "Bearer old", (*calls)[1].auth)
	assert.Equal(t, PathLogout, (*calls)[1].path)
}

func TestPasswordOperations(t *testing.T) {
	svc, calls := newService(t, http.StatusAccepted, nil, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "cur"}))
	ctx := context.Background()

	require.NoError(t, svc.ChangePassword(ctx, "old-pw", "new-pw"))
	require.NoError(t, svc.ForgotPassword(ctx, "ada@example.com"))
	require.NoError(t, svc.ResetPassword(ctx, "reset-1", "newer-pw"))

	require.Len(t, *calls, 3)
	assert.Equal(t, PathChangePassword, (*calls)[0].path)
	assert.Equal(t, "old-pw", (*calls)[0].body["current_password"])
	assert.Equal(t, "new-pw", (*calls)[0].body["new_password"])
	assert.Equal(t, "Bearer cur", (*calls)[0].auth)

	assert.Equal(t, PathForgotPassword, (*calls)[1].path)
	assert.Equal(t, "ada@example.com", (*calls)[1].body["email"])
	assert.Empty(t, (*calls)[1].auth)

	assert.Equal(t, PathResetPassword, (*calls)[2].path)
	assert.Equal(t, "reset-1", (*calls)[2].body["token"])

	assert.True(t, apierr.IsValidation(svc.ChangePassword(ctx, "", "x")))
	assert.True(t, apierr.IsValidation(svc.ForgotPassword(ctx, " ")))
	assert.True(t, apierr.IsValidation(svc.ResetPassword(ctx, "t", "")))
	assert.Len(t, *calls, 3)
}
