package authserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSession/apierr"
	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/rate"
)

const (
	aliceEmail    = "alice@example.com"
	alicePassword = "correct horse"
)

type capturedMail struct {
	mu     sync.Mutex
	tokens []string
}

func (m *capturedMail) SendReset(_ context.Context, _ User, token string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	return nil
}

func (m *capturedMail) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tokens) == 0 {
		return ""
	}
	return m.tokens[len(m.tokens)-1]
}

func startDev(t *testing.T, opts DevOptions) *Dev {
	t.Helper()
	if opts.Seed == nil {
		opts.Seed = []SeedUser{{Email: aliceEmail, DisplayName: "Alice", Role: "hr_admin", Password: alicePassword}}
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	dev, err := StartDev(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(dev.Close)
	return dev
}

func call(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	code, _ := apierr.ParseEnvelope(rec.Body.Bytes())
	return code
}

func login(t *testing.T, h http.Handler, email, pass string) authapi.TokenResponse {
	t.Helper()
	rec := call(t, h, http.MethodPost, authapi.PathLogin, map[string]string{"email": email, "password": pass}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out authapi.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestLoginAndMe(t *testing.T) {
	dev := startDev(t, DevOptions{})
	h := dev.Handler()

	tok := login(t, h, "ALICE@example.com ", alicePassword)
	assert.NotEmpty(t, tok.AccessToken)
	assert.NotEmpty(t, tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.ExpiresAt, 5*time.Second)
	require.NotNil(t, tok.User)
	assert.Equal(t, "hr_admin", tok.User.Role)

	exp, ok := authapi.UnverifiedExpiry(tok.AccessToken)
	require.True(t, ok)
	assert.Equal(t, tok.ExpiresAt.Unix(), exp.Unix())

	rec := call(t, h, http.MethodGet, authapi.PathMe, nil, tok.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var me authapi.UserProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, dev.Seeded[0].ID, me.ID)
	assert.Equal(t, "Alice", me.DisplayName)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := startDev(t, DevOptions{}).Handler()

	for _, body := range []map[string]string{
		{"email": aliceEmail, "password": "wrong password"},
		{"email": "nobody@example.com", "password": alicePassword},
	} {
		rec := call(t, h, http.MethodPost, authapi.PathLogin, body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_credentials", errorCode(t, rec))
	}

	rec := call(t, h, http.MethodPost, authapi.PathLogin, map[string]string{"email": aliceEmail}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodPost, authapi.PathLogin, map[string]any{"email": aliceEmail, "password": "x", "extra": 1}, "")
	assert.Equal(t, "invalid_json", errorCode(t, rec))
}

func TestMeRequiresBearer(t *testing.T) {
	h := startDev(t, DevOptions{}).Handler()

	assert.Equal(t, http.StatusUnauthorized, call(t, h, http.MethodGet, authapi.PathMe, nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, h, http.MethodGet, authapi.PathMe, nil, "not-a-jwt").Code)
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	h := startDev(t, DevOptions{}).Handler()
	first := login(t, h, aliceEmail, alicePassword)

	rec := call(t, h, http.MethodPost, authapi.PathRefresh, map[string]string{"refresh_token": first.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second authapi.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, http.StatusOK, call(t, h, http.MethodGet, authapi.PathMe, nil, second.AccessToken).Code)

	rec = call(t, h, http.MethodPost, authapi.PathRefresh, map[string]string{"refresh_token": first.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_refresh_token", errorCode(t, rec))

	// Reuse ended the session, so its newest tokens are dead too.
	rec = call(t, h, http.MethodGet, authapi.PathMe, nil, second.AccessToken)
	assert.Equal(t, "session_revoked", errorCode(t, rec))
	rec = call(t, h, http.MethodPost, authapi.PathRefresh, map[string]string{"refresh_token": second.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	h := startDev(t, DevOptions{}).Handler()
	tok := login(t, h, aliceEmail, alicePassword)
	other := login(t, h, aliceEmail, alicePassword)

	assert.Equal(t, http.StatusNoContent, call(t, h, http.MethodPost, authapi.PathLogout, nil, tok.AccessToken).Code)
	assert.Equal(t, "session_revoked", errorCode(t, call(t, h, http.MethodGet, authapi.PathMe, nil, tok.AccessToken)))
	assert.Equal(t, http.StatusUnauthorized,
		call(t, h, http.MethodPost, authapi.PathRefresh, map[string]string{"refresh_token": tok.RefreshToken}, "").Code)

	assert.Equal(t, http.StatusOK, call(t, h, http.MethodGet, authapi.PathMe, nil, other.AccessToken).Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, h, http.MethodPost, authapi.PathLogout, nil, tok.AccessToken).Code)
}

func TestChangePassword(t *testing.T) {
	h := startDev(t, DevOptions{}).Handler()
	current := login(t, h, aliceEmail, alicePassword)
	other := login(t, h, aliceEmail, alicePassword)

	rec := call(t, h, http.MethodPost, authapi.PathChangePassword,
		map[string]string{"current_password": "wrong password", "new_password": "battery staple"}, current.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_current_password", errorCode(t, rec))

	rec = call(t, h, http.MethodPost, authapi.PathChangePassword,
		map[string]string{"current_password": alicePassword, "new_password": "short"}, current.AccessToken)
	assert.Equal(t, "weak_password", errorCode(t, rec))

	rec = call(t, h, http.MethodPost, authapi.PathChangePassword,
		map[string]string{"current_password": alicePassword, "new_password": "battery staple"}, current.AccessToken)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusOK, call(t, h, http.MethodGet, authapi.PathMe, nil, current.AccessToken).Code)
	assert.Equal(t, "session_revoked", errorCode(t, call(t, h, http.MethodGet, authapi.PathMe, nil, other.AccessToken)))

	assert.Equal(t, http.StatusUnauthorized,
		call(t, h, http.MethodPost, authapi.PathLogin, map[string]string{"email": aliceEmail, "password": alicePassword}, "").Code)
	login(t, h, aliceEmail, "battery staple")
}

func TestForgotAndResetPassword(t *testing.T) {
	mail := &capturedMail{}
	h := startDev(t, DevOptions{Mailer: mail}).Handler()
	session := login(t, h, aliceEmail, alicePassword)

	rec := call(t, h, http.MethodPost, authapi.PathForgotPassword, map[string]string{"email": "nobody@example.com"}, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, mail.last())

	rec = call(t, h, http.MethodPost, authapi.PathForgotPassword, map[string]string{"email": aliceEmail}, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	token := mail.last()
	require.NotEmpty(t, token)

	rec = call(t, h, http.MethodPost, authapi.PathResetPassword, map[string]string{"token": token, "new_password": "tiny"}, "")
	assert.Equal(t, "weak_password", errorCode(t, rec))

	rec = call(t, h, http.MethodPost, authapi.PathResetPassword, map[string]string{"token": token, "new_password": "battery staple"}, "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = call(t, h, http.MethodPost, authapi.PathResetPassword, map[string]string{"token": token, "new_password": "another staple"}, "")
	assert.Equal(t, "invalid_reset_token", errorCode(t, rec))

	assert.Equal(t, "session_revoked", errorCode(t, call(t, h, http.MethodGet, authapi.PathMe, nil, session.AccessToken)))
	login(t, h, aliceEmail, "battery staple")
}

func TestResetTokenExpires(t *testing.T) {
	mail := &capturedMail{}
	dev := startDev(t, DevOptions{Mailer: mail})
	h := dev.Handler()

	call(t, h, http.MethodPost, authapi.PathForgotPassword, map[string]string{"email": aliceEmail}, "")
	dev.Redis.FastForward(31 * time.Minute)

	rec := call(t, h, http.MethodPost, authapi.PathResetPassword, map[string]string{"token": mail.last(), "new_password": "battery staple"}, "")
	assert.Equal(t, "invalid_reset_token", errorCode(t, rec))
}

func TestLoginThrottle(t *testing.T) {
	h := startDev(t, DevOptions{Throttle: &rate.Config{Prefix: "t:", MaxAttempts: 2, Window: time.Minute}}).Handler()
	bad := map[string]string{"email": aliceEmail, "password": "wrong password"}

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, call(t, h, http.MethodPost, authapi.PathLogin, bad, "").Code)
	}
	rec := call(t, h, http.MethodPost, authapi.PathLogin, map[string]string{"email": aliceEmail, "password": alicePassword}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestUnknownRoute(t *testing.T) {
	h := startDev(t, DevOptions{}).Handler()
	rec := call(t, h, http.MethodGet, "/auth/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = call(t, h, http.MethodGet, authapi.PathLogin, nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartDevReusesSQLiteSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	opts := DevOptions{
		SQLitePath: path,
		Seed:       []SeedUser{{Email: aliceEmail, Role: "hr_admin", Password: alicePassword}},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	first, err := StartDev(context.Background(), opts)
	require.NoError(t, err)
	id := first.Seeded[0].ID
	first.Close()

	second, err := StartDev(context.Background(), opts)
	require.NoError(t, err)
	defer second.Close()
	require.Len(t, second.Seeded, 1)
	assert.Equal(t, id, second.Seeded[0].ID)
}

func TestAuditTrail(t *testing.T) {
	sink := audit.NewChannelSink(16)
	dev := startDev(t, DevOptions{Audit: sink})
	h := dev.Handler()

	call(t, h, http.MethodPost, authapi.PathLogin, map[string]string{"email": aliceEmail, "password": "wrong password"}, "")
	tok := login(t, h, aliceEmail, alicePassword)
	rotated := call(t, h, http.MethodPost, authapi.PathRefresh, map[string]string{"refresh_token": tok.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rotated.Code)
	reused := call(t, h, http.MethodPost, authapi.PathRefresh, map[string]string{"refresh_token": tok.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, reused.Code)

	want := []audit.Type{audit.LoginFailed, audit.LoginSucceeded, audit.TokenRefreshed, audit.RefreshReused}
	for _, typ := range want {
		select {
		case e := <-sink.Events():
			assert.Equal(t, typ, e.Type)
			assert.Equal(t, "192.0.2.1", e.IP)
			assert.False(t, e.Time.IsZero())
			if typ == audit.LoginSucceeded {
				assert.Equal(t, dev.Seeded[0].ID, e.UserID)
				assert.NotEmpty(t, e.SessionID)
			}
			if typ == audit.LoginFailed {
				assert.Equal(t, aliceEmail, e.Email)
			}
		default:
			t.Fatalf("missing %s event", typ)
		}
	}
}
