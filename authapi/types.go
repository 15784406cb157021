package authapi

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is transient login input. It is never persisted.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserProfile is the user object returned by the backend.
type UserProfile struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
}

// TokenResponse is the body of a successful login or refresh.
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`
	ExpiresAt    time.Time    `json:"expires_at,omitzero"`
	ExpiresIn    int64        `json:"expires_in,omitempty"`
	User         *UserProfile `json:"user,omitempty"`
}

// Expiry resolves the access token expiry. expires_at wins over expires_in; with
// neither, the JWT exp claim is read without verification. A zero time means the
// expiry is unknown.
func (t TokenResponse) Expiry(received time.Time) time.Time {
	if !t.ExpiresAt.IsZero() {
		return t.ExpiresAt.UTC()
	}
	if t.ExpiresIn > 0 {
		return received.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	exp, _ := UnverifiedExpiry(t.AccessToken)
	return exp
}

// UnverifiedExpiry reads the exp claim of a JWT without checking its signature.
// The client cannot verify backend tokens; the value is only used to schedule
// refreshes and drop stale records.
func UnverifiedExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.UTC(), true
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
