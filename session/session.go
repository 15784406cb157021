package session

import (
	"time"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/tokenstore"
)

// State is the session state machine position.
type State uint8

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Session is a snapshot of the authenticated user and token. Values returned by the
// Manager are copies.
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
	DisplayName  string    `json:"display_name,omitempty"`
	Role         string    `json:"role,omitempty"`
	Token        string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry,omitzero"`
	IssuedAt     time.Time `json:"issued_at,omitzero"`
}

// Expired reports whether the token expiry has passed at now. A zero expiry never
// expires.
func (s Session) Expired(now time.Time) bool {
	return !s.TokenExpiry.IsZero() && !now.Before(s.TokenExpiry)
}

// Valid reports whether s carries a token that is not expired at now.
func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && !s.Expired(now)
}

// HasRole reports whether the session role is one of roles. No roles always matches.
func (s Session) HasRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == s.Role {
			return true
		}
	}
	return false
}

func fromTokenResponse(resp authapi.TokenResponse, prev Session, now time.Time) Session {
	s := Session{
		UserID:       prev.UserID,
		Email:        prev.Email,
		DisplayName:  prev.DisplayName,
		Role:         prev.Role,
		Token:        resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenExpiry:  resp.Expiry(now),
		IssuedAt:     now.UTC(),
	}
	if s.RefreshToken == "" {
		s.RefreshToken = prev.RefreshToken
	}
	if resp.User != nil {
		s = s.withProfile(*resp.User)
	}
	return s
}

func (s Session) withProfile(p authapi.UserProfile) Session {
	s.UserID = p.ID
	s.Email = p.Email
	s.DisplayName = p.DisplayName
	s.Role = p.Role
	return s
}

func (s Session) record() tokenstore.Record {
	return tokenstore.Record{
		Token:        s.Token,
		RefreshToken: s.RefreshToken,
		TokenExpiry:  s.TokenExpiry,
		User: tokenstore.Profile{
			ID:          s.UserID,
			Email:       s.Email,
			DisplayName: s.DisplayName,
			Role:        s.Role,
		},
		SavedAt: s.IssuedAt,
	}
}

func fromRecord(rec tokenstore.Record) Session {
	return Session{
		UserID:       rec.User.ID,
		Email:        rec.User.Email,
		DisplayName:  rec.User.DisplayName,
		Role:         rec.User.Role,
		Token:        rec.Token,
		RefreshToken: rec.RefreshToken,
		TokenExpiry:  rec.TokenExpiry,
		IssuedAt:     rec.SavedAt,
	}
}
