package authserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
)

// ResetMailer delivers password reset tokens.
type ResetMailer interface {
	SendReset(ctx context.Context, u User, token string, expires time.Time) error
}

// MailerFunc adapts a function to ResetMailer.
type MailerFunc func(ctx context.Context, u User, token string, expires time.Time) error

func (f MailerFunc) SendReset(ctx context.Context, u User, token string, expires time.Time) error {
	return f(ctx, u, token, expires)
}

// Options wires a Server. Users, Redis, Tokens and Hasher are required.
type Options struct {
	Users  UserStore
	Redis  redis.UniversalClient
	Tokens *jwt.Manager
	Hasher *password.Hasher
	// Limiter throttles failed logins; nil disables throttling.
	Limiter *rate.Limiter
	// Mailer receives reset tokens; nil logs and drops them.
	Mailer ResetMailer
	// Audit receives security events; nil discards them.
	Audit audit.Sink

	KeyPrefix    string
	RefreshTTL   time.Duration
	ResetTTL     time.Duration
	MaxBodyBytes int64
	TrustProxy   bool
	Logger       *slog.Logger
}

// Server serves the /auth endpoints.
type Server struct {
	users    UserStore
	sessions *sessionStore
	tokens   *jwt.Manager
	hasher   *password.Hasher
	limiter  *rate.Limiter
	mailer   ResetMailer
	audit    audit.Sink
	log      *slog.Logger

	maxBody    int64
	trustProxy bool
	dummyHash  string
}

func New(opts Options) (*Server, error) {
	switch {
	case opts.Users == nil:
		return nil, errors.New("authserver: user store is required")
	case opts.Redis == nil:
		return nil, errors.New("authserver: redis client is required")
	case opts.Tokens == nil:
		return nil, errors.New("authserver: token manager is required")
	case opts.Hasher == nil:
		return nil, errors.New("authserver: password hasher is required")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "gs:"
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = 30 * time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Audit == nil {
		opts.Audit = audit.Discard{}
	}

	dummy, err := opts.Hasher.Hash("timing-equaliser")
	if err != nil {
		return nil, fmt.Errorf("authserver: dummy hash: %w", err)
	}

	return &Server{
		users: opts.Users,
		sessions: &sessionStore{
			rdb:        opts.Redis,
			prefix:     opts.KeyPrefix,
			refreshTTL: opts.RefreshTTL,
			resetTTL:   opts.ResetTTL,
		},
		tokens:     opts.Tokens,
		hasher:     opts.Hasher,
		limiter:    opts.Limiter,
		mailer:     opts.Mailer,
		audit:      opts.Audit,
		log:        opts.Logger,
		maxBody:    opts.MaxBodyBytes,
		trustProxy: opts.TrustProxy,
		dummyHash:  dummy,
	}, nil
}

// Handler returns the router with every endpoint mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post(authapi.PathLogin, s.handleLogin)
	r.Post(authapi.PathLogout, s.handleLogout)
	r.Post(authapi.PathRefresh, s.handleRefresh)
	r.Get(authapi.PathMe, s.handleMe)
	r.Post(authapi.PathChangePassword, s.handleChangePassword)
	r.Post(authapi.PathForgotPassword, s.handleForgotPassword)
	r.Post(authapi.PathResetPassword, s.handleResetPassword)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// CreateUser hashes plain and stores a new account.
func (s *Server) CreateUser(ctx context.Context, email, displayName, role, plain string) (User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, errors.New("email is required")
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return User{}, err
	}
	now := time.Now().UTC()
	u := User{
		ID:           NewUserID(now),
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func profile(u User) *authapi.UserProfile {
	return &authapi.UserProfile{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role}
}
