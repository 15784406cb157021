package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/apierr"
	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/httpclient"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/tokenstore"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// Client is one process's authenticated session against one backend.
type Client struct {
	cfg     Config
	log     *slog.Logger
	metrics *Metrics

	store      tokenstore.Store
	ownedRedis redis.UniversalClient
	watcher    *tokenstore.Watcher
	stopFollow context.CancelFunc
	followDone chan struct{}

	http    *httpclient.Client
	auth    *authapi.Service
	session *session.Manager
	guard   *middleware.RouteGuard
	nav     *session.AsyncObserver

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type clientDeps struct {
	store      tokenstore.Store
	redis      redis.UniversalClient
	logger     *slog.Logger
	navigator  Navigator
	httpClient *http.Client
	observers  []session.Observer
}

func newClient(cfg Config, deps clientDeps) (*Client, error) {
	log := deps.logger
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		cfg:     cfg,
		log:     log,
		metrics: NewMetrics(cfg.Metrics),
		store:   deps.store,
	}
	if c.store == nil {
		store, owned, err := openStore(cfg.Storage, deps.redis)
		if err != nil {
			return nil, fmt.Errorf("open token store: %w", err)
		}
		c.store, c.ownedRedis = store, owned
	}

	hc, err := httpclient.New(httpclient.Options{
		BaseURL:        cfg.API.BaseURL,
		HTTPClient:     deps.httpClient,
		Tokens:         clientTokens{c: c},
		OnUnauthorized: c.onUnauthorized,
		Timeout:        cfg.API.Timeout,
		UserAgent:      cfg.API.UserAgent,
		Logger:         log,
	})
	if err != nil {
		c.closeOwned()
		return nil, err
	}
	c.http = hc
	c.auth = authapi.New(hc)

	mgr, err := session.NewManager(session.Options{
		Auth:              c.auth,
		Store:             c.store,
		ValidateOnRestore: cfg.Session.ValidateOnRestore,
		Logger:            log,
	})
	if err != nil {
		c.closeOwned()
		return nil, err
	}
	c.session = mgr

	mgr.Subscribe(session.ObserverFunc(c.countEvent))
	nav := deps.navigator
	if nav == nil {
		nav = noopNavigator{}
	}
	c.nav = session.NewAsyncObserver(navigationObserver{nav: nav}, session.AsyncOptions{
		BufferSize: cfg.Session.ObserverBuffer,
		DropIfFull: true,
	})
	mgr.Subscribe(c.nav)
	for _, obs := range deps.observers {
		mgr.Subscribe(obs)
	}

	guard, err := middleware.NewRouteGuard(mgr, middleware.RouteOptions{
		Protected: cfg.Routes.Protected,
		Public:    cfg.Routes.Public,
		Roles:     cfg.RoleMap(),
		LoginPath: cfg.Routes.LoginPath,
	})
	if err != nil {
		c.nav.Close()
		c.closeOwned()
		return nil, err
	}
	c.guard = guard

	if err := c.watchStore(log); err != nil {
		c.nav.Close()
		c.closeOwned()
		return nil, fmt.Errorf("watch token store: %w", err)
	}
	return c, nil
}

/*
====================================
SESSION OPERATIONS
====================================
*/

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (session.Session, error) {
	if c.closed.Load() {
		return session.Session{}, ErrClientClosed
	}
	start := time.Now()
	s, err := c.session.Login(ctx, authapi.Credentials{Email: email, Password: password})
	c.observe(start, err)
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
	}
	return s, err
}

// Logout ends the session. The local result is always Unauthenticated.
func (c *Client) Logout(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return c.session.Logout(ctx)
}

// Refresh exchanges the refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context) (session.Session, error) {
	if c.closed.Load() {
		return session.Session{}, ErrClientClosed
	}
	start := time.Now()
	s, err := c.session.Refresh(ctx)
	c.observe(start, err)
	if err != nil {
		c.metrics.Inc(MetricRefreshFailure)
	}
	return s, err
}

// EnsureFresh refreshes when the token expires within Config.Session.RefreshSkew.
func (c *Client) EnsureFresh(ctx context.Context) (session.Session, error) {
	if c.closed.Load() {
		return session.Session{}, ErrClientClosed
	}
	start := time.Now()
	s, refreshed, err := c.session.RefreshIfExpiring(ctx, c.cfg.Session.RefreshSkew)
	if refreshed || err != nil {
		c.observe(start, err)
	}
	if err != nil && !errors.Is(err, session.ErrNotAuthenticated) {
		c.metrics.Inc(MetricRefreshFailure)
	}
	return s, err
}

// Validate checks the token against GET /auth/me.
func (c *Client) Validate(ctx context.Context) (session.Session, error) {
	if c.closed.Load() {
		return session.Session{}, ErrClientClosed
	}
	start := time.Now()
	s, err := c.session.Validate(ctx)
	c.observe(start, err)
	if err != nil {
		c.metrics.Inc(MetricValidateFailure)
	} else {
		c.metrics.Inc(MetricValidateSuccess)
	}
	return s, err
}

// Restore loads the persisted session.
func (c *Client) Restore(ctx context.Context) (session.Session, error) {
	if c.closed.Load() {
		return session.Session{}, ErrClientClosed
	}
	s, err := c.session.Restore(ctx)
	if errors.Is(err, session.ErrSessionExpired) {
		c.metrics.Inc(MetricRestoreExpired)
	}
	return s, err
}

// Current returns the session when authenticated.
func (c *Client) Current() (session.Session, bool) { return c.session.Current() }

// IsAuthenticated reports whether a non-expired token is held.
func (c *Client) IsAuthenticated() bool { return c.session.IsAuthenticated() }

// State returns the session state machine position.
func (c *Client) State() session.State { return c.session.State() }

// User returns the current user profile.
func (c *Client) User() (authapi.UserProfile, bool) { return c.session.User() }

// Subscribe registers an observer for session events.
func (c *Client) Subscribe(obs session.Observer) (unsubscribe func()) {
	return c.session.Subscribe(obs)
}

/*
====================================
PASSWORD OPERATIONS
====================================
*/

// ChangePassword changes the signed-in user's password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.session.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	start := time.Now()
	err := c.auth.ChangePassword(ctx, current, next)
	c.observe(start, err)
	if err == nil {
		c.metrics.Inc(MetricPasswordChange)
	}
	return err
}

// ForgotPassword requests a reset link for email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	start := time.Now()
	err := c.auth.ForgotPassword(ctx, email)
	c.observe(start, err)
	if err == nil {
		c.metrics.Inc(MetricPasswordResetRequest)
	}
	return err
}

// ResetPassword completes a reset with the token from the reset link.
func (c *Client) ResetPassword(ctx context.Context, token, next string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	start := time.Now()
	err := c.auth.ResetPassword(ctx, token, next)
	c.observe(start, err)
	if err == nil {
		c.metrics.Inc(MetricPasswordResetConfirm)
	}
	return err
}

/*
====================================
ROUTING
====================================
*/

// RouteGuard returns the guard built from Config.Routes.
func (c *Client) RouteGuard() *middleware.RouteGuard { return c.guard }

// CheckRoute decides whether path may be visited now.
func (c *Client) CheckRoute(path string) middleware.Decision {
	d := c.guard.Check(path)
	c.countDecision(nil, d)
	return d
}

// Guard returns net/http middleware enforcing the route guard.
func (c *Client) Guard() func(http.Handler) http.Handler {
	return middleware.Guard(c.guard, c.countDecision)
}

func (c *Client) countDecision(_ *http.Request, d middleware.Decision) {
	if d.Allowed {
		c.metrics.Inc(MetricGuardAllowed)
		return
	}
	c.metrics.Inc(MetricGuardDenied)
}

/*
====================================
ACCESSORS
====================================
*/

// Session returns the underlying manager.
func (c *Client) Session() *session.Manager { return c.session }

// Store returns the token store in use.
func (c *Client) Store() tokenstore.Store { return c.store }

// HTTP returns the backend gateway, for application calls that should carry the
// session bearer and share its 401 handling.
func (c *Client) HTTP() *httpclient.Client { return c.http }

// Config returns a copy of the configuration.
func (c *Client) Config() Config { return cloneConfig(c.cfg) }

func (c *Client) Metrics() *Metrics { return c.metrics }

// MetricsSnapshot is read by the exporters under metrics/export.
func (c *Client) MetricsSnapshot() MetricsSnapshot { return c.metrics.Snapshot() }

// ObserverDropped counts navigation events dropped because the queue was full.
func (c *Client) ObserverDropped() uint64 { return c.nav.Dropped() }

// Close stops the store watcher and the navigation queue and releases a Redis
// client Build dialed. The persisted session is kept.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.stopFollow != nil {
			c.stopFollow()
		}
		if c.watcher != nil {
			if err := c.watcher.Close(); err != nil {
				c.closeErr = fmt.Errorf("close watcher: %w", err)
			}
			<-c.followDone
		}
		c.session.Close()
		c.nav.Close()
		c.closeOwned()
	})
	return c.closeErr
}

func (c *Client) closeOwned() {
	if c.ownedRedis == nil {
		return
	}
	if err := c.ownedRedis.Close(); err != nil {
		c.log.Warn("gosession.redis.close_fail", "err", err)
	}
	c.ownedRedis = nil
}

func (c *Client) onUnauthorized(ctx context.Context, token string, err *apierr.Error) {
	c.session.HandleRejectedToken(ctx, token, err)
}

func (c *Client) observe(start time.Time, err error) {
	c.metrics.Observe(MetricRequestLatency, time.Since(start))
	if apierr.IsNetwork(err) {
		c.metrics.Inc(MetricNetworkError)
	}
}

func (c *Client) countEvent(_ context.Context, e session.Event) {
	switch e.Type {
	case session.EventLogin:
		c.metrics.Inc(MetricLoginSuccess)
	case session.EventLogout:
		c.metrics.Inc(MetricLogout)
	case session.EventRefresh:
		c.metrics.Inc(MetricRefreshSuccess)
	case session.EventUnauthorized:
		c.metrics.Inc(MetricUnauthorized)
	case session.EventRestore:
		c.metrics.Inc(MetricRestoreSuccess)
	case session.EventExternalChange:
		c.metrics.Inc(MetricExternalChange)
	}
}

type clientTokens struct{ c *Client }

func (t clientTokens) Token() (*oauth2.Token, error) {
	if t.c.session == nil {
		return nil, ErrNotAuthenticated
	}
	return t.c.session.Token().Token()
}

type navigationObserver struct{ nav Navigator }

func (o navigationObserver) Notify(ctx context.Context, e session.Event) {
	switch {
	case e.Type == session.EventUnauthorized:
		o.nav.RedirectToLogin(ctx, e.Reason)
	case e.Type == session.EventExternalChange && e.State == session.Unauthenticated:
		o.nav.RedirectToLogin(ctx, "signed out elsewhere")
	}
}
