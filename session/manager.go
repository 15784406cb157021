package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/apierr"
	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/tokenstore"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Authenticator is the subset of authapi.Service the Manager calls.
type Authenticator interface {
	Login(ctx context.Context, creds authapi.Credentials) (authapi.TokenResponse, error)
	LogoutToken(ctx context.Context, token string) error
	Refresh(ctx context.Context, refreshToken string) (authapi.TokenResponse, error)
	MeToken(ctx context.Context, token string) (authapi.UserProfile, error)
}

// Options configures a Manager.
type Options struct {
	Auth  Authenticator
	Store tokenstore.Store
	// ValidateOnRestore calls Me after Restore loads a record.
	ValidateOnRestore bool
	Logger            *slog.Logger
	Now               func() time.Time
}

// Manager is the single writer of a Session.
type Manager struct {
	auth              Authenticator
	store             tokenstore.Store
	validateOnRestore bool
	log               *slog.Logger
	now               func() time.Time

	mu      sync.RWMutex
	current Session
	gen     uint64
	closed  bool

	// Events are queued under mu and delivered by whichever caller holds notifyMu,
	// so observers see commit order and may read the Manager.
	pendingMu sync.Mutex
	pending   []pendingEvent
	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers []subscription
	nextObsID uint64

	refreshGroup singleflight.Group
}

type subscription struct {
	id  uint64
	obs Observer
}

// NewManager returns an Unauthenticated Manager. Call Restore to load a persisted
// session.
func NewManager(opts Options) (*Manager, error) {
	if opts.Auth == nil {
		return nil, errors.New("session: authenticator is required")
	}
	if opts.Store == nil {
		return nil, errors.New("session: token store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		auth:              opts.Auth,
		store:             opts.Store,
		validateOnRestore: opts.ValidateOnRestore,
		log:               opts.Logger,
		now:               opts.Now,
	}, nil
}

// Subscribe registers obs and returns a function that removes it.
func (m *Manager) Subscribe(obs Observer) (unsubscribe func()) {
	if obs == nil {
		return func() {}
	}
	m.obsMu.Lock()
	m.nextObsID++
	id := m.nextObsID
	m.observers = append(m.observers, subscription{id: id, obs: obs})
	m.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obsMu.Lock()
			defer m.obsMu.Unlock()
			for i, s := range m.observers {
				if s.id == id {
					m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Current returns a copy of the session and whether it is authenticated. An expired
// token reads as unauthenticated.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()
	if !s.Valid(m.now()) {
		return Session{}, false
	}
	return s, true
}

// IsAuthenticated reports whether a non-expired token is held.
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.Current()
	return ok
}

// State returns the state machine position.
func (m *Manager) State() State {
	if m.IsAuthenticated() {
		return Authenticated
	}
	return Unauthenticated
}

// User returns the profile half of the current session.
func (m *Manager) User() (authapi.UserProfile, bool) {
	s, ok := m.Current()
	if !ok {
		return authapi.UserProfile{}, false
	}
	return authapi.UserProfile{ID: s.UserID, Email: s.Email, DisplayName: s.DisplayName, Role: s.Role}, true
}

// Token returns an oauth2.TokenSource reading the current access token.
func (m *Manager) Token() oauth2.TokenSource {
	return tokenSource{m: m}
}

type tokenSource struct{ m *Manager }

func (t tokenSource) Token() (*oauth2.Token, error) {
	s, ok := t.m.Current()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{
		AccessToken:  s.Token,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.TokenExpiry,
	}, nil
}

// Login authenticates creds and commits the new session. On any failure the prior
// state is kept and nothing is persisted.
func (m *Manager) Login(ctx context.Context, creds authapi.Credentials) (Session, error) {
	resp, err := m.auth.Login(ctx, creds)
	if err != nil {
		m.log.Info("gosession.login.fail", "err", err)
		return Session{}, err
	}

	now := m.now()
	next := fromTokenResponse(resp, Session{}, now)
	if next.UserID == "" {
		profile, err := m.auth.MeToken(ctx, next.Token)
		if err != nil {
			m.log.Info("gosession.login.profile_fail", "err", err)
			return Session{}, err
		}
		next = next.withProfile(profile)
	}
	if !next.Valid(now) {
		return Session{}, &apierr.Error{Kind: apierr.KindServer, Op: "login", Message: "backend issued an expired token"}
	}

	if err := m.commit(ctx, EventLogin, next, "", nil); err != nil {
		return Session{}, err
	}
	m.log.Info("gosession.login.ok", "user_id", next.UserID, "role", next.Role)
	return next, nil
}

// Logout drops the session locally and then revokes it on the backend. The local
// result is Unauthenticated whatever the backend answers; only a failure to clear
// the token store is returned.
func (m *Manager) Logout(ctx context.Context) error {
	prev, err := m.clear(ctx, EventLogout, "user")
	if prev.Token != "" {
		if rerr := m.auth.LogoutToken(ctx, prev.Token); rerr != nil {
			m.log.Warn("gosession.logout.remote_fail", "err", rerr)
		}
	}
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// HandleUnauthorized clears the session after a 401. It is a no-op when already
// Unauthenticated.
func (m *Manager) HandleUnauthorized(ctx context.Context, cause error) {
	reason := "unauthorized"
	if cause != nil {
		reason = cause.Error()
	}
	if _, err := m.clear(ctx, EventUnauthorized, reason); err != nil {
		m.log.Error("gosession.unauthorized.clear_fail", "err", err)
	}
}

// HandleRejectedToken is HandleUnauthorized for a 401 answered to a request sent
// with token. It clears only while token is still the current access token, so a
// late 401 for a replaced token leaves the new session alone. An empty token
// clears unconditionally.
func (m *Manager) HandleRejectedToken(ctx context.Context, token string, cause error) {
	if token == "" {
		m.HandleUnauthorized(ctx, cause)
		return
	}
	current, gen := m.snapshot()
	if current.Token != token {
		m.log.Debug("gosession.unauthorized.stale_token")
		return
	}
	reason := "unauthorized"
	if cause != nil {
		reason = cause.Error()
	}
	m.clearIf(ctx, gen, EventUnauthorized, reason)
}

// Refresh exchanges the refresh token for a new access token. Concurrent calls share
// one backend request. A 401 clears the session.
func (m *Manager) Refresh(ctx context.Context) (Session, error) {
	v, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

// RefreshIfExpiring refreshes only when the token expires within the window. It
// reports whether a refresh happened.
func (m *Manager) RefreshIfExpiring(ctx context.Context, within time.Duration) (Session, bool, error) {
	s, _ := m.snapshot()
	if s.Token == "" {
		return Session{}, false, ErrNotAuthenticated
	}
	if s.TokenExpiry.IsZero() || s.TokenExpiry.Sub(m.now()) > within {
		return s, false, nil
	}
	if s.RefreshToken == "" {
		if s.Expired(m.now()) {
			return Session{}, false, ErrSessionExpired
		}
		return s, false, nil
	}
	next, err := m.Refresh(ctx)
	if err != nil {
		return Session{}, false, err
	}
	return next, true, nil
}

func (m *Manager) refresh(ctx context.Context) (Session, error) {
	prev, gen := m.snapshot()
	if prev.Token == "" {
		return Session{}, ErrNotAuthenticated
	}
	if prev.RefreshToken == "" {
		return Session{}, ErrNoRefreshToken
	}

	resp, err := m.auth.Refresh(ctx, prev.RefreshToken)
	if err != nil {
		if apierr.IsAuthentication(err) {
			m.clearIf(ctx, gen, EventUnauthorized, "refresh rejected")
		}
		m.log.Info("gosession.refresh.fail", "err", err)
		return Session{}, err
	}

	next := fromTokenResponse(resp, prev, m.now())
	if err := m.commit(ctx, EventRefresh, next, "", &gen); err != nil {
		return Session{}, err
	}
	m.log.Debug("gosession.refresh.ok", "user_id", next.UserID)
	return next, nil
}

// Validate checks the token against GET /auth/me and updates the stored profile.
// A 401 clears the session.
func (m *Manager) Validate(ctx context.Context) (Session, error) {
	prev, gen := m.snapshot()
	if !prev.Valid(m.now()) {
		return Session{}, ErrNotAuthenticated
	}

	profile, err := m.auth.MeToken(ctx, prev.Token)
	if err != nil {
		if apierr.IsAuthentication(err) {
			m.clearIf(ctx, gen, EventUnauthorized, "validation rejected")
		}
		return Session{}, err
	}

	next := prev.withProfile(profile)
	if next == prev {
		return next, nil
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return Session{}, ErrSessionChanged
	}
	if err := m.store.Save(ctx, next.record()); err != nil {
		m.mu.Unlock()
		return Session{}, fmt.Errorf("validate: persist session: %w", err)
	}
	m.current = next
	m.gen++
	m.mu.Unlock()
	return next, nil
}

// Restore loads the persisted record. It returns ErrNotAuthenticated when nothing is
// stored and ErrSessionExpired after clearing an expired record. With
// ValidateOnRestore a network failure keeps the restored session; a 401 clears it.
func (m *Manager) Restore(ctx context.Context) (Session, error) {
	rec, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, tokenstore.ErrNotFound):
		return Session{}, ErrNotAuthenticated
	case err != nil:
		if cerr := m.store.Clear(ctx); cerr != nil {
			m.log.Warn("gosession.restore.clear_fail", "err", cerr)
		}
		return Session{}, fmt.Errorf("restore: %w", err)
	}

	restored := fromRecord(rec)
	if restored.Expired(m.now()) {
		if err := m.store.Clear(ctx); err != nil {
			return Session{}, fmt.Errorf("restore: clear expired record: %w", err)
		}
		m.log.Info("gosession.restore.expired", "user_id", restored.UserID)
		return Session{}, ErrSessionExpired
	}

	if err := m.adopt(ctx, EventRestore, restored, "store"); err != nil {
		return Session{}, err
	}

	if !m.validateOnRestore {
		return restored, nil
	}
	validated, err := m.Validate(ctx)
	if err != nil {
		if apierr.IsNetwork(err) {
			m.log.Warn("gosession.restore.validate_unreachable", "err", err)
			return restored, nil
		}
		return Session{}, err
	}
	return validated, nil
}

// Close refuses further mutation. It does not clear the session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *Manager) snapshot() (Session, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.gen
}

// commit persists next and publishes event. When expectGen is set the commit is
// discarded unless no other transition happened since the snapshot.
func (m *Manager) commit(ctx context.Context, typ EventType, next Session, reason string, expectGen *uint64) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if expectGen != nil && m.gen != *expectGen {
		m.mu.Unlock()
		return ErrSessionChanged
	}
	if err := m.store.Save(ctx, next.record()); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%s: persist session: %w", typ, err)
	}
	prev := m.current
	m.current = next
	m.gen++
	m.publishLocked(ctx, Event{Type: typ, State: Authenticated, Session: next, Previous: prev, Reason: reason})
	return nil
}

// adopt sets the in-memory session without writing the store.
func (m *Manager) adopt(ctx context.Context, typ EventType, next Session, reason string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	prev := m.current
	m.current = next
	m.gen++
	m.publishLocked(ctx, Event{Type: typ, State: Authenticated, Session: next, Previous: prev, Reason: reason})
	return nil
}

// clear drops the session and the persisted record. The in-memory state is cleared
// even when the store fails. No event is published when nothing was held.
func (m *Manager) clear(ctx context.Context, typ EventType, reason string) (Session, error) {
	m.mu.Lock()
	prev := m.current
	err := m.store.Clear(ctx)
	if prev.Token == "" {
		m.mu.Unlock()
		return prev, err
	}
	m.current = Session{}
	m.gen++
	m.publishLocked(ctx, Event{Type: typ, State: Unauthenticated, Previous: prev, Reason: reason})
	return prev, err
}

func (m *Manager) clearIf(ctx context.Context, gen uint64, typ EventType, reason string) {
	m.mu.RLock()
	same := m.gen == gen
	m.mu.RUnlock()
	if !same {
		return
	}
	if _, err := m.clear(ctx, typ, reason); err != nil {
		m.log.Error("gosession.clear_fail", "event", string(typ), "err", err)
	}
}

// publishLocked must be called with mu held. It queues event, releases mu, and
// delivers everything queued so far in commit order.
func (m *Manager) publishLocked(ctx context.Context, event Event) {
	event.Timestamp = m.now().UTC()
	if ctx == nil {
		ctx = context.Background()
	}
	m.pendingMu.Lock()
	m.pending = append(m.pending, pendingEvent{ctx: context.WithoutCancel(ctx), event: event})
	m.pendingMu.Unlock()
	m.mu.Unlock()

	m.deliver()
}

func (m *Manager) deliver() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	for {
		m.pendingMu.Lock()
		if len(m.pending) == 0 {
			m.pendingMu.Unlock()
			return
		}
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.pendingMu.Unlock()

		m.obsMu.Lock()
		subs := make([]subscription, len(m.observers))
		copy(subs, m.observers)
		m.obsMu.Unlock()

		for _, s := range subs {
			s.obs.Notify(next.ctx, next.event)
		}
	}
}

type pendingEvent struct {
	ctx   context.Context
	event Event
}
