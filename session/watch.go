package session

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/tokenstore"
)

// Follow applies changes made to the token store by other processes sharing the
// storage key, until ctx is done or changes is closed. A rewrite carrying the token
// this Manager already holds is its own write and is ignored.
func (m *Manager) Follow(ctx context.Context, changes <-chan tokenstore.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			m.applyExternal(ctx, ch)
		}
	}
}

func (m *Manager) applyExternal(ctx context.Context, ch tokenstore.Change) {
	rec, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, tokenstore.ErrNotFound):
		m.dropExternal(ctx, ch.String())
		return
	case err != nil:
		m.log.Warn("gosession.external.load_fail", "err", err)
		return
	}

	cur, _ := m.snapshot()
	if rec.Token == cur.Token {
		return
	}

	next := fromRecord(rec)
	if next.Expired(m.now()) {
		m.dropExternal(ctx, "expired")
		return
	}
	if err := m.adopt(ctx, EventExternalChange, next, ch.String()); err != nil {
		m.log.Warn("gosession.external.adopt_fail", "err", err)
		return
	}
	m.log.Info("gosession.external.adopted", "user_id", next.UserID)
}

// dropExternal clears in-memory state only; the store is already empty or stale.
func (m *Manager) dropExternal(ctx context.Context, reason string) {
	m.mu.Lock()
	prev := m.current
	if prev.Token == "" || m.closed {
		m.mu.Unlock()
		return
	}
	m.current = Session{}
	m.gen++
	m.publishLocked(ctx, Event{Type: EventExternalChange, State: Unauthenticated, Previous: prev, Reason: reason})
	m.log.Info("gosession.external.cleared", "reason", reason)
}
