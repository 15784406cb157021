package authserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// sessionStore keeps backend sessions, refresh tokens and reset tokens in Redis.
//
//	<p>sid:<sid>      uid, alive while the session is
//	<p>sidrt:<sid>    current refresh token of the session
//	<p>user:<uid>     set of the user's sids
//	<p>rt:<token>     refreshEntry
//	<p>rtused:<token> sid, remembers rotated tokens to catch reuse
//	<p>reset:<sha256> uid
type sessionStore struct {
	rdb        redis.UniversalClient
	prefix     string
	refreshTTL time.Duration
	resetTTL   time.Duration
}

type refreshEntry struct {
	UID string `json:"uid"`
	SID string `json:"sid"`
}

func (s *sessionStore) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func newOpaqueToken() string {
	return uuid.NewString() + uuid.NewString()[:8]
}

// open starts a session for uid and returns its sid and first refresh token.
func (s *sessionStore) open(ctx context.Context, uid string) (string, string, error) {
	sid := uuid.NewString()
	refresh := newOpaqueToken()
	entry, err := json.Marshal(refreshEntry{UID: uid, SID: sid})
	if err != nil {
		return "", "", err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key("sid", sid), uid, s.refreshTTL)
		pipe.Set(ctx, s.key("sidrt", sid), refresh, s.refreshTTL)
		pipe.SAdd(ctx, s.key("user", uid), sid)
		pipe.Set(ctx, s.key("rt", refresh), entry, s.refreshTTL)
		return nil
	})
	if err != nil {
		return "", "", fmt.Errorf("open session: %w", err)
	}
	return sid, refresh, nil
}

// rotate consumes refresh and issues its successor. Presenting an already rotated
// token revokes the whole session.
func (s *sessionStore) rotate(ctx context.Context, refresh string) (refreshEntry, string, error) {
	raw, err := s.rdb.GetDel(ctx, s.key("rt", refresh)).Bytes()
	if errors.Is(err, redis.Nil) {
		sid, usedErr := s.rdb.Get(ctx, s.key("rtused", refresh)).Result()
		if usedErr == nil {
			if err := s.revoke(ctx, sid); err != nil {
				return refreshEntry{}, "", err
			}
			return refreshEntry{}, "", ErrRefreshReused
		}
		return refreshEntry{}, "", ErrInvalidRefresh
	}
	if err != nil {
		return refreshEntry{}, "", fmt.Errorf("load refresh token: %w", err)
	}

	var entry refreshEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return refreshEntry{}, "", fmt.Errorf("decode refresh token: %w", err)
	}
	alive, err := s.alive(ctx, entry.SID)
	if err != nil {
		return refreshEntry{}, "", err
	}
	if !alive {
		return refreshEntry{}, "", ErrInvalidRefresh
	}

	next := newOpaqueToken()
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key("rt", next), raw, s.refreshTTL)
		pipe.Set(ctx, s.key("sidrt", entry.SID), next, s.refreshTTL)
		pipe.Set(ctx, s.key("rtused", refresh), entry.SID, s.refreshTTL)
		pipe.Expire(ctx, s.key("sid", entry.SID), s.refreshTTL)
		return nil
	})
	if err != nil {
		return refreshEntry{}, "", fmt.Errorf("rotate refresh token: %w", err)
	}
	return entry, next, nil
}

func (s *sessionStore) alive(ctx context.Context, sid string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key("sid", sid)).Result()
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n == 1, nil
}

// revoke ends sid and drops its refresh token. Unknown sids are a no-op.
func (s *sessionStore) revoke(ctx context.Context, sid string) error {
	uid, err := s.rdb.Get(ctx, s.key("sid", sid)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	refresh, err := s.rdb.Get(ctx, s.key("sidrt", sid)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load session refresh: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key("sid", sid), s.key("sidrt", sid))
		if refresh != "" {
			pipe.Del(ctx, s.key("rt", refresh))
		}
		pipe.SRem(ctx, s.key("user", uid), sid)
		return nil
	})
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// revokeOthers ends every session of uid except keep. An empty keep ends all.
func (s *sessionStore) revokeOthers(ctx context.Context, uid, keep string) (int, error) {
	sids, err := s.rdb.SMembers(ctx, s.key("user", uid)).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	var n int
	for _, sid := range sids {
		if sid == keep {
			continue
		}
		if err := s.revoke(ctx, sid); err != nil {
			return n, err
		}
		// Expired sessions leave their sid in the set.
		_ = s.rdb.SRem(ctx, s.key("user", uid), sid).Err()
		n++
	}
	return n, nil
}

func resetKeyHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// issueReset stores a single-use reset token for uid. Only its hash is kept.
func (s *sessionStore) issueReset(ctx context.Context, uid string) (string, time.Time, error) {
	token := newOpaqueToken()
	if err := s.rdb.Set(ctx, s.key("reset", resetKeyHash(token)), uid, s.resetTTL).Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("store reset token: %w", err)
	}
	return token, time.Now().Add(s.resetTTL), nil
}

func (s *sessionStore) consumeReset(ctx context.Context, token string) (string, error) {
	uid, err := s.rdb.GetDel(ctx, s.key("reset", resetKeyHash(token))).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidResetToken
	}
	if err != nil {
		return "", fmt.Errorf("consume reset token: %w", err)
	}
	return uid, nil
}
