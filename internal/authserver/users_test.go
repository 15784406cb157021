package authserver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userStores(t *testing.T) map[string]UserStore {
	t.Helper()
	mem, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	file, err := OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })

	return map[string]UserStore{"memory": NewMemoryUsers(), "sqlite-memory": mem, "sqlite-file": file}
}

func TestUserStores(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2032, 3, 4, 5, 6, 7, 0, time.UTC)

	for name, store := range userStores(t) {
		t.Run(name, func(t *testing.T) {
			u := User{ID: NewUserID(now), Email: "Bob@Example.com", DisplayName: "Bob", Role: "finance", PasswordHash: "h1", CreatedAt: now, UpdatedAt: now}
			require.NoError(t, store.CreateUser(ctx, u))
			assert.ErrorIs(t, store.CreateUser(ctx, User{ID: NewUserID(now), Email: "bob@example.com", PasswordHash: "h"}), ErrUserExists)

			got, err := store.UserByEmail(ctx, " BOB@example.com")
			require.NoError(t, err)
			assert.Equal(t, u.ID, got.ID)
			assert.Equal(t, "bob@example.com", got.Email)
			assert.Equal(t, "finance", got.Role)
			assert.True(t, got.CreatedAt.Equal(now))

			require.NoError(t, store.SetPasswordHash(ctx, u.ID, "h2", now.Add(time.Hour)))
			got, err = store.UserByID(ctx, u.ID)
			require.NoError(t, err)
			assert.Equal(t, "h2", got.PasswordHash)
			assert.True(t, got.UpdatedAt.Equal(now.Add(time.Hour)))

			_, err = store.UserByID(ctx, "missing")
			assert.ErrorIs(t, err, ErrUserNotFound)
			assert.ErrorIs(t, store.SetPasswordHash(ctx, "missing", "h", now), ErrUserNotFound)
		})
	}
}

func TestNewUserIDIsTimeOrdered(t *testing.T) {
	now := time.Date(2032, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewUserID(now)
	b := NewUserID(now.Add(time.Millisecond))
	assert.Less(t, a, b)

	parsed, err := ulid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), int64(parsed.Time()))
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(" ")
	assert.Error(t, err)
}
