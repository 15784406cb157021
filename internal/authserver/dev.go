package authserver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
)

// SeedUser is an account created when a Dev backend starts.
type SeedUser struct {
	Email       string
	DisplayName string
	Role        string
	Password    string
}

// DevOptions configures StartDev. Zero values give an in-memory backend with
// short-lived access tokens and cheap hashing.
type DevOptions struct {
	// SQLitePath selects SQLite user storage; empty uses MemoryUsers.
	SQLitePath string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Seed       []SeedUser
	Mailer     ResetMailer
	Audit      audit.Sink
	Throttle   *rate.Config
	Logger     *slog.Logger
}

// Dev is a self-contained backend over miniredis.
type Dev struct {
	*Server
	Redis  *miniredis.Miniredis
	Client *redis.Client
	Users  UserStore
	Seeded []User

	closeUsers func() error
}

// StartDev starts miniredis and wires a Server around it.
func StartDev(ctx context.Context, opts DevOptions) (*Dev, error) {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("start miniredis: %w", err)
	}
	dev := &Dev{Redis: mr, Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}

	if opts.SQLitePath != "" {
		users, err := OpenSQLite(opts.SQLitePath)
		if err != nil {
			dev.Close()
			return nil, err
		}
		dev.Users, dev.closeUsers = users, users.Close
	} else {
		dev.Users = NewMemoryUsers()
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		dev.Close()
		return nil, fmt.Errorf("generate signing secret: %w", err)
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     opts.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    secret,
		Issuer:        "gosession-dev",
	})
	if err != nil {
		dev.Close()
		return nil, err
	}
	hasher, err := password.NewHasher(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		dev.Close()
		return nil, err
	}

	var limiter *rate.Limiter
	if opts.Throttle != nil {
		limiter = rate.New(dev.Client, *opts.Throttle)
	}

	dev.Server, err = New(Options{
		Users:      dev.Users,
		Redis:      dev.Client,
		Tokens:     tokens,
		Hasher:     hasher,
		Limiter:    limiter,
		Mailer:     opts.Mailer,
		Audit:      opts.Audit,
		RefreshTTL: opts.RefreshTTL,
		Logger:     opts.Logger,
	})
	if err != nil {
		dev.Close()
		return nil, err
	}

	for _, seed := range opts.Seed {
		u, err := dev.CreateUser(ctx, seed.Email, seed.DisplayName, seed.Role, seed.Password)
		if errors.Is(err, ErrUserExists) {
			// Persistent SQLite keeps seeds from earlier runs.
			u, err = dev.Users.UserByEmail(ctx, seed.Email)
		}
		if err != nil {
			dev.Close()
			return nil, fmt.Errorf("seed %s: %w", seed.Email, err)
		}
		dev.Seeded = append(dev.Seeded, u)
	}
	return dev, nil
}

// Close stops miniredis and releases user storage.
func (d *Dev) Close() {
	if d.Client != nil {
		_ = d.Client.Close()
	}
	if d.closeUsers != nil {
		_ = d.closeUsers()
	}
	d.Redis.Close()
}
