// Command gosession-devserver runs the reference auth backend for local work.
//
// Redis is an in-process miniredis, so sessions and refresh tokens vanish on exit.
// Users live in SQLite when -sqlite is set, otherwise in memory. Reset links are
// written to the log instead of being mailed.
//
// Run:
//
//	go run ./cmd/gosession-devserver -sqlite ./dev-users.db
//
// Then:
//
//	curl -i -X POST localhost:8080/auth/login \
//	  -H 'Content-Type: application/json' \
//	  -d '{"email":"alice@example.com","password":"correct-horse-42"}'
//
//	GOSESSION_API_BASE_URL=http://localhost:8080 go run ./cmd/gosession login -email alice@example.com
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/authserver"
	"github.com/MrEthical07/goSession/internal/rate"
)

var (
	addr       = flag.String("addr", ":8080", "listen address")
	sqlitePath = flag.String("sqlite", "", "SQLite user database (empty keeps users in memory)")
	accessTTL  = flag.Duration("access-ttl", 15*time.Minute, "access token lifetime")
	refreshTTL = flag.Duration("refresh-ttl", 30*24*time.Hour, "refresh token lifetime")
	throttle   = flag.Bool("throttle", true, "enable login throttling")
	auditLog   = flag.String("audit-log", "", "append JSON audit events to this file")
	seedEmail  = flag.String("seed-email", "alice@example.com", "seeded user email (empty disables seeding)")
	seedPass   = flag.String("seed-password", "correct-horse-42", "seeded user password")
	seedName   = flag.String("seed-name", "Alice", "seeded user display name")
	seedRole   = flag.String("seed-role", "hr_admin", "seeded user role")
	logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
	logFormat  = flag.String("log-format", "text", "text or json")
)

func main() {
	flag.Parse()
	log := goSession.NewLogger(os.Stderr, *logLevel, *logFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, log); err != nil {
		fmt.Fprintln(os.Stderr, "gosession-devserver:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, log *slog.Logger) error {
	opts := authserver.DevOptions{
		SQLitePath: *sqlitePath,
		AccessTTL:  *accessTTL,
		RefreshTTL: *refreshTTL,
		Mailer:     logMailer(log),
		Logger:     log,
	}
	if *auditLog != "" {
		f, err := os.OpenFile(*auditLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer f.Close()
		opts.Audit = audit.NewJSONLines(f)
	}
	if *throttle {
		cfg := rate.DefaultConfig()
		opts.Throttle = &cfg
	}
	if *seedEmail != "" {
		opts.Seed = []authserver.SeedUser{{
			Email:       *seedEmail,
			DisplayName: *seedName,
			Role:        *seedRole,
			Password:    *seedPass,
		}}
	}

	dev, err := authserver.StartDev(ctx, opts)
	if err != nil {
		return err
	}
	defer dev.Close()
	for _, u := range dev.Seeded {
		log.Info("devserver.seeded", "email", u.Email, "role", u.Role, "user_id", u.ID)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           dev.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("devserver.listening", "addr", srv.Addr, "redis", dev.Redis.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("devserver.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// logMailer prints reset tokens so they can be pasted into `gosession reset`.
func logMailer(log *slog.Logger) authserver.ResetMailer {
	return authserver.MailerFunc(func(_ context.Context, u authserver.User, token string, expires time.Time) error {
		log.Info("devserver.reset_link", "email", u.Email, "token", token, "expires", expires.Format(time.RFC3339))
		return nil
	})
}
