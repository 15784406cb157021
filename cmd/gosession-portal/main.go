// Command gosession-portal is a local single-user web shell over a goSession
// backend. The process holds one session, persisted in the shared token file, so a
// login here is visible to the CLI and the other way round.
//
//	GOSESSION_API_BASE_URL=http://localhost:8080 go run ./cmd/gosession-portal -addr 127.0.0.1:8090
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
)

var (
	addr    = flag.String("addr", "127.0.0.1:8090", "listen address")
	apiURL  = flag.String("api", "", "backend base URL (overrides GOSESSION_API_BASE_URL)")
	envFile = flag.String("env", "", "dotenv file to load before reading the environment")
)

func main() {
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := goSession.ReadConfig(files...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gosession-portal:", err)
		os.Exit(2)
	}
	if *apiURL != "" {
		cfg.API.BaseURL = *apiURL
	}
	cfg.Routes.Public = append(cfg.Routes.Public, publicPaths...)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "gosession-portal:", err)
		os.Exit(2)
	}
	log := goSession.NewLogger(os.Stderr, cfg.LogLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg, log); err != nil {
		log.Error("portal.failed", "err", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg goSession.Config, log *slog.Logger) error {
	p := &portal{log: log}
	client, err := goSession.New().
		WithConfig(cfg).
		WithLogger(log).
		WithNavigator(goSession.NavigatorFunc(p.signedOut)).
		Build()
	if err != nil {
		return err
	}
	defer client.Close()
	p.client = client

	if s, err := client.Restore(ctx); err == nil {
		log.Info("portal.restored", "user_id", s.UserID)
	} else if !errors.Is(err, goSession.ErrNotAuthenticated) {
		log.Warn("portal.restore_failed", "err", err)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           p.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("portal.listening", "addr", srv.Addr, "api", cfg.API.BaseURL)
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
