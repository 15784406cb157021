// Command gosession signs a terminal user in to a goSession backend and keeps the
// session in the per-user token file, so later invocations (and other processes
// sharing the storage key) reuse it.
//
// Usage:
//
//	gosession [-api URL] [-dir DIR] [-key KEY] <command> [flags]
//
// Commands:
//
//	login   -email EMAIL      sign in; the password is read from the terminal or stdin
//	logout                    sign out locally and revoke the backend session
//	whoami                    print the signed-in user
//	refresh                   rotate the access token
//	passwd                    change the password (current, then new)
//	forgot  -email EMAIL      request a reset link
//	reset   -token TOKEN      set a new password with a reset token
//	status                    print the local session state without calling the backend
//
// Everything else comes from GOSESSION_* variables or a .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	goSession "github.com/MrEthical07/goSession"
)

const (
	exitOK = iota
	exitError
	exitUsage
	exitUnauthenticated
)

// publicCommands run without a session. Everything else is gated by the route guard
// as "/<command>", so GOSESSION_ROUTES_ROLES can restrict commands by role.
var publicCommands = []string{"/login", "/logout", "/forgot", "/reset", "/status"}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	stderr = &lockedWriter{w: stderr}

	fs := flag.NewFlagSet("gosession", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	var (
		apiURL   = fs.String("api", "", "backend base URL (overrides GOSESSION_API_BASE_URL)")
		dir      = fs.String("dir", "", "token directory (overrides GOSESSION_STORAGE_DIR)")
		key      = fs.String("key", "", "storage key (overrides GOSESSION_STORAGE_KEY)")
		envFile  = fs.String("env", "", "dotenv file to load before reading the environment")
		logLevel = fs.String("log-level", "", "debug, info, warn or error")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		usage(stderr)
		return exitUsage
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "gosession: unknown command %q\n", name)
		usage(stderr)
		return exitUsage
	}

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := goSession.ReadConfig(files...)
	if err != nil {
		fmt.Fprintln(stderr, "gosession:", err)
		return exitUsage
	}
	if *apiURL != "" {
		cfg.API.BaseURL = *apiURL
	}
	if *dir != "" {
		cfg.Storage.Dir = *dir
	}
	if *key != "" {
		cfg.Storage.Key = *key
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	// One-shot process; nothing to follow.
	cfg.Storage.Watch = false
	if cmd.offline {
		cfg.Session.ValidateOnRestore = false
	}
	cfg.Routes.Public = append(cfg.Routes.Public, publicCommands...)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "gosession:", err)
		return exitUsage
	}

	log := goSession.NewLogger(stderr, cfg.LogLevel, "text")
	client, err := goSession.New().
		WithConfig(cfg).
		WithLogger(log).
		WithNavigator(goSession.NavigatorFunc(func(_ context.Context, reason string) {
			fmt.Fprintf(stderr, "session ended (%s); run `gosession login`\n", reason)
		})).
		Build()
	if err != nil {
		fmt.Fprintln(stderr, "gosession:", err)
		return exitError
	}
	defer client.Close()

	a := &app{
		client: client,
		prompt: newPrompter(stdin, stderr),
		stdout: stdout,
		stderr: stderr,
	}
	if cmd.restore {
		a.restore(ctx)
	}
	if d := client.CheckRoute("/" + name); !d.Allowed {
		if d.RedirectTo != "" {
			fmt.Fprintln(stderr, "not signed in; run `gosession login`")
			return exitUnauthenticated
		}
		fmt.Fprintf(stderr, "%s: your role may not run this command\n", name)
		return exitError
	}
	return cmd.run(ctx, a, fs.Args()[1:])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: gosession [-api URL] [-dir DIR] [-key KEY] [-env FILE] [-log-level LEVEL] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
