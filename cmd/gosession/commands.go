package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/apierr"
	"github.com/MrEthical07/goSession/session"
)

type command struct {
	summary string
	// restore loads the persisted session before the route check.
	restore bool
	// offline skips the GET /auth/me round trip on restore.
	offline bool
	run     func(ctx context.Context, a *app, args []string) int
}

var commandOrder = []string{"login", "logout", "whoami", "refresh", "passwd", "forgot", "reset", "status"}

var commands = map[string]command{
	"login":   {summary: "sign in with -email; password from terminal or stdin", run: runLogin},
	"logout":  {summary: "sign out", restore: true, offline: true, run: runLogout},
	"whoami":  {summary: "print the signed-in user", restore: true, run: runWhoami},
	"refresh": {summary: "rotate the access token", restore: true, offline: true, run: runRefresh},
	"passwd":  {summary: "change the password", restore: true, run: runPasswd},
	"forgot":  {summary: "request a reset link for -email", run: runForgot},
	"reset":   {summary: "set a new password with -token", run: runReset},
	"status":  {summary: "print the local session state", restore: true, offline: true, run: runStatus},
}

type app struct {
	client *goSession.Client
	prompt *prompter
	stdout io.Writer
	stderr io.Writer
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("gosession "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) restore(ctx context.Context) {
	_, err := a.client.Restore(ctx)
	switch {
	case err == nil, errors.Is(err, goSession.ErrNotAuthenticated):
	case errors.Is(err, goSession.ErrSessionExpired):
		fmt.Fprintln(a.stderr, "stored session expired")
	default:
		fmt.Fprintln(a.stderr, "gosession: restore:", err)
	}
}

// fail reports err and maps it to an exit code.
func (a *app) fail(op string, err error) int {
	var apiErr *apierr.Error
	switch {
	case errors.Is(err, goSession.ErrNotAuthenticated), errors.Is(err, goSession.ErrAuthentication):
		fmt.Fprintf(a.stderr, "%s: not signed in\n", op)
		return exitUnauthenticated
	case errors.As(err, &apiErr) && apiErr.Code != "":
		fmt.Fprintf(a.stderr, "%s: %s (%s)\n", op, apiErr.Message, apiErr.Code)
	default:
		fmt.Fprintf(a.stderr, "%s: %v\n", op, err)
	}
	return exitError
}

func (a *app) newPassword() (string, error) {
	next, err := a.prompt.secret("New password: ")
	if err != nil {
		return "", err
	}
	again, err := a.prompt.secret("Repeat new password: ")
	if err != nil {
		return "", err
	}
	if next != again {
		return "", errors.New("passwords do not match")
	}
	return next, nil
}

func runLogin(ctx context.Context, a *app, args []string) int {
	fs := a.flags("login")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *email == "" {
		fmt.Fprintln(a.stderr, "login: -email is required")
		return exitUsage
	}
	password, err := a.prompt.secret("Password: ")
	if err != nil {
		return a.fail("login", err)
	}
	s, err := a.client.Login(ctx, *email, password)
	if err != nil {
		var apiErr *apierr.Error
		if errors.As(err, &apiErr) && apiErr.Kind == apierr.KindAuthentication {
			fmt.Fprintln(a.stderr, "login: invalid email or password")
			return exitError
		}
		return a.fail("login", err)
	}
	fmt.Fprintf(a.stdout, "signed in as %s\n", describe(s))
	return exitOK
}

func runLogout(ctx context.Context, a *app, _ []string) int {
	wasSignedIn := a.client.IsAuthenticated()
	if err := a.client.Logout(ctx); err != nil {
		return a.fail("logout", err)
	}
	if wasSignedIn {
		fmt.Fprintln(a.stdout, "signed out")
	} else {
		fmt.Fprintln(a.stdout, "not signed in")
	}
	return exitOK
}

func runWhoami(ctx context.Context, a *app, _ []string) int {
	s, err := a.client.Validate(ctx)
	if err != nil {
		return a.fail("whoami", err)
	}
	fmt.Fprintf(a.stdout, "id:      %s\n", s.UserID)
	fmt.Fprintf(a.stdout, "email:   %s\n", s.Email)
	if s.DisplayName != "" {
		fmt.Fprintf(a.stdout, "name:    %s\n", s.DisplayName)
	}
	if s.Role != "" {
		fmt.Fprintf(a.stdout, "role:    %s\n", s.Role)
	}
	if !s.TokenExpiry.IsZero() {
		fmt.Fprintf(a.stdout, "expires: %s\n", s.TokenExpiry.Format(time.RFC3339))
	}
	return exitOK
}

func runRefresh(ctx context.Context, a *app, _ []string) int {
	s, err := a.client.Refresh(ctx)
	if err != nil {
		return a.fail("refresh", err)
	}
	fmt.Fprintf(a.stdout, "token refreshed, expires %s\n", s.TokenExpiry.Format(time.RFC3339))
	return exitOK
}

func runPasswd(ctx context.Context, a *app, _ []string) int {
	current, err := a.prompt.secret("Current password: ")
	if err != nil {
		return a.fail("passwd", err)
	}
	next, err := a.newPassword()
	if err != nil {
		return a.fail("passwd", err)
	}
	if err := a.client.ChangePassword(ctx, current, next); err != nil {
		return a.fail("passwd", err)
	}
	fmt.Fprintln(a.stdout, "password changed; other sessions were signed out")
	return exitOK
}

func runForgot(ctx context.Context, a *app, args []string) int {
	fs := a.flags("forgot")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *email == "" {
		fmt.Fprintln(a.stderr, "forgot: -email is required")
		return exitUsage
	}
	if err := a.client.ForgotPassword(ctx, *email); err != nil {
		return a.fail("forgot", err)
	}
	fmt.Fprintln(a.stdout, "if the account exists, a reset link is on its way")
	return exitOK
}

func runReset(ctx context.Context, a *app, args []string) int {
	fs := a.flags("reset")
	token := fs.String("token", "", "reset token from the email")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *token == "" {
		fmt.Fprintln(a.stderr, "reset: -token is required")
		return exitUsage
	}
	next, err := a.newPassword()
	if err != nil {
		return a.fail("reset", err)
	}
	if err := a.client.ResetPassword(ctx, *token, next); err != nil {
		return a.fail("reset", err)
	}
	fmt.Fprintln(a.stdout, "password updated; sign in again")
	return exitOK
}

func runStatus(_ context.Context, a *app, _ []string) int {
	s, ok := a.client.Current()
	if !ok {
		fmt.Fprintln(a.stdout, session.Unauthenticated)
		return exitUnauthenticated
	}
	fmt.Fprintf(a.stdout, "%s as %s\n", session.Authenticated, describe(s))
	return exitOK
}

func describe(s session.Session) string {
	out := s.Email
	if out == "" {
		out = s.UserID
	}
	if s.Role != "" {
		out += " (" + s.Role + ")"
	}
	if !s.TokenExpiry.IsZero() {
		out += ", token valid until " + s.TokenExpiry.Format(time.RFC3339)
	}
	return out
}
