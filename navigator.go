package goSession

import "context"

// Navigator is told when a 401 or an external logout forces the user back to the
// login screen. A CLI prints a hint, a web shell records the redirect, a desktop
// shell swaps views.
type Navigator interface {
	RedirectToLogin(ctx context.Context, reason string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, reason string)

func (f NavigatorFunc) RedirectToLogin(ctx context.Context, reason string) { f(ctx, reason) }

type noopNavigator struct{}

func (noopNavigator) RedirectToLogin(context.Context, string) {}
