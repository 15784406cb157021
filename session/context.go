package session

import "context"

type managerContextKey struct{}

// WithSession attaches m to ctx for request-scoped propagation.
func WithSession(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerContextKey{}, m)
}

// FromContext returns the Manager attached by WithSession.
func FromContext(ctx context.Context) (*Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	m, ok := ctx.Value(managerContextKey{}).(*Manager)
	return m, ok && m != nil
}
