package httpclient

import "context"

type bearerContextKey struct{}

// WithBearer pins the bearer token for requests made with ctx, overriding the
// client's token source. Request.Token still wins.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerContextKey{}, token)
}

// BearerFromContext returns the token pinned by WithBearer.
func BearerFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tok, ok := ctx.Value(bearerContextKey{}).(string)
	return tok, ok && tok != ""
}
