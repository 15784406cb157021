package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/apierr"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// HeaderRequestID carries the per-request correlation id.
	HeaderRequestID = "X-Request-ID"

	defaultUserAgent = "goSession/1"
	maxErrorBody     = 64 << 10
	maxResponseBody  = 1 << 20
)

// UnauthorizedFunc is called when a request that did not opt out receives a 401.
// token is the bearer the request was sent with, empty when it carried none.
type UnauthorizedFunc func(ctx context.Context, token string, err *apierr.Error)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. "https://erp.example.com/hr-api". Request paths
	// are joined onto it.
	BaseURL string
	// HTTPClient defaults to a dedicated client with no global timeout.
	HTTPClient *http.Client
	// Tokens supplies the bearer token. A nil source or an error from Token means
	// the request is sent without Authorization.
	Tokens oauth2.TokenSource
	// OnUnauthorized is invoked for 401 responses.
	OnUnauthorized UnauthorizedFunc
	// Timeout bounds each request, including reading the body. Zero disables it.
	Timeout   time.Duration
	UserAgent string
	Logger    *slog.Logger
}

// Client sends requests to the auth backend.
type Client struct {
	base           *url.URL
	http           *http.Client
	tokens         oauth2.TokenSource
	onUnauthorized UnauthorizedFunc
	timeout        time.Duration
	userAgent      string
	log            *slog.Logger
}

// Request describes one backend call.
type Request struct {
	// Op names the operation in errors and logs.
	Op     string
	Method string
	Path   string
	// Body is JSON encoded when non-nil.
	Body   any
	Header http.Header
	// Token, when set, is sent instead of the source token.
	Token string
	// SkipAuth sends no Authorization header.
	SkipAuth bool
	// SkipUnauthorizedHook keeps a 401 from clearing the session. Login uses it
	// because a 401 there means wrong credentials, not an expired session.
	SkipUnauthorizedHook bool
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("httpclient: base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("httpclient: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httpclient: unsupported scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, errors.New("httpclient: base URL has no host")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		base:           base,
		http:           hc,
		tokens:         opts.Tokens,
		onUnauthorized: opts.OnUnauthorized,
		timeout:        opts.Timeout,
		userAgent:      ua,
		log:            log,
	}, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.base.String() }

// Do sends req and decodes a 2xx JSON body into out when out is non-nil. Non-2xx
// responses and transport failures are returned as *apierr.Error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Debug("gosession.http.fail", "op", req.Op, "path", req.Path, "err", err)
		return apierr.Network(req.Op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug("gosession.http.done",
		"op", req.Op,
		"method", httpReq.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"request_id", httpReq.Header.Get(HeaderRequestID),
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.failure(ctx, req, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return apierr.Network(req.Op, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &apierr.Error{
			Kind:    apierr.KindServer,
			Status:  resp.StatusCode,
			Op:      req.Op,
			Message: "malformed response body",
			Err:     err,
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := c.resolve(req.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Op, err)
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", req.Op, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", req.Op, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	if httpReq.Header.Get(HeaderRequestID) == "" {
		httpReq.Header.Set(HeaderRequestID, uuid.NewString())
	}

	c.attachToken(httpReq, req)
	return httpReq, nil
}

func (c *Client) attachToken(httpReq *http.Request, req Request) {
	if req.SkipAuth {
		return
	}
	if req.Token == "" {
		req.Token, _ = BearerFromContext(httpReq.Context())
	}
	if req.Token != "" {
		(&oauth2.Token{AccessToken: req.Token}).SetAuthHeader(httpReq)
		return
	}
	if c.tokens == nil {
		return
	}
	tok, err := c.tokens.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		return
	}
	tok.SetAuthHeader(httpReq)
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse path: %w", err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", errors.New("request path must be relative to the base URL")
	}
	u := c.base.JoinPath(ref.Path)
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

func (c *Client) failure(ctx context.Context, req Request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	code, msg := apierr.ParseEnvelope(body)
	apiErr := apierr.FromStatus(req.Op, resp.StatusCode, code, msg)

	if apiErr.Kind == apierr.KindAuthentication && !req.SkipUnauthorizedHook && c.onUnauthorized != nil {
		c.onUnauthorized(ctx, sentBearer(resp.Request), apiErr)
	}
	return apiErr
}

func sentBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return token
}
