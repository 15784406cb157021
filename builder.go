package goSession

import (
	"log/slog"
	"net/http"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/tokenstore"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a Client. A Builder is single use.
type Builder struct {
	config Config

	store      tokenstore.Store
	redis      redis.UniversalClient
	logger     *slog.Logger
	navigator  Navigator
	httpClient *http.Client
	observers  []session.Observer

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithTokenStore overrides the store selected by Config.Storage.Driver.
func (b *Builder) WithTokenStore(s tokenstore.Store) *Builder {
	b.store = s
	return b
}

// WithRedis supplies the client used by the redis storage driver. Without it Build
// dials Config.Storage.RedisAddr.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithHTTPClient sets the transport. Config.API.Timeout still bounds each request.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithObserver subscribes obs before Restore can publish anything.
func (b *Builder) WithObserver(obs session.Observer) *Builder {
	if obs != nil {
		b.observers = append(b.observers, obs)
	}
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Client. It performs no backend
// calls; call Client.Restore to load a persisted session.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := newClient(cfg, clientDeps{
		store:      b.store,
		redis:      b.redis,
		logger:     b.logger,
		navigator:  b.navigator,
		httpClient: b.httpClient,
		observers:  b.observers,
	})
	if err != nil {
		return nil, err
	}

	b.built = true
	return c, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Routes.Protected = append([]string(nil), cfg.Routes.Protected...)
	out.Routes.Public = append([]string(nil), cfg.Routes.Public...)
	if cfg.Routes.Roles != nil {
		out.Routes.Roles = make(map[string]string, len(cfg.Routes.Roles))
		for k, v := range cfg.Routes.Roles {
			out.Routes.Roles[k] = v
		}
	}
	return out
}
