// Package factory constructs and caches platform providers. One provider
// is held per (platform, account) pair and reused while the account's
// access token is unchanged, so adapter-side caches (resolved user ids,
// circuit state) survive across sync rounds.
package factory

import (
	"sync"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/platform/linkedin"
	"github.com/AdaptLabsAI/irisync/internal/platform/mastodon"
	"github.com/AdaptLabsAI/irisync/internal/platform/twitter"
	"github.com/AdaptLabsAI/irisync/internal/ratelimit"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

// Builder creates a provider for one account from credentials and held
// auth state.
type Builder func(cfg platform.Config, auth platform.AuthState, limiter *ratelimit.Limiter, logger logging.Logger) platform.Provider

type cached struct {
	provider    platform.Provider
	accessToken string
}

// Factory owns provider construction. Construct one per process next to
// the limiter; there is no package-level registry.
type Factory struct {
	mu       sync.Mutex
	builders map[platform.Type]Builder
	configs  map[platform.Type]platform.Config
	cache    map[string]cached

	limiter *ratelimit.Limiter
	logger  logging.Logger
}

// New creates a factory with the built-in adapters registered. configs
// carries per-platform client credentials; platforms without a config
// entry still build, they just cannot complete an OAuth flow.
func New(configs map[platform.Type]platform.Config, limiter *ratelimit.Limiter, logger logging.Logger) *Factory {
	f := &Factory{
		builders: make(map[platform.Type]Builder),
		configs:  configs,
		cache:    make(map[string]cached),
		limiter:  limiter,
		logger:   logger,
	}

	f.Register(platform.Twitter, func(cfg platform.Config, auth platform.AuthState, limiter *ratelimit.Limiter, logger logging.Logger) platform.Provider {
		return twitter.New(cfg, auth, limiter, logger)
	})
	f.Register(platform.Mastodon, func(cfg platform.Config, auth platform.AuthState, limiter *ratelimit.Limiter, logger logging.Logger) platform.Provider {
		return mastodon.New(cfg, auth, limiter, logger)
	})
	f.Register(platform.LinkedIn, func(cfg platform.Config, auth platform.AuthState, limiter *ratelimit.Limiter, logger logging.Logger) platform.Provider {
		return linkedin.New(cfg, auth, limiter, logger)
	})

	return f
}

// Register adds or replaces the builder for a platform.
func (f *Factory) Register(t platform.Type, b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[t] = b
}

// Supported lists the platforms a builder is registered for.
func (f *Factory) Supported() []platform.Type {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]platform.Type, 0, len(f.builders))
	for _, t := range platform.Types {
		if _, ok := f.builders[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Provider returns the provider for one account, building it on first use.
// A cached instance is reused only while the supplied auth state carries
// the same access token; a rotated token invalidates the cache entry so
// stale credentials never serve requests.
func (f *Factory) Provider(t platform.Type, accountID string, auth platform.AuthState) (platform.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	build, ok := f.builders[t]
	if !ok {
		return nil, &platform.UnsupportedPlatformError{Platform: t}
	}

	key := string(t) + ":" + accountID
	if c, ok := f.cache[key]; ok && c.accessToken == auth.AccessToken {
		return c.provider, nil
	}

	provider := build(f.configs[t], auth, f.limiter, f.logger)
	f.cache[key] = cached{provider: provider, accessToken: auth.AccessToken}
	if f.logger != nil {
		f.logger.WithFields(logging.Fields{
			"platform":   t,
			"account_id": accountID,
		}).Debug("Provider constructed")
	}
	return provider, nil
}

// Evict drops one account's cached provider, e.g. after disconnecting the
// account.
func (f *Factory) Evict(t platform.Type, accountID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, string(t)+":"+accountID)
}
