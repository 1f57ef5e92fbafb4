package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/modelrouter/internal/cache"
	"github.com/fyrsmithlabs/modelrouter/internal/config"
)

// CacheName is the name of the response cache in the cache manager.
const CacheName = "llm"

// CachedClient serves repeated (model, prompt) pairs from a bounded cache.
// Only cache misses are rate limited.
type CachedClient struct {
	next    Client
	cache   *cache.Cache[string]
	limiter *rate.Limiter
	logger  *zap.Logger
}

// CachedOption configures a CachedClient.
type CachedOption func(*CachedClient)

// WithCachedLogger sets the logger.
func WithCachedLogger(logger *zap.Logger) CachedOption {
	return func(c *CachedClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLimiter replaces the limiter built from the LLM config.
func WithLimiter(l *rate.Limiter) CachedOption {
	return func(c *CachedClient) {
		c.limiter = l
	}
}

// NewCachedClient wraps next with the "llm" cache from mgr. A non-positive
// rate limit disables limiting.
func NewCachedClient(next Client, mgr *cache.Manager, cacheCfg config.CacheConfig, llmCfg config.LLMConfig, opts ...CachedOption) (*CachedClient, error) {
	if next == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if mgr == nil {
		return nil, fmt.Errorf("cache manager is required")
	}

	responses, err := cache.GetOrCreate[string](mgr, CacheName, cacheCfg.LLMMaxSize, cacheCfg.LLMTTL)
	if err != nil {
		return nil, fmt.Errorf("creating llm cache: %w", err)
	}

	c := &CachedClient{
		next:   next,
		cache:  responses,
		logger: zap.NewNop(),
	}
	if llmCfg.RateLimit > 0 {
		burst := llmCfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(llmCfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete returns the cached response for (model, prompt) or calls the
// wrapped client. Errors are not cached.
func (c *CachedClient) Complete(ctx context.Context, model, prompt string) (string, error) {
	key := cacheKey(model, prompt)
	if out, ok := c.cache.Get(key); ok {
		c.logger.Debug("llm cache hit", zap.String("model", model))
		return out, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter error: %w", err)
		}
	}

	out, err := c.next.Complete(ctx, model, prompt)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, out)
	return out, nil
}

// cacheKey hashes model and prompt so that large prompts do not sit in
// memory twice.
func cacheKey(model, prompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

var _ Client = (*CachedClient)(nil)
