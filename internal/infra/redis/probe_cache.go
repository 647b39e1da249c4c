package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"telegram-media-downloader/internal/domain/ports/adapter"
	"telegram-media-downloader/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.MediaProber = (*ProbeCache)(nil)

// ProbeCache decorates a MediaProber with a TTL cache keyed by locator.
// Plain expiry, no eviction policy; probing the same source twice within the
// TTL costs one engine call.
type ProbeCache struct {
	client RedisClient
	inner  adapter.MediaProber
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewProbeCache(client RedisClient, inner adapter.MediaProber, ttl time.Duration, logger *zerolog.Logger) *ProbeCache {
	l := logger.With().Str("component", "ProbeCache").Logger()
	return &ProbeCache{client: client, inner: inner, ttl: ttl, log: &l}
}

func (c *ProbeCache) Probe(ctx context.Context, sourceURL string) (*adapter.MediaInfo, error) {
	key := "probe:" + sourceURL

	if raw, err := c.client.Get(ctx, key); err == nil {
		var info adapter.MediaInfo
		if jerr := json.Unmarshal([]byte(raw), &info); jerr == nil {
			metrics.IncProbeCache("hit")
			return &info, nil
		}
		// Corrupt entry: drop it and fall through to the engine.
		_ = c.client.Del(ctx, key)
	} else if !errors.Is(err, Nil) {
		c.log.Warn().Err(err).Msg("probe cache read failed")
	}

	metrics.IncProbeCache("miss")
	info, err := c.inner.Probe(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	if data, jerr := json.Marshal(info); jerr == nil {
		if serr := c.client.Set(ctx, key, data, c.ttl); serr != nil {
			c.log.Warn().Err(serr).Msg("probe cache write failed")
		}
	}
	return info, nil
}
