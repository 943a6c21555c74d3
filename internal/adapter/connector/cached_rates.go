package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/importer"
	"github.com/iho/goimport/internal/usecase"
)

// RateObserver is told whether a rate came from the cache.
type RateObserver interface {
	RecordRateLookup(hit bool)
}

// CachedRates decorates a connector with a rate cache. Every other call goes
// straight to the wrapped connector.
type CachedRates struct {
	importer.Connector
	cache    usecase.Cache
	ttl      time.Duration
	observer RateObserver
	logger   zerolog.Logger
}

func NewCachedRates(next importer.Connector, cache usecase.Cache, ttl time.Duration, observer RateObserver, logger zerolog.Logger) *CachedRates {
	return &CachedRates{
		Connector: next,
		cache:     cache,
		ttl:       ttl,
		observer:  observer,
		logger:    logger.With().Str("component", "rate_cache").Logger(),
	}
}

func rateKey(t time.Time, typ domain.AssetType, asset, currency, exchange string) string {
	return fmt.Sprintf("rate:%s:%s:%s:%s:%d", typ, asset, currency, exchange, t.Unix())
}

func (c *CachedRates) Rate(ctx context.Context, t time.Time, typ domain.AssetType, asset, currency, exchange string) (decimal.Decimal, error) {
	key := rateKey(t, typ, asset, currency, exchange)

	cached, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		if rate, err := decimal.NewFromString(string(cached)); err == nil {
			c.observe(true)
			return rate, nil
		}
		c.logger.Warn().Str("key", key).Msg("dropping unreadable cached rate")
	case !errors.Is(err, domain.ErrNotFound):
		c.logger.Warn().Err(err).Str("key", key).Msg("rate cache unavailable")
	}

	c.observe(false)
	rate, err := c.Connector.Rate(ctx, t, typ, asset, currency, exchange)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.cache.Set(ctx, key, []byte(rate.String()), c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to cache rate")
	}
	return rate, nil
}

func (c *CachedRates) observe(hit bool) {
	if c.observer != nil {
		c.observer.RecordRateLookup(hit)
	}
}
