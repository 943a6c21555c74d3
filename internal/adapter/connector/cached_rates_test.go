package connector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/usecase/mocks"
)

type hits struct{ hit, miss int }

func (h *hits) RecordRateLookup(hit bool) {
	if hit {
		h.hit++
		return
	}
	h.miss++
}

func TestCachedRatesHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	inner := NewMemoryConnector(nil)
	obs := &hits{}

	key := rateKey(jan, domain.TypeCrypto, "BTC", "EUR", "Kraken")
	cache.EXPECT().Get(gomock.Any(), key).Return([]byte("40000.5"), nil)

	c := NewCachedRates(inner, cache, time.Hour, obs, zerolog.Nop())
	rate, err := c.Rate(context.Background(), jan, domain.TypeCrypto, "BTC", "EUR", "Kraken")
	require.NoError(t, err)
	assert.Equal(t, "40000.5", rate.String())
	assert.Equal(t, 1, obs.hit)
}

func TestCachedRatesMissStoresRate(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	inner := NewMemoryConnector(nil)
	inner.AddRate(jan.AddDate(0, 0, -1), domain.TypeCurrency, "USD", "EUR", decimal.RequireFromString("0.92"))
	obs := &hits{}

	key := rateKey(jan, domain.TypeCurrency, "USD", "EUR", "")
	gomock.InOrder(
		cache.EXPECT().Get(gomock.Any(), key).Return(nil, domain.ErrNotFound),
		cache.EXPECT().Set(gomock.Any(), key, []byte("0.92"), time.Hour).Return(nil),
	)

	c := NewCachedRates(inner, cache, time.Hour, obs, zerolog.Nop())
	rate, err := c.Rate(context.Background(), jan, domain.TypeCurrency, "USD", "EUR", "")
	require.NoError(t, err)
	assert.Equal(t, "0.92", rate.String())
	assert.Equal(t, 1, obs.miss)
}

func TestCachedRatesSurvivesCacheFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	inner := NewMemoryConnector(nil)
	inner.AddRate(jan, domain.TypeCurrency, "USD", "EUR", decimal.RequireFromString("0.9"))

	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

	c := NewCachedRates(inner, cache, time.Hour, nil, zerolog.Nop())
	rate, err := c.Rate(context.Background(), jan, domain.TypeCurrency, "USD", "EUR", "")
	require.NoError(t, err)
	assert.Equal(t, "0.9", rate.String())
}

func TestCachedRatesDoesNotCacheFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)

	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, domain.ErrNotFound)

	c := NewCachedRates(NewMemoryConnector(nil), cache, time.Hour, nil, zerolog.Nop())
	_, err := c.Rate(context.Background(), jan, domain.TypeStock, "NOKIA", "EUR", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
