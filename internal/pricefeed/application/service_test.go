package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPriceService() *PriceService {
	return NewPriceService(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLatestBeforeFirstTick(t *testing.T) {
	service := newTestPriceService()
	_, known, err := service.Latest(context.Background())
	require.NoError(t, err)
	assert.False(t, known)
}

func TestSetAndLatest(t *testing.T) {
	service := newTestPriceService()
	observedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, service.Set(context.Background(), decimal.RequireFromString("45000"), observedAt))

	price, known, err := service.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, known)
	assert.True(t, price.Equal(decimal.RequireFromString("45000")))

	gotAt, known := service.ObservedAt()
	require.True(t, known)
	assert.Equal(t, observedAt, gotAt)

	// Later ticks replace the value.
	require.NoError(t, service.Set(context.Background(), decimal.RequireFromString("44000"), observedAt.Add(time.Minute)))
	price, _, _ = service.Latest(context.Background())
	assert.True(t, price.Equal(decimal.RequireFromString("44000")))
}

func TestSetRejectsNonPositive(t *testing.T) {
	service := newTestPriceService()
	err := service.Set(context.Background(), decimal.Zero, time.Now())
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, known, _ := service.Latest(context.Background())
	assert.False(t, known, "rejected price must not be recorded")
}

func TestRestoreWithoutCache(t *testing.T) {
	service := newTestPriceService()
	require.NoError(t, service.Restore(context.Background()))

	_, known, _ := service.Latest(context.Background())
	assert.False(t, known)
}
