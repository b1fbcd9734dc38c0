package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hodlfi/btclending/pkg/cache"
)

const (
	lastPriceKey = "pricefeed:btc:last"
	lastPriceTTL = 24 * time.Hour
)

type cachedPrice struct {
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// PriceService tracks the latest observed collateral price. Reads hit an
// in-process copy; Redis backs it so a restarted instance picks up the
// last tick instead of starting blind.
type PriceService struct {
	mu         sync.RWMutex
	price      decimal.Decimal
	observedAt time.Time
	known      bool

	cache  *cache.RedisCache
	logger *slog.Logger
}

func NewPriceService(redisCache *cache.RedisCache, logger *slog.Logger) *PriceService {
	return &PriceService{cache: redisCache, logger: logger}
}

// Restore loads the last persisted price, if any. Called once at startup.
func (s *PriceService) Restore(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	var cached cachedPrice
	if err := s.cache.GetJSON(ctx, lastPriceKey, &cached); err != nil {
		return err
	}
	if !cached.Price.IsPositive() {
		return nil
	}

	s.mu.Lock()
	s.price = cached.Price
	s.observedAt = cached.ObservedAt
	s.known = true
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "restored last collateral price",
		"price", cached.Price.String(),
		"observed_at", cached.ObservedAt,
	)
	return nil
}

// Set records a new observed price. Cache write failures are logged, not
// surfaced; the in-process copy is authoritative within a run.
func (s *PriceService) Set(ctx context.Context, price decimal.Decimal, observedAt time.Time) error {
	if !price.IsPositive() {
		return ErrInvalidPrice
	}

	s.mu.Lock()
	s.price = price
	s.observedAt = observedAt
	s.known = true
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, lastPriceKey, cachedPrice{Price: price, ObservedAt: observedAt}, lastPriceTTL); err != nil {
			s.logger.WarnContext(ctx, "failed to persist last price", "error", err)
		}
	}
	return nil
}

// Latest returns the most recent price. The second return is false
// before the first tick.
func (s *PriceService) Latest(ctx context.Context) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price, s.known, nil
}

// ObservedAt returns when the latest price was observed.
func (s *PriceService) ObservedAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.observedAt, s.known
}
