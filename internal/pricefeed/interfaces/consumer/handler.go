package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	lending "github.com/hodlfi/btclending/internal/lending/application"
	"github.com/hodlfi/btclending/internal/pricefeed/application"
)

// PriceTick is the market data message shape on the price topic.
type PriceTick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// PriceTickHandler consumes market data ticks, records the latest price
// and drives the lending engine's price sweep.
type PriceTickHandler struct {
	prices  *application.PriceService
	lending *lending.LendingService
	symbol  string
	logger  *slog.Logger
}

func NewPriceTickHandler(prices *application.PriceService, lendingService *lending.LendingService, symbol string, logger *slog.Logger) *PriceTickHandler {
	return &PriceTickHandler{
		prices:  prices,
		lending: lendingService,
		symbol:  symbol,
		logger:  logger,
	}
}

// Handle processes one tick message. Malformed or foreign-symbol ticks
// are skipped without error so the consumer keeps its offset moving.
func (h *PriceTickHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var tick PriceTick
	if err := json.Unmarshal(msg.Value, &tick); err != nil {
		h.logger.WarnContext(ctx, "dropping malformed price tick", "offset", msg.Offset, "error", err)
		return nil
	}
	if h.symbol != "" && tick.Symbol != h.symbol {
		return nil
	}
	if !tick.Price.IsPositive() {
		h.logger.WarnContext(ctx, "dropping non-positive price tick", "price", tick.Price.String())
		return nil
	}

	observedAt := tick.Timestamp
	if observedAt.IsZero() {
		observedAt = msg.Time
	}
	if err := h.prices.Set(ctx, tick.Price, observedAt); err != nil {
		return fmt.Errorf("record price: %w", err)
	}

	if _, err := h.lending.OnPriceUpdate(ctx, tick.Price); err != nil {
		return fmt.Errorf("price sweep: %w", err)
	}
	return nil
}
