package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	lending "github.com/hodlfi/btclending/internal/lending/application"
	"github.com/hodlfi/btclending/internal/pricefeed/application"
	"github.com/hodlfi/btclending/pkg/response"
)

// PriceHandler exposes a manual price push alongside the Kafka feed and
// a read endpoint for the latest observed price.
type PriceHandler struct {
	prices  *application.PriceService
	lending *lending.LendingService
}

func NewPriceHandler(prices *application.PriceService, lendingService *lending.LendingService) *PriceHandler {
	return &PriceHandler{prices: prices, lending: lendingService}
}

func (h *PriceHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/prices", h.PushPrice)
	router.GET("/prices/latest", h.GetLatest)
}

type pushPriceRequest struct {
	Price decimal.Decimal `json:"price" binding:"required"`
}

type latestPriceResponse struct {
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// PushPrice records a price and runs the same sweep a feed tick would.
func (h *PriceHandler) PushPrice(c *gin.Context) {
	var req pushPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.prices.Set(ctx, req.Price, time.Now()); err != nil {
		if errors.Is(err, application.ErrInvalidPrice) {
			response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
			return
		}
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
		return
	}

	result, err := h.lending.OnPriceUpdate(ctx, req.Price)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, "price sweep failed", "")
		return
	}
	response.Success(c, result)
}

func (h *PriceHandler) GetLatest(c *gin.Context) {
	price, known, err := h.prices.Latest(c.Request.Context())
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
		return
	}
	if !known {
		response.ErrorWithStatus(c, http.StatusNotFound, "no price observed yet", "")
		return
	}
	observedAt, _ := h.prices.ObservedAt()
	response.Success(c, latestPriceResponse{Price: price, ObservedAt: observedAt})
}
