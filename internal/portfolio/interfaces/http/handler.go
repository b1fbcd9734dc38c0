package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hodlfi/btclending/internal/lending/domain"
	"github.com/hodlfi/btclending/internal/portfolio/application"
	"github.com/hodlfi/btclending/pkg/response"
)

// PortfolioHandler exposes the read-side aggregates over HTTP.
type PortfolioHandler struct {
	service *application.PortfolioService
}

func NewPortfolioHandler(service *application.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{service: service}
}

func (h *PortfolioHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/accounts/:account_id/portfolio", h.GetSummary)
	router.GET("/accounts/:account_id/portfolio/stats", h.GetStats)
	router.GET("/accounts/:account_id/portfolio/at-risk", h.ListAccountAtRisk)
	router.GET("/portfolio/at-risk", h.ListAtRisk)
}

func (h *PortfolioHandler) GetSummary(c *gin.Context) {
	summary, err := h.service.Summarize(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, summary)
}

func (h *PortfolioHandler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *PortfolioHandler) ListAtRisk(c *gin.Context) {
	positions, err := h.service.ListAtRisk(c.Request.Context(), "")
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, positions)
}

func (h *PortfolioHandler) ListAccountAtRisk(c *gin.Context) {
	positions, err := h.service.ListAtRisk(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, positions)
}

func (h *PortfolioHandler) writeError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, domain.ErrStorageUnavailable.Error(), "")
		return
	}
	response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
}
