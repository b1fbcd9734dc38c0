package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/hodlfi/btclending/internal/lending/application"
	"github.com/hodlfi/btclending/internal/lending/domain"
	"github.com/hodlfi/btclending/pkg/response"
)

// PriceSource provides the latest observed collateral price. The second
// return is false before the first price tick has been seen.
type PriceSource interface {
	Latest(ctx context.Context) (decimal.Decimal, bool, error)
}

// LendingHandler exposes the loan lifecycle over HTTP.
type LendingHandler struct {
	service *application.LendingService
	prices  PriceSource
}

func NewLendingHandler(service *application.LendingService, prices PriceSource) *LendingHandler {
	return &LendingHandler{service: service, prices: prices}
}

func (h *LendingHandler) RegisterRoutes(router *gin.RouterGroup) {
	loans := router.Group("/loans")
	{
		loans.POST("", h.CreateLoan)
		loans.GET("/:id", h.GetLoan)
		loans.POST("/:id/repay", h.Repay)
		loans.POST("/:id/extend", h.Extend)
		loans.POST("/:id/liquidate", h.Liquidate)
	}
	router.GET("/accounts/:account_id/loans", h.ListAccountLoans)
}

type createLoanRequest struct {
	AccountID        string          `json:"account_id" binding:"required"`
	CustodyReference string          `json:"custody_reference" binding:"required"`
	CollateralAmount decimal.Decimal `json:"collateral_amount" binding:"required"`
	Principal        decimal.Decimal `json:"principal" binding:"required"`
	DurationDays     int             `json:"duration_days" binding:"required"`
}

type repayRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

type extendRequest struct {
	Days int `json:"days" binding:"required"`
}

// loanView is a position plus its price-dependent valuation. Valuation is
// omitted when no price has been observed yet.
type loanView struct {
	*domain.LoanPosition
	Valuation *domain.Valuation `json:"valuation,omitempty"`
}

func (h *LendingHandler) CreateLoan(c *gin.Context) {
	var req createLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	price, ok, err := h.prices.Latest(c.Request.Context())
	if err != nil || !ok {
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, "collateral price unavailable", "")
		return
	}

	loan, err := h.service.RequestLoan(c.Request.Context(), application.RequestLoanCommand{
		AccountID:        req.AccountID,
		CustodyReference: req.CustodyReference,
		CollateralAmount: req.CollateralAmount,
		Principal:        req.Principal,
		DurationDays:     req.DurationDays,
		CurrentPrice:     price,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Body{Message: "success", Data: h.view(loan, price, true)})
}

func (h *LendingHandler) GetLoan(c *gin.Context) {
	loan, err := h.service.GetLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	price, ok, _ := h.prices.Latest(c.Request.Context())
	response.Success(c, h.view(loan, price, ok))
}

func (h *LendingHandler) Repay(c *gin.Context) {
	var req repayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	price, _, _ := h.prices.Latest(c.Request.Context())
	loan, err := h.service.Repay(c.Request.Context(), c.Param("id"), req.Amount, price)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, loan)
}

func (h *LendingHandler) Extend(c *gin.Context) {
	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	loan, err := h.service.Extend(c.Request.Context(), c.Param("id"), req.Days)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, loan)
}

func (h *LendingHandler) Liquidate(c *gin.Context) {
	loan, err := h.service.Liquidate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, loan)
}

func (h *LendingHandler) ListAccountLoans(c *gin.Context) {
	loans, err := h.service.ListByAccount(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	price, ok, _ := h.prices.Latest(c.Request.Context())
	views := make([]loanView, 0, len(loans))
	for _, loan := range loans {
		views = append(views, h.view(loan, price, ok))
	}
	response.Success(c, views)
}

func (h *LendingHandler) view(loan *domain.LoanPosition, price decimal.Decimal, priceKnown bool) loanView {
	v := loanView{LoanPosition: loan}
	if priceKnown {
		valuation := loan.ValueAt(price, h.service.Params().LiquidationThreshold, time.Now())
		v.Valuation = &valuation
	}
	return v
}

func (h *LendingHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrLoanNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidExtension):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrExceedsLoanToValue),
		errors.Is(err, domain.ErrBelowMinimumCollateral),
		errors.Is(err, domain.ErrAmountOutOfBounds),
		errors.Is(err, domain.ErrExceedsBalance),
		errors.Is(err, domain.ErrLoanNotActive),
		errors.Is(err, domain.ErrNotLiquidatable):
		response.ErrorWithStatus(c, http.StatusUnprocessableEntity, err.Error(), "")
	case errors.Is(err, domain.ErrStorageUnavailable):
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, domain.ErrStorageUnavailable.Error(), "")
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
	}
}
