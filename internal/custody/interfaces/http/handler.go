package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/hodlfi/btclending/internal/custody/application"
	"github.com/hodlfi/btclending/internal/custody/domain"
	lending "github.com/hodlfi/btclending/internal/lending/domain"
	"github.com/hodlfi/btclending/pkg/response"
)

// CustodyHandler exposes collateral lock management over HTTP.
type CustodyHandler struct {
	service *application.CustodyService
}

func NewCustodyHandler(service *application.CustodyService) *CustodyHandler {
	return &CustodyHandler{service: service}
}

func (h *CustodyHandler) RegisterRoutes(router *gin.RouterGroup) {
	custody := router.Group("/custody")
	{
		custody.POST("/locks", h.RegisterDeposit)
		custody.GET("/locks/:id", h.GetLock)
		custody.POST("/locks/:id/confirmations", h.ConfirmDeposit)
		custody.POST("/locks/:id/release", h.ReleaseLock)
	}
	router.GET("/accounts/:account_id/locks", h.ListAccountLocks)
}

type registerDepositRequest struct {
	AccountID string          `json:"account_id" binding:"required"`
	TxHash    string          `json:"tx_hash" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}

type confirmDepositRequest struct {
	Confirmations int `json:"confirmations" binding:"required"`
}

func (h *CustodyHandler) RegisterDeposit(c *gin.Context) {
	var req registerDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	lock, err := h.service.RegisterDeposit(c.Request.Context(), req.AccountID, req.TxHash, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Body{Message: "success", Data: lock})
}

func (h *CustodyHandler) ConfirmDeposit(c *gin.Context) {
	var req confirmDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	lock, err := h.service.ConfirmDeposit(c.Request.Context(), c.Param("id"), req.Confirmations)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, lock)
}

func (h *CustodyHandler) ReleaseLock(c *gin.Context) {
	lock, err := h.service.ReleaseLock(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, lock)
}

func (h *CustodyHandler) GetLock(c *gin.Context) {
	lock, err := h.service.GetLock(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, lock)
}

func (h *CustodyHandler) ListAccountLocks(c *gin.Context) {
	locks, err := h.service.ListByAccount(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, locks)
}

func (h *CustodyHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrLockNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidLockInput):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrLockNotConfirmed),
		errors.Is(err, domain.ErrLockNotPending),
		errors.Is(err, domain.ErrLockConsumed),
		errors.Is(err, domain.ErrInsufficientLock),
		errors.Is(err, domain.ErrLockAccountMismatch):
		response.ErrorWithStatus(c, http.StatusUnprocessableEntity, err.Error(), "")
	case errors.Is(err, lending.ErrStorageUnavailable):
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, lending.ErrStorageUnavailable.Error(), "")
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
	}
}
