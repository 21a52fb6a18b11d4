package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tonpost/tonpost/internal/deal"
	"github.com/tonpost/tonpost/internal/ton"
	"github.com/tonpost/tonpost/internal/validation"
)

// Handler provides HTTP endpoints for payment operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/:dealId/initiate", h.Initiate)
	r.GET("/payments/:dealId/status", h.Status)
	r.PUT("/users/:id/wallet", h.SetWallet)
	r.GET("/users/:id/wallet", h.GetWallet)
}

// RegisterInternalRoutes sets up routes gated behind the internal API key.
func (h *Handler) RegisterInternalRoutes(r *gin.RouterGroup) {
	r.POST("/payments/:dealId/release", h.Release)
	r.POST("/payments/:dealId/refund", h.Refund)
}

// RegisterAdminRoutes sets up admin-gated routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/sweep", h.Sweep)
}

// Initiate handles POST /v1/payments/:dealId/initiate
func (h *Handler) Initiate(c *gin.Context) {
	p, err := h.service.Initiate(c.Request.Context(), c.Param("dealId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment": p})
}

// Status handles GET /v1/payments/:dealId/status. Polling this endpoint
// is what detects the deposit and flips the deal forward.
func (h *Handler) Status(c *gin.Context) {
	view, err := h.service.Poll(c.Request.Context(), c.Param("dealId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": view})
}

// Release handles POST /v1/internal/payments/:dealId/release
func (h *Handler) Release(c *gin.Context) {
	p, err := h.service.ReleaseOnPostConfirmation(c.Request.Context(), c.Param("dealId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": p})
}

// Refund handles POST /v1/internal/payments/:dealId/refund
func (h *Handler) Refund(c *gin.Context) {
	p, err := h.service.Refund(c.Request.Context(), c.Param("dealId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": p})
}

// SetWallet handles PUT /v1/users/:id/wallet
func (h *Handler) SetWallet(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "address is required",
		})
		return
	}
	if !validation.IsValidTONAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Not a valid TON address",
		})
		return
	}

	if err := h.service.SetPayoutAddress(c.Request.Context(), c.Param("id"), req.Address); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("id"), "address": req.Address})
}

// GetWallet handles GET /v1/users/:id/wallet
func (h *Handler) GetWallet(c *gin.Context) {
	addr, err := h.service.PayoutAddress(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("id"), "address": addr})
}

// Sweep handles POST /v1/admin/sweep
func (h *Handler) Sweep(c *gin.Context) {
	results, err := h.service.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if results == nil {
		results = []SweepResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// respondError maps service errors to HTTP responses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, deal.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "payment_exists",
			"message": "Payment already initiated for this deal",
		})
	case errors.Is(err, ErrAlreadyReleased):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_released",
			"message": "Payment has already been released",
		})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": "Payment was modified concurrently, reload and retry",
		})
	case errors.Is(err, ErrInvalidState), errors.Is(err, deal.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": err.Error(),
		})
	case errors.Is(err, ErrNoPayoutAddress):
		c.JSON(http.StatusPreconditionFailed, gin.H{
			"error":   "no_payout_address",
			"message": "Register a payout wallet before funds can move",
		})
	case errors.Is(err, ton.ErrReleaseTimeout):
		c.JSON(http.StatusAccepted, gin.H{
			"error":   "release_pending",
			"message": "Transfer broadcast but not yet confirmed; it will be reconciled by the sweep",
		})
	case errors.Is(err, ton.ErrInsufficientFunds):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "insufficient_funds",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}
