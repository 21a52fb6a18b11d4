package deal

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tonpost/tonpost/internal/validation"
)

// Handler provides HTTP endpoints for deal operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new deal handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up deal routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/deals", h.CreateDeal)
	r.GET("/deals/:id", h.GetDeal)
	r.POST("/deals/:id/transition", h.TransitionDeal)
	r.POST("/deals/:id/cancel", h.CancelDeal)
	r.POST("/deals/:id/schedule", h.ScheduleDeal)
	r.POST("/deals/:id/creatives", h.SubmitCreative)
	r.GET("/deals/:id/creatives", h.ListCreatives)
	r.POST("/deals/:id/creatives/:creativeId/approve", h.ApproveCreative)
	r.POST("/deals/:id/creatives/:creativeId/revision", h.RequestRevision)
}

// CreateRequest is the body for POST /v1/deals.
type CreateRequest struct {
	ChannelOwnerID string `json:"channel_owner_id" binding:"required"`
	AdvertiserID   string `json:"advertiser_id" binding:"required"`
	CampaignID     string `json:"campaign_id"`
	AdFormatType   string `json:"ad_format_type"`
	AgreedPrice    int64  `json:"agreed_price"` // nanoton
}

// CreateDeal handles POST /v1/deals
func (h *Handler) CreateDeal(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.PositiveAmount("agreed_price", req.AgreedPrice),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	d, err := h.service.Create(c.Request.Context(), CreateParams{
		ChannelOwnerID: req.ChannelOwnerID,
		AdvertiserID:   req.AdvertiserID,
		CampaignID:     req.CampaignID,
		AdFormatType:   req.AdFormatType,
		AgreedPrice:    req.AgreedPrice,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"deal": d})
}

// GetDeal handles GET /v1/deals/:id
func (h *Handler) GetDeal(c *gin.Context) {
	d, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": d})
}

// TransitionDeal handles POST /v1/deals/:id/transition
func (h *Handler) TransitionDeal(c *gin.Context) {
	var req struct {
		Target Status `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	d, err := h.service.Transition(c.Request.Context(), c.Param("id"), req.Target)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": d})
}

// CancelDeal handles POST /v1/deals/:id/cancel
func (h *Handler) CancelDeal(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req) // reason is optional

	d, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": d})
}

// ScheduleDeal handles POST /v1/deals/:id/schedule
func (h *Handler) ScheduleDeal(c *gin.Context) {
	var req struct {
		PostAt time.Time `json:"post_at" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "post_at (RFC 3339) is required",
		})
		return
	}

	d, err := h.service.Schedule(c.Request.Context(), c.Param("id"), req.PostAt.UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deal": d})
}

// SubmitCreative handles POST /v1/deals/:id/creatives
func (h *Handler) SubmitCreative(c *gin.Context) {
	var req struct {
		Content   string   `json:"content" binding:"required"`
		MediaRefs []string `json:"media_refs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "content is required",
		})
		return
	}

	creative, err := h.service.SubmitCreative(c.Request.Context(), c.Param("id"), req.Content, req.MediaRefs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"creative": creative})
}

// ListCreatives handles GET /v1/deals/:id/creatives
func (h *Handler) ListCreatives(c *gin.Context) {
	creatives, err := h.service.Creatives(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"creatives": creatives})
}

// ApproveCreative handles POST /v1/deals/:id/creatives/:creativeId/approve
func (h *Handler) ApproveCreative(c *gin.Context) {
	creative, err := h.service.ApproveCreative(c.Request.Context(), c.Param("id"), c.Param("creativeId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"creative": creative})
}

// RequestRevision handles POST /v1/deals/:id/creatives/:creativeId/revision
func (h *Handler) RequestRevision(c *gin.Context) {
	var req struct {
		Feedback string `json:"feedback"`
	}
	_ = c.ShouldBindJSON(&req)

	creative, err := h.service.RequestRevision(c.Request.Context(), c.Param("id"), c.Param("creativeId"), req.Feedback)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"creative": creative})
}

// respondError maps service errors to HTTP responses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Deal not found",
		})
	case errors.Is(err, ErrCreativeNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "creative_not_found",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_transition",
			"message": err.Error(),
		})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": "Deal was modified concurrently, reload and retry",
		})
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}
