package posting

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tonpost/tonpost/internal/deal"
)

// Handler provides HTTP endpoints for post operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new posting handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up posting routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/deals/:id/publish", h.Publish)
	r.GET("/deals/:id/post", h.GetPost)
	r.POST("/deals/:id/post/verify", h.Verify)
	r.PUT("/users/:id/channel", h.SetChannel)
}

// Publish handles POST /v1/deals/:id/publish
func (h *Handler) Publish(c *gin.Context) {
	p, err := h.service.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": p})
}

// GetPost handles GET /v1/deals/:id/post
func (h *Handler) GetPost(c *gin.Context) {
	p, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": p})
}

// Verify handles POST /v1/deals/:id/post/verify — an on-demand
// integrity probe outside the timer cadence.
func (h *Handler) Verify(c *gin.Context) {
	p, err := h.service.VerifyIntegrity(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": p, "intact": p.Intact()})
}

// SetChannel handles PUT /v1/users/:id/channel
func (h *Handler) SetChannel(c *gin.Context) {
	var req struct {
		ChannelRef string `json:"channel_ref" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "channel_ref is required",
		})
		return
	}

	if err := h.service.SetChannelRef(c.Request.Context(), c.Param("id"), req.ChannelRef); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("id"), "channel_ref": req.ChannelRef})
}

// respondError maps service errors to HTTP responses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, deal.ErrNotFound),
		errors.Is(err, deal.ErrCreativeNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, ErrAlreadyPosted):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_posted",
			"message": "Deal already has a published post",
		})
	case errors.Is(err, ErrNoChannelRef):
		c.JSON(http.StatusPreconditionFailed, gin.H{
			"error":   "no_channel",
			"message": "Register a channel before publishing",
		})
	case errors.Is(err, deal.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_transition",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}
