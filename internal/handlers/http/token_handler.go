package http

import (
	"net/http"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"

	"github.com/gin-gonic/gin"
)

type TokenHandler struct {
	tokenService ports.TokenService
}

func NewTokenHandler(tokenService ports.TokenService) *TokenHandler {
	return &TokenHandler{
		tokenService: tokenService,
	}
}

func (h *TokenHandler) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	api := router.Group("/api/v1/tokens", authMiddleware)
	{
		api.POST("", h.IssueToken)
	}
}

// IssueToken mints a join credential for an arbitrary identity, typically a
// console viewer or a replacement device. Devices get their own credential
// from registration; this route is for everything else.
func (h *TokenHandler) IssueToken(c *gin.Context) {
	var req struct {
		Identity string          `json:"identity" binding:"required,max=100"`
		RoomID   domain.RoomID   `json:"room_id" binding:"max=100"`
		Role     domain.Role     `json:"role" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Role {
	case domain.RoleDriver, domain.RoleViewer, domain.RoleAdmin:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	token, err := h.tokenService.Issue(req.Identity, req.RoomID, req.Role)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":       token,
		"ws_endpoint": h.tokenService.WSEndpoint(),
	})
}
