package http

import (
	"errors"
	"net/http"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// Disconnector closes a device's live connection. Implemented by the
// presence WebSocket server.
type Disconnector interface {
	Disconnect(deviceID domain.DeviceID) bool
}

type DeviceHandler struct {
	registryService ports.RegistryService
	roomService     ports.RoomService
	presenceService ports.PresenceService
	disconnector    Disconnector
}

func NewDeviceHandler(
	registryService ports.RegistryService,
	roomService ports.RoomService,
	presenceService ports.PresenceService,
	disconnector Disconnector,
) *DeviceHandler {
	return &DeviceHandler{
		registryService: registryService,
		roomService:     roomService,
		presenceService: presenceService,
		disconnector:    disconnector,
	}
}

// SetupRoutes mounts device routes. Registration is the only route devices
// themselves call; it is unauthenticated and throttled by registerLimiter.
// Everything else is operator-facing and sits behind authMiddleware.
func (h *DeviceHandler) SetupRoutes(router *gin.Engine, authMiddleware, registerLimiter gin.HandlerFunc) {
	router.POST("/api/v1/devices/register", registerLimiter, h.Register)

	api := router.Group("/api/v1/devices", authMiddleware)
	{
		api.GET("", h.ListDevices)
		api.GET("/:id", h.GetDevice)
		api.PATCH("/:id", h.UpdateMetadata)
		api.POST("/:id/unassign", h.UnassignDevice)
		api.POST("/:id/disconnect", h.ForceDisconnect)
		api.DELETE("/:id", h.DeleteDevice)
	}
}

func (h *DeviceHandler) Register(c *gin.Context) {
	var req struct {
		DeviceID   domain.DeviceID   `json:"device_id" binding:"required,max=32"`
		HardwareID domain.HardwareID `json:"hardware_id" binding:"required,max=128"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.registryService.Register(c.Request.Context(), req.DeviceID, req.HardwareID, c.ClientIP())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices, err := h.registryService.ListDevices(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
	})
}

func (h *DeviceHandler) GetDevice(c *gin.Context) {
	deviceID := domain.DeviceID(c.Param("id"))

	device, err := h.registryService.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device": device,
	})
}

func (h *DeviceHandler) UpdateMetadata(c *gin.Context) {
	deviceID := domain.DeviceID(c.Param("id"))

	var req ports.DeviceMetadata
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device, err := h.registryService.UpdateMetadata(c.Request.Context(), deviceID, req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device": device,
	})
}

func (h *DeviceHandler) UnassignDevice(c *gin.Context) {
	deviceID := domain.DeviceID(c.Param("id"))

	if err := h.roomService.UnassignDevice(c.Request.Context(), deviceID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "unassigned",
	})
}

func (h *DeviceHandler) ForceDisconnect(c *gin.Context) {
	deviceID := domain.DeviceID(c.Param("id"))

	if _, err := h.registryService.GetDevice(c.Request.Context(), deviceID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	hadConnection := false
	if h.disconnector != nil {
		hadConnection = h.disconnector.Disconnect(deviceID)
	}
	// The store update must not depend on the connection teardown
	if err := h.presenceService.ForceOffline(c.Request.Context(), deviceID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "disconnected",
		"had_connection": hadConnection,
	})
}

func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	deviceID := domain.DeviceID(c.Param("id"))

	if err := h.registryService.DeleteDevice(c.Request.Context(), deviceID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
	})
}

// statusFor maps coordination errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrIdentityConflict),
		errors.Is(err, domain.ErrDeviceExists),
		errors.Is(err, domain.ErrRoomExists),
		errors.Is(err, domain.ErrStaleSwitch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDeviceNotFound), errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotAMember):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrProvisioningUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
