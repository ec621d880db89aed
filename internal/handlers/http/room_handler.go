package http

import (
	"net/http"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	roomService ports.RoomService
}

func NewRoomHandler(roomService ports.RoomService) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
	}
}

func (h *RoomHandler) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	api := router.Group("/api/v1/rooms", authMiddleware)
	{
		api.POST("", h.CreateRoom)
		api.GET("", h.ListRooms)
		api.GET("/:id", h.GetRoom)
		api.DELETE("/:id", h.DeleteRoom)
		api.POST("/:id/assign", h.AssignDevice)
		api.POST("/:id/switch", h.Switch)
	}
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required,min=1,max=100"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	createdBy := c.GetString("subject")
	room, err := h.roomService.CreateRoom(c.Request.Context(), req.Name, createdBy)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"room": room,
	})
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.roomService.ListRooms(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms": rooms,
	})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	room, err := h.roomService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room": room,
	})
}

func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	if err := h.roomService.DeleteRoom(c.Request.Context(), roomID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
	})
}

func (h *RoomHandler) AssignDevice(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	var req struct {
		DeviceID domain.DeviceID `json:"device_id" binding:"required,max=32"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.roomService.AssignDevice(c.Request.Context(), roomID, req.DeviceID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "assigned",
	})
}

// Switch puts a member on air. An empty device_id clears the broadcaster.
// The at timestamp defaults to now; consoles replaying a queued decision
// send the original decision time so stale ones are rejected.
func (h *RoomHandler) Switch(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	var req struct {
		DeviceID domain.DeviceID `json:"device_id" binding:"max=32"`
		At       int64           `json:"at"` // unix milliseconds, optional
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	at := time.Now()
	if req.At > 0 {
		at = time.UnixMilli(req.At)
	}

	if err := h.roomService.Switch(c.Request.Context(), roomID, req.DeviceID, at); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "switched",
		"device_id": req.DeviceID,
	})
}
