package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"
	flog "fleetcast/pkg/logger"
	"fleetcast/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketServer is the persistent connection devices hold while at sea.
// A device is online exactly as long as its connection is healthy: the
// connection opening marks it online, heartbeats keep it there, and any
// termination of the read loop marks it offline. There is no path where a
// dead connection leaves the device advertised as online.
type WebSocketServer struct {
	presence ports.PresenceService
	registry ports.RegistryService
	idSpec   validation.DeviceIDSpec

	connections map[domain.DeviceID]*websocket.Conn
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

type DeviceMessage struct {
	Type     string          `json:"type"`
	DeviceID domain.DeviceID `json:"device_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type StatusPayload struct {
	Streaming bool `json:"streaming"`
}

func NewWebSocketServer(presence ports.PresenceService, registry ports.RegistryService, idSpec validation.DeviceIDSpec) *WebSocketServer {
	return &WebSocketServer{
		presence:     presence,
		registry:     registry,
		idSpec:       idSpec,
		connections:  make(map[domain.DeviceID]*websocket.Conn),
		pingInterval: 15 * time.Second, // Default ping interval
		pongTimeout:  45 * time.Second, // Default pong timeout
		readTimeout:  45 * time.Second, // Default read timeout
		writeTimeout: 10 * time.Second, // Default write timeout
		logger:       flog.New("info").Sugar(),
	}
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *WebSocketServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *WebSocketServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
	s.readTimeout = timeout
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	deviceID := domain.DeviceID(r.URL.Query().Get("device_id"))
	if err := s.idSpec.Validate(string(deviceID)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.registry.GetDevice(r.Context(), deviceID); err != nil {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Check if device is reconnecting (old connection still registered)
	s.mu.Lock()
	existingConn, isReconnect := s.connections[deviceID]
	if isReconnect && existingConn != nil {
		existingConn.Close()
		s.logger.Infow("closing old connection for reconnecting device", "device_id", deviceID)
	}
	s.connections[deviceID] = conn
	s.mu.Unlock()

	if err := s.presence.Connect(context.Background(), deviceID); err != nil {
		s.logger.Errorw("failed to mark device online", "device_id", deviceID, "error", err)
		s.removeConnection(deviceID, conn)
		return
	}

	s.logger.Infow("device connected via WebSocket", "device_id", deviceID, "reconnect", isReconnect)

	// Set read/write deadlines
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		s.presence.Heartbeat(context.Background(), deviceID)
		return nil
	})

	// Start ping ticker
	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	// Channel for message processing
	messageChan := make(chan DeviceMessage, 10)
	errorChan := make(chan error, 1)

	// Start message reader goroutine
	go func() {
		for {
			var msg DeviceMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			messageChan <- msg
		}
	}()

	// Process messages and ping
	for {
		select {
		case msg := <-messageChan:
			if err := s.handleMessage(context.Background(), deviceID, msg); err != nil {
				s.logger.Infow("error handling message from device", "device_id", deviceID, "error", err)
				s.sendError(conn, err.Error())
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "device_id", deviceID, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading message from device", "device_id", deviceID, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	// A reconnect replaces the registered connection before this loop
	// observes the close. The replacement owns presence now; firing the
	// fail-safe here would mark the live device offline.
	if !s.removeConnection(deviceID, conn) {
		s.logger.Infow("connection superseded by reconnect", "device_id", deviceID)
		return
	}

	if err := s.presence.Disconnect(context.Background(), deviceID); err != nil {
		s.logger.Infow("error marking device offline", "device_id", deviceID, "error", err)
	}

	s.logger.Infow("device disconnected", "device_id", deviceID)
}

func (s *WebSocketServer) handleMessage(ctx context.Context, deviceID domain.DeviceID, msg DeviceMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}

	// A connection speaks only for the device it authenticated as
	if msg.DeviceID != "" && msg.DeviceID != deviceID {
		return fmt.Errorf("device_id mismatch: expected %s, got %s", deviceID, msg.DeviceID)
	}

	switch msg.Type {
	case "heartbeat":
		return s.handleHeartbeat(ctx, deviceID)
	case "status":
		return s.handleStatus(ctx, deviceID, msg)
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (s *WebSocketServer) handleHeartbeat(ctx context.Context, deviceID domain.DeviceID) error {
	if err := s.presence.Heartbeat(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}

	response := map[string]interface{}{
		"type":      "heartbeat_ack",
		"timestamp": time.Now().Unix(),
	}
	return s.sendToDevice(deviceID, response)
}

func (s *WebSocketServer) handleStatus(ctx context.Context, deviceID domain.DeviceID, msg DeviceMessage) error {
	var payload StatusPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid status payload: %w", err)
	}

	if err := s.presence.SetStreaming(ctx, deviceID, payload.Streaming); err != nil {
		return fmt.Errorf("failed to update streaming status: %w", err)
	}

	s.logger.Infow("device status updated",
		"device_id", deviceID,
		"streaming", payload.Streaming,
	)

	response := map[string]interface{}{
		"type":      "status_ack",
		"timestamp": time.Now().Unix(),
	}
	return s.sendToDevice(deviceID, response)
}

// Disconnect closes the device's connection if it holds one. The read loop
// observes the closed socket and runs the normal offline path, so the store
// update happens exactly once regardless of who initiated the close.
func (s *WebSocketServer) Disconnect(deviceID domain.DeviceID) bool {
	s.mu.RLock()
	conn, exists := s.connections[deviceID]
	s.mu.RUnlock()

	if !exists {
		return false
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnected by operator"),
		time.Now().Add(s.writeTimeout))
	conn.Close()
	return true
}

func (s *WebSocketServer) sendToDevice(deviceID domain.DeviceID, data interface{}) error {
	s.mu.RLock()
	conn, exists := s.connections[deviceID]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("device %s not connected", deviceID)
	}

	return conn.WriteJSON(data)
}

func (s *WebSocketServer) sendError(conn *websocket.Conn, message string) {
	errorMsg := map[string]interface{}{
		"type":    "error",
		"message": message,
	}
	conn.WriteJSON(errorMsg)
}

// removeConnection drops the mapping only if conn is still the registered
// connection for the device. It reports whether conn held the registration,
// so a superseded handler knows not to touch presence.
func (s *WebSocketServer) removeConnection(deviceID domain.DeviceID, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, exists := s.connections[deviceID]; exists && current == conn {
		delete(s.connections, deviceID)
		return true
	}
	return false
}

func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connectionCount := len(s.connections)
	s.mu.RUnlock()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connectionCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Additional methods for connection management

func (s *WebSocketServer) GetConnectedDevices() []domain.DeviceID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]domain.DeviceID, 0, len(s.connections))
	for deviceID := range s.connections {
		devices = append(devices, deviceID)
	}

	return devices
}

func (s *WebSocketServer) IsDeviceConnected(deviceID domain.DeviceID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.connections[deviceID]
	return exists
}
