package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"
	"fleetcast/pkg/validation"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPresenceService struct {
	mock.Mock
}

func (m *MockPresenceService) Connect(ctx context.Context, deviceID domain.DeviceID) error {
	args := m.Called(ctx, deviceID)
	return args.Error(0)
}

func (m *MockPresenceService) Heartbeat(ctx context.Context, deviceID domain.DeviceID) error {
	args := m.Called(ctx, deviceID)
	return args.Error(0)
}

func (m *MockPresenceService) Disconnect(ctx context.Context, deviceID domain.DeviceID) error {
	args := m.Called(ctx, deviceID)
	return args.Error(0)
}

func (m *MockPresenceService) SetStreaming(ctx context.Context, deviceID domain.DeviceID, on bool) error {
	args := m.Called(ctx, deviceID, on)
	return args.Error(0)
}

func (m *MockPresenceService) ForceOffline(ctx context.Context, deviceID domain.DeviceID) error {
	args := m.Called(ctx, deviceID)
	return args.Error(0)
}

type MockRegistryService struct {
	mock.Mock
}

func (m *MockRegistryService) Register(ctx context.Context, deviceID domain.DeviceID, hardwareID domain.HardwareID, origin string) (*ports.RegistrationResult, error) {
	args := m.Called(ctx, deviceID, hardwareID, origin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.RegistrationResult), args.Error(1)
}

func (m *MockRegistryService) GetDevice(ctx context.Context, id domain.DeviceID) (*domain.Device, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Device), args.Error(1)
}

func (m *MockRegistryService) ListDevices(ctx context.Context) ([]*domain.Device, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Device), args.Error(1)
}

func (m *MockRegistryService) UpdateMetadata(ctx context.Context, id domain.DeviceID, meta ports.DeviceMetadata) (*domain.Device, error) {
	args := m.Called(ctx, id, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Device), args.Error(1)
}

func (m *MockRegistryService) DeleteDevice(ctx context.Context, id domain.DeviceID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func newTestServer() (*WebSocketServer, *MockPresenceService, *MockRegistryService) {
	presence := new(MockPresenceService)
	registry := new(MockRegistryService)
	server := NewWebSocketServer(presence, registry, validation.DefaultDeviceIDSpec())
	return server, presence, registry
}

func knownDevice(registry *MockRegistryService, id domain.DeviceID) {
	registry.On("GetDevice", mock.Anything, id).Return(&domain.Device{ID: id, Status: domain.StatusOffline}, nil)
}

func dialDevice(t *testing.T, testServer *httptest.Server, deviceID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + testServer.URL[4:] + "/ws?device_id=" + deviceID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.NoError(t, err)
	return conn
}

func TestWebSocketServer_Heartbeat(t *testing.T) {
	server, presence, registry := newTestServer()
	deviceID := domain.DeviceID("YRAT01")

	knownDevice(registry, deviceID)
	presence.On("Connect", mock.Anything, deviceID).Return(nil)
	presence.On("Heartbeat", mock.Anything, deviceID).Return(nil)
	presence.On("Disconnect", mock.Anything, deviceID).Return(nil)

	testServer := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer testServer.Close()

	conn := dialDevice(t, testServer, "YRAT01")
	defer conn.Close()

	err := conn.WriteJSON(DeviceMessage{Type: "heartbeat"})
	assert.NoError(t, err)

	var response map[string]interface{}
	err = conn.ReadJSON(&response)
	assert.NoError(t, err)
	assert.Equal(t, "heartbeat_ack", response["type"])
	assert.NotNil(t, response["timestamp"])

	presence.AssertCalled(t, "Heartbeat", mock.Anything, deviceID)
}

func TestWebSocketServer_StatusUpdate(t *testing.T) {
	server, presence, registry := newTestServer()
	deviceID := domain.DeviceID("YRAT01")

	knownDevice(registry, deviceID)
	presence.On("Connect", mock.Anything, deviceID).Return(nil)
	presence.On("SetStreaming", mock.Anything, deviceID, true).Return(nil)
	presence.On("Disconnect", mock.Anything, deviceID).Return(nil)

	testServer := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer testServer.Close()

	conn := dialDevice(t, testServer, "YRAT01")
	defer conn.Close()

	err := conn.WriteJSON(DeviceMessage{
		Type:    "status",
		Payload: json.RawMessage(`{"streaming": true}`),
	})
	assert.NoError(t, err)

	var response map[string]interface{}
	err = conn.ReadJSON(&response)
	assert.NoError(t, err)
	assert.Equal(t, "status_ack", response["type"])

	presence.AssertCalled(t, "SetStreaming", mock.Anything, deviceID, true)
}

func TestWebSocketServer_RejectsBadMessages(t *testing.T) {
	server, presence, registry := newTestServer()
	deviceID := domain.DeviceID("YRAT01")

	knownDevice(registry, deviceID)
	presence.On("Connect", mock.Anything, deviceID).Return(nil)
	presence.On("Disconnect", mock.Anything, deviceID).Return(nil)

	testServer := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer testServer.Close()

	t.Run("unknown message type", func(t *testing.T) {
		conn := dialDevice(t, testServer, "YRAT01")
		defer conn.Close()

		err := conn.WriteJSON(DeviceMessage{Type: "teleport"})
		assert.NoError(t, err)

		var response map[string]interface{}
		err = conn.ReadJSON(&response)
		assert.NoError(t, err)
		assert.Equal(t, "error", response["type"])
		assert.Contains(t, response["message"], "unknown message type")
	})

	t.Run("device_id mismatch", func(t *testing.T) {
		conn := dialDevice(t, testServer, "YRAT01")
		defer conn.Close()

		err := conn.WriteJSON(DeviceMessage{Type: "heartbeat", DeviceID: "YRAT02"})
		assert.NoError(t, err)

		var response map[string]interface{}
		err = conn.ReadJSON(&response)
		assert.NoError(t, err)
		assert.Equal(t, "error", response["type"])
		assert.Contains(t, response["message"], "mismatch")
	})

	t.Run("invalid status payload", func(t *testing.T) {
		conn := dialDevice(t, testServer, "YRAT01")
		defer conn.Close()

		err := conn.WriteJSON(DeviceMessage{
			Type:    "status",
			Payload: json.RawMessage(`"not an object"`),
		})
		assert.NoError(t, err)

		var response map[string]interface{}
		err = conn.ReadJSON(&response)
		assert.NoError(t, err)
		assert.Equal(t, "error", response["type"])

		presence.AssertNotCalled(t, "SetStreaming", mock.Anything, deviceID, mock.Anything)
	})
}

func TestWebSocketServer_RejectsBadHandshakes(t *testing.T) {
	server, _, registry := newTestServer()

	registry.On("GetDevice", mock.Anything, domain.DeviceID("YRAT09")).
		Return(nil, domain.ErrDeviceNotFound)

	testServer := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer testServer.Close()

	t.Run("missing device_id", func(t *testing.T) {
		wsURL := "ws" + testServer.URL[4:] + "/ws"
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		assert.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed device_id", func(t *testing.T) {
		wsURL := "ws" + testServer.URL[4:] + "/ws?device_id=BOAT01"
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		assert.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unregistered device", func(t *testing.T) {
		wsURL := "ws" + testServer.URL[4:] + "/ws?device_id=YRAT09"
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		assert.Error(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestWebSocketServer_ConnectionManagement(t *testing.T) {
	server, presence, registry := newTestServer()
	deviceID := domain.DeviceID("YRAT01")

	knownDevice(registry, deviceID)
	presence.On("Connect", mock.Anything, deviceID).Return(nil)
	presence.On("Disconnect", mock.Anything, deviceID).Return(nil)

	testServer := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer testServer.Close()

	conn := dialDevice(t, testServer, "YRAT01")

	// Connection registration is synchronous with the handshake.
	assert.Eventually(t, func() bool {
		return server.IsDeviceConnected(deviceID)
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, server.GetConnectedDevices(), deviceID)

	conn.Close()

	// The read loop notices the close and marks the device offline.
	assert.Eventually(t, func() bool {
		return !server.IsDeviceConnected(deviceID)
	}, time.Second, 10*time.Millisecond)
	presence.AssertCalled(t, "Disconnect", mock.Anything, deviceID)
}

func TestWebSocketServer_ReconnectKeepsDeviceOnline(t *testing.T) {
	server, presence, registry := newTestServer()
	deviceID := domain.DeviceID("YRAT01")

	knownDevice(registry, deviceID)
	presence.On("Connect", mock.Anything, deviceID).Return(nil)
	presence.On("Heartbeat", mock.Anything, deviceID).Return(nil)
	presence.On("Disconnect", mock.Anything, deviceID).Return(nil)

	testServer := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer testServer.Close()

	first := dialDevice(t, testServer, "YRAT01")
	defer first.Close()

	assert.Eventually(t, func() bool {
		return server.IsDeviceConnected(deviceID)
	}, time.Second, 10*time.Millisecond)

	// The device reconnects; the server closes the first connection.
	second := dialDevice(t, testServer, "YRAT01")

	// Drain the first connection until the server-side close lands.
	first.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	// The replacement connection owns presence and keeps serving.
	err := second.WriteJSON(DeviceMessage{Type: "heartbeat"})
	assert.NoError(t, err)

	var response map[string]interface{}
	assert.NoError(t, second.ReadJSON(&response))
	assert.Equal(t, "heartbeat_ack", response["type"])

	assert.True(t, server.IsDeviceConnected(deviceID))
	presence.AssertNotCalled(t, "Disconnect", mock.Anything, deviceID)

	// Only the final close fires the fail-safe, exactly once.
	second.Close()
	assert.Eventually(t, func() bool {
		return presence.AssertNumberOfCalls(new(testing.T), "Disconnect", 1)
	}, time.Second, 10*time.Millisecond)
	presence.AssertNumberOfCalls(t, "Disconnect", 1)
}

func TestWebSocketServer_OperatorDisconnect(t *testing.T) {
	server, presence, registry := newTestServer()
	deviceID := domain.DeviceID("YRAT01")

	knownDevice(registry, deviceID)
	presence.On("Connect", mock.Anything, deviceID).Return(nil)
	presence.On("Disconnect", mock.Anything, deviceID).Return(nil)

	testServer := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer testServer.Close()

	conn := dialDevice(t, testServer, "YRAT01")
	defer conn.Close()

	assert.Eventually(t, func() bool {
		return server.IsDeviceConnected(deviceID)
	}, time.Second, 10*time.Millisecond)

	assert.True(t, server.Disconnect(deviceID))

	assert.Eventually(t, func() bool {
		return !server.IsDeviceConnected(deviceID)
	}, time.Second, 10*time.Millisecond)

	// Kicking a device that holds no connection reports false.
	assert.False(t, server.Disconnect(deviceID))
}

func TestWebSocketServer_ConnectFailureClosesSocket(t *testing.T) {
	server, presence, registry := newTestServer()
	deviceID := domain.DeviceID("YRAT01")

	knownDevice(registry, deviceID)
	presence.On("Connect", mock.Anything, deviceID).Return(domain.ErrStoreUnavailable)

	testServer := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer testServer.Close()

	conn := dialDevice(t, testServer, "YRAT01")
	defer conn.Close()

	// The server abandons the connection when it cannot mark the device
	// online; the device is never tracked.
	assert.Eventually(t, func() bool {
		return !server.IsDeviceConnected(deviceID)
	}, time.Second, 10*time.Millisecond)
}

func TestWebSocketServer_HealthCheck(t *testing.T) {
	server, _, _ := newTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	server.HealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, float64(0), response["connections"])
}
