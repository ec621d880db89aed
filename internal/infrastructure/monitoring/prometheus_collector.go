package monitoring

import (
	"context"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type PrometheusCollector struct {
	// Counters
	devicesOnlineTotal    prometheus.Gauge
	devicesStreamingTotal prometheus.Gauge
	registrationsTotal    prometheus.Counter
	switchesTotal         *prometheus.CounterVec
	ingressesTotal        prometheus.Counter

	// Room metrics
	roomMemberCount *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		devicesOnlineTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcast_devices_online_total",
			Help: "Number of devices currently online",
		}),

		devicesStreamingTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcast_devices_streaming_total",
			Help: "Number of devices currently streaming",
		}),

		registrationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fleetcast_registrations_total",
			Help: "Total number of successful device registrations",
		}),

		switchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetcast_broadcaster_switches_total",
			Help: "Total number of applied broadcaster switches",
		}, []string{"room_id"}),

		ingressesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fleetcast_ingresses_provisioned_total",
			Help: "Total number of provisioned stream ingresses",
		}),

		roomMemberCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetcast_room_member_count",
			Help: "Number of devices assigned to each room",
		}, []string{"room_id"}),
	}
}

func (p *PrometheusCollector) RecordDeviceOnline() {
	p.devicesOnlineTotal.Inc()
}

func (p *PrometheusCollector) RecordDeviceOffline() {
	p.devicesOnlineTotal.Dec()
}

func (p *PrometheusCollector) RecordDeviceStreaming() {
	p.devicesStreamingTotal.Inc()
}

func (p *PrometheusCollector) RecordRegistration() {
	p.registrationsTotal.Inc()
}

func (p *PrometheusCollector) RecordSwitch(roomID domain.RoomID) {
	p.switchesTotal.WithLabelValues(string(roomID)).Inc()
}

func (p *PrometheusCollector) RecordIngressProvisioned() {
	p.ingressesTotal.Inc()
}

func (p *PrometheusCollector) SetRoomMemberCount(roomID domain.RoomID, count int) {
	p.roomMemberCount.WithLabelValues(string(roomID)).Set(float64(count))
}

func (p *PrometheusCollector) RecordRoomDeleted(roomID domain.RoomID) {
	p.switchesTotal.DeleteLabelValues(string(roomID))
	p.roomMemberCount.DeleteLabelValues(string(roomID))
}

// Consume updates metrics from the coordination event stream until ctx is
// cancelled. Services stay free of metrics concerns; the collector is just
// another subscriber.
func (p *PrometheusCollector) Consume(ctx context.Context, bus ports.EventBus, logger *zap.SugaredLogger) error {
	events, cancel, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			p.apply(event, logger)
		}
	}
}

func (p *PrometheusCollector) apply(event *domain.Event, logger *zap.SugaredLogger) {
	switch event.Type {
	case domain.EventDeviceRegistered:
		p.RecordRegistration()
	case domain.EventDeviceOnline:
		p.RecordDeviceOnline()
	case domain.EventDeviceOffline:
		p.RecordDeviceOffline()
	case domain.EventDeviceStreaming:
		p.RecordDeviceStreaming()
	case domain.EventRoomSwitched:
		p.RecordSwitch(event.RoomID)
	case domain.EventIngressProvisioned:
		p.RecordIngressProvisioned()
	case domain.EventRoomDeleted:
		p.RecordRoomDeleted(event.RoomID)
	default:
		logger.Debugw("unhandled event type in metrics collector", "type", event.Type)
	}
}
