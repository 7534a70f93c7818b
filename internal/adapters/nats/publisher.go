package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// stopCompletedMsg is the wire payload for a completed delivery.
type stopCompletedMsg struct {
	EventID string       `json:"event_id"`
	RouteID string       `json:"route_id"`
	Stop    *domain.Stop `json:"stop"`
}

// routeStatusMsg is the wire payload for a route lifecycle transition.
type routeStatusMsg struct {
	EventID string             `json:"event_id"`
	RouteID string             `json:"route_id"`
	Status  domain.RouteStatus `json:"status"`
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "FLEET_POSITIONS",
			Subjects:  []string{"fleet.position.>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "FLEET_EVENTS",
			Subjects:  []string{"fleet.geofence.>", "fleet.stop.completed", "fleet.route.status"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist — try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishPosition(ctx context.Context, pos *domain.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("fleet.position."+pos.VehicleID, data)
	return err
}

func (p *Publisher) PublishGeofenceEvent(ctx context.Context, e *domain.GeofenceEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("fleet.geofence."+string(e.Type), data)
	return err
}

func (p *Publisher) PublishStopCompleted(ctx context.Context, routeID string, stop *domain.Stop) error {
	data, err := json.Marshal(stopCompletedMsg{
		EventID: uuid.NewString(),
		RouteID: routeID,
		Stop:    stop,
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish("fleet.stop.completed", data)
	return err
}

func (p *Publisher) PublishRouteStatus(ctx context.Context, routeID string, status domain.RouteStatus) error {
	data, err := json.Marshal(routeStatusMsg{
		EventID: uuid.NewString(),
		RouteID: routeID,
		Status:  status,
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish("fleet.route.status", data)
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
