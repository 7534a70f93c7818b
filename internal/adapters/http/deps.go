package http

import (
	"github.com/nats-io/nats.go"

	"github.com/ibaiondo/fleetroute/internal/adapters/postgres"
	"github.com/ibaiondo/fleetroute/internal/adapters/valkey"
	"github.com/ibaiondo/fleetroute/internal/core/ports"
	"github.com/ibaiondo/fleetroute/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Routes     *usecases.RouteService
	Sequencing *usecases.SequencingService
	Ingest     *usecases.IngestService
	Progress   *usecases.ProgressService
	Positions  ports.PositionRepository
	Events     ports.GeofenceEventRepository
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache
}
