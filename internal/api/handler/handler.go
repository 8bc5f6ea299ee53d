package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
	"github.com/cuongbtq/docking-be/internal/metadata"
	"github.com/cuongbtq/docking-be/internal/scheduler"
	"github.com/cuongbtq/docking-be/internal/storage"
)

// DockingService is the scheduler surface the HTTP layer drives
type DockingService interface {
	Submit(ctx context.Context, req domain.SubmitRequest) (*scheduler.Submission, error)
	Status(ctx context.Context, id string) (*scheduler.StatusView, error)
	Job(ctx context.Context, id string) (*domain.Job, error)
	Cancel(ctx context.Context, id string) (*domain.Job, error)
	Rerun(ctx context.Context, id string) (*scheduler.Submission, error)
	List(ctx context.Context, filter storage.Filter) ([]*domain.Job, int, error)
	Stats() scheduler.Stats
	Ping(ctx context.Context) error
}

// BrokerStatus reports whether the lifecycle event broker is reachable
type BrokerStatus interface {
	IsConnected() bool
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Service     DockingService
	Enricher    *metadata.Enricher
	Broker      BrokerStatus // nil when lifecycle events are disabled
	ServiceName string
}

// DockingHandler handles docking job HTTP requests
type DockingHandler struct {
	logger      *slog.Logger
	service     DockingService
	enricher    *metadata.Enricher
	broker      BrokerStatus
	serviceName string
}

// NewDockingHandler creates a new DockingHandler instance
func NewDockingHandler(deps *Dependencies) *DockingHandler {
	enricher := deps.Enricher
	if enricher == nil {
		enricher = metadata.NewEnricher(metadata.NopResolver{}, deps.Logger)
	}
	return &DockingHandler{
		logger:      deps.Logger,
		service:     deps.Service,
		enricher:    enricher,
		broker:      deps.Broker,
		serviceName: deps.ServiceName,
	}
}
