package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

const contentTypeJSON = "application/json"

// Sender is the part of the RabbitMQ client the publisher needs
type Sender interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// RabbitPublisher sends events to a RabbitMQ exchange, routed by event type
type RabbitPublisher struct {
	sender Sender
	logger *slog.Logger
}

// NewRabbitPublisher creates a RabbitPublisher
func NewRabbitPublisher(sender Sender, logger *slog.Logger) *RabbitPublisher {
	return &RabbitPublisher{
		sender: sender,
		logger: logger,
	}
}

func (p *RabbitPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.sender.PublishWithRetry(ctx, event.Type, body, contentTypeJSON); err != nil {
		return fmt.Errorf("failed to publish %s for job %s: %w", event.Type, event.JobID, err)
	}

	p.logger.Debug("Event published",
		slog.String("type", event.Type),
		slog.String("job_id", event.JobID),
	)
	return nil
}
