package notifications

import (
	"context"

	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/notifications/websocket"
	"carbon-scribe/verification-registry/internal/workflow"
)

// Broadcaster delivers a message to connected feed clients.
type Broadcaster interface {
	Broadcast(message websocket.Message) error
}

// StageFeed publishes committed workflow transitions to live clients
type StageFeed struct {
	broadcaster Broadcaster
	logger      *zap.Logger
}

// NewStageFeed creates a new stage feed
func NewStageFeed(broadcaster Broadcaster, logger *zap.Logger) *StageFeed {
	return &StageFeed{broadcaster: broadcaster, logger: logger}
}

// Publish implements workflow.Publisher. Delivery is best effort.
func (f *StageFeed) Publish(ctx context.Context, event workflow.Event) {
	queues := []string{string(event.To)}
	if event.From != "" {
		queues = append([]string{string(event.From)}, queues...)
	}

	err := f.broadcaster.Broadcast(websocket.Message{
		Type:      websocket.MessageTypeTransition,
		Data:      event,
		Queues:    queues,
		Timestamp: event.OccurredAt,
	})
	if err != nil {
		f.logger.Warn("Failed to publish workflow event",
			zap.String("project_id", event.ProjectID),
			zap.String("command", string(event.Command)),
			zap.Error(err))
	}
}
