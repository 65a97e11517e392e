package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/notifications/websocket"
	"carbon-scribe/verification-registry/internal/workflow"
)

// MockBroadcaster is a mock implementation of Broadcaster
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Broadcast(message websocket.Message) error {
	args := m.Called(message)
	return args.Error(0)
}

func TestStageFeedPublishesTransition(t *testing.T) {
	at := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	b := new(MockBroadcaster)
	b.On("Broadcast", mock.MatchedBy(func(m websocket.Message) bool {
		ev, ok := m.Data.(workflow.Event)
		return m.Type == websocket.MessageTypeTransition &&
			assert.ObjectsAreEqual([]string{"pending", "landApproval"}, m.Queues) &&
			m.Timestamp.Equal(at) && ok && ev.ProjectID == "P1"
	})).Return(nil).Once()

	feed := NewStageFeed(b, zap.NewNop())
	feed.Publish(context.Background(), workflow.Event{
		Command:    workflow.CommandApproveLand,
		ProjectID:  "P1",
		From:       workflow.QueuePending,
		To:         workflow.QueueLandApproval,
		OccurredAt: at,
	})

	b.AssertExpectations(t)
}

func TestStageFeedRegistrationHasNoSource(t *testing.T) {
	b := new(MockBroadcaster)
	b.On("Broadcast", mock.MatchedBy(func(m websocket.Message) bool {
		return assert.ObjectsAreEqual([]string{"pending"}, m.Queues)
	})).Return(errors.New("broadcast channel full")).Once()

	feed := NewStageFeed(b, zap.NewNop())
	assert.NotPanics(t, func() {
		feed.Publish(context.Background(), workflow.Event{Command: workflow.CommandRegister, ProjectID: "P1", To: workflow.QueuePending})
	})
	b.AssertExpectations(t)
}
