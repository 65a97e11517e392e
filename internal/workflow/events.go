package workflow

import (
	"context"
	"time"

	"carbon-scribe/verification-registry/internal/projects"
)

// Event describes a committed workflow change.
type Event struct {
	Command    Command                     `json:"command"`
	ProjectID  string                      `json:"projectId"`
	From       Queue                       `json:"from,omitempty"`
	To         Queue                       `json:"to"`
	Status     projects.VerificationStatus `json:"verificationStatus"`
	Message    string                      `json:"message,omitempty"`
	AssigneeID string                      `json:"assigneeId,omitempty"`
	Actor      string                      `json:"actor"`
	Counts     map[Queue]int               `json:"counts"`
	OccurredAt time.Time                   `json:"occurredAt"`
}

// Publisher receives events after their transaction commits. Publishing
// must not block the caller for long.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}
