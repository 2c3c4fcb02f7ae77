package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Topic the engine publishes audit events on.
const AuditTopic = "assessment.audit"

// Event action names, one per lifecycle transition.
const (
	ActionTestPublished   = "test.published"
	ActionTestClosed      = "test.closed"
	ActionTestArchived    = "test.archived"
	ActionTestUnpublished = "test.unpublished"
	ActionAttemptStarted  = "attempt.started"
	ActionAttemptSubmit   = "attempt.submitted"
	ActionAttemptGraded   = "attempt.graded"
)

// Event is one audit log entry. Events are advisory; publishing failures
// are logged and never fail the triggering request.
type Event struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Version    string    `json:"version"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Resource   string    `json:"resource"`
	ResourceID uint      `json:"resource_id"`
	Success    bool      `json:"success"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEvent fills the envelope fields.
func NewEvent(action, actorID, actorRole, resource string, resourceID uint, success bool) Event {
	return Event{
		ID:         uuid.NewString(),
		Source:     "assessment-engine",
		Version:    "1.0",
		Action:     action,
		ActorID:    actorID,
		ActorRole:  actorRole,
		Resource:   resource,
		ResourceID: resourceID,
		Success:    success,
		Timestamp:  time.Now().UTC(),
	}
}

// Publisher delivers audit events to the event log.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
