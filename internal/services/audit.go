package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/brightclass/assessment-engine/internal/events"
)

// publishAudit sends an audit event without blocking the request path. A
// failed publish is logged and dropped; the domain write already committed.
func publishAudit(ctx context.Context, logger *slog.Logger, publisher events.Publisher, event events.Event) {
	if publisher == nil {
		return
	}

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	go func() {
		defer cancel()
		if err := publisher.Publish(detached, event); err != nil {
			logger.Warn("audit event publish failed",
				"action", event.Action,
				"resource", event.Resource,
				"resource_id", event.ResourceID,
				"error", err)
		}
	}()
}
