package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// defaultInboxSize buffers bursts without blocking resolution requests.
const defaultInboxSize = 256

// Publisher hands events to the worker without blocking the caller. Emission
// is fail-open: a full inbox drops the event with a log line rather than
// slowing or failing the resolution that produced it.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewPublisher(logger *slog.Logger) *Publisher {
	return &Publisher{
		inbox:  make(chan Event, defaultInboxSize),
		logger: logger,
	}
}

// Inbox exposes the receive side for the worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Emit enqueues an event, assigning id and timestamp when unset. Safe on a
// nil receiver so the service runs without an audit trail in tests.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit inbox full, dropping event",
			"action", event.Action,
			"contact_id", event.ContactID,
		)
	}
}
