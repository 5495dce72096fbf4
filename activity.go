package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSoftDeleted       ActivityEventType = "account.soft_deleted"
	ActivityEventHardDeleted       ActivityEventType = "account.hard_deleted"
	ActivityEventMembershipChanged ActivityEventType = "account.membership_changed"
	ActivityEventSyncCompleted     ActivityEventType = "account.sync_completed"
)

// ActorRef identifies who triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

// ActorFromCaller builds an ActorRef for an authenticated caller.
func ActorFromCaller(caller *Caller) ActorRef {
	if caller == nil {
		return ActorRef{Type: ActorTypeSystem}
	}
	return ActorRef{ID: caller.Subject, Type: ActorTypeUser}
}

// ActivityEvent describes an account change for logs and telemetry.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	From       DeletionState
	To         DeletionState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events. Sinks are best effort.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// ActivitySinks fans an event out to every sink, returning the first error.
type ActivitySinks []ActivitySink

// Record implements ActivitySink.
func (s ActivitySinks) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewLoggingActivitySink writes each event to logger at info level.
func NewLoggingActivitySink(logger Logger) ActivitySink {
	logger = normalizeLogger(logger)
	return ActivitySinkFunc(func(_ context.Context, event ActivityEvent) error {
		args := []any{
			"event", event.EventType,
			"user_id", event.UserID,
			"actor", event.Actor.ID,
			"actor_type", event.Actor.Type,
		}
		if event.From != "" || event.To != "" {
			args = append(args, "from", event.From, "to", event.To)
		}
		for k, v := range event.Metadata {
			args = append(args, k, v)
		}
		logger.Info("account activity", args...)
		return nil
	})
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity stamps and publishes event; sink failures are logged only.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now func() time.Time, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed", "event", event.EventType, "user_id", event.UserID, "error", err)
	}
}
