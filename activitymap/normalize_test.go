package activitymap

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := accounts.ActivityEvent{
		EventType: accounts.ActivityEventSoftDeleted,
		Actor:     accounts.ActorRef{ID: "admin-42", Type: accounts.ActorTypeUser},
		UserID:    "user-100",
		From:      accounts.DeletionStateLive,
		To:        accounts.DeletionStateSoftDeleted,
		Metadata: map[string]any{
			"self_delete": false,
		},
		OccurredAt: ts,
	}

	out := Normalize(event)

	if out.ActorID != "admin-42" {
		t.Fatalf("expected actor_id admin-42, got %q", out.ActorID)
	}
	if out.Verb != string(accounts.ActivityEventSoftDeleted) {
		t.Fatalf("expected verb %q, got %q", accounts.ActivityEventSoftDeleted, out.Verb)
	}
	if out.ObjectType != "account" || out.ObjectID != "user-100" || out.Channel != "accounts" {
		t.Fatalf("unexpected object fields: %+v", out)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}
	if out.Metadata[MetadataKeyActorType] != accounts.ActorTypeUser {
		t.Fatalf("expected actor_type user, got %#v", out.Metadata[MetadataKeyActorType])
	}
	if out.Metadata[MetadataKeyFromState] != "live" || out.Metadata[MetadataKeyToState] != "soft_deleted" {
		t.Fatalf("unexpected state metadata: %#v", out.Metadata)
	}
	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeSystemEventUsesFallbackActor(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	out := Normalize(accounts.ActivityEvent{
		EventType: accounts.ActivityEventSyncCompleted,
		Actor:     accounts.ActorRef{Type: accounts.ActorTypeSystem},
		Metadata:  map[string]any{MetadataKeyActorType: "scheduler"},
	}, WithActorFallback("cron"), WithDefaultChannel("ops"), withClock(func() time.Time { return now }))

	if out.ActorID != "cron" {
		t.Fatalf("expected fallback actor cron, got %q", out.ActorID)
	}
	if out.ObjectID != "" {
		t.Fatalf("expected empty object id, got %q", out.ObjectID)
	}
	if out.Channel != "ops" {
		t.Fatalf("expected channel ops, got %q", out.Channel)
	}
	if out.Metadata[MetadataKeyActorType] != "scheduler" {
		t.Fatalf("existing actor_type must win, got %#v", out.Metadata[MetadataKeyActorType])
	}
	if !out.OccurredAt.Equal(now) {
		t.Fatalf("expected clock time, got %v", out.OccurredAt)
	}
}

func TestWriterSinkWritesJSONLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	for _, eventType := range []accounts.ActivityEventType{
		accounts.ActivityEventMembershipChanged,
		accounts.ActivityEventHardDeleted,
	} {
		if err := sink.Record(context.Background(), accounts.ActivityEvent{EventType: eventType, UserID: "u1"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var second Normalized
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if second.Verb != string(accounts.ActivityEventHardDeleted) || second.ObjectID != "u1" {
		t.Fatalf("unexpected record: %+v", second)
	}
}
