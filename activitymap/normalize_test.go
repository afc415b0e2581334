package activitymap_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := accounts.ActivityEvent{
		EventType: accounts.ActivityEventDeleted,
		Actor:     accounts.ActorRef{ID: "admin-42", Type: "account"},
		AccountID: "acc-100",
		Metadata: map[string]any{
			"ticket": "SEC-204",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "admin-42" {
		t.Fatalf("expected actor_id admin-42, got %q", out.ActorID)
	}
	if out.Verb != string(accounts.ActivityEventDeleted) {
		t.Fatalf("expected verb %q, got %q", accounts.ActivityEventDeleted, out.Verb)
	}
	if out.ObjectType != "account" {
		t.Fatalf("expected object_type account, got %q", out.ObjectType)
	}
	if out.ObjectID != "acc-100" {
		t.Fatalf("expected object_id acc-100, got %q", out.ObjectID)
	}
	if out.Channel != "accounts" {
		t.Fatalf("expected channel accounts, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["ticket"] != "SEC-204" {
		t.Fatalf("expected metadata ticket SEC-204, got %#v", out.Metadata["ticket"])
	}
	if out.Metadata[activitymap.MetadataKeyActorType] != "account" {
		t.Fatalf("expected metadata actor_type account, got %#v", out.Metadata[activitymap.MetadataKeyActorType])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeKeepsExistingActorType(t *testing.T) {
	t.Parallel()

	event := accounts.ActivityEvent{
		EventType: accounts.ActivityEventPasswordResetSuccess,
		Actor:     accounts.ActorRef{Type: "account"},
		AccountID: "acc-200",
		Metadata: map[string]any{
			activitymap.MetadataKeyActorType: "existing",
		},
	}

	before := time.Now().UTC()
	out := activitymap.Normalize(event)

	if out.ActorID != "acc-200" {
		t.Fatalf("expected actor_id acc-200, got %q", out.ActorID)
	}
	if out.Metadata[activitymap.MetadataKeyActorType] != "existing" {
		t.Fatalf("expected existing actor_type preserved, got %#v", out.Metadata[activitymap.MetadataKeyActorType])
	}
	if out.OccurredAt.Before(before) {
		t.Fatalf("expected occurred_at to default to now, got %v", out.OccurredAt)
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  accounts.ActivityEvent
		expect string
	}{
		{
			name:   "uses actor id when present",
			event:  accounts.ActivityEvent{Actor: accounts.ActorRef{ID: "actor-1"}, AccountID: "acc-1"},
			expect: "actor-1",
		},
		{
			name:   "uses account id when actor id missing",
			event:  accounts.ActivityEvent{AccountID: "acc-2"},
			expect: "acc-2",
		},
		{
			name:   "uses the system actor when actor and account missing",
			event:  accounts.ActivityEvent{},
			expect: activitymap.SystemActor,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}

type captureLogger struct {
	msgs []string
	args [][]any
}

func (l *captureLogger) Debug(msg string, args ...any) {}
func (l *captureLogger) Warn(msg string, args ...any)  {}
func (l *captureLogger) Error(msg string, args ...any) {}
func (l *captureLogger) Info(msg string, args ...any) {
	l.msgs = append(l.msgs, msg)
	l.args = append(l.args, args)
}

func TestLogSink(t *testing.T) {
	logger := &captureLogger{}
	sink := activitymap.LogSink(logger)

	err := sink.Record(context.Background(), accounts.ActivityEvent{
		EventType: accounts.ActivityEventLoginSuccess,
		AccountID: "acc-1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(logger.msgs) != 1 || logger.msgs[0] != "activity" {
		t.Fatalf("expected one activity entry, got %v", logger.msgs)
	}

	args := logger.args[0]
	found := map[string]any{}
	for i := 0; i+1 < len(args); i += 2 {
		found[args[i].(string)] = args[i+1]
	}

	if found["verb"] != string(accounts.ActivityEventLoginSuccess) {
		t.Fatalf("expected verb %q, got %#v", accounts.ActivityEventLoginSuccess, found["verb"])
	}
	if found["object_id"] != "acc-1" {
		t.Fatalf("expected object_id acc-1, got %#v", found["object_id"])
	}
}
