package activitymap

import (
	"context"
	"maps"
	"strings"
	"time"

	accounts "github.com/goliatone/go-accounts"
)

// MetadataKeyActorType holds ActorRef.Type in the normalized metadata
const MetadataKeyActorType = "actor_type"

const (
	Channel    = "accounts"
	ObjectType = "account"
	// SystemActor is the actor of events with neither actor nor account
	SystemActor = "system"
)

// Normalized is the flat actor/verb/object shape shipped to log and
// audit pipelines
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Normalize flattens event. The source metadata is copied, never mutated.
func Normalize(event accounts.ActivityEvent) Normalized {
	actorID := strings.TrimSpace(event.Actor.ID)
	if actorID == "" {
		actorID = strings.TrimSpace(event.AccountID)
	}
	if actorID == "" {
		actorID = SystemActor
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var metadata map[string]any
	if len(event.Metadata) > 0 {
		metadata = maps.Clone(event.Metadata)
	}
	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, ok := metadata[MetadataKeyActorType]; !ok {
			metadata[MetadataKeyActorType] = actorType
		}
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: ObjectType,
		ObjectID:   strings.TrimSpace(event.AccountID),
		Channel:    Channel,
		Metadata:   metadata,
		OccurredAt: occurredAt,
	}
}

// LogSink returns an ActivitySink writing every event, normalized, at
// info level
func LogSink(logger accounts.Logger) accounts.ActivitySink {
	if logger == nil {
		logger = accounts.DefaultLogger()
	}

	return accounts.ActivitySinkFunc(func(_ context.Context, event accounts.ActivityEvent) error {
		n := Normalize(event)
		logger.Info("activity",
			"verb", n.Verb,
			"actor_id", n.ActorID,
			"object_type", n.ObjectType,
			"object_id", n.ObjectID,
			"channel", n.Channel,
			"metadata", n.Metadata,
			"occurred_at", n.OccurredAt,
		)
		return nil
	})
}
