package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/xid"
)

const EventTypeVersionChanged = "version_changed"

// VersionChanged announces that a kind's remote version row was rewritten.
// Origin is the device whose push caused it, empty for server-side writes.
type VersionChanged struct {
	EventID    string      `json:"event_id"`
	EventType  string      `json:"event_type"`
	Kind       domain.Kind `json:"kind"`
	Name       string      `json:"name"`
	Timestamp  string      `json:"timestamp"`
	Origin     string      `json:"origin,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func NewVersionChanged(version domain.DataVersion, origin string) VersionChanged {
	return VersionChanged{
		EventID:    xid.New("evt"),
		EventType:  EventTypeVersionChanged,
		Kind:       version.ID,
		Name:       version.ID.Name(),
		Timestamp:  version.Timestamp,
		Origin:     origin,
		OccurredAt: time.Now().UTC(),
	}
}

func (e VersionChanged) Key() string {
	return fmt.Sprintf("version-%d", int(e.Kind))
}

func DecodeVersionChanged(value []byte) (VersionChanged, error) {
	var event VersionChanged
	if err := json.Unmarshal(value, &event); err != nil {
		return VersionChanged{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.EventType != EventTypeVersionChanged {
		return VersionChanged{}, fmt.Errorf("unexpected event type %q", event.EventType)
	}
	if !event.Kind.Valid() {
		return VersionChanged{}, fmt.Errorf("unknown kind %d", int(event.Kind))
	}
	return event, nil
}
