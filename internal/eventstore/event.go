package eventstore

import (
	"encoding/json"
	"time"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

// Event types written by the dispatcher.
const (
	TypeBuildQueued          = "build.queued"
	TypeBuildProvisionFailed = "build.provision_failed"
)

// Event is one ledger row.
type Event struct {
	ID        int64             `json:"id"`
	Project   string            `json:"projectSlug"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Dispatch is the payload of both dispatch event types.
type Dispatch struct {
	TraceID  string `json:"traceId"`
	GitURL   string `json:"gitURL"`
	Provider string `json:"provider,omitempty"`
	JobRef   string `json:"jobRef,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewBuildQueued records a successful provision.
func NewBuildQueued(project string, d Dispatch) (Event, error) {
	return newDispatchEvent(project, TypeBuildQueued, d)
}

// NewBuildProvisionFailed records a provision that never acknowledged.
func NewBuildProvisionFailed(project string, d Dispatch) (Event, error) {
	return newDispatchEvent(project, TypeBuildProvisionFailed, d)
}

func newDispatchEvent(project, typ string, d Dispatch) (Event, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return Event{}, ferrors.WrapError(err, ferrors.CategoryStorage, "marshal dispatch payload").
			WithContext("project_id", project).Build()
	}
	return Event{
		Project:   project,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  map[string]string{"traceId": d.TraceID},
	}, nil
}

// Dispatch decodes the payload of a dispatch event.
func (e Event) Dispatch() (Dispatch, error) {
	var d Dispatch
	if err := json.Unmarshal(e.Payload, &d); err != nil {
		return Dispatch{}, ferrors.WrapError(err, ferrors.CategoryStorage, "unmarshal dispatch payload").
			WithContext("event_id", e.ID).Build()
	}
	return d, nil
}
