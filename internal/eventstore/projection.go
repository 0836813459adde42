package eventstore

import (
	"context"
	"slices"
	"time"
)

// Dispatch statuses in a history entry.
const (
	StatusQueued          = "queued"
	StatusProvisionFailed = "provision_failed"
)

// BuildRecord is the read model of one dispatch.
type BuildRecord struct {
	TraceID    string    `json:"traceId"`
	JobRef     string    `json:"jobRef,omitempty"`
	GitURL     string    `json:"gitURL"`
	Provider   string    `json:"provider,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// History returns the dispatches for a project, newest first. Events of
// unknown types are skipped.
func History(ctx context.Context, store Store, project string) ([]BuildRecord, error) {
	events, err := store.ByProject(ctx, project)
	if err != nil {
		return nil, err
	}
	out := make([]BuildRecord, 0, len(events))
	for _, e := range events {
		var status string
		switch e.Type {
		case TypeBuildQueued:
			status = StatusQueued
		case TypeBuildProvisionFailed:
			status = StatusProvisionFailed
		default:
			continue
		}
		d, err := e.Dispatch()
		if err != nil {
			return nil, err
		}
		out = append(out, BuildRecord{
			TraceID:    d.TraceID,
			JobRef:     d.JobRef,
			GitURL:     d.GitURL,
			Provider:   d.Provider,
			Status:     status,
			Error:      d.Error,
			RecordedAt: e.Timestamp,
		})
	}
	slices.Reverse(out)
	return out, nil
}
