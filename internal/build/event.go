package build

import (
	"encoding/json"
	"time"
)

// Stage is the pipeline phase a log event belongs to.
type Stage string

const (
	StageClone  Stage = "clone"
	StageBuild  Stage = "build"
	StageUpload Stage = "upload"
	StageError  Stage = "error"
	StageInfo   Stage = "info"
)

// CompleteMessage is the final info event of a successful job.
const CompleteMessage = "complete"

// LogEvent is one structured log line published by a worker.
type LogEvent struct {
	TraceID   string    `json:"traceId"`
	ProjectID string    `json:"projectId"`
	Stage     Stage     `json:"stage"`
	Message   string    `json:"log"`
	Timestamp time.Time `json:"timestamp"`
}

// ChannelPrefix prefixes every project log topic on the bus.
const ChannelPrefix = "logs:"

// Channel returns the bus topic for a project's log events.
func Channel(projectID string) string {
	return ChannelPrefix + projectID
}

// ChannelPattern matches every project log topic.
const ChannelPattern = ChannelPrefix + "*"

// Encode returns the JSON wire form of the event.
func (e LogEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// IsComplete reports whether e is the terminal success event.
func (e LogEvent) IsComplete() bool {
	return e.Stage == StageInfo && e.Message == CompleteMessage
}
