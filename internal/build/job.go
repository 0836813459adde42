package build

import (
	"fmt"
	"sync"
)

// Status is a BuildJob lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusCloning   Status = "cloning"
	StatusBuilding  Status = "building"
	StatusUploading Status = "uploading"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
)

// successor is the only legal forward step from each non-terminal state.
var successor = map[Status]Status{
	StatusQueued:    StatusCloning,
	StatusCloning:   StatusBuilding,
	StatusBuilding:  StatusUploading,
	StatusUploading: StatusDone,
}

// stageOf maps a running status to the stage a failure in it is attributed to.
var stageOf = map[Status]Stage{
	StatusQueued:    StageClone,
	StatusCloning:   StageClone,
	StatusBuilding:  StageBuild,
	StatusUploading: StageUpload,
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// BuildJob tracks the status of one worker execution. Transitions are
// monotonic: forward one step at a time, or into Failed from any
// non-terminal state.
type BuildJob struct {
	ProjectSlug string
	TraceID     string

	mu          sync.Mutex
	status      Status
	failedStage Stage
	observers   []func(from, to Status)
}

// NewBuildJob creates a job in the Queued state.
func NewBuildJob(projectSlug, traceID string) *BuildJob {
	return &BuildJob{ProjectSlug: projectSlug, TraceID: traceID, status: StatusQueued}
}

// OnTransition registers fn to be called after every successful transition.
func (j *BuildJob) OnTransition(fn func(from, to Status)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.observers = append(j.observers, fn)
}

// Status returns the current status and, when failed, the failing stage.
func (j *BuildJob) Status() (Status, Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, j.failedStage
}

// Advance moves to the next state on the success path. to must be the
// direct successor of the current state.
func (j *BuildJob) Advance(to Status) error {
	j.mu.Lock()
	from := j.status
	if from.Terminal() {
		j.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	if successor[from] != to {
		j.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	j.status = to
	observers := j.observers
	j.mu.Unlock()

	for _, fn := range observers {
		fn(from, to)
	}
	return nil
}

// Fail moves the job into Failed(stage of the current state). It is the
// only way out of a running state other than Advance.
func (j *BuildJob) Fail() (Stage, error) {
	j.mu.Lock()
	from := j.status
	if from.Terminal() {
		j.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	j.status = StatusFailed
	j.failedStage = stageOf[from]
	stage := j.failedStage
	observers := j.observers
	j.mu.Unlock()

	for _, fn := range observers {
		fn(from, StatusFailed)
	}
	return stage, nil
}

// String renders "failed(upload)" style labels.
func (j *BuildJob) String() string {
	status, stage := j.Status()
	if status == StatusFailed {
		return fmt.Sprintf("%s(%s)", status, stage)
	}
	return string(status)
}
