package build

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildJob_SuccessPath(t *testing.T) {
	job := NewBuildJob("brave-lion-42", "trace-1")

	var seen []Status
	job.OnTransition(func(_, to Status) { seen = append(seen, to) })

	for _, next := range []Status{StatusCloning, StatusBuilding, StatusUploading, StatusDone} {
		require.NoError(t, job.Advance(next))
	}

	status, _ := job.Status()
	require.Equal(t, StatusDone, status)
	require.Equal(t, []Status{StatusCloning, StatusBuilding, StatusUploading, StatusDone}, seen)
}

func TestBuildJob_RejectsSkip(t *testing.T) {
	job := NewBuildJob("p", "t")
	require.NoError(t, job.Advance(StatusCloning))

	err := job.Advance(StatusUploading)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIllegalTransition))

	status, _ := job.Status()
	require.Equal(t, StatusCloning, status, "illegal transition must not change status")
}

func TestBuildJob_RejectsBackwards(t *testing.T) {
	job := NewBuildJob("p", "t")
	require.NoError(t, job.Advance(StatusCloning))
	require.NoError(t, job.Advance(StatusBuilding))

	require.ErrorIs(t, job.Advance(StatusCloning), ErrIllegalTransition)
}

func TestBuildJob_FailRecordsStage(t *testing.T) {
	tests := []struct {
		name  string
		steps []Status
		want  Stage
	}{
		{"queued", nil, StageClone},
		{"cloning", []Status{StatusCloning}, StageClone},
		{"building", []Status{StatusCloning, StatusBuilding}, StageBuild},
		{"uploading", []Status{StatusCloning, StatusBuilding, StatusUploading}, StageUpload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewBuildJob("p", "t")
			for _, s := range tt.steps {
				require.NoError(t, job.Advance(s))
			}
			stage, err := job.Fail()
			require.NoError(t, err)
			require.Equal(t, tt.want, stage)
			require.Equal(t, "failed("+string(tt.want)+")", job.String())
		})
	}
}

func TestBuildJob_TerminalStatesAreSinks(t *testing.T) {
	failed := NewBuildJob("p", "t")
	_, err := failed.Fail()
	require.NoError(t, err)
	require.ErrorIs(t, failed.Advance(StatusCloning), ErrTerminal)
	_, err = failed.Fail()
	require.ErrorIs(t, err, ErrTerminal)

	done := NewBuildJob("p", "t")
	for _, s := range []Status{StatusCloning, StatusBuilding, StatusUploading, StatusDone} {
		require.NoError(t, done.Advance(s))
	}
	_, err = done.Fail()
	require.ErrorIs(t, err, ErrTerminal)
	status, _ := done.Status()
	require.Equal(t, StatusDone, status)
}
