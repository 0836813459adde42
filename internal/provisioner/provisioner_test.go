package provisioner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

func TestJobName(t *testing.T) {
	now := time.UnixMilli(1735689600000)

	require.Equal(t, "build-brave-lion-42-1735689600000", JobName("build-", "brave-lion-42", now))

	long := strings.Repeat("a", 63)
	name := JobName("build-", long, now)
	require.LessOrEqual(t, len(name), 63)
	require.True(t, strings.HasPrefix(name, "build-aaa"))
	require.True(t, strings.HasSuffix(name, "-1735689600000"))

	// Trimming never leaves a double dash before the timestamp.
	name = JobName("build-", strings.Repeat("a", 42)+"-bbbbbb", now)
	require.NotContains(t, name, "--")
}

type stubProvisioner struct{}

func (stubProvisioner) Provision(context.Context, build.JobSpec) (Handle, error) {
	return Handle{JobRef: "stub"}, nil
}
func (stubProvisioner) Name() string { return "stub" }

func TestRegistry(t *testing.T) {
	r := NewRegistry().Register(config.ProvisionerProcess, func(context.Context, config.ProvisionerConfig) (Provisioner, error) {
		return stubProvisioner{}, nil
	})

	p, err := r.Open(context.Background(), config.ProvisionerConfig{Type: config.ProvisionerProcess})
	require.NoError(t, err)
	require.Equal(t, "stub", p.Name())

	_, err = r.Open(context.Background(), config.ProvisionerConfig{Type: config.ProvisionerACI})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}
