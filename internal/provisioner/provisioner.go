// Package provisioner defines the compute capability the dispatcher launches
// workers through, plus a registry that picks an implementation by config.
package provisioner

import (
	"context"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

// Handle identifies a launched worker.
type Handle struct {
	JobRef string
}

// Provisioner launches one worker per JobSpec. Provision returns once the
// platform acknowledged the launch, not when the build finishes.
type Provisioner interface {
	Provision(ctx context.Context, spec build.JobSpec) (Handle, error)
	Name() string
}

// maxNameLen is the container group name limit on Azure and a safe bound
// for process names and log file names.
const maxNameLen = 63

// JobName builds "<prefix><slug>-<unixms>", trimming the slug so the result
// stays within 63 characters.
func JobName(prefix, slug string, now time.Time) string {
	suffix := "-" + strconv.FormatInt(now.UnixMilli(), 10)
	room := maxNameLen - len(prefix) - len(suffix)
	if room < 1 {
		room = 1
	}
	if len(slug) > room {
		slug = strings.TrimRight(slug[:room], "-")
	}
	return strings.ToLower(prefix + slug + suffix)
}

// Factory builds a provisioner from configuration.
type Factory func(ctx context.Context, cfg config.ProvisionerConfig) (Provisioner, error)

// Registry selects a provisioner implementation by configured type.
type Registry struct {
	factories map[config.ProvisionerType]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[config.ProvisionerType]Factory)}
}

// Register adds or replaces the factory for t.
func (r *Registry) Register(t config.ProvisionerType, f Factory) *Registry {
	r.factories[t] = f
	return r
}

// Open returns a provisioner of cfg.Type.
func (r *Registry) Open(ctx context.Context, cfg config.ProvisionerConfig) (Provisioner, error) {
	f, ok := r.factories[cfg.Type]
	if !ok {
		return nil, ferrors.ConfigError("unsupported provisioner type").
			WithContext("provider", string(cfg.Type)).Build()
	}
	return f(ctx, cfg)
}
