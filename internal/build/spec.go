package build

import (
	"maps"
	"slices"
)

// BuildRequest is the transient input of a dispatch call.
type BuildRequest struct {
	GitURL  string `json:"gitURL" validate:"required"`
	Slug    string `json:"slug,omitempty" validate:"omitempty,slug"`
	TraceID string `json:"-"`
}

// Resources is the single CPU/memory request made for a worker.
type Resources struct {
	CPU      float64 `json:"cpu"`
	MemoryGB float64 `json:"memoryGb"`
}

// Environment variable names handed to a worker at launch.
const (
	EnvGitURL           = "GIT_REPOSITORY_URL"
	EnvProjectID        = "PROJECT_ID"
	EnvTraceID          = "TRACE_ID"
	EnvStorageProvider  = "STORAGE_PROVIDER"
	EnvStorageAccount   = "AZURE_STORAGE_ACCOUNT_NAME"
	EnvStorageContainer = "AZURE_BLOB_CONTAINER_NAME"
	EnvStoragePrefix    = "AZURE_BLOB_PREFIX"
	EnvStorageRoot      = "STORAGE_ROOT"
	EnvCacheControl     = "AZURE_CACHE_CONTROL"
	EnvBusURL           = "BUS_URL"
)

// JobSpec describes one worker launch. It is immutable once constructed:
// the environment is copied in and only copies are handed out.
type JobSpec struct {
	projectSlug  string
	traceID      string
	gitURL       string
	builderImage string
	resources    Resources
	env          map[string]string
}

// NewJobSpec copies env so later mutation by the caller cannot leak into the spec.
func NewJobSpec(projectSlug, traceID, gitURL, builderImage string, res Resources, env map[string]string) JobSpec {
	return JobSpec{
		projectSlug:  projectSlug,
		traceID:      traceID,
		gitURL:       gitURL,
		builderImage: builderImage,
		resources:    res,
		env:          maps.Clone(env),
	}
}

func (s JobSpec) ProjectSlug() string  { return s.projectSlug }
func (s JobSpec) TraceID() string      { return s.traceID }
func (s JobSpec) GitURL() string       { return s.gitURL }
func (s JobSpec) BuilderImage() string { return s.builderImage }
func (s JobSpec) Resources() Resources { return s.resources }

// Environment returns a copy of the launch environment.
func (s JobSpec) Environment() map[string]string {
	return maps.Clone(s.env)
}

// Env returns a single environment value.
func (s JobSpec) Env(key string) (string, bool) {
	v, ok := s.env[key]
	return v, ok
}

// EnvList renders the environment as sorted KEY=VALUE pairs, the form
// os/exec and most container APIs expect.
func (s JobSpec) EnvList() []string {
	keys := slices.Sorted(maps.Keys(s.env))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+s.env[k])
	}
	return out
}
