package config

import "time"

// Config is the process configuration shared by the api, worker and proxy
// roles. Each role validates only the sections it needs.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	API         APIConfig         `yaml:"api"`
	Relay       RelayConfig       `yaml:"relay"`
	Provisioner ProvisionerConfig `yaml:"provisioner"`
	Storage     StorageConfig     `yaml:"storage"`
	Bus         BusConfig         `yaml:"bus"`
	Worker      WorkerConfig      `yaml:"worker"`
	Proxy       ProxyConfig       `yaml:"proxy"`
	Ledger      LedgerConfig      `yaml:"ledger"`
}

type LogConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// APIConfig configures the dispatch HTTP server.
type APIConfig struct {
	Port           int    `yaml:"port"`
	FrontendOrigin string `yaml:"frontend_origin"`
	// PreviewBase prefixes the preview URL returned to callers: <base>/<slug>.
	PreviewBase string `yaml:"preview_base"`
}

// RelayConfig configures the live log channel server.
type RelayConfig struct {
	Port      int `yaml:"port"`
	QueueSize int `yaml:"queue_size"` // per-connection outbound queue
}

type ProvisionerType string

const (
	ProvisionerProcess ProvisionerType = "process"
	ProvisionerACI     ProvisionerType = "aci"
)

type ProvisionerConfig struct {
	Type    ProvisionerType `yaml:"type"`
	Timeout time.Duration   `yaml:"timeout"`
	// BuilderImage is the container image for aci, or the worker executable
	// for the process provisioner.
	BuilderImage string  `yaml:"builder_image"`
	CPU          float64 `yaml:"cpu"`
	MemoryGB     float64 `yaml:"memory_gb"`
	NamePrefix   string  `yaml:"name_prefix"`

	Azure   AzureConfig   `yaml:"azure"`
	Process ProcessConfig `yaml:"process"`
}

type AzureConfig struct {
	SubscriptionID string `yaml:"subscription_id"`
	ResourceGroup  string `yaml:"resource_group"`
	Location       string `yaml:"location"`
}

// ProcessConfig configures local worker subprocesses.
type ProcessConfig struct {
	Args   []string `yaml:"args"`    // arguments placed before the environment; default ["worker"]
	LogDir string   `yaml:"log_dir"` // where worker stdout/stderr is captured; empty discards
	// WorkspaceRoot holds one working directory per running worker; empty
	// means the system temp directory.
	WorkspaceRoot string `yaml:"workspace_root"`
}

type StorageType string

const (
	StorageFS     StorageType = "fs"
	StorageAzBlob StorageType = "azblob"
)

type StorageConfig struct {
	Type      StorageType `yaml:"type"`
	Account   string      `yaml:"account"`
	Container string      `yaml:"container"`
	Prefix    string      `yaml:"prefix"`
	// Root is the base directory of the fs store.
	Root string `yaml:"root"`
	// BaseURL is the HTTP origin that serves stored objects. Defaults to
	// https://<account>.blob.core.windows.net for azblob.
	BaseURL      string `yaml:"base_url"`
	CacheControl string `yaml:"cache_control"`
}

type BusConfig struct {
	// URL of the NATS server. Empty disables log streaming.
	URL string `yaml:"url"`
}

type CloneMethod string

const (
	CloneGitCLI CloneMethod = "git"
	CloneGoGit  CloneMethod = "gogit"
)

// WorkerConfig is read by the worker role, mostly from the launch environment.
type WorkerConfig struct {
	ProjectID         string        `yaml:"project_id"`
	GitURL            string        `yaml:"git_url"`
	TraceID           string        `yaml:"trace_id"`
	WorkDir           string        `yaml:"work_dir"`
	OutputDir         string        `yaml:"output_dir"`
	BuildCommand      string        `yaml:"build_command"`
	CloneMethod       CloneMethod   `yaml:"clone_method"`
	UploadConcurrency int           `yaml:"upload_concurrency"`
	PublishTimeout    time.Duration `yaml:"publish_timeout"`
}

type ProxyConfig struct {
	Port          int  `yaml:"port"`
	AllowInsecure bool `yaml:"allow_insecure"`
}

// LedgerConfig configures the optional dispatch ledger.
type LedgerConfig struct {
	Path      string        `yaml:"path"` // empty disables the ledger
	Retention time.Duration `yaml:"retention"`
}
