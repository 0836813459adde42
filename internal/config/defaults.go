package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/foundation/normalization"
)

const (
	DefaultAPIPort           = 9000
	DefaultRelayPort         = 9002
	DefaultProxyPort         = 8000
	DefaultFrontendOrigin    = "http://localhost:3000"
	DefaultProvisionTimeout  = 2 * time.Minute
	DefaultCPU               = 1.0
	DefaultMemoryGB          = 2.0
	DefaultNamePrefix        = "build-"
	DefaultLocation          = "eastus"
	DefaultWorkDir           = "output"
	DefaultOutputDir         = "dist"
	DefaultBuildCommand      = "npm install && npm run build"
	DefaultUploadConcurrency = 4
	DefaultPublishTimeout    = 5 * time.Second
	DefaultCacheControl      = "public, max-age=60"
	DefaultRelayQueueSize    = 64
	DefaultLedgerRetention   = 168 * time.Hour
	DefaultStorageRoot       = "previews"
	DefaultContainer         = "build-outputs"
	DefaultPrefix            = "__outputs"
	DefaultPreviewBase       = "https://preview.example.com"
)

var (
	provisionerTypes = normalization.NewNormalizer("provisioner type", map[string]ProvisionerType{
		"process": ProvisionerProcess,
		"aci":     ProvisionerACI,
	}, ProvisionerProcess)
	storageTypes = normalization.NewNormalizer("storage provider", map[string]StorageType{
		"fs":     StorageFS,
		"azblob": StorageAzBlob,
	}, StorageFS)
	cloneMethods = normalization.NewNormalizer("clone method", map[string]CloneMethod{
		"git":   CloneGitCLI,
		"gogit": CloneGoGit,
	}, CloneGitCLI)
)

// applyDefaults normalizes enumerations and fills zero values.
func applyDefaults(cfg *Config) error {
	cfg.Log.Level = NormalizeLogLevel(string(cfg.Log.Level))
	cfg.Log.Format = NormalizeLogFormat(string(cfg.Log.Format))

	var err error
	if cfg.Provisioner.Type, err = provisionerTypes.Parse(string(cfg.Provisioner.Type)); err != nil {
		return invalidEnum(err)
	}
	if cfg.Storage.Type, err = storageTypes.Parse(string(cfg.Storage.Type)); err != nil {
		return invalidEnum(err)
	}
	if cfg.Worker.CloneMethod, err = cloneMethods.Parse(string(cfg.Worker.CloneMethod)); err != nil {
		return invalidEnum(err)
	}

	if cfg.API.Port == 0 {
		cfg.API.Port = DefaultAPIPort
	}
	if cfg.API.PreviewBase == "" {
		cfg.API.PreviewBase = DefaultPreviewBase
	}
	if cfg.API.FrontendOrigin == "" {
		cfg.API.FrontendOrigin = DefaultFrontendOrigin
	}
	if cfg.Relay.Port == 0 {
		cfg.Relay.Port = DefaultRelayPort
	}
	if cfg.Relay.QueueSize <= 0 {
		cfg.Relay.QueueSize = DefaultRelayQueueSize
	}

	p := &cfg.Provisioner
	if p.Timeout <= 0 {
		p.Timeout = DefaultProvisionTimeout
	}
	if p.CPU <= 0 {
		p.CPU = DefaultCPU
	}
	if p.MemoryGB <= 0 {
		p.MemoryGB = DefaultMemoryGB
	}
	if p.NamePrefix == "" {
		p.NamePrefix = DefaultNamePrefix
	}
	if p.Azure.Location == "" {
		p.Azure.Location = DefaultLocation
	}
	if p.Type == ProvisionerProcess {
		if p.BuilderImage == "" {
			if exe, exeErr := os.Executable(); exeErr == nil {
				p.BuilderImage = exe
			}
		}
		if len(p.Process.Args) == 0 {
			p.Process.Args = []string{"worker"}
		}
	}

	s := &cfg.Storage
	if s.Type == StorageFS {
		if s.Root == "" {
			s.Root = DefaultStorageRoot
		}
		// Workers run in their own directories; a relative root would land
		// in a workspace that is removed when the worker exits.
		if s.Root, err = filepath.Abs(s.Root); err != nil {
			return ferrors.ConfigError("cannot resolve storage root").WithCause(err).Build()
		}
	}
	if s.Container == "" {
		s.Container = DefaultContainer
	}
	if s.Prefix == "" {
		s.Prefix = DefaultPrefix
	}
	if s.Type == StorageAzBlob && s.BaseURL == "" && s.Account != "" {
		s.BaseURL = fmt.Sprintf("https://%s.blob.core.windows.net", s.Account)
	}
	if s.CacheControl == "" {
		s.CacheControl = DefaultCacheControl
	}

	w := &cfg.Worker
	if w.WorkDir == "" {
		w.WorkDir = DefaultWorkDir
	}
	if w.OutputDir == "" {
		w.OutputDir = DefaultOutputDir
	}
	if w.BuildCommand == "" {
		w.BuildCommand = DefaultBuildCommand
	}
	if w.UploadConcurrency <= 0 {
		w.UploadConcurrency = DefaultUploadConcurrency
	}
	if w.PublishTimeout <= 0 {
		w.PublishTimeout = DefaultPublishTimeout
	}

	if cfg.Proxy.Port == 0 {
		cfg.Proxy.Port = DefaultProxyPort
	}
	if cfg.Ledger.Retention <= 0 {
		cfg.Ledger.Retention = DefaultLedgerRetention
	}
	return nil
}
