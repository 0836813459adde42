package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads .env and .env.local when present. godotenv never
// overrides variables already set in the process environment, so the first
// file to define a key wins over the second.
func loadEnvFiles() []string {
	var loaded []string
	for _, p := range []string{".env", ".env.local"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			loaded = append(loaded, p)
		}
	}
	return loaded
}

// applyEnv overlays environment variables onto cfg. The names are those
// used by the deployment manifests and by the dispatcher when launching a
// worker.
func applyEnv(cfg *Config) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := os.LookupEnv(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	var firstErr error
	num := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil && firstErr == nil {
				firstErr = invalidEnv(key, v, err)
				return
			}
			*dst = n
		}
	}
	float := func(dst *float64, key string) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil && firstErr == nil {
				firstErr = invalidEnv(key, v, err)
				return
			}
			*dst = f
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil && firstErr == nil {
				firstErr = invalidEnv(key, v, err)
				return
			}
			*dst = d
		}
	}
	boolean := func(dst *bool, key string) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil && firstErr == nil {
				firstErr = invalidEnv(key, v, err)
				return
			}
			*dst = b
		}
	}

	var level, format string
	str(&level, "LOG_LEVEL")
	if level != "" {
		cfg.Log.Level = NormalizeLogLevel(level)
	}
	str(&format, "LOG_FORMAT")
	if format != "" {
		cfg.Log.Format = NormalizeLogFormat(format)
	}

	num(&cfg.API.Port, "PORT")
	str(&cfg.API.FrontendOrigin, "FRONTEND_ORIGIN")
	str(&cfg.API.PreviewBase, "PREVIEW_URL_BASE")
	num(&cfg.Relay.Port, "SOCKET_PORT")

	var provType string
	str(&provType, "PROVISIONER_TYPE")
	if provType != "" {
		cfg.Provisioner.Type = ProvisionerType(provType)
	}
	dur(&cfg.Provisioner.Timeout, "PROVISIONER_TIMEOUT")
	str(&cfg.Provisioner.BuilderImage, "BUILDER_IMAGE")
	float(&cfg.Provisioner.CPU, "BUILDER_CPU")
	float(&cfg.Provisioner.MemoryGB, "BUILDER_MEMORY_GB")
	str(&cfg.Provisioner.NamePrefix, "AZURE_CONTAINER_GROUP_PREFIX")
	str(&cfg.Provisioner.Azure.SubscriptionID, "AZURE_SUBSCRIPTION_ID")
	str(&cfg.Provisioner.Azure.ResourceGroup, "AZURE_RESOURCE_GROUP")
	str(&cfg.Provisioner.Azure.Location, "AZURE_LOCATION")
	str(&cfg.Provisioner.Process.LogDir, "WORKER_LOG_DIR")
	str(&cfg.Provisioner.Process.WorkspaceRoot, "WORKER_WORKSPACE_ROOT")

	var storeType string
	str(&storeType, "STORAGE_PROVIDER")
	if storeType != "" {
		cfg.Storage.Type = StorageType(storeType)
	}
	str(&cfg.Storage.Account, "AZURE_STORAGE_ACCOUNT_NAME")
	str(&cfg.Storage.Container, "AZURE_BLOB_CONTAINER_NAME")
	str(&cfg.Storage.Prefix, "AZURE_BLOB_PREFIX")
	str(&cfg.Storage.Root, "STORAGE_ROOT")
	str(&cfg.Storage.BaseURL, "STORAGE_BASE_URL")
	str(&cfg.Storage.CacheControl, "AZURE_CACHE_CONTROL")

	str(&cfg.Bus.URL, "BUS_URL")

	str(&cfg.Worker.ProjectID, "PROJECT_ID")
	str(&cfg.Worker.GitURL, "GIT_REPOSITORY_URL")
	str(&cfg.Worker.TraceID, "TRACE_ID")
	str(&cfg.Worker.WorkDir, "WORK_DIR")
	str(&cfg.Worker.OutputDir, "OUTPUT_DIR")
	str(&cfg.Worker.BuildCommand, "BUILD_COMMAND")
	var clone string
	str(&clone, "CLONE_METHOD")
	if clone != "" {
		cfg.Worker.CloneMethod = CloneMethod(clone)
	}
	num(&cfg.Worker.UploadConcurrency, "UPLOAD_CONCURRENCY")

	num(&cfg.Proxy.Port, "PROXY_PORT")
	boolean(&cfg.Proxy.AllowInsecure, "PROXY_ALLOW_INSECURE")

	str(&cfg.Ledger.Path, "LEDGER_PATH")
	dur(&cfg.Ledger.Retention, "LEDGER_RETENTION")

	return firstErr
}
