package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "previewer.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, DefaultAPIPort, cfg.API.Port)
	require.Equal(t, DefaultRelayPort, cfg.Relay.Port)
	require.Equal(t, DefaultFrontendOrigin, cfg.API.FrontendOrigin)
	require.Equal(t, ProvisionerProcess, cfg.Provisioner.Type)
	require.Equal(t, 2*time.Minute, cfg.Provisioner.Timeout)
	require.InDelta(t, 1.0, cfg.Provisioner.CPU, 0)
	require.InDelta(t, 2.0, cfg.Provisioner.MemoryGB, 0)
	require.Equal(t, StorageFS, cfg.Storage.Type)
	require.Equal(t, CloneGitCLI, cfg.Worker.CloneMethod)
	require.Equal(t, "dist", cfg.Worker.OutputDir)
	require.Equal(t, 4, cfg.Worker.UploadConcurrency)
	require.Equal(t, "public, max-age=60", cfg.Storage.CacheControl)
	require.Equal(t, 168*time.Hour, cfg.Ledger.Retention)
	require.Equal(t, []string{"worker"}, cfg.Provisioner.Process.Args)
	require.Equal(t, "build-outputs", cfg.Storage.Container)
	require.Equal(t, "__outputs", cfg.Storage.Prefix)
	require.Equal(t, "https://preview.example.com", cfg.API.PreviewBase)
	require.Equal(t, "build-", cfg.Provisioner.NamePrefix)
}

func TestLoad_StorageRootIsAbsolute(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(cfg.Storage.Root))
	require.Equal(t, filepath.Join(dir, DefaultStorageRoot), cfg.Storage.Root)

	t.Setenv("STORAGE_ROOT", "relative/previews")
	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "relative", "previews"), cfg.Storage.Root)
}

func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_BLOB_ACCOUNT", "previewacct")
	path := writeConfig(t, `
provisioner:
  type: ACI
  builder_image: registry.example.com/builder:1
  timeout: 30s
  azure:
    subscription_id: sub
    resource_group: rg
storage:
  type: azblob
  account: ${TEST_BLOB_ACCOUNT}
  container: previews
  prefix: __outputs
log:
  level: DEBUG
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ProvisionerACI, cfg.Provisioner.Type)
	require.Equal(t, 30*time.Second, cfg.Provisioner.Timeout)
	require.Equal(t, "previewacct", cfg.Storage.Account)
	require.Equal(t, "https://previewacct.blob.core.windows.net", cfg.Storage.BaseURL)
	require.Equal(t, LogLevelDebug, cfg.Log.Level)
	require.Equal(t, LogFormatJSON, cfg.Log.Format)
	require.NoError(t, cfg.ValidateAPI())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "api:\n  port: 7000\n")
	t.Setenv("PORT", "7100")
	t.Setenv("SOCKET_PORT", "7102")
	t.Setenv("BUILDER_IMAGE", "builder:env")
	t.Setenv("BUS_URL", "nats://bus:4222")
	t.Setenv("UPLOAD_CONCURRENCY", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7100, cfg.API.Port)
	require.Equal(t, 7102, cfg.Relay.Port)
	require.Equal(t, "builder:env", cfg.Provisioner.BuilderImage)
	require.Equal(t, "nats://bus:4222", cfg.Bus.URL)
	require.Equal(t, 8, cfg.Worker.UploadConcurrency)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Run("bad integer", func(t *testing.T) {
		t.Setenv("PORT", "eighty")
		_, err := Load("")
		require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	})
	t.Run("unknown provisioner", func(t *testing.T) {
		t.Setenv("PROVISIONER_TYPE", "kubernetes")
		_, err := Load("")
		require.Error(t, err)
		require.Contains(t, err.Error(), "provisioner type")
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	})
}

func TestValidateAPI(t *testing.T) {
	cfg := Default()
	cfg.Provisioner.Type = ProvisionerACI
	cfg.Provisioner.BuilderImage = ""

	err := cfg.ValidateAPI()
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	require.Contains(t, err.Error(), "builder image")

	cfg.Provisioner.BuilderImage = "builder:1"
	err = cfg.ValidateAPI()
	require.Contains(t, err.Error(), "subscription")

	cfg.Provisioner.Azure = AzureConfig{SubscriptionID: "s", ResourceGroup: "rg"}
	cfg.Storage.Type = StorageAzBlob
	err = cfg.ValidateAPI()
	require.Contains(t, err.Error(), "storage account")
}

func TestValidateWorker(t *testing.T) {
	cfg := Default()
	require.ErrorContains(t, cfg.ValidateWorker(), "project id")

	cfg.Worker.ProjectID = "brave-lion-42"
	require.ErrorContains(t, cfg.ValidateWorker(), "git repository URL")

	cfg.Worker.GitURL = "https://example.com/r.git"
	require.NoError(t, cfg.ValidateWorker())
}

func TestValidateProxy(t *testing.T) {
	cfg := Default()
	cfg.Storage.BaseURL = "http://127.0.0.1:10000"
	require.ErrorContains(t, cfg.ValidateProxy(), "https")

	cfg.Proxy.AllowInsecure = true
	require.NoError(t, cfg.ValidateProxy())

	cfg.Storage.BaseURL = "https://acct.blob.core.windows.net"
	cfg.Proxy.AllowInsecure = false
	require.NoError(t, cfg.ValidateProxy())

	cfg.Storage.Container = ""
	require.ErrorContains(t, cfg.ValidateProxy(), "container")
}

func TestValidateProxy_ReadsFSStoreWithoutBaseURL(t *testing.T) {
	cfg := Default()
	require.True(t, cfg.ProxyReadsStore())
	require.NoError(t, cfg.ValidateProxy())

	cfg.Storage.Type = StorageAzBlob
	cfg.Storage.Account = ""
	require.False(t, cfg.ProxyReadsStore())
	require.ErrorContains(t, cfg.ValidateProxy(), "base URL")
}

func TestLogLevel(t *testing.T) {
	require.Equal(t, LogLevelWarn, NormalizeLogLevel(" WARN "))
	require.Equal(t, LogLevelInfo, NormalizeLogLevel("verbose"))
	require.Equal(t, LogFormatText, NormalizeLogFormat(""))
	require.Equal(t, "DEBUG", LogLevelDebug.SlogLevel().String())
}
