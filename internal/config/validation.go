package config

import (
	"net/url"
	"strings"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

// ValidateAPI checks what the dispatcher needs before it accepts requests:
// a builder image, a storage target and provisioner credentials.
func (c *Config) ValidateAPI() error {
	if strings.TrimSpace(c.Provisioner.BuilderImage) == "" {
		return missing("builder image", "BUILDER_IMAGE")
	}
	if c.Provisioner.Type == ProvisionerACI {
		if c.Provisioner.Azure.SubscriptionID == "" {
			return missing("azure subscription id", "AZURE_SUBSCRIPTION_ID")
		}
		if c.Provisioner.Azure.ResourceGroup == "" {
			return missing("azure resource group", "AZURE_RESOURCE_GROUP")
		}
	}
	if c.API.PreviewBase != "" {
		if _, err := url.Parse(c.API.PreviewBase); err != nil {
			return ferrors.ConfigError("invalid preview base URL").WithCause(err).Build()
		}
	}
	return c.validateStorage()
}

// ValidateWorker checks the launch environment of a worker.
func (c *Config) ValidateWorker() error {
	if c.Worker.ProjectID == "" {
		return missing("project id", "PROJECT_ID")
	}
	if c.Worker.GitURL == "" {
		return missing("git repository URL", "GIT_REPOSITORY_URL")
	}
	return c.validateStorage()
}

// ValidateProxy checks the upstream the proxy forwards to. Plain http is
// accepted only when AllowInsecure is set. An fs store without a base URL
// is read directly.
func (c *Config) ValidateProxy() error {
	if c.Storage.Container == "" {
		return missing("storage container", "AZURE_BLOB_CONTAINER_NAME")
	}
	if c.ProxyReadsStore() {
		return nil
	}
	if c.Storage.BaseURL == "" {
		return missing("object store base URL", "STORAGE_BASE_URL")
	}
	u, err := url.Parse(c.Storage.BaseURL)
	if err != nil || u.Host == "" {
		return ferrors.ConfigError("invalid object store base URL").WithCause(err).
			WithContext("url", c.Storage.BaseURL).Build()
	}
	switch {
	case u.Scheme == "https":
	case u.Scheme == "http" && c.Proxy.AllowInsecure:
	default:
		return ferrors.ConfigError("object store base URL must use https").
			WithContext("scheme", u.Scheme).Build()
	}
	return nil
}

// ProxyReadsStore reports whether the proxy serves objects from the fs
// store itself rather than forwarding to an HTTP origin.
func (c *Config) ProxyReadsStore() bool {
	return c.Storage.Type == StorageFS && c.Storage.BaseURL == ""
}

func (c *Config) validateStorage() error {
	switch c.Storage.Type {
	case StorageAzBlob:
		if c.Storage.Account == "" {
			return missing("storage account", "AZURE_STORAGE_ACCOUNT_NAME")
		}
		if c.Storage.Container == "" {
			return missing("storage container", "AZURE_BLOB_CONTAINER_NAME")
		}
	case StorageFS:
		if c.Storage.Root == "" {
			return missing("storage root", "STORAGE_ROOT")
		}
	}
	return nil
}

func missing(what, env string) error {
	return ferrors.ConfigError(what+" is not configured").WithContext("env", env).Build()
}

func invalidEnum(err error) error {
	return ferrors.ConfigError("invalid configuration value").WithCause(err).Build()
}
