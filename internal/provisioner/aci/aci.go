// Package aci provisions workers as Azure Container Instances container
// groups: one Linux group per job, restart policy Never, a single "builder"
// container running the builder image with the job environment.
package aci

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerinstance/armcontainerinstance/v2"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/logfields"
	"git.home.luguber.info/inful/previewer/internal/provisioner"
)

const containerName = "builder"

// groupCreator submits a container group. It returns once Azure accepted the
// request; provisioning of the group continues in the background.
type groupCreator interface {
	Create(ctx context.Context, resourceGroup, name string, group armcontainerinstance.ContainerGroup) error
}

// Provisioner launches container groups in one resource group.
type Provisioner struct {
	creator       groupCreator
	resourceGroup string
	location      string
	prefix        string
	now           func() time.Time
}

// New returns a provisioner using the given credential.
func New(cfg config.ProvisionerConfig, cred azcore.TokenCredential) (*Provisioner, error) {
	if cfg.Azure.SubscriptionID == "" || cfg.Azure.ResourceGroup == "" {
		return nil, ferrors.ConfigError("azure subscription id and resource group are required").Build()
	}
	creator, err := newARMCreator(cfg.Azure.SubscriptionID, cred, nil)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to create container groups client").Build()
	}
	return &Provisioner{
		creator:       creator,
		resourceGroup: cfg.Azure.ResourceGroup,
		location:      cfg.Azure.Location,
		prefix:        cfg.NamePrefix,
		now:           time.Now,
	}, nil
}

// Factory authenticates with the default Azure credential chain.
func Factory(_ context.Context, cfg config.ProvisionerConfig) (provisioner.Provisioner, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to obtain Azure credential").Build()
	}
	return New(cfg, cred)
}

func (p *Provisioner) Name() string { return string(config.ProvisionerACI) }

// Provision submits the container group and returns its name as job ref.
// It does not wait for the image pull or the container start.
func (p *Provisioner) Provision(ctx context.Context, spec build.JobSpec) (provisioner.Handle, error) {
	name := provisioner.JobName(p.prefix, spec.ProjectSlug(), p.now())
	group := containerGroup(spec, p.location)

	if err := p.creator.Create(ctx, p.resourceGroup, name, group); err != nil {
		return provisioner.Handle{}, ferrors.WrapError(err, ferrors.CategoryProvisioning, "failed to create container group").
			WithContext("job_ref", name).Build()
	}
	slog.Info("Container group accepted",
		logfields.JobRef(name),
		logfields.ProjectID(spec.ProjectSlug()),
		logfields.TraceID(spec.TraceID()))
	return provisioner.Handle{JobRef: name}, nil
}

// containerGroup translates a job spec into the ARM resource definition.
func containerGroup(spec build.JobSpec, location string) armcontainerinstance.ContainerGroup {
	envList := spec.EnvList()
	env := make([]*armcontainerinstance.EnvironmentVariable, 0, len(envList))
	for _, kv := range envList {
		k, v := splitEnv(kv)
		env = append(env, &armcontainerinstance.EnvironmentVariable{Name: to.Ptr(k), Value: to.Ptr(v)})
	}
	res := spec.Resources()

	return armcontainerinstance.ContainerGroup{
		Location: to.Ptr(location),
		Tags: map[string]*string{
			"projectId": to.Ptr(spec.ProjectSlug()),
			"traceId":   to.Ptr(spec.TraceID()),
		},
		Properties: &armcontainerinstance.ContainerGroupPropertiesProperties{
			OSType:        to.Ptr(armcontainerinstance.OperatingSystemTypesLinux),
			RestartPolicy: to.Ptr(armcontainerinstance.ContainerGroupRestartPolicyNever),
			Containers: []*armcontainerinstance.Container{{
				Name: to.Ptr(containerName),
				Properties: &armcontainerinstance.ContainerProperties{
					Image: to.Ptr(spec.BuilderImage()),
					Resources: &armcontainerinstance.ResourceRequirements{
						Requests: &armcontainerinstance.ResourceRequests{
							CPU:        to.Ptr(res.CPU),
							MemoryInGB: to.Ptr(res.MemoryGB),
						},
					},
					EnvironmentVariables: env,
				},
			}},
		},
	}
}

func splitEnv(kv string) (string, string) {
	k, v, _ := strings.Cut(kv, "=")
	return k, v
}

type armCreator struct {
	client *armcontainerinstance.ContainerGroupsClient
}

func newARMCreator(subscriptionID string, cred azcore.TokenCredential, opts *arm.ClientOptions) (armCreator, error) {
	client, err := armcontainerinstance.NewContainerGroupsClient(subscriptionID, cred, opts)
	if err != nil {
		return armCreator{}, err
	}
	return armCreator{client: client}, nil
}

// Create stops at the accepted create request; the poller is dropped.
func (a armCreator) Create(ctx context.Context, resourceGroup, name string, group armcontainerinstance.ContainerGroup) error {
	_, err := a.client.BeginCreateOrUpdate(ctx, resourceGroup, name, group, nil)
	return err
}
