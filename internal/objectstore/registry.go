package objectstore

import (
	"context"

	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
)

// Factory opens a store for the given configuration.
type Factory func(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error)

// Registry selects a store implementation by configured type.
type Registry struct {
	factories map[config.StorageType]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[config.StorageType]Factory)}
}

// Register adds or replaces the factory for t.
func (r *Registry) Register(t config.StorageType, f Factory) *Registry {
	r.factories[t] = f
	return r
}

// Open returns a store of cfg.Type.
func (r *Registry) Open(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	f, ok := r.factories[cfg.Type]
	if !ok {
		return nil, ferrors.ConfigError("unsupported storage provider").
			WithContext("provider", string(cfg.Type)).Build()
	}
	return f(ctx, cfg)
}
