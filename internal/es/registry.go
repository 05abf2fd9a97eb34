package es

import (
	"fmt"
	"strings"
	"sync"

	"github.com/assetgrid/searchsync/internal/domain"
)

// Registry resolves tenant+environment pairs to cached cluster connections.
//
// Connection parameters are looked up by "<tenant>:<env>" first, then
// "<tenant>", then "default". Stores are shared between callers whose
// parameters resolve to the same tuple. Missing parameters are a fatal
// configuration error and are never retried.
type Registry struct {
	configs map[string]Config

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates a registry over the configured connection map.
func NewRegistry(configs map[string]Config) *Registry {
	return &Registry{
		configs: configs,
		stores:  make(map[string]*Store),
	}
}

// Conn returns the store for a tenant and environment.
func (r *Registry) Conn(tenant, env string) (*Store, error) {
	cfg, ok := r.resolve(tenant, env)
	if !ok {
		return nil, fmt.Errorf("%w: tenant %q env %q", domain.ErrMissingConnection, tenant, env)
	}

	key := connKey(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[key]; ok {
		return s, nil
	}
	s, err := NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect tenant %q env %q: %w", tenant, env, err)
	}
	r.stores[key] = s
	return s, nil
}

func (r *Registry) resolve(tenant, env string) (Config, bool) {
	if cfg, ok := r.configs[tenant+":"+env]; ok {
		return cfg, true
	}
	if cfg, ok := r.configs[tenant]; ok {
		return cfg, true
	}
	cfg, ok := r.configs["default"]
	return cfg, ok
}

func connKey(cfg Config) string {
	return strings.Join(cfg.Addrs, ",") + "|" + cfg.Username + "|" + cfg.Password
}
