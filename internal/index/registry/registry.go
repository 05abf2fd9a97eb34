// Package registry manages index generations and their aliases. Readers only
// ever see the stable alias name; physical generations carry a
// timestamp-derived tag.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/assetgrid/searchsync/internal/domain"
	"github.com/assetgrid/searchsync/internal/domain/attribute"
	"github.com/assetgrid/searchsync/internal/es"
	"github.com/assetgrid/searchsync/internal/index/template"
)

// DocType is the single document type this engine indexes.
const DocType = "asset"

// AliasTagNew marks the destination generation of a pending reindex.
const AliasTagNew = "new"

// Registry creates and resolves index generations for tenant+environment
// pairs.
type Registry struct {
	conns *es.Registry
}

// New creates an index registry.
func New(conns *es.Registry) *Registry {
	return &Registry{conns: conns}
}

// AliasName is the pure naming function for aliases. With a tag it names the
// tagged alias ("new" during reindex); without, the live alias.
func AliasName(tenant, env string, tag ...string) string {
	name := fmt.Sprintf("index_%s_%s_%s", DocType, tenant, env)
	if len(tag) > 0 && tag[0] != "" {
		name += "__" + tag[0]
	}
	return name
}

// Customize transforms the index creation body before submission. The
// reindex path uses it to zero replicas and disable refresh for bulk-copy
// speed.
type Customize func(body map[string]any) map[string]any

// Create builds a new physical generation for the tenant and optionally
// registers it under an alias tag. Returns the physical index name.
func (r *Registry) Create(
	ctx context.Context, tenant, env string,
	attrs []attribute.Definition,
	useAlias bool, aliasTag string,
	customize Customize,
) (string, error) {
	store, err := r.conns.Conn(tenant, env)
	if err != nil {
		return "", err
	}

	body, err := template.Build(DocType, attrs)
	if err != nil {
		return "", fmt.Errorf("build template: %w", err)
	}
	if customize != nil {
		body = customize(body)
	}

	name := AliasName(tenant, env, strconv.FormatInt(time.Now().UnixNano(), 10))
	if err := store.CreateIndex(ctx, name, body); err != nil {
		return "", fmt.Errorf("create generation: %w", err)
	}

	if useAlias {
		alias := AliasName(tenant, env, aliasTag)
		actions := []es.AliasAction{
			{Add: &es.AliasTarget{Index: name, Alias: alias}},
		}
		if err := store.UpdateAliases(ctx, actions); err != nil {
			return "", fmt.Errorf("register alias %s: %w", alias, err)
		}
	}

	return name, nil
}

// CurrentGeneration resolves the physical index owning the live alias.
func (r *Registry) CurrentGeneration(ctx context.Context, tenant, env string) (string, error) {
	store, err := r.conns.Conn(tenant, env)
	if err != nil {
		return "", err
	}
	indices, err := store.AliasIndices(ctx, AliasName(tenant, env))
	if err != nil {
		if errors.Is(err, es.ErrAliasNotFound) {
			return "", fmt.Errorf("%w: no live generation for %s/%s", domain.ErrNotFound, tenant, env)
		}
		return "", err
	}
	if len(indices) == 0 {
		return "", fmt.Errorf("%w: no live generation for %s/%s", domain.ErrNotFound, tenant, env)
	}
	return indices[0], nil
}

// EnsureIndex creates the first live generation for a tenant+environment
// when none exists yet. Returns the live generation's physical name.
func (r *Registry) EnsureIndex(ctx context.Context, tenant, env string, attrs []attribute.Definition) (string, error) {
	if name, err := r.CurrentGeneration(ctx, tenant, env); err == nil {
		return name, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	return r.Create(ctx, tenant, env, attrs, true, "", nil)
}

// Store exposes the underlying cluster connection for a tenant. Components
// that issue queries or bulk writes resolve it once per call.
func (r *Registry) Store(tenant, env string) (*es.Store, error) {
	return r.conns.Conn(tenant, env)
}
