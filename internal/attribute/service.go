// Package attribute handles attribute-definition changes: deciding between
// an in-place mapping update and a full reindex, and keeping the entity
// store and the index agreed on which attributes exist.
package attribute

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/assetgrid/searchsync/internal/domain/attribute"
	domtask "github.com/assetgrid/searchsync/internal/domain/reindex"
	"github.com/assetgrid/searchsync/internal/index/registry"
	"github.com/assetgrid/searchsync/internal/index/template"
)

// Engine is the consumer interface for mapping inspection and updates.
type Engine interface {
	GetMapping(ctx context.Context, name string) (map[string]any, error)
	PutMapping(ctx context.Context, name string, properties map[string]any) error
}

// Conns resolves tenant+environment to an engine connection.
type Conns interface {
	Engine(tenant, env string) (Engine, error)
}

// ConnFunc adapts a resolver function to Conns.
type ConnFunc func(tenant, env string) (Engine, error)

// Engine resolves the connection.
func (f ConnFunc) Engine(tenant, env string) (Engine, error) { return f(tenant, env) }

// Reindexer starts schema migrations.
type Reindexer interface {
	ShouldReindex(ctx context.Context, tenant, env, attrName string, attrType attribute.Type) (bool, error)
	Start(ctx context.Context, tenant, env string, attrs []attribute.Definition, triggeringAttr string) (*domtask.Task, error)
}

// Service applies attribute-definition saves to the index.
type Service struct {
	conns Conns
	reidx Reindexer
	log   *zap.Logger
}

// NewService creates an attribute service.
func NewService(conns Conns, reidx Reindexer, log *zap.Logger) *Service {
	return &Service{conns: conns, reidx: reidx, log: log}
}

// Save reconciles one changed (or new) attribute definition with the live
// index. all must be the tenant's complete definition set including the
// change, since a triggered reindex rebuilds the whole mapping from it.
//
// An error here must fail the caller's attribute save transaction: the
// store and the index are never allowed to disagree about which attributes
// exist.
func (s *Service) Save(
	ctx context.Context, tenant, env string,
	all []attribute.Definition, changed attribute.Definition,
) error {
	if err := changed.Validate(); err != nil {
		return err
	}

	needed, err := s.reidx.ShouldReindex(ctx, tenant, env, changed.Name, changed.Type)
	if err != nil {
		return err
	}
	if needed {
		if _, err := s.reidx.Start(ctx, tenant, env, all, changed.Name); err != nil {
			return err
		}
		return nil
	}

	// Same or brand-new field type: an additive put-mapping suffices.
	engine, err := s.conns.Engine(tenant, env)
	if err != nil {
		return err
	}
	mapping, err := template.AttributeMapping(changed.Type)
	if err != nil {
		return err
	}
	props := map[string]any{
		"attributes": map[string]any{
			"properties": map[string]any{
				changed.Name: mapping,
			},
		},
	}
	if err := engine.PutMapping(ctx, registry.AliasName(tenant, env), props); err != nil {
		return fmt.Errorf("map attribute %q: %w", changed.Name, err)
	}

	s.log.Debug("attribute mapped",
		zap.String("tenant", tenant),
		zap.String("env", env),
		zap.String("attribute", changed.Name),
		zap.String("type", string(changed.Type)),
	)
	return nil
}
