package search

import (
	"context"

	"github.com/assetgrid/searchsync/internal/domain/attribute"
	"github.com/assetgrid/searchsync/internal/es"
)

// Searcher executes native queries.
type Searcher interface {
	Search(ctx context.Context, index string, body map[string]any) (*es.SearchResult, error)
}

// Conns resolves tenant+environment to a query connection.
type Conns interface {
	Searcher(tenant, env string) (Searcher, error)
}

// ConnFunc adapts a resolver function to Conns.
type ConnFunc func(tenant, env string) (Searcher, error)

// Searcher resolves the connection.
func (f ConnFunc) Searcher(tenant, env string) (Searcher, error) { return f(tenant, env) }

// DefinitionSource supplies the tenant's current attribute definitions from
// the relational entity store.
type DefinitionSource interface {
	Definitions(ctx context.Context, tenant, env string) ([]attribute.Definition, error)
}
