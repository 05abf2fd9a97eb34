package reindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetgrid/searchsync/internal/domain/attribute"
	domtask "github.com/assetgrid/searchsync/internal/domain/reindex"
	"github.com/assetgrid/searchsync/internal/es"
	"github.com/assetgrid/searchsync/internal/index/registry"
)

// Engine is the consumer interface for the search-engine operations the
// orchestrator needs.
type Engine interface {
	GetMapping(ctx context.Context, name string) (map[string]any, error)
	GetSettings(ctx context.Context, name string) (map[string]any, error)
	PutSettings(ctx context.Context, name string, settings map[string]any) error
	UpdateAliases(ctx context.Context, actions []es.AliasAction) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	Reindex(ctx context.Context, body map[string]any) (string, error)
	TaskCompleted(ctx context.Context, taskID string) (bool, error)
}

// Conns resolves tenant+environment to an engine connection.
type Conns interface {
	Engine(tenant, env string) (Engine, error)
}

// ConnFunc adapts a resolver function to Conns.
type ConnFunc func(tenant, env string) (Engine, error)

// Engine resolves the connection.
func (f ConnFunc) Engine(tenant, env string) (Engine, error) { return f(tenant, env) }

// Generations creates and resolves index generations.
type Generations interface {
	Create(
		ctx context.Context, tenant, env string,
		attrs []attribute.Definition,
		useAlias bool, aliasTag string,
		customize registry.Customize,
	) (string, error)
	CurrentGeneration(ctx context.Context, tenant, env string) (string, error)
}

// Tasks persists reindex task records.
type Tasks interface {
	Put(ctx context.Context, task *domtask.Task) error
	Update(ctx context.Context, task *domtask.Task) error
	Get(ctx context.Context, tenant, env string) (*domtask.Task, error)
	Delete(ctx context.Context, tenant, env string) error
}

// Orchestrator drives the index-generation lifecycle per tenant+environment:
// none -> pending (dual-write) -> cutover -> none.
type Orchestrator struct {
	gens         Generations
	conns        Conns
	tasks        Tasks
	log          *zap.Logger
	origin       string
	cleanupDelay time.Duration
	schedule     func(d time.Duration, f func())
}

// NewOrchestrator creates a reindex orchestrator. cleanupDelay postpones
// old-generation deletion after cutover so an in-flight sync flush can
// finish against the old generation.
func NewOrchestrator(
	gens Generations, conns Conns, tasks Tasks,
	cleanupDelay time.Duration, log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		gens:         gens,
		conns:        conns,
		tasks:        tasks,
		log:          log,
		origin:       uuid.NewString(),
		cleanupDelay: cleanupDelay,
		schedule:     func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// ShouldReindex reports whether changing attrName to attrType requires a
// full reindex. A field not yet present in the live mapping is not a
// conflict; only an existing mapping with a different type is.
func (o *Orchestrator) ShouldReindex(
	ctx context.Context, tenant, env, attrName string, attrType attribute.Type,
) (bool, error) {
	required, err := attribute.FieldType(attrType)
	if err != nil {
		return false, err
	}

	engine, err := o.conns.Engine(tenant, env)
	if err != nil {
		return false, err
	}
	props, err := engine.GetMapping(ctx, registry.AliasName(tenant, env))
	if err != nil {
		return false, fmt.Errorf("read live mapping: %w", err)
	}

	existing, ok := mappedAttributeType(props, attrName)
	if !ok {
		return false, nil
	}
	return existing != required, nil
}

// Start begins a migration: creates the destination generation under the
// "new" alias, issues the background copy, and persists the task. A second
// concurrent task for the same tenant+environment is rejected.
//
// The copy runs with op_type create and conflicts proceed: the sync queue is
// dual-writing live documents into the destination at the same time, and a
// document it has already written must never be overwritten by stale copy
// traffic.
func (o *Orchestrator) Start(
	ctx context.Context, tenant, env string,
	attrs []attribute.Definition, triggeringAttr string,
) (*domtask.Task, error) {
	// Reserve the slot before touching the cluster: losing the SetNX race
	// after creating a generation would leave a second index under the
	// "new" alias, breaking the legitimate task's dual writes.
	task := &domtask.Task{
		Tenant:    tenant,
		Env:       env,
		Attribute: triggeringAttr,
		Origin:    o.origin,
		StartedAt: time.Now().UTC(),
	}
	if err := o.tasks.Put(ctx, task); err != nil {
		return nil, err
	}

	abort := func(dest string) {
		if dest != "" {
			engine, err := o.conns.Engine(tenant, env)
			if err == nil {
				err = engine.DeleteIndex(ctx, dest)
			}
			if err != nil && !errors.Is(err, es.ErrIndexNotFound) {
				o.log.Error("aborted reindex left destination behind",
					zap.String("tenant", tenant), zap.String("env", env),
					zap.String("dest", dest), zap.Error(err))
			}
		}
		if err := o.tasks.Delete(ctx, tenant, env); err != nil {
			o.log.Error("aborted reindex left task behind",
				zap.String("tenant", tenant), zap.String("env", env), zap.Error(err))
		}
	}

	source, err := o.gens.CurrentGeneration(ctx, tenant, env)
	if err != nil {
		abort("")
		return nil, err
	}

	dest, err := o.gens.Create(ctx, tenant, env, attrs, true, registry.AliasTagNew, copySpeedSettings)
	if err != nil {
		abort("")
		return nil, err
	}

	engine, err := o.conns.Engine(tenant, env)
	if err != nil {
		abort(dest)
		return nil, err
	}
	esTaskID, err := engine.Reindex(ctx, map[string]any{
		"source":    map[string]any{"index": source},
		"dest":      map[string]any{"index": dest, "op_type": "create"},
		"conflicts": "proceed",
	})
	if err != nil {
		abort(dest)
		return nil, fmt.Errorf("submit copy: %w", err)
	}

	task.SourceIndex = source
	task.DestIndex = dest
	task.ESTaskID = esTaskID
	if err := o.tasks.Update(ctx, task); err != nil {
		abort(dest)
		return nil, err
	}

	o.log.Info("reindex started",
		zap.String("tenant", tenant),
		zap.String("env", env),
		zap.String("source", source),
		zap.String("dest", dest),
		zap.String("attribute", triggeringAttr),
		zap.String("es_task", esTaskID),
	)
	return task, nil
}

// Completed reports whether the background copy of a task has finished. An
// expired engine task record counts as finished; Cutover re-checks the
// generations before acting.
func (o *Orchestrator) Completed(ctx context.Context, task *domtask.Task) (bool, error) {
	if task.ESTaskID == "" {
		// Reservation only: the copy has not been submitted yet.
		return false, nil
	}
	engine, err := o.conns.Engine(task.Tenant, task.Env)
	if err != nil {
		return false, err
	}
	done, err := engine.TaskCompleted(ctx, task.ESTaskID)
	if errors.Is(err, es.ErrTaskNotFound) {
		return true, nil
	}
	return done, err
}

// Cutover finishes a migration: restores the destination's replica/refresh
// settings from the source, atomically swaps the live alias, removes the
// task, and schedules delayed deletion of the source generation.
func (o *Orchestrator) Cutover(ctx context.Context, task *domtask.Task) error {
	engine, err := o.conns.Engine(task.Tenant, task.Env)
	if err != nil {
		return err
	}

	srcExists, err := engine.IndexExists(ctx, task.SourceIndex)
	if err != nil {
		return err
	}
	destExists, err := engine.IndexExists(ctx, task.DestIndex)
	if err != nil {
		return err
	}
	if !srcExists || !destExists {
		// Someone removed a generation under us. The task can never make
		// progress, so it is abandoned; surfaced loudly because this can
		// mask operator-caused data loss.
		o.log.Error("abandoning reindex task, generation missing",
			zap.String("tenant", task.Tenant),
			zap.String("env", task.Env),
			zap.String("source", task.SourceIndex),
			zap.Bool("source_exists", srcExists),
			zap.String("dest", task.DestIndex),
			zap.Bool("dest_exists", destExists),
		)
		return o.tasks.Delete(ctx, task.Tenant, task.Env)
	}

	srcSettings, err := engine.GetSettings(ctx, task.SourceIndex)
	if err != nil {
		return err
	}
	if err := engine.PutSettings(ctx, task.DestIndex, liveSettings(srcSettings)); err != nil {
		return err
	}

	live := registry.AliasName(task.Tenant, task.Env)
	err = engine.UpdateAliases(ctx, []es.AliasAction{
		{Remove: &es.AliasTarget{Index: task.SourceIndex, Alias: live}},
		{Add: &es.AliasTarget{Index: task.DestIndex, Alias: live}},
	})
	if err != nil {
		return fmt.Errorf("swap alias: %w", err)
	}

	if err := o.tasks.Delete(ctx, task.Tenant, task.Env); err != nil {
		return err
	}

	o.log.Info("reindex cut over",
		zap.String("tenant", task.Tenant),
		zap.String("env", task.Env),
		zap.String("live", task.DestIndex),
	)

	o.schedule(o.cleanupDelay, func() {
		o.cleanup(context.Background(), engine, task)
	})
	return nil
}

// cleanup removes the stale "new" alias and the old generation. Runs after
// the grace delay; failures are logged, the next reindex is unaffected.
func (o *Orchestrator) cleanup(ctx context.Context, engine Engine, task *domtask.Task) {
	newAlias := registry.AliasName(task.Tenant, task.Env, registry.AliasTagNew)
	err := engine.UpdateAliases(ctx, []es.AliasAction{
		{Remove: &es.AliasTarget{Index: task.DestIndex, Alias: newAlias}},
	})
	if err != nil {
		o.log.Warn("failed to drop stale new alias", zap.String("alias", newAlias), zap.Error(err))
	}
	if err := engine.DeleteIndex(ctx, task.SourceIndex); err != nil && !errors.Is(err, es.ErrIndexNotFound) {
		o.log.Warn("failed to delete old generation", zap.String("index", task.SourceIndex), zap.Error(err))
	}
}

// copySpeedSettings shrinks replicas and disables refresh on the destination
// generation for bulk-copy speed. Cutover restores the live values.
func copySpeedSettings(body map[string]any) map[string]any {
	settings, ok := body["settings"].(map[string]any)
	if !ok {
		settings = map[string]any{}
		body["settings"] = settings
	}
	settings["number_of_replicas"] = 0
	settings["refresh_interval"] = "-1"
	return body
}

// liveSettings extracts the replica/refresh values to copy onto the
// destination at cutover.
func liveSettings(src map[string]any) map[string]any {
	out := map[string]any{
		"number_of_replicas": "1",
		"refresh_interval":   "1s",
	}
	if v, ok := src["number_of_replicas"]; ok {
		out["number_of_replicas"] = v
	}
	if v, ok := src["refresh_interval"]; ok {
		out["refresh_interval"] = v
	}
	return out
}

// mappedAttributeType digs the current engine type of an attribute out of a
// mapping properties tree.
func mappedAttributeType(props map[string]any, attrName string) (string, bool) {
	attrs, ok := props["attributes"].(map[string]any)
	if !ok {
		return "", false
	}
	attrProps, ok := attrs["properties"].(map[string]any)
	if !ok {
		return "", false
	}
	field, ok := attrProps[attrName].(map[string]any)
	if !ok {
		return "", false
	}
	t, ok := field["type"].(string)
	return t, ok
}
