// Package syncq buffers document mutations and write-behinds them to the
// search index in debounced, batched bulk calls.
package syncq

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/assetgrid/searchsync/internal/domain"
	"github.com/assetgrid/searchsync/internal/domain/document"
	domtask "github.com/assetgrid/searchsync/internal/domain/reindex"
	"github.com/assetgrid/searchsync/internal/es"
	"github.com/assetgrid/searchsync/internal/index/registry"
	"github.com/assetgrid/searchsync/internal/metrics"
)

// Action is the kind of mutation an entry carries.
type Action string

// Mutation kinds.
const (
	ActionUpsert Action = "upsert"
	ActionDelete Action = "delete"
)

// Entry is one buffered mutation. Doc is nil for deletions. An entry always
// carries full document state, never a delta, so a later flush overwriting
// an earlier one is last-write-wins at the document level.
type Entry struct {
	DocID  string
	Doc    *document.Document
	Action Action
	Tenant string
	Env    string
}

// Bulker submits one bulk request.
type Bulker interface {
	Bulk(ctx context.Context, items []es.BulkItem) error
}

// Conns resolves tenant+environment to a bulk connection.
type Conns interface {
	Bulker(tenant, env string) (Bulker, error)
}

// ConnFunc adapts a resolver function to Conns.
type ConnFunc func(tenant, env string) (Bulker, error)

// Bulker resolves the connection.
func (f ConnFunc) Bulker(tenant, env string) (Bulker, error) { return f(tenant, env) }

// Tasks reads the pending reindex task for a tenant+environment.
type Tasks interface {
	Get(ctx context.Context, tenant, env string) (*domtask.Task, error)
}

// Queue is the write-behind sync buffer. Enqueue never blocks; a debounce
// timer triggers a single-flight flush that drains and bulk-submits the
// head of the queue.
type Queue struct {
	clock    Clock
	debounce time.Duration
	maxBatch int
	conns    Conns
	tasks    Tasks
	log      *zap.Logger

	mu        sync.Mutex
	entries   []Entry
	flushing  bool
	scheduled bool
}

// New creates a sync queue. maxBatch stays below the engine's native
// indexing limit so a flush never amplifies duplicate work from concurrent
// reindex-copy traffic.
func New(conns Conns, tasks Tasks, clock Clock, debounce time.Duration, maxBatch int, log *zap.Logger) *Queue {
	return &Queue{
		clock:    clock,
		debounce: debounce,
		maxBatch: maxBatch,
		conns:    conns,
		tasks:    tasks,
		log:      log,
	}
}

// Enqueue buffers a mutation and arms the debounce timer.
func (q *Queue) Enqueue(docID string, doc *document.Document, action Action, tenant, env string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, Entry{
		DocID:  docID,
		Doc:    doc,
		Action: action,
		Tenant: tenant,
		Env:    env,
	})
	metrics.SyncQueueDepth.Set(float64(len(q.entries)))

	if !q.scheduled && !q.flushing {
		q.scheduled = true
		q.clock.AfterFunc(q.debounce, q.flush)
	}
}

// Len returns the number of buffered entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// flush drains up to maxBatch entries and submits one bulk call per
// tenant+environment group. Single-flight: overlapping timers while a flush
// runs are absorbed, the running flush reschedules if backlog remains.
func (q *Queue) flush() {
	q.mu.Lock()
	q.scheduled = false
	if q.flushing || len(q.entries) == 0 {
		q.mu.Unlock()
		return
	}
	q.flushing = true

	n := len(q.entries)
	if n > q.maxBatch {
		n = q.maxBatch
	}
	batch := make([]Entry, n)
	copy(batch, q.entries[:n])
	q.entries = q.entries[n:]
	metrics.SyncQueueDepth.Set(float64(len(q.entries)))
	q.mu.Unlock()

	metrics.SyncFlushBatch.Observe(float64(n))

	ctx := context.Background()
	for tenant, envs := range partition(batch) {
		for env, entries := range envs {
			q.flushGroup(ctx, tenant, env, entries)
		}
	}

	q.mu.Lock()
	q.flushing = false
	if len(q.entries) > 0 && !q.scheduled {
		q.scheduled = true
		q.clock.AfterFunc(q.debounce, q.flush)
	}
	q.mu.Unlock()
}

// flushGroup builds and submits the bulk body for one tenant+environment.
// Failures are logged and the batch dropped; any later mutation of the same
// documents re-syncs them.
func (q *Queue) flushGroup(ctx context.Context, tenant, env string, entries []Entry) {
	// Read the task fresh on every flush. Caching the answer across a flush
	// boundary could dual-write against an already cut-over generation.
	task, err := q.tasks.Get(ctx, tenant, env)
	if err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
		// Writing live-only here could leave the in-flight copy missing
		// these mutations for good. Drop the group like a bulk failure.
		metrics.SyncFlushErrors.Inc()
		q.log.Error("sync flush dropped, task lookup failed",
			zap.String("tenant", tenant), zap.String("env", env), zap.Error(err))
		return
	}

	if task != nil && task.ESTaskID == "" {
		// Reservation only: the destination is not receiving copy traffic
		// yet, so a live write here is still picked up by the copy.
		task = nil
	}

	items := buildBulk(tenant, env, entries, task)

	bulker, err := q.conns.Bulker(tenant, env)
	if err != nil {
		metrics.SyncFlushErrors.Inc()
		q.log.Error("sync flush dropped, no connection",
			zap.String("tenant", tenant), zap.String("env", env), zap.Error(err))
		return
	}
	if err := bulker.Bulk(ctx, items); err != nil {
		metrics.SyncFlushErrors.Inc()
		q.log.Error("sync flush dropped",
			zap.String("tenant", tenant), zap.String("env", env),
			zap.Int("entries", len(entries)), zap.Error(err))
	}
}

// buildBulk emits the bulk items for a group. While a reindex task is
// pending every mutation is dual-written; upserts into the destination strip
// the in-migration attribute because the old mapping type cannot accept the
// new one there.
func buildBulk(tenant, env string, entries []Entry, task *domtask.Task) []es.BulkItem {
	live := registry.AliasName(tenant, env)
	newAlias := registry.AliasName(tenant, env, registry.AliasTagNew)

	items := make([]es.BulkItem, 0, len(entries)*2)
	for _, e := range entries {
		switch e.Action {
		case ActionDelete:
			items = append(items, es.BulkItem{Action: "delete", Index: live, ID: e.DocID})
			if task != nil {
				items = append(items, es.BulkItem{Action: "delete", Index: newAlias, ID: e.DocID})
			}
		case ActionUpsert:
			if e.Doc == nil {
				continue
			}
			items = append(items, es.BulkItem{
				Action: "index", Index: live, ID: e.DocID, Source: e.Doc.Source(),
			})
			if task != nil {
				items = append(items, es.BulkItem{
					Action: "index", Index: newAlias, ID: e.DocID,
					Source: e.Doc.WithoutAttribute(task.Attribute).Source(),
				})
			}
		}
	}
	return items
}

func partition(batch []Entry) map[string]map[string][]Entry {
	groups := make(map[string]map[string][]Entry)
	for _, e := range batch {
		envs, ok := groups[e.Tenant]
		if !ok {
			envs = make(map[string][]Entry)
			groups[e.Tenant] = envs
		}
		envs[e.Env] = append(envs[e.Env], e)
	}
	return groups
}
