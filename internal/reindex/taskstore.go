package reindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/assetgrid/searchsync/internal/domain"
	"github.com/assetgrid/searchsync/internal/domain/reindex"
	"github.com/assetgrid/searchsync/internal/kv"
)

const taskKeyPrefix = "searchsync:reindex:"

// taskKV is the consumer interface for task persistence.
type taskKV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetNX(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// TaskStore persists at most one reindex task per tenant+environment. Every
// dual-write and cutover decision reads it fresh; its presence is the single
// source of truth for "is this tenant currently dual-writing".
type TaskStore struct {
	kv taskKV
}

// NewTaskStore creates a task store.
func NewTaskStore(store taskKV) *TaskStore {
	return &TaskStore{kv: store}
}

func taskKey(tenant, env string) string {
	return taskKeyPrefix + tenant + ":" + env
}

// Put persists a task. A second task for the same tenant+environment is
// rejected with ErrReindexPending.
func (s *TaskStore) Put(ctx context.Context, task *reindex.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := s.kv.SetNX(ctx, taskKey(task.Tenant, task.Env), data); err != nil {
		if errors.Is(err, kv.ErrKeyExists) {
			return fmt.Errorf("%w: %s/%s", domain.ErrReindexPending, task.Tenant, task.Env)
		}
		return err
	}
	return nil
}

// Update overwrites an existing task record.
func (s *TaskStore) Update(ctx context.Context, task *reindex.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	return s.kv.Set(ctx, taskKey(task.Tenant, task.Env), data)
}

// Get returns the pending task for a tenant+environment, or ErrTaskNotFound.
func (s *TaskStore) Get(ctx context.Context, tenant, env string) (*reindex.Task, error) {
	data, err := s.kv.Get(ctx, taskKey(tenant, env))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrTaskNotFound, tenant, env)
		}
		return nil, err
	}
	var task reindex.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task %s/%s: %w", tenant, env, err)
	}
	return &task, nil
}

// Delete removes a task record.
func (s *TaskStore) Delete(ctx context.Context, tenant, env string) error {
	return s.kv.Del(ctx, taskKey(tenant, env))
}

// List returns all pending tasks across tenants.
func (s *TaskStore) List(ctx context.Context) ([]*reindex.Task, error) {
	keys, err := s.kv.Keys(ctx, taskKeyPrefix)
	if err != nil {
		return nil, err
	}
	tasks := make([]*reindex.Task, 0, len(keys))
	for _, key := range keys {
		// Tenant and env live in the record itself; the key is opaque here
		// so names containing the separator cannot corrupt the listing.
		data, err := s.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, kv.ErrKeyNotFound) {
				continue // deleted between scan and read
			}
			return nil, err
		}
		var task reindex.Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, fmt.Errorf("unmarshal task %s: %w", key, err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}
