package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Config holds connection parameters for one search cluster.
type Config struct {
	Addrs    []string
	Username string
	Password string
}

// Store wraps an Elasticsearch client with the primitive operations the
// engine depends on: index lifecycle, mappings, settings, aliases, bulk,
// search and background-task status.
type Store struct {
	client *elasticsearch.Client
}

// NewStore creates a store for the given cluster.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addrs,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client}, nil
}

// CreateIndex creates a physical index with the given mappings/settings body.
func (s *Store) CreateIndex(ctx context.Context, name string, body map[string]any) error {
	buf, err := encode(body)
	if err != nil {
		return &Error{Op: OpCreateIndex, Err: err}
	}
	res, err := s.client.Indices.Create(
		name,
		s.client.Indices.Create.WithBody(buf),
		s.client.Indices.Create.WithContext(ctx),
	)
	return s.checkResponse(OpCreateIndex, res, err)
}

// DeleteIndex removes a physical index.
func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	res, err := s.client.Indices.Delete(
		[]string{name},
		s.client.Indices.Delete.WithContext(ctx),
	)
	if err == nil && res != nil && res.StatusCode == http.StatusNotFound {
		drain(res.Body)
		return ErrIndexNotFound
	}
	return s.checkResponse(OpDeleteIndex, res, err)
}

// IndexExists reports whether a physical index or alias exists.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := s.client.Indices.Exists(
		[]string{name},
		s.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, &Error{Op: OpExists, Err: err}
	}
	defer drain(res.Body)
	return res.StatusCode == http.StatusOK, nil
}

// GetMapping returns the mapping properties of an index (or alias).
func (s *Store) GetMapping(ctx context.Context, name string) (map[string]any, error) {
	res, err := s.client.Indices.GetMapping(
		s.client.Indices.GetMapping.WithIndex(name),
		s.client.Indices.GetMapping.WithContext(ctx),
	)
	if err != nil {
		return nil, &Error{Op: OpGetMapping, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrIndexNotFound
	}
	if res.IsError() {
		return nil, responseError(OpGetMapping, res.Status(), res.Body)
	}

	// Response is keyed by the physical index name, even when queried via alias.
	var raw map[string]struct {
		Mappings struct {
			Properties map[string]any `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, &Error{Op: OpGetMapping, Err: err}
	}
	for _, idx := range raw {
		return idx.Mappings.Properties, nil
	}
	return nil, ErrIndexNotFound
}

// PutMapping adds properties to an existing index mapping.
func (s *Store) PutMapping(ctx context.Context, name string, properties map[string]any) error {
	buf, err := encode(map[string]any{"properties": properties})
	if err != nil {
		return &Error{Op: OpPutMapping, Err: err}
	}
	res, err := s.client.Indices.PutMapping(
		[]string{name},
		buf,
		s.client.Indices.PutMapping.WithContext(ctx),
	)
	return s.checkResponse(OpPutMapping, res, err)
}

// GetSettings returns the index-level settings of an index.
func (s *Store) GetSettings(ctx context.Context, name string) (map[string]any, error) {
	res, err := s.client.Indices.GetSettings(
		s.client.Indices.GetSettings.WithIndex(name),
		s.client.Indices.GetSettings.WithContext(ctx),
	)
	if err != nil {
		return nil, &Error{Op: OpGetSettings, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrIndexNotFound
	}
	if res.IsError() {
		return nil, responseError(OpGetSettings, res.Status(), res.Body)
	}

	var raw map[string]struct {
		Settings struct {
			Index map[string]any `json:"index"`
		} `json:"settings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, &Error{Op: OpGetSettings, Err: err}
	}
	for _, idx := range raw {
		return idx.Settings.Index, nil
	}
	return nil, ErrIndexNotFound
}

// PutSettings applies dynamic index settings.
func (s *Store) PutSettings(ctx context.Context, name string, settings map[string]any) error {
	buf, err := encode(map[string]any{"index": settings})
	if err != nil {
		return &Error{Op: OpPutSettings, Err: err}
	}
	res, err := s.client.Indices.PutSettings(
		buf,
		s.client.Indices.PutSettings.WithIndex(name),
		s.client.Indices.PutSettings.WithContext(ctx),
	)
	return s.checkResponse(OpPutSettings, res, err)
}

// AliasAction is one entry of an atomic alias update.
type AliasAction struct {
	Add    *AliasTarget `json:"add,omitempty"`
	Remove *AliasTarget `json:"remove,omitempty"`
}

// AliasTarget names the index/alias pair of an alias action.
type AliasTarget struct {
	Index string `json:"index"`
	Alias string `json:"alias"`
}

// UpdateAliases applies all actions in one request. The engine relies on
// this atomicity for cutover.
func (s *Store) UpdateAliases(ctx context.Context, actions []AliasAction) error {
	buf, err := encode(map[string]any{"actions": actions})
	if err != nil {
		return &Error{Op: OpUpdateAliases, Err: err}
	}
	res, err := s.client.Indices.UpdateAliases(
		buf,
		s.client.Indices.UpdateAliases.WithContext(ctx),
	)
	return s.checkResponse(OpUpdateAliases, res, err)
}

// AliasIndices returns the physical indices an alias points at.
func (s *Store) AliasIndices(ctx context.Context, alias string) ([]string, error) {
	res, err := s.client.Indices.GetAlias(
		s.client.Indices.GetAlias.WithName(alias),
		s.client.Indices.GetAlias.WithContext(ctx),
	)
	if err != nil {
		return nil, &Error{Op: OpGetAlias, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrAliasNotFound
	}
	if res.IsError() {
		return nil, responseError(OpGetAlias, res.Status(), res.Body)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, &Error{Op: OpGetAlias, Err: err}
	}
	indices := make([]string, 0, len(raw))
	for name := range raw {
		indices = append(indices, name)
	}
	return indices, nil
}

// BulkItem is one action line plus optional source of a bulk request.
type BulkItem struct {
	Action string         // "index" or "delete"
	Index  string         // target index or alias
	ID     string         // document id
	Source map[string]any // nil for delete
}

// Bulk submits all items in one request. Item-level delete misses (404) are
// tolerated so re-syncing an already deleted document never errors; any
// other item failure is reported.
func (s *Store) Bulk(ctx context.Context, items []BulkItem) error {
	if len(items) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, item := range items {
		meta := map[string]any{
			item.Action: map[string]any{"_index": item.Index, "_id": item.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return &Error{Op: OpBulk, Err: err}
		}
		if item.Action == "index" {
			if err := enc.Encode(item.Source); err != nil {
				return &Error{Op: OpBulk, Err: err}
			}
		}
	}

	res, err := s.client.Bulk(
		&body,
		s.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return &Error{Op: OpBulk, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError(OpBulk, res.Status(), res.Body)
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int    `json:"status"`
			Result string `json:"result"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return &Error{Op: OpBulk, Err: err}
	}
	if !parsed.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range parsed.Items {
		for action, r := range item {
			if r.Status < http.StatusBadRequest {
				continue
			}
			if action == "delete" && r.Status == http.StatusNotFound {
				continue // deleting an absent document is fine
			}
			failed++
			if first == "" && r.Error != nil {
				first = r.Error.Type + ": " + r.Error.Reason
			}
		}
	}
	if failed > 0 {
		return &Error{Op: OpBulk, Err: fmt.Errorf("%d items failed (first: %s)", failed, first)}
	}
	return nil
}

// Hit is one native search hit.
type Hit struct {
	ID     string
	Score  float64
	Source map[string]any
	Sort   []any
}

// SearchResult is a parsed native search response.
type SearchResult struct {
	Total int
	Hits  []Hit
}

// Search executes a query against an index or alias.
func (s *Store) Search(ctx context.Context, index string, body map[string]any) (*SearchResult, error) {
	buf, err := encode(body)
	if err != nil {
		return nil, &Error{Op: OpSearch, Err: err}
	}
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(buf),
		s.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, &Error{Op: OpSearch, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError(OpSearch, res.Status(), res.Body)
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string         `json:"_id"`
				Score  *float64       `json:"_score"`
				Source map[string]any `json:"_source"`
				Sort   []any          `json:"sort"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, &Error{Op: OpSearch, Err: err}
	}

	out := &SearchResult{Total: parsed.Hits.Total.Value}
	for _, h := range parsed.Hits.Hits {
		hit := Hit{ID: h.ID, Source: h.Source, Sort: h.Sort}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

// Reindex submits a background copy and returns its task id.
func (s *Store) Reindex(ctx context.Context, body map[string]any) (string, error) {
	buf, err := encode(body)
	if err != nil {
		return "", &Error{Op: OpReindex, Err: err}
	}
	res, err := s.client.Reindex(
		buf,
		s.client.Reindex.WithContext(ctx),
		s.client.Reindex.WithWaitForCompletion(false),
	)
	if err != nil {
		return "", &Error{Op: OpReindex, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return "", responseError(OpReindex, res.Status(), res.Body)
	}

	var parsed struct {
		Task string `json:"task"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", &Error{Op: OpReindex, Err: err}
	}
	return parsed.Task, nil
}

// TaskCompleted reports whether a background task has finished.
func (s *Store) TaskCompleted(ctx context.Context, taskID string) (bool, error) {
	res, err := s.client.Tasks.Get(taskID, s.client.Tasks.Get.WithContext(ctx))
	if err != nil {
		return false, &Error{Op: OpTaskStatus, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return false, ErrTaskNotFound
	}
	if res.IsError() {
		return false, responseError(OpTaskStatus, res.Status(), res.Body)
	}

	var parsed struct {
		Completed bool `json:"completed"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return false, &Error{Op: OpTaskStatus, Err: err}
	}
	return parsed.Completed, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	drain(res.Body)
	if res.IsError() {
		return fmt.Errorf("ping: %s", res.Status())
	}
	return nil
}

func (s *Store) checkResponse(op string, res *esapi.Response, err error) error {
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError(op, res.Status(), res.Body)
	}
	drain(res.Body)
	return nil
}

func responseError(op, status string, body io.Reader) error {
	msg, _ := io.ReadAll(io.LimitReader(body, 2048))
	return &Error{Op: op, Err: fmt.Errorf("[%s] %s", status, msg)}
}

func encode(v any) (*bytes.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

func drain(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()
}
