// Package entitystore reads attribute definitions from the relational
// entity store, which remains the source of truth for asset schemas.
package entitystore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/assetgrid/searchsync/internal/domain/attribute"
)

// Client is the HTTP definitions reader.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an entity-store client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Definitions returns the tenant's current attribute definitions.
func (c *Client) Definitions(ctx context.Context, tenant, env string) ([]attribute.Definition, error) {
	u := fmt.Sprintf("%s/attributes?tenant=%s&env=%s",
		c.baseURL, url.QueryEscape(tenant), url.QueryEscape(env))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("entitystore: build request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("entitystore: request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, fmt.Errorf("entitystore: status %d: %s", res.StatusCode, msg)
	}

	var defs []attribute.Definition
	if err := json.NewDecoder(res.Body).Decode(&defs); err != nil {
		return nil, fmt.Errorf("entitystore: decode response: %w", err)
	}
	return defs, nil
}
