// Package availability calls the external availability collaborator. The
// predicate is not indexed; the search assembler batch-resolves it per scan
// round.
package availability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is the collaborator's idempotent query contract.
type Request struct {
	DocumentIDs         []string `json:"documentIds"`
	StartDate           string   `json:"startDate,omitempty"`
	EndDate             string   `json:"endDate,omitempty"`
	Quantity            int      `json:"quantity,omitempty"`
	FullPeriod          bool     `json:"fullPeriod"`
	UnavailableStatuses []string `json:"unavailableStatuses,omitempty"`
}

// Resolver resolves per-document availability.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (map[string]bool, error)
}

// Client is the HTTP implementation of Resolver.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an availability client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Resolve returns availability keyed by document id.
func (c *Client) Resolve(ctx context.Context, req Request) (map[string]bool, error) {
	if len(req.DocumentIDs) == 0 {
		return map[string]bool{}, nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("availability: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/availability", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("availability: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("availability: request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, fmt.Errorf("availability: status %d: %s", res.StatusCode, msg)
	}

	var out map[string]bool
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("availability: decode response: %w", err)
	}
	return out, nil
}
