// Package events publishes audit events for downstream analytics.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/assetgrid/searchsync/internal/domain/document"
	"github.com/assetgrid/searchsync/internal/domain/search/request"
)

// SearchExecuted is emitted once after every completed search.
type SearchExecuted struct {
	ID          string             `json:"id"`
	Tenant      string             `json:"tenant"`
	Env         string             `json:"env"`
	FirstResult *document.Document `json:"first_result,omitempty"`
	ResultIDs   []string           `json:"result_ids"`
	Request     *request.Request   `json:"request"`
	At          time.Time          `json:"at"`
}

// Publisher emits audit events over NATS. A nil Publisher is a no-op, so
// callers never need to branch on whether the bus is configured.
type Publisher struct {
	conn *nats.Conn
	log  *zap.Logger
}

// Connect dials the event bus. Empty URL returns a nil (no-op) publisher.
func Connect(url string, log *zap.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect event bus: %w", err)
	}
	return &Publisher{conn: conn, log: log}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
}

// SearchExecuted publishes the post-search audit event. Best effort:
// failures are logged and never fail the search.
func (p *Publisher) SearchExecuted(_ context.Context, ev SearchExecuted) {
	if p == nil || p.conn == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("search event encode failed", zap.Error(err))
		return
	}
	subject := "search.executed." + ev.Tenant
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("search event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
