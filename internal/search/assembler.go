// Package search compiles structured search requests into native queries
// and assembles result pages, reconciling index hits with the out-of-band
// availability predicate.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/assetgrid/searchsync/internal/availability"
	"github.com/assetgrid/searchsync/internal/domain/attribute"
	"github.com/assetgrid/searchsync/internal/domain/document"
	"github.com/assetgrid/searchsync/internal/domain/search/request"
	"github.com/assetgrid/searchsync/internal/domain/search/result"
	"github.com/assetgrid/searchsync/internal/es"
	"github.com/assetgrid/searchsync/internal/events"
	"github.com/assetgrid/searchsync/internal/index/registry"
	"github.com/assetgrid/searchsync/internal/metrics"
)

// Assembler executes the multi-round fetch loop. Availability is not
// indexed, so a page may require scanning more native hits than the
// requested page size; the loop is sequential per request and cursor-based
// (search_after), never offset-based, because deep offsets are unreliable
// at scale.
type Assembler struct {
	conns        Conns
	defs         DefinitionSource
	avail        availability.Resolver
	events       *events.Publisher
	maxScanBatch int
	log          *zap.Logger
}

// NewAssembler creates the search assembler.
func NewAssembler(
	conns Conns, defs DefinitionSource, avail availability.Resolver,
	publisher *events.Publisher, maxScanBatch int, log *zap.Logger,
) *Assembler {
	return &Assembler{
		conns:        conns,
		defs:         defs,
		avail:        avail,
		events:       publisher,
		maxScanBatch: maxScanBatch,
		log:          log,
	}
}

// Search validates, compiles and executes a request, returning one stable
// page plus pagination metadata.
func (a *Assembler) Search(ctx context.Context, tenant, env string, req *request.Request) (*result.Page, error) {
	defList, err := a.defs.Definitions(ctx, tenant, env)
	if err != nil {
		return nil, fmt.Errorf("load attribute definitions: %w", err)
	}
	defs := attribute.ByName(defList)

	if err := req.Normalize(defs); err != nil {
		return nil, err
	}

	body, err := Compile(req, defs)
	if err != nil {
		return nil, err
	}

	searcher, err := a.conns.Searcher(tenant, env)
	if err != nil {
		return nil, err
	}

	scan := &scanState{
		req:      req,
		target:   req.Page * req.PageSize,
		seen:     make(map[string]struct{}),
		dropZero: scoredScan(req),
	}
	scan.availSorted, scan.availDesc = req.AvailabilitySorted()
	if req.Availability == request.AvailabilityOnly {
		// Every surviving document is available, so the sort is vacuous.
		scan.availSorted = false
	}

	alias := registry.AliasName(tenant, env)
	rounds := 0
	var cursor []any

	for {
		rounds++
		body["size"] = a.maxScanBatch
		if cursor != nil {
			body["search_after"] = cursor
		}

		res, err := searcher.Search(ctx, alias, body)
		if err != nil {
			return nil, err
		}
		scan.nativeTotal = res.Total

		if len(res.Hits) == 0 {
			scan.exhausted = true
			break
		}
		cursor = clampCursor(res.Hits[len(res.Hits)-1].Sort)

		fresh := scan.dedup(res)
		if len(fresh) == 0 {
			// The engine repeated an entire batch on a tied sort boundary.
			// Treat the scan as exhausted instead of looping forever.
			scan.exhausted = true
			break
		}

		if req.NeedsAvailability() {
			if err := a.annotate(ctx, req, fresh); err != nil {
				return nil, err
			}
		}
		scan.accumulate(fresh)

		if scan.done() {
			break
		}
		if len(res.Hits) < a.maxScanBatch {
			scan.exhausted = true
			break
		}
	}

	metrics.SearchRounds.Observe(float64(rounds))

	page := scan.page()
	a.emit(ctx, tenant, env, req, page)
	return page, nil
}

// annotate batch-resolves availability for one round's surviving documents.
func (a *Assembler) annotate(ctx context.Context, req *request.Request, docs []*document.Document) error {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	avReq := availability.Request{
		DocumentIDs: ids,
		Quantity:    req.Quantity,
		FullPeriod:  true,
	}
	if req.Dates != nil {
		if !req.Dates.Start.IsZero() {
			avReq.StartDate = req.Dates.Start.Format(time.RFC3339)
		}
		if !req.Dates.End.IsZero() {
			avReq.EndDate = req.Dates.End.Format(time.RFC3339)
		}
	}

	resolved, err := a.avail.Resolve(ctx, avReq)
	if err != nil {
		return fmt.Errorf("resolve availability: %w", err)
	}
	for _, d := range docs {
		v := resolved[d.ID]
		d.Available = &v
	}
	return nil
}

func (a *Assembler) emit(ctx context.Context, tenant, env string, req *request.Request, page *result.Page) {
	ev := events.SearchExecuted{
		Tenant:  tenant,
		Env:     env,
		Request: req,
	}
	if len(page.Items) > 0 {
		ev.FirstResult = page.Items[0]
	}
	ev.ResultIDs = make([]string, len(page.Items))
	for i, d := range page.Items {
		ev.ResultIDs[i] = d.ID
	}
	a.events.SearchExecuted(ctx, ev)
}

// scanState accumulates one request's scan across rounds.
type scanState struct {
	req         *request.Request
	target      int
	seen        map[string]struct{}
	dropZero    bool
	availSorted bool
	availDesc   bool

	collected   []*document.Document
	availBuf    []*document.Document
	unavailBuf  []*document.Document
	nativeTotal int
	exhausted   bool
}

// dedup drops already-seen and zero-relevance hits and decodes the rest.
func (s *scanState) dedup(res *es.SearchResult) []*document.Document {
	fresh := make([]*document.Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if _, ok := s.seen[hit.ID]; ok {
			continue
		}
		s.seen[hit.ID] = struct{}{}
		if s.dropZero && hit.Score == 0 {
			continue
		}
		fresh = append(fresh, document.FromSource(hit.Source))
	}
	return fresh
}

// accumulate files one round's documents according to the availability mode.
func (s *scanState) accumulate(docs []*document.Document) {
	switch {
	case s.req.Availability == request.AvailabilityOnly:
		for _, d := range docs {
			if d.Available != nil && *d.Available {
				s.collected = append(s.collected, d)
			}
		}
	case s.availSorted:
		for _, d := range docs {
			if d.Available != nil && *d.Available {
				s.availBuf = append(s.availBuf, d)
			} else {
				s.unavailBuf = append(s.unavailBuf, d)
			}
		}
	default:
		s.collected = append(s.collected, docs...)
	}
}

// counted is the number of documents filling the requested quota. With an
// availability sort, only the bucket that sorts first counts: the other
// bucket cannot appear until the source is exhausted.
func (s *scanState) counted() int {
	if s.availSorted {
		if s.availDesc {
			return len(s.availBuf)
		}
		return len(s.unavailBuf)
	}
	return len(s.collected)
}

func (s *scanState) done() bool {
	return s.counted() >= s.target
}

// page produces the final ordered page. Buffered availability partitions are
// concatenated only when the native source was exhausted; partial buffers
// cannot be correctly interleaved.
func (s *scanState) page() *result.Page {
	ordered := s.collected
	if s.availSorted {
		primary, secondary := s.availBuf, s.unavailBuf
		if !s.availDesc {
			primary, secondary = secondary, primary
		}
		ordered = primary
		if s.exhausted {
			ordered = append(append([]*document.Document{}, primary...), secondary...)
		}
	}

	total := len(ordered)
	if !s.req.NeedsAvailability() {
		// Without the out-of-band predicate the native total is exact.
		total = s.nativeTotal
	}

	start := (s.req.Page - 1) * s.req.PageSize
	end := start + s.req.PageSize
	if start > len(ordered) {
		start = len(ordered)
	}
	if end > len(ordered) {
		end = len(ordered)
	}

	return &result.Page{
		Items:      ordered[start:end],
		Page:       s.req.Page,
		PageSize:   s.req.PageSize,
		Total:      total,
		Exhaustive: s.exhausted,
	}
}

// scoredScan reports whether hits carry meaningful relevance scores. Field
// sorts disable scoring, so the zero-score drop only applies to
// relevance-ordered text queries.
func scoredScan(req *request.Request) bool {
	if req.Query == "" && len(req.SimilarToIDs) == 0 {
		return false
	}
	steps := req.Sort
	if len(steps) > 0 && steps[0].Field == request.SortAvailability {
		steps = steps[1:]
	}
	return len(steps) == 0 || steps[0].Field == request.SortRelevance
}
