package search

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/assetgrid/searchsync/internal/availability"
	"github.com/assetgrid/searchsync/internal/domain/attribute"
	"github.com/assetgrid/searchsync/internal/domain/search/request"
	"github.com/assetgrid/searchsync/internal/es"
)

// scriptSearcher plays back scripted rounds and records the bodies it was
// queried with.
type scriptSearcher struct {
	rounds []*es.SearchResult
	bodies []map[string]any
}

func (s *scriptSearcher) Search(_ context.Context, _ string, body map[string]any) (*es.SearchResult, error) {
	cp := make(map[string]any, len(body))
	for k, v := range body {
		cp[k] = v
	}
	s.bodies = append(s.bodies, cp)

	if len(s.rounds) == 0 {
		return &es.SearchResult{}, nil
	}
	res := s.rounds[0]
	s.rounds = s.rounds[1:]
	return res, nil
}

type fakeDefs struct{ defs []attribute.Definition }

func (f *fakeDefs) Definitions(context.Context, string, string) ([]attribute.Definition, error) {
	return f.defs, nil
}

// fakeResolver marks the listed ids available.
type fakeResolver struct {
	available map[string]bool
	calls     []availability.Request
}

func (f *fakeResolver) Resolve(_ context.Context, req availability.Request) (map[string]bool, error) {
	f.calls = append(f.calls, req)
	out := make(map[string]bool, len(req.DocumentIDs))
	for _, id := range req.DocumentIDs {
		out[id] = f.available[id]
	}
	return out, nil
}

func hit(id string, score float64, sort ...any) es.Hit {
	return es.Hit{
		ID:     id,
		Score:  score,
		Source: map[string]any{"id": id, "name": "asset " + id},
		Sort:   sort,
	}
}

func esResult(total int, hits ...es.Hit) *es.SearchResult {
	return &es.SearchResult{Total: total, Hits: hits}
}

func newTestAssembler(searcher Searcher, resolver availability.Resolver, batch int) *Assembler {
	conns := ConnFunc(func(string, string) (Searcher, error) { return searcher, nil })
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	return NewAssembler(conns, &fakeDefs{}, resolver, nil, batch, zap.NewNop())
}

func pageIDs(t *testing.T, a *Assembler, req *request.Request) []string {
	t.Helper()
	page, err := a.Search(context.Background(), "acme", "prod", req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	out := make([]string, len(page.Items))
	for i, d := range page.Items {
		out[i] = d.ID
	}
	return out
}

func TestSearch_SinglePage(t *testing.T) {
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(2, hit("a", 1, 1.0, "a"), hit("b", 0.5, 0.5, "b")),
	}}
	a := newTestAssembler(searcher, nil, 10)

	page, err := a.Search(context.Background(), "acme", "prod", &request.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "a" || page.Items[1].ID != "b" {
		t.Fatalf("items = %+v", page.Items)
	}
	// Availability is off: the native total is exact.
	if page.Total != 2 {
		t.Errorf("total = %d, want 2", page.Total)
	}
	if !page.Exhaustive {
		t.Error("short batch must mark the scan exhausted")
	}
	if len(searcher.bodies) != 1 {
		t.Errorf("rounds = %d, want 1", len(searcher.bodies))
	}
}

func TestSearch_DedupAcrossRounds(t *testing.T) {
	// Round two re-serves b on the tied sort boundary.
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(3, hit("a", 0, 1.0, "a"), hit("b", 0, 1.0, "b")),
		esResult(3, hit("b", 0, 1.0, "b"), hit("c", 0, 1.0, "c")),
		esResult(3),
	}}
	a := newTestAssembler(searcher, nil, 2)

	got := pageIDs(t, a, &request.Request{})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

func TestSearch_AllSeenBatchEndsScan(t *testing.T) {
	// The engine keeps re-serving the same full batch: without the guard the
	// loop would never terminate.
	same := []es.Hit{hit("a", 0, 1.0, "a"), hit("b", 0, 1.0, "b")}
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(100, same...),
		esResult(100, same...),
		esResult(100, same...),
	}}
	a := newTestAssembler(searcher, nil, 2)

	page, err := a.Search(context.Background(), "acme", "prod", &request.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(searcher.bodies) != 2 {
		t.Fatalf("rounds = %d, want 2", len(searcher.bodies))
	}
	if !page.Exhaustive {
		t.Error("repeated batch must mark the scan exhausted")
	}
	if len(page.Items) != 2 {
		t.Errorf("items = %d, want 2", len(page.Items))
	}
}

func TestSearch_CursorAdvancesAndClamps(t *testing.T) {
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(3, hit("a", 0, 1.0, "a"), hit("b", 0, float64(1<<60), "b")),
		esResult(3, hit("c", 0, 2.0, "c")),
	}}
	a := newTestAssembler(searcher, nil, 2)

	_ = pageIDs(t, a, &request.Request{})

	if len(searcher.bodies) < 2 {
		t.Fatalf("rounds = %d, want 2", len(searcher.bodies))
	}
	if _, ok := searcher.bodies[0]["search_after"]; ok {
		t.Error("first round must not carry search_after")
	}
	cursor, ok := searcher.bodies[1]["search_after"].([]any)
	if !ok || len(cursor) != 2 {
		t.Fatalf("second round cursor = %v", searcher.bodies[1]["search_after"])
	}
	if cursor[0] != float64(maxSafeInteger) {
		t.Errorf("cursor[0] = %v, want clamped bound", cursor[0])
	}
	if cursor[1] != "b" {
		t.Errorf("cursor[1] = %v, want tiebreaker of the last hit", cursor[1])
	}
}

func TestSearch_AvailabilityOnly(t *testing.T) {
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(3, hit("a", 0, 1.0), hit("b", 0, 2.0), hit("c", 0, 3.0)),
	}}
	resolver := &fakeResolver{available: map[string]bool{"a": true, "c": true}}
	a := newTestAssembler(searcher, resolver, 10)

	page, err := a.Search(context.Background(), "acme", "prod", &request.Request{
		Availability: request.AvailabilityOnly,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "a" || page.Items[1].ID != "c" {
		t.Fatalf("items = %+v", page.Items)
	}
	// The out-of-band predicate filtered the set; the native total no
	// longer applies.
	if page.Total != 2 {
		t.Errorf("total = %d, want 2", page.Total)
	}
	if len(resolver.calls) != 1 || len(resolver.calls[0].DocumentIDs) != 3 {
		t.Errorf("resolver calls = %+v", resolver.calls)
	}
}

func TestSearch_AvailabilityOnlyWithAvailabilitySort(t *testing.T) {
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(3, hit("a", 0, 1.0), hit("b", 0, 2.0), hit("c", 0, 3.0)),
	}}
	resolver := &fakeResolver{available: map[string]bool{"a": true, "c": true}}
	a := newTestAssembler(searcher, resolver, 10)

	// Every surviving document is available, so the leading availability
	// sort must not reroute them into the partition buffers.
	page, err := a.Search(context.Background(), "acme", "prod", &request.Request{
		Availability: request.AvailabilityOnly,
		Sort:         []request.SortStep{{Field: request.SortAvailability, Desc: true}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "a" || page.Items[1].ID != "c" {
		t.Fatalf("items = %+v", page.Items)
	}
	if page.Total != 2 {
		t.Errorf("total = %d, want 2", page.Total)
	}
}

func TestSearch_AnnotateKeepsEverything(t *testing.T) {
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(2, hit("a", 0, 1.0), hit("b", 0, 2.0)),
	}}
	resolver := &fakeResolver{available: map[string]bool{"a": true}}
	a := newTestAssembler(searcher, resolver, 10)

	page, err := a.Search(context.Background(), "acme", "prod", &request.Request{
		Availability: request.AvailabilityAnnotate,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	for _, d := range page.Items {
		if d.Available == nil {
			t.Fatalf("document %s not annotated", d.ID)
		}
	}
	if !*page.Items[0].Available || *page.Items[1].Available {
		t.Errorf("annotations = %v/%v", *page.Items[0].Available, *page.Items[1].Available)
	}
}

func TestSearch_AvailabilitySortBuffersUntilExhaustion(t *testing.T) {
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(3, hit("a", 0, 1.0), hit("b", 0, 2.0), hit("c", 0, 3.0)),
	}}
	resolver := &fakeResolver{available: map[string]bool{"b": true}}
	a := newTestAssembler(searcher, resolver, 10)

	got := pageIDs(t, a, &request.Request{
		Sort: []request.SortStep{{Field: request.SortAvailability, Desc: true}},
	})

	// Available first, engine order preserved inside each partition.
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

func TestSearch_AvailabilitySortAscending(t *testing.T) {
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(3, hit("a", 0, 1.0), hit("b", 0, 2.0), hit("c", 0, 3.0)),
	}}
	resolver := &fakeResolver{available: map[string]bool{"b": true}}
	a := newTestAssembler(searcher, resolver, 10)

	got := pageIDs(t, a, &request.Request{
		Sort: []request.SortStep{{Field: request.SortAvailability}},
	})

	want := []string{"a", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

func TestSearch_SecondPage(t *testing.T) {
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(5, hit("a", 0, 1.0), hit("b", 0, 2.0), hit("c", 0, 3.0), hit("d", 0, 4.0), hit("e", 0, 5.0)),
	}}
	a := newTestAssembler(searcher, nil, 10)

	page, err := a.Search(context.Background(), "acme", "prod", &request.Request{
		Page: 2, PageSize: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "c" || page.Items[1].ID != "d" {
		t.Fatalf("items = %+v", page.Items)
	}
	if page.Page != 2 || page.PageSize != 2 {
		t.Errorf("page meta = %d/%d", page.Page, page.PageSize)
	}
}

func TestSearch_PageBeyondEnd(t *testing.T) {
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(1, hit("a", 0, 1.0)),
	}}
	a := newTestAssembler(searcher, nil, 10)

	page, err := a.Search(context.Background(), "acme", "prod", &request.Request{
		Page: 9, PageSize: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("items = %+v, want empty page", page.Items)
	}
}

func TestSearch_ZeroScoreDropOnlyForRelevanceOrder(t *testing.T) {
	// Relevance-ordered text query: the zero-score tail is noise.
	searcher := &scriptSearcher{rounds: []*es.SearchResult{
		esResult(2, hit("a", 1.2, 1.2, "a"), hit("b", 0, 0.0, "b")),
	}}
	a := newTestAssembler(searcher, nil, 10)
	got := pageIDs(t, a, &request.Request{Query: "bike"})
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("ids = %v, want [a]", got)
	}

	// Field-sorted text query: scoring is disabled, zero is meaningless.
	searcher = &scriptSearcher{rounds: []*es.SearchResult{
		esResult(2, hit("a", 0, 10.0), hit("b", 0, 20.0)),
	}}
	a = newTestAssembler(searcher, nil, 10)
	got = pageIDs(t, a, &request.Request{
		Query: "bike",
		Sort:  []request.SortStep{{Field: request.SortPrice}},
	})
	if len(got) != 2 {
		t.Fatalf("ids = %v, want both hits", got)
	}
}

func TestSearch_InvalidRequestNeverHitsEngine(t *testing.T) {
	searcher := &scriptSearcher{}
	a := newTestAssembler(searcher, nil, 10)

	_, err := a.Search(context.Background(), "acme", "prod", &request.Request{
		Sort: []request.SortStep{{Field: "nope"}},
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(searcher.bodies) != 0 {
		t.Fatalf("engine queried %d times for an invalid request", len(searcher.bodies))
	}
}
