package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/assetgrid/searchsync/internal/domain"
	"github.com/assetgrid/searchsync/internal/domain/attribute"
	"github.com/assetgrid/searchsync/internal/domain/document"
	"github.com/assetgrid/searchsync/internal/domain/search/request"
	"github.com/assetgrid/searchsync/internal/domain/search/result"
	"github.com/assetgrid/searchsync/internal/syncq"
)

type fakeSearcher struct {
	page *result.Page
	err  error

	tenant string
	env    string
	req    *request.Request
}

func (f *fakeSearcher) Search(_ context.Context, tenant, env string, req *request.Request) (*result.Page, error) {
	f.tenant, f.env, f.req = tenant, env, req
	return f.page, f.err
}

type enqueued struct {
	docID  string
	doc    *document.Document
	action syncq.Action
	tenant string
	env    string
}

type fakeQueue struct {
	calls []enqueued
}

func (f *fakeQueue) Enqueue(docID string, doc *document.Document, action syncq.Action, tenant, env string) {
	f.calls = append(f.calls, enqueued{docID, doc, action, tenant, env})
}

type savedAttr struct {
	tenant  string
	env     string
	all     []attribute.Definition
	changed attribute.Definition
}

type fakeAttrs struct {
	saved []savedAttr
	err   error
}

func (f *fakeAttrs) Save(
	_ context.Context, tenant, env string,
	all []attribute.Definition, changed attribute.Definition,
) error {
	f.saved = append(f.saved, savedAttr{tenant, env, all, changed})
	return f.err
}

func newTestServer(search Searcher, queue Enqueuer) *httptest.Server {
	return newTestServerWithAttrs(search, queue, &fakeAttrs{})
}

func newTestServerWithAttrs(search Searcher, queue Enqueuer, attrs AttributeSaver) *httptest.Server {
	return httptest.NewServer(NewServer(search, queue, attrs, zap.NewNop()).Router())
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &fakeSearcher{page: &result.Page{
		Items:    []*document.Document{{ID: "d1", Name: "Bike"}},
		Page:     1,
		PageSize: 20,
		Total:    1,
	}}
	srv := newTestServer(searcher, &fakeQueue{})
	defer srv.Close()

	res, err := http.Post(srv.URL+"/v1/acme/prod/search", "application/json",
		strings.NewReader(`{"query":"bike"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	var page result.Page
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "d1" {
		t.Errorf("page = %+v", page)
	}
	if searcher.tenant != "acme" || searcher.env != "prod" || searcher.req.Query != "bike" {
		t.Errorf("forwarded = %s/%s %+v", searcher.tenant, searcher.env, searcher.req)
	}
}

func TestSearchEndpoint_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", domain.ErrInvalidFilter), http.StatusBadRequest},
		{fmt.Errorf("%w: bad", domain.ErrInvalidSort), http.StatusBadRequest},
		{fmt.Errorf("%w: bad", domain.ErrInvalidDateRange), http.StatusBadRequest},
		{fmt.Errorf("%w: none", domain.ErrMissingConnection), http.StatusNotFound},
		{fmt.Errorf("%w: gone", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("cluster on fire"), http.StatusBadGateway},
	}

	for _, c := range cases {
		srv := newTestServer(&fakeSearcher{err: c.err}, &fakeQueue{})
		res, err := http.Post(srv.URL+"/v1/acme/prod/search", "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		res.Body.Close()
		srv.Close()
		if res.StatusCode != c.want {
			t.Errorf("%v: status = %d, want %d", c.err, res.StatusCode, c.want)
		}
	}
}

func TestSearchEndpoint_BadBody(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeQueue{})
	defer srv.Close()

	res, err := http.Post(srv.URL+"/v1/acme/prod/search", "application/json", strings.NewReader(`{`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestUpsertEndpoint(t *testing.T) {
	queue := &fakeQueue{}
	srv := newTestServer(&fakeSearcher{}, queue)
	defer srv.Close()

	body := strings.NewReader(`{"name":"Bike","price":99.5}`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/acme/prod/documents/d1", body)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res.Body.Close()

	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", res.StatusCode)
	}
	if len(queue.calls) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(queue.calls))
	}
	call := queue.calls[0]
	if call.action != syncq.ActionUpsert || call.tenant != "acme" || call.env != "prod" {
		t.Errorf("call = %+v", call)
	}
	// The path id wins over any id in the body.
	if call.docID != "d1" || call.doc.ID != "d1" {
		t.Errorf("doc id = %q/%q, want d1", call.docID, call.doc.ID)
	}
	if call.doc.Name != "Bike" {
		t.Errorf("doc = %+v", call.doc)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	queue := &fakeQueue{}
	srv := newTestServer(&fakeSearcher{}, queue)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/acme/prod/documents/d1", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res.Body.Close()

	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", res.StatusCode)
	}
	if len(queue.calls) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(queue.calls))
	}
	call := queue.calls[0]
	if call.action != syncq.ActionDelete || call.docID != "d1" || call.doc != nil {
		t.Errorf("call = %+v", call)
	}
}

func TestAttributeSaveEndpoint(t *testing.T) {
	attrs := &fakeAttrs{}
	srv := newTestServerWithAttrs(&fakeSearcher{}, &fakeQueue{}, attrs)
	defer srv.Close()

	body := strings.NewReader(`[
		{"name":"weight","type":"number"},
		{"name":"color","type":"select","values":["red"]}
	]`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/acme/prod/attributes/weight", body)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if len(attrs.saved) != 1 {
		t.Fatalf("saves = %d, want 1", len(attrs.saved))
	}
	call := attrs.saved[0]
	if call.tenant != "acme" || call.env != "prod" {
		t.Errorf("target = %s/%s", call.tenant, call.env)
	}
	if call.changed.Name != "weight" || len(call.all) != 2 {
		t.Errorf("changed = %+v, all = %d", call.changed, len(call.all))
	}
}

func TestAttributeSaveEndpoint_Errors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", domain.ErrInvalidAttribute), http.StatusBadRequest},
		{fmt.Errorf("%w: acme/prod", domain.ErrReindexPending), http.StatusConflict},
		{fmt.Errorf("%w: gone", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("cluster on fire"), http.StatusBadGateway},
	}

	for _, c := range cases {
		srv := newTestServerWithAttrs(&fakeSearcher{}, &fakeQueue{}, &fakeAttrs{err: c.err})
		body := strings.NewReader(`[{"name":"weight","type":"number"}]`)
		req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/acme/prod/attributes/weight", body)
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		res.Body.Close()
		srv.Close()
		if res.StatusCode != c.want {
			t.Errorf("%v: status = %d, want %d", c.err, res.StatusCode, c.want)
		}
	}
}

func TestAttributeSaveEndpoint_ChangedMustBeInSet(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeQueue{})
	defer srv.Close()

	body := strings.NewReader(`[{"name":"color","type":"select"}]`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/acme/prod/attributes/weight", body)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, &fakeQueue{})
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
}
