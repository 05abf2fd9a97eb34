package attribute

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/assetgrid/searchsync/internal/domain"
	"github.com/assetgrid/searchsync/internal/domain/attribute"
	domtask "github.com/assetgrid/searchsync/internal/domain/reindex"
)

type fakeEngine struct {
	putProps map[string]any
	putErr   error
}

func (f *fakeEngine) GetMapping(context.Context, string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (f *fakeEngine) PutMapping(_ context.Context, _ string, properties map[string]any) error {
	f.putProps = properties
	return f.putErr
}

type fakeReindexer struct {
	needed   bool
	started  bool
	startErr error
	attrs    []attribute.Definition
	trigger  string
}

func (f *fakeReindexer) ShouldReindex(context.Context, string, string, string, attribute.Type) (bool, error) {
	return f.needed, nil
}

func (f *fakeReindexer) Start(
	_ context.Context, _, _ string, attrs []attribute.Definition, trigger string,
) (*domtask.Task, error) {
	f.started = true
	f.attrs = attrs
	f.trigger = trigger
	return &domtask.Task{}, f.startErr
}

func newTestService(engine *fakeEngine, reidx *fakeReindexer) *Service {
	conns := ConnFunc(func(string, string) (Engine, error) { return engine, nil })
	return NewService(conns, reidx, zap.NewNop())
}

func TestSave_AdditiveMapping(t *testing.T) {
	engine := &fakeEngine{}
	reidx := &fakeReindexer{needed: false}
	svc := newTestService(engine, reidx)

	def := attribute.Definition{Name: "weight", Type: attribute.Number}
	if err := svc.Save(context.Background(), "acme", "prod", []attribute.Definition{def}, def); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reidx.started {
		t.Fatal("additive change must not start a reindex")
	}
	attrs := engine.putProps["attributes"].(map[string]any)
	props := attrs["properties"].(map[string]any)
	field := props["weight"].(map[string]any)
	if field["type"] != "float" {
		t.Errorf("mapped type = %v, want float", field["type"])
	}
}

func TestSave_TypeChangeStartsReindex(t *testing.T) {
	engine := &fakeEngine{}
	reidx := &fakeReindexer{needed: true}
	svc := newTestService(engine, reidx)

	all := []attribute.Definition{
		{Name: "weight", Type: attribute.Text},
		{Name: "color", Type: attribute.Select},
	}
	if err := svc.Save(context.Background(), "acme", "prod", all, all[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reidx.started {
		t.Fatal("type change must start a reindex")
	}
	if reidx.trigger != "weight" {
		t.Errorf("trigger = %q, want weight", reidx.trigger)
	}
	// The rebuild needs the complete definition set, not just the change.
	if len(reidx.attrs) != 2 {
		t.Errorf("rebuild set = %d definitions, want 2", len(reidx.attrs))
	}
	if engine.putProps != nil {
		t.Error("put-mapping issued alongside a reindex")
	}
}

func TestSave_InvalidDefinitionRejected(t *testing.T) {
	svc := newTestService(&fakeEngine{}, &fakeReindexer{})

	def := attribute.Definition{Name: "weight", Type: "vector"}
	err := svc.Save(context.Background(), "acme", "prod", nil, def)
	if !errors.Is(err, domain.ErrInvalidAttribute) {
		t.Fatalf("err = %v, want ErrInvalidAttribute", err)
	}
}

func TestSave_PendingReindexFailsSave(t *testing.T) {
	reidx := &fakeReindexer{needed: true, startErr: domain.ErrReindexPending}
	svc := newTestService(&fakeEngine{}, reidx)

	def := attribute.Definition{Name: "weight", Type: attribute.Text}
	err := svc.Save(context.Background(), "acme", "prod", []attribute.Definition{def}, def)
	if !errors.Is(err, domain.ErrReindexPending) {
		t.Fatalf("err = %v, want ErrReindexPending", err)
	}
}

func TestSave_MappingErrorFailsSave(t *testing.T) {
	engine := &fakeEngine{putErr: errors.New("mapper_parsing_exception")}
	svc := newTestService(engine, &fakeReindexer{})

	def := attribute.Definition{Name: "weight", Type: attribute.Number}
	err := svc.Save(context.Background(), "acme", "prod", []attribute.Definition{def}, def)
	if err == nil {
		t.Fatal("mapping failure must fail the save")
	}
}
