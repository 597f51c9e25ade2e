package provider

import (
	"context"
	"errors"
	"testing"
)

type bareProvider struct {
	values map[string]int64
}

func (b *bareProvider) Flush(ctx context.Context, batch Batch) (Result, error) {
	for scope, delta := range batch {
		b.values[scope] += delta
	}
	return Result{}, nil
}

func (b *bareProvider) Get(ctx context.Context, scope string) (int64, error) {
	return b.values[scope], nil
}

type fullProvider struct {
	bareProvider
	initialized bool
	closed      bool
}

func (f *fullProvider) Initialize(ctx context.Context) error { f.initialized = true; return nil }
func (f *fullProvider) Close(ctx context.Context) error      { f.closed = true; return nil }
func (f *fullProvider) Delete(ctx context.Context, scope string) error {
	delete(f.values, scope)
	return nil
}
func (f *fullProvider) GetBatch(ctx context.Context, scopes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(scopes))
	for _, s := range scopes {
		out[s] = f.values[s]
	}
	return out, nil
}

func TestDetect_BareProviderHasNoCapabilities(t *testing.T) {
	c := Detect(&bareProvider{values: map[string]int64{}})

	if c.SupportsInitialize() || c.SupportsClose() || c.SupportsGetBatch() || c.SupportsDelete() {
		t.Errorf("bare provider should support no optional capabilities")
	}
}

func TestDetect_FullProviderHasAllCapabilities(t *testing.T) {
	c := Detect(&fullProvider{bareProvider: bareProvider{values: map[string]int64{}}})

	if !c.SupportsInitialize() || !c.SupportsClose() || !c.SupportsGetBatch() || !c.SupportsDelete() {
		t.Errorf("full provider should support every optional capability")
	}
}

func TestCapabilities_InitializeNoopWhenUnsupported(t *testing.T) {
	c := Detect(&bareProvider{values: map[string]int64{}})
	if err := c.Initialize(context.Background()); err != nil {
		t.Errorf("Initialize() should be a no-op, got %v", err)
	}
}

func TestCapabilities_DeleteUnsupportedReturnsError(t *testing.T) {
	c := Detect(&bareProvider{values: map[string]int64{}})
	if err := c.Delete(context.Background(), "x"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Delete() = %v, want ErrUnsupported", err)
	}
}

func TestCapabilities_GetBatchFallsBackToParallelGet(t *testing.T) {
	p := &bareProvider{values: map[string]int64{"a": 1, "b": 2}}
	c := Detect(p)

	out, err := c.GetBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if out["a"] != 1 || out["b"] != 2 || out["c"] != 0 {
		t.Errorf("GetBatch() = %+v", out)
	}
}

func TestCapabilities_GetBatchUsesNativeWhenPresent(t *testing.T) {
	p := &fullProvider{bareProvider: bareProvider{values: map[string]int64{"a": 5}}}
	c := Detect(p)

	out, err := c.GetBatch(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if out["a"] != 5 {
		t.Errorf("GetBatch() = %+v", out)
	}
}

func TestCapabilities_InitializeAndCloseDelegate(t *testing.T) {
	p := &fullProvider{bareProvider: bareProvider{values: map[string]int64{}}}
	c := Detect(p)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !p.initialized {
		t.Error("expected wrapped provider Initialize to be called")
	}

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !p.closed {
		t.Error("expected wrapped provider Close to be called")
	}
}
