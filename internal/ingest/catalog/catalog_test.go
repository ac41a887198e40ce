package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
)

type fakeSource struct {
	calls    int32
	mu       sync.Mutex
	datasets []entity.Dataset
	err      error
	gate     chan struct{}
}

func (s *fakeSource) Datasets(ctx context.Context) ([]entity.Dataset, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.datasets, s.err
}

func (s *fakeSource) set(datasets []entity.Dataset, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets = datasets
	s.err = err
}

type events struct {
	mu   sync.Mutex
	list []entity.Event
}

func (e *events) Publish(_ context.Context, event entity.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, event)
	return nil
}

func (e *events) kinds() []entity.EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]entity.EventKind, 0, len(e.list))
	for _, ev := range e.list {
		out = append(out, ev.Kind)
	}
	return out
}

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time { return c.t }

func sales() []entity.Dataset {
	return []entity.Dataset{{
		ID:   "ds-1",
		Name: "sales",
		Tables: []entity.Table{{
			ID:     "t-1",
			Name:   "orders",
			Schema: &entity.Schema{Columns: []entity.Column{{Name: "id", Type: entity.ColumnTypeInteger}}},
		}},
	}}
}

func TestCacheServesSnapshotWithinTTL(t *testing.T) {
	t.Parallel()

	src := &fakeSource{datasets: sales()}
	clock := &manualClock{t: time.Unix(1000, 0)}
	c := New(Dependency{Source: src, TTL: time.Minute, Now: clock.now})

	first := c.Datasets(context.Background())
	first[0].Name = "mutated"
	second := c.Datasets(context.Background())

	if src.calls != 1 {
		t.Fatalf("expected one load, got %d", src.calls)
	}
	if second[0].Name != "sales" {
		t.Fatalf("snapshot leaked to caller: %q", second[0].Name)
	}

	clock.t = clock.t.Add(2 * time.Minute)
	_ = c.Datasets(context.Background())
	if src.calls != 2 {
		t.Fatalf("expected reload after ttl, got %d loads", src.calls)
	}
}

func TestCacheFailureWithoutSnapshotIsEmpty(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: errors.New("502 bad gateway")}
	ev := &events{}
	c := New(Dependency{Source: src, Events: ev})

	got := c.Datasets(context.Background())
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}

	kinds := ev.kinds()
	if len(kinds) != 1 || kinds[0] != entity.EventCatalogLoadFailed {
		t.Fatalf("expected catalog failure notice, got %v", kinds)
	}
}

func TestCacheRefreshFailureKeepsLastGood(t *testing.T) {
	t.Parallel()

	src := &fakeSource{datasets: sales()}
	ev := &events{}
	c := New(Dependency{Source: src, Events: ev})

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	src.set(nil, errors.New("timeout"))
	got, err := c.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected refresh error")
	}
	if len(got) != 1 || got[0].Name != "sales" {
		t.Fatalf("expected last good snapshot, got %#v", got)
	}
}

func TestCacheRefreshSharesInflightLoad(t *testing.T) {
	t.Parallel()

	src := &fakeSource{datasets: sales(), gate: make(chan struct{})}
	c := New(Dependency{Source: src})

	var wg sync.WaitGroup
	var started sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		started.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			_, _ = c.Refresh(context.Background())
		}()
	}

	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if n := atomic.LoadInt32(&src.calls); n != 1 {
		t.Fatalf("expected one shared load, got %d", n)
	}
}
