package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgtrace"
	"github.com/shandysiswandi/gostage/internal/pkg/pkguid"
	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 5 * time.Minute

// Source fetches the current dataset list from the catalog service.
type Source interface {
	Datasets(ctx context.Context) ([]entity.Dataset, error)
}

type Publisher interface {
	Publish(ctx context.Context, event entity.Event) error
}

type Dependency struct {
	Source Source
	Events Publisher
	ID     pkguid.StringID
	TTL    time.Duration
	Now    func() time.Time
}

// Cache serves the dataset list from memory and reloads it once the TTL has
// passed. Concurrent reloads share one request. A failed reload keeps the
// last good snapshot and publishes a notice.
type Cache struct {
	source Source
	events Publisher
	id     pkguid.StringID
	ttl    time.Duration
	now    func() time.Time

	flight singleflight.Group

	mu       sync.RWMutex
	snapshot []entity.Dataset
	loadedAt time.Time
	loaded   bool
}

func New(dep Dependency) *Cache {
	ttl := dep.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := dep.Now
	if now == nil {
		now = time.Now
	}

	return &Cache{
		source: dep.Source,
		events: dep.Events,
		id:     dep.ID,
		ttl:    ttl,
		now:    now,
	}
}

// Datasets never fails; on load failure it returns the last good snapshot or
// an empty list.
func (c *Cache) Datasets(ctx context.Context) []entity.Dataset {
	c.mu.RLock()
	fresh := c.loaded && c.now().Sub(c.loadedAt) < c.ttl
	snapshot := c.snapshot
	c.mu.RUnlock()

	if fresh {
		return cloneDatasets(snapshot)
	}

	datasets, _ := c.Refresh(ctx)
	return datasets
}

func (c *Cache) Refresh(ctx context.Context) ([]entity.Dataset, error) {
	v, err, _ := c.flight.Do("datasets", func() (any, error) {
		return c.load(context.WithoutCancel(ctx))
	})
	if err != nil {
		return c.fallback(), err
	}

	return cloneDatasets(v.([]entity.Dataset)), nil
}

func (c *Cache) load(ctx context.Context) (out []entity.Dataset, err error) {
	ctx, span := pkgtrace.Start(ctx, "catalog.load")
	defer func() { pkgtrace.End(span, err) }()

	if c.source == nil {
		return []entity.Dataset{}, nil
	}

	datasets, err := c.source.Datasets(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to load dataset catalog", "error", err)
		c.publishFailure(ctx, err)
		return nil, err
	}
	if datasets == nil {
		datasets = []entity.Dataset{}
	}

	c.mu.Lock()
	c.snapshot = datasets
	c.loadedAt = c.now()
	c.loaded = true
	c.mu.Unlock()

	return datasets, nil
}

func (c *Cache) fallback() []entity.Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded {
		return []entity.Dataset{}
	}
	return cloneDatasets(c.snapshot)
}

func (c *Cache) publishFailure(ctx context.Context, cause error) {
	if c.events == nil {
		return
	}

	event := entity.Event{
		Kind:    entity.EventCatalogLoadFailed,
		Message: "could not load datasets: " + cause.Error(),
		At:      c.now(),
	}
	if c.id != nil {
		event.ID = c.id.Generate()
	}

	if err := c.events.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "kind", event.Kind, "error", err)
	}
}

func cloneDatasets(in []entity.Dataset) []entity.Dataset {
	out := make([]entity.Dataset, len(in))
	for i, d := range in {
		out[i] = entity.Dataset{ID: d.ID, Name: d.Name, Tables: make([]entity.Table, len(d.Tables))}
		for j, t := range d.Tables {
			out[i].Tables[j] = entity.Table{ID: t.ID, Name: t.Name, Schema: t.Schema.Clone()}
		}
	}
	return out
}
