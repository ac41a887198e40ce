package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
)

type Handler interface {
	Handle(ctx context.Context, event entity.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event entity.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event entity.Event) error {
	return f(ctx, event)
}

type ConsumerConfig struct {
	Workers     int
	MaxRetries  int
	BaseBackoff time.Duration
	// SeenWindow bounds how many event ids are remembered for dedup.
	SeenWindow int
}

// NoticeConsumer delivers every published event to each handler, retrying a
// failing handler with exponential backoff. An event id is delivered once.
type NoticeConsumer struct {
	bus         *Bus
	handlers    []Handler
	workers     int
	maxRetries  int
	baseBackoff time.Duration
	seen        *seenSet
	wg          sync.WaitGroup
}

func NewNoticeConsumer(bus *Bus, cfg ConsumerConfig, handlers ...Handler) *NoticeConsumer {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	baseBackoff := cfg.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 100 * time.Millisecond
	}

	window := cfg.SeenWindow
	if window < 1 {
		window = 1024
	}

	return &NoticeConsumer{
		bus:         bus,
		handlers:    handlers,
		workers:     workers,
		maxRetries:  maxRetries,
		baseBackoff: baseBackoff,
		seen:        newSeenSet(window),
	}
}

func (c *NoticeConsumer) Start() {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
}

// Stop closes the bus and waits for queued events to drain.
func (c *NoticeConsumer) Stop(ctx context.Context) error {
	if c.bus != nil {
		c.bus.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *NoticeConsumer) worker() {
	defer c.wg.Done()

	for event := range c.bus.Subscribe() {
		c.processEvent(event)
	}
}

func (c *NoticeConsumer) processEvent(event entity.Event) {
	if event.ID != "" && !c.seen.add(event.ID) {
		slog.Info("skip duplicate notice", "event_id", event.ID, "kind", event.Kind)
		return
	}

	for _, h := range c.handlers {
		c.deliver(h, event)
	}
}

func (c *NoticeConsumer) deliver(h Handler, event entity.Event) {
	backoff := c.baseBackoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err := h.Handle(context.Background(), event)
		if err == nil {
			return
		}

		if attempt == c.maxRetries {
			slog.Error("failed to deliver notice after retries", "event_id", event.ID, "kind", event.Kind, "error", err)
			return
		}

		sleepBackoff(backoff)
		backoff *= 2
	}
}

func sleepBackoff(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	<-timer.C
}

// seenSet remembers the last n ids.
type seenSet struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	ring []string
	next int
}

func newSeenSet(n int) *seenSet {
	return &seenSet{ids: make(map[string]struct{}, n), ring: make([]string, n)}
}

// add reports false when id was already remembered.
func (s *seenSet) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}

	if old := s.ring[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.ring[s.next] = id
	s.next = (s.next + 1) % len(s.ring)
	s.ids[id] = struct{}{}
	return true
}

// LogHandler writes each notice to the structured log.
type LogHandler struct{}

func (LogHandler) Handle(ctx context.Context, event entity.Event) error {
	level := slog.LevelInfo
	switch event.Kind {
	case entity.EventCommitPartiallyFailed, entity.EventCatalogLoadFailed, entity.EventSchemaDetectionFailed:
		level = slog.LevelWarn
	}

	slog.Log(ctx, level, "session notice",
		"event_id", event.ID,
		"kind", event.Kind,
		"commit_id", event.CommitID,
		"files", event.Files,
		"message", event.Message,
	)
	return nil
}
