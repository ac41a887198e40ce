package event

import (
	"context"
	"sync"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
)

// NoticeLog keeps the most recent notices for clients that poll.
type NoticeLog struct {
	mu     sync.RWMutex
	items  []entity.Event
	limit  int
	offset uint64
}

func NewNoticeLog(limit int) *NoticeLog {
	if limit < 1 {
		limit = 100
	}
	return &NoticeLog{limit: limit}
}

func (l *NoticeLog) Handle(_ context.Context, event entity.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, event)
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append(l.items[:0], l.items[over:]...)
		l.offset += uint64(over)
	}
	return nil
}

// Since returns the notices with a sequence number >= seq, oldest first,
// and the sequence number to poll with next.
func (l *NoticeLog) Since(seq uint64) ([]entity.Event, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	next := l.offset + uint64(len(l.items))
	if seq < l.offset {
		seq = l.offset
	}
	if seq >= next {
		return []entity.Event{}, next
	}

	out := make([]entity.Event, next-seq)
	copy(out, l.items[seq-l.offset:])
	return out, next
}
