package session

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// PendingRequest tracks one request awaiting its correlated reply.
type PendingRequest struct {
	ID         string
	Command    string
	Generation uint64
	IssuedAt   time.Time
	DeadlineAt time.Time
}

// Outbox stores pending requests by request id.
// Status readers may run off the session loop, hence the lock.
type Outbox struct {
	mu    sync.RWMutex
	items map[string]PendingRequest
}

func NewOutbox() *Outbox {
	return &Outbox{
		items: make(map[string]PendingRequest),
	}
}

func (o *Outbox) Upsert(item PendingRequest) {
	key := strings.TrimSpace(item.ID)
	if key == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[key] = item
}

func (o *Outbox) Remove(id string) {
	key := strings.TrimSpace(id)
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, key)
}

func (o *Outbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

func (o *Outbox) List() []PendingRequest {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingRequest, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Overdue lists requests whose deadline is before now.
func (o *Outbox) Overdue(now time.Time) []PendingRequest {
	var out []PendingRequest
	for _, item := range o.List() {
		if !item.DeadlineAt.IsZero() && item.DeadlineAt.Before(now) {
			out = append(out, item)
		}
	}
	return out
}
