// Package cache holds the client's local view of the shared task list.
// It is the only state the UI reads; the coordinators are its only
// writers. Every read returns a deep copy so a snapshot taken before an
// optimistic write cannot be aliased by later mutations.
package cache

import (
	"sync"

	"github.com/avelar/taskhub/pkg/models"
)

type Cache struct {
	mu     sync.RWMutex
	order  []string
	tasks  map[string]*models.Task
	subs   map[int]func()
	nextID int
}

func New() *Cache {
	return &Cache{
		tasks: make(map[string]*models.Task),
		subs:  make(map[int]func()),
	}
}

// Subscribe registers an observer called after every mutation. The
// returned function removes the subscription.
func (c *Cache) Subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Cache) notify() {
	c.mu.RLock()
	fns := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// Get returns a deep copy of the task, or nil if absent.
func (c *Cache) Get(id string) *models.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tasks[id].Clone()
}

// List returns deep copies of all tasks in insertion order.
func (c *Cache) List() []*models.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Task, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tasks[id].Clone())
	}
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Put inserts or replaces a task. New ids append to the insertion order;
// existing ids keep their position.
func (c *Cache) Put(t *models.Task) {
	c.mu.Lock()
	if _, ok := c.tasks[t.ID]; !ok {
		c.order = append(c.order, t.ID)
	}
	c.tasks[t.ID] = t.Clone()
	c.mu.Unlock()
	c.notify()
}

// PutAll inserts or replaces a batch of tasks as one mutation, notifying
// observers once regardless of batch size.
func (c *Cache) PutAll(tasks []*models.Task) {
	c.ApplyBatch(tasks, nil)
}

// ApplyBatch puts and deletes in one mutation, notifying observers once.
// Bulk operations use it so a whole batch reads as a single change.
func (c *Cache) ApplyBatch(puts []*models.Task, deleteIDs []string) {
	c.mu.Lock()
	for _, t := range puts {
		if _, ok := c.tasks[t.ID]; !ok {
			c.order = append(c.order, t.ID)
		}
		c.tasks[t.ID] = t.Clone()
	}
	for _, id := range deleteIDs {
		if _, ok := c.tasks[id]; !ok {
			continue
		}
		delete(c.tasks, id)
		for i, oid := range c.order {
			if oid == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Cache) Delete(id string) {
	c.mu.Lock()
	if _, ok := c.tasks[id]; ok {
		delete(c.tasks, id)
		for i, oid := range c.order {
			if oid == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
	c.notify()
}

// ReplaceAll swaps in a fresh authoritative task list, discarding the
// current contents and insertion order.
func (c *Cache) ReplaceAll(tasks []*models.Task) {
	c.mu.Lock()
	c.order = make([]string, 0, len(tasks))
	c.tasks = make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		c.order = append(c.order, t.ID)
		c.tasks[t.ID] = t.Clone()
	}
	c.mu.Unlock()
	c.notify()
}

// Snapshot is the rollback unit for an optimistic write: deep copies of
// the captured tasks plus their insertion-order positions, so a failed
// operation restores both values and ordering.
type Snapshot struct {
	tasks     []*models.Task
	positions map[string]int
}

// Tasks returns the snapshotted tasks in capture order.
func (s Snapshot) Tasks() []*models.Task {
	return s.tasks
}

// Snapshot deep-copies the named tasks as they stand right now. Ids not
// present are skipped. On failure the caller passes the result back to
// Restore unchanged.
func (c *Cache) Snapshot(ids ...string) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pos := make(map[string]int, len(c.order))
	for i, id := range c.order {
		pos[id] = i
	}

	snap := Snapshot{positions: make(map[string]int, len(ids))}
	for _, id := range ids {
		if t, ok := c.tasks[id]; ok {
			snap.tasks = append(snap.tasks, t.Clone())
			snap.positions[id] = pos[id]
		}
	}
	return snap
}

// Restore writes snapshot tasks back as one mutation, replacing whatever
// is there now. Tasks that were deleted since the snapshot are re-inserted
// at their original positions.
func (c *Cache) Restore(snap Snapshot) {
	c.mu.Lock()
	for _, t := range snap.tasks {
		if _, ok := c.tasks[t.ID]; !ok {
			p, ok := snap.positions[t.ID]
			if !ok || p > len(c.order) {
				p = len(c.order)
			}
			c.order = append(c.order, "")
			copy(c.order[p+1:], c.order[p:])
			c.order[p] = t.ID
		}
		c.tasks[t.ID] = t.Clone()
	}
	c.mu.Unlock()
	c.notify()
}
