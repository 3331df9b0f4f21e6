package frontier

import (
	"sort"
	"sync"
)

// Visited holds every URL that has been dispatched and committed.
// Entries are never removed.
type Visited struct {
	set map[string]struct{}
	mu  sync.Mutex
}

func NewVisited() *Visited {
	return &Visited{
		set: make(map[string]struct{}),
	}
}

// Add reports whether u was newly inserted.
func (v *Visited) Add(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.set[u]; ok {
		return false
	}
	v.set[u] = struct{}{}
	return true
}

func (v *Visited) Has(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.set[u]
	return ok
}

func (v *Visited) Size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.set)
}

// List returns the set sorted, so snapshots are stable across runs.
func (v *Visited) List() []string {
	v.mu.Lock()
	out := make([]string, 0, len(v.set))
	for u := range v.set {
		out = append(out, u)
	}
	v.mu.Unlock()
	sort.Strings(out)
	return out
}
