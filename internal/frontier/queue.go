package frontier

import (
	"sort"
	"sync"
)

// PushResult tells the caller what Push did with a task.
type PushResult int

const (
	Queued PushResult = iota
	Duplicate
	TooDeep
	Invalid
)

func (r PushResult) String() string {
	switch r {
	case Queued:
		return "queued"
	case Duplicate:
		return "duplicate"
	case TooDeep:
		return "too-deep"
	default:
		return "invalid"
	}
}

// Frontier is the FIFO of pending tasks. A URL is tracked from the moment
// it is pushed until it is committed to Visited: while queued, while in
// flight, and afterwards in Visited, so it can never be pushed twice.
type Frontier struct {
	mu          sync.Mutex
	maxDepth    int
	elements    []URLTask
	pending     map[string]struct{} // queued or in flight
	inflight    map[string]URLTask
	visited     *Visited
	totalQueued int
}

func New(maxDepth int) *Frontier {
	return NewWithVisited(maxDepth, NewVisited())
}

func NewWithVisited(maxDepth int, visited *Visited) *Frontier {
	return &Frontier{
		maxDepth: maxDepth,
		elements: make([]URLTask, 0),
		pending:  make(map[string]struct{}),
		inflight: make(map[string]URLTask),
		visited:  visited,
	}
}

// Push appends the task unless its URL is already known or it is deeper
// than the configured maximum. The dedup check and insert are atomic.
func (f *Frontier) Push(t URLTask) PushResult {
	if t.Depth < 0 {
		return Invalid
	}
	norm, err := Normalize(t.URL)
	if err != nil {
		return Invalid
	}
	if t.Depth > f.maxDepth {
		return TooDeep
	}
	t.URL = norm

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[norm]; ok {
		return Duplicate
	}
	if f.visited.Has(norm) {
		return Duplicate
	}
	f.pending[norm] = struct{}{}
	f.elements = append(f.elements, t)
	f.totalQueued++
	return Queued
}

// Pop removes the oldest task and marks it in flight.
func (f *Frontier) Pop() (URLTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.elements) == 0 {
		return URLTask{}, false
	}
	t := f.elements[0]
	f.elements[0] = URLTask{}
	f.elements = f.elements[1:]
	f.inflight[t.URL] = t
	return t, true
}

// Commit moves an in-flight URL into Visited.
func (f *Frontier) Commit(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inflight, u)
	delete(f.pending, u)
	f.visited.Add(u)
}

// Restore puts an in-flight task back at the head of the queue. Used only
// for tasks that never reached the network.
func (f *Frontier) Restore(t URLTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.inflight[t.URL]; !ok {
		return
	}
	delete(f.inflight, t.URL)
	f.elements = append([]URLTask{t}, f.elements...)
}

func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.elements)
}

func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inflight)
}

func (f *Frontier) TotalQueued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalQueued
}

func (f *Frontier) Visited() *Visited { return f.visited }

// Snapshot returns in-flight tasks followed by the queue, i.e. everything
// a resumed crawl still has to fetch.
func (f *Frontier) Snapshot() []URLTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]URLTask, 0, len(f.inflight)+len(f.elements))
	for _, t := range f.inflight {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return append(out, f.elements...)
}

// Restored rebuilds a frontier from a checkpoint. Tasks already in
// visited, duplicated, or deeper than maxDepth are dropped.
func Restored(maxDepth int, visited []string, tasks []URLTask) *Frontier {
	v := NewVisited()
	for _, u := range visited {
		v.Add(u)
	}
	f := NewWithVisited(maxDepth, v)
	for _, t := range tasks {
		f.Push(t)
	}
	return f
}
