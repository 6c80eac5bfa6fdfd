package cache

import "time"

// entry is one cached resource. Entries are never updated in place: a refresh
// removes the old record and pushes a new one.
type entry struct {
	key         string
	value       any
	cachedAt    time.Time
	sourcePath  string
	sourceMtime time.Time
	hasMtime    bool
	sizeBytes   int

	// seq breaks cachedAt ties so eviction order follows insertion order.
	seq uint64
	// index is the position in the heap, maintained by entryHeap.
	index int
}

// entryHeap is a min-heap ordered by (cachedAt, seq). The root is always the
// next eviction candidate.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].cachedAt.Equal(h[j].cachedAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].cachedAt.Before(h[j].cachedAt)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	ent := x.(*entry)
	ent.index = len(*h)
	*h = append(*h, ent)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	ent := old[n-1]
	old[n-1] = nil
	ent.index = -1
	*h = old[:n-1]
	return ent
}
