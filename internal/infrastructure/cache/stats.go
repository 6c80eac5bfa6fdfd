package cache

// Recorder receives every cache event. It lets an exporter (Prometheus in
// production) observe a store without the store knowing about it.
type Recorder interface {
	Hit()
	Miss()
	Eviction()
	Expiration()
	Error()

	// Entries reports the current number of entries after a change.
	Entries(n int)
}

// NoopRecorder ignores all events.
type NoopRecorder struct{}

func (NoopRecorder) Hit()        {}
func (NoopRecorder) Miss()       {}
func (NoopRecorder) Eviction()   {}
func (NoopRecorder) Expiration() {}
func (NoopRecorder) Error()      {}
func (NoopRecorder) Entries(int) {}

// Stats holds cache statistics
type Stats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	Errors      uint64  `json:"errors"`
	Size        int     `json:"size"`
	Bytes       int64   `json:"bytes"`
	HitRate     float64 `json:"hitRate"`
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
