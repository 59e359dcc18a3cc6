package transport

import (
	"sync"

	"github.com/google/uuid"
)

// StreamID identifies a Stream across reconnects, replacing the source's
// single process-global GStream pointer (quic_api.c) with a proper
// per-stream identity, per SPEC_FULL.md §9's Open Question on the
// single-global-instance design. Grounded on original_source/src/core/
// idhash.h's rationale for an id-keyed table of live objects, and on the
// teacher's portForConnIndex map/mutex pattern in connection/quic.go.
type StreamID uuid.UUID

func newStreamID() StreamID {
	return StreamID(uuid.New())
}

func (id StreamID) String() string {
	return uuid.UUID(id).String()
}

// Registry is a concurrent-safe table of live Streams keyed by StreamID. A
// process embedding QST may run many independent Streams (e.g. one per
// upstream broker); Registry lets a caller enumerate or look one up by ID
// without threading a reference through application code, the same role
// idhash_t plays for NanoNNG's pipes and the dialer map plays for
// cloudflared's per-connection-index state.
type Registry struct {
	mu      sync.RWMutex
	streams map[StreamID]*Stream
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[StreamID]*Stream)}
}

func (r *Registry) add(s *Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[s.id] = s
}

func (r *Registry) remove(id StreamID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, id)
}

// Get looks up a Stream by ID.
func (r *Registry) Get(id StreamID) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	return s, ok
}

// Len reports the number of live Streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// Each calls fn for every live Stream. fn must not call back into Registry.
func (r *Registry) Each(fn func(id StreamID, s *Stream)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, s := range r.streams {
		fn(id, s)
	}
}
