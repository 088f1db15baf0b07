package connection

import (
	"sync"
	"time"

	"github.com/luongdev/rtcfeatures/pkg/stats"
)

// Connection is the ordered snapshot sequence of one peer connection.
// Snapshots may contain nil entries for captures that could not be parsed.
type Connection struct {
	ID        string
	Snapshots []*stats.Snapshot
}

// Registry tracks processing status of every connection seen. Connection ids
// are only unique within a dump, so entries are keyed by Key(dumpID, id).
type Registry interface {
	// Begin marks a connection of a dump as being processed
	Begin(dumpID, id string, snapshots int)

	// Finish records the outcome of processing a connection of a dump
	Finish(dumpID, id string, records int, err error)

	// GetStatus returns status for all connections, keyed by Key
	GetStatus() map[string]ConnectionStatus

	// Active returns how many connections are being processed
	Active() int
}

// Key returns the registry key of a connection within a dump
func Key(dumpID, id string) string {
	if dumpID == "" {
		return id
	}
	return dumpID + "/" + id
}

// ConnectionStatus represents the processing status of a connection
type ConnectionStatus struct {
	DumpID       string    `json:"dumpId,omitempty"`
	ConnectionID string    `json:"connectionId"`
	Processing   bool      `json:"processing"`
	Snapshots    int       `json:"snapshots"`
	Records      int       `json:"records"`
	LastError    string    `json:"lastError,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt,omitempty"`
}

type registry struct {
	mu       sync.RWMutex
	statuses map[string]*ConnectionStatus
	limit    int
	order    []string
}

// NewRegistry creates a registry keeping at most limit finished connections; 0 keeps all
func NewRegistry(limit int) Registry {
	return &registry{
		statuses: make(map[string]*ConnectionStatus),
		limit:    limit,
	}
}

func (r *registry) Begin(dumpID, id string, snapshots int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key(dumpID, id)
	if _, ok := r.statuses[key]; !ok {
		r.order = append(r.order, key)
	}
	r.statuses[key] = &ConnectionStatus{
		DumpID:       dumpID,
		ConnectionID: id,
		Processing:   true,
		Snapshots:    snapshots,
		StartedAt:    time.Now(),
	}
	r.evict()
}

func (r *registry) Finish(dumpID, id string, records int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key(dumpID, id)
	st, ok := r.statuses[key]
	if !ok {
		st = &ConnectionStatus{DumpID: dumpID, ConnectionID: id, StartedAt: time.Now()}
		r.statuses[key] = st
		r.order = append(r.order, key)
	}
	st.Processing = false
	st.Records = records
	st.FinishedAt = time.Now()
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
	r.evict()
}

// evict drops the oldest finished connections over the limit
func (r *registry) evict() {
	if r.limit <= 0 || len(r.order) <= r.limit {
		return
	}
	kept := r.order[:0]
	excess := len(r.order) - r.limit
	for _, key := range r.order {
		if excess > 0 && !r.statuses[key].Processing {
			delete(r.statuses, key)
			excess--
			continue
		}
		kept = append(kept, key)
	}
	r.order = kept
}

func (r *registry) GetStatus() map[string]ConnectionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ConnectionStatus, len(r.statuses))
	for key, st := range r.statuses {
		out[key] = *st
	}
	return out
}

func (r *registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, st := range r.statuses {
		if st.Processing {
			n++
		}
	}
	return n
}
