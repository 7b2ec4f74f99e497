package rebuild

import (
	"sync"

	"github.com/google/uuid"
	"github.com/dsrb/rebuildd/pkg/types"
)

// ThreadLocalCounters is one worker's view of the active rebuild: its own
// scan/pull progress and the capability handles it was minted for this
// rebuild version. A target process holds one per worker; it is created
// lazily on first touch and torn down by TFH when FINI lands.
//
// Ownership: the owning worker goroutine is the only writer of Scanning,
// ObjCount and RecCount; TQA reads them under CounterSet.mu, which tolerates the
// relaxed in-flight visibility the spec allows ("any non-zero means still
// pulling").
type ThreadLocalCounters struct {
	Scanning      bool
	Status        int32
	ObjCount      uint64
	RecCount      uint64
	ContHandleID  uuid.UUID
	PoolHandleID  uuid.UUID
	PoolHandleSet bool
	LocalRootInit bool
	ServiceList   types.RankList
}

// reset zeroes the counters for a new rebuild version, preserving nothing
// from the previous run.
func (c *ThreadLocalCounters) reset() {
	*c = ThreadLocalCounters{}
}

// teardown closes the rebuild handles for this worker, matching
// ds_rebuild_fini_one: close the pool handle if valid, clear both handle
// UUIDs, drop the service list. LocalRootInit must already be false — it is
// only ever set true by scan-side code outside this package's scope, so this
// package asserts it stays false across teardown.
func (c *ThreadLocalCounters) teardown() {
	c.PoolHandleSet = false
	c.ContHandleID = uuid.Nil
	c.PoolHandleID = uuid.Nil
	c.ServiceList = nil
	if c.LocalRootInit {
		panic("rebuild: local_root_init must be false at TLC teardown")
	}
}

// CounterSet is the per-target collection of ThreadLocalCounters, one slot
// per worker id, lazily allocated on first access. It also tracks the
// pending-pull count per worker (GRS's "pullers" vector), kept separate from
// the richer TLC since it is written far more often and only needs to answer
// "is anyone still pulling".
type CounterSet struct {
	mu       sync.Mutex
	counters map[int]*ThreadLocalCounters
	pullers  map[int]uint32
}

// NewCounterSet returns an empty, ready-to-use per-target counter set.
func NewCounterSet() *CounterSet {
	return &CounterSet{
		counters: make(map[int]*ThreadLocalCounters),
		pullers:  make(map[int]uint32),
	}
}

// Worker returns this worker's counters, allocating them on first access.
func (s *CounterSet) Worker(id int) *ThreadLocalCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	tlc, ok := s.counters[id]
	if !ok {
		tlc = &ThreadLocalCounters{}
		s.counters[id] = tlc
	}
	return tlc
}

// SetPullers records worker id's current pending-pull count. Called only by
// the owning worker.
func (s *CounterSet) SetPullers(id int, n uint32) {
	s.mu.Lock()
	s.pullers[id] = n
	s.mu.Unlock()
}

// AnyPulling reports whether any worker has a non-zero pending-pull count.
func (s *CounterSet) AnyPulling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.pullers {
		if n != 0 {
			return true
		}
	}
	return false
}

// Reset reinitializes every allocated worker's TLC for a new rebuild version
// and clears the puller counts, without forgetting which worker ids exist.
func (s *CounterSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tlc := range s.counters {
		tlc.reset()
	}
	for id := range s.pullers {
		s.pullers[id] = 0
	}
}

// Teardown runs TFH's per-worker handle teardown across every allocated
// worker (the "collective across this target's workers" step).
func (s *CounterSet) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tlc := range s.counters {
		tlc.teardown()
	}
}

// snapshot copies out the fields TQA's local aggregation needs, without
// handing out pointers into the live counters.
type counterSnapshot struct {
	scanning bool
	status   int32
	objCount uint64
	recCount uint64
}

func (s *CounterSet) snapshot() []counterSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]counterSnapshot, 0, len(s.counters))
	for _, tlc := range s.counters {
		out = append(out, counterSnapshot{
			scanning: tlc.Scanning,
			status:   tlc.Status,
			objCount: tlc.ObjCount,
			recCount: tlc.RecCount,
		})
	}
	return out
}
