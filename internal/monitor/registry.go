package monitor

import (
	"sort"
	"time"

	"github.com/rewired-gh/quotejump/internal/models"
)

// registry holds exactly one matchState per live match id.
// Not safe for concurrent use; Monitor serializes access.
type registry struct {
	states     map[string]*matchState
	evictAfter int
	maxAge     time.Duration
}

func newRegistry(evictAfter int, maxAge time.Duration) *registry {
	return &registry{
		states:     make(map[string]*matchState),
		evictAfter: evictAfter,
		maxAge:     maxAge,
	}
}

// resolve returns the state for snap.ID, creating it seeded with the snapshot's
// score on first sight, and stamps it as seen in cycle.
func (r *registry) resolve(snap *models.MatchSnapshot, cycle int) *matchState {
	state, exists := r.states[snap.ID]
	if !exists {
		state = &matchState{
			id:         snap.ID,
			firstScore: snap.Score,
			firstSeen:  snap.PolledAt,
		}
		r.states[snap.ID] = state
	}
	state.lastSeen = cycle
	return state
}

func (r *registry) get(id string) (*matchState, bool) {
	state, ok := r.states[id]
	return state, ok
}

// evict drops states missing from the last evictAfter cycles or older than maxAge.
// Returns the evicted ids in sorted order.
func (r *registry) evict(cycle int, now time.Time) []string {
	var evicted []string
	for id, state := range r.states {
		absent := cycle-state.lastSeen >= r.evictAfter
		expired := r.maxAge > 0 && now.Sub(state.firstSeen) > r.maxAge
		if absent || expired {
			delete(r.states, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

func (r *registry) len() int {
	return len(r.states)
}
