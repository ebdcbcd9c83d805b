// Package monitor runs the per-match state machine that turns live snapshots into
// quote-jump alerts: debounced goal detection, baseline sampling, rise evaluation,
// and settlement of fired signals.
package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/quotejump/internal/logger"
	"github.com/rewired-gh/quotejump/internal/models"
)

// Strategy is a named rise rule: the minute window the rise must happen in, the
// accepted rise range, and the target the alert implies.
type Strategy struct {
	Name      string
	MinMinute int
	MaxMinute int
	MinRise   float64
	MaxRise   float64 // 0 disables the glitch guard
	Target    models.Target
	FollowUp  *models.Target
}

func (s Strategy) covers(minute int) bool {
	return minute >= s.MinMinute && minute <= s.MaxMinute
}

// Validate checks strategy constraints.
func (s Strategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	if s.MinMinute < 0 || s.MaxMinute < s.MinMinute {
		return fmt.Errorf("strategy %s: minute window [%d,%d] is invalid", s.Name, s.MinMinute, s.MaxMinute)
	}
	if s.MinRise <= 0 {
		return fmt.Errorf("strategy %s: min_rise must be positive", s.Name)
	}
	if s.MaxRise != 0 && s.MaxRise < s.MinRise {
		return fmt.Errorf("strategy %s: max_rise must be 0 or at least min_rise", s.Name)
	}
	if err := s.Target.Validate(); err != nil {
		return fmt.Errorf("strategy %s: target: %w", s.Name, err)
	}
	if s.FollowUp != nil {
		if err := s.FollowUp.Validate(); err != nil {
			return fmt.Errorf("strategy %s: follow_up: %w", s.Name, err)
		}
	}
	return nil
}

// DefaultStrategies returns the built-in early and late window rules.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name:      "early-window",
			MinMinute: 0,
			MaxMinute: 45,
			MinRise:   0.06,
			Target:    models.Target{Checkpoint: models.CheckpointHalfTime, MinGoals: 2},
			FollowUp:  &models.Target{Checkpoint: models.CheckpointFullTime, MinGoals: 2},
		},
		{
			Name:      "late-window",
			MinMinute: 46,
			MaxMinute: 80,
			MinRise:   0.06,
			Target:    models.Target{Checkpoint: models.CheckpointFullTime, MinGoals: 2},
		},
	}
}

type Config struct {
	ConfirmPolls     int
	SettleDelay      time.Duration
	SampleInterval   time.Duration
	Samples          int
	BandMin          float64
	BandMax          float64
	MaxPrice         float64
	MissLimit        int
	EvictAfterCycles int
	MaxAge           time.Duration
	Stake            float64
	Strategies       []Strategy
}

func DefaultConfig() Config {
	return Config{
		ConfirmPolls:     2,
		SettleDelay:      60 * time.Second,
		SampleInterval:   20 * time.Second,
		Samples:          3,
		BandMin:          1.30,
		BandMax:          1.80,
		MaxPrice:         2.20,
		MissLimit:        5,
		EvictAfterCycles: 3,
		MaxAge:           4 * time.Hour,
		Stake:            10,
		Strategies:       DefaultStrategies(),
	}
}

// Result is what one poll cycle produced.
type Result struct {
	Alerts  []models.Alert
	Settled []models.Signal
	Evicted []string
	Failed  []string // matches whose processing panicked this cycle
}

// Monitor owns the match registry and advances every match once per poll.
// All methods are safe for concurrent use; a poll holds the lock for its duration.
type Monitor struct {
	mu       sync.Mutex
	registry *registry
	config   Config
	summary  models.Summary
	cycle    int

	// inspect, when set, runs on every snapshot before its match is advanced.
	inspect func(*models.MatchSnapshot)
}

func New(config Config) *Monitor {
	if len(config.Strategies) == 0 {
		config.Strategies = DefaultStrategies()
	}
	return &Monitor{
		registry: newRegistry(config.EvictAfterCycles, config.MaxAge),
		config:   config,
	}
}

// ProcessPoll advances every snapshotted match by one cycle and evicts stale ones.
// A failure in one match is logged and never aborts the others.
func (m *Monitor) ProcessPoll(snapshots []models.MatchSnapshot, now time.Time) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cycle++
	var res Result
	seen := make(map[string]bool, len(snapshots))

	for i := range snapshots {
		snap := &snapshots[i]
		if err := snap.Validate(); err != nil {
			logger.Warn("Skipping invalid snapshot %q: %v", snap.ID, err)
			continue
		}
		// A fixture listed twice in one payload is still one observation.
		if seen[snap.ID] {
			logger.Debug("Skipping duplicate snapshot for match %s in cycle %d", snap.ID, m.cycle)
			continue
		}
		seen[snap.ID] = true

		alerts, settled, err := m.processMatch(snap)
		if err != nil {
			res.Failed = append(res.Failed, snap.ID)
			logger.Error("Match %s: %v", snap.ID, err)
			continue
		}
		res.Alerts = append(res.Alerts, alerts...)
		res.Settled = append(res.Settled, settled...)
	}

	res.Evicted = m.registry.evict(m.cycle, now)
	for _, id := range res.Evicted {
		logger.Debug("Evicted match %s", id)
	}

	logger.Debug("Cycle %d: %d snapshots, %d tracked, %d alerts, %d settled, %d evicted, %d failed",
		m.cycle, len(snapshots), m.registry.len(), len(res.Alerts), len(res.Settled), len(res.Evicted), len(res.Failed))

	return res
}

func (m *Monitor) processMatch(snap *models.MatchSnapshot) (alerts []models.Alert, settled []models.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing: %v", r)
		}
	}()

	if m.inspect != nil {
		m.inspect(snap)
	}
	state := m.registry.resolve(snap, m.cycle)
	if snap.RedCard && !state.redCard {
		state.redCard = true
		logger.Debug("Match %s: red card latched", state.id)
	}

	settled, followUp := m.settle(state, snap)
	if followUp != nil {
		alerts = append(alerts, *followUp)
	}
	if alert := m.advance(state, snap); alert != nil {
		alerts = append(alerts, *alert)
	}
	return alerts, settled, nil
}

// advance runs detection, baseline sampling, and rise evaluation for a live match.
func (m *Monitor) advance(state *matchState, snap *models.MatchSnapshot) *models.Alert {
	if state.terminal {
		return nil
	}
	if !state.confirmed {
		m.detectGoal(state, snap)
		return nil
	}
	if snap.Score != state.goalScore {
		logger.Info("Match %s: score moved %s -> %s before alert, abandoning", state.id, state.goalScore, snap.Score)
		state.halt()
		return nil
	}
	if !state.sampleDue(snap.PolledAt, m.config) {
		return nil
	}
	if !snap.OddsRequested {
		// Left out of this poll's odds budget: not a missing price.
		logger.Debug("Match %s: sample due but odds not requested this poll", state.id)
		return nil
	}

	state.lastSample = snap.PolledAt
	price, ok := snap.PriceFor(state.side)
	if !ok {
		m.recordMiss(state)
		return nil
	}
	state.misses = 0
	state.lastPrice = price

	if !state.baselineSet {
		m.collectBaseline(state, price)
		return nil
	}
	return m.evaluateRise(state, snap, price)
}

// PricesWanted filters ids down to the matches that will consume a price on a poll at
// now, longest-waiting first: a match never sampled, then the oldest last sample.
// Matches cut by an odds budget keep their sample time and so move up next poll.
func (m *Monitor) PricesWanted(ids []string, now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var wanted []*matchState
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		state, ok := m.registry.get(id)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		if state.awaitingPrice(now, m.config) {
			wanted = append(wanted, state)
		}
	}

	sort.SliceStable(wanted, func(i, j int) bool {
		a, b := wanted[i].lastSample, wanted[j].lastSample
		if !a.Equal(b) {
			return a.Before(b)
		}
		return wanted[i].id < wanted[j].id
	})
	out := make([]string, len(wanted))
	for i, state := range wanted {
		out[i] = state.id
	}
	return out
}

// Summary returns aggregate counts of fired signals by outcome.
func (m *Monitor) Summary() models.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

// Unsettled returns the sorted ids of tracked matches that still hold a pending
// signal. The caller keeps fetching these after they drop off the live feed so
// full-time targets can settle.
func (m *Monitor) Unsettled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, state := range m.registry.states {
		for _, signal := range state.signals {
			if signal.Outcome == models.OutcomePending {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// Tracked returns how many matches the registry currently holds.
func (m *Monitor) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.len()
}

func (m *Monitor) strategyFor(minute int) (Strategy, bool) {
	for _, s := range m.config.Strategies {
		if s.covers(minute) {
			return s, true
		}
	}
	return Strategy{}, false
}

func (m *Monitor) strategyByName(name string) (Strategy, bool) {
	for _, s := range m.config.Strategies {
		if s.Name == name {
			return s, true
		}
	}
	return Strategy{}, false
}
