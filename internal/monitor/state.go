package monitor

import (
	"time"

	"github.com/rewired-gh/quotejump/internal/models"
)

// matchState is the per-match state machine. Owned exclusively by the registry.
type matchState struct {
	id         string
	firstScore models.Score
	firstSeen  time.Time
	lastSeen   int

	pendingScore models.Score
	pendingCount int

	confirmed  bool
	goalScore  models.Score
	goalMinute int
	goalTime   time.Time
	side       models.Side

	samples     []float64
	baseline    float64
	baselineSet bool
	lastSample  time.Time
	lastPrice   float64
	misses      int

	terminal bool
	redCard  bool

	signals       []*models.Signal
	followUpFired bool
}

// halt marks the match terminal: no further price evaluation or alerting.
func (s *matchState) halt() {
	s.terminal = true
}

// sampleDue reports whether the settle delay and sampling interval have both elapsed.
func (s *matchState) sampleDue(now time.Time, cfg Config) bool {
	if !s.confirmed || now.Sub(s.goalTime) < cfg.SettleDelay {
		return false
	}
	return s.lastSample.IsZero() || now.Sub(s.lastSample) >= cfg.SampleInterval
}

// awaitingPrice reports whether the next poll would consume a price for this match.
func (s *matchState) awaitingPrice(now time.Time, cfg Config) bool {
	return !s.terminal && s.sampleDue(now, cfg)
}
