package monitor

import (
	"github.com/rewired-gh/quotejump/internal/logger"
	"github.com/rewired-gh/quotejump/internal/models"
)

// detectGoal advances the debounced goal confirmation for a match not yet confirmed.
// Only matches first seen at 0-0 are eligible. A single-goal score must be seen on
// ConfirmPolls consecutive polls; anything else clears the pending candidate.
func (m *Monitor) detectGoal(state *matchState, snap *models.MatchSnapshot) {
	if !state.firstScore.IsZero() {
		return
	}

	if !snap.Score.IsSingleGoal() {
		state.pendingCount = 0
		state.pendingScore = models.Score{}
		return
	}

	if state.pendingCount > 0 && snap.Score == state.pendingScore {
		state.pendingCount++
	} else {
		state.pendingScore = snap.Score
		state.pendingCount = 1
	}

	if state.pendingCount < m.config.ConfirmPolls {
		logger.Debug("Match %s: pending goal %s (%d/%d)", state.id, snap.Score, state.pendingCount, m.config.ConfirmPolls)
		return
	}

	state.confirmed = true
	state.goalScore = snap.Score
	state.goalMinute = snap.Minute
	state.goalTime = snap.PolledAt
	state.side = snap.Score.ScoringSide()
	state.samples = make([]float64, 0, m.config.Samples)

	logger.Info("Goal confirmed: %s [%s] %s at %d' (%s scored)",
		snap.Title(), state.id, snap.Score, snap.Minute, state.side)
}
