package monitor

import (
	"github.com/rewired-gh/quotejump/internal/logger"
	"github.com/rewired-gh/quotejump/internal/models"
)

// settle resolves every pending signal of state whose checkpoint snap has reached.
// A lost primary signal with a follow-up target fires the follow-up alert once.
func (m *Monitor) settle(state *matchState, snap *models.MatchSnapshot) ([]models.Signal, *models.Alert) {
	var settled []models.Signal
	var followUp *models.Alert

	for _, signal := range state.signals {
		if signal.Outcome != models.OutcomePending || !signal.Target.Reached(snap) {
			continue
		}
		score, ok := settlementScore(signal.Target, snap)
		if !ok {
			continue
		}
		if err := signal.Settle(score, snap.PolledAt); err != nil {
			logger.Warn("Match %s: %v", state.id, err)
			continue
		}
		m.summary.Pending--
		if signal.Outcome == models.OutcomeWon {
			m.summary.Won++
		} else {
			m.summary.Lost++
		}
		settled = append(settled, *signal)
		logger.Info("Signal settled: %s [%s] %s %s at %s -> %s",
			snap.Title(), state.id, signal.Strategy, signal.Target, score, signal.Outcome)

		if signal.Outcome == models.OutcomeLost && !signal.FollowUp && !state.followUpFired {
			followUp = m.fireFollowUp(state, snap, signal.Strategy)
		}
	}

	return settled, followUp
}

// fireFollowUp emits the one-shot chained alert for strategies that define one.
func (m *Monitor) fireFollowUp(state *matchState, snap *models.MatchSnapshot, name string) *models.Alert {
	strategy, ok := m.strategyByName(name)
	if !ok || strategy.FollowUp == nil {
		return nil
	}
	state.followUpFired = true

	price, ok := snap.PriceFor(state.side)
	if !ok {
		price = state.lastPrice
	}
	alert := m.buildAlert(state, snap, strategy, *strategy.FollowUp, price, true)
	logger.Info("Follow-up fired: %s [%s] %s", snap.Title(), state.id, alert.Target)
	return alert
}

// settlementScore picks the score a target is judged against. Half-time targets use
// the reported half-time score; without one, a current total already short of the
// target proves the half-time total was short too, otherwise settlement waits.
func settlementScore(target models.Target, snap *models.MatchSnapshot) (models.Score, bool) {
	if target.Checkpoint != models.CheckpointHalfTime {
		return snap.Score, true
	}
	switch {
	case snap.HalfTime != nil:
		return *snap.HalfTime, true
	case snap.Status == "HT":
		return snap.Score, true
	case !target.Met(snap.Score):
		return snap.Score, true
	}
	return models.Score{}, false
}
