package monitor

import (
	"math"

	"github.com/google/uuid"
	"github.com/rewired-gh/quotejump/internal/logger"
	"github.com/rewired-gh/quotejump/internal/models"
)

// priceEpsilon absorbs float error in decimal odds arithmetic (1.46-1.40 != 0.06).
const priceEpsilon = 1e-9

// evaluateRise applies the rejection rules in order, then fires when the rise over
// the baseline reaches the matched strategy's minimum. Returns nil when nothing fires.
func (m *Monitor) evaluateRise(state *matchState, snap *models.MatchSnapshot, price float64) *models.Alert {
	delta := price - state.baseline

	if state.redCard {
		logger.Info("Match %s: red card observed, abandoning", state.id)
		state.halt()
		return nil
	}
	if price > m.config.MaxPrice {
		logger.Info("Match %s: price %.2f above ceiling %.2f, abandoning", state.id, price, m.config.MaxPrice)
		state.halt()
		return nil
	}
	strategy, ok := m.strategyFor(snap.Minute)
	if !ok {
		logger.Info("Match %s: minute %d outside every strategy window, abandoning", state.id, snap.Minute)
		state.halt()
		return nil
	}
	if strategy.MaxRise > 0 && delta > strategy.MaxRise+priceEpsilon {
		logger.Warn("Match %s: delta %+.2f exceeds %s max %.2f, treating as glitch",
			state.id, delta, strategy.Name, strategy.MaxRise)
		state.halt()
		return nil
	}

	if delta < strategy.MinRise-priceEpsilon {
		logger.Debug("Match %s: %.2f -> %.2f (%+.2f), need %+.2f", state.id, state.baseline, price, delta, strategy.MinRise)
		return nil
	}

	// Terminal before delivery so a failed send can never re-trigger evaluation.
	state.halt()

	alert := m.buildAlert(state, snap, strategy, strategy.Target, price, false)
	logger.Info("Rise detected: %s [%s] %.2f -> %.2f (%+.2f, %+.1f%%) strategy=%s",
		snap.Title(), state.id, alert.Baseline, alert.Price, alert.Delta, alert.RisePct, strategy.Name)
	return alert
}

// buildAlert creates the alert payload and registers its signal for settlement.
func (m *Monitor) buildAlert(state *matchState, snap *models.MatchSnapshot, strategy Strategy, target models.Target, price float64, followUp bool) *models.Alert {
	delta := price - state.baseline
	var pct float64
	if state.baseline > 0 {
		pct = delta / state.baseline * 100
	}

	alert := models.Alert{
		SignalID:   uuid.New().String(),
		MatchID:    state.id,
		HomeTeam:   snap.HomeTeam,
		AwayTeam:   snap.AwayTeam,
		League:     snap.League,
		Score:      snap.Score,
		Minute:     snap.Minute,
		GoalMinute: state.goalMinute,
		Side:       state.side,
		Baseline:   state.baseline,
		Price:      price,
		Delta:      roundPrice(delta),
		RisePct:    math.Round(pct*100) / 100,
		Strategy:   strategy.Name,
		Stake:      m.config.Stake,
		Target:     target,
		FollowUp:   followUp,
		FiredAt:    snap.PolledAt,
	}

	signal := &models.Signal{Alert: alert, Outcome: models.OutcomePending}
	state.signals = append(state.signals, signal)
	m.summary.Add(models.OutcomePending)
	return &alert
}

func roundPrice(v float64) float64 {
	return math.Round(v*10000) / 10000
}
