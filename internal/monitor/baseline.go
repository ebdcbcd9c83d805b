package monitor

import (
	"github.com/rewired-gh/quotejump/internal/logger"
)

// collectBaseline appends an in-band price sample and resolves the baseline as the
// buffer minimum once it holds Samples entries. An out-of-band price halts the match.
func (m *Monitor) collectBaseline(state *matchState, price float64) {
	if price < m.config.BandMin || price > m.config.BandMax {
		logger.Info("Match %s: price %.2f outside band %.2f-%.2f, abandoning",
			state.id, price, m.config.BandMin, m.config.BandMax)
		state.halt()
		return
	}

	state.samples = append(state.samples, price)
	logger.Debug("Match %s: baseline sample %d/%d = %.2f", state.id, len(state.samples), m.config.Samples, price)
	if len(state.samples) < m.config.Samples {
		return
	}

	state.baseline = minSample(state.samples)
	state.baselineSet = true
	logger.Info("Match %s: baseline %.2f from %v", state.id, state.baseline, state.samples)
}

// recordMiss counts a poll with no price for the scoring side.
func (m *Monitor) recordMiss(state *matchState) {
	state.misses++
	if state.misses >= m.config.MissLimit {
		logger.Info("Match %s: no price for %d consecutive samples, abandoning", state.id, state.misses)
		state.halt()
	}
}

func minSample(samples []float64) float64 {
	lowest := samples[0]
	for _, v := range samples[1:] {
		if v < lowest {
			lowest = v
		}
	}
	return lowest
}
