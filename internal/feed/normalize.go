package feed

import (
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/quotejump/internal/models"
)

var liveStatuses = map[string]bool{
	"1H": true, "HT": true, "2H": true, "ET": true, "BT": true, "P": true, "LIVE": true,
	"SUSP": true, "INT": true, // interrupted matches keep their state until they resume
}

var finishedStatuses = map[string]bool{
	"FT": true, "AET": true, "PEN": true,
}

var moneylineMarkets = map[string]bool{
	"match winner":    true,
	"fulltime result": true,
	"1x2":             true,
}

// toSnapshot maps a fixture to a snapshot; ok is false for fixtures that are
// neither live nor finished.
func toSnapshot(item fixtureItem, polledAt time.Time) (models.MatchSnapshot, bool) {
	status := item.Fixture.Status.Short
	if !liveStatuses[status] && !finishedStatuses[status] {
		return models.MatchSnapshot{}, false
	}

	snap := models.MatchSnapshot{
		ID:       strconv.FormatInt(item.Fixture.ID, 10),
		HomeTeam: item.Teams.Home.Name,
		AwayTeam: item.Teams.Away.Name,
		League:   leagueLabel(item.League.Country, item.League.Name),
		Score:    item.Goals.score(),
		Status:   status,
		PolledAt: polledAt,
	}
	if item.Fixture.Status.Elapsed != nil {
		snap.Minute = *item.Fixture.Status.Elapsed
	}
	if item.Score.Halftime.Home != nil && item.Score.Halftime.Away != nil && status != "1H" {
		ht := item.Score.Halftime.score()
		snap.HalfTime = &ht
	}
	for _, ev := range item.Events {
		if strings.EqualFold(ev.Type, "card") && strings.Contains(strings.ToLower(ev.Detail), "red") {
			snap.RedCard = true
			break
		}
	}
	return snap, true
}

func (g goals) score() models.Score {
	var s models.Score
	if g.Home != nil {
		s.Home = *g.Home
	}
	if g.Away != nil {
		s.Away = *g.Away
	}
	return s
}

func leagueLabel(country, name string) string {
	if country == "" {
		return name
	}
	return country + " - " + name
}

// leagueAllowed applies case-insensitive substring filters; an empty include
// list admits every league not excluded.
func leagueAllowed(league string, include, exclude []string) bool {
	l := strings.ToLower(league)
	for _, kw := range exclude {
		if kw != "" && strings.Contains(l, strings.ToLower(kw)) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, kw := range include {
		if kw != "" && strings.Contains(l, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// bestMoneyline returns the highest non-suspended home and away prices across
// every bookmaker's moneyline market.
func bestMoneyline(item oddsItem) (home, away *float64) {
	markets := append([]market(nil), item.Odds...)
	for _, b := range item.Bookmakers {
		markets = append(markets, b.Bets...)
	}

	for _, mk := range markets {
		if !moneylineMarkets[strings.ToLower(mk.Name)] {
			continue
		}
		for _, v := range mk.Values {
			if v.Suspended {
				continue
			}
			odd, err := strconv.ParseFloat(strings.TrimSpace(v.Odd), 64)
			if err != nil || odd <= 1.0 {
				continue
			}
			switch strings.ToLower(v.Value) {
			case "home", "1":
				home = maxPrice(home, odd)
			case "away", "2":
				away = maxPrice(away, odd)
			}
		}
	}
	return home, away
}

func maxPrice(cur *float64, v float64) *float64 {
	if cur == nil || v > *cur {
		return &v
	}
	return cur
}
