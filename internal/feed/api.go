package feed

import "encoding/json"

// Wire types for the API-Football v3 endpoints the client calls.

type envelope struct {
	Errors json.RawMessage `json:"errors"`
}

type fixturesResponse struct {
	envelope
	Response []fixtureItem `json:"response"`
}

type fixtureItem struct {
	Fixture struct {
		ID     int64 `json:"id"`
		Status struct {
			Short   string `json:"short"`
			Elapsed *int   `json:"elapsed"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"league"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
	Goals goals `json:"goals"`
	Score struct {
		Halftime goals `json:"halftime"`
	} `json:"score"`
	Events []struct {
		Type   string `json:"type"`
		Detail string `json:"detail"`
	} `json:"events"`
}

type goals struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

type oddsResponse struct {
	envelope
	Response []oddsItem `json:"response"`
}

// oddsItem covers both /odds/live (flat odds) and /odds (per-bookmaker bets).
type oddsItem struct {
	Fixture struct {
		ID int64 `json:"id"`
	} `json:"fixture"`
	Odds       []market    `json:"odds"`
	Bookmakers []bookmaker `json:"bookmakers"`
}

type bookmaker struct {
	Name string   `json:"name"`
	Bets []market `json:"bets"`
}

type market struct {
	ID     int           `json:"id"`
	Name   string        `json:"name"`
	Values []marketValue `json:"values"`
}

type marketValue struct {
	Value     string `json:"value"`
	Odd       string `json:"odd"`
	Suspended bool   `json:"suspended"`
}
