// Package models defines the core domain entities: live match snapshots, alerts, and signals.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Side identifies which team a price or goal belongs to.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// Score is a scoreline as reported by the feed.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

func (s Score) Total() int { return s.Home + s.Away }

func (s Score) IsZero() bool { return s.Home == 0 && s.Away == 0 }

// IsSingleGoal reports whether the score is exactly 1-0 or 0-1.
func (s Score) IsSingleGoal() bool {
	return (s.Home == 1 && s.Away == 0) || (s.Home == 0 && s.Away == 1)
}

// ScoringSide returns the side leading a single-goal score.
func (s Score) ScoringSide() Side {
	if s.Home > s.Away {
		return SideHome
	}
	return SideAway
}

func (s Score) String() string {
	return fmt.Sprintf("%d-%d", s.Home, s.Away)
}

// MatchSnapshot is one poll's view of a live match. Immutable once built.
type MatchSnapshot struct {
	ID        string    `json:"id"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	League    string    `json:"league"`
	Score     Score     `json:"score"`
	HalfTime  *Score    `json:"half_time,omitempty"`
	Minute    int       `json:"minute"`
	Status    string    `json:"status"`
	RedCard   bool      `json:"red_card"`
	HomePrice *float64  `json:"home_price,omitempty"`
	AwayPrice *float64  `json:"away_price,omitempty"`
	PolledAt  time.Time `json:"polled_at"`

	// OddsRequested is set when the odds endpoint answered for this match on this
	// poll. Absent prices only count as missing when it is true.
	OddsRequested bool `json:"odds_requested"`
}

// Validate checks snapshot field constraints.
func (m *MatchSnapshot) Validate() error {
	if m.ID == "" {
		return errors.New("match ID must not be empty")
	}
	if m.Score.Home < 0 || m.Score.Away < 0 {
		return errors.New("score must not be negative")
	}
	if m.HalfTime != nil && (m.HalfTime.Home < 0 || m.HalfTime.Away < 0) {
		return errors.New("half-time score must not be negative")
	}
	if m.Minute < 0 {
		return errors.New("minute must not be negative")
	}
	if m.HomePrice != nil && *m.HomePrice <= 0 {
		return errors.New("home price must be positive")
	}
	if m.AwayPrice != nil && *m.AwayPrice <= 0 {
		return errors.New("away price must be positive")
	}
	if m.PolledAt.IsZero() {
		return errors.New("polled at must be set")
	}
	return nil
}

// PriceFor returns the moneyline price for side, if the feed offered one.
func (m *MatchSnapshot) PriceFor(side Side) (float64, bool) {
	p := m.AwayPrice
	if side == SideHome {
		p = m.HomePrice
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// HalfTimeReached reports whether the first half is over.
func (m *MatchSnapshot) HalfTimeReached() bool {
	if m.HalfTime != nil {
		return true
	}
	switch m.Status {
	case "HT", "2H", "ET", "BT", "P", "FT", "AET", "PEN":
		return true
	}
	return false
}

// FullTimeReached reports whether the match has finished.
func (m *MatchSnapshot) FullTimeReached() bool {
	switch m.Status {
	case "FT", "AET", "PEN":
		return true
	}
	return false
}

// Title renders "Home - Away" for messages and logs.
func (m *MatchSnapshot) Title() string {
	return m.HomeTeam + " - " + m.AwayTeam
}
