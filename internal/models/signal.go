package models

import (
	"errors"
	"fmt"
	"time"
)

// Checkpoint is the point of the match at which a signal's target is verified.
type Checkpoint string

const (
	CheckpointHalfTime Checkpoint = "half_time"
	CheckpointFullTime Checkpoint = "full_time"
)

// Target is the condition an alert implies: at least MinGoals combined goals by Checkpoint.
type Target struct {
	Checkpoint Checkpoint `json:"checkpoint" mapstructure:"checkpoint"`
	MinGoals   int        `json:"min_goals" mapstructure:"min_goals"`
}

// Met reports whether score satisfies the target.
func (t Target) Met(score Score) bool {
	return score.Total() >= t.MinGoals
}

// Reached reports whether snap is at or past the target checkpoint.
func (t Target) Reached(snap *MatchSnapshot) bool {
	if t.Checkpoint == CheckpointHalfTime {
		return snap.HalfTimeReached()
	}
	return snap.FullTimeReached()
}

func (t Target) String() string {
	label := "FT"
	if t.Checkpoint == CheckpointHalfTime {
		label = "HT"
	}
	return fmt.Sprintf("over %.1f %s", float64(t.MinGoals)-0.5, label)
}

// Validate checks target constraints.
func (t Target) Validate() error {
	if t.Checkpoint != CheckpointHalfTime && t.Checkpoint != CheckpointFullTime {
		return fmt.Errorf("checkpoint must be %q or %q", CheckpointHalfTime, CheckpointFullTime)
	}
	if t.MinGoals < 1 {
		return errors.New("min goals must be at least 1")
	}
	return nil
}

// Alert is the flat payload handed to the alert sink when a rise qualifies.
type Alert struct {
	SignalID   string    `json:"signal_id"`
	MatchID    string    `json:"match_id"`
	HomeTeam   string    `json:"home_team"`
	AwayTeam   string    `json:"away_team"`
	League     string    `json:"league"`
	Score      Score     `json:"score"`
	Minute     int       `json:"minute"`
	GoalMinute int       `json:"goal_minute"`
	Side       Side      `json:"side"`
	Baseline   float64   `json:"baseline"`
	Price      float64   `json:"price"`
	Delta      float64   `json:"delta"`
	RisePct    float64   `json:"rise_pct"`
	Strategy   string    `json:"strategy"`
	Stake      float64   `json:"stake"`
	Target     Target    `json:"target"`
	FollowUp   bool      `json:"follow_up"`
	FiredAt    time.Time `json:"fired_at"`
}

// Outcome is the settlement status of a fired signal.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeWon     Outcome = "won"
	OutcomeLost    Outcome = "lost"
)

// Signal is a fired alert tracked until its target checkpoint.
type Signal struct {
	Alert
	Outcome      Outcome   `json:"outcome"`
	SettledScore *Score    `json:"settled_score,omitempty"`
	SettledAt    time.Time `json:"settled_at,omitempty"`
}

// ErrAlreadySettled is returned when settling a signal that is no longer pending.
var ErrAlreadySettled = errors.New("signal already settled")

// Settle resolves a pending signal against score. Outcomes never change once set.
func (s *Signal) Settle(score Score, at time.Time) error {
	if s.Outcome != OutcomePending {
		return ErrAlreadySettled
	}
	s.Outcome = OutcomeLost
	if s.Target.Met(score) {
		s.Outcome = OutcomeWon
	}
	settled := score
	s.SettledScore = &settled
	s.SettledAt = at
	return nil
}

// Summary aggregates signal outcomes for reporting.
type Summary struct {
	Fired   int `json:"fired"`
	Won     int `json:"won"`
	Lost    int `json:"lost"`
	Pending int `json:"pending"`
}

// Add counts one signal outcome.
func (s *Summary) Add(o Outcome) {
	s.Fired++
	switch o {
	case OutcomeWon:
		s.Won++
	case OutcomeLost:
		s.Lost++
	default:
		s.Pending++
	}
}

// HitRate is the fraction of settled signals that won, 0 when none settled.
func (s Summary) HitRate() float64 {
	settled := s.Won + s.Lost
	if settled == 0 {
		return 0
	}
	return float64(s.Won) / float64(settled)
}
