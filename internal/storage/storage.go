// Package storage provides a SQLite journal of fired signals and their settlements.
// Match state is never stored here; it lives in memory only.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/quotejump/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a signal id is not in the journal.
var ErrNotFound = errors.New("signal not found")

// Storage wraps a SQLite database for the signal journal.
type Storage struct {
	db         *sql.DB
	maxSignals int
}

// New opens or creates the SQLite database at dbPath (":memory:" for tests).
func New(maxSignals int, dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxSignals: maxSignals}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id              TEXT PRIMARY KEY,
			match_id        TEXT NOT NULL,
			home_team       TEXT NOT NULL,
			away_team       TEXT NOT NULL,
			league          TEXT,
			score_home      INTEGER NOT NULL,
			score_away      INTEGER NOT NULL,
			minute          INTEGER NOT NULL,
			goal_minute     INTEGER NOT NULL,
			side            TEXT NOT NULL,
			baseline        REAL NOT NULL,
			price           REAL NOT NULL,
			delta           REAL NOT NULL,
			rise_pct        REAL NOT NULL,
			strategy        TEXT NOT NULL,
			stake           REAL NOT NULL DEFAULT 0,
			checkpoint      TEXT NOT NULL,
			min_goals       INTEGER NOT NULL,
			follow_up       INTEGER NOT NULL DEFAULT 0,
			fired_at        INTEGER NOT NULL,
			outcome         TEXT NOT NULL DEFAULT 'pending',
			settled_home    INTEGER,
			settled_away    INTEGER,
			settled_at      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_fired_at ON signals(fired_at)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_outcome ON signals(outcome)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordSignal journals a freshly fired alert as pending and trims the journal
// to the newest maxSignals entries.
func (s *Storage) RecordSignal(alert *models.Alert) error {
	if alert.SignalID == "" {
		return errors.New("invalid signal: empty id")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO signals
			(id, match_id, home_team, away_team, league, score_home, score_away,
			 minute, goal_minute, side, baseline, price, delta, rise_pct, strategy,
			 stake, checkpoint, min_goals, follow_up, fired_at, outcome)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		alert.SignalID, alert.MatchID, alert.HomeTeam, alert.AwayTeam, alert.League,
		alert.Score.Home, alert.Score.Away, alert.Minute, alert.GoalMinute, string(alert.Side),
		alert.Baseline, alert.Price, alert.Delta, alert.RisePct, alert.Strategy,
		alert.Stake, string(alert.Target.Checkpoint), alert.Target.MinGoals, boolToInt(alert.FollowUp),
		alert.FiredAt.UnixNano(), string(models.OutcomePending),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM signals WHERE id NOT IN (
			SELECT id FROM signals ORDER BY fired_at DESC LIMIT ?
		)`, s.maxSignals); err != nil {
		return fmt.Errorf("failed to enforce signal cap: %w", err)
	}

	return tx.Commit()
}

// SettleSignal stores a signal's outcome. Only pending rows are updated.
func (s *Storage) SettleSignal(signal *models.Signal) error {
	if signal.Outcome == models.OutcomePending || signal.SettledScore == nil {
		return fmt.Errorf("signal %s is not settled", signal.SignalID)
	}
	res, err := s.db.Exec(`
		UPDATE signals SET outcome=?, settled_home=?, settled_away=?, settled_at=?
		WHERE id=? AND outcome=?`,
		string(signal.Outcome), signal.SettledScore.Home, signal.SettledScore.Away,
		signal.SettledAt.UnixNano(), signal.SignalID, string(models.OutcomePending),
	)
	if err != nil {
		return fmt.Errorf("failed to settle signal: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w or already settled: %s", ErrNotFound, signal.SignalID)
	}
	return nil
}

func (s *Storage) GetSignal(id string) (*models.Signal, error) {
	row := s.db.QueryRow(`SELECT `+signalCols+` FROM signals WHERE id = ?`, id)
	sig, err := scanSignal(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	return sig, nil
}

// RecentSignals returns up to k signals, newest first.
func (s *Storage) RecentSignals(k int) ([]models.Signal, error) {
	rows, err := s.db.Query(`SELECT `+signalCols+` FROM signals ORDER BY fired_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	signals := []models.Signal{}
	for rows.Next() {
		sig, err := scanSignal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, *sig)
	}
	return signals, rows.Err()
}

// Summary aggregates journaled outcomes, covering signals from earlier runs too.
func (s *Storage) Summary() (models.Summary, error) {
	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM signals GROUP BY outcome`)
	if err != nil {
		return models.Summary{}, fmt.Errorf("failed to summarize signals: %w", err)
	}
	defer rows.Close()

	var sum models.Summary
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return models.Summary{}, fmt.Errorf("failed to scan summary: %w", err)
		}
		sum.Fired += n
		switch models.Outcome(outcome) {
		case models.OutcomeWon:
			sum.Won += n
		case models.OutcomeLost:
			sum.Lost += n
		default:
			sum.Pending += n
		}
	}
	return sum, rows.Err()
}

const signalCols = `id, match_id, home_team, away_team, league, score_home, score_away,
	minute, goal_minute, side, baseline, price, delta, rise_pct, strategy, stake,
	checkpoint, min_goals, follow_up, fired_at, outcome, settled_home, settled_away, settled_at`

func scanSignal(scan func(...any) error) (*models.Signal, error) {
	var sig models.Signal
	var side, checkpoint, outcome string
	var league sql.NullString
	var followUp int
	var firedAtNano int64
	var settledHome, settledAway, settledAtNano sql.NullInt64

	err := scan(
		&sig.SignalID, &sig.MatchID, &sig.HomeTeam, &sig.AwayTeam, &league,
		&sig.Score.Home, &sig.Score.Away, &sig.Minute, &sig.GoalMinute, &side,
		&sig.Baseline, &sig.Price, &sig.Delta, &sig.RisePct, &sig.Strategy, &sig.Stake,
		&checkpoint, &sig.Target.MinGoals, &followUp, &firedAtNano, &outcome,
		&settledHome, &settledAway, &settledAtNano,
	)
	if err != nil {
		return nil, err
	}
	sig.League = league.String
	sig.Side = models.Side(side)
	sig.Target.Checkpoint = models.Checkpoint(checkpoint)
	sig.FollowUp = followUp != 0
	sig.FiredAt = time.Unix(0, firedAtNano)
	sig.Outcome = models.Outcome(outcome)
	if settledHome.Valid && settledAway.Valid {
		sig.SettledScore = &models.Score{Home: int(settledHome.Int64), Away: int(settledAway.Int64)}
	}
	if settledAtNano.Valid {
		sig.SettledAt = time.Unix(0, settledAtNano.Int64)
	}
	return &sig, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
