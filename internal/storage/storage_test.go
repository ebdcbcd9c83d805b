package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/quotejump/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testAlert(id string, firedAt time.Time) *models.Alert {
	return &models.Alert{
		SignalID:   id,
		MatchID:    "1001",
		HomeTeam:   "Inter",
		AwayTeam:   "Milan",
		League:     "Italy - Serie A",
		Score:      models.Score{Home: 1},
		Minute:     15,
		GoalMinute: 10,
		Side:       models.SideHome,
		Baseline:   1.40,
		Price:      1.46,
		Delta:      0.06,
		RisePct:    4.29,
		Strategy:   "early-window",
		Stake:      10,
		Target:     models.Target{Checkpoint: models.CheckpointHalfTime, MinGoals: 2},
		FiredAt:    firedAt,
	}
}

func TestStorage_RecordAndGetSignal(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()
	if err := s.RecordSignal(testAlert("sig-1", now)); err != nil {
		t.Fatalf("RecordSignal: %v", err)
	}

	got, err := s.GetSignal("sig-1")
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	if got.Outcome != models.OutcomePending {
		t.Errorf("outcome = %s, want pending", got.Outcome)
	}
	if got.Baseline != 1.40 || got.Price != 1.46 || got.Side != models.SideHome {
		t.Errorf("unexpected signal: %+v", got)
	}
	if got.Target.Checkpoint != models.CheckpointHalfTime || got.Target.MinGoals != 2 {
		t.Errorf("target = %+v", got.Target)
	}
	if !got.FiredAt.Equal(time.Unix(0, now.UnixNano())) {
		t.Errorf("fired_at = %v, want %v", got.FiredAt, now)
	}
	if got.SettledScore != nil {
		t.Error("pending signal should have no settled score")
	}
}

func TestStorage_RecordSignal_RejectsEmptyID(t *testing.T) {
	s := newTestStorage(t)
	if err := s.RecordSignal(testAlert("", time.Now())); err == nil {
		t.Error("expected error for empty signal id")
	}
}

func TestStorage_GetSignal_NotFound(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.GetSignal("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStorage_SettleSignal(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()
	alert := testAlert("sig-1", now)
	if err := s.RecordSignal(alert); err != nil {
		t.Fatalf("RecordSignal: %v", err)
	}

	sig := models.Signal{Alert: *alert, Outcome: models.OutcomePending}
	if err := sig.Settle(models.Score{Home: 1, Away: 1}, now.Add(30*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := s.SettleSignal(&sig); err != nil {
		t.Fatalf("SettleSignal: %v", err)
	}

	got, _ := s.GetSignal("sig-1")
	if got.Outcome != models.OutcomeWon {
		t.Errorf("outcome = %s, want won", got.Outcome)
	}
	if got.SettledScore == nil || got.SettledScore.Total() != 2 {
		t.Errorf("settled score = %v", got.SettledScore)
	}

	// Settled rows are never rewritten.
	sig.Outcome = models.OutcomeLost
	if err := s.SettleSignal(&sig); err == nil {
		t.Error("expected error re-settling a signal")
	}
	got, _ = s.GetSignal("sig-1")
	if got.Outcome != models.OutcomeWon {
		t.Errorf("outcome changed to %s", got.Outcome)
	}
}

func TestStorage_SettleSignal_RejectsPending(t *testing.T) {
	s := newTestStorage(t)
	sig := models.Signal{Alert: *testAlert("sig-1", time.Now()), Outcome: models.OutcomePending}
	if err := s.SettleSignal(&sig); err == nil {
		t.Error("expected error settling a pending signal")
	}
}

func TestStorage_EnforcesMaxSignals(t *testing.T) {
	s, err := New(3, ":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	now := time.Now()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("sig-%d", i)
		if err := s.RecordSignal(testAlert(id, now.Add(-time.Duration(5-i)*time.Minute))); err != nil {
			t.Fatalf("RecordSignal %d: %v", i, err)
		}
	}

	signals, err := s.RecentSignals(10)
	if err != nil {
		t.Fatalf("RecentSignals: %v", err)
	}
	if len(signals) != 3 {
		t.Fatalf("got %d signals, want 3", len(signals))
	}
	if signals[0].SignalID != "sig-4" {
		t.Errorf("newest = %s, want sig-4", signals[0].SignalID)
	}
	if _, err := s.GetSignal("sig-0"); err == nil {
		t.Error("oldest signal should have been trimmed")
	}
}

func TestStorage_Summary(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()
	outcomes := []models.Score{{Home: 2}, {Home: 1}, {Home: 3, Away: 1}}
	for i, score := range outcomes {
		alert := testAlert(fmt.Sprintf("sig-%d", i), now.Add(time.Duration(i)*time.Second))
		if err := s.RecordSignal(alert); err != nil {
			t.Fatal(err)
		}
		sig := models.Signal{Alert: *alert, Outcome: models.OutcomePending}
		_ = sig.Settle(score, now)
		if err := s.SettleSignal(&sig); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RecordSignal(testAlert("sig-pending", now)); err != nil {
		t.Fatal(err)
	}

	sum, err := s.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Fired != 4 || sum.Won != 2 || sum.Lost != 1 || sum.Pending != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestStorage_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "signals.db")
	s, err := New(10, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.RecordSignal(testAlert("sig-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	reopened, err := New(10, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetSignal("sig-1"); err != nil {
		t.Errorf("signal lost across reopen: %v", err)
	}
}
