package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rewired-gh/quotejump/internal/models"
)

const liveFixtures = `{
  "errors": [],
  "response": [
    {
      "fixture": {"id": 1001, "status": {"short": "1H", "elapsed": 12}},
      "league": {"name": "Serie A", "country": "Italy"},
      "teams": {"home": {"name": "Inter"}, "away": {"name": "Milan"}},
      "goals": {"home": 1, "away": 0},
      "score": {"halftime": {"home": null, "away": null}},
      "events": [{"type": "Goal", "detail": "Normal Goal"}]
    },
    {
      "fixture": {"id": 1002, "status": {"short": "2H", "elapsed": 61}},
      "league": {"name": "Premier League", "country": "England"},
      "teams": {"home": {"name": "Arsenal"}, "away": {"name": "Chelsea"}},
      "goals": {"home": 0, "away": 1},
      "score": {"halftime": {"home": 0, "away": 1}},
      "events": [{"type": "Card", "detail": "Red Card"}]
    },
    {
      "fixture": {"id": 1003, "status": {"short": "1H", "elapsed": 5}},
      "league": {"name": "Women's Super League", "country": "England"},
      "teams": {"home": {"name": "A"}, "away": {"name": "B"}},
      "goals": {"home": 0, "away": 0},
      "score": {"halftime": {"home": null, "away": null}}
    },
    {
      "fixture": {"id": 1004, "status": {"short": "NS", "elapsed": null}},
      "league": {"name": "Serie A", "country": "Italy"},
      "teams": {"home": {"name": "C"}, "away": {"name": "D"}},
      "goals": {"home": null, "away": null},
      "score": {"halftime": {"home": null, "away": null}}
    }
  ]
}`

const liveOdds = `{
  "errors": [],
  "response": [
    {
      "fixture": {"id": 1001},
      "odds": [
        {"id": 59, "name": "Fulltime Result", "values": [
          {"value": "Home", "odd": "1.45", "suspended": false},
          {"value": "Draw", "odd": "4.10", "suspended": false},
          {"value": "Away", "odd": "7.50", "suspended": true}
        ]},
        {"id": 36, "name": "Over/Under Line", "values": [
          {"value": "Over", "odd": "1.90", "suspended": false}
        ]}
      ]
    }
  ]
}`

func newTestClient(url string) *Client {
	return NewClient(url, 2*time.Second, ClientConfig{
		APIKey:         "secret",
		APIHost:        "example.test",
		MaxRetries:     3,
		RetryDelayBase: time.Millisecond,
		MaxOddsCalls:   2,
		LeagueExclude:  []string{"women"},
	})
}

func TestFetchLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fixtures" || r.URL.Query().Get("live") != "all" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("x-rapidapi-key") != "secret" || r.Header.Get("x-rapidapi-host") != "example.test" {
			t.Errorf("missing auth headers")
		}
		_, _ = w.Write([]byte(liveFixtures))
	}))
	defer srv.Close()

	snaps, err := newTestClient(srv.URL).FetchLive(context.Background())
	if err != nil {
		t.Fatalf("FetchLive: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2 (women's league and NS filtered)", len(snaps))
	}

	inter := snaps[0]
	if inter.ID != "1001" || inter.HomeTeam != "Inter" || inter.Minute != 12 {
		t.Errorf("unexpected snapshot: %+v", inter)
	}
	if inter.Score.Home != 1 || inter.Score.Away != 0 {
		t.Errorf("score = %s, want 1-0", inter.Score)
	}
	if inter.HalfTime != nil || inter.RedCard {
		t.Errorf("first-half fixture should have no half-time score or red card")
	}
	if inter.League != "Italy - Serie A" {
		t.Errorf("league = %q", inter.League)
	}
	if inter.PolledAt.IsZero() {
		t.Error("PolledAt should be stamped")
	}

	ars := snaps[1]
	if !ars.RedCard {
		t.Error("red card event not detected")
	}
	if ars.HalfTime == nil || ars.HalfTime.Away != 1 {
		t.Errorf("half-time = %v, want 0-1", ars.HalfTime)
	}
}

func TestFetchLive_RateLimited(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchLive(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("rate limit should not be retried, got %d calls", n)
	}
}

func TestFetchLive_QuotaErrorInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors": {"requests": "You have reached the request limit for the day"}, "response": []}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchLive(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestFetchLive_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(liveFixtures))
	}))
	defer srv.Close()

	snaps, err := newTestClient(srv.URL).FetchLive(context.Background())
	if err != nil {
		t.Fatalf("FetchLive: %v", err)
	}
	if len(snaps) != 2 {
		t.Errorf("got %d snapshots, want 2", len(snaps))
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestFetchLive_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).FetchLive(context.Background()); err == nil {
		t.Fatal("expected error after retries")
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestFetchLive_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response": [`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).FetchLive(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}

func TestFillPrices(t *testing.T) {
	var oddsCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fixtures":
			_, _ = w.Write([]byte(liveFixtures))
		case "/odds/live":
			atomic.AddInt32(&oddsCalls, 1)
			if r.URL.Query().Get("fixture") == "1001" {
				_, _ = w.Write([]byte(liveOdds))
				return
			}
			_, _ = w.Write([]byte(`{"errors": [], "response": []}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	snaps, err := c.FetchLive(context.Background())
	if err != nil {
		t.Fatalf("FetchLive: %v", err)
	}

	filled, err := c.FillPrices(context.Background(), snaps, []string{"1001", "1002", "9999"})
	if err != nil {
		t.Fatalf("FillPrices: %v", err)
	}
	if filled != 1 {
		t.Errorf("filled = %d, want 1", filled)
	}
	if n := atomic.LoadInt32(&oddsCalls); n != 2 {
		t.Errorf("odds calls = %d, want 2 (budget)", n)
	}
	if snaps[0].HomePrice == nil || *snaps[0].HomePrice != 1.45 {
		t.Errorf("home price = %v, want 1.45", snaps[0].HomePrice)
	}
	if snaps[0].AwayPrice != nil {
		t.Error("suspended away price should be ignored")
	}
	if snaps[1].HomePrice != nil || snaps[1].AwayPrice != nil {
		t.Error("match without odds should stay unpriced")
	}
	if !snaps[0].OddsRequested || !snaps[1].OddsRequested {
		t.Error("answered odds calls should mark their snapshots")
	}
}

func TestFillPrices_BudgetLeavesRestUnrequested(t *testing.T) {
	var mu sync.Mutex
	var asked []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		asked = append(asked, r.URL.Query().Get("fixture"))
		mu.Unlock()
		_, _ = w.Write([]byte(liveOdds))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL) // budget of 2 odds calls
	snaps := []models.MatchSnapshot{{ID: "1001"}, {ID: "1002"}, {ID: "1003"}, {ID: "1001"}}

	if _, err := c.FillPrices(context.Background(), snaps, []string{"1003", "1001", "1002"}); err != nil {
		t.Fatalf("FillPrices: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(asked) != 2 || asked[0] != "1003" || asked[1] != "1001" {
		t.Errorf("odds asked for %v, want [1003 1001] in priority order", asked)
	}

	tests := []struct {
		idx       int
		requested bool
	}{
		{0, true},  // first entry for 1001
		{1, false}, // past the budget
		{2, true},
		{3, false}, // duplicate entry is not the one processed
	}
	for _, tt := range tests {
		if snaps[tt.idx].OddsRequested != tt.requested {
			t.Errorf("snaps[%d] (%s) OddsRequested = %v, want %v",
				tt.idx, snaps[tt.idx].ID, snaps[tt.idx].OddsRequested, tt.requested)
		}
	}
	if snaps[1].HomePrice != nil {
		t.Error("unrequested match must not carry a price")
	}
}

func TestFillPrices_FailedCallIsNotRequested(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	snaps := []models.MatchSnapshot{{ID: "1001"}}
	filled, err := c.FillPrices(context.Background(), snaps, []string{"1001"})
	if err != nil || filled != 0 {
		t.Fatalf("FillPrices = %d, %v", filled, err)
	}
	if snaps[0].OddsRequested {
		t.Error("a failed odds call is not evidence of a missing price")
	}
}

func TestFetchFixtures_Batches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"errors": [], "response": [
			{"fixture": {"id": 7, "status": {"short": "FT", "elapsed": 90}},
			 "league": {"name": "Serie A"},
			 "teams": {"home": {"name": "X"}, "away": {"name": "Y"}},
			 "goals": {"home": 2, "away": 1},
			 "score": {"halftime": {"home": 1, "away": 0}}}
		]}`))
	}))
	defer srv.Close()

	ids := make([]string, 25)
	for i := range ids {
		ids[i] = "7"
	}
	snaps, err := newTestClient(srv.URL).FetchFixtures(context.Background(), ids)
	if err != nil {
		t.Fatalf("FetchFixtures: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want 2 batches", n)
	}
	if len(snaps) != 2 || !snaps[0].FullTimeReached() {
		t.Errorf("snaps = %+v", snaps)
	}
}

func TestToSnapshot_Statuses(t *testing.T) {
	tests := []struct {
		status string
		ok     bool
	}{
		{"1H", true},
		{"HT", true},
		{"SUSP", true},
		{"INT", true},
		{"FT", true},
		{"NS", false},
		{"PST", false},
		{"CANC", false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			var item fixtureItem
			item.Fixture.ID = 42
			item.Fixture.Status.Short = tt.status
			item.Teams.Home.Name = "Inter"
			item.Teams.Away.Name = "Milan"
			snap, ok := toSnapshot(item, time.Now())
			if ok != tt.ok {
				t.Fatalf("toSnapshot(%s) ok = %v, want %v", tt.status, ok, tt.ok)
			}
			if ok && (snap.ID != "42" || snap.Status != tt.status) {
				t.Errorf("snapshot = %+v", snap)
			}
		})
	}
}

func TestLeagueAllowed(t *testing.T) {
	tests := []struct {
		league  string
		include []string
		exclude []string
		want    bool
	}{
		{"Italy - Serie A", nil, nil, true},
		{"Italy - Serie A", []string{"serie a"}, nil, true},
		{"Spain - La Liga", []string{"serie a"}, nil, false},
		{"England - Premier League U21", nil, []string{"u21"}, false},
		{"England - Premier League U21", []string{"premier"}, []string{"U21"}, false},
	}
	for _, tt := range tests {
		if got := leagueAllowed(tt.league, tt.include, tt.exclude); got != tt.want {
			t.Errorf("leagueAllowed(%q) = %v, want %v", tt.league, got, tt.want)
		}
	}
}

func TestBestMoneylineAcrossBookmakers(t *testing.T) {
	item := oddsItem{Bookmakers: []bookmaker{
		{Name: "a", Bets: []market{moneyline("1.40", "6.00")}},
		{Name: "b", Bets: []market{moneyline("1.48", "5.50")}},
	}}

	home, away := bestMoneyline(item)
	if home == nil || *home != 1.48 {
		t.Errorf("home = %v, want 1.48", home)
	}
	if away == nil || *away != 6.00 {
		t.Errorf("away = %v, want 6.00", away)
	}
}

func moneyline(home, away string) market {
	return market{Name: "Match Winner", Values: []marketValue{
		{Value: "Home", Odd: home},
		{Value: "Draw", Odd: "4.00"},
		{Value: "Away", Odd: away},
	}}
}

func TestCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	c := NewCooldown(30 * time.Minute)
	if !c.Ready(now) {
		t.Fatal("fresh cooldown should be ready")
	}
	until := c.Trip(now)
	if !until.Equal(now.Add(30 * time.Minute)) {
		t.Errorf("until = %v", until)
	}
	if c.Ready(now.Add(29 * time.Minute)) {
		t.Error("should not be ready during cooldown")
	}
	if !c.Ready(now.Add(30 * time.Minute)) {
		t.Error("should be ready once cooldown elapses")
	}
}
