package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/quotejump/internal/config"
	"github.com/rewired-gh/quotejump/internal/feed"
	"github.com/rewired-gh/quotejump/internal/logger"
	"github.com/rewired-gh/quotejump/internal/models"
	"github.com/rewired-gh/quotejump/internal/monitor"
	"github.com/rewired-gh/quotejump/internal/status"
	"github.com/rewired-gh/quotejump/internal/storage"
	"github.com/rewired-gh/quotejump/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

// maxConcurrentSends bounds parallel Telegram deliveries per cycle.
const maxConcurrentSends = 4

type service struct {
	cfg      *config.Config
	feed     *feed.Client
	cooldown *feed.Cooldown
	monitor  *monitor.Monitor
	store    *storage.Storage // nil when the journal is disabled
	telegram *telegram.Client // nil when notifications are disabled
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	svc := &service{
		cfg: cfg,
		feed: feed.NewClient(cfg.Feed.BaseURL, cfg.Feed.Timeout, feed.ClientConfig{
			APIKey:         cfg.Feed.APIKey,
			APIHost:        cfg.Feed.APIHost,
			MaxRetries:     cfg.Feed.MaxRetries,
			RetryDelayBase: cfg.Feed.RetryDelayBase,
			MaxOddsCalls:   cfg.Feed.MaxOddsCalls,
			LeagueKeywords: cfg.Feed.LeagueKeywords,
			LeagueExclude:  cfg.Feed.LeagueExclude,
		}),
		cooldown: feed.NewCooldown(cfg.Feed.RateLimitCooldown),
		monitor:  monitor.New(cfg.MonitorSettings()),
	}

	if cfg.Storage.DBPath != "" {
		svc.store, err = storage.New(cfg.Storage.MaxSignals, cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := svc.store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		logger.Info("Signal journal at %s", cfg.Storage.DBPath)
	} else {
		logger.Debug("Signal journal disabled")
	}

	if cfg.Telegram.Enabled {
		svc.telegram, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if svc.telegram != nil {
		svc.telegram.ListenForCommands(ctx, svc.stats)
		if err := svc.telegram.SendStartup(svc.startupInfo()); err != nil {
			logger.Warn("Failed to send startup message: %v", err)
		}
	}

	if cfg.Status.Addr != "" {
		var journal status.Journal
		if svc.store != nil {
			journal = svc.store
		}
		srv := status.NewServer(svc.monitor, journal, svc.cooldown, cfg.Status.AllowedOrigins)
		go func() {
			if err := srv.Run(ctx, cfg.Status.Addr); err != nil {
				logger.Error("Status server stopped: %v", err)
			}
		}()
	}

	mc := cfg.Monitor
	logger.Info("Starting monitoring service (interval: %v, band: %.2f-%.2f, max_price: %.2f, samples: %d, strategies: %d)",
		cfg.Feed.PollInterval, mc.BandMin, mc.BandMax, mc.MaxPrice, mc.Samples, len(mc.Strategies))

	ticker := time.NewTicker(cfg.Feed.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Monitoring cycle failed: %v", err)
			if consecutiveFailures == 1 && svc.telegram != nil {
				if sendErr := svc.telegram.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && svc.telegram != nil {
				if sendErr := svc.telegram.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial monitoring cycle")
	handleCycleResult(svc.runMonitoringCycle(ctx))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			handleCycleResult(svc.runMonitoringCycle(ctx))
		}
	}
}

func (s *service) runMonitoringCycle(ctx context.Context) error {
	startTime := time.Now()
	if !s.cooldown.Ready(startTime) {
		logger.Debug("Feed cooling down until %s, skipping cycle", s.cooldown.Until().Format(time.TimeOnly))
		return nil
	}

	snaps, err := s.feed.FetchLive(ctx)
	if errors.Is(err, feed.ErrRateLimited) {
		s.tripCooldown()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch live matches: %w", err)
	}

	snaps = s.followUnsettled(ctx, snaps)
	if ctx.Err() != nil || !s.cooldown.Ready(time.Now()) {
		return nil
	}

	ids := make([]string, len(snaps))
	for i := range snaps {
		ids[i] = snaps[i].ID
	}
	if wanted := s.monitor.PricesWanted(ids, time.Now()); len(wanted) > 0 {
		filled, err := s.feed.FillPrices(ctx, snaps, wanted)
		if errors.Is(err, feed.ErrRateLimited) {
			// A partial price fill would count as misses; skip the whole poll.
			s.tripCooldown()
			return nil
		}
		logger.Debug("Prices filled for %d of %d matches", filled, len(wanted))
	}

	res := s.monitor.ProcessPoll(snaps, time.Now())
	if len(res.Alerts) > 0 || len(res.Settled) > 0 {
		logger.Info("Cycle produced %d alerts and %d settlements", len(res.Alerts), len(res.Settled))
	}
	s.deliver(res)

	logger.Info("Monitoring cycle completed in %v (%d matches, %d tracked)",
		time.Since(startTime), len(snaps), s.monitor.Tracked())
	return nil
}

// followUnsettled appends snapshots for matches that still hold pending signals but
// have left the live list, so full-time targets can settle.
func (s *service) followUnsettled(ctx context.Context, snaps []models.MatchSnapshot) []models.MatchSnapshot {
	live := make(map[string]bool, len(snaps))
	for i := range snaps {
		live[snaps[i].ID] = true
	}
	var missing []string
	for _, id := range s.monitor.Unsettled() {
		if !live[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return snaps
	}

	extra, err := s.feed.FetchFixtures(ctx, missing)
	if errors.Is(err, feed.ErrRateLimited) {
		s.tripCooldown()
	} else if err != nil {
		logger.Warn("Failed to follow %d unsettled matches: %v", len(missing), err)
	}
	logger.Debug("Following %d unsettled matches off the live list", len(extra))
	return append(snaps, extra...)
}

// deliver journals and notifies every alert and settlement of a cycle.
// Journal writes happen first so a failed send never loses the record.
func (s *service) deliver(res monitor.Result) {
	if s.store != nil {
		for i := range res.Alerts {
			if err := s.store.RecordSignal(&res.Alerts[i]); err != nil {
				logger.Warn("Failed to journal signal %s: %v", res.Alerts[i].SignalID, err)
			}
		}
		for i := range res.Settled {
			if err := s.store.SettleSignal(&res.Settled[i]); err != nil {
				logger.Warn("Failed to journal settlement %s: %v", res.Settled[i].SignalID, err)
			}
		}
	}

	if s.telegram == nil {
		return
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentSends)
	for _, alert := range res.Alerts {
		alert := alert
		g.Go(func() error {
			if err := s.telegram.SendAlert(alert); err != nil {
				return fmt.Errorf("alert %s: %w", alert.SignalID, err)
			}
			logger.Info("Alert sent: %s - %s [%s]", alert.HomeTeam, alert.AwayTeam, alert.Strategy)
			return nil
		})
	}
	if s.cfg.Telegram.Settlements {
		for _, signal := range res.Settled {
			signal := signal
			g.Go(func() error {
				if err := s.telegram.SendSettlement(signal); err != nil {
					return fmt.Errorf("settlement %s: %w", signal.SignalID, err)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		logger.Error("Failed to send Telegram notification: %v", err)
	}
}

func (s *service) tripCooldown() {
	until := s.cooldown.Trip(time.Now())
	logger.Warn("Feed rate limit reached, pausing until %s", until.Format(time.TimeOnly))
	if s.telegram != nil {
		if err := s.telegram.SendCooldown(until); err != nil {
			logger.Warn("Failed to send cooldown notification: %v", err)
		}
	}
}

// stats reports journal totals when available, otherwise this session's counts.
func (s *service) stats() models.Summary {
	if s.store != nil {
		sum, err := s.store.Summary()
		if err == nil {
			return sum
		}
		logger.Warn("Failed to read journal summary: %v", err)
	}
	return s.monitor.Summary()
}

func (s *service) startupInfo() telegram.StartupInfo {
	mc := s.cfg.Monitor
	names := make([]string, len(mc.Strategies))
	for i, st := range mc.Strategies {
		names[i] = st.Name
	}
	return telegram.StartupInfo{
		BandMin:        mc.BandMin,
		BandMax:        mc.BandMax,
		MaxPrice:       mc.MaxPrice,
		SettleDelay:    mc.SettleDelay,
		SampleInterval: mc.SampleInterval,
		Samples:        mc.Samples,
		MaxOddsCalls:   s.cfg.Feed.MaxOddsCalls,
		Strategies:     names,
	}
}
