package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"volumetracker/config"
	"volumetracker/internal/httpapi"
	"volumetracker/internal/market"
	"volumetracker/internal/memorystore"
	"volumetracker/internal/metrics"
	"volumetracker/internal/query"
	"volumetracker/internal/quote"
	"volumetracker/internal/session"
	"volumetracker/internal/sink"
	"volumetracker/internal/tracker"
	"volumetracker/logger"
	"volumetracker/pkg/fyers"
	"volumetracker/pkg/messaging/kafka"
	"volumetracker/pkg/storage/postgres"
	redisstore "volumetracker/pkg/storage/redis"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// viper config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("tracker failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	clock, err := market.NewClock(cfg.Market)
	if err != nil {
		return fmt.Errorf("market clock: %w", err)
	}

	m := metrics.New()
	store := memorystore.NewSnapshotStore()
	symbols := memorystore.NewLimitedSymbolStore(cfg.Tracker.MaxSymbols,
		market.QualifyAll(cfg.Tracker.Exchange, cfg.Tracker.Series, cfg.Tracker.Symbols)...)
	qualify := func(s string) string {
		return market.Qualify(cfg.Tracker.Exchange, cfg.Tracker.Series, s)
	}

	// Snapshot sinks
	hub := httpapi.NewHub(qualify, log)
	fanout := sink.NewFanout(cfg.Sinks.Timeout, log, m, hub)
	closers, err := attachSinks(ctx, cfg, clock.Location(), fanout, log)
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("failed to close sink", zap.Error(err))
			}
		}
	}()
	if err != nil {
		return err
	}

	live := cfg.App.Mode == config.ModeLive
	var (
		source tracker.QuoteSource
		creds  tracker.Credentials
	)
	if live {
		auth := fyers.NewAuthClient(cfg.Fyers.AuthURL, cfg.Fyers.ClientID, cfg.Fyers.SecretKey,
			cfg.Fyers.RefreshToken, cfg.Fyers.PIN, cfg.Fyers.Timeout)
		creds = session.New(auth, cfg.Fyers.Timeout, log.Named("session"))
		source = fyers.NewQuotesClient(cfg.Fyers.DataURL, cfg.Fyers.ClientID, cfg.Fyers.Timeout)
	}

	tr := tracker.New(tracker.Options{
		PollInterval:       cfg.Tracker.PollInterval,
		AuthRetryDelay:     cfg.Tracker.AuthRetryDelay,
		FetchTimeout:       cfg.Tracker.FetchTimeout,
		EnforceMarketHours: cfg.Tracker.EnforceMarketHours,
		ResetOnSessionOpen: cfg.Tracker.ResetOnSessionOpen,
		EvictAfterMisses:   cfg.Tracker.EvictAfterMisses,
	}, source, creds, clock, store, symbols, fanout, m, log.Named("tracker"))

	gen := quote.NewDummyGenerator(quote.DummyRange{
		MinPrice:  cfg.Tracker.Dummy.MinPrice,
		MaxPrice:  cfg.Tracker.Dummy.MaxPrice,
		MinVolume: cfg.Tracker.Dummy.MinVolume,
		MaxVolume: cfg.Tracker.Dummy.MaxVolume,
	}, time.Now().UnixNano())

	svc := query.NewService(query.Options{
		Exchange:           cfg.Tracker.Exchange,
		Series:             cfg.Tracker.Series,
		FreshnessWindow:    cfg.Tracker.FreshnessWindow,
		EnforceMarketHours: cfg.Tracker.EnforceMarketHours,
		DummyFallback:      cfg.Tracker.DummyFallback,
		Live:               live,
		OnDemandRate:       cfg.Tracker.OnDemandRate,
		OnDemandBurst:      cfg.Tracker.OnDemandBurst,
	}, tr, store, symbols, clock, gen, m, log.Named("query"))

	handler := httpapi.NewHandler(svc, httpapi.Status{
		Mode:          cfg.App.Mode,
		EnforceHours:  cfg.Tracker.EnforceMarketHours,
		Cached:        store.Count,
		StreamClients: hub.Clients,
		IsSessionOpen: clock.IsSessionOpen,
		NextOpen:      clock.NextOpen,
	}, log)
	server := httpapi.NewServer(cfg.Server.Addr,
		httpapi.NewRouter(handler, hub, m.Handler(), log.Named("http")),
		cfg.Server.ShutdownTimeout, log)

	log.Info("volumetracker starting",
		zap.String("mode", cfg.App.Mode),
		zap.Strings("symbols", symbols.GetAll()),
		zap.Int("sinks", fanout.Len()))

	g, gctx := errgroup.WithContext(ctx)
	if live {
		g.Go(func() error { return tr.Run(gctx) })
	}
	g.Go(func() error { return server.Run(gctx) })

	err = g.Wait()
	hub.Close()
	return err
}

// attachSinks connects the optional mirrors and adds them to the fan-out.
// The returned closers must be run even when err is not nil.
func attachSinks(ctx context.Context, cfg *config.Config, loc *time.Location, fanout *sink.Fanout, log *zap.Logger) ([]func() error, error) {
	var closers []func() error

	if cfg.Redis.Enabled {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		mirror, err := redisstore.Connect(dialCtx, cfg.Redis)
		cancel()
		if err != nil {
			return closers, err
		}
		fanout.Add(mirror.WithLocation(loc))
		closers = append(closers, mirror.Close)
		log.Info("redis mirror enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Kafka.Enabled {
		pub := kafka.NewPublisher(kafka.NewWriter(cfg.Kafka))
		fanout.Add(pub)
		closers = append(closers, pub.Close)
		log.Info("kafka publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	if cfg.Postgres.Enabled {
		pg, err := postgres.InitializeAndMigrateSnapshotRecord(cfg.Postgres, true)
		if err != nil {
			return closers, fmt.Errorf("failed to connect to DB: %w", err)
		}
		fanout.Add(pg)
		closers = append(closers, pg.Close)
		log.Info("postgres mirror enabled", zap.String("host", cfg.Postgres.Host), zap.String("db", cfg.Postgres.DBName))
	}

	return closers, nil
}
