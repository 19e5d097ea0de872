package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"solana-token-radar/internal/config"
	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/enrich"
	"solana-token-radar/internal/events"
	"solana-token-radar/internal/ingest"
	"solana-token-radar/internal/market"
	"solana-token-radar/internal/metadata"
	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/ratelimit"
	"solana-token-radar/internal/resolver"
	"solana-token-radar/internal/solana"
	"solana-token-radar/internal/storage"
	chstore "solana-token-radar/internal/storage/clickhouse"
	"solana-token-radar/internal/storage/memory"
	"solana-token-radar/internal/storage/migrations"
	pgstore "solana-token-radar/internal/storage/postgres"
)

const (
	warmStartLimit   = 500
	snapshotInterval = 1 * time.Minute
	tradeFlushEvery  = 5 * time.Second
	tradeFlushSize   = 200
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	// Start metrics server if enabled
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Infof("Starting metrics server on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Infof("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warnf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, cfg, logger)

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	if cfg.HeliusAPIKey == "" {
		return fmt.Errorf("HELIUS_API_KEY is required")
	}

	// Token index: Postgres when configured, in-memory otherwise.
	var indexStore storage.TokenIndexStore = memory.NewTokenIndexStore()
	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}
		indexStore = pgstore.NewTokenIndexStore(pool)
		logger.Info("Token index backed by PostgreSQL")
	} else {
		logger.Info("Token index backed by in-memory store")
	}

	bus := events.NewBus(logger)

	// Analytics sinks are optional; the radar runs fine without ClickHouse.
	var tradeSink storage.TradeSink
	var snapshotSink storage.SnapshotSink
	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		defer conn.Close()

		tradeSink = chstore.NewTradeEventStore(conn)
		snapshotSink = chstore.NewRecordSnapshotStore(conn)
		logger.Info("Trade and snapshot sinks backed by ClickHouse")
	}

	governor := ratelimit.NewGovernor(map[string]ratelimit.ServiceLimit{
		market.Service: {Window: time.Minute, MaxRequests: 300},
	})
	strict := ratelimit.NewStrictLimiter(ratelimit.StrictConfig{
		MinDelay:          cfg.MinRawDelay,
		MaxConsecutive429: cfg.Max429,
		Cooldown:          cfg.BreakerCooldown,
		OnStateChange: func(from, to ratelimit.BreakerState) {
			logger.Warnf("Raw-ledger circuit breaker: %s -> %s", from, to)
			observability.UpdateBreakerState(int(to))
		},
	})

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	rpc := solana.NewHTTPClient(cfg.RPCUrl, solana.WithTimeout(cfg.HTTPTimeout))
	marketClient := market.NewClient(cfg.MarketAPIUrl, governor, httpClient)
	chainMeta := metadata.NewResolver(rpc, httpClient)

	res := resolver.New(resolver.Config{
		EnhancedURL: cfg.EnhancedURL,
		APIKey:      cfg.HeliusAPIKey,
		BatchSize:   cfg.BatchSize,
		BatchWindow: cfg.BatchWindow,
		CacheTTL:    cfg.SignatureTTL,
	}, rpc, strict, logger)

	wsConfig := solana.DefaultWSConfig()
	wsConfig.ReconnectBase = cfg.ReconnectBase
	wsConfig.MaxReconnectAttempts = cfg.MaxReconnectAttempts
	wsConfig.HeartbeatInterval = cfg.HeartbeatInterval
	ws := solana.NewWSClient(cfg.WSUrl, cfg.HeliusAPIKey, ingest.TrackedPrograms(), &wsConfig, logger)

	ttl := enrich.DefaultTTLConfig()
	ttl.Debounce = cfg.DebounceInterval
	ttl.SweepInterval = cfg.SweepInterval
	cache := enrich.NewCache(marketClient, chainMeta, bus, indexStore, ttl, enrich.DefaultHeuristicConfig(), logger)

	unregister := cache.Register()
	defer unregister()

	unlog := bus.SubscribeAll(func(ev domain.Event) {
		logger.WithField("kind", ev.Kind).Debug("event emitted")
	})
	defer unlog()

	if err := cache.WarmStart(ctx, warmStartLimit); err != nil {
		logger.Warnf("Warm start failed: %v", err)
	}
	cache.Start(ctx)
	defer cache.Stop()

	var wg sync.WaitGroup
	if tradeSink != nil {
		unsub := runTradeSink(ctx, &wg, bus, tradeSink, logger)
		defer unsub()
	}
	if snapshotSink != nil {
		runSnapshots(ctx, &wg, cache, snapshotSink, logger)
	}

	client := ingest.New(ws, res, bus, logger)
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start ingestion: %w", err)
	}

	logger.Info("Token radar running")
	<-ctx.Done()

	client.Stop()
	wg.Wait()
	return ctx.Err()
}

// runTradeSink buffers trade events and flushes them to the sink in batches.
func runTradeSink(ctx context.Context, wg *sync.WaitGroup, bus *events.Bus, sink storage.TradeSink, logger *logrus.Logger) func() {
	var mu sync.Mutex
	var buf []*domain.TradeEvent

	unsub := bus.Subscribe(domain.EventTrade, func(ev domain.Event) {
		if ev.Trade == nil {
			return
		}
		trade := *ev.Trade
		mu.Lock()
		buf = append(buf, &trade)
		full := len(buf) >= tradeFlushSize
		mu.Unlock()
		if full {
			flushTrades(&mu, &buf, sink, logger)
		}
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(tradeFlushEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				flushTrades(&mu, &buf, sink, logger)
				return
			case <-ticker.C:
				flushTrades(&mu, &buf, sink, logger)
			}
		}
	}()
	return unsub
}

func flushTrades(mu *sync.Mutex, buf *[]*domain.TradeEvent, sink storage.TradeSink, logger *logrus.Logger) {
	mu.Lock()
	batch := *buf
	*buf = nil
	mu.Unlock()
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sink.InsertBatch(ctx, batch); err != nil {
		logger.Warnf("Trade sink insert failed: %v", err)
		return
	}
	observability.DefaultMetrics.TradesSunk.Add(float64(len(batch)))
}

// runSnapshots periodically writes the full tracked-token set to the sink.
func runSnapshots(ctx context.Context, wg *sync.WaitGroup, cache *enrich.Cache, sink storage.SnapshotSink, logger *logrus.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				records := cache.Records()
				if len(records) == 0 {
					continue
				}
				snapCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				err := sink.Snapshot(snapCtx, records, time.Now().UTC())
				cancel()
				if err != nil {
					logger.Warnf("Snapshot write failed: %v", err)
				}
			}
		}
	}()
}
