package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"supertrend-core/internal/api"
	"supertrend-core/internal/botconfig"
	"supertrend-core/internal/events"
	"supertrend-core/internal/logger"
	"supertrend-core/internal/market"
	"supertrend-core/internal/monitor"
	"supertrend-core/internal/order"
	"supertrend-core/internal/supervisor"
	"supertrend-core/pkg/broker/dhan"
	"supertrend-core/pkg/config"
	"supertrend-core/pkg/db"
	"supertrend-core/pkg/session"
)

func main() {
	issueToken := flag.Bool("issue-token", false, "print a control API token signed with API_JWT_SECRET and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken {
		token, err := api.IssueToken(cfg.JWTSecret, "operator", *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger.SetLevel(cfg.LogLevel)
	logFile, err := logger.OpenDailyFile(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger.SetOutput(io.MultiWriter(os.Stdout, logFile))
	logger.Infof("starting supertrend engine; logging to %s", logFile.Path())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Infof("using database %s", cfg.DBPath)

	calendar := session.NSE()
	if cfg.SessionFile != "" {
		if calendar, err = session.Load(cfg.SessionFile); err != nil {
			return fmt.Errorf("load session calendar: %w", err)
		}
	}

	var scrips *dhan.Scrips
	if cfg.ScripMasterPath != "" {
		if scrips, err = dhan.LoadScripsFile(cfg.ScripMasterPath); err != nil {
			return fmt.Errorf("load scrip master: %w", err)
		}
	}

	bus := events.NewBus()
	metrics := monitor.NewMetrics("supertrend")
	store := botconfig.NewStore(cfg.BotEnvPath)

	sup := supervisor.New(supervisor.Options{
		DB:                   database,
		Bus:                  bus,
		Metrics:              metrics,
		Calendar:             calendar,
		EnforceSession:       cfg.EnforceSession,
		MaxFeedFailures:      cfg.MaxFeedFailures,
		FillTimeout:          cfg.FillTimeout,
		FillPoll:             cfg.FillPoll,
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		LossCooldown:         cfg.LossCooldown,
		NewSource: func(bc botconfig.Config) (market.MarketDataSource, error) {
			if cfg.UseMockFeed {
				logger.Warnf("using mock market data starting at %.2f", cfg.MockStartPrice)
				return market.NewMockSource(cfg.MockStartPrice, cfg.MockStartPrice*0.0005, time.Now().UnixNano()), nil
			}
			return dhanClient(cfg, bc), nil
		},
		NewBroker: func(bc botconfig.Config) (order.OrderBroker, order.InstrumentResolver, error) {
			if bc.TradingMode != botconfig.ModeLive {
				return order.NewPaperBroker(), nil, nil
			}
			if scrips == nil {
				return nil, nil, errors.New("live trading needs SCRIP_MASTER_PATH to resolve option security ids")
			}
			return dhanClient(cfg, bc), scrips, nil
		},
	})
	store.SetRunningCheck(sup.Running)

	mon := &monitor.Monitor{Bus: bus, Metrics: metrics, Alerts: monitor.LogSink{}}
	mon.Start(ctx)

	server := api.NewServer(sup, store, database, sup.Ledger(), bus, metrics, cfg.JWTSecret)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	healthServer := api.NewHealthServer(sup, bus)
	if cfg.JWTSecret == "" {
		logger.Warnf("API_JWT_SECRET is empty; control routes are unauthenticated")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("control API listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if cfg.GRPCAddr != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			return healthServer.Serve(gctx, lis)
		})
	}
	g.Go(func() error {
		return store.Watch(gctx, func() { logger.Infof("bot config reloaded from %s", store.Path()) })
	})

	err = g.Wait()
	if stopErr := sup.Stop(); stopErr != nil {
		logger.Errorf("stop engine: %v", stopErr)
	}
	logger.Infof("shutdown complete")
	return err
}

func dhanClient(cfg *config.Config, bc botconfig.Config) *dhan.Client {
	return dhan.New(dhan.Config{
		ClientID:    bc.DhanClientID,
		AccessToken: bc.DhanAccessToken,
		BaseURL:     cfg.BrokerBaseURL,
		RateLimit:   cfg.BrokerRateLimit,
	})
}
