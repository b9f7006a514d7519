package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketdesk/internal/alert"
	"marketdesk/internal/config"
	"marketdesk/internal/httpapi"
	"marketdesk/internal/localstore"
	"marketdesk/internal/marketdata"
	"marketdesk/internal/news"
	"marketdesk/internal/notify"
	"marketdesk/internal/util"
	"marketdesk/internal/watchlist"
)

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfgPath := "config/marketdesk.yaml"
	if p := os.Getenv("MARKETDESK_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	var kv localstore.KV
	switch cfg.Storage.Backend {
	case "sqlite":
		path := cfg.Storage.SQLitePath
		if path == "" {
			path = cfg.Storage.DataDir + "/marketdesk.db"
		}
		kv, err = localstore.NewSQLiteKV(path)
	case "file":
		kv, err = localstore.NewFileKV(cfg.Storage.DataDir)
	default:
		log.Fatalf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		log.Fatalf("opening %s store: %v", cfg.Storage.Backend, err)
	}
	defer kv.Close()

	notifier := notify.NewNotifier()
	quotes := marketdata.NewAlpacaQuotes(
		cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
		cfg.Alerts.RateLimitPerMin,
	)
	holdings := marketdata.NewAlpacaHoldings(
		cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL,
	)

	sound := notify.NewSound(cfg.Alerts.Sound.Command, cfg.Alerts.Sound.Enabled,
		logger.With("component", "sound"))
	archive := alert.NewArchive(cfg.Storage.DataDir)

	watchlists := watchlist.NewStore(kv, notifier, quotes, holdings,
		logger.With("component", "watchlist"))
	alerts := alert.NewStore(kv, notifier, quotes, sound, archive,
		logger.With("component", "alerts"))

	fetchTimeout := time.Duration(cfg.Alerts.FetchTimeoutSeconds) * time.Second
	poller := alert.NewPoller(alerts, fetchTimeout, logger.With("component", "poller"))
	poller.Start(time.Duration(cfg.Alerts.PollIntervalMinutes) * time.Minute)
	defer poller.Stop()

	newsFetcher := news.NewFetcher(quotes.NewsClient(), logger.With("component", "news"))

	hub := httpapi.NewHub(notifier, logger.With("component", "events"))
	defer hub.Close()

	api := httpapi.NewServer(watchlists, alerts, archive, newsFetcher, hub,
		logger.With("component", "http"))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("marketdesk server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
