package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/nodechat/internal/api"
	"github.com/npezzotti/nodechat/internal/chat"
	"github.com/npezzotti/nodechat/internal/config"
	"github.com/npezzotti/nodechat/internal/cursor"
	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/eventlog"
	"github.com/npezzotti/nodechat/internal/presence"
	"github.com/npezzotti/nodechat/internal/server"
	"github.com/npezzotti/nodechat/internal/stats"
	"github.com/npezzotti/nodechat/internal/store"
	"github.com/npezzotti/nodechat/internal/store/memstore"
	"github.com/npezzotti/nodechat/internal/store/tuple"
	"github.com/npezzotti/nodechat/internal/telemetry"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger := log.New(os.Stderr, "[nodechat] ", log.LstdFlags)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal("config: ", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStart()

	shutdownTracing, err := telemetry.Setup(startCtx, cfg.OTLPEndpoint, "nodechat")
	if err != nil {
		logger.Fatal("tracing: ", err)
	}

	st, err := openStore(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal("store open: ", err)
	}

	statsUpdater := stats.NewStatsUpdater()
	statsUpdater.Publish()
	statsUpdater.Run()

	chatServer := server.NewChatServer(logger, statsUpdater)

	events := eventlog.New(st, tuple.NewSubspace("events"), chatServer, statsUpdater, logger)
	users := presence.New(st, tuple.NewSubspace("users"), events, logger)
	chatService := chat.NewService(events, users, cfg.HistoryLimit)

	latest, err := events.LookupLatest(startCtx)
	if err != nil {
		logger.Fatal("lookup latest event: ", err)
	}
	logger.Printf("resuming after event %d", latest)

	poller := server.NewPoller(events, users, chatServer, cursor.New(latest), cfg.PollInterval, logger, statsUpdater)

	srv := api.NewChatApp(logger, chatServer, chatService, st, statsUpdater.Handler(), cfg)

	go poller.Run()
	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Println("server:", err)
		}
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("stopping poller...")
	if err := poller.Stop(shutDownCtx); err != nil {
		logger.Println("poller shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}
	statsUpdater.Stop()

	if err := shutdownTracing(shutDownCtx); err != nil {
		logger.Println("tracing shutdown:", err)
	}

	if err := st.Close(); err != nil {
		logger.Println("store close:", err)
	}

	logger.Println("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Println("using in-memory store, history is lost on exit")
		return memstore.New(memstore.WithMaxAttempts(cfg.StoreMaxRetries)), nil
	default:
		if cfg.MigrateOnStart {
			if err := database.Migrate(cfg.StoreDriver, cfg.StoreDSN); err != nil {
				return nil, err
			}
		}
		db, err := database.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, database.WithMaxAttempts(cfg.StoreMaxRetries))
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}
