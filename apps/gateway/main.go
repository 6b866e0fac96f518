package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mahaj/roomchat/pkg/config"
	"github.com/mahaj/roomchat/pkg/journal"
	"github.com/mahaj/roomchat/pkg/presence"
	"github.com/mahaj/roomchat/pkg/room"
	"github.com/mahaj/roomchat/pkg/snowflake"
	"github.com/mahaj/roomchat/pkg/store/backend"
)

func main() {
	cfg, err := config.Load[config.Gateway]()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, closeLog, err := config.SetupLogging("[GATEWAY] ", cfg.Common)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		log.Fatalf("gateway: %v", err)
	}
}

func run(cfg config.Gateway, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ids, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return err
	}
	st, err := backend.Open(cfg.Store, ids, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var mirror presence.Mirror
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		rm := presence.NewRedisMirror(rdb)
		// Presence left behind by a previous process is stale.
		if n, err := rm.Reset(ctx); err != nil {
			logger.Warn("presence mirror reset failed", "err", err)
		} else {
			logger.Info("presence mirror reset", "keys", n)
		}
		mirror = rm
	}

	hub := NewHub(logger)
	var bc room.Broadcaster = hub
	if cfg.Kafka.Enabled() {
		w := journal.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer w.Close()
		bc = journal.NewTee(hub, w, strconv.FormatInt(cfg.NodeID, 10), logger)
		logger.Info("event journal enabled", "topic", cfg.Kafka.Topic)
	}

	coord := room.New(room.Options{
		Store:       st,
		Broadcaster: bc,
		Presence:    presence.NewRegistry(mirror, logger),
		Logger:      logger,
	})

	srv := NewServer(ctx, hub, coord, cfg.AllowedOrigins, cfg.MaxFrameBytes, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Gateway Service Starting on %s...", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Gateway shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		// Hijacked websocket connections are not tracked by Shutdown.
		hub.Close()
		return err
	})
	return g.Wait()
}
