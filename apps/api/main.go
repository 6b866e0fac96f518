package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mahaj/roomchat/pkg/config"
	"github.com/mahaj/roomchat/pkg/presence"
	"github.com/mahaj/roomchat/pkg/room"
	"github.com/mahaj/roomchat/pkg/snowflake"
	"github.com/mahaj/roomchat/pkg/store/backend"
)

func CORSMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && config.OriginAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeAck answers with the same {success, message, ...} shape the websocket
// acks use, with a status derived from the error kind.
func writeAck(w http.ResponseWriter, logger *slog.Logger, result any, err error) {
	status := http.StatusOK
	ack := room.Ack{Success: true, Result: result}
	if err != nil {
		ack = room.Ack{Success: false, Message: room.Message(err)}
		switch {
		case errors.Is(err, room.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, room.ErrNotFound):
			status = http.StatusNotFound
		default:
			status = http.StatusInternalServerError
			logger.Error("request failed", "err", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ack)
}

// Users is the live presence source for /channels/{name}/users.
type Users interface {
	Users(ctx context.Context, room string) ([]string, error)
}

func routes(reader *room.Reader, users Users, allowed []string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("GET /rooms/{name}", NewRoomHandler(reader, logger))
	mux.Handle("GET /rooms/{name}/messages", NewHistoryHandler(reader, logger))
	mux.Handle("GET /users/{username}/rooms", ConversationsHandler(reader, logger))
	if users != nil {
		mux.Handle("GET /channels/{name}/users", NewPresenceHandler(users, logger))
	}
	return CORSMiddleware(allowed, mux)
}

func main() {
	cfg, err := config.Load[config.API]()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, closeLog, err := config.SetupLogging("[API] ", cfg.Common)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		log.Fatalf("api: %v", err)
	}
}

func run(cfg config.API, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if strings.EqualFold(cfg.Store.Driver, backend.DriverMemory) || cfg.Store.Driver == "" {
		logger.Warn("memory store is per-process; the API will not see gateway state")
	}
	ids, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return err
	}
	st, err := backend.Open(cfg.Store, ids, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var users Users
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		users = presence.NewRedisMirror(rdb)
	} else {
		logger.Warn("REDIS_ADDR not set; presence endpoint disabled")
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           routes(room.NewReader(st), users, cfg.AllowedOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("API Service Starting on %s...", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
