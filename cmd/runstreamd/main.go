// Command runstreamd runs the combined worker pool and stream server over
// a Redis store. Configuration comes from the environment; the process
// shuts down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	goredis "github.com/redis/go-redis/v9"

	"github.com/redbtn-io/runstream"
	redisstore "github.com/redbtn-io/runstream/store/redis"
	"github.com/redbtn-io/runstream/stream"
)

func main() {
	logger := newLogger()
	if err := run(logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := goredis.NewClient(&goredis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	})
	defer client.Close()

	cfg := runstream.DefaultConfig()
	cfg.Concurrency = envInt("RUNSTREAM_CONCURRENCY", cfg.Concurrency)
	if queues := os.Getenv("RUNSTREAM_QUEUES"); queues != "" {
		cfg.Queues = strings.Split(queues, ",")
	}

	st := redisstore.New(client,
		redisstore.WithLogger(logger),
		redisstore.WithStateTTL(cfg.StateTTL),
	)

	svc, err := runstream.New(
		runstream.WithStore(st),
		runstream.WithConfig(cfg),
		runstream.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}

	streamOpts := []stream.Option{stream.WithLogger(logger)}
	if secret := os.Getenv("RUNSTREAM_AUTH_SECRET"); secret != "" {
		streamOpts = append(streamOpts, stream.WithAuthenticator(stream.NewJWTAuthenticator([]byte(secret))))
	} else {
		logger.Warn("no auth secret configured, accepting all requests")
	}
	streamServer := stream.NewServer(svc.Runs(), streamOpts...)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet},
		AllowHeaders:    []string{"Authorization", "Last-Event-ID", "Cache-Control"},
		MaxAge:          12 * time.Hour,
	}))
	engine.GET("/healthz", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	streamServer.RegisterRoutes(engine)

	httpServer := &http.Server{
		Addr:              envOr("RUNSTREAM_ADDR", ":8080"),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", slog.String("error", err.Error()))
	}
	return svc.Stop(shutdownCtx)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
