package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tunesync/server/internal/controller"
	connInmemory "github.com/tunesync/server/internal/repository/connection/inmemory"
	mediaDisk "github.com/tunesync/server/internal/repository/media/disk"
	snapshotRedis "github.com/tunesync/server/internal/repository/snapshot/redis"
	"github.com/tunesync/server/internal/room"
	"github.com/tunesync/server/internal/service"
	"github.com/tunesync/server/pkg/ctxlogger"
	"github.com/tunesync/server/pkg/redisclient"
)

const mediaBaseURI = "/api/v1/media"

type AppConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	LogLevel      string        `json:"log_level"`
	MembersLimit  int           `json:"members_limit"`
	PlaylistLimit int           `json:"playlist_limit"`
	SyncInterval  time.Duration `json:"sync_interval"`
	MediaDir      string        `json:"media_dir"`
	SnapshotTTL   time.Duration `json:"snapshot_ttl"`
	RedisPort     int           `json:"redis_port"`
	RedisHost     string        `json:"redis_host"`
	RedisPassword string        `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.MembersLimit < 1 {
		return fmt.Errorf("members limit must be greater than 0")
	}
	if cfg.PlaylistLimit < 1 {
		return fmt.Errorf("playlist limit must be greater than 0")
	}
	if cfg.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}),
	}
	logger := slog.New(&h)

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	snapshotRepo := snapshotRedis.NewRepo(rc, cfg.SnapshotTTL)

	mediaRepo, err := mediaDisk.NewRepo(cfg.MediaDir, mediaBaseURI, logger)
	if err != nil {
		return fmt.Errorf("failed to create media store: %w", err)
	}

	registry := room.NewRegistry(room.Config{
		SyncInterval:  cfg.SyncInterval,
		MembersLimit:  cfg.MembersLimit,
		PlaylistLimit: cfg.PlaylistLimit,
	}, logger)

	connRepo := connInmemory.NewRepo(logger)
	roomService := service.NewService(registry, connRepo, mediaRepo, snapshotRepo, logger)
	ctrl := controller.NewController(roomService, cfg.MediaDir, logger)

	// the scheduler's fan-out goes straight to the gateway
	registry.OnSync(ctrl.PublishSync)

	if err := roomService.RestoreRooms(ctx); err != nil {
		logger.WarnContext(ctx, "failed to restore rooms", "error", err)
	}

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: ctrl.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := roomService.FlushSnapshots(flushCtx); err != nil {
		logger.ErrorContext(flushCtx, "failed to flush snapshots", "error", err)
	}

	return nil
}
