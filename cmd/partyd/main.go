package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/weiawesome/wes-io-watchparty/internal/cache"
	"github.com/weiawesome/wes-io-watchparty/internal/config"
	"github.com/weiawesome/wes-io-watchparty/internal/handler"
	"github.com/weiawesome/wes-io-watchparty/internal/hub"
	"github.com/weiawesome/wes-io-watchparty/internal/idgen"
	"github.com/weiawesome/wes-io-watchparty/internal/repository"
	"github.com/weiawesome/wes-io-watchparty/internal/service"
	"github.com/weiawesome/wes-io-watchparty/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty || cfg.Log.Level == "debug",
		ServiceName: "partyd",
	})
	logger := pkglog.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Every instance needs its own consumer group to see every event.
	if cfg.PubSub.Driver == "kafka" {
		cfg.PubSub.Kafka.GroupID = fmt.Sprintf("%s-%s", cfg.PubSub.Kafka.GroupID, uuid.New().String()[:8])
	}

	// Initialize event bus
	bus, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create pubsub")
	}
	defer bus.Close()

	// Initialize party cache
	partyCache, err := cache.New(cfg.Cache)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Cache.Driver).Msg("failed to create cache")
	}
	defer partyCache.Close()

	// Initialize repositories
	videoRepo := repository.NewMemoryVideoRepository()
	videoRepo.Seed(cfg.Catalog, time.Now())
	partyRepo := repository.NewMemoryPartyRepository()

	tokens, err := jwt.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}
	if cfg.Auth.Secret == "" {
		logger.Warn().Msg("auth.secret is empty, tokens will not survive a restart")
	}

	roomCodes, err := idgen.NewRoomCodeGenerator(idgen.DefaultRoomCodeSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create room code generator")
	}

	// Initialize services
	videoService := service.NewVideoService(videoRepo, nil)
	partyService := service.NewPartyService(partyRepo, videoRepo, partyCache, cfg.Cache.TTL, bus, roomCodes)
	chatService := service.NewChatService(bus, idgen.NewULIDGenerator())

	// Initialize STOMP hub
	h := hub.NewHub(cfg.WebSocket)
	go h.Run(ctx)
	if err := h.Bridge(ctx, bus); err != nil {
		logger.Fatal().Err(err).Msg("failed to subscribe hub to event bus")
	}

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Register routes
	handler.NewHandler(videoService, partyService, tokens).RegisterRoutes(r)
	handler.NewWSHandler(h, chatService, tokens, cfg.WebSocket.HeartBeat).RegisterRoutes(r)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Info().
			Str("addr", addr).
			Str("pubsub", cfg.PubSub.Driver).
			Str("cache", cfg.Cache.Driver).
			Int("videos", len(cfg.Catalog)).
			Msg("partyd starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
}
