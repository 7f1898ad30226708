package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/teamlink/server/api/rest"
	apisse "github.com/kasuganosora/teamlink/server/api/sse"
	apows "github.com/kasuganosora/teamlink/server/api/ws"
	"github.com/kasuganosora/teamlink/server/audit"
	"github.com/kasuganosora/teamlink/server/cache"
	"github.com/kasuganosora/teamlink/server/config"
	dbadapter "github.com/kasuganosora/teamlink/server/db"
	"github.com/kasuganosora/teamlink/server/gateway"
	"github.com/kasuganosora/teamlink/server/messaging"
	mw "github.com/kasuganosora/teamlink/server/middleware"
	"github.com/kasuganosora/teamlink/server/model"
	"github.com/kasuganosora/teamlink/server/notification"
	"github.com/kasuganosora/teamlink/server/presence"
	"github.com/kasuganosora/teamlink/server/scheduler"
	"github.com/kasuganosora/teamlink/server/social"
	"github.com/kasuganosora/teamlink/server/store"
	"github.com/kasuganosora/teamlink/server/sweeper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	st := store.New(db)
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		auditSvc.Stop(sctx)
	}()

	// ---- Presence / Gateway ----
	// With Redis, presence is shared and packets for connections held by
	// other instances travel over the relay channel.
	var registry presence.Registry
	var gwOpts []gateway.Option
	if cfg.Cache.RedisAddr != "" {
		c, err := cache.NewCache(cfg.Cache)
		if err != nil {
			log.Fatalf("cache: %v", err)
		}
		pubsub, err := cache.NewPubSub(cfg.Cache)
		if err != nil {
			log.Fatalf("pubsub: %v", err)
		}
		registry = presence.NewCacheRegistry(c, cfg.Cache.PresenceTTL, logger)
		gwOpts = append(gwOpts, gateway.WithRelay(pubsub))
		logger.Info("presence backed by redis", zap.String("addr", cfg.Cache.RedisAddr))
	} else {
		registry = presence.NewMemoryRegistry(logger)
		logger.Info("presence is in-process")
	}

	verifier := mw.NewJWTVerifier(cfg.Security.JWTSecret)
	gw := gateway.New(registry, verifier, logger, gwOpts...)
	go func() {
		if err := gw.Run(ctx); err != nil {
			logger.Error("gateway relay stopped", zap.Error(err))
		}
	}()

	// ---- Services ----
	socialSvc := social.NewService(st, gw, auditSvc, logger)
	msgSvc := messaging.NewService(st, gw, cfg.Messaging, logger)
	notifSvc := notification.NewService(st)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	sw := sweeper.New(st, sched, gw, auditSvc, cfg.Sweeper, logger)
	if cfg.Sweeper.Enabled {
		sw.Start()
	}

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	apows.NewHandlers(msgSvc, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), mw.ErrorHandler(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apirest.Register(r, apirest.Handlers{
		Social:        apirest.NewSocialHandler(socialSvc),
		Teams:         apirest.NewTeamHandler(socialSvc),
		Chat:          apirest.NewChatHandler(msgSvc),
		Notifications: apirest.NewNotificationHandler(notifSvc),
		Admin:         apirest.NewAdminHandler(gw, sched, sw, logger),
	}, verifier, cfg.Server)

	// ---- WebSocket ----
	wsH := apows.NewHandler(gw, cfg.Security, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	r.GET("/events", apisse.NewHandler(gw, logger).ServeSSE)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	sw.Stop()
	gw.CloseAll()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
}
