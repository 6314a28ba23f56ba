package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	callsvc "secureconnect-client/internal/call"
	"secureconnect-client/internal/config"
	"secureconnect-client/internal/directory"
	"secureconnect-client/internal/domain"
	callHandler "secureconnect-client/internal/handler/http/call"
	"secureconnect-client/internal/media"
	"secureconnect-client/internal/prefs"
	"secureconnect-client/internal/signaling"
	"secureconnect-client/pkg/constants"
	"secureconnect-client/pkg/identity"
	"secureconnect-client/pkg/logger"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stdout",
	}); err != nil {
		logger.InitDefault()
	}
	defer logger.Sync()

	// 1. Local identity from the stored access token
	var localID *identity.Identity
	if cfg.Signaling.AccessToken != "" {
		id, err := identity.FromToken(cfg.Signaling.AccessToken)
		if err != nil {
			logger.Fatal("invalid access token", zap.Error(err))
		}
		localID = id
		logger.Info("identity loaded", zap.String("user_id", id.UserID.String()))
	} else {
		logger.Warn("no access token configured; signaling connect is deferred until one is provided")
	}

	// 2. Preferences store
	prefsStore, err := prefs.Open(cfg.Prefs.Dir)
	if err != nil {
		logger.Fatal("failed to open preferences store", zap.Error(err))
	}
	defer prefsStore.Close()

	// 3. Signaling channel
	channel := signaling.NewChannel(signaling.Options{
		URL:          cfg.Signaling.URL,
		PingInterval: cfg.Signaling.PingInterval,
		WriteTimeout: cfg.Signaling.WriteTimeout,
		MaxRetries:   cfg.Signaling.MaxRetries,
	})
	defer channel.Close()

	// 4. Directory collaborator
	dir := directory.NewRESTDirectory(cfg.Directory.BaseURL, cfg.Signaling.AccessToken, cfg.Directory.Timeout)

	// 5. Call orchestrator with a per-session media engine factory
	engineFactory := func(mode domain.MediaMode) media.Engine {
		return media.NewWebRTCEngine(media.WebRTCOptions{
			GatewayURL:  cfg.Directory.BaseURL,
			STUNServers: cfg.Engine.STUNServers,
			InitTimeout: cfg.Engine.InitTimeout,
			JoinTimeout: cfg.Engine.JoinTimeout,
		})
	}
	orchestrator := callsvc.NewOrchestrator(channel, engineFactory, dir, cfg.Call, cfg.Engine.JoinTimeout)
	if localID != nil {
		orchestrator.SetIdentity(localID)
	}

	orchestrator.OnStateChange(func(s domain.CallSession) {
		logger.Info("call state changed",
			zap.String("conversation_id", s.ConversationID.String()),
			zap.String("phase", string(s.Phase)),
			zap.String("media_mode", string(s.MediaMode)))
	})

	if err := channel.Connect(context.Background(), localID); err != nil {
		// Not fatal: the channel reconnects, and calls can be retried.
		logger.Warn("initial signaling connect failed", zap.Error(err))
	}

	// 6. Control surface
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/v1")
	callHandler.NewHandler(orchestrator, prefsStore).RegisterRoutes(v1)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":              "ok",
			"signaling_connected": channel.Connected(),
		})
	})

	server := &http.Server{
		Addr:         cfg.ControlAddr(),
		Handler:      router,
		ReadTimeout:  constants.ControlReadTimeout,
		WriteTimeout: constants.ControlWriteTimeout,
	}

	go func() {
		logger.Info("control surface listening", zap.String("addr", cfg.ControlAddr()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("control server failed", zap.Error(err))
		}
	}()

	// 7. Graceful shutdown: end any live call so the peer's UI resets
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if s := orchestrator.Status(); s != nil && s.Phase.Live() {
		_ = orchestrator.EndCall()
		_ = orchestrator.CancelCall()
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("control server shutdown failed", zap.Error(err))
	}
}
