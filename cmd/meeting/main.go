package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peermeet/internal/core/services"
	httphandlers "peermeet/internal/handlers/http"
	"peermeet/internal/infrastructure/bootstrap"
	"peermeet/internal/infrastructure/membership/memory"
	"peermeet/internal/infrastructure/middleware"
	"peermeet/internal/infrastructure/monitoring"
	"peermeet/internal/infrastructure/peerlink/pion"
	"peermeet/pkg/config"
	"peermeet/pkg/logger"
	"peermeet/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	bootstrapPath := flag.String("bootstrap", "meeting.json", "path to the bootstrap blob written by the scheduler")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The config layer falls back to defaults for a missing file, so
		// reaching here means the file exists and is broken.
		panic(err)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	boot, err := bootstrap.Load(*bootstrapPath)
	if err != nil {
		log.Fatalw("bootstrap data missing or invalid", "path", *bootstrapPath, "error", err)
	}

	info := boot.SessionInfo()
	log.Infow("starting meeting client",
		"meeting", info.MeetingID,
		"role", info.Role,
		"self", info.SelfID,
	)

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "peermeet",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Role:        string(info.Role),
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var iceServers []string
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, s.URLs...)
	}

	link, err := pion.New(ctx, pion.Config{
		SelfID:       info.SelfID,
		BrokerURL:    cfg.Signaling.BrokerURL,
		PingInterval: cfg.Signaling.PingInterval,
		PongTimeout:  cfg.Signaling.PongTimeout,
		DialTimeout:  cfg.Signaling.DialTimeout,
		ICEServers:   iceServers,
		ForwardBase:  cfg.Media.ForwardBase,
		Logger:       log,
	})
	if err != nil {
		log.Fatalw("failed to reach signaling broker", "url", cfg.Signaling.BrokerURL, "error", err)
	}

	devices := pion.NewDevices(pion.DeviceConfig{
		CameraAudioPort: cfg.Media.CameraAudioPort,
		CameraVideoPort: cfg.Media.CameraVideoPort,
		ScreenVideoPort: cfg.Media.ScreenVideoPort,
	}, log)

	feed := httphandlers.NewEventFeed(log)

	var metrics *monitoring.PrometheusCollector
	sessionCfg := services.Config{
		Info:         info,
		Store:        memory.NewMembershipStore(),
		Link:         link,
		Devices:      devices,
		Notifier:     feed,
		Logger:       log,
		InitialMedia: boot.InitialMedia(),

		CallTimeout:    cfg.Media.CallTimeout,
		JoinRate:       rate.Limit(cfg.Limits.JoinRequestsPerSecond),
		JoinBurst:      cfg.Limits.JoinBurst,
		ChatRate:       rate.Limit(cfg.Limits.ChatMessagesPerSecond),
		ChatBurst:      cfg.Limits.ChatBurst,
		RosterInterval: cfg.Session.RosterInterval,
	}
	sessionCfg.Policy.WaitingRoom = cfg.Session.WaitingRoom
	sessionCfg.Policy.Mesh = cfg.Session.Mesh
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
		sessionCfg.Metrics = metrics
	}

	session := services.NewSession(ctx, sessionCfg)

	// Control API
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewRateLimitMiddleware(cfg.Limits.APIRequestsPerSecond, cfg.Limits.APIBurst))

	handler := httphandlers.NewMeetingHandler(session, feed)
	handler.SetupRoutes(router)

	startTime := time.Now()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:    cfg.ControlAPI.Address,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("control API listening", "address", cfg.ControlAPI.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- session.Run(ctx)
	}()

	select {
	case err := <-serverErr:
		log.Errorw("control API failed", "error", err)
		stop()
		<-session.Done()
	case err := <-sessionErr:
		if err != nil {
			log.Errorw("session terminated", "error", err)
		} else {
			log.Info("session ended")
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
		<-session.Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ControlAPI.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during control API shutdown", "error", err)
		srv.Close()
	}

	feed.Close()
	link.Close()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during tracing shutdown", "error", err)
	}

	log.Info("meeting client stopped")
	os.Exit(0)
}
