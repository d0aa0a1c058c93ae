package main

import (
	"context"
	"os"
	"time"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/handlers"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/hub"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/metrics"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/ws"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/config"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/logging"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/monitoring"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/server"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("session-hub")

	config.LoadEnv(logger)

	logger.Info("Starting session-hub (real-time telemetry relay)")

	healthChecker := monitoring.NewHealthChecker("session-hub", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("session-hub", version.Version, version.GitCommit)

	serviceMetrics := &metrics.Metrics{
		HubConnections: metricsCollector.NewGauge("hub_connections_active", "Active transport connections", []string{"surface"}),
		FanoutEmitted:  metricsCollector.NewCounter("hub_fanout_emitted_total", "Dashboard events fanned out", []string{"event"}),
		FanoutDropped:  metricsCollector.NewCounter("hub_fanout_dropped_total", "Dashboard events dropped on overload", []string{"event"}),
		DeliveryLag:    metricsCollector.NewHistogram("hub_delivery_lag_seconds", "Delay between ingest and fan-out delivery", []string{"event"}, nil),
		SessionsActive: metricsCollector.NewGauge("hub_sessions_active", "Sessions currently tracked", []string{}),
		ReaperSweeps:   metricsCollector.NewCounter("hub_reaper_sweeps_total", "Completed reaper sweep passes", []string{}),
		ReapedSessions: metricsCollector.NewCounter("hub_reaper_reaped_sessions_total", "Sessions reaped for staleness", []string{}),
	}

	jwtSecret := []byte(config.GetEnv("JWT_SECRET", ""))
	sendQueueSize := config.GetEnvInt("CONNECTION_QUEUE_SIZE", 256)
	reapInterval := time.Duration(config.GetEnvInt("REAP_INTERVAL_SECONDS", 30)) * time.Second
	staleAfter := time.Duration(config.GetEnvInt("STALE_THRESHOLD_SECONDS", 60)) * time.Second
	maxBroadcastDelayMs := config.GetEnvInt("MAX_BROADCAST_DELAY_MS", 60000)

	store := hub.NewStore()
	store.SetMaxDelay(maxBroadcastDelayMs)
	rooms := hub.NewRooms()

	var transport *ws.Hub
	viewers := hub.NewViewers(store.Producer, func(connID string) (hub.Subscriber, bool) {
		return transport.ConnByID(connID)
	})

	fanout := hub.NewFanout(rooms, store)
	fanout.SetMetrics(serviceMetrics)
	scheduler := hub.NewDelayScheduler(fanout)
	fanout.SetScheduler(scheduler)

	pipeline := hub.NewPipeline(store, rooms, viewers, fanout, nil, logger)
	transport = ws.NewHub(pipeline, logger, serviceMetrics, jwtSecret, sendQueueSize)
	pipeline.Broadcast = transport

	longPoll := ws.NewLongPollRegistry(pipeline)

	reaper := hub.NewReaper(store, scheduler, logger, reapInterval, staleAfter)
	reaper.SetMetrics(serviceMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reaper.Run(ctx)

	healthChecker.AddCheck("reaper", monitoring.HealthCheck(func() monitoring.CheckResult {
		staleness := time.Since(reaper.LastSweep())
		if staleness > reapInterval*3 {
			return monitoring.CheckResult{
				Status:  monitoring.StatusUnhealthy,
				Message: "reaper sweep has not run recently",
				Latency: staleness.String(),
			}
		}
		return monitoring.CheckResult{Status: monitoring.StatusHealthy, Latency: staleness.String()}
	}))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"CONNECTION_QUEUE_SIZE":   config.GetEnv("CONNECTION_QUEUE_SIZE", "256"),
		"REAP_INTERVAL_SECONDS":   config.GetEnv("REAP_INTERVAL_SECONDS", "30"),
		"STALE_THRESHOLD_SECONDS": config.GetEnv("STALE_THRESHOLD_SECONDS", "60"),
		"MAX_BROADCAST_DELAY_MS":  config.GetEnv("MAX_BROADCAST_DELAY_MS", "60000"),
	}))

	router := server.SetupServiceRouter(
		logger,
		"session-hub",
		parseCORSOrigins(config.GetEnv("CORS_ORIGINS", "*")),
		healthChecker,
		metricsCollector,
	)

	h := handlers.NewHubHandlers(transport, longPoll, store, logger)
	router.GET("/ws", h.HandleWebSocket)
	router.GET("/sessions", h.HandleListSessions)
	router.POST("/poll/connect", h.HandlePollConnect)
	router.POST("/poll/:connectionId", h.HandlePoll)
	router.POST("/emit/:connectionId", h.HandleEmit)
	router.POST("/poll/:connectionId/close", h.HandlePollClose)

	serverConfig := server.DefaultConfig("session-hub", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("HTTP server startup failed")
	}
}

func parseCORSOrigins(raw string) []string {
	if raw == "" || raw == "*" {
		return []string{"*"}
	}
	origins := make([]string, 0)
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				origins = append(origins, raw[start:i])
			}
			start = i + 1
		}
	}
	return origins
}

func init() {
	if os.Getenv("GIN_MODE") == "" {
		os.Setenv("GIN_MODE", "release")
	}
}
