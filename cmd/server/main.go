package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axmon/axmon-backend-go/internal/api"
	"github.com/axmon/axmon-backend-go/internal/config"
	"github.com/axmon/axmon-backend-go/internal/core/correlation"
	"github.com/axmon/axmon-backend-go/internal/core/escalation"
	"github.com/axmon/axmon-backend-go/internal/core/remediation"
	"github.com/axmon/axmon-backend-go/internal/database"
	"github.com/axmon/axmon-backend-go/internal/database/repositories"
	"github.com/axmon/axmon-backend-go/internal/metrics"
	"github.com/axmon/axmon-backend-go/internal/monitor"
	"github.com/axmon/axmon-backend-go/internal/notify"
	"github.com/axmon/axmon-backend-go/internal/websocket"
	"github.com/axmon/axmon-backend-go/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	// Create repositories
	repos := repositories.New(db)

	// Create WebSocket hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Register pipeline metrics
	m := metrics.New()

	// Notification sink: webhook when configured, otherwise the log
	var sink notify.Sink
	if cfg.Notifications.WebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.Notifications.WebhookURL, cfg.Notifications.Timeout, log)
	} else {
		log.Warn("No webhook configured, notifications go to the log")
		sink = notify.NewLogSink(log)
	}

	// Correlation policy from config
	relations := make([][2]string, 0, len(cfg.Monitoring.Relations))
	for _, rel := range cfg.Monitoring.Relations {
		relations = append(relations, [2]string{rel.TypeA, rel.TypeB})
	}
	correlator := correlation.NewCorrelator(repos.Alerts, repos.Incidents, wsHub, correlation.Config{
		SuppressionWindow: cfg.Monitoring.SuppressionWindow,
		CorrelationWindow: cfg.Monitoring.CorrelationWindow,
		Relations:         relations,
	}, log)

	escalationEngine := escalation.NewEngine(repos.Alerts, repos.Rules, repos.Escalations, sink, log)

	// One executor per environment, routed by the rule's action params
	executorRegistry := monitor.NewExecutorRegistry()
	remediationEngine := remediation.NewEngine(repos.Rules, repos.Remediations, executorRegistry, log)

	// Assemble one runner per enabled environment
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runners []*monitor.Runner
	for _, env := range cfg.Environments {
		if !env.Enabled {
			continue
		}

		var sources []monitor.Source
		if env.SQLServerDSN != "" {
			sqlSource, err := monitor.NewSQLSource(env.SQLServerDSN, env.Name, env.QueryTimeout, log)
			if err != nil {
				log.WithError(err).Errorf("Skipping environment %s: SQL Server connection failed", env.Name)
				continue
			}
			defer sqlSource.Close()
			sources = append(sources, sqlSource)
			executorRegistry.Register(env.Name, monitor.NewSQLActionExecutor(sqlSource.DB(), env.Name, log))
		}
		if env.HostMetrics {
			sources = append(sources, monitor.NewHostSource(log))
		}
		if len(sources) == 0 {
			log.Warnf("Environment %s has no metric sources, skipping", env.Name)
			continue
		}

		source := monitor.NewMultiSource(log, sources...)
		runner := monitor.NewRunner(env.Name, cfg.Monitoring.EvaluationInterval, env.AutoRemediate,
			source, repos.Rules, correlator, escalationEngine, remediationEngine, m, log)
		if err := runner.Start(ctx); err != nil {
			log.WithError(err).Errorf("Failed to start runner for environment %s", env.Name)
			continue
		}
		runners = append(runners, runner)
	}

	if len(runners) == 0 {
		log.Warn("No monitored environments configured, serving API only")
	}

	// Initialize router
	router := api.NewRouter(cfg, repos, correlator, remediationEngine, wsHub, m, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Starting AXMon backend on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	for _, runner := range runners {
		runner.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Info("Server exited")
}
