// Package server boots the orchestrator authority: one HTTP server for
// the operator API and the agent protocol, plus the staleness monitor.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/artifacts"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/config"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/configstore"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/event"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/database"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/datasets"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/orchestrator"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/server/api"
)

func Run(ctx context.Context, cfg *config.Config) error {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Debug().Str("level", cfg.Logging.Level).Msg("log level configured")

	st, err := database.Open(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	bus := event.NewBus()
	subscribeAuditLog(bus)

	shared := cfg.Orchestrator.SharedDataDir
	configs := configstore.New(shared)
	area := artifacts.New(shared)
	dataStore := datasets.New(shared)

	svc := orchestrator.NewService(st, bus, configs, area, orchestrator.Options{
		JobStatusTTL:     config.Duration(cfg.Orchestrator.JobStatusTTL, 90*time.Second),
		HostHeartbeatTTL: config.Duration(cfg.Orchestrator.HostHeartbeatTTL, 30*time.Second),
		WorkerStaleGrace: config.Duration(cfg.Orchestrator.WorkerStaleGrace, time.Minute),
		QueueClaimTTL:    config.Duration(cfg.Orchestrator.QueueClaimTTL, time.Minute),
		DefaultImage:     cfg.Orchestrator.DefaultImage,
		SharedDataDir:    shared,
		DataMountPath:    cfg.Orchestrator.DataMountPath,
		TrackingURI:      cfg.Orchestrator.TrackingURI,
	})

	monitor := orchestrator.NewMonitor(svc, config.Duration(cfg.Orchestrator.MonitorInterval, 15*time.Second))

	e := echo.New()
	e.HideBanner = true

	api.SetupRouter(e, api.RouterConfig{
		Svc:       svc,
		Store:     st,
		Artifacts: area,
		Configs:   configs,
		Datasets:  dataStore,
	})

	monCtx, monCancel := context.WithCancel(context.Background())
	go monitor.Run(monCtx)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	monCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}

// subscribeAuditLog mirrors every bus event into the structured log so
// operators get a lifecycle audit trail without a separate sink.
func subscribeAuditLog(bus event.Bus) {
	jobEvent := func(ctx context.Context, ev event.Event) error {
		je, ok := ev.Payload.(event.JobEvent)
		if !ok {
			return nil
		}
		log.Info().
			Str("event", string(ev.Type)).
			Str("job_id", je.JobID).
			Str("name", je.Name).
			Str("worker_id", je.WorkerID).
			Str("from", je.From).
			Str("to", je.To).
			Str("reason", je.Reason).
			Msg("audit")
		return nil
	}
	for _, t := range []event.EventType{
		event.EventJobSubmitted,
		event.EventJobDispatched,
		event.EventJobStatusChanged,
		event.EventJobRequeued,
		event.EventJobDeleted,
	} {
		bus.Subscribe(t, jobEvent)
	}

	bus.Subscribe(event.EventQueueCleaned, func(ctx context.Context, ev event.Event) error {
		if qe, ok := ev.Payload.(event.QueueEvent); ok {
			log.Info().
				Str("event", string(ev.Type)).
				Strs("removed", qe.Removed).
				Msg("audit")
		}
		return nil
	})
	bus.Subscribe(event.EventWorkerSeen, func(ctx context.Context, ev event.Event) error {
		if we, ok := ev.Payload.(event.WorkerEvent); ok {
			log.Info().
				Str("event", string(ev.Type)).
				Str("worker_id", we.WorkerID).
				Msg("audit")
		}
		return nil
	})
}
