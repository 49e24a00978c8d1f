// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/api"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/config"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/control"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/logger"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/metrics"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/persistence"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/scenario"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/sentry"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/watchdog"
)

const shutdownTimeout = 3 * time.Second

type runOptions struct {
	scenarioPath     string
	sanityFaultCode  int
	recoveryFailures int
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller until interrupted",
		Long: `Run the controller with its event loop.

The error log is restored from the SQLite store on startup. Events are
accepted on the operator API; metrics and a JSON view of the controller are
served on the metrics port. A scenario, when given, is replayed once the loop
is running.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if opts.scenarioPath != "" {
				cfg.Agent.ScenarioPath = opts.scenarioPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.scenarioPath, "scenario", "", "scenario to replay after startup")
	cmd.Flags().IntVar(&opts.sanityFaultCode, "sanity-fault-code", 0, "make the simulated sanity check fail with this code")
	cmd.Flags().IntVar(&opts.recoveryFailures, "recovery-failures", 0, "number of simulated transient recoveries that fail")
	return cmd
}

// loopSubmitter lets the watchdog be built before the loop it posts to
type loopSubmitter struct {
	loop *control.EventLoop
}

func (s *loopSubmitter) Post(ctx context.Context, ev pickplace.Event) error {
	if s.loop == nil {
		return fmt.Errorf("post %s: loop not set up", ev.Kind())
	}
	return s.loop.Post(ctx, ev)
}

func run(ctx context.Context, cfg config.FullConfig, opts runOptions) error {
	logger.Initialize()
	if sentry.InitSentry(sentry.Options{DSN: cfg.Agent.SentryDSN, AppVersion: version, Debounce: true}) {
		logger.ReplaceGlobal(logger.GetLogger().WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return sentry.NewSentryHook(core)
		})))
		defer sentry.Flush(2 * time.Second)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.For(logger.ComponentCore)
	log.Infof("Starting pickplace %s for controller %s", version, cfg.Controller.ID)

	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = persistence.InMemory
	}
	store, err := persistence.Open(ctx, dbPath)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to open error log store: %v", err)
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnf("Failed to close error log store: %v", err)
		}
	}()

	restored, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("restore error log: %w", err)
	}
	if len(restored) > 0 {
		log.Warnf("Restored %d error record(s), start is blocked until they are cleared", len(restored))
	}

	journal := control.NewJournal(nil)
	submitter := &loopSubmitter{}

	var (
		tracker control.ProgressTracker
		wd      *watchdog.Watchdog
	)
	if cfg.Watchdog.StallTimeout > 0 {
		wd = watchdog.New(watchdog.Config{
			ID:            cfg.Controller.ID,
			Threshold:     cfg.Watchdog.StallTimeout,
			CheckInterval: cfg.Watchdog.CheckInterval,
			ErrorCode:     cfg.Watchdog.ErrorCode,
		}, submitter)
		tracker = wd
	}

	controller := pickplace.NewController(ctx, pickplace.ControllerConfig{
		ID:               cfg.Controller.ID,
		InitialState:     cfg.Controller.State(),
		ErrorLog:         restored,
		Actuation:        newSimulatedActuation(opts.sanityFaultCode, opts.recoveryFailures),
		Observer:         journal,
		RecoveryAttempts: cfg.Controller.RecoveryAttempts,
		RecoveryInterval: cfg.Controller.RecoveryInterval,
	}, logger.For(logger.ComponentController))

	loop := control.NewEventLoop(controller, control.LoopConfig{
		QueueSize:       cfg.Loop.QueueSize,
		DispatchTimeout: cfg.Loop.DispatchTimeout,
		Store:           store,
		Journal:         journal,
		Tracker:         tracker,
	})
	submitter.loop = loop

	metrics.RegisterSnapshotProvider(controller.GetID(), loop)
	defer metrics.UnregisterSnapshotProvider(controller.GetID())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Execute(gctx)
	})

	if wd != nil {
		g.Go(func() error {
			return wd.Start(gctx)
		})
	}

	if cfg.Agent.MetricsPort > 0 {
		server := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.Agent.MetricsPort))
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shutdown metrics server: %v", err)
			}
			return nil
		})
	}

	if cfg.Agent.APIPort > 0 {
		gin.SetMode(gin.ReleaseMode)
		server := api.NewServer(loop, fmt.Sprintf(":%d", cfg.Agent.APIPort), logger.GetLogger())
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	if cfg.Agent.ScenarioPath != "" {
		sc, err := scenario.Load(cfg.Agent.ScenarioPath)
		if err != nil {
			return err
		}
		g.Go(func() error {
			replay(gctx, loop, sc, log)
			return nil
		})
	}

	err = g.Wait()
	log.Info("pickplace stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// replay runs sc once the loop accepts events. A failing scenario is reported
// but leaves the controller running.
func replay(ctx context.Context, loop *control.EventLoop, sc scenario.Scenario, log *zap.SugaredLogger) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !loop.Running() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	if _, err := scenario.NewRunner(loop).Run(ctx, sc); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Scenario %q failed: %v", sc.Name, err)
	}
}
