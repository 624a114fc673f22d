package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/capture-watchdog/internal/api/http"
	"github.com/GriffinCanCode/capture-watchdog/internal/freeze"
	"github.com/GriffinCanCode/capture-watchdog/internal/health"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/config"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/logging"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/capture-watchdog/internal/obsws"
	"github.com/GriffinCanCode/capture-watchdog/internal/remediation"
	"github.com/GriffinCanCode/capture-watchdog/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse flags
	configPath := flag.String("config", "", "Path to a YAML or TOML config file")
	source := flag.String("source", "", "Name of the capture source to watch")
	host := flag.String("host", "", "Control server host")
	port := flag.Int("port", 0, "Control server port")
	interval := flag.Duration("interval", 0, "Time between health checks")
	threshold := flag.Int("threshold", 0, "Consecutive failed checks before a restart")
	strategy := flag.String("strategy", "", "Health check strategy (screenshot or scene)")
	statusAddr := flag.String("status-addr", "", "Listen address for the status endpoint")
	dev := flag.Bool("dev", false, "Development logging (colored, debug level)")
	restartOnce := flag.Bool("restart-once", false, "Run one restart sequence and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watchdog: %v\n", err)
		return 2
	}

	// Flags override file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			cfg.Source.Name = *source
		case "host":
			cfg.OBS.Host = *host
		case "port":
			cfg.OBS.Port = *port
		case "interval":
			cfg.Monitor.Interval = config.Duration(*interval)
		case "threshold":
			cfg.Monitor.Threshold = *threshold
		case "strategy":
			cfg.Monitor.Strategy = *strategy
		case "status-addr":
			cfg.Status.Addr = *statusAddr
		case "dev":
			cfg.Logging.Development = *dev
			if *dev {
				cfg.Logging.Level = "debug"
			}
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "watchdog: invalid configuration:\n%v\n", err)
		return 2
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "watchdog: failed to create logger: %v\n", err)
		return 2
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("watchdog", logger.Named("trace"))
	defer tracer.Close()

	sup, err := newSupervisor(cfg, metrics, tracer, logger)
	if err != nil {
		logger.Error("Failed to create supervisor", zap.Error(err))
		return 2
	}

	if *restartOnce {
		return restart(ctx, sup, logger)
	}

	var srv *apihttp.Server
	if cfg.Status.Addr != "" {
		srv, err = apihttp.NewServer(apihttp.Config{
			Addr:         cfg.Status.Addr,
			AllowOrigins: cfg.Status.AllowOrigins,
			RateLimit:    cfg.Status.RateLimit,
			Tracer:       tracer,
		}, sup, metrics, logger.Named("status"))
		if err != nil {
			logger.Error("Failed to create status endpoint", zap.Error(err))
			return 2
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(gctx)
	})
	if srv != nil {
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, supervisor.ErrSourceNotFound) {
			logger.Error("Watched source does not exist", zap.String("source", cfg.Source.Name))
		} else {
			logger.Error("Watchdog stopped", zap.Error(err))
		}
		return 1
	}
	logger.Info("Shutdown complete")
	return 0
}

func newSupervisor(cfg *config.Config, metrics *monitoring.Metrics, tracer *tracing.Tracer, logger *logging.Logger) (*supervisor.Supervisor, error) {
	checker, err := health.New(health.Options{
		Strategy: cfg.Monitor.Strategy,
		Fallback: cfg.Monitor.SceneFallback,
		Width:    cfg.Monitor.ScreenshotWidth,
		Height:   cfg.Monitor.ScreenshotHeight,
		Logger:   logger.Named("health"),
	})
	if err != nil {
		return nil, err
	}

	gate := remediation.NewGate(cfg.Remediation.Cooldown.Duration(), nil)
	restarter := remediation.NewController(gate, remediation.Options{
		Source:      cfg.Source.Name,
		ToggleField: cfg.Remediation.ToggleField,
		SettleDelay: cfg.Remediation.SettleDelay.Duration(),
		Logger:      logger.Named("remediation"),
	})

	return supervisor.New(supervisor.Options{
		Source:            cfg.Source.Name,
		Interval:          cfg.Monitor.Interval.Duration(),
		MaxReconnectDelay: cfg.Reconnect.MaxDelay.Duration(),
		Dial: supervisor.OBSDialer(obsws.Options{
			Host:             cfg.OBS.Host,
			Port:             cfg.OBS.Port,
			Password:         cfg.OBS.Password,
			HandshakeTimeout: cfg.OBS.HandshakeTimeout.Duration(),
			RequestTimeout:   cfg.OBS.RequestTimeout.Duration(),
			Logger:           logger.Named("obsws"),
			Observer:         metrics.RecordRequest,
		}),
		Checker:   checker,
		Detector:  freeze.NewDetector(cfg.Monitor.Threshold),
		Restarter: restarter,
		Metrics:   metrics,
		Tracer:    tracer,
		Logger:    logger.Named("supervisor"),
	})
}

// restart runs a single remediation and maps its outcome to the exit code.
func restart(ctx context.Context, sup *supervisor.Supervisor, logger *logging.Logger) int {
	res, err := sup.RestartOnce(ctx)
	if err != nil {
		logger.Error("Manual restart failed", zap.Error(err))
		return 1
	}

	logger.Info("Manual restart finished",
		zap.String("outcome", res.Outcome.String()),
		zap.Duration("took", res.Took.Round(time.Millisecond)),
	)
	if res.Outcome != remediation.Restarted {
		return 1
	}
	return 0
}
