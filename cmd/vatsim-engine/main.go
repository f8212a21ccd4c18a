package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/vatsim-engine/internal/api"
	"github.com/snarg/vatsim-engine/internal/config"
	"github.com/snarg/vatsim-engine/internal/database"
	"github.com/snarg/vatsim-engine/internal/geo"
	"github.com/snarg/vatsim-engine/internal/ingest"
	"github.com/snarg/vatsim-engine/internal/metrics"
	"github.com/snarg/vatsim-engine/internal/mqttclient"
	"github.com/snarg/vatsim-engine/internal/pipeline"
	"github.com/snarg/vatsim-engine/internal/scheduler"
	"github.com/snarg/vatsim-engine/internal/storage"
	"github.com/snarg/vatsim-engine/internal/summarize"
	"github.com/snarg/vatsim-engine/internal/vatsim"
)

var version = "dev"

// Exit codes: 0 graceful shutdown, 1 config/schema failure at startup,
// 2 unrecoverable runtime fault.
const (
	exitConfig  = 1
	exitRuntime = 2
)

// dbFaultLimit is how many consecutive database-confirmed tick
// failures are tolerated before the process gives up with exit code 2.
const dbFaultLimit = 5

// pinger is the health probe the fault guard uses to tell a database
// outage apart from an ordinary tick error.
type pinger interface {
	HealthCheck(ctx context.Context) error
}

// dbFaultGuard escalates a persistent database outage to a fatal
// error. A tick failure counts toward the streak only when the pool
// ping fails too; a successful tick, or a failure with a healthy pool,
// resets it. The fatal channel fires once, when the streak reaches the
// limit.
type dbFaultGuard struct {
	db     pinger
	limit  int
	fatal  chan<- error
	streak atomic.Int32
}

func (g *dbFaultGuard) wrap(run func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		err := run(ctx)
		if err == nil {
			g.streak.Store(0)
			return nil
		}
		if ctx.Err() != nil {
			// Shutdown in progress, not an outage.
			return err
		}
		if g.db.HealthCheck(ctx) == nil {
			g.streak.Store(0)
			return err
		}
		if n := g.streak.Add(1); int(n) == g.limit {
			select {
			case g.fatal <- fmt.Errorf("database unreachable for %d consecutive ticks: %w", n, err):
			default:
			}
		}
		return err
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	startTime := time.Now()

	envFile := flag.String("env", "", "path to .env file (default .env)")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	dbURL := flag.String("db-url", "", "database URL (overrides DATABASE_URL)")
	dataURL := flag.String("data-url", "", "network data feed URL (overrides VATSIM_DATA_URL)")
	flag.Parse()

	cfg, err := config.Load(config.Overrides{
		EnvFile:     *envFile,
		HTTPAddr:    *httpAddr,
		LogLevel:    *logLevel,
		DatabaseURL: *dbURL,
		DataURL:     *dataURL,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Error().Err(err).Msg("failed to load config")
		return exitConfig
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("vatsim-engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, database.PoolConfig{
		URL:            cfg.DatabaseURL,
		PoolSize:       cfg.DBPoolSize,
		MaxOverflow:    cfg.DBMaxOverflow,
		Recycle:        time.Duration(cfg.DBPoolRecycleSeconds) * time.Second,
		PoolTimeout:    time.Duration(cfg.DBPoolTimeoutSeconds) * time.Second,
		ConnectTimeout: time.Duration(cfg.DBConnectTimeoutSeconds) * time.Second,
	}, dbLog)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		return exitConfig
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Error().Err(err).Msg("database schema unusable")
		return exitConfig
	}

	// Boundary polygon (optional)
	var boundary pipeline.BoundarySource
	if cfg.BoundaryPolygonFile != "" {
		bw, err := geo.NewBoundaryWatcher(cfg.BoundaryPolygonFile, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to load boundary polygon")
			return exitConfig
		}
		if err := bw.Start(ctx); err != nil {
			log.Error().Err(err).Msg("failed to watch boundary polygon")
			return exitConfig
		}
		defer bw.Stop()
		boundary = bw
	}

	// Filter pipeline
	patterns, err := pipeline.CompilePatterns(cfg.CallsignPatterns)
	if err != nil {
		log.Error().Err(err).Msg("invalid callsign patterns")
		return exitConfig
	}
	filters := pipeline.New(boundary, patterns, cfg.IncludeObservers, cfg.ExcludedFrequenciesMHz)

	// Upstream client
	client := vatsim.NewClient(vatsim.ClientOptions{
		DataURL:         cfg.DataURL,
		TransceiversURL: cfg.TransceiversURL,
		StatusURL:       cfg.StatusURL,
		UserAgent:       cfg.UserAgent,
		Timeout:         time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second,
		Retries:         cfg.RetryAttempts,
	}, log)
	if cfg.DataURL == "" || cfg.TransceiversURL == "" {
		if err := client.DiscoverURLs(ctx); err != nil {
			log.Error().Err(err).Msg("failed to discover feed urls from status document")
			return exitConfig
		}
	}

	// MQTT summary publisher (optional)
	var mqtt *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         mqttLog,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to connect to mqtt broker")
			return exitConfig
		}
		defer mqtt.Close()
	}

	// S3 export for pruned transceivers (optional)
	var export *storage.S3Export
	if cfg.S3Bucket != "" {
		export, err = storage.NewS3Export(storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		}, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to configure s3 export")
			return exitConfig
		}
		if err := export.HeadBucket(ctx); err != nil {
			log.Error().Err(err).Str("bucket", cfg.S3Bucket).Msg("s3 bucket unreachable")
			return exitConfig
		}
	}
	sweeper := storage.NewSweeper(db,
		time.Duration(cfg.TransceiverRetentionHours)*time.Hour, export, log)

	// Ingest poller
	poller := ingest.NewPoller(ingest.PollerOptions{
		DB:        db,
		Client:    client,
		Filters:   filters,
		BatchSize: cfg.BatchSize,
		Log:       log,
	})
	poller.Start(ctx)

	// Summarization passes
	detector := summarize.NewDetector(db, summarize.Config{
		FrequencyToleranceMHz: cfg.FrequencyToleranceMHz,
		TimeWindow:            time.Duration(cfg.TimeWindowSeconds) * time.Second,
		ProximityNM:           cfg.ProximityNM,
	}, log)

	var publisher summarize.SummaryPublisher
	if mqtt != nil {
		publisher = mqtt
	}
	flightPass := summarize.NewFlightPass(summarize.FlightPassOptions{
		DB:            db,
		Detector:      detector,
		CompletionAge: time.Duration(cfg.FlightCompletionMinutes) * time.Minute,
		Retention:     time.Duration(cfg.FlightRetentionHours) * time.Hour,
		Workers:       cfg.Workers(),
		Publisher:     publisher,
		Log:           log,
	})
	controllerPass := summarize.NewControllerPass(summarize.ControllerPassOptions{
		DB:            db,
		Detector:      detector,
		CompletionAge: time.Duration(cfg.ControllerCompletionMinutes) * time.Minute,
		Retention:     time.Duration(cfg.ControllerRetentionHours) * time.Hour,
		Workers:       cfg.Workers(),
		Publisher:     publisher,
		Log:           log,
	})

	prometheus.MustRegister(metrics.NewCollector(db.Pool, poller))

	// HTTP server (health + metrics)
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, db, mqtt, poller, version, startTime, httpLog)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Scheduler: three independent tracks, each serial with itself.
	// Every track runs under the fault guard so a dead database ends
	// the process instead of an endless log stream.
	fatalCh := make(chan error, 1)
	guard := &dbFaultGuard{db: db, limit: dbFaultLimit, fatal: fatalCh}
	summaryInterval := time.Duration(cfg.SummaryPassIntervalMinutes) * time.Minute
	sched := scheduler.New(scheduler.DefaultGrace, log,
		scheduler.Track{
			Name:     "ingest",
			Interval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
			Run:      guard.wrap(poller.Tick),
		},
		scheduler.Track{
			Name:     "flight_summary",
			Interval: summaryInterval,
			Run:      guard.wrap(flightPass.Run),
		},
		scheduler.Track{
			Name:     "controller_summary",
			Interval: summaryInterval,
			Run: guard.wrap(func(ctx context.Context) error {
				if err := controllerPass.Run(ctx); err != nil {
					return err
				}
				return sweeper.Sweep(ctx)
			}),
		},
	)
	schedDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedDone)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
			exitCode = exitRuntime
		}
	case err := <-fatalCh:
		log.Error().Err(err).Msg("database fault persists, giving up")
		exitCode = exitRuntime
	}

	// Let in-flight ticks drain, then stop the HTTP server.
	stop()
	<-schedDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("vatsim-engine stopped")
	return exitCode
}
