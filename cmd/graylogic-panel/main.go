// Gray Logic Panel - live device dashboard for a Gray Logic home.
//
// The panel signs in to the Gray Logic backend, keeps a live copy of every
// device reading (push channel first, polling as a fallback), and serves the
// dashboard UI and a local REST/WebSocket API. It can optionally mirror the
// readings to a local MQTT broker and record them in InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/gray-logic-panel/migrations"

	"github.com/nerrad567/gray-logic-panel/internal/api"
	"github.com/nerrad567/gray-logic-panel/internal/audit"
	"github.com/nerrad567/gray-logic-panel/internal/backend"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-panel/internal/livesync"
	"github.com/nerrad567/gray-logic-panel/internal/location"
	"github.com/nerrad567/gray-logic-panel/internal/mirror"
	"github.com/nerrad567/gray-logic-panel/internal/recorder"
	"github.com/nerrad567/gray-logic-panel/internal/session"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Panel",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Session guard: restores any token persisted by an earlier run.
	guard, err := session.NewGuard(ctx, session.NewSQLiteStore(db.DB, cfg.Session.TokenKey))
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	guard.SetLogger(log)
	log.Info("session loaded", "authenticated", guard.IsAuthenticated())

	client, err := backend.New(cfg.Backend, cfg.Commands, guard)
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}
	client.SetLogger(log)
	directory := location.NewDirectory(client, time.Duration(cfg.Cache.DirectoryTTL)*time.Second)

	engine, err := newEngine(cfg, client, guard, log)
	if err != nil {
		return err
	}

	// Background runners stop together, including when startup fails below.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return engine.Run(groupCtx) })

	// Activity log: stays a nil interface when disabled so callers skip it.
	var activity audit.Repository
	if cfg.Audit.Enabled {
		repo := audit.NewSQLiteRepository(db.DB)
		activity = repo
		group.Go(func() error { return audit.Retain(groupCtx, repo, cfg.Audit.Retention(), log) })
		log.Info("activity log enabled", "retention_days", cfg.Audit.RetentionDays)
	}

	var components []api.Component

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		var m *mirror.Mirror
		mqttClient, m, err = startMirror(ctx, cfg.MQTT, engine, client, guard, activity, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		components = append(components, m)
		group.Go(func() error { return m.Run(groupCtx) })
	} else {
		log.Info("MQTT mirror disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		rec := recorder.New(influxClient, engine)
		rec.SetLogger(log)
		components = append(components, rec)
		group.Go(func() error { return rec.Run(groupCtx) })
	} else {
		log.Info("InfluxDB recorder disabled")
	}

	srv, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Engine:     engine,
		Backend:    client,
		Session:    guard,
		Directory:  directory,
		Version:    version,
		DB:         db.DB,
		Audit:      activity,
		Components: components,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(groupCtx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-groupCtx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Runners return nil on cancellation; anything else is a wiring fault.
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("background task: %w", err)
	}

	log.Info("Gray Logic Panel stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_PANEL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_PANEL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newEngine builds the live sync engine. Without a push URL the engine
// polls from the start.
func newEngine(cfg *config.Config, client *backend.Client, guard *session.Guard, log *logging.Logger) (*livesync.Engine, error) {
	var dialer livesync.Dialer
	if cfg.Backend.PushURL != "" {
		ws, err := livesync.NewWebSocketDialer(cfg.Backend.PushURL, guard, cfg.WebSocket)
		if err != nil {
			return nil, fmt.Errorf("creating push dialer: %w", err)
		}
		dialer = ws
	} else {
		log.Warn("no push URL configured, device readings will be polled")
	}

	engine := livesync.NewEngine(livesync.ConfigFrom(cfg.Sync), client, guard, dialer)
	engine.SetLogger(log)
	return engine, nil
}

// startMirror connects to the broker and builds the state mirror. Commands
// taken from the broker are recorded in activity when it is non-nil, and a
// backend 401 on one of them clears guard.
func startMirror(ctx context.Context, cfg config.MQTTConfig, engine *livesync.Engine, client *backend.Client, guard *session.Guard, activity audit.Repository, log *logging.Logger) (*mqtt.Client, *mirror.Mirror, error) {
	mqttClient, err := mqtt.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"topic_prefix", cfg.TopicPrefix,
	)

	m := mirror.New(mqttClient, mqttClient.Topics(), engine)
	m.SetLogger(log)
	if cfg.AcceptCommands {
		m.EnableCommands(audit.RecordCommands(client, activity, audit.SourceMQTT, log))
		m.SetSessionClearer(guard)
		log.Info("MQTT device commands enabled", "topic", mqttClient.Topics().AllDeviceCommands())
	}

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		m.Resync()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	return mqttClient, m, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
