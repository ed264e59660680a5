// casa-core keeps a home dashboard in sync with the devices behind an
// MQTT broker.
//
// It owns the broker session, folds incoming topics into per-device state,
// publishes user commands and serves the resulting state over HTTP and
// WebSocket. Traffic can optionally be archived to SQLite and device and
// sensor history exported to InfluxDB and ClickHouse.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/casa-core/migrations"

	"github.com/nerrad567/casa-core/internal/api"
	"github.com/nerrad567/casa-core/internal/audit"
	"github.com/nerrad567/casa-core/internal/bus"
	"github.com/nerrad567/casa-core/internal/engine"
	"github.com/nerrad567/casa-core/internal/eventlog"
	"github.com/nerrad567/casa-core/internal/infrastructure/clickhouse"
	"github.com/nerrad567/casa-core/internal/infrastructure/config"
	"github.com/nerrad567/casa-core/internal/infrastructure/database"
	"github.com/nerrad567/casa-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/casa-core/internal/infrastructure/logging"
	"github.com/nerrad567/casa-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnvVar overrides defaultConfigPath.
const configEnvVar = "CASA_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting casa-core",
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

	eng, err := engine.New(engine.Options{
		MQTT:   cfg.MQTT,
		Logger: log.With("component", "engine"),
	})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer eng.Close()

	checks := make(map[string]api.HealthChecker)

	// Traffic archive (optional)
	var auditRepo audit.Repository
	if cfg.Database.Enabled {
		db, archiver, openErr := startArchive(ctx, cfg, log)
		if openErr != nil {
			return openErr
		}
		defer func() {
			archiver.Stop()
			log.Info("closing database", "archived", archiver.Archived(), "dropped", archiver.Dropped())
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		auditRepo = audit.NewSQLiteRepository(db.DB)
		checks["database"] = db
		eng.AddHooks(engine.Hooks{OnLog: archiver.Record})
	} else {
		log.Info("traffic archive disabled")
	}

	// History sinks (optional)
	var sinks []telemetry.Sink
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
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
		sinks = append(sinks, telemetry.InfluxSink{Client: influxClient})
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.ClickHouse.Enabled {
		chClient, connErr := clickhouse.Connect(ctx, cfg.ClickHouse)
		if connErr != nil {
			return fmt.Errorf("connecting to ClickHouse: %w", connErr)
		}
		defer func() {
			log.Info("closing ClickHouse connection")
			if closeErr := chClient.Close(); closeErr != nil {
				log.Error("error closing ClickHouse", "error", closeErr)
			}
		}()
		log.Info("ClickHouse connected",
			"addr", cfg.ClickHouse.Addr,
			"database", cfg.ClickHouse.Database,
		)
		sinks = append(sinks, telemetry.ClickHouseSink{Client: chClient})
		checks["clickhouse"] = chClient
	} else {
		log.Info("ClickHouse disabled")
	}

	if len(sinks) > 0 {
		recorder := telemetry.NewRecorder(cfg.Telemetry.BufferSize, sinks...)
		recorder.SetLogger(log.With("component", "telemetry"))
		recorder.Start(ctx)
		// Deferred after the sinks so it drains before they close.
		defer func() {
			recorder.Stop()
			log.Info("telemetry stopped",
				"written", recorder.Written(),
				"dropped", recorder.Dropped(),
				"failed", recorder.Failed(),
			)
		}()
		eng.AddHooks(engine.Hooks{OnDevices: recorder.Observe})
		log.Info("telemetry started", "sinks", recorder.Sinks())
	}

	eng.AddHooks(engine.Hooks{
		OnConnection: func(st bus.Status) {
			log.Info("MQTT connection state changed", "state", st.State.String(), "broker", st.Broker)
		},
		OnLog: func(e eventlog.Entry) {
			log.Debug("traffic", "category", string(e.Category), "message", e.Message)
		},
	})

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.With("component", "api"),
		Core:    eng,
		Audit:   auditRepo,
		Checks:  checks,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.MQTT.AutoConnect {
		log.Info("connecting to MQTT broker", "broker", cfg.MQTT.BrokerURL())
		eng.Connect()
	}

	log.Info("casa-core started",
		"site", cfg.Site.ID,
		"api", server.Addr(),
		"broker", cfg.MQTT.BrokerURL(),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, stopping services")

	// Orderly bus shutdown before the deferred closers run.
	eng.Disconnect()

	return nil
}

// startArchive opens the SQLite database, applies migrations and starts
// the archiver goroutine.
func startArchive(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, *audit.Archiver, error) {
	db, err := database.Open(database.FromConfig(cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", db.Path())

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Migrate(migrateCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	archiver := audit.NewArchiver(audit.NewSQLiteRepository(db.DB), cfg.Telemetry.BufferSize)
	archiver.SetLogger(log.With("component", "audit"))
	archiver.Start(ctx)

	return db, archiver, nil
}

// getConfigPath returns the configuration file path.
// Checks CASA_CONFIG environment variable first, then uses default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}
