// Tado Direct - local control plane for Tado smart thermostats.
//
// Tado Direct talks to the Tado cloud API on behalf of local consumers:
// it owns the OAuth tokens, polls home state on a rate-limit-aware
// cadence, and exposes a local REST/WebSocket API plus optional MQTT and
// InfluxDB sinks. One instance per account.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/dalocar/tado-direct/migrations"

	"github.com/dalocar/tado-direct/internal/api"
	"github.com/dalocar/tado-direct/internal/auth"
	"github.com/dalocar/tado-direct/internal/command"
	"github.com/dalocar/tado-direct/internal/engine"
	"github.com/dalocar/tado-direct/internal/infrastructure/config"
	"github.com/dalocar/tado-direct/internal/infrastructure/database"
	"github.com/dalocar/tado-direct/internal/infrastructure/influxdb"
	"github.com/dalocar/tado-direct/internal/infrastructure/logging"
	"github.com/dalocar/tado-direct/internal/infrastructure/mqtt"
	"github.com/dalocar/tado-direct/internal/tado"
	"github.com/dalocar/tado-direct/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when neither the flag nor the environment
// variable names a config file.
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main so errors map
// to exit codes in one place.
func run(ctx context.Context) error {
	configPath := flag.String("config", getConfigPath(), "path to config file")
	flag.Parse()

	log := logging.Default()
	log.Info("starting Tado Direct",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", *configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database (holds the OAuth refresh token, hence 0600)
	db, err := database.Open(database.Config{
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

	// Auth session over the persisted token store
	profiles := make([]auth.ClientProfile, 0, len(cfg.Auth.Clients))
	for _, c := range cfg.Auth.Clients {
		profiles = append(profiles, auth.ClientProfile{ID: c.ID, Scope: c.Scope})
	}
	session := auth.NewSession(auth.NewSQLiteStore(db), auth.Config{
		OAuthBaseURL:  cfg.Vendor.OAuthBaseURL,
		Profiles:      profiles,
		RefreshBuffer: cfg.RefreshBuffer(),
		HTTPTimeout:   cfg.VendorTimeout(),
	}, log)

	// Vendor client over the rate-limit-aware transport
	httpClient := transport.New(session, transport.Config{
		Timeout: cfg.VendorTimeout(),
	}, log)
	vendor := tado.NewClient(httpClient, cfg.Vendor.APIBaseURL, cfg.Vendor.HopsBaseURL)

	eng := engine.New(vendor, session, engine.Config{
		PollInterval:      cfg.PollInterval(),
		MaxPollInterval:   cfg.MaxPollInterval(),
		RecoverySuccesses: cfg.Poll.RecoverySuccesses,
		ConfirmCycles:     cfg.Command.ConfirmCycles,
		MaxResends:        cfg.Command.MaxResends,
		DeviceFlowTimeout: cfg.DeviceFlowTimeout(),
	}, log)

	// Command lifecycle observers: WebSocket always, MQTT when enabled.
	var commandListeners []func(command.Event)

	// Optional MQTT sink
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		sink := mqtt.NewSink(mqttClient, log)
		diffs, cancelSub := eng.Subscribe()
		defer cancelSub()
		go sink.Run(ctx, diffs)
		commandListeners = append(commandListeners, sink.CommandListener())
	} else {
		log.Info("MQTT disabled")
	}

	// Optional InfluxDB telemetry recorder
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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

		recorder := influxdb.NewRecorder(influxClient, log)
		diffs, cancelSub := eng.Subscribe()
		defer cancelSub()
		go recorder.Run(ctx, diffs)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Local API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Core:     eng,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	commandListeners = append(commandListeners, server.CommandListener())

	eng.SetCommandListener(func(ev command.Event) {
		for _, listener := range commandListeners {
			listener(ev)
		}
	})

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Engine runs until shutdown; discovery retries quietly while the
	// account is unauthorized, so first-run users can complete the device
	// flow through POST /api/v1/auth/device.
	if !eng.Authorized(ctx) {
		log.Warn("no stored authorization; start the device flow via the local API")
	}

	log.Info("initialisation complete")
	err = eng.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("engine stopped: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path. Uses the
// TADODIRECT_CONFIG environment variable if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("TADODIRECT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
