package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-blebox/internal/api"
	"github.com/nerrad567/gray-logic-blebox/internal/bridges/blebox"
	"github.com/nerrad567/gray-logic-blebox/internal/device"
	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-blebox/migrations"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// runServe wires every component and blocks until ctx is cancelled.
// Deferred closes run in reverse order: API, bridge, scheduler, InfluxDB,
// MQTT, database.
func runServe(ctx context.Context, opts *options) error { //nolint:gocognit,funlen // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic BleBox bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, source, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "source", source, "site", cfg.Site.ID)

	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	store := device.NewSQLiteRepository(db.DB)

	will, err := lastWill()
	if err != nil {
		return fmt.Errorf("building MQTT last will: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, will)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
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
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	bus := &mqttBridgeAdapter{client: mqttClient}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	core, err := buildCore(cfg.BleBox, log)
	if err != nil {
		return err
	}
	defer core.scheduler.Close()

	bridgeOpts := blebox.BridgeOptions{
		ID:             blebox.Protocol,
		Version:        version,
		HealthInterval: cfg.BleBox.HealthInterval,
		MQTTClient:     bus,
		Registry:       core.registry,
		Scanner:        core.scanner,
		Requests:       core.scheduler,
		Store:          store,
		Logger:         log,
	}
	if influxClient != nil {
		bridgeOpts.Telemetry = influxClient
	}
	bridge, err := blebox.NewBridge(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer bridge.Stop()

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Devices:  bridge,
			MQTT:     bus,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openDatabase opens SQLite and applies the embedded migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Path)
	return db, nil
}

// lastWill is the retained offline health message the broker publishes if
// the bridge drops without a clean disconnect.
func lastWill() (*mqtt.Will, error) {
	payload, err := json.Marshal(blebox.NewLWTMessage(blebox.Protocol))
	if err != nil {
		return nil, err
	}
	return &mqtt.Will{Topic: blebox.HealthTopic(), Payload: payload}, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
