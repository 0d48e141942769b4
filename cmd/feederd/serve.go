package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/feeder-core/internal/api"
	"github.com/nerrad567/feeder-core/internal/audit"
	"github.com/nerrad567/feeder-core/internal/auth"
	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/events"
	"github.com/nerrad567/feeder-core/internal/feeding"
	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
	"github.com/nerrad567/feeder-core/internal/infrastructure/database"
	"github.com/nerrad567/feeder-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/feeder-core/internal/infrastructure/logging"
	"github.com/nerrad567/feeder-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/feeder-core/internal/schedule"
	"github.com/nerrad567/feeder-core/internal/schedule/push"
)

// run is the server, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Feeder Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

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

	// Accounts
	users := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedAdmin(ctx, users, log.Component("auth")); seedErr != nil {
		return fmt.Errorf("seeding admin: %w", seedErr)
	}
	authSvc := auth.NewService(users, cfg.Security.JWT, log.Component("auth"))

	// Domain
	deviceRepo := device.NewSQLiteRepository(db.DB)
	directory := device.NewDirectory(deviceRepo, cfg.Devices, log.Component("device"))
	schedules := schedule.NewSQLiteRepository(db.DB)
	deviceLog := audit.NewLog(audit.NewSQLiteRepository(db.DB), log.Component("audit"))
	engine := feeding.NewEngine(directory, deviceRepo, schedules, deviceLog, cfg.Feeding, log.Component("feeding"))
	syncer := push.New(directory, schedules, deviceLog, cfg.Sync, log.Component("push"))
	ingestor := events.NewIngestor(directory, deviceLog, log.Component("ingest"))

	// Optional sinks. Interfaces stay nil when disabled.
	sinks := events.Sinks{MQTTQoS: byte(cfg.MQTT.QoS)} //nolint:gosec // validated 0-2

	mqttClient, err := connectMQTT(cfg.MQTT, log.Component("mqtt"))
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		sinks.MQTT = mqttClient

		topic := mqtt.Topics{}.AllDeviceLogs()
		if subErr := mqttClient.Subscribe(topic, sinks.MQTTQoS, ingestor.HandleMQTT); subErr != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, subErr)
		}
		log.Info("MQTT log ingest subscribed", "topic", topic)
	}

	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks.Telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		MQTT:      cfg.MQTT,
		Logger:    log.Component("api"),
		Auth:      authSvc,
		Devices:   directory,
		Schedules: schedules,
		Audit:     deviceLog,
		Engine:    engine,
		Sync:      syncer,
		Ingestor:  ingestor,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Fan domain events out to MQTT, InfluxDB and WebSocket clients.
	sinks.Hub = server.Hub()
	dispatcher := events.NewDispatcher(sinks, deviceRepo, log.Component("dispatch"))
	defer dispatcher.Close()
	engine.AddObserver(dispatcher)
	syncer.SetNotifier(dispatcher)
	deviceLog.Subscribe(dispatcher)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API server, event
	// dispatcher (drains queued events), InfluxDB, MQTT, database.
	return nil
}

// connectMQTT dials the broker when enabled. A nil client with a nil error
// means MQTT is off.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg, log, mqtt.Hooks{
		OnConnect: func() {
			log.Info("MQTT session established")
		},
		OnConnectionLost: func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
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
