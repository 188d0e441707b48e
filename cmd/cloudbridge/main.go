// Gray Logic Cloud Bridge
//
// This is the main entry point for the cloud bridge. It exposes the lights
// and power-monitoring plugs of a vendor cloud account to Gray Logic Core:
//   - Discovers devices on the account and keeps a local inventory
//   - Polls each device on its own adaptive schedule
//   - Publishes entity state on MQTT and executes commands received there
//   - Serves a local REST/WebSocket API
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/gray-logic-cloud/migrations"

	"github.com/nerrad567/gray-logic-cloud/internal/api"
	"github.com/nerrad567/gray-logic-cloud/internal/bridge"
	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-cloud/internal/device"
	"github.com/nerrad567/gray-logic-cloud/internal/entity"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvPath    = ".env"

	// discoveryTimeout bounds the device list request at startup.
	discoveryTimeout = 30 * time.Second

	pruneInterval = 24 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application lifecycle, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting cloud bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := loadEnvFile(getEnvPath()); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"site_id", cfg.Site.ID,
		"poll_interval", cfg.Polling.Interval,
	)

	// Database
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

	deviceRepo := device.NewSQLiteRepository(db.DB)
	historyRepo := device.NewSQLiteStateHistoryRepository(db.DB)

	// Vendor cloud
	cloudClient, err := cloud.New(cloud.Options{
		BaseURL: cfg.Cloud.BaseURL,
		Credentials: cloud.Credentials{
			Token:  cfg.Cloud.Token,
			Secret: cfg.Cloud.Secret,
		},
		Timeout: cfg.Cloud.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating cloud client: %w", err)
	}

	devices, err := discoverDevices(ctx, cloudClient, deviceRepo, log)
	if err != nil {
		return err
	}

	registry := coordinator.NewRegistry(cloudClient, coordinator.Options{
		Interval:      cfg.Polling.Interval,
		MaxInterval:   cfg.Polling.MaxInterval,
		BackoffFactor: cfg.Polling.BackoffFactor,
		BackoffCap:    cfg.Polling.BackoffCap,
		AlwaysUpdate:  cfg.Polling.AlwaysUpdate,
		Budget:        coordinator.NewBudget(cfg.Budget.MaxConcurrent, cfg.Budget.RequestsPerSecond, cfg.Budget.Burst),
		OnAuthFailure: func(deviceID string, authErr error) {
			log.Error("vendor rejected credentials; polling suspended",
				"device_id", deviceID,
				"error", authErr,
			)
		},
		Logger: log,
	})
	for _, d := range devices {
		if _, addErr := registry.Add(d); addErr != nil {
			log.Warn("skipping device", "device_id", d.ID, "error", addErr)
		}
	}

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	healthChecks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}

	// InfluxDB (optional)
	var telemetry bridge.TelemetryWriter
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
		influxClient.SetOnError(func(writeErr error) {
			log.Error("InfluxDB write error", "error", writeErr)
		})
		telemetry = influxClient
		healthChecks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// The hub is the bridge's broadcaster, so it exists before the API server.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	br, err := bridge.New(bridge.Options{
		SiteID:      cfg.Site.ID,
		Version:     version,
		MQTT:        mqttClient,
		Registry:    registry,
		QoS:         byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		Telemetry:   telemetry,
		History:     historyRepo,
		Broadcaster: hub,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	transforms := sensorTransforms(cfg.Sensors)
	for _, e := range registry.Devices() {
		if regErr := br.Register(entity.Build(e, br, transforms, log)...); regErr != nil {
			return fmt.Errorf("registering entities for %s: %w", e.Device.ID, regErr)
		}
	}
	log.Info("entities registered", "entities", len(br.Entities()), "devices", len(registry.Devices()))

	// Retained state and health are republished after every reconnect so a
	// restarted broker is repopulated.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, republishing state")
		if pubErr := br.PublishHealth(); pubErr != nil {
			log.Warn("failed to publish health", "error", pubErr)
		}
		br.PublishAll()
	})
	mqttClient.SetOnDisconnect(func(discErr error) {
		log.Warn("MQTT disconnected", "error", discErr)
	})

	// First refresh of every device, then entities attach to the cached
	// snapshots.
	if _, startErr := registry.Start(ctx); startErr != nil {
		return fmt.Errorf("starting coordinators: %w", startErr)
	}
	defer registry.Stop()

	if startErr := br.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer br.Stop()

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:       cfg.API,
			WS:           cfg.WebSocket,
			Logger:       log,
			Registry:     registry,
			Bridge:       br,
			History:      historyRepo,
			HealthChecks: healthChecks,
			ExternalHub:  hub,
			Version:      version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if retention := cfg.HistoryRetention(); retention > 0 {
		go pruneHistory(ctx, historyRepo, retention, log)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, bridge, coordinators,
	// InfluxDB, MQTT, database.
	return nil
}

// discoverDevices lists the account's devices and refreshes the local
// inventory. When the cloud cannot be reached the stored inventory is used.
func discoverDevices(ctx context.Context, client *cloud.Client, repo device.Repository, log *logging.Logger) ([]device.Device, error) {
	listCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	list, err := client.ListDevices(listCtx)
	if err != nil {
		if errors.Is(err, cloud.ErrAuth) {
			return nil, fmt.Errorf("discovering devices: %w", err)
		}
		log.Warn("device discovery failed, using stored inventory", "error", err)
		stored, listErr := repo.List(ctx)
		if listErr != nil {
			return nil, fmt.Errorf("loading stored devices: %w", listErr)
		}
		if len(stored) == 0 {
			return nil, fmt.Errorf("discovering devices: %w", err)
		}
		return stored, nil
	}

	devices, skipped := device.FromDeviceList(list)
	for _, pd := range skipped {
		log.Info("unsupported device skipped", "device_id", pd.ID, "type", pd.Type)
	}

	keep := make([]string, 0, len(devices))
	for _, d := range devices {
		if upErr := repo.Upsert(ctx, d); upErr != nil {
			return nil, fmt.Errorf("storing device %s: %w", d.ID, upErr)
		}
		keep = append(keep, d.ID)
	}
	removed, err := repo.DeleteMissing(ctx, keep)
	if err != nil {
		return nil, fmt.Errorf("removing stale devices: %w", err)
	}

	log.Info("devices discovered", "devices", len(devices), "skipped", len(skipped), "removed", removed)
	return devices, nil
}

// sensorTransforms converts configured transforms to entity transforms.
func sensorTransforms(cfg config.SensorsConfig) map[cloud.Field]entity.Transform {
	out := entity.DefaultTransforms()
	for field, t := range cfg.Transforms {
		out[cloud.Field(field)] = entity.Transform{Scale: t.Scale, Offset: t.Offset}
	}
	return out
}

// historyPruner is the part of the state history repository pruneHistory uses.
type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistory deletes state history older than retention once at startup
// and then daily until ctx is cancelled.
func pruneHistory(ctx context.Context, repo historyPruner, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := repo.PruneHistory(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("state history prune failed", "error", err)
		case n > 0:
			log.Info("state history pruned", "deleted", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// loadEnvFile loads KEY=value pairs from path into the environment.
// Variables already set win; a missing file is not an error.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// getConfigPath returns CLOUDBRIDGE_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("CLOUDBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// getEnvPath returns CLOUDBRIDGE_ENV_FILE if set, otherwise ".env".
func getEnvPath() string {
	if path := os.Getenv("CLOUDBRIDGE_ENV_FILE"); path != "" {
		return path
	}
	return defaultEnvPath
}
