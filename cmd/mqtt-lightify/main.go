// mqtt-lightify exposes an OSRAM Lightify gateway on MQTT.
//
// Lights and groups are controlled through <topic>/set/<id>/<DATAPOINT>,
// refreshed through <topic>/get/<id> and reported on
// <topic>/status/<id>/<DATAPOINT>. See internal/bridge for the topic surface.
//
// Usage:
//
//	mqtt-lightify [--config path] [--broker host[:port]] [--bridge host[:port]]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dzerrenner/mqtt-lightify/internal/api"
	"github.com/dzerrenner/mqtt-lightify/internal/bridge"
	"github.com/dzerrenner/mqtt-lightify/internal/history"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/database"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/logging"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/mqtt"
	"github.com/dzerrenner/mqtt-lightify/internal/lightify"
	"github.com/dzerrenner/mqtt-lightify/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "mqtt-lightify"
	defaultConfigPath = "configs/config.yaml"
	configEnv         = "LIGHTIFY_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliOptions holds the command-line flags. Flags override the config file
// and the environment.
type cliOptions struct {
	configPath string
	broker     string
	bridge     string
}

func parseFlags(args []string, output io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "path to config.yaml (default $"+configEnv+" or "+defaultConfigPath+")")
	fs.StringVar(&opts.broker, "broker", "", "MQTT broker address, host or host:port")
	fs.StringVar(&opts.bridge, "bridge", "", "Lightify gateway address, host or host:port")
	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// getConfigPath returns the configuration file path and whether it was
// chosen explicitly. Only the default path may be missing.
func getConfigPath(flagPath string) (string, bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if path := os.Getenv(configEnv); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// loadConfig loads the configuration and applies the address flags.
func loadConfig(opts cliOptions) (*config.Config, string, error) {
	path, explicit := getConfigPath(opts.configPath)
	cfg, err := config.Load(path, !explicit)
	if err != nil {
		return nil, path, err
	}
	if opts.broker != "" {
		if err := cfg.SetBrokerAddress(opts.broker); err != nil {
			return nil, path, fmt.Errorf("--broker: %w", err)
		}
	}
	if opts.bridge != "" {
		if err := cfg.SetBridgeAddress(opts.bridge); err != nil {
			return nil, path, fmt.Errorf("--bridge: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error {
	log := logging.Default(serviceName)

	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, configPath, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, serviceName, version)
	log.Info("starting mqtt-lightify",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checks := make(map[string]api.HealthChecker)

	// Connect to the gateway
	gateway, err := lightify.Dial(ctx, lightify.Config{Address: cfg.Lightify.GatewayAddress()})
	if err != nil {
		return fmt.Errorf("connecting to gateway: %w", err)
	}
	gateway.SetLogger(log.With("component", "lightify"))
	defer func() {
		log.Info("closing gateway connection")
		if closeErr := gateway.Close(); closeErr != nil {
			log.Error("error closing gateway", "error", closeErr)
		}
	}()
	log.Info("gateway connected", "address", cfg.Lightify.GatewayAddress())
	checks["gateway"] = gateway
	bridge.RegisterGatewayStats(reg, gateway)

	// Open command history (optional)
	var hist history.Repository
	if cfg.History.Enabled {
		db, openErr := database.Open(cfg.History)
		if openErr != nil {
			return fmt.Errorf("opening history database: %w", openErr)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		hist = history.NewSQLiteRepository(db.DB)
		checks["database"] = db
		log.Info("command history enabled", "path", db.Path())
	}

	mqttClient := mqtt.NewClient(cfg.MQTT)
	mqttClient.SetLogger(log.With("component", "mqtt"))
	checks["mqtt"] = mqttClient

	ctrl, err := bridge.NewController(bridge.Options{
		Config:    cfg.Lightify,
		QoS:       byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		Transport: mqttClient,
		Gateway:   gateway,
		History:   hist,
		Metrics:   bridge.NewMetrics(reg),
		Logger:    log.With("component", "bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Start HTTP health/metrics server (optional)
	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.With("component", "api"),
			Version:  version,
			Gatherer: reg,
			Status:   ctrl,
			Checks:   checks,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("connecting to MQTT broker",
		"broker", cfg.MQTT.BrokerURL(),
		"client_id", cfg.MQTT.Broker.ClientID,
		"topic", cfg.Lightify.Topic,
	)

	if err := ctrl.Run(ctx); err != nil {
		return fmt.Errorf("lightify bridge: %w", err)
	}

	log.Info("mqtt-lightify stopped")
	return nil
}
