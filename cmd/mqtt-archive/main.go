// mqtt-archive stores changed sensor readings from MQTT in Elasticsearch or
// InfluxDB.
//
// It subscribes to archive.subscribe (default hm/status/#), keeps the
// messages whose topic is mapped to a room in archive.topics and whose
// payload reports a change, and writes one document per reading.
//
// Usage:
//
//	mqtt-archive [--config path] [--broker host[:port]]
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
	"github.com/dzerrenner/mqtt-lightify/internal/archive"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/logging"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "mqtt-archive"
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

type cliOptions struct {
	configPath string
	broker     string
}

func parseFlags(args []string, output io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "path to config.yaml (default $"+configEnv+" or "+defaultConfigPath+")")
	fs.StringVar(&opts.broker, "broker", "", "MQTT broker address, host or host:port")
	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// loadConfig loads the shared configuration file. The archive runs next to
// the bridge on the same broker, so the default client ID is replaced to
// keep the two sessions apart.
func loadConfig(opts cliOptions) (*config.Config, string, error) {
	path, explicit := opts.configPath, true
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		path, explicit = defaultConfigPath, false
	}

	cfg, err := config.Load(path, !explicit)
	if err != nil {
		return nil, path, err
	}
	if opts.broker != "" {
		if err := cfg.SetBrokerAddress(opts.broker); err != nil {
			return nil, path, fmt.Errorf("--broker: %w", err)
		}
	}
	if cfg.MQTT.Broker.ClientID == config.DefaultClientID {
		cfg.MQTT.Broker.ClientID = serviceName
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
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, configPath, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, serviceName, version)
	log.Info("starting mqtt-archive",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
		"backend", cfg.Archive.Backend,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checks := make(map[string]api.HealthChecker)

	sink, err := archive.OpenSink(cfg.Archive, func(writeErr error) {
		log.Error("archive write failed", "backend", cfg.Archive.Backend, "error", writeErr)
	})
	if err != nil {
		return fmt.Errorf("opening %s sink: %w", cfg.Archive.Backend, err)
	}
	if hc, ok := sink.(api.HealthChecker); ok {
		checks[cfg.Archive.Backend] = hc
	}

	mqttClient := mqtt.NewClient(cfg.MQTT)
	mqttClient.SetLogger(log.With("component", "mqtt"))
	checks["mqtt"] = mqttClient

	archiver, err := archive.New(archive.Options{
		Config:    cfg.Archive,
		QoS:       byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		Transport: mqttClient,
		Sink:      sink,
		Metrics:   archive.NewMetrics(reg),
		Logger:    log.With("component", "archive"),
	})
	if err != nil {
		_ = sink.Close()
		return fmt.Errorf("creating archiver: %w", err)
	}

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.With("component", "api"),
			Version:  version,
			Gatherer: reg,
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
		"subscribe", cfg.Archive.Subscribe,
		"rooms", len(cfg.Archive.Topics),
	)

	if err := archiver.Run(ctx); err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	log.Info("mqtt-archive stopped")
	return nil
}
