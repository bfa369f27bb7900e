package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/mqtt"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    cliOptions
		wantErr bool
	}{
		{"none", nil, cliOptions{}, false},
		{"all", []string{"--config", "c.yaml", "--broker", "mqtt:1884", "--bridge", "10.0.0.5"},
			cliOptions{configPath: "c.yaml", broker: "mqtt:1884", bridge: "10.0.0.5"}, false},
		{"single dash", []string{"-bridge=10.0.0.5:4000"}, cliOptions{bridge: "10.0.0.5:4000"}, false},
		{"unknown flag", []string{"--verbose"}, cliOptions{}, true},
		{"positional", []string{"extra"}, cliOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseFlags() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := parseFlags([]string{"--help"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("parseFlags(--help) error = %v, want flag.ErrHelp", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(configEnv, "")
	if path, explicit := getConfigPath(""); path != defaultConfigPath || explicit {
		t.Errorf("getConfigPath() = %q, %v", path, explicit)
	}

	t.Setenv(configEnv, "/etc/lightify.yaml")
	if path, explicit := getConfigPath(""); path != "/etc/lightify.yaml" || !explicit {
		t.Errorf("getConfigPath() with env = %q, %v", path, explicit)
	}
	if path, explicit := getConfigPath("flag.yaml"); path != "flag.yaml" || !explicit {
		t.Errorf("getConfigPath() with flag = %q, %v", path, explicit)
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	t.Setenv(configEnv, "")
	t.Setenv("BROKER_ADDRESS", "env-broker:1999")
	chdir(t, t.TempDir())

	cfg, _, err := loadConfig(cliOptions{broker: "flag-broker", bridge: "192.168.1.50:4001"})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.MQTT.Broker.Host != "flag-broker" || cfg.MQTT.Broker.Port != 1999 {
		t.Errorf("broker = %s:%d, want flag-broker:1999", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
	}
	if cfg.Lightify.GatewayAddress() != "192.168.1.50:4001" {
		t.Errorf("gateway = %s", cfg.Lightify.GatewayAddress())
	}

	if _, _, err := loadConfig(cliOptions{bridge: "host:port"}); err == nil {
		t.Error("loadConfig() with invalid --bridge error = nil")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"--config", "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("run() should fail with a missing explicit config path")
	}
}

func TestRun_GatewayUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	t.Setenv(configEnv, "")
	chdir(t, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = run(ctx, []string{"--bridge", addr})
	if err == nil || !strings.Contains(err.Error(), "gateway") {
		t.Fatalf("run() error = %v, want gateway connection failure", err)
	}
}

// startBroker runs an embedded broker on a free loopback port.
func startBroker(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	server := mochi.New(&mochi.Options{InlineClient: true})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("AddHook() error = %v", err)
	}
	if err := server.AddListener(listeners.NewTCP(listeners.Config{ID: "t1", Address: addr})); err != nil {
		t.Fatalf("AddListener() error = %v", err)
	}
	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(func() { _ = server.Close() })
	return addr
}

// startEmptyGateway answers every gateway request with an empty list.
func startEmptyGateway(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var wg sync.WaitGroup
	t.Cleanup(func() {
		ln.Close()
		wg.Wait()
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer conn.Close()
				for {
					var size [2]byte
					if _, err := io.ReadFull(conn, size[:]); err != nil {
						return
					}
					frame := make([]byte, binary.LittleEndian.Uint16(size[:]))
					if _, err := io.ReadFull(conn, frame); err != nil {
						return
					}
					// flag, command, seq(4), status, count(2)
					resp := make([]byte, 2+9)
					binary.LittleEndian.PutUint16(resp[0:2], 9)
					copy(resp[2:8], frame[0:6])
					if _, err := conn.Write(resp); err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

// TestRun_SuccessfulStartupAndShutdown runs the bridge against an embedded
// broker and an empty gateway, waits for connection state 2 and shuts down.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	brokerAddr := startBroker(t)
	gatewayAddr := startEmptyGateway(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := fmt.Sprintf(`
mqtt:
  broker:
    client_id: "lightify-run-test"
  qos: 1
lightify:
  topic: "test/lightify"
history:
  enabled: true
  path: %q
logging:
  level: error
  format: text
  output: stderr
`, filepath.Join(tmpDir, "history.db"))
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	host, portStr, _ := net.SplitHostPort(brokerAddr)
	port, _ := strconv.Atoi(portStr)
	watcher := mqtt.NewClient(config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: host, Port: port, ClientID: "watcher"},
	})
	if err := watcher.Connect(); err != nil {
		t.Fatalf("watcher Connect() error = %v", err)
	}
	defer watcher.Close()

	states := make(chan string, 8)
	if err := watcher.Subscribe("test/lightify/connected", 0, func(_ string, payload []byte) error {
		states <- string(payload)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--config", configPath, "--broker", brokerAddr, "--bridge", gatewayAddr})
	}()

	deadline := time.After(10 * time.Second)
	for ready := false; !ready; {
		select {
		case s := <-states:
			ready = s == "2"
		case err := <-done:
			t.Fatalf("run() exited early: %v", err)
		case <-deadline:
			t.Fatal("bridge never published connection state 2")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "history.db")); err != nil {
		t.Errorf("history database not created: %v", err)
	}
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}
