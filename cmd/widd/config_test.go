package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/soypat/winc"
)

func TestNewLogger_Defaults(t *testing.T) {
	v := viper.New()
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	logger, err := newLogger(v)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewLogger_Trace(t *testing.T) {
	v := viper.New()
	v.Set("logging.level", "trace")
	v.Set("logging.format", "console")

	logger, err := newLogger(v)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Error("trace should enable debug logs")
	}
	if !driverLogger(v).Enabled(context.Background(), -5) {
		t.Error("trace should enable driver trace logs")
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	v := viper.New()
	v.Set("logging.level", "banana")
	v.Set("logging.format", "json")

	if _, err := newLogger(v); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	v := viper.New()
	v.Set("logging.level", "info")
	v.Set("logging.format", "xml")

	if _, err := newLogger(v); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	v, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got := v.GetString("transport.mode"); got != "sim" {
		t.Errorf("transport.mode = %q", got)
	}
	if got := v.GetDuration("scan.timeout"); got != 10*time.Second {
		t.Errorf("scan.timeout = %v", got)
	}
	if got := v.GetString("metrics.addr"); got != ":9427" {
		t.Errorf("metrics.addr = %q", got)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widd.yaml")
	const data = `
transport:
  mode: tcp
  addr: 10.0.0.2:7070
driver:
  max_ap_peers: 3
scan:
  active_dwell: 40ms
mqtt:
  broker: broker:1883
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WIDD_MQTT_TOPIC_PREFIX", "lab")

	v, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got := v.GetString("transport.addr"); got != "10.0.0.2:7070" {
		t.Errorf("transport.addr = %q", got)
	}
	cfg := driverConfig(v)
	if cfg.MaxAPPeers != 3 || cfg.Scan.ActiveDwell != 40*time.Millisecond {
		t.Errorf("driver config %+v", cfg)
	}
	if cfg.Scan.PassiveDwell != 300*time.Millisecond || cfg.ChannelMask != winc.ChannelMaskAll {
		t.Errorf("defaults lost: %+v", cfg)
	}
	mc := mqttConfig(v)
	if mc.Broker != "broker:1883" || mc.TopicPrefix != "lab" {
		t.Errorf("mqtt config %+v", mc)
	}
}

func TestLoadConfig_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widd.yaml")
	if err := os.WriteFile(path, []byte("transport: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestDriverConfigValid(t *testing.T) {
	v, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := winc.New(driverConfig(v)); err != nil {
		t.Fatalf("default driver config rejected: %v", err)
	}
}
