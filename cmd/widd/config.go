package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soypat/winc"
	"github.com/soypat/winc/internal/mqttpub"
)

// loadConfig reads the daemon configuration. Every key can be overridden
// from the environment: WIDD_TRANSPORT_ADDR=host:port.
func loadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("transport.mode", "sim")
	v.SetDefault("transport.addr", "localhost:7070")
	v.SetDefault("driver.channel_mask", int(winc.ChannelMaskAll))
	v.SetDefault("driver.max_ap_peers", 8)
	v.SetDefault("driver.max_scan_results", 32)
	v.SetDefault("driver.event_queue_len", 64)
	v.SetDefault("driver.regdomain", "")
	v.SetDefault("scan.slot_count", 2)
	v.SetDefault("scan.active_dwell", "20ms")
	v.SetDefault("scan.passive_dwell", "300ms")
	v.SetDefault("scan.probe_count", 2)
	v.SetDefault("scan.timeout", "10s")
	v.SetDefault("sta.ssid", "")
	v.SetDefault("sta.passphrase", "")
	v.SetDefault("metrics.addr", ":9427")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic_prefix", "winc")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.timeout", "10s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("widd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/widd")
	}

	v.SetEnvPrefix("WIDD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// newLogger builds the daemon logger from logging.level and logging.format.
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	level := v.GetString("logging.level")
	format := v.GetString("logging.format")

	var zapLevel zapcore.Level
	if level == "trace" {
		zapLevel = zapcore.DebugLevel // trace only changes driver verbosity
	} else if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	return cfg.Build()
}

// driverLogger returns the slog logger handed to the driver, matching the
// daemon's level and format. The driver's trace level sits below debug and is
// only enabled with logging.level=trace.
func driverLogger(v *viper.Viper) *slog.Logger {
	var level slog.Level
	switch v.GetString("logging.level") {
	case "trace":
		level = slog.LevelDebug - 1
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error", "dpanic", "panic", "fatal":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if v.GetString("logging.format") == "console" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts)).With(slog.String("logger", "winc"))
}

// driverConfig maps the driver and scan keys onto a winc.Config.
func driverConfig(v *viper.Viper) winc.Config {
	cfg := winc.DefaultConfig()
	cfg.ChannelMask = uint16(v.GetUint("driver.channel_mask"))
	cfg.MaxAPPeers = v.GetInt("driver.max_ap_peers")
	cfg.MaxScanResults = v.GetInt("driver.max_scan_results")
	cfg.EventQueueLen = v.GetInt("driver.event_queue_len")
	cfg.Scan = winc.ScanParams{
		SlotCount:    uint8(v.GetUint("scan.slot_count")),
		ActiveDwell:  v.GetDuration("scan.active_dwell"),
		PassiveDwell: v.GetDuration("scan.passive_dwell"),
		ProbeCount:   uint8(v.GetUint("scan.probe_count")),
	}
	cfg.Logger = driverLogger(v)
	return cfg
}

func mqttConfig(v *viper.Viper) mqttpub.Config {
	return mqttpub.Config{
		Broker:      v.GetString("mqtt.broker"),
		ClientID:    v.GetString("mqtt.client_id"),
		TopicPrefix: v.GetString("mqtt.topic_prefix"),
		Retain:      v.GetBool("mqtt.retain"),
		Timeout:     v.GetDuration("mqtt.timeout"),
	}
}
