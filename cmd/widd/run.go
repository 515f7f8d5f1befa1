package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soypat/winc"
	"github.com/soypat/winc/internal/metrics"
	"github.com/soypat/winc/internal/mqttpub"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the driver until interrupted",
	Long: `Run opens the driver over the configured transport, optionally joins the
network given by --ssid, serves Prometheus metrics and forwards driver
events to an MQTT broker when one is configured.`,
	RunE: runDaemon,
}

func init() {
	f := runCmd.Flags()
	f.String("mode", "sim", "transport: sim or tcp")
	f.String("addr", "localhost:7070", "co-processor address in tcp mode")
	f.String("metrics", ":9427", "metrics listen address, empty to disable")
	f.String("broker", "", "MQTT broker host:port, empty to disable")
	f.String("ssid", "", "network to join on start")
	f.String("passphrase", "", "WPA2 passphrase of --ssid, empty for an open network")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, closeDev, err := openDevice(ctx, v, logger)
	if err != nil {
		return err
	}
	defer closeDev()

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	if name := v.GetString("driver.regdomain"); name != "" {
		if err := d.RegDomainSet(name); err != nil {
			return err
		}
	}
	if ssid := v.GetString("sta.ssid"); ssid != "" {
		if err := joinNetwork(d, ssid, v.GetString("sta.passphrase")); err != nil {
			return err
		}
		logger.Info("joining", zap.String("ssid", ssid))
	}

	var srv *http.Server
	if addr := v.GetString("metrics.addr"); addr != "" {
		srv = serveMetrics(addr, d)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var pubEvents chan winc.Event
	if mc := mqttConfig(v); mc.Broker != "" {
		pub := mqttpub.New(mc, logger.Named("mqtt"))
		if err := pub.Connect(ctx); err != nil {
			return err
		}
		defer pub.Close()
		pubEvents = make(chan winc.Event, 64)
		go pub.Run(ctx, pubEvents)
	}

	events := d.Events()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			logEvent(logger, ev)
			if pubEvents != nil {
				select {
				case pubEvents <- ev:
				default:
					logger.Warn("mqtt backlog full, event dropped")
				}
			}
		}
	}
}

// joinNetwork connects in STA role, choosing WPA2 personal when a
// passphrase is given.
func joinNetwork(d *winc.Device, ssid, passphrase string) error {
	var auth winc.AuthContext = winc.AuthOpen{}
	if passphrase != "" {
		auth = winc.AuthPersonal{Passphrase: passphrase}
	}
	return d.BSSConnect(winc.BSSContext{SSID: ssid, Channel: winc.ChannelAny}, auth)
}

func serveMetrics(addr string, d *winc.Device) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(d),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
