// Command widd runs the WID driver against a co-processor reachable over TCP
// or against the built-in firmware simulator.
//
//	widd run               run the driver, serve /metrics, bridge events to MQTT
//	widd scan              scan once and print the results
//	widd decode <hex>...   decode WID messages
//	widd simserve          serve the firmware simulator over TCP
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string

	// Set during PersistentPreRunE.
	v      *viper.Viper
	logger *zap.Logger
)

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"mode":       "transport.mode",
	"addr":       "transport.addr",
	"metrics":    "metrics.addr",
	"broker":     "mqtt.broker",
	"ssid":       "sta.ssid",
	"passphrase": "sta.passphrase",
	"timeout":    "scan.timeout",
	"log-level":  "logging.level",
}

var rootCmd = &cobra.Command{
	Use:           "widd",
	Short:         "WID protocol driver daemon for WiFi radio co-processors",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		v, err = loadConfig(cfgFile)
		if err != nil {
			return err
		}
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return err
				}
			}
		}
		logger, err = newLogger(v)
		if err != nil {
			return err
		}
		if f := v.ConfigFileUsed(); f != "" {
			logger.Debug("config loaded", zap.String("file", f))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./widd.yaml or /etc/widd/widd.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: trace, debug, info, warn, error")
	rootCmd.AddCommand(runCmd, scanCmd, decodeCmd, simserveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
