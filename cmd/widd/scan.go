package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soypat/winc"
)

var scanCmd = &cobra.Command{
	Use:   "scan [ssid...]",
	Short: "Scan for networks and print the results",
	Long: `Scan starts a scan on all enabled channels and prints every BSS found.
Naming one or more SSIDs directs an active scan at those networks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("scan.timeout"))
		defer cancel()
		d, closeDev, err := openDevice(ctx, v, logger)
		if err != nil {
			return err
		}
		defer closeDev()
		go d.Run(ctx)

		active, _ := cmd.Flags().GetBool("active")
		results, err := scanOnce(ctx, d, args, active || len(args) > 0)
		if err != nil {
			return err
		}
		return printScan(cmd.OutOrStdout(), results)
	},
}

func init() {
	f := scanCmd.Flags()
	f.String("mode", "sim", "transport: sim or tcp")
	f.String("addr", "localhost:7070", "co-processor address in tcp mode")
	f.Duration("timeout", 10*time.Second, "scan timeout")
	f.Bool("active", false, "send probe requests instead of listening for beacons")
}

// scanOnce runs one scan to completion and reads back the result table.
func scanOnce(ctx context.Context, d *winc.Device, ssids []string, active bool) ([]winc.BSSInfo, error) {
	events := d.Events()
	if err := d.BSSFindFirst(winc.ChannelAny, ssids, active); err != nil {
		return nil, fmt.Errorf("start scan: %w", err)
	}
	for done := false; !done; {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("scan: %w", ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return nil, winc.StatusNotOpen
			}
			logEvent(logger, ev)
			switch ev := ev.(type) {
			case winc.ScanDoneEvent:
				done = true
			case winc.RequestErrorEvent:
				return nil, fmt.Errorf("scan rejected by firmware with code %d", ev.Code)
			}
		}
	}
	total := d.BSSFindTotal()
	results := make([]winc.BSSInfo, 0, total)
	for i := 0; i < total; i++ {
		if i > 0 {
			if err := d.BSSFindNext(); err != nil {
				return nil, err
			}
		}
		info, err := d.BSSGetInfo()
		if winc.StatusOf(err) == winc.StatusNoBssInfo {
			logger.Debug("scan entry missing", zap.Int("index", i))
			continue
		} else if err != nil {
			return nil, err
		}
		results = append(results, info)
	}
	return results, nil
}

func printScan(w io.Writer, results []winc.BSSInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SSID\tBSSID\tCH\tRSSI\tSECURITY\tAUTH")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.SSID, net.HardwareAddr(r.BSSID[:]), r.Channel, r.RSSI, r.SecMask, r.Auth)
	}
	return tw.Flush()
}
