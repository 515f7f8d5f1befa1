package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soypat/winc/internal/stream"
)

var simserveCmd = &cobra.Command{
	Use:   "simserve",
	Short: "Serve the firmware simulator over TCP",
	Long: `Simserve listens on --addr and runs one simulated co-processor per
connection. Point "widd run --mode tcp" at it to exercise the stream
transport.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", v.GetString("transport.addr"))
		if err != nil {
			return err
		}
		logger.Info("simulator listening", zap.Stringer("addr", ln.Addr()))
		return serveSim(ctx, ln, logger)
	},
}

func init() {
	simserveCmd.Flags().String("addr", "localhost:7070", "listen address")
}

// serveSim accepts connections until ctx is done, serving each with a fresh
// simulator.
func serveSim(ctx context.Context, ln net.Listener, log *zap.Logger) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			defer conn.Close()
			clog := log.With(zap.Stringer("remote", conn.RemoteAddr()))
			clog.Info("host connected")
			sim := newSim()
			sc := stream.NewConn(conn)
			sim.Attach(sc.Send)
			err := sc.Serve(ctx, stream.Handler{
				Message: sim.Send,
				Eth:     sim.SendEth,
				Error: func(kind byte, err error) {
					clog.Debug("command failed", zap.String("kind", string(kind)), zap.Error(err))
				},
			})
			if err != nil && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				clog.Warn("host connection failed", zap.Error(err))
				return
			}
			clog.Info("host disconnected", zap.Int("messages", sim.Messages()))
		}()
	}
}
