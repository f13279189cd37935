package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gb28181gw/gateway/config"
	gwlog "github.com/gb28181gw/gateway/log"
	"github.com/gb28181gw/gateway/mediatransport"
	"github.com/gb28181gw/gateway/metrics"
	"github.com/gb28181gw/gateway/ps"
	"github.com/gb28181gw/gateway/rtmpsink"
	"github.com/gb28181gw/gateway/session"
	"github.com/gb28181gw/gateway/sip"
	"github.com/gb28181gw/gateway/siptransport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway (SIP + media listeners, metrics endpoint)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// runServe loads configuration, starts the SIP and media TCP listeners
// (spec.md section 4.6), the session controller, and the metrics HTTP
// endpoint, and blocks until ctx is canceled (SIGINT/SIGTERM) or a
// listener fails.
func runServe(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := gwlog.Init(cfg.Log); err != nil {
		return err
	}
	sip.SetDefaultLogger(slog.Default())
	rtmpsink.SetDefaultLogger(slog.Default())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sipListener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(cfg.SIPPort)))
	if err != nil {
		return err
	}
	defer sipListener.Close()

	mediaListener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(cfg.MediaPort)))
	if err != nil {
		return err
	}
	defer mediaListener.Close()

	mgr := session.NewManager(cfg.ToSessionConfig(), func(deviceID string) rtmpsink.Sink {
		return rtmpsink.NewLogSink()
	}, cfg.Candidate)
	defer mgr.Stop()

	parser := sip.NewParser()

	go func() {
		if err := siptransport.Serve(sipListener, parser, mgr); err != nil {
			slog.Default().Error("gbgw: SIP listener stopped", "error", err)
		}
	}()
	go func() {
		var opts []ps.Option
		if cfg.HEVCEnabled {
			opts = append(opts, ps.WithHEVC(true))
		}
		if err := mediatransport.Serve(mediaListener, mgr.MediaBinder(), opts...); err != nil {
			slog.Default().Error("gbgw: media listener stopped", "error", err)
		}
	}()
	go reportLoop(ctx, mgr)

	slog.Default().Info("gbgw: listening", "sip_port", cfg.SIPPort, "media_port", cfg.MediaPort, "candidate", cfg.Candidate)
	err = metrics.Serve(ctx, cfg.MetricsAddr)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// reportLoop publishes every session's Stats to Prometheus each tick,
// piggy-backing on the same cadence the session controller itself uses
// (spec.md section 4.5's 300ms drive interval).
func reportLoop(ctx context.Context, mgr *session.Manager) {
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.RangeSessions(func(deviceID string, sess *session.Session) {
				metrics.Report(deviceID, sess.Snapshot())
			})
		}
	}
}
