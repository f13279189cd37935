// Package metrics exposes the Prometheus counters/gauges this gateway
// reports: error categories, session phase, and the PS decode counters
// spec.md section 3/9 describes as a periodic stats trace. Grounded on
// the pack sibling firestige-Otus's internal/metrics package:
// package-level promauto-registered vectors, no local registry plumbing.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gb28181gw/gateway/gbgwerrors"
	"github.com/gb28181gw/gateway/session"
)

var (
	// ErrorsTotal counts every gbgwerrors.Error raised, labeled by
	// category (spec.md section 7's taxonomy).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gbgw_errors_total",
			Help: "Total number of gbgwerrors.Error occurrences by category.",
		},
		[]string{"category"},
	)

	// SessionsActive tracks the number of registered devices, labeled by
	// their current session.Phase.
	SessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gbgw_sessions_active",
			Help: "Number of sessions currently in each phase.",
		},
		[]string{"phase"},
	)

	// PacksTotal/MessagesTotal/RecoveredTotal/DroppedTotal mirror
	// ps.Stats' counters, one series per device label (spec.md
	// section 3/9's "accumulated statistics").
	PacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gbgw_ps_packs_total",
			Help: "Total number of PS packs decoded, per device.",
		},
		[]string{"device"},
	)
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gbgw_ps_messages_total",
			Help: "Total number of PES messages decoded, per device.",
		},
		[]string{"device"},
	)
	RecoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gbgw_ps_recovered_total",
			Help: "Total number of PS decoder recover-mode episodes, per device.",
		},
		[]string{"device"},
	)
	DroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gbgw_ps_dropped_total",
			Help: "Total number of PES messages dropped during recovery, per device.",
		},
		[]string{"device"},
	)
)

// RecordError increments ErrorsTotal for err's category, a no-op if err
// is not (or does not wrap) a *gbgwerrors.Error.
func RecordError(err error) {
	for _, category := range []gbgwerrors.Category{
		gbgwerrors.Config, gbgwerrors.SSRCGenerate, gbgwerrors.Timeout,
		gbgwerrors.PSHeader, gbgwerrors.PSMedia, gbgwerrors.SIPHeader,
		gbgwerrors.SIPMessage, gbgwerrors.H264DropBeforeSPSPPS,
		gbgwerrors.StreamCasterTSCodec, gbgwerrors.HEVCDisabled,
	} {
		if gbgwerrors.OfCategory(err, category) {
			ErrorsTotal.WithLabelValues(string(category)).Inc()
			return
		}
	}
}

// lastCounters remembers each device's last-seen cumulative ps.Stats so
// Report can turn the session's running totals into Prometheus counter
// increments instead of re-setting the same Set value every tick (which
// would fight a counter's monotonic contract).
var (
	lastCountersMu sync.Mutex
	lastCounters   = make(map[string]session.Stats)
)

// Report publishes one session's current Stats snapshot: a gauge set for
// its phase and counter increments for whatever its PS decoder counted
// since the previous Report call for this device.
func Report(deviceID string, stats session.Stats) {
	for _, phase := range []session.Phase{session.PhaseInit, session.PhaseConnecting, session.PhaseEstablished} {
		value := 0.0
		if stats.Phase == phase {
			value = 1
		}
		SessionsActive.WithLabelValues(phase.String()).Set(value)
	}

	lastCountersMu.Lock()
	prev := lastCounters[deviceID]
	lastCounters[deviceID] = stats
	lastCountersMu.Unlock()

	PacksTotal.WithLabelValues(deviceID).Add(float64(stats.Packs - prev.Packs))
	MessagesTotal.WithLabelValues(deviceID).Add(float64(stats.Messages - prev.Messages))
	RecoveredTotal.WithLabelValues(deviceID).Add(float64(stats.Recovered - prev.Recovered))
	DroppedTotal.WithLabelValues(deviceID).Add(float64(stats.Dropped - prev.Dropped))
}

// Serve starts an HTTP server exposing /metrics on addr, blocking until
// ctx is canceled or the server errors. Grounded on the standard
// promhttp.Handler wiring every example repo importing client_golang
// uses.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
