package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "backend",
			Name:      "launches_total",
			Help:      "Backend launch attempts by result.",
		}, []string{"result"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "backend",
			Name:      "handshakes_total",
			Help:      "Port handshakes by outcome.",
		}, []string{"outcome"},
	)
	handshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tether",
			Subsystem: "backend",
			Name:      "handshake_duration_seconds",
			Help:      "Time from spawn until the handshake finished or gave up.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	outputLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "backend",
			Name:      "output_lines_total",
			Help:      "Lines read from the backend by stream.",
		}, []string{"stream"},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "backend",
			Name:      "exits_total",
			Help:      "Backend exits by reason (shutdown or exited).",
		}, []string{"reason"},
	)
	up = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "backend",
			Name:      "up",
			Help:      "1 while a backend process is held.",
		},
	)
	port = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "backend",
			Name:      "port",
			Help:      "Port announced by the backend, -1 when absent.",
		},
	)
)

// Launch results.
const (
	LaunchOK         = "ok"
	LaunchNotFound   = "not_found"
	LaunchPermission = "permission"
	LaunchSpawn      = "spawn"
)

// Handshake outcomes.
const (
	HandshakeComplete   = "complete"
	HandshakeIncomplete = "incomplete"
	HandshakeTimeout    = "timeout"
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{launches, handshakes, handshakeDuration, outputLines, exits, up, port,
		cpuPercent, memoryRSS, threads}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	port.Set(-1)
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register has succeeded.

func IncLaunch(result string) {
	if regOK.Load() {
		launches.WithLabelValues(result).Inc()
	}
}

func ObserveHandshake(outcome string, seconds float64) {
	if regOK.Load() {
		handshakes.WithLabelValues(outcome).Inc()
		handshakeDuration.Observe(seconds)
	}
}

func IncLine(stream string) {
	if regOK.Load() {
		outputLines.WithLabelValues(stream).Inc()
	}
}

func IncExit(reason string) {
	if regOK.Load() {
		exits.WithLabelValues(reason).Inc()
	}
}

func SetUp(v bool) {
	if regOK.Load() {
		if v {
			up.Set(1)
		} else {
			up.Set(0)
		}
	}
}

// SetPort records the announced port; ok=false records -1.
func SetPort(p uint16, ok bool) {
	if regOK.Load() {
		if ok {
			port.Set(float64(p))
		} else {
			port.Set(-1)
		}
	}
}

// pidLabel keeps sampled series distinguishable across relaunches.
func pidLabel(pid int32) string { return strconv.Itoa(int(pid)) }
