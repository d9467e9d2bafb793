// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "simplegbm"

// Metrics counts what the event loop does. It implements wayland.Observer and
// client.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	Events     *prometheus.CounterVec
	Roundtrips prometheus.Counter
	Pings      prometheus.Counter
	Paints     prometheus.Counter
	Releases   prometheus.Counter
	Uptime     prometheus.GaugeFunc

	startTime time.Time

	mu       sync.Mutex
	snapshot Snapshot
}

// Snapshot holds current values for the repl.
type Snapshot struct {
	Events     map[string]int64
	Roundtrips int64
	Pings      int64
	Paints     int64
	Releases   int64
	Uptime     time.Duration
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		snapshot:  Snapshot{Events: make(map[string]int64)},

		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Wayland events dispatched, by interface",
			},
			[]string{"interface"},
		),
		Roundtrips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roundtrips_total",
			Help:      "Completed display round-trips",
		}),
		Pings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pings_answered_total",
			Help:      "Shell surface pings answered with a pong",
		}),
		Paints: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paints_total",
			Help:      "Frames painted and committed",
		}),
		Releases: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_releases_total",
			Help:      "Buffer release events from the compositor",
		}),
	}
	m.Uptime = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the client started",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})
	return m
}

func (m *Metrics) Event(iface string, _ uint16) {
	m.Events.WithLabelValues(iface).Inc()
	m.mu.Lock()
	m.snapshot.Events[iface]++
	m.mu.Unlock()
}

func (m *Metrics) Roundtrip() {
	m.Roundtrips.Inc()
	m.mu.Lock()
	m.snapshot.Roundtrips++
	m.mu.Unlock()
}

func (m *Metrics) PingAnswered() {
	m.Pings.Inc()
	m.mu.Lock()
	m.snapshot.Pings++
	m.mu.Unlock()
}

func (m *Metrics) Painted() {
	m.Paints.Inc()
	m.mu.Lock()
	m.snapshot.Paints++
	m.mu.Unlock()
}

func (m *Metrics) Released() {
	m.Releases.Inc()
	m.mu.Lock()
	m.snapshot.Releases++
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.snapshot
	s.Events = make(map[string]int64, len(m.snapshot.Events))
	for k, v := range m.snapshot.Events {
		s.Events[k] = v
	}
	s.Uptime = time.Since(m.startTime)
	return s
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.ServeListener(ctx, ln)
}

func (m *Metrics) ServeListener(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logrus.WithField("addr", ln.Addr().String()).Infoln("Serving metrics")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
