// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package instrument exports cover traffic counters to Prometheus.
package instrument

import (
	"errors"
	goLog "log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/op/go-logging.v1"
)

var (
	coverPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cover_packets_total",
			Help: "Number of cover packets handed to the sink",
		},
		[]string{"kind"},
	)
	coverErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cover_errors_total",
			Help: "Number of failed cover packet constructions",
		},
		[]string{"kind"},
	)
	pendingAcks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cover_pending_loop_acks",
			Help: "Number of loop cover acknowledgements not yet received or expired",
		},
	)
	loopRoundTrip = prometheus.NewSummary(
		prometheus.SummaryOpts{
			Name: "cover_loop_round_trip_seconds",
			Help: "Time between sending loop cover and receiving its acknowledgement",
		},
	)

	registerOnce sync.Once
)

// Init registers the cover metrics with the default registry.  It may be
// called more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(coverPackets)
		prometheus.MustRegister(coverErrors)
		prometheus.MustRegister(pendingAcks)
		prometheus.MustRegister(loopRoundTrip)
	})
}

// Serve exposes the default registry on addr under /metrics.  The returned
// server is already listening in the background.  errorLog may be nil.
func Serve(addr string, log *logging.Logger, errorLog *goLog.Logger) *http.Server {
	Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          errorLog,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics listener on %v failed: %v", addr, err)
		}
	}()
	log.Noticef("Serving metrics on http://%v/metrics", addr)
	return srv
}

// PacketSent increments the counter of cover packets of kind.
func PacketSent(kind string) {
	coverPackets.With(prometheus.Labels{"kind": kind}).Inc()
}

// ConstructionFailed increments the counter of failed constructions of kind.
func ConstructionFailed(kind string) {
	coverErrors.With(prometheus.Labels{"kind": kind}).Inc()
}

// PendingAcks sets the number of loop acknowledgements awaited.
func PendingAcks(n int) {
	pendingAcks.Set(float64(n))
}

// LoopRoundTrip observes the round trip time of one loop cover packet.
func LoopRoundTrip(d time.Duration) {
	loopRoundTrip.Observe(d.Seconds())
}
