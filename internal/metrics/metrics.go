// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports session traffic and module state to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/whorl/pkg/r502"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Collector implements r502.Observer.
type Collector struct {
	PacketsTotal     *prometheus.CounterVec   // labels: direction, pid
	ExchangesTotal   *prometheus.CounterVec   // labels: instruction, result
	ExchangeDuration *prometheus.HistogramVec // labels: instruction
	TemplateCount    prometheus.Gauge
	LibraryCapacity  prometheus.Gauge
}

// NewCollector registers and returns the session metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		PacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whorl_packets_total",
			Help: "Packets exchanged with the module.",
		}, []string{"direction", "pid"}),
		ExchangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whorl_exchanges_total",
			Help: "Command exchanges by outcome.",
		}, []string{"instruction", "result"}),
		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whorl_exchange_duration_seconds",
			Help:    "Time from command write to complete reply.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"instruction"}),
		TemplateCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "whorl_templates_stored",
			Help: "Templates stored in the module library.",
		}),
		LibraryCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "whorl_library_capacity",
			Help: "Template slots reported by the module.",
		}),
	}
	reg.MustRegister(c.PacketsTotal, c.ExchangesTotal, c.ExchangeDuration, c.TemplateCount, c.LibraryCapacity)
	return c
}

// PacketSent counts an outgoing packet.
func (c *Collector) PacketSent(p *r502.Packet) {
	c.PacketsTotal.WithLabelValues("out", r502.FormatPackageID(p.PID())).Inc()
}

// PacketReceived counts an incoming packet.
func (c *Collector) PacketReceived(p *r502.Packet) {
	c.PacketsTotal.WithLabelValues("in", r502.FormatPackageID(p.PID())).Inc()
}

// ExchangeDone records the outcome and latency of an exchange.
func (c *Collector) ExchangeDone(ins r502.Instruction, elapsed time.Duration, err error) {
	name := r502.FormatInstruction(ins)
	c.ExchangesTotal.WithLabelValues(name, Result(err)).Inc()
	c.ExchangeDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// Result classifies an exchange error into a low-cardinality label.
func Result(err error) string {
	var de *r502.DeviceError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &de):
		return "device_error"
	case errors.Is(err, r502.ErrTimeout):
		return "timeout"
	case errors.Is(err, r502.ErrChecksum), errors.Is(err, r502.ErrBadMagic):
		return "corrupt"
	default:
		return "error"
	}
}

// UpdateLibrary sets the library gauges from a status poll.
func (c *Collector) UpdateLibrary(count uint16, sp r502.SystemParameters) {
	c.TemplateCount.Set(float64(count))
	c.LibraryCapacity.Set(float64(sp.LibraryCapacity))
}
