// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sustainable-computing-io/pmic-logger/internal/sampler"
)

// PowerCollector exposes the latest PMIC sample and the session totals. It
// receives samples as a sampler.Recorder.
type PowerCollector struct {
	logger *slog.Logger

	// Lock to ensure thread safety between Record and Collect
	mutex   sync.RWMutex
	ready   bool
	latest  sampler.Sample
	session sampler.Session

	voltageDesc  *prometheus.Desc
	currentDesc  *prometheus.Desc
	powerDesc    *prometheus.Desc
	energyDesc   *prometheus.Desc
	samplesDesc  *prometheus.Desc
	startedDesc  *prometheus.Desc
	intervalDesc *prometheus.Desc
}

var (
	_ prometheus.Collector = (*PowerCollector)(nil)
	_ sampler.Recorder     = (*PowerCollector)(nil)
)

// NewPowerCollector creates a collector for PMIC bus readings
func NewPowerCollector(logger *slog.Logger) *PowerCollector {
	return &PowerCollector{
		logger: logger.With("collector", "power"),

		voltageDesc: prometheus.NewDesc(
			prometheus.BuildFQName(pmicNS, "bus", "voltage_volts"),
			"Bus voltage of the latest sample in volts",
			nil, nil),
		currentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(pmicNS, "bus", "current_amps"),
			"Bus current of the latest sample in amps",
			nil, nil),
		powerDesc: prometheus.NewDesc(
			prometheus.BuildFQName(pmicNS, "bus", "power_watts"),
			"Bus power of the latest sample in watts",
			nil, nil),
		energyDesc: prometheus.NewDesc(
			prometheus.BuildFQName(pmicNS, "", "energy_joules_total"),
			"Energy accumulated since the session started in joules",
			nil, nil),
		samplesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(pmicNS, "", "samples_total"),
			"Number of samples taken since the session started",
			nil, nil),
		startedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(pmicNS, "session", "start_time_seconds"),
			"Start time of the session since unix epoch in seconds",
			nil, nil),
		intervalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(pmicNS, "session", "interval_seconds"),
			"Configured time between two samples in seconds",
			nil, nil),
	}
}

func (c *PowerCollector) Name() string {
	return "prometheus"
}

func (c *PowerCollector) Open(s sampler.Session) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.ready = false
	c.latest = sampler.Sample{}
	c.session = s
	return nil
}

func (c *PowerCollector) Record(sample sampler.Sample) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.ready = true
	c.latest = sample
	c.session.Energy = sample.Energy
	c.session.Samples++
	return nil
}

// Close keeps the final values; they are served until the process exits
func (c *PowerCollector) Close(s sampler.Session) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.session = s
	return nil
}

// Describe implements the prometheus.Collector interface
func (c *PowerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.voltageDesc
	ch <- c.currentDesc
	ch <- c.powerDesc
	ch <- c.energyDesc
	ch <- c.samplesDesc
	ch <- c.startedDesc
	ch <- c.intervalDesc
}

// Collect implements the prometheus.Collector interface
func (c *PowerCollector) Collect(ch chan<- prometheus.Metric) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.session.Start.IsZero() {
		c.logger.Debug("Collect called before the session started")
		return
	}

	ch <- prometheus.MustNewConstMetric(c.startedDesc, prometheus.GaugeValue,
		float64(c.session.Start.UnixNano())/1e9)
	ch <- prometheus.MustNewConstMetric(c.intervalDesc, prometheus.GaugeValue,
		c.session.Interval.Seconds())
	ch <- prometheus.MustNewConstMetric(c.energyDesc, prometheus.CounterValue, c.session.Energy)
	ch <- prometheus.MustNewConstMetric(c.samplesDesc, prometheus.CounterValue, float64(c.session.Samples))

	if !c.ready {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.voltageDesc, prometheus.GaugeValue, c.latest.Voltage)
	ch <- prometheus.MustNewConstMetric(c.currentDesc, prometheus.GaugeValue, c.latest.Current)
	ch <- prometheus.MustNewConstMetric(c.powerDesc, prometheus.GaugeValue, c.latest.Power)
}
