package main

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromExporter collects metrics in Prometheus format from an axis server.
type PromExporter struct {
	timeout   time.Duration
	namespace string

	scraper *Scraper

	up              *prometheus.Desc
	version         *prometheus.Desc
	sessionsLive    *prometheus.Desc
	sessionsTotal   *prometheus.Desc
	presenceOnline  *prometheus.Desc
	presenceOffline *prometheus.Desc
	routedMessages  *prometheus.Desc
	droppedMessages *prometheus.Desc
	malloced        *prometheus.Desc
}

// NewPromExporter returns an initialized Prometheus exporter.
func NewPromExporter(namespace string, timeout time.Duration, scraper *Scraper) *PromExporter {
	return &PromExporter{
		timeout:   timeout,
		namespace: namespace,
		scraper:   scraper,
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "up"),
			"If the axis instance is reachable.",
			nil,
			nil,
		),
		version: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "version"),
			"The version of this axis instance.",
			nil,
			nil,
		),
		sessionsLive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_live_count"),
			"Number of currently active sessions.",
			nil,
			nil,
		),
		sessionsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_total"),
			"Total number of sessions since instance start.",
			nil,
			nil,
		),
		presenceOnline: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "presence_online_total"),
			"Total number of Offline to Online presence transitions.",
			nil,
			nil,
		),
		presenceOffline: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "presence_offline_total"),
			"Total number of Online to Offline presence transitions.",
			nil,
			nil,
		),
		routedMessages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "routed_messages_total"),
			"Total number of messages delivered to live sessions.",
			nil,
			nil,
		),
		droppedMessages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "dropped_messages_total"),
			"Total number of messages dropped due to slow sessions.",
			nil,
			nil,
		),
		malloced: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "malloced_bytes"),
			"Number of bytes of memory allocated and in use.",
			nil,
			nil,
		),
	}
}

// Describe describes all the metrics exported by the axis exporter. It
// implements prometheus.Collector.
func (e *PromExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.up
	ch <- e.version
	ch <- e.sessionsLive
	ch <- e.sessionsTotal
	ch <- e.presenceOnline
	ch <- e.presenceOffline
	ch <- e.routedMessages
	ch <- e.droppedMessages
	ch <- e.malloced
}

// Collect fetches statistics from the configured axis instance and delivers
// them as Prometheus metrics. It implements prometheus.Collector.
func (e *PromExporter) Collect(ch chan<- prometheus.Metric) {
	up := float64(1)
	if stats, err := e.scraper.Scrape(); err != nil {
		log.Println("Failed to fetch or parse response", err)
		up = 0
	} else if err = e.parseStats(ch, stats); err != nil {
		up = 0
	}

	ch <- prometheus.MustNewConstMetric(e.up, prometheus.GaugeValue, up)
}

func (e *PromExporter) parseStats(ch chan<- prometheus.Metric, stats map[string]interface{}) error {
	return firstError(
		e.parseAndUpdate(ch, e.version, prometheus.GaugeValue, stats, "Version"),
		e.parseAndUpdate(ch, e.sessionsLive, prometheus.GaugeValue, stats, "LiveSessions"),
		e.parseAndUpdate(ch, e.sessionsTotal, prometheus.CounterValue, stats, "TotalSessions"),
		e.parseAndUpdate(ch, e.presenceOnline, prometheus.CounterValue, stats, "PresenceOnlineTotal"),
		e.parseAndUpdate(ch, e.presenceOffline, prometheus.CounterValue, stats, "PresenceOfflineTotal"),
		e.parseAndUpdate(ch, e.routedMessages, prometheus.CounterValue, stats, "RoutedMessagesTotal"),
		e.parseAndUpdate(ch, e.droppedMessages, prometheus.CounterValue, stats, "DroppedMessagesTotal"),
		e.parseAndUpdate(ch, e.malloced, prometheus.GaugeValue, stats, "memstats.Alloc"),
	)
}

func (e *PromExporter) parseAndUpdate(ch chan<- prometheus.Metric, desc *prometheus.Desc, valueType prometheus.ValueType,
	stats map[string]interface{}, key string) error {
	v, err := parseMetric(stats, key)
	if err != nil {
		return err
	}
	ch <- prometheus.MustNewConstMetric(desc, valueType, v)
	return nil
}

func firstError(errs ...error) error {
	for _, v := range errs {
		if v != nil {
			return v
		}
	}
	return nil
}
