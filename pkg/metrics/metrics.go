// Package metrics exposes doorbell counters and gauges to Prometheus.
// Every helper is a no-op until Init has been called.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "doorbell_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	framesTotal     prometheus.Counter
	frameMean       prometheus.Gauge
	frameStdDev     prometheus.Gauge
	frameThreshold  prometheus.Gauge
	frameElapsed    prometheus.Histogram
	ringTransitions *prometheus.CounterVec
	ringDropped     *prometheus.CounterVec
	adcReadErrors   *prometheus.CounterVec

	wifiMode          *prometheus.GaugeVec
	wifiConnects      *prometheus.CounterVec
	wifiScanResults   prometheus.Gauge
	mqttEvents        *prometheus.CounterVec
	mqttPublishes     *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	watchdogFeeds     prometheus.Counter
	supervisorRestart *prometheus.CounterVec
)

// Init registers the doorbell metrics with reg (the default registerer when nil).
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}

		framesTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "frames_total",
				Help: "Total sample frames processed by the ring detector",
			},
		)
		frameMean = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "frame_mean",
				Help: "Mean of the last processed frame (fraction of full scale)",
			},
		)
		frameStdDev = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "frame_stddev",
				Help: "Standard deviation of the last processed frame",
			},
		)
		frameThreshold = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "frame_threshold",
				Help: "Quiet threshold the last frame was judged against",
			},
		)
		frameElapsed = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "frame_interval_seconds",
				Help:    "Hardware time between completed frames",
				Buckets: []float64{0.025, 0.05, 0.075, 0.1, 0.15, 0.2, 0.5, 1},
			},
		)
		ringTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ring_transitions_total",
				Help: "Total debounced ring transitions by kind",
			},
			[]string{"kind"},
		)
		ringDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ring_dropped_total",
				Help: "Ring transitions dropped because the event queue was full",
			},
			[]string{"kind"},
		)
		adcReadErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "adc_read_errors_total",
				Help: "Total ADC read errors by reason",
			},
			[]string{"reason"},
		)

		wifiMode = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "wifi_mode",
				Help: "Current WiFi mode (1 for the active mode)",
			},
			[]string{"mode"},
		)
		wifiConnects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "wifi_connect_attempts_total",
				Help: "Total station connect attempts by result",
			},
			[]string{"result"},
		)
		wifiScanResults = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "wifi_scan_access_points",
				Help: "Number of access points seen by the last scan",
			},
		)
		mqttEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mqtt_events_total",
				Help: "Total MQTT transport events by type",
			},
			[]string{"event"},
		)
		mqttPublishes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mqtt_publishes_total",
				Help: "Total MQTT publishes by topic kind and result",
			},
			[]string{"kind", "result"},
		)
		notifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total push notifications by result",
			},
			[]string{"result"},
		)
		watchdogFeeds = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "watchdog_feeds_total",
				Help: "Total watchdog feeds from the supervisor",
			},
		)
		supervisorRestart = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "restart_requests_total",
				Help: "Total device restart requests by reason",
			},
			[]string{"reason"},
		)

		reg.MustRegister(
			framesTotal,
			frameMean,
			frameStdDev,
			frameThreshold,
			frameElapsed,
			ringTransitions,
			ringDropped,
			adcReadErrors,
			wifiMode,
			wifiConnects,
			wifiScanResults,
			mqttEvents,
			mqttPublishes,
			notifications,
			watchdogFeeds,
			supervisorRestart,
		)
	})
}

// ObserveFrame records the statistics of a processed frame.
func ObserveFrame(mean, stddev, threshold float32, elapsed time.Duration) {
	if framesTotal != nil {
		framesTotal.Inc()
	}
	if frameMean != nil {
		frameMean.Set(float64(mean))
	}
	if frameStdDev != nil {
		frameStdDev.Set(float64(stddev))
	}
	if frameThreshold != nil {
		frameThreshold.Set(float64(threshold))
	}
	if frameElapsed != nil && elapsed > 0 {
		frameElapsed.Observe(elapsed.Seconds())
	}
}

// IncRingTransition counts a RingStart or RingStop.
func IncRingTransition(kind string) {
	if ringTransitions != nil {
		ringTransitions.WithLabelValues(kind).Inc()
	}
}

// IncRingDropped counts a transition nobody was ready to take.
func IncRingDropped(kind string) {
	if ringDropped != nil {
		ringDropped.WithLabelValues(kind).Inc()
	}
}

// IncADCReadError counts a failed or empty ADC read.
func IncADCReadError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if adcReadErrors != nil {
		adcReadErrors.WithLabelValues(reason).Inc()
	}
}

// SetWifiMode marks mode as the active WiFi mode.
func SetWifiMode(mode string, all []string) {
	if wifiMode == nil {
		return
	}
	for _, m := range all {
		v := 0.0
		if m == mode {
			v = 1
		}
		wifiMode.WithLabelValues(m).Set(v)
	}
}

// IncWifiConnect counts a station connect attempt.
func IncWifiConnect(ok bool) {
	if wifiConnects != nil {
		wifiConnects.WithLabelValues(result(ok)).Inc()
	}
}

// SetScanResults records the number of visible access points.
func SetScanResults(n int) {
	if wifiScanResults != nil {
		wifiScanResults.Set(float64(n))
	}
}

// IncMQTTEvent counts a transport event (connected, disconnected, reconnected, message).
func IncMQTTEvent(event string) {
	if mqttEvents != nil {
		mqttEvents.WithLabelValues(event).Inc()
	}
}

// IncMQTTPublish counts a publish of the given kind (ring, status, stats).
func IncMQTTPublish(kind string, err error) {
	if mqttPublishes != nil {
		mqttPublishes.WithLabelValues(kind, result(err == nil)).Inc()
	}
}

// IncNotification counts a push notification attempt.
func IncNotification(err error) {
	if notifications != nil {
		notifications.WithLabelValues(result(err == nil)).Inc()
	}
}

// IncWatchdogFeed counts a watchdog feed.
func IncWatchdogFeed() {
	if watchdogFeeds != nil {
		watchdogFeeds.Inc()
	}
}

// IncRestart counts a restart request.
func IncRestart(reason string) {
	if supervisorRestart != nil {
		supervisorRestart.WithLabelValues(reason).Inc()
	}
}

func result(ok bool) string {
	if ok {
		return resultSuccess
	}
	return resultError
}
