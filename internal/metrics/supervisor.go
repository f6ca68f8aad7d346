// Package metrics provides Prometheus metrics for the supervised server.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smazurov/aqiwatch/internal/events"
	"github.com/smazurov/aqiwatch/internal/supervisor"
)

var (
	serverLaunches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aqiwatch",
		Subsystem: "server",
		Name:      "launches_total",
		Help:      "Total server launches, including the first",
	})

	serverCrashes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aqiwatch",
		Subsystem: "server",
		Name:      "crashes_total",
		Help:      "Total unexpected server exits",
	})

	serverRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqiwatch",
		Subsystem: "server",
		Name:      "scheduled_restarts_total",
		Help:      "Total restarts not caused by a crash",
	}, []string{"reason"})

	serverStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqiwatch",
		Subsystem: "server",
		Name:      "stops_total",
		Help:      "Total stop sequences run on a live server, by outcome",
	}, []string{"result"})

	serverUp = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "aqiwatch",
		Subsystem: "server",
		Name:      "up",
		Help:      "Whether a server process is currently running",
	}, func() float64 {
		if currentStatus().PID == 0 {
			return 0
		}
		return 1
	})

	serverStartTime = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "aqiwatch",
		Subsystem: "server",
		Name:      "start_time_seconds",
		Help:      "Unix start time of the current server process, 0 when none",
	}, func() float64 {
		st := currentStatus()
		if st.PID == 0 {
			return 0
		}
		return float64(st.StartedAt.UnixNano()) / 1e9
	})

	serverLastExitCode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aqiwatch",
		Subsystem: "server",
		Name:      "last_exit_code",
		Help:      "Exit code of the last crashed server process",
	})

	serverLastUptime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aqiwatch",
		Subsystem: "server",
		Name:      "last_uptime_seconds",
		Help:      "Uptime of the previous server process when it went away",
	})
)

// StatusSource reports the live supervisor state. *supervisor.Supervisor implements it.
type StatusSource interface {
	Status() supervisor.Status
}

var source atomic.Pointer[StatusSource]

// Track makes the up and start time gauges follow src. They are read at
// scrape time, so they never depend on event delivery order.
// Returns a function that detaches src.
func Track(src StatusSource) func() {
	source.Store(&src)
	return func() { source.CompareAndSwap(&src, nil) }
}

func currentStatus() supervisor.Status {
	if src := source.Load(); src != nil {
		return (*src).Status()
	}
	return supervisor.Status{}
}

// RecordLaunch counts a server launch.
func RecordLaunch() {
	serverLaunches.Inc()
}

// RecordCrash counts an unexpected exit.
func RecordCrash(exitCode int, uptime time.Duration) {
	serverCrashes.Inc()
	serverLastExitCode.Set(float64(exitCode))
	serverLastUptime.Set(uptime.Seconds())
}

// RecordScheduledRestart counts a restart that was not caused by a crash.
func RecordScheduledRestart(reason string, uptime time.Duration) {
	serverRestarts.WithLabelValues(reason).Inc()
	serverLastUptime.Set(uptime.Seconds())
}

// RecordStop counts a finished stop sequence.
func RecordStop(result string) {
	serverStops.WithLabelValues(result).Inc()
}

// Subscribe feeds the metrics from supervisor events.
// Returns a function that removes all subscriptions.
func Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(events.ChildStartedEvent) {
			RecordLaunch()
		}),
		bus.Subscribe(func(e events.ChildExitedEvent) {
			RecordCrash(e.ExitCode, e.Uptime)
		}),
		bus.Subscribe(func(e events.RestartScheduledEvent) {
			RecordScheduledRestart(e.Reason, e.Uptime)
		}),
		bus.Subscribe(func(e events.ChildStoppedEvent) {
			RecordStop(e.Result)
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
