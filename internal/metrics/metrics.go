package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	processesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forkdemo",
		Name:      "processes_created_total",
		Help:      "Child processes created, by routine.",
	}, []string{"routine"})

	childWaits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forkdemo",
		Name:      "child_waits_total",
		Help:      "Completed wait-for-any-child operations, by routine.",
	}, []string{"routine"})

	channelsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forkdemo",
		Name:      "channels_created_total",
		Help:      "Signal channels created, by routine.",
	}, []string{"routine"})

	childrenReleased = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forkdemo",
		Name:      "children_released_total",
		Help:      "Blocked children released through their signal channel, by routine.",
	}, []string{"routine"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "forkdemo",
		Name:      "build_info",
		Help:      "Build metadata for the running forkdemo binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(processesCreated, childWaits, channelsCreated, childrenReleased, buildInfo)
}

// Registry returns the Prometheus registry containing all forkdemo metrics.
func Registry() *prometheus.Registry {
	return registry
}

// IncProcessesCreated records one child created by routine.
func IncProcessesCreated(routine string) {
	processesCreated.WithLabelValues(label(routine)).Inc()
}

// IncChildWaits records one completed wait.
func IncChildWaits(routine string) {
	childWaits.WithLabelValues(label(routine)).Inc()
}

// IncChannelsCreated records one signal channel.
func IncChannelsCreated(routine string) {
	channelsCreated.WithLabelValues(label(routine)).Inc()
}

// IncChildrenReleased records one release write.
func IncChildrenReleased(routine string) {
	childrenReleased.WithLabelValues(label(routine)).Inc()
}

// WriteFile writes the registry in the Prometheus text format to path.
func WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}

func label(routine string) string {
	if routine == "" {
		return "unknown"
	}
	return routine
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
