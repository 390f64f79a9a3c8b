package metrics

import (
	"os"
	"runtime"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterHostInfo exposes a constant gauge describing where the process runs
func RegisterHostInfo(reg prometheus.Registerer, service string) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	_, container := detectContainer()

	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "host_info",
		Help:      "Host the process runs on; always 1.",
		ConstLabels: prometheus.Labels{
			"service":    service,
			"hostname":   hostname,
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"go_version": runtime.Version(),
			"container":  container,
		},
	})
	info.Set(1)
	return reg.Register(info)
}

// detectContainer checks if running in a container
func detectContainer() (bool, string) {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true, "docker"
	}
	if _, err := os.Stat("/var/run/secrets/kubernetes.io"); err == nil {
		return true, "kubernetes"
	}

	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		switch {
		case strings.Contains(content, "kubepods"):
			return true, "kubernetes"
		case strings.Contains(content, "docker"):
			return true, "docker"
		case strings.Contains(content, "containerd"):
			return true, "containerd"
		}
	}

	return false, ""
}
