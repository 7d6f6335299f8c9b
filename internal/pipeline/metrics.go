package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netlens_frames_dropped_total",
		Help: "Frames evicted from the capture queue before classification",
	})
	packetsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netlens_packets_processed_total",
		Help: "Frames classified by the analysis pipeline",
	})
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netlens_active_connections",
		Help: "Connections currently tracked",
	})
	topologyNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netlens_topology_nodes",
		Help: "Hosts currently present in the topology graph",
	})
)
