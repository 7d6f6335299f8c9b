package model

import "time"

// StatSample is one bucket of a retention tier. ByProto is bounded by the
// fixed protocol enum so every sample has constant size.
type StatSample struct {
	WindowStart time.Time                `json:"window_start"`
	Packets     uint64                   `json:"packets"`
	Bytes       uint64                   `json:"bytes"`
	ByProto     [AppProtocolCount]uint64 `json:"by_proto"`
}

// TalkerStat is one entry of the top-talkers ranking.
type TalkerStat struct {
	Addr    string `json:"addr"`
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// ServiceStat is one entry of the service-usage ranking.
type ServiceStat struct {
	App     AppProtocol `json:"-"`
	Name    string      `json:"app"`
	Packets uint64      `json:"packets"`
	Bytes   uint64      `json:"bytes"`
}

// TierSnapshot is the copied contents of one retention tier, oldest first.
type TierSnapshot struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Samples  []StatSample  `json:"samples"`
}

// AggregateStats is an immutable point-in-time view of the statistics
// aggregator, safe to hold while recording continues.
type AggregateStats struct {
	Taken         time.Time      `json:"taken"`
	TotalPackets  uint64         `json:"total_packets"`
	TotalBytes    uint64         `json:"total_bytes"`
	PacketRate    float64        `json:"packet_rate"`
	P95PacketSize float64        `json:"p95_packet_size"`
	OpenedConns   uint64         `json:"opened_connections"`
	ClosedConns   uint64         `json:"closed_connections"`
	TopTalkers    []TalkerStat   `json:"top_talkers"`
	TopServices   []ServiceStat  `json:"top_services"`
	Tiers         []TierSnapshot `json:"tiers"`
}
