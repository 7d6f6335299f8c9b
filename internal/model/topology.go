package model

import "time"

// TopologyNode is one observed host in the topology snapshot. X/Y are the
// layout positions at snapshot time. Geo is present once an asynchronous
// lookup for the host's address has resolved.
type TopologyNode struct {
	Addr     string   `json:"addr"`
	Local    bool     `json:"local"`
	Activity float64  `json:"activity"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Geo      *GeoInfo `json:"geo,omitempty"`
}

// TopologyEdge is one observed host pair with traffic between them.
type TopologyEdge struct {
	A          string    `json:"a"`
	B          string    `json:"b"`
	Weight     float64   `json:"weight"`
	LastActive time.Time `json:"last_active"`
}
