// Package topology maintains the live host graph and its force-directed
// layout. Graph identity (nodes, edges, weights) is updated from connection
// events; positions and velocities belong to the layout engine and advance
// on an independent tick cadence.
package topology

import (
	"math"
	"math/rand"
	"net"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"netlens/internal/classify"
	"netlens/internal/config"
	"netlens/internal/model"
)

type node struct {
	addr       string
	local      bool
	activity   float64
	lastActive time.Time
	geo        *model.GeoInfo

	pos r2.Vec
	vel r2.Vec
}

// edgeKey orders the endpoint addresses so each pair maps to one edge.
type edgeKey struct {
	a, b string
}

func newEdgeKey(a, b string) edgeKey {
	if b < a {
		a, b = b, a
	}
	return edgeKey{a: a, b: b}
}

type edge struct {
	weight     float64
	lastActive time.Time
}

// Graph is the topology builder and layout state. One writer path applies
// events and ticks; snapshot readers copy under a shared lock.
type Graph struct {
	mu sync.RWMutex

	cfg       config.TopologyConfig
	localNets []*net.IPNet

	nodes map[string]*node
	edges map[edgeKey]*edge

	rng *rand.Rand
}

// New creates an empty graph.
func New(cfg config.TopologyConfig, localNets []*net.IPNet) *Graph {
	return &Graph{
		cfg:       cfg,
		localNets: localNets,
		nodes:     make(map[string]*node),
		edges:     make(map[edgeKey]*edge),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Apply folds a connection event into the graph. Opened and Updated events
// grow node activity and edge weight by a function of the bytes moved, so
// heavier transfers shift the topology faster. Closed events change nothing
// here: structure fades through decay, which also means a replayed Closed
// can never resurrect pruned state.
func (g *Graph) Apply(ev model.ConnectionEvent) {
	if ev.Kind == model.EventClosed {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	addrA := classify.FormatAddr(ev.Conn.Key.A.IP())
	addrB := classify.FormatAddr(ev.Conn.Key.B.IP())
	w := 1 + math.Log1p(float64(ev.BytesDelta))
	when := ev.Conn.LastSeen

	na := g.ensureNode(addrA, ev.Conn.Key.A.IP(), addrB)
	na.activity += w
	na.lastActive = when

	if addrB == addrA {
		// Loopback traffic: one node, no self edge.
		return
	}

	nb := g.ensureNode(addrB, ev.Conn.Key.B.IP(), addrA)
	nb.activity += w
	nb.lastActive = when

	key := newEdgeKey(addrA, addrB)
	e, ok := g.edges[key]
	if !ok {
		e = &edge{}
		g.edges[key] = e
	}
	e.weight += w
	e.lastActive = when
}

// ensureNode returns the node for addr, creating it near its neighbor (or on
// a ring around the center) so new hosts do not pop in at the origin.
func (g *Graph) ensureNode(addr string, ip net.IP, neighborAddr string) *node {
	if n, ok := g.nodes[addr]; ok {
		return n
	}

	var anchor r2.Vec
	radius := g.cfg.SpawnRadius
	if nb, ok := g.nodes[neighborAddr]; ok {
		anchor = nb.pos
	} else {
		radius *= 2
	}
	angle := g.rng.Float64() * 2 * math.Pi
	r := radius * (0.5 + g.rng.Float64()*0.5)
	pos := r2.Add(anchor, r2.Vec{X: r * math.Cos(angle), Y: r * math.Sin(angle)})

	n := &node{
		addr:  addr,
		local: g.isLocal(ip),
		pos:   pos,
	}
	g.nodes[addr] = n
	return n
}

// Enrich attaches geolocation metadata to the node holding the key's public
// endpoint. An unknown address is a silent no-op: the lookup may have outlived
// the node it was started for.
func (g *Graph) Enrich(key model.ConnKey, geo *model.GeoInfo) {
	if geo == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[classify.FormatAddr(key.PublicIP())]; ok {
		n.geo = geo
	}
}

func (g *Graph) isLocal(ip net.IP) bool {
	for _, nw := range g.localNets {
		if nw.Contains(ip) {
			return true
		}
	}
	return false
}

// decayAndPrune ages activity scores and edge weights, then removes entities
// that fell under the activity floor and have been quiet past the retention
// horizon. Recently closed but relevant structure stays visible for a while.
func (g *Graph) decayAndPrune(dt float64, now time.Time) {
	half := g.cfg.DecayHalfLife.D().Seconds()
	if half <= 0 {
		return
	}
	factor := math.Exp(-math.Ln2 * dt / half)

	for key, e := range g.edges {
		e.weight *= factor
		if e.weight < g.cfg.ActivityFloor && now.Sub(e.lastActive) > g.cfg.Retention.D() {
			delete(g.edges, key)
		}
	}

	for addr, n := range g.nodes {
		n.activity *= factor
		if n.activity >= g.cfg.ActivityFloor || now.Sub(n.lastActive) <= g.cfg.Retention.D() {
			continue
		}
		if g.degree(addr) == 0 {
			delete(g.nodes, addr)
		}
	}
}

func (g *Graph) degree(addr string) int {
	d := 0
	for key := range g.edges {
		if key.a == addr || key.b == addr {
			d++
		}
	}
	return d
}

// Snapshot returns copied node and edge sets with current layout positions,
// safe to hold across render frames. Nodes come out ordered by activity.
func (g *Graph) Snapshot() ([]model.TopologyNode, []model.TopologyEdge) {
	g.mu.RLock()
	nodes := make([]model.TopologyNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, model.TopologyNode{
			Addr:     n.addr,
			Local:    n.local,
			Activity: n.activity,
			X:        n.pos.X,
			Y:        n.pos.Y,
			Geo:      n.geo,
		})
	}
	edges := make([]model.TopologyEdge, 0, len(g.edges))
	for key, e := range g.edges {
		edges = append(edges, model.TopologyEdge{
			A:          key.a,
			B:          key.b,
			Weight:     e.weight,
			LastActive: e.lastActive,
		})
	}
	g.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Activity > nodes[j].Activity })
	sort.Slice(edges, func(i, j int) bool { return edges[i].Weight > edges[j].Weight })
	return nodes, edges
}

// Size returns the current node and edge counts.
func (g *Graph) Size() (int, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes), len(g.edges)
}
