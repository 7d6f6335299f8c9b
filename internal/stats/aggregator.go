// Package stats maintains rolling traffic statistics over multiple fixed
// retention tiers, with bounded top-K rankings and a streaming percentile
// estimator. All recording is O(1) amortized and snapshots are immutable
// copies, safe to read while recording continues.
package stats

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"netlens/internal/classify"
	"netlens/internal/config"
	"netlens/internal/model"
)

// closedDedupWindow bounds how many recent Closed keys are remembered to
// keep duplicated close events from double-counting.
const closedDedupWindow = 512

// Aggregator is the rolling statistics engine.
type Aggregator struct {
	mu sync.Mutex

	tiers    []*tier
	talkers  *topTable
	services [model.AppProtocolCount]model.ServiceStat
	p95      *p2Estimator

	totalPackets uint64
	totalBytes   uint64
	opened       uint64
	closed       uint64

	closedSeen  map[model.ConnKey]uint64
	closedOrder []closedEntry
	closedGen   uint64

	topK int
}

// closedEntry queues one dedup record for window eviction. The generation ties
// the queued entry to the map record it created, so evicting a stale entry for
// a key that has since been closed again cannot drop the newer record.
type closedEntry struct {
	key model.ConnKey
	gen uint64
}

// New builds an Aggregator from the tier definitions. Zero-capacity tiers
// are a configuration error surfaced at startup.
func New(cfg config.StatsConfig) (*Aggregator, error) {
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("stats: at least one retention tier is required")
	}
	a := &Aggregator{
		talkers:    newTopTable(cfg.TrackedTalkers),
		p95:        newP2(0.95),
		closedSeen: make(map[model.ConnKey]uint64, closedDedupWindow),
		topK:       cfg.TopK,
	}
	for _, def := range cfg.Tiers {
		if def.Capacity <= 0 {
			return nil, fmt.Errorf("stats: tier %q has zero capacity", def.Name)
		}
		a.tiers = append(a.tiers, newTier(def))
	}
	return a, nil
}

// Record folds one classified packet into every retention tier and the
// derived rankings.
func (a *Aggregator) Record(rec *model.PacketRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalPackets++
	a.totalBytes += uint64(rec.Length)
	for _, t := range a.tiers {
		t.record(rec)
	}
	a.p95.Add(float64(rec.Length))

	svc := &a.services[rec.App]
	svc.App = rec.App
	svc.Packets++
	svc.Bytes += uint64(rec.Length)

	if rec.SrcIP != nil {
		a.talkers.add(classify.FormatAddr(rec.SrcIP), uint64(rec.Length))
	}
}

// RecordConnectionEvent counts connection lifecycle transitions. Replaying
// an identical Closed event is a no-op.
func (a *Aggregator) RecordConnectionEvent(ev model.ConnectionEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Kind {
	case model.EventOpened:
		a.opened++
		// A reopened key is a genuinely new connection; forget the old close.
		delete(a.closedSeen, ev.Conn.Key)
	case model.EventClosed:
		if _, dup := a.closedSeen[ev.Conn.Key]; dup {
			return
		}
		a.rememberClosed(ev.Conn.Key)
		a.closed++
	}
}

func (a *Aggregator) rememberClosed(key model.ConnKey) {
	a.closedGen++
	a.closedSeen[key] = a.closedGen
	a.closedOrder = append(a.closedOrder, closedEntry{key: key, gen: a.closedGen})
	if len(a.closedOrder) > closedDedupWindow {
		oldest := a.closedOrder[0]
		a.closedOrder = a.closedOrder[1:]
		if a.closedSeen[oldest.key] == oldest.gen {
			delete(a.closedSeen, oldest.key)
		}
	}
}

// Snapshot returns an immutable copy of the aggregate state.
func (a *Aggregator) Snapshot() model.AggregateStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := model.AggregateStats{
		Taken:         time.Now(),
		TotalPackets:  a.totalPackets,
		TotalBytes:    a.totalBytes,
		P95PacketSize: a.p95.Value(),
		OpenedConns:   a.opened,
		ClosedConns:   a.closed,
		TopTalkers:    a.talkers.top(a.topK),
	}

	if len(a.tiers) > 0 {
		out.PacketRate = a.tiers[0].rate()
	}
	for _, t := range a.tiers {
		out.Tiers = append(out.Tiers, t.snapshot())
	}

	for i := range a.services {
		if a.services[i].Packets == 0 {
			continue
		}
		svc := a.services[i]
		svc.Name = svc.App.String()
		out.TopServices = append(out.TopServices, svc)
	}
	sort.Slice(out.TopServices, func(i, j int) bool {
		return out.TopServices[i].Packets > out.TopServices[j].Packets
	})
	if len(out.TopServices) > a.topK {
		out.TopServices = out.TopServices[:a.topK]
	}
	return out
}
