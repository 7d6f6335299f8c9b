// Package pipeline wires the classifier, connection tracker, statistics
// aggregator and topology builder into one analysis path. A single goroutine
// consumes frames so per-packet ordering holds for the connection state
// machine; the topology layout and the idle sweep run on their own cadence
// inside the same loop. Snapshot accessors never block the hot path.
package pipeline

import (
	"context"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"netlens/internal/classify"
	"netlens/internal/config"
	"netlens/internal/enrich"
	"netlens/internal/filter"
	"netlens/internal/model"
	"netlens/internal/stats"
	"netlens/internal/topology"
	"netlens/internal/track"
)

// Pipeline owns the four analysis components and the frame queue in front of
// them.
type Pipeline struct {
	cfg *config.Config

	tracker *track.Tracker
	stats   *stats.Aggregator
	topo    *topology.Graph

	enricher *enrich.Enricher

	frames chan model.RawFrame

	histMu    sync.RWMutex
	history   []*model.PacketRecord
	histHead  int
	histCount int

	filterMu sync.RWMutex
	filters  filter.Set

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds the pipeline. Resolvers may be nil; enrichment is then skipped
// entirely. Configuration problems (zero-capacity buffers, bad CIDR ranges)
// are the only errors this constructor can return.
func New(cfg *config.Config, geo enrich.GeoResolver, proc enrich.ProcessResolver) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	localNets, err := cfg.Analysis.LocalNetworks()
	if err != nil {
		return nil, err
	}

	agg, err := stats.New(cfg.Analysis.Stats)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:     cfg,
		tracker: track.New(cfg.Analysis.Tracker, localNets),
		stats:   agg,
		topo:    topology.New(cfg.Analysis.Topology, localNets),
		frames:  make(chan model.RawFrame, cfg.Capture.QueueSize),
		history: make([]*model.PacketRecord, cfg.Analysis.HistorySize),
		done:    make(chan struct{}),
	}

	if geo != nil || proc != nil {
		p.enricher = enrich.New(geo, proc, enrichSink{p}, 0)
	}
	return p, nil
}

// enrichSink fans resolved metadata out to every component that carries it:
// the connection table and, for geolocation, the topology node of the remote
// host.
type enrichSink struct {
	p *Pipeline
}

func (s enrichSink) Enrich(key model.ConnKey, geo *model.GeoInfo, proc *model.ProcessInfo) {
	s.p.tracker.Enrich(key, geo, proc)
	s.p.topo.Enrich(key, geo)
}

// Start launches the analysis goroutine.
func (p *Pipeline) Start() {
	if p.enricher != nil {
		p.enricher.Start()
	}
	p.wg.Add(1)
	go p.run()
	log.WithFields(log.Fields{
		"queue_size": cap(p.frames),
		"history":    len(p.history),
	}).Info("analysis pipeline started")
}

// Feed hands one captured frame to the pipeline without ever blocking the
// capture source. When the queue is full the oldest unclassified frame is
// dropped and counted; frames are never lost without signal.
func (p *Pipeline) Feed(frame model.RawFrame) {
	select {
	case p.frames <- frame:
		return
	default:
	}

	select {
	case <-p.frames:
		framesDropped.Inc()
	default:
	}
	select {
	case p.frames <- frame:
	default:
		framesDropped.Inc()
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	tickInterval := p.cfg.Analysis.Topology.TickInterval.D()
	topoTicker := time.NewTicker(tickInterval)
	defer topoTicker.Stop()
	sweepTicker := time.NewTicker(p.cfg.Analysis.Tracker.SweepInterval.D())
	defer sweepTicker.Stop()

	for {
		select {
		case frame := <-p.frames:
			p.process(frame)
		case <-topoTicker.C:
			p.topo.Tick(tickInterval.Seconds())
			nodes, _ := p.topo.Size()
			topologyNodes.Set(float64(nodes))
		case <-sweepTicker.C:
			for _, ev := range p.tracker.Expire(time.Now()) {
				p.fanout(ev)
			}
		case <-p.done:
			p.drain()
			return
		}
	}
}

// drain classifies whatever is still queued so the final snapshots reflect
// every frame handed to Feed before Stop.
func (p *Pipeline) drain() {
	for {
		select {
		case frame := <-p.frames:
			p.process(frame)
		default:
			return
		}
	}
}

func (p *Pipeline) process(frame model.RawFrame) {
	rec := classify.Classify(frame.Data, frame.Timestamp)
	packetsProcessed.Inc()

	p.pushHistory(rec)
	p.stats.Record(rec)

	if ev, ok := p.tracker.Observe(rec); ok {
		p.fanout(ev)
	}
	activeConnections.Set(float64(p.tracker.Len()))
}

func (p *Pipeline) fanout(ev model.ConnectionEvent) {
	p.stats.RecordConnectionEvent(ev)
	p.topo.Apply(ev)
	if ev.Kind == model.EventOpened && p.enricher != nil {
		p.enricher.Submit(ev.Conn)
	}
}

func (p *Pipeline) pushHistory(rec *model.PacketRecord) {
	p.histMu.Lock()
	p.histHead = (p.histHead + 1) % len(p.history)
	p.history[p.histHead] = rec
	if p.histCount < len(p.history) {
		p.histCount++
	}
	p.histMu.Unlock()
}

// Stop drains the queue, flushes a final idle sweep and shuts the pipeline
// down. Snapshot accessors stay usable afterwards.
func (p *Pipeline) Stop(ctx context.Context) {
	p.stopOnce.Do(func() {
		close(p.done)

		finished := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-ctx.Done():
			log.Warn("pipeline stop timed out before the queue drained")
		}

		if p.enricher != nil {
			p.enricher.Stop()
		}

		final := p.stats.Snapshot()
		log.WithFields(log.Fields{
			"packets":     final.TotalPackets,
			"bytes":       final.TotalBytes,
			"connections": final.OpenedConns,
		}).Info("analysis pipeline stopped")
	})
}

// SetFilters atomically replaces the display filter set. Passing an empty
// set clears filtering. State accumulated so far is untouched; the change
// shows up in the next snapshot.
func (p *Pipeline) SetFilters(set filter.Set) {
	p.filterMu.Lock()
	p.filters = set
	p.filterMu.Unlock()
}

// Filters returns the active filter set.
func (p *Pipeline) Filters() filter.Set {
	p.filterMu.RLock()
	defer p.filterMu.RUnlock()
	return p.filters
}

// Packets returns up to limit classified records, most recent first, after
// display filtering. The returned records are shared immutable values.
func (p *Pipeline) Packets(limit int) []*model.PacketRecord {
	set := p.Filters()

	p.histMu.RLock()
	defer p.histMu.RUnlock()

	if limit <= 0 || limit > p.histCount {
		limit = p.histCount
	}
	out := make([]*model.PacketRecord, 0, limit)
	for i := 0; i < p.histCount && len(out) < limit; i++ {
		idx := (p.histHead - i + len(p.history)*2) % len(p.history)
		rec := p.history[idx]
		if rec == nil || !set.MatchPacket(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Connections returns the filtered connection table snapshot.
func (p *Pipeline) Connections() []model.Connection {
	set := p.Filters()
	conns := p.tracker.Connections()
	if len(set) == 0 {
		return conns
	}
	out := conns[:0]
	for i := range conns {
		if set.MatchConnection(&conns[i]) {
			out = append(out, conns[i])
		}
	}
	return out
}

// Stats returns the current aggregate statistics snapshot.
func (p *Pipeline) Stats() model.AggregateStats {
	return p.stats.Snapshot()
}

// Topology returns the current topology snapshot.
func (p *Pipeline) Topology() ([]model.TopologyNode, []model.TopologyEdge) {
	return p.topo.Snapshot()
}

// IsLocal reports whether an address is in the configured local ranges.
func (p *Pipeline) IsLocal(ip net.IP) bool {
	return p.tracker.IsLocal(ip)
}
