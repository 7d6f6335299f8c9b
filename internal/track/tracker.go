// Package track maintains the bidirectional connection table. It consumes
// classified packets, groups them under canonical keys and drives each
// connection through its lifecycle until teardown or idle expiry.
package track

import (
	"net"
	"sort"
	"sync"
	"time"

	"netlens/internal/config"
	"netlens/internal/model"
)

// entry is the tracker-private state around one live connection.
type entry struct {
	conn      model.Connection
	initiator model.Endpoint
	finA      bool
	finB      bool
	rst       bool
	closingAt time.Time
}

// Tracker owns the connection table. A single analysis goroutine writes;
// snapshot readers share the lock only briefly while copying.
type Tracker struct {
	mu    sync.RWMutex
	conns map[model.ConnKey]*entry

	idleTimeout  time.Duration
	closingGrace time.Duration
	localNets    []*net.IPNet
}

// New creates a Tracker with the given lifecycle timing and local ranges.
func New(cfg config.TrackerConfig, localNets []*net.IPNet) *Tracker {
	return &Tracker{
		conns:        make(map[model.ConnKey]*entry),
		idleTimeout:  cfg.IdleTimeout.D(),
		closingGrace: cfg.ClosingGrace.D(),
		localNets:    localNets,
	}
}

// Observe folds one classified packet into the table and returns the
// lifecycle event it produced. Records without a network-layer tuple (ARP,
// undecodable frames) produce no event and ok is false.
func (t *Tracker) Observe(rec *model.PacketRecord) (model.ConnectionEvent, bool) {
	if rec.SrcIP == nil || rec.DstIP == nil {
		return model.ConnectionEvent{}, false
	}
	switch rec.Transport {
	case model.TransTCP, model.TransUDP, model.TransICMP:
	default:
		return model.ConnectionEvent{}, false
	}

	key := model.NewConnKey(rec.SrcIP, rec.DstIP, rec.SrcPort, rec.DstPort, rec.Transport)
	src := model.Endpoint{Addr: string(rec.SrcIP.To16()), Port: rec.SrcPort}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.conns[key]
	if !ok {
		e = t.open(key, src, rec)
		t.conns[key] = e
		t.applyFlags(e, src, rec)
		return model.ConnectionEvent{
			Kind:       model.EventOpened,
			Conn:       e.conn,
			BytesDelta: uint64(rec.Length),
		}, true
	}

	e.conn.LastSeen = rec.Timestamp
	if src == e.initiator {
		e.conn.PacketsSent++
		e.conn.BytesSent += uint64(rec.Length)
	} else {
		e.conn.PacketsRecv++
		e.conn.BytesRecv += uint64(rec.Length)
	}
	t.upgradeLabel(e, rec)

	if e.conn.State == model.StateNew && rec.Transport == model.TransTCP {
		// Handshake progress or mid-stream data both establish.
		if rec.Flags.Has(model.FlagSYN|model.FlagACK) || rec.Flags.Has(model.FlagACK) || rec.PayloadLen > 0 {
			e.conn.State = model.StateEstablished
		}
	}

	t.applyFlags(e, src, rec)

	if e.conn.State == model.StateClosed {
		delete(t.conns, key)
		reason := model.CloseNormal
		if e.rst {
			reason = model.CloseReset
		}
		return model.ConnectionEvent{
			Kind:       model.EventClosed,
			Conn:       e.conn,
			Reason:     reason,
			BytesDelta: uint64(rec.Length),
		}, true
	}

	return model.ConnectionEvent{
		Kind:       model.EventUpdated,
		Conn:       e.conn,
		BytesDelta: uint64(rec.Length),
	}, true
}

// open creates the entry for a previously unseen key. A first packet that
// already carries data (or is not a bare SYN) opens straight in Established;
// the tracker does not require having seen a handshake.
func (t *Tracker) open(key model.ConnKey, src model.Endpoint, rec *model.PacketRecord) *entry {
	state := model.StateEstablished
	if rec.Transport == model.TransTCP && rec.Flags.Has(model.FlagSYN) && !rec.Flags.Has(model.FlagACK) && rec.PayloadLen == 0 {
		state = model.StateNew
	}

	e := &entry{
		conn: model.Connection{
			Key:         key,
			FirstSeen:   rec.Timestamp,
			LastSeen:    rec.Timestamp,
			State:       state,
			PacketsSent: 1,
			BytesSent:   uint64(rec.Length),
			App:         rec.App,
			AppConf:     rec.Confidence,
			Direction:   t.direction(rec),
		},
		initiator: src,
	}
	return e
}

// applyFlags advances the TCP teardown machine. FIN or RST moves the
// connection to Closing; the matching FIN from the opposite direction (or,
// for resets, any answer from the peer) completes the close.
func (t *Tracker) applyFlags(e *entry, src model.Endpoint, rec *model.PacketRecord) {
	if rec.Transport != model.TransTCP || e.conn.State == model.StateClosed {
		return
	}

	fromA := src == e.conn.Key.A

	if e.conn.State == model.StateClosing && e.rst && !rec.Flags.Has(model.FlagRST) {
		// Peer acknowledged the reset with any traffic.
		e.conn.State = model.StateClosed
		return
	}

	if rec.Flags.Has(model.FlagRST) {
		e.rst = true
		if e.conn.State != model.StateClosing {
			e.conn.State = model.StateClosing
			e.closingAt = rec.Timestamp
		}
		return
	}

	if rec.Flags.Has(model.FlagFIN) {
		if fromA {
			e.finA = true
		} else {
			e.finB = true
		}
		if e.conn.State != model.StateClosing {
			e.conn.State = model.StateClosing
			e.closingAt = rec.Timestamp
		}
		if e.finA && e.finB {
			e.conn.State = model.StateClosed
		}
	}
}

// upgradeLabel applies the label upgrade policy: signature-confidence labels
// are never downgraded by later port-only evidence.
func (t *Tracker) upgradeLabel(e *entry, rec *model.PacketRecord) {
	if rec.App == model.AppUnknown {
		return
	}
	if rec.Confidence >= e.conn.AppConf {
		e.conn.App = rec.App
		e.conn.AppConf = rec.Confidence
	}
}

// direction derives the local/remote initiation hint from the configured
// local ranges.
func (t *Tracker) direction(rec *model.PacketRecord) model.Direction {
	srcLocal := t.isLocal(rec.SrcIP)
	dstLocal := t.isLocal(rec.DstIP)
	switch {
	case srcLocal && !dstLocal:
		return model.DirOutbound
	case !srcLocal && dstLocal:
		return model.DirInbound
	case srcLocal && dstLocal:
		return model.DirOutbound
	}
	return model.DirUnknown
}

// IsLocal reports whether the address falls in a configured local range.
func (t *Tracker) IsLocal(ip net.IP) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isLocal(ip)
}

func (t *Tracker) isLocal(ip net.IP) bool {
	for _, n := range t.localNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Expire force-closes stale connections: anything idle past the timeout goes
// with reason Timeout regardless of flag history, and Closing connections
// past the grace period complete their close. This bounds table memory for
// protocols with no teardown signal.
func (t *Tracker) Expire(now time.Time) []model.ConnectionEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []model.ConnectionEvent
	for key, e := range t.conns {
		var reason model.CloseReason
		switch {
		case now.Sub(e.conn.LastSeen) > t.idleTimeout:
			reason = model.CloseTimeout
		case e.conn.State == model.StateClosing && now.Sub(e.closingAt) > t.closingGrace:
			reason = model.CloseNormal
			if e.rst {
				reason = model.CloseReset
			}
		default:
			continue
		}

		e.conn.State = model.StateClosed
		delete(t.conns, key)
		events = append(events, model.ConnectionEvent{
			Kind:   model.EventClosed,
			Conn:   e.conn,
			Reason: reason,
		})
	}
	return events
}

// Enrich attaches asynchronously resolved metadata to a live connection.
// Unknown keys are a silent no-op: the connection may have expired while the
// lookup was in flight.
func (t *Tracker) Enrich(key model.ConnKey, geo *model.GeoInfo, proc *model.ProcessInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.conns[key]
	if !ok {
		return
	}
	if geo != nil {
		e.conn.Geo = geo
	}
	if proc != nil {
		e.conn.Process = proc
	}
}

// Len returns the number of live connections.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// Connections returns a point-in-time copy of the table, most recently
// active first.
func (t *Tracker) Connections() []model.Connection {
	t.mu.RLock()
	out := make([]model.Connection, 0, len(t.conns))
	for _, e := range t.conns {
		out = append(out, e.conn)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}
