package stats

import (
	"time"

	"netlens/internal/config"
	"netlens/internal/model"
)

// tier is one fixed-capacity ring of samples at a fixed bucket interval.
// Insertion past capacity evicts the oldest bucket; memory never grows.
type tier struct {
	name     string
	interval time.Duration
	samples  []model.StatSample
	head     int
	count    int
}

func newTier(def config.TierDef) *tier {
	return &tier{
		name:     def.Name,
		interval: def.Interval.D(),
		samples:  make([]model.StatSample, def.Capacity),
	}
}

// roll advances the current bucket until it covers now. Gaps in traffic
// produce empty buckets rather than stretched ones.
func (t *tier) roll(now time.Time) {
	if t.count == 0 {
		t.count = 1
		t.samples[t.head] = model.StatSample{WindowStart: now.Truncate(t.interval)}
		return
	}
	for {
		cur := t.samples[t.head].WindowStart
		if now.Before(cur.Add(t.interval)) {
			return
		}
		t.head = (t.head + 1) % len(t.samples)
		if t.count < len(t.samples) {
			t.count++
		}
		t.samples[t.head] = model.StatSample{WindowStart: cur.Add(t.interval)}
	}
}

func (t *tier) record(rec *model.PacketRecord) {
	t.roll(rec.Timestamp)
	s := &t.samples[t.head]
	s.Packets++
	s.Bytes += uint64(rec.Length)
	s.ByProto[rec.App]++
}

// snapshot copies the ring contents, oldest bucket first.
func (t *tier) snapshot() model.TierSnapshot {
	out := model.TierSnapshot{
		Name:     t.name,
		Interval: t.interval,
		Samples:  make([]model.StatSample, 0, t.count),
	}
	for i := 0; i < t.count; i++ {
		idx := (t.head - t.count + 1 + i + len(t.samples)*2) % len(t.samples)
		out.Samples = append(out.Samples, t.samples[idx])
	}
	return out
}

// rate returns the average packets per second over the filled buckets.
func (t *tier) rate() float64 {
	if t.count == 0 {
		return 0
	}
	var packets uint64
	for i := 0; i < t.count; i++ {
		idx := (t.head - t.count + 1 + i + len(t.samples)*2) % len(t.samples)
		packets += t.samples[idx].Packets
	}
	span := t.interval.Seconds() * float64(t.count)
	return float64(packets) / span
}
