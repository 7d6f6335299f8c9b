package stats

import (
	"sort"

	"netlens/internal/model"
)

// topTable tracks per-address traffic for the top-talkers ranking. The
// candidate set is bounded: when full, a new address evicts the current
// smallest entry, so memory stays constant while heavy senders survive.
type topTable struct {
	limit int
	items map[string]*model.TalkerStat
}

func newTopTable(limit int) *topTable {
	if limit <= 0 {
		limit = 1024
	}
	return &topTable{
		limit: limit,
		items: make(map[string]*model.TalkerStat, limit),
	}
}

func (t *topTable) add(addr string, bytes uint64) {
	if it, ok := t.items[addr]; ok {
		it.Packets++
		it.Bytes += bytes
		return
	}
	if len(t.items) >= t.limit {
		t.evictSmallest()
	}
	t.items[addr] = &model.TalkerStat{Addr: addr, Packets: 1, Bytes: bytes}
}

func (t *topTable) evictSmallest() {
	var victim string
	var low uint64
	first := true
	for addr, it := range t.items {
		if first || it.Bytes < low {
			victim, low, first = addr, it.Bytes, false
		}
	}
	delete(t.items, victim)
}

// top returns the k largest entries by byte volume, descending.
func (t *topTable) top(k int) []model.TalkerStat {
	out := make([]model.TalkerStat, 0, len(t.items))
	for _, it := range t.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bytes > out[j].Bytes })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
