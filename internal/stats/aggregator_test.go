package stats

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netlens/internal/config"
	"netlens/internal/model"
)

func testStatsConfig() config.StatsConfig {
	return config.StatsConfig{
		Tiers: []config.TierDef{
			{Name: "second", Interval: config.Duration(time.Second), Capacity: 300},
			{Name: "minute", Interval: config.Duration(time.Minute), Capacity: 60},
		},
		TopK:           5,
		TrackedTalkers: 64,
	}
}

func TestNewRejectsBadTiers(t *testing.T) {
	_, err := New(config.StatsConfig{})
	assert.Error(t, err)

	_, err = New(config.StatsConfig{Tiers: []config.TierDef{{Name: "broken"}}})
	assert.Error(t, err)
}

func TestAggregatorTotalsAcrossTiers(t *testing.T) {
	a, err := New(testStatsConfig())
	require.NoError(t, err)

	base := time.Unix(5000, 0)
	for i := 0; i < 500; i++ {
		a.Record(&model.PacketRecord{
			Timestamp: base.Add(time.Duration(i) * 20 * time.Millisecond),
			Length:    100,
			SrcIP:     net.ParseIP("192.168.1.10"),
			App:       model.AppHTTP,
		})
	}

	snap := a.Snapshot()
	assert.Equal(t, uint64(500), snap.TotalPackets)
	assert.Equal(t, uint64(50000), snap.TotalBytes)
	require.Len(t, snap.Tiers, 2)

	// Every tier accounts for every packet, whatever its bucket interval.
	for _, tier := range snap.Tiers {
		var sum uint64
		for _, s := range tier.Samples {
			sum += s.Packets
		}
		assert.Equal(t, uint64(500), sum, "tier %s", tier.Name)
	}

	// Per-protocol counters survive bucketing too.
	var httpSum uint64
	for _, s := range snap.Tiers[0].Samples {
		httpSum += s.ByProto[model.AppHTTP]
	}
	assert.Equal(t, uint64(500), httpSum)
}

func TestPacketRateUsesFinestTier(t *testing.T) {
	a, err := New(testStatsConfig())
	require.NoError(t, err)

	base := time.Unix(6000, 0)
	// 100 packets over 10 seconds.
	for i := 0; i < 100; i++ {
		a.Record(&model.PacketRecord{
			Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond),
			Length:    60,
		})
	}
	snap := a.Snapshot()
	assert.InDelta(t, 10.0, snap.PacketRate, 0.1)
}

func TestClosedEventIdempotence(t *testing.T) {
	a, err := New(testStatsConfig())
	require.NoError(t, err)

	key := model.NewConnKey(net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"), 1234, 80, model.TransTCP)
	conn := model.Connection{Key: key}

	a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventOpened, Conn: conn})
	a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventClosed, Conn: conn})
	// A replayed close for the same key must not double-count.
	a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventClosed, Conn: conn})

	snap := a.Snapshot()
	assert.Equal(t, uint64(1), snap.OpenedConns)
	assert.Equal(t, uint64(1), snap.ClosedConns)

	// Reopening the same key is a genuinely new connection; its close counts.
	a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventOpened, Conn: conn})
	a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventClosed, Conn: conn})

	snap = a.Snapshot()
	assert.Equal(t, uint64(2), snap.OpenedConns)
	assert.Equal(t, uint64(2), snap.ClosedConns)
}

func TestReclosedKeySurvivesStaleWindowEviction(t *testing.T) {
	a, err := New(testStatsConfig())
	require.NoError(t, err)

	key := model.NewConnKey(net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"), 1234, 80, model.TransTCP)
	conn := model.Connection{Key: key}

	// Close, reopen, close again: the first close leaves a stale entry in the
	// eviction queue ahead of the live one.
	a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventOpened, Conn: conn})
	a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventClosed, Conn: conn})
	a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventOpened, Conn: conn})
	a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventClosed, Conn: conn})

	// Push the stale entry out of the window with distinct closes.
	for i := 0; i < closedDedupWindow-1; i++ {
		other := model.Connection{Key: model.NewConnKey(
			net.ParseIP("10.1.0.1"), net.ParseIP("10.1.0.2"),
			uint16(10000+i), 80, model.TransTCP,
		)}
		a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventOpened, Conn: other})
		a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventClosed, Conn: other})
	}

	before := a.Snapshot().ClosedConns
	// Evicting the stale entry must not have dropped the dedup record of the
	// second close, so its replay is still a no-op.
	a.RecordConnectionEvent(model.ConnectionEvent{Kind: model.EventClosed, Conn: conn})
	assert.Equal(t, before, a.Snapshot().ClosedConns)
}

func TestServiceRanking(t *testing.T) {
	a, err := New(testStatsConfig())
	require.NoError(t, err)

	base := time.Unix(7000, 0)
	feed := func(app model.AppProtocol, n int) {
		for i := 0; i < n; i++ {
			a.Record(&model.PacketRecord{Timestamp: base, Length: 100, App: app})
		}
	}
	feed(model.AppDNS, 30)
	feed(model.AppHTTP, 10)
	feed(model.AppUnknown, 5)

	snap := a.Snapshot()
	require.NotEmpty(t, snap.TopServices)
	assert.Equal(t, "DNS", snap.TopServices[0].Name)
	assert.Equal(t, uint64(30), snap.TopServices[0].Packets)
	assert.Equal(t, "HTTP", snap.TopServices[1].Name)
}

func TestTopTalkersFromRecords(t *testing.T) {
	a, err := New(testStatsConfig())
	require.NoError(t, err)

	base := time.Unix(8000, 0)
	for i := 0; i < 20; i++ {
		a.Record(&model.PacketRecord{Timestamp: base, Length: 1000, SrcIP: net.ParseIP("10.0.0.9")})
	}
	a.Record(&model.PacketRecord{Timestamp: base, Length: 100, SrcIP: net.ParseIP("10.0.0.1")})

	snap := a.Snapshot()
	require.NotEmpty(t, snap.TopTalkers)
	assert.Equal(t, "10.0.0.9", snap.TopTalkers[0].Addr)
	assert.Equal(t, uint64(20000), snap.TopTalkers[0].Bytes)
}
