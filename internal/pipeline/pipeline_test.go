package pipeline

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netlens/internal/config"
	"netlens/internal/filter"
	"netlens/internal/model"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Analysis.HistorySize = 16
	cfg.Capture.QueueSize = 64
	return cfg
}

func frame(t *testing.T, src, dst string, sport, dport uint16, syn bool, payload []byte) model.RawFrame {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.ParseIP(src), DstIP: net.ParseIP(dst),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), SYN: syn, ACK: !syn, PSH: len(payload) > 0}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	return model.RawFrame{Data: buf.Bytes(), Timestamp: time.Now()}
}

func stopPipeline(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Stop(ctx)
}

func TestPipelineEndToEnd(t *testing.T) {
	p, err := New(testConfig(), nil, nil)
	require.NoError(t, err)
	p.Start()

	p.Feed(frame(t, "192.168.1.10", "93.184.216.34", 51234, 443, true, nil))
	p.Feed(frame(t, "93.184.216.34", "192.168.1.10", 443, 51234, false, nil))
	p.Feed(frame(t, "192.168.1.10", "93.184.216.34", 51234, 443, false, []byte("hello")))

	stopPipeline(t, p)

	st := p.Stats()
	assert.Equal(t, uint64(3), st.TotalPackets)
	assert.Equal(t, uint64(1), st.OpenedConns)

	conns := p.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, model.StateEstablished, conns[0].State)
	assert.Equal(t, model.AppTLS, conns[0].App)

	packets := p.Packets(0)
	require.Len(t, packets, 3)
	// Most recent first.
	assert.Equal(t, 5, packets[0].PayloadLen)

	nodes, edges := p.Topology()
	assert.Len(t, nodes, 2)
	assert.Len(t, edges, 1)
}

func TestHistoryRingIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.HistorySize = 8
	p, err := New(cfg, nil, nil)
	require.NoError(t, err)
	p.Start()

	for i := 0; i < 50; i++ {
		p.Feed(frame(t, "10.0.0.1", "10.0.0.2", uint16(20000+i), 80, true, nil))
	}
	stopPipeline(t, p)

	assert.Len(t, p.Packets(0), 8)
	assert.Len(t, p.Packets(3), 3)
	assert.Equal(t, uint64(50), p.Stats().TotalPackets)
}

func TestDisplayFiltersDoNotTouchState(t *testing.T) {
	p, err := New(testConfig(), nil, nil)
	require.NoError(t, err)
	p.Start()

	p.Feed(frame(t, "192.168.1.10", "1.1.1.1", 40000, 443, true, nil))
	p.Feed(frame(t, "192.168.1.10", "2.2.2.2", 40001, 80, true, nil))
	stopPipeline(t, p)

	require.Len(t, p.Connections(), 2)

	set, err := filter.ParseAll([]string{"port=443"})
	require.NoError(t, err)
	p.SetFilters(set)
	assert.Len(t, p.Connections(), 1)
	assert.Len(t, p.Packets(0), 1)
	// Aggregates are unaffected by display filtering.
	assert.Equal(t, uint64(2), p.Stats().TotalPackets)

	p.SetFilters(nil)
	assert.Len(t, p.Connections(), 2)
	assert.Len(t, p.Packets(0), 2)
}

type staticGeo struct {
	info model.GeoInfo
}

func (s staticGeo) Lookup(ctx context.Context, ip net.IP) (model.GeoInfo, error) {
	return s.info, nil
}

func TestGeoReachesConnectionAndTopologyNode(t *testing.T) {
	p, err := New(testConfig(), staticGeo{info: model.GeoInfo{Country: "US"}}, nil)
	require.NoError(t, err)
	p.Start()

	p.Feed(frame(t, "192.168.1.10", "93.184.216.34", 51234, 443, true, nil))
	// Stop drains both the frame queue and the enrichment queue, so the
	// lookup result has landed by the time it returns.
	stopPipeline(t, p)

	conns := p.Connections()
	require.Len(t, conns, 1)
	require.NotNil(t, conns[0].Geo)
	assert.Equal(t, "US", conns[0].Geo.Country)

	nodes, _ := p.Topology()
	require.Len(t, nodes, 2)
	for _, n := range nodes {
		if n.Addr == "93.184.216.34" {
			require.NotNil(t, n.Geo)
			assert.Equal(t, "US", n.Geo.Country)
		} else {
			assert.Nil(t, n.Geo)
		}
	}
}

func TestFeedNeverBlocksWhenQueueIsFull(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.QueueSize = 4
	p, err := New(cfg, nil, nil)
	require.NoError(t, err)
	// Deliberately not started: the queue cannot drain, so Feed must shed
	// oldest frames instead of blocking the capture path.
	f := frame(t, "10.0.0.1", "10.0.0.2", 1234, 80, true, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Feed(f)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Feed blocked on a full queue")
	}
}
