package filter

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netlens/internal/model"
)

func httpPacket() *model.PacketRecord {
	return &model.PacketRecord{
		Timestamp: time.Now(),
		Length:    1200,
		Network:   model.NetIPv4,
		SrcIP:     net.ParseIP("192.168.1.10"),
		DstIP:     net.ParseIP("93.184.216.34"),
		Transport: model.TransTCP,
		SrcPort:   51234,
		DstPort:   80,
		App:       model.AppHTTP,
	}
}

func curlConnection() *model.Connection {
	key := model.NewConnKey(net.ParseIP("192.168.1.10"), net.ParseIP("93.184.216.34"), 51234, 80, model.TransTCP)
	return &model.Connection{
		Key:       key,
		State:     model.StateEstablished,
		Direction: model.DirOutbound,
		App:       model.AppHTTP,
		BytesSent: 4000,
		BytesRecv: 90000,
		Process:   &model.ProcessInfo{PID: 4242, Name: "curl"},
	}
}

func TestParseValidSpecs(t *testing.T) {
	cases := []struct {
		spec    string
		field   string
		exclude bool
	}{
		{"proto=http", "proto", false},
		{"proto!=dns", "proto", true},
		{"addr=192.168.1.10", "addr", false},
		{"port=443", "port", false},
		{"dir=outbound", "dir", false},
		{"size=100-1500", "size", false},
		{"process=curl", "process", false},
		{"text=example", "text", false},
	}
	for _, c := range cases {
		r, err := Parse(c.spec)
		require.NoError(t, err, c.spec)
		assert.Equal(t, c.field, r.Field)
		assert.Equal(t, c.exclude, r.Exclude)
		assert.Equal(t, c.spec, r.String())
	}
}

func TestParseRejectsBadSpecs(t *testing.T) {
	bad := []string{
		"",
		"proto",
		"proto=",
		"proto=gopher",
		"port=99999",
		"port=http",
		"dir=sideways",
		"size=100",
		"size=1500-100",
		"flavor=vanilla",
	}
	for _, spec := range bad {
		_, err := Parse(spec)
		assert.Error(t, err, "spec %q", spec)
	}
}

func TestSetIsConjunction(t *testing.T) {
	set, err := ParseAll([]string{"proto=http", "port=80"})
	require.NoError(t, err)
	assert.True(t, set.MatchPacket(httpPacket()))

	set, err = ParseAll([]string{"proto=http", "port=443"})
	require.NoError(t, err)
	assert.False(t, set.MatchPacket(httpPacket()))
}

func TestExcludeInverts(t *testing.T) {
	set, err := ParseAll([]string{"proto!=http"})
	require.NoError(t, err)
	assert.False(t, set.MatchPacket(httpPacket()))

	set, err = ParseAll([]string{"proto!=dns"})
	require.NoError(t, err)
	assert.True(t, set.MatchPacket(httpPacket()))
}

func TestConnectionOnlyFieldsAreNeutralOnPackets(t *testing.T) {
	set, err := ParseAll([]string{"dir=outbound", "process=curl"})
	require.NoError(t, err)
	// A packet has neither direction nor process; these rules pass it through
	// and bite only on the connection table.
	assert.True(t, set.MatchPacket(httpPacket()))

	assert.True(t, set.MatchConnection(curlConnection()))

	conn := curlConnection()
	conn.Direction = model.DirInbound
	assert.False(t, set.MatchConnection(conn))
}

func TestSizeOnConnectionsUsesTotalBytes(t *testing.T) {
	set, err := ParseAll([]string{"size=90000-100000"})
	require.NoError(t, err)
	assert.True(t, set.MatchConnection(curlConnection()))

	set, err = ParseAll([]string{"size=0-1000"})
	require.NoError(t, err)
	assert.False(t, set.MatchConnection(curlConnection()))
}

func TestFreeTextSearch(t *testing.T) {
	set, err := ParseAll([]string{"text=184.216"})
	require.NoError(t, err)
	assert.True(t, set.MatchPacket(httpPacket()))

	set, err = ParseAll([]string{"text=CURL"})
	require.NoError(t, err)
	assert.True(t, set.MatchConnection(curlConnection()))

	set, err = ParseAll([]string{"text=nomatch"})
	require.NoError(t, err)
	assert.False(t, set.MatchPacket(httpPacket()))
}

func TestEmptySetMatchesEverything(t *testing.T) {
	var set Set
	assert.True(t, set.MatchPacket(httpPacket()))
	assert.True(t, set.MatchConnection(curlConnection()))
}
