package classify

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netlens/internal/model"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}
)

func serializeFrame(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func tcpFrame(t *testing.T, src, dst string, sport, dport uint16, mod func(*layers.TCP), payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.ParseIP(src), DstIP: net.ParseIP(dst),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport)}
	if mod != nil {
		mod(tcp)
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serializeFrame(t, eth, ip, tcp, gopacket.Payload(payload))
}

func udpFrame(t *testing.T, src, dst string, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.ParseIP(src), DstIP: net.ParseIP(dst),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serializeFrame(t, eth, ip, udp, gopacket.Payload(payload))
}

func TestClassifyTCPHandshake(t *testing.T) {
	data := tcpFrame(t, "192.168.1.10", "93.184.216.34", 51234, 443,
		func(tcp *layers.TCP) { tcp.SYN = true }, nil)

	rec := Classify(data, time.Now())
	assert.Equal(t, model.LinkEthernet, rec.Link)
	assert.Equal(t, model.NetIPv4, rec.Network)
	assert.Equal(t, model.TransTCP, rec.Transport)
	assert.Equal(t, uint16(51234), rec.SrcPort)
	assert.Equal(t, uint16(443), rec.DstPort)
	assert.True(t, rec.Flags.Has(model.FlagSYN))
	assert.False(t, rec.Flags.Has(model.FlagACK))
	assert.Equal(t, uint8(64), rec.TTL)
	assert.Equal(t, "192.168.1.10", FormatAddr(rec.SrcIP))

	// No payload yet: the label comes from the well-known port.
	assert.Equal(t, model.AppTLS, rec.App)
	assert.Equal(t, model.ConfidencePort, rec.Confidence)
}

func TestClassifyHTTPSignatureOnOddPort(t *testing.T) {
	payload := []byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n")
	data := tcpFrame(t, "10.0.0.5", "10.0.0.9", 40000, 8080,
		func(tcp *layers.TCP) { tcp.PSH, tcp.ACK = true, true }, payload)

	rec := Classify(data, time.Now())
	assert.Equal(t, model.AppHTTP, rec.App)
	assert.Equal(t, model.ConfidenceSignature, rec.Confidence)
	assert.Equal(t, len(payload), rec.PayloadLen)
}

func TestClassifySSHBanner(t *testing.T) {
	data := tcpFrame(t, "10.0.0.5", "10.0.0.9", 50000, 2222,
		func(tcp *layers.TCP) { tcp.PSH, tcp.ACK = true, true },
		[]byte("SSH-2.0-OpenSSH_9.6\r\n"))

	rec := Classify(data, time.Now())
	assert.Equal(t, model.AppSSH, rec.App)
	assert.Equal(t, model.ConfidenceSignature, rec.Confidence)
}

func TestClassifyDNSQuery(t *testing.T) {
	// Standard A query for example.com.
	query := []byte{
		0x12, 0x34, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x07, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 0x03, 'c', 'o', 'm', 0x00,
		0x00, 0x01, 0x00, 0x01,
	}
	data := udpFrame(t, "192.168.1.10", "8.8.8.8", 53535, 53, query)

	rec := Classify(data, time.Now())
	assert.Equal(t, model.TransUDP, rec.Transport)
	assert.Equal(t, model.AppDNS, rec.App)
	assert.Equal(t, model.ConfidenceSignature, rec.Confidence)
}

func TestClassifyNTPClient(t *testing.T) {
	payload := make([]byte, 48)
	payload[0] = 0x23 // version 4, client mode
	data := udpFrame(t, "192.168.1.10", "129.6.15.28", 35000, 9123, payload)

	rec := Classify(data, time.Now())
	assert.Equal(t, model.AppNTP, rec.App)
	assert.Equal(t, model.ConfidenceSignature, rec.Confidence)
}

func TestClassifyARP(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: srcMAC, SourceProtAddress: []byte{192, 168, 1, 10},
		DstHwAddress: make([]byte, 6), DstProtAddress: []byte{192, 168, 1, 1},
	}
	data := serializeFrame(t, eth, arp)

	rec := Classify(data, time.Now())
	assert.Equal(t, model.NetARP, rec.Network)
	assert.Equal(t, model.TransOther, rec.Transport)
	assert.Nil(t, rec.SrcIP)
}

func TestClassifyIPv6TCP(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6}
	ip := &layers.IPv6{
		Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolTCP,
		SrcIP: net.ParseIP("2001:db8::1"), DstIP: net.ParseIP("2001:db8::2"),
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	data := serializeFrame(t, eth, ip, tcp)

	rec := Classify(data, time.Now())
	assert.Equal(t, model.NetIPv6, rec.Network)
	assert.Equal(t, model.TransTCP, rec.Transport)
	assert.Equal(t, "2001:db8::1", FormatAddr(rec.SrcIP))
	assert.Equal(t, model.AppHTTP, rec.App)
	assert.Equal(t, model.ConfidencePort, rec.Confidence)
}

func TestClassifyNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0xde, 0xad, 0xbe, 0xef},
		make([]byte, 13),
	}
	// Truncated copies of a valid frame exercise every partial-decode path.
	full := tcpFrame(t, "10.0.0.1", "10.0.0.2", 1234, 80, nil, []byte("hello"))
	for i := 1; i < len(full); i += 7 {
		inputs = append(inputs, full[:i])
	}

	for _, data := range inputs {
		rec := Classify(data, time.Now())
		require.NotNil(t, rec)
		assert.Equal(t, len(data), rec.Length)
	}
}
