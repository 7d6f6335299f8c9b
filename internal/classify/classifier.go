// Package classify turns raw link-layer frames into structured packet
// records. Classification is a pure function of the frame bytes: it never
// fails, never panics and never consults cross-packet state.
package classify

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netlens/internal/model"
)

// Classify decodes one frame into a PacketRecord. Malformed or truncated
// input resolves as many layers as the bytes allow; whatever cannot be
// decoded stays Other/Unknown.
func Classify(data []byte, ts time.Time) *model.PacketRecord {
	rec := &model.PacketRecord{
		Timestamp: ts,
		Length:    len(data),
		Raw:       data,
	}
	if len(data) == 0 {
		return rec
	}

	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)

	if eth := packet.Layer(layers.LayerTypeEthernet); eth != nil {
		rec.Link = model.LinkEthernet
	}

	// Network layer. gopacket unwraps 802.1Q tags on the way, so VLAN
	// encapsulated traffic lands here as well.
	fragmented := false
	switch {
	case packet.Layer(layers.LayerTypeIPv4) != nil:
		ip4 := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		rec.Network = model.NetIPv4
		rec.SrcIP = append(rec.SrcIP, ip4.SrcIP...)
		rec.DstIP = append(rec.DstIP, ip4.DstIP...)
		rec.TTL = ip4.TTL
		// Non-first fragments carry no transport header; each fragment is
		// classified independently, without reassembly.
		fragmented = ip4.FragOffset > 0
	case packet.Layer(layers.LayerTypeIPv6) != nil:
		ip6 := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		rec.Network = model.NetIPv6
		rec.SrcIP = append(rec.SrcIP, ip6.SrcIP...)
		rec.DstIP = append(rec.DstIP, ip6.DstIP...)
		rec.TTL = ip6.HopLimit
	case packet.Layer(layers.LayerTypeARP) != nil:
		rec.Network = model.NetARP
		return rec
	default:
		return rec
	}

	if fragmented {
		return rec
	}

	var payload []byte
	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		rec.Transport = model.TransTCP
		rec.SrcPort = uint16(tcp.SrcPort)
		rec.DstPort = uint16(tcp.DstPort)
		rec.Flags = tcpFlags(tcp)
		payload = tcp.Payload
	case packet.Layer(layers.LayerTypeUDP) != nil:
		udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		rec.Transport = model.TransUDP
		rec.SrcPort = uint16(udp.SrcPort)
		rec.DstPort = uint16(udp.DstPort)
		payload = udp.Payload
	case packet.Layer(layers.LayerTypeICMPv4) != nil,
		packet.Layer(layers.LayerTypeICMPv6) != nil:
		rec.Transport = model.TransICMP
		return rec
	default:
		return rec
	}

	rec.PayloadLen = len(payload)
	rec.App, rec.Confidence = detectApp(rec, payload)
	return rec
}

func tcpFlags(tcp *layers.TCP) model.TCPFlags {
	var f model.TCPFlags
	if tcp.FIN {
		f |= model.FlagFIN
	}
	if tcp.SYN {
		f |= model.FlagSYN
	}
	if tcp.RST {
		f |= model.FlagRST
	}
	if tcp.PSH {
		f |= model.FlagPSH
	}
	if tcp.ACK {
		f |= model.FlagACK
	}
	if tcp.URG {
		f |= model.FlagURG
	}
	return f
}

// detectApp runs the two-stage application heuristic: well-known ports first,
// then payload signatures, which win on disagreement.
func detectApp(rec *model.PacketRecord, payload []byte) (model.AppProtocol, model.Confidence) {
	app := model.AppUnknown
	conf := model.ConfidenceNone

	if byPort, ok := portLabel(rec.SrcPort); ok {
		app, conf = byPort, model.ConfidencePort
	} else if byPort, ok := portLabel(rec.DstPort); ok {
		app, conf = byPort, model.ConfidencePort
	}

	if bySig, ok := payloadSignature(rec.Transport, payload); ok {
		return bySig, model.ConfidenceSignature
	}
	return app, conf
}
