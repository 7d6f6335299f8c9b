package model

import (
	"net"
	"strings"
	"time"
)

// LinkProto identifies the link layer of a captured frame.
type LinkProto uint8

const (
	LinkOther LinkProto = iota
	LinkEthernet
)

// NetworkProto identifies the network layer of a packet.
type NetworkProto uint8

const (
	NetOther NetworkProto = iota
	NetIPv4
	NetIPv6
	NetARP
)

func (p NetworkProto) String() string {
	switch p {
	case NetIPv4:
		return "IPv4"
	case NetIPv6:
		return "IPv6"
	case NetARP:
		return "ARP"
	}
	return "Other"
}

// TransportProto identifies the transport layer of a packet.
type TransportProto uint8

const (
	TransOther TransportProto = iota
	TransTCP
	TransUDP
	TransICMP
)

func (p TransportProto) String() string {
	switch p {
	case TransTCP:
		return "TCP"
	case TransUDP:
		return "UDP"
	case TransICMP:
		return "ICMP"
	}
	return "Other"
}

// AppProtocol is the application-protocol label assigned by the classifier.
type AppProtocol uint8

const (
	AppUnknown AppProtocol = iota
	AppHTTP
	AppTLS
	AppSSH
	AppFTP
	AppSMTP
	AppDNS
	AppDHCP
	AppNTP
	AppSNMP

	// AppProtocolCount bounds per-protocol counter arrays.
	AppProtocolCount
)

var appNames = [AppProtocolCount]string{
	"Unknown", "HTTP", "TLS", "SSH", "FTP", "SMTP", "DNS", "DHCP", "NTP", "SNMP",
}

func (p AppProtocol) String() string {
	if p < AppProtocolCount {
		return appNames[p]
	}
	return "Unknown"
}

// ParseAppProtocol maps a case-insensitive protocol name back to its label.
func ParseAppProtocol(name string) (AppProtocol, bool) {
	for i, n := range appNames {
		if strings.EqualFold(n, name) {
			return AppProtocol(i), true
		}
	}
	return AppUnknown, false
}

// Confidence indicates how an application-protocol label was derived.
type Confidence uint8

const (
	ConfidenceNone Confidence = iota
	ConfidencePort
	ConfidenceSignature
)

func (c Confidence) String() string {
	switch c {
	case ConfidencePort:
		return "port"
	case ConfidenceSignature:
		return "signature"
	}
	return "none"
}

// TCPFlags is the flag byte of a TCP header.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

func (f TCPFlags) Has(mask TCPFlags) bool { return f&mask == mask }

func (f TCPFlags) String() string {
	names := []struct {
		mask TCPFlags
		ch   byte
	}{
		{FlagFIN, 'F'}, {FlagSYN, 'S'}, {FlagRST, 'R'},
		{FlagPSH, 'P'}, {FlagACK, 'A'}, {FlagURG, 'U'},
	}
	buf := make([]byte, 0, 6)
	for _, n := range names {
		if f&n.mask != 0 {
			buf = append(buf, n.ch)
		}
	}
	if len(buf) == 0 {
		return "-"
	}
	return string(buf)
}

// RawFrame is one unit of captured link-layer data, as delivered by a
// capture source.
type RawFrame struct {
	Data      []byte
	Timestamp time.Time
}

// PacketRecord is the immutable result of classifying one frame. Layers that
// could not be resolved stay at their Other/Unknown zero values.
type PacketRecord struct {
	Timestamp time.Time
	Length    int

	Link    LinkProto
	Network NetworkProto
	SrcIP   net.IP
	DstIP   net.IP
	TTL     uint8

	Transport TransportProto
	SrcPort   uint16
	DstPort   uint16
	Flags     TCPFlags

	App        AppProtocol
	Confidence Confidence
	PayloadLen int

	// Raw keeps the original frame bytes so the history ring can feed the
	// pcap exporter without a second copy of the capture stream.
	Raw []byte
}

// GeoInfo is asynchronously resolved geolocation metadata for an address.
type GeoInfo struct {
	Country string `json:"country"`
	City    string `json:"city"`
	ASN     uint32 `json:"asn"`
	Org     string `json:"org"`
}

// ProcessInfo is asynchronously resolved process attribution for a connection.
type ProcessInfo struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}
