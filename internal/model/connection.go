package model

import (
	"bytes"
	"fmt"
	"net"
	"time"
)

// Endpoint is one side of a connection. Addr holds the 16-byte form of the
// address so the struct stays comparable and usable as a map key component.
type Endpoint struct {
	Addr string
	Port uint16
}

// IP returns the endpoint address as a net.IP.
func (e Endpoint) IP() net.IP { return net.IP([]byte(e.Addr)) }

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.IP().String(), e.Port)
}

// ConnKey is the canonical identity of a bidirectional flow: the unordered
// endpoint pair plus the transport protocol. Endpoint A is always the
// lexicographically smaller one, so two packets with swapped src/dst map to
// the same key.
type ConnKey struct {
	A, B  Endpoint
	Proto TransportProto
}

// NewConnKey builds the canonical key for a packet's endpoints.
func NewConnKey(srcIP, dstIP net.IP, srcPort, dstPort uint16, proto TransportProto) ConnKey {
	src := Endpoint{Addr: string(srcIP.To16()), Port: srcPort}
	dst := Endpoint{Addr: string(dstIP.To16()), Port: dstPort}
	if endpointLess(dst, src) {
		src, dst = dst, src
	}
	return ConnKey{A: src, B: dst, Proto: proto}
}

func endpointLess(a, b Endpoint) bool {
	if c := bytes.Compare([]byte(a.Addr), []byte(b.Addr)); c != 0 {
		return c < 0
	}
	return a.Port < b.Port
}

func (k ConnKey) String() string {
	return fmt.Sprintf("%s<->%s/%s", k.A, k.B, k.Proto)
}

// PublicIP returns the endpoint address external lookups should target: the
// first endpoint outside private, loopback and link-local space. Endpoints
// are ordered canonically, not by locality, so this cannot be read off a
// fixed side. Falls back to B when both sides are internal.
func (k ConnKey) PublicIP() net.IP {
	if ip := k.B.IP(); ipIsPublic(ip) {
		return ip
	}
	if ip := k.A.IP(); ipIsPublic(ip) {
		return ip
	}
	return k.B.IP()
}

func ipIsPublic(ip net.IP) bool {
	return !(ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified())
}

// ConnState is the lifecycle state of a tracked connection.
type ConnState uint8

const (
	StateNew ConnState = iota
	StateEstablished
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Direction indicates which side initiated the connection, judged against the
// configured local address ranges.
type Direction uint8

const (
	DirUnknown Direction = iota
	DirOutbound
	DirInbound
)

func (d Direction) String() string {
	switch d {
	case DirOutbound:
		return "outbound"
	case DirInbound:
		return "inbound"
	}
	return "unknown"
}

// Connection is the mutable aggregate of one tracked flow. The tracker owns
// the live instance; events and snapshots carry copies.
type Connection struct {
	Key         ConnKey
	FirstSeen   time.Time
	LastSeen    time.Time
	State       ConnState
	PacketsSent uint64
	PacketsRecv uint64
	BytesSent   uint64
	BytesRecv   uint64
	App         AppProtocol
	AppConf     Confidence
	Direction   Direction

	Geo     *GeoInfo
	Process *ProcessInfo
}

// CloseReason explains why a connection left the table.
type CloseReason uint8

const (
	CloseNone CloseReason = iota
	CloseNormal
	CloseReset
	CloseTimeout
)

func (r CloseReason) String() string {
	switch r {
	case CloseNormal:
		return "normal"
	case CloseReset:
		return "reset"
	case CloseTimeout:
		return "timeout"
	}
	return "none"
}

// EventKind discriminates connection lifecycle events.
type EventKind uint8

const (
	EventOpened EventKind = iota
	EventUpdated
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventUpdated:
		return "updated"
	case EventClosed:
		return "closed"
	}
	return "unknown"
}

// ConnectionEvent is emitted by the tracker for every observed packet and for
// every expiry. Conn is a copy taken at emission time. BytesDelta is the
// traffic volume carried since the previous event for this connection.
type ConnectionEvent struct {
	Kind       EventKind
	Conn       Connection
	Reason     CloseReason
	BytesDelta uint64
}
