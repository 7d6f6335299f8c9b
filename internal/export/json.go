package export

import (
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"netlens/internal/classify"
	"netlens/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PacketView is the flattened wire form of one record, including the derived
// address text (IPv6 compressed) that is never stored on the record itself.
type PacketView struct {
	Timestamp  time.Time `json:"timestamp"`
	Length     int       `json:"length"`
	Network    string    `json:"network"`
	SrcAddr    string    `json:"src_addr,omitempty"`
	DstAddr    string    `json:"dst_addr,omitempty"`
	TTL        uint8     `json:"ttl,omitempty"`
	Transport  string    `json:"transport"`
	SrcPort    uint16    `json:"src_port,omitempty"`
	DstPort    uint16    `json:"dst_port,omitempty"`
	Flags      string    `json:"tcp_flags,omitempty"`
	App        string    `json:"app_protocol"`
	Confidence string    `json:"confidence"`
}

// NewPacketView flattens a record for serialization.
func NewPacketView(rec *model.PacketRecord) PacketView {
	return PacketView{
		Timestamp:  rec.Timestamp,
		Length:     rec.Length,
		Network:    rec.Network.String(),
		SrcAddr:    classify.FormatAddr(rec.SrcIP),
		DstAddr:    classify.FormatAddr(rec.DstIP),
		TTL:        rec.TTL,
		Transport:  rec.Transport.String(),
		SrcPort:    rec.SrcPort,
		DstPort:    rec.DstPort,
		Flags:      tcpFlagsText(rec),
		App:        rec.App.String(),
		Confidence: rec.Confidence.String(),
	}
}

// ConnectionView is the wire form of a tracked connection.
type ConnectionView struct {
	Key         string             `json:"key"`
	State       string             `json:"state"`
	Direction   string             `json:"direction"`
	App         string             `json:"app_protocol"`
	FirstSeen   time.Time          `json:"first_seen"`
	LastSeen    time.Time          `json:"last_seen"`
	PacketsSent uint64             `json:"packets_sent"`
	PacketsRecv uint64             `json:"packets_recv"`
	BytesSent   uint64             `json:"bytes_sent"`
	BytesRecv   uint64             `json:"bytes_recv"`
	Geo         *model.GeoInfo     `json:"geo,omitempty"`
	Process     *model.ProcessInfo `json:"process,omitempty"`
}

// NewConnectionView flattens a connection for serialization.
func NewConnectionView(conn *model.Connection) ConnectionView {
	return ConnectionView{
		Key:         conn.Key.String(),
		State:       conn.State.String(),
		Direction:   conn.Direction.String(),
		App:         conn.App.String(),
		FirstSeen:   conn.FirstSeen,
		LastSeen:    conn.LastSeen,
		PacketsSent: conn.PacketsSent,
		PacketsRecv: conn.PacketsRecv,
		BytesSent:   conn.BytesSent,
		BytesRecv:   conn.BytesRecv,
		Geo:         conn.Geo,
		Process:     conn.Process,
	}
}

type snapshotJSON struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Stats       model.AggregateStats `json:"stats"`
	Packets     []PacketView         `json:"packets"`
	Connections []ConnectionView     `json:"connections"`
}

// JSONWriter serializes a snapshot as one JSON document.
type JSONWriter struct {
	w io.Writer
}

// NewJSONWriter creates a JSON writer on top of w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w}
}

// Write encodes the snapshot.
func (j *JSONWriter) Write(snap *Snapshot) error {
	doc := snapshotJSON{
		GeneratedAt: snap.Taken,
		Stats:       snap.Stats,
		Packets:     make([]PacketView, 0, len(snap.Packets)),
		Connections: make([]ConnectionView, 0, len(snap.Connections)),
	}

	for _, rec := range snap.Packets {
		doc.Packets = append(doc.Packets, NewPacketView(rec))
	}
	for i := range snap.Connections {
		doc.Connections = append(doc.Connections, NewConnectionView(&snap.Connections[i]))
	}

	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func tcpFlagsText(rec *model.PacketRecord) string {
	if rec.Transport != model.TransTCP {
		return ""
	}
	return rec.Flags.String()
}
