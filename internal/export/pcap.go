package export

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PCAPWriter writes the retained raw frames back out as a standard pcap
// stream. Only records that still carry their original bytes are written;
// the frame content is untouched.
type PCAPWriter struct {
	w io.Writer
}

// NewPCAPWriter creates a pcap writer on top of w.
func NewPCAPWriter(w io.Writer) *PCAPWriter {
	return &PCAPWriter{w: w}
}

// Write emits the snapshot's packets in capture order.
func (p *PCAPWriter) Write(snap *Snapshot) error {
	pw := pcapgo.NewWriter(p.w)
	if err := pw.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}

	// Snapshot order is newest first; pcap wants capture order.
	for i := len(snap.Packets) - 1; i >= 0; i-- {
		rec := snap.Packets[i]
		if len(rec.Raw) == 0 {
			continue
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     rec.Timestamp,
			CaptureLength: len(rec.Raw),
			Length:        rec.Length,
		}
		if err := pw.WritePacket(ci, rec.Raw); err != nil {
			return fmt.Errorf("failed to write pcap record: %w", err)
		}
	}
	return nil
}
