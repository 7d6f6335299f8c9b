package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"netlens/internal/classify"
)

// CSVWriter flattens packet records into CSV rows, one per record, oldest
// first.
type CSVWriter struct {
	w io.Writer
}

// NewCSVWriter creates a CSV writer on top of w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: w}
}

var csvHeader = []string{
	"timestamp", "length", "network", "src_addr", "src_port",
	"dst_addr", "dst_port", "transport", "tcp_flags", "app_protocol", "confidence",
}

// Write emits the snapshot's packets.
func (c *CSVWriter) Write(snap *Snapshot) error {
	cw := csv.NewWriter(c.w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for i := len(snap.Packets) - 1; i >= 0; i-- {
		rec := snap.Packets[i]
		row := []string{
			rec.Timestamp.Format(time.RFC3339Nano),
			strconv.Itoa(rec.Length),
			rec.Network.String(),
			classify.FormatAddr(rec.SrcIP),
			strconv.Itoa(int(rec.SrcPort)),
			classify.FormatAddr(rec.DstIP),
			strconv.Itoa(int(rec.DstPort)),
			rec.Transport.String(),
			tcpFlagsText(rec),
			rec.App.String(),
			rec.Confidence.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
