package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// TextWriter renders a human-readable report: traffic summary, top talkers,
// service usage, the recent packet listing and the connection table.
type TextWriter struct {
	w io.Writer
	// MaxConnections bounds the connection table; zero means all.
	MaxConnections int
	// MaxPackets bounds the recent-packets listing; zero means all.
	MaxPackets int
}

// NewTextWriter creates a text report writer on top of w.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

// Write renders the report.
func (t *TextWriter) Write(snap *Snapshot) error {
	st := snap.Stats

	fmt.Fprintf(t.w, "netlens report — %s\n\n", snap.Taken.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(t.w, "Total packets:   %d\n", st.TotalPackets)
	fmt.Fprintf(t.w, "Total bytes:     %s\n", humanBytes(st.TotalBytes))
	fmt.Fprintf(t.w, "Packet rate:     %.1f pps\n", st.PacketRate)
	fmt.Fprintf(t.w, "P95 packet size: %.0f bytes\n", st.P95PacketSize)
	fmt.Fprintf(t.w, "Connections:     %d opened, %d closed\n\n", st.OpenedConns, st.ClosedConns)

	if len(st.TopTalkers) > 0 {
		fmt.Fprintln(t.w, "Top talkers:")
		table := tablewriter.NewWriter(t.w)
		table.SetHeader([]string{"Address", "Packets", "Bytes"})
		for _, talker := range st.TopTalkers {
			table.Append([]string{
				talker.Addr,
				strconv.FormatUint(talker.Packets, 10),
				humanBytes(talker.Bytes),
			})
		}
		table.Render()
		fmt.Fprintln(t.w)
	}

	if len(st.TopServices) > 0 {
		fmt.Fprintln(t.w, "Service usage:")
		table := tablewriter.NewWriter(t.w)
		table.SetHeader([]string{"Protocol", "Packets", "Bytes"})
		for _, svc := range st.TopServices {
			table.Append([]string{
				svc.Name,
				strconv.FormatUint(svc.Packets, 10),
				humanBytes(svc.Bytes),
			})
		}
		table.Render()
		fmt.Fprintln(t.w)
	}

	packets := snap.Packets
	if t.MaxPackets > 0 && len(packets) > t.MaxPackets {
		packets = packets[:t.MaxPackets]
	}
	if len(packets) > 0 {
		fmt.Fprintln(t.w, "Recent packets (newest first):")
		table := tablewriter.NewWriter(t.w)
		table.SetHeader([]string{"Time", "Source", "Destination", "Proto", "App", "Flags", "Length"})
		for _, rec := range packets {
			v := NewPacketView(rec)
			table.Append([]string{
				v.Timestamp.Format("15:04:05.000"),
				endpointText(v.SrcAddr, v.SrcPort),
				endpointText(v.DstAddr, v.DstPort),
				v.Transport,
				v.App,
				v.Flags,
				strconv.Itoa(v.Length),
			})
		}
		table.Render()
		fmt.Fprintln(t.w)
	}

	conns := snap.Connections
	if t.MaxConnections > 0 && len(conns) > t.MaxConnections {
		conns = conns[:t.MaxConnections]
	}
	if len(conns) > 0 {
		fmt.Fprintln(t.w, "Connections:")
		table := tablewriter.NewWriter(t.w)
		table.SetHeader([]string{"Connection", "State", "Dir", "App", "Sent", "Recv"})
		for i := range conns {
			conn := &conns[i]
			table.Append([]string{
				conn.Key.String(),
				conn.State.String(),
				conn.Direction.String(),
				conn.App.String(),
				humanBytes(conn.BytesSent),
				humanBytes(conn.BytesRecv),
			})
		}
		table.Render()
	}
	return nil
}

func endpointText(addr string, port uint16) string {
	if addr == "" {
		return "-"
	}
	if port == 0 {
		return addr
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
