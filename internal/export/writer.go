// Package export serializes pipeline snapshots to the supported interchange
// formats: pcap, JSON, CSV and a plain-text report. Writers consume the same
// immutable snapshots the rendering surface reads; the pipeline itself knows
// nothing about formats.
package export

import (
	"fmt"
	"io"
	"time"

	"netlens/internal/model"
)

// Source is the snapshot surface writers read from. *pipeline.Pipeline
// satisfies it.
type Source interface {
	Packets(limit int) []*model.PacketRecord
	Connections() []model.Connection
	Stats() model.AggregateStats
}

// Snapshot is one consistent capture of the pipeline's queryable state.
// Packets are ordered most recent first.
type Snapshot struct {
	Taken       time.Time
	Packets     []*model.PacketRecord
	Connections []model.Connection
	Stats       model.AggregateStats
}

// Collect pulls a snapshot out of a source.
func Collect(src Source) *Snapshot {
	return &Snapshot{
		Taken:       time.Now(),
		Packets:     src.Packets(0),
		Connections: src.Connections(),
		Stats:       src.Stats(),
	}
}

// Writer serializes one snapshot to its format.
type Writer interface {
	Write(snap *Snapshot) error
}

// ForFormat returns the writer for a format name.
func ForFormat(format string, w io.Writer) (Writer, error) {
	switch format {
	case "pcap":
		return NewPCAPWriter(w), nil
	case "json":
		return NewJSONWriter(w), nil
	case "csv":
		return NewCSVWriter(w), nil
	case "text", "txt":
		return NewTextWriter(w), nil
	}
	return nil, fmt.Errorf("unknown export format %q (want pcap, json, csv or text)", format)
}
