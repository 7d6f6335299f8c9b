// Package pcap adapts libpcap capture sources, live and offline, into the
// raw frame stream the analysis pipeline consumes.
package pcap

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"netlens/internal/model"
)

// Reader reads frames from a pcap file.
type Reader struct {
	handle *pcap.Handle
}

// NewReader opens a pcap file for reading.
func NewReader(filePath string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadFrames reads every frame in the file and hands it to emit. Frame bytes
// are copied, so the handle's internal buffer can be reused immediately.
func (r *Reader) ReadFrames(emit func(model.RawFrame)) {
	source := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	for packet := range source.Packets() {
		data := make([]byte, len(packet.Data()))
		copy(data, packet.Data())
		emit(model.RawFrame{Data: data, Timestamp: packet.Metadata().Timestamp})
	}
}
