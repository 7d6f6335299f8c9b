package pcap

import (
	"fmt"
	"time"

	"github.com/google/gopacket/pcap"

	"netlens/internal/config"
	"netlens/internal/model"
)

// LiveSource captures frames from a network interface.
type LiveSource struct {
	handle *pcap.Handle
	iface  string
}

// OpenLive opens the configured interface for capture. An empty interface
// name selects the first device that has an address.
func OpenLive(cfg config.CaptureConfig) (*LiveSource, error) {
	iface := cfg.Interface
	if iface == "" {
		var err error
		iface, err = defaultInterface()
		if err != nil {
			return nil, err
		}
	}
	handle, err := pcap.OpenLive(iface, int32(cfg.SnapLen), cfg.Promiscuous, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", iface, err)
	}
	return &LiveSource{handle: handle, iface: iface}, nil
}

// Interface returns the name of the device being captured.
func (s *LiveSource) Interface() string { return s.iface }

// Close closes the capture handle.
func (s *LiveSource) Close() {
	s.handle.Close()
}

// ReadFrames blocks, handing each captured frame to emit until the handle is
// closed. Timeout and EOF conditions end the loop; transient read errors are
// skipped.
func (s *LiveSource) ReadFrames(emit func(model.RawFrame)) error {
	for {
		data, ci, err := s.handle.ReadPacketData()
		if err == pcap.NextErrorTimeoutExpired {
			continue
		}
		if err != nil {
			return err
		}
		frame := make([]byte, len(data))
		copy(frame, data)
		ts := ci.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		emit(model.RawFrame{Data: frame, Timestamp: ts})
	}
}

// Interface describes one capture device.
type Interface struct {
	Name        string
	Description string
	Addresses   []string
}

// ListInterfaces enumerates capture-capable devices.
func ListInterfaces() ([]Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(devs))
	for _, dev := range devs {
		ifc := Interface{Name: dev.Name, Description: dev.Description}
		for _, addr := range dev.Addresses {
			ifc.Addresses = append(ifc.Addresses, addr.IP.String())
		}
		out = append(out, ifc)
	}
	return out, nil
}

func defaultInterface() (string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return "", err
	}
	for _, dev := range devs {
		if len(dev.Addresses) > 0 {
			return dev.Name, nil
		}
	}
	return "", fmt.Errorf("no capture-capable interface found")
}
