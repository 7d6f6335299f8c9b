package classify

import (
	"bytes"

	"netlens/internal/model"
)

// wellKnownPorts maps registered service ports to protocol labels. Checked
// against both endpoints of a packet.
var wellKnownPorts = map[uint16]model.AppProtocol{
	21:  model.AppFTP,
	22:  model.AppSSH,
	25:  model.AppSMTP,
	53:  model.AppDNS,
	67:  model.AppDHCP,
	68:  model.AppDHCP,
	80:  model.AppHTTP,
	123: model.AppNTP,
	161: model.AppSNMP,
	443: model.AppTLS,
}

func portLabel(port uint16) (model.AppProtocol, bool) {
	app, ok := wellKnownPorts[port]
	return app, ok
}

var httpMethods = [][]byte{
	[]byte("GET "),
	[]byte("POST "),
	[]byte("PUT "),
	[]byte("HEAD "),
	[]byte("DELETE "),
	[]byte("OPTIONS "),
	[]byte("CONNECT "),
	[]byte("PATCH "),
	[]byte("HTTP/1."),
}

var dhcpCookie = []byte{0x63, 0x82, 0x53, 0x63}

// payloadSignature inspects the leading payload bytes for protocol-specific
// magic patterns. A match is stronger evidence than a port number and is
// reported at signature confidence.
func payloadSignature(transport model.TransportProto, p []byte) (model.AppProtocol, bool) {
	if len(p) == 0 {
		return model.AppUnknown, false
	}

	switch {
	case looksLikeSSH(p):
		return model.AppSSH, true
	case looksLikeHTTP(p):
		return model.AppHTTP, true
	case looksLikeTLS(transport, p):
		return model.AppTLS, true
	case looksLikeDHCP(transport, p):
		return model.AppDHCP, true
	case looksLikeDNS(transport, p):
		return model.AppDNS, true
	case looksLikeNTP(transport, p):
		return model.AppNTP, true
	case looksLikeSNMP(transport, p):
		return model.AppSNMP, true
	}
	return model.AppUnknown, false
}

func looksLikeSSH(p []byte) bool {
	return bytes.HasPrefix(p, []byte("SSH-"))
}

func looksLikeHTTP(p []byte) bool {
	for _, m := range httpMethods {
		if bytes.HasPrefix(p, m) {
			return true
		}
	}
	return false
}

// looksLikeTLS matches a TLS record header: content type 20-23 followed by a
// 3.x protocol version.
func looksLikeTLS(transport model.TransportProto, p []byte) bool {
	if transport != model.TransTCP || len(p) < 3 {
		return false
	}
	return p[0] >= 0x14 && p[0] <= 0x17 && p[1] == 0x03 && p[2] <= 0x04
}

// looksLikeDNS checks the fixed 12-byte header shape: a valid opcode, the
// reserved Z bit clear and a sane question count.
func looksLikeDNS(transport model.TransportProto, p []byte) bool {
	if transport != model.TransUDP && transport != model.TransTCP {
		return false
	}
	if transport == model.TransTCP {
		// TCP DNS carries a two-byte length prefix.
		if len(p) < 14 {
			return false
		}
		p = p[2:]
	}
	if len(p) < 12 {
		return false
	}
	opcode := (p[2] >> 3) & 0x0f
	zBit := p[3] & 0x40
	qdcount := uint16(p[4])<<8 | uint16(p[5])
	return opcode <= 5 && zBit == 0 && qdcount >= 1 && qdcount <= 8
}

func looksLikeDHCP(transport model.TransportProto, p []byte) bool {
	if transport != model.TransUDP || len(p) < 240 {
		return false
	}
	// op 1 (request) or 2 (reply), htype ethernet, magic cookie at 236.
	return (p[0] == 1 || p[0] == 2) && p[1] == 1 && bytes.Equal(p[236:240], dhcpCookie)
}

func looksLikeNTP(transport model.TransportProto, p []byte) bool {
	if transport != model.TransUDP || len(p) < 48 {
		return false
	}
	vn := (p[0] >> 3) & 0x07
	mode := p[0] & 0x07
	return vn >= 1 && vn <= 4 && mode >= 1 && mode <= 5
}

// looksLikeSNMP matches a BER SEQUENCE opening an INTEGER version 0-3.
func looksLikeSNMP(transport model.TransportProto, p []byte) bool {
	if transport != model.TransUDP || len(p) < 5 {
		return false
	}
	return p[0] == 0x30 && p[2] == 0x02 && p[3] == 0x01 && p[4] <= 3
}
