package model

import (
	"net"
	"testing"
)

func TestConnKeyPublicIP(t *testing.T) {
	cases := []struct {
		src, dst string
		want     string
	}{
		// 93.x sorts below 192.168.x in 16-byte form, so the public side is
		// endpoint A here; PublicIP must still find it.
		{"192.168.1.10", "93.184.216.34", "93.184.216.34"},
		{"93.184.216.34", "192.168.1.10", "93.184.216.34"},
		{"10.0.0.1", "203.0.113.9", "203.0.113.9"},
		{"10.0.0.1", "10.0.0.2", "10.0.0.2"}, // both internal: fall back to B
	}
	for _, c := range cases {
		key := NewConnKey(net.ParseIP(c.src), net.ParseIP(c.dst), 40000, 443, TransTCP)
		if got := key.PublicIP().String(); got != c.want {
			t.Errorf("PublicIP(%s, %s) = %s, want %s", c.src, c.dst, got, c.want)
		}
	}
}

func TestTCPFlagsString(t *testing.T) {
	cases := []struct {
		flags TCPFlags
		want  string
	}{
		{0, "-"},
		{FlagSYN, "S"},
		{FlagSYN | FlagACK, "SA"},
		{FlagFIN | FlagPSH | FlagACK, "FPA"},
		{FlagFIN | FlagSYN | FlagRST | FlagPSH | FlagACK | FlagURG, "FSRPAU"},
	}
	for _, c := range cases {
		if got := c.flags.String(); got != c.want {
			t.Errorf("TCPFlags(%b).String() = %q, want %q", c.flags, got, c.want)
		}
	}
}

func TestTCPFlagsHas(t *testing.T) {
	f := FlagSYN | FlagACK
	if !f.Has(FlagSYN) || !f.Has(FlagACK) || !f.Has(FlagSYN|FlagACK) {
		t.Error("Has should match every set bit")
	}
	if f.Has(FlagFIN) || f.Has(FlagSYN|FlagFIN) {
		t.Error("Has must require all bits of the mask")
	}
}

func TestParseAppProtocol(t *testing.T) {
	if p, ok := ParseAppProtocol("http"); !ok || p != AppHTTP {
		t.Errorf("ParseAppProtocol(http) = %v, %v", p, ok)
	}
	if p, ok := ParseAppProtocol("TLS"); !ok || p != AppTLS {
		t.Errorf("ParseAppProtocol(TLS) = %v, %v", p, ok)
	}
	if _, ok := ParseAppProtocol("gopher"); ok {
		t.Error("unknown protocol should not parse")
	}
}

func TestAppProtocolStringsAreDistinct(t *testing.T) {
	seen := make(map[string]AppProtocol)
	for p := AppUnknown; p < AppProtocolCount; p++ {
		name := p.String()
		if prev, dup := seen[name]; dup {
			t.Errorf("protocols %v and %v share the name %q", prev, p, name)
		}
		seen[name] = p
	}
}
