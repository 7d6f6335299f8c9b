// Package filter implements snapshot-time display filters. A filter maps a
// field to an include/exclude predicate; several filters combine with AND
// semantics. Filters never touch accumulated pipeline state: applying or
// removing one only changes what the next snapshot shows.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"netlens/internal/classify"
	"netlens/internal/model"
)

// Rule is one field predicate.
type Rule struct {
	Field   string
	Value   string
	Exclude bool

	app       model.AppProtocol
	port      uint16
	direction model.Direction
	minSize   int
	maxSize   int
}

// Set is a conjunction of rules.
type Set []Rule

// Parse turns a "field=value" (or "field!=value") spec into a rule. Supported
// fields: proto, addr, port, process, dir, size (min-max), text. Invalid
// syntax is a caller-visible error, surfaced before the filter is installed.
func Parse(spec string) (Rule, error) {
	var field, value string
	exclude := false
	switch {
	case strings.Contains(spec, "!="):
		parts := strings.SplitN(spec, "!=", 2)
		field, value, exclude = parts[0], parts[1], true
	case strings.Contains(spec, "="):
		parts := strings.SplitN(spec, "=", 2)
		field, value = parts[0], parts[1]
	default:
		return Rule{}, fmt.Errorf("invalid filter %q: expected field=value", spec)
	}

	r := Rule{
		Field:   strings.ToLower(strings.TrimSpace(field)),
		Value:   strings.TrimSpace(value),
		Exclude: exclude,
	}
	if r.Value == "" {
		return Rule{}, fmt.Errorf("invalid filter %q: empty value", spec)
	}

	switch r.Field {
	case "proto":
		app, ok := model.ParseAppProtocol(r.Value)
		if !ok {
			return Rule{}, fmt.Errorf("invalid filter %q: unknown protocol %q", spec, r.Value)
		}
		r.app = app
	case "port":
		p, err := strconv.ParseUint(r.Value, 10, 16)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid filter %q: bad port: %w", spec, err)
		}
		r.port = uint16(p)
	case "dir":
		switch strings.ToLower(r.Value) {
		case "outbound", "out":
			r.direction = model.DirOutbound
		case "inbound", "in":
			r.direction = model.DirInbound
		default:
			return Rule{}, fmt.Errorf("invalid filter %q: direction must be inbound or outbound", spec)
		}
	case "size":
		lo, hi, err := parseRange(r.Value)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid filter %q: %w", spec, err)
		}
		r.minSize, r.maxSize = lo, hi
	case "addr", "process", "text":
	default:
		return Rule{}, fmt.Errorf("invalid filter %q: unknown field %q", spec, field)
	}
	return r, nil
}

// String renders the rule back into its spec form.
func (r Rule) String() string {
	op := "="
	if r.Exclude {
		op = "!="
	}
	return r.Field + op + r.Value
}

// ParseAll parses several specs into a Set.
func ParseAll(specs []string) (Set, error) {
	set := make(Set, 0, len(specs))
	for _, spec := range specs {
		r, err := Parse(spec)
		if err != nil {
			return nil, err
		}
		set = append(set, r)
	}
	return set, nil
}

func parseRange(s string) (int, int, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("size range must be min-max")
	}
	lo, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minimum: %w", err)
	}
	hi, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad maximum: %w", err)
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("size range inverted")
	}
	return lo, hi, nil
}

// MatchPacket reports whether a record passes every rule.
func (s Set) MatchPacket(rec *model.PacketRecord) bool {
	for _, r := range s {
		if !r.matchPacket(rec) {
			return false
		}
	}
	return true
}

// MatchConnection reports whether a connection passes every rule.
func (s Set) MatchConnection(conn *model.Connection) bool {
	for _, r := range s {
		if !r.matchConnection(conn) {
			return false
		}
	}
	return true
}

func (r Rule) matchPacket(rec *model.PacketRecord) bool {
	var hit bool
	switch r.Field {
	case "proto":
		hit = rec.App == r.app
	case "addr":
		hit = classify.FormatAddr(rec.SrcIP) == r.Value || classify.FormatAddr(rec.DstIP) == r.Value
	case "port":
		hit = rec.SrcPort == r.port || rec.DstPort == r.port
	case "size":
		hit = rec.Length >= r.minSize && rec.Length <= r.maxSize
	case "text":
		hit = strings.Contains(packetText(rec), strings.ToLower(r.Value))
	case "dir", "process":
		// Not attributes of a single packet; neutral here, applied on
		// connections.
		return true
	}
	return hit != r.Exclude
}

func (r Rule) matchConnection(conn *model.Connection) bool {
	var hit bool
	switch r.Field {
	case "proto":
		hit = conn.App == r.app
	case "addr":
		hit = classify.FormatAddr(conn.Key.A.IP()) == r.Value ||
			classify.FormatAddr(conn.Key.B.IP()) == r.Value
	case "port":
		hit = conn.Key.A.Port == r.port || conn.Key.B.Port == r.port
	case "dir":
		hit = conn.Direction == r.direction
	case "process":
		hit = conn.Process != nil &&
			strings.Contains(strings.ToLower(conn.Process.Name), strings.ToLower(r.Value))
	case "size":
		total := conn.BytesSent + conn.BytesRecv
		hit = total >= uint64(r.minSize) && total <= uint64(r.maxSize)
	case "text":
		hit = strings.Contains(connText(conn), strings.ToLower(r.Value))
	}
	return hit != r.Exclude
}

func packetText(rec *model.PacketRecord) string {
	return strings.ToLower(fmt.Sprintf("%s %s %d %d %s %s %s",
		classify.FormatAddr(rec.SrcIP), classify.FormatAddr(rec.DstIP),
		rec.SrcPort, rec.DstPort,
		rec.Network, rec.Transport, rec.App))
}

func connText(conn *model.Connection) string {
	proc := ""
	if conn.Process != nil {
		proc = conn.Process.Name
	}
	return strings.ToLower(fmt.Sprintf("%s %s %s %s %s",
		conn.Key, conn.App, conn.State, conn.Direction, proc))
}
