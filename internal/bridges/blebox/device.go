package blebox

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Identity is what a device reports about itself on the identity endpoint.
type Identity struct {
	// ID is the persistent device identifier. It never changes.
	ID string

	// Type is the lower-cased device type tag (e.g. "switchbox").
	Type string

	// Address is where the device is reachable (host or host:port).
	Address string

	// Name is the normalised display name.
	Name string

	// Info is the raw descriptive section (firmware, hardware, api level).
	Info map[string]any
}

// ParseIdentity extracts an Identity from an identity response.
//
// Both the flat shape {"id": ..., "type": ...} and the nested shape
// {"device": {...}, "network": {...}} are accepted. When the device section
// carries no "ip", the address is taken from network.ip.
func ParseIdentity(payload map[string]any) (Identity, error) {
	section := payload
	if nested, ok := payload["device"].(map[string]any); ok {
		section = nested
	}

	id := stringField(section, "id")
	typ := strings.ToLower(stringField(section, "type"))
	if id == "" || typ == "" {
		return Identity{}, fmt.Errorf("%w: missing id or type", ErrInvalidIdentity)
	}

	addr := stringField(section, "ip")
	if addr == "" {
		if network, ok := payload["network"].(map[string]any); ok {
			addr = stringField(network, "ip")
		}
	}

	return Identity{
		ID:      id,
		Type:    typ,
		Address: addr,
		Name:    NormalizeName(stringField(section, "deviceName")),
		Info:    maps.Clone(section),
	}, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// NormalizeName replaces every rune outside ASCII letters and digits and the
// Latin-1 Supplement / Latin Extended-A/B letters (U+00C0..U+024F) with a
// space. The result is stable under repeated normalisation.
func NormalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r >= 0x00C0 && r <= 0x024F:
			return r
		default:
			return ' '
		}
	}, name)
}

// Snapshot is a point-in-time copy of a tracked device.
type Snapshot struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Address    string         `json:"address"`
	Name       string         `json:"name"`
	Info       map[string]any `json:"info,omitempty"`
	State      map[string]any `json:"state,omitempty"`
	Controls   []string       `json:"controls,omitempty"`
	Responding bool           `json:"responding"`
	Failures   int            `json:"failures"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Identity returns the identity part of the snapshot.
func (s Snapshot) Identity() Identity {
	return Identity{ID: s.ID, Type: s.Type, Address: s.Address, Name: s.Name, Info: s.Info}
}
