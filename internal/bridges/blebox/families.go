package blebox

import (
	"maps"
	"slices"
	"strings"
)

// Adapter is the per-device-type contract the Monitor is parameterised over.
type Adapter interface {
	// StateCommand is the type-specific state endpoint.
	StateCommand() Command

	// ApplyState turns a raw state payload into the cached state.
	ApplyState(raw map[string]any) map[string]any

	// Describe reports the family tag and the controls it accepts.
	Describe() Description

	// Control returns the control command with the given name.
	Control(name string) (Command, bool)
}

// Description is the static shape of a device family.
type Description struct {
	Type     string   `json:"type"`
	Controls []string `json:"controls"`
}

// Family is the table-driven Adapter used for every BleBox product line.
type Family struct {
	Type     string
	State    Command
	StateKey string
	Controls []Command
}

// StateCommand implements Adapter.
func (f Family) StateCommand() Command { return f.State }

// ApplyState implements Adapter. When the payload wraps the state in the
// family's key (e.g. {"dimmer": {...}}) and that value is an object, the
// object is returned; otherwise the payload is kept as is.
func (f Family) ApplyState(raw map[string]any) map[string]any {
	if f.StateKey != "" {
		if inner, ok := raw[f.StateKey].(map[string]any); ok {
			return maps.Clone(inner)
		}
	}
	return maps.Clone(raw)
}

// Describe implements Adapter.
func (f Family) Describe() Description {
	names := make([]string, 0, len(f.Controls))
	for _, c := range f.Controls {
		names = append(names, c.Name)
	}
	return Description{Type: f.Type, Controls: names}
}

// Control implements Adapter.
func (f Family) Control(name string) (Command, bool) {
	i := slices.IndexFunc(f.Controls, func(c Command) bool { return c.Name == name })
	if i < 0 {
		return Command{}, false
	}
	return f.Controls[i], true
}

// Device type tags as reported (lower-cased) by the identity endpoint.
const (
	TypeSwitchBox      = "switchbox"
	TypeSwitchBoxD     = "switchboxd"
	TypeShutterBox     = "shutterbox"
	TypeDimmerBox      = "dimmerbox"
	TypeWLightBox      = "wlightbox"
	TypeWLightBoxS     = "wlightboxs"
	TypeGateBox        = "gatebox"
	TypeSaunaBox       = "saunabox"
	TypeTempSensor     = "tempsensor"
	TypeAirSensor      = "airsensor"
	TypeSmartWindowBox = "smartwindowbox"
)

// Families is a set of adapters keyed by type tag.
type Families map[string]Adapter

// DefaultFamilies returns the adapters for every supported product line.
func DefaultFamilies() Families {
	all := []Family{
		{Type: TypeSwitchBox, State: CmdRelayState, StateKey: "relays", Controls: []Command{CmdSetRelay}},
		{Type: TypeSwitchBoxD, State: CmdRelayState, StateKey: "relays", Controls: []Command{CmdSetRelays}},
		{Type: TypeShutterBox, State: CmdShutter, StateKey: "shutter", Controls: []Command{CmdSetShutter, CmdSetPosition}},
		{Type: TypeDimmerBox, State: CmdDimmer, StateKey: "dimmer", Controls: []Command{CmdSetDimmer}},
		{Type: TypeWLightBox, State: CmdRgbw, StateKey: "rgbw", Controls: []Command{CmdSetRgbw}},
		{Type: TypeWLightBoxS, State: CmdLight, StateKey: "light", Controls: []Command{CmdSetLight}},
		{Type: TypeGateBox, State: CmdGate, StateKey: "gate", Controls: []Command{CmdSetGate}},
		{Type: TypeSaunaBox, State: CmdHeat, StateKey: "heat", Controls: []Command{CmdSetHeat, CmdSetHeatTemp}},
		{Type: TypeTempSensor, State: CmdTempSensor, StateKey: "tempSensor"},
		{Type: TypeAirSensor, State: CmdAirSensor, StateKey: "air"},
		{Type: TypeSmartWindowBox, State: CmdWindow, StateKey: "window", Controls: []Command{CmdSetWindow}},
	}
	fs := make(Families, len(all))
	for _, f := range all {
		fs[f.Type] = f
	}
	return fs
}

// Lookup returns the adapter for a type tag, case-insensitively.
func (fs Families) Lookup(typ string) (Adapter, bool) {
	a, ok := fs[strings.ToLower(typ)]
	return a, ok
}

// Types returns the supported type tags, sorted.
func (fs Families) Types() []string {
	return slices.Sorted(maps.Keys(fs))
}
