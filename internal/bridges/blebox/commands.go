package blebox

import (
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Command is an immutable description of one device HTTP endpoint.
// Path may carry positional placeholders {0}, {1}, ... that are filled from
// the parameters passed to Scheduler.Submit.
type Command struct {
	Name   string
	Method string
	Path   string
}

// leftoverPlaceholder matches a path segment still holding a placeholder after
// substitution.
var leftoverPlaceholder = regexp.MustCompile(`/\{\d+\}`)

// URL builds the request URL for this command against address.
// Parameters are substituted in order; unfilled placeholders are stripped
// together with their leading slash.
//
// Example:
//
//	CmdSetRelays.URL("192.168.1.20", "1")   // http://192.168.1.20/s/1
func (c Command) URL(address string, params ...string) string {
	return "http://" + address + c.ExpandPath(params...)
}

// ExpandPath returns the command path with params substituted.
func (c Command) ExpandPath(params ...string) string {
	path := c.Path
	for i, p := range params {
		path = strings.Replace(path, "{"+strconv.Itoa(i)+"}", p, 1)
	}
	return leftoverPlaceholder.ReplaceAllString(path, "")
}

// Placeholders reports how many distinct positional placeholders Path holds.
func (c Command) Placeholders() int {
	n := 0
	for strings.Contains(c.Path, "{"+strconv.Itoa(n)+"}") {
		n++
	}
	return n
}

func get(name, path string) Command {
	return Command{Name: name, Method: http.MethodGet, Path: path}
}

// Device command catalogue.
var (
	CmdDeviceState = get("getDeviceState", "/api/device/state")

	CmdRelayState  = get("getRelayState", "/api/relay/state")
	CmdSetRelay    = get("setSimpleRelayState", "/s/{0}")
	CmdSetRelays   = get("setSimpleRelaysState", "/s/{0}/{1}")
	CmdShutter     = get("getShutterState", "/api/shutter/state")
	CmdSetShutter  = get("setSimpleShutterState", "/s/{0}")
	CmdSetPosition = get("setSimplePositionShutterState", "/s/p/{0}")
	CmdDimmer      = get("getDimmerState", "/api/dimmer/state")
	CmdSetDimmer   = get("setSimpleDimmerState", "/s/{0}")
	CmdRgbw        = get("getRgbwState", "/api/rgbw/state")
	CmdSetRgbw     = get("setSimpleRgbwState", "/s/{0}")
	CmdLight       = get("getLightState", "/api/light/state")
	CmdSetLight    = get("setSimpleLightState", "/s/{0}")
	CmdGate        = get("getGateState", "/api/gate/state")
	CmdSetGate     = get("setSimpleGateState", "/s/p")
	CmdWindow      = get("getWindowState", "/api/window/state")
	CmdSetWindow   = get("setWindowPositionPercentage", "/s/{0}/p/{1}")
	CmdHeat        = get("getHeatState", "/api/heat/state")
	CmdSetHeat     = get("setSimpleHeatState", "/s/{0}")
	CmdSetHeatTemp = get("setSimpleHeatDesiredTemperature", "/s/t/{0}")
	CmdTempSensor  = get("getTempSensorState", "/api/tempsensor/state")
	CmdAirSensor   = get("getAirSensorState", "/api/air/state")
)

var commandsByName = func() map[string]Command {
	all := []Command{
		CmdDeviceState,
		CmdRelayState, CmdSetRelay, CmdSetRelays,
		CmdShutter, CmdSetShutter, CmdSetPosition,
		CmdDimmer, CmdSetDimmer,
		CmdRgbw, CmdSetRgbw,
		CmdLight, CmdSetLight,
		CmdGate, CmdSetGate,
		CmdWindow, CmdSetWindow,
		CmdHeat, CmdSetHeat, CmdSetHeatTemp,
		CmdTempSensor, CmdAirSensor,
	}
	m := make(map[string]Command, len(all))
	for _, c := range all {
		m[c.Name] = c
	}
	return m
}()

// LookupCommand returns the catalogue command with the given name.
func LookupCommand(name string) (Command, bool) {
	c, ok := commandsByName[name]
	return c, ok
}

// CommandNames returns every catalogue command name, sorted.
func CommandNames() []string {
	names := make([]string, 0, len(commandsByName))
	for n := range commandsByName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
