package blebox

import "strconv"

// Telemetry records polled device state as time series.
type Telemetry interface {
	WriteDeviceState(deviceID, deviceType string, fields map[string]float64)
	WriteDeviceHealth(deviceID, deviceType string, responding bool, failures int)
}

// NumericFields flattens the numeric and boolean leaves of a state payload
// into underscore-joined field names. Array elements use their index.
//
//	{"relays": [{"state": 1}], "on": true}  →  {"relays_0_state": 1, "on": 1}
func NumericFields(state map[string]any) map[string]float64 {
	out := make(map[string]float64)
	flatten("", state, out)
	return out
}

func flatten(prefix string, v any, out map[string]float64) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "_" + k
	}
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			flatten(join(k), item, out)
		}
	case []any:
		for i, item := range t {
			flatten(join(strconv.Itoa(i)), item, out)
		}
	case float64:
		if prefix != "" {
			out[prefix] = t
		}
	case bool:
		if prefix != "" {
			if t {
				out[prefix] = 1
			} else {
				out[prefix] = 0
			}
		}
	}
}
