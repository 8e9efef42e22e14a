package blebox

import (
	"slices"
	"testing"
)

func TestDefaultFamilies(t *testing.T) {
	fs := DefaultFamilies()
	want := []string{
		TypeAirSensor, TypeDimmerBox, TypeGateBox, TypeSaunaBox, TypeShutterBox,
		TypeSmartWindowBox, TypeSwitchBox, TypeSwitchBoxD, TypeTempSensor,
		TypeWLightBox, TypeWLightBoxS,
	}
	if got := fs.Types(); !slices.Equal(got, want) {
		t.Errorf("Types() = %v, want %v", got, want)
	}

	a, ok := fs.Lookup("ShutterBox")
	if !ok {
		t.Fatal("Lookup is not case-insensitive")
	}
	if a.StateCommand().Name != "getShutterState" {
		t.Errorf("StateCommand() = %s", a.StateCommand().Name)
	}
	if _, ok := fs.Lookup("toaster"); ok {
		t.Error("unknown type found")
	}
}

func TestFamily_ApplyState(t *testing.T) {
	dimmer, _ := DefaultFamilies().Lookup(TypeDimmerBox)

	got := dimmer.ApplyState(map[string]any{"dimmer": map[string]any{"currentBrightness": float64(120)}})
	if got["currentBrightness"] != float64(120) {
		t.Errorf("wrapped state not unwrapped: %v", got)
	}

	got = dimmer.ApplyState(map[string]any{"currentBrightness": float64(5)})
	if got["currentBrightness"] != float64(5) {
		t.Errorf("unwrapped state not kept: %v", got)
	}

	relay, _ := DefaultFamilies().Lookup(TypeSwitchBox)
	got = relay.ApplyState(map[string]any{"relays": []any{map[string]any{"state": float64(1)}}})
	if _, ok := got["relays"]; !ok {
		t.Errorf("array state should stay wrapped: %v", got)
	}
}

func TestFamily_Controls(t *testing.T) {
	sauna, _ := DefaultFamilies().Lookup(TypeSaunaBox)

	desc := sauna.Describe()
	if desc.Type != TypeSaunaBox {
		t.Errorf("Type = %s", desc.Type)
	}
	if !slices.Equal(desc.Controls, []string{"setSimpleHeatState", "setSimpleHeatDesiredTemperature"}) {
		t.Errorf("Controls = %v", desc.Controls)
	}

	cmd, ok := sauna.Control("setSimpleHeatDesiredTemperature")
	if !ok || cmd.Path != "/s/t/{0}" {
		t.Errorf("Control() = %+v, %v", cmd, ok)
	}
	if _, ok := sauna.Control("setSimpleRelayState"); ok {
		t.Error("foreign control accepted")
	}

	sensor, _ := DefaultFamilies().Lookup(TypeTempSensor)
	if len(sensor.Describe().Controls) != 0 {
		t.Error("sensor should have no controls")
	}
}
