package threatmap

import (
	"math"
	"testing"
)

func TestComputeRenderModel(t *testing.T) {
	events := []Event{
		{ID: "center", Lat: 0, Lon: 0, Analysis: Analysis{RiskLevel: RiskHigh}},
		{ID: "east", Lat: 0, Lon: 90, Analysis: Analysis{RiskLevel: RiskLow}},
	}

	// Identity viewport: markers land exactly where the projector puts them.
	model := ComputeRenderModel(events, ResetViewport(), "east", 800, 400)
	if len(model) != 2 {
		t.Fatalf("got %d rendered events; want 2", len(model))
	}
	if model[0].ScreenX != 400 || model[0].ScreenY != 200 {
		t.Errorf("center marker at (%f, %f); want (400, 200)", model[0].ScreenX, model[0].ScreenY)
	}
	if model[0].IsSelected || !model[1].IsSelected {
		t.Error("selection flag set on the wrong marker")
	}
	if model[0].Color != ColorHigh || model[1].Color != ColorLow {
		t.Error("markers carry the wrong risk colors")
	}

	// Translate-then-scale: the offset is applied before the scale multiplies it.
	vp := Viewport{Scale: 2, TranslateX: 10, TranslateY: -20}
	model = ComputeRenderModel(events, vp, "", 800, 400)
	if math.Abs(model[0].ScreenX-820) > 1e-9 || math.Abs(model[0].ScreenY-360) > 1e-9 {
		t.Errorf("transformed marker at (%f, %f); want (820, 360)", model[0].ScreenX, model[0].ScreenY)
	}
	for _, m := range model {
		if m.IsSelected {
			t.Errorf("event %s selected with empty selection ID", m.Event.ID)
		}
	}
}

func TestComputeRenderModelEmpty(t *testing.T) {
	model := ComputeRenderModel(nil, ResetViewport(), "x", 800, 400)
	if len(model) != 0 {
		t.Errorf("got %d markers from an empty set", len(model))
	}
}

func TestSelectEvent(t *testing.T) {
	events := []Event{{ID: "a"}, {ID: "b"}}
	tests := []struct {
		requested, previous, want string
	}{
		{"a", "", "a"},
		{"b", "a", "b"},
		{"gone", "a", "a"}, // Unknown ID keeps the previous selection
		{"gone", "", ""},
		{"", "a", "a"},
	}
	for _, tt := range tests {
		if got := SelectEvent(events, tt.requested, tt.previous); got != tt.want {
			t.Errorf("SelectEvent(%q, %q) = %q; want %q", tt.requested, tt.previous, got, tt.want)
		}
	}
}
