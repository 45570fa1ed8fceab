package threatmap

import (
	"testing"
	"time"
)

const sampleFeature = `{
	"type": "Feature",
	"properties": {
		"id": "evt-1",
		"timestamp": "2026-08-30T12:00:00Z",
		"country": "FR",
		"analysis": {
			"risk_level": "high",
			"violence_type": "armed_confrontation",
			"num_people": 4,
			"weapons_present": true,
			"weapon_types": ["firearm"],
			"recommended_actions": ["dispatch"],
			"detection_confidence": 0.92
		}
	},
	"geometry": {"type": "Point", "coordinates": [2.3522, 48.8566]}
}`

func TestDecodeFeature(t *testing.T) {
	ev, err := DecodeFeature([]byte(sampleFeature))
	if err != nil {
		t.Fatalf("DecodeFeature: %v", err)
	}
	if ev.ID != "evt-1" || ev.Country != "FR" {
		t.Errorf("decoded identity = (%q, %q)", ev.ID, ev.Country)
	}
	if !ev.Timestamp.Equal(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
	// GeoJSON is [lon, lat]; make sure the axes did not get swapped.
	if ev.Lat != 48.8566 || ev.Lon != 2.3522 {
		t.Errorf("coordinates = (%f, %f); want lat 48.8566, lon 2.3522", ev.Lat, ev.Lon)
	}
	if ev.Analysis.RiskLevel != RiskHigh || !ev.Analysis.WeaponsPresent || ev.Analysis.NumPeople != 4 {
		t.Errorf("analysis = %+v", ev.Analysis)
	}
}

func TestDecodeFeatureErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{broken`},
		{"missing id", `{"type":"Feature","properties":{"analysis":{"risk_level":"low"}},"geometry":{"type":"Point","coordinates":[0,0]}}`},
		{"no geometry", `{"type":"Feature","properties":{"id":"x","analysis":{"risk_level":"low"}}}`},
		{"wrong geometry", `{"type":"Feature","properties":{"id":"x"},"geometry":{"type":"Polygon","coordinates":[0,0]}}`},
		{"short coordinates", `{"type":"Feature","properties":{"id":"x"},"geometry":{"type":"Point","coordinates":[1]}}`},
	}
	for _, tt := range tests {
		if _, err := DecodeFeature([]byte(tt.data)); err == nil {
			t.Errorf("%s: expected decode error", tt.name)
		}
	}
}

func TestDecodeFeatureCollection(t *testing.T) {
	payload := `{"type":"FeatureCollection","features":[` + sampleFeature + `]}`
	events, err := DecodeFeatureCollection([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeFeatureCollection: %v", err)
	}
	if len(events) != 1 || events[0].ID != "evt-1" {
		t.Errorf("decoded %d events, first %q", len(events), events[0].ID)
	}

	if _, err := DecodeFeatureCollection([]byte(`{"type":"Feature"}`)); err == nil {
		t.Error("wrong top-level type should be rejected")
	}

	// One bad feature poisons the whole snapshot.
	bad := `{"type":"FeatureCollection","features":[` + sampleFeature + `,{"type":"Feature","properties":{}}]}`
	if _, err := DecodeFeatureCollection([]byte(bad)); err == nil {
		t.Error("snapshot with an undecodable feature should fail")
	}

	empty, err := DecodeFeatureCollection([]byte(`{"type":"FeatureCollection","features":[]}`))
	if err != nil || len(empty) != 0 {
		t.Errorf("empty collection: events=%d err=%v", len(empty), err)
	}
}

func TestDecodeFeatureFillsWeaponTypes(t *testing.T) {
	data := `{
		"type": "Feature",
		"properties": {
			"id": "evt-2",
			"timestamp": "2026-08-30T12:00:00Z",
			"analysis": {
				"risk_level": "high",
				"violence_type": "man swinging a machete at a crowd",
				"weapons_present": true
			}
		},
		"geometry": {"type": "Point", "coordinates": [0, 0]}
	}`
	ev, err := DecodeFeature([]byte(data))
	if err != nil {
		t.Fatalf("DecodeFeature: %v", err)
	}
	if len(ev.Analysis.WeaponTypes) != 1 || ev.Analysis.WeaponTypes[0] != "blade" {
		t.Errorf("weapon types = %v; want [blade] inferred from the description", ev.Analysis.WeaponTypes)
	}
}
