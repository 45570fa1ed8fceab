// Package threatmap provides the core logic for the live threat-event map
// engine: the event model, the geographic projector, the pan/zoom viewport,
// the event store with its subscription registry, and the composition layer
// that turns all of it into a renderable model.
package threatmap

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// RiskLevel classifies the severity of a detection.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Analysis is the structured detection payload attached to every event. The
// engine treats it as opaque apart from RiskLevel; the remaining fields are
// carried through for the rendering shell and the severity score.
type Analysis struct {
	RiskLevel           RiskLevel `json:"risk_level"`
	ViolenceType        string    `json:"violence_type"`
	NumPeople           int       `json:"num_people"`
	WeaponsPresent      bool      `json:"weapons_present"`
	WeaponTypes         []string  `json:"weapon_types,omitempty"`
	RecommendedActions  []string  `json:"recommended_actions,omitempty"`
	DetectionConfidence float64   `json:"detection_confidence,omitempty"`
}

// Event is a single geotagged detection. Events are immutable once decoded;
// an update for an existing ID replaces the whole record in the store.
type Event struct {
	ID        string
	Timestamp time.Time
	Lat, Lon  float64
	Country   string
	Analysis  Analysis
}

// feature is the wire shape of one event: a GeoJSON Feature with a Point
// geometry in [lon, lat] order and the detection payload under properties.
type feature struct {
	Type       string `json:"type"`
	Properties struct {
		ID        string    `json:"id"`
		Timestamp time.Time `json:"timestamp"`
		Country   string    `json:"country,omitempty"`
		Analysis  Analysis  `json:"analysis"`
	} `json:"properties"`
	Geometry struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

type featureCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

func (f *feature) toEvent() (Event, error) {
	if f.Properties.ID == "" {
		return Event{}, fmt.Errorf("feature has no id")
	}
	if f.Geometry.Type != "Point" || len(f.Geometry.Coordinates) < 2 {
		return Event{}, fmt.Errorf("feature %q has no point geometry", f.Properties.ID)
	}
	ev := Event{
		ID:        f.Properties.ID,
		Timestamp: f.Properties.Timestamp,
		Lon:       f.Geometry.Coordinates[0],
		Lat:       f.Geometry.Coordinates[1],
		Country:   f.Properties.Country,
		Analysis:  f.Properties.Analysis,
	}
	NormalizeWeapons(&ev.Analysis)
	return ev, nil
}

// DecodeFeature parses one streamed message as a single event.
func DecodeFeature(data []byte) (Event, error) {
	var f feature
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, err
	}
	return f.toEvent()
}

// DecodeFeatureCollection parses a full snapshot payload. A snapshot with a
// wrong top-level type is an error; individual features must all decode, since
// a half-usable snapshot is worse than a failed one the caller can retry.
func DecodeFeatureCollection(data []byte) ([]Event, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected FeatureCollection, got %q", fc.Type)
	}
	events := make([]Event, 0, len(fc.Features))
	for _, raw := range fc.Features {
		ev, err := DecodeFeature(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
