package main

import (
	"math/rand"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	geojson "github.com/paulmach/go.geojson"
)

type hotspot struct {
	City    string
	Country string
	Lat     float64
	Lon     float64
	Weight  float64
}

// hotspots concentrate synthetic detections where a patrol fleet would
// actually fly. Weights skew the draw, big hubs light up more often.
var hotspots = []hotspot{
	{"Nairobi", "KE", -1.2921, 36.8219, 5},
	{"Lagos", "NG", 6.5244, 3.3792, 5},
	{"Cairo", "EG", 30.0444, 31.2357, 4},
	{"Karachi", "PK", 24.8607, 67.0011, 4},
	{"Bogota", "CO", 4.7110, -74.0721, 4},
	{"Caracas", "VE", 10.4806, -66.9036, 3},
	{"Manila", "PH", 14.5995, 120.9842, 3},
	{"Mexico City", "MX", 19.4326, -99.1332, 3},
	{"Johannesburg", "ZA", -26.2041, 28.0473, 3},
	{"Rio de Janeiro", "BR", -22.9068, -43.1729, 3},
	{"Mumbai", "IN", 19.0760, 72.8777, 2},
	{"Jakarta", "ID", -6.2088, 106.8456, 2},
	{"Istanbul", "TR", 41.0082, 28.9784, 2},
	{"Kyiv", "UA", 50.4501, 30.5234, 2},
	{"Marseille", "FR", 43.2965, 5.3698, 1},
	{"Detroit", "US", 42.3314, -83.0458, 1},
}

var violenceTypes = []string{
	"physical altercation",
	"armed robbery in progress",
	"crowd disturbance",
	"assault with a knife",
	"gunfire detected near crowd",
	"property destruction",
	"group brawl with blunt weapons",
}

var actionSets = [][]string{
	{"dispatch ground unit", "maintain aerial observation"},
	{"alert local authorities", "track subjects"},
	{"request medical standby", "continue monitoring"},
	{"establish perimeter", "await reinforcement"},
}

// Generator produces synthetic detection features. Deterministic for a fixed
// seed, which keeps integration tests reproducible.
type Generator struct {
	rng         *rand.Rand
	totalWeight float64
}

func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	total := 0.0
	for _, h := range hotspots {
		total += h.Weight
	}
	return &Generator{rng: rand.New(rand.NewSource(seed)), totalWeight: total}
}

func (g *Generator) pickHotspot() hotspot {
	r := g.rng.Float64() * g.totalWeight
	for _, h := range hotspots {
		r -= h.Weight
		if r <= 0 {
			return h
		}
	}
	return hotspots[len(hotspots)-1]
}

// Next builds one event feature at the given observation time.
func (g *Generator) Next(now time.Time) ([]byte, error) {
	h := g.pickHotspot()
	lat := h.Lat + (g.rng.Float64()-0.5)*0.3
	lon := h.Lon + (g.rng.Float64()-0.5)*0.3

	risk := "low"
	switch r := g.rng.Float64(); {
	case r < 0.15:
		risk = "high"
	case r < 0.5:
		risk = "medium"
	}

	violence := violenceTypes[g.rng.Intn(len(violenceTypes))]
	weapons := risk == "high" || g.rng.Float64() < 0.2

	f := geojson.NewPointFeature([]float64{lon, lat})
	f.SetProperty("id", uuid.NewString())
	f.SetProperty("timestamp", now.UTC().Format(time.RFC3339Nano))
	f.SetProperty("country", h.Country)
	f.SetProperty("analysis", map[string]interface{}{
		"risk_level":           risk,
		"violence_type":        violence,
		"num_people":           1 + g.rng.Intn(12),
		"weapons_present":      weapons,
		"recommended_actions":  actionSets[g.rng.Intn(len(actionSets))],
		"detection_confidence": 0.5 + g.rng.Float64()*0.5,
	})
	return json.Marshal(f)
}
