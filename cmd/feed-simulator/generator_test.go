package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudorandom/threat-map/pkg/threatmap"
)

func TestGeneratorProducesDecodableFeatures(t *testing.T) {
	gen := NewGenerator(42)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		raw, err := gen.Next(now)
		require.NoError(t, err)

		ev, err := threatmap.DecodeFeature(raw)
		require.NoError(t, err, "generated feature must decode: %s", raw)

		require.False(t, seen[ev.ID], "duplicate generated ID %s", ev.ID)
		seen[ev.ID] = true

		assert.True(t, ev.Timestamp.Equal(now))
		assert.NotEmpty(t, ev.Country)
		assert.InDelta(t, 0, ev.Lat, 90)
		assert.InDelta(t, 0, ev.Lon, 180)

		switch ev.Analysis.RiskLevel {
		case threatmap.RiskLow, threatmap.RiskMedium, threatmap.RiskHigh:
		default:
			t.Fatalf("unexpected risk level %q", ev.Analysis.RiskLevel)
		}
		assert.Greater(t, ev.Analysis.NumPeople, 0)
		assert.GreaterOrEqual(t, ev.Analysis.DetectionConfidence, 0.5)
	}
}

func TestGeneratorNearHotspots(t *testing.T) {
	gen := NewGenerator(7)
	now := time.Now()

	near := func(ev threatmap.Event) bool {
		for _, h := range hotspots {
			if ev.Country == h.Country &&
				ev.Lat > h.Lat-0.2 && ev.Lat < h.Lat+0.2 &&
				ev.Lon > h.Lon-0.2 && ev.Lon < h.Lon+0.2 {
				return true
			}
		}
		return false
	}

	for i := 0; i < 50; i++ {
		raw, err := gen.Next(now)
		require.NoError(t, err)
		ev, err := threatmap.DecodeFeature(raw)
		require.NoError(t, err)
		assert.True(t, near(ev), "event at (%f, %f) in %s is not near any hotspot", ev.Lat, ev.Lon, ev.Country)
	}
}

func TestGeneratorHighRiskCarriesWeapons(t *testing.T) {
	gen := NewGenerator(3)
	now := time.Now()
	highs := 0
	for i := 0; i < 300; i++ {
		raw, err := gen.Next(now)
		require.NoError(t, err)
		ev, err := threatmap.DecodeFeature(raw)
		require.NoError(t, err)
		if ev.Analysis.RiskLevel == threatmap.RiskHigh {
			highs++
			assert.True(t, ev.Analysis.WeaponsPresent, "high risk event without weapons flag")
		}
	}
	assert.Greater(t, highs, 0, "300 draws produced no high risk events")
}
