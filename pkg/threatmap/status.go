package threatmap

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/biter777/countries"
)

// RateSnapshot is one windowed sample of ingest activity.
type RateSnapshot struct {
	High, Medium, Low int
}

// CountryRate is one entry of the top-activity list.
type CountryRate struct {
	Code  string
	Name  string
	Count int
}

// ActivityTracker keeps windowed per-risk ingest rates and per-country
// activity counts for the status readout. It is fed by the viewer's store
// listener and read by whatever renders status, so it locks internally.
type ActivityTracker struct {
	mu sync.Mutex

	windowHigh, windowMedium, windowLow int
	rateHigh, rateMedium, rateLow       float64

	countryActivity map[string]int

	// history holds the last 60 window snapshots (2s each = 2 minutes).
	history []RateSnapshot
	window  time.Duration
	lastCut time.Time
}

// NewActivityTracker returns a tracker with a 2-second rate window.
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{
		countryActivity: make(map[string]int),
		history:         make([]RateSnapshot, 0, 60),
		window:          2 * time.Second,
		lastCut:         time.Now(),
	}
}

// Record counts one ingested event.
func (t *ActivityTracker) Record(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cutLocked(time.Now())
	switch ev.Analysis.RiskLevel {
	case RiskHigh:
		t.windowHigh++
	case RiskMedium:
		t.windowMedium++
	default:
		t.windowLow++
	}
	if ev.Country != "" {
		t.countryActivity[strings.ToUpper(ev.Country)]++
	}
}

// Rates returns events/second per risk level over the last full window.
func (t *ActivityTracker) Rates() (high, medium, low float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cutLocked(time.Now())
	return t.rateHigh, t.rateMedium, t.rateLow
}

// TopCountries returns the n most active countries since startup, with ISO
// codes resolved to display names where possible.
func (t *ActivityTracker) TopCountries(n int) []CountryRate {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CountryRate, 0, len(t.countryActivity))
	for code, count := range t.countryActivity {
		name := countries.ByName(code).String()
		if name == "Unknown" {
			name = code
		}
		if idx := strings.Index(name, " ("); idx != -1 {
			name = name[:idx]
		}
		out = append(out, CountryRate{Code: code, Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// History returns a copy of the retained window snapshots, oldest first.
func (t *ActivityTracker) History() []RateSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RateSnapshot, len(t.history))
	copy(out, t.history)
	return out
}

// cutLocked rolls the current window into history once it has elapsed.
func (t *ActivityTracker) cutLocked(now time.Time) {
	if now.Sub(t.lastCut) < t.window {
		return
	}
	secs := now.Sub(t.lastCut).Seconds()
	t.rateHigh = float64(t.windowHigh) / secs
	t.rateMedium = float64(t.windowMedium) / secs
	t.rateLow = float64(t.windowLow) / secs
	t.history = append(t.history, RateSnapshot{
		High:   t.windowHigh,
		Medium: t.windowMedium,
		Low:    t.windowLow,
	})
	if len(t.history) > 60 {
		t.history = t.history[len(t.history)-60:]
	}
	t.windowHigh, t.windowMedium, t.windowLow = 0, 0, 0
	t.lastCut = now
}
