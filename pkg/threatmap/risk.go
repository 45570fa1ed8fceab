package threatmap

import (
	"image/color"
	"sort"
	"time"
)

var (
	ColorHigh    = color.RGBA{255, 50, 50, 255}  // Red
	ColorMedium  = color.RGBA{255, 200, 0, 255}  // Yellow
	ColorLow     = color.RGBA{80, 220, 100, 255} // Green
	ColorUnknown = color.RGBA{140, 140, 140, 255}
)

// RiskColor maps a risk level to its marker color. Unrecognized levels get the
// neutral grey rather than an error; feeds occasionally send levels we have
// never seen.
func RiskColor(level RiskLevel) color.RGBA {
	switch level {
	case RiskHigh:
		return ColorHigh
	case RiskMedium:
		return ColorMedium
	case RiskLow:
		return ColorLow
	}
	return ColorUnknown
}

// RiskOrder maps a risk level to its sort weight. Higher is more severe;
// unrecognized levels sort last.
func RiskOrder(level RiskLevel) int {
	switch level {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	}
	return 0
}

// SortEvents returns a new slice ordered by the given key: "risk" sorts by
// RiskOrder descending, anything else by timestamp descending. The sort is
// stable, so events that compare equal keep their input order. The input is
// never mutated.
func SortEvents(events []Event, key string) []Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	switch key {
	case "risk":
		sort.SliceStable(sorted, func(i, j int) bool {
			return RiskOrder(sorted[i].Analysis.RiskLevel) > RiskOrder(sorted[j].Analysis.RiskLevel)
		})
	default:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		})
	}
	return sorted
}

// TimeRange is an inclusive [Start, End] bound.
type TimeRange struct {
	Start, End time.Time
}

// Criteria selects events for FilterEvents. Zero-valued fields are not applied.
type Criteria struct {
	RiskLevel RiskLevel
	TimeRange *TimeRange
}

// FilterEvents returns the events matching every set criterion, preserving
// input order. The input is never mutated.
func FilterEvents(events []Event, c Criteria) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if c.RiskLevel != "" && ev.Analysis.RiskLevel != c.RiskLevel {
			continue
		}
		if c.TimeRange != nil {
			if ev.Timestamp.Before(c.TimeRange.Start) || ev.Timestamp.After(c.TimeRange.End) {
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}

// SeverityScore condenses an event's analysis into a [0, 1] score: the base
// weight of its risk level, raised for weapons and crowd size.
func SeverityScore(ev Event) float64 {
	base := 0.3
	switch ev.Analysis.RiskLevel {
	case RiskHigh:
		base = 1.0
	case RiskMedium:
		base = 0.6
	}
	if ev.Analysis.WeaponsPresent {
		base *= 1.5
	}
	people := float64(ev.Analysis.NumPeople) / 10
	if people > 1 {
		people = 1
	}
	base *= 1 + people
	if base > 1 {
		base = 1
	}
	return base
}
