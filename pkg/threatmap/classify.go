package threatmap

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// weaponKeywords maps free-text mentions to the normalized weapon type the
// rest of the pipeline uses. The analysis model upstream emits prose
// ("two subjects, one carrying a handgun"), so keyword matching is the only
// signal when the structured weapon_types array is missing.
var weaponKeywords = []struct {
	Keyword string
	Type    string
}{
	{"handgun", "firearm"},
	{"pistol", "firearm"},
	{"rifle", "firearm"},
	{"firearm", "firearm"},
	{"gun", "firearm"},
	{"shotgun", "firearm"},
	{"knife", "blade"},
	{"blade", "blade"},
	{"machete", "blade"},
	{"bat", "blunt"},
	{"club", "blunt"},
	{"crowbar", "blunt"},
	{"explosive", "explosive"},
	{"grenade", "explosive"},
	{"ied", "explosive"},
}

// WeaponClassifier scans analysis free text for weapon mentions.
type WeaponClassifier struct {
	matcher *ahocorasick.Matcher
}

// NewWeaponClassifier builds the Aho-Corasick dictionary once; Match calls
// are then allocation-light and safe for concurrent use.
func NewWeaponClassifier() *WeaponClassifier {
	dict := make([]string, len(weaponKeywords))
	for i, kw := range weaponKeywords {
		dict[i] = kw.Keyword
	}
	return &WeaponClassifier{matcher: ahocorasick.NewStringMatcher(dict)}
}

// Classify returns the normalized weapon types mentioned anywhere in the
// analysis text fields, deduplicated, ordered by first mention.
func (c *WeaponClassifier) Classify(a Analysis) []string {
	var sb strings.Builder
	sb.WriteString(a.ViolenceType)
	for _, action := range a.RecommendedActions {
		sb.WriteByte(' ')
		sb.WriteString(action)
	}
	hits := c.matcher.Match([]byte(strings.ToLower(sb.String())))
	if len(hits) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(hits))
	var types []string
	for _, idx := range hits {
		t := weaponKeywords[idx].Type
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types
}

var defaultClassifier = NewWeaponClassifier()

// NormalizeWeapons fills in WeaponTypes from the analysis text when the feed
// flags weapons but does not say which. Already-populated payloads are left
// alone.
func NormalizeWeapons(a *Analysis) {
	if !a.WeaponsPresent || len(a.WeaponTypes) > 0 {
		return
	}
	a.WeaponTypes = defaultClassifier.Classify(*a)
}
