package threatmap

import (
	"io"
	"os"

	geojson "github.com/paulmach/go.geojson"

	"github.com/sudorandom/threat-map/pkg/utils"
)

// WorldGeoJSONURL is the country-outline dataset the renderer uses for its
// basemap. Downloaded once and cached on disk; the engine works without it,
// markers just float on a blank ocean.
const WorldGeoJSONURL = "https://raw.githubusercontent.com/johan/world.geo.json/master/countries.geo.json"

// LoadBasemap reads a world FeatureCollection from a local file.
func LoadBasemap(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(data)
}

// FetchBasemap downloads (or reuses the cached copy of) the world outline
// dataset.
func FetchBasemap() (*geojson.FeatureCollection, error) {
	r, err := utils.GetCachedReader(WorldGeoJSONURL, true, "[basemap]")
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(data)
}
