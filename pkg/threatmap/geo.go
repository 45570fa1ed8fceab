package threatmap

import "math"

// Project maps WGS84 degrees onto a canvas of the given size using a linear
// longitude axis and a Mercator latitude axis. It is total for lat within
// about [-85, 85]; closer to the poles the Mercator term grows without bound
// and the returned y is simply far off-canvas, which is fine for a threat map
// that has nothing to plot there.
func Project(lat, lon float64, width, height float64) (x, y float64) {
	x = (lon + 180) * (width / 360)
	latRad := lat * math.Pi / 180
	mercN := math.Log(math.Tan(math.Pi/4 + latRad/2))
	y = height/2 - width*mercN/(2*math.Pi)
	return x, y
}
