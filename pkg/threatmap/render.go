package threatmap

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	geojson "github.com/paulmach/go.geojson"
)

var (
	oceanColor   = color.RGBA{8, 10, 15, 255}
	landColor    = color.RGBA{26, 29, 35, 255}
	outlineColor = color.RGBA{36, 42, 53, 255}
	selectColor  = color.RGBA{255, 255, 255, 255}
)

// Renderer rasterizes the render model onto a world basemap. It is the
// repository's stand-in for the presentational shell: everything it consumes
// comes out of ComputeRenderModel and the viewport, nothing flows back in.
type Renderer struct {
	width, height int
	world         *geojson.FeatureCollection
}

func NewRenderer(width, height int, world *geojson.FeatureCollection) *Renderer {
	return &Renderer{width: width, height: height, world: world}
}

// RenderFrame draws the basemap under the given viewport and then the event
// markers on top. Markers are colored by risk, sized by severity, and the
// selected event gets a white ring.
func (r *Renderer) RenderFrame(model []RenderedEvent, vp Viewport) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{oceanColor}, image.Point{}, draw.Src)

	if r.world != nil {
		for _, f := range r.world.Features {
			if f.Geometry == nil {
				continue
			}
			if f.Geometry.IsPolygon() {
				r.fillPolygon(img, f.Geometry.Polygon, vp, landColor)
				for _, ring := range f.Geometry.Polygon {
					r.drawRing(img, ring, vp, outlineColor)
				}
			} else if f.Geometry.IsMultiPolygon() {
				for _, poly := range f.Geometry.MultiPolygon {
					r.fillPolygon(img, poly, vp, landColor)
					for _, ring := range poly {
						r.drawRing(img, ring, vp, outlineColor)
					}
				}
			}
		}
	}

	for _, re := range model {
		radius := 4.0 + SeverityScore(re.Event)*8.0
		r.fillCircle(img, re.ScreenX, re.ScreenY, radius, re.Color)
		if re.IsSelected {
			r.strokeCircle(img, re.ScreenX, re.ScreenY, radius+3, selectColor)
		}
	}
	return img
}

// screen projects a basemap coordinate and applies the viewport transform,
// matching what ComputeRenderModel does for events.
func (r *Renderer) screen(lat, lon float64, vp Viewport) (float64, float64) {
	x, y := Project(lat, lon, float64(r.width), float64(r.height))
	return (x + vp.TranslateX) * vp.Scale, (y + vp.TranslateY) * vp.Scale
}

func (r *Renderer) fillPolygon(img *image.RGBA, rings [][][]float64, vp Viewport, c color.RGBA) {
	if len(rings) == 0 {
		return
	}
	type point struct{ x, y float64 }
	projected := make([][]point, len(rings))
	minY, maxY := float64(r.height), 0.0
	for i, ring := range rings {
		projected[i] = make([]point, len(ring))
		for j, p := range ring {
			x, y := r.screen(p[1], p[0], vp)
			projected[i][j] = point{x, y}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	for y := int(minY); y <= int(maxY); y++ {
		if y < 0 || y >= r.height {
			continue
		}
		var nodes []int
		fy := float64(y)
		for _, ring := range projected {
			for i := 0; i < len(ring); i++ {
				j := (i + 1) % len(ring)
				if (ring[i].y < fy && ring[j].y >= fy) || (ring[j].y < fy && ring[i].y >= fy) {
					nodeX := ring[i].x + (fy-ring[i].y)/(ring[j].y-ring[i].y)*(ring[j].x-ring[i].x)
					nodes = append(nodes, int(nodeX))
				}
			}
		}
		sort.Ints(nodes)
		for i := 0; i < len(nodes)-1; i += 2 {
			xs, xe := nodes[i], nodes[i+1]
			if xs < 0 {
				xs = 0
			}
			if xe >= r.width {
				xe = r.width - 1
			}
			for x := xs; x < xe; x++ {
				off := y*img.Stride + x*4
				img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, 255
			}
		}
	}
}

func (r *Renderer) drawRing(img *image.RGBA, coords [][]float64, vp Viewport, c color.RGBA) {
	for i := 0; i < len(coords)-1; i++ {
		x1, y1 := r.screen(coords[i][1], coords[i][0], vp)
		x2, y2 := r.screen(coords[i+1][1], coords[i+1][0], vp)
		r.drawLine(img, int(x1), int(y1), int(x2), int(y2), c)
	}
}

// drawLine is Bresenham's algorithm with canvas clipping.
func (r *Renderer) drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx, dy := math.Abs(float64(x2-x1)), math.Abs(float64(y2-y1))
	sx, sy := -1, -1
	if x1 < x2 {
		sx = 1
	}
	if y1 < y2 {
		sy = 1
	}
	err := dx - dy
	for {
		if x1 >= 0 && x1 < r.width && y1 >= 0 && y1 < r.height {
			off := y1*img.Stride + x1*4
			img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, 255
		}
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (r *Renderer) fillCircle(img *image.RGBA, cx, cy, radius float64, c color.RGBA) {
	for y := int(cy - radius); y <= int(cy+radius); y++ {
		if y < 0 || y >= r.height {
			continue
		}
		for x := int(cx - radius); x <= int(cx+radius); x++ {
			if x < 0 || x >= r.width {
				continue
			}
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy <= radius*radius {
				off := y*img.Stride + x*4
				img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, c.A
			}
		}
	}
}

func (r *Renderer) strokeCircle(img *image.RGBA, cx, cy, radius float64, c color.RGBA) {
	steps := int(radius * 8)
	if steps < 16 {
		steps = 16
	}
	for i := 0; i < steps; i++ {
		a := float64(i) / float64(steps) * 2 * math.Pi
		x, y := int(cx+radius*math.Cos(a)), int(cy+radius*math.Sin(a))
		if x >= 0 && x < r.width && y >= 0 && y < r.height {
			off := y*img.Stride + x*4
			img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, 255
		}
	}
}

// CapturePNG writes a rendered frame to dir with a timestamped name and
// returns the path.
func CapturePNG(img image.Image, dir string, timestamp time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("threat-%s.png", timestamp.Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}
