package threatmap

// Scale bounds for the viewport. Requested scales outside the range are
// clamped, never rejected.
const (
	MinScale = 0.5
	MaxScale = 4.0
)

// Viewport is the pan/zoom transform applied after projection. It is a plain
// value: every transition returns a whole new Viewport, so concurrent readers
// can never observe a half-applied update.
type Viewport struct {
	Scale      float64
	TranslateX float64
	TranslateY float64
}

// ResetViewport returns the identity viewport.
func ResetViewport() Viewport {
	return Viewport{Scale: 1}
}

// Zoom applies one wheel step: positive deltas shrink the scale by 10%,
// negative deltas grow it by 10%, clamped to [MinScale, MaxScale]. The
// translation is untouched.
func Zoom(v Viewport, wheelDelta float64) Viewport {
	if wheelDelta > 0 {
		v.Scale *= 0.9
	} else {
		v.Scale *= 1.1
	}
	if v.Scale < MinScale {
		v.Scale = MinScale
	}
	if v.Scale > MaxScale {
		v.Scale = MaxScale
	}
	return v
}

// Pan shifts the translation by (dx, dy). There is no clamp: panning content
// fully off-canvas is allowed and expected at extreme offsets.
func Pan(v Viewport, dx, dy float64) Viewport {
	v.TranslateX += dx
	v.TranslateY += dy
	return v
}
