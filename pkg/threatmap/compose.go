package threatmap

import "image/color"

// RenderedEvent is one event placed on screen, ready for a rendering shell.
type RenderedEvent struct {
	Event      Event
	ScreenX    float64
	ScreenY    float64
	IsSelected bool
	Color      color.RGBA
}

// ComputeRenderModel joins the event set, the viewport and the projector into
// screen-space markers. The transform order is translate-then-scale:
//
//	screen = (projected + translate) * scale
//
// The function is pure; callers may invoke it on every frame with whatever
// snapshot they last received from the store.
func ComputeRenderModel(events []Event, vp Viewport, selectionID string, width, height float64) []RenderedEvent {
	model := make([]RenderedEvent, 0, len(events))
	for _, ev := range events {
		x, y := Project(ev.Lat, ev.Lon, width, height)
		model = append(model, RenderedEvent{
			Event:      ev,
			ScreenX:    (x + vp.TranslateX) * vp.Scale,
			ScreenY:    (y + vp.TranslateY) * vp.Scale,
			IsSelected: ev.ID == selectionID,
			Color:      RiskColor(ev.Analysis.RiskLevel),
		})
	}
	return model
}

// SelectEvent returns requestedID if it names an event in the set, otherwise
// the previous selection unchanged. Selecting an unknown ID is a no-op, not an
// error: the feed may have replaced the set between the click and the lookup.
func SelectEvent(events []Event, requestedID, previousID string) string {
	for _, ev := range events {
		if ev.ID == requestedID {
			return requestedID
		}
	}
	return previousID
}
