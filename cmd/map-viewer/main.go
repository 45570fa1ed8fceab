package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sudorandom/threat-map/pkg/config"
	"github.com/sudorandom/threat-map/pkg/logging"
	"github.com/sudorandom/threat-map/pkg/threatmap"
	"github.com/sudorandom/threat-map/pkg/transport"
)

var (
	configFlag  = flag.String("config", "config.yaml", "Path to the YAML config file")
	backendFlag = flag.String("backend", "", "Backend base URL (overrides config)")
	framesFlag  = flag.String("frames", "", "Directory to write PNG frames into (overrides config)")
	widthFlag   = flag.Int("width", 0, "Canvas width (overrides config)")
	heightFlag  = flag.Int("height", 0, "Canvas height (overrides config)")
	noMapFlag   = flag.Bool("no-basemap", false, "Skip the world basemap download")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		boot := logging.Init("info", "console")
		boot.Fatal().Err(err).Msg("loading config")
	}
	if *backendFlag != "" {
		cfg.Backend.URL = *backendFlag
	}
	if *framesFlag != "" {
		cfg.Viewer.FrameDir = *framesFlag
	}
	if *widthFlag > 0 {
		cfg.Viewer.Width = *widthFlag
	}
	if *heightFlag > 0 {
		cfg.Viewer.Height = *heightFlag
	}

	logger := logging.Init(cfg.Log.Level, cfg.Log.Format)
	logger.Info().Str("backend", cfg.Backend.URL).Msg("starting map viewer")

	renderer := buildRenderer(cfg, *noMapFlag)

	client := transport.NewClient(cfg.Backend.URL,
		transport.WithLogger(logger),
		transport.WithStreamTransport(transport.StreamTransport(cfg.Backend.StreamTransport)),
	)
	store := threatmap.NewStore(client,
		threatmap.WithPollInterval(cfg.Backend.PollInterval),
		threatmap.WithLogger(logger),
	)
	tracker := threatmap.NewActivityTracker()

	var mu sync.Mutex
	var latest []threatmap.Event
	var selection string
	prev := make(map[string]threatmap.Event)

	sub := store.Subscribe(func(n threatmap.Notification) {
		mu.Lock()
		defer mu.Unlock()
		if n.State == threatmap.StateError {
			logger.Error().Err(n.Err).Msg("store entered error state")
			return
		}
		for _, ev := range n.Events {
			old, ok := prev[ev.ID]
			if !ok || !old.Timestamp.Equal(ev.Timestamp) {
				tracker.Record(ev)
			}
			prev[ev.ID] = ev
		}
		latest = n.Events
	})
	defer store.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	store.Start(ctx)
	defer store.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	vp := threatmap.ResetViewport()
	ticker := time.NewTicker(cfg.Viewer.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			logger.Info().Msg("shutting down")
			cancel()
			return
		case <-ticker.C:
		}

		mu.Lock()
		events := latest
		// Keep the sticky selection pointed at the most severe current
		// event; if it left the set, the prior selection sticks.
		if candidate := pickSelection(events); candidate != "" {
			selection = threatmap.SelectEvent(events, candidate, selection)
		}
		sel := selection
		mu.Unlock()

		sorted := threatmap.SortEvents(events, cfg.Viewer.SortKey)
		model := threatmap.ComputeRenderModel(sorted, vp, sel, float64(cfg.Viewer.Width), float64(cfg.Viewer.Height))
		img := renderer.RenderFrame(model, vp)
		if cfg.Viewer.FrameDir != "" {
			if path, err := threatmap.CapturePNG(img, cfg.Viewer.FrameDir, time.Now()); err != nil {
				logger.Error().Err(err).Msg("writing frame")
			} else {
				logger.Debug().Str("path", path).Int("events", len(model)).Msg("frame written")
			}
		}

		high, medium, low := tracker.Rates()
		logEvent := logger.Info().
			Int("events", len(events)).
			Float64("high_rate", high).
			Float64("medium_rate", medium).
			Float64("low_rate", low)
		for _, cr := range tracker.TopCountries(3) {
			logEvent = logEvent.Str("hub_"+cr.Code, cr.Name)
		}
		logEvent.Msg("status")
	}
}

func buildRenderer(cfg *config.Config, noBasemap bool) *threatmap.Renderer {
	if noBasemap {
		return threatmap.NewRenderer(cfg.Viewer.Width, cfg.Viewer.Height, nil)
	}
	world, err := threatmap.FetchBasemap()
	if err != nil {
		l := logging.Init(cfg.Log.Level, cfg.Log.Format)
		l.Warn().Err(err).Msg("basemap unavailable, rendering without it")
		world = nil
	}
	return threatmap.NewRenderer(cfg.Viewer.Width, cfg.Viewer.Height, world)
}

// pickSelection returns the ID of the most severe event, preferring recency on
// ties, or "" for an empty set.
func pickSelection(events []threatmap.Event) string {
	best := ""
	bestScore := -1.0
	for _, ev := range events {
		if score := threatmap.SeverityScore(ev); score > bestScore {
			bestScore = score
			best = ev.ID
		}
	}
	return best
}
