package main

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sudorandom/threat-map/pkg/threatmap"
)

type eventRecord struct {
	ID        string
	Timestamp time.Time
	Risk      threatmap.RiskLevel
	Lat, Lon  float64
	Raw       json.RawMessage
}

// Server is the simulated sensing backend: it holds the event history, serves
// the snapshot/detail/heatmap endpoints, and fans live events out over
// /events/stream as SSE or websocket depending on what the client asks for.
type Server struct {
	log     zerolog.Logger
	journal *Journal

	mu     sync.RWMutex
	events map[string]eventRecord

	subMu sync.Mutex
	subs  map[chan []byte]struct{}

	upgrader websocket.Upgrader

	registry    *prometheus.Registry
	eventsTotal *prometheus.CounterVec
	subscribers prometheus.Gauge
}

func NewServer(log zerolog.Logger, journal *Journal) *Server {
	reg := prometheus.NewRegistry()
	s := &Server{
		log:      log,
		journal:  journal,
		events:   make(map[string]eventRecord),
		subs:     make(map[chan []byte]struct{}),
		registry: reg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		eventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "feed_events_total",
			Help: "Events ingested into the simulated feed, by risk level.",
		}, []string{"risk_level"}),
		subscribers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "feed_stream_subscribers",
			Help: "Currently connected stream subscribers.",
		}),
	}
	return s
}

// Replay loads the journal back into memory without re-publishing.
func (s *Server) Replay() error {
	count := 0
	err := s.journal.ForEach(func(id string, payload []byte) error {
		rec, err := decodeRecord(payload)
		if err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("skipping corrupt journal entry")
			return nil
		}
		s.mu.Lock()
		s.events[rec.ID] = rec
		s.mu.Unlock()
		count++
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info().Int("events", count).Msg("journal replayed")
	return nil
}

func decodeRecord(raw []byte) (eventRecord, error) {
	ev, err := threatmap.DecodeFeature(raw)
	if err != nil {
		return eventRecord{}, err
	}
	return eventRecord{
		ID:        ev.ID,
		Timestamp: ev.Timestamp,
		Risk:      ev.Analysis.RiskLevel,
		Lat:       ev.Lat,
		Lon:       ev.Lon,
		Raw:       append(json.RawMessage(nil), raw...),
	}, nil
}

// Ingest validates, stores, journals and publishes one feature.
func (s *Server) Ingest(raw []byte) (string, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.events[rec.ID] = rec
	s.mu.Unlock()

	if err := s.journal.Append(rec.ID, raw); err != nil {
		s.log.Warn().Err(err).Str("id", rec.ID).Msg("journal append failed")
	}
	s.eventsTotal.WithLabelValues(string(rec.Risk)).Inc()
	s.publish(rec.Raw)
	return rec.ID, nil
}

func (s *Server) publish(payload []byte) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- payload:
		default:
			// Slow subscriber; it will resync from the snapshot endpoint.
		}
	}
}

func (s *Server) subscribe() chan []byte {
	ch := make(chan []byte, 64)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	s.subscribers.Inc()
	return ch
}

func (s *Server) unsubscribe(ch chan []byte) {
	s.subMu.Lock()
	delete(s.subs, ch)
	s.subMu.Unlock()
	s.subscribers.Dec()
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/events", s.handleEvents)
	r.Get("/events/stream", s.handleStream)
	r.Get("/events/{id}", s.handleEvent)
	r.Post("/events", s.handleCreate)
	r.Get("/heatmap", s.handleHeatmap)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// filtered returns records matching the standard query filters, newest first.
func (s *Server) filtered(r *http.Request) ([]eventRecord, error) {
	q := r.URL.Query()
	risk := q.Get("risk_level")
	var start, end time.Time
	var err error
	if v := q.Get("start_time"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			return nil, fmt.Errorf("bad start_time: %w", err)
		}
	}
	if v := q.Get("end_time"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			return nil, fmt.Errorf("bad end_time: %w", err)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]eventRecord, 0, len(s.events))
	for _, rec := range s.events {
		if risk != "" && string(rec.Risk) != risk {
			continue
		}
		if !start.IsZero() && rec.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && rec.Timestamp.After(end) {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.After(records[j].Timestamp) })
	return records, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	records, err := s.filtered(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	features := make([]json.RawMessage, len(records))
	for i, rec := range records {
		features[i] = rec.Raw
	}
	writeJSON(w, map[string]interface{}{
		"type":     "FeatureCollection",
		"features": features,
	})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.RLock()
	rec, ok := s.events[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "event not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(rec.Raw)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var generic map[string]json.RawMessage
	body := json.NewDecoder(r.Body)
	if err := body.Decode(&generic); err != nil {
		http.Error(w, "malformed feature", http.StatusBadRequest)
		return
	}
	raw, err := ensureID(generic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := s.Ingest(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// ensureID assigns a fresh ID to a posted feature that lacks one.
func ensureID(generic map[string]json.RawMessage) ([]byte, error) {
	var props map[string]json.RawMessage
	if err := json.Unmarshal(generic["properties"], &props); err != nil || props == nil {
		return nil, fmt.Errorf("feature has no properties")
	}
	var id string
	_ = json.Unmarshal(props["id"], &id)
	if id == "" {
		encoded, err := json.Marshal(uuid.NewString())
		if err != nil {
			return nil, err
		}
		props["id"] = encoded
		reProps, err := json.Marshal(props)
		if err != nil {
			return nil, err
		}
		generic["properties"] = reProps
	}
	return json.Marshal(generic)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	records, err := s.filtered(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	type point struct {
		Lat       float64 `json:"lat"`
		Lng       float64 `json:"lng"`
		Intensity int     `json:"intensity"`
	}
	points := make([]point, len(records))
	for i, rec := range records {
		intensity := 1
		switch rec.Risk {
		case threatmap.RiskMedium:
			intensity = 2
		case threatmap.RiskHigh:
			intensity = 3
		}
		points[i] = point{Lat: rec.Lat, Lng: rec.Lon, Intensity: intensity}
	}
	writeJSON(w, points)
}

// handleStream serves the push channel. A websocket upgrade request gets a
// websocket; everything else gets SSE.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.streamWebsocket(w, r)
		return
	}
	s.streamSSE(w, r)
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := s.subscribe()
	defer s.unsubscribe(ch)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("sse subscriber connected")

	for {
		select {
		case <-r.Context().Done():
			return
		case payload := <-ch:
			// SSE frames are line-delimited; flatten any pretty-printed JSON
			// so embedded newlines cannot break the framing.
			var buf bytes.Buffer
			if err := json.Compact(&buf, payload); err == nil {
				payload = buf.Bytes()
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) streamWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	ch := s.subscribe()
	defer s.unsubscribe(ch)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket subscriber connected")

	// Reader goroutine notices the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case payload := <-ch:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
