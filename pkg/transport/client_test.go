package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudorandom/threat-map/pkg/threatmap"
)

const testFeature = `{
	"type": "Feature",
	"properties": {
		"id": "evt-1",
		"timestamp": "2026-08-30T12:00:00Z",
		"country": "US",
		"analysis": {"risk_level": "high", "violence_type": "fight", "num_people": 2}
	},
	"geometry": {"type": "Point", "coordinates": [-73.99, 40.73]}
}`

const testCollection = `{"type":"FeatureCollection","features":[` + testFeature + `]}`

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/events", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testCollection))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	events, err := c.FetchSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, threatmap.RiskHigh, events[0].Analysis.RiskLevel)
	assert.Equal(t, 40.73, events[0].Lat)
}

func TestFetchSnapshotErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			"server error",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			http.StatusInternalServerError,
		},
		{
			"not found",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			http.StatusNotFound,
		},
		{
			"malformed body",
			func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"type":"garbage`)) },
			0,
		},
		{
			"wrong top-level type",
			func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"type":"Feature"}`)) },
			0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL).FetchSnapshot(context.Background())
			require.Error(t, err)
			var terr *TransportError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, "snapshot", terr.Op)
			assert.Equal(t, tt.wantStatus, terr.StatusCode)
		})
	}
}

func TestFetchEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/evt-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(testFeature))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ev, err := c.FetchEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.ID)

	_, err = c.FetchEvent(context.Background(), "missing")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusNotFound, terr.StatusCode)
}

func TestFetchHeatmap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "high", r.URL.Query().Get("risk_level"))
		_, _ = w.Write([]byte(`[{"lat":40.73,"lng":-73.99,"intensity":3}]`))
	}))
	defer srv.Close()

	raw, err := NewClient(srv.URL).FetchHeatmap(context.Background(), url.Values{"risk_level": {"high"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"lat":40.73,"lng":-73.99,"intensity":3}]`, string(raw))
}

func TestClientUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1") // nothing listens here
	_, err := c.FetchSnapshot(context.Background())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "snapshot", terr.Op)
}
