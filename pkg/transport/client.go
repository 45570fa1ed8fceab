// Package transport implements the request/stream contract with the sensing
// backend: a one-shot GeoJSON snapshot fetch plus a long-lived push channel
// (SSE by default, websocket where the backend offers one).
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/sudorandom/threat-map/pkg/threatmap"
)

// StreamTransport selects how OpenStream connects.
type StreamTransport string

const (
	StreamSSE       StreamTransport = "sse"
	StreamWebsocket StreamTransport = "websocket"
)

// Client talks to one backend. It is safe for concurrent use; all methods
// honor their context.
type Client struct {
	baseURL   string
	http      *http.Client
	log       zerolog.Logger
	transport StreamTransport
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithStreamTransport selects SSE or websocket for OpenStream.
func WithStreamTransport(t StreamTransport) Option {
	return func(c *Client) { c.transport = t }
}

// NewClient builds a client for the backend at baseURL (scheme://host[:port],
// no trailing slash required).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       zerolog.Nop(),
		transport: StreamSSE,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return body, nil
}

// FetchSnapshot requests the current full event set. It fails with a
// *TransportError on a non-success response or a malformed payload; there is
// no retry here, the store owns that policy.
func (c *Client) FetchSnapshot(ctx context.Context) ([]threatmap.Event, error) {
	body, err := c.get(ctx, "snapshot", "/events")
	if err != nil {
		return nil, err
	}
	events, err := threatmap.DecodeFeatureCollection(body)
	if err != nil {
		return nil, &TransportError{Op: "snapshot", Err: err}
	}
	return events, nil
}

// FetchEvent requests one event by ID.
func (c *Client) FetchEvent(ctx context.Context, id string) (threatmap.Event, error) {
	body, err := c.get(ctx, "event", "/events/"+url.PathEscape(id))
	if err != nil {
		return threatmap.Event{}, err
	}
	ev, err := threatmap.DecodeFeature(body)
	if err != nil {
		return threatmap.Event{}, &TransportError{Op: "event", Err: err}
	}
	return ev, nil
}

// FetchHeatmap requests the aggregated density payload. The payload is opaque
// to the engine; it is validated as JSON and handed through.
func (c *Client) FetchHeatmap(ctx context.Context, params url.Values) (json.RawMessage, error) {
	path := "/heatmap"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	body, err := c.get(ctx, "heatmap", path)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &TransportError{Op: "heatmap", Err: fmt.Errorf("invalid JSON payload")}
	}
	return json.RawMessage(body), nil
}

// OpenStream opens the push channel at /events/stream using the configured
// transport. Each incoming message is decoded as one event feature;
// malformed messages are dropped with a log and never tear the channel down.
// Connection-level failures are delivered through onUpdate as an error signal
// exactly once, with no silent internal retry.
//
// The returned close function terminates the channel and blocks until the
// read loop has exited, so no onUpdate invocation can happen after it returns.
func (c *Client) OpenStream(ctx context.Context, onUpdate func(threatmap.StreamUpdate)) (func(), error) {
	if c.transport == StreamWebsocket {
		return c.openWebsocket(ctx, onUpdate)
	}
	return c.openSSE(ctx, onUpdate)
}

// dispatch decodes one raw stream message and forwards it, or drops it.
func (c *Client) dispatch(raw []byte, onUpdate func(threatmap.StreamUpdate)) {
	ev, err := threatmap.DecodeFeature(raw)
	if err != nil {
		perr := &ParseError{Err: err}
		c.log.Warn().Err(perr).Int("bytes", len(raw)).Msg("dropping malformed stream message")
		return
	}
	onUpdate(threatmap.StreamUpdate{Event: ev})
}
