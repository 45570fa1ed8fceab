package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStreamWebsocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/events/stream", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(streamFeature("one")))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{broken`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(streamFeature("two")))

		// Hold the socket open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	onUpdate, updates := collectUpdates()
	c := NewClient(srv.URL, WithStreamTransport(StreamWebsocket))
	closeStream, err := c.OpenStream(context.Background(), onUpdate)
	require.NoError(t, err)

	u := waitUpdate(t, updates)
	require.NoError(t, u.Err)
	assert.Equal(t, "one", u.Event.ID)

	// The malformed frame is dropped, the stream keeps going.
	u = waitUpdate(t, updates)
	require.NoError(t, u.Err)
	assert.Equal(t, "two", u.Event.ID)

	closeStream()
	select {
	case u := <-updates:
		t.Fatalf("update after close: %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOpenStreamWebsocketServerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(streamFeature("only")))
		_ = conn.Close()
	}))
	defer srv.Close()

	onUpdate, updates := collectUpdates()
	c := NewClient(srv.URL, WithStreamTransport(StreamWebsocket))
	closeStream, err := c.OpenStream(context.Background(), onUpdate)
	require.NoError(t, err)
	defer closeStream()

	u := waitUpdate(t, updates)
	require.NoError(t, u.Err)
	assert.Equal(t, "only", u.Event.ID)

	u = waitUpdate(t, updates)
	require.Error(t, u.Err)
	var terr *TransportError
	require.ErrorAs(t, u.Err, &terr)
	assert.Equal(t, "stream", terr.Op)
}

func TestOpenStreamWebsocketDialFailure(t *testing.T) {
	onUpdate, _ := collectUpdates()
	c := NewClient("http://127.0.0.1:1", WithStreamTransport(StreamWebsocket))
	_, err := c.OpenStream(context.Background(), onUpdate)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "stream", terr.Op)
}
