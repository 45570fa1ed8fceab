package transport

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/sudorandom/threat-map/pkg/threatmap"
)

// openWebsocket dials ws(s)://.../events/stream and reads one JSON feature
// per text message. Same contract as SSE: parse failures are dropped,
// connection failures surface once through onUpdate.
func (c *Client) openWebsocket(ctx context.Context, onUpdate func(threatmap.StreamUpdate)) (func(), error) {
	wsURL := c.baseURL + "/events/stream"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &TransportError{Op: "stream", StatusCode: status, Err: err}
	}

	var localClose atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if !localClose.Load() && ctx.Err() == nil {
					onUpdate(threatmap.StreamUpdate{Err: &TransportError{Op: "stream", Err: err}})
				}
				return
			}
			c.dispatch(message, onUpdate)
		}
	}()

	closeStream := func() {
		localClose.Store(true)
		_ = conn.Close()
		<-done
	}
	return closeStream, nil
}
