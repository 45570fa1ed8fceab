package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sudorandom/threat-map/pkg/threatmap"
)

// openSSE connects to GET /events/stream as a text/event-stream and reads one
// JSON feature per data message.
func (c *Client) openSSE(ctx context.Context, onUpdate func(threatmap.StreamUpdate)) (func(), error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+"/events/stream", nil)
	if err != nil {
		cancel()
		return nil, &TransportError{Op: "stream", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The stream must not be cut short by the snapshot client's timeout.
	hc := &http.Client{Transport: c.http.Transport}
	resp, err := hc.Do(req)
	if err != nil {
		cancel()
		return nil, &TransportError{Op: "stream", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, &TransportError{Op: "stream", StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		var data bytes.Buffer
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "data:"):
				// Multiple data lines in one message are newline-joined;
				// only a single leading space after the colon is stripped.
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			case line == "":
				if data.Len() > 0 {
					c.dispatch(append([]byte(nil), data.Bytes()...), onUpdate)
					data.Reset()
				}
			default:
				// event:, id:, retry: and comment lines carry nothing we use.
			}
		}
		if streamCtx.Err() != nil {
			// Closed locally; not a failure.
			return
		}
		err := scanner.Err()
		if err == nil {
			err = fmt.Errorf("stream closed by server")
		}
		onUpdate(threatmap.StreamUpdate{Err: &TransportError{Op: "stream", Err: err}})
	}()

	closeStream := func() {
		cancel()
		<-done
	}
	return closeStream, nil
}
