package transport

import "fmt"

// TransportError reports a network-level or non-success failure talking to the
// event backend: a failed request, a non-2xx response, or a malformed snapshot
// payload. The caller decides retry policy.
type TransportError struct {
	Op         string // "snapshot", "event", "heatmap", "stream"
	StatusCode int    // 0 when the request never produced a response
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports one malformed streamed message. It is per-message and
// non-fatal: the stream drops the message, logs it, and keeps reading.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }
