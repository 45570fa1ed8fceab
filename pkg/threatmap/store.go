package threatmap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the store's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateActive
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	}
	return "unknown"
}

// ErrStoreState reports an operation that needs a usable event set while the
// store holds none (the initial load failed and nothing has been received
// since).
var ErrStoreState = errors.New("store has no usable event set")

// StreamUpdate is one message from the push channel: either a decoded event or
// a connection-level error. Per-message parse failures never appear here; the
// transport drops and logs those without breaking the channel.
type StreamUpdate struct {
	Event Event
	Err   error
}

// Source is the transport the store pulls snapshots from and streams events
// through. OpenStream must return a close function that guarantees no further
// onUpdate invocations once it returns.
type Source interface {
	FetchSnapshot(ctx context.Context) ([]Event, error)
	OpenStream(ctx context.Context, onUpdate func(StreamUpdate)) (close func(), err error)
}

// Notification carries the store's full current view to a listener: state, a
// fresh copy of the complete event set ordered by timestamp descending, and
// the retained error when the state is StateError. Consumers always see a
// consistent snapshot, never a diff and never a live handle into the store.
type Notification struct {
	State  State
	Events []Event
	Err    error
}

// Listener receives store notifications. Listeners are invoked synchronously
// in update order and must not call back into the store; hand the notification
// to your own goroutine if you need to.
type Listener func(Notification)

// Subscription is the opaque handle returned by Subscribe. After Unsubscribe
// returns, the listener is never invoked again, even if a notification was
// being dispatched concurrently.
type Subscription struct{ _ [0]byte }

const (
	defaultPollInterval = 5 * time.Second

	// Stream reconnect policy: bounded exponential backoff. Once the stream
	// is given up on, the polling fallback keeps the set reconciled.
	streamBackoffInitial = time.Second
	streamBackoffMax     = 60 * time.Second
	streamMaxAttempts    = 6
)

// Store owns the canonical in-memory event set. It merges the initial
// snapshot, streamed upserts and polled reconciliation snapshots, and fans the
// full set out to subscribers after every applied update.
//
// Concurrent poll and stream updates to the same ID resolve last-write-wins by
// arrival order at the store's mutex, not by event timestamp. That is a
// deliberate policy: the feed is the authority on its own ordering.
type Store struct {
	src          Source
	pollInterval time.Duration
	log          zerolog.Logger

	streamBackoff    time.Duration
	streamBackoffCap time.Duration
	streamRetries    int

	mu      sync.Mutex
	state   State
	events  map[string]Event
	lastErr error
	subs    map[*Subscription]Listener
	cancel  context.CancelFunc
	running bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPollInterval sets the reconciliation poll interval. Zero or negative
// disables polling entirely (stream only).
func WithPollInterval(d time.Duration) StoreOption {
	return func(s *Store) { s.pollInterval = d }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// NewStore builds an idle store around the given source. Every store instance
// is independent; nothing here is process-global.
func NewStore(src Source, opts ...StoreOption) *Store {
	s := &Store{
		src:              src,
		pollInterval:     defaultPollInterval,
		log:              zerolog.Nop(),
		streamBackoff:    streamBackoffInitial,
		streamBackoffCap: streamBackoffMax,
		streamRetries:    streamMaxAttempts,
		state:            StateIdle,
		events:           make(map[string]Event),
		subs:             make(map[*Subscription]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener and returns its handle.
func (s *Store) Subscribe(fn Listener) *Subscription {
	sub := &Subscription{}
	s.mu.Lock()
	s.subs[sub] = fn
	s.mu.Unlock()
	return sub
}

// Unsubscribe revokes a subscription. It is safe to call with a handle that
// was already removed.
func (s *Store) Unsubscribe(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// GetSnapshot returns the current state, a fresh timestamp-descending copy of
// the event set, and the retained error (nil outside StateError). When the
// initial load failed and no events were ever received, the error wraps
// ErrStoreState.
func (s *Store) GetSnapshot() (State, []Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateError && len(s.events) == 0 {
		return s.state, nil, fmt.Errorf("%w: %v", ErrStoreState, s.lastErr)
	}
	return s.state, s.snapshotLocked(), s.lastErr
}

// Start transitions idle (or a failed load) to loading and kicks off the
// snapshot fetch, streaming and polling. Cancelling ctx deactivates the store:
// in-flight completions are dropped without notifying anyone. Start is a no-op
// while the store is already running.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.state = StateLoading
	s.lastErr = nil
	s.mu.Unlock()
	go s.run(runCtx)
}

// Stop halts streaming and polling but preserves the last event set so late
// readers can still call GetSnapshot. The store can be started again.
func (s *Store) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running = false
	s.mu.Unlock()
}

func (s *Store) run(ctx context.Context) {
	events, err := s.src.FetchSnapshot(ctx)

	s.mu.Lock()
	if ctx.Err() != nil {
		// Deactivated while the fetch was in flight; the result is inert.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.state = StateError
		s.lastErr = err
		s.log.Error().Err(err).Msg("initial snapshot failed")
		s.notifyLocked()
		s.mu.Unlock()
		return
	}
	s.replaceLocked(events)
	s.state = StateActive
	s.lastErr = nil
	s.log.Info().Int("events", len(events)).Msg("snapshot loaded")
	s.notifyLocked()
	s.mu.Unlock()

	if s.pollInterval > 0 {
		go s.pollLoop(ctx)
	}
	s.streamLoop(ctx)
}

// streamLoop keeps the push channel open, reconnecting on connection-level
// failures with exponential backoff (1s doubling to a 60s cap). After
// streamMaxAttempts consecutive failures the stream is abandoned for the
// session and the polling fallback carries reconciliation alone.
func (s *Store) streamLoop(ctx context.Context) {
	backoff := s.streamBackoff
	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}
		errc := make(chan error, 1)
		closeStream, err := s.src.OpenStream(ctx, func(u StreamUpdate) {
			if u.Err != nil {
				select {
				case errc <- u.Err:
				default:
				}
				return
			}
			s.applyStreamEvent(ctx, u.Event)
		})
		if err == nil {
			// A successful connect resets the outage: only consecutive
			// failures count toward abandoning the stream.
			backoff = s.streamBackoff
			attempts = 0
			select {
			case <-ctx.Done():
				closeStream()
				return
			case err = <-errc:
				closeStream()
			}
		}
		attempts++
		s.log.Warn().Err(err).Int("attempt", attempts).Msg("event stream lost")
		if attempts >= s.streamRetries {
			s.log.Error().Msg("event stream abandoned, relying on polling fallback")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.streamBackoffCap {
			backoff = s.streamBackoffCap
		}
	}
}

func (s *Store) applyStreamEvent(ctx context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil || s.state != StateActive {
		return
	}
	s.events[ev.ID] = ev
	s.notifyLocked()
}

// pollLoop re-fetches the full snapshot on a fixed interval while active. A
// failed poll only logs: the last known good set is retained, unlike the
// initial load where failure lands the store in StateError.
func (s *Store) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		events, err := s.src.FetchSnapshot(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("reconciliation poll failed, keeping last good set")
			continue
		}
		s.mu.Lock()
		if ctx.Err() == nil && s.state == StateActive {
			s.replaceLocked(events)
			s.notifyLocked()
		}
		s.mu.Unlock()
	}
}

func (s *Store) replaceLocked(events []Event) {
	s.events = make(map[string]Event, len(events))
	for _, ev := range events {
		s.events[ev.ID] = ev
	}
}

// snapshotLocked returns a timestamp-descending copy of the set. The map is
// walked in key order so equal timestamps always come back the same way.
func (s *Store) snapshotLocked() []Event {
	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	events := make([]Event, 0, len(ids))
	for _, id := range ids {
		events = append(events, s.events[id])
	}
	return SortEvents(events, "timestamp")
}

// notifyLocked dispatches the full current view to every live subscriber.
// Dispatch happens under the store mutex, which is what makes Unsubscribe a
// hard barrier: once it returns, the listener cannot be mid-call or called
// again.
func (s *Store) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	n := Notification{State: s.state, Events: s.snapshotLocked(), Err: s.lastErr}
	for _, fn := range s.subs {
		fn(n)
	}
}
