package registry

import (
	"context"
	"sync"

	"toromines/server/logging"
	"toromines/server/logging/network"
)

// outboundBufferSize is the depth of each session's outbound queue. A
// recipient that falls this far behind is dropped rather than allowed to
// stall the broadcaster.
const outboundBufferSize = 32

// Transport is the minimal send/close contract a session needs from its
// underlying connection. The websocket handler implements it; tests can
// fake it.
type Transport interface {
	WriteMessage(data []byte) error
	Close() error
}

// Session is the in-memory record pairing a transport with a player
// identity and cursor. Delivery to the transport happens on a dedicated
// writer goroutine reading from a bounded channel, so one slow client can
// never block a broadcast fan-out.
type Session struct {
	PlayerID string

	mu          sync.Mutex
	cursorX     int
	cursorY     int
	cachedScore int

	transport Transport
	outbound  chan []byte
	closeOnce sync.Once
	closed    chan struct{}
	events    logging.Publisher
}

func newSession(playerID string, transport Transport, startX, startY int, events logging.Publisher) *Session {
	s := &Session{
		PlayerID:  playerID,
		cursorX:   startX,
		cursorY:   startY,
		transport: transport,
		outbound:  make(chan []byte, outboundBufferSize),
		closed:    make(chan struct{}),
		events:    events,
	}
	go s.writePump()
	return s
}

func (s *Session) writePump() {
	for {
		select {
		case data := <-s.outbound:
			if err := s.transport.WriteMessage(data); err != nil {
				s.closeWithReason("write failed: " + err.Error())
				return
			}
		case <-s.closed:
			s.drain()
			return
		}
	}
}

// drain flushes whatever is still buffered in outbound once closed has
// fired, so a session torn down mid-broadcast does not silently lose the
// last few queued messages.
func (s *Session) drain() {
	for {
		select {
		case data := <-s.outbound:
			s.transport.WriteMessage(data)
		default:
			return
		}
	}
}

// Send enqueues data for delivery without blocking. If the outbound buffer
// is full the session is torn down and ErrOverflow is returned so the
// broadcaster can proceed with the next recipient. The outbound channel is
// never closed (only the closed signal is), so a Send racing a concurrent
// Close can never panic on a send to a closed channel.
func (s *Session) Send(data []byte) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	select {
	case s.outbound <- data:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	default:
		s.closeWithReason("outbound buffer overflow")
		return ErrOverflow
	}
}

// Close tears the session down idempotently: stops the writer goroutine and
// closes the underlying transport.
func (s *Session) Close() error {
	_, err := s.teardown()
	return err
}

// closeWithReason tears the session down and, if this call is the one that
// actually performed the teardown, publishes a SessionTerminated event.
// Used by the two failure paths that close a session as a side effect
// (write failure, outbound overflow) rather than a caller-requested Close.
func (s *Session) closeWithReason(reason string) error {
	closed, err := s.teardown()
	if closed {
		network.SessionTerminated(context.Background(), s.events,
			logging.EntityRef{ID: s.PlayerID, Kind: logging.EntityKindPlayer},
			network.SessionTerminatedPayload{Reason: reason}, nil)
	}
	return err
}

// teardown runs the actual close exactly once and reports whether this
// call was the one that ran it, so closeWithReason never double-publishes
// when Send's overflow path and writePump's error path race.
func (s *Session) teardown() (bool, error) {
	closed := false
	var err error
	s.closeOnce.Do(func() {
		closed = true
		close(s.closed)
		err = s.transport.Close()
	})
	return closed, err
}

// Cursor returns the session's current position.
func (s *Session) Cursor() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorX, s.cursorY
}

func (s *Session) setCursor(x, y int) {
	s.mu.Lock()
	s.cursorX, s.cursorY = x, y
	s.mu.Unlock()
}

// CachedScore returns the session's last-known score, as last stored through
// Registry.Add or Registry.UpdateCachedScore.
func (s *Session) CachedScore() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cachedScore
}

func (s *Session) setCachedScore(score int) {
	s.mu.Lock()
	s.cachedScore = score
	s.mu.Unlock()
}

// Projection is a read-only snapshot of a session used by region queries,
// decoupled from the live Session so callers never hold the registry lock
// while touching it.
type Projection struct {
	PlayerID string
	X, Y     int
}

func (s *Session) projection() Projection {
	x, y := s.Cursor()
	return Projection{PlayerID: s.PlayerID, X: x, Y: y}
}
