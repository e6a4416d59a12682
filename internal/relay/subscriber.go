package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"screen-relay-server/internal/capture"
	"screen-relay-server/internal/mjpeg"
)

// Conn is the subset of *websocket.Conn a subscriber uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Subscriber is one connected viewer.
type Subscriber struct {
	id          string
	target      capture.Target
	conn        Conn
	send        chan mjpeg.Frame
	done        chan struct{}
	closeOnce   sync.Once
	registry    *Registry
	connectedAt time.Time
	sent        atomic.Uint64
}

// SubscriberInfo describes a subscriber for the status API.
type SubscriberInfo struct {
	ID          string         `json:"id"`
	Target      capture.Target `json:"target"`
	ConnectedAt time.Time      `json:"connected_at"`
	FramesSent  uint64         `json:"frames_sent"`
	Queued      int            `json:"queued"`
}

// ID returns the subscriber's identifier.
func (s *Subscriber) ID() string { return s.id }

// Target returns the target the viewer asked for when it connected.
func (s *Subscriber) Target() capture.Target { return s.target }

// Done is closed once the subscriber has been removed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) info() SubscriberInfo {
	return SubscriberInfo{
		ID:          s.id,
		Target:      s.target,
		ConnectedAt: s.connectedAt,
		FramesSent:  s.sent.Load(),
		Queued:      len(s.send),
	}
}

// enqueue hands frame to the write pump without blocking. It reports false
// when the subscriber's queue is full.
func (s *Subscriber) enqueue(frame mjpeg.Frame) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// abort closes the connection as well, unblocking a write pump stuck on a
// peer that stopped reading.
func (s *Subscriber) abort() {
	s.close()
	_ = s.conn.Close()
}

// readPump drains control frames so pongs are processed, and unregisters the
// subscriber when the peer goes away.
func (s *Subscriber) readPump() {
	defer s.registry.Unregister(s.id)

	opts := s.registry.opts
	s.conn.SetReadLimit(opts.ReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(opts.ReadDeadline))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(opts.ReadDeadline))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.registry.logger.Warn("subscriber read failed",
					slog.String("subscriber_id", s.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump is the only writer on the connection.
func (s *Subscriber) writePump() {
	opts := s.registry.opts
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(opts.WriteDeadline))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(opts.WriteDeadline))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				s.registry.logger.Warn("subscriber write failed",
					slog.String("subscriber_id", s.id),
					slog.String("error", err.Error()),
				)
				s.registry.Unregister(s.id)
				return
			}
			s.sent.Add(1)

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(opts.WriteDeadline))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.registry.Unregister(s.id)
				return
			}
		}
	}
}
