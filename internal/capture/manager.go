// Package capture owns the external producer that turns a remote device's
// framebuffer into an MJPEG byte stream, and splits that stream into frames.
//
// At most one capture session runs at a time. Manager starts it on demand,
// pumps the producer's stdout through an mjpeg.Extractor, and publishes every
// completed frame on a single long-lived channel.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"screen-relay-server/internal/logging"
	"screen-relay-server/internal/mjpeg"
)

const (
	defaultChunkSize  = 40 * 1024
	defaultFrameQueue = 100
)

// Options tunes a Manager. Zero values select defaults.
type Options struct {
	// ChunkSize is the size of each read from the producer's stdout.
	ChunkSize int
	// FrameQueue bounds the frames channel; the oldest frame is dropped when
	// the consumer falls behind.
	FrameQueue int
}

// Status is a point-in-time view of the manager, served on the status API.
type Status struct {
	Running       bool       `json:"running"`
	Target        *Target    `json:"target,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	Sessions      uint64     `json:"sessions"`
	Frames        uint64     `json:"frames"`
	BytesRead     uint64     `json:"bytes_read"`
	DroppedFrames uint64     `json:"dropped_frames"`
	BufferedBytes int64      `json:"buffered_bytes"`
	LastFrameAt   *time.Time `json:"last_frame_at,omitempty"`
	LastExit      string     `json:"last_exit,omitempty"`
}

// Manager runs the single shared capture session.
type Manager struct {
	spawner   Spawner
	logger    *slog.Logger
	chunkSize int
	frames    chan mjpeg.Frame

	mu       sync.Mutex
	session  *session
	sessions uint64
	lastExit string

	frameCount  atomic.Uint64
	bytesRead   atomic.Uint64
	dropped     atomic.Uint64
	lastFrameAt atomic.Int64
}

type session struct {
	id        uint64
	target    Target
	proc      Process
	cancel    context.CancelFunc
	startedAt time.Time
	buffered  atomic.Int64
}

// NewManager returns an idle manager that spawns producers with spawner.
func NewManager(spawner Spawner, opts Options, logger *slog.Logger) *Manager {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.FrameQueue <= 0 {
		opts.FrameQueue = defaultFrameQueue
	}
	return &Manager{
		spawner:   spawner,
		logger:    logging.Component(logger, "capture"),
		chunkSize: opts.ChunkSize,
		frames:    make(chan mjpeg.Frame, opts.FrameQueue),
	}
}

// Frames returns the channel every extracted frame is published on. It is
// never closed.
func (m *Manager) Frames() <-chan mjpeg.Frame {
	return m.frames
}

// Start spawns the producer for target. It is a no-op while a session is
// running, whatever target is requested.
func (m *Manager) Start(target Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		if m.session.target != target {
			m.logger.Debug("capture already running; ignoring requested target",
				slog.String("active_target", m.session.target.String()),
				slog.String("requested_target", target.String()),
			)
		}
		return nil
	}

	// Frames left over from a session that died must not reach viewers of
	// the new one.
	m.drainFrames()

	ctx, cancel := context.WithCancel(context.Background())
	proc, err := m.spawner.Spawn(ctx, target)
	if err != nil {
		cancel()
		m.lastExit = err.Error()
		m.logger.Error("capture spawn failed",
			slog.String("target", target.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("spawn capture for %s: %w", target, err)
	}

	m.sessions++
	s := &session{
		id:        m.sessions,
		target:    target,
		proc:      proc,
		cancel:    cancel,
		startedAt: time.Now(),
	}
	m.session = s

	go m.readFrames(s)
	go m.logStderr(s)
	go m.awaitExit(s)

	m.logger.Info("capture started",
		slog.Uint64("session", s.id),
		slog.String("target", target.String()),
	)
	return nil
}

// Stop kills the running producer and discards its partial frame along with
// any frames still queued. It is safe to call when nothing runs or the
// producer already exited.
func (m *Manager) Stop() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.drainFrames()
	m.mu.Unlock()

	if s == nil {
		return
	}

	s.cancel()
	if err := s.proc.Kill(); err != nil {
		m.logger.Warn("capture kill failed",
			slog.Uint64("session", s.id),
			slog.String("error", err.Error()),
		)
	}
	m.logger.Info("capture stopped",
		slog.Uint64("session", s.id),
		slog.String("target", s.target.String()),
	)
}

// Running reports whether a capture session is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Status returns a snapshot of the manager.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Running:       m.session != nil,
		Sessions:      m.sessions,
		Frames:        m.frameCount.Load(),
		BytesRead:     m.bytesRead.Load(),
		DroppedFrames: m.dropped.Load(),
		LastExit:      m.lastExit,
	}
	if last := m.lastFrameAt.Load(); last != 0 {
		lastFrameAt := time.Unix(0, last)
		st.LastFrameAt = &lastFrameAt
	}
	if s := m.session; s != nil {
		target := s.target
		st.Target = &target
		startedAt := s.startedAt
		st.StartedAt = &startedAt
		st.BufferedBytes = s.buffered.Load()
	}
	return st
}

func (m *Manager) current(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session == s
}

// readFrames owns the session's extractor, so a new session always starts
// from an empty accumulator.
func (m *Manager) readFrames(s *session) {
	stdout := s.proc.Stdout()
	defer stdout.Close()

	extractor := mjpeg.NewExtractor()
	buf := make([]byte, m.chunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			m.bytesRead.Add(uint64(n))
			frames := extractor.Feed(buf[:n])
			s.buffered.Store(int64(extractor.Buffered()))
			for _, frame := range frames {
				if !m.publishFrom(s, frame) {
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && m.current(s) {
				m.logger.Debug("capture stdout read ended",
					slog.Uint64("session", s.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// publishFrom publishes frame only while s is the current session. The check
// and the send happen under the same lock Stop takes, so a stopped session
// cannot slip a frame in after the queue was drained.
func (m *Manager) publishFrom(s *session, frame mjpeg.Frame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != s {
		return false
	}
	m.publish(frame)
	return true
}

// drainFrames empties the frames channel. Callers hold m.mu.
func (m *Manager) drainFrames() {
	for {
		select {
		case <-m.frames:
		default:
			return
		}
	}
}

// publish never blocks: when the queue is full the oldest frame gives way.
// Callers hold m.mu.
func (m *Manager) publish(frame mjpeg.Frame) {
	m.frameCount.Add(1)
	m.lastFrameAt.Store(time.Now().UnixNano())

	select {
	case m.frames <- frame:
		return
	default:
	}

	select {
	case <-m.frames:
		m.dropped.Add(1)
	default:
	}
	select {
	case m.frames <- frame:
	default:
		m.dropped.Add(1)
	}
}

func (m *Manager) logStderr(s *session) {
	stderr := s.proc.Stderr()
	defer stderr.Close()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		m.logger.Warn("capture stderr",
			slog.Uint64("session", s.id),
			slog.String("line", scanner.Text()),
		)
	}
}

func (m *Manager) awaitExit(s *session) {
	err := s.proc.Wait()
	s.cancel()

	m.mu.Lock()
	unexpected := m.session == s
	if unexpected {
		m.session = nil
		if err != nil {
			m.lastExit = err.Error()
		} else {
			m.lastExit = "exited"
		}
	}
	m.mu.Unlock()

	if !unexpected {
		return
	}
	attrs := []any{
		slog.Uint64("session", s.id),
		slog.String("target", s.target.String()),
	}
	if err != nil {
		m.logger.Error("capture exited unexpectedly", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	m.logger.Warn("capture exited", attrs...)
}
