// Package relay fans extracted frames out to connected viewers.
//
// The Registry tracks viewers and is the only place that starts or stops the
// capture pipeline: the first viewer starts it, the last one to leave stops
// it. The Server accepts WebSocket upgrades and feeds the Registry from the
// capture manager's frame channel.
package relay

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"screen-relay-server/internal/capture"
	"screen-relay-server/internal/logging"
	"screen-relay-server/internal/mjpeg"
)

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.New("relay closed")

// Pipeline is the capture lifecycle the registry drives.
type Pipeline interface {
	Start(target capture.Target) error
	Stop()
	Running() bool
}

// Options configures subscriber connections. Zero values select defaults.
type Options struct {
	// ClientBuffer is the per-subscriber frame queue; a subscriber whose
	// queue is full when a frame arrives is dropped.
	ClientBuffer  int
	PingInterval  time.Duration
	ReadDeadline  time.Duration
	WriteDeadline time.Duration
	ReadLimit     int64
}

func (o Options) withDefaults() Options {
	if o.ClientBuffer <= 0 {
		o.ClientBuffer = 10
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 54 * time.Second
	}
	if o.ReadDeadline <= 0 {
		o.ReadDeadline = 60 * time.Second
	}
	if o.WriteDeadline <= 0 {
		o.WriteDeadline = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 512
	}
	return o
}

// Registry is the set of live subscribers.
type Registry struct {
	pipeline Pipeline
	opts     Options
	logger   *slog.Logger

	mu          sync.Mutex
	subscribers map[string]*Subscriber
	// target is the one the running pipeline was started with.
	target capture.Target
	closed bool
}

// NewRegistry returns an empty registry driving pipeline.
func NewRegistry(pipeline Pipeline, opts Options, logger *slog.Logger) *Registry {
	return &Registry{
		pipeline:    pipeline,
		opts:        opts.withDefaults(),
		logger:      logging.Component(logger, "relay"),
		subscribers: make(map[string]*Subscriber),
	}
}

// Register adds a subscriber for conn and starts its pumps. The first
// subscriber starts the pipeline with its target; later ones attach to the
// running stream whatever target they asked for. If the pipeline is down
// because the previous session died, the new subscriber's target restarts it.
func (r *Registry) Register(conn Conn, target capture.Target) (*Subscriber, error) {
	sub := &Subscriber{
		id:          uuid.NewString(),
		target:      target,
		conn:        conn,
		send:        make(chan mjpeg.Frame, r.opts.ClientBuffer),
		done:        make(chan struct{}),
		registry:    r,
		connectedAt: time.Now(),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.subscribers[sub.id] = sub
	count := len(r.subscribers)

	switch {
	case count == 1 || !r.pipeline.Running():
		r.target = target
		if err := r.pipeline.Start(target); err != nil {
			r.logger.Warn("capture start failed; subscriber will wait for a restart",
				slog.String("subscriber_id", sub.id),
				slog.String("target", target.String()),
				slog.String("error", err.Error()),
			)
		}
	case target != r.target:
		r.logger.Warn("subscriber attached to running capture for a different target",
			slog.String("subscriber_id", sub.id),
			slog.String("requested_target", target.String()),
			slog.String("active_target", r.target.String()),
		)
	}
	r.mu.Unlock()

	go sub.writePump()
	go sub.readPump()

	r.logger.Info("subscriber registered",
		slog.String("subscriber_id", sub.id),
		slog.String("target", target.String()),
		slog.Int("subscribers", count),
	)
	return sub, nil
}

// Unregister removes the subscriber and closes its connection. Removing the
// last subscriber stops the pipeline. Unknown IDs are ignored.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	sub, ok := r.subscribers[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.subscribers, id)
	remaining := len(r.subscribers)
	if remaining == 0 {
		r.pipeline.Stop()
	}
	r.mu.Unlock()

	sub.close()

	r.logger.Info("subscriber unregistered",
		slog.String("subscriber_id", id),
		slog.Int("subscribers", remaining),
	)
	if remaining == 0 {
		r.logger.Info("no subscribers left; capture stopped")
	}
	return true
}

// Broadcast queues frame for every subscriber. Subscribers that cannot keep
// up are dropped rather than allowed to hold the others back.
func (r *Registry) Broadcast(frame mjpeg.Frame) {
	r.mu.Lock()
	subs := make([]*Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		if sub.enqueue(frame) {
			continue
		}
		r.logger.Warn("subscriber too slow; dropping",
			slog.String("subscriber_id", sub.id),
			slog.Int("queued", len(sub.send)),
		)
		r.Unregister(sub.id)
		sub.abort()
	}
}

// Count returns the number of registered subscribers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

// Snapshot describes every registered subscriber, oldest first.
func (r *Registry) Snapshot() []SubscriberInfo {
	r.mu.Lock()
	infos := make([]SubscriberInfo, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		infos = append(infos, sub.info())
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Close unregisters every subscriber, stops the pipeline, and rejects
// further registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	subs := make([]*Subscriber, 0, len(r.subscribers))
	for id, sub := range r.subscribers {
		subs = append(subs, sub)
		delete(r.subscribers, id)
	}
	r.pipeline.Stop()
	r.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	r.logger.Info("relay closed", slog.Int("disconnected", len(subs)))
}
