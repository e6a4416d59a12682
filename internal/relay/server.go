package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"screen-relay-server/internal/capture"
	"screen-relay-server/internal/logging"
	"screen-relay-server/internal/mjpeg"
)

// Server upgrades viewer requests and distributes frames to them.
type Server struct {
	registry *Registry
	frames   <-chan mjpeg.Frame
	fallback capture.Target
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer returns a server that registers viewers with registry and
// delivers frames read from frames. Viewers that omit ip or port get the
// corresponding field of fallback.
func NewServer(registry *Registry, frames <-chan mjpeg.Frame, fallback capture.Target, logger *slog.Logger) *Server {
	return &Server{
		registry: registry,
		frames:   frames,
		fallback: fallback,
		upgrader: websocket.Upgrader{
			// Viewers are trusted; any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logging.Component(logger, "relay"),
	}
}

// screenQuery is the capture target a viewer may request. Omitted fields take
// the configured default.
type screenQuery struct {
	IP   string `form:"ip" binding:"omitempty,ip|hostname_rfc1123"`
	Port *int   `form:"port" binding:"omitempty,min=1,max=65535"`
}

// HandleScreen upgrades the request to a WebSocket and registers the viewer.
// The target comes from the ip and port query parameters.
func (s *Server) HandleScreen(c *gin.Context) {
	var query screenQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		s.logger.Warn("rejected viewer with invalid target",
			slog.String("remote_addr", c.ClientIP()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	port := 0
	if query.Port != nil {
		port = *query.Port
	}
	target, err := capture.ResolveTarget(query.IP, port, s.fallback)
	if err != nil {
		s.logger.Warn("rejected viewer with invalid target",
			slog.String("remote_addr", c.ClientIP()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			slog.String("remote_addr", c.ClientIP()),
			slog.String("error", err.Error()),
		)
		return
	}

	sub, err := s.registry.Register(conn, target)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		}
		conn.Close()
		return
	}

	s.logger.Info("viewer connected",
		slog.String("subscriber_id", sub.ID()),
		slog.String("remote_addr", c.ClientIP()),
		slog.String("target", target.String()),
	)
}

// Run distributes frames until ctx is cancelled. Frames are handed to
// subscribers from this single goroutine, so each subscriber sees them in
// extraction order.
func (s *Server) Run(ctx context.Context) {
	defer s.logger.Debug("frame distribution stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.frames:
			s.registry.Broadcast(frame)
		}
	}
}

// Close disconnects every viewer and stops the capture pipeline.
func (s *Server) Close() {
	s.registry.Close()
}
