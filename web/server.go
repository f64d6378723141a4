// Package web serves loop status and detection results over HTTP and a
// websocket stream.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"CamDetLoop/logger"
	"CamDetLoop/loop"
	"CamDetLoop/sink"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StatsFunc reports the current loop counters.
type StatsFunc func() loop.Stats

type Server struct {
	router   *gin.Engine
	hub      *sink.Hub
	stats    StatsFunc
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func New(hub *sink.Hub, stats StatsFunc, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router: gin.New(),
		hub:    hub,
		stats:  stats,
		log:    logger.OrDefault(log, "web"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.router.Use(gin.Recovery(), s.accessLog())
	s.router.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	s.router.GET("/api/status", s.status)
	s.router.GET("/api/results/latest", s.latest)
	s.router.GET("/ws/results", s.stream)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("Method", c.Request.Method),
			zap.String("Path", c.Request.URL.Path),
			zap.Int("Status", c.Writer.Status()),
			zap.Duration("Elapsed", time.Since(start)))
	}
}

func (s *Server) status(c *gin.Context) {
	st := s.stats()
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"running":      st.Running,
		"startedAt":    st.StartedAt,
		"cycles":       st.Cycles,
		"undecided":    st.Undecided,
		"blocked":      st.Blocked,
		"passed":       st.Passed,
		"detections":   st.Detections,
		"detectErrors": st.DetectErrors,
		"retries":      st.Retries,
		"lastScore":    st.LastScore,
		"fps":          st.FPS,
		"subscribers":  s.hub.Subscribers(),
	}})
}

func (s *Server) latest(c *gin.Context) {
	r, ok := s.hub.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no results yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sink.NewPayload(r)})
}

func (s *Server) stream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	reports, cancel := s.hub.Subscribe(8)
	defer cancel()

	// the client never sends anything useful; reading only notices a close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.log.Info("websocket subscriber connected", zap.String("Remote", c.Request.RemoteAddr))
	for {
		select {
		case <-gone:
			s.log.Info("websocket subscriber left", zap.String("Remote", c.Request.RemoteAddr))
			return
		case <-c.Request.Context().Done():
			return
		case r, ok := <-reports:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(sink.NewPayload(r)); err != nil {
				s.log.Warn("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("Addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
