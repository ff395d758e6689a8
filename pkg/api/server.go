// Package api implements the read-only status/admin HTTP surface
// (SPEC_FULL.md Part C): the local node's current availability summary,
// dispatcher link state and submission-record table as JSON, plus a
// websocket feed of freshly computed summaries. It is presentation only —
// nothing here ever drives a scheduling decision, in the register of the
// teacher's pkg/api gin routers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/dispatcher"
	"github.com/jcelaya/stars/pkg/localsched"
	"github.com/jcelaya/stars/pkg/summary"
	"github.com/jcelaya/stars/pkg/supervisor"
)

// Server is the node's admin HTTP surface.
type Server struct {
	log  zerolog.Logger
	cfg  config.APIConfig
	http *http.Server

	sched *localsched.Scheduler
	disp  *dispatcher.Dispatcher
	sup   *supervisor.Supervisor

	hub *hub
}

// New constructs a Server bound to the node's live components. It does not
// start listening until Start is called.
func New(cfg config.APIConfig, sched *localsched.Scheduler, disp *dispatcher.Dispatcher, sup *supervisor.Supervisor, log zerolog.Logger) *Server {
	s := &Server{
		log:   log.With().Str("component", "api").Logger(),
		cfg:   cfg,
		sched: sched,
		disp:  disp,
		sup:   sup,
		hub:   newHub(log),
	}
	s.http = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// PublishSummary pushes a freshly computed Local Scheduler snapshot to
// every websocket subscriber of /stream/summary, the same JSON shape
// /summary reports, grounded in the teacher's gorilla/websocket
// live-status push pattern. Safe to call from the node's event-loop
// goroutine; the hub's own channel hands off to its run loop.
func (s *Server) PublishSummary(snap summary.Summary) {
	s.hub.broadcast(toSummaryJSON(snap))
}

// Start runs the HTTP server (and the websocket hub) until ctx is done or
// an unrecoverable listener error occurs.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.run(ctx)

	if !s.cfg.EnableWebsocket {
		s.hub.disabled = true
	}

	s.log.Info().Str("listen", s.cfg.Listen).Msg("starting admin API server")
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.loggingMiddleware())

	if s.cfg.EnableCORS {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET"},
		}))
	}

	r.GET("/health", s.handleHealth)
	r.GET("/summary", s.handleSummary)
	r.GET("/dispatcher/links", s.handleLinks)
	r.GET("/submissions", s.handleSubmissions)
	r.GET("/submissions/:appID", s.handleSubmission)
	if s.cfg.EnableWebsocket {
		r.GET("/stream/summary", s.handleStreamSummary)
	}
	return r
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
