// Package server exposes relay health, statistics, log tails and a live
// event stream over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/Dima2024Alekseev/bot-pm2/internal/aggregator"
	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
)

func logger() *log.Logger { return log.WithPrefix("server") }

const defaultTailLines = 20

// StatsSource provides aggregated relay metrics.
type StatsSource interface {
	Snapshot() aggregator.Stats
}

// Broadcaster hands out live event subscriptions.
type Broadcaster interface {
	Subscribe() <-chan model.LogEvent
	Unsubscribe(sub <-chan model.LogEvent)
}

// LogReader returns the tail of a log file.
type LogReader interface {
	ReadLastLines(path string, n int) (string, error)
}

// Server holds the Gin engine and its dependencies.
type Server struct {
	engine *gin.Engine
	hub    Broadcaster
	stats  StatsSource
	logs   LogReader
	paths  map[string]string // stream -> log file
	addr   string
}

// New creates the HTTP server. paths maps stream names to log files.
func New(h Broadcaster, stats StatsSource, logs LogReader, paths map[string]string, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine: engine,
		hub:    h,
		stats:  stats,
		logs:   logs,
		paths:  paths,
		addr:   addr,
	}

	s.setupRoutes()
	return s
}

// Handler returns the routed engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		stats := s.stats.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"uptime":         stats.Uptime,
			"files_watched":  stats.FilesWatched,
			"eps":            stats.EPS,
			"dropped_events": stats.DroppedEvents,
		})
	})

	s.engine.GET("/api/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.stats.Snapshot())
	})

	s.engine.GET("/api/logs/:stream", s.handleLogs)

	s.engine.GET("/ws", s.handleWebSocket)

	s.engine.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	s.engine.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	s.engine.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	s.engine.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	s.engine.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	s.engine.GET("/debug/pprof/heap", gin.WrapH(pprof.Handler("heap")))
	s.engine.GET("/debug/pprof/goroutine", gin.WrapH(pprof.Handler("goroutine")))
}

func (s *Server) handleLogs(c *gin.Context) {
	stream := c.Param("stream")
	path, ok := s.paths[stream]
	if !ok || path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown log stream: " + stream})
		return
	}

	n := defaultTailLines
	if raw := c.Query("lines"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lines must be a positive integer"})
			return
		}
		n = v
	}

	text, err := s.logs.ReadLastLines(path, n)
	if err != nil {
		logger().Error("read log tail", "path", path, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stream": stream,
		"path":   path,
		"lines":  n,
		"text":   text,
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger().Error("shutdown", "err", err)
		}
	}()

	logger().Info("listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
