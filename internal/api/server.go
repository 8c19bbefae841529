// Package api implements the ingestion process's minimal internal HTTP
// surface (spec §6): a health check, the Prometheus scrape endpoint,
// and a loopback-only options cache-invalidate hook for the external
// account subsystem to call after writing a user's options_json.
//
// Grounded on zhilong1115-Aspen/api's gin.New()+corsMiddleware()+health
// route shape (api/server_handlers_test.go), generalized from its
// JWT-guarded account API to this process's unauthenticated, loopback-
// only internal routes, and on internal/metrics's own handler/middleware
// for the scrape endpoint.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"spikeingest/internal/logging"
	"spikeingest/internal/metrics"
)

// Invalidator is implemented by *spike.Detector; kept as a narrow
// interface so this package never imports the detection internals.
type Invalidator interface {
	Invalidate(userID int64)
}

// Server is the process's internal HTTP server.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
}

// NewServer builds the internal server on addr (e.g. ":9090"). invalidate
// is called for POST /internal/invalidate/:userID requests; the route
// refuses any request not originating from loopback, since this
// endpoint carries no auth of its own.
func NewServer(addr string, invalidate Invalidator, startedAt time.Time) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"uptime_seconds": int64(time.Since(startedAt).Seconds()),
		})
	})

	r.GET("/metrics", metrics.Handler())

	r.POST("/internal/invalidate/:userID", loopbackOnly(), func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("userID"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		invalidate.Invalidate(userID)
		c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
	})

	return &Server{
		engine:     r,
		httpServer: &http.Server{Addr: addr, Handler: r},
	}
}

// loopbackOnly rejects requests whose remote address is not localhost,
// since the invalidate hook has no auth of its own and is meant to be
// reached only by the co-located account-subsystem process.
func loopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "loopback only"})
			return
		}
		c.Next()
	}
}

// Start runs the server until Shutdown is called. Intended to be run in
// its own goroutine from main.
func (s *Server) Start() error {
	logging.WithComponent("api").Info().Str("addr", s.httpServer.Addr).Msg("internal server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// WriteStartSentinel records the process's start timestamp to path, the
// sentinel file spec §6 calls for so an external supervisor can compute
// uptime without querying the HTTP server.
func WriteStartSentinel(path string, startedAt time.Time) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", startedAt.Unix())), 0o644)
}
