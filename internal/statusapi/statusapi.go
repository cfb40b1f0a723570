// Package statusapi exposes a minimal read-only HTTP surface for
// operators and load balancers: /healthz and /stats. The curses UI,
// full REST/multicast admin API and auth/session surface the original
// ships are explicitly out of scope (spec §1 Non-goals); this keeps
// only the diagnostic subset a coordinator process needs in practice.
package statusapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// PoolStatus is one pool's summary as reported to /stats.
type PoolStatus struct {
	ID       int    `json:"id"`
	URL      string `json:"url"`
	State    string `json:"state"`
	Accepted int64  `json:"accepted"`
	Rejected int64  `json:"rejected"`
	Stale    int64  `json:"stale"`
}

// DeviceStatus is one device's summary as reported to /stats.
type DeviceStatus struct {
	ID          string  `json:"id"`
	Liveness    string  `json:"liveness"`
	HashrateHS  float64 `json:"hashrate_hs"`
	Temperature float64 `json:"temperature"`
}

// Source supplies the live snapshot served by /stats. internal/pool
// and internal/device satisfy narrower pieces of this; cmd/coordinator
// wires a concrete implementation at startup.
type Source interface {
	Pools() []PoolStatus
	Devices() []DeviceStatus
	StartedAt() time.Time
}

// Server is the read-only status HTTP surface.
type Server struct {
	src    Source
	router *gin.Engine
	http   *http.Server
}

// New builds a Server bound to addr, serving from src.
func New(addr string, src Source) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		src:    src,
		router: router,
		http:   &http.Server{Addr: addr, Handler: router},
	}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/stats", s.handleStats)

	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"started_at": s.src.StartedAt(),
		"uptime_s":   time.Since(s.src.StartedAt()).Seconds(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pools":   s.src.Pools(),
		"devices": s.src.Devices(),
	})
}
