// Package statusserver runs a loopback-only gin engine exposing the mounted
// daemon's operational state: GET /status (locked/mounted state, statvfs
// snapshot, ratchet counter) and GET /health. Grounded on the teacher's
// server/server.go engine construction (gin.New(), explicit middleware
// chain instead of gin.Default()'s implicit one) and handlers/health.go's
// dependency-probe shape, pared down since a loopback-only endpoint has no
// CORS/auth surface to guard.
package statusserver

import (
	"context"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nas-ai/sqlitefs/internal/tree"
)

// VolumeStatus is the subset of *volume.Session the status server reports
// on. Defined narrowly here (rather than importing internal/volume
// directly) to keep the dependency one-directional.
type VolumeStatus interface {
	StatFS() tree.VolumeStat
	RatchetCount() *big.Int
}

// Server is a loopback HTTP server reporting one mounted volume's state.
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	session VolumeStatus
	logger  *logrus.Logger
}

func panicRecovery(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("panic", r).Error("statusserver: recovered panic")
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("request_id", uuid.New().String())
		c.Next()
	}
}

// New builds a Server bound to addr (e.g. "127.0.0.1:0" for an ephemeral
// port) reporting session's state.
func New(addr string, session VolumeStatus, logger *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(panicRecovery(logger), requestID())

	s := &Server{
		engine:  engine,
		session: session,
		logger:  logger,
		http: &http.Server{
			Addr:         addr,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
	engine.GET("/health", s.handleHealth)
	engine.GET("/status", s.handleStatus)
	s.http.Handler = engine
	return s
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.session.StatFS()
	c.JSON(http.StatusOK, gin.H{
		// The status server is only ever constructed over an already-open,
		// already-unlocked Session (see cmd/sqlitefs's server start), so
		// "locked" is always false here; it's reported rather than omitted
		// to match the client-facing schema a vault-style daemon exposes.
		"locked":        false,
		"mounted":       true,
		"ratchet_count": s.session.RatchetCount().String(),
		"statvfs": gin.H{
			"blocks": st.Blocks,
			"bfree":  st.Bfree,
			"bavail": st.Bavail,
			"files":  st.Files,
			"ffree":  st.Ffree,
			"favail": st.Favail,
			"bsize":  st.Bsize,
			"frsize": st.Frsize,
		},
	})
}

// Start listens on the configured address and serves in the background,
// returning the actual bound address (useful when addr's port was 0).
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return "", err
	}
	addr := ln.Addr().String()
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("statusserver: serve failed")
		}
	}()
	s.logger.WithField("addr", addr).Info("status server listening")
	return addr, nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
