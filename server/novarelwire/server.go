package novarelwire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tuannm99/novarel"
	"github.com/tuannm99/novarel/internal/security"
)

// Server executes framed SQL requests against one shared database. Every
// connection goes through the same novarel.DB, which serializes writers.
type Server struct {
	DB *novarel.DB

	// ValidateSQL runs security.ValidateStatement on each request before parsing.
	ValidateSQL  bool
	MaxSQLLength int

	// IdleTimeout closes connections that send nothing for this long (0 = never).
	IdleTimeout time.Duration
}

func NewServer(db *novarel.DB) *Server {
	return &Server{DB: db, ValidateSQL: true, MaxSQLLength: security.DefaultMaxSQLLength}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	slog.Info("novarel tcp server listening", "addr", ln.Addr().String(), "workdir", s.DB.DataDir())
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. It closes ln and
// waits for open connections to finish before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-connCtx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-connCtx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("accept", "err", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ServeConn(connCtx, conn)
		}()
	}
}

// ServeConn handles requests on conn until the peer disconnects, a frame is
// malformed, or ctx is cancelled.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	remote := "pipe"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	for {
		if s.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		}

		var req ExecuteRequest
		if err := ReadFrame(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				slog.Debug("novarelwire: closing connection", "remote", remote, "err", err)
			}
			return
		}

		if err := WriteFrame(conn, s.handle(req)); err != nil {
			slog.Debug("novarelwire: write response", "remote", remote, "err", err)
			return
		}
	}
}

func (s *Server) handle(req ExecuteRequest) ExecuteResponse {
	if s.ValidateSQL {
		if err := security.ValidateStatement(req.SQL, s.MaxSQLLength); err != nil {
			return ExecuteResponse{ID: req.ID, Error: err.Error()}
		}
	}

	res, err := s.DB.Exec(req.SQL)
	if err != nil {
		return ExecuteResponse{ID: req.ID, Error: err.Error()}
	}
	return ExecuteResponse{ID: req.ID, Result: res}
}
