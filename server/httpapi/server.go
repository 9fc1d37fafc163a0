// Package httpapi exposes a novarel database over HTTP: a SQL endpoint, table
// listing, primary-key addressed row CRUD and table export.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tuannm99/novarel"
	"github.com/tuannm99/novarel/internal/engine"
	"github.com/tuannm99/novarel/internal/export"
	"github.com/tuannm99/novarel/internal/heap"
	"github.com/tuannm99/novarel/internal/record"
	"github.com/tuannm99/novarel/internal/security"
	"github.com/tuannm99/novarel/internal/sql/executor"
	"github.com/tuannm99/novarel/internal/sql/parser"
)

const maxBodySize = 1 << 20

type Config struct {
	// ValidateSQL screens statements and text values with the security package.
	ValidateSQL  bool
	MaxSQLLength int
}

type Server struct {
	db  *novarel.DB
	cfg Config
	mux *http.ServeMux
}

func New(db *novarel.DB, cfg Config) *Server {
	s := &Server{db: db, cfg: cfg, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/query", s.handleQuery)
	s.mux.HandleFunc("GET /api/tables", s.handleListTables)
	s.mux.HandleFunc("GET /api/tables/{table}/rows", s.handleListRows)
	s.mux.HandleFunc("POST /api/tables/{table}/rows", s.handleInsertRow)
	s.mux.HandleFunc("GET /api/tables/{table}/rows/{key}", s.handleGetRow)
	s.mux.HandleFunc("PUT /api/tables/{table}/rows/{key}", s.handleUpdateRow)
	s.mux.HandleFunc("DELETE /api/tables/{table}/rows/{key}", s.handleDeleteRow)
	s.mux.HandleFunc("GET /api/tables/{table}/export", s.handleExport)
	s.mux.HandleFunc("/", s.handleNotFound)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(sw, r)
	slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", sw.status, "elapsed", time.Since(start))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("novarel http server listening", "addr", addr)
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

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("http: encode response", "err", err)
		http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("http: request failed", "err", err)
		msg = "Internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps engine errors to HTTP status codes: 404 for missing tables
// and rows, 400 for anything the caller can fix, 500 otherwise.
func statusFor(err error) int {
	var pe *parser.ParseError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, engine.ErrTableNotFound), errors.Is(err, heap.ErrRowNotFound):
		return http.StatusNotFound
	case errors.As(err, &pe),
		errors.Is(err, errBadRequest),
		errors.Is(err, record.ErrMissingColumns),
		errors.Is(err, record.ErrTypeMismatch),
		errors.Is(err, record.ErrUnknownColumn),
		errors.Is(err, record.ErrInvalidSchema),
		errors.Is(err, heap.ErrDuplicateKey),
		errors.Is(err, heap.ErrUniqueViolation),
		errors.Is(err, engine.ErrTableExists),
		errors.Is(err, export.ErrUnsupported),
		errors.Is(err, executor.ErrInvalidStatement),
		errors.Is(err, security.ErrInvalidInput),
		errors.Is(err, security.ErrSuspiciousInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// decodeBody reads a JSON body, keeping numbers as json.Number for Column.Cast.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	if len(body) > maxBodySize {
		return fmt.Errorf("%w: request body too large", errBadRequest)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: request data is required", errBadRequest)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	slog.Warn("http: endpoint not found", "path", r.URL.Path)
	writeJSON(w, http.StatusNotFound, errorBody{Error: "Endpoint not found"})
}
