// Package server provides the HTTP API for issuing upload grants.
//
// Endpoints:
//
//	POST /upload/sas  issue a single-object upload URL
//	GET  /healthz     liveness check
//
// The API is anonymous. Access control rests entirely on the scope and
// expiry of the grants it issues.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tomasbasham/upload-sas/internal/grant"
	"github.com/tomasbasham/upload-sas/internal/storage"
)

// maxBodyBytes caps request bodies; a valid request is a few hundred bytes.
const maxBodyBytes = 64 << 10

// Issuer issues upload grants.
type Issuer interface {
	Issue(ctx context.Context, req grant.Request) (*grant.Grant, error)
}

// Server holds the dependencies shared across HTTP handlers.
type Server struct {
	issuer Issuer
	router chi.Router
}

// New creates a Server wired to the given issuer. requestTimeout bounds each
// request, including the call to the storage backend.
func New(issuer Issuer, requestTimeout time.Duration) *Server {
	s := &Server{issuer: issuer}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/upload/sas", s.handleIssueSAS)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the given address and shuts it
// down gracefully once ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// issueSASResponse is returned from a successful POST /upload/sas.
type issueSASResponse struct {
	UploadURL        string `json:"uploadUrl"`
	BlobName         string `json:"blobName"`
	ExpiresInMinutes int    `json:"expiresInMinutes"`
}

// errorResponse is the body of every 500 response.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (s *Server) handleIssueSAS(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeText(w, http.StatusBadRequest, "invalid request body")
		return
	}

	g, err := s.issuer.Issue(r.Context(), req)
	if err != nil {
		s.writeIssueError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, issueSASResponse{
		UploadURL:        g.UploadURL,
		BlobName:         g.ObjectName,
		ExpiresInMinutes: g.ExpiresInMinutes(),
	})
}

// decodeRequest reads exactly one JSON object from r. Anything after it other
// than whitespace makes the body malformed.
func decodeRequest(r io.Reader) (grant.Request, error) {
	var req grant.Request
	dec := json.NewDecoder(r)
	if err := dec.Decode(&req); err != nil {
		return grant.Request{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return grant.Request{}, errors.New("unexpected data after request object")
	}
	return req, nil
}

// writeIssueError maps issuance failures onto status codes. Validation errors
// are the caller's fault and are returned verbatim; everything else is an
// operational failure and only its kind and message reach the client.
func (s *Server) writeIssueError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *grant.ValidationError
		configErr     *grant.ConfigError
		backendErr    *grant.BackendError
	)

	switch {
	case errors.As(err, &validationErr):
		slog.Debug("Rejected upload request", "field", validationErr.Field)
		writeText(w, http.StatusBadRequest, validationErr.Message())

	case errors.As(err, &configErr):
		slog.Error("Upload grant issuance misconfigured",
			"request_id", middleware.GetReqID(r.Context()),
			"setting", configErr.Setting,
			"error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: configErr.Kind(), Detail: configErr.Error()})

	case errors.As(err, &backendErr):
		slog.Error("Upload grant issuance failed",
			"request_id", middleware.GetReqID(r.Context()),
			"op", backendErr.Op,
			"kind", backendErr.Kind,
			"error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: backendErr.Kind, Detail: backendErr.Error()})

	default:
		slog.Error("Upload grant issuance failed",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: storage.ErrorKind(err), Detail: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
