package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/heysubinoy/pyazkv/internal/store"
	"github.com/heysubinoy/pyazkv/pkg/config"
	"github.com/heysubinoy/pyazkv/pkg/kv"
)

const msgKeyNotFound = "Key not found!"

var (
	errMissingBody  = errors.New("request body must be a JSON object")
	errMissingValue = errors.New(`request body must contain a "value" field`)
)

// Server wraps a kv.Store and exposes HTTP endpoints for KV operations.
// Raft is set only for the raft backend; writes and reads are then refused
// while this node is not the leader.
type Server struct {
	Store        kv.Store
	Raft         *raft.Raft
	Logger       hclog.Logger
	MaxBodyBytes int64
}

// NewServer creates a new HTTP server with the given store.
func NewServer(store kv.Store, raftNode *raft.Raft, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{
		Store:        store,
		Raft:         raftNode,
		Logger:       logger,
		MaxBodyBytes: config.DefaultMaxBodyBytes,
	}
}

// RegisterRoutes registers all HTTP handlers on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /data", s.handleList)
	mux.HandleFunc("GET /data/{key}", s.handleGet)
	mux.HandleFunc("PUT /data/{key}", s.handlePut)
	mux.HandleFunc("DELETE /data/{key}", s.handleDelete)
	mux.HandleFunc("GET /healthz", s.handleHealth)
}

type valueResponse struct {
	Value kv.Value `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON marshals before touching the ResponseWriter so an encoding
// failure can still be reported as a 500.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.Logger.Error("error encoding response", "error", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Error encoding response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.Logger.Debug("error writing response", "error", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: msg}); err != nil {
		s.Logger.Debug("error encoding error response", "error", err)
	}
}

func (s *Server) writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, msg+"\n"); err != nil {
		s.Logger.Debug("error writing response", "error", err)
	}
}

// writeStoreError maps store errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, kv.ErrNotFound):
		s.writeJSONError(w, http.StatusNotFound, msgKeyNotFound)
	case errors.Is(err, kv.ErrInvalidKey), errors.Is(err, kv.ErrInvalidValue):
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotLeader):
		s.writeJSONError(w, http.StatusServiceUnavailable, "Not leader")
	default:
		s.Logger.Error("store operation failed", "error", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// checkLeader writes a 503 and returns false when a raft-backed node cannot
// serve requests.
func (s *Server) checkLeader(w http.ResponseWriter) bool {
	if s.Raft == nil || s.Raft.State() == raft.Leader {
		return true
	}
	s.writeJSONError(w, http.StatusServiceUnavailable, "Not leader")
	return false
}

// handleList handles GET /data.
// Returns every stored pair as one JSON object.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if !s.checkLeader(w) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.Store.All())
}

// handleGet handles GET /data/{key}.
// Returns {"value": ...} or 404 {"error": "Key not found!"}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if !s.checkLeader(w) {
		return
	}

	value, ok := s.Store.Get(r.PathValue("key"))
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, msgKeyNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, valueResponse{Value: value})
}

// handlePut handles PUT /data/{key} requests with JSON body.
// Expects: {"value": <any JSON>}
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	if !s.checkLeader(w) {
		return
	}

	key := r.PathValue("key")
	if err := kv.ValidateKey(key); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid key %q", key))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.MaxBodyBytes)
	value, err := decodeValue(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSONError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.Store.Set(key, value)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if created {
		s.writeText(w, http.StatusCreated, fmt.Sprintf("Key %q created", key))
		return
	}
	s.writeText(w, http.StatusOK, fmt.Sprintf("Key %q updated", key))
}

// handleDelete handles DELETE /data/{key}.
// Any request body is ignored.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.checkLeader(w) {
		return
	}

	key := r.PathValue("key")
	if err := s.Store.Delete(key); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeText(w, http.StatusOK, fmt.Sprintf("Key %q deleted", key))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeText(w, http.StatusOK, "OK")
}

// decodeValue reads a single JSON object from body and returns its "value"
// field. The field only has to be present; null, false, 0 and "" are
// all accepted.
func decodeValue(body io.Reader) (kv.Value, error) {
	var req map[string]json.RawMessage

	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errMissingBody
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid JSON body: trailing data")
	}

	value, ok := req["value"]
	if !ok {
		return nil, errMissingValue
	}
	return value, nil
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// WithLogging logs one line per request and turns handler panics into 500s.
func (s *Server) WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.Logger.Error("panic serving request", "method", r.Method, "path", r.URL.Path, "panic", p)
				if rec.status == 0 {
					s.writeJSONError(rec, http.StatusInternalServerError, "Internal server error")
				}
			}
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			s.Logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", rec.bytes,
				"duration", time.Since(start))
		}()

		next.ServeHTTP(rec, r)
	})
}
