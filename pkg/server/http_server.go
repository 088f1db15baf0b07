package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/ksuid"

	"github.com/luongdev/rtcfeatures/pkg/connection"
	"github.com/luongdev/rtcfeatures/pkg/dump"
	"github.com/luongdev/rtcfeatures/pkg/features"
	"github.com/luongdev/rtcfeatures/pkg/logger"
	"github.com/luongdev/rtcfeatures/pkg/metrics"
	"github.com/luongdev/rtcfeatures/pkg/processor"
	"github.com/luongdev/rtcfeatures/pkg/stats"
	"github.com/luongdev/rtcfeatures/pkg/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxBodyBytes bounds an /extract request body when no limit is configured
const DefaultMaxBodyBytes = 64 << 20

// HTTPServer serves extraction requests plus health and metrics endpoints
type HTTPServer struct {
	server       *http.Server
	registry     connection.Registry
	processor    processor.DumpProcessor
	results      store.ResultStore
	port         int
	maxBodyBytes int64
	mu           sync.RWMutex
	ready        atomic.Bool
	shutdownChan chan struct{}
	stopped      bool
}

// NewHTTPServer creates a new HTTP server instance. results may be nil, which disables /results.
func NewHTTPServer(port int, maxBodyBytes int64, registry connection.Registry, p processor.DumpProcessor, results store.ResultStore) *HTTPServer {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &HTTPServer{
		port:         port,
		maxBodyBytes: maxBodyBytes,
		registry:     registry,
		processor:    p,
		results:      results,
		shutdownChan: make(chan struct{}),
	}
}

// Handler returns the request router
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", s.instrument("/health", s.handleHealth))
	mux.Handle("/ready", s.instrument("/ready", s.handleReady))
	mux.Handle("/metrics", s.instrument("/metrics", s.handleMetrics))
	mux.Handle("/extract", s.instrument("/extract", s.handleExtract))
	mux.Handle("/results/{dumpId}", s.instrument("/results", s.handleResults))

	return mux
}

// Start starts the HTTP server
func (s *HTTPServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("HTTP server starting on port %d", s.port)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error: %v", err)
			s.ready.Store(false)
		}
	}()
	s.ready.Store(true)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdownChan:
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.server == nil {
		return nil
	}
	s.ready.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error: %v", err)
		return err
	}

	close(s.shutdownChan)
	s.stopped = true
	logger.Info("HTTP server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument counts requests per route and status
func (s *HTTPServer) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.GetMetrics().IncrementHTTPRequests(route, strconv.Itoa(rec.status))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// HealthResponse represents the response structure for /health endpoint.
// Connections are keyed by dump id and connection id, see connection.Key.
type HealthResponse struct {
	Status      string                    `json:"status"`
	Active      int                       `json:"active"`
	Connections map[string]ConnectionInfo `json:"connections"`
}

// ConnectionInfo represents the last known processing state of a peer connection
type ConnectionInfo struct {
	DumpID       string `json:"dump_id,omitempty"`
	ConnectionID string `json:"connection_id"`
	Processing   bool   `json:"processing"`
	Snapshots    int    `json:"snapshots"`
	Records      int    `json:"records"`
	Finished     string `json:"finished,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// handleHealth handles the /health endpoint
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:      "healthy",
		Connections: make(map[string]ConnectionInfo),
	}

	if s.registry != nil {
		response.Active = s.registry.Active()
		for key, status := range s.registry.GetStatus() {
			info := ConnectionInfo{
				DumpID:       status.DumpID,
				ConnectionID: status.ConnectionID,
				Processing:   status.Processing,
				Snapshots:    status.Snapshots,
				Records:      status.Records,
				LastError:    status.LastError,
			}
			if !status.FinishedAt.IsZero() {
				info.Finished = status.FinishedAt.Format(time.RFC3339)
			}
			response.Connections[key] = info
		}
	}

	writeJSON(w, http.StatusOK, response)
	logger.Debug("Health check request processed: status=%s", response.Status)
}

// handleReady handles the /ready endpoint
func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("not ready"))
}

// handleMetrics handles the /metrics endpoint (Prometheus format)
func (s *HTTPServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	metrics.GetMetrics().Handler().ServeHTTP(w, r)
}

// ExtractResponse is the body returned by /extract
type ExtractResponse struct {
	DumpID      string          `json:"dumpId"`
	Lines       int             `json:"lines"`
	Skipped     int             `json:"skipped"`
	Malformed   int             `json:"malformed"`
	Connections []*store.Result `json:"connections"`
}

// handleExtract runs an rtcstats dump posted as the request body through extraction
func (s *HTTPServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var extra []features.Option
	if name := r.URL.Query().Get("format"); name != "" {
		hint, err := stats.ParseFormat(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		extra = append(extra, features.WithFormatHint(hint))
	}

	d, err := dump.Parse(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("Invalid dump: %v", err), http.StatusBadRequest)
		return
	}

	dumpID := ksuid.New().String()
	results, err := s.processor.Process(r.Context(), dumpID, d, extra...)
	if err != nil {
		logger.ErrorWithFields(map[string]interface{}{
			"dump_id": dumpID,
			"error":   err.Error(),
		}, "Failed to process dump")
		http.Error(w, "Extraction failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ExtractResponse{
		DumpID:      dumpID,
		Lines:       d.Lines,
		Skipped:     d.Skipped,
		Malformed:   d.Malformed,
		Connections: results,
	})
}

// handleResults returns the stored results of a dump, or deletes them
func (s *HTTPServer) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		http.Error(w, "Result storage disabled", http.StatusNotFound)
		return
	}
	dumpID := r.PathValue("dumpId")

	switch r.Method {
	case http.MethodGet:
		results, err := s.results.List(r.Context(), dumpID)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Dump not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("Failed to list results of %s: %v", dumpID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, results)
	case http.MethodDelete:
		if err := s.results.Delete(r.Context(), dumpID); err != nil {
			logger.Error("Failed to delete results of %s: %v", dumpID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
