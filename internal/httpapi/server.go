// Package httpapi serves the registered data models over HTTP as JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/markqiu/openbb-tushare/internal/datefmt"
	"github.com/markqiu/openbb-tushare/internal/metrics"
	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/store"
	"github.com/markqiu/openbb-tushare/internal/symbol"
	"github.com/markqiu/openbb-tushare/internal/tushare"
)

// APIKeyHeader carries a per-request Tushare token. Requests without it use
// the server's configured token.
const APIKeyHeader = "X-Tushare-Api-Key"

// Server exposes a model registry over HTTP.
type Server struct {
	registry *provider.Registry
	metrics  *metrics.Metrics
	log      *slog.Logger
	timeout  time.Duration
}

// NewServer creates a Server for reg. m may be nil, in which case /metrics
// answers 404.
func NewServer(reg *provider.Registry, m *metrics.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		registry: reg,
		metrics:  m,
		log:      log.With("component", "httpapi"),
		timeout:  2 * time.Minute,
	}
}

// ModelInfo describes one registered model.
type ModelInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Response is the envelope of every JSON answer.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/models", s.handleModels)
	mux.HandleFunc("GET /api/v1/{model}", s.handleFetch)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return corsMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, Response{Data: "ok"})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	names := s.registry.Names()
	infos := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		e, _ := s.registry.Get(name)
		infos = append(infos, ModelInfo{Name: name, Description: e.Description()})
	}
	writeJSON(w, Response{Data: infos})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("model")
	e, ok := s.registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown model: "+name)
		return
	}

	creds := provider.Credentials{}
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		creds[provider.CredentialAPIKey] = key
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	records, err := e.Fetch(ctx, queryParams(r), creds)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("fetch failed", "model", name, "error", err, "took", time.Since(start))
		} else {
			s.log.Info("fetch rejected", "model", name, "status", status, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	s.log.Debug("fetched", "model", name, "rows", len(records), "took", time.Since(start))

	if records == nil {
		records = []provider.Record{}
	}
	writeJSON(w, Response{Data: records})
}

// queryParams turns the query string into params. Repeated keys are joined
// with commas, the form symbol lists take.
func queryParams(r *http.Request) provider.Params {
	q := r.URL.Query()
	p := make(provider.Params, len(q))
	for k, vs := range q {
		if len(vs) == 0 {
			continue
		}
		p[k] = strings.Join(vs, ",")
	}
	return p
}

// statusFor maps a model error to an HTTP status. Anything unclassified
// comes from the vendor call and is reported as a bad gateway.
func statusFor(err error) int {
	var (
		marketErr *symbol.UnsupportedMarketError
		dateErr   *datefmt.InvalidDateFormatError
		paramErr  *provider.ParamError
		apiErr    *tushare.APIError
		writeErr  *store.CacheWriteError
		schemaErr *store.CacheSchemaError
	)
	switch {
	case errors.As(err, &marketErr), errors.As(err, &dateErr), errors.As(err, &paramErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrEmptyData):
		return http.StatusNotFound
	case errors.Is(err, tushare.ErrMissingToken):
		return http.StatusUnauthorized
	case errors.As(err, &writeErr), errors.As(err, &schemaErr):
		return http.StatusInternalServerError
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+APIKeyHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: msg})
}
