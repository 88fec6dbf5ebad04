package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"calltriage-server/pkg/correlation"
	"calltriage-server/pkg/errors"
	"calltriage-server/pkg/lifecycle"
	"calltriage-server/pkg/rum"
)

// TriageService is the lifecycle analysis surface the API exposes
type TriageService interface {
	Search(ctx context.Context, params rum.SearchParams) (*lifecycle.SearchResult, error)
	Summarize(ctx context.Context, params rum.SearchParams) (*lifecycle.SummarizeResult, error)
	AnalyzeRTPTimeouts(ctx context.Context, params rum.SearchParams) (*lifecycle.RTPAnalysisResult, error)
}

// APIHandler exposes the triage service over HTTP
type APIHandler struct {
	logger           *logrus.Logger
	service          TriageService
	defaultPageLimit int
	defaultMaxPages  int
}

// NewAPIHandler creates an API handler with pagination defaults applied
// to requests that leave them unset
func NewAPIHandler(logger *logrus.Logger, service TriageService, defaultPageLimit, defaultMaxPages int) *APIHandler {
	if defaultPageLimit <= 0 {
		defaultPageLimit = rum.DefaultPageLimit
	}
	if defaultMaxPages <= 0 {
		defaultMaxPages = rum.DefaultMaxPages
	}

	return &APIHandler{
		logger:           logger,
		service:          service,
		defaultPageLimit: defaultPageLimit,
		defaultMaxPages:  defaultMaxPages,
	}
}

// RegisterHandlers registers the API endpoints with the HTTP server
func (h *APIHandler) RegisterHandlers(server *Server) {
	server.RegisterHandler("/api/search", h.handleSearch)
	server.RegisterHandler("/api/summarize", h.handleSummarize)
	server.RegisterHandler("/api/rtp-analysis", h.handleRTPAnalysis)
	server.RegisterHandler("/api/columns/hidden", h.handleHiddenColumns)
}

// decodeParams reads the search parameters from the request body and
// applies the handler's pagination defaults
func (h *APIHandler) decodeParams(r *http.Request) (rum.SearchParams, error) {
	var params rum.SearchParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		return params, errors.NewInvalidInput("invalid request body: " + err.Error())
	}

	if params.PageLimit <= 0 {
		params.PageLimit = h.defaultPageLimit
	}
	if params.MaxPages <= 0 {
		params.MaxPages = h.defaultMaxPages
	}

	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode API response")
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	correlation.LoggerFromContext(r.Context(), h.logger).WithError(err).Warn("API request failed")
	errors.WriteError(w, err)
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// handleSearch runs a raw event search and returns flattened rows
func (h *APIHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	params, err := h.decodeParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.Search(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, result)
}

// handleSummarize reconstructs call lifecycles for the fetched window
func (h *APIHandler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	params, err := h.decodeParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.Summarize(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, result)
}

// handleRTPAnalysis runs the two-phase RTP timeout post-mortem
func (h *APIHandler) handleRTPAnalysis(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	params, err := h.decodeParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.AnalyzeRTPTimeouts(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, result)
}

// handleHiddenColumns returns the column names UIs hide by default
func (h *APIHandler) handleHiddenColumns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, map[string][]string{"hidden_columns": DefaultHiddenColumns()})
}
