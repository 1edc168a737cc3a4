package web

import (
	"context"
	"encoding/json"
	"net/http"

	"relaypool/internal/shared/logger"
	"relaypool/proxypool/model"
	"relaypool/proxypool/parser"
)

// PoolController is the part of the endpoint pool the web API drives.
// It decouples the web package from the manager package.
type PoolController interface {
	Acquire(ctx context.Context) (model.Endpoint, bool)
	ReportFailure(ep model.Endpoint)
	ReportSuccess(ep model.Endpoint)
	Stats() model.Stats
	Snapshot() []model.Endpoint
}

// AcquireResponse 是 POST /api/acquire 的响应体。URL 包含凭据。
type AcquireResponse struct {
	Endpoint model.Endpoint `json:"endpoint"`
	URL      string         `json:"url"`
}

// ReportRequest 是 POST /api/report 的请求体。
type ReportRequest struct {
	Address string `json:"address"`
	Success bool   `json:"success"`
}

type Handler struct {
	pool PoolController
}

func NewHandler(pool PoolController) *Handler {
	return &Handler{pool: pool}
}

// HandleStats 处理 GET /api/stats 请求
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.pool.Stats())
}

// HandleEndpoints 处理 GET /api/endpoints 请求, 按轮换顺序返回健康端点。
func (h *Handler) HandleEndpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.pool.Snapshot())
}

// HandleAcquire 处理 POST /api/acquire 请求。池为空时返回 503。
func (h *Handler) HandleAcquire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ep, ok := h.pool.Acquire(r.Context())
	if !ok {
		http.Error(w, "No endpoint available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, AcquireResponse{Endpoint: ep, URL: ep.URL().String()})
}

// HandleReport 处理 POST /api/report 请求。
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	ep, err := parser.Parse(req.Address, parser.DefaultPort)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Success {
		h.pool.ReportSuccess(ep)
	} else {
		h.pool.ReportFailure(ep)
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("Failed to encode JSON response.")
	}
}
