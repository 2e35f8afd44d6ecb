// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/config"
	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/internal/record"
	"github.com/smartdevs17/rsk-contract-deployer/internal/storage"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// HTTPServer serves the deployment outputs and history read-only
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	files          record.Paths
	history        storage.Storage
	metricsManager *metrics.Manager
	logger         *logrus.Logger
	startedAt      time.Time
}

// NewHTTPServer creates a new HTTP server. history and metricsManager may be nil.
func NewHTTPServer(cfg *config.ServerConfig, files record.Paths, history storage.Storage, metricsManager *metrics.Manager) *HTTPServer {
	s := &HTTPServer{
		config:         cfg,
		files:          files,
		history:        history,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
		startedAt:      time.Now(),
	}

	s.setupRouter()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the router, mainly for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Latest outputs on disk
	api.HandleFunc("/deployment", s.recordHandler).Methods("GET")
	api.HandleFunc("/contract", s.descriptorHandler).Methods("GET")

	// History
	api.HandleFunc("/deployments", s.listDeploymentsHandler).Methods("GET")
	api.HandleFunc("/deployments/latest", s.latestDeploymentHandler).Methods("GET")
	api.HandleFunc("/deployments/{hash}", s.getDeploymentHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
		"history_enabled": s.history != nil,
	}).Info("Starting HTTP server")

	s.updateHealthMetrics()

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Surface immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) updateHealthMetrics() {
	if s.metricsManager == nil {
		return
	}
	s.metricsManager.UpdateSystemMetrics()
	s.metricsManager.GetPrometheusMetrics().UpdateApplicationUptime(s.startedAt)
	if s.history != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", s.history.Ping() == nil)
	}
}

// Health Handlers

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"metrics_enabled": s.config.EnableMetrics,
	})
}

func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := map[string]interface{}{}

	_, err := os.Stat(s.files.Record)
	components["record"] = map[string]interface{}{
		"path":   s.files.Record,
		"exists": err == nil,
	}

	if s.history != nil {
		healthy := true
		entry := map[string]interface{}{}
		if err := s.history.Ping(); err != nil {
			healthy = false
			status = "degraded"
			entry["error"] = err.Error()
		}
		entry["healthy"] = healthy
		components["storage"] = entry
	}

	s.updateHealthMetrics()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"uptime":     time.Since(s.startedAt).String(),
		"components": components,
	})
}

func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp":       time.Now().UTC(),
		"metrics_enabled": s.config.EnableMetrics,
	}
	if s.history != nil {
		storageStats, err := s.history.GetStorageStats(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
			return
		}
		stats["storage"] = storageStats
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// Output Handlers

func (s *HTTPServer) recordHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := record.ReadRecord(s.files.Record)
	if err != nil {
		s.writeFileError(w, "Deployment record not available", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *HTTPServer) descriptorHandler(w http.ResponseWriter, r *http.Request) {
	descriptor, err := record.ReadDescriptor(s.files.Descriptor)
	if err != nil {
		s.writeFileError(w, "Contract descriptor not available", err)
		return
	}
	s.writeJSON(w, http.StatusOK, descriptor)
}

func (s *HTTPServer) writeFileError(w http.ResponseWriter, message string, err error) {
	if errors.Is(err, os.ErrNotExist) {
		s.writeError(w, http.StatusNotFound, message, nil)
		return
	}
	s.writeError(w, http.StatusInternalServerError, message, err)
}

// History Handlers

func (s *HTTPServer) listDeploymentsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}

	filter := models.DeploymentFilter{Limit: defaultPageSize}
	query := r.URL.Query()

	if limitStr := query.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit", nil)
			return
		}
		if l > maxPageSize {
			l = maxPageSize
		}
		filter.Limit = l
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		o, err := strconv.Atoi(offsetStr)
		if err != nil || o < 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid offset", nil)
			return
		}
		filter.Offset = o
	}
	if network := query.Get("network"); network != "" {
		filter.Network = &network
	}
	if address := query.Get("contract"); address != "" {
		if !utils.IsValidAddress(address) {
			s.writeError(w, http.StatusBadRequest, "Invalid contract address", nil)
			return
		}
		filter.ContractAddress = &address
	}

	entries, err := s.history.ListDeployments(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve deployments", err)
		return
	}
	total, err := s.history.CountDeployments(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to count deployments", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"deployments": entries,
		"count":       len(entries),
		"total":       total,
		"limit":       filter.Limit,
		"offset":      filter.Offset,
	})
}

func (s *HTTPServer) latestDeploymentHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}

	network := r.URL.Query().Get("network")
	if network == "" {
		s.writeError(w, http.StatusBadRequest, "network query parameter is required", nil)
		return
	}

	entry, err := s.history.GetLatestDeployment(r.Context(), network)
	if err != nil {
		s.writeStorageError(w, "Failed to retrieve latest deployment", err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) getDeploymentHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}

	hash := mux.Vars(r)["hash"]
	entry, err := s.history.GetDeployment(r.Context(), hash)
	if err != nil {
		s.writeStorageError(w, "Failed to retrieve deployment", err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) requireHistory(w http.ResponseWriter) bool {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Deployment history is disabled", nil)
		return false
	}
	return true
}

func (s *HTTPServer) writeStorageError(w http.ResponseWriter, message string, err error) {
	if utils.CodeOf(err) == utils.ErrCodeNotFound {
		s.writeError(w, http.StatusNotFound, "Deployment not found", nil)
		return
	}
	s.writeError(w, http.StatusInternalServerError, message, err)
}

// Utility Methods

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
