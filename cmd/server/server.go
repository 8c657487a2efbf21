package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/easyrules/internal/config"
	"github.com/liamcoop/easyrules/internal/logger"
	"github.com/liamcoop/easyrules/listener"
	"github.com/liamcoop/easyrules/multitenantengine"
	"github.com/liamcoop/easyrules/rules"
)

type Server struct {
	engineManager *multitenantengine.MultiTenantEngineManager
	registry      *prometheus.Registry
	router        *chi.Mux
	logger        *slog.Logger
}

// NewServer builds the tenant manager, registers metrics on registry and
// loads cfg.RulesDir if set
func NewServer(cfg config.Config, registry *prometheus.Registry, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	metrics, err := listener.NewMetrics(cfg.MetricsNamespace, registry)
	if err != nil {
		return nil, err
	}
	if err := registerLogCounters(cfg.MetricsNamespace, registry); err != nil {
		return nil, err
	}

	engineManager := multitenantengine.NewMultiTenantEngineManager(
		multitenantengine.WithDefaultParameters(cfg.Parameters()),
		multitenantengine.WithLogger(log),
		multitenantengine.WithEngineOptions(func(tenantID string) []rules.Option {
			return []rules.Option{
				rules.WithRuleListeners(
					metrics.RuleListener(tenantID),
					listener.NewLogging(log.With("tenant", tenantID)),
				),
				rules.WithRulesEngineListeners(metrics.RunListener(tenantID)),
			}
		}),
	)

	s := &Server{
		engineManager: engineManager,
		registry:      registry,
		logger:        log,
	}
	s.setupRoutes()

	return s, nil
}

// registerLogCounters exposes the sampled log counters, which count every call
func registerLogCounters(namespace string, registry prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_errors_total",
			Help:      "Total number of error log calls, including sampled-out ones",
		}, func() float64 { return float64(logger.TotalErrors.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_warnings_total",
			Help:      "Total number of warning log calls, including sampled-out ones",
		}, func() float64 { return float64(logger.TotalWarnings.Load()) }),
	} {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("register log metrics: %w", err)
		}
	}
	return nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))

	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Get("/", s.handleListTenants)
		r.Post("/", s.handleCreateTenant)

		r.Route("/{tenantId}", func(r chi.Router) {
			r.Get("/", s.handleGetTenant)
			r.Delete("/", s.handleDeleteTenant)

			r.Put("/schema", s.handleUpdateSchema)

			r.Get("/rules", s.handleListRules)
			r.Put("/rules", s.handleUpdateRules)

			r.Post("/fire", s.handleFire)
			r.Post("/check", s.handleCheck)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs one line per request with slog
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		}
		switch {
		case ww.Status() >= 500:
			logger.Error("Request failed", attrs...)
		case ww.Status() >= 400:
			logger.Warn("Request rejected", attrs...)
		default:
			s.logger.Debug("Request served", attrs...)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		TenantsLoaded: len(s.engineManager.ListTenants()),
	})
}

func tenantResponse(te *multitenantengine.TenantEngine) TenantResponse {
	return TenantResponse{
		ID:         te.TenantID,
		Language:   te.Language,
		Schema:     te.Schema,
		Parameters: te.Parameters,
		RuleCount:  te.Rules.Len(),
	}
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants := make([]TenantResponse, 0)
	for _, id := range s.engineManager.ListTenants() {
		te, err := s.engineManager.GetTenant(id)
		if err != nil {
			// Deleted between the list and the lookup.
			continue
		}
		tenants = append(tenants, tenantResponse(te))
	}
	respondJSON(w, http.StatusOK, TenantsListResponse{Tenants: tenants})
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	params := s.engineManager.Defaults()
	req := CreateTenantRequest{TenantConfig: multitenantengine.TenantConfig{Parameters: &params}}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.ID == "" {
		respondError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	if _, err := s.engineManager.GetTenant(req.ID); err == nil {
		respondError(w, http.StatusConflict, "tenant already exists", nil)
		return
	}

	if err := s.engineManager.CreateTenant(req.ID, req.TenantConfig); err != nil {
		respondError(w, http.StatusBadRequest, "failed to create tenant", err)
		return
	}

	te, err := s.engineManager.GetTenant(req.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "tenant vanished after creation", err)
		return
	}
	respondJSON(w, http.StatusCreated, tenantResponse(te))
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	te, err := s.engineManager.GetTenant(chi.URLParam(r, "tenantId"))
	if err != nil {
		respondManagerError(w, "failed to get tenant", err)
		return
	}
	respondJSON(w, http.StatusOK, tenantResponse(te))
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.engineManager.DeleteTenant(chi.URLParam(r, "tenantId")); err != nil {
		respondManagerError(w, "failed to delete tenant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req UpdateSchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := multitenantengine.ValidateSchema(req.Definition); err != nil {
		respondError(w, http.StatusBadRequest, "schema validation failed", err)
		return
	}

	if err := s.engineManager.UpdateTenantSchema(tenantID, req.Definition); err != nil {
		respondManagerError(w, "failed to update schema", err)
		return
	}

	te, err := s.engineManager.GetTenant(tenantID)
	if err != nil {
		respondManagerError(w, "failed to get tenant", err)
		return
	}
	respondJSON(w, http.StatusOK, tenantResponse(te))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	te, err := s.engineManager.GetTenant(chi.URLParam(r, "tenantId"))
	if err != nil {
		respondManagerError(w, "failed to list rules", err)
		return
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: te.Definitions})
}

func (s *Server) handleUpdateRules(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req RulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.engineManager.UpdateTenantRules(tenantID, req.Rules); err != nil {
		respondManagerError(w, "failed to update rules", err)
		return
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: req.Rules})
}

// decodeFacts reads a FactsRequest and returns a run id with a logger tagged with it
func (s *Server) decodeFacts(w http.ResponseWriter, r *http.Request) (*rules.Facts, string, *slog.Logger, bool) {
	var req FactsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return nil, "", nil, false
	}
	if req.Facts == nil {
		respondError(w, http.StatusBadRequest, "facts are required", nil)
		return nil, "", nil, false
	}

	runID := uuid.NewString()
	runLogger := s.logger.With(
		"run_id", runID,
		"tenant", chi.URLParam(r, "tenantId"),
		"request_id", middleware.GetReqID(r.Context()),
	)
	return rules.FactsFromMap(req.Facts), runID, runLogger, true
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	facts, runID, runLogger, ok := s.decodeFacts(w, r)
	if !ok {
		return
	}

	startTime := time.Now()
	result, err := s.engineManager.Fire(chi.URLParam(r, "tenantId"), facts,
		rules.WithLogger(runLogger),
		rules.WithRulesEngineListeners(listener.NewRunLogging(runLogger)),
	)
	if err != nil {
		respondManagerError(w, "fire failed", err)
		return
	}

	respondJSON(w, http.StatusOK, FireResponse{
		RunID:          runID,
		Result:         result,
		Facts:          facts.AsMap(),
		EvaluationTime: time.Since(startTime).String(),
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	facts, runID, runLogger, ok := s.decodeFacts(w, r)
	if !ok {
		return
	}

	te, err := s.engineManager.GetTenant(tenantID)
	if err != nil {
		respondManagerError(w, "check failed", err)
		return
	}

	startTime := time.Now()
	outcomes, err := s.engineManager.Check(tenantID, facts, rules.WithLogger(runLogger))
	if err != nil {
		respondManagerError(w, "check failed", err)
		return
	}

	// Report in rule order; the tenant may have been swapped since te was read.
	results := make([]CheckResult, 0, len(outcomes))
	for rule := range te.Rules.All() {
		if matched, ok := outcomes[rules.KeyOf(rule)]; ok {
			results = append(results, CheckResult{Rule: rule.Name(), Priority: rule.Priority(), Matched: matched})
			delete(outcomes, rules.KeyOf(rule))
		}
	}
	for key, matched := range outcomes {
		results = append(results, CheckResult{Rule: key.Name, Priority: key.Priority, Matched: matched})
	}

	respondJSON(w, http.StatusOK, CheckResponse{
		RunID:          runID,
		Results:        results,
		EvaluationTime: time.Since(startTime).String(),
	})
}

func respondManagerError(w http.ResponseWriter, message string, err error) {
	if errors.Is(err, multitenantengine.ErrTenantNotFound) {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}
	respondError(w, http.StatusBadRequest, message, err)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
