// Package server provides the HTTP REST API for the prospector service.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/prospector/internal/config"
	"github.com/jonathan/prospector/internal/db"
	"github.com/jonathan/prospector/internal/orchestrator"
	"github.com/jonathan/prospector/internal/scheduler"
	"github.com/jonathan/prospector/internal/server/middleware"
	"github.com/jonathan/prospector/internal/server/ratelimit"
	"github.com/jonathan/prospector/internal/types"
)

// JobService submits and inspects batch analysis jobs.
type JobService interface {
	Submit(ctx context.Context, req *types.SubmitJobRequest) (uuid.UUID, error)
	GetJob(jobID uuid.UUID) *orchestrator.Job
	ListJobs() []*orchestrator.Job
}

// SchedulerService controls the autonomous scheduler.
type SchedulerService interface {
	TriggerNow(ctx context.Context, triggeredBy string) (uuid.UUID, error)
	Status(ctx context.Context) (*scheduler.Status, error)
}

// StateStore reads persisted scheduler and priority state.
type StateStore interface {
	GetSchedulerConfig(ctx context.Context) (*db.SchedulerConfig, error)
	UpdateSchedulerConfig(ctx context.Context, req *types.UpdateSchedulerConfigRequest) (*db.SchedulerConfig, error)
	GetSchedulerRun(ctx context.Context, runID uuid.UUID) (*db.SchedulerRun, error)
	ListSchedulerRuns(ctx context.Context, limit int) ([]db.SchedulerRun, error)
	ListDecisions(ctx context.Context, runID uuid.UUID) ([]db.Decision, error)
	ListCompanyPriorities(ctx context.Context, filters db.PriorityFilters) ([]db.CompanyPriority, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	jobs        JobService
	scheduler   SchedulerService
	store       StateStore
	rateLimiter *ratelimit.Limiter
	auth        *AuthService
}

// Config holds server configuration
type Config struct {
	Port int
}

// New creates a new server instance. The scheduler service and state store
// may be nil, in which case the scheduler routes return 503.
func New(cfg Config, jobs JobService, sched SchedulerService, store StateStore) (*Server, error) {
	s := &Server{
		jobs:      jobs,
		scheduler: sched,
		store:     store,
	}

	// Initialize rate limiter
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.LoadConfig())

	// Initialize admin authentication
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}
	s.auth = NewAuthService(NewJWTService(jwtConfig), passwordConfig, os.Getenv("ADMIN_PASSWORD_HASH"))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(s.routes()))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for synchronous trigger responses
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// routes builds the request mux. Mutating scheduler endpoints require a
// valid admin bearer token.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Job endpoints
	mux.HandleFunc("POST /jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)

	// Scheduler endpoints
	requireAdmin := middleware.AuthMiddleware(s.auth.jwt.AsTokenValidator())
	mux.HandleFunc("GET /scheduler/config", s.handleGetSchedulerConfig)
	mux.Handle("PUT /scheduler/config", requireAdmin(http.HandlerFunc(s.handleUpdateSchedulerConfig)))
	mux.Handle("POST /scheduler/trigger", requireAdmin(http.HandlerFunc(s.handleTriggerScheduler)))
	mux.HandleFunc("GET /scheduler/status", s.handleSchedulerStatus)
	mux.HandleFunc("GET /scheduler/runs", s.handleListSchedulerRuns)
	mux.HandleFunc("GET /scheduler/runs/{id}/decisions", s.handleListRunDecisions)
	mux.HandleFunc("GET /scheduler/priorities", s.handleListPriorities)

	// Auth endpoint
	mux.HandleFunc("POST /auth/token", s.handleIssueToken)

	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		if !allowed {
			s.setRateLimitHeaders(w, info)
			s.rateLimitResponse(w, info)
			return
		}

		s.setRateLimitHeaders(w, info)
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// Uses the IP address from RemoteAddr; X-Forwarded-For is deliberately
// ignored since this server is not expected to sit behind a trusted proxy.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
