package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const dbCheckTimeout = 2 * time.Second

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   VersionInfo            `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]HealthCheck `json:"checks"`
	System    SystemInfo             `json:"system"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// worse returns the more severe of two statuses
func worse(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// handleHealthCheck provides comprehensive health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	start := time.Now()

	checks := map[string]HealthCheck{
		"dens":     s.checkDensHealth(),
		"database": s.checkDatabaseHealth(r.Context()),
		"search":   s.checkSearchHealth(),
	}
	overallStatus := HealthStatusHealthy
	for _, c := range checks {
		overallStatus = worse(overallStatus, c.Status)
	}

	response := HealthCheckResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   GetVersionInfo(),
		Uptime:    time.Since(s.startTime).String(),
		Checks:    checks,
		System:    s.getSystemInfo(),
		RequestID: requestID,
	}

	statusCode := http.StatusOK
	if overallStatus == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	s.audit.LogAuditEvent(
		requestID,
		"health_check",
		"system",
		string(overallStatus),
		map[string]interface{}{
			"duration":    time.Since(start),
			"checks":      len(checks),
			"status_code": statusCode,
		},
	)

	s.writeJSON(w, statusCode, response)
}

// handleReadiness reports whether the den table and search workers are usable
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	ready := true
	message := "Ready"
	if check := s.checkDensHealth(); check.Status == HealthStatusUnhealthy {
		ready = false
		message = check.Message
	} else if check := s.checkSearchHealth(); check.Status == HealthStatusUnhealthy {
		ready = false
		message = check.Message
	}

	response := map[string]interface{}{
		"ready":          ready,
		"message":        message,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"request_id":     requestID,
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, statusCode, response)
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

func newCheck(start time.Time, status HealthStatus, message string) HealthCheck {
	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// checkDensHealth checks the den table loaded
func (s *Server) checkDensHealth() HealthCheck {
	start := time.Now()
	if s.dens == nil {
		return newCheck(start, HealthStatusUnhealthy, "Den table not loaded")
	}
	n := len(s.dens.List())
	if n == 0 {
		return newCheck(start, HealthStatusUnhealthy, "No dens available")
	}
	return newCheck(start, HealthStatusHealthy, fmt.Sprintf("%d dens available", n))
}

// checkDatabaseHealth queries the schema version. A missing database only
// degrades the service since searches still work.
func (s *Server) checkDatabaseHealth(ctx context.Context) HealthCheck {
	start := time.Now()
	if s.db == nil {
		return newCheck(start, HealthStatusDegraded, "Persistence disabled")
	}

	ctx, cancel := context.WithTimeout(ctx, dbCheckTimeout)
	defer cancel()
	version, err := s.db.Version(ctx)
	if err != nil {
		return newCheck(start, HealthStatusUnhealthy, fmt.Sprintf("Database error: %v", err))
	}
	return newCheck(start, HealthStatusHealthy, fmt.Sprintf("Schema version %d", version))
}

// checkSearchHealth checks the scanner and dispatcher exist
func (s *Server) checkSearchHealth() HealthCheck {
	start := time.Now()
	if s.scanner == nil || s.dispatcher == nil {
		return newCheck(start, HealthStatusUnhealthy, "Search not initialized")
	}
	return newCheck(start, HealthStatusHealthy, fmt.Sprintf("%d searches running", s.dispatcher.Running()))
}

// getSystemInfo collects system information
func (s *Server) getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		MemoryAlloc:   m.Alloc,
		MemorySys:     m.Sys,
		GCCycles:      m.NumGC,
	}
}
