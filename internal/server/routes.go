package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route for job progress events
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Analysis jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)       // GET (list), POST (submit)
	mux.HandleFunc("/api/jobs/", s.handleJobRoute)       // GET /{id}

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

// handleJobsRoute routes the jobs collection endpoint by method
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.JobHandler.SubmitJobHandler(w, r)
	case http.MethodGet:
		s.app.JobHandler.ListJobsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoute routes /api/jobs/{id}
func (s *Server) handleJobRoute(w http.ResponseWriter, r *http.Request) {
	if strings.TrimPrefix(r.URL.Path, "/api/jobs/") == "" {
		s.handleJobsRoute(w, r)
		return
	}
	s.app.JobHandler.GetJobHandler(w, r)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not found", http.StatusNotFound)
}
