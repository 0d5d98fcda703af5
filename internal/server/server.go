// Package server exposes connection checks and deployments over HTTP.
//
// Credentials arrive with each request and are handed straight to the
// session; the server never stores or logs them.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rileyhilliard/agentdeploy/internal/deploy"
	"github.com/rileyhilliard/agentdeploy/internal/host"
	"github.com/rileyhilliard/agentdeploy/internal/logger"
	"github.com/rileyhilliard/agentdeploy/internal/store"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
)

// Checker runs a connection check. *host.Checker satisfies it.
type Checker interface {
	Check(target sshutil.Target) host.ConnectionOutcome
}

// Deployer runs a deployment attempt. *deploy.Orchestrator satisfies it.
type Deployer interface {
	Deploy(target sshutil.Target, opts ...deploy.AttemptOption) deploy.Outcome
}

// Store persists attempts. *store.Store satisfies it.
type Store interface {
	RecordDeployment(ctx context.Context, username string, out deploy.Outcome) error
	History(ctx context.Context, address string, limit int) ([]store.Deployment, error)
	Ping(ctx context.Context) error
}

// Server holds the collaborators behind the HTTP handlers. Store and
// Metrics are optional.
type Server struct {
	Checker  Checker
	Deployer Deployer
	Store    Store
	Metrics  http.Handler
	Log      logger.Logger
}

// ValidateRequest is the body of POST /machines/validate.
type ValidateRequest struct {
	IP       string `json:"ip"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ValidateResponse is the reply to POST /machines/validate.
type ValidateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Bucket  string `json:"bucket,omitempty"`
}

// DeployRequest is the body of POST /machines/deploy.
type DeployRequest struct {
	IP       string `json:"ip"`
	Username string `json:"username"`
	Password string `json:"password"`
	Force    bool   `json:"force"`
}

// HistoryResponse is the reply to GET /machines/{address}/deployments.
type HistoryResponse struct {
	Address     string             `json:"address"`
	Deployments []store.Deployment `json:"deployments"`
}

// NewHandler builds the router for s.
func NewHandler(s *Server) http.Handler {
	if s.Log == nil {
		s.Log = logger.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.Health)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}
	r.Route("/machines", func(r chi.Router) {
		r.Post("/validate", s.Validate)
		r.Post("/deploy", s.Deploy)
		r.Get("/{address}/deployments", s.History)
	})
	return r
}

// Validate handles POST /machines/validate.
func (s *Server) Validate(w http.ResponseWriter, r *http.Request) {
	var body ValidateRequest
	if !decode(w, r, &body) {
		return
	}
	if msg := missing(body.IP, body.Username, body.Password); msg != "" {
		writeJSON(w, http.StatusBadRequest, ValidateResponse{Message: msg})
		return
	}

	s.Log.Info("connection check requested for %s", body.IP)
	out := s.Checker.Check(sshutil.Target{Address: body.IP, Username: body.Username, Secret: body.Password})
	writeJSON(w, http.StatusOK, ValidateResponse{
		Success: out.Success,
		Message: out.Message,
		Bucket:  string(out.Bucket),
	})
}

// Deploy handles POST /machines/deploy. A failed deployment is still a 200:
// the outcome carries the failure.
func (s *Server) Deploy(w http.ResponseWriter, r *http.Request) {
	var body DeployRequest
	if !decode(w, r, &body) {
		return
	}
	if msg := missing(body.IP, body.Username, body.Password); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
		return
	}

	var opts []deploy.AttemptOption
	if body.Force {
		opts = append(opts, deploy.WithForce())
	}
	s.Log.Info("deployment requested for %s (force=%t)", body.IP, body.Force)
	out := s.Deployer.Deploy(sshutil.Target{Address: body.IP, Username: body.Username, Secret: body.Password}, opts...)

	if s.Store != nil {
		// The attempt is recorded even if the caller hung up mid-deploy.
		ctx := context.WithoutCancel(r.Context())
		if err := s.Store.RecordDeployment(ctx, body.Username, out); err != nil {
			s.Log.Warn("couldn't record deployment %s: %v", out.AttemptID, err)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// History handles GET /machines/{address}/deployments.
func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "deployment history is disabled"})
		return
	}
	address := chi.URLParam(r, "address")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	deployments, err := s.Store.History(r.Context(), address, limit)
	if err != nil {
		s.Log.Error("history for %s: %v", address, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "couldn't read deployment history"})
		return
	}
	if deployments == nil {
		deployments = []store.Deployment{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Address: store.MachineKey(address), Deployments: deployments})
}

// Health handles GET /healthz. With a store configured it also checks the
// database answers.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.Store != nil {
		if err := s.Store.Ping(r.Context()); err != nil {
			s.Log.Error("health check: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Error string `json:"error"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

// missing names the empty credential fields. The password is required so a
// request never falls back to the server's own agent or keys.
func missing(ip, username, password string) string {
	var fields []string
	if strings.TrimSpace(ip) == "" {
		fields = append(fields, "ip")
	}
	if strings.TrimSpace(username) == "" {
		fields = append(fields, "username")
	}
	if password == "" {
		fields = append(fields, "password")
	}
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0] + " is required"
	}
	return strings.Join(fields[:len(fields)-1], ", ") + " and " + fields[len(fields)-1] + " are required"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
