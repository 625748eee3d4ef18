package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sovereignctl/policyguard/internal/audit"
	"github.com/sovereignctl/policyguard/internal/authn"
	"github.com/sovereignctl/policyguard/pkg/policyguard"
)

// Server owns the HTTP handlers for PolicyGuard's three endpoints, plus the
// engine and audit log path they're built against.
type Server struct {
	Engine       *policyguard.Engine
	AuditLogPath string
	Verifier     *audit.Verifier // nil if entry signing is not configured
}

// Routes registers every endpoint on mux. The three /v1 endpoints are
// wrapped in the JWT middleware; /health is registered without it.
func (s *Server) Routes(mux *http.ServeMux, validator *authn.Validator) {
	withAuth := authn.Middleware(validator)
	mux.Handle("/v1/bundles/validate", withAuth(http.HandlerFunc(s.handleValidate)))
	mux.Handle("/v1/enforce", withAuth(http.HandlerFunc(s.handleEnforce)))
	mux.Handle("/v1/audit/verify", withAuth(http.HandlerFunc(s.handleAuditVerify)))
	mux.HandleFunc("/health", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// validateResponse is the body returned by POST /v1/bundles/validate, whose
// request body is a raw, schema-checked policy-record array.
type validateResponse struct {
	Bundle         interface{} `json:"bundle"`
	ConflictCount  int         `json:"conflict_count"`
	IntegrityWarns []string    `json:"integrity_warnings"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		WriteBadRequest(w, r, "failed to read request body")
		return
	}

	result, err := policyguard.Validate(r.Context(), raw, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Bundle:         result.Bundle,
		ConflictCount:  len(result.ConflictReport.LogicalConflicts),
		IntegrityWarns: result.IntegrityWarns,
	})
}

// enforceRequest is the body of POST /v1/enforce.
type enforceRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Query     string `json:"query"`
	Response  string `json:"response,omitempty"`
}

func (s *Server) handleEnforce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r)
		return
	}
	if s.Engine == nil {
		WriteInternal(w, r, errNoEngine)
		return
	}

	var req enforceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(&req); err != nil {
		WriteBadRequest(w, r, "invalid JSON body: "+err.Error())
		return
	}
	if req.Query == "" {
		WriteBadRequest(w, r, "query is required")
		return
	}

	principal, _ := authn.FromContext(r.Context())

	result, err := s.Engine.Enforce(r.Context(), policyguard.EnforceRequest{
		SessionID: req.SessionID,
		Query:     req.Query,
		Response:  req.Response,
	})
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"context":       result.Context,
		"response":      result.Response,
		"decision":      result.Decision,
		"attributed_to": principal.Subject,
	})
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r)
		return
	}
	if s.AuditLogPath == "" {
		WriteBadRequest(w, r, "no audit log configured")
		return
	}

	result, err := audit.VerifyFile(s.AuditLogPath, s.Verifier)
	if err != nil {
		WriteInternal(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var errNoEngine = &ProblemDetail{Title: "engine unavailable", Detail: "no bundle loaded"}
