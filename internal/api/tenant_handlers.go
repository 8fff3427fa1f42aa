package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/iotfleet-server/iotfleet-server/internal/errs"
	"github.com/iotfleet-server/iotfleet-server/internal/tenant"
)

// HandleHealth health check handler
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
	})
}

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
		"health":  "/api/v1/health",
	})
}

// ========== Tenant handlers ==========

// HandleGetTenant returns the caller's view of a tenant
func (s *RESTServer) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	view, err := s.resolver.Read(r.Context(), tenantID, callerClaims(r))
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, view)
}

// HandleUpdateTenant applies a partial tenant update
func (s *RESTServer) HandleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	var req tenant.UpdateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := s.resolver.Update(r.Context(), tenantID, callerClaims(r), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, view)
}

// HandleIssueProvisioningClaim issues a short-lived claim a device uses
// to prove which tenant it is joining
func (s *RESTServer) HandleIssueProvisioningClaim(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	caller := callerClaims(r)

	// Membership gates claim issuance the same way it gates reads.
	if _, err := s.resolver.Read(r.Context(), tenantID, caller); err != nil {
		s.respondErr(w, err)
		return
	}

	token, expiresAt, err := s.claims.Issue(tenantID.String(), caller.Subject)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to issue claim")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"claim":      token,
		"expires_at": expiresAt,
	})
}

// ========== Response helpers ==========

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondErr maps a typed error onto its HTTP status. Messages from
// unclassified errors are not leaked to clients.
func (s *RESTServer) respondErr(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)

	var typed *errs.Error
	if errors.As(err, &typed) && status < http.StatusInternalServerError && typed.Msg != "" {
		s.respondError(w, status, typed.Msg)
		return
	}

	log.Error().Err(err).Msg("Request failed")
	s.respondError(w, status, http.StatusText(status))
}
