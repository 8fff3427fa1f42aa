package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iotfleet-server/iotfleet-server/internal/admission"
	"github.com/iotfleet-server/iotfleet-server/internal/binding"
	"github.com/iotfleet-server/iotfleet-server/internal/registry"
)

// ========== Device handlers ==========

// HandleAdmission decides whether a device may be provisioned
func (s *RESTServer) HandleAdmission(w http.ResponseWriter, r *http.Request) {
	var req admission.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.gate.Admit(r.Context(), req)
	s.respondJSON(w, http.StatusOK, resp)
}

// HandleBindDevice attaches the tenant access policy to the caller's
// federated identity
func (s *RESTServer) HandleBindDevice(w http.ResponseWriter, r *http.Request) {
	var req binding.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.binder.Bind(r.Context(), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// HandleGetDevice describes a registered device. Devices of other
// tenants are indistinguishable from absent ones.
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	thingName := chi.URLParam(r, "thing_name")
	caller := callerClaims(r)

	thing, err := s.registry.DescribeThing(r.Context(), thingName)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	if caller.TenantID == "" || thing.TenantTag() != caller.TenantID {
		s.respondError(w, http.StatusNotFound, "device not found")
		return
	}

	s.respondJSON(w, http.StatusOK, thing)
}

// HandleDeleteDevice removes a device and its credentials from the
// registry, freeing its name for re-provisioning
func (s *RESTServer) HandleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	thingName := chi.URLParam(r, "thing_name")
	caller := callerClaims(r)

	thing, err := s.registry.DescribeThing(r.Context(), thingName)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	if caller.TenantID == "" || thing.TenantTag() != caller.TenantID {
		s.respondError(w, http.StatusNotFound, "device not found")
		return
	}

	if err := registry.RemoveDevice(r.Context(), s.registry, thingName); err != nil {
		s.respondErr(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"thing_name": thingName,
		"status":     "deleted",
	})
}
