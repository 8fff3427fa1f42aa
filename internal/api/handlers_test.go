package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotfleet-server/iotfleet-server/internal/admission"
	"github.com/iotfleet-server/iotfleet-server/internal/auth"
	"github.com/iotfleet-server/iotfleet-server/internal/binding"
	"github.com/iotfleet-server/iotfleet-server/internal/config"
	"github.com/iotfleet-server/iotfleet-server/internal/models"
	"github.com/iotfleet-server/iotfleet-server/internal/registry"
	"github.com/iotfleet-server/iotfleet-server/internal/testutil"
)

type testEnv struct {
	server   *RESTServer
	store    *testutil.FakeStore
	registry *testutil.FakeRegistry
	verifier *testutil.FakeVerifier
}

func newTestEnv() *testEnv {
	cfg := &config.Config{}
	cfg.Server.Name = "test-server"
	cfg.Server.Version = "0.0.0"

	store := testutil.NewFakeStore()
	directory := testutil.NewFakeDirectory()
	reg := testutil.NewFakeRegistry()
	verifier := &testutil.FakeVerifier{}

	gate := admission.NewGate(verifier, reg, "123456789012", "eu-west-1")
	binder := binding.NewBinder(verifier, directory, reg, "123456789012", "eu-west-1")
	claims := auth.NewClaimIssuer("test-secret", time.Minute)

	return &testEnv{
		server:   NewRESTServer(cfg, store, verifier, gate, binder, reg, claims),
		store:    store,
		registry: reg,
		verifier: verifier,
	}
}

func (e *testEnv) do(method, path string, body interface{}, authorized bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if authorized {
		req.Header.Set("Authorization", "Bearer test-token")
	}

	rec := httptest.NewRecorder()
	e.server.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedTenant() uuid.UUID {
	tenantID := uuid.New()
	e.store.Seed(&models.TenantRecord{
		ID:     tenantID,
		Name:   "acme",
		Status: models.TenantStatusActive,
		Members: models.Members{
			{Identity: "alice@example.com", Role: models.RoleOwner, JoinedAt: time.Now()},
		},
		MemberCount:   1,
		OwnerIdentity: "alice@example.com",
	})
	e.verifier.Claims = &auth.IdentityClaims{
		Subject:  "sub-alice",
		Username: "alice",
		Email:    "alice@example.com",
		TenantID: tenantID.String(),
	}
	return tenantID
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/api/v1/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetTenant(t *testing.T) {
	env := newTestEnv()
	tenantID := env.seedTenant()

	t.Run("RequiresAuthorization", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/tenants/"+tenantID.String(), nil, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("MalformedIDIsBadRequest", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/tenants/not-a-uuid", nil, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("AbsentTenantIsNotFound", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/tenants/"+uuid.New().String(), nil, true)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("NonMemberIsForbidden", func(t *testing.T) {
		saved := env.verifier.Claims
		env.verifier.Claims = &auth.IdentityClaims{
			Subject: "sub-mallory", Username: "mallory", Email: "mallory@example.com",
		}
		defer func() { env.verifier.Claims = saved }()

		rec := env.do(http.MethodGet, "/api/v1/tenants/"+tenantID.String(), nil, true)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("MemberSeesDecoratedView", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/tenants/"+tenantID.String(), nil, true)
		require.Equal(t, http.StatusOK, rec.Code)

		var view struct {
			Name       string `json:"name"`
			CallerRole string `json:"callerRole"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal(t, "acme", view.Name)
		assert.Equal(t, "owner", view.CallerRole)
	})
}

func TestHandleUpdateTenant(t *testing.T) {
	t.Run("UpdatesNameAndStatus", func(t *testing.T) {
		env := newTestEnv()
		tenantID := env.seedTenant()

		rec := env.do(http.MethodPatch, "/api/v1/tenants/"+tenantID.String(), map[string]string{
			"name":   "Acme Fleet",
			"status": "inactive",
		}, true)
		require.Equal(t, http.StatusOK, rec.Code)

		record := env.store.Records[tenantID]
		assert.Equal(t, "Acme Fleet", record.Name)
		assert.Equal(t, models.TenantStatusInactive, record.Status)
	})

	t.Run("UnknownFieldIsRejected", func(t *testing.T) {
		env := newTestEnv()
		tenantID := env.seedTenant()

		rec := env.do(http.MethodPatch, "/api/v1/tenants/"+tenantID.String(), map[string]interface{}{
			"name":        "Acme Fleet",
			"memberCount": 99,
		}, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("InvalidStatusIsRejected", func(t *testing.T) {
		env := newTestEnv()
		tenantID := env.seedTenant()

		rec := env.do(http.MethodPatch, "/api/v1/tenants/"+tenantID.String(), map[string]string{
			"status": "archived",
		}, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleIssueProvisioningClaim(t *testing.T) {
	env := newTestEnv()
	tenantID := env.seedTenant()

	rec := env.do(http.MethodPost, "/api/v1/tenants/"+tenantID.String()+"/claims", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Claim string `json:"claim"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Claim)

	claims, err := auth.NewClaimIssuer("test-secret", time.Minute).Validate(resp.Claim)
	require.NoError(t, err)
	assert.Equal(t, tenantID.String(), claims.TenantID)
	assert.Equal(t, "sub-alice", claims.Subject)
}

func TestHandleAdmission(t *testing.T) {
	env := newTestEnv()
	env.seedTenant()

	t.Run("MissingFieldsAreRejected", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/v1/admission", map[string]string{}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("AdmitsNewDevice", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/v1/admission", map[string]string{
			"thingName": "sensor-001",
			"idToken":   "test-token",
		}, false)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp admission.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.AllowProvisioning)
		assert.Equal(t, "123456789012", resp.Overrides["Account"])
	})
}

func TestHandleDevice(t *testing.T) {
	env := newTestEnv()
	tenantID := env.seedTenant()

	env.registry.Things["sensor-001"] = &registry.Thing{
		Name:       "sensor-001",
		Attributes: map[string]string{registry.TenantAttributeName: tenantID.String()},
	}
	env.registry.Things["foreign-001"] = &registry.Thing{
		Name:       "foreign-001",
		Attributes: map[string]string{registry.TenantAttributeName: uuid.New().String()},
	}

	t.Run("OwnDeviceIsVisible", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/devices/sensor-001", nil, true)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ForeignDeviceLooksAbsent", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/devices/foreign-001", nil, true)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("DeleteRemovesOwnDevice", func(t *testing.T) {
		rec := env.do(http.MethodDelete, "/api/v1/devices/sensor-001", nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, env.registry.Things, "sensor-001")
	})
}
