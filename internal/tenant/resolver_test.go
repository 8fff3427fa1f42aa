package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotfleet-server/iotfleet-server/internal/auth"
	"github.com/iotfleet-server/iotfleet-server/internal/errs"
	"github.com/iotfleet-server/iotfleet-server/internal/models"
	"github.com/iotfleet-server/iotfleet-server/internal/tenant"
	"github.com/iotfleet-server/iotfleet-server/internal/testutil"
)

func strPtr(s string) *string { return &s }

func memberClaims() *auth.IdentityClaims {
	return &auth.IdentityClaims{
		Subject:  "sub-bob",
		Username: "bob",
		Email:    "bob@example.com",
	}
}

func strangerClaims() *auth.IdentityClaims {
	return &auth.IdentityClaims{
		Subject:  "sub-mallory",
		Username: "mallory",
		Email:    "mallory@example.com",
	}
}

func TestAccessResolver_Read(t *testing.T) {
	store := testutil.NewFakeStore()
	resolver := tenant.NewAccessResolver(store)

	tenantID := uuid.New()
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Seed(&models.TenantRecord{
		ID:     tenantID,
		Name:   "acme",
		Status: models.TenantStatusActive,
		Members: models.Members{
			{Identity: "alice@example.com", Role: models.RoleOwner, JoinedAt: joined},
			{Identity: "bob@example.com", Role: models.RoleMember, JoinedAt: joined},
		},
		MemberCount: 2,
	})

	t.Run("AbsentTenantIsNotFound", func(t *testing.T) {
		_, err := resolver.Read(context.Background(), uuid.New(), memberClaims())
		assert.True(t, errs.Is(err, errs.NotFound))
	})

	t.Run("NonMemberIsForbidden", func(t *testing.T) {
		_, err := resolver.Read(context.Background(), tenantID, strangerClaims())
		assert.True(t, errs.Is(err, errs.Authorization))
	})

	t.Run("MemberSeesDecoratedView", func(t *testing.T) {
		view, err := resolver.Read(context.Background(), tenantID, memberClaims())
		require.NoError(t, err)
		assert.Equal(t, "acme", view.Name)
		assert.Equal(t, models.RoleMember, view.CallerRole)
		assert.Equal(t, joined, view.CallerJoinedAt)
	})

	t.Run("MemberMatchedByUsernameFallback", func(t *testing.T) {
		claims := &auth.IdentityClaims{Username: "bob@example.com"}
		view, err := resolver.Read(context.Background(), tenantID, claims)
		require.NoError(t, err)
		assert.Equal(t, models.RoleMember, view.CallerRole)
	})
}

func TestAccessResolver_Update(t *testing.T) {
	newStore := func() (*testutil.FakeStore, uuid.UUID) {
		store := testutil.NewFakeStore()
		tenantID := uuid.New()
		store.Seed(&models.TenantRecord{
			ID:     tenantID,
			Name:   "acme",
			Status: models.TenantStatusActive,
			Members: models.Members{
				{Identity: "bob@example.com", Role: models.RoleOwner, JoinedAt: time.Now()},
			},
			MemberCount: 1,
		})
		return store, tenantID
	}

	t.Run("UpdatesNameAndStatus", func(t *testing.T) {
		store, tenantID := newStore()
		resolver := tenant.NewAccessResolver(store)

		view, err := resolver.Update(context.Background(), tenantID, memberClaims(), tenant.UpdateRequest{
			Name:   strPtr("  Acme Fleet  "),
			Status: strPtr("suspended"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Acme Fleet", view.Name)
		assert.Equal(t, models.TenantStatusSuspended, view.Status)

		record := store.Records[tenantID]
		assert.Equal(t, "Acme Fleet", record.Name)
		assert.Equal(t, models.TenantStatusSuspended, record.Status)
	})

	t.Run("PartialUpdateKeepsOtherField", func(t *testing.T) {
		store, tenantID := newStore()
		resolver := tenant.NewAccessResolver(store)

		view, err := resolver.Update(context.Background(), tenantID, memberClaims(), tenant.UpdateRequest{
			Status: strPtr("inactive"),
		})
		require.NoError(t, err)
		assert.Equal(t, "acme", view.Name)
		assert.Equal(t, models.TenantStatusInactive, view.Status)
	})

	t.Run("EmptyUpdateIsRejected", func(t *testing.T) {
		store, tenantID := newStore()
		resolver := tenant.NewAccessResolver(store)

		_, err := resolver.Update(context.Background(), tenantID, memberClaims(), tenant.UpdateRequest{})
		assert.True(t, errs.Is(err, errs.Validation))
	})

	t.Run("NameTooShortAfterTrim", func(t *testing.T) {
		store, tenantID := newStore()
		resolver := tenant.NewAccessResolver(store)

		_, err := resolver.Update(context.Background(), tenantID, memberClaims(), tenant.UpdateRequest{
			Name: strPtr("  ab  "),
		})
		assert.True(t, errs.Is(err, errs.Validation))
	})

	t.Run("UnknownStatusIsRejected", func(t *testing.T) {
		store, tenantID := newStore()
		resolver := tenant.NewAccessResolver(store)

		_, err := resolver.Update(context.Background(), tenantID, memberClaims(), tenant.UpdateRequest{
			Status: strPtr("archived"),
		})
		assert.True(t, errs.Is(err, errs.Validation))
	})

	t.Run("NonMemberIsForbidden", func(t *testing.T) {
		store, tenantID := newStore()
		resolver := tenant.NewAccessResolver(store)

		_, err := resolver.Update(context.Background(), tenantID, strangerClaims(), tenant.UpdateRequest{
			Status: strPtr("inactive"),
		})
		assert.True(t, errs.Is(err, errs.Authorization))
	})

	t.Run("ConcurrentDeleteSurfacesAsNotFound", func(t *testing.T) {
		store, tenantID := newStore()
		store.UpdateTenantInfoFn = func(ctx context.Context, id uuid.UUID, name string, status models.TenantStatus) error {
			return errs.E(errs.NotFound, "store.UpdateTenantInfo", "tenant not found")
		}
		resolver := tenant.NewAccessResolver(store)

		_, err := resolver.Update(context.Background(), tenantID, memberClaims(), tenant.UpdateRequest{
			Status: strPtr("inactive"),
		})
		assert.True(t, errs.Is(err, errs.NotFound))
	})
}
