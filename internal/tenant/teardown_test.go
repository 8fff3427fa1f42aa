package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotfleet-server/iotfleet-server/internal/errs"
	"github.com/iotfleet-server/iotfleet-server/internal/models"
	"github.com/iotfleet-server/iotfleet-server/internal/registry"
	"github.com/iotfleet-server/iotfleet-server/internal/tenant"
	"github.com/iotfleet-server/iotfleet-server/internal/testutil"
)

func soloTenant(id uuid.UUID) *models.TenantRecord {
	return &models.TenantRecord{
		ID:     id,
		Name:   "acme",
		Status: models.TenantStatusActive,
		Members: models.Members{
			{Identity: "alice@example.com", Role: models.RoleOwner, JoinedAt: time.Now()},
		},
		MemberCount:   1,
		OwnerIdentity: "alice@example.com",
	}
}

func sharedTenant(id uuid.UUID) *models.TenantRecord {
	return &models.TenantRecord{
		ID:     id,
		Name:   "acme",
		Status: models.TenantStatusActive,
		Members: models.Members{
			{Identity: "alice@example.com", Role: models.RoleOwner, JoinedAt: time.Now()},
			{Identity: "bob@example.com", Role: models.RoleMember, JoinedAt: time.Now()},
		},
		MemberCount:   2,
		OwnerIdentity: "alice@example.com",
	}
}

func newTeardown() (*tenant.TeardownCoordinator, *testutil.FakeStore, *testutil.FakeDirectory, *testutil.FakeRegistry) {
	store := testutil.NewFakeStore()
	directory := testutil.NewFakeDirectory()
	reg := testutil.NewFakeRegistry()
	return tenant.NewTeardownCoordinator(store, directory, reg), store, directory, reg
}

func TestTeardown_NoTenantAttributeIsNoop(t *testing.T) {
	coordinator, store, _, _ := newTeardown()

	event := coordinator.HandleIdentityDeleted(context.Background(), models.IdentityDeletedEvent{
		Username: "alice",
	})

	assert.Nil(t, event)
	assert.Empty(t, store.Calls)
}

func TestTeardown_MalformedTenantAttributeIsNoop(t *testing.T) {
	coordinator, store, _, _ := newTeardown()

	event := coordinator.HandleIdentityDeleted(context.Background(), models.IdentityDeletedEvent{
		Username: "alice",
		TenantID: "not-a-uuid",
	})

	assert.Nil(t, event)
	assert.Empty(t, store.Calls)
}

func TestTeardown_MissingRecordIsNoop(t *testing.T) {
	coordinator, _, directory, reg := newTeardown()

	event := coordinator.HandleIdentityDeleted(context.Background(), models.IdentityDeletedEvent{
		Username: "alice",
		TenantID: uuid.New().String(),
	})

	assert.Nil(t, event)
	assert.Empty(t, directory.Calls)
	assert.Empty(t, reg.Calls)
}

func TestTeardown_LastMemberTearsTenantDown(t *testing.T) {
	coordinator, store, directory, reg := newTeardown()

	tenantID := uuid.New()
	store.Seed(soloTenant(tenantID))

	policyName := registry.PolicyName(tenantID.String())
	reg.Policies[policyName] = "{}"
	reg.Attachments[policyName] = []string{"principal-1", "principal-2"}
	directory.Groups[tenantID.String()] = []string{"alice"}

	event := coordinator.HandleIdentityDeleted(context.Background(), models.IdentityDeletedEvent{
		Username: "alice",
		Email:    "alice@example.com",
		TenantID: tenantID.String(),
	})

	require.NotNil(t, event)
	assert.Equal(t, models.TenantEventDeleted, event.Type)
	assert.Equal(t, tenantID.String(), event.TenantID)

	assert.Empty(t, reg.Attachments[policyName])
	assert.NotContains(t, reg.Policies, policyName)
	assert.NotContains(t, directory.Groups, tenantID.String())
	assert.NotContains(t, store.Records, tenantID)
	assert.Contains(t, reg.Calls, "DeleteRoleAlias:"+registry.RoleAliasName(tenantID.String()))
}

func TestTeardown_FullTeardownToleratesAbsentCollaboratorState(t *testing.T) {
	coordinator, store, _, _ := newTeardown()

	// Nothing seeded in the registry or directory: a reprocessed
	// deletion finds every collaborator already clean.
	tenantID := uuid.New()
	store.Seed(soloTenant(tenantID))

	event := coordinator.HandleIdentityDeleted(context.Background(), models.IdentityDeletedEvent{
		Username: "alice",
		Email:    "alice@example.com",
		TenantID: tenantID.String(),
	})

	require.NotNil(t, event)
	assert.Equal(t, models.TenantEventDeleted, event.Type)
	assert.NotContains(t, store.Records, tenantID)
}

func TestTeardown_NonLastMemberShrinksMembership(t *testing.T) {
	coordinator, store, directory, _ := newTeardown()

	tenantID := uuid.New()
	store.Seed(sharedTenant(tenantID))
	directory.Groups[tenantID.String()] = []string{"alice", "bob"}

	event := coordinator.HandleIdentityDeleted(context.Background(), models.IdentityDeletedEvent{
		Username: "bob",
		Email:    "bob@example.com",
		TenantID: tenantID.String(),
	})

	require.NotNil(t, event)
	assert.Equal(t, models.TenantEventMemberRemoved, event.Type)

	record := store.Records[tenantID]
	require.NotNil(t, record)
	assert.Equal(t, 1, record.MemberCount)
	assert.Equal(t, -1, record.Members.IndexOf("bob@example.com"))
	assert.NotContains(t, directory.Groups[tenantID.String()], "bob")
}

func TestTeardown_ShrinkMatchesByUsernameFallback(t *testing.T) {
	coordinator, store, _, _ := newTeardown()

	tenantID := uuid.New()
	record := sharedTenant(tenantID)
	record.Members[1].Identity = "bob"
	store.Seed(record)

	event := coordinator.HandleIdentityDeleted(context.Background(), models.IdentityDeletedEvent{
		Username: "bob",
		Email:    "bob@example.com",
		TenantID: tenantID.String(),
	})

	require.NotNil(t, event)
	assert.Equal(t, 1, store.Records[tenantID].MemberCount)
}

func TestTeardown_ShrinkUnknownMemberIsNoop(t *testing.T) {
	coordinator, store, _, _ := newTeardown()

	tenantID := uuid.New()
	store.Seed(sharedTenant(tenantID))

	event := coordinator.HandleIdentityDeleted(context.Background(), models.IdentityDeletedEvent{
		Username: "mallory",
		Email:    "mallory@example.com",
		TenantID: tenantID.String(),
	})

	assert.Nil(t, event)
	assert.Equal(t, 2, store.Records[tenantID].MemberCount)
}

func TestTeardown_ShrinkLostRaceIsSwallowed(t *testing.T) {
	coordinator, store, _, _ := newTeardown()

	tenantID := uuid.New()
	store.Seed(sharedTenant(tenantID))
	store.RemoveMemberAtFn = func(ctx context.Context, id uuid.UUID, index, priorCount int) error {
		return errs.E(errs.Conflict, "store.RemoveMemberAt", "tenant gone or concurrently mutated")
	}

	event := coordinator.HandleIdentityDeleted(context.Background(), models.IdentityDeletedEvent{
		Username: "bob",
		Email:    "bob@example.com",
		TenantID: tenantID.String(),
	})

	assert.Nil(t, event)
}

func TestTeardown_GroupRemovalFailureDoesNotBlockShrink(t *testing.T) {
	coordinator, store, directory, _ := newTeardown()

	tenantID := uuid.New()
	store.Seed(sharedTenant(tenantID))
	directory.RemoveUserFromGroupFn = func(ctx context.Context, username, groupName string) error {
		return errs.E(errs.Upstream, "directory.RemoveUserFromGroup", "directory down")
	}

	event := coordinator.HandleIdentityDeleted(context.Background(), models.IdentityDeletedEvent{
		Username: "bob",
		Email:    "bob@example.com",
		TenantID: tenantID.String(),
	})

	require.NotNil(t, event)
	assert.Equal(t, 1, store.Records[tenantID].MemberCount)
}
