package tenant

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iotfleet-server/iotfleet-server/internal/errs"
	"github.com/iotfleet-server/iotfleet-server/internal/identity"
	"github.com/iotfleet-server/iotfleet-server/internal/models"
	"github.com/iotfleet-server/iotfleet-server/internal/registry"
	"github.com/iotfleet-server/iotfleet-server/internal/storage"
)

// TeardownCoordinator reacts to identity deletion: the last member tears
// the whole tenant down, any other member just shrinks the membership.
// Cleanup is opportunistic: identity deletion always succeeds regardless
// of cleanup outcome, and partial cleanup is an accepted steady state.
type TeardownCoordinator struct {
	store     storage.Store
	directory identity.Directory
	registry  registry.Registry
}

// NewTeardownCoordinator creates a teardown coordinator
func NewTeardownCoordinator(store storage.Store, directory identity.Directory, reg registry.Registry) *TeardownCoordinator {
	return &TeardownCoordinator{
		store:     store,
		directory: directory,
		registry:  reg,
	}
}

// HandleIdentityDeleted runs the deletion saga. Returns the lifecycle
// event describing what happened, or nil when there was nothing to do.
func (c *TeardownCoordinator) HandleIdentityDeleted(ctx context.Context, evt models.IdentityDeletedEvent) *models.TenantEvent {
	if evt.TenantID == "" {
		return nil
	}

	logger := log.With().
		Str("tenant_id", evt.TenantID).
		Str("username", evt.Username).
		Logger()

	tenantID, err := uuid.Parse(evt.TenantID)
	if err != nil {
		logger.Warn().Err(err).Msg("Identity carries a malformed tenant attribute, skipping cleanup")
		return nil
	}

	record, err := c.store.GetTenant(ctx, tenantID)
	if err != nil {
		if !errs.Is(err, errs.NotFound) {
			logger.Error().Err(err).Msg("Tenant lookup failed, skipping cleanup")
		}
		return nil
	}

	if record.MemberCount == 1 {
		c.fullTeardown(ctx, logger, tenantID)
		return &models.TenantEvent{
			Type:     models.TenantEventDeleted,
			TenantID: evt.TenantID,
			Identity: evt.Username,
		}
	}

	if !c.shrinkMembership(ctx, logger, record, evt) {
		return nil
	}
	return &models.TenantEvent{
		Type:     models.TenantEventMemberRemoved,
		TenantID: evt.TenantID,
		Identity: evt.Username,
	}
}

// fullTeardown removes the tenant's access policy, role binding, directory
// group and record. Every step tolerates not-found; a record-delete
// failure is the terminal step's to report, there is nothing left to
// compensate after it.
func (c *TeardownCoordinator) fullTeardown(ctx context.Context, logger zerolog.Logger, tenantID uuid.UUID) {
	id := tenantID.String()
	policyName := registry.PolicyName(id)

	steps := []step{
		{
			name:   "detach policy targets",
			policy: bestEffort,
			run: func(ctx context.Context) error {
				return c.detachAllTargets(ctx, policyName)
			},
		},
		{
			name:   "delete access policy",
			policy: bestEffort,
			run: func(ctx context.Context) error {
				return tolerateNotFound(c.registry.DeletePolicy(ctx, policyName))
			},
		},
		{
			name:   "delete role binding",
			policy: bestEffort,
			run: func(ctx context.Context) error {
				return tolerateNotFound(c.registry.DeleteRoleAlias(ctx, registry.RoleAliasName(id)))
			},
		},
		{
			name:   "delete directory group",
			policy: bestEffort,
			run: func(ctx context.Context) error {
				return tolerateNotFound(c.directory.DeleteGroup(ctx, id))
			},
		},
		{
			name:   "delete tenant record",
			policy: fatalToSequence,
			run: func(ctx context.Context) error {
				return tolerateNotFound(c.store.DeleteTenant(ctx, tenantID))
			},
		},
	}

	if err := runSteps(ctx, logger, steps); err != nil {
		// Terminal step failed; the record outlives its policy and
		// group. Logged above, deletion of the identity proceeds.
		return
	}

	logger.Info().Msg("Tenant torn down")
}

// detachAllTargets detaches the policy from every principal it is
// attached to. The loop is sequential and stops at the first failure so
// the failing target is unambiguous in the logs.
func (c *TeardownCoordinator) detachAllTargets(ctx context.Context, policyName string) error {
	targets, err := c.registry.ListPolicyTargets(ctx, policyName)
	if err != nil {
		return tolerateNotFound(err)
	}

	for _, target := range targets {
		if err := c.registry.DetachPolicy(ctx, policyName, target); err != nil {
			return tolerateNotFound(err)
		}
	}
	return nil
}

// shrinkMembership removes the deleted identity from the member list and
// decrements the count in one conditional update. Reports whether the
// membership actually shrank.
func (c *TeardownCoordinator) shrinkMembership(ctx context.Context, logger zerolog.Logger, record *models.TenantRecord, evt models.IdentityDeletedEvent) bool {
	// Group removal is best-effort; the record is the source of truth.
	if err := c.directory.RemoveUserFromGroup(ctx, evt.Username, record.ID.String()); err != nil {
		logger.Error().Err(err).Msg("Failed to remove identity from group, continuing")
	}

	index := record.Members.IndexOf(evt.Email)
	if index < 0 {
		index = record.Members.IndexOf(evt.Username)
	}
	if index < 0 {
		logger.Warn().Msg("Deleted identity is not a member of its tenant, nothing to remove")
		return false
	}

	if err := c.store.RemoveMemberAt(ctx, record.ID, index, record.MemberCount); err != nil {
		// Losing the race against a concurrent full teardown lands
		// here; the tenant is gone, and that is an accepted outcome.
		logger.Error().Err(err).Int("member_index", index).Msg("Membership shrink failed")
		return false
	}

	logger.Info().Int("member_index", index).Msg("Member removed from tenant")
	return true
}

// tolerateNotFound swallows not-found errors: cleanup of something that
// is already gone has succeeded.
func tolerateNotFound(err error) error {
	if err == nil || errs.Is(err, errs.NotFound) {
		return nil
	}
	return err
}
