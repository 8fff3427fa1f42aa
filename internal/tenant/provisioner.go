package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/iotfleet-server/iotfleet-server/internal/identity"
	"github.com/iotfleet-server/iotfleet-server/internal/models"
	"github.com/iotfleet-server/iotfleet-server/internal/storage"
)

// Provisioner creates a tenant and binds the confirming identity as its
// owner. It runs at identity-confirmation time and must never block the
// confirmation: every failure is logged and swallowed.
type Provisioner struct {
	store           storage.Store
	directory       identity.Directory
	tenantAttribute string
}

// NewProvisioner creates a provisioner. tenantAttribute is the directory
// attribute that points an identity at its tenant.
func NewProvisioner(store storage.Store, directory identity.Directory, tenantAttribute string) *Provisioner {
	return &Provisioner{
		store:           store,
		directory:       directory,
		tenantAttribute: tenantAttribute,
	}
}

// Provision runs the confirmation saga. The record is created first so it
// anchors everything that follows; the identity's tenant attribute is set
// next so even a later partial failure leaves the identity pointing at a
// real tenant. Returns the created record, or nil when the tenant could
// not be set up; the confirmation itself proceeds either way.
func (p *Provisioner) Provision(ctx context.Context, evt models.IdentityConfirmedEvent) *models.TenantRecord {
	tenantID := uuid.New()

	identityAddr := evt.Email
	if identityAddr == "" {
		identityAddr = evt.Username
	}

	logger := log.With().
		Str("tenant_id", tenantID.String()).
		Str("username", evt.Username).
		Logger()

	record := &models.TenantRecord{
		ID:     tenantID,
		Status: models.TenantStatusActive,
		Members: models.Members{{
			Identity: identityAddr,
			Role:     models.RoleOwner,
			JoinedAt: time.Now(),
		}},
		MemberCount:   1,
		OwnerIdentity: identityAddr,
	}

	steps := []step{
		{
			name:   "create tenant record",
			policy: fatalToSequence,
			run: func(ctx context.Context) error {
				return p.store.CreateTenant(ctx, record)
			},
		},
		{
			name:   "set identity tenant attribute",
			policy: bestEffort,
			run: func(ctx context.Context) error {
				return p.directory.UpdateUserAttribute(ctx, evt.Username, p.tenantAttribute, tenantID.String())
			},
		},
		{
			name:   "create directory group",
			policy: bestEffort,
			run: func(ctx context.Context) error {
				return p.directory.CreateGroup(ctx, tenantID.String())
			},
		},
		{
			name:   "add identity to group",
			policy: bestEffort,
			run: func(ctx context.Context) error {
				return p.directory.AddUserToGroup(ctx, evt.Username, tenantID.String())
			},
		},
	}

	if err := runSteps(ctx, logger, steps); err != nil {
		// No record, no tenant. Orphan repair is an operator concern;
		// the confirmation is never blocked.
		return nil
	}

	logger.Info().Str("owner", identityAddr).Msg("Tenant provisioned")
	return record
}
