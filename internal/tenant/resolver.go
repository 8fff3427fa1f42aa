package tenant

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iotfleet-server/iotfleet-server/internal/auth"
	"github.com/iotfleet-server/iotfleet-server/internal/errs"
	"github.com/iotfleet-server/iotfleet-server/internal/models"
	"github.com/iotfleet-server/iotfleet-server/internal/storage"
	"github.com/iotfleet-server/iotfleet-server/internal/validation"
)

// TenantView is a tenant record decorated with the caller's standing in it
type TenantView struct {
	*models.TenantRecord
	CallerRole     models.MemberRole `json:"callerRole"`
	CallerJoinedAt time.Time         `json:"callerJoinedAt"`
}

// UpdateRequest carries the only two tenant fields a member may change
type UpdateRequest struct {
	Name   *string `json:"name" validate:"omitempty,min=3,max=96"`
	Status *string `json:"status" validate:"omitempty,oneof=active inactive suspended"`
}

// AccessResolver serves member-facing reads and updates of tenant records.
// Membership is decided from the record itself, never from token claims
// alone.
type AccessResolver struct {
	store storage.Store
}

// NewAccessResolver creates an access resolver
func NewAccessResolver(store storage.Store) *AccessResolver {
	return &AccessResolver{store: store}
}

// Read returns the caller's view of a tenant. A tenant the caller is not
// a member of is forbidden even when it exists.
func (r *AccessResolver) Read(ctx context.Context, tenantID uuid.UUID, caller *auth.IdentityClaims) (*TenantView, error) {
	const op = "tenant.Read"

	record, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	member := callerMember(record, caller)
	if member == nil {
		return nil, errs.E(errs.Authorization, op, "caller is not a member of this tenant")
	}

	return &TenantView{
		TenantRecord:   record,
		CallerRole:     member.Role,
		CallerJoinedAt: member.JoinedAt,
	}, nil
}

// Update applies a partial update to a tenant's name and status. The
// write is conditional on the record still existing; a tenant deleted
// between read and write surfaces as not found, not as success.
func (r *AccessResolver) Update(ctx context.Context, tenantID uuid.UUID, caller *auth.IdentityClaims, req UpdateRequest) (*TenantView, error) {
	const op = "tenant.Update"

	if err := validation.ValidateStruct(req); err != nil {
		return nil, errs.Wrap(errs.Validation, op, err)
	}
	if req.Name == nil && req.Status == nil {
		return nil, errs.E(errs.Validation, op, "nothing to update")
	}

	record, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	member := callerMember(record, caller)
	if member == nil {
		return nil, errs.E(errs.Authorization, op, "caller is not a member of this tenant")
	}

	name := record.Name
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
		if len(name) < 3 || len(name) > 96 {
			return nil, errs.E(errs.Validation, op, "name must be between 3 and 96 characters")
		}
	}

	status := record.Status
	if req.Status != nil {
		status = models.TenantStatus(*req.Status)
		if !status.Valid() {
			return nil, errs.E(errs.Validation, op, "unknown tenant status")
		}
	}

	if err := r.store.UpdateTenantInfo(ctx, tenantID, name, status); err != nil {
		return nil, err
	}

	record.Name = name
	record.Status = status
	return &TenantView{
		TenantRecord:   record,
		CallerRole:     member.Role,
		CallerJoinedAt: member.JoinedAt,
	}, nil
}

// callerMember finds the caller in the member list, matching by email
// first and falling back to the directory username.
func callerMember(record *models.TenantRecord, caller *auth.IdentityClaims) *models.Member {
	if index := record.Members.IndexOf(caller.Email); index >= 0 {
		return &record.Members[index]
	}
	if index := record.Members.IndexOf(caller.Username); index >= 0 {
		return &record.Members[index]
	}
	return nil
}
