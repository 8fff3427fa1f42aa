// Package testutil provides in-memory fakes for the external
// collaborators. Every method can be overridden per test through its
// function field; the zero behavior is a well-behaved happy path.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/iotfleet-server/iotfleet-server/internal/auth"
	"github.com/iotfleet-server/iotfleet-server/internal/errs"
	"github.com/iotfleet-server/iotfleet-server/internal/models"
	"github.com/iotfleet-server/iotfleet-server/internal/registry"
)

// ========== Store ==========

// FakeStore is an in-memory tenant record store
type FakeStore struct {
	mu      sync.Mutex
	Records map[uuid.UUID]*models.TenantRecord
	Calls   []string

	CreateTenantFn     func(ctx context.Context, record *models.TenantRecord) error
	GetTenantFn        func(ctx context.Context, id uuid.UUID) (*models.TenantRecord, error)
	UpdateTenantInfoFn func(ctx context.Context, id uuid.UUID, name string, status models.TenantStatus) error
	RemoveMemberAtFn   func(ctx context.Context, id uuid.UUID, index, priorCount int) error
	DeleteTenantFn     func(ctx context.Context, id uuid.UUID) error
}

// NewFakeStore creates an empty fake store
func NewFakeStore() *FakeStore {
	return &FakeStore{Records: make(map[uuid.UUID]*models.TenantRecord)}
}

// Seed adds a record directly, bypassing the call log
func (s *FakeStore) Seed(record *models.TenantRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records[record.ID] = record
}

func (s *FakeStore) record(call string) {
	s.Calls = append(s.Calls, call)
}

func (s *FakeStore) CreateTenant(ctx context.Context, record *models.TenantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateTenant")
	if s.CreateTenantFn != nil {
		return s.CreateTenantFn(ctx, record)
	}
	if _, ok := s.Records[record.ID]; ok {
		return errs.E(errs.Conflict, "fake.CreateTenant", "tenant id already exists")
	}
	s.Records[record.ID] = record
	return nil
}

func (s *FakeStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetTenant")
	if s.GetTenantFn != nil {
		return s.GetTenantFn(ctx, id)
	}
	record, ok := s.Records[id]
	if !ok {
		return nil, errs.E(errs.NotFound, "fake.GetTenant", "tenant not found")
	}
	copied := *record
	copied.Members = append(models.Members(nil), record.Members...)
	return &copied, nil
}

func (s *FakeStore) UpdateTenantInfo(ctx context.Context, id uuid.UUID, name string, status models.TenantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateTenantInfo")
	if s.UpdateTenantInfoFn != nil {
		return s.UpdateTenantInfoFn(ctx, id, name, status)
	}
	record, ok := s.Records[id]
	if !ok {
		return errs.E(errs.NotFound, "fake.UpdateTenantInfo", "tenant not found")
	}
	record.Name = name
	record.Status = status
	return nil
}

func (s *FakeStore) RemoveMemberAt(ctx context.Context, id uuid.UUID, index, priorCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("RemoveMemberAt")
	if s.RemoveMemberAtFn != nil {
		return s.RemoveMemberAtFn(ctx, id, index, priorCount)
	}
	record, ok := s.Records[id]
	if !ok || record.MemberCount != priorCount {
		return errs.E(errs.Conflict, "fake.RemoveMemberAt", "tenant gone or concurrently mutated")
	}
	record.Members = append(record.Members[:index], record.Members[index+1:]...)
	record.MemberCount--
	return nil
}

func (s *FakeStore) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DeleteTenant")
	if s.DeleteTenantFn != nil {
		return s.DeleteTenantFn(ctx, id)
	}
	if _, ok := s.Records[id]; !ok {
		return errs.E(errs.NotFound, "fake.DeleteTenant", "tenant not found")
	}
	delete(s.Records, id)
	return nil
}

func (s *FakeStore) Close() error { return nil }

// ========== Directory ==========

// FakeDirectory is an in-memory identity directory
type FakeDirectory struct {
	mu         sync.Mutex
	Groups     map[string][]string
	Attributes map[string]map[string]string
	Calls      []string

	CreateGroupFn              func(ctx context.Context, groupName string) error
	DeleteGroupFn              func(ctx context.Context, groupName string) error
	AddUserToGroupFn           func(ctx context.Context, username, groupName string) error
	RemoveUserFromGroupFn      func(ctx context.Context, username, groupName string) error
	UpdateUserAttributeFn      func(ctx context.Context, username, name, value string) error
	ResolveFederatedIdentityFn func(ctx context.Context, idToken string) (string, error)
}

// NewFakeDirectory creates an empty fake directory
func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{
		Groups:     make(map[string][]string),
		Attributes: make(map[string]map[string]string),
	}
}

func (d *FakeDirectory) record(call string) {
	d.Calls = append(d.Calls, call)
}

func (d *FakeDirectory) CreateGroup(ctx context.Context, groupName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateGroup:" + groupName)
	if d.CreateGroupFn != nil {
		return d.CreateGroupFn(ctx, groupName)
	}
	if _, ok := d.Groups[groupName]; !ok {
		d.Groups[groupName] = []string{}
	}
	return nil
}

func (d *FakeDirectory) DeleteGroup(ctx context.Context, groupName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DeleteGroup:" + groupName)
	if d.DeleteGroupFn != nil {
		return d.DeleteGroupFn(ctx, groupName)
	}
	delete(d.Groups, groupName)
	return nil
}

func (d *FakeDirectory) AddUserToGroup(ctx context.Context, username, groupName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(fmt.Sprintf("AddUserToGroup:%s:%s", username, groupName))
	if d.AddUserToGroupFn != nil {
		return d.AddUserToGroupFn(ctx, username, groupName)
	}
	d.Groups[groupName] = append(d.Groups[groupName], username)
	return nil
}

func (d *FakeDirectory) RemoveUserFromGroup(ctx context.Context, username, groupName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(fmt.Sprintf("RemoveUserFromGroup:%s:%s", username, groupName))
	if d.RemoveUserFromGroupFn != nil {
		return d.RemoveUserFromGroupFn(ctx, username, groupName)
	}
	members := d.Groups[groupName]
	for i, member := range members {
		if member == username {
			d.Groups[groupName] = append(members[:i], members[i+1:]...)
			break
		}
	}
	return nil
}

func (d *FakeDirectory) UpdateUserAttribute(ctx context.Context, username, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(fmt.Sprintf("UpdateUserAttribute:%s:%s", username, name))
	if d.UpdateUserAttributeFn != nil {
		return d.UpdateUserAttributeFn(ctx, username, name, value)
	}
	if d.Attributes[username] == nil {
		d.Attributes[username] = make(map[string]string)
	}
	d.Attributes[username][name] = value
	return nil
}

func (d *FakeDirectory) ResolveFederatedIdentity(ctx context.Context, idToken string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ResolveFederatedIdentity")
	if d.ResolveFederatedIdentityFn != nil {
		return d.ResolveFederatedIdentityFn(ctx, idToken)
	}
	return "us-east-1:identity-" + idToken, nil
}

// ========== Registry ==========

// FakeRegistry is an in-memory device registry
type FakeRegistry struct {
	mu          sync.Mutex
	Things      map[string]*registry.Thing
	Policies    map[string]string
	Attachments map[string][]string
	Principals  map[string][]string
	RoleAliases map[string]bool
	Calls       []string

	DescribeThingFn         func(ctx context.Context, thingName string) (*registry.Thing, error)
	CreatePolicyFn          func(ctx context.Context, policyName, document string) error
	AttachPolicyFn          func(ctx context.Context, policyName, target string) error
	DetachPolicyFn          func(ctx context.Context, policyName, target string) error
	DeletePolicyFn          func(ctx context.Context, policyName string) error
	ListPolicyTargetsFn     func(ctx context.Context, policyName string) ([]string, error)
	DeleteThingFn           func(ctx context.Context, thingName string) error
	ListThingPrincipalsFn   func(ctx context.Context, thingName string) ([]string, error)
	DetachThingPrincipalFn  func(ctx context.Context, thingName, principal string) error
	DeactivateCertificateFn func(ctx context.Context, certificateID string) error
	DeleteCertificateFn     func(ctx context.Context, certificateID string) error
	DeleteRoleAliasFn       func(ctx context.Context, alias string) error
}

// NewFakeRegistry creates an empty fake registry
func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{
		Things:      make(map[string]*registry.Thing),
		Policies:    make(map[string]string),
		Attachments: make(map[string][]string),
		Principals:  make(map[string][]string),
		RoleAliases: make(map[string]bool),
	}
}

func (r *FakeRegistry) record(call string) {
	r.Calls = append(r.Calls, call)
}

func (r *FakeRegistry) DescribeThing(ctx context.Context, thingName string) (*registry.Thing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("DescribeThing:" + thingName)
	if r.DescribeThingFn != nil {
		return r.DescribeThingFn(ctx, thingName)
	}
	thing, ok := r.Things[thingName]
	if !ok {
		return nil, errs.E(errs.NotFound, "fake.DescribeThing", "thing not found")
	}
	return thing, nil
}

func (r *FakeRegistry) CreatePolicy(ctx context.Context, policyName, document string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("CreatePolicy:" + policyName)
	if r.CreatePolicyFn != nil {
		return r.CreatePolicyFn(ctx, policyName, document)
	}
	if _, ok := r.Policies[policyName]; !ok {
		r.Policies[policyName] = document
	}
	return nil
}

func (r *FakeRegistry) AttachPolicy(ctx context.Context, policyName, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(fmt.Sprintf("AttachPolicy:%s:%s", policyName, target))
	if r.AttachPolicyFn != nil {
		return r.AttachPolicyFn(ctx, policyName, target)
	}
	r.Attachments[policyName] = append(r.Attachments[policyName], target)
	return nil
}

func (r *FakeRegistry) DetachPolicy(ctx context.Context, policyName, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(fmt.Sprintf("DetachPolicy:%s:%s", policyName, target))
	if r.DetachPolicyFn != nil {
		return r.DetachPolicyFn(ctx, policyName, target)
	}
	targets := r.Attachments[policyName]
	for i, t := range targets {
		if t == target {
			r.Attachments[policyName] = append(targets[:i], targets[i+1:]...)
			break
		}
	}
	return nil
}

func (r *FakeRegistry) DeletePolicy(ctx context.Context, policyName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("DeletePolicy:" + policyName)
	if r.DeletePolicyFn != nil {
		return r.DeletePolicyFn(ctx, policyName)
	}
	if _, ok := r.Policies[policyName]; !ok {
		return errs.E(errs.NotFound, "fake.DeletePolicy", "policy not found")
	}
	delete(r.Policies, policyName)
	return nil
}

func (r *FakeRegistry) ListPolicyTargets(ctx context.Context, policyName string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("ListPolicyTargets:" + policyName)
	if r.ListPolicyTargetsFn != nil {
		return r.ListPolicyTargetsFn(ctx, policyName)
	}
	return append([]string(nil), r.Attachments[policyName]...), nil
}

func (r *FakeRegistry) DeleteThing(ctx context.Context, thingName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("DeleteThing:" + thingName)
	if r.DeleteThingFn != nil {
		return r.DeleteThingFn(ctx, thingName)
	}
	delete(r.Things, thingName)
	return nil
}

func (r *FakeRegistry) ListThingPrincipals(ctx context.Context, thingName string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("ListThingPrincipals:" + thingName)
	if r.ListThingPrincipalsFn != nil {
		return r.ListThingPrincipalsFn(ctx, thingName)
	}
	return append([]string(nil), r.Principals[thingName]...), nil
}

func (r *FakeRegistry) DetachThingPrincipal(ctx context.Context, thingName, principal string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(fmt.Sprintf("DetachThingPrincipal:%s:%s", thingName, principal))
	if r.DetachThingPrincipalFn != nil {
		return r.DetachThingPrincipalFn(ctx, thingName, principal)
	}
	return nil
}

func (r *FakeRegistry) DeactivateCertificate(ctx context.Context, certificateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("DeactivateCertificate:" + certificateID)
	if r.DeactivateCertificateFn != nil {
		return r.DeactivateCertificateFn(ctx, certificateID)
	}
	return nil
}

func (r *FakeRegistry) DeleteCertificate(ctx context.Context, certificateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("DeleteCertificate:" + certificateID)
	if r.DeleteCertificateFn != nil {
		return r.DeleteCertificateFn(ctx, certificateID)
	}
	return nil
}

func (r *FakeRegistry) DeleteRoleAlias(ctx context.Context, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("DeleteRoleAlias:" + alias)
	if r.DeleteRoleAliasFn != nil {
		return r.DeleteRoleAliasFn(ctx, alias)
	}
	delete(r.RoleAliases, alias)
	return nil
}

// ========== Verifier ==========

// FakeVerifier verifies nothing; it hands back preset claims or an error
type FakeVerifier struct {
	Claims *auth.IdentityClaims
	Err    error

	VerifyFn func(ctx context.Context, token string) (*auth.IdentityClaims, error)
}

func (v *FakeVerifier) Verify(ctx context.Context, token string) (*auth.IdentityClaims, error) {
	if v.VerifyFn != nil {
		return v.VerifyFn(ctx, token)
	}
	if v.Err != nil {
		return nil, v.Err
	}
	return v.Claims, nil
}
