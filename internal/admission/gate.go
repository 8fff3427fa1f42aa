package admission

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"

	"github.com/iotfleet-server/iotfleet-server/internal/auth"
	"github.com/iotfleet-server/iotfleet-server/internal/errs"
	"github.com/iotfleet-server/iotfleet-server/internal/registry"
)

// Gate states. Every admission starts awaiting validation and ends in
// exactly one of Approved or Denied; the intermediate states record why
// a denial happened.
const (
	StateAwaitingValidation = "awaiting_validation"
	StateTokenInvalid       = "token_invalid"
	StateTenantMissing      = "tenant_missing"
	StateNameConflict       = "name_conflict"
	StateDenied             = "denied"
	StateApproved           = "approved"
)

const (
	eventRejectToken  = "reject_token"
	eventRejectTenant = "reject_tenant"
	eventRejectName   = "reject_name"
	eventDeny         = "deny"
	eventApprove      = "approve"
)

// Request is a device's claim to join the fleet
type Request struct {
	ThingName string `json:"thingName" validate:"required"`
	IDToken   string `json:"idToken" validate:"required"`
}

// Response tells the provisioning pipeline whether to proceed and which
// template parameters to override when it does
type Response struct {
	AllowProvisioning bool              `json:"allowProvisioning"`
	Overrides         map[string]string `json:"parameterOverrides,omitempty"`
}

// Gate decides whether a device may be provisioned. A device is admitted
// only when its token is valid, the token carries a tenant claim, and
// its name is unused anywhere in the registry. The registry is the only
// collaborator consulted.
type Gate struct {
	verifier  auth.Verifier
	registry  registry.Registry
	accountID string
	region    string
}

// NewGate creates an admission gate
func NewGate(verifier auth.Verifier, reg registry.Registry, accountID, region string) *Gate {
	return &Gate{
		verifier:  verifier,
		registry:  reg,
		accountID: accountID,
		region:    region,
	}
}

func newAdmissionFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateAwaitingValidation,
		fsm.Events{
			{Name: eventRejectToken, Src: []string{StateAwaitingValidation}, Dst: StateTokenInvalid},
			{Name: eventRejectTenant, Src: []string{StateAwaitingValidation}, Dst: StateTenantMissing},
			{Name: eventRejectName, Src: []string{StateAwaitingValidation}, Dst: StateNameConflict},
			{Name: eventDeny, Src: []string{StateTokenInvalid, StateTenantMissing, StateNameConflict}, Dst: StateDenied},
			{Name: eventApprove, Src: []string{StateAwaitingValidation}, Dst: StateApproved},
		},
		fsm.Callbacks{},
	)
}

// Admit evaluates an admission request. The decision is always returned,
// never an error: a gate that cannot decide denies.
func (g *Gate) Admit(ctx context.Context, req Request) Response {
	machine := newAdmissionFSM()

	logger := log.With().Str("thing_name", req.ThingName).Logger()

	claims, err := g.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		logger.Warn().Err(err).Msg("Admission denied, token rejected")
		return g.deny(ctx, machine, eventRejectToken)
	}

	if claims.TenantID == "" {
		logger.Warn().Msg("Admission denied, token carries no tenant")
		return g.deny(ctx, machine, eventRejectTenant)
	}

	// Any existing thing under this name blocks admission, a device of
	// the same tenant included. Re-provisioning goes through removal
	// first.
	_, err = g.registry.DescribeThing(ctx, req.ThingName)
	switch {
	case err == nil:
		logger.Warn().Str("tenant_id", claims.TenantID).Msg("Admission denied, thing name already registered")
		return g.deny(ctx, machine, eventRejectName)
	case !errs.Is(err, errs.NotFound):
		logger.Error().Err(err).Msg("Admission denied, registry lookup failed")
		return g.deny(ctx, machine, eventRejectName)
	}

	if err := machine.Event(ctx, eventApprove); err != nil {
		logger.Error().Err(err).Msg("Admission state machine rejected approval")
		return Response{AllowProvisioning: false}
	}

	logger.Info().Str("tenant_id", claims.TenantID).Msg("Device admitted")
	return Response{
		AllowProvisioning: true,
		Overrides: map[string]string{
			registry.TenantAttributeName: claims.TenantID,
			"Account":                    g.accountID,
			"Region":                     g.region,
		},
	}
}

// deny drives the machine through the named rejection into the terminal
// denied state and returns the denial response.
func (g *Gate) deny(ctx context.Context, machine *fsm.FSM, rejection string) Response {
	if err := machine.Event(ctx, rejection); err != nil {
		log.Error().Err(err).Str("event", rejection).Msg("Admission state machine rejected transition")
	}
	if err := machine.Event(ctx, eventDeny); err != nil {
		log.Error().Err(err).Msg("Admission state machine rejected denial")
	}
	return Response{AllowProvisioning: false}
}
