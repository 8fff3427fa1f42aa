package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/iotfleet-server/iotfleet-server/internal/admission"
	"github.com/iotfleet-server/iotfleet-server/internal/models"
	"github.com/iotfleet-server/iotfleet-server/internal/tenant"
	"github.com/iotfleet-server/iotfleet-server/internal/validation"
)

// Subjects consumed and produced by the lifecycle subscriber
const (
	SubjectIdentityConfirmed = "identity.confirmed"
	SubjectIdentityDeleted   = "identity.deleted"
	SubjectProvisioningHook  = "provisioning.hook"
	SubjectTenantEvents      = "tenant.events"
)

// NATSSubscriber wires identity lifecycle messages to the tenant
// provisioner and teardown coordinator, and answers provisioning hook
// requests through the admission gate
type NATSSubscriber struct {
	nc          *nats.Conn
	provisioner *tenant.Provisioner
	teardown    *tenant.TeardownCoordinator
	gate        *admission.Gate
	subs        []*nats.Subscription
}

// NewNATSSubscriber creates NATS subscriber
func NewNATSSubscriber(nc *nats.Conn, provisioner *tenant.Provisioner, teardown *tenant.TeardownCoordinator, gate *admission.Gate) *NATSSubscriber {
	return &NATSSubscriber{
		nc:          nc,
		provisioner: provisioner,
		teardown:    teardown,
		gate:        gate,
		subs:        make([]*nats.Subscription, 0),
	}
}

// Start starts subscriptions and blocks until the context ends
func (s *NATSSubscriber) Start(ctx context.Context) error {
	sub1, err := s.nc.Subscribe(SubjectIdentityConfirmed, s.handleIdentityConfirmed)
	if err != nil {
		return fmt.Errorf("subscribe identity confirmed: %w", err)
	}
	s.subs = append(s.subs, sub1)

	sub2, err := s.nc.Subscribe(SubjectIdentityDeleted, s.handleIdentityDeleted)
	if err != nil {
		return fmt.Errorf("subscribe identity deleted: %w", err)
	}
	s.subs = append(s.subs, sub2)

	sub3, err := s.nc.Subscribe(SubjectProvisioningHook, s.handleProvisioningHook)
	if err != nil {
		return fmt.Errorf("subscribe provisioning hook: %w", err)
	}
	s.subs = append(s.subs, sub3)

	log.Info().
		Int("subscriptions", len(s.subs)).
		Msg("NATS subscriber started")

	<-ctx.Done()

	for _, sub := range s.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

// handleIdentityConfirmed provisions a tenant for a newly confirmed
// identity. The message is always consumed; provisioning failures never
// bounce the confirmation.
func (s *NATSSubscriber) handleIdentityConfirmed(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(msg.Data)).
		Msg("Received identity confirmation")

	var evt models.IdentityConfirmedEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal identity confirmation")
		return
	}

	ctx := context.Background()

	record := s.provisioner.Provision(ctx, evt)
	if record == nil {
		return
	}

	s.publishTenantEvent(&models.TenantEvent{
		Type:     models.TenantEventCreated,
		TenantID: record.ID.String(),
		Identity: evt.Username,
	})
}

// handleIdentityDeleted shrinks or tears down the identity's tenant
func (s *NATSSubscriber) handleIdentityDeleted(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Msg("Received identity deletion")

	var evt models.IdentityDeletedEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal identity deletion")
		return
	}

	ctx := context.Background()

	if event := s.teardown.HandleIdentityDeleted(ctx, evt); event != nil {
		s.publishTenantEvent(event)
	}
}

// handleProvisioningHook answers an admission request from the
// provisioning pipeline. Requests without a reply subject are ignored.
func (s *NATSSubscriber) handleProvisioningHook(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Msg("Received provisioning hook request")

	if msg.Reply == "" {
		log.Warn().Msg("Provisioning hook request carries no reply subject")
		return
	}

	req, resp := s.admitHook(context.Background(), msg.Data)
	s.replyAdmission(msg, resp)

	log.Info().
		Str("thing_name", req.ThingName).
		Bool("allowed", resp.AllowProvisioning).
		Msg("Provisioning hook answered")
}

// admitHook decodes and validates a hook request before handing it to
// the gate. A request that cannot be decoded or is missing a field is a
// denial, the same answer the HTTP admission path gives.
func (s *NATSSubscriber) admitHook(ctx context.Context, data []byte) (admission.Request, admission.Response) {
	var req admission.Request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal provisioning hook request")
		return req, admission.Response{AllowProvisioning: false}
	}

	if err := validation.ValidateStruct(&req); err != nil {
		log.Warn().Err(err).Msg("Provisioning hook request rejected")
		return req, admission.Response{AllowProvisioning: false}
	}

	return req, s.gate.Admit(ctx, req)
}

// replyAdmission serializes the decision back onto the reply subject
func (s *NATSSubscriber) replyAdmission(msg *nats.Msg, resp admission.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal admission response")
		return
	}

	if err := msg.Respond(data); err != nil {
		log.Error().Err(err).Msg("Failed to reply to provisioning hook")
	}
}

// publishTenantEvent publishes a lifecycle event for downstream
// consumers. Publishing is best-effort.
func (s *NATSSubscriber) publishTenantEvent(event *models.TenantEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal tenant event")
		return
	}

	if err := s.nc.Publish(SubjectTenantEvents, data); err != nil {
		log.Error().Err(err).Msg("Failed to publish tenant event")
		return
	}

	log.Info().
		Str("type", string(event.Type)).
		Str("tenant_id", event.TenantID).
		Msg("Tenant event published")
}
