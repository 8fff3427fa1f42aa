package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotfleet-server/iotfleet-server/internal/admission"
	"github.com/iotfleet-server/iotfleet-server/internal/auth"
	"github.com/iotfleet-server/iotfleet-server/internal/testutil"
)

// hookSubscriber builds a subscriber whose gate would admit any complete
// request: the verifier accepts the token and the registry is empty. A
// denial can then only come from the hook's own request handling.
func hookSubscriber() *NATSSubscriber {
	verifier := &testutil.FakeVerifier{Claims: &auth.IdentityClaims{
		Subject:  "sub-alice",
		Username: "alice",
		TenantID: "tenant-1",
	}}
	gate := admission.NewGate(verifier, testutil.NewFakeRegistry(), "123456789012", "eu-west-1")
	return &NATSSubscriber{gate: gate}
}

func TestAdmitHook_AnswersCompleteRequest(t *testing.T) {
	s := hookSubscriber()

	req, resp := s.admitHook(context.Background(), []byte(`{"thingName":"sensor-001","idToken":"token"}`))

	require.True(t, resp.AllowProvisioning)
	assert.Equal(t, "sensor-001", req.ThingName)
	assert.Equal(t, "tenant-1", resp.Overrides["Company"])
}

func TestAdmitHook_DeniesMissingThingName(t *testing.T) {
	s := hookSubscriber()

	_, resp := s.admitHook(context.Background(), []byte(`{"idToken":"token"}`))

	assert.False(t, resp.AllowProvisioning)
}

func TestAdmitHook_DeniesMissingToken(t *testing.T) {
	s := hookSubscriber()

	_, resp := s.admitHook(context.Background(), []byte(`{"thingName":"sensor-001"}`))

	assert.False(t, resp.AllowProvisioning)
}

func TestAdmitHook_DeniesMalformedPayload(t *testing.T) {
	s := hookSubscriber()

	_, resp := s.admitHook(context.Background(), []byte(`not json`))

	assert.False(t, resp.AllowProvisioning)
}
