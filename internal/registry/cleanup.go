package registry

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/iotfleet-server/iotfleet-server/internal/errs"
)

// RemoveDevice runs the canonical device removal sequence: every attached
// principal is detached, certificate principals are deactivated and
// deleted, then the thing itself is deleted. Steps run sequentially so the
// first failing call is unambiguous in the logs.
//
// Certificate deletion after a successful deactivation is tolerated as a
// best-effort step: an inactive certificate grants nothing, so a failed
// delete leaves garbage, not access.
func RemoveDevice(ctx context.Context, reg Registry, thingName string) error {
	principals, err := reg.ListThingPrincipals(ctx, thingName)
	if err != nil {
		return err
	}

	for _, principal := range principals {
		if err := reg.DetachThingPrincipal(ctx, thingName, principal); err != nil {
			return err
		}

		certID, ok := certificateID(principal)
		if !ok {
			continue
		}

		if err := reg.DeactivateCertificate(ctx, certID); err != nil {
			if !errs.Is(err, errs.NotFound) {
				return err
			}
			continue
		}

		if err := reg.DeleteCertificate(ctx, certID); err != nil {
			log.Warn().
				Err(err).
				Str("thing_name", thingName).
				Str("certificate_id", certID).
				Msg("Certificate deactivated but not deleted")
		}
	}

	return reg.DeleteThing(ctx, thingName)
}

// certificateID extracts the certificate id from a principal ARN of the
// form arn:aws:iot:<region>:<account>:cert/<id>.
func certificateID(principal string) (string, bool) {
	idx := strings.Index(principal, ":cert/")
	if idx < 0 {
		return "", false
	}
	id := principal[idx+len(":cert/"):]
	return id, id != ""
}
