// Package tenant implements the tenant lifecycle: provisioning at identity
// confirmation, teardown or membership shrink at identity deletion, and
// member-authorized record access.
package tenant

import (
	"context"

	"github.com/rs/zerolog"
)

// stepPolicy says what a step failure does to the rest of its sequence.
type stepPolicy int

const (
	// bestEffort: the failure is logged and the sequence continues.
	bestEffort stepPolicy = iota
	// fatalToSequence: the failure stops the sequence.
	fatalToSequence
)

// step is one ordered action of a lifecycle saga. The sequences here are
// forward-only: there is no compensating rollback, only opportunistic
// cleanup, so the policy annotation is the whole failure model.
type step struct {
	name   string
	policy stepPolicy
	run    func(ctx context.Context) error
}

// runSteps executes steps in order, strictly sequentially. It returns the
// first fatal error, or nil when the sequence ran to the end (best-effort
// failures included).
func runSteps(ctx context.Context, logger zerolog.Logger, steps []step) error {
	for _, s := range steps {
		err := s.run(ctx)
		if err == nil {
			logger.Debug().Str("step", s.name).Msg("Saga step done")
			continue
		}

		if s.policy == fatalToSequence {
			logger.Error().Err(err).Str("step", s.name).Msg("Saga step failed, aborting sequence")
			return err
		}

		logger.Error().Err(err).Str("step", s.name).Msg("Saga step failed, continuing")
	}
	return nil
}
