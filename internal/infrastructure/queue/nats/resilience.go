package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/draftwell/docassist/internal/core/domain"
	"github.com/draftwell/docassist/internal/infrastructure/resilience"
)

// Connection-level states worth a retry. Anything else (bad subject,
// oversized payload) is a programming or protocol problem the retry loop
// cannot fix.
var transientConnErrs = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
}

func isTransientConn(err error) bool {
	for _, target := range transientConnErrs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classifyQueueError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The caller gave up; neither retrying nor counting against the
		// breaker is useful.
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isTransientConn(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// markTemporary tags transient publish failures so the HTTP layer maps them
// to 503 instead of 500. Terminal failures pass through untouched.
func markTemporary(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyQueueError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return err
}
