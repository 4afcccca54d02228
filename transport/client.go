// Package transport performs the actual network transfer of one batch of
// files to the upload endpoint and yields per-position outcomes.
package transport

import (
	"context"
	"fmt"

	"github.com/chemora/batchup/types"
)

// Client sends one logical batch and returns outcomes positionally matching
// the input files. Every input has a corresponding success-or-error outcome,
// no silent drops. A non-nil error means no outcomes were produced (connection
// failure, cancellation, or a contract breach by the endpoint) and the caller
// must treat every in-flight position as failed.
type Client interface {
	Send(ctx context.Context, files []types.FileMeta, destination string, opts types.SendOptions, onProgress func(pct int)) ([]types.Outcome, error)
}

// ItemError is the per-position failure attached to an Outcome.
type ItemError struct {
	Reason  types.FailReason
	Message string
}

func (e *ItemError) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// InvariantError reports an endpoint contract breach: the result list does
// not positionally match the input list. Fatal for the whole call.
type InvariantError struct {
	Want int
	Got  int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("endpoint returned %d outcomes for %d files", e.Got, e.Want)
}
