// Package validate is the pure acceptance gate run over candidate files
// before any item is created or any network activity happens.
package validate

import (
	"fmt"

	"github.com/chemora/batchup/types"
)

// RejectReason classifies why a candidate was turned away.
type RejectReason string

const (
	UnsupportedType  RejectReason = "unsupportedType"
	TooLarge         RejectReason = "tooLarge"
	TooSmall         RejectReason = "tooSmall"
	CapacityExceeded RejectReason = "capacityExceeded"
)

// ValidationError carries the reject reason for one candidate file.
type ValidationError struct {
	FileName string
	Reason   RejectReason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("file %q rejected: %s", e.FileName, e.Reason)
}

// Rejection pairs a rejected candidate with its reason.
type Rejection struct {
	Meta   types.FileMeta
	Reason RejectReason
}

// Check validates one candidate against the policy. currentCount is the
// number of items already held by the session plus candidates accepted
// earlier in the same selection, so capacity is enforced incrementally:
// the first N candidates up to capacity pass, the remainder are rejected.
// Purely advisory, no side effects.
func Check(meta types.FileMeta, policy types.Policy, currentCount int) error {
	if !kindAllowed(meta.Kind, policy.AllowedKinds) {
		return &ValidationError{FileName: meta.Name, Reason: UnsupportedType}
	}
	if policy.MaxSize > 0 && meta.Size > policy.MaxSize {
		return &ValidationError{FileName: meta.Name, Reason: TooLarge}
	}
	if meta.Size < policy.MinSize {
		return &ValidationError{FileName: meta.Name, Reason: TooSmall}
	}
	if policy.Capacity > 0 && currentCount+1 > policy.Capacity {
		return &ValidationError{FileName: meta.Name, Reason: CapacityExceeded}
	}
	return nil
}

// Partition runs Check over the candidates in selection order and splits
// them into accepted and rejected, both preserving relative order.
// len(accepted)+len(rejected) always equals len(candidates).
func Partition(candidates []types.FileMeta, policy types.Policy, existingCount int) ([]types.FileMeta, []Rejection) {
	accepted := make([]types.FileMeta, 0, len(candidates))
	rejected := make([]Rejection, 0)
	count := existingCount
	for _, meta := range candidates {
		if err := Check(meta, policy, count); err != nil {
			verr := err.(*ValidationError)
			rejected = append(rejected, Rejection{Meta: meta, Reason: verr.Reason})
			continue
		}
		accepted = append(accepted, meta)
		count++
	}
	return accepted, rejected
}

func kindAllowed(kind string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}
