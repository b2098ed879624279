/*
errors.go - Centralized error types for the compliance core

PURPOSE:

	All error types in one place. The taxonomy matters to callers: facts and
	precondition errors are deterministic and must not be retried, store
	conflicts may be retried with the same atomic-unit semantics, and
	reconciliation failures are fatal.

ERROR CATEGORIES:
 1. Facts errors       - malformed voyage input, rejected before calculation
 2. Transition errors  - state machine precondition violations
 3. Reconciliation     - ledger sum does not match decision effect (fatal)
 4. Store errors       - conflicts and missing rows

USAGE:

	if errors.Is(err, compliance.ErrTransitionRejected) { ... }

SEE ALSO:
  - policy.ResolutionError: The fourth taxonomy member, owned by the policy
    package since it is raised during version lookup
*/
package compliance

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidFacts is returned for malformed or out-of-range voyage facts.
	ErrInvalidFacts = errors.New("invalid voyage facts")

	// ErrTransitionRejected is returned when a state transition precondition
	// is violated. The position is left untouched.
	ErrTransitionRejected = errors.New("state transition rejected")

	// ErrLedgerReconciliation is returned when the sum of ledger entries for
	// a decision does not equal its computed financial effect. Fatal.
	ErrLedgerReconciliation = errors.New("ledger reconciliation failed")

	// ErrPositionNotFound is returned when no position exists for a
	// (ship, year) key.
	ErrPositionNotFound = errors.New("compliance position not found")

	// ErrStoreConflict is returned when a concurrent writer won the
	// read-modify-write race. Retryable.
	ErrStoreConflict = errors.New("store conflict")

	// ErrRFQNotFound is returned for an unknown pooling RFQ or offer.
	ErrRFQNotFound = errors.New("pool rfq or offer not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidFactsError reports which input field failed validation.
type InvalidFactsError struct {
	Field  string
	Reason string
	Value  string
}

func (e *InvalidFactsError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid facts: %s %s (got %q)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("invalid facts: %s %s", e.Field, e.Reason)
}

func (e *InvalidFactsError) Unwrap() error { return ErrInvalidFacts }

// TransitionError reports a violated transition precondition with the
// quantities involved, so callers can present the shortfall.
type TransitionError struct {
	Transition string // "bank", "use_bank", "borrow", "pool_accept"
	Reason     string
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *TransitionError) Error() string {
	if !e.Requested.IsZero() || !e.Available.IsZero() {
		return fmt.Sprintf("%s rejected: %s (requested %s, available %s)",
			e.Transition, e.Reason, e.Requested, e.Available)
	}
	return fmt.Sprintf("%s rejected: %s", e.Transition, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrTransitionRejected }

// ReconciliationError reports a decision whose postings do not sum to its
// computed financial effect. Never silently corrected.
type ReconciliationError struct {
	DecisionID string
	Expected   Money
	Actual     Money
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("ledger out of balance for decision %s: expected %s, posted %s",
		e.DecisionID, e.Expected, e.Actual)
}

func (e *ReconciliationError) Unwrap() error { return ErrLedgerReconciliation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether the operation might succeed on retry.
// Deterministic rejections (facts, preconditions) never will.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreConflict)
}

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidFacts) ||
		errors.Is(err, ErrTransitionRejected) ||
		errors.Is(err, ErrRFQNotFound)
}

// IsFatal reports an invariant violation that must surface immediately.
func IsFatal(err error) bool {
	return errors.Is(err, ErrLedgerReconciliation)
}
