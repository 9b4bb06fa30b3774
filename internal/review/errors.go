package review

import (
	"fmt"

	"docflow/internal/services"
)

// ErrClaimConflict is returned when a claim loses a race or targets an item
// already held by another reviewer. Callers must re-read the item and decide
// whether to re-claim explicitly; the store never retries claims itself.
var ErrClaimConflict = fmt.Errorf("%w: claim conflict", services.ErrConflict)

// ErrInvalidTransition is returned when a claim or submit is attempted from a
// status that does not permit it. No state changes.
var ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", services.ErrValidation)
