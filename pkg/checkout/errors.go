package checkout

import (
	"errors"
	"fmt"

	"github.com/example/freshcart/pkg/ledger"
)

var (
	ErrInvalidCart        = errors.New("invalid cart")
	ErrCounterConflict    = errors.New("concurrent checkout conflict")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrDuplicateOrder     = errors.New("order id already exists")
	// ErrCommitUnknown means the store could not confirm whether the commit
	// landed. The order may exist, so the checkout must not be resubmitted.
	ErrCommitUnknown = errors.New("commit outcome unknown")
)

// IsRetryable reports whether nothing was committed and the same checkout
// may be submitted again.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrCommitUnknown) {
		return false
	}
	return errors.Is(err, ErrCounterConflict) || errors.Is(err, ErrTransactionAborted)
}

// classify maps a failed transaction onto the commit errors. Duplicate
// order ids and store failures both surface as ErrTransactionAborted.
func classify(err error) error {
	var se *ledger.StockError
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, ErrCommitUnknown), errors.Is(err, ErrCounterConflict), errors.Is(err, ErrTransactionAborted):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
	}
}
