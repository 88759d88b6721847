package wallet

import (
	"github.com/pkg/errors"

	"github.com/shieldcoin/walletcore/wallettypes"
)

// Sentinel precondition errors (spec.md §7). Wrapped with
// github.com/pkg/errors so callers can still errors.Cause() down to
// the sentinel while getting a stack trace on first return, matching
// the teacher's wrap-at-the-boundary convention.
var (
	ErrAccountNotFound  = errors.New("wallet: account not found")
	ErrAccountExists    = errors.New("wallet: account already exists")
	ErrNotUpToDate      = errors.New("wallet: account is not up to date with the chain")
	ErrAlreadyExpired   = errors.New("wallet: requested expiration sequence has already passed")
	ErrScanInProgress   = errors.New("wallet: a scan is already in progress")
	ErrVerifierRejected = errors.New("wallet: chain verifier rejected the transaction")
	ErrAssetMismatch    = errors.New("wallet: recomputed asset id does not match requested asset")

	// ErrChainDesync marks the StateInconsistency kind (spec.md §7): an
	// account's stored cursor hash no longer sits on the canonical
	// chain, meaning local state was built against a fork that has
	// since been abandoned. Start resets the affected account rather
	// than returning this to a caller; it is logged, not propagated.
	ErrChainDesync = errors.New("wallet: account cursor is no longer on the canonical chain")
)

// ErrInsufficientFunds is raised by the spend selector (spec.md §4.6).
type ErrInsufficientFunds struct {
	AssetID wallettypes.AssetID
	Have    uint64
	Need    uint64
}

func (e *ErrInsufficientFunds) Error() string {
	return errors.Errorf("wallet: insufficient funds for asset %s: have %d, need %d",
		e.AssetID, e.Have, e.Need).Error()
}

// errVerifierRejectedf wraps a verifier rejection so callers can still
// errors.Cause() down to ErrVerifierRejected while the original reason
// stays in the message.
func errVerifierRejectedf(cause error) error {
	return errors.Wrap(ErrVerifierRejected, cause.Error())
}
