// Package chainsync defines the Chain contract the wallet engine
// consumes (spec.md §6) plus a small in-memory reference
// implementation used by tests. The interface shape follows the
// teacher's storage/database.DBManager: a single facade interface
// enumerating every accessor the consumer needs, rather than several
// narrow interfaces the caller composes itself.
package chainsync

import (
	"github.com/shieldcoin/walletcore/wallettypes"
)

// Verifier is the subset of chain-level consensus checks the wallet
// calls into when building or accepting a transaction.
type Verifier interface {
	VerifyCreatedTransaction(tx *wallettypes.Transaction) error
	VerifyTransactionAdd(tx *wallettypes.Transaction) error
}

// Chain is the external blockchain store: headers, block
// transactions, note commitment tree witnesses, the nullifier set,
// and genesis. The wallet engine never mutates it.
type Chain interface {
	Head() wallettypes.Header
	Genesis() wallettypes.Hash
	Synced() bool
	HasBlock(hash wallettypes.Hash) bool
	// IsCanonical reports whether hash currently sits on the best
	// chain, the way the teacher's ReadCanonicalHash(number) lets a
	// caller check a header against the canonical index
	// (storage/database/db_manager.go).
	IsCanonical(hash wallettypes.Hash) bool

	GetHeader(hash wallettypes.Hash) (*wallettypes.Header, error)
	GetBlockTransactions(h *wallettypes.Header) ([]wallettypes.BlockTransaction, error)

	// IterateBlockHeaders walks canonical headers from begin to end.
	// When reverse is true, headers are returned from end down to
	// begin. inclusive controls whether begin itself is included;
	// spec.md §4.3.6 always excludes begin because it is already
	// applied.
	IterateBlockHeaders(begin, end wallettypes.Hash, reverse, inclusive bool) ([]*wallettypes.Header, error)

	NoteWitness(index uint64) (*wallettypes.Witness, error)
	NullifierContains(n wallettypes.Nullifier) bool
	GetAssetByID(id wallettypes.AssetID) (*wallettypes.Asset, error)

	Verifier() Verifier
}
