// Package walletdb is the persisted-state contract the wallet engine
// uses (spec.md §6): an ordered, transactional key-value store keyed
// by account id and by the per-account secondary indexes the
// orchestrator needs for ordered iteration (pendingIndex,
// nullifierIndex). There is no separate expired index: IterateExpired
// filters the pending index by expiration sequence.
//
// The facade mirrors the teacher's storage/database.DBManager: one
// wide interface enumerating every accessor, backed here by
// github.com/syndtr/goleveldb (the same engine the teacher uses in
// storage/database/leveldb_database.go), using goleveldb's native
// *leveldb.Transaction for atomicity rather than hand-rolled
// write-ahead batching.
package walletdb

import (
	"context"

	"github.com/shieldcoin/walletcore/wallettypes"
)

// AccountValue is the persisted account record (spec.md §6).
type AccountValue struct {
	ID               string
	Name             string
	SpendingKey      []byte
	IncomingViewKey  []byte
	OutgoingViewKey  []byte
	PublicAddress    wallettypes.Address
}

// WalletDB is the top-level handle; every multi-write operation the
// wallet performs opens exactly one Update transaction (spec.md §5:
// "the WalletDB transaction is the unit of atomicity").
type WalletDB interface {
	Close() error

	// Update runs fn inside one read-write transaction. If fn returns
	// an error, every write performed through tx is discarded.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn inside a read-only snapshot.
	View(fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a WalletDB
// transaction. Nested calls to Update while already holding a Tx
// should pass that Tx through rather than opening a new one —
// goleveldb transactions do not nest (spec.md §9 open question on
// skipRescan's nested-transaction semantics).
type Tx interface {
	PutAccount(a *AccountValue) error
	GetAccount(id string) (*AccountValue, bool, error)
	DeleteAccount(id string) error
	ListAccounts() ([]*AccountValue, error)
	FindAccountByName(name string) (*AccountValue, bool, error)

	GetDefaultAccountID() (string, bool, error)
	SetDefaultAccountID(id string) error
	ClearDefaultAccountID() error

	GetHead(accountID string) (*wallettypes.AccountHead, error)
	SetHead(accountID string, head *wallettypes.AccountHead) error

	PutNote(accountID string, noteHash wallettypes.Hash, n *wallettypes.DecryptedNote) error
	GetNote(accountID string, noteHash wallettypes.Hash) (*wallettypes.DecryptedNote, bool, error)
	DeleteNote(accountID string, noteHash wallettypes.Hash) error
	IterateNotes(accountID string, fn func(noteHash wallettypes.Hash, n *wallettypes.DecryptedNote) error) error
	// IterateUnspentNotes returns unspent, decrypted notes for one
	// asset, oldest-applied first — the deterministic order spend
	// selection (spec.md §4.6) requires for reproducible tests.
	IterateUnspentNotes(accountID string, assetID wallettypes.AssetID, fn func(noteHash wallettypes.Hash, n *wallettypes.DecryptedNote) (stop bool, err error)) error

	PutNullifierIndex(accountID string, nullifier wallettypes.Nullifier, noteHash wallettypes.Hash) error
	DeleteNullifierIndex(accountID string, nullifier wallettypes.Nullifier) error
	FindNoteByNullifier(accountID string, nullifier wallettypes.Nullifier) (wallettypes.Hash, bool, error)

	PutTransaction(accountID string, txHash wallettypes.Hash, r *wallettypes.TransactionRecord) error
	GetTransaction(accountID string, txHash wallettypes.Hash) (*wallettypes.TransactionRecord, bool, error)
	DeleteTransaction(accountID string, txHash wallettypes.Hash) error
	HasTransaction(accountID string, txHash wallettypes.Hash) (bool, error)
	IteratePending(accountID string, fn func(txHash wallettypes.Hash, r *wallettypes.TransactionRecord) error) error
	IterateExpired(accountID string, headSeq uint64, fn func(txHash wallettypes.Hash, r *wallettypes.TransactionRecord) error) error
	// IterateTransactions walks every transaction record for an
	// account, mined or pending — the full set IteratePending's
	// pendingIndex does not cover, used by account removal to scrub
	// every record rather than only the still-pending ones.
	IterateTransactions(accountID string, fn func(txHash wallettypes.Hash, r *wallettypes.TransactionRecord) error) error

	GetBalance(accountID string, assetID wallettypes.AssetID) (*wallettypes.BalanceRecord, error)
	PutBalance(accountID string, assetID wallettypes.AssetID, b *wallettypes.BalanceRecord) error
	DeleteBalance(accountID string, assetID wallettypes.AssetID) error
	IterateBalances(accountID string, fn func(assetID wallettypes.AssetID, b *wallettypes.BalanceRecord) error) error
}
