// Package wallettypes holds the shared wire/domain types consumed
// across the wallet engine and its external collaborators (Chain,
// WorkerPool, WalletDB). Field layout follows the teacher's
// blockchain/types convention of small, explicit value structs
// (blockchain/types/tx_internal_data_value_transfer.go) rather than a
// single monolithic transaction type.
package wallettypes

import (
	"encoding/hex"
)

// Hash is a 32-byte content identifier: a block hash, a note
// commitment, or a transaction hash depending on context.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }
func (h Hash) IsZero() bool   { return h == Hash{} }

// Nullifier is the deterministic, view-key-unlinkable spend tag
// revealed when a note is spent.
type Nullifier [32]byte

func (n Nullifier) String() string { return hex.EncodeToString(n[:]) }

// AssetID identifies a fungible asset on the chain; the zero value is
// reserved for the chain's native asset.
type AssetID [32]byte

func (a AssetID) String() string { return hex.EncodeToString(a[:]) }

var NativeAssetID AssetID

// Address is a shielded public payment address: opaque key material
// the chain uses to route notes, never a transparent account number.
type Address [32]byte

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// Note is a shielded UTXO output.
type Note struct {
	Owner   Address
	Value   uint64
	Memo    []byte
	AssetID AssetID
	Sender  Address
}

// Witness is a Merkle authentication path proving a note's inclusion
// in the note commitment tree at a given tree size.
type Witness struct {
	TreeSize  uint64
	AuthPath  [][32]byte
	RootHash  [32]byte
}

// Spend references an already-mined note being consumed by a
// transaction.
type Spend struct {
	Nullifier Nullifier
}

// MintDescription / BurnDescription describe asset supply changes
// carried by a transaction.
type MintDescription struct {
	AssetID  AssetID
	Name     string
	Metadata []byte
	Value    uint64
}

type BurnDescription struct {
	AssetID AssetID
	Value   uint64
}

// Transaction is a proven, chain-ready transaction.
type Transaction struct {
	TransactionHash Hash
	Spends          []Spend
	Receives        []Note
	Mints           []MintDescription
	Burns           []BurnDescription
	Fee             uint64
	Expiration      uint64
	IsMinerFee      bool
}

func (t *Transaction) Hash() Hash { return t.TransactionHash }

// RawTransaction is an assembled-but-unproven transaction: spends,
// receives, mints, burns, fee, expiration, spending key.
type RawTransaction struct {
	SpendingKey []byte
	Spends      []SpendCandidate
	Receives    []Note
	Mints       []MintDescription
	Burns       []BurnDescription
	Fee         uint64
	Expiration  uint64
}

// SpendCandidate is a note plus the witness proving it is still
// present in the commitment tree, ready to be proven as a spend.
type SpendCandidate struct {
	Note      Note
	Index     uint64
	Nullifier Nullifier
	Witness   *Witness
}

// Header identifies a block on the canonical (or a forked) chain.
type Header struct {
	Hash              Hash
	PreviousBlockHash Hash
	Sequence          uint64
}

// BlockTransaction pairs a mined transaction with the leaf index of
// its first output in the global note commitment tree.
type BlockTransaction struct {
	Transaction      *Transaction
	InitialNoteIndex uint64
}

// Asset describes a fungible asset registered on-chain.
type Asset struct {
	ID       AssetID
	Name     string
	Metadata []byte
	Creator  Address
}

// DecryptPayload is the unit of work submitted to the worker pool's
// DecryptNotes call: one note, one set of candidate view/spend keys.
type DecryptPayload struct {
	SerializedNote    []byte
	IncomingViewKey   []byte
	OutgoingViewKey   []byte
	SpendingKey       []byte
	CurrentNoteIndex  *uint64
	AccountID         string
	TransactionHash   Hash
}

// MatchedKey records which of the account's view keys matched a note,
// distinguishing a receive from a change/self-send.
type MatchedKey int

const (
	MatchedIncoming MatchedKey = iota
	MatchedOutgoing
)

// DecryptedNote is the result of successfully trial-decrypting a note
// against one account's keys.
type DecryptedNote struct {
	AccountID       string
	Note            Note
	Index           *uint64
	Nullifier       *Nullifier
	Spent           bool
	TransactionHash Hash
	Matched         MatchedKey
	// MinedSequence is the sequence of the block that assigned Index,
	// null while the note is pending. Kept alongside Index so balance
	// confirmation depth can be computed without a chain round-trip.
	MinedSequence *uint64
}

// TransactionRecord is the per-account lifecycle record for a
// transaction the account is party to.
type TransactionRecord struct {
	Transaction       *Transaction
	BlockHash         *Hash
	Sequence          *uint64
	SubmittedSequence uint64
	Expiration        uint64
}

func (r *TransactionRecord) IsPending() bool { return r.BlockHash == nil }

// BalanceRecord tracks one account's balance for one asset.
type BalanceRecord struct {
	Unconfirmed         uint64
	ConfirmedBlockHash  Hash
	ConfirmedSequence   uint64
	Confirmed           uint64
}

// AccountHead is the latest block whose notes/nullifiers have been
// applied to an account, or nil when the account has not been scanned.
type AccountHead struct {
	Hash     Hash
	Sequence uint64
}

// TransactionStatus is derived per spec.md §4.7.
type TransactionStatus int

const (
	StatusUnknown TransactionStatus = iota
	StatusPending
	StatusExpired
	StatusUnconfirmed
	StatusConfirmed
)

func (s TransactionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExpired:
		return "expired"
	case StatusUnconfirmed:
		return "unconfirmed"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// TransactionType is derived per spec.md §4.7.
type TransactionType int

const (
	TypeReceive TransactionType = iota
	TypeSend
	TypeMiner
)

func (t TransactionType) String() string {
	switch t {
	case TypeSend:
		return "send"
	case TypeMiner:
		return "miner"
	default:
		return "receive"
	}
}
