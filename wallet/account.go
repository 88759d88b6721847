package wallet

import (
	"sync"

	"github.com/shieldcoin/walletcore/walletdb"
	"github.com/shieldcoin/walletcore/walletlog"
	"github.com/shieldcoin/walletcore/wallettypes"
)

var accountLogger = walletlog.NewModuleLogger(walletlog.ModuleWallet).With("component", "account")

// Account owns one shielded identity's notes, nullifiers, balances,
// head pointer, and pending/expired queues (spec.md §3). Account never
// references the owning Wallet — only value/index handles flow the
// other way (spec.md §9 "cyclic references").
type Account struct {
	ID              string
	Name            string
	SpendingKey     []byte
	IncomingViewKey []byte
	OutgoingViewKey []byte
	PublicAddress   wallettypes.Address

	mu   sync.RWMutex
	head *wallettypes.AccountHead
}

func newAccount(v *walletdb.AccountValue, head *wallettypes.AccountHead) *Account {
	return &Account{
		ID:              v.ID,
		Name:            v.Name,
		SpendingKey:     v.SpendingKey,
		IncomingViewKey: v.IncomingViewKey,
		OutgoingViewKey: v.OutgoingViewKey,
		PublicAddress:   v.PublicAddress,
		head:            head,
	}
}

func (a *Account) Head() *wallettypes.AccountHead {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.head == nil {
		return nil
	}
	cp := *a.head
	return &cp
}

func (a *Account) setHead(h *wallettypes.AccountHead) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if h == nil {
		a.head = nil
		return
	}
	cp := *h
	a.head = &cp
}

// ConnectTransaction persists the notes decrypted for this account
// out of one mined transaction, applies any spends of this account's
// own notes, and updates balances — all within the caller's WalletDB
// transaction (spec.md §4.3.3 step 3).
func (a *Account) ConnectTransaction(tx walletdb.Tx, header *wallettypes.Header, transaction *wallettypes.Transaction, decrypted []*wallettypes.DecryptedNote, confirmations uint64) error {
	touched := map[wallettypes.AssetID]bool{}

	for _, dn := range decrypted {
		noteHash := noteHashOf(dn)
		dn.MinedSequence = &header.Sequence
		if err := tx.PutNote(a.ID, noteHash, dn); err != nil {
			return err
		}
		if dn.Nullifier != nil {
			if err := tx.PutNullifierIndex(a.ID, *dn.Nullifier, noteHash); err != nil {
				return err
			}
		}
		touched[dn.Note.AssetID] = true
	}

	for _, sp := range transaction.Spends {
		noteHash, ok, err := tx.FindNoteByNullifier(a.ID, sp.Nullifier)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		n, ok, err := tx.GetNote(a.ID, noteHash)
		if err != nil {
			return err
		}
		if !ok || n.Spent {
			continue
		}
		n.Spent = true
		if err := tx.PutNote(a.ID, noteHash, n); err != nil {
			return err
		}
		touched[n.Note.AssetID] = true
	}

	existing, ok, err := tx.GetTransaction(a.ID, transaction.TransactionHash)
	if err != nil {
		return err
	}
	record := &wallettypes.TransactionRecord{Transaction: transaction}
	if ok {
		record = existing
		record.Transaction = transaction
	}
	blockHash := header.Hash
	record.BlockHash = &blockHash
	record.Sequence = &header.Sequence
	if err := tx.PutTransaction(a.ID, transaction.TransactionHash, record); err != nil {
		return err
	}

	for assetID := range touched {
		if err := a.recomputeBalance(tx, assetID, header.Sequence, confirmations); err != nil {
			return err
		}
	}
	return nil
}

// DisconnectTransaction is the inverse of ConnectTransaction: it
// un-marks spent notes, drops notes that were first mined by this
// transaction, and reverts the transaction back to pending (or
// deletes it if it is a miner's fee, which has no pending lifetime) —
// spec.md §4.3.4.
func (a *Account) DisconnectTransaction(tx walletdb.Tx, header *wallettypes.Header, transaction *wallettypes.Transaction) error {
	touched := map[wallettypes.AssetID]bool{}

	for _, sp := range transaction.Spends {
		noteHash, ok, err := tx.FindNoteByNullifier(a.ID, sp.Nullifier)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		n, ok, err := tx.GetNote(a.ID, noteHash)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		n.Spent = false
		if err := tx.PutNote(a.ID, noteHash, n); err != nil {
			return err
		}
		touched[n.Note.AssetID] = true
	}

	var toDelete []wallettypes.Hash
	err := tx.IterateNotes(a.ID, func(hash wallettypes.Hash, n *wallettypes.DecryptedNote) error {
		if n.TransactionHash == transaction.TransactionHash {
			toDelete = append(toDelete, hash)
			touched[n.Note.AssetID] = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, hash := range toDelete {
		n, ok, err := tx.GetNote(a.ID, hash)
		if err != nil {
			return err
		}
		if ok && n.Nullifier != nil {
			if err := tx.DeleteNullifierIndex(a.ID, *n.Nullifier); err != nil {
				return err
			}
		}
		if err := tx.DeleteNote(a.ID, hash); err != nil {
			return err
		}
	}

	if transaction.IsMinerFee {
		if err := tx.DeleteTransaction(a.ID, transaction.TransactionHash); err != nil {
			return err
		}
	} else {
		record, ok, err := tx.GetTransaction(a.ID, transaction.TransactionHash)
		if err != nil {
			return err
		}
		if ok {
			record.BlockHash = nil
			record.Sequence = nil
			if err := tx.PutTransaction(a.ID, transaction.TransactionHash, record); err != nil {
				return err
			}
		}
	}

	prevSeq := uint64(0)
	if header.Sequence > 0 {
		prevSeq = header.Sequence - 1
	}
	for assetID := range touched {
		if err := a.recomputeBalance(tx, assetID, prevSeq, 0); err != nil {
			return err
		}
	}
	return nil
}

// AddPendingTransaction records an unmined transaction (spec.md
// §4.3.5).
func (a *Account) AddPendingTransaction(tx walletdb.Tx, transaction *wallettypes.Transaction, decrypted []*wallettypes.DecryptedNote, submittedSequence uint64) error {
	touched := map[wallettypes.AssetID]bool{}
	for _, dn := range decrypted {
		noteHash := noteHashOf(dn)
		if err := tx.PutNote(a.ID, noteHash, dn); err != nil {
			return err
		}
		touched[dn.Note.AssetID] = true
	}
	record := &wallettypes.TransactionRecord{
		Transaction:       transaction,
		SubmittedSequence: submittedSequence,
		Expiration:        transaction.Expiration,
	}
	if err := tx.PutTransaction(a.ID, transaction.TransactionHash, record); err != nil {
		return err
	}
	for assetID := range touched {
		if err := a.recomputeBalance(tx, assetID, submittedSequence, 0); err != nil {
			return err
		}
	}
	return nil
}

// GetExpiredTransactions returns pending transactions whose expiration
// sequence has already passed headSeq (spec.md §8 boundary: expiration
// exactly equal to head sequence is expired, not pending).
func (a *Account) GetExpiredTransactions(tx walletdb.Tx, headSeq uint64) ([]wallettypes.Hash, error) {
	var out []wallettypes.Hash
	err := tx.IterateExpired(a.ID, headSeq, func(hash wallettypes.Hash, r *wallettypes.TransactionRecord) error {
		out = append(out, hash)
		return nil
	})
	return out, err
}

func (a *Account) ExpireTransaction(tx walletdb.Tx, txHash wallettypes.Hash) error {
	return tx.DeleteTransaction(a.ID, txHash)
}

func (a *Account) recomputeBalance(tx walletdb.Tx, assetID wallettypes.AssetID, headSeq uint64, confirmations uint64) error {
	var unconfirmed, confirmed uint64
	err := tx.IterateUnspentNotes(a.ID, assetID, func(_ wallettypes.Hash, n *wallettypes.DecryptedNote) (bool, error) {
		unconfirmed += n.Note.Value
		if n.MinedSequence != nil && headSeq >= *n.MinedSequence+confirmations {
			confirmed += n.Note.Value
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	return tx.PutBalance(a.ID, assetID, &wallettypes.BalanceRecord{
		Unconfirmed: unconfirmed,
		Confirmed:   confirmed,
	})
}

func noteHashOf(dn *wallettypes.DecryptedNote) wallettypes.Hash {
	return commitmentHash(dn.Note, dn.TransactionHash)
}

// DeriveStatus computes a transaction record's lifecycle status
// (spec.md §4.7): confirmed once a mined record reaches confirmations
// depth, unconfirmed short of that depth, expired once an unmined
// record's expiration sequence has passed, pending otherwise. Without
// a known head (headKnown false) none of those comparisons are
// meaningful, so the status is reported as unknown rather than
// guessed. The boundary case spec.md §8 calls out explicitly —
// expiration exactly equal to headSeq — falls to expired, not pending,
// matching the same `<=` comparison walletdb's IterateExpired uses.
func DeriveStatus(record *wallettypes.TransactionRecord, headKnown bool, headSeq uint64, confirmations uint64) wallettypes.TransactionStatus {
	if !headKnown {
		return wallettypes.StatusUnknown
	}
	if record.Sequence != nil {
		if headSeq >= *record.Sequence+confirmations {
			return wallettypes.StatusConfirmed
		}
		return wallettypes.StatusUnconfirmed
	}
	if record.Expiration != 0 && record.Expiration <= headSeq {
		return wallettypes.StatusExpired
	}
	return wallettypes.StatusPending
}

// DeriveType classifies a transaction from account's point of view
// (spec.md §4.7): a miner's fee, a send (one of the spends consumes a
// note this account itself holds the nullifier index for), or
// otherwise a receive.
func DeriveType(tx walletdb.Tx, account *Account, record *wallettypes.TransactionRecord) (wallettypes.TransactionType, error) {
	if record.Transaction.IsMinerFee {
		return wallettypes.TypeMiner, nil
	}
	for _, sp := range record.Transaction.Spends {
		_, ok, err := tx.FindNoteByNullifier(account.ID, sp.Nullifier)
		if err != nil {
			return 0, err
		}
		if ok {
			return wallettypes.TypeSend, nil
		}
	}
	return wallettypes.TypeReceive, nil
}
