package wallet

import (
	"context"

	"github.com/rcrowley/go-metrics"

	"github.com/shieldcoin/walletcore/walletdb"
	"github.com/shieldcoin/walletcore/walletevent"
	"github.com/shieldcoin/walletcore/wallettypes"
)

var (
	expiredCounter     = metrics.NewRegisteredCounter("wallet/transactions_expired", nil)
	rebroadcastCounter = metrics.NewRegisteredCounter("wallet/transactions_rebroadcast", nil)
)

// UpdateHead advances every tracked account's ChainFollower to the
// current chain head (spec.md §4.3.3/§4.3.4). It holds updateHeadMu
// for the duration so a concurrent call to ScanAccount on the same
// account cannot race it — both paths ultimately call connectBlock/
// disconnectBlock against the same account state.
func (w *Wallet) UpdateHead(ctx context.Context) error {
	w.updateHeadMu.Lock()
	defer w.updateHeadMu.Unlock()

	head := w.chain.Head()
	state := NewScanState(head.Sequence)
	w.setUpdateHeadState(state)
	defer func() {
		state.SignalComplete()
		w.setUpdateHeadState(nil)
	}()

	ctx, cancelMerge := state.withAbortSignal(ctx)
	defer cancelMerge()

	for _, account := range w.snapshotAccounts() {
		w.accountsMu.RLock()
		follower := w.followers[account.ID]
		w.accountsMu.RUnlock()
		if follower == nil {
			continue
		}
		if _, err := follower.Update(ctx, w.disconnectFn(account), w.connectFn(account, state)); err != nil {
			return err
		}
	}
	return nil
}

// ScanAccount performs a full rescan of one account from genesis
// (spec.md §4.3.6), used after import or when local state is known to
// be stale relative to the chain. Only one scan may run at a time
// across the whole wallet; unlike UpdateHead's updateHeadMu, this slot
// does not queue a second caller behind the first — it fails fast with
// ErrScanInProgress, matching spec.md §4.3.6's "early-return on
// conflict" rather than the teacher's queue-and-wait exclusivity. Once
// it holds the scan slot it also takes updateHeadMu, waiting out any
// in-flight UpdateHead, so a scan and a head update never run at once.
func (w *Wallet) ScanAccount(ctx context.Context, accountID string) error {
	if !w.scanMu.TryLock() {
		return ErrScanInProgress
	}
	defer w.scanMu.Unlock()

	w.updateHeadMu.Lock()
	defer w.updateHeadMu.Unlock()

	account, err := w.GetAccount(accountID)
	if err != nil {
		return err
	}

	head := w.chain.Head()
	state := NewScanState(head.Sequence)
	w.setScanState(state)
	defer func() {
		state.SignalComplete()
		w.setScanState(nil)
	}()

	ctx, cancelMerge := state.withAbortSignal(ctx)
	defer cancelMerge()

	account.setHead(nil)
	if err := w.db.Update(ctx, func(tx walletdb.Tx) error {
		return tx.SetHead(accountID, nil)
	}); err != nil {
		return err
	}

	follower := NewChainFollower(w.chain, wallettypes.Hash{})
	w.accountsMu.Lock()
	w.followers[accountID] = follower
	w.accountsMu.Unlock()

	_, err = follower.Update(ctx, w.disconnectFn(account), w.connectFn(account, state))
	return err
}

func (w *Wallet) connectFn(account *Account, state *ScanState) ConnectFn {
	return func(ctx context.Context, header *wallettypes.Header) error {
		state.Signal(header.Sequence)
		blockTxs, err := w.chain.GetBlockTransactions(header)
		if err != nil {
			return err
		}
		return w.db.Update(ctx, func(tx walletdb.Tx) error {
			for _, bt := range blockTxs {
				idx := bt.InitialNoteIndex
				decrypted, err := w.decryptTransaction(ctx, bt.Transaction, &idx)
				if err != nil {
					return err
				}
				matches := decrypted[account.ID]
				touches, err := transactionTouchesAccount(tx, account, bt.Transaction)
				if err != nil {
					return err
				}
				if len(matches) == 0 && !touches {
					continue
				}
				if err := account.ConnectTransaction(tx, header, bt.Transaction, matches, w.cfg.Confirmations); err != nil {
					return err
				}
			}
			account.setHead(&wallettypes.AccountHead{Hash: header.Hash, Sequence: header.Sequence})
			return tx.SetHead(account.ID, account.Head())
		})
	}
}

func (w *Wallet) disconnectFn(account *Account) DisconnectFn {
	return func(ctx context.Context, header *wallettypes.Header) error {
		blockTxs, err := w.chain.GetBlockTransactions(header)
		if err != nil {
			return err
		}
		return w.db.Update(ctx, func(tx walletdb.Tx) error {
			for i := len(blockTxs) - 1; i >= 0; i-- {
				if err := account.DisconnectTransaction(tx, header, blockTxs[i].Transaction); err != nil {
					return err
				}
			}
			prevHead := &wallettypes.AccountHead{Hash: header.PreviousBlockHash, Sequence: header.Sequence - 1}
			if header.Sequence == 0 {
				prevHead = nil
			}
			account.setHead(prevHead)
			return tx.SetHead(account.ID, prevHead)
		})
	}
}

// transactionTouchesAccount reports whether an account already has a
// pending record of this transaction (submitted by this account while
// unmined) or spends one of this account's own notes, even when trial
// decryption found no new receives — a pure self-spend still needs
// ConnectTransaction to mark the spent note and move the record out of
// the pending state.
func transactionTouchesAccount(tx walletdb.Tx, account *Account, transaction *wallettypes.Transaction) (bool, error) {
	has, err := tx.HasTransaction(account.ID, transaction.TransactionHash)
	if err != nil {
		return false, err
	}
	if has {
		return true, nil
	}
	for _, sp := range transaction.Spends {
		_, ok, err := tx.FindNoteByNullifier(account.ID, sp.Nullifier)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// hasScannedCursor reports whether at least one tracked account has a
// non-nil head, i.e. the wallet's cursor is not null. Expiry and
// rebroadcast both compare pending transactions against the chain
// head; with no account ever scanned there is nothing meaningful to
// compare against (spec.md §4.3.7).
func (w *Wallet) hasScannedCursor() bool {
	for _, account := range w.snapshotAccounts() {
		if account.Head() != nil {
			return true
		}
	}
	return false
}

// ExpireTransactions deletes every pending transaction, across every
// account, whose expiration sequence has passed (spec.md §4.3.7). Both
// phases below are no-ops until the chain reports itself synced and at
// least one account has a non-null cursor — acting on a chain still
// catching up, or before any account has ever been scanned, would
// expire or rebroadcast against a head that does not yet reflect
// reality.
func (w *Wallet) ExpireTransactions() error {
	if !w.chain.Synced() || !w.hasScannedCursor() {
		return nil
	}
	head := w.chain.Head()
	return w.db.Update(context.Background(), func(tx walletdb.Tx) error {
		for _, account := range w.snapshotAccounts() {
			expired, err := account.GetExpiredTransactions(tx, head.Sequence)
			if err != nil {
				return err
			}
			for _, h := range expired {
				if err := account.ExpireTransaction(tx, h); err != nil {
					return err
				}
				expiredCounter.Inc(1)
			}
		}
		return nil
	})
}

// RebroadcastTransactions re-verifies and re-announces pending
// transactions that have sat unconfirmed for at least
// RebroadcastAfter blocks since they were submitted (spec.md §4.3.7).
// A transaction the verifier now rejects (e.g. a spent note) is left
// alone for ExpireTransactions to eventually clean up rather than
// deleted here, since rejection is not the same precondition as
// expiration. submittedSequence is advanced to the current head for
// every candidate examined, valid or not, so a persistently-invalid
// transaction is re-checked at most once per RebroadcastAfter window
// instead of on every tick (spec.md §4.3.7, §8 law).
func (w *Wallet) RebroadcastTransactions(ctx context.Context) error {
	if !w.chain.Synced() || !w.hasScannedCursor() {
		return nil
	}
	head := w.chain.Head()
	verifier := w.chain.Verifier()

	return w.db.Update(ctx, func(tx walletdb.Tx) error {
		for _, account := range w.snapshotAccounts() {
			var candidates []wallettypes.Hash
			err := tx.IteratePending(account.ID, func(txHash wallettypes.Hash, r *wallettypes.TransactionRecord) error {
				if !r.IsPending() {
					return nil
				}
				if head.Sequence < r.SubmittedSequence+w.cfg.RebroadcastAfter {
					return nil
				}
				candidates = append(candidates, txHash)
				return nil
			})
			if err != nil {
				return err
			}

			for _, txHash := range candidates {
				r, ok, err := tx.GetTransaction(account.ID, txHash)
				if err != nil {
					return err
				}
				if !ok || !r.IsPending() {
					continue
				}

				valid := true
				if err := verifier.VerifyTransactionAdd(r.Transaction); err != nil {
					walletLogger.Warn("rebroadcast verification failed", "tx", txHash.String(), "err", err)
					valid = false
				}

				r.SubmittedSequence = head.Sequence
				if err := tx.PutTransaction(account.ID, txHash, r); err != nil {
					return err
				}

				if valid {
					w.bus.PostBroadcastTransaction(walletevent.BroadcastTransaction{TransactionHash: [32]byte(txHash)})
					rebroadcastCounter.Inc(1)
				}
			}
		}
		return nil
	})
}
