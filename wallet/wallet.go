// Package wallet is the orchestrator: it owns the account registry,
// drives the single-threaded event loop that keeps every account's
// view of the chain current, and exposes the operations a caller uses
// to create, import, remove, and spend from shielded accounts
// (spec.md §4).
//
// The shape follows the teacher's node lifecycle convention
// (node/node.go / work/worker.go): one exported Start/Stop pair, a
// background goroutine driven by a time.Ticker, and a mutex-guarded
// "slot" (scanMu/updateHeadMu here, cn.worker's currentMu there) that
// makes concurrent long-running operations mutually exclusive instead
// of racing each other.
package wallet

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/pborman/uuid"

	"github.com/shieldcoin/walletcore/chainsync"
	"github.com/shieldcoin/walletcore/noteenc"
	"github.com/shieldcoin/walletcore/walletconfig"
	"github.com/shieldcoin/walletcore/walletdb"
	"github.com/shieldcoin/walletcore/walletevent"
	"github.com/shieldcoin/walletcore/walletlog"
	"github.com/shieldcoin/walletcore/wallettypes"
	"github.com/shieldcoin/walletcore/workerpool"
)

var walletLogger = walletlog.NewModuleLogger(walletlog.ModuleWallet)

// Wallet is the top-level handle a process constructs once and shares
// across every caller goroutine (spec.md §5: "the wallet is the unit
// of concurrency control", accounts/WalletDB/WorkerPool/Chain are all
// safe for concurrent use beneath it).
type Wallet struct {
	cfg     *walletconfig.Config
	db      walletdb.WalletDB
	chain   chainsync.Chain
	workers workerpool.WorkerPool
	bus     *walletevent.Bus

	accountsMu sync.RWMutex
	accounts   map[string]*Account
	followers  map[string]*ChainFollower
	defaultID  string

	// pendingRemoval holds accounts that have been unlinked from the
	// registry but whose note/transaction/balance data the cleanup
	// pass in the event loop has not yet scrubbed (spec.md §4.3's
	// cleanupDeletedAccounts step).
	pendingRemoval map[string]bool

	// scanMu/updateHeadMu make ScanAccount/UpdateHead mutually
	// exclusive with themselves; ScanAccount also holds updateHeadMu,
	// so a scan and a head update never overlap. stateMu is a separate, short-lived
	// lock guarding only the scan/updateHeadState pointers so Stop can
	// read and Abort() them without waiting out a scan already in
	// progress (which would defeat the point of aborting it).
	scanMu sync.Mutex
	scan   *ScanState

	updateHeadMu    sync.Mutex
	updateHeadState *ScanState

	stateMu sync.Mutex

	createTransactionMutex sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// Open constructs a Wallet and loads every persisted account into the
// in-memory registry (spec.md §4.3.1). It does not start the event
// loop; call Start for that.
func Open(cfg *walletconfig.Config, db walletdb.WalletDB, chain chainsync.Chain, workers workerpool.WorkerPool, bus *walletevent.Bus) (*Wallet, error) {
	w := &Wallet{
		cfg:            cfg,
		db:             db,
		chain:          chain,
		workers:        workers,
		bus:            bus,
		accounts:       map[string]*Account{},
		followers:      map[string]*ChainFollower{},
		pendingRemoval: map[string]bool{},
	}

	err := db.View(func(tx walletdb.Tx) error {
		values, err := tx.ListAccounts()
		if err != nil {
			return err
		}
		for _, v := range values {
			head, err := tx.GetHead(v.ID)
			if err != nil {
				return err
			}
			w.accounts[v.ID] = newAccount(v, head)
			w.followers[v.ID] = followerFor(chain, head)
		}
		id, ok, err := tx.GetDefaultAccountID()
		if err != nil {
			return err
		}
		if ok {
			w.defaultID = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func followerFor(chain chainsync.Chain, head *wallettypes.AccountHead) *ChainFollower {
	if head == nil {
		return NewChainFollower(chain, wallettypes.Hash{})
	}
	return NewChainFollower(chain, head.Hash)
}

// Start launches the background event loop (spec.md §4.3.2): once per
// EventLoopInterval, sequentially, it updates every account's head,
// expires overdue pending transactions, rebroadcasts stale ones, and
// scrubs any accounts queued for deletion. Phases run in this fixed
// order and never overlap each other, matching the teacher's single
// goroutine "update loop" pattern (work/worker.go's update()).
//
// Before the loop starts, every account's stored cursor is checked
// against the chain's canonical index (spec.md §7 StateInconsistency):
// a process that crashed mid-reorg, or chain data replaced out from
// under a stale head, can leave a cursor pointing at an orphaned
// block. Such an account is reset to unscanned and picked back up by a
// background ScanAccount rather than blocking Start on every lagging
// account in turn.
func (w *Wallet) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.resyncDesynchronizedAccounts(ctx)

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.cfg.EventLoopInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()
}

// resyncDesynchronizedAccounts resets any account whose stored cursor
// has fallen off the canonical chain, then kicks off (without
// awaiting) a full ScanAccount for every account left with no cursor
// at all — either because it was just reset here, or because it was
// already unscanned (e.g. imported in a prior run that exited before
// its first scan completed). An account that is merely behind the
// chain tip but still on a canonical hash is left for the ordinary
// UpdateHead tick to catch up incrementally; it does not need a full
// rescan from genesis.
func (w *Wallet) resyncDesynchronizedAccounts(ctx context.Context) {
	for _, account := range w.snapshotAccounts() {
		accountHead := account.Head()
		if accountHead != nil && !w.chain.IsCanonical(accountHead.Hash) {
			walletLogger.Error("account cursor desynchronized from canonical chain, resetting",
				"account", account.ID, "hash", accountHead.Hash, "err", ErrChainDesync)
			account.setHead(nil)
			if err := w.db.Update(ctx, func(tx walletdb.Tx) error {
				return tx.SetHead(account.ID, nil)
			}); err != nil {
				walletLogger.Warn("failed to persist desynchronized account reset", "account", account.ID, "err", err)
			}
			w.accountsMu.Lock()
			w.followers[account.ID] = NewChainFollower(w.chain, wallettypes.Hash{})
			w.accountsMu.Unlock()
			accountHead = nil
		}

		if accountHead != nil {
			continue
		}
		go func(id string) {
			if err := w.ScanAccount(ctx, id); err != nil && err != ErrScanInProgress {
				walletLogger.Warn("background scan failed", "account", id, "err", err)
			}
		}(account.ID)
	}
}

func (w *Wallet) tick(ctx context.Context) {
	if err := w.UpdateHead(ctx); err != nil {
		walletLogger.Warn("update head failed", "err", err)
	}
	if err := w.ExpireTransactions(); err != nil {
		walletLogger.Warn("expire transactions failed", "err", err)
	}
	if err := w.RebroadcastTransactions(ctx); err != nil {
		walletLogger.Warn("rebroadcast transactions failed", "err", err)
	}
	w.cleanupDeletedAccounts()
}

// Stop cancels the event loop, aborts any scan or head update in
// flight, and waits for the loop goroutine to exit. Aborting the two
// ScanState slots directly — rather than waiting for scanMu/
// updateHeadMu, which stay held for a long-running scan's entire
// duration — is what lets Stop interrupt a scan already in progress
// instead of blocking until it finishes on its own.
func (w *Wallet) Stop() {
	if w.cancel != nil {
		w.cancel()
	}

	w.stateMu.Lock()
	scan, updateHead := w.scan, w.updateHeadState
	w.stateMu.Unlock()
	if scan != nil {
		scan.Abort()
	}
	if updateHead != nil {
		updateHead.Abort()
	}

	if w.done != nil {
		<-w.done
	}
}

// Close stops the event loop and releases the underlying WalletDB.
func (w *Wallet) Close() error {
	w.Stop()
	return w.db.Close()
}

// --- account registry -------------------------------------------------

// CreateAccount generates a fresh identity and persists it (spec.md
// §4.1). Key material generation is delegated to crypto/rand: the keys
// themselves are opaque bytes from this module's point of view, the
// same boundary noteenc draws around note encryption.
func (w *Wallet) CreateAccount(name string) (*Account, error) {
	spendingKey := randomKeyMaterial(32)
	incomingViewKey := randomKeyMaterial(32)
	outgoingViewKey := randomKeyMaterial(32)
	address := noteenc.DeriveAddress(incomingViewKey)

	v := &walletdb.AccountValue{
		ID:              uuid.New(),
		Name:            name,
		SpendingKey:     spendingKey,
		IncomingViewKey: incomingViewKey,
		OutgoingViewKey: outgoingViewKey,
		PublicAddress:   address,
	}
	return w.importAccountValue(v)
}

// ImportAccount persists an externally-supplied identity, e.g.
// recovered from a mnemonic outside this module's scope (spec.md
// §4.1). The account's head starts nil: the next scan pass walks it
// forward from genesis.
func (w *Wallet) ImportAccount(name string, spendingKey, incomingViewKey, outgoingViewKey []byte) (*Account, error) {
	v := &walletdb.AccountValue{
		ID:              uuid.New(),
		Name:            name,
		SpendingKey:     spendingKey,
		IncomingViewKey: incomingViewKey,
		OutgoingViewKey: outgoingViewKey,
		PublicAddress:   noteenc.DeriveAddress(incomingViewKey),
	}
	return w.importAccountValue(v)
}

func (w *Wallet) importAccountValue(v *walletdb.AccountValue) (*Account, error) {
	err := w.db.Update(context.Background(), func(tx walletdb.Tx) error {
		if _, ok, err := tx.FindAccountByName(v.Name); err != nil {
			return err
		} else if ok {
			return ErrAccountExists
		}
		return tx.PutAccount(v)
	})
	if err != nil {
		return nil, err
	}

	account := newAccount(v, nil)
	w.accountsMu.Lock()
	w.accounts[v.ID] = account
	w.followers[v.ID] = NewChainFollower(w.chain, wallettypes.Hash{})
	if w.defaultID == "" {
		w.defaultID = v.ID
	}
	w.accountsMu.Unlock()

	w.bus.PostAccountImported(walletevent.AccountImported{AccountID: v.ID, Name: v.Name})
	return account, nil
}

// RemoveAccount unlinks an account from the live registry immediately
// and queues its persisted data for deletion by the event loop's
// cleanup phase, so a caller removing many accounts at once is never
// blocked on a full note/transaction scrub (spec.md §4.3's
// cleanupDeletedAccounts step).
func (w *Wallet) RemoveAccount(id string) error {
	w.accountsMu.Lock()
	account, ok := w.accounts[id]
	if !ok {
		w.accountsMu.Unlock()
		return ErrAccountNotFound
	}
	delete(w.accounts, id)
	delete(w.followers, id)
	if w.defaultID == id {
		w.defaultID = ""
	}
	w.pendingRemoval[id] = true
	w.accountsMu.Unlock()

	w.bus.PostAccountRemoved(walletevent.AccountRemoved{AccountID: id, Name: account.Name})
	return nil
}

// cleanupDeletedAccounts scrubs one queued account's persisted data
// per tick, bounding how long a single event loop iteration can run.
// Every keyspace an account can have written to — notes, the
// nullifier index, transactions (both pending and mined), and
// balances — is purged before the account record itself is deleted, so
// removal never leaves orphaned leveldb keys behind under the old
// account id.
func (w *Wallet) cleanupDeletedAccounts() {
	w.accountsMu.Lock()
	var id string
	for candidate := range w.pendingRemoval {
		id = candidate
		break
	}
	if id != "" {
		delete(w.pendingRemoval, id)
	}
	w.accountsMu.Unlock()
	if id == "" {
		return
	}

	err := w.db.Update(context.Background(), func(tx walletdb.Tx) error {
		var noteHashes []wallettypes.Hash
		if err := tx.IterateNotes(id, func(hash wallettypes.Hash, n *wallettypes.DecryptedNote) error {
			noteHashes = append(noteHashes, hash)
			if n.Nullifier != nil {
				if err := tx.DeleteNullifierIndex(id, *n.Nullifier); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
		for _, h := range noteHashes {
			if err := tx.DeleteNote(id, h); err != nil {
				return err
			}
		}

		var txHashes []wallettypes.Hash
		if err := tx.IterateTransactions(id, func(hash wallettypes.Hash, _ *wallettypes.TransactionRecord) error {
			txHashes = append(txHashes, hash)
			return nil
		}); err != nil {
			return err
		}
		for _, h := range txHashes {
			if err := tx.DeleteTransaction(id, h); err != nil {
				return err
			}
		}

		var assetIDs []wallettypes.AssetID
		if err := tx.IterateBalances(id, func(assetID wallettypes.AssetID, _ *wallettypes.BalanceRecord) error {
			assetIDs = append(assetIDs, assetID)
			return nil
		}); err != nil {
			return err
		}
		for _, assetID := range assetIDs {
			if err := tx.DeleteBalance(id, assetID); err != nil {
				return err
			}
		}

		if err := tx.SetHead(id, nil); err != nil {
			return err
		}
		return tx.DeleteAccount(id)
	})
	if err != nil {
		walletLogger.Warn("cleanup deleted account failed", "account", id, "err", err)
	}
}

// GetAccount returns the live Account for id, or ErrAccountNotFound.
func (w *Wallet) GetAccount(id string) (*Account, error) {
	w.accountsMu.RLock()
	defer w.accountsMu.RUnlock()
	a, ok := w.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

// DefaultAccount returns the account the wallet uses when a caller
// does not name one explicitly.
func (w *Wallet) DefaultAccount() (*Account, error) {
	w.accountsMu.RLock()
	id := w.defaultID
	w.accountsMu.RUnlock()
	if id == "" {
		return nil, ErrAccountNotFound
	}
	return w.GetAccount(id)
}

func (w *Wallet) setScanState(s *ScanState) {
	w.stateMu.Lock()
	w.scan = s
	w.stateMu.Unlock()
}

func (w *Wallet) setUpdateHeadState(s *ScanState) {
	w.stateMu.Lock()
	w.updateHeadState = s
	w.stateMu.Unlock()
}

func (w *Wallet) snapshotAccounts() []*Account {
	w.accountsMu.RLock()
	defer w.accountsMu.RUnlock()
	out := make([]*Account, 0, len(w.accounts))
	for _, a := range w.accounts {
		out = append(out, a)
	}
	return out
}

// randomKeyMaterial fills n bytes of opaque key material. Generating
// the bytes themselves is ordinary randomness, not the shielded-key
// derivation scheme this module treats as external (spec.md §1); a
// real deployment replaces CreateAccount's key generation with that
// scheme's own key-generation routine.
func randomKeyMaterial(n int) []byte {
	out := make([]byte, n)
	if _, err := rand.Read(out); err != nil {
		panic(err)
	}
	return out
}
