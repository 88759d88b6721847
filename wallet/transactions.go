package wallet

import (
	"context"

	"github.com/shieldcoin/walletcore/noteenc"
	"github.com/shieldcoin/walletcore/walletdb"
	"github.com/shieldcoin/walletcore/walletevent"
	"github.com/shieldcoin/walletcore/wallettypes"
)

// SendRequest describes one requested output plus the fee and
// expiration a caller wants a created transaction to carry (spec.md
// §4.5). Expiration, if non-zero, is used as-is; otherwise it is
// computed from ExpirationDelta relative to the current chain head.
type SendRequest struct {
	Receives        []wallettypes.Note
	Mints           []wallettypes.MintDescription
	Burns           []wallettypes.BurnDescription
	Fee             uint64
	Expiration      uint64
	ExpirationDelta uint64
}

// CreateTransaction selects spends covering the requested outputs,
// proves the result, and records it as pending against accountID
// (spec.md §4.5). Only one creation runs at a time across the whole
// wallet: createTransactionMutex prevents two concurrent calls from
// selecting the same unspent note twice, the same hazard
// selectSpends's repair check guards against on the read side.
func (w *Wallet) CreateTransaction(ctx context.Context, accountID string, req SendRequest) (*wallettypes.Transaction, error) {
	w.createTransactionMutex.Lock()
	defer w.createTransactionMutex.Unlock()

	account, err := w.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if !w.isAccountUpToDate(account) {
		return nil, ErrNotUpToDate
	}

	head := w.chain.Head()
	expiration := req.Expiration
	if expiration == 0 {
		expiration = head.Sequence + req.ExpirationDelta
	}
	if expiration <= head.Sequence {
		return nil, ErrAlreadyExpired
	}

	amountsNeeded := amountsNeeded(req)

	var candidates []wallettypes.SpendCandidate
	err = w.db.Update(ctx, func(tx walletdb.Tx) error {
		for assetID, amount := range amountsNeeded {
			spends, err := selectSpends(tx, w.chain, account, assetID, amount, w.cfg.Confirmations)
			if err != nil {
				return err
			}
			candidates = append(candidates, spends...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	raw := &wallettypes.RawTransaction{
		SpendingKey: account.SpendingKey,
		Spends:      candidates,
		Receives:    req.Receives,
		Mints:       req.Mints,
		Burns:       req.Burns,
		Fee:         req.Fee,
		Expiration:  expiration,
	}

	transaction, err := w.workers.PostTransaction(ctx, raw)
	if err != nil {
		return nil, err
	}

	if err := w.chain.Verifier().VerifyCreatedTransaction(transaction); err != nil {
		return nil, errVerifierRejectedf(err)
	}

	decrypted, err := w.decryptTransaction(ctx, transaction, nil)
	if err != nil {
		return nil, err
	}

	submittedAt := w.chain.Head().Sequence
	err = w.db.Update(ctx, func(tx walletdb.Tx) error {
		return account.AddPendingTransaction(tx, transaction, decrypted[account.ID], submittedAt)
	})
	if err != nil {
		return nil, err
	}

	w.bus.PostTransactionCreated(walletevent.TransactionCreated{TransactionHash: [32]byte(transaction.TransactionHash)})
	w.bus.PostBroadcastTransaction(walletevent.BroadcastTransaction{TransactionHash: [32]byte(transaction.TransactionHash)})
	return transaction, nil
}

// AddTransaction records an externally-originated transaction (one
// this wallet did not create, e.g. relayed from a peer) against every
// tracked account it matches (spec.md §4.3.5). It is the entry point
// addPendingTransaction: callers that already hold a *Transaction from
// outside this wallet use this instead of CreateTransaction.
func (w *Wallet) AddTransaction(ctx context.Context, transaction *wallettypes.Transaction) error {
	if err := w.chain.Verifier().VerifyTransactionAdd(transaction); err != nil {
		return errVerifierRejectedf(err)
	}

	decrypted, err := w.decryptTransaction(ctx, transaction, nil)
	if err != nil {
		return err
	}
	if len(decrypted) == 0 {
		return nil
	}

	head := w.chain.Head()
	return w.db.Update(ctx, func(tx walletdb.Tx) error {
		for _, account := range w.snapshotAccounts() {
			matches := decrypted[account.ID]
			if len(matches) == 0 {
				continue
			}
			if err := account.AddPendingTransaction(tx, transaction, matches, head.Sequence); err != nil {
				return err
			}
		}
		return nil
	})
}

// Send is a thin CreateTransaction adapter for the common case of
// paying one or more ordinary receives (spec.md §4.5 "send/mint/burn
// are thin adapters").
func (w *Wallet) Send(ctx context.Context, accountID string, receives []wallettypes.Note, fee, expirationDelta uint64) (*wallettypes.Transaction, error) {
	return w.CreateTransaction(ctx, accountID, SendRequest{
		Receives:        receives,
		Fee:             fee,
		ExpirationDelta: expirationDelta,
	})
}

// Mint is a thin CreateTransaction adapter that additionally resolves
// and verifies the asset being minted (spec.md §4.5). When mint.Name
// is empty, only an asset id was supplied — the caller intends to mint
// more of an existing asset, so its (name, metadata) are looked up
// from chain storage. Either way the asset id is then recomputed from
// (this account's public address, name) and compared against the
// supplied id: a mismatch means the asset was not created by this
// account's spending key, which this module refuses to mint against.
func (w *Wallet) Mint(ctx context.Context, accountID string, mint wallettypes.MintDescription, fee, expirationDelta uint64) (*wallettypes.Transaction, error) {
	account, err := w.GetAccount(accountID)
	if err != nil {
		return nil, err
	}

	var zero wallettypes.AssetID
	if mint.Name == "" {
		if mint.AssetID == zero {
			return nil, ErrAssetMismatch
		}
		asset, err := w.chain.GetAssetByID(mint.AssetID)
		if err != nil {
			return nil, err
		}
		mint.Name = asset.Name
		mint.Metadata = asset.Metadata
	}

	recomputed := noteenc.DeriveAssetID(account.PublicAddress, mint.Name)
	if mint.AssetID != zero && recomputed != mint.AssetID {
		return nil, ErrAssetMismatch
	}
	mint.AssetID = recomputed

	return w.CreateTransaction(ctx, accountID, SendRequest{
		Mints:           []wallettypes.MintDescription{mint},
		Fee:             fee,
		ExpirationDelta: expirationDelta,
	})
}

// Burn is a thin CreateTransaction adapter for reducing an asset's
// circulating supply (spec.md §4.5).
func (w *Wallet) Burn(ctx context.Context, accountID string, burn wallettypes.BurnDescription, fee, expirationDelta uint64) (*wallettypes.Transaction, error) {
	return w.CreateTransaction(ctx, accountID, SendRequest{
		Burns:           []wallettypes.BurnDescription{burn},
		Fee:             fee,
		ExpirationDelta: expirationDelta,
	})
}

// isAccountUpToDate reports whether account's head matches the chain's
// current head exactly (spec.md §4.5 step 2): "account head == chain
// cursor", not merely non-nil. A head that trails the chain tip — even
// by one block, e.g. mid-scan — means the spend selector could miss a
// recently-mined note or nullifier, so transaction creation is refused
// rather than risk building on a stale view.
func (w *Wallet) isAccountUpToDate(account *Account) bool {
	head := account.Head()
	if head == nil {
		return false
	}
	chainHead := w.chain.Head()
	return head.Hash == chainHead.Hash && head.Sequence == chainHead.Sequence
}

// amountsNeeded totals the native fee plus every requested receive and
// burn value, grouped by asset, the way a transaction's spends must
// cover its outputs asset-for-asset (spec.md §4.6). Mints create
// supply rather than consume it, so they are excluded.
func amountsNeeded(req SendRequest) map[wallettypes.AssetID]uint64 {
	out := map[wallettypes.AssetID]uint64{}
	if req.Fee > 0 {
		out[wallettypes.NativeAssetID] += req.Fee
	}
	for _, n := range req.Receives {
		out[n.AssetID] += n.Value
	}
	for _, b := range req.Burns {
		out[b.AssetID] += b.Value
	}
	return out
}
