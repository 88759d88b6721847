package wallet

import (
	set "gopkg.in/fatih/set.v0"

	"github.com/shieldcoin/walletcore/chainsync"
	"github.com/shieldcoin/walletcore/walletdb"
	"github.com/shieldcoin/walletcore/walletlog"
	"github.com/shieldcoin/walletcore/wallettypes"
)

var selectorLogger = walletlog.NewModuleLogger(walletlog.ModuleWallet).With("component", "selector")

// selectSpends accumulates unspent notes for one asset until amount
// needed is covered (spec.md §4.6). Selection order is whatever
// walletdb.Tx.IterateUnspentNotes defines (oldest-applied first),
// making the choice deterministic across runs.
func selectSpends(tx walletdb.Tx, chain chainsync.Chain, account *Account, assetID wallettypes.AssetID, amountNeeded uint64, confirmations uint64) ([]wallettypes.SpendCandidate, error) {
	var (
		have     uint64
		spends   []wallettypes.SpendCandidate
		seen     = set.New()
		headSeq  = chain.Head().Sequence
	)

	err := tx.IterateUnspentNotes(account.ID, assetID, func(noteHash wallettypes.Hash, n *wallettypes.DecryptedNote) (bool, error) {
		if have >= amountNeeded {
			return true, nil
		}
		if n.Note.Value == 0 {
			return false, nil
		}
		if n.Index == nil || n.Nullifier == nil {
			return false, nil
		}
		if seen.Has(*n.Nullifier) {
			return false, nil
		}
		seen.Add(*n.Nullifier)

		if chain.NullifierContains(*n.Nullifier) {
			// Repair path (spec.md §8 scenario 6): our local view
			// missed that this note was already spent on-chain.
			n.Spent = true
			if err := tx.PutNote(account.ID, noteHash, n); err != nil {
				return false, err
			}
			selectorLogger.Warn("repaired note marked spent on-chain but unspent locally",
				"account", account.ID, "note", noteHash.String())
			return false, nil
		}

		witness, err := chain.NoteWitness(*n.Index)
		if err != nil || witness == nil {
			return false, nil
		}

		if n.MinedSequence != nil && confirmations > 0 && headSeq < *n.MinedSequence+confirmations {
			return false, nil
		}

		spends = append(spends, wallettypes.SpendCandidate{
			Note:      n.Note,
			Index:     *n.Index,
			Nullifier: *n.Nullifier,
			Witness:   witness,
		})
		have += n.Note.Value
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	if have < amountNeeded {
		return nil, &ErrInsufficientFunds{AssetID: assetID, Have: have, Need: amountNeeded}
	}
	return spends, nil
}
