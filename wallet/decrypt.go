package wallet

import (
	"context"

	"github.com/shieldcoin/walletcore/noteenc"
	"github.com/shieldcoin/walletcore/wallettypes"
)

// decryptTransaction submits one transaction's notes for trial
// decryption against every tracked account's keys, batching payloads
// in groups of up to decryptBatchSize (spec.md §4.4). initialNoteIndex
// is nil for a still-pending transaction, in which case no per-note
// index/nullifier is derivable yet.
func (w *Wallet) decryptTransaction(ctx context.Context, transaction *wallettypes.Transaction, initialNoteIndex *uint64) (map[string][]*wallettypes.DecryptedNote, error) {
	accounts := w.snapshotAccounts()
	if len(accounts) == 0 || len(transaction.Receives) == 0 {
		return nil, nil
	}

	var payloads []wallettypes.DecryptPayload
	for _, acct := range accounts {
		for i, note := range transaction.Receives {
			var idx *uint64
			if initialNoteIndex != nil {
				v := *initialNoteIndex + uint64(i)
				idx = &v
			}
			payloads = append(payloads, wallettypes.DecryptPayload{
				SerializedNote:   serializeNoteForTrial(note),
				IncomingViewKey:  acct.IncomingViewKey,
				OutgoingViewKey:  acct.OutgoingViewKey,
				SpendingKey:      acct.SpendingKey,
				CurrentNoteIndex: idx,
				AccountID:        acct.ID,
				TransactionHash:  transaction.TransactionHash,
			})
		}
	}

	out := map[string][]*wallettypes.DecryptedNote{}
	for start := 0; start < len(payloads); start += w.cfg.DecryptBatchSize {
		end := start + w.cfg.DecryptBatchSize
		if end > len(payloads) {
			end = len(payloads)
		}
		batch := payloads[start:end]
		results, err := w.workers.DecryptNotes(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, dn := range results {
			out[dn.AccountID] = append(out[dn.AccountID], dn)
		}
	}
	return out, nil
}

// serializeNoteForTrial stands in for the chain's actual
// encrypted-note bytes (a pure cryptographic primitive outside this
// module's scope, spec.md §1). Real wiring passes through whatever
// ciphertext the chain stored; here it round-trips through
// noteenc.EncryptNote so the reference noteenc.DeterministicCodec can
// decrypt it again in tests.
func serializeNoteForTrial(n wallettypes.Note) []byte {
	return noteenc.EncryptNote(n)
}
