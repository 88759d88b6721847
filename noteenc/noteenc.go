// Package noteenc defines the pure, stateless cryptographic
// primitives the wallet engine invokes but never implements itself
// (spec.md §1): keyed trial-decryption of a serialized note, and
// proving a RawTransaction into a Transaction. A deterministic
// in-memory implementation is provided for tests; a production
// implementation plugs into the same interfaces without the rest of
// the wallet engine changing.
package noteenc

import (
	"bytes"
	"crypto/sha256"

	"github.com/shieldcoin/walletcore/wallettypes"
)

// Decryptor trial-decrypts one note against one candidate key set.
// It returns (nil, nil) when the note does not belong to the key —
// not an error, since most notes in a block belong to nobody the
// caller's account tracks.
type Decryptor interface {
	TryDecrypt(p wallettypes.DecryptPayload) (*wallettypes.DecryptedNote, error)
}

// Prover turns an assembled RawTransaction into a proven Transaction
// ready for the chain's verifier.
type Prover interface {
	Prove(raw *wallettypes.RawTransaction) (*wallettypes.Transaction, error)
}

// DeriveAddress computes the public address tied to a view key. Real
// shielded-address schemes derive a diversified transmission key from
// the incoming viewing key via group exponentiation; this stand-in
// uses a hash so the DeterministicCodec below can recognize "this
// serialized note is addressed to the holder of this view key"
// without requiring a full proving system.
func DeriveAddress(viewKey []byte) wallettypes.Address {
	sum := sha256.Sum256(viewKey)
	var a wallettypes.Address
	copy(a[:], sum[:])
	return a
}

// DeriveAssetID computes the asset id a mint of (creator, name) would
// register on-chain, the same way DeriveAddress stands in for a real
// diversified-key derivation: a one-way, deterministic binding of
// creator identity and asset name that lets a caller re-derive and
// verify an asset id rather than trust a bare id handed in from
// outside (spec.md §4.5's mint adapter guards against minting an
// asset that does not belong to the caller's spending key this way).
func DeriveAssetID(creator wallettypes.Address, name string) wallettypes.AssetID {
	h := sha256.New()
	h.Write(creator[:])
	h.Write([]byte(name))
	var id wallettypes.AssetID
	copy(id[:], h.Sum(nil))
	return id
}

// DeterministicCodec is a reference Decryptor/Prover pair used by
// tests and the cmd/walletd demo wiring.
type DeterministicCodec struct{}

// EncryptNote serializes a note the way the chain would store it. The
// output note already carries its recipient/sender addresses in the
// clear (addresses are derived, one-way, public identifiers — see
// DeriveAddress); what a real codec additionally hides is value and
// memo, which is exactly the cryptography this package stands in for.
func EncryptNote(n wallettypes.Note) []byte {
	var buf bytes.Buffer
	buf.Write(n.Owner[:])
	buf.Write(n.Sender[:])
	buf.Write(n.AssetID[:])
	var v [8]byte
	for i := 0; i < 8; i++ {
		v[i] = byte(n.Value >> (8 * i))
	}
	buf.Write(v[:])
	buf.Write(n.Memo)
	return buf.Bytes()
}

func decodeNote(serialized []byte) (wallettypes.Note, bool) {
	if len(serialized) < 32+32+32+8 {
		return wallettypes.Note{}, false
	}
	var n wallettypes.Note
	copy(n.Owner[:], serialized[0:32])
	copy(n.Sender[:], serialized[32:64])
	copy(n.AssetID[:], serialized[64:96])
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(serialized[96+i]) << (8 * i)
	}
	n.Value = v
	n.Memo = append([]byte(nil), serialized[104:]...)
	return n, true
}

func (DeterministicCodec) TryDecrypt(p wallettypes.DecryptPayload) (*wallettypes.DecryptedNote, error) {
	note, ok := decodeNote(p.SerializedNote)
	if !ok {
		return nil, nil
	}

	var matched wallettypes.MatchedKey
	switch {
	case p.IncomingViewKey != nil && DeriveAddress(p.IncomingViewKey) == note.Owner:
		matched = wallettypes.MatchedIncoming
	case p.OutgoingViewKey != nil && DeriveAddress(p.OutgoingViewKey) == note.Sender:
		matched = wallettypes.MatchedOutgoing
	default:
		return nil, nil
	}

	dn := &wallettypes.DecryptedNote{
		AccountID:       p.AccountID,
		Note:            note,
		TransactionHash: p.TransactionHash,
		Matched:         matched,
	}
	if p.CurrentNoteIndex != nil {
		idx := *p.CurrentNoteIndex
		dn.Index = &idx
		nf := deriveNullifier(note, p.SpendingKey, idx)
		dn.Nullifier = &nf
	}
	return dn, nil
}

// deriveNullifier matches spec.md's glossary: a deterministic function
// of (note, spendingKey, index).
func deriveNullifier(n wallettypes.Note, spendingKey []byte, index uint64) wallettypes.Nullifier {
	h := sha256.New()
	h.Write(spendingKey)
	h.Write(n.Owner[:])
	h.Write(n.AssetID[:])
	var idx [8]byte
	for i := 0; i < 8; i++ {
		idx[i] = byte(index >> (8 * i))
	}
	h.Write(idx[:])
	var out wallettypes.Nullifier
	copy(out[:], h.Sum(nil))
	return out
}

func (DeterministicCodec) Prove(raw *wallettypes.RawTransaction) (*wallettypes.Transaction, error) {
	tx := &wallettypes.Transaction{
		Receives:   raw.Receives,
		Mints:      raw.Mints,
		Burns:      raw.Burns,
		Fee:        raw.Fee,
		Expiration: raw.Expiration,
	}
	for _, sc := range raw.Spends {
		tx.Spends = append(tx.Spends, wallettypes.Spend{Nullifier: sc.Nullifier})
	}
	h := sha256.New()
	h.Write(raw.SpendingKey)
	var fee [8]byte
	for i := 0; i < 8; i++ {
		fee[i] = byte(raw.Fee >> (8 * i))
	}
	h.Write(fee[:])
	for _, r := range raw.Receives {
		h.Write(r.Owner[:])
	}
	for _, sp := range tx.Spends {
		h.Write(sp.Nullifier[:])
	}
	copy(tx.TransactionHash[:], h.Sum(nil))
	return tx, nil
}
