package wallet

import (
	"crypto/sha256"

	"github.com/shieldcoin/walletcore/wallettypes"
)

// commitmentHash derives the key under which a decrypted note is
// stored, standing in for the real note commitment (the output of the
// note commitment scheme, which is a pure cryptographic primitive
// outside this module's scope — spec.md §1).
func commitmentHash(n wallettypes.Note, txHash wallettypes.Hash) wallettypes.Hash {
	h := sha256.New()
	h.Write(txHash[:])
	h.Write(n.Owner[:])
	h.Write(n.Sender[:])
	h.Write(n.AssetID[:])
	var v [8]byte
	for i := 0; i < 8; i++ {
		v[i] = byte(n.Value >> (8 * i))
	}
	h.Write(v[:])
	h.Write(n.Memo)
	var out wallettypes.Hash
	copy(out[:], h.Sum(nil))
	return out
}
