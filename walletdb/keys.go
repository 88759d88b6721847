package walletdb

import (
	"bytes"

	"github.com/shieldcoin/walletcore/wallettypes"
)

// Key layout. A single flat keyspace prefixed by a short tag,
// following the teacher's accessors_*.go convention of prefixing
// every key by a short constant (storage/database uses headerPrefix,
// bodyPrefix, etc. in accessors_chain.go) rather than nesting buckets.
var (
	accountPrefix   = []byte("a/")
	nameIndexPrefix = []byte("n/")
	defaultAccountKey = []byte("meta/default")
	headPrefix      = []byte("h/")
	notePrefix      = []byte("d/")
	nullifierPrefix = []byte("u/")
	txPrefix        = []byte("t/")
	pendingPrefix   = []byte("p/")
	balancePrefix   = []byte("b/")
)

func accountKey(id string) []byte { return append(append([]byte{}, accountPrefix...), id...) }
func nameIndexKey(name string) []byte {
	return append(append([]byte{}, nameIndexPrefix...), name...)
}
func headKey(accountID string) []byte { return append(append([]byte{}, headPrefix...), accountID...) }

func noteKey(accountID string, noteHash wallettypes.Hash) []byte {
	var b bytes.Buffer
	b.Write(notePrefix)
	b.WriteString(accountID)
	b.WriteByte('/')
	b.Write(noteHash[:])
	return b.Bytes()
}

func notePrefixForAccount(accountID string) []byte {
	var b bytes.Buffer
	b.Write(notePrefix)
	b.WriteString(accountID)
	b.WriteByte('/')
	return b.Bytes()
}

func nullifierKey(accountID string, n wallettypes.Nullifier) []byte {
	var b bytes.Buffer
	b.Write(nullifierPrefix)
	b.WriteString(accountID)
	b.WriteByte('/')
	b.Write(n[:])
	return b.Bytes()
}

func txKey(accountID string, txHash wallettypes.Hash) []byte {
	var b bytes.Buffer
	b.Write(txPrefix)
	b.WriteString(accountID)
	b.WriteByte('/')
	b.Write(txHash[:])
	return b.Bytes()
}

func txPrefixForAccount(accountID string) []byte {
	var b bytes.Buffer
	b.Write(txPrefix)
	b.WriteString(accountID)
	b.WriteByte('/')
	return b.Bytes()
}

func pendingKey(accountID string, txHash wallettypes.Hash) []byte {
	var b bytes.Buffer
	b.Write(pendingPrefix)
	b.WriteString(accountID)
	b.WriteByte('/')
	b.Write(txHash[:])
	return b.Bytes()
}

func pendingPrefixForAccount(accountID string) []byte {
	var b bytes.Buffer
	b.Write(pendingPrefix)
	b.WriteString(accountID)
	b.WriteByte('/')
	return b.Bytes()
}

func balanceKey(accountID string, assetID wallettypes.AssetID) []byte {
	var b bytes.Buffer
	b.Write(balancePrefix)
	b.WriteString(accountID)
	b.WriteByte('/')
	b.Write(assetID[:])
	return b.Bytes()
}

func balancePrefixForAccount(accountID string) []byte {
	var b bytes.Buffer
	b.Write(balancePrefix)
	b.WriteString(accountID)
	b.WriteByte('/')
	return b.Bytes()
}
