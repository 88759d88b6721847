package walletdb

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/shieldcoin/walletcore/walletlog"
	"github.com/shieldcoin/walletcore/wallettypes"
)

var logger = walletlog.NewModuleLogger(walletlog.ModuleWalletDB)

// levelDB implements WalletDB over goleveldb, grounded in the
// teacher's storage/database/leveldb_database.go NewLDBDatabase
// constructor (same OpenFile/RecoverFile-on-corruption pattern).
type levelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if necessary) a leveldb-backed WalletDB
// at dir.
func OpenLevelDB(dir string) (WalletDB, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if _, corrupted := err.(*ldberrors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "walletdb: opening %s", filepath.Clean(dir))
	}
	logger.Info("opened wallet database", "dir", dir)
	return &levelDB{db: db}, nil
}

func (l *levelDB) Close() error {
	logger.Info("closing wallet database")
	return l.db.Close()
}

func (l *levelDB) Update(ctx context.Context, fn func(tx Tx) error) error {
	ltx, err := l.db.OpenTransaction()
	if err != nil {
		return errors.Wrap(err, "walletdb: opening transaction")
	}
	tx := &txImpl{reader: ltx, writer: ltx}
	if err := fn(tx); err != nil {
		ltx.Discard()
		return err
	}
	if err := ctx.Err(); err != nil {
		ltx.Discard()
		return err
	}
	if err := ltx.Commit(); err != nil {
		return errors.Wrap(err, "walletdb: committing transaction")
	}
	return nil
}

func (l *levelDB) View(fn func(tx Tx) error) error {
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return errors.Wrap(err, "walletdb: opening snapshot")
	}
	defer snap.Release()
	tx := &txImpl{reader: snap, writer: nil}
	return fn(tx)
}

// kvReader / kvWriter let txImpl wrap either a read-write
// *leveldb.Transaction or a read-only *leveldb.Snapshot uniformly.
type kvReader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Has(key []byte, ro *opt.ReadOptions) (bool, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type kvWriter interface {
	Put(key, value []byte, wo *opt.WriteOptions) error
	Delete(key []byte, wo *opt.WriteOptions) error
}

var errReadOnly = errors.New("walletdb: write attempted inside a read-only view")

type txImpl struct {
	reader kvReader
	writer kvWriter
}

func (t *txImpl) put(key []byte, v interface{}) error {
	if t.writer == nil {
		return errReadOnly
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.writer.Put(key, b, nil)
}

func (t *txImpl) del(key []byte) error {
	if t.writer == nil {
		return errReadOnly
	}
	return t.writer.Delete(key, nil)
}

func (t *txImpl) get(key []byte, v interface{}) (bool, error) {
	b, err := t.reader.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, v)
}

// -- accounts --

func (t *txImpl) PutAccount(a *AccountValue) error {
	if err := t.put(accountKey(a.ID), a); err != nil {
		return err
	}
	return t.put(nameIndexKey(a.Name), a.ID)
}

func (t *txImpl) GetAccount(id string) (*AccountValue, bool, error) {
	var a AccountValue
	ok, err := t.get(accountKey(id), &a)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &a, true, nil
}

func (t *txImpl) DeleteAccount(id string) error {
	a, ok, err := t.GetAccount(id)
	if err != nil {
		return err
	}
	if ok {
		if err := t.del(nameIndexKey(a.Name)); err != nil {
			return err
		}
	}
	return t.del(accountKey(id))
}

func (t *txImpl) ListAccounts() ([]*AccountValue, error) {
	var out []*AccountValue
	it := t.reader.NewIterator(util.BytesPrefix(accountPrefix), nil)
	defer it.Release()
	for it.Next() {
		var a AccountValue
		if err := json.Unmarshal(it.Value(), &a); err != nil {
			return nil, err
		}
		cp := a
		out = append(out, &cp)
	}
	return out, it.Error()
}

func (t *txImpl) FindAccountByName(name string) (*AccountValue, bool, error) {
	var id string
	ok, err := t.get(nameIndexKey(name), &id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return t.GetAccount(id)
}

func (t *txImpl) GetDefaultAccountID() (string, bool, error) {
	var id string
	ok, err := t.get(defaultAccountKey, &id)
	return id, ok, err
}

func (t *txImpl) SetDefaultAccountID(id string) error { return t.put(defaultAccountKey, id) }
func (t *txImpl) ClearDefaultAccountID() error        { return t.del(defaultAccountKey) }

// -- head --

func (t *txImpl) GetHead(accountID string) (*wallettypes.AccountHead, error) {
	var h wallettypes.AccountHead
	ok, err := t.get(headKey(accountID), &h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (t *txImpl) SetHead(accountID string, head *wallettypes.AccountHead) error {
	if head == nil {
		return t.del(headKey(accountID))
	}
	return t.put(headKey(accountID), head)
}

// -- notes --

func (t *txImpl) PutNote(accountID string, noteHash wallettypes.Hash, n *wallettypes.DecryptedNote) error {
	return t.put(noteKey(accountID, noteHash), n)
}

func (t *txImpl) GetNote(accountID string, noteHash wallettypes.Hash) (*wallettypes.DecryptedNote, bool, error) {
	var n wallettypes.DecryptedNote
	ok, err := t.get(noteKey(accountID, noteHash), &n)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &n, true, nil
}

func (t *txImpl) DeleteNote(accountID string, noteHash wallettypes.Hash) error {
	return t.del(noteKey(accountID, noteHash))
}

func (t *txImpl) IterateNotes(accountID string, fn func(wallettypes.Hash, *wallettypes.DecryptedNote) error) error {
	it := t.reader.NewIterator(util.BytesPrefix(notePrefixForAccount(accountID)), nil)
	defer it.Release()
	prefixLen := len(notePrefixForAccount(accountID))
	for it.Next() {
		var n wallettypes.DecryptedNote
		if err := json.Unmarshal(it.Value(), &n); err != nil {
			return err
		}
		var hash wallettypes.Hash
		copy(hash[:], it.Key()[prefixLen:])
		if err := fn(hash, &n); err != nil {
			return err
		}
	}
	return it.Error()
}

func (t *txImpl) IterateUnspentNotes(accountID string, assetID wallettypes.AssetID, fn func(wallettypes.Hash, *wallettypes.DecryptedNote) (bool, error)) error {
	type entry struct {
		hash wallettypes.Hash
		note *wallettypes.DecryptedNote
	}
	var candidates []entry
	err := t.IterateNotes(accountID, func(hash wallettypes.Hash, n *wallettypes.DecryptedNote) error {
		if n.Spent || n.Note.AssetID != assetID {
			return nil
		}
		candidates = append(candidates, entry{hash: hash, note: n})
		return nil
	})
	if err != nil {
		return err
	}
	// Deterministic, reproducible ordering: oldest-applied first. A
	// note whose Index is not yet known (still pending) sorts last
	// since the selector skips it anyway (spec.md §4.6).
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].note.Index, candidates[j].note.Index
		if a == nil && b == nil {
			return false
		}
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a < *b
	})
	for _, c := range candidates {
		stop, err := fn(c.hash, c.note)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// -- nullifier index --

func (t *txImpl) PutNullifierIndex(accountID string, nullifier wallettypes.Nullifier, noteHash wallettypes.Hash) error {
	return t.put(nullifierKey(accountID, nullifier), noteHash)
}

func (t *txImpl) DeleteNullifierIndex(accountID string, nullifier wallettypes.Nullifier) error {
	return t.del(nullifierKey(accountID, nullifier))
}

func (t *txImpl) FindNoteByNullifier(accountID string, nullifier wallettypes.Nullifier) (wallettypes.Hash, bool, error) {
	var h wallettypes.Hash
	ok, err := t.get(nullifierKey(accountID, nullifier), &h)
	return h, ok, err
}

// -- transactions / pending index --

func (t *txImpl) PutTransaction(accountID string, txHash wallettypes.Hash, r *wallettypes.TransactionRecord) error {
	if err := t.put(txKey(accountID, txHash), r); err != nil {
		return err
	}
	if r.IsPending() {
		return t.put(pendingKey(accountID, txHash), true)
	}
	return t.del(pendingKey(accountID, txHash))
}

func (t *txImpl) GetTransaction(accountID string, txHash wallettypes.Hash) (*wallettypes.TransactionRecord, bool, error) {
	var r wallettypes.TransactionRecord
	ok, err := t.get(txKey(accountID, txHash), &r)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &r, true, nil
}

func (t *txImpl) DeleteTransaction(accountID string, txHash wallettypes.Hash) error {
	if err := t.del(pendingKey(accountID, txHash)); err != nil {
		return err
	}
	return t.del(txKey(accountID, txHash))
}

func (t *txImpl) HasTransaction(accountID string, txHash wallettypes.Hash) (bool, error) {
	return t.reader.Has(txKey(accountID, txHash), nil)
}

func (t *txImpl) IteratePending(accountID string, fn func(wallettypes.Hash, *wallettypes.TransactionRecord) error) error {
	it := t.reader.NewIterator(util.BytesPrefix(pendingPrefixForAccount(accountID)), nil)
	defer it.Release()
	prefixLen := len(pendingPrefixForAccount(accountID))
	var hashes []wallettypes.Hash
	for it.Next() {
		var hash wallettypes.Hash
		copy(hash[:], it.Key()[prefixLen:])
		hashes = append(hashes, hash)
	}
	if err := it.Error(); err != nil {
		return err
	}
	for _, hash := range hashes {
		r, ok, err := t.GetTransaction(accountID, hash)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(hash, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *txImpl) IterateExpired(accountID string, headSeq uint64, fn func(wallettypes.Hash, *wallettypes.TransactionRecord) error) error {
	return t.IteratePending(accountID, func(hash wallettypes.Hash, r *wallettypes.TransactionRecord) error {
		if r.Expiration != 0 && r.Expiration <= headSeq {
			return fn(hash, r)
		}
		return nil
	})
}

func (t *txImpl) IterateTransactions(accountID string, fn func(wallettypes.Hash, *wallettypes.TransactionRecord) error) error {
	it := t.reader.NewIterator(util.BytesPrefix(txPrefixForAccount(accountID)), nil)
	defer it.Release()
	prefixLen := len(txPrefixForAccount(accountID))
	for it.Next() {
		var r wallettypes.TransactionRecord
		if err := json.Unmarshal(it.Value(), &r); err != nil {
			return err
		}
		var hash wallettypes.Hash
		copy(hash[:], it.Key()[prefixLen:])
		if err := fn(hash, &r); err != nil {
			return err
		}
	}
	return it.Error()
}

// -- balances --

func (t *txImpl) GetBalance(accountID string, assetID wallettypes.AssetID) (*wallettypes.BalanceRecord, error) {
	var b wallettypes.BalanceRecord
	ok, err := t.get(balanceKey(accountID, assetID), &b)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &wallettypes.BalanceRecord{}, nil
	}
	return &b, nil
}

func (t *txImpl) PutBalance(accountID string, assetID wallettypes.AssetID, b *wallettypes.BalanceRecord) error {
	return t.put(balanceKey(accountID, assetID), b)
}

func (t *txImpl) DeleteBalance(accountID string, assetID wallettypes.AssetID) error {
	return t.del(balanceKey(accountID, assetID))
}

func (t *txImpl) IterateBalances(accountID string, fn func(wallettypes.AssetID, *wallettypes.BalanceRecord) error) error {
	it := t.reader.NewIterator(util.BytesPrefix(balancePrefixForAccount(accountID)), nil)
	defer it.Release()
	prefixLen := len(balancePrefixForAccount(accountID))
	for it.Next() {
		var b wallettypes.BalanceRecord
		if err := json.Unmarshal(it.Value(), &b); err != nil {
			return err
		}
		var assetID wallettypes.AssetID
		copy(assetID[:], it.Key()[prefixLen:])
		if err := fn(assetID, &b); err != nil {
			return err
		}
	}
	return it.Error()
}
