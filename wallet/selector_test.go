package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldcoin/walletcore/chainsync"
	"github.com/shieldcoin/walletcore/walletdb"
	"github.com/shieldcoin/walletcore/wallettypes"
)

func newTestAccount(t *testing.T) *Account {
	t.Helper()
	return &Account{
		ID:              "acct-1",
		Name:            "test",
		SpendingKey:     []byte("spending-key"),
		IncomingViewKey: []byte("incoming-key"),
		OutgoingViewKey: []byte("outgoing-key"),
	}
}

func newTestDB(t *testing.T) walletdb.WalletDB {
	t.Helper()
	db, err := walletdb.OpenLevelDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func putUnspentNote(t *testing.T, db walletdb.WalletDB, account *Account, assetID wallettypes.AssetID, value uint64, index uint64) wallettypes.Hash {
	t.Helper()
	nullifier := wallettypes.Nullifier{}
	nullifier[0] = byte(index + 1)
	note := wallettypes.Note{AssetID: assetID, Value: value}
	dn := &wallettypes.DecryptedNote{
		AccountID: account.ID,
		Note:      note,
		Index:     &index,
		Nullifier: &nullifier,
	}
	hash := commitmentHash(note, wallettypes.Hash{})
	hash[31] = byte(index)
	require.NoError(t, db.Update(context.Background(), func(tx walletdb.Tx) error {
		if err := tx.PutNote(account.ID, hash, dn); err != nil {
			return err
		}
		return tx.PutNullifierIndex(account.ID, nullifier, hash)
	}))
	return hash
}

func TestSelectSpendsDeterministicOrder(t *testing.T) {
	db := newTestDB(t)
	account := newTestAccount(t)
	asset := wallettypes.NativeAssetID
	chain := chainsync.NewMemChain(wallettypes.Hash{1}, chainsync.AcceptAllVerifier{})

	putUnspentNote(t, db, account, asset, 10, 2)
	putUnspentNote(t, db, account, asset, 10, 0)
	putUnspentNote(t, db, account, asset, 10, 1)

	var spends []wallettypes.SpendCandidate
	require.NoError(t, db.View(func(tx walletdb.Tx) error {
		var err error
		spends, err = selectSpends(tx, chain, account, asset, 15, 0)
		return err
	}))

	require.Len(t, spends, 2)
	assert.Equal(t, uint64(0), spends[0].Index)
	assert.Equal(t, uint64(1), spends[1].Index)
}

func TestSelectSpendsInsufficientFunds(t *testing.T) {
	db := newTestDB(t)
	account := newTestAccount(t)
	asset := wallettypes.NativeAssetID
	chain := chainsync.NewMemChain(wallettypes.Hash{1}, chainsync.AcceptAllVerifier{})

	putUnspentNote(t, db, account, asset, 10, 0)

	err := db.View(func(tx walletdb.Tx) error {
		_, err := selectSpends(tx, chain, account, asset, 100, 0)
		return err
	})
	require.Error(t, err)
	var insufficient *ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, uint64(10), insufficient.Have)
	assert.Equal(t, uint64(100), insufficient.Need)
}

// TestSelectSpendsRepairsStaleNullifier covers spec.md §8 scenario 6:
// the chain already contains a nullifier the local account view has
// not yet marked spent. selectSpends must repair the local record and
// skip the note rather than select it.
func TestSelectSpendsRepairsStaleNullifier(t *testing.T) {
	db := newTestDB(t)
	account := newTestAccount(t)
	asset := wallettypes.NativeAssetID
	chain := chainsync.NewMemChain(wallettypes.Hash{1}, chainsync.AcceptAllVerifier{})

	hash := putUnspentNote(t, db, account, asset, 10, 0)

	var staleNullifier wallettypes.Nullifier
	require.NoError(t, db.View(func(tx walletdb.Tx) error {
		n, ok, err := tx.GetNote(account.ID, hash)
		require.NoError(t, err)
		require.True(t, ok)
		staleNullifier = *n.Nullifier
		return nil
	}))
	chain.MarkNullifierSpent(staleNullifier)

	err := db.Update(context.Background(), func(tx walletdb.Tx) error {
		_, err := selectSpends(tx, chain, account, asset, 10, 0)
		return err
	})
	var insufficient *ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)

	require.NoError(t, db.View(func(tx walletdb.Tx) error {
		n, ok, err := tx.GetNote(account.ID, hash)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, n.Spent)
		return nil
	}))
}
