package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shieldcoin/walletcore/walletdb"
	"github.com/shieldcoin/walletcore/wallettypes"
)

// TestDeriveStatus covers spec.md §4.7's status formula, including the
// §8 boundary case: a transaction whose expiration sequence exactly
// equals the head sequence is expired, not pending.
func TestDeriveStatus(t *testing.T) {
	const confirmations = uint64(2)

	t.Run("unknown without a head", func(t *testing.T) {
		record := &wallettypes.TransactionRecord{Transaction: &wallettypes.Transaction{}}
		require.Equal(t, wallettypes.StatusUnknown, DeriveStatus(record, false, 0, confirmations))
	})

	t.Run("confirmed once depth is reached", func(t *testing.T) {
		seq := uint64(10)
		record := &wallettypes.TransactionRecord{Transaction: &wallettypes.Transaction{}, Sequence: &seq}
		require.Equal(t, wallettypes.StatusConfirmed, DeriveStatus(record, true, 12, confirmations))
	})

	t.Run("unconfirmed below required depth", func(t *testing.T) {
		seq := uint64(10)
		record := &wallettypes.TransactionRecord{Transaction: &wallettypes.Transaction{}, Sequence: &seq}
		require.Equal(t, wallettypes.StatusUnconfirmed, DeriveStatus(record, true, 11, confirmations))
	})

	t.Run("expiration exactly equal to head sequence is expired, not pending", func(t *testing.T) {
		record := &wallettypes.TransactionRecord{Transaction: &wallettypes.Transaction{}, Expiration: 20}
		require.Equal(t, wallettypes.StatusExpired, DeriveStatus(record, true, 20, confirmations))
	})

	t.Run("pending one sequence before expiration", func(t *testing.T) {
		record := &wallettypes.TransactionRecord{Transaction: &wallettypes.Transaction{}, Expiration: 20}
		require.Equal(t, wallettypes.StatusPending, DeriveStatus(record, true, 19, confirmations))
	})
}

// TestDeriveType covers spec.md §4.7's type formula: a miner's fee is
// always MINER regardless of spends, a spend of this account's own
// note is SEND, anything else is RECEIVE.
func TestDeriveType(t *testing.T) {
	w, _ := newTestWallet(t)
	ctx := context.Background()

	account, err := w.CreateAccount("alice")
	require.NoError(t, err)

	ownNullifier := wallettypes.Nullifier{0x1}
	require.NoError(t, w.db.Update(ctx, func(tx walletdb.Tx) error {
		return tx.PutNullifierIndex(account.ID, ownNullifier, wallettypes.Hash{0x2})
	}))

	minerRecord := &wallettypes.TransactionRecord{Transaction: &wallettypes.Transaction{IsMinerFee: true,
		Spends: []wallettypes.Spend{{Nullifier: ownNullifier}}}}
	sendRecord := &wallettypes.TransactionRecord{Transaction: &wallettypes.Transaction{
		Spends: []wallettypes.Spend{{Nullifier: ownNullifier}}}}
	receiveRecord := &wallettypes.TransactionRecord{Transaction: &wallettypes.Transaction{
		Spends: []wallettypes.Spend{{Nullifier: wallettypes.Nullifier{0x9}}}}}

	require.NoError(t, w.db.View(func(tx walletdb.Tx) error {
		typ, err := DeriveType(tx, account, minerRecord)
		require.NoError(t, err)
		require.Equal(t, wallettypes.TypeMiner, typ)

		typ, err = DeriveType(tx, account, sendRecord)
		require.NoError(t, err)
		require.Equal(t, wallettypes.TypeSend, typ)

		typ, err = DeriveType(tx, account, receiveRecord)
		require.NoError(t, err)
		require.Equal(t, wallettypes.TypeReceive, typ)
		return nil
	}))
}
