package watchtower

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watchtower.db")
	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreAddForEachRemoveRoundTrip(t *testing.T) {
	store, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	revPriv, delayPriv := randPriv(t), randPriv(t)
	ret := &Retribution{
		ChanPoint:         wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0},
		BreachTxid:        chainhash.Hash{2},
		CommitHeight:      7,
		RevocationPrivKey: revPriv,
		LocalDelayPrivKey: delayPriv,
		CsvTimeout:        144,
		LocalOutputIndex:  0,
		LocalOutputAmount: 500_000,
		HTLCs: []HTLCRetribution{
			{OutputIndex: 1, Amount: 1_000, Script: []byte{0xa, 0xb, 0xc}, Offered: true},
		},
	}

	require.NoError(t, store.Add(ret))

	var loaded []*Retribution
	require.NoError(t, store.ForEach(func(r *Retribution) error {
		loaded = append(loaded, r)
		return nil
	}))
	require.Len(t, loaded, 1)
	require.Equal(t, ret.ChanPoint, loaded[0].ChanPoint)
	require.Equal(t, ret.CommitHeight, loaded[0].CommitHeight)
	require.Equal(t, ret.LocalOutputAmount, loaded[0].LocalOutputAmount)
	require.Equal(t, ret.HTLCs[0].Script, loaded[0].HTLCs[0].Script)
	require.Equal(t, ret.RevocationPrivKey.Serialize(), loaded[0].RevocationPrivKey.Serialize())

	require.NoError(t, store.Remove(ret.ChanPoint))

	loaded = nil
	require.NoError(t, store.ForEach(func(r *Retribution) error {
		loaded = append(loaded, r)
		return nil
	}))
	require.Len(t, loaded, 0)
}
