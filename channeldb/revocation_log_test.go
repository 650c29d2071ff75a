package channeldb

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lncore/lncore/revocation"
)

func TestRevocationLogAppendAndLoad(t *testing.T) {
	db := makeTestDB(t)

	nodePub := make([]byte, 33)
	nodePub[0] = 0x02
	chanPoint := wire.OutPoint{Index: 4}

	var seed revocation.Secret
	for i := range seed {
		seed[i] = byte(i)
	}

	for ctn := uint64(0); ctn < 5; ctn++ {
		secret := revocation.DeriveSecret(seed, ctn)
		require.NoError(t, db.AppendRevocation(nodePub, chanPoint, ctn, secret))
	}

	store, err := db.LoadRevocationStore(nodePub, chanPoint)
	require.NoError(t, err)
	require.LessOrEqual(t, store.Len(), 5)

	for ctn := uint64(0); ctn < 5; ctn++ {
		want := revocation.DeriveSecret(seed, ctn)
		got, err := store.Lookup(ctn)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestRevocationLogLoadEmptyChannel(t *testing.T) {
	db := makeTestDB(t)

	nodePub := make([]byte, 33)
	nodePub[0] = 0x03
	chanPoint := wire.OutPoint{Index: 1}

	store, err := db.LoadRevocationStore(nodePub, chanPoint)
	require.NoError(t, err)
	require.Equal(t, 0, store.Len())
}
