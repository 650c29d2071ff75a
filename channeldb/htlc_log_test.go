package channeldb

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestHTLCLogReplayReconstructsBookkeeper(t *testing.T) {
	db := makeTestDB(t)

	nodePub := make([]byte, 33)
	nodePub[0] = 0x02
	chanPoint := wire.OutPoint{Index: 7}

	var hash1, hash2 [32]byte
	hash1[0] = 0xaa
	hash2[0] = 0xbb
	var onion [1366]byte

	require.NoError(t, db.LogHTLCAddLocal(nodePub, chanPoint, 50000, hash1, 144, onion))
	require.NoError(t, db.LogHTLCAddRemote(nodePub, chanPoint, 5, 70000, hash2, 150, onion))
	require.NoError(t, db.LogHTLCSettleOrFail(nodePub, chanPoint, 5))

	b, err := db.LoadHTLCBookkeeper(nodePub, chanPoint)
	require.NoError(t, err)
	require.Equal(t, 1, b.NumPending())

	view := b.View(true)
	require.Len(t, view, 1)

	require.NoError(t, db.LogHTLCRetire(nodePub, chanPoint, 5))
	b2, err := db.LoadHTLCBookkeeper(nodePub, chanPoint)
	require.NoError(t, err)
	require.Equal(t, 1, b2.NumPending())
}

func TestHTLCLogReplayEmptyChannel(t *testing.T) {
	db := makeTestDB(t)

	nodePub := make([]byte, 33)
	nodePub[0] = 0x03
	chanPoint := wire.OutPoint{Index: 2}

	b, err := db.LoadHTLCBookkeeper(nodePub, chanPoint)
	require.NoError(t, err)
	require.Equal(t, 0, b.NumPending())
}
