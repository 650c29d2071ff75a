package lnwallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestBuildHTLCTimeoutTxSetsLocktime(t *testing.T) {
	tx, script, err := BuildHTLCTimeoutTx(chainhash.Hash{}, 0, 5000, 600_000, 144,
		randKey(t), randKey(t))
	require.NoError(t, err)
	require.Equal(t, uint32(600_000), tx.LockTime)
	require.NotEmpty(t, script)
	require.Len(t, tx.TxOut, 1)
}

func TestBuildHTLCSuccessTxHasNoLocktime(t *testing.T) {
	tx, _, err := BuildHTLCSuccessTx(chainhash.Hash{}, 1, 5000, 144, randKey(t), randKey(t))
	require.NoError(t, err)
	require.Equal(t, uint32(0), tx.LockTime)
}

func TestHTLCFeePerKWScalesWithAnchors(t *testing.T) {
	plain := HTLCFeePerKW(btcutil.Amount(1000), false)
	anchored := HTLCFeePerKW(btcutil.Amount(1000), true)
	require.NotZero(t, plain)
	require.NotZero(t, anchored)
}
