package lnwallet

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func randKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestFundingScriptIsOrderIndependent(t *testing.T) {
	a := randKey(t)
	b := randKey(t)

	s1, err := FundingScript(a, b)
	require.NoError(t, err)
	s2, err := FundingScript(b, a)
	require.NoError(t, err)

	require.Equal(t, s1, s2)
}

func TestOfferedHTLCScriptRejectsShortHash(t *testing.T) {
	_, err := OfferedHTLCScript(randKey(t), randKey(t), randKey(t), []byte("tooshort"), false)
	require.Error(t, err)
}

func TestOfferedAndReceivedHTLCScriptsDifferByAnchorsTail(t *testing.T) {
	revocation, remote, local := randKey(t), randKey(t), randKey(t)
	hash := sha256.Sum256([]byte("preimage"))

	plain, err := OfferedHTLCScript(revocation, remote, local, hash[:], false)
	require.NoError(t, err)
	anchored, err := OfferedHTLCScript(revocation, remote, local, hash[:], true)
	require.NoError(t, err)

	require.NotEqual(t, plain, anchored)
	require.Greater(t, len(anchored), len(plain))
}

func TestCommitScriptToRemoteAnchorsAddsCSV(t *testing.T) {
	key := randKey(t)

	plain, err := CommitScriptToRemote(false, key)
	require.NoError(t, err)
	anchored, err := CommitScriptToRemote(true, key)
	require.NoError(t, err)

	require.NotEqual(t, plain, anchored)
}

func TestWitnessScriptHashIsP2WSHShaped(t *testing.T) {
	script, err := CommitScriptToLocal(144, randKey(t), randKey(t))
	require.NoError(t, err)

	pkScript, err := WitnessScriptHash(script)
	require.NoError(t, err)
	require.Len(t, pkScript, 34)
	require.Equal(t, byte(0x00), pkScript[0])
	require.Equal(t, byte(0x20), pkScript[1])
}
