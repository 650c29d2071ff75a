package onion

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func genKeys(t *testing.T, n int) []*btcec.PrivateKey {
	t.Helper()
	keys := make([]*btcec.PrivateKey, n)
	for i := range keys {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		keys[i] = priv
	}
	return keys
}

func TestOnionConstructAndPeelThreeHops(t *testing.T) {
	hopPrivs := genKeys(t, 3)
	nodePubs := make([]*btcec.PublicKey, len(hopPrivs))
	for i, p := range hopPrivs {
		nodePubs[i] = p.PubKey()
	}

	sessionKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	assocData := []byte("payment-hash-placeholder-32bytes")

	payloadFor := func(i int) ([]byte, error) {
		if i == len(hopPrivs)-1 {
			var secret [32]byte
			copy(secret[:], "final-hop-payment-secret-abcdef")
			return EncodeFinalHopPayload(1000, 500_000, secret, 1000)
		}
		return EncodeIntermediateHopPayload(2000, 600_000, uint64(i+1))
	}

	packet, err := NewPacket(sessionKey, nodePubs, payloadFor, assocData)
	require.NoError(t, err)
	require.Len(t, packet.Encode(), PacketSize)

	current := packet
	for i, priv := range hopPrivs {
		res, err := Peel(current, priv, assocData)
		require.NoError(t, err, "hop %d", i)

		hp, err := DecodeHopPayload(res.Payload)
		require.NoError(t, err, "hop %d payload decode", i)

		if i == len(hopPrivs)-1 {
			require.True(t, res.IsFinalHop)
			require.True(t, hp.IsFinalHop)
			require.Equal(t, uint64(1000), hp.TotalMsat)
		} else {
			require.False(t, res.IsFinalHop)
			require.False(t, hp.IsFinalHop)
			require.Equal(t, uint64(i+1), hp.ShortChannelID)
		}

		current = res.NextPacket
	}
}

func TestOnionPeelRejectsTamperedHMAC(t *testing.T) {
	hopPrivs := genKeys(t, 2)
	nodePubs := []*btcec.PublicKey{hopPrivs[0].PubKey(), hopPrivs[1].PubKey()}
	sessionKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	assocData := []byte("assoc")
	payloadFor := func(i int) ([]byte, error) {
		return EncodeIntermediateHopPayload(1000, 500_000, uint64(i))
	}

	packet, err := NewPacket(sessionKey, nodePubs, payloadFor, assocData)
	require.NoError(t, err)

	packet.HMAC[0] ^= 0xff
	_, err = Peel(packet, hopPrivs[0], assocData)
	require.ErrorIs(t, err, ErrInvalidHMAC)
}

func TestOnionRejectsRouteLongerThanMaxHops(t *testing.T) {
	hopPrivs := genKeys(t, MaxHops+1)
	nodePubs := make([]*btcec.PublicKey, len(hopPrivs))
	for i, p := range hopPrivs {
		nodePubs[i] = p.PubKey()
	}
	sessionKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	_, err = NewPacket(sessionKey, nodePubs, func(int) ([]byte, error) {
		return nil, nil
	}, nil)
	require.Error(t, err)
}
