package lnwallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func TestClosingFeeNegotiationRejectsOutOfRange(t *testing.T) {
	n := &ClosingFeeNegotiation{MinFee: 100, MaxFee: 1000}

	err := n.ProposeFee(50)
	require.Error(t, err)
	var target *ErrClosingFeeOutOfRange
	require.ErrorAs(t, err, &target)

	require.NoError(t, n.ProposeFee(500))
	require.Equal(t, btcutil.Amount(500), n.LastFee)
}

func TestClosingFeeNegotiationConverges(t *testing.T) {
	n := &ClosingFeeNegotiation{MinFee: 100, MaxFee: 10000}
	require.NoError(t, n.ProposeFee(2000))

	require.False(t, n.ReceiveFee(5000))
	next := n.NextCounterOffer()
	require.Greater(t, next, btcutil.Amount(2000))
	require.Less(t, next, btcutil.Amount(5000))

	require.NoError(t, n.ProposeFee(next))
	require.True(t, n.ReceiveFee(next))
}

func TestChannelTypeFlags(t *testing.T) {
	plain := ChannelType(0)
	require.False(t, plain.HasAnchors())
	require.False(t, plain.StaticRemoteKey())

	anchors := ChannelTypeAnchors
	require.True(t, anchors.HasAnchors())
	require.True(t, anchors.StaticRemoteKey())

	staticOnly := ChannelTypeStatic
	require.False(t, staticOnly.HasAnchors())
	require.True(t, staticOnly.StaticRemoteKey())
}
