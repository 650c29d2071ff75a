package lnwallet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBookkeeperAddLocalAssignsIncreasingIndices(t *testing.T) {
	b := NewHTLCBookkeeper()

	h1 := b.AddLocal(1000, [32]byte{1}, 500, [1366]byte{})
	h2 := b.AddLocal(2000, [32]byte{2}, 600, [1366]byte{})

	require.Equal(t, uint64(0), h1.HTLCIndex)
	require.Equal(t, uint64(1), h2.HTLCIndex)
	require.Equal(t, 2, b.NumPending())
}

func TestBookkeeperSettleThenRetireRemovesFromView(t *testing.T) {
	b := NewHTLCBookkeeper()
	h := b.AddLocal(1000, [32]byte{1}, 500, [1366]byte{})

	view := b.View(true)
	require.Len(t, view, 1)

	require.NoError(t, b.SettleOrFail(h.HTLCIndex))
	require.True(t, b.IsSettledOrFailed(h.HTLCIndex))

	// Staged settlement still excludes it from future views, but it
	// remains addressable until Retire.
	require.Empty(t, b.View(true))

	b.Retire(h.HTLCIndex)
	require.False(t, b.IsSettledOrFailed(h.HTLCIndex))
	require.ErrorIs(t, b.SettleOrFail(h.HTLCIndex), ErrHTLCNotFound)
}

func TestBookkeeperViewOffersFlipByPerspective(t *testing.T) {
	b := NewHTLCBookkeeper()
	b.AddLocal(1000, [32]byte{1}, 500, [1366]byte{})
	b.AddRemote(100, 2000, [32]byte{2}, 600, [1366]byte{})

	localView := b.View(true)
	remoteView := b.View(false)
	require.Len(t, localView, 2)
	require.Len(t, remoteView, 2)

	for _, h := range localView {
		if h.AmountMsat == 1000 {
			require.True(t, h.Offered)
		} else {
			require.False(t, h.Offered)
		}
	}
	for _, h := range remoteView {
		if h.AmountMsat == 1000 {
			require.False(t, h.Offered)
		} else {
			require.True(t, h.Offered)
		}
	}
}

func TestBookkeeperAddRemoteAdvancesNextIndex(t *testing.T) {
	b := NewHTLCBookkeeper()
	b.AddRemote(10, 1000, [32]byte{1}, 500, [1366]byte{})

	h := b.AddLocal(2000, [32]byte{2}, 600, [1366]byte{})
	require.Equal(t, uint64(11), h.HTLCIndex)
}
