package lnwallet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelFSMHappyPathToOpen(t *testing.T) {
	fsm := NewChannelFSM()

	steps := []ChannelState{
		Opening, Funded, WaitingForFundingConfirmed,
		WaitingForChannelReady, Open,
	}
	for _, s := range steps {
		require.NoError(t, fsm.Transition(s))
	}
	require.Equal(t, Open, fsm.State())
}

func TestChannelFSMRejectsIllegalTransition(t *testing.T) {
	fsm := NewChannelFSM()
	err := fsm.Transition(Open)
	require.Error(t, err)

	var target *ErrIllegalTransition
	require.ErrorAs(t, err, &target)
	require.Equal(t, PreOpening, target.From)
	require.Equal(t, Open, target.To)
}

func TestChannelFSMForceCloseFromAnyOperatingState(t *testing.T) {
	for _, start := range []ChannelState{
		WaitingForFundingConfirmed, WaitingForChannelReady, Open, Shutdown,
		NegotiatingClosing, Reestablishing,
	} {
		fsm := &ChannelFSM{state: start}
		require.NoError(t, fsm.Transition(ForceClosing), "from %v", start)
	}
}

func TestChannelFSMOnlyOneCommitmentSignedOutstandingPerSide(t *testing.T) {
	fsm := NewChannelFSM()

	require.NoError(t, fsm.SendCommitmentSigned())
	require.ErrorIs(t, fsm.SendCommitmentSigned(), ErrCommitmentSignedOutstanding)

	require.NoError(t, fsm.ReceiveRevokeAndAck())
	require.Equal(t, uint64(1), fsm.RemoteCommitHeight())
	require.NoError(t, fsm.SendCommitmentSigned())
}

func TestChannelFSMCommitHeightsAdvanceIndependently(t *testing.T) {
	fsm := NewChannelFSM()

	require.NoError(t, fsm.ReceiveCommitmentSigned())
	require.NoError(t, fsm.SendRevokeAndAck())
	require.Equal(t, uint64(1), fsm.LocalCommitHeight())
	require.Equal(t, uint64(0), fsm.RemoteCommitHeight())
}

func TestReconcileReestablishOutcomes(t *testing.T) {
	fsm := NewChannelFSM()
	fsm.localCommitHeight = 5

	require.Equal(t, ReestablishSynced, fsm.ReconcileReestablish(5))
	require.Equal(t, ReestablishRetransmitCommitSigned, fsm.ReconcileReestablish(6))
	require.Equal(t, ReestablishRetransmitRevoke, fsm.ReconcileReestablish(4))
	require.Equal(t, ReestablishUnrecoverable, fsm.ReconcileReestablish(3))
	require.Equal(t, ReestablishUnrecoverable, fsm.ReconcileReestablish(7))
}
