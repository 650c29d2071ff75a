package lnwallet

import "fmt"

// ChannelState enumerates the channel's lifecycle per spec; any attempt to
// move outside the graph below is a fatal (force-closing) error, not a
// recoverable one.
type ChannelState int

const (
	PreOpening ChannelState = iota
	Opening
	Funded
	WaitingForFundingConfirmed
	WaitingForChannelReady
	Open
	Shutdown
	NegotiatingClosing
	Closing
	ForceClosing
	Reestablishing
	Closed
)

func (s ChannelState) String() string {
	switch s {
	case PreOpening:
		return "PREOPENING"
	case Opening:
		return "OPENING"
	case Funded:
		return "FUNDED"
	case WaitingForFundingConfirmed:
		return "WAITING_FOR_FUNDING_CONFIRMED"
	case WaitingForChannelReady:
		return "WAITING_FOR_CHANNEL_READY"
	case Open:
		return "OPEN"
	case Shutdown:
		return "SHUTDOWN"
	case NegotiatingClosing:
		return "NEGOTIATING_CLOSING"
	case Closing:
		return "CLOSING"
	case ForceClosing:
		return "FORCE_CLOSING"
	case Reestablishing:
		return "REESTABLISHING"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("ChannelState(%d)", int(s))
	}
}

// legalTransitions is the adjacency list straight off spec.md §4.6; any
// transition not listed here is illegal.
var legalTransitions = map[ChannelState]map[ChannelState]bool{
	PreOpening: {Opening: true},
	Opening:    {Funded: true, Closed: true},
	Funded:     {WaitingForFundingConfirmed: true, Closed: true},
	WaitingForFundingConfirmed: {
		WaitingForChannelReady: true, ForceClosing: true, Closed: true,
	},
	WaitingForChannelReady: {
		Open: true, ForceClosing: true, Closed: true,
	},
	Open: {
		Shutdown: true, ForceClosing: true, Reestablishing: true,
	},
	Shutdown: {
		NegotiatingClosing: true, ForceClosing: true, Closed: true,
	},
	NegotiatingClosing: {Closing: true, ForceClosing: true},
	Closing:            {Closed: true},
	ForceClosing:        {Closed: true},
	Reestablishing: {
		Open: true, ForceClosing: true, Closed: true,
	},
}

// ErrIllegalTransition is returned by ChannelFSM.Transition when the
// requested move is not present in legalTransitions; the caller must
// force-close the channel upon receiving it, since it indicates either a
// local bug or a protocol violation by the peer.
type ErrIllegalTransition struct {
	From, To ChannelState
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal channel state transition %v -> %v", e.From, e.To)
}

// ChannelFSM tracks one channel's lifecycle state and the counters that
// must move in lockstep with it: the local and remote commitment numbers,
// and whether a commitment_signed is currently outstanding in either
// direction (BOLT #2 permits only one at a time per side).
type ChannelFSM struct {
	state ChannelState

	localCommitHeight  uint64
	remoteCommitHeight uint64

	localCommitSignedOutstanding  bool
	remoteCommitSignedOutstanding bool
}

// NewChannelFSM returns a fresh state machine in PREOPENING.
func NewChannelFSM() *ChannelFSM {
	return &ChannelFSM{state: PreOpening}
}

// State reports the current lifecycle state.
func (c *ChannelFSM) State() ChannelState {
	return c.state
}

// Transition moves the channel to `to`, returning ErrIllegalTransition if
// the move is not permitted from the current state.
func (c *ChannelFSM) Transition(to ChannelState) error {
	allowed, ok := legalTransitions[c.state]
	if !ok || !allowed[to] {
		return &ErrIllegalTransition{From: c.state, To: to}
	}
	c.state = to
	return nil
}

// LocalCommitHeight and RemoteCommitHeight report each party's current
// commitment number (the count of commitment_signed messages that party
// has sent and had revoked, i.e. the ctn of their latest valid
// commitment).
func (c *ChannelFSM) LocalCommitHeight() uint64  { return c.localCommitHeight }
func (c *ChannelFSM) RemoteCommitHeight() uint64 { return c.remoteCommitHeight }

// ErrCommitmentSignedOutstanding is returned by SendCommitmentSigned when
// a previous commitment_signed from this side has not yet been revoked by
// the peer; BOLT #2 permits only one outstanding per direction.
var ErrCommitmentSignedOutstanding = fmt.Errorf("commitment_signed already outstanding, must wait for revoke_and_ack")

// SendCommitmentSigned records that we have sent a commitment_signed
// advancing the peer's commitment to remoteCommitHeight+1. It is an error
// to call this while a previous commitment_signed from us is still
// unrevoked.
func (c *ChannelFSM) SendCommitmentSigned() error {
	if c.localCommitSignedOutstanding {
		return ErrCommitmentSignedOutstanding
	}
	c.localCommitSignedOutstanding = true
	return nil
}

// ReceiveRevokeAndAck records the peer's revoke_and_ack for the
// commitment_signed we most recently sent, advancing our view of their
// commitment height and clearing the outstanding flag.
func (c *ChannelFSM) ReceiveRevokeAndAck() error {
	if !c.localCommitSignedOutstanding {
		return fmt.Errorf("received unexpected revoke_and_ack with no commitment_signed outstanding")
	}
	c.remoteCommitHeight++
	c.localCommitSignedOutstanding = false
	return nil
}

// ReceiveCommitmentSigned records the peer's commitment_signed advancing
// our own commitment height, returning an error if one from them is
// already outstanding.
func (c *ChannelFSM) ReceiveCommitmentSigned() error {
	if c.remoteCommitSignedOutstanding {
		return ErrCommitmentSignedOutstanding
	}
	c.remoteCommitSignedOutstanding = true
	return nil
}

// SendRevokeAndAck records that we revoked our previous commitment in
// response to the peer's commitment_signed, advancing our own commitment
// height.
func (c *ChannelFSM) SendRevokeAndAck() error {
	if !c.remoteCommitSignedOutstanding {
		return fmt.Errorf("no commitment_signed outstanding to revoke against")
	}
	c.localCommitHeight++
	c.remoteCommitSignedOutstanding = false
	return nil
}

// ReestablishOutcome names what a channel_reestablish comparison
// determines must happen next, per spec.md §4.6's divergence rules.
type ReestablishOutcome int

const (
	ReestablishSynced ReestablishOutcome = iota
	ReestablishRetransmitCommitSigned
	ReestablishRetransmitRevoke
	ReestablishUnrecoverable
)

// ReconcileReestablish compares the peer's reported next_commitment_number
// against our local commitment height and returns what must happen next.
func (c *ChannelFSM) ReconcileReestablish(peerNextCommitmentNumber uint64) ReestablishOutcome {
	ours := c.localCommitHeight
	switch {
	case peerNextCommitmentNumber == ours:
		return ReestablishSynced
	case peerNextCommitmentNumber == ours+1:
		return ReestablishRetransmitCommitSigned
	case peerNextCommitmentNumber+1 == ours:
		return ReestablishRetransmitRevoke
	default:
		return ReestablishUnrecoverable
	}
}
