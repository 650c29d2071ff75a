package lnwallet

import "github.com/btcsuite/btcd/btcutil"

// ChannelType is the negotiated commitment format, carried as a TLV on
// open_channel/accept_channel. It controls which CommitScriptToRemote/
// OfferedHTLCScript/ReceivedHTLCScript variant applies to the channel for
// its entire lifetime.
type ChannelType uint8

const (
	ChannelTypeStatic ChannelType = 1 << iota
	ChannelTypeAnchors
	ChannelTypeZeroFeeHtlc
)

// HasAnchors reports whether outputs should use the anchor-commitment
// script variants.
func (t ChannelType) HasAnchors() bool {
	return t&ChannelTypeAnchors != 0
}

// StaticRemoteKey reports whether to_remote uses the counterparty's
// unmodified payment basepoint rather than a per-commitment-tweaked key.
func (t ChannelType) StaticRemoteKey() bool {
	return t&ChannelTypeStatic != 0 || t.HasAnchors()
}

// ClosingFeeNegotiation tracks one side's state during the closing_signed
// exchange that follows a mutual shutdown: the range of fees it will
// accept and the fee it last proposed.
type ClosingFeeNegotiation struct {
	MinFee  btcutil.Amount
	MaxFee  btcutil.Amount
	LastFee btcutil.Amount

	// PeerLastFee is the most recent fee the counterparty proposed; zero
	// until their first closing_signed arrives.
	PeerLastFee btcutil.Amount
}

// ErrClosingFeeOutOfRange is returned when a proposed fee falls outside
// [MinFee, MaxFee].
type ErrClosingFeeOutOfRange struct {
	Fee, Min, Max btcutil.Amount
}

func (e *ErrClosingFeeOutOfRange) Error() string {
	return "closing fee out of acceptable range"
}

// ProposeFee validates and records an outgoing closing_signed fee offer.
func (n *ClosingFeeNegotiation) ProposeFee(fee btcutil.Amount) error {
	if fee < n.MinFee || fee > n.MaxFee {
		return &ErrClosingFeeOutOfRange{Fee: fee, Min: n.MinFee, Max: n.MaxFee}
	}
	n.LastFee = fee
	return nil
}

// ReceiveFee records the peer's latest closing_signed fee proposal and
// reports whether negotiation has converged (both sides proposed the same
// fee, meaning this peer fee can now be accepted and a closing
// transaction built at it).
//
// Per BOLT #2, each side's next offer must lie strictly between the last
// two offers once both have proposed at least once; that monotonic
// convergence rule is enforced by the caller choosing its own next offer
// (NextCounterOffer), not here.
func (n *ClosingFeeNegotiation) ReceiveFee(peerFee btcutil.Amount) (converged bool) {
	n.PeerLastFee = peerFee
	return peerFee == n.LastFee
}

// NextCounterOffer picks this side's next fee proposal strictly between
// its last offer and the peer's last offer, per BOLT #2's convergence
// rule. Callers typically average the two; ties (both already equal)
// indicate convergence and should not call this.
func (n *ClosingFeeNegotiation) NextCounterOffer() btcutil.Amount {
	mid := (n.LastFee + n.PeerLastFee) / 2
	if mid < n.MinFee {
		mid = n.MinFee
	}
	if mid > n.MaxFee {
		mid = n.MaxFee
	}
	return mid
}
