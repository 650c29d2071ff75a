package lnwallet

import "fmt"

// HTLCDirection records which side of the channel added an HTLC.
type HTLCDirection int

const (
	Outgoing HTLCDirection = iota
	Incoming
)

// PendingHTLC is a live HTLC tracked by the bookkeeper, carrying enough
// state to build commitment transactions and settle or fail it later.
type PendingHTLC struct {
	HTLCIndex   uint64
	Direction   HTLCDirection
	AmountMsat  uint64
	PaymentHash [32]byte
	CLTVExpiry  uint32
	OnionBlob   [1366]byte

	// LocalAddCommitHeight and RemoteAddCommitHeight hold the commitment
	// numbers at which this HTLC entered each party's view of the
	// channel. The bookkeeper never sets them, so they stay 0; no
	// removal height is tracked.
	LocalAddCommitHeight  uint64
	RemoteAddCommitHeight uint64
}

// HTLCBookkeeper maintains the dual-view (local and remote commitment)
// queue of in-flight HTLCs for one channel, mirroring the teacher's
// lnwallet.LightningChannel update logs but factored into its own type
// so the channel state machine (channel_fsm.go) can stay focused on the
// legal-transition graph.
//
// Updates are kept in two queues by proposer: localUpdates for HTLCs we
// added, remoteUpdates for HTLCs they added. No per-commitment staging is
// tracked: an added HTLC appears in View for both commitments as soon as
// it is added, and a settled or failed one drops out of both at once.
type HTLCBookkeeper struct {
	nextHTLCIndex uint64

	// localUpdates are updates WE proposed (update_add_htlc etc we sent),
	// keyed by HTLCIndex. remoteUpdates are updates THEY proposed.
	localUpdates  map[uint64]*PendingHTLC
	remoteUpdates map[uint64]*PendingHTLC

	// settledOrFailed tracks terminal HTLCs that are still awaiting the
	// final revoke_and_ack that fully retires them from both views, to
	// guard against re-processing a resent update_fulfill/update_fail.
	settledOrFailed map[uint64]bool
}

// NewHTLCBookkeeper constructs an empty bookkeeper for a freshly opened
// channel.
func NewHTLCBookkeeper() *HTLCBookkeeper {
	return &HTLCBookkeeper{
		localUpdates:    make(map[uint64]*PendingHTLC),
		remoteUpdates:   make(map[uint64]*PendingHTLC),
		settledOrFailed: make(map[uint64]bool),
	}
}

// ErrHTLCNotFound is returned when an operation references an HTLC index
// that is not currently pending in the referenced view.
var ErrHTLCNotFound = fmt.Errorf("htlc bookkeeper: no such pending htlc")

// AddLocal records an HTLC we are originating (an update_add_htlc we are
// about to send), assigning it the next available HTLCIndex.
func (b *HTLCBookkeeper) AddLocal(amountMsat uint64, paymentHash [32]byte,
	cltvExpiry uint32, onion [1366]byte) *PendingHTLC {

	h := &PendingHTLC{
		HTLCIndex:   b.nextHTLCIndex,
		Direction:   Outgoing,
		AmountMsat:  amountMsat,
		PaymentHash: paymentHash,
		CLTVExpiry:  cltvExpiry,
		OnionBlob:   onion,
	}
	b.nextHTLCIndex++
	b.localUpdates[h.HTLCIndex] = h
	return h
}

// AddRemote records an HTLC the peer originated (an update_add_htlc we
// received), using the HTLCIndex the peer assigned.
func (b *HTLCBookkeeper) AddRemote(htlcIndex, amountMsat uint64,
	paymentHash [32]byte, cltvExpiry uint32, onion [1366]byte) *PendingHTLC {

	h := &PendingHTLC{
		HTLCIndex:   htlcIndex,
		Direction:   Incoming,
		AmountMsat:  amountMsat,
		PaymentHash: paymentHash,
		CLTVExpiry:  cltvExpiry,
		OnionBlob:   onion,
	}
	b.remoteUpdates[htlcIndex] = h
	if htlcIndex >= b.nextHTLCIndex {
		b.nextHTLCIndex = htlcIndex + 1
	}
	return h
}

// SettleOrFail marks an HTLC as resolved (fulfilled or failed). From then
// on it is left out of View and NumPending, but it stays addressable
// (IsSettledOrFailed reports it, and a repeated SettleOrFail succeeds)
// until Retire is called.
func (b *HTLCBookkeeper) SettleOrFail(htlcIndex uint64) error {
	if _, ok := b.localUpdates[htlcIndex]; ok {
		b.settledOrFailed[htlcIndex] = true
		return nil
	}
	if _, ok := b.remoteUpdates[htlcIndex]; ok {
		b.settledOrFailed[htlcIndex] = true
		return nil
	}
	return ErrHTLCNotFound
}

// Retire removes an HTLC from both views entirely, once neither party's
// next commitment transaction will ever need to include it again.
func (b *HTLCBookkeeper) Retire(htlcIndex uint64) {
	delete(b.localUpdates, htlcIndex)
	delete(b.remoteUpdates, htlcIndex)
	delete(b.settledOrFailed, htlcIndex)
}

// IsSettledOrFailed reports whether the given HTLC has a terminal
// resolution staged, pending retirement.
func (b *HTLCBookkeeper) IsSettledOrFailed(htlcIndex uint64) bool {
	return b.settledOrFailed[htlcIndex]
}

// View returns every HTLC that must appear on a freshly built commitment
// transaction for the given side: unresolved HTLCs from both update
// queues, from the perspective of whoever is building the transaction.
// buildingLocalCommitment selects whose commitment is being built: an HTLC we added is
// Offered from our own commitment's perspective and Received from
// theirs, and vice versa for HTLCs they added.
func (b *HTLCBookkeeper) View(buildingLocalCommitment bool) []HTLCView {
	var out []HTLCView

	for _, h := range b.localUpdates {
		if b.settledOrFailed[h.HTLCIndex] {
			continue
		}
		out = append(out, HTLCView{
			Offered:     buildingLocalCommitment,
			AmountMsat:  h.AmountMsat,
			CLTVExpiry:  h.CLTVExpiry,
			PaymentHash: h.PaymentHash,
			HTLCIndex:   h.HTLCIndex,
		})
	}
	for _, h := range b.remoteUpdates {
		if b.settledOrFailed[h.HTLCIndex] {
			continue
		}
		out = append(out, HTLCView{
			Offered:     !buildingLocalCommitment,
			AmountMsat:  h.AmountMsat,
			CLTVExpiry:  h.CLTVExpiry,
			PaymentHash: h.PaymentHash,
			HTLCIndex:   h.HTLCIndex,
		})
	}

	return out
}

// NumPending reports the total number of unresolved HTLCs across both
// views, used to enforce max_accepted_htlcs/max_htlc_value_in_flight_msat.
func (b *HTLCBookkeeper) NumPending() int {
	n := 0
	for idx := range b.localUpdates {
		if !b.settledOrFailed[idx] {
			n++
		}
	}
	for idx := range b.remoteUpdates {
		if !b.settledOrFailed[idx] {
			n++
		}
	}
	return n
}
