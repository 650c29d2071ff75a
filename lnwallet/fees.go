package lnwallet

import "github.com/btcsuite/btcd/btcutil"

// CommitmentTxFee returns the fee the channel funder owes at feePerKw for a
// commitment transaction carrying numHTLCs pending HTLC outputs, per
// BOLT #3's weight-based fee formula (grounded on the teacher's
// EstimateCommitTxWeight in size.go).
func CommitmentTxFee(feePerKw btcutil.Amount, numHTLCs int) btcutil.Amount {
	weight := EstimateCommitTxWeight(numHTLCs, false)
	return feePerKw * btcutil.Amount(weight) / 1000
}

// DefaultAnchorAmount is the fixed value of each anchor output in an
// anchor-commitment channel, fixed at the dust limit per BOLT #3 so the
// fee budget is independent of how many anchors are swept.
const DefaultAnchorAmount = btcutil.Amount(330)
