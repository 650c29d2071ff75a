package lnwallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) CommitmentKeys {
	t.Helper()
	return CommitmentKeys{
		LocalDelayKey: randKey(t),
		RevocationKey: randKey(t),
		RemoteKey:     randKey(t),
		LocalHtlcKey:  randKey(t),
		RemoteHtlcKey: randKey(t),
	}
}

func TestObscureCommitmentNumberRoundTrip(t *testing.T) {
	opener := randKey(t)
	nonOpener := randKey(t)

	mask := ObscureCommitmentNumber(opener, nonOpener)

	for _, height := range []uint64{0, 1, 42, 1<<48 - 1} {
		locktime, sequence := commitmentObscuredFields(mask, height)
		got := CommitHeightFromFields(mask, locktime, sequence)
		require.Equal(t, height, got, "height %d", height)
		require.Equal(t, uint32(0x20000000), locktime&0xff000000)
		require.Equal(t, uint32(0x80000000), sequence&0xff000000)
	}
}

func TestBuildCommitmentTxOrdersOutputsAndTrimsDust(t *testing.T) {
	keys := testKeys(t)

	opts := CommitmentTxOpts{
		FundingOutpoint:   wire.OutPoint{},
		ObscureMask:       0,
		CommitHeight:      0,
		CsvTimeout:        144,
		DustLimit:         btcutil.Amount(354),
		LocalBalanceMsat:  5_000_000,
		RemoteBalanceMsat: 100, // below dust, should be trimmed entirely
		Keys:              keys,
	}

	tx, _, err := BuildCommitmentTx(opts)
	require.NoError(t, err)
	require.Len(t, tx.TxOut, 1, "dust remote balance must be trimmed")

	// BIP-69: outputs must be non-decreasing by value.
	for i := 1; i < len(tx.TxOut); i++ {
		require.LessOrEqual(t, tx.TxOut[i-1].Value, tx.TxOut[i].Value)
	}
}

func TestBuildCommitmentTxIncludesHTLCsAndAssignsOutputIndex(t *testing.T) {
	keys := testKeys(t)

	htlcs := []HTLCView{
		{Offered: true, AmountMsat: 2_000_000, CLTVExpiry: 500, HTLCIndex: 0, PaymentHash: [32]byte{1}},
		{Offered: false, AmountMsat: 3_000_000, CLTVExpiry: 600, HTLCIndex: 1, PaymentHash: [32]byte{2}},
	}

	opts := CommitmentTxOpts{
		CsvTimeout:        144,
		DustLimit:         btcutil.Amount(354),
		LocalBalanceMsat:  5_000_000_000,
		RemoteBalanceMsat: 4_000_000_000,
		Keys:              keys,
		HTLCs:             htlcs,
	}

	tx, included, err := BuildCommitmentTx(opts)
	require.NoError(t, err)
	require.Len(t, included, 2)
	require.Len(t, tx.TxOut, 4)

	for _, h := range included {
		require.GreaterOrEqual(t, h.OutputIndex, int32(0))
		require.Less(t, int(h.OutputIndex), len(tx.TxOut))
	}
}

func TestBuildCommitmentTxAnchorsAddsTwoOutputs(t *testing.T) {
	keys := testKeys(t)

	withoutAnchors := CommitmentTxOpts{
		CsvTimeout: 144, DustLimit: 354,
		LocalBalanceMsat: 1_000_000_000, RemoteBalanceMsat: 1_000_000_000,
		Keys: keys,
	}
	tx1, _, err := BuildCommitmentTx(withoutAnchors)
	require.NoError(t, err)

	withAnchors := withoutAnchors
	withAnchors.Anchors = true
	withAnchors.AnchorAmount = DefaultAnchorAmount
	withAnchors.LocalFundingKey = randKey(t)
	withAnchors.RemoteFundingKey = randKey(t)
	tx2, _, err := BuildCommitmentTx(withAnchors)
	require.NoError(t, err)

	require.Equal(t, len(tx1.TxOut)+2, len(tx2.TxOut))
}
