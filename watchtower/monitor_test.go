package watchtower

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lncore/lncore/lnwallet"
)

type fakeChain struct {
	spendChans map[wire.OutPoint]chan *wire.MsgTx
	published  chan *wire.MsgTx
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		spendChans: make(map[wire.OutPoint]chan *wire.MsgTx),
		published:  make(chan *wire.MsgTx, 1),
	}
}

func (f *fakeChain) NotifySpend(op wire.OutPoint) (<-chan *wire.MsgTx, error) {
	ch := make(chan *wire.MsgTx, 1)
	f.spendChans[op] = ch
	return ch, nil
}

func (f *fakeChain) PublishTransaction(tx *wire.MsgTx) error {
	f.published <- tx
	return nil
}

func TestMonitorDetectsBreachAndPublishesJusticeTx(t *testing.T) {
	chain := newFakeChain()
	store, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	mon := NewMonitor(chain, store, []byte{0x00, 0x14}, 10)
	mon.Start()
	t.Cleanup(mon.Stop)

	revPriv, delayPriv := randPriv(t), randPriv(t)
	hash := sha256.Sum256([]byte("preimage"))
	htlcScript, err := lnwallet.OfferedHTLCScript(revPriv.PubKey(), randPriv(t).PubKey(), randPriv(t).PubKey(), hash[:], false)
	require.NoError(t, err)

	chanPoint := wire.OutPoint{Hash: chainhash.Hash{7}, Index: 0}
	obscureMask := uint64(0x0102030405)
	revokedHeight := uint64(3)
	latest := uint64(5)

	locktime, sequence := commitmentObscuredFieldsForTest(obscureMask, revokedHeight)

	watch := &ChannelWatch{
		ChanPoint:           chanPoint,
		ObscureMask:         obscureMask,
		LatestNonRevokedCtn: latest,
		Retributions: map[uint64]*Retribution{
			revokedHeight: {
				ChanPoint:         chanPoint,
				RevocationPrivKey: revPriv,
				LocalDelayPrivKey: delayPriv,
				CsvTimeout:        144,
				LocalOutputIndex:  0,
				LocalOutputAmount: 1_000_000,
				HTLCs: []HTLCRetribution{
					{OutputIndex: 1, Amount: 50_000, Script: htlcScript},
				},
			},
		},
	}
	mon.Watch(watch)

	breachTx := wire.NewMsgTx(2)
	breachTx.LockTime = locktime
	breachTx.AddTxIn(&wire.TxIn{Sequence: sequence})

	chain.spendChans[chanPoint] <- breachTx

	select {
	case justiceTx := <-chain.published:
		require.Len(t, justiceTx.TxIn, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for justice transaction to be published")
	}
}
