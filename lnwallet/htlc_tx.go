package lnwallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// HTLCFeePerKW returns the weight-proportional fee, in satoshis, for an
// HTLC-success or HTLC-timeout transaction at the given feerate, mirroring
// the teacher's weight-based fee model (lnwallet/size.go) rather than a
// flat per-byte estimate.
func HTLCFeePerKW(feePerKw btcutil.Amount, anchors bool) btcutil.Amount {
	weight := int64(HtlcTimeoutWeight)
	if anchors {
		weight = HtlcTimeoutWeightAnchors
	}
	return feePerKw * btcutil.Amount(weight) / 1000
}

// HtlcTimeoutWeight and HtlcSuccessWeight (the pre-anchors weights) are
// defined in size.go, grounded on the teacher's weight table. The
// *WeightAnchors constants below account for the extra OP_CSV 1 drop the
// anchors script variant adds to the witness.
const (
	HtlcTimeoutWeightAnchors = 666
	HtlcSuccessWeightAnchors = 706
)

// BuildHTLCTimeoutTx builds the second-stage transaction that sweeps an
// offered HTLC output after its CLTV expiry, spending into a
// CSV-delayed/revocable output identical in shape to to_local.
func BuildHTLCTimeoutTx(commitTxid chainhash.Hash, outputIndex uint32,
	amount btcutil.Amount, cltvExpiry uint32, csvDelay uint32,
	localDelayKey, revocationKey *btcec.PublicKey) (*wire.MsgTx, []byte, error) {

	tx := wire.NewMsgTx(2)
	tx.LockTime = cltvExpiry
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: commitTxid, Index: outputIndex},
		Sequence:         0,
	})

	script, err := HTLCSuccessOrTimeoutScript(csvDelay, localDelayKey, revocationKey)
	if err != nil {
		return nil, nil, err
	}
	pkScript, err := WitnessScriptHash(script)
	if err != nil {
		return nil, nil, err
	}
	tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))

	return tx, script, nil
}

// BuildHTLCSuccessTx builds the second-stage transaction that claims a
// received HTLC output with its payment preimage, spending into the same
// CSV-delayed/revocable output shape as BuildHTLCTimeoutTx.
func BuildHTLCSuccessTx(commitTxid chainhash.Hash, outputIndex uint32,
	amount btcutil.Amount, csvDelay uint32,
	localDelayKey, revocationKey *btcec.PublicKey) (*wire.MsgTx, []byte, error) {

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: commitTxid, Index: outputIndex},
		Sequence:         0,
	})

	script, err := HTLCSuccessOrTimeoutScript(csvDelay, localDelayKey, revocationKey)
	if err != nil {
		return nil, nil, err
	}
	pkScript, err := WitnessScriptHash(script)
	if err != nil {
		return nil, nil, err
	}
	tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))

	return tx, script, nil
}

// HTLCSuccessWitness assembles the witness satisfying a received-HTLC
// output with the payment preimage and both parties' signatures, per
// BOLT #3's 2-of-2 HTLC-success witness (empty leading element to work
// around the OP_CHECKMULTISIG off-by-one).
func HTLCSuccessWitness(htlcScript []byte, remoteSig, localSig *ecdsa.Signature,
	preimage []byte) wire.TxWitness {

	return wire.TxWitness{
		nil,
		append(remoteSig.Serialize(), byte(txscript.SigHashAll)),
		append(localSig.Serialize(), byte(txscript.SigHashAll)),
		preimage,
		htlcScript,
	}
}

// HTLCTimeoutWitness assembles the witness satisfying an offered-HTLC
// output after its timeout, with both parties' signatures and no
// preimage.
func HTLCTimeoutWitness(htlcScript []byte, remoteSig, localSig *ecdsa.Signature) wire.TxWitness {
	return wire.TxWitness{
		nil,
		append(remoteSig.Serialize(), byte(txscript.SigHashAll)),
		append(localSig.Serialize(), byte(txscript.SigHashAll)),
		nil,
		htlcScript,
	}
}
