// Package watchtower detects broadcast of a revoked commitment transaction
// and punishes it with a justice transaction sweeping every output to a
// locally controlled address, within the to_self_delay window the cheating
// party's own commitment gives us.
//
// Grounded on the teacher's root-level breacharbiter.go, which plays the
// same role (persisted retribution state, a per-channel breach observer,
// justice-transaction construction on detection) against its pre-BOLT3
// script set; the detection and sweep logic here is rebuilt against the
// BOLT #3-exact scripts in package lnwallet.
package watchtower

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/lncore/lncore/lnwallet"
)

// HTLCRetribution carries what's needed to sweep one revoked HTLC output.
type HTLCRetribution struct {
	OutputIndex uint32
	Amount      btcutil.Amount
	Script      []byte
	Offered     bool
}

// Retribution is the full justice material for one revoked commitment: the
// commitment txid (once broadcast), the revocation private key recovered
// from the revealed per-commitment secret, and every output on that
// commitment this node is entitled to sweep.
type Retribution struct {
	ChanPoint         wire.OutPoint
	BreachTxid        chainhash.Hash
	CommitHeight      uint64
	RevocationPrivKey *btcec.PrivateKey
	LocalDelayPrivKey *btcec.PrivateKey
	CsvTimeout        uint32
	LocalOutputIndex  int32
	LocalOutputAmount btcutil.Amount
	HTLCs             []HTLCRetribution
}

// BuildJusticeTx constructs the transaction sweeping every punishable
// output of a breached commitment to sweepScript, paying feePerKw.
func BuildJusticeTx(r *Retribution, sweepScript []byte, feePerKw btcutil.Amount) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)

	var totalIn btcutil.Amount

	if r.LocalOutputIndex >= 0 {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Hash: r.BreachTxid, Index: uint32(r.LocalOutputIndex)},
		})
		totalIn += r.LocalOutputAmount
	}

	for _, h := range r.HTLCs {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Hash: r.BreachTxid, Index: h.OutputIndex},
		})
		totalIn += h.Amount
	}

	if len(tx.TxIn) == 0 {
		return nil, fmt.Errorf("watchtower: retribution record has no punishable outputs")
	}

	// A rough weight estimate (p2wsh revocation-path inputs are all a
	// single signature + pubkey-like witness) suffices since the justice
	// transaction is a one-shot sweep, not a fee-sensitive steady-state
	// transaction.
	const estWeight = 200 + 300 // weight charged for every input, deliberately generous
	fee := feePerKw * btcutil.Amount(estWeight*len(tx.TxIn)) / 1000
	if fee > totalIn {
		return nil, fmt.Errorf("watchtower: fee %v exceeds total punishable value %v", fee, totalIn)
	}

	tx.AddTxOut(wire.NewTxOut(int64(totalIn-fee), sweepScript))
	return tx, nil
}

// SignJusticeTx produces the witnesses for every input of a justice
// transaction built by BuildJusticeTx: the to_local output is swept via
// the revocation-path branch of lnwallet.CommitScriptToLocal, and each
// HTLC output via the revocation branches of OfferedHTLCScript/
// ReceivedHTLCScript.
func SignJusticeTx(tx *wire.MsgTx, r *Retribution) error {
	idx := 0

	if r.LocalOutputIndex >= 0 {
		script, err := lnwallet.CommitScriptToLocal(r.CsvTimeout, r.LocalDelayPrivKey.PubKey(), r.RevocationPrivKey.PubKey())
		if err != nil {
			return err
		}
		sig, err := signRevocationPath(tx, idx, r.LocalOutputAmount, script, r.RevocationPrivKey)
		if err != nil {
			return err
		}
		tx.TxIn[idx].Witness = wire.TxWitness{
			append(sig.Serialize(), byte(txscript.SigHashAll)),
			[]byte{1},
			script,
		}
		idx++
	}

	for _, h := range r.HTLCs {
		sig, err := signRevocationPath(tx, idx, h.Amount, h.Script, r.RevocationPrivKey)
		if err != nil {
			return err
		}
		// Both offered and received HTLC scripts resolve the revocation
		// branch the same way: <revocation_sig> <revocation_pubkey>.
		tx.TxIn[idx].Witness = wire.TxWitness{
			append(sig.Serialize(), byte(txscript.SigHashAll)),
			r.RevocationPrivKey.PubKey().SerializeCompressed(),
			h.Script,
		}
		idx++
	}

	return nil
}

func signRevocationPath(tx *wire.MsgTx, idx int, amt btcutil.Amount, script []byte,
	priv *btcec.PrivateKey) (*ecdsa.Signature, error) {

	hashCache := txscript.NewTxSigHashes(tx)
	sigHash, err := txscript.CalcWitnessSigHash(script, hashCache, txscript.SigHashAll, tx, idx, int64(amt))
	if err != nil {
		return nil, err
	}
	return ecdsa.Sign(priv, sigHash), nil
}

// RecognizeBreach reports whether a transaction spending the channel's
// funding outpoint is a revoked commitment rather than the latest valid
// one, by comparing its obscured commitment-number fields against the
// one this node expects for its current (non-revoked) commitment height.
func RecognizeBreach(spendTx *wire.MsgTx, obscureMask uint64, latestNonRevokedHeight uint64) (revokedHeight uint64, isBreach bool) {
	if len(spendTx.TxIn) == 0 {
		return 0, false
	}
	height := lnwallet.CommitHeightFromFields(obscureMask, spendTx.LockTime, spendTx.TxIn[0].Sequence)
	if height < latestNonRevokedHeight {
		return height, true
	}
	return height, false
}
