// Package lnwallet builds the commitment and HTLC transactions and scripts
// defined by BOLT #3, and the state machine that drives a channel through
// its signing/revocation dance.
//
// Grounded on the teacher's lnwallet/script_utils.go, which builds a
// structurally similar but pre-BOLT3 script set (additive revocation-key
// tweak, no anchor outputs, no static_remotekey). Per spec.md's resolution
// of that discrepancy (§9), the script templates here follow BOLT #3
// verbatim rather than the teacher's historical variant; the witness
// program layout, OP_IF branch ordering, and CSV/CLTV placement are kept
// wherever BOLT #3 and the teacher agree.
package lnwallet

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// CommitScriptToRemote builds the to_remote output script. Pre-anchors, this
// is a plain P2WPKH. With the anchors feature negotiated, the remote output
// gains a 1-block CSV delay so it cannot be swept in the same block it
// confirms, closing a pinning attack vector described by BOLT #3.
func CommitScriptToRemote(anchors bool, remoteKey *btcec.PublicKey) ([]byte, error) {
	if !anchors {
		return txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(btcutil.Hash160(remoteKey.SerializeCompressed())).
			Script()
	}

	return txscript.NewScriptBuilder().
		AddData(remoteKey.SerializeCompressed()).
		AddOp(txscript.OP_CHECKSIGVERIFY).
		AddOp(txscript.OP_1).
		AddOp(txscript.OP_CHECKSEQUENCEVERIFY).
		Script()
}

// CommitScriptToLocal builds the to_local output script: an immediate
// spend with the revocation key, or a CSV-delayed spend with the local
// delayed key.
//
//	OP_IF
//	    <revocationkey>
//	OP_ELSE
//	    <to_self_delay>
//	    OP_CHECKSEQUENCEVERIFY
//	    OP_DROP
//	    <local_delayedkey>
//	OP_ENDIF
//	OP_CHECKSIG
func CommitScriptToLocal(csvTimeout uint32, localDelayKey, revocationKey *btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddData(revocationKey.SerializeCompressed())
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(int64(csvTimeout))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(localDelayKey.SerializeCompressed())
	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// AnchorScript builds the to_local_anchor/to_remote_anchor output script:
// spendable immediately by its owner, or by anyone after 16 blocks (so
// anchors are never permanently unspendable dust once the channel closes).
func AnchorScript(fundingKey *btcec.PublicKey) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(fundingKey.SerializeCompressed()).
		AddOp(txscript.OP_CHECKSIG).
		AddOp(txscript.OP_IFDUP).
		AddOp(txscript.OP_NOTIF).
		AddOp(txscript.OP_16).
		AddOp(txscript.OP_CHECKSEQUENCEVERIFY).
		AddOp(txscript.OP_ENDIF).
		Script()
}

// OfferedHTLCScript builds the script for an HTLC the local party is
// offering (paying out) to the remote party. anchors selects the
// anchors-commitment variant, which adds an OP_CHECKSEQUENCEVERIFY 1 drop
// to the success and timeout paths so that HTLC outputs share the anchor
// outputs' one-block CPFP delay.
//
//	OP_DUP OP_HASH160 <RIPEMD160(SHA256(revocation_key))> OP_EQUAL
//	OP_IF
//	    OP_CHECKSIG
//	OP_ELSE
//	    <remote_htlcpubkey> OP_SWAP OP_SIZE 32 OP_EQUAL
//	    OP_NOTIF
//	        OP_DROP 2 OP_SWAP <local_htlcpubkey> 2 OP_CHECKMULTISIG
//	    OP_ELSE
//	        OP_HASH160 <RIPEMD160(payment_hash)> OP_EQUALVERIFY
//	        OP_CHECKSIG
//	    OP_ENDIF
//	    [ 1 OP_CHECKSEQUENCEVERIFY OP_DROP ]  ; anchors only
//	OP_ENDIF
func OfferedHTLCScript(revocationKey, remoteHtlcKey, localHtlcKey *btcec.PublicKey,
	paymentHash []byte, anchors bool) ([]byte, error) {

	if len(paymentHash) != 32 {
		return nil, fmt.Errorf("payment hash must be 32 bytes, got %d", len(paymentHash))
	}
	ripemd := btcutil.Hash160(paymentHash)

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(btcutil.Hash160(revocationKey.SerializeCompressed()))
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)

	builder.AddData(remoteHtlcKey.SerializeCompressed())
	builder.AddOp(txscript.OP_SWAP)
	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(32)
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_NOTIF)

	builder.AddOp(txscript.OP_DROP)
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_SWAP)
	builder.AddData(localHtlcKey.SerializeCompressed())
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)

	builder.AddOp(txscript.OP_ELSE)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(ripemd)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)

	if anchors {
		builder.AddInt64(1)
		builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
		builder.AddOp(txscript.OP_DROP)
	}

	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// ReceivedHTLCScript builds the script for an HTLC the local party is
// receiving (forwarding onward or settling) from the remote party.
//
//	OP_DUP OP_HASH160 <RIPEMD160(revocation_key)> OP_EQUAL
//	OP_IF
//	    OP_CHECKSIG
//	OP_ELSE
//	    <remote_htlcpubkey> OP_SWAP OP_SIZE 32 OP_EQUAL
//	    OP_IF
//	        OP_HASH160 <RIPEMD160(payment_hash)> OP_EQUALVERIFY
//	        2 OP_SWAP <local_htlcpubkey> 2 OP_CHECKMULTISIG
//	    OP_ELSE
//	        OP_DROP <cltv_expiry> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	        OP_CHECKSIG
//	    OP_ENDIF
//	    [ 1 OP_CHECKSEQUENCEVERIFY OP_DROP ]  ; anchors only
//	OP_ENDIF
func ReceivedHTLCScript(cltvExpiry uint32, revocationKey, remoteHtlcKey,
	localHtlcKey *btcec.PublicKey, paymentHash []byte, anchors bool) ([]byte, error) {

	if len(paymentHash) != 32 {
		return nil, fmt.Errorf("payment hash must be 32 bytes, got %d", len(paymentHash))
	}
	ripemd := btcutil.Hash160(paymentHash)

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(btcutil.Hash160(revocationKey.SerializeCompressed()))
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)

	builder.AddData(remoteHtlcKey.SerializeCompressed())
	builder.AddOp(txscript.OP_SWAP)
	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(32)
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)

	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(ripemd)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_SWAP)
	builder.AddData(localHtlcKey.SerializeCompressed())
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)

	builder.AddOp(txscript.OP_ELSE)
	builder.AddOp(txscript.OP_DROP)
	builder.AddInt64(int64(cltvExpiry))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)

	if anchors {
		builder.AddInt64(1)
		builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
		builder.AddOp(txscript.OP_DROP)
	}

	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// HTLCSuccessOrTimeoutScript builds the second-stage script protecting the
// output of an HTLC-success or HTLC-timeout transaction: identical to
// CommitScriptToLocal's delayed branch since both are swept by the local
// delayed key after to_self_delay, or immediately by the revocation key.
func HTLCSuccessOrTimeoutScript(csvTimeout uint32, localDelayKey, revocationKey *btcec.PublicKey) ([]byte, error) {
	return CommitScriptToLocal(csvTimeout, localDelayKey, revocationKey)
}

// FundingScript builds the 2-of-2 funding output script. Keys are sorted
// lexicographically by serialized compressed form per BOLT #3 so both
// sides independently construct the identical script.
func FundingScript(aPub, bPub *btcec.PublicKey) ([]byte, error) {
	a := aPub.SerializeCompressed()
	b := bPub.SerializeCompressed()
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_2).
		AddData(a).
		AddData(b).
		AddOp(txscript.OP_2).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
}

// WitnessScriptHash returns the P2WSH pkScript paying to witnessScript.
func WitnessScriptHash(witnessScript []byte) ([]byte, error) {
	h := sha256Sum(witnessScript)
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(h[:]).
		Script()
}
