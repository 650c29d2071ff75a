package lnwallet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ObscureCommitmentNumber derives the 48-bit masking value applied to the
// locktime/sequence fields of every commitment transaction, so an observer
// cannot tell how many updates a channel has seen from the raw values
// alone. Per BOLT #3 the mask is the last 6 bytes of
// SHA256(payment_basepoint_opener || payment_basepoint_non_opener).
func ObscureCommitmentNumber(openerPaymentBase, nonOpenerPaymentBase *btcec.PublicKey) uint64 {
	h := sha256Sum(append(
		openerPaymentBase.SerializeCompressed(),
		nonOpenerPaymentBase.SerializeCompressed()...,
	))
	var buf [8]byte
	copy(buf[2:], h[26:32])
	return binary.BigEndian.Uint64(buf[:])
}

// commitmentObscuredFields computes the locktime/nSequence pair a
// commitment transaction at the given commitment number must carry,
// XORing the obscuring mask in per BOLT #3 so the commitment number is
// recoverable by either party but opaque to everyone else. The top 24
// bits of commitHeight^obscureMask become the low 24 bits of the locktime,
// tagged with the 0x20 upper byte; the bottom 24 bits become the sequence,
// tagged with the 0x80 upper byte.
func commitmentObscuredFields(obscureMask, commitHeight uint64) (locktime, sequence uint32) {
	masked := commitHeight ^ obscureMask
	locktime = 0x20000000 | uint32((masked>>24)&0xffffff)
	sequence = 0x80000000 | uint32(masked&0xffffff)
	return locktime, sequence
}

// CommitHeightFromFields recovers the commitment number from a
// broadcast commitment transaction's locktime/sequence pair, the inverse
// of commitmentObscuredFields.
func CommitHeightFromFields(obscureMask uint64, locktime, sequence uint32) uint64 {
	hi := uint64(locktime & 0xffffff)
	lo := uint64(sequence & 0xffffff)
	return (hi<<24 | lo) ^ obscureMask
}

// HTLCView is one HTLC output to be placed on a commitment transaction.
type HTLCView struct {
	Offered     bool
	AmountMsat  uint64
	CLTVExpiry  uint32
	PaymentHash [32]byte
	// HTLCIndex is the channel-local counter identifying this HTLC,
	// used to break CLTV ties per BOLT #3's output ordering rule.
	HTLCIndex uint64
	// OutputIndex is set once the commitment transaction is built.
	OutputIndex int32
}

// CommitmentKeys bundles every pubkey needed to script a single party's
// view of a commitment transaction.
type CommitmentKeys struct {
	LocalDelayKey   *btcec.PublicKey
	RevocationKey   *btcec.PublicKey
	RemoteKey       *btcec.PublicKey // to_remote destination key
	LocalHtlcKey    *btcec.PublicKey
	RemoteHtlcKey   *btcec.PublicKey
}

// CommitmentTxOpts parametrizes BuildCommitmentTx.
type CommitmentTxOpts struct {
	FundingOutpoint    wire.OutPoint
	ObscureMask        uint64
	CommitHeight       uint64
	CsvTimeout         uint32
	DustLimit          btcutil.Amount
	LocalBalanceMsat   uint64
	RemoteBalanceMsat  uint64
	Anchors            bool
	AnchorAmount       btcutil.Amount
	LocalFundingKey    *btcec.PublicKey
	RemoteFundingKey   *btcec.PublicKey
	Keys               CommitmentKeys
	HTLCs              []HTLCView
}

// scriptOutput pairs a TxOut with the witness script that produced it (for
// HTLC outputs only; P2WPKH/anchor outputs carry no separate witness
// script).
type scriptOutput struct {
	txOut       *wire.TxOut
	htlcIdx     int // index into opts.HTLCs, or -1
	cltvExpiry  uint32
}

// BuildCommitmentTx assembles one party's version of the commitment
// transaction: to_local, to_remote, optional anchors, and one output per
// HTLC (dust HTLCs are trimmed per BOLT #3's dust-limit rule). Outputs are
// ordered per BIP-69 with the CLTV/HTLC-index tiebreak BOLT #3 adds for
// HTLCs of otherwise-identical amount and script.
func BuildCommitmentTx(opts CommitmentTxOpts) (*wire.MsgTx, []HTLCView, error) {
	tx := wire.NewMsgTx(2)

	locktime, sequence := commitmentObscuredFields(opts.ObscureMask, opts.CommitHeight)
	tx.LockTime = locktime
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: opts.FundingOutpoint,
		Sequence:         sequence,
	})

	var outs []scriptOutput

	if btcutil.Amount(opts.LocalBalanceMsat/1000) >= opts.DustLimit {
		script, err := CommitScriptToLocal(opts.CsvTimeout, opts.Keys.LocalDelayKey, opts.Keys.RevocationKey)
		if err != nil {
			return nil, nil, err
		}
		pkScript, err := WitnessScriptHash(script)
		if err != nil {
			return nil, nil, err
		}
		outs = append(outs, scriptOutput{txOut: wire.NewTxOut(int64(opts.LocalBalanceMsat/1000), pkScript), htlcIdx: -1})
	}

	if btcutil.Amount(opts.RemoteBalanceMsat/1000) >= opts.DustLimit {
		pkScript, err := CommitScriptToRemote(opts.Anchors, opts.Keys.RemoteKey)
		if err != nil {
			return nil, nil, err
		}
		outs = append(outs, scriptOutput{txOut: wire.NewTxOut(int64(opts.RemoteBalanceMsat/1000), pkScript), htlcIdx: -1})
	}

	if opts.Anchors {
		localAnchor, err := AnchorScript(opts.LocalFundingKey)
		if err != nil {
			return nil, nil, err
		}
		localAnchorPk, err := WitnessScriptHash(localAnchor)
		if err != nil {
			return nil, nil, err
		}
		outs = append(outs, scriptOutput{txOut: wire.NewTxOut(int64(opts.AnchorAmount), localAnchorPk), htlcIdx: -1})

		remoteAnchor, err := AnchorScript(opts.RemoteFundingKey)
		if err != nil {
			return nil, nil, err
		}
		remoteAnchorPk, err := WitnessScriptHash(remoteAnchor)
		if err != nil {
			return nil, nil, err
		}
		outs = append(outs, scriptOutput{txOut: wire.NewTxOut(int64(opts.AnchorAmount), remoteAnchorPk), htlcIdx: -1})
	}

	included := make([]HTLCView, 0, len(opts.HTLCs))
	for i, h := range opts.HTLCs {
		amt := btcutil.Amount(h.AmountMsat / 1000)
		if amt < opts.DustLimit {
			continue
		}

		var script []byte
		var err error
		if h.Offered {
			script, err = OfferedHTLCScript(opts.Keys.RevocationKey, opts.Keys.RemoteHtlcKey,
				opts.Keys.LocalHtlcKey, h.PaymentHash[:], opts.Anchors)
		} else {
			script, err = ReceivedHTLCScript(h.CLTVExpiry, opts.Keys.RevocationKey, opts.Keys.RemoteHtlcKey,
				opts.Keys.LocalHtlcKey, h.PaymentHash[:], opts.Anchors)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("building htlc script: %w", err)
		}
		pkScript, err := WitnessScriptHash(script)
		if err != nil {
			return nil, nil, err
		}

		outs = append(outs, scriptOutput{
			txOut:      wire.NewTxOut(int64(amt), pkScript),
			htlcIdx:    i,
			cltvExpiry: h.CLTVExpiry,
		})
		included = append(included, h)
	}

	sort.Slice(outs, func(i, j int) bool {
		oi, oj := outs[i].txOut, outs[j].txOut
		if oi.Value != oj.Value {
			return oi.Value < oj.Value
		}
		if c := bytes.Compare(oi.PkScript, oj.PkScript); c != 0 {
			return c < 0
		}
		// BIP-69 ties (identical amount+script) are broken by CLTV
		// expiry, lowest first, per BOLT #3, and then by HTLC index.
		if outs[i].cltvExpiry != outs[j].cltvExpiry {
			return outs[i].cltvExpiry < outs[j].cltvExpiry
		}
		if outs[i].htlcIdx >= 0 && outs[j].htlcIdx >= 0 {
			return opts.HTLCs[outs[i].htlcIdx].HTLCIndex < opts.HTLCs[outs[j].htlcIdx].HTLCIndex
		}
		return false
	})

	for idx, o := range outs {
		tx.AddTxOut(o.txOut)
		if o.htlcIdx >= 0 {
			wantIndex := opts.HTLCs[o.htlcIdx].HTLCIndex
			for k := range included {
				if included[k].HTLCIndex == wantIndex {
					included[k].OutputIndex = int32(idx)
					break
				}
			}
		}
	}

	return tx, included, nil
}

// CommitmentTxID is a convenience wrapper returning the txid of an unsigned
// commitment transaction, used before the funding outpoint is known for
// computing the next stage's sighash.
func CommitmentTxID(tx *wire.MsgTx) chainhash.Hash {
	return tx.TxHash()
}
