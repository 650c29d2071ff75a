package channeldb

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"go.etcd.io/bbolt"

	"github.com/lncore/lncore/lnwallet"
)

// htlcLogEventType tags the kind of lifecycle event one htlc.log record
// carries; replaying a channel's full event sequence in order
// reconstructs its HTLCBookkeeper.
type htlcLogEventType uint8

const (
	htlcEventAddLocal htlcLogEventType = iota
	htlcEventAddRemote
	htlcEventSettleOrFail
	htlcEventRetire
)

// htlcLogEvent is one record in a channel's htlc.log: an HTLC being
// added, resolved, or fully retired. The log is append-only: no record
// is ever truncated or compacted, including records whose HTLC both
// commitments have already moved past.
type htlcLogEvent struct {
	Type        htlcLogEventType
	HTLCIndex   uint64
	AmountMsat  uint64
	PaymentHash [32]byte
	CLTVExpiry  uint32
	OnionBlob   [1366]byte
}

func serializeHTLCEvent(e *htlcLogEvent) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(e.Type))

	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], e.HTLCIndex)
	buf.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], e.AmountMsat)
	buf.Write(scratch[:])
	buf.Write(e.PaymentHash[:])

	var scratch4 [4]byte
	binary.BigEndian.PutUint32(scratch4[:], e.CLTVExpiry)
	buf.Write(scratch4[:])

	if e.Type == htlcEventAddLocal || e.Type == htlcEventAddRemote {
		buf.Write(e.OnionBlob[:])
	}

	return buf.Bytes()
}

func deserializeHTLCEvent(b []byte) (*htlcLogEvent, error) {
	if len(b) < 1+8+8+32+4 {
		return nil, fmt.Errorf("htlc log: short record, likely a torn tail")
	}

	e := &htlcLogEvent{}
	r := bytes.NewReader(b)

	typ, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	e.Type = htlcLogEventType(typ)

	var scratch [8]byte
	if _, err := r.Read(scratch[:]); err != nil {
		return nil, err
	}
	e.HTLCIndex = binary.BigEndian.Uint64(scratch[:])
	if _, err := r.Read(scratch[:]); err != nil {
		return nil, err
	}
	e.AmountMsat = binary.BigEndian.Uint64(scratch[:])
	if _, err := r.Read(e.PaymentHash[:]); err != nil {
		return nil, err
	}

	var scratch4 [4]byte
	if _, err := r.Read(scratch4[:]); err != nil {
		return nil, err
	}
	e.CLTVExpiry = binary.BigEndian.Uint32(scratch4[:])

	if e.Type == htlcEventAddLocal || e.Type == htlcEventAddRemote {
		if _, err := r.Read(e.OnionBlob[:]); err != nil {
			return nil, fmt.Errorf("htlc log: torn tail in onion blob: %w", err)
		}
	}

	return e, nil
}

func (d *DB) appendHTLCEvent(nodePub []byte, chanPoint wire.OutPoint, e *htlcLogEvent) error {
	return d.Update(func(tx *bbolt.Tx) error {
		chanBucket, err := channelBucketFor(tx, nodePub, chanPoint, true)
		if err != nil {
			return err
		}
		logBucket, err := chanBucket.CreateBucketIfNotExists(htlcLogBucket)
		if err != nil {
			return err
		}

		seq, err := logBucket.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)

		return logBucket.Put(key[:], serializeHTLCEvent(e))
	})
}

// LogHTLCAddLocal durably records an HTLC this node originated before it
// is offered to the peer.
func (d *DB) LogHTLCAddLocal(nodePub []byte, chanPoint wire.OutPoint, amountMsat uint64,
	paymentHash [32]byte, cltvExpiry uint32, onion [1366]byte) error {

	return d.appendHTLCEvent(nodePub, chanPoint, &htlcLogEvent{
		Type:        htlcEventAddLocal,
		AmountMsat:  amountMsat,
		PaymentHash: paymentHash,
		CLTVExpiry:  cltvExpiry,
		OnionBlob:   onion,
	})
}

// LogHTLCAddRemote durably records an HTLC the peer originated, keyed by
// the index they assigned it.
func (d *DB) LogHTLCAddRemote(nodePub []byte, chanPoint wire.OutPoint, htlcIndex, amountMsat uint64,
	paymentHash [32]byte, cltvExpiry uint32, onion [1366]byte) error {

	return d.appendHTLCEvent(nodePub, chanPoint, &htlcLogEvent{
		Type:        htlcEventAddRemote,
		HTLCIndex:   htlcIndex,
		AmountMsat:  amountMsat,
		PaymentHash: paymentHash,
		CLTVExpiry:  cltvExpiry,
		OnionBlob:   onion,
	})
}

// LogHTLCSettleOrFail durably records that an HTLC reached a terminal
// resolution.
func (d *DB) LogHTLCSettleOrFail(nodePub []byte, chanPoint wire.OutPoint, htlcIndex uint64) error {
	return d.appendHTLCEvent(nodePub, chanPoint, &htlcLogEvent{
		Type:      htlcEventSettleOrFail,
		HTLCIndex: htlcIndex,
	})
}

// LogHTLCRetire durably records that an HTLC has left both commitments
// for good.
func (d *DB) LogHTLCRetire(nodePub []byte, chanPoint wire.OutPoint, htlcIndex uint64) error {
	return d.appendHTLCEvent(nodePub, chanPoint, &htlcLogEvent{
		Type:      htlcEventRetire,
		HTLCIndex: htlcIndex,
	})
}

// LoadHTLCBookkeeper replays a channel's full htlc.log into a fresh
// lnwallet.HTLCBookkeeper, for use after a process restart. Torn-tail
// records (a crash mid-append) are skipped rather than aborting the
// whole replay, per spec.md's torn-tail tolerance rule; everything
// before the torn record is still recovered.
func (d *DB) LoadHTLCBookkeeper(nodePub []byte, chanPoint wire.OutPoint) (*lnwallet.HTLCBookkeeper, error) {
	b := lnwallet.NewHTLCBookkeeper()

	err := d.View(func(tx *bbolt.Tx) error {
		chanBucket, err := channelBucketFor(tx, nodePub, chanPoint, false)
		if err != nil || chanBucket == nil {
			return err
		}
		logBucket := chanBucket.Bucket(htlcLogBucket)
		if logBucket == nil {
			return nil
		}

		return logBucket.ForEach(func(_, v []byte) error {
			e, err := deserializeHTLCEvent(v)
			if err != nil {
				return nil
			}

			switch e.Type {
			case htlcEventAddLocal:
				b.AddLocal(e.AmountMsat, e.PaymentHash, e.CLTVExpiry, e.OnionBlob)
			case htlcEventAddRemote:
				b.AddRemote(e.HTLCIndex, e.AmountMsat, e.PaymentHash, e.CLTVExpiry, e.OnionBlob)
			case htlcEventSettleOrFail:
				_ = b.SettleOrFail(e.HTLCIndex)
			case htlcEventRetire:
				b.Retire(e.HTLCIndex)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}
