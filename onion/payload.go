package onion

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lncore/lncore/wire"
)

// TLV types used within a hop's onion payload, per BOLT #4.
const (
	TypeAmtToForward    = 2
	TypeOutgoingCLTV    = 4
	TypeShortChannelID  = 6
	TypePaymentData     = 8
)

// HopPayload is the decoded per-hop TLV payload.
type HopPayload struct {
	AmtToForward   uint64
	OutgoingCLTV   uint32
	ShortChannelID uint64 // only set for non-final hops
	IsFinalHop     bool
	PaymentSecret  [32]byte // only set for the final hop
	TotalMsat      uint64   // only set for the final hop
}

// EncodeIntermediateHopPayload builds the fixed-size, zero-padded TLV
// payload an intermediate hop receives: where to forward, and under what
// amount/CLTV.
func EncodeIntermediateHopPayload(amtToForward uint64, outgoingCLTV uint32, scid uint64) ([]byte, error) {
	var amtBuf, cltvBuf, scidBuf bytes.Buffer
	binary.Write(&amtBuf, binary.BigEndian, amtToForward)
	binary.Write(&cltvBuf, binary.BigEndian, outgoingCLTV)
	binary.Write(&scidBuf, binary.BigEndian, scid)

	records := []wire.Record{
		{Type: TypeAmtToForward, Value: trimLeadingZeros(amtBuf.Bytes())},
		{Type: TypeOutgoingCLTV, Value: cltvBuf.Bytes()},
		{Type: TypeShortChannelID, Value: scidBuf.Bytes()},
	}

	var buf bytes.Buffer
	if err := wire.EncodeStream(&buf, records); err != nil {
		return nil, err
	}
	return padPayload(buf.Bytes())
}

// EncodeFinalHopPayload builds the fixed-size, zero-padded TLV payload
// the final hop receives: the amount and CLTV it must see, plus the
// payment_secret/total_msat pair proving knowledge of the invoice.
func EncodeFinalHopPayload(amtToForward uint64, outgoingCLTV uint32,
	paymentSecret [32]byte, totalMsat uint64) ([]byte, error) {

	var amtBuf, cltvBuf, totalBuf bytes.Buffer
	binary.Write(&amtBuf, binary.BigEndian, amtToForward)
	binary.Write(&cltvBuf, binary.BigEndian, outgoingCLTV)
	binary.Write(&totalBuf, binary.BigEndian, totalMsat)

	paymentData := append(append([]byte{}, paymentSecret[:]...), totalBuf.Bytes()...)

	records := []wire.Record{
		{Type: TypeAmtToForward, Value: trimLeadingZeros(amtBuf.Bytes())},
		{Type: TypeOutgoingCLTV, Value: cltvBuf.Bytes()},
		{Type: TypePaymentData, Value: paymentData},
	}

	var buf bytes.Buffer
	if err := wire.EncodeStream(&buf, records); err != nil {
		return nil, err
	}
	return padPayload(buf.Bytes())
}

// DecodeHopPayload parses a zero-padded TLV payload frame peeled from an
// onion packet.
func DecodeHopPayload(frame []byte) (*HopPayload, error) {
	records, err := wire.DecodeStream(unpad(frame))
	if err != nil {
		return nil, fmt.Errorf("onion: decoding hop payload tlv: %w", err)
	}

	hp := &HopPayload{}
	if r, ok := wire.FindRecord(records, TypeAmtToForward); ok {
		hp.AmtToForward = beUint64(r.Value)
	}
	if r, ok := wire.FindRecord(records, TypeOutgoingCLTV); ok {
		if len(r.Value) != 4 {
			return nil, fmt.Errorf("onion: outgoing_cltv_value must be 4 bytes")
		}
		hp.OutgoingCLTV = binary.BigEndian.Uint32(r.Value)
	}
	if r, ok := wire.FindRecord(records, TypeShortChannelID); ok {
		if len(r.Value) != 8 {
			return nil, fmt.Errorf("onion: short_channel_id must be 8 bytes")
		}
		hp.ShortChannelID = binary.BigEndian.Uint64(r.Value)
	} else {
		hp.IsFinalHop = true
	}
	if r, ok := wire.FindRecord(records, TypePaymentData); ok {
		if len(r.Value) < 40 {
			return nil, fmt.Errorf("onion: payment_data must be at least 40 bytes")
		}
		copy(hp.PaymentSecret[:], r.Value[:32])
		hp.TotalMsat = binary.BigEndian.Uint64(r.Value[32:40])
		hp.IsFinalHop = true
	}

	return hp, nil
}

func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}

func beUint64(b []byte) uint64 {
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return binary.BigEndian.Uint64(buf[:])
}

// padPayload prefixes the TLV stream with its own 2-byte big-endian
// length and zero-pads the remainder out to the fixed frame size, so
// trailing padding can never be mistaken for TLV content on decode.
func padPayload(b []byte) ([]byte, error) {
	if len(b) > payloadSize-2 {
		return nil, fmt.Errorf("onion: encoded payload of %d bytes exceeds max %d", len(b), payloadSize-2)
	}
	out := make([]byte, payloadSize)
	binary.BigEndian.PutUint16(out[:2], uint16(len(b)))
	copy(out[2:], b)
	return out, nil
}

// unpad reads the 2-byte length prefix padPayload wrote and returns
// exactly the TLV stream bytes, discarding the zero padding.
func unpad(frame []byte) []byte {
	if len(frame) < 2 {
		return nil
	}
	n := int(binary.BigEndian.Uint16(frame[:2]))
	if n > len(frame)-2 {
		n = len(frame) - 2
	}
	return frame[2 : 2+n]
}
