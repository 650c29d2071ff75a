package wire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// ChannelFlags carries the single announce-channel bit of open_channel.
type ChannelFlags uint8

// AnnounceChannel reports whether the initiator asked for the channel to
// be publicly announced via gossip.
func (f ChannelFlags) AnnounceChannel() bool { return f&1 != 0 }

// OpenChannel is sent by the funding initiator to start the opening dance.
type OpenChannel struct {
	ChainHash            ChainHash
	TemporaryChanID      ChannelID
	FundingSatoshis      uint64
	PushMSat             uint64
	DustLimitSat         uint64
	MaxHTLCValueInFlight uint64
	ChannelReserveSat    uint64
	HTLCMinimumMsat      uint64
	FeePerKW             uint32
	CSVDelay             uint16
	MaxAcceptedHTLCs     uint16
	FundingKey           *btcec.PublicKey
	RevocationPoint      *btcec.PublicKey
	PaymentPoint         *btcec.PublicKey
	DelayedPaymentPoint  *btcec.PublicKey
	HTLCPoint            *btcec.PublicKey
	FirstCommitmentPoint *btcec.PublicKey
	ChannelFlags         ChannelFlags
	ChannelType          []byte // raw TLV value of the optional channel_type
	ExtraData            []Record
}

var _ Message = (*OpenChannel)(nil)

func (m *OpenChannel) MsgType() MessageType { return MsgOpenChannel }

func (m *OpenChannel) Encode(w io.Writer) error {
	fields := []func() error{
		func() error { return writeBytes(w, m.ChainHash[:]) },
		func() error { return writeBytes(w, m.TemporaryChanID[:]) },
		func() error { return writeUint64(w, m.FundingSatoshis) },
		func() error { return writeUint64(w, m.PushMSat) },
		func() error { return writeUint64(w, m.DustLimitSat) },
		func() error { return writeUint64(w, m.MaxHTLCValueInFlight) },
		func() error { return writeUint64(w, m.ChannelReserveSat) },
		func() error { return writeUint64(w, m.HTLCMinimumMsat) },
		func() error { return writeUint32(w, m.FeePerKW) },
		func() error { return writeUint16(w, m.CSVDelay) },
		func() error { return writeUint16(w, m.MaxAcceptedHTLCs) },
		func() error { return writePubKey(w, m.FundingKey) },
		func() error { return writePubKey(w, m.RevocationPoint) },
		func() error { return writePubKey(w, m.PaymentPoint) },
		func() error { return writePubKey(w, m.DelayedPaymentPoint) },
		func() error { return writePubKey(w, m.HTLCPoint) },
		func() error { return writePubKey(w, m.FirstCommitmentPoint) },
		func() error { return writeBytes(w, []byte{byte(m.ChannelFlags)}) },
	}
	for _, f := range fields {
		if err := f(); err != nil {
			return err
		}
	}

	var records []Record
	if len(m.ChannelType) > 0 {
		records = append(records, Record{Type: 1, Value: m.ChannelType})
	}
	records = append(records, m.ExtraData...)
	return EncodeStream(w, records)
}

func (m *OpenChannel) Decode(r io.Reader) error {
	var err error
	readField := func(f func() error) {
		if err == nil {
			err = f()
		}
	}

	readField(func() error {
		b, e := readBytes(r, 32)
		if e != nil {
			return e
		}
		copy(m.ChainHash[:], b)
		return nil
	})
	readField(func() error {
		b, e := readBytes(r, 32)
		if e != nil {
			return e
		}
		copy(m.TemporaryChanID[:], b)
		return nil
	})
	readField(func() error { m.FundingSatoshis, err = readUint64(r); return err })
	readField(func() error { m.PushMSat, err = readUint64(r); return err })
	readField(func() error { m.DustLimitSat, err = readUint64(r); return err })
	readField(func() error { m.MaxHTLCValueInFlight, err = readUint64(r); return err })
	readField(func() error { m.ChannelReserveSat, err = readUint64(r); return err })
	readField(func() error { m.HTLCMinimumMsat, err = readUint64(r); return err })
	readField(func() error { m.FeePerKW, err = readUint32(r); return err })
	readField(func() error { m.CSVDelay, err = readUint16(r); return err })
	readField(func() error { m.MaxAcceptedHTLCs, err = readUint16(r); return err })
	readField(func() error { m.FundingKey, err = readPubKey(r); return err })
	readField(func() error { m.RevocationPoint, err = readPubKey(r); return err })
	readField(func() error { m.PaymentPoint, err = readPubKey(r); return err })
	readField(func() error { m.DelayedPaymentPoint, err = readPubKey(r); return err })
	readField(func() error { m.HTLCPoint, err = readPubKey(r); return err })
	readField(func() error { m.FirstCommitmentPoint, err = readPubKey(r); return err })
	readField(func() error {
		b, e := readBytes(r, 1)
		if e != nil {
			return e
		}
		m.ChannelFlags = ChannelFlags(b[0])
		return nil
	})
	if err != nil {
		return err
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	records, err := DecodeStream(rest)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.Type == 1 {
			m.ChannelType = rec.Value
			continue
		}
		if IsUnknownEven(rec.Type, nil) {
			return &UnknownEvenTypeError{Type: rec.Type}
		}
		m.ExtraData = append(m.ExtraData, rec)
	}
	return nil
}

// UnknownEvenTypeError is returned when a TLV stream contains an even type
// this decoder does not understand.
type UnknownEvenTypeError struct {
	Type uint64
}

func (e *UnknownEvenTypeError) Error() string {
	return "unknown required (even) TLV type"
}

// AcceptChannel is the responder's reply to OpenChannel.
type AcceptChannel struct {
	TemporaryChanID      ChannelID
	DustLimitSat         uint64
	MaxHTLCValueInFlight uint64
	ChannelReserveSat    uint64
	HTLCMinimumMsat      uint64
	MinimumDepth         uint32
	CSVDelay             uint16
	MaxAcceptedHTLCs     uint16
	FundingKey           *btcec.PublicKey
	RevocationPoint      *btcec.PublicKey
	PaymentPoint         *btcec.PublicKey
	DelayedPaymentPoint  *btcec.PublicKey
	HTLCPoint            *btcec.PublicKey
	FirstCommitmentPoint *btcec.PublicKey
	ChannelType          []byte
	ExtraData            []Record
}

var _ Message = (*AcceptChannel)(nil)

func (m *AcceptChannel) MsgType() MessageType { return MsgAcceptChannel }

func (m *AcceptChannel) Encode(w io.Writer) error {
	if err := writeBytes(w, m.TemporaryChanID[:]); err != nil {
		return err
	}
	for _, v := range []uint64{
		m.DustLimitSat, m.MaxHTLCValueInFlight, m.ChannelReserveSat,
		m.HTLCMinimumMsat,
	} {
		if err := writeUint64(w, v); err != nil {
			return err
		}
	}
	if err := writeUint32(w, m.MinimumDepth); err != nil {
		return err
	}
	if err := writeUint16(w, m.CSVDelay); err != nil {
		return err
	}
	if err := writeUint16(w, m.MaxAcceptedHTLCs); err != nil {
		return err
	}
	for _, k := range []*btcec.PublicKey{
		m.FundingKey, m.RevocationPoint, m.PaymentPoint,
		m.DelayedPaymentPoint, m.HTLCPoint, m.FirstCommitmentPoint,
	} {
		if err := writePubKey(w, k); err != nil {
			return err
		}
	}

	var records []Record
	if len(m.ChannelType) > 0 {
		records = append(records, Record{Type: 1, Value: m.ChannelType})
	}
	records = append(records, m.ExtraData...)
	return EncodeStream(w, records)
}

func (m *AcceptChannel) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.TemporaryChanID[:], id)

	vals := make([]*uint64, 4)
	vals[0], vals[1], vals[2], vals[3] =
		&m.DustLimitSat, &m.MaxHTLCValueInFlight,
		&m.ChannelReserveSat, &m.HTLCMinimumMsat
	for _, v := range vals {
		*v, err = readUint64(r)
		if err != nil {
			return err
		}
	}
	if m.MinimumDepth, err = readUint32(r); err != nil {
		return err
	}
	if m.CSVDelay, err = readUint16(r); err != nil {
		return err
	}
	if m.MaxAcceptedHTLCs, err = readUint16(r); err != nil {
		return err
	}

	keys := []**btcec.PublicKey{
		&m.FundingKey, &m.RevocationPoint, &m.PaymentPoint,
		&m.DelayedPaymentPoint, &m.HTLCPoint, &m.FirstCommitmentPoint,
	}
	for _, k := range keys {
		*k, err = readPubKey(r)
		if err != nil {
			return err
		}
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	records, err := DecodeStream(rest)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.Type == 1 {
			m.ChannelType = rec.Value
			continue
		}
		if IsUnknownEven(rec.Type, nil) {
			return &UnknownEvenTypeError{Type: rec.Type}
		}
		m.ExtraData = append(m.ExtraData, rec)
	}
	return nil
}

// FundingCreated carries the funding outpoint and the initiator's
// signature on the responder's initial commitment.
type FundingCreated struct {
	TemporaryChanID ChannelID
	FundingTxid     [32]byte
	FundingOutIndex uint16
	Signature       *ecdsa.Signature
}

var _ Message = (*FundingCreated)(nil)

func (m *FundingCreated) MsgType() MessageType { return MsgFundingCreated }

func (m *FundingCreated) Encode(w io.Writer) error {
	if err := writeBytes(w, m.TemporaryChanID[:]); err != nil {
		return err
	}
	if err := writeBytes(w, m.FundingTxid[:]); err != nil {
		return err
	}
	if err := writeUint16(w, m.FundingOutIndex); err != nil {
		return err
	}
	return writeSignature(w, m.Signature)
}

func (m *FundingCreated) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.TemporaryChanID[:], id)

	txid, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.FundingTxid[:], txid)

	if m.FundingOutIndex, err = readUint16(r); err != nil {
		return err
	}
	m.Signature, err = readSignature(r)
	return err
}

// FundingSigned carries the responder's signature on the initiator's
// initial commitment, after which the channel_id becomes permanent.
type FundingSigned struct {
	ChanID    ChannelID
	Signature *ecdsa.Signature
}

var _ Message = (*FundingSigned)(nil)

func (m *FundingSigned) MsgType() MessageType { return MsgFundingSigned }

func (m *FundingSigned) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	return writeSignature(w, m.Signature)
}

func (m *FundingSigned) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)
	m.Signature, err = readSignature(r)
	return err
}

// ChannelReady is exchanged once minimum_depth confirmations are seen; it
// carries the next per-commitment point.
type ChannelReady struct {
	ChanID               ChannelID
	NextPerCommitPoint   *btcec.PublicKey
	ExtraData            []Record
}

var _ Message = (*ChannelReady)(nil)

func (m *ChannelReady) MsgType() MessageType { return MsgChannelReady }

func (m *ChannelReady) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writePubKey(w, m.NextPerCommitPoint); err != nil {
		return err
	}
	return EncodeStream(w, m.ExtraData)
}

func (m *ChannelReady) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	if m.NextPerCommitPoint, err = readPubKey(r); err != nil {
		return err
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.ExtraData, err = DecodeStream(rest)
	return err
}

// Shutdown begins cooperative close negotiation.
type Shutdown struct {
	ChanID      ChannelID
	ScriptPubKey []byte
}

var _ Message = (*Shutdown)(nil)

func (m *Shutdown) MsgType() MessageType { return MsgShutdown }

func (m *Shutdown) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(len(m.ScriptPubKey))); err != nil {
		return err
	}
	return writeBytes(w, m.ScriptPubKey)
}

func (m *Shutdown) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	n, err := readUint16(r)
	if err != nil {
		return err
	}
	m.ScriptPubKey, err = readBytes(r, int(n))
	return err
}

// ClosingSigned proposes a fee during closing-fee negotiation.
type ClosingSigned struct {
	ChanID    ChannelID
	FeeSat    uint64
	Signature *ecdsa.Signature
}

var _ Message = (*ClosingSigned)(nil)

func (m *ClosingSigned) MsgType() MessageType { return MsgClosingSigned }

func (m *ClosingSigned) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writeUint64(w, m.FeeSat); err != nil {
		return err
	}
	return writeSignature(w, m.Signature)
}

func (m *ClosingSigned) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	if m.FeeSat, err = readUint64(r); err != nil {
		return err
	}
	m.Signature, err = readSignature(r)
	return err
}

// UpdateAddHTLC proposes a new HTLC.
type UpdateAddHTLC struct {
	ChanID      ChannelID
	ID          uint64
	AmountMsat  uint64
	PaymentHash [32]byte
	CLTVExpiry  uint32
	OnionBlob   [1366]byte
}

var _ Message = (*UpdateAddHTLC)(nil)

func (m *UpdateAddHTLC) MsgType() MessageType { return MsgUpdateAddHTLC }

func (m *UpdateAddHTLC) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writeUint64(w, m.ID); err != nil {
		return err
	}
	if err := writeUint64(w, m.AmountMsat); err != nil {
		return err
	}
	if err := writeBytes(w, m.PaymentHash[:]); err != nil {
		return err
	}
	if err := writeUint32(w, m.CLTVExpiry); err != nil {
		return err
	}
	return writeBytes(w, m.OnionBlob[:])
}

func (m *UpdateAddHTLC) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	if m.ID, err = readUint64(r); err != nil {
		return err
	}
	if m.AmountMsat, err = readUint64(r); err != nil {
		return err
	}
	hash, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.PaymentHash[:], hash)

	if m.CLTVExpiry, err = readUint32(r); err != nil {
		return err
	}
	onion, err := readBytes(r, 1366)
	if err != nil {
		return err
	}
	copy(m.OnionBlob[:], onion)
	return nil
}

// UpdateFulfillHTLC settles an HTLC by revealing its preimage.
type UpdateFulfillHTLC struct {
	ChanID          ChannelID
	ID              uint64
	PaymentPreimage [32]byte
}

var _ Message = (*UpdateFulfillHTLC)(nil)

func (m *UpdateFulfillHTLC) MsgType() MessageType { return MsgUpdateFulfillHTLC }

func (m *UpdateFulfillHTLC) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writeUint64(w, m.ID); err != nil {
		return err
	}
	return writeBytes(w, m.PaymentPreimage[:])
}

func (m *UpdateFulfillHTLC) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	if m.ID, err = readUint64(r); err != nil {
		return err
	}
	pre, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.PaymentPreimage[:], pre)
	return nil
}

// UpdateFailHTLC fails an HTLC with an opaque onion-encrypted reason.
type UpdateFailHTLC struct {
	ChanID ChannelID
	ID     uint64
	Reason []byte
}

var _ Message = (*UpdateFailHTLC)(nil)

func (m *UpdateFailHTLC) MsgType() MessageType { return MsgUpdateFailHTLC }

func (m *UpdateFailHTLC) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writeUint64(w, m.ID); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(len(m.Reason))); err != nil {
		return err
	}
	return writeBytes(w, m.Reason)
}

func (m *UpdateFailHTLC) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	if m.ID, err = readUint64(r); err != nil {
		return err
	}
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	m.Reason, err = readBytes(r, int(n))
	return err
}

// UpdateFailMalformedHTLC fails an HTLC whose onion could not be parsed at
// all, so no encrypted reason can be built; the sha256 of the onion and a
// failure code are sent in the clear instead.
type UpdateFailMalformedHTLC struct {
	ChanID       ChannelID
	ID           uint64
	ShaOnionBlob [32]byte
	FailureCode  uint16
}

var _ Message = (*UpdateFailMalformedHTLC)(nil)

func (m *UpdateFailMalformedHTLC) MsgType() MessageType {
	return MsgUpdateFailMalformedHTLC
}

func (m *UpdateFailMalformedHTLC) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writeUint64(w, m.ID); err != nil {
		return err
	}
	if err := writeBytes(w, m.ShaOnionBlob[:]); err != nil {
		return err
	}
	return writeUint16(w, m.FailureCode)
}

func (m *UpdateFailMalformedHTLC) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	if m.ID, err = readUint64(r); err != nil {
		return err
	}
	sha, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ShaOnionBlob[:], sha)

	m.FailureCode, err = readUint16(r)
	return err
}

// CommitmentSigned carries the signature for the peer's new commitment
// transaction plus one signature per HTLC output on it.
type CommitmentSigned struct {
	ChanID        ChannelID
	CommitSig     *ecdsa.Signature
	HTLCSigs      []*ecdsa.Signature
}

var _ Message = (*CommitmentSigned)(nil)

func (m *CommitmentSigned) MsgType() MessageType { return MsgCommitmentSigned }

func (m *CommitmentSigned) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writeSignature(w, m.CommitSig); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(len(m.HTLCSigs))); err != nil {
		return err
	}
	for _, sig := range m.HTLCSigs {
		if err := writeSignature(w, sig); err != nil {
			return err
		}
	}
	return nil
}

func (m *CommitmentSigned) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	if m.CommitSig, err = readSignature(r); err != nil {
		return err
	}
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	m.HTLCSigs = make([]*ecdsa.Signature, n)
	for i := range m.HTLCSigs {
		m.HTLCSigs[i], err = readSignature(r)
		if err != nil {
			return err
		}
	}
	return nil
}

// RevokeAndAck releases the previous commitment's revocation secret and
// announces the per-commitment point for two commitments ahead.
type RevokeAndAck struct {
	ChanID             ChannelID
	Revocation         [32]byte
	NextPerCommitPoint *btcec.PublicKey
}

var _ Message = (*RevokeAndAck)(nil)

func (m *RevokeAndAck) MsgType() MessageType { return MsgRevokeAndAck }

func (m *RevokeAndAck) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writeBytes(w, m.Revocation[:]); err != nil {
		return err
	}
	return writePubKey(w, m.NextPerCommitPoint)
}

func (m *RevokeAndAck) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	rev, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.Revocation[:], rev)

	m.NextPerCommitPoint, err = readPubKey(r)
	return err
}

// UpdateFee updates the commitment feerate; only the funder may send it.
type UpdateFee struct {
	ChanID   ChannelID
	FeePerKW uint32
}

var _ Message = (*UpdateFee)(nil)

func (m *UpdateFee) MsgType() MessageType { return MsgUpdateFee }

func (m *UpdateFee) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	return writeUint32(w, m.FeePerKW)
}

func (m *UpdateFee) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)
	m.FeePerKW, err = readUint32(r)
	return err
}

// ChannelReestablish is exchanged after reconnect to recover channel sync.
type ChannelReestablish struct {
	ChanID                      ChannelID
	NextCommitmentNumber        uint64
	NextRevocationNumber        uint64
	YourLastPerCommitmentSecret [32]byte
	MyCurrentPerCommitmentPoint *btcec.PublicKey
}

var _ Message = (*ChannelReestablish)(nil)

func (m *ChannelReestablish) MsgType() MessageType { return MsgChannelReestablish }

func (m *ChannelReestablish) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writeUint64(w, m.NextCommitmentNumber); err != nil {
		return err
	}
	if err := writeUint64(w, m.NextRevocationNumber); err != nil {
		return err
	}
	if err := writeBytes(w, m.YourLastPerCommitmentSecret[:]); err != nil {
		return err
	}
	return writePubKey(w, m.MyCurrentPerCommitmentPoint)
}

func (m *ChannelReestablish) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	if m.NextCommitmentNumber, err = readUint64(r); err != nil {
		return err
	}
	if m.NextRevocationNumber, err = readUint64(r); err != nil {
		return err
	}
	secret, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.YourLastPerCommitmentSecret[:], secret)

	m.MyCurrentPerCommitmentPoint, err = readPubKey(r)
	return err
}
