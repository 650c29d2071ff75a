package wire

import (
	"io"
)

// Init is the first message exchanged on every connection, carrying the
// sender's global and local feature vectors plus any TLV extensions
// (networks, remote-addr). Every channel operation is blocked until both
// sides have exchanged Init.
type Init struct {
	GlobalFeatures *FeatureVector
	Features       *FeatureVector
	ExtraData      []Record
}

var _ Message = (*Init)(nil)

func (m *Init) MsgType() MessageType { return MsgInit }

func (m *Init) Encode(w io.Writer) error {
	if err := m.GlobalFeatures.Encode(w); err != nil {
		return err
	}
	if err := m.Features.Encode(w); err != nil {
		return err
	}
	return EncodeStream(w, m.ExtraData)
}

func (m *Init) Decode(r io.Reader) error {
	gf, err := DecodeFeatureVector(r)
	if err != nil {
		return err
	}
	f, err := DecodeFeatureVector(r)
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

	m.GlobalFeatures = gf
	m.Features = f
	m.ExtraData = records
	return nil
}

// Error is sent in response to a protocol violation. A zero ChannelID
// applies to the whole connection; any other value targets one channel,
// which must then be failed.
type Error struct {
	ChanID ChannelID
	Data   []byte
}

var _ Message = (*Error)(nil)

func (m *Error) MsgType() MessageType { return MsgError }

func (m *Error) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(len(m.Data))); err != nil {
		return err
	}
	return writeBytes(w, m.Data)
}

func (m *Error) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	n, err := readUint16(r)
	if err != nil {
		return err
	}
	data, err := readBytes(r, int(n))
	if err != nil {
		return err
	}
	m.Data = data
	return nil
}

// Warning is sent for recoverable peer divergence; unlike Error it does
// not imply the channel (or connection) must close.
type Warning struct {
	ChanID ChannelID
	Data   []byte
}

var _ Message = (*Warning)(nil)

func (m *Warning) MsgType() MessageType { return MsgWarning }

func (m *Warning) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ChanID[:]); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(len(m.Data))); err != nil {
		return err
	}
	return writeBytes(w, m.Data)
}

func (m *Warning) Decode(r io.Reader) error {
	id, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChanID[:], id)

	n, err := readUint16(r)
	if err != nil {
		return err
	}
	data, err := readBytes(r, int(n))
	if err != nil {
		return err
	}
	m.Data = data
	return nil
}

// MaxPongBytes bounds how large a pong body a peer may request, guarding
// against a malicious PongLen in Ping from forcing a huge allocation.
const MaxPongBytes = 65531

// Ping requests a pong of PongLen bytes; NumPadding is filler ignored by
// the receiver, used to pad the message to a target size for traffic
// analysis resistance.
type Ping struct {
	PongLen    uint16
	NumPadding uint16
}

var _ Message = (*Ping)(nil)

func (m *Ping) MsgType() MessageType { return MsgPing }

func (m *Ping) Encode(w io.Writer) error {
	if err := writeUint16(w, m.PongLen); err != nil {
		return err
	}
	if err := writeUint16(w, m.NumPadding); err != nil {
		return err
	}
	return writeBytes(w, make([]byte, m.NumPadding))
}

func (m *Ping) Decode(r io.Reader) error {
	pongLen, err := readUint16(r)
	if err != nil {
		return err
	}
	padLen, err := readUint16(r)
	if err != nil {
		return err
	}
	if _, err := readBytes(r, int(padLen)); err != nil {
		return err
	}
	m.PongLen = pongLen
	m.NumPadding = padLen
	return nil
}

// Pong is sent in response to Ping, with a body of the requested length.
type Pong struct {
	PongBytes []byte
}

var _ Message = (*Pong)(nil)

func (m *Pong) MsgType() MessageType { return MsgPong }

func (m *Pong) Encode(w io.Writer) error {
	if err := writeUint16(w, uint16(len(m.PongBytes))); err != nil {
		return err
	}
	return writeBytes(w, m.PongBytes)
}

func (m *Pong) Decode(r io.Reader) error {
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	b, err := readBytes(r, int(n))
	if err != nil {
		return err
	}
	m.PongBytes = b
	return nil
}
