package wire

import (
	"bytes"
	"fmt"
	"io"
)

// MaxMessagePayload is the maximum bytes a message body can be, matching
// BOLT #1's limit on pre-Noise-framing message size.
const MaxMessagePayload = 65535

// MessageType is the unique 2-byte big-endian integer that identifies a
// message on the wire. Lightning messages carry no length or checksum of
// their own: that's the Noise transport's job.
type MessageType uint16

// Message type numbers observed in this core, per BOLT #1/#2/#7/#9.
const (
	MsgInit    MessageType = 16
	MsgError   MessageType = 17
	MsgWarning MessageType = 1
	MsgPing    MessageType = 18
	MsgPong    MessageType = 19

	MsgOpenChannel     MessageType = 32
	MsgAcceptChannel   MessageType = 33
	MsgFundingCreated  MessageType = 34
	MsgFundingSigned   MessageType = 35
	MsgChannelReady    MessageType = 36
	MsgShutdown        MessageType = 38
	MsgClosingSigned   MessageType = 39

	MsgUpdateAddHTLC            MessageType = 128
	MsgUpdateFulfillHTLC        MessageType = 130
	MsgUpdateFailHTLC           MessageType = 131
	MsgCommitmentSigned         MessageType = 132
	MsgRevokeAndAck             MessageType = 133
	MsgUpdateFee                MessageType = 134
	MsgUpdateFailMalformedHTLC  MessageType = 135
	MsgChannelReestablish       MessageType = 136

	MsgChannelAnnouncement MessageType = 256
	MsgNodeAnnouncement    MessageType = 257
	MsgChannelUpdate       MessageType = 258

	MsgSpliceInit   MessageType = 74
	MsgSpliceAck    MessageType = 76
	MsgSpliceLocked MessageType = 78
)

// UnknownMessage records a message type this codec cannot decode.
type UnknownMessage struct {
	Type MessageType
}

func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("unable to parse message of unknown type: %d", u.Type)
}

// Message is implemented by every BOLT message struct. Decode/Encode take
// no protocol-version argument (unlike the teacher's pver convention)
// because this core targets a single, current wire version; TLV extension
// points inside individual messages handle forward compatibility instead.
type Message interface {
	Decode(r io.Reader) error
	Encode(w io.Writer) error
	MsgType() MessageType
}

func makeEmptyMessage(msgType MessageType) (Message, error) {
	switch msgType {
	case MsgInit:
		return &Init{}, nil
	case MsgError:
		return &Error{}, nil
	case MsgWarning:
		return &Warning{}, nil
	case MsgPing:
		return &Ping{}, nil
	case MsgPong:
		return &Pong{}, nil
	case MsgOpenChannel:
		return &OpenChannel{}, nil
	case MsgAcceptChannel:
		return &AcceptChannel{}, nil
	case MsgFundingCreated:
		return &FundingCreated{}, nil
	case MsgFundingSigned:
		return &FundingSigned{}, nil
	case MsgChannelReady:
		return &ChannelReady{}, nil
	case MsgShutdown:
		return &Shutdown{}, nil
	case MsgClosingSigned:
		return &ClosingSigned{}, nil
	case MsgUpdateAddHTLC:
		return &UpdateAddHTLC{}, nil
	case MsgUpdateFulfillHTLC:
		return &UpdateFulfillHTLC{}, nil
	case MsgUpdateFailHTLC:
		return &UpdateFailHTLC{}, nil
	case MsgCommitmentSigned:
		return &CommitmentSigned{}, nil
	case MsgRevokeAndAck:
		return &RevokeAndAck{}, nil
	case MsgUpdateFee:
		return &UpdateFee{}, nil
	case MsgUpdateFailMalformedHTLC:
		return &UpdateFailMalformedHTLC{}, nil
	case MsgChannelReestablish:
		return &ChannelReestablish{}, nil
	case MsgChannelAnnouncement:
		return &ChannelAnnouncement{}, nil
	case MsgNodeAnnouncement:
		return &NodeAnnouncement{}, nil
	case MsgChannelUpdate:
		return &ChannelUpdate{}, nil
	default:
		return nil, &UnknownMessage{Type: msgType}
	}
}

// WriteMessage serializes msg with its 2-byte type header into w.
func WriteMessage(w io.Writer, msg Message) (int, error) {
	var body bytes.Buffer
	if err := msg.Encode(&body); err != nil {
		return 0, err
	}
	if body.Len() > MaxMessagePayload {
		return 0, fmt.Errorf("message payload too large: %d bytes "+
			"encoded, max is %d", body.Len(), MaxMessagePayload)
	}

	var header [2]byte
	header[0] = byte(msg.MsgType() >> 8)
	header[1] = byte(msg.MsgType())

	n, err := w.Write(header[:])
	if err != nil {
		return n, err
	}
	m, err := w.Write(body.Bytes())
	return n + m, err
}

// ReadMessage reads the 2-byte type header and decodes the body.
func ReadMessage(r io.Reader) (Message, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	msgType := MessageType(header[0])<<8 | MessageType(header[1])

	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(r); err != nil {
		return nil, err
	}
	return msg, nil
}
