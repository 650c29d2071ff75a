package wire

import (
	"io"
	"net"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// RGB is the node's preferred display color.
type RGB struct {
	Red, Green, Blue uint8
}

// Alias is a 32-byte, NUL-padded UTF-8 string used to display a node's
// human-friendly name. Aliases are not unique.
type Alias [32]byte

func (a Alias) String() string {
	n := len(a)
	for n > 0 && a[n-1] == 0 {
		n--
	}
	return string(a[:n])
}

// ChannelAnnouncement proves channel ownership with four signatures: both
// nodes' identity keys and both nodes' bitcoin (funding) keys, each over
// the message contents with the signature fields themselves stripped.
type ChannelAnnouncement struct {
	NodeSig1, NodeSig2     *ecdsa.Signature
	BitcoinSig1, BitcoinSig2 *ecdsa.Signature
	Features               *FeatureVector
	ChainHash              ChainHash
	ShortChannelID         ShortChannelID
	NodeID1, NodeID2       *btcec.PublicKey
	BitcoinKey1, BitcoinKey2 *btcec.PublicKey
	ExtraData              []Record
}

var _ Message = (*ChannelAnnouncement)(nil)

func (m *ChannelAnnouncement) MsgType() MessageType { return MsgChannelAnnouncement }

// DataToSign returns the portion of the message covered by all four
// signatures: everything after the signature fields.
func (m *ChannelAnnouncement) DataToSign(w io.Writer) error {
	if err := m.Features.Encode(w); err != nil {
		return err
	}
	if err := writeBytes(w, m.ChainHash[:]); err != nil {
		return err
	}
	if err := writeUint64(w, m.ShortChannelID.ToUint64()); err != nil {
		return err
	}
	for _, k := range []*btcec.PublicKey{
		m.NodeID1, m.NodeID2, m.BitcoinKey1, m.BitcoinKey2,
	} {
		if err := writePubKey(w, k); err != nil {
			return err
		}
	}
	return nil
}

func (m *ChannelAnnouncement) Encode(w io.Writer) error {
	for _, sig := range []*ecdsa.Signature{
		m.NodeSig1, m.NodeSig2, m.BitcoinSig1, m.BitcoinSig2,
	} {
		if err := writeSignature(w, sig); err != nil {
			return err
		}
	}
	if err := m.DataToSign(w); err != nil {
		return err
	}
	return EncodeStream(w, m.ExtraData)
}

func (m *ChannelAnnouncement) Decode(r io.Reader) error {
	var err error
	sigs := make([]**ecdsa.Signature, 4)
	sigs[0], sigs[1], sigs[2], sigs[3] =
		&m.NodeSig1, &m.NodeSig2, &m.BitcoinSig1, &m.BitcoinSig2
	for _, s := range sigs {
		*s, err = readSignature(r)
		if err != nil {
			return err
		}
	}

	if m.Features, err = DecodeFeatureVector(r); err != nil {
		return err
	}
	ch, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChainHash[:], ch)

	scid, err := readUint64(r)
	if err != nil {
		return err
	}
	m.ShortChannelID = NewShortChannelIDFromUint64(scid)

	keys := []**btcec.PublicKey{
		&m.NodeID1, &m.NodeID2, &m.BitcoinKey1, &m.BitcoinKey2,
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
	m.ExtraData, err = DecodeStream(rest)
	return err
}

// NodeAnnouncement announces node presence, features, color, alias, and
// reachable addresses, self-signed by the node's identity key.
type NodeAnnouncement struct {
	Signature *ecdsa.Signature
	Features  *FeatureVector
	Timestamp uint32
	NodeID    *btcec.PublicKey
	RGBColor  RGB
	Alias     Alias
	Addresses []net.Addr
	ExtraData []Record
}

var _ Message = (*NodeAnnouncement)(nil)

func (m *NodeAnnouncement) MsgType() MessageType { return MsgNodeAnnouncement }

func (m *NodeAnnouncement) DataToSign(w io.Writer) error {
	if err := m.Features.Encode(w); err != nil {
		return err
	}
	if err := writeUint32(w, m.Timestamp); err != nil {
		return err
	}
	if err := writePubKey(w, m.NodeID); err != nil {
		return err
	}
	if err := writeBytes(w, []byte{m.RGBColor.Red, m.RGBColor.Green, m.RGBColor.Blue}); err != nil {
		return err
	}
	if err := writeBytes(w, m.Alias[:]); err != nil {
		return err
	}
	return encodeAddresses(w, m.Addresses)
}

func (m *NodeAnnouncement) Encode(w io.Writer) error {
	if err := writeSignature(w, m.Signature); err != nil {
		return err
	}
	if err := m.DataToSign(w); err != nil {
		return err
	}
	return EncodeStream(w, m.ExtraData)
}

func (m *NodeAnnouncement) Decode(r io.Reader) error {
	var err error
	if m.Signature, err = readSignature(r); err != nil {
		return err
	}
	if m.Features, err = DecodeFeatureVector(r); err != nil {
		return err
	}
	if m.Timestamp, err = readUint32(r); err != nil {
		return err
	}
	if m.NodeID, err = readPubKey(r); err != nil {
		return err
	}
	rgb, err := readBytes(r, 3)
	if err != nil {
		return err
	}
	m.RGBColor = RGB{rgb[0], rgb[1], rgb[2]}

	alias, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.Alias[:], alias)

	m.Addresses, err = decodeAddresses(r)
	if err != nil {
		return err
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.ExtraData, err = DecodeStream(rest)
	return err
}

// addrTypeIPv4, addrTypeIPv6 match BOLT #7's address descriptor bytes.
const (
	addrTypeIPv4 = 1
	addrTypeIPv6 = 2
)

func encodeAddresses(w io.Writer, addrs []net.Addr) error {
	var body []byte
	for _, addr := range addrs {
		tcpAddr, ok := addr.(*net.TCPAddr)
		if !ok {
			continue
		}
		if ip4 := tcpAddr.IP.To4(); ip4 != nil {
			body = append(body, addrTypeIPv4)
			body = append(body, ip4...)
		} else {
			body = append(body, addrTypeIPv6)
			body = append(body, tcpAddr.IP.To16()...)
		}
		body = append(body, byte(tcpAddr.Port>>8), byte(tcpAddr.Port))
	}
	if err := writeUint16(w, uint16(len(body))); err != nil {
		return err
	}
	return writeBytes(w, body)
}

func decodeAddresses(r io.Reader) ([]net.Addr, error) {
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	raw, err := readBytes(r, int(n))
	if err != nil {
		return nil, err
	}

	var addrs []net.Addr
	for len(raw) > 0 {
		switch raw[0] {
		case addrTypeIPv4:
			if len(raw) < 7 {
				return addrs, nil
			}
			ip := net.IP(raw[1:5])
			port := int(raw[5])<<8 | int(raw[6])
			addrs = append(addrs, &net.TCPAddr{IP: ip, Port: port})
			raw = raw[7:]
		case addrTypeIPv6:
			if len(raw) < 19 {
				return addrs, nil
			}
			ip := net.IP(raw[1:17])
			port := int(raw[17])<<8 | int(raw[18])
			addrs = append(addrs, &net.TCPAddr{IP: ip, Port: port})
			raw = raw[19:]
		default:
			return addrs, nil
		}
	}
	return addrs, nil
}

// ChannelUpdate announces one direction's forwarding policy for a channel.
type ChannelUpdate struct {
	Signature       *ecdsa.Signature
	ChainHash       ChainHash
	ShortChannelID  ShortChannelID
	Timestamp       uint32
	MessageFlags    uint8
	ChannelFlags    uint8
	CLTVExpiryDelta uint16
	HTLCMinimumMsat uint64
	BaseFeeMsat     uint32
	FeeProportionalMillionths uint32
	HTLCMaximumMsat uint64
	ExtraData       []Record
}

var _ Message = (*ChannelUpdate)(nil)

// Disabled reports whether the disable bit (bit 1) of ChannelFlags marks
// this edge as temporarily unusable.
func (m *ChannelUpdate) Disabled() bool { return m.ChannelFlags&2 != 0 }

// Direction reports which of the channel's two endpoints originated this
// update: 0 for node_1, 1 for node_2.
func (m *ChannelUpdate) Direction() uint8 { return m.ChannelFlags & 1 }

func (m *ChannelUpdate) MsgType() MessageType { return MsgChannelUpdate }

func (m *ChannelUpdate) DataToSign(w io.Writer) error {
	if err := writeBytes(w, m.ChainHash[:]); err != nil {
		return err
	}
	if err := writeUint64(w, m.ShortChannelID.ToUint64()); err != nil {
		return err
	}
	if err := writeUint32(w, m.Timestamp); err != nil {
		return err
	}
	if err := writeBytes(w, []byte{m.MessageFlags, m.ChannelFlags}); err != nil {
		return err
	}
	if err := writeUint16(w, m.CLTVExpiryDelta); err != nil {
		return err
	}
	if err := writeUint64(w, m.HTLCMinimumMsat); err != nil {
		return err
	}
	if err := writeUint32(w, m.BaseFeeMsat); err != nil {
		return err
	}
	if err := writeUint32(w, m.FeeProportionalMillionths); err != nil {
		return err
	}
	return writeUint64(w, m.HTLCMaximumMsat)
}

func (m *ChannelUpdate) Encode(w io.Writer) error {
	if err := writeSignature(w, m.Signature); err != nil {
		return err
	}
	if err := m.DataToSign(w); err != nil {
		return err
	}
	return EncodeStream(w, m.ExtraData)
}

func (m *ChannelUpdate) Decode(r io.Reader) error {
	var err error
	if m.Signature, err = readSignature(r); err != nil {
		return err
	}
	ch, err := readBytes(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChainHash[:], ch)

	scid, err := readUint64(r)
	if err != nil {
		return err
	}
	m.ShortChannelID = NewShortChannelIDFromUint64(scid)

	if m.Timestamp, err = readUint32(r); err != nil {
		return err
	}
	flags, err := readBytes(r, 2)
	if err != nil {
		return err
	}
	m.MessageFlags, m.ChannelFlags = flags[0], flags[1]

	if m.CLTVExpiryDelta, err = readUint16(r); err != nil {
		return err
	}
	if m.HTLCMinimumMsat, err = readUint64(r); err != nil {
		return err
	}
	if m.BaseFeeMsat, err = readUint32(r); err != nil {
		return err
	}
	if m.FeeProportionalMillionths, err = readUint32(r); err != nil {
		return err
	}
	if m.HTLCMaximumMsat, err = readUint64(r); err != nil {
		return err
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.ExtraData, err = DecodeStream(rest)
	return err
}
