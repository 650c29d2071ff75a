package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// ChainHash identifies the genesis block of the chain a channel is opened
// on. Four named values are declared below; this package does not compare
// an incoming open_channel chain hash against them or reject any value.
type ChainHash [32]byte

// Recognized chain hashes, lowest byte first as produced by
// chainhash.Hash.
var (
	MainnetChainHash = ChainHash{ /* populated by callers from chaincfg */ }
	TestnetChainHash = ChainHash{}
	SignetChainHash  = ChainHash{}
	RegtestChainHash = ChainHash{}
)

// ChannelID uniquely identifies a channel once its funding output has been
// chosen: funding_txid XOR'd with the big-endian funding output index at
// bytes 30-31 (the DESIGN FLAGS rule, not the whole-txid XOR variant some
// historical implementations used).
type ChannelID [32]byte

// NewChannelID derives the permanent channel_id from a funding outpoint.
func NewChannelID(fundingTxid [32]byte, outputIndex uint16) ChannelID {
	var id ChannelID
	copy(id[:], fundingTxid[:])
	id[30] ^= byte(outputIndex >> 8)
	id[31] ^= byte(outputIndex)
	return id
}

func (c ChannelID) String() string {
	return fmt.Sprintf("%x", c[:])
}

// ShortChannelID is the compact (blockHeight, txIndex, outputIndex) locator
// broadcast in gossip and onion payloads.
type ShortChannelID struct {
	BlockHeight uint32
	TxIndex     uint32
	OutputIndex uint16
}

// ToUint64 packs the SCID into the 8-byte on-the-wire representation:
// 3 bytes height, 3 bytes tx index, 2 bytes output index.
func (s ShortChannelID) ToUint64() uint64 {
	return uint64(s.BlockHeight)<<40 |
		uint64(s.TxIndex)<<16 |
		uint64(s.OutputIndex)
}

// NewShortChannelIDFromUint64 unpacks the wire representation.
func NewShortChannelIDFromUint64(v uint64) ShortChannelID {
	return ShortChannelID{
		BlockHeight: uint32(v >> 40),
		TxIndex:     uint32((v >> 16) & 0xffffff),
		OutputIndex: uint16(v),
	}
}

// MilliSatoshi is an amount denominated in thousandths of a satoshi, the
// unit HTLC amounts and channel-update fee fields are carried in.
type MilliSatoshi uint64

// ToSatoshis truncates down to whole satoshis.
func (m MilliSatoshi) ToSatoshis() int64 { return int64(m / 1000) }

func writeUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeBytes(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writePubKey(w io.Writer, pub *btcec.PublicKey) error {
	if pub == nil {
		return fmt.Errorf("cannot encode nil public key")
	}
	return writeBytes(w, pub.SerializeCompressed())
}

func readPubKey(r io.Reader) (*btcec.PublicKey, error) {
	raw, err := readBytes(r, 33)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(raw)
}

func writeSignature(w io.Writer, sig *ecdsa.Signature) error {
	if sig == nil {
		return fmt.Errorf("cannot encode nil signature")
	}
	// Lightning's wire format is the fixed 64-byte compact (r, s)
	// encoding, not DER.
	var b [64]byte
	rBytes := sig.R().Bytes()
	sBytes := sig.S().Bytes()
	copy(b[32-len(rBytes):32], rBytes)
	copy(b[64-len(sBytes):64], sBytes)
	return writeBytes(w, b[:])
}

func readSignature(r io.Reader) (*ecdsa.Signature, error) {
	raw, err := readBytes(r, 64)
	if err != nil {
		return nil, err
	}
	var rVal, sVal btcec.ModNScalar
	rVal.SetByteSlice(raw[:32])
	sVal.SetByteSlice(raw[32:])
	return ecdsa.NewSignature(&rVal, &sVal), nil
}
