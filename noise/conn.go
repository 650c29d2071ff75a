package noise

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
)

// MaxPayloadLength is the largest plaintext message this transport can
// carry, matching the wire package's MaxMessagePayload.
const MaxPayloadLength = 65535

// lengthCiphertextSize is the length prefix (2 bytes) plus its own MAC
// (16 bytes), sealed and sent ahead of every payload.
const lengthCiphertextSize = 2 + 16

// Conn wraps a net.Conn with the BOLT #8 encrypted framing: every message
// is sent as an AEAD-sealed 2-byte length field, followed by the
// AEAD-sealed payload, each under its own nonce.
type Conn struct {
	net.Conn

	send *CipherState
	recv *CipherState

	remoteStatic *btcec.PublicKey
}

// Dial performs the Noise_XK initiator handshake over conn and wraps it.
func Dial(conn net.Conn, localStatic *btcec.PrivateKey, remoteStatic *btcec.PublicKey) (*Conn, error) {
	send, recv, _, err := Handshake(conn, localStatic, remoteStatic, true)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Conn{Conn: conn, send: send, recv: recv, remoteStatic: remoteStatic}, nil
}

// Accept performs the Noise_XK responder handshake over conn and wraps
// it, learning the peer's static key from act three.
func Accept(conn net.Conn, localStatic *btcec.PrivateKey) (*Conn, error) {
	send, recv, remote, err := Handshake(conn, localStatic, nil, false)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Conn{Conn: conn, send: send, recv: recv, remoteStatic: remote}, nil
}

// RemoteStatic returns the peer's static public key, as learned (for a
// responder connection) or supplied (for an initiator connection) during
// the handshake.
func (c *Conn) RemoteStatic() *btcec.PublicKey {
	return c.remoteStatic
}

// WriteMessage seals and writes one complete message.
func (c *Conn) WriteMessage(payload []byte) error {
	if len(payload) > MaxPayloadLength {
		return fmt.Errorf("noise: payload of %d bytes exceeds max %d", len(payload), MaxPayloadLength)
	}

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	lenCipher := c.send.Encrypt(nil, lenBuf[:])

	payloadCipher := c.send.Encrypt(nil, payload)

	if _, err := c.Conn.Write(lenCipher); err != nil {
		return err
	}
	_, err := c.Conn.Write(payloadCipher)
	return err
}

// ReadMessage reads, authenticates, and decrypts one complete message.
func (c *Conn) ReadMessage() ([]byte, error) {
	lenCipher := make([]byte, lengthCiphertextSize)
	if _, err := io.ReadFull(c.Conn, lenCipher); err != nil {
		return nil, err
	}
	lenBuf, err := c.recv.Decrypt(nil, lenCipher)
	if err != nil {
		return nil, fmt.Errorf("noise: decrypting length prefix: %w", err)
	}
	length := binary.BigEndian.Uint16(lenBuf)

	payloadCipher := make([]byte, int(length)+16)
	if _, err := io.ReadFull(c.Conn, payloadCipher); err != nil {
		return nil, err
	}
	payload, err := c.recv.Decrypt(nil, payloadCipher)
	if err != nil {
		return nil, fmt.Errorf("noise: decrypting payload: %w", err)
	}
	return payload, nil
}

// SetDeadline/SetReadDeadline/SetWriteDeadline are inherited from the
// embedded net.Conn but re-declared so godoc surfaces them on *Conn
// directly, matching how the teacher's brontide.Conn documents itself.
func (c *Conn) SetDeadline(t time.Time) error      { return c.Conn.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error  { return c.Conn.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.Conn.SetWriteDeadline(t) }
