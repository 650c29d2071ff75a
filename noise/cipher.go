// Package noise implements the Noise_XK_secp256k1_ChaChaPoly_SHA256
// handshake and post-handshake encrypted transport used between Lightning
// peers (BOLT #8), built the way the teacher's server.go/peer.go build
// their connection layer atop the `lightningnetwork/brontide` dependency:
// a handshake state machine producing two CipherStates, then a net.Conn
// wrapper that frames every message as length||payload, each AEAD-sealed
// independently.
package noise

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// rekeyThreshold is the number of messages a CipherState may encrypt or
// decrypt before its key is rotated forward, per BOLT #8.
const rekeyThreshold = 1000

// CipherState is one direction's running AEAD key plus the nonce counter
// and chaining key needed to rotate it.
type CipherState struct {
	key   [32]byte
	nonce uint64
	ck    [32]byte

	aead cipher.AEAD
}

func newCipherState(key, chainingKey [32]byte) *CipherState {
	cs := &CipherState{key: key, ck: chainingKey}
	cs.aead = mustAEAD(key)
	return cs
}

func mustAEAD(key [32]byte) cipher.AEAD {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		panic(fmt.Sprintf("noise: building chacha20poly1305 aead: %v", err))
	}
	return aead
}

// nonceBytes builds the 12-byte little-endian nonce BOLT #8 specifies: 4
// zero bytes followed by the 8-byte counter.
func (c *CipherState) nonceBytes() [12]byte {
	var n [12]byte
	binary.LittleEndian.PutUint64(n[4:], c.nonce)
	return n
}

// Encrypt seals plaintext with associated data ad, rotating the key
// forward via HKDF every 1000 messages as BOLT #8 requires so a
// compromised key only exposes a bounded message window.
func (c *CipherState) Encrypt(ad, plaintext []byte) []byte {
	n := c.nonceBytes()
	out := c.aead.Seal(nil, n[:], plaintext, ad)
	c.advance()
	return out
}

// Decrypt opens ciphertext sealed by the peer's matching CipherState.
func (c *CipherState) Decrypt(ad, ciphertext []byte) ([]byte, error) {
	n := c.nonceBytes()
	out, err := c.aead.Open(nil, n[:], ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("noise: decrypt failed: %w", err)
	}
	c.advance()
	return out, nil
}

// rotate performs BOLT #8's key-rotation step: (ck, k) = HKDF(ck, k),
// using the chaining key as salt and the current key as input keying
// material, splitting the 64-byte output into a new chaining key and a
// new AEAD key.
func (c *CipherState) rotate() {
	var out [64]byte
	r := hkdf.New(sha256.New, c.key[:], c.ck[:], nil)
	if _, err := r.Read(out[:]); err != nil {
		panic(fmt.Sprintf("noise: rekey hkdf: %v", err))
	}

	copy(c.ck[:], out[:32])
	var newKey [32]byte
	copy(newKey[:], out[32:])
	c.key = newKey
	c.aead = mustAEAD(newKey)
}

func (c *CipherState) advance() {
	c.nonce++
	if c.nonce == rekeyThreshold {
		c.rotate()
		c.nonce = 0
	}
}
