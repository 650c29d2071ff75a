// Package onion implements the Sphinx mix-format packet used to route an
// HTLC through a chain of hops without any hop but the sender learning the
// full path (BOLT #4). Grounded conceptually on the teacher's dependency
// on `github.com/lightningnetwork/lightning-onion` (referenced from
// server.go's onion processor wiring); since that package is not part of
// the example pack's source, the mix-header construction here is written
// from the Sphinx algorithm itself rather than copied from a teacher file.
package onion

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
)

const (
	// Version is the only onion packet version this core understands.
	Version = 0x00

	// RoutingInfoSize is the fixed size, in bytes, of the routing-info
	// field regardless of how many hops the route actually has; shorter
	// routes pad the remainder with pseudorandom filler so an observer
	// (including intermediate hops) cannot infer the route length.
	RoutingInfoSize = 1300

	// HMACSize is the size of the integrity tag carried once per packet.
	HMACSize = 32

	// frameSize is the fixed per-hop slice of the routing-info field:
	// a TLV-encoded, zero-padded payload plus the HMAC the hop must
	// present to authenticate the remainder of the packet once peeled.
	payloadSize = 64
	frameSize   = payloadSize + HMACSize

	// MaxHops is the maximum route length a packet can carry.
	MaxHops = RoutingInfoSize / frameSize

	// PacketSize is the total wire size of a Packet: 1-byte version,
	// 33-byte compressed ephemeral pubkey, RoutingInfoSize, HMACSize.
	PacketSize = 1 + 33 + RoutingInfoSize + HMACSize
)

// Packet is one hop's view of a Sphinx onion packet.
type Packet struct {
	Version      byte
	EphemeralKey *btcec.PublicKey
	RoutingInfo  [RoutingInfoSize]byte
	HMAC         [HMACSize]byte
}

// Encode serializes the packet to its fixed 1366-byte wire form.
func (p *Packet) Encode() []byte {
	out := make([]byte, 0, PacketSize)
	out = append(out, p.Version)
	out = append(out, p.EphemeralKey.SerializeCompressed()...)
	out = append(out, p.RoutingInfo[:]...)
	out = append(out, p.HMAC[:]...)
	return out
}

// DecodePacket parses a fixed 1366-byte onion blob.
func DecodePacket(b []byte) (*Packet, error) {
	if len(b) != PacketSize {
		return nil, fmt.Errorf("onion: packet must be %d bytes, got %d", PacketSize, len(b))
	}
	if b[0] != Version {
		return nil, fmt.Errorf("onion: unsupported version %d", b[0])
	}
	key, err := btcec.ParsePubKey(b[1:34])
	if err != nil {
		return nil, fmt.Errorf("onion: parsing ephemeral key: %w", err)
	}

	p := &Packet{Version: b[0], EphemeralKey: key}
	copy(p.RoutingInfo[:], b[34:34+RoutingInfoSize])
	copy(p.HMAC[:], b[34+RoutingInfoSize:])
	return p, nil
}

// sharedSecret derives the per-hop shared secret and the blinding factor
// applied to the ephemeral key for the next hop, from an ECDH of the
// (already-blinded) session key against the hop's node pubkey.
func sharedSecret(sessionPriv *btcec.PrivateKey, nodePub *btcec.PublicKey) [32]byte {
	var pt btcec.JacobianPoint
	nodePub.AsJacobian(&pt)

	var scalar btcec.ModNScalar
	scalar.Set(&sessionPriv.Key)

	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&scalar, &pt, &result)
	result.ToAffine()

	return sha256.Sum256(result.X.Bytes()[:])
}

// blindingFactor computes b = SHA256(ephemeralPubKey || sharedSecret),
// the scalar the next hop's ephemeral key and the sender's running
// session scalar are both multiplied by.
func blindingFactor(ephemeralPub *btcec.PublicKey, secret [32]byte) [32]byte {
	h := sha256.New()
	h.Write(ephemeralPub.SerializeCompressed())
	h.Write(secret[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func tweakScalar(priv *btcec.PrivateKey, factor [32]byte) *btcec.PrivateKey {
	var f, k, product btcec.ModNScalar
	f.SetBytes(&factor)
	k.Set(&priv.Key)
	product.Mul2(&k, &f)
	out, _ := btcec.PrivKeyFromBytes(product.Bytes()[:])
	return out
}

func tweakPoint(pub *btcec.PublicKey, factor [32]byte) *btcec.PublicKey {
	var f btcec.ModNScalar
	f.SetBytes(&factor)

	var pt, result btcec.JacobianPoint
	pub.AsJacobian(&pt)
	btcec.ScalarMultNonConst(&f, &pt, &result)
	result.ToAffine()
	return btcec.NewPublicKey(&result.X, &result.Y)
}

// generateKey derives a purpose-specific key from a hop's shared secret
// via HMAC-SHA256 keyed by the purpose string, the scheme BOLT #4's
// Sphinx construction uses for rho (routing-info stream cipher key), mu
// (HMAC key), and um (failure-message HMAC key).
func generateKey(purpose string, secret [32]byte) [32]byte {
	mac := hmac.New(sha256.New, []byte(purpose))
	mac.Write(secret[:])
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// streamBytes produces a ChaCha20 keystream of the requested length under
// key, with an all-zero nonce; each (key, secret) pair is used for a
// single packet only so nonce reuse across distinct plaintexts never
// occurs.
func streamBytes(key [32]byte, length int) []byte {
	var nonce [12]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		panic(fmt.Sprintf("onion: chacha20 init: %v", err))
	}
	out := make([]byte, length)
	c.XORKeyStream(out, out)
	return out
}

func xorBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// generateFiller computes the pseudorandom padding that a route shorter
// than MaxHops needs appended to its routing-info field, so that when the
// final hop peels its own frame off, the remainder of the (now
// frameSize-shorter) buffer is indistinguishable from what a longer route
// would have left behind, hiding the route length from every hop.
func generateFiller(secrets [][32]byte) []byte {
	numHops := len(secrets)
	filler := make([]byte, (numHops)*frameSize)

	for i := 0; i < numHops; i++ {
		rho := generateKey("rho", secrets[i])

		// The keystream consumed by hop i, once shifted into position,
		// must cover the filler accumulated so far plus one more frame.
		streamLen := RoutingInfoSize + frameSize
		stream := streamBytes(rho, streamLen)

		shift := (MaxHops - i) * frameSize
		xorBytes(filler[:len(filler)], filler[:len(filler)], stream[shift:shift+len(filler)])
	}

	return filler
}

// PayloadEncoder builds the fixed-size, zero-padded TLV payload frame for
// one hop (see payload.go); Packer plugs it into NewPacket.
type PayloadEncoder func(hopIndex int) ([]byte, error)

// NewPacket constructs a Sphinx onion packet routing through the given
// ordered node public keys, with each hop's payload supplied by
// payloadFor. assocData (normally the payment hash) is bound into every
// hop's HMAC so the packet cannot be replayed against a different
// payment.
func NewPacket(sessionKey *btcec.PrivateKey, nodeKeys []*btcec.PublicKey,
	payloadFor PayloadEncoder, assocData []byte) (*Packet, error) {

	numHops := len(nodeKeys)
	if numHops == 0 || numHops > MaxHops {
		return nil, fmt.Errorf("onion: route must have 1-%d hops, got %d", MaxHops, numHops)
	}

	secrets := make([][32]byte, numHops)
	ephemeralPubs := make([]*btcec.PublicKey, numHops)

	runningPriv := sessionKey
	for i, nodePub := range nodeKeys {
		ephemeralPubs[i] = runningPriv.PubKey()
		secrets[i] = sharedSecret(runningPriv, nodePub)

		factor := blindingFactor(ephemeralPubs[i], secrets[i])
		runningPriv = tweakScalar(runningPriv, factor)
	}

	filler := generateFiller(secrets[:numHops-1])

	var mixHeader [RoutingInfoSize]byte
	// Seed the tail with filler-shaped randomness so the last hop's
	// peeled view (all genuine frames gone) is indistinguishable from a
	// full MaxHops route; NewPacket itself supplies no extra entropy
	// beyond the rho streams already mixed into filler.
	copy(mixHeader[RoutingInfoSize-len(filler):], filler)

	var nextHMAC [HMACSize]byte

	for i := numHops - 1; i >= 0; i-- {
		payload, err := payloadFor(i)
		if err != nil {
			return nil, fmt.Errorf("onion: encoding hop %d payload: %w", i, err)
		}
		if len(payload) > payloadSize {
			return nil, fmt.Errorf("onion: hop %d payload of %d bytes exceeds max %d", i, len(payload), payloadSize)
		}
		var frame [frameSize]byte
		copy(frame[:payloadSize], payload)
		copy(frame[payloadSize:], nextHMAC[:])

		rho := generateKey("rho", secrets[i])
		stream := streamBytes(rho, RoutingInfoSize)

		// Shift the existing buffer right by one frame, drop off the
		// tail, and place the new frame at the front.
		shifted := make([]byte, RoutingInfoSize)
		copy(shifted[frameSize:], mixHeader[:RoutingInfoSize-frameSize])
		copy(shifted[:frameSize], frame[:])

		xorBytes(mixHeader[:], shifted, stream)

		mu := generateKey("mu", secrets[i])
		mac := hmac.New(sha256.New, mu[:])
		mac.Write(mixHeader[:])
		mac.Write(assocData)
		copy(nextHMAC[:], mac.Sum(nil))
	}

	return &Packet{
		Version:      Version,
		EphemeralKey: ephemeralPubs[0],
		RoutingInfo:  mixHeader,
		HMAC:         nextHMAC,
	}, nil
}

// ErrInvalidHMAC is returned by Peel when the packet's HMAC does not
// authenticate under the recipient's derived mu key; the HTLC must be
// failed with a malformed-onion error.
var ErrInvalidHMAC = fmt.Errorf("onion: hmac does not authenticate packet")

// PeelResult is one hop's outcome of processing a received packet.
type PeelResult struct {
	Payload    []byte
	NextPacket *Packet
	// IsFinalHop is true once the peeled frame's HMAC (to be presented
	// to the *next* hop) is the fixed well-known all-zero value, which
	// only the sender can have placed there, marking route termination.
	IsFinalHop bool
}

// Peel processes a received packet as the hop addressed by nodePriv,
// verifying its HMAC, decrypting its own payload frame, and producing the
// packet to forward onward (with a re-blinded ephemeral key) if it is not
// the final hop.
func Peel(p *Packet, nodePriv *btcec.PrivateKey, assocData []byte) (*PeelResult, error) {
	secret := sharedSecret(nodePriv, p.EphemeralKey)

	mu := generateKey("mu", secret)
	mac := hmac.New(sha256.New, mu[:])
	mac.Write(p.RoutingInfo[:])
	mac.Write(assocData)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, p.HMAC[:]) {
		return nil, ErrInvalidHMAC
	}

	rho := generateKey("rho", secret)
	stream := streamBytes(rho, RoutingInfoSize+frameSize)

	extended := make([]byte, RoutingInfoSize+frameSize)
	copy(extended[:RoutingInfoSize], p.RoutingInfo[:])
	// The trailing frameSize zero bytes, once XORed with the tail of
	// the rho stream, reveal fresh filler-shaped randomness taking the
	// place of the frame this hop is about to strip off.
	xorBytes(extended, extended, stream)

	payload := extended[:payloadSize]
	nextHMAC := extended[payloadSize : payloadSize+HMACSize]
	nextRoutingInfo := extended[frameSize:]

	var zeroHMAC [HMACSize]byte
	isFinal := bytes.Equal(nextHMAC, zeroHMAC[:])

	factor := blindingFactor(p.EphemeralKey, secret)
	nextEphemeral := tweakPoint(p.EphemeralKey, factor)

	var nextInfo [RoutingInfoSize]byte
	copy(nextInfo[:], nextRoutingInfo)
	var nextHMACArr [HMACSize]byte
	copy(nextHMACArr[:], nextHMAC)

	next := &Packet{
		Version:      Version,
		EphemeralKey: nextEphemeral,
		RoutingInfo:  nextInfo,
		HMAC:         nextHMACArr,
	}

	payloadCopy := make([]byte, payloadSize)
	copy(payloadCopy, payload)

	return &PeelResult{Payload: payloadCopy, NextPacket: next, IsFinalHop: isFinal}, nil
}
