package noise

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/hkdf"
)

// protocolName is the Noise protocol name string hashed into the initial
// handshake digest, identifying the exact handshake pattern and primitive
// suite in use.
const protocolName = "Noise_XK_secp256k1_ChaChaPoly_SHA256"

// prologue is the fixed prologue BOLT #8 mixes into the handshake hash.
const prologue = "lightning"

// handshakeState carries the running chaining key/hash/ephemeral keys
// through BOLT #8's three-act XK handshake.
type handshakeState struct {
	ck [32]byte
	h  [32]byte

	localStatic     *btcec.PrivateKey
	localEphemeral  *btcec.PrivateKey
	remoteStatic    *btcec.PublicKey // known in advance for XK (initiator only)
	remoteEphemeral *btcec.PublicKey
	remoteStaticOut *btcec.PublicKey // never set: the responder returns the key it learns in Act Three directly

	rand io.Reader
}

func newHandshakeState(localStatic *btcec.PrivateKey, remoteStatic *btcec.PublicKey, rand io.Reader) *handshakeState {
	hs := &handshakeState{
		localStatic:  localStatic,
		remoteStatic: remoteStatic,
		rand:         rand,
	}
	hs.h = sha256.Sum256([]byte(protocolName))
	hs.mixHash([]byte(prologue))
	return hs
}

func (hs *handshakeState) mixHash(data []byte) {
	h := sha256.New()
	h.Write(hs.h[:])
	h.Write(data)
	copy(hs.h[:], h.Sum(nil))
}

// mixKey runs HKDF(ck, ikm) and updates ck to the first half of the
// output, returning the second half as a temporary key.
func (hs *handshakeState) mixKey(ikm []byte) [32]byte {
	var out [64]byte
	r := hkdf.New(sha256.New, ikm, hs.ck[:], nil)
	if _, err := r.Read(out[:]); err != nil {
		panic(fmt.Sprintf("noise: mixKey hkdf: %v", err))
	}
	copy(hs.ck[:], out[:32])
	var temp [32]byte
	copy(temp[:], out[32:])
	return temp
}

func ecdh(priv *btcec.PrivateKey, pub *btcec.PublicKey) []byte {
	var pt btcec.JacobianPoint
	pub.AsJacobian(&pt)

	var scalar btcec.ModNScalar
	scalar.Set(&priv.Key)

	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&scalar, &pt, &result)
	result.ToAffine()

	h := sha256.Sum256(result.X.Bytes()[:])
	return h[:]
}

// encryptAndHash seals plaintext (may be empty) under the temp key derived
// from ck, using the running handshake hash as AD, then mixes the
// ciphertext into the hash.
func (hs *handshakeState) encryptAndHash(key [32]byte, plaintext []byte) []byte {
	cs := newCipherState(key, hs.ck)
	ct := cs.Encrypt(hs.h[:], plaintext)
	hs.mixHash(ct)
	return ct
}

func (hs *handshakeState) decryptAndHash(key [32]byte, ciphertext []byte) ([]byte, error) {
	cs := newCipherState(key, hs.ck)
	pt, err := cs.Decrypt(hs.h[:], ciphertext)
	if err != nil {
		return nil, err
	}
	hs.mixHash(ciphertext)
	return pt, nil
}
