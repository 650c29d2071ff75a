package noise

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/hkdf"
)

// actOneSize, actTwoSize, actThreeSize are the fixed wire sizes of each
// handshake act: 1-byte version + 33-byte pubkey + 16-byte MAC for acts
// one/two, and 1-byte version + 49-byte encrypted static key + 16-byte MAC
// for act three.
const (
	actOneSize   = 1 + 33 + 16
	actTwoSize   = 1 + 33 + 16
	actThreeSize = 1 + 33 + 16 + 16
)

// Handshake performs the Noise_XK handshake as either initiator or
// responder over rw, and returns the two directional CipherStates plus
// the peer's static public key (learned during the handshake by the
// responder; supplied in advance by the initiator, who must already know
// it to address the connection).
func Handshake(rw io.ReadWriter, localStatic *btcec.PrivateKey,
	remoteStatic *btcec.PublicKey, initiator bool) (send, recv *CipherState, remote *btcec.PublicKey, err error) {

	if initiator {
		return initiatorHandshake(rw, localStatic, remoteStatic)
	}
	return responderHandshake(rw, localStatic)
}

func initiatorHandshake(rw io.ReadWriter, localStatic *btcec.PrivateKey,
	remoteStatic *btcec.PublicKey) (*CipherState, *CipherState, *btcec.PublicKey, error) {

	hs := newHandshakeState(localStatic, remoteStatic, rand.Reader)
	// XK's pre-message "-> s" mixes in the responder's static key, which
	// the initiator must already know out of band.
	hs.mixHash(remoteStatic.SerializeCompressed())

	// Act One: e, es.
	ephemeral, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, nil, err
	}
	hs.localEphemeral = ephemeral
	hs.mixHash(ephemeral.PubKey().SerializeCompressed())

	es := ecdh(ephemeral, remoteStatic)
	tempK1 := hs.mixKey(es)
	c1 := hs.encryptAndHash(tempK1, nil)

	actOne := make([]byte, 0, actOneSize)
	actOne = append(actOne, 0x00)
	actOne = append(actOne, ephemeral.PubKey().SerializeCompressed()...)
	actOne = append(actOne, c1...)
	if _, err := rw.Write(actOne); err != nil {
		return nil, nil, nil, fmt.Errorf("noise: writing act one: %w", err)
	}

	// Act Two: read re, ee.
	actTwo := make([]byte, actTwoSize)
	if _, err := io.ReadFull(rw, actTwo); err != nil {
		return nil, nil, nil, fmt.Errorf("noise: reading act two: %w", err)
	}
	if actTwo[0] != 0x00 {
		return nil, nil, nil, fmt.Errorf("noise: unsupported handshake version %d", actTwo[0])
	}
	remoteEphemeral, err := btcec.ParsePubKey(actTwo[1:34])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("noise: parsing act two ephemeral key: %w", err)
	}
	hs.remoteEphemeral = remoteEphemeral
	hs.mixHash(remoteEphemeral.SerializeCompressed())

	ee := ecdh(ephemeral, remoteEphemeral)
	tempK2 := hs.mixKey(ee)
	if _, err := hs.decryptAndHash(tempK2, actTwo[34:]); err != nil {
		return nil, nil, nil, fmt.Errorf("noise: act two: %w", err)
	}

	// Act Three: s, se.
	c3 := hs.encryptAndHash(tempK2, localStatic.PubKey().SerializeCompressed())
	se := ecdh(localStatic, remoteEphemeral)
	tempK3 := hs.mixKey(se)
	t3 := hs.encryptAndHash(tempK3, nil)

	actThree := make([]byte, 0, actThreeSize)
	actThree = append(actThree, 0x00)
	actThree = append(actThree, c3...)
	actThree = append(actThree, t3...)
	if _, err := rw.Write(actThree); err != nil {
		return nil, nil, nil, fmt.Errorf("noise: writing act three: %w", err)
	}

	sk, rk := hs.split()
	sendCipher := newCipherState(sk, hs.ck)
	recvCipher := newCipherState(rk, hs.ck)
	return sendCipher, recvCipher, remoteStatic, nil
}

func responderHandshake(rw io.ReadWriter, localStatic *btcec.PrivateKey) (*CipherState, *CipherState, *btcec.PublicKey, error) {
	hs := newHandshakeState(localStatic, nil, rand.Reader)
	// XK's pre-message mixes in the responder's own static key; the
	// remote (initiator's) static key is unknown until act three.
	hs.mixHash(localStatic.PubKey().SerializeCompressed())

	// Act One: read e, es.
	actOne := make([]byte, actOneSize)
	if _, err := io.ReadFull(rw, actOne); err != nil {
		return nil, nil, nil, fmt.Errorf("noise: reading act one: %w", err)
	}
	if actOne[0] != 0x00 {
		return nil, nil, nil, fmt.Errorf("noise: unsupported handshake version %d", actOne[0])
	}
	remoteEphemeral, err := btcec.ParsePubKey(actOne[1:34])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("noise: parsing act one ephemeral key: %w", err)
	}
	hs.remoteEphemeral = remoteEphemeral
	hs.mixHash(remoteEphemeral.SerializeCompressed())

	es := ecdh(localStatic, remoteEphemeral)
	tempK1 := hs.mixKey(es)
	if _, err := hs.decryptAndHash(tempK1, actOne[34:]); err != nil {
		return nil, nil, nil, fmt.Errorf("noise: act one: %w", err)
	}

	// Act Two: e, ee.
	ephemeral, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, nil, err
	}
	hs.localEphemeral = ephemeral
	hs.mixHash(ephemeral.PubKey().SerializeCompressed())

	ee := ecdh(ephemeral, remoteEphemeral)
	tempK2 := hs.mixKey(ee)
	c2 := hs.encryptAndHash(tempK2, nil)

	actTwo := make([]byte, 0, actTwoSize)
	actTwo = append(actTwo, 0x00)
	actTwo = append(actTwo, ephemeral.PubKey().SerializeCompressed()...)
	actTwo = append(actTwo, c2...)
	if _, err := rw.Write(actTwo); err != nil {
		return nil, nil, nil, fmt.Errorf("noise: writing act two: %w", err)
	}

	// Act Three: read s, se.
	actThree := make([]byte, actThreeSize)
	if _, err := io.ReadFull(rw, actThree); err != nil {
		return nil, nil, nil, fmt.Errorf("noise: reading act three: %w", err)
	}
	if actThree[0] != 0x00 {
		return nil, nil, nil, fmt.Errorf("noise: unsupported handshake version %d", actThree[0])
	}
	remoteStaticCt := actThree[1:50]
	remoteStaticBytes, err := hs.decryptAndHash(tempK2, remoteStaticCt)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("noise: act three static key: %w", err)
	}
	remoteStatic, err := btcec.ParsePubKey(remoteStaticBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("noise: parsing remote static key: %w", err)
	}

	se := ecdh(ephemeral, remoteStatic)
	tempK3 := hs.mixKey(se)
	if _, err := hs.decryptAndHash(tempK3, actThree[50:]); err != nil {
		return nil, nil, nil, fmt.Errorf("noise: act three: %w", err)
	}

	sk, rk := hs.split()
	// Responder's sending/receiving keys are swapped relative to the
	// initiator's.
	sendCipher := newCipherState(rk, hs.ck)
	recvCipher := newCipherState(sk, hs.ck)
	return sendCipher, recvCipher, remoteStatic, nil
}

// split derives the two directional transport keys from the final
// chaining key, per BOLT #8: sk, rk = HKDF(ck, zero-length).
func (hs *handshakeState) split() (sk, rk [32]byte) {
	var out [64]byte
	r := hkdf.New(sha256.New, nil, hs.ck[:], nil)
	if _, err := r.Read(out[:]); err != nil {
		panic(err)
	}
	copy(sk[:], out[:32])
	copy(rk[:], out[32:])
	return sk, rk
}
