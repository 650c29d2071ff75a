// Package ecc wraps the secp256k1 primitives used throughout the channel
// state machine: scalar arithmetic mod the curve order, point
// addition/multiplication, and low-S ECDSA signing, all built on top of
// btcec/v2 the way the teacher's lnwallet/script_utils.go built them on
// the original (non-v2) btcec.
package ecc

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// TweakPubKeyAdd returns base + tweak*G, the pattern used for both
// per-commitment-point-randomized keys (delayed/payment/htlc pubkeys) and
// revocation pubkeys.
func TweakPubKeyAdd(base *btcec.PublicKey, tweak [32]byte) *btcec.PublicKey {
	var tweakScalar btcec.ModNScalar
	tweakScalar.SetBytes(&tweak)

	var tweakPoint btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&tweakScalar, &tweakPoint)

	var basePoint btcec.JacobianPoint
	base.AsJacobian(&basePoint)

	var result btcec.JacobianPoint
	btcec.AddNonConst(&basePoint, &tweakPoint, &result)
	result.ToAffine()

	return btcec.NewPublicKey(&result.X, &result.Y)
}

// TweakPrivKeyAdd returns (base + tweak) mod N, the private-key analogue
// of TweakPubKeyAdd.
func TweakPrivKeyAdd(base *btcec.PrivateKey, tweak [32]byte) *btcec.PrivateKey {
	var tweakScalar, baseScalar, sum btcec.ModNScalar
	tweakScalar.SetBytes(&tweak)
	baseScalar.Set(&base.Key)
	sum.Add2(&baseScalar, &tweakScalar)

	priv, _ := btcec.PrivKeyFromBytes(sum.Bytes()[:])
	return priv
}

// AddPoints returns a + b on the curve, used to combine the two halves of
// the revocation pubkey/privkey formula.
func AddPoints(a, b *btcec.PublicKey) *btcec.PublicKey {
	var aj, bj, sum btcec.JacobianPoint
	a.AsJacobian(&aj)
	b.AsJacobian(&bj)
	btcec.AddNonConst(&aj, &bj, &sum)
	sum.ToAffine()
	return btcec.NewPublicKey(&sum.X, &sum.Y)
}

// MulPrivScalar returns priv*scalar mod N as a private key, i.e. the
// point (priv*scalar)*G.
func MulPrivScalar(priv *btcec.PrivateKey, scalar [32]byte) *btcec.PrivateKey {
	var s, k, product btcec.ModNScalar
	s.SetBytes(&scalar)
	k.Set(&priv.Key)
	product.Mul2(&k, &s)

	out, _ := btcec.PrivKeyFromBytes(product.Bytes()[:])
	return out
}

// MulPubKeyScalar returns scalar*P for a public point P.
func MulPubKeyScalar(pub *btcec.PublicKey, scalar [32]byte) *btcec.PublicKey {
	var s btcec.ModNScalar
	s.SetBytes(&scalar)

	var pt, result btcec.JacobianPoint
	pub.AsJacobian(&pt)
	btcec.ScalarMultNonConst(&s, &pt, &result)
	result.ToAffine()

	return btcec.NewPublicKey(&result.X, &result.Y)
}

// SignLowS signs hash with priv, always returning the low-S form of the
// signature as required by BIP-62/BOLT #3 malleability rules. The low-S
// form comes from btcec/v2's ecdsa.Sign, which normalizes S itself; this
// function only checks the hash length and does not re-check S.
func SignLowS(priv *btcec.PrivateKey, hash []byte) (*ecdsa.Signature, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	sig := ecdsa.Sign(priv, hash)
	return sig, nil
}

// Verify reports whether sig is a valid signature over hash by pub.
func Verify(pub *btcec.PublicKey, hash []byte, sig *ecdsa.Signature) bool {
	return sig.Verify(hash, pub)
}
