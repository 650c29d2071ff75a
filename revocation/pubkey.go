package revocation

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lncore/lncore/ecc"
)

// DerivePubkey computes the revocation_pubkey for a commitment from the
// channel's revocation basepoint R and the per-commitment point P:
//
//	revocation_pubkey = R*SHA256(R||P) + P*SHA256(P||R)
//
// This is the formula named authoritative by spec.md's open-question
// resolution (§9): the commit-privkey-tweak variant some historical
// implementations used is not BIP/BOLT conformant.
func DerivePubkey(basepoint, perCommitPoint *btcec.PublicKey) *btcec.PublicKey {
	rTweak := tweakHash(basepoint, perCommitPoint)
	pTweak := tweakHash(perCommitPoint, basepoint)

	rTerm := ecc.MulPubKeyScalar(basepoint, rTweak)
	pTerm := ecc.MulPubKeyScalar(perCommitPoint, pTweak)

	return ecc.AddPoints(rTerm, pTerm)
}

// DerivePrivkey computes the revocation private key once both halves are
// known: the channel's own revocation basepoint secret (basepointSecret)
// and the per-commitment secret that was revealed for this commitment.
//
//	revocation_privkey = basepointSecret*SHA256(R||P) + perCommitSecret*SHA256(P||R)
func DerivePrivkey(basepointSecret, perCommitSecret *btcec.PrivateKey) *btcec.PrivateKey {
	basepoint := basepointSecret.PubKey()
	perCommitPoint := perCommitSecret.PubKey()

	rTweak := tweakHash(basepoint, perCommitPoint)
	pTweak := tweakHash(perCommitPoint, basepoint)

	rTerm := ecc.MulPrivScalar(basepointSecret, rTweak)
	pTerm := ecc.MulPrivScalar(perCommitSecret, pTweak)

	var rScalar, pScalar, sum btcec.ModNScalar
	rScalar.Set(&rTerm.Key)
	pScalar.Set(&pTerm.Key)
	sum.Add2(&rScalar, &pScalar)

	priv, _ := btcec.PrivKeyFromBytes(sum.Bytes()[:])
	return priv
}

func tweakHash(a, b *btcec.PublicKey) [32]byte {
	h := sha256.New()
	h.Write(a.SerializeCompressed())
	h.Write(b.SerializeCompressed())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
