package revocation

import (
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func randomSeed(t *testing.T) Secret {
	t.Helper()
	var s Secret
	_, err := rand.Read(s[:])
	require.NoError(t, err)
	return s
}

func TestDeriveSecretDeterministic(t *testing.T) {
	seed := randomSeed(t)
	a := DeriveSecret(seed, 5)
	b := DeriveSecret(seed, 5)
	require.Equal(t, a, b)

	c := DeriveSecret(seed, 6)
	require.NotEqual(t, a, c)
}

// TestStoreCoversAllRevocations exercises invariant #1 from spec.md §8: for
// a long run of revoked commitments, the store always reproduces the
// correct secret for every one of them, using at most 49 entries.
func TestStoreCoversAllRevocations(t *testing.T) {
	seed := randomSeed(t)
	store := NewStore()

	const n = 2000
	for ctn := uint64(0); ctn < n; ctn++ {
		secret := DeriveSecret(seed, ctn)
		require.NoError(t, store.Insert(secret, ctn))
		require.LessOrEqual(t, store.Len(), MaxHeight+1)

		for check := uint64(0); check <= ctn; check++ {
			got, err := store.Lookup(check)
			require.NoError(t, err)
			require.Equal(t, DeriveSecret(seed, check), got)
		}
	}
}

func TestStoreRejectsBadSecret(t *testing.T) {
	seed := randomSeed(t)
	store := NewStore()

	require.NoError(t, store.Insert(DeriveSecret(seed, 0), 0))

	var bogus Secret
	copy(bogus[:], "not a real derived secret value")
	err := store.Insert(bogus, 1)
	require.ErrorIs(t, err, ErrInconsistentSecret)
}

func TestStoreInsertTwiceIsNoop(t *testing.T) {
	seed := randomSeed(t)
	store := NewStore()

	secret := DeriveSecret(seed, 42)
	require.NoError(t, store.Insert(secret, 42))
	sizeBefore := store.Len()
	require.NoError(t, store.Insert(secret, 42))
	require.Equal(t, sizeBefore, store.Len())
}

func TestLookupMissingReturnsError(t *testing.T) {
	store := NewStore()
	_, err := store.Lookup(3)
	require.ErrorIs(t, err, ErrSecretNotFound)
}

func TestRevocationPubkeyMatchesPrivkey(t *testing.T) {
	basepointSecret, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	perCommitSecret, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	pub := DerivePubkey(basepointSecret.PubKey(), perCommitSecret.PubKey())
	priv := DerivePrivkey(basepointSecret, perCommitSecret)

	require.True(t, priv.PubKey().IsEqual(pub))
}
