// Package keychain derives the node identity key and the five per-channel
// basepoints from an external hierarchical-deterministic master-key store.
// The master-key store itself (seed management, BIP-32 derivation) is an
// external collaborator per the purpose & scope of this core; keychain only
// knows the LNPBP-46 path layout built on top of it.
package keychain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// KeyFamily enumerates the five per-channel key purposes (the funding
// multisig key and the four basepoints) plus the node's long-term
// identity key, addressed under LNPBP-46 purpose 9735.
type KeyFamily uint32

const (
	KeyFamilyNodeKey KeyFamily = iota
	KeyFamilyMultiSig
	KeyFamilyRevocationBase
	KeyFamilyPaymentBase
	KeyFamilyDelayBase
	KeyFamilyHtlcBase
)

// LNPBP46Purpose is the BIP-43 purpose field reserved for Lightning key
// derivation.
const LNPBP46Purpose = 9735

// KeyLocator addresses one key within the LNPBP-46 hierarchy:
// m/9735'/family'/index.
type KeyLocator struct {
	Family KeyFamily
	Index  uint32
}

// KeyDescriptor pairs a locator with the public key it resolves to.
type KeyDescriptor struct {
	KeyLocator
	PubKey *btcec.PublicKey
}

// MasterKeyStore is the external collaborator that owns the wallet's seed
// and performs the actual BIP-32 derivation; this core never holds seed
// material itself.
type MasterKeyStore interface {
	// DerivePrivKey resolves a KeyLocator to the private key at that
	// path.
	DerivePrivKey(loc KeyLocator) (*btcec.PrivateKey, error)

	// DerivePubKey resolves a KeyLocator to the public key at that
	// path, without exposing the private key.
	DerivePubKey(loc KeyLocator) (*btcec.PublicKey, error)
}

// ChannelBasepoints is the full set of per-channel basepoints a party
// contributes to open_channel/accept_channel.
type ChannelBasepoints struct {
	MultiSigKey         KeyDescriptor
	RevocationBasePoint KeyDescriptor
	PaymentBasePoint    KeyDescriptor
	DelayBasePoint      KeyDescriptor
	HtlcBasePoint       KeyDescriptor
}

// KeyRing derives node and channel keys from a MasterKeyStore. It keeps
// no channel counter; the caller supplies each channel's index.
type KeyRing struct {
	store MasterKeyStore
}

// NewKeyRing constructs a KeyRing backed by store.
func NewKeyRing(store MasterKeyStore) *KeyRing {
	return &KeyRing{store: store}
}

// NodeKey returns the node's long-term identity keypair, always at index 0
// of the node-key family.
func (k *KeyRing) NodeKey() (*btcec.PrivateKey, error) {
	return k.store.DerivePrivKey(KeyLocator{Family: KeyFamilyNodeKey})
}

// NodePubKey returns the node's public identity key.
func (k *KeyRing) NodePubKey() (*btcec.PublicKey, error) {
	return k.store.DerivePubKey(KeyLocator{Family: KeyFamilyNodeKey})
}

// DeriveChannelBasepoints derives the five basepoints for the channel at
// the given index. Every basepoint for a channel shares that channel's
// index across families, so that a single counter (e.g. the channeldb
// channel sequence number) produces a collision-free keyset.
func (k *KeyRing) DeriveChannelBasepoints(chanIndex uint32) (*ChannelBasepoints, error) {
	families := []KeyFamily{
		KeyFamilyMultiSig, KeyFamilyRevocationBase,
		KeyFamilyPaymentBase, KeyFamilyDelayBase, KeyFamilyHtlcBase,
	}

	descs := make([]KeyDescriptor, len(families))
	for i, fam := range families {
		loc := KeyLocator{Family: fam, Index: chanIndex}
		pub, err := k.store.DerivePubKey(loc)
		if err != nil {
			return nil, fmt.Errorf("deriving %v basepoint: %w", fam, err)
		}
		descs[i] = KeyDescriptor{KeyLocator: loc, PubKey: pub}
	}

	return &ChannelBasepoints{
		MultiSigKey:         descs[0],
		RevocationBasePoint: descs[1],
		PaymentBasePoint:    descs[2],
		DelayBasePoint:      descs[3],
		HtlcBasePoint:       descs[4],
	}, nil
}

// DerivePrivKey resolves a locator to a private key, passed through
// directly to the underlying store; used by the commitment builder when
// it needs to sign with a basepoint-derived key.
func (k *KeyRing) DerivePrivKey(loc KeyLocator) (*btcec.PrivateKey, error) {
	return k.store.DerivePrivKey(loc)
}
