package discovery

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-errors/errors"

	"github.com/lncore/lncore/wire"
)

// digest hashes the signed portion of a gossip message the way BOLT #7
// requires: double SHA-256 over DataToSign's output.
func digest(sign func(w io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := sign(&buf); err != nil {
		return nil, err
	}
	return chainhash.DoubleHashB(buf.Bytes()), nil
}

// validateChannelAnn checks all four signatures on a channel_announcement:
// both nodes' identity keys and both nodes' funding (bitcoin) keys, each
// over the message with the signature fields stripped.
func validateChannelAnn(a *wire.ChannelAnnouncement) error {
	hash, err := digest(a.DataToSign)
	if err != nil {
		return err
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{"bitcoin sig 1", a.BitcoinSig1.Verify(hash, a.BitcoinKey1)},
		{"bitcoin sig 2", a.BitcoinSig2.Verify(hash, a.BitcoinKey2)},
		{"node sig 1", a.NodeSig1.Verify(hash, a.NodeID1)},
		{"node sig 2", a.NodeSig2.Verify(hash, a.NodeID2)},
	}
	for _, c := range checks {
		if !c.ok {
			return errors.Errorf("channel_announcement: invalid %s", c.name)
		}
	}
	return nil
}

// validateNodeAnn checks the single signature on a node_announcement,
// made by the announcing node's own identity key.
func validateNodeAnn(a *wire.NodeAnnouncement) error {
	hash, err := digest(a.DataToSign)
	if err != nil {
		return err
	}
	if !a.Signature.Verify(hash, a.NodeID) {
		return errors.New("node_announcement: invalid signature")
	}
	return nil
}

// validateChannelUpdateAnn checks the single signature on a
// channel_update, made by the announcing direction's node key. The
// caller supplies that key since the message itself only carries a
// short_channel_id and direction bit, not the key directly.
func validateChannelUpdateAnn(pubKey *btcec.PublicKey, a *wire.ChannelUpdate) error {
	hash, err := digest(a.DataToSign)
	if err != nil {
		return err
	}
	if !a.Signature.Verify(hash, pubKey) {
		return errors.New("channel_update: invalid signature")
	}
	return nil
}
