package discovery

import (
	"io"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/lncore/lncore/channeldb"
	"github.com/lncore/lncore/wire"
)

func makeTestGraph(t *testing.T) *channeldb.ChannelGraph {
	t.Helper()

	dir, err := ioutil.TempDir("", "discovery-graph")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := channeldb.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db.ChannelGraph()
}

// testKeyPair returns a private key and its public key for building test
// announcements.
func testKeyPair(t *testing.T) (*btcec.PrivateKey, *btcec.PublicKey) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv, priv.PubKey()
}

func signDataToSign(t *testing.T, priv *btcec.PrivateKey, dataToSign func(w io.Writer) error) *ecdsa.Signature {
	t.Helper()
	hash, err := digest(dataToSign)
	require.NoError(t, err)
	return ecdsa.Sign(priv, hash)
}

func TestGossiperChannelAnnouncementAndUpdate(t *testing.T) {
	graph := makeTestGraph(t)
	g := New(graph)

	nodePriv1, nodePub1 := testKeyPair(t)
	nodePriv2, nodePub2 := testKeyPair(t)
	btcPriv1, btcPub1 := testKeyPair(t)
	btcPriv2, btcPub2 := testKeyPair(t)

	ann := &wire.ChannelAnnouncement{
		Features:       wire.NewFeatureVector(),
		ShortChannelID: wire.NewShortChannelIDFromUint64(12345),
		NodeID1:        nodePub1,
		NodeID2:        nodePub2,
		BitcoinKey1:    btcPub1,
		BitcoinKey2:    btcPub2,
	}
	ann.NodeSig1 = signDataToSign(t, nodePriv1, ann.DataToSign)
	ann.NodeSig2 = signDataToSign(t, nodePriv2, ann.DataToSign)
	ann.BitcoinSig1 = signDataToSign(t, btcPriv1, ann.DataToSign)
	ann.BitcoinSig2 = signDataToSign(t, btcPriv2, ann.DataToSign)

	require.NoError(t, g.HandleGossipMessage(ann))

	// Re-delivering the same announcement is a no-op, not an error.
	require.NoError(t, g.HandleGossipMessage(ann))

	update := &wire.ChannelUpdate{
		ShortChannelID:            ann.ShortChannelID,
		Timestamp:                 uint32(time.Now().Unix()),
		ChannelFlags:              0,
		CLTVExpiryDelta:           40,
		HTLCMinimumMsat:           1000,
		HTLCMaximumMsat:           100_000_000,
		BaseFeeMsat:               1000,
		FeeProportionalMillionths: 1,
	}
	update.Signature = signDataToSign(t, nodePriv1, update.DataToSign)

	require.NoError(t, g.HandleGossipMessage(update))

	_, policy1, _, err := graph.FetchChannelEdgesByID(ann.ShortChannelID.ToUint64())
	require.NoError(t, err)
	require.Equal(t, wire.MilliSatoshi(1000), policy1.FeeBaseMSat)
	require.Equal(t, wire.MilliSatoshi(100_000_000), policy1.MaxHTLC)

	// A stale update (same or earlier timestamp) is silently dropped.
	stale := *update
	stale.BaseFeeMsat = 9999
	stale.Signature = signDataToSign(t, nodePriv1, stale.DataToSign)
	require.NoError(t, g.HandleGossipMessage(&stale))

	_, policy1Again, _, err := graph.FetchChannelEdgesByID(ann.ShortChannelID.ToUint64())
	require.NoError(t, err)
	require.Equal(t, wire.MilliSatoshi(1000), policy1Again.FeeBaseMSat)
}

func TestGossiperRejectsBadSignature(t *testing.T) {
	graph := makeTestGraph(t)
	g := New(graph)

	_, nodePub1 := testKeyPair(t)
	_, nodePub2 := testKeyPair(t)
	_, btcPub1 := testKeyPair(t)
	_, btcPub2 := testKeyPair(t)
	forgePriv, _ := testKeyPair(t)

	ann := &wire.ChannelAnnouncement{
		Features:       wire.NewFeatureVector(),
		ShortChannelID: wire.NewShortChannelIDFromUint64(999),
		NodeID1:        nodePub1,
		NodeID2:        nodePub2,
		BitcoinKey1:    btcPub1,
		BitcoinKey2:    btcPub2,
	}
	// Every signature is made with the wrong key.
	ann.NodeSig1 = signDataToSign(t, forgePriv, ann.DataToSign)
	ann.NodeSig2 = signDataToSign(t, forgePriv, ann.DataToSign)
	ann.BitcoinSig1 = signDataToSign(t, forgePriv, ann.DataToSign)
	ann.BitcoinSig2 = signDataToSign(t, forgePriv, ann.DataToSign)

	require.Error(t, g.HandleGossipMessage(ann))
}

func TestGossiperNodeAnnouncementStaleness(t *testing.T) {
	graph := makeTestGraph(t)
	g := New(graph)

	priv, pub := testKeyPair(t)

	makeAnn := func(ts uint32) *wire.NodeAnnouncement {
		a := &wire.NodeAnnouncement{
			Features:  wire.NewFeatureVector(),
			Timestamp: ts,
			NodeID:    pub,
		}
		a.Signature = signDataToSign(t, priv, a.DataToSign)
		return a
	}

	now := uint32(time.Now().Unix())
	require.NoError(t, g.HandleGossipMessage(makeAnn(now)))

	node, err := graph.FetchLightningNode(pub)
	require.NoError(t, err)
	require.Equal(t, int64(now), node.LastUpdate.Unix())

	// An announcement with an earlier timestamp is dropped.
	require.NoError(t, g.HandleGossipMessage(makeAnn(now-10)))
	node, err = graph.FetchLightningNode(pub)
	require.NoError(t, err)
	require.Equal(t, int64(now), node.LastUpdate.Unix())
}

func TestGossiperPruneStale(t *testing.T) {
	graph := makeTestGraph(t)
	g := New(graph)

	nodePriv1, nodePub1 := testKeyPair(t)
	nodePriv2, nodePub2 := testKeyPair(t)
	btcPriv1, btcPub1 := testKeyPair(t)
	btcPriv2, btcPub2 := testKeyPair(t)

	ann := &wire.ChannelAnnouncement{
		Features:       wire.NewFeatureVector(),
		ShortChannelID: wire.NewShortChannelIDFromUint64(555),
		NodeID1:        nodePub1,
		NodeID2:        nodePub2,
		BitcoinKey1:    btcPub1,
		BitcoinKey2:    btcPub2,
	}
	ann.NodeSig1 = signDataToSign(t, nodePriv1, ann.DataToSign)
	ann.NodeSig2 = signDataToSign(t, nodePriv2, ann.DataToSign)
	ann.BitcoinSig1 = signDataToSign(t, btcPriv1, ann.DataToSign)
	ann.BitcoinSig2 = signDataToSign(t, btcPriv2, ann.DataToSign)
	require.NoError(t, g.HandleGossipMessage(ann))

	// No policy update has ever arrived for this channel, so it's stale
	// relative to any cutoff strictly after the zero time.
	require.NoError(t, g.PruneStale(time.Now()))

	_, _, _, err := graph.FetchChannelEdgesByID(ann.ShortChannelID.ToUint64())
	require.ErrorIs(t, err, channeldb.ErrEdgeNotFound)
}
