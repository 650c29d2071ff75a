package channeldb

import (
	"fmt"
	"image/color"
	"io/ioutil"
	"math/rand"
	"net"
	"os"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	lnwire "github.com/lncore/lncore/wire"
)

var (
	testAddr = &net.TCPAddr{IP: net.IP{0xA, 0x0, 0x0, 0x1}, Port: 9000}

	testChainHash = chainhash.Hash{1, 2, 3}

	testFeatures = lnwire.NewFeatureVector()
)

func makeTestDB(t *testing.T) *DB {
	dir, err := ioutil.TempDir("", "channeldb-graph")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func testSignature(t *testing.T) *ecdsa.Signature {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	sig := ecdsa.Sign(priv, testChainHash[:])
	return sig
}

func createTestVertex(t *testing.T, db *DB) *LightningNode {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	pub := priv.PubKey()
	return &LightningNode{
		HaveNodeAnnouncement: true,
		LastUpdate:           time.Unix(rand.Int63n(1<<32), 0),
		PubKey:               pub,
		Color:                color.RGBA{1, 2, 3, 0},
		Alias:                fmt.Sprintf("node-%x", pub.SerializeCompressed()[1:5]),
		Features:             testFeatures,
		Addresses:            []net.Addr{testAddr},
		AuthSig:              testSignature(t),
	}
}

func TestNodeInsertionAndDeletion(t *testing.T) {
	db := makeTestDB(t)
	graph := db.ChannelGraph()

	node := createTestVertex(t, db)
	require.NoError(t, graph.AddLightningNode(node))

	dbNode, err := graph.FetchLightningNode(node.PubKey)
	require.NoError(t, err)
	require.True(t, node.PubKey.IsEqual(dbNode.PubKey))
	require.Equal(t, node.Alias, dbNode.Alias)

	_, exists, err := graph.HasLightningNode(node.PubKey)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, graph.DeleteLightningNode(node.PubKey))

	_, err = graph.FetchLightningNode(node.PubKey)
	require.ErrorIs(t, err, ErrGraphNodeNotFound)
}

func TestPartialNode(t *testing.T) {
	db := makeTestDB(t)
	graph := db.ChannelGraph()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	node := &LightningNode{PubKey: priv.PubKey()}
	require.NoError(t, graph.AddLightningNode(node))

	dbNode, err := graph.FetchLightningNode(priv.PubKey())
	require.NoError(t, err)
	require.False(t, dbNode.HaveNodeAnnouncement)
}

func TestAliasLookup(t *testing.T) {
	db := makeTestDB(t)
	graph := db.ChannelGraph()

	node := createTestVertex(t, db)
	require.NoError(t, graph.AddLightningNode(node))

	alias, err := graph.LookupAlias(node.PubKey)
	require.NoError(t, err)
	require.Equal(t, node.Alias, alias)

	other := createTestVertex(t, db)
	_, err = graph.LookupAlias(other.PubKey)
	require.ErrorIs(t, err, ErrNodeAliasNotFound)
}

func TestSourceNode(t *testing.T) {
	db := makeTestDB(t)
	graph := db.ChannelGraph()

	node := createTestVertex(t, db)
	require.NoError(t, graph.AddLightningNode(node))
	require.NoError(t, graph.SetSourceNode(node))

	source, err := graph.SourceNode()
	require.NoError(t, err)
	require.True(t, node.PubKey.IsEqual(source.PubKey))
}

func newTestEdge(t *testing.T, db *DB, node1, node2 *LightningNode, chanID uint64) (*ChannelEdgeInfo, wire.OutPoint) {
	var hash chainhash.Hash
	rand.Read(hash[:])
	outpoint := wire.OutPoint{Hash: hash, Index: 1}

	sig := testSignature(t)
	return &ChannelEdgeInfo{
		ChannelID:   chanID,
		ChainHash:   testChainHash,
		NodeKey1:    node1.PubKey,
		NodeKey2:    node2.PubKey,
		BitcoinKey1: node1.PubKey,
		BitcoinKey2: node2.PubKey,
		AuthProof: &ChannelAuthProof{
			NodeSig1:    sig,
			NodeSig2:    sig,
			BitcoinSig1: sig,
			BitcoinSig2: sig,
		},
		ChannelPoint: outpoint,
		Capacity:     9000,
	}, outpoint
}

func TestEdgeInsertionDeletion(t *testing.T) {
	db := makeTestDB(t)
	graph := db.ChannelGraph()

	node1 := createTestVertex(t, db)
	node2 := createTestVertex(t, db)
	require.NoError(t, graph.AddLightningNode(node1))
	require.NoError(t, graph.AddLightningNode(node2))

	chanID := uint64(rand.Int63())
	edgeInfo, outpoint := newTestEdge(t, db, node1, node2, chanID)

	require.NoError(t, graph.AddChannelEdge(edgeInfo))
	require.NoError(t, graph.DeleteChannelEdge(&outpoint))

	_, _, _, err := graph.FetchChannelEdgesByOutpoint(&outpoint)
	require.Error(t, err)

	_, _, _, err = graph.FetchChannelEdgesByID(chanID)
	require.Error(t, err)

	err = graph.DeleteChannelEdge(&outpoint)
	require.ErrorIs(t, err, ErrEdgeNotFound)
}

func TestEdgeInfoUpdates(t *testing.T) {
	db := makeTestDB(t)
	graph := db.ChannelGraph()

	node1 := createTestVertex(t, db)
	node2 := createTestVertex(t, db)
	require.NoError(t, graph.AddLightningNode(node1))
	require.NoError(t, graph.AddLightningNode(node2))

	chanID := uint64(rand.Int63())
	edgeInfo, _ := newTestEdge(t, db, node1, node2, chanID)
	require.NoError(t, graph.AddChannelEdge(edgeInfo))

	edge1 := graph.NewChannelEdgePolicy()
	edge1.ChannelID = chanID
	edge1.LastUpdate = time.Now()
	edge1.Flags = 0
	edge1.TimeLockDelta = 10
	edge1.MinHTLC = 1000
	edge1.FeeBaseMSat = 10000
	edge1.FeeProportionalMillionths = 1
	edge1.Signature = testSignature(t)
	require.NoError(t, graph.UpdateEdgePolicy(edge1))

	_, p1, p2, err := graph.FetchChannelEdgesByID(chanID)
	require.NoError(t, err)
	require.NotNil(t, p1)
	require.Equal(t, uint16(10), p1.TimeLockDelta)
	require.Nil(t, p2)
}

func TestGraphPruning(t *testing.T) {
	db := makeTestDB(t)
	graph := db.ChannelGraph()

	node1 := createTestVertex(t, db)
	node2 := createTestVertex(t, db)
	require.NoError(t, graph.AddLightningNode(node1))
	require.NoError(t, graph.AddLightningNode(node2))

	chanID := uint64(rand.Int63())
	edgeInfo, outpoint := newTestEdge(t, db, node1, node2, chanID)
	require.NoError(t, graph.AddChannelEdge(edgeInfo))

	chanPoints, err := graph.ChannelView()
	require.NoError(t, err)
	require.Len(t, chanPoints, 1)

	var blockHash chainhash.Hash
	rand.Read(blockHash[:])
	closed, err := graph.PruneGraph([]*wire.OutPoint{&outpoint}, &blockHash, 100)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.Equal(t, chanID, closed[0].ChannelID)

	tipHash, tipHeight, err := graph.PruneTip()
	require.NoError(t, err)
	require.Equal(t, blockHash, *tipHash)
	require.Equal(t, uint32(100), tipHeight)

	chanPoints, err = graph.ChannelView()
	require.NoError(t, err)
	require.Len(t, chanPoints, 0)
}
