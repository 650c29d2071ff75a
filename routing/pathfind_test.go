package routing

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lncore/lncore/channeldb"
	"github.com/lncore/lncore/wire"
)

func makeTestGraph(t *testing.T) *channeldb.ChannelGraph {
	t.Helper()

	dir, err := ioutil.TempDir("", "routing-graph")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := channeldb.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db.ChannelGraph()
}

func addTestNode(t *testing.T, graph *channeldb.ChannelGraph) *btcec.PublicKey {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey()

	require.NoError(t, graph.AddLightningNode(&channeldb.LightningNode{
		PubKey: pub,
	}))
	return pub
}

// edgePolicy is the handful of fields pathfinding cares about; addTestChannel
// turns it into a stored ChannelEdgePolicy for one direction.
type edgePolicy struct {
	cltvDelta uint16
	minHTLC   wire.MilliSatoshi
	maxHTLC   wire.MilliSatoshi
	baseFee   wire.MilliSatoshi
	propPPM   wire.MilliSatoshi
}

// addTestChannel registers a channel between n1 and n2 with n1 as
// NodeKey1. fwd describes n1's policy for forwarding n1->n2 (Flags 0);
// back, if non-nil, describes n2's policy for n2->n1 (Flags 1).
func addTestChannel(t *testing.T, graph *channeldb.ChannelGraph, n1, n2 *btcec.PublicKey,
	scid uint64, fwd, back *edgePolicy) {

	t.Helper()

	require.NoError(t, graph.AddChannelEdge(&channeldb.ChannelEdgeInfo{
		ChannelID:   scid,
		NodeKey1:    n1,
		NodeKey2:    n2,
		BitcoinKey1: n1,
		BitcoinKey2: n2,
	}))

	apply := func(p *edgePolicy, flags uint16) {
		if p == nil {
			return
		}
		policy := graph.NewChannelEdgePolicy()
		policy.ChannelID = scid
		policy.LastUpdate = time.Now()
		policy.Flags = flags
		policy.TimeLockDelta = p.cltvDelta
		policy.MinHTLC = p.minHTLC
		policy.MaxHTLC = p.maxHTLC
		policy.FeeBaseMSat = p.baseFee
		policy.FeeProportionalMillionths = p.propPPM
		require.NoError(t, graph.UpdateEdgePolicy(policy))
	}

	apply(fwd, 0)
	apply(back, 1)
}

// TestFindPathWorkedExample reproduces the worked two-hop example: A--B
// charges 1000 msat base / 1 ppm with a 40 block delta, B--C charges 500
// msat base / 10 ppm with a 24 block delta. Paying 100,000 msat to C
// with a final CLTV delta of 18 costs B 501 msat (500 base + 1 for the
// proportional share of the 100,000 msat it forwards), so A must send
// 100,501. The edge adjacent to the source (A--B) doesn't charge a fee
// of its own, since A is originating the payment rather than forwarding
// someone else's.
func TestFindPathWorkedExample(t *testing.T) {
	graph := makeTestGraph(t)

	a := addTestNode(t, graph)
	b := addTestNode(t, graph)
	c := addTestNode(t, graph)

	addTestChannel(t, graph, a, b, 1, &edgePolicy{
		cltvDelta: 40,
		minHTLC:   1,
		maxHTLC:   1_000_000_000,
		baseFee:   1000,
		propPPM:   1,
	}, nil)
	addTestChannel(t, graph, b, c, 2, &edgePolicy{
		cltvDelta: 24,
		minHTLC:   1,
		maxHTLC:   1_000_000_000,
		baseFee:   500,
		propPPM:   10,
	}, nil)

	path, err := FindPath(graph, a, c, 100_000, 18)
	require.NoError(t, err)
	require.Len(t, path, 2)

	require.True(t, path[0].PubKey.IsEqual(b))
	require.Equal(t, uint64(1), path[0].ChannelID)
	require.Equal(t, wire.MilliSatoshi(100_501), path[0].AmtToForward)

	require.True(t, path[1].PubKey.IsEqual(c))
	require.Equal(t, uint64(2), path[1].ChannelID)
	require.Equal(t, wire.MilliSatoshi(100_000), path[1].AmtToForward)
	require.Equal(t, uint32(18), path[1].OutgoingCLTV)

	require.Equal(t, wire.MilliSatoshi(100_501), path.TotalAmtToSend())
	require.Equal(t, wire.MilliSatoshi(501), path.TotalFee(100_000))
}

// TestFindPathPrefersCheaperRoute gives C two ways in from A -- directly,
// at a steep flat rate, and via B at a cheap one -- and checks Dijkstra
// picks the cheaper multi-hop route over the pricier direct channel.
func TestFindPathPrefersCheaperRoute(t *testing.T) {
	graph := makeTestGraph(t)

	a := addTestNode(t, graph)
	b := addTestNode(t, graph)
	c := addTestNode(t, graph)

	addTestChannel(t, graph, a, c, 10, &edgePolicy{
		cltvDelta: 40,
		minHTLC:   1,
		maxHTLC:   1_000_000_000,
		baseFee:   50_000,
		propPPM:   0,
	}, nil)
	addTestChannel(t, graph, a, b, 11, &edgePolicy{
		cltvDelta: 40,
		minHTLC:   1,
		maxHTLC:   1_000_000_000,
		baseFee:   100,
		propPPM:   1,
	}, nil)
	addTestChannel(t, graph, b, c, 12, &edgePolicy{
		cltvDelta: 24,
		minHTLC:   1,
		maxHTLC:   1_000_000_000,
		baseFee:   100,
		propPPM:   1,
	}, nil)

	path, err := FindPath(graph, a, c, 100_000, 18)
	require.NoError(t, err)
	require.Len(t, path, 2)
	require.True(t, path[0].PubKey.IsEqual(b))
	require.True(t, path[1].PubKey.IsEqual(c))
}

// TestFindPathSkipsBelowMinHTLC checks that a hop advertising a
// htlc_minimum_msat above the payment amount is excluded from the
// search, even when it would otherwise be the only route.
func TestFindPathSkipsBelowMinHTLC(t *testing.T) {
	graph := makeTestGraph(t)

	a := addTestNode(t, graph)
	b := addTestNode(t, graph)

	addTestChannel(t, graph, a, b, 1, &edgePolicy{
		cltvDelta: 40,
		minHTLC:   1_000_000,
		maxHTLC:   2_000_000,
		baseFee:   0,
		propPPM:   0,
	}, nil)

	_, err := FindPath(graph, a, b, 100_000, 18)
	require.ErrorIs(t, err, ErrNoPathFound)
}

// TestFindPathSkipsAboveMaxHTLC mirrors the minimum check for the
// htlc_maximum_msat ceiling.
func TestFindPathSkipsAboveMaxHTLC(t *testing.T) {
	graph := makeTestGraph(t)

	a := addTestNode(t, graph)
	b := addTestNode(t, graph)

	addTestChannel(t, graph, a, b, 1, &edgePolicy{
		cltvDelta: 40,
		minHTLC:   1,
		maxHTLC:   10_000,
		baseFee:   0,
		propPPM:   0,
	}, nil)

	_, err := FindPath(graph, a, b, 100_000, 18)
	require.ErrorIs(t, err, ErrNoPathFound)
}

// TestFindPathNoRoute checks the unreachable-destination case.
func TestFindPathNoRoute(t *testing.T) {
	graph := makeTestGraph(t)

	a := addTestNode(t, graph)
	b := addTestNode(t, graph)

	addTestChannel(t, graph, a, b, 1, &edgePolicy{
		cltvDelta: 40,
		minHTLC:   1,
		maxHTLC:   1_000_000_000,
		baseFee:   100,
		propPPM:   1,
	}, nil)

	isolated := addTestNode(t, graph)
	_, err := FindPath(graph, a, isolated, 1000, 18)
	require.ErrorIs(t, err, ErrNoPathFound)
}
