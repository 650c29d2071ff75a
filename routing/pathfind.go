// Package routing finds payment paths over the channel graph.
package routing

import (
	"container/heap"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lncore/lncore/channeldb"
	"github.com/lncore/lncore/wire"
)

// riskFactorBillionth weights a hop's cltv_expiry_delta against its fee
// when Dijkstra compares two otherwise-similar paths: a path that locks
// up funds longer costs more, proportional to the amount at risk. It's
// expressed in billionths so it acts as a tie-breaker between
// comparably-priced routes rather than swamping the fee term, and never
// appears in the fee or CLTV actually reported for the winning route.
const riskFactorBillionth = 15

// ErrNoPathFound is returned when no route from source to target
// satisfies every hop's advertised htlc_minimum/htlc_maximum bounds.
var ErrNoPathFound = errors.New("routing: no path found")

// Hop is one leg of a computed route: the node the payment reaches, the
// channel used to reach it, and the amount/cltv it will see in its onion
// payload.
type Hop struct {
	PubKey       *btcec.PublicKey
	ChannelID    uint64
	AmtToForward wire.MilliSatoshi
	OutgoingCLTV uint32
}

// Path is an ordered route from the node after the source through the
// destination.
type Path []*Hop

// TotalAmtToSend is what the sender must put into the first hop's HTLC.
func (p Path) TotalAmtToSend() wire.MilliSatoshi {
	if len(p) == 0 {
		return 0
	}
	return p[0].AmtToForward
}

// TotalFee is the sender's amount in excess of what the destination
// receives.
func (p Path) TotalFee(destAmt wire.MilliSatoshi) wire.MilliSatoshi {
	if len(p) == 0 {
		return 0
	}
	return p.TotalAmtToSend() - destAmt
}

type directedEdge struct {
	from, to  *btcec.PublicKey
	channelID uint64
	policy    *channeldb.ChannelEdgePolicy
}

// edgeFee is the BOLT #7 fee formula: a flat component plus a
// proportional component, rounded up to the nearest millisatoshi.
func edgeFee(policy *channeldb.ChannelEdgePolicy, amt wire.MilliSatoshi) wire.MilliSatoshi {
	prop := uint64(amt) * uint64(policy.FeeProportionalMillionths)
	propFee := prop / 1_000_000
	if prop%1_000_000 != 0 {
		propFee++
	}
	return wire.MilliSatoshi(uint64(policy.FeeBaseMSat) + propFee)
}

// edgeCost is the Dijkstra edge weight: the fee plus a risk penalty
// proportional to the cltv_expiry_delta the hop holds the funds for.
func edgeCost(policy *channeldb.ChannelEdgePolicy, amt wire.MilliSatoshi) int64 {
	fee := int64(edgeFee(policy, amt))
	risk := int64(amt) * int64(policy.TimeLockDelta) * riskFactorBillionth / 1_000_000_000
	return fee + risk
}

// nodeState is the best known backward-accumulated state for a node
// during the search: the amount and cltv that must arrive there, the
// Dijkstra distance used to rank candidate paths, and a back-pointer to
// the edge used to reach it (so the path can be reconstructed once the
// source is settled).
type nodeState struct {
	known    bool
	visited  bool
	dist     int64
	amt      wire.MilliSatoshi
	cltv     uint32
	viaEdge  *directedEdge
	nextNode string
}

type pathItem struct {
	key  string
	dist int64
}

type pathHeap []*pathItem

func (h pathHeap) Len() int           { return len(h) }
func (h pathHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h pathHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pathHeap) Push(x interface{}) { *h = append(*h, x.(*pathItem)) }
func (h *pathHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// FindPath runs a backward Dijkstra search from target to source over
// graph, minimizing edgeCost, and returns the cheapest route whose every
// hop's amount satisfies that hop's policy's htlc_minimum/htlc_maximum.
// Per spec.md §4.8, the amount and CLTV at the destination are the
// invoice amount and the requested final CLTV delta; each upstream hop's
// values are derived from the next hop's by applying that hop's own fee
// and cltv_expiry_delta, except for the edge adjacent to the source
// itself, which the source doesn't charge or require a delta for (it is
// not forwarding anyone else's payment).
func FindPath(graph *channeldb.ChannelGraph, source, target *btcec.PublicKey,
	amt wire.MilliSatoshi, finalCLTVDelta uint16) (Path, error) {

	incoming, err := buildIncomingIndex(graph)
	if err != nil {
		return nil, err
	}

	keyOf := func(pub *btcec.PublicKey) string { return string(pub.SerializeCompressed()) }
	sourceKey, targetKey := keyOf(source), keyOf(target)

	states := make(map[string]*nodeState)
	states[targetKey] = &nodeState{
		known: true,
		amt:   amt,
		cltv:  uint32(finalCLTVDelta),
	}

	pq := &pathHeap{{key: targetKey, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pathItem)
		v := states[item.key]
		if v.visited {
			continue
		}
		v.visited = true

		if item.key == sourceKey {
			break
		}

		for _, e := range incoming[item.key] {
			uKey := keyOf(e.from)
			isSourceHop := uKey == sourceKey

			// htlc_minimum/htlc_maximum bound the amount this specific
			// edge is asked to carry.
			if v.amt < e.policy.MinHTLC ||
				(e.policy.MaxHTLC > 0 && v.amt > e.policy.MaxHTLC) {
				continue
			}

			fee := edgeFee(e.policy, v.amt)
			delta := uint32(e.policy.TimeLockDelta)
			if isSourceHop {
				fee, delta = 0, 0
			}

			candidate := &nodeState{
				dist:     item.dist + edgeCost(e.policy, v.amt),
				amt:      v.amt + fee,
				cltv:     v.cltv + delta,
				viaEdge:  e,
				nextNode: item.key,
				known:    true,
			}

			existing, ok := states[uKey]
			if !ok || !existing.visited && (!existing.known || candidate.dist < existing.dist) {
				states[uKey] = candidate
				heap.Push(pq, &pathItem{key: uKey, dist: candidate.dist})
			}
		}
	}

	srcState, ok := states[sourceKey]
	if !ok || srcState.viaEdge == nil {
		log.Debugf("No path found for %d msat payment", amt)
		return nil, ErrNoPathFound
	}

	var path Path
	curKey := sourceKey
	for curKey != targetKey {
		st := states[curKey]
		path = append(path, &Hop{
			PubKey:       st.viaEdge.to,
			ChannelID:    st.viaEdge.channelID,
			AmtToForward: states[st.nextNode].amt,
			OutgoingCLTV: states[st.nextNode].cltv,
		})
		curKey = st.nextNode
	}

	return path, nil
}

// buildIncomingIndex maps each node's compressed pubkey to the directed
// edges that end at it, so the backward search can enumerate a settled
// node's predecessors in O(1) instead of scanning the whole graph.
func buildIncomingIndex(graph *channeldb.ChannelGraph) (map[string][]*directedEdge, error) {
	incoming := make(map[string][]*directedEdge)

	err := graph.ForEachChannel(func(info *channeldb.ChannelEdgeInfo,
		p1, p2 *channeldb.ChannelEdgePolicy) error {

		if p1 != nil {
			k := string(info.NodeKey2.SerializeCompressed())
			incoming[k] = append(incoming[k], &directedEdge{
				from: info.NodeKey1, to: info.NodeKey2,
				channelID: info.ChannelID, policy: p1,
			})
		}
		if p2 != nil {
			k := string(info.NodeKey1.SerializeCompressed())
			incoming[k] = append(incoming[k], &directedEdge{
				from: info.NodeKey2, to: info.NodeKey1,
				channelID: info.ChannelID, policy: p2,
			})
		}
		return nil
	})
	if err != nil && err != channeldb.ErrGraphNotFound && err != channeldb.ErrGraphNoEdgesFound {
		return nil, err
	}

	return incoming, nil
}
