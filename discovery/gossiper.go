// Package discovery ingests gossip messages into the channel graph:
// signature validation, timestamp-based staleness rejection, and
// pruning of channels absent for too long. Nodes are not pruned.
package discovery

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-errors/errors"

	"github.com/lncore/lncore/channeldb"
	"github.com/lncore/lncore/wire"
)

// pruneAge is how long a channel may go without a fresh policy update
// before AuthenticatedGossiper.PruneStale removes it. Node announcements
// are not aged out.
const pruneAge = 14 * 24 * time.Hour

// AuthenticatedGossiper validates incoming gossip messages and commits
// the ones that pass to the channel graph. It implements
// htlcswitch.GossipHandler. Grounded on the teacher's validateChannelAnn/
// validateNodeAnn/validateChannelUpdateAnn (discovery/validation.go),
// generalized to also own the commit-to-graph and pruning steps that
// file left to its caller.
type AuthenticatedGossiper struct {
	graph *channeldb.ChannelGraph
}

// New returns a gossiper that commits validated announcements to graph.
func New(graph *channeldb.ChannelGraph) *AuthenticatedGossiper {
	return &AuthenticatedGossiper{graph: graph}
}

// HandleGossipMessage validates msg and, if it passes, commits it to the
// channel graph. Unrecognized message types are rejected rather than
// silently ignored, since a peer session should only ever route the
// three gossip types here.
func (g *AuthenticatedGossiper) HandleGossipMessage(msg wire.Message) error {
	switch m := msg.(type) {
	case *wire.ChannelAnnouncement:
		return g.handleChannelAnnouncement(m)
	case *wire.NodeAnnouncement:
		return g.handleNodeAnnouncement(m)
	case *wire.ChannelUpdate:
		return g.handleChannelUpdate(m)
	default:
		return errors.Errorf("discovery: not a gossip message: %T", msg)
	}
}

func (g *AuthenticatedGossiper) handleChannelAnnouncement(a *wire.ChannelAnnouncement) error {
	if err := validateChannelAnn(a); err != nil {
		return err
	}

	var chainHash chainhash.Hash
	copy(chainHash[:], a.ChainHash[:])

	edge := &channeldb.ChannelEdgeInfo{
		ChannelID:   a.ShortChannelID.ToUint64(),
		ChainHash:   chainHash,
		NodeKey1:    a.NodeID1,
		NodeKey2:    a.NodeID2,
		BitcoinKey1: a.BitcoinKey1,
		BitcoinKey2: a.BitcoinKey2,
		AuthProof: &channeldb.ChannelAuthProof{
			NodeSig1:    a.NodeSig1,
			NodeSig2:    a.NodeSig2,
			BitcoinSig1: a.BitcoinSig1,
			BitcoinSig2: a.BitcoinSig2,
		},
	}

	err := g.graph.AddChannelEdge(edge)
	if err == channeldb.ErrEdgeAlreadyExist {
		return nil
	}
	if err == nil {
		log.Debugf("Added channel_announcement for %v", a.ShortChannelID)
	}
	return err
}

func (g *AuthenticatedGossiper) handleNodeAnnouncement(a *wire.NodeAnnouncement) error {
	if err := validateNodeAnn(a); err != nil {
		return err
	}

	node := &channeldb.LightningNode{
		HaveNodeAnnouncement: true,
		LastUpdate:           time.Unix(int64(a.Timestamp), 0),
		PubKey:               a.NodeID,
		Addresses:            a.Addresses,
		Alias:                a.Alias.String(),
		Features:             a.Features,
	}

	existing, err := g.graph.FetchLightningNode(a.NodeID)
	if err == nil && existing.HaveNodeAnnouncement &&
		!existing.LastUpdate.Before(node.LastUpdate) {
		// A node_announcement with a timestamp no newer than what we
		// already have is stale; same rule as channel_update.
		return nil
	}

	return g.graph.AddLightningNode(node)
}

func (g *AuthenticatedGossiper) handleChannelUpdate(u *wire.ChannelUpdate) error {
	chanID := u.ShortChannelID.ToUint64()

	edgeInfo, policy1, policy2, err := g.graph.FetchChannelEdgesByID(chanID)
	if err != nil {
		return errors.Errorf("discovery: channel_update for unknown channel %d: %v",
			chanID, err)
	}

	announcerKey := edgeInfo.NodeKey1
	existing := policy1
	if u.Direction() == 1 {
		announcerKey = edgeInfo.NodeKey2
		existing = policy2
	}

	if err := validateChannelUpdateAnn(announcerKey, u); err != nil {
		return err
	}

	// A channel_update no newer than what's already stored for this
	// (short_channel_id, direction) is dropped.
	newTimestamp := time.Unix(int64(u.Timestamp), 0)
	if existing != nil && !newTimestamp.After(existing.LastUpdate) {
		return nil
	}

	policy := g.graph.NewChannelEdgePolicy()
	policy.Signature = u.Signature
	policy.ChannelID = chanID
	policy.LastUpdate = newTimestamp
	policy.Flags = uint16(u.MessageFlags)<<8 | uint16(u.ChannelFlags)
	policy.TimeLockDelta = u.CLTVExpiryDelta
	policy.MinHTLC = wire.MilliSatoshi(u.HTLCMinimumMsat)
	policy.MaxHTLC = wire.MilliSatoshi(u.HTLCMaximumMsat)
	policy.FeeBaseMSat = wire.MilliSatoshi(u.BaseFeeMsat)
	policy.FeeProportionalMillionths = wire.MilliSatoshi(u.FeeProportionalMillionths)

	return g.graph.UpdateEdgePolicy(policy)
}

// PruneStale removes every channel whose most recent policy update (in
// either direction) is older than pruneAge as of now.
func (g *AuthenticatedGossiper) PruneStale(now time.Time) error {
	cutoff := now.Add(-pruneAge)

	var stale []channeldb.ChannelEdgeInfo
	err := g.graph.ForEachChannel(func(info *channeldb.ChannelEdgeInfo,
		p1, p2 *channeldb.ChannelEdgePolicy) error {

		var latest time.Time
		if p1 != nil && p1.LastUpdate.After(latest) {
			latest = p1.LastUpdate
		}
		if p2 != nil && p2.LastUpdate.After(latest) {
			latest = p2.LastUpdate
		}
		if latest.IsZero() || latest.Before(cutoff) {
			stale = append(stale, *info)
		}
		return nil
	})
	if err != nil && err != channeldb.ErrGraphNotFound && err != channeldb.ErrGraphNoEdgesFound {
		return err
	}

	for i := range stale {
		cp := stale[i].ChannelPoint
		if err := g.graph.DeleteChannelEdge(&cp); err != nil &&
			err != channeldb.ErrEdgeNotFound {
			return err
		}
	}

	return nil
}
