package htlcswitch

import (
	"bytes"
	"crypto/sha256"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/lncore/lncore/noise"
	"github.com/lncore/lncore/wire"
)

type fakeChannels struct {
	got chan wire.ChannelID
}

func (f *fakeChannels) HandleChannelMessage(chanID wire.ChannelID, msg wire.Message) error {
	f.got <- chanID
	return nil
}

type fakeGossip struct {
	got chan wire.Message
}

func (f *fakeGossip) HandleGossipMessage(msg wire.Message) error {
	f.got <- msg
	return nil
}

// dialedPeerPair performs a real Noise_XK handshake over an in-memory
// pipe and returns two Peers, already through the Init exchange, wired
// to their own fake handlers.
func dialedPeerPair(t *testing.T) (initiator, responder *Peer, initChans, respChans *fakeChannels, initGossip, respGossip *fakeGossip) {
	t.Helper()

	connA, connB := net.Pipe()

	initKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	respKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	type result struct {
		conn *noise.Conn
		err  error
	}
	initCh := make(chan result, 1)
	respCh := make(chan result, 1)

	go func() {
		c, err := noise.Dial(connA, initKey, respKey.PubKey())
		initCh <- result{c, err}
	}()
	go func() {
		c, err := noise.Accept(connB, respKey)
		respCh <- result{c, err}
	}()

	ir := <-initCh
	rr := <-respCh
	require.NoError(t, ir.err)
	require.NoError(t, rr.err)

	initChans = &fakeChannels{got: make(chan wire.ChannelID, 4)}
	respChans = &fakeChannels{got: make(chan wire.ChannelID, 4)}
	initGossip = &fakeGossip{got: make(chan wire.Message, 4)}
	respGossip = &fakeGossip{got: make(chan wire.Message, 4)}

	known := map[wire.FeatureBit]struct{}{}

	initiator = NewPeer(ir.conn, wire.NewFeatureVector(), known, initChans, initGossip)
	responder = NewPeer(rr.conn, wire.NewFeatureVector(), known, respChans, respGossip)

	startErrCh := make(chan error, 2)
	go func() { startErrCh <- initiator.Start() }()
	go func() { startErrCh <- responder.Start() }()

	require.NoError(t, <-startErrCh)
	require.NoError(t, <-startErrCh)

	return
}

func TestPeerInitHandshakeAndChannelDemux(t *testing.T) {
	initiator, responder, _, respChans, _, _ := dialedPeerPair(t)
	defer initiator.Stop()
	defer responder.Stop()

	var chanID wire.ChannelID
	chanID[0] = 0x42

	done := make(chan struct{})
	initiator.QueueMessage(&wire.Shutdown{ChanID: chanID, ScriptPubKey: []byte{0x00, 0x14}}, done)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write")
	}

	select {
	case got := <-respChans.got:
		require.Equal(t, chanID, got)
	case <-time.After(2 * time.Second):
		t.Fatal("responder never received channel message")
	}
}

func TestPeerGossipRouting(t *testing.T) {
	initiator, responder, _, _, _, respGossip := dialedPeerPair(t)
	defer initiator.Stop()
	defer responder.Stop()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	ann := &wire.NodeAnnouncement{
		Features:  wire.NewFeatureVector(),
		Timestamp: 1,
		NodeID:    priv.PubKey(),
	}
	var signBuf bytes.Buffer
	require.NoError(t, ann.DataToSign(&signBuf))
	digest := sha256.Sum256(signBuf.Bytes())
	ann.Signature = ecdsa.Sign(priv, digest[:])

	done := make(chan struct{})
	initiator.QueueMessage(ann, done)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write")
	}

	select {
	case <-respGossip.got:
	case <-time.After(2 * time.Second):
		t.Fatal("responder never routed gossip message")
	}
}

func TestPeerRejectsUnknownEvenFeatureBit(t *testing.T) {
	connA, connB := net.Pipe()

	initKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	respKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	type result struct {
		conn *noise.Conn
		err  error
	}
	initCh := make(chan result, 1)
	respCh := make(chan result, 1)
	go func() {
		c, err := noise.Dial(connA, initKey, respKey.PubKey())
		initCh <- result{c, err}
	}()
	go func() {
		c, err := noise.Accept(connB, respKey)
		respCh <- result{c, err}
	}()
	ir := <-initCh
	rr := <-respCh
	require.NoError(t, ir.err)
	require.NoError(t, rr.err)

	const unknownEvenBit wire.FeatureBit = 100

	respChans := &fakeChannels{got: make(chan wire.ChannelID, 1)}
	respGossip := &fakeGossip{got: make(chan wire.Message, 1)}
	responder := NewPeer(rr.conn, wire.NewFeatureVector(), map[wire.FeatureBit]struct{}{}, respChans, respGossip)

	initChans := &fakeChannels{got: make(chan wire.ChannelID, 1)}
	initGossip := &fakeGossip{got: make(chan wire.Message, 1)}
	initiator := NewPeer(ir.conn, wire.NewFeatureVector(unknownEvenBit), map[wire.FeatureBit]struct{}{}, initChans, initGossip)

	startErrCh := make(chan error, 2)
	go func() { startErrCh <- initiator.Start() }()
	go func() { startErrCh <- responder.Start() }()

	errsSeen := 0
	for i := 0; i < 2; i++ {
		if err := <-startErrCh; err != nil {
			errsSeen++
		}
	}
	require.Greater(t, errsSeen, 0)
}
