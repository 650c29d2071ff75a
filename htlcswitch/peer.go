package htlcswitch

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"

	"github.com/lncore/lncore/noise"
	"github.com/lncore/lncore/wire"
)

// Per spec.md §4.7: a ping is sent every 30s, a pong must arrive within
// 10s, and three consecutive timeouts disconnect the peer. Grounded on
// the teacher's root peer.go pingHandler (same ticker-driven shape), with
// the interval/timeout/strike values restated to the spec's numbers
// instead of the teacher's 1-minute ping with no pong deadline.
const (
	pingInterval  = 30 * time.Second
	pongTimeout   = 10 * time.Second
	maxMissedPong = 3

	outgoingQueueLen = 50
)

// ChannelHandler is implemented by whatever owns the per-channel state
// machine this peer forwards channel-scoped messages to. Unknown
// channel_ids are reported back to the caller as a channel-scoped error
// per spec.md §4.7, rather than handled here.
type ChannelHandler interface {
	// HandleChannelMessage processes a message addressed to chanID.
	// ErrUnknownChannel signals the peer to send back a BOLT `error`
	// naming that channel_id.
	HandleChannelMessage(chanID wire.ChannelID, msg wire.Message) error
}

// GossipHandler is implemented by the graph ingestor that gossip
// messages (channel_announcement, node_announcement, channel_update, and
// the gossip query types) are routed to.
type GossipHandler interface {
	HandleGossipMessage(msg wire.Message) error
}

// ErrUnknownChannel is returned by a ChannelHandler when a message's
// channel_id doesn't match any channel known to this peer.
var ErrUnknownChannel = errors.New("htlcswitch: unknown channel_id")

type outgoingMsg struct {
	msg  wire.Message
	done chan struct{} // closed once written; MUST be buffered-safe (nil allowed)
}

// Peer manages one Noise-encrypted TCP connection to a remote Lightning
// node, once the Noise handshake is done: the mandatory Init exchange, ping/pong
// liveness, and demultiplexing inbound messages to channels or the
// gossip ingestor. Grounded on the teacher's root peer.go (same
// readHandler/writeHandler/queueHandler/pingHandler goroutine split),
// generalized behind ChannelHandler/GossipHandler so this package
// doesn't depend on a concrete channel or graph implementation.
type Peer struct {
	conn *noise.Conn

	localFeatures *wire.FeatureVector
	knownFeatures map[wire.FeatureBit]struct{}

	remoteFeatures *wire.Init

	channels ChannelHandler
	gossip   GossipHandler

	outgoingQueue chan outgoingMsg

	missedPongs int32
	pongChan    chan struct{}

	disconnect int32
	quit       chan struct{}
	wg         sync.WaitGroup

	disconnectOnce sync.Once
	onDisconnect   func(*Peer)
}

// NewPeer wraps an already-handshaken Noise connection. localFeatures are
// offered in our Init; knownFeatures lists every even (required) feature
// bit we understand, used to reject a peer's Init if it sets an unknown
// one.
func NewPeer(conn *noise.Conn, localFeatures *wire.FeatureVector,
	knownFeatures map[wire.FeatureBit]struct{}, channels ChannelHandler,
	gossip GossipHandler) *Peer {

	return &Peer{
		conn:          conn,
		localFeatures: localFeatures,
		knownFeatures: knownFeatures,
		channels:      channels,
		gossip:        gossip,
		outgoingQueue: make(chan outgoingMsg, outgoingQueueLen),
		pongChan:      make(chan struct{}, 1),
		quit:          make(chan struct{}),
	}
}

// Start performs the mandatory Init exchange and then launches the
// message loop, ping loop, and write loop. No channel operation may
// proceed until this returns successfully.
func (p *Peer) Start() error {
	if err := p.sendMessage(&wire.Init{
		GlobalFeatures: wire.NewFeatureVector(),
		Features:       p.localFeatures,
	}); err != nil {
		return fmt.Errorf("htlcswitch: sending init: %w", err)
	}

	msg, err := p.readMessage()
	if err != nil {
		return fmt.Errorf("htlcswitch: reading init: %w", err)
	}
	initMsg, ok := msg.(*wire.Init)
	if !ok {
		return errors.New("htlcswitch: first message must be init")
	}
	if err := p.handleInit(initMsg); err != nil {
		return err
	}

	p.wg.Add(3)
	go p.writeHandler()
	go p.readHandler()
	go p.pingHandler()

	return nil
}

// handleInit validates the peer's feature vector; an unknown even bit
// forces a disconnect per spec.md §4.7.
func (p *Peer) handleInit(msg *wire.Init) error {
	unknown := msg.Features.UnknownEvenBits(p.knownFeatures)
	unknown = append(unknown, msg.GlobalFeatures.UnknownEvenBits(p.knownFeatures)...)
	if len(unknown) > 0 {
		return fmt.Errorf("htlcswitch: peer set unknown even feature bit %d", unknown[0])
	}

	p.remoteFeatures = msg
	return nil
}

// Stop signals every goroutine to exit and closes the connection. It
// blocks until they've all returned.
func (p *Peer) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.disconnect, 0, 1) {
		return nil
	}
	log.Infof("Stopping peer")
	close(p.quit)
	p.conn.Close()
	p.wg.Wait()
	return nil
}

// disconnectAsync tears the peer down from within a read/write/ping
// goroutine without deadlocking on Stop's wg.Wait.
func (p *Peer) disconnectAsync() {
	p.disconnectOnce.Do(func() {
		if !atomic.CompareAndSwapInt32(&p.disconnect, 0, 1) {
			return
		}
		log.Debugf("Peer disconnecting")
		close(p.quit)
		p.conn.Close()
		if p.onDisconnect != nil {
			p.onDisconnect(p)
		}
	})
}

func (p *Peer) readMessage() (wire.Message, error) {
	raw, err := p.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return wire.ReadMessage(newByteReader(raw))
}

func (p *Peer) writeMessageNow(msg wire.Message) error {
	var buf byteBuffer
	if _, err := wire.WriteMessage(&buf, msg); err != nil {
		return err
	}
	return p.conn.WriteMessage(buf.Bytes())
}

// sendMessage writes synchronously, used only before the write loop is
// running (the Init handshake).
func (p *Peer) sendMessage(msg wire.Message) error {
	return p.writeMessageNow(msg)
}

// QueueMessage schedules msg for delivery by the write loop. done, if
// non-nil, is closed once the message has actually been written.
func (p *Peer) QueueMessage(msg wire.Message, done chan struct{}) {
	select {
	case p.outgoingQueue <- outgoingMsg{msg: msg, done: done}:
	case <-p.quit:
		if done != nil {
			close(done)
		}
	}
}

func (p *Peer) writeHandler() {
	defer p.wg.Done()
	for {
		select {
		case out := <-p.outgoingQueue:
			err := p.writeMessageNow(out.msg)
			if out.done != nil {
				close(out.done)
			}
			if err != nil {
				p.disconnectAsync()
				return
			}
		case <-p.quit:
			return
		}
	}
}

// readHandler reads and demultiplexes every inbound message: pong
// arrivals reset the missed-pong counter, pings asking for at most
// wire.MaxPongBytes get a pong of that length (larger requests are ignored),
// channel-scoped messages go to the ChannelHandler, and everything else
// falls to the gossip ingestor.
func (p *Peer) readHandler() {
	defer p.wg.Done()

	for {
		msg, err := p.readMessage()
		if err != nil {
			p.disconnectAsync()
			return
		}

		switch m := msg.(type) {
		case *wire.Ping:
			if m.PongLen <= wire.MaxPongBytes {
				p.QueueMessage(&wire.Pong{PongBytes: make([]byte, m.PongLen)}, nil)
			}
			continue
		case *wire.Pong:
			select {
			case p.pongChan <- struct{}{}:
			default:
			}
			continue
		}

		chanID, isChannelMsg := messageChanID(msg)
		if isChannelMsg {
			if err := p.channels.HandleChannelMessage(chanID, msg); err != nil {
				p.QueueMessage(&wire.Error{
					ChanID: chanID,
					Data:   []byte(err.Error()),
				}, nil)
			}
			continue
		}

		if err := p.gossip.HandleGossipMessage(msg); err != nil {
			// Gossip validation failures are dropped silently; a
			// connection-wide warning would be disproportionate
			// for a single bad announcement.
			continue
		}
	}
}

// pingHandler drives the 30s ping / 10s pong-deadline / 3-strike
// disconnect rule from spec.md §4.7.
func (p *Peer) pingHandler() {
	defer p.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var nonceBuf [8]byte
			rand.Read(nonceBuf[:])
			_ = binary.BigEndian.Uint64(nonceBuf[:])

			p.QueueMessage(&wire.Ping{PongLen: 8}, nil)

			select {
			case <-p.pongChan:
				atomic.StoreInt32(&p.missedPongs, 0)
			case <-time.After(pongTimeout):
				if atomic.AddInt32(&p.missedPongs, 1) >= maxMissedPong {
					p.disconnectAsync()
					return
				}
			case <-p.quit:
				return
			}
		case <-p.quit:
			return
		}
	}
}

// messageChanID extracts the channel_id a channel-scoped message
// carries, covering every BOLT #2 message type this core decodes.
func messageChanID(msg wire.Message) (wire.ChannelID, bool) {
	switch m := msg.(type) {
	case *wire.AcceptChannel:
		return m.TemporaryChanID, true
	case *wire.FundingCreated:
		return m.TemporaryChanID, true
	case *wire.FundingSigned:
		return m.ChanID, true
	case *wire.ChannelReady:
		return m.ChanID, true
	case *wire.Shutdown:
		return m.ChanID, true
	case *wire.ClosingSigned:
		return m.ChanID, true
	case *wire.UpdateAddHTLC:
		return m.ChanID, true
	case *wire.UpdateFulfillHTLC:
		return m.ChanID, true
	case *wire.UpdateFailHTLC:
		return m.ChanID, true
	case *wire.UpdateFailMalformedHTLC:
		return m.ChanID, true
	case *wire.CommitmentSigned:
		return m.ChanID, true
	case *wire.RevokeAndAck:
		return m.ChanID, true
	case *wire.UpdateFee:
		return m.ChanID, true
	case *wire.ChannelReestablish:
		return m.ChanID, true
	case *wire.Error:
		return m.ChanID, true
	case *wire.Warning:
		return m.ChanID, true
	default:
		return wire.ChannelID{}, false
	}
}

// newByteReader and byteBuffer avoid importing bytes/io twice for the
// tiny amount of buffering needed between noise.Conn's raw []byte
// messages and wire.Message's io.Reader/io.Writer codec.
type byteReader struct {
	b   []byte
	pos int
}

func newByteReader(b []byte) *byteReader { return &byteReader{b: b} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, errEOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

var errEOF = fmt.Errorf("htlcswitch: EOF")

type byteBuffer struct {
	buf []byte
}

func (b *byteBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *byteBuffer) Bytes() []byte { return b.buf }

// net is imported only to document Peer's relationship to the
// underlying transport in godoc; the noise.Conn already wraps net.Conn.
var _ net.Conn = (*net.TCPConn)(nil)
