// Command lncored wires the packages in this module together into a
// running Lightning node process: it opens the channel database, starts
// the gossip ingestor, and accepts Noise-encrypted peer connections on
// every configured listen address. Grounded on the teacher's lnd.go/
// server.go split, scoped down to the pieces this module actually
// implements -- there is no chain backend, wallet, or RPC server here,
// since those collaborators are defined only as interfaces (ChainBackend,
// MasterKeyStore) for this module's tests to mock.
package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lncore/lncore/channeldb"
	"github.com/lncore/lncore/discovery"
	"github.com/lncore/lncore/htlcswitch"
	"github.com/lncore/lncore/noise"
	"github.com/lncore/lncore/wire"
)

// nodeKeyFilename is where the node's static identity key is persisted,
// raw and unencrypted, under DataDir. A full keychain.KeyRing needs a
// MasterKeyStore this module never implements, so a standalone daemon
// process needs a key it can actually materialize on its own.
const nodeKeyFilename = "identity.key"

// knownFeatureBits lists every even (required) feature bit this core
// understands; an Init setting any other even bit forces a disconnect
// per spec.md §4.7.
var knownFeatureBits = map[wire.FeatureBit]struct{}{
	wire.DataLossProtectOptional: {},
	wire.DataLossProtectRequired: {},
	wire.StaticRemoteKeyOptional: {},
	wire.StaticRemoteKeyRequired: {},
	wire.GossipQueriesOptional:   {},
	wire.GossipQueriesRequired:   {},
}

// noopChannelHandler rejects every channel-scoped message with
// ErrUnknownChannel. This process-wiring entry point doesn't yet attach a
// channel state machine registry to incoming peers; it exists so Peer
// can be constructed and exercised (gossip, ping/pong, init) without a
// concrete htlcswitch.Switch.
type noopChannelHandler struct{}

func (noopChannelHandler) HandleChannelMessage(wire.ChannelID, wire.Message) error {
	return htlcswitch.ErrUnknownChannel
}

func main() {
	if err := lncoredMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func lncoredMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := initLogRotator(
		filepath.Join(cfg.LogDir, defaultLogFilename),
		defaultMaxLogMBSize, defaultMaxLogFiles,
	); err != nil {
		return fmt.Errorf("lncored: initializing log rotator: %w", err)
	}
	useLoggers()
	setLogLevels(cfg.DebugLevel)

	log.Infof("Starting lncored, data_dir=%v", cfg.DataDir)

	db, err := channeldb.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("lncored: opening channel db: %w", err)
	}
	defer db.Close()

	graph := db.ChannelGraph()
	gossiper := discovery.New(graph)

	identityKey, err := loadOrCreateNodeKey(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("lncored: loading node identity key: %w", err)
	}
	log.Infof("Node identity pubkey: %x", identityKey.PubKey().SerializeCompressed())

	localFeatures := wire.NewFeatureVector(
		wire.DataLossProtectOptional,
		wire.StaticRemoteKeyOptional,
		wire.GossipQueriesOptional,
	)

	n := &node{
		identityKey: identityKey,
		gossiper:    gossiper,
		features:    localFeatures,
	}

	listeners := make([]net.Listener, 0, len(cfg.ListenAddrs))
	for _, addr := range cfg.ListenAddrs {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("lncored: listening on %v: %w", addr, err)
		}
		listeners = append(listeners, l)
		log.Infof("Listening for peer connections on %v", addr)
		go n.acceptLoop(l)
	}

	if len(listeners) == 0 {
		log.Warnf("No listen addresses configured; running with no inbound peers")
	}

	select {}
}

// node bundles the collaborators an accepted peer connection needs.
type node struct {
	identityKey *btcec.PrivateKey
	gossiper    *discovery.AuthenticatedGossiper
	features    *wire.FeatureVector
}

// acceptLoop accepts inbound TCP connections on l, performs the Noise
// responder handshake, and hands each successfully handshaken connection
// to a new Peer.
func (n *node) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			log.Errorf("Accept failed on %v: %v", l.Addr(), err)
			return
		}
		go n.inboundPeer(conn)
	}
}

func (n *node) inboundPeer(conn net.Conn) {
	noiseConn, err := noise.Accept(conn, n.identityKey)
	if err != nil {
		log.Debugf("Noise handshake failed with %v: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	p := htlcswitch.NewPeer(noiseConn, n.features, knownFeatureBits,
		noopChannelHandler{}, n.gossiper)
	if err := p.Start(); err != nil {
		log.Debugf("Peer handshake failed with %v: %v", conn.RemoteAddr(), err)
		return
	}

	log.Infof("New inbound peer connection from %v", conn.RemoteAddr())
}

// loadOrCreateNodeKey reads the node's static identity key from dataDir,
// generating and persisting a fresh one on first run.
func loadOrCreateNodeKey(dataDir string) (*btcec.PrivateKey, error) {
	keyPath := filepath.Join(dataDir, nodeKeyFilename)

	raw, err := os.ReadFile(keyPath)
	if err == nil {
		priv, _ := btcec.PrivKeyFromBytes(raw)
		return priv, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(keyPath, priv.Serialize(), 0600); err != nil {
		return nil, err
	}

	return priv, nil
}
