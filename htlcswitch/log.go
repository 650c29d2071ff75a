package htlcswitch

import "github.com/btcsuite/btclog"

// log is this subsystem's logger, set via UseLogger by the process that
// wires up logging (cmd/lncored); until then it discards everything,
// matching every other subsystem logger in this tree. It covers both
// the peer session (peer.go) and the channel/gossip demux, matching the
// spec's "peer" and "htlcswitch" subsystems sharing one package.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the subsystem logger used by package htlcswitch.
func UseLogger(logger btclog.Logger) {
	log = logger
}
