package wire

import "github.com/btcsuite/btclog"

// log is this subsystem's logger, set via UseLogger by the process that
// wires up logging (cmd/lncored); until then it discards everything,
// matching every other subsystem logger in this tree.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the subsystem logger used by package wire.
func UseLogger(logger btclog.Logger) {
	log = logger
}
