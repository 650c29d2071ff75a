package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/lncore/lncore/channeldb"
	"github.com/lncore/lncore/discovery"
	"github.com/lncore/lncore/htlcswitch"
	"github.com/lncore/lncore/lnwallet"
	"github.com/lncore/lncore/noise"
	"github.com/lncore/lncore/onion"
	"github.com/lncore/lncore/revocation"
	"github.com/lncore/lncore/routing"
	"github.com/lncore/lncore/watchtower"
	"github.com/lncore/lncore/wire"
)

// rootLogWriter fans every subsystem's output out to stdout and, once
// initLogRotator has run, to the rotating log file via rotatorPipe.
// Grounded on the teacher's (breez-lightninglib/daemon) logWriter/
// RotatorPipe split.
type rootLogWriter struct {
	rotatorPipe *io.PipeWriter
}

func (w *rootLogWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if w.rotatorPipe != nil {
		w.rotatorPipe.Write(p)
	}
	return len(p), nil
}

var rootWriter = &rootLogWriter{}

// backendLog is the root logger backend every subsystem logger is spun
// off from, following the teacher's ltndLog/backendLog split: one
// rotating file+stdout backend, one btclog.Logger per subsystem tag.
var backendLog = btclog.NewBackend(rootWriter)

var logRotator *rotator.Rotator

// initLogRotator opens the rotating log file at logFile, rotating once it
// exceeds maxLogFileSize megabytes and keeping maxLogFiles old copies.
func initLogRotator(logFile string, maxLogFileSize, maxLogFiles int) error {
	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return err
	}

	r, err := rotator.New(logFile, int64(maxLogFileSize*1024), false, maxLogFiles)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	rootWriter.rotatorPipe = pw
	logRotator = r
	return nil
}

// log is lncored's own process-level logger, tagged distinctly from the
// per-package subsystem loggers wired up below.
var log btclog.Logger = btclog.Disabled

// subsystemLoggers maps each subsystem tag used in -debuglevel overrides
// to the logger it controls, named for the packages listed in SPEC_FULL's
// ambient logging section.
var subsystemLoggers = make(map[string]btclog.Logger)

func addSubLogger(tag string) btclog.Logger {
	logger := backendLog.Logger(tag)
	subsystemLoggers[tag] = logger
	return logger
}

// useLoggers wires a subsystem logger into every package that exposes a
// UseLogger setter, so each package's previously-silent `log` variable
// starts writing through backendLog instead of discarding output.
func useLoggers() {
	log = addSubLogger("LNCD")

	wire.UseLogger(addSubLogger("WIRE"))
	noise.UseLogger(addSubLogger("NOIS"))
	revocation.UseLogger(addSubLogger("REVK"))
	lnwallet.UseLogger(addSubLogger("LNWL"))
	htlcswitch.UseLogger(addSubLogger("HSWC"))
	discovery.UseLogger(addSubLogger("DISC"))
	routing.UseLogger(addSubLogger("RTNG"))
	onion.UseLogger(addSubLogger("ONIO"))
	watchtower.UseLogger(addSubLogger("WTWR"))
	channeldb.UseLogger(addSubLogger("CHDB"))
}

// setLogLevels applies debugLevel, either a single level name applied to
// every subsystem or a comma-separated subsystem=level list, matching the
// teacher's setLogLevels in lnd.go.
func setLogLevels(debugLevel string) {
	if level, ok := btclog.LevelFromString(debugLevel); ok {
		for _, logger := range subsystemLoggers {
			logger.SetLevel(level)
		}
		return
	}

	for _, kv := range splitLevelSpecs(debugLevel) {
		logger, ok := subsystemLoggers[kv.tag]
		if !ok {
			continue
		}
		if level, ok := btclog.LevelFromString(kv.level); ok {
			logger.SetLevel(level)
		}
	}
}

type levelSpec struct {
	tag, level string
}

func splitLevelSpecs(spec string) []levelSpec {
	var out []levelSpec
	start := 0
	for i := 0; i <= len(spec); i++ {
		if i == len(spec) || spec[i] == ',' {
			part := spec[start:i]
			start = i + 1
			eq := -1
			for j := 0; j < len(part); j++ {
				if part[j] == '=' {
					eq = j
					break
				}
			}
			if eq > 0 && eq < len(part)-1 {
				out = append(out, levelSpec{tag: part[:eq], level: part[eq+1:]})
			}
		}
	}
	return out
}
