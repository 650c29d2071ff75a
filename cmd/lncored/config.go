package main

import (
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultDataDirname  = "data"
	defaultLogDirname   = "logs"
	defaultLogFilename  = "lncored.log"
	defaultConfigFile   = "lncored.conf"
	defaultListenPort   = "9735"
	defaultMaxLogFiles  = 3
	defaultMaxLogMBSize = 10
)

var defaultLncoreDir = btcDefaultDir()

// config houses every flag lncored accepts on the command line; no config
// file is read. Grounded on the teacher's
// loadConfig()/cfg usage in lnd.go, which references this shape without
// the file itself ever having shipped in the pack.
type config struct {
	LncoreDir string `long:"lncoredir" description:"The base directory that contains lncored's data, logs, and configuration file."`
	DataDir   string `long:"datadir" description:"The directory to store lncored's channel graph, channel state, and other persistent data."`
	LogDir    string `long:"logdir" description:"Directory to log output."`
	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- Alternatively, level spec of the form subsystem=level,subsystem2=level,... can be used."`

	ListenAddrs []string `long:"listen" description:"Add an interface/port to listen for peer connections."`

	AliasName string `long:"alias" description:"The node alias this instance will advertise in node_announcement."`
}

// defaultConfig returns a config pre-populated with lncoredir-relative
// defaults, mirroring the teacher's convention of deriving DataDir/LogDir
// from a single root directory.
func defaultConfig() config {
	return config{
		LncoreDir:   defaultLncoreDir,
		DataDir:     filepath.Join(defaultLncoreDir, defaultDataDirname),
		LogDir:      filepath.Join(defaultLncoreDir, defaultLogDirname),
		DebugLevel:  "info",
		ListenAddrs: []string{":" + defaultListenPort},
	}
}

// loadConfig parses command line flags over top of the defaults, then
// derives DataDir/LogDir from LncoreDir whenever the caller only
// overrode the root directory.
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if cfg.DataDir == filepath.Join(defaultLncoreDir, defaultDataDirname) &&
		cfg.LncoreDir != defaultLncoreDir {
		cfg.DataDir = filepath.Join(cfg.LncoreDir, defaultDataDirname)
	}
	if cfg.LogDir == filepath.Join(defaultLncoreDir, defaultLogDirname) &&
		cfg.LncoreDir != defaultLncoreDir {
		cfg.LogDir = filepath.Join(cfg.LncoreDir, defaultLogDirname)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func btcDefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return ".lncored"
	}
	return filepath.Join(homeDir, ".lncored")
}
