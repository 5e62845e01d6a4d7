// Package config parses flowd's command-line configuration into the per-process
// knobs spec.md §6 names, grounded on mining/simulator/config.go and
// kasparov/kasparovd/config/config.go's parser-struct-plus-defaults shape.
package config

import (
	"os"
	"path/filepath"

	"github.com/blockflow/flowd/logger"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

var log, _ = logger.Get(logger.SubsystemTags.CNFG)

const (
	defaultLogFilename    = "flowd.log"
	defaultErrLogFilename = "flowd_err.log"
	defaultDataDirname    = "data"

	defaultGroups    = 4
	defaultBrokerNum = 1
	defaultBrokerID  = 0
)

var defaultHomeDir = defaultAppDataDir()

func defaultAppDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".flowd")
}

// BrokerFlags covers spec.md §6's "broker.*" keys: which contiguous slice
// of the G groups this process owns.
type BrokerFlags struct {
	Groups    int `long:"broker.groups" description:"total number of shard groups G" default:"4"`
	BrokerNum int `long:"broker.brokernum" description:"total number of broker processes" default:"1"`
	BrokerID  int `long:"broker.brokerid" description:"this process's broker index" default:"0"`
}

// ConsensusFlags covers spec.md §6's "consensus.*" keys.
type ConsensusFlags struct {
	TipsPruneInterval          uint64 `long:"consensus.tipspruneinterval" description:"tip set pruning interval" default:"100"`
	BlockCacheCapacityPerChain int    `long:"consensus.blockcachecapacityperchain" description:"LRU header/block cache size per chain" default:"25"`
	MedianTimeInterval         uint64 `long:"consensus.mediantimeinterval" description:"DigiShield median timestamp window" default:"11"`
	ExpectedTimeSpan           int64  `long:"consensus.expectedtimespan" description:"target time span between retargets, in milliseconds" default:"64000"`
	TimeSpanMin                int64  `long:"consensus.timespanmin" description:"minimum allowed retarget time span, in milliseconds" default:"16000"`
	TimeSpanMax                int64  `long:"consensus.timespanmax" description:"maximum allowed retarget time span, in milliseconds" default:"256000"`
	MaxMiningTarget            string `long:"consensus.maxminingtarget" description:"maximum (easiest) compact target, hex-encoded"`
}

// MempoolFlags covers spec.md §6's "mempool.*" keys.
type MempoolFlags struct {
	SharedPoolCapacity  int    `long:"mempool.sharedpoolcapacity" description:"per-group SharedPool capacity" default:"1000"`
	PendingPoolCapacity int    `long:"mempool.pendingpoolcapacity" description:"per-group PendingPool capacity" default:"1000"`
	TxMaxNumberPerBlock int    `long:"mempool.txmaxnumberperblock" description:"max transactions admitted into one block template" default:"1000"`
	CleanFrequency      uint64 `long:"mempool.cleanfrequency" description:"age after which MemPool.Clean drops a pending transaction, in milliseconds" default:"600000"`
}

// MiningFlags covers spec.md §6's "mining.*" keys.
type MiningFlags struct {
	BatchDelay      uint64 `long:"mining.batchdelay" description:"delay between block template batches, in milliseconds" default:"500"`
	PollingInterval uint64 `long:"mining.pollinginterval" description:"worker poll interval for a refreshed template, in milliseconds" default:"250"`
	NonceStep       uint64 `long:"mining.noncestep" description:"nonce stride handed to each external mining worker" default:"1"`
	BlockReward     uint64 `long:"mining.blockreward" description:"fixed coinbase reward paid per block" default:"5000000000"`
}

// NetworkFlags covers spec.md §6's "network.*" keys, consumed by
// broker.Config and misbehavior.Config.
type NetworkFlags struct {
	PingFrequency        uint64 `long:"network.pingfrequency" description:"keepalive ping interval, in milliseconds" default:"30000"`
	RetryTimeout         uint64 `long:"network.retrytimeout" description:"sync request retry timeout, in milliseconds" default:"5000"`
	BanDuration          uint64 `long:"network.banduration" description:"ban duration once a peer's score crosses threshold, in milliseconds" default:"86400000"`
	PenaltyForgiveness   int64  `long:"network.penaltyforgiveness" description:"score decayed off a peer per penaltyfrequency tick" default:"1"`
	PenaltyFrequency     uint64 `long:"network.penaltyfrequency" description:"misbehavior score decay interval, in milliseconds" default:"60000"`
	NumOfSyncBlocksLimit int    `long:"network.numofsyncblockslimit" description:"max inventory hashes returned per sync response" default:"500"`
	BanThreshold         int64  `long:"network.banthreshold" description:"misbehavior score at which a peer is banned" default:"100"`
	HandShakeDuration    uint64 `long:"network.handshakeduration" description:"handshake timeout, in milliseconds" default:"10000"`
}

// DiscoveryFlags covers spec.md §6's "discovery.*" keys. Peer discovery
// itself is the out-of-scope collaborator spec.md §1 names; these fields
// only carry the values flowd would hand that collaborator.
type DiscoveryFlags struct {
	ScanFrequency     uint64   `long:"discovery.scanfrequency" description:"neighbor table scan interval, in milliseconds" default:"30000"`
	NeighborsPerGroup int      `long:"discovery.neighborspergroup" description:"neighbors maintained per owned group" default:"8"`
	Bootstrap         []string `long:"discovery.bootstrap" description:"bootstrap peer addresses"`
}

// Config is flowd's top-level configuration, one instance per process.
type Config struct {
	DataDir    string `long:"datadir" description:"directory to store block/header/state databases"`
	LogDir     string `long:"logdir" description:"directory to store log output"`
	DebugLevel string `long:"debuglevel" description:"logging level {trace, debug, info, warn, error, critical} or subsystem=level pairs" default:"info"`

	BrokerFlags
	ConsensusFlags
	MempoolFlags
	MiningFlags
	NetworkFlags
	DiscoveryFlags
}

// Parse parses CLI arguments into a Config, validates it, and initializes
// log rotation. No config file is read.
func Parse() (*Config, error) {
	cfg := &Config{
		DataDir: filepath.Join(defaultHomeDir, defaultDataDirname),
		LogDir:  defaultHomeDir,
	}

	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
	errLogFile := filepath.Join(cfg.LogDir, defaultErrLogFilename)
	initLogRotators(logFile, errLogFile)

	log.Infof("parsed configuration: %d groups, broker %d/%d", cfg.Groups, cfg.BrokerID, cfg.BrokerNum)
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Groups <= 0 {
		return errors.Errorf("broker.groups must be positive, got %d", cfg.Groups)
	}
	if cfg.BrokerNum <= 0 {
		return errors.Errorf("broker.brokernum must be positive, got %d", cfg.BrokerNum)
	}
	if cfg.BrokerID < 0 || cfg.BrokerID >= cfg.BrokerNum {
		return errors.Errorf("broker.brokerid %d out of range [0, %d)", cfg.BrokerID, cfg.BrokerNum)
	}
	if cfg.Groups%cfg.BrokerNum != 0 {
		return errors.Errorf("broker.groups (%d) must divide evenly across broker.brokernum (%d)", cfg.Groups, cfg.BrokerNum)
	}
	if cfg.TimeSpanMin > cfg.TimeSpanMax {
		return errors.Errorf("consensus.timespanmin (%d) must not exceed consensus.timespanmax (%d)", cfg.TimeSpanMin, cfg.TimeSpanMax)
	}
	return nil
}
