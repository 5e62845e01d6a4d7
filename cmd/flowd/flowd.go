package main

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/blockflow/flowd/config"
	"github.com/blockflow/flowd/domain/consensus/blockchain"
	"github.com/blockflow/flowd/domain/consensus/blockflow"
	"github.com/blockflow/flowd/domain/consensus/headerchain"
	"github.com/blockflow/flowd/domain/consensus/kvstore"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/domain/consensus/multichain"
	"github.com/blockflow/flowd/domain/mempool"
	"github.com/blockflow/flowd/domain/mining/blocktemplatebuilder"
	"github.com/blockflow/flowd/infrastructure/network/broker"
	"github.com/blockflow/flowd/infrastructure/network/misbehavior"
	"github.com/pkg/errors"
)

// flowd wires every owned-group component together, grounded on kaspad.go's
// start/stop struct shape.
type flowd struct {
	cfg *config.Config

	kv          *kvstore.Store
	mc          *multichain.MultiChain
	flow        *blockflow.BlockFlow
	mempools    map[model.GroupIndex]*mempool.MemPool
	builder     *blocktemplatebuilder.BlockTemplateBuilder
	misbehavior *misbehavior.Storage

	started, shutdown int32
}

// newFlowd builds every owned-group chain, wires the engine, and returns a
// flowd ready for start.
func newFlowd(cfg *config.Config) (*flowd, error) {
	kv, err := kvstore.Open(filepath.Join(cfg.DataDir, "chainstate"))
	if err != nil {
		return nil, errors.Wrap(err, "opening chain state database")
	}

	diffParams := headerchain.DifficultyParams{
		MedianTimeInterval: cfg.MedianTimeInterval,
		ExpectedTimeSpan:   cfg.ExpectedTimeSpan,
		TimeSpanMin:        cfg.TimeSpanMin,
		TimeSpanMax:        cfg.TimeSpanMax,
	}
	maxTarget, err := parseMaxMiningTarget(cfg.MaxMiningTarget)
	if err != nil {
		return nil, errors.Wrap(err, "parsing consensus.maxminingtarget")
	}

	chains := make([]*blockchain.BlockChain, 0, cfg.Groups*cfg.Groups)
	for from := 0; from < cfg.Groups; from++ {
		for to := 0; to < cfg.Groups; to++ {
			ci := model.ChainIndex{From: model.GroupIndex(from), To: model.GroupIndex(to)}
			name := ci.String()
			genesis := genesisBlock(ci, cfg.Groups, maxTarget)
			genesisHash := genesis.Coinbase().Hash
			genesisState := placeholderWorldState{root: model.ZeroHash}

			bc := blockchain.New(ci,
				kv.Bucket("bodies-"+name), kv.Bucket("headers-"+name), kv.Bucket("state-"+name),
				cfg.BlockCacheCapacityPerChain, genesisHash, genesis, genesisState,
				cfg.TipsPruneInterval, diffParams)
			chains = append(chains, bc)
		}
	}

	mc, err := multichain.New(cfg.Groups, chains)
	if err != nil {
		kv.Close()
		return nil, errors.Wrap(err, "assembling multichain")
	}

	owned := model.BrokerConfig{Groups: cfg.Groups, BrokerNum: cfg.BrokerNum, BrokerID: cfg.BrokerID}
	flow := blockflow.New(mc, owned)

	mempools := make(map[model.GroupIndex]*mempool.MemPool)
	start, end := owned.GroupRange()
	for g := start; g < end; g++ {
		mempools[g] = mempool.New(g, mempool.Config{
			SharedPoolCapacity:  cfg.SharedPoolCapacity,
			PendingPoolCapacity: cfg.PendingPoolCapacity,
			CleanFrequency:      cfg.CleanFrequency,
		})
	}

	builder := blocktemplatebuilder.New(mc, flow,
		func(g model.GroupIndex) *mempool.MemPool { return mempools[g] },
		minerFor,
		blocktemplatebuilder.Config{TxMaxNumberPerBlock: cfg.TxMaxNumberPerBlock, BlockReward: cfg.BlockReward})

	misbehaviorStorage := misbehavior.New(misbehavior.Config{
		BanThreshold:       cfg.BanThreshold,
		BanDuration:        cfg.BanDuration,
		PenaltyForgiveness: cfg.PenaltyForgiveness,
		PenaltyFrequency:   cfg.PenaltyFrequency,
	})

	return &flowd{
		cfg:         cfg,
		kv:          kv,
		mc:          mc,
		flow:        flow,
		mempools:    mempools,
		builder:     builder,
		misbehavior: misbehaviorStorage,
	}, nil
}

// minerFor resolves the coinbase payout address for a group. Wallet/address
// management is the out-of-scope collaborator spec.md §1 names; this stub
// always pays to an empty script.
func minerFor(model.GroupIndex) (model.LockupScript, error) {
	return "", nil
}

// brokerConfigFor translates parsed network flags into broker.Config.
func (f *flowd) brokerConfigFor() broker.Config {
	cfg := f.cfg
	return broker.Config{
		HandShakeDuration:    millis(cfg.HandShakeDuration),
		PingFrequency:        millis(cfg.PingFrequency),
		RetryTimeout:         millis(cfg.RetryTimeout),
		NumOfSyncBlocksLimit: cfg.NumOfSyncBlocksLimit,
	}
}

// newPeerHandler constructs a broker.Handler for one inbound or outbound
// peer session. The TCP connection itself is the out-of-scope collaborator
// spec.md §1 names; whatever drives
// it calls Run then forwards received payloads to HandleInbound.
func (f *flowd) newPeerHandler(peer misbehavior.PeerID, remoteCliqueID uint32) *broker.Handler {
	ownInfo := model.BrokerConfig{Groups: f.cfg.Groups, BrokerNum: f.cfg.BrokerNum, BrokerID: f.cfg.BrokerID}
	router := broker.NewRouter()
	return broker.New(router, f.flow, f.misbehavior, peer, remoteCliqueID, ownInfo, f.brokerConfigFor())
}

// start launches flowd's background services: misbehavior decay, and (once
// an owning process drives them) per-peer broker handlers.
func (f *flowd) start() {
	if atomic.AddInt32(&f.started, 1) != 1 {
		return
	}
	log.Tracef("starting flowd")
	f.misbehavior.StartDecay()
}

// stop gracefully shuts down flowd's services. Calls after the first return
// nil without doing anything.
func (f *flowd) stop() error {
	if atomic.AddInt32(&f.shutdown, 1) != 1 {
		log.Infof("flowd is already shutting down")
		return nil
	}
	log.Warnf("flowd shutting down")

	f.misbehavior.Close()
	if err := f.kv.Close(); err != nil {
		log.Errorf("closing chain state database: %s", err)
		return err
	}
	return nil
}

func millis(ms uint64) (d time.Duration) {
	return time.Duration(ms) * time.Millisecond
}
