package broker

import (
	"testing"
	"time"

	"github.com/blockflow/flowd/domain/consensus/blockchain"
	"github.com/blockflow/flowd/domain/consensus/blockflow"
	"github.com/blockflow/flowd/domain/consensus/headerchain"
	"github.com/blockflow/flowd/domain/consensus/kvstore"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/domain/consensus/multichain"
	"github.com/blockflow/flowd/infrastructure/network/misbehavior"
)

type fakeWorldState struct{ root model.Hash }

func (s fakeWorldState) ContainsAllInputs(tx *model.Transaction) (bool, error) { return true, nil }
func (s fakeWorldState) Apply(tx *model.Transaction) (model.WorldState, error) { return s, nil }
func (s fakeWorldState) Root() model.Hash                                     { return s.root }

func testDiffParams() headerchain.DifficultyParams {
	return headerchain.DifficultyParams{
		MedianTimeInterval: 2,
		ExpectedTimeSpan:   64_000,
		TimeSpanMin:        16_000,
		TimeSpanMax:        256_000,
	}
}

func newTestFlow(t *testing.T, groups int) *blockflow.BlockFlow {
	t.Helper()
	kv, err := kvstore.Open(t.TempDir() + "/db")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	chains := make([]*blockchain.BlockChain, 0, groups*groups)
	for from := 0; from < groups; from++ {
		for to := 0; to < groups; to++ {
			ci := model.ChainIndex{From: model.GroupIndex(from), To: model.GroupIndex(to)}
			name := ci.String()
			var genesisHash model.Hash
			genesisHash[0] = byte(from)
			genesisHash[1] = byte(to)
			const target model.CompactTarget = 0x1e00ffff
			genesisBlock := &model.Block{
				Header:       model.BlockHeader{ChainIndex: ci, Deps: []model.Hash{model.ZeroHash}, Target: target},
				Transactions: []*model.Transaction{{Hash: genesisHash}},
			}
			bc := blockchain.New(ci,
				kv.Bucket("bodies-"+name), kv.Bucket("headers-"+name), kv.Bucket("state-"+name),
				16, genesisHash, genesisBlock, fakeWorldState{root: model.ZeroHash},
				1000, testDiffParams())
			chains = append(chains, bc)
		}
	}

	mc, err := multichain.New(groups, chains)
	if err != nil {
		t.Fatalf("multichain.New: %v", err)
	}
	owned := model.BrokerConfig{Groups: groups, BrokerNum: 1, BrokerID: 0}
	return blockflow.New(mc, owned)
}

func testConfig() Config {
	return Config{
		HandShakeDuration:    50 * time.Millisecond,
		PingFrequency:        20 * time.Millisecond,
		RetryTimeout:         50 * time.Millisecond,
		NumOfSyncBlocksLimit: 100,
	}
}

func TestHandshakeSucceedsOnValidHello(t *testing.T) {
	flow := newTestFlow(t, 1)
	ms := misbehavior.New(misbehavior.Config{BanThreshold: 1000, BanDuration: 1000, PenaltyForgiveness: 1, PenaltyFrequency: 1000})
	router := NewRouter()
	info := model.BrokerConfig{Groups: 1, BrokerNum: 1, BrokerID: 0}
	h := New(router, flow, ms, "peer1", 7, info, testConfig())

	done := make(chan error, 1)
	go func() { done <- h.handshake(0) }()

	// drain our own outgoing Hello, then answer with the remote's
	if _, err := router.OutgoingRoute().DequeueWithTimeout(time.Second); err != nil {
		t.Fatalf("expected our own Hello on the outgoing route: %v", err)
	}
	if err := router.RouteIncoming(Hello{CliqueID: 7, BrokerInfo: info}); err != nil {
		t.Fatalf("RouteIncoming: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if h.State() != StateExchanging {
		t.Fatalf("expected state Exchanging, got %v", h.State())
	}
}

func TestHandshakeTimesOutAndReportsPeer(t *testing.T) {
	flow := newTestFlow(t, 1)
	ms := misbehavior.New(misbehavior.Config{BanThreshold: 1000, BanDuration: 1000, PenaltyForgiveness: 1, PenaltyFrequency: 1000})
	router := NewRouter()
	info := model.BrokerConfig{Groups: 1, BrokerNum: 1, BrokerID: 0}
	h := New(router, flow, ms, "peer2", 7, info, testConfig())

	err := h.handshake(0)
	if err == nil {
		t.Fatal("expected handshake to time out")
	}
	if h.State() != StateClosed {
		t.Fatalf("expected state Closed after timeout, got %v", h.State())
	}
	if ms.Get("peer2", 0) == 0 {
		t.Fatal("expected peer to be penalized for handshake timeout")
	}
}

func TestHandleInboundReportsUnexpectedCommand(t *testing.T) {
	flow := newTestFlow(t, 1)
	ms := misbehavior.New(misbehavior.Config{BanThreshold: 1000, BanDuration: 1000, PenaltyForgiveness: 1, PenaltyFrequency: 1000})
	router := NewRouter()
	info := model.BrokerConfig{Groups: 1, BrokerNum: 1, BrokerID: 0}
	h := New(router, flow, ms, "peer3", 7, info, testConfig())

	// No routes registered yet (pre-handshake): any inbound payload is spam.
	err := h.HandleInbound(Ping{Nonce: 1}, 0)
	if err == nil {
		t.Fatal("expected HandleInbound to report an error for an unrouted command")
	}
	if ms.Get("peer3", 0) == 0 {
		t.Fatal("expected peer to be penalized for spamming")
	}
	if h.State() != StateClosed {
		t.Fatalf("expected state Closed after spam report, got %v", h.State())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	flow := newTestFlow(t, 1)
	ms := misbehavior.New(misbehavior.Config{BanThreshold: 1000, BanDuration: 1000, PenaltyForgiveness: 1, PenaltyFrequency: 1000})
	router := NewRouter()
	info := model.BrokerConfig{Groups: 1, BrokerNum: 1, BrokerID: 0}
	h := New(router, flow, ms, "peer4", 7, info, testConfig())

	h.Close()
	h.Close()
}
