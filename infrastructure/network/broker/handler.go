package broker

import (
	"math/rand"
	"sync"
	"time"

	"github.com/blockflow/flowd/domain/consensus/blockflow"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/infrastructure/network/misbehavior"
	"github.com/blockflow/flowd/logger"
	"github.com/blockflow/flowd/util/locks"
	"github.com/blockflow/flowd/util/panics"
	"github.com/pkg/errors"
)

var log, _ = logger.Get(logger.SubsystemTags.BRKR)

var spawn = panics.GoroutineWrapperFunc(log)

// State is a BrokerHandler session state (spec.md §4.10).
type State int

const (
	StateHandShaking State = iota
	StateExchanging
	StateClosed
)

// ReportReason names a misbehavior.Storage.Update delta this package applies
// (spec.md §4.10, §7 "Spam/Protocol").
type ReportReason int64

const (
	ReportSpamming        ReportReason = 20
	ReportRequestTimeout  ReportReason = 10
	ReportInvalidPingPong ReportReason = 5
)

// Config carries the per-session knobs spec.md §6 names under "network.*".
type Config struct {
	HandShakeDuration    time.Duration
	PingFrequency        time.Duration
	RetryTimeout         time.Duration
	NumOfSyncBlocksLimit int
}

// Handler drives one peer session's HandShaking -> Exchanging -> Closed
// state machine (spec.md §4.10).
type Handler struct {
	router      *Router
	flow        *blockflow.BlockFlow
	misbehavior *misbehavior.Storage
	peer        misbehavior.PeerID
	cliqueID    uint32
	ownInfo     model.BrokerConfig
	config      Config

	mtx        sync.Mutex
	state      State
	remoteInfo model.BrokerConfig
	remoteID   uint32

	stop chan struct{}
	wg   locks.WaitGroup
}

// New constructs a Handler for one peer session.
func New(router *Router, flow *blockflow.BlockFlow, misbehaviorStorage *misbehavior.Storage,
	peer misbehavior.PeerID, cliqueID uint32, ownInfo model.BrokerConfig, config Config) *Handler {

	return &Handler{
		router:      router,
		flow:        flow,
		misbehavior: misbehaviorStorage,
		peer:        peer,
		cliqueID:    cliqueID,
		ownInfo:     ownInfo,
		config:      config,
		stop:        make(chan struct{}),
		wg:          locks.NewWaitGroup(),
	}
}

// State returns the handler's current state.
func (h *Handler) State() State {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.state
}

func (h *Handler) setState(s State) {
	h.mtx.Lock()
	h.state = s
	h.mtx.Unlock()
}

// Run drives the handshake and, on success, the exchange phase, blocking
// until the session closes. now is the session's start time (unix millis).
func (h *Handler) Run(now uint64) error {
	if err := h.handshake(now); err != nil {
		return err
	}
	h.exchange(now)
	return nil
}

// HandleInbound routes an inbound payload to the session's current state.
// A payload whose command has no active route is Spam/Protocol (spec.md
// §7): it is reported and the session is closed.
func (h *Handler) HandleInbound(payload Payload, now uint64) error {
	if err := h.router.RouteIncoming(payload); err != nil {
		h.report(ReportSpamming, now)
		h.Close()
		return err
	}
	return nil
}

func (h *Handler) handshake(now uint64) error {
	helloRoute, err := h.router.AddIncomingRoute(CmdHello)
	if err != nil {
		return err
	}

	if err := h.router.OutgoingRoute().Enqueue(Hello{CliqueID: h.cliqueID, BrokerInfo: h.ownInfo}); err != nil {
		return err
	}

	payload, err := helloRoute.DequeueWithTimeout(h.config.HandShakeDuration)
	if err != nil {
		h.report(ReportRequestTimeout, now)
		h.Close()
		return errors.Wrap(err, "waiting for Hello")
	}

	hello, ok := payload.(Hello)
	if !ok {
		h.report(ReportSpamming, now)
		h.Close()
		return errors.Errorf("expected Hello, got %s", payload.Command())
	}

	h.remoteInfo = hello.BrokerInfo
	h.remoteID = hello.CliqueID

	if err := h.router.RemoveRoute(CmdHello); err != nil {
		return err
	}
	h.setState(StateExchanging)
	log.Debugf("peer %s completed handshake, clique %d owns %+v", h.peer, h.remoteID, h.remoteInfo)
	return nil
}

// isIntraClique reports whether the remote belongs to this broker's own
// clique, in which case sync is a one-shot inventory exchange rather than a
// locator round-trip (spec.md §4.10).
func (h *Handler) isIntraClique() bool {
	return h.remoteID == h.cliqueID
}

func (h *Handler) exchange(now uint64) {
	pongRoute, err := h.router.AddIncomingRoute(CmdPong)
	if err != nil {
		log.Errorf("peer %s: adding pong route: %s", h.peer, err)
		h.Close()
		return
	}
	syncRoutes, err := h.router.AddIncomingRoute(CmdSyncRequest, CmdSyncResponse, CmdGetBlocks, CmdSendBlocks)
	if err != nil {
		log.Errorf("peer %s: adding sync routes: %s", h.peer, err)
		h.Close()
		return
	}

	h.wg.Add()
	spawn(func() {
		defer h.wg.Done()
		h.pingLoop(pongRoute, now)
	})

	h.wg.Add()
	spawn(func() {
		defer h.wg.Done()
		h.syncLoop(syncRoutes)
	})

	h.wg.Wait()
}

func (h *Handler) pingLoop(pongRoute *Route, now uint64) {
	ticker := time.NewTicker(h.config.PingFrequency)
	defer ticker.Stop()

	var pendingNonce uint64
	for {
		select {
		case t := <-ticker.C:
			tickNow := uint64(t.UnixMilli())
			if pendingNonce != 0 {
				h.report(ReportRequestTimeout, tickNow)
				h.Close()
				return
			}
			pendingNonce = nonzeroNonce()
			if err := h.router.OutgoingRoute().Enqueue(Ping{Nonce: pendingNonce, Timestamp: tickNow}); err != nil {
				return
			}

		case payload, ok := <-pongRoute.Chan():
			if !ok {
				return
			}
			pong, ok := payload.(Pong)
			if !ok || pendingNonce == 0 {
				continue
			}
			if pong.Nonce != pendingNonce {
				h.report(ReportInvalidPingPong, now)
				continue
			}
			pendingNonce = 0

		case <-h.stop:
			return
		}
	}
}

func (h *Handler) syncLoop(syncRoute *Route) {
	if h.isIntraClique() {
		hashes, err := h.flow.GetIntraCliqueSyncHashes(h.remoteInfo)
		if err != nil {
			log.Errorf("peer %s: intra-clique sync: %s", h.peer, err)
			return
		}
		if err := h.router.OutgoingRoute().Enqueue(SyncResponse{Inventories: hashes}); err != nil {
			return
		}
		return
	}

	locators, err := h.flow.GetSyncLocators()
	if err != nil {
		log.Errorf("peer %s: building locators: %s", h.peer, err)
		return
	}
	if err := h.router.OutgoingRoute().Enqueue(SyncRequest{Locators: locators}); err != nil {
		return
	}

	payload, err := syncRoute.DequeueWithTimeout(h.config.RetryTimeout)
	if err != nil {
		return
	}
	h.handleSyncPayload(payload)
}

// handleSyncPayload answers a counterpart's SyncRequest with our
// inventories, or pulls full bodies named by a SyncResponse (spec.md
// §4.10's "locator/inventory round-trips, then pull by hash").
func (h *Handler) handleSyncPayload(payload Payload) {
	switch p := payload.(type) {
	case SyncRequest:
		inventories, err := h.flow.GetSyncInventories(p.Locators, h.config.NumOfSyncBlocksLimit)
		if err != nil {
			log.Errorf("peer %s: computing inventories: %s", h.peer, err)
			return
		}
		if err := h.router.OutgoingRoute().Enqueue(SyncResponse{Inventories: inventories}); err != nil {
			log.Errorf("peer %s: sending sync response: %s", h.peer, err)
		}

	case SyncResponse:
		var hashes []model.Hash
		for _, chainHashes := range p.Inventories {
			hashes = append(hashes, chainHashes...)
		}
		if len(hashes) == 0 {
			return
		}
		if err := h.router.OutgoingRoute().Enqueue(GetBlocks{Hashes: hashes}); err != nil {
			log.Errorf("peer %s: requesting blocks: %s", h.peer, err)
		}

	default:
		log.Debugf("peer %s: ignoring unexpected sync payload %s", h.peer, payload.Command())
	}
}

func (h *Handler) report(reason ReportReason, now uint64) {
	h.misbehavior.Update(h.peer, int64(reason), now)
	log.Warnf("peer %s: reported %v", h.peer, reason)
}

// Close transitions the handler to Closed and releases its routes. Safe to
// call more than once.
func (h *Handler) Close() {
	h.mtx.Lock()
	if h.state == StateClosed {
		h.mtx.Unlock()
		return
	}
	h.state = StateClosed
	h.mtx.Unlock()

	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	if err := h.router.Close(); err != nil {
		log.Errorf("peer %s: closing router: %s", h.peer, err)
	}
}

func nonzeroNonce() uint64 {
	for {
		if n := rand.Uint64(); n != 0 {
			return n
		}
	}
}
