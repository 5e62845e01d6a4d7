// Package misbehavior implements spec.md §4.9: per-peer penalty and ban
// bookkeeping, grounded on the ban-score idiom peer-facing code in the
// corpus uses to police misbehaving connections, with decay driven by a
// panics.GoroutineWrapperFunc-wrapped background ticker the way
// server/p2p wires its periodic goroutines.
package misbehavior

import (
	"sync"
	"time"

	"github.com/blockflow/flowd/logger"
	"github.com/blockflow/flowd/util/panics"
)

var log, _ = logger.Get(logger.SubsystemTags.MISB)

// PeerID identifies a remote peer, typically its IP address.
type PeerID string

// state is a peer's current standing: either accruing penalty or serving
// a ban. Exactly one of the two is meaningful at a time; banned is the
// discriminant.
type state struct {
	banned    bool
	score     int64
	updatedAt uint64 // unix millis, meaningful when !banned
	until     uint64 // unix millis, meaningful when banned
}

// Config carries the knobs spec.md §6 names under "network.*".
type Config struct {
	BanThreshold       int64
	BanDuration        uint64 // milliseconds
	PenaltyForgiveness int64
	PenaltyFrequency   uint64 // milliseconds
}

// Storage is the per-IP penalty/ban map (spec.md §4.9). Zero value is not
// usable; construct with New.
type Storage struct {
	config Config

	mtx   sync.Mutex
	peers map[PeerID]*state

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Storage. Callers that want decay must call StartDecay.
func New(config Config) *Storage {
	return &Storage{
		config: config,
		peers:  make(map[PeerID]*state),
		stop:   make(chan struct{}),
	}
}

// Update adds delta to peer's penalty score, transitioning it to Banned if
// the resulting score meets the ban threshold (spec.md §4.9).
func (s *Storage) Update(peer PeerID, delta int64, now uint64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	st := s.rewriteExpiredLocked(peer, now)
	if st.banned {
		return // already serving a ban; infractions don't extend it
	}

	st.score += delta
	st.updatedAt = now
	if st.score >= s.config.BanThreshold {
		st.banned = true
		st.until = now + s.config.BanDuration
		log.Warnf("peer %s banned until %d (score %d)", peer, st.until, st.score)
	}
}

// IsBanned reports whether peer is currently serving a ban, transparently
// expiring it first if its ban has elapsed.
func (s *Storage) IsBanned(peer PeerID, now uint64) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.rewriteExpiredLocked(peer, now).banned
}

// Get returns peer's current penalty score. A banned peer whose ban has
// expired reads back as Penalty(0, now).
func (s *Storage) Get(peer PeerID, now uint64) int64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.rewriteExpiredLocked(peer, now).score
}

// rewriteExpiredLocked returns peer's state, first rewriting Banned(u)
// with now >= u back to Penalty(0, now) in place (spec.md §4.9). Callers
// must hold s.mtx.
func (s *Storage) rewriteExpiredLocked(peer PeerID, now uint64) *state {
	st, ok := s.peers[peer]
	if !ok {
		st = &state{updatedAt: now}
		s.peers[peer] = st
	}
	if st.banned && now >= st.until {
		st.banned = false
		st.score = 0
		st.updatedAt = now
		st.until = 0
	}
	return st
}

// StartDecay launches the penaltyForgiveness ticker: every elapsed
// penaltyFrequency, every non-banned peer's score drops by
// penaltyForgiveness (floored at 0). Call Close to stop it.
func (s *Storage) StartDecay() {
	wrap := panics.GoroutineWrapperFunc(log)
	s.wg.Add(1)
	wrap(func() {
		defer s.wg.Done()

		ticker := time.NewTicker(time.Duration(s.config.PenaltyFrequency) * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.decayOnce(uint64(time.Now().UnixMilli()))
			case <-s.stop:
				return
			}
		}
	})
}

func (s *Storage) decayOnce(now uint64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for peer, st := range s.peers {
		st = s.rewriteExpiredLocked(peer, now)
		if st.banned {
			continue
		}
		st.score -= s.config.PenaltyForgiveness
		if st.score < 0 {
			st.score = 0
		}
		st.updatedAt = now
	}
}

// Close stops the decay goroutine, if running. Safe to call more than
// once or when StartDecay was never called.
func (s *Storage) Close() {
	select {
	case <-s.stop:
		return // already closed
	default:
		close(s.stop)
	}
	s.wg.Wait()
}
