package misbehavior

import "testing"

func testConfig() Config {
	return Config{
		BanThreshold:       100,
		BanDuration:        1000,
		PenaltyForgiveness: 5,
		PenaltyFrequency:   100,
	}
}

func TestUpdateAccumulatesPenaltyBelowThreshold(t *testing.T) {
	s := New(testConfig())
	s.Update("1.2.3.4", 10, 0)
	s.Update("1.2.3.4", 20, 10)

	if s.IsBanned("1.2.3.4", 10) {
		t.Fatal("expected peer not yet banned")
	}
	if got := s.Get("1.2.3.4", 10); got != 30 {
		t.Fatalf("expected score 30, got %d", got)
	}
}

func TestUpdateCrossingThresholdBans(t *testing.T) {
	s := New(testConfig())
	s.Update("1.2.3.4", 150, 0)

	if !s.IsBanned("1.2.3.4", 0) {
		t.Fatal("expected peer to be banned after crossing threshold")
	}
}

func TestBanExpiresOnRead(t *testing.T) {
	s := New(testConfig())
	s.Update("1.2.3.4", 150, 0)

	if !s.IsBanned("1.2.3.4", 500) {
		t.Fatal("expected peer still banned before banDuration elapses")
	}
	if s.IsBanned("1.2.3.4", 1001) {
		t.Fatal("expected ban to have expired")
	}
	if got := s.Get("1.2.3.4", 1001); got != 0 {
		t.Fatalf("expected score reset to 0 after ban expiry, got %d", got)
	}
}

func TestUpdateWhileBannedDoesNotExtendBan(t *testing.T) {
	s := New(testConfig())
	s.Update("1.2.3.4", 150, 0)
	s.Update("1.2.3.4", 50, 500) // still banned; should be ignored

	if !s.IsBanned("1.2.3.4", 999) {
		t.Fatal("expected peer still banned just before original expiry")
	}
	if s.IsBanned("1.2.3.4", 1000) {
		t.Fatal("expected ban to expire at the original boundary, unaffected by the later update")
	}
}

func TestDecayOnceReducesScoreButNotBelowZero(t *testing.T) {
	s := New(testConfig())
	s.Update("1.2.3.4", 3, 0)

	s.decayOnce(100)
	if got := s.Get("1.2.3.4", 100); got != 0 {
		t.Fatalf("expected score floored at 0, got %d", got)
	}
}

func TestDecayOnceSkipsBannedPeers(t *testing.T) {
	s := New(testConfig())
	s.Update("1.2.3.4", 150, 0)

	s.decayOnce(500)
	if !s.IsBanned("1.2.3.4", 500) {
		t.Fatal("expected banned peer to be unaffected by decay")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New(testConfig())
	s.StartDecay()
	s.Close()
	s.Close()
}
