package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestBlocksOnThirdFailure(t *testing.T) {
	mock := clock.NewMock()
	limiter := NewLimiter(mock, 3, 30*time.Minute)

	if limiter.RecordFailure("10.0.0.1") {
		t.Fatal("first failure should not block")
	}
	if limiter.RecordFailure("10.0.0.1") {
		t.Fatal("second failure should not block")
	}
	if !limiter.RecordFailure("10.0.0.1") {
		t.Fatal("third failure should block")
	}
	if !limiter.IsBlocked("10.0.0.1") {
		t.Fatal("origin should report blocked")
	}
	if limiter.IsBlocked("10.0.0.2") {
		t.Fatal("other origins must be unaffected")
	}
}

func TestFailuresCountWithoutSlidingWindow(t *testing.T) {
	mock := clock.NewMock()
	limiter := NewLimiter(mock, 3, 30*time.Minute)

	limiter.RecordFailure("10.0.0.1")
	mock.Add(20 * time.Minute)
	limiter.RecordFailure("10.0.0.1")
	mock.Add(20 * time.Minute)
	if !limiter.RecordFailure("10.0.0.1") {
		t.Fatal("three failures should block regardless of spacing")
	}
}

func TestBlockClearsAfterWindow(t *testing.T) {
	mock := clock.NewMock()
	limiter := NewLimiter(mock, 3, 30*time.Minute)

	for i := 0; i < 3; i++ {
		limiter.RecordFailure("10.0.0.1")
	}
	if !limiter.IsBlocked("10.0.0.1") {
		t.Fatal("origin should be blocked")
	}

	mock.Add(30*time.Minute - time.Second)
	if !limiter.IsBlocked("10.0.0.1") {
		t.Fatal("block should hold inside the window")
	}

	mock.Add(time.Second)
	if limiter.IsBlocked("10.0.0.1") {
		t.Fatal("block should clear after the window")
	}

	// The origin is treated as never having failed: a fresh invalid
	// attempt starts over at count one.
	if limiter.RecordFailure("10.0.0.1") {
		t.Fatal("first failure after reset should not re-block")
	}
}

func TestSubThresholdRecordsDecay(t *testing.T) {
	mock := clock.NewMock()
	limiter := NewLimiter(mock, 3, 30*time.Minute)

	limiter.RecordFailure("10.0.0.1")
	limiter.RecordFailure("10.0.0.1")

	mock.Add(30 * time.Minute)

	if limiter.RecordFailure("10.0.0.1") {
		t.Fatal("decayed record should restart counting")
	}
	if limiter.RecordFailure("10.0.0.1") {
		t.Fatal("second failure after decay should not block")
	}
}

func TestDecayTimerRearmsOnEachFailure(t *testing.T) {
	mock := clock.NewMock()
	limiter := NewLimiter(mock, 3, 30*time.Minute)

	limiter.RecordFailure("10.0.0.1")
	mock.Add(29 * time.Minute)
	limiter.RecordFailure("10.0.0.1")
	mock.Add(29 * time.Minute)

	// Still two failures on the books, so a third blocks.
	if !limiter.RecordFailure("10.0.0.1") {
		t.Fatal("third failure within rearmed windows should block")
	}
}
