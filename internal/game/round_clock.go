package game

import (
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DEFAULT_ROUND_DURATION_MS int64 = 10000
	DEFAULT_BETTING_LOCK_MS   int64 = 0
)

// Round is a fixed-width time slot. Times are unix milliseconds.
type Round struct {
	ID        int64 `json:"roundId"`
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
}

// RoundSnapshot is everything a client needs to sync its round timer.
// All fields come from a single clock sample.
type RoundSnapshot struct {
	CurrentRoundID     int64 `json:"currentRoundId"`
	NextRoundStartTime int64 `json:"nextRoundStartTime"`
	RoundDurationMs    int64 `json:"roundDuration"`
	LockTimeMs         int64 `json:"lockTime"`
	ServerTimeMs       int64 `json:"serverTime"`
	BettingOpen        bool  `json:"bettingOpen"`
}

// RoundClock derives round ids from wall-clock time. It holds no mutable
// state, so every process reading the same clock agrees on the live round.
type RoundClock struct {
	clock      clockwork.Clock
	durationMs int64
	lockMs     int64
}

func NewRoundClock(clock clockwork.Clock, durationMs, lockMs int64) (*RoundClock, error) {
	if durationMs <= 0 {
		return nil, fmt.Errorf("round duration must be positive, got %d ms", durationMs)
	}
	if lockMs < 0 || lockMs >= durationMs {
		return nil, fmt.Errorf("betting lock must be in [0, %d) ms, got %d ms", durationMs, lockMs)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoundClock{clock: clock, durationMs: durationMs, lockMs: lockMs}, nil
}

func (rc *RoundClock) Duration() time.Duration {
	return time.Duration(rc.durationMs) * time.Millisecond
}

func (rc *RoundClock) DurationMs() int64 { return rc.durationMs }
func (rc *RoundClock) LockMs() int64     { return rc.lockMs }

// NowMs takes one sample of the underlying clock.
func (rc *RoundClock) NowMs() int64 {
	return rc.clock.Now().UnixMilli()
}

// RoundAt returns the round containing nowMs.
func (rc *RoundClock) RoundAt(nowMs int64) Round {
	id := floorDiv(nowMs, rc.durationMs)
	return rc.RoundByID(id)
}

// MaxRoundID is the largest round whose end time fits in an int64.
func (rc *RoundClock) MaxRoundID() int64 {
	return math.MaxInt64/rc.durationMs - 1
}

// RoundByID returns the time window of an arbitrary round. Ids above
// MaxRoundID overflow.
func (rc *RoundClock) RoundByID(id int64) Round {
	return Round{
		ID:        id,
		StartTime: id * rc.durationMs,
		EndTime:   (id + 1) * rc.durationMs,
	}
}

// BettingAllowedAt is false inside the trailing lock window [end-L, end).
func (rc *RoundClock) BettingAllowedAt(nowMs int64) bool {
	if rc.lockMs == 0 {
		return true
	}
	return nowMs < rc.RoundAt(nowMs).EndTime-rc.lockMs
}

func (rc *RoundClock) SnapshotAt(nowMs int64) RoundSnapshot {
	round := rc.RoundAt(nowMs)
	return RoundSnapshot{
		CurrentRoundID:     round.ID,
		NextRoundStartTime: round.EndTime,
		RoundDurationMs:    rc.durationMs,
		LockTimeMs:         rc.lockMs,
		ServerTimeMs:       nowMs,
		BettingOpen:        rc.BettingAllowedAt(nowMs),
	}
}

// Snapshot samples the clock once and derives every round field from it.
func (rc *RoundClock) Snapshot() RoundSnapshot {
	return rc.SnapshotAt(rc.NowMs())
}

func (rc *RoundClock) CurrentRoundID() int64 {
	return rc.RoundAt(rc.NowMs()).ID
}

func (rc *RoundClock) NextRoundStartTime() int64 {
	return rc.RoundAt(rc.NowMs()).EndTime
}

func (rc *RoundClock) IsBettingAllowed() bool {
	return rc.BettingAllowedAt(rc.NowMs())
}

// IsFinished reports whether round id has ended at nowMs.
func (rc *RoundClock) IsFinished(id, nowMs int64) bool {
	return rc.RoundByID(id).EndTime <= nowMs
}

// UntilNextRound is the wait from nowMs to the next boundary.
func (rc *RoundClock) UntilNextRound(nowMs int64) time.Duration {
	return time.Duration(rc.RoundAt(nowMs).EndTime-nowMs) * time.Millisecond
}

// floorDiv rounds toward negative infinity so pre-epoch instants still land
// in the slot that contains them.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
