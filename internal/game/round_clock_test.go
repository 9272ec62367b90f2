package game

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func mustRoundClock(t testing.TB, clock clockwork.Clock, durationMs, lockMs int64) *RoundClock {
	t.Helper()
	rc, err := NewRoundClock(clock, durationMs, lockMs)
	if err != nil {
		t.Fatalf("NewRoundClock() error = %v", err)
	}
	return rc
}

func TestNewRoundClock_Validation(t *testing.T) {
	tests := []struct {
		name       string
		durationMs int64
		lockMs     int64
		wantErr    bool
	}{
		{name: "Default config", durationMs: 10000, lockMs: 0},
		{name: "With lock window", durationMs: 17000, lockMs: 2000},
		{name: "Zero duration", durationMs: 0, lockMs: 0, wantErr: true},
		{name: "Negative duration", durationMs: -5, lockMs: 0, wantErr: true},
		{name: "Negative lock", durationMs: 10000, lockMs: -1, wantErr: true},
		{name: "Lock equals duration", durationMs: 10000, lockMs: 10000, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRoundClock(clockwork.NewFakeClock(), tt.durationMs, tt.lockMs)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRoundClock() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRoundClock_Example(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1000000500))
	rc := mustRoundClock(t, clock, 10000, 0)

	if got := rc.CurrentRoundID(); got != 100000 {
		t.Errorf("CurrentRoundID() = %d, want 100000", got)
	}
	if got := rc.NextRoundStartTime(); got != 1000010000 {
		t.Errorf("NextRoundStartTime() = %d, want 1000010000", got)
	}
	if !rc.IsBettingAllowed() {
		t.Error("IsBettingAllowed() = false with no lock window")
	}

	round := rc.RoundAt(1000000500)
	if round.StartTime != 1000000000 || round.EndTime != 1000010000 {
		t.Errorf("RoundAt() = %+v", round)
	}
}

func TestRoundClock_SameSlotSameRound(t *testing.T) {
	rc := mustRoundClock(t, clockwork.NewFakeClock(), 17000, 0)
	start := int64(17000 * 98765)

	want := rc.RoundAt(start).ID
	for offset := int64(0); offset < 17000; offset += 250 {
		if got := rc.RoundAt(start + offset).ID; got != want {
			t.Fatalf("RoundAt(start+%d).ID = %d, want %d", offset, got, want)
		}
	}
	if got := rc.RoundAt(start + 17000).ID; got != want+1 {
		t.Errorf("boundary instant belongs to round %d, want %d", got, want+1)
	}
}

func TestRoundClock_NextStartBounds(t *testing.T) {
	const d = 10000
	rc := mustRoundClock(t, clockwork.NewFakeClock(), d, 0)

	for _, now := range []int64{0, 1, 9999, 10000, 1000000500, 1700000000123, 1700000009999} {
		snap := rc.SnapshotAt(now)
		if snap.NextRoundStartTime <= now {
			t.Errorf("now=%d: next start %d not after now", now, snap.NextRoundStartTime)
		}
		if snap.NextRoundStartTime-now > d {
			t.Errorf("now=%d: next start %d more than one round away", now, snap.NextRoundStartTime)
		}
	}
}

func TestRoundClock_SnapshotSingleSample(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1000009999))
	rc := mustRoundClock(t, clock, 10000, 0)

	snap := rc.Snapshot()
	if snap.ServerTimeMs != 1000009999 {
		t.Fatalf("ServerTimeMs = %d", snap.ServerTimeMs)
	}
	if snap.CurrentRoundID != 100000 || snap.NextRoundStartTime != 1000010000 {
		t.Errorf("snapshot fields disagree: %+v", snap)
	}
	if snap.RoundDurationMs != 10000 || snap.LockTimeMs != 0 {
		t.Errorf("config fields = %d/%d", snap.RoundDurationMs, snap.LockTimeMs)
	}

	clock.Advance(time.Millisecond)
	next := rc.Snapshot()
	if next.CurrentRoundID != 100001 || next.NextRoundStartTime != 1000020000 {
		t.Errorf("after boundary: %+v", next)
	}
}

func TestRoundClock_LockWindow(t *testing.T) {
	rc := mustRoundClock(t, clockwork.NewFakeClock(), 10000, 2000)
	start := int64(1000000000)

	tests := []struct {
		name   string
		offset int64
		want   bool
	}{
		{name: "Round start", offset: 0, want: true},
		{name: "Mid round", offset: 5000, want: true},
		{name: "Last open millisecond", offset: 7999, want: true},
		{name: "Lock starts", offset: 8000, want: false},
		{name: "Last millisecond", offset: 9999, want: false},
		{name: "Next round start", offset: 10000, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rc.BettingAllowedAt(start + tt.offset); got != tt.want {
				t.Errorf("BettingAllowedAt(+%d) = %v, want %v", tt.offset, got, tt.want)
			}
			if got := rc.SnapshotAt(start + tt.offset).BettingOpen; got != tt.want {
				t.Errorf("SnapshotAt(+%d).BettingOpen = %v, want %v", tt.offset, got, tt.want)
			}
		})
	}
}

func TestRoundClock_IsFinished(t *testing.T) {
	rc := mustRoundClock(t, clockwork.NewFakeClock(), 10000, 0)

	if rc.IsFinished(100000, 1000009999) {
		t.Error("round reported finished before its end")
	}
	if !rc.IsFinished(100000, 1000010000) {
		t.Error("round not finished at its end time")
	}
	if rc.IsFinished(100001, 1000010000) {
		t.Error("live round reported finished")
	}
}

func TestRoundClock_MaxRoundID(t *testing.T) {
	rc := mustRoundClock(t, clockwork.NewFakeClock(), 10000, 0)

	last := rc.MaxRoundID()
	if last != 922337203685476 {
		t.Fatalf("MaxRoundID() = %d, want 922337203685476", last)
	}
	r := rc.RoundByID(last)
	if r.EndTime-r.StartTime != 10000 || r.EndTime < math.MaxInt64-10000 {
		t.Errorf("last round window = %+v", r)
	}
}

func TestRoundClock_UntilNextRound(t *testing.T) {
	rc := mustRoundClock(t, clockwork.NewFakeClock(), 10000, 0)

	if got := rc.UntilNextRound(1000000500); got != 9500*time.Millisecond {
		t.Errorf("UntilNextRound() = %v, want 9.5s", got)
	}
	if got := rc.UntilNextRound(1000000000); got != 10*time.Second {
		t.Errorf("UntilNextRound() at boundary = %v, want 10s", got)
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct {
		a, b, want int64
	}{
		{a: 0, b: 10, want: 0},
		{a: 9, b: 10, want: 0},
		{a: 10, b: 10, want: 1},
		{a: -1, b: 10, want: -1},
		{a: -10, b: 10, want: -1},
		{a: -11, b: 10, want: -2},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func BenchmarkRoundClock_Snapshot(b *testing.B) {
	rc := mustRoundClock(b, clockwork.NewRealClock(), 10000, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rc.Snapshot()
	}
}
