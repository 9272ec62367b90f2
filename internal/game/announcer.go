package game

import (
	"context"

	"go.uber.org/zap"

	"fliptowin/internal/metrics"
)

// RoundResultMessage reveals a round only after its end time.
type RoundResultMessage struct {
	RoundID int64  `json:"roundId"`
	Outcome Side   `json:"outcome"`
	Digest  string `json:"digest"`
}

// Announcer pushes round boundaries and revealed outcomes to clients. Bets do
// not depend on it; every process can compute the same rounds on its own.
type Announcer struct {
	clock   *RoundClock
	oracle  *Oracle
	hub     Broadcaster
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewAnnouncer(clock *RoundClock, oracle *Oracle, hub Broadcaster, m *metrics.Metrics, log *zap.Logger) *Announcer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Announcer{
		clock:   clock,
		oracle:  oracle,
		hub:     hub,
		metrics: m,
		log:     log.With(zap.String("component", "announcer")),
	}
}

// Run blocks until ctx is cancelled, waking once per round boundary.
func (a *Announcer) Run(ctx context.Context) {
	a.log.Info("announcer started", zap.Duration("round_duration", a.clock.Duration()))
	for {
		timer := a.clock.clock.NewTimer(a.clock.UntilNextRound(a.clock.NowMs()))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.log.Info("announcer stopped")
			return
		case <-timer.Chan():
			a.announce(a.clock.NowMs())
		}
	}
}

func (a *Announcer) announce(nowMs int64) {
	snap := a.clock.SnapshotAt(nowMs)
	ended := snap.CurrentRoundID - 1
	outcome := a.oracle.ResultFor(ended)
	a.metrics.ObserveOutcome(string(outcome))

	a.hub.Broadcast(WSMessage{Type: MessageRoundResult, Data: RoundResultMessage{
		RoundID: ended,
		Outcome: outcome,
		Digest:  a.oracle.Digest(ended),
	}})
	a.hub.Broadcast(WSMessage{Type: MessageRoundStart, Data: snap})

	a.log.Debug("round announced", zap.Int64("ended_round", ended), zap.String("outcome", string(outcome)), zap.Int64("round_id", snap.CurrentRoundID))
}
