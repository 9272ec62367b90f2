package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fliptowin/internal/metrics"
)

// AccountStore owns the two balance fields. Settle must run fn and persist
// its result as one atomic read-modify-write per account: no other Settle or
// SetBalances on the same account may interleave, and an error from fn or
// from the write leaves the account untouched.
type AccountStore interface {
	Balances(ctx context.Context, userID string) (Balances, error)
	Settle(ctx context.Context, userID string, fn func(Balances) (Settlement, error)) (Settlement, error)
	SetBalances(ctx context.Context, userID string, b Balances) error
}

type SettlementPublisher interface {
	PublishSettlement(ctx context.Context, s Settlement) error
}

type Broadcaster interface {
	Broadcast(message interface{})
}

type Deps struct {
	Clock     *RoundClock
	Oracle    *Oracle
	Engine    *SettlementEngine
	Accounts  AccountStore
	Publisher SettlementPublisher
	Hub       Broadcaster
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Service is the request-level entry point: one clock sample per request,
// outcome from the oracle, balances through the account store.
type Service struct {
	clock     *RoundClock
	oracle    *Oracle
	engine    *SettlementEngine
	accounts  AccountStore
	publisher SettlementPublisher
	hub       Broadcaster
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewService(d Deps) (*Service, error) {
	if d.Clock == nil || d.Oracle == nil || d.Engine == nil || d.Accounts == nil {
		return nil, errors.New("game service requires clock, oracle, engine and account store")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		clock:     d.Clock,
		oracle:    d.Oracle,
		engine:    d.Engine,
		accounts:  d.Accounts,
		publisher: d.Publisher,
		hub:       d.Hub,
		metrics:   d.Metrics,
		log:       d.Logger.With(zap.String("component", "game")),
	}, nil
}

func (s *Service) Clock() *RoundClock { return s.clock }
func (s *Service) Oracle() *Oracle    { return s.oracle }

func (s *Service) RoundStatus() RoundSnapshot {
	return s.clock.Snapshot()
}

func (s *Service) PlaceBet(ctx context.Context, req PlaceBetRequest) (*PlaceBetResponse, error) {
	snap := s.clock.Snapshot()
	roundID := snap.CurrentRoundID

	userID := strings.TrimSpace(req.UserID)
	if userID == "" || req.Face == "" {
		return nil, s.reject(userID, roundID, fmt.Errorf("%w: missing required fields", ErrInvalidBet))
	}
	side, err := ParseSide(req.Face)
	if err != nil {
		return nil, s.reject(userID, roundID, err)
	}
	if err := s.engine.ValidateStake(side, req.Amount); err != nil {
		return nil, s.reject(userID, roundID, err)
	}
	if !snap.BettingOpen {
		return nil, s.reject(userID, roundID, fmt.Errorf("%w: round %d", ErrBettingLocked, roundID))
	}

	outcome := s.oracle.ResultFor(roundID)
	bet := Bet{ID: uuid.NewString(), UserID: userID, Side: side, Stake: req.Amount, RoundID: roundID}

	started := time.Now()
	settlement, err := s.accounts.Settle(ctx, userID, func(b Balances) (Settlement, error) {
		st, err := s.engine.Settle(b, bet, outcome)
		if err != nil {
			return Settlement{}, err
		}
		st.SettledAt = s.clock.clock.Now().UTC()
		return st, nil
	})
	if err != nil {
		return nil, s.reject(userID, roundID, err)
	}
	s.metrics.ObserveSettled(settlement.Won, time.Since(started))

	result := "lose"
	if settlement.Won {
		result = "win"
	}
	s.log.Info("game played",
		zap.String("user_id", userID),
		zap.Int64("round_id", roundID),
		zap.String("user_choice", string(side)),
		zap.String("round_outcome", string(outcome)),
		zap.String("result", result),
		zap.String("amount", bet.Stake.String()),
		zap.String("new_wallet_balance", settlement.After.Wallet.String()),
		zap.String("new_current_balance", settlement.After.Current.String()),
		zap.Duration("duration", time.Since(started)),
	)

	if s.publisher != nil {
		if err := s.publisher.PublishSettlement(ctx, settlement); err != nil {
			s.metrics.ObservePublishError()
			s.log.Warn("settlement publish failed", zap.String("settlement_id", settlement.ID), zap.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(WSMessage{Type: MessageBetSettled, Data: BetSettledMessage{
			UserID:  userID,
			RoundID: roundID,
			Choice:  side,
			Won:     settlement.Won,
			Amount:  bet.Stake.String(),
		}})
	}

	return &PlaceBetResponse{
		Success:        true,
		Result:         result,
		Won:            settlement.Won,
		CoinFlip:       outcome,
		Choice:         side,
		RoundID:        roundID,
		SettlementID:   settlement.ID,
		WalletBalance:  settlement.After.Wallet,
		CurrentBalance: settlement.After.Current,
		TotalBalance:   settlement.After.Total(),
		NextGame:       snap,
	}, nil
}

func (s *Service) Balances(ctx context.Context, userID string) (*BalanceResponse, error) {
	b, err := s.accounts.Balances(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		UserID:         userID,
		WalletBalance:  b.Wallet,
		CurrentBalance: b.Current,
		TotalBalance:   b.Total(),
	}, nil
}

// SetBalances overwrites both fields. It is an operator action for seeding
// accounts, not part of play.
func (s *Service) SetBalances(ctx context.Context, userID string, b Balances) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidBet)
	}
	if b.Wallet.IsNegative() || b.Current.IsNegative() {
		return fmt.Errorf("%w: balances must not be negative", ErrInvalidBet)
	}
	if !HasMoneyScale(b.Wallet) || !HasMoneyScale(b.Current) {
		return fmt.Errorf("%w: balances have more than %d decimal places", ErrInvalidBet, MONEY_SCALE)
	}
	if err := s.accounts.SetBalances(ctx, userID, b); err != nil {
		return err
	}
	s.log.Info("balances set",
		zap.String("user_id", userID),
		zap.String("wallet_balance", b.Wallet.String()),
		zap.String("current_balance", b.Current.String()),
	)
	return nil
}

// RevealOutcome discloses the outcome of a round that has already ended.
func (s *Service) RevealOutcome(roundID int64) (*RoundReveal, error) {
	if roundID < 0 || roundID > s.clock.MaxRoundID() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRound, roundID)
	}
	if !s.clock.IsFinished(roundID, s.clock.NowMs()) {
		return nil, fmt.Errorf("%w: round %d", ErrRoundNotFinished, roundID)
	}
	return &RoundReveal{
		Round:   s.clock.RoundByID(roundID),
		Outcome: s.oracle.ResultFor(roundID),
		Digest:  s.oracle.Digest(roundID),
	}, nil
}

func (s *Service) reject(userID string, roundID int64, err error) error {
	reason := RejectReason(err)
	s.metrics.ObserveRejected(reason)

	fields := []zap.Field{
		zap.String("user_id", userID),
		zap.Int64("round_id", roundID),
		zap.String("reason", reason),
		zap.Error(err),
	}
	switch reason {
	case "invariant":
		s.log.Error("settlement aborted: balance invariant violated", fields...)
	case "conflict", "unavailable", "other":
		s.log.Warn("settlement failed", fields...)
	default:
		s.log.Info("bet rejected", fields...)
	}
	return err
}

// RejectReason maps an error to a short metric/log label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidBet):
		return "invalid"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrBettingLocked):
		return "locked"
	case errors.Is(err, ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, ErrBalanceInvariant):
		return "invariant"
	case errors.Is(err, ErrWriteConflict):
		return "conflict"
	case errors.Is(err, ErrStorageUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
