package game

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DEFAULT_MAX_BET_AMOUNT = 10000

	// MONEY_SCALE is the number of fractional digits every stored amount keeps.
	MONEY_SCALE int32 = 8
)

// HasMoneyScale reports whether v fits in MONEY_SCALE fractional digits
// without rounding.
func HasMoneyScale(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(MONEY_SCALE))
}

// Balances is the pair of account fields settlement mutates.
type Balances struct {
	Wallet  decimal.Decimal `json:"walletBalance"`
	Current decimal.Decimal `json:"currentBalance"`
}

func (b Balances) Total() decimal.Decimal {
	return b.Wallet.Add(b.Current)
}

// Bet lives for one request. RoundID is captured when the bet is accepted
// and stays authoritative even if settlement finishes in a later round.
// ID becomes the settlement id.
type Bet struct {
	ID      string
	UserID  string
	Side    Side
	Stake   decimal.Decimal
	RoundID int64
}

// Settlement is the outcome of one bet against one round.
type Settlement struct {
	ID        string          `json:"settlementId"`
	UserID    string          `json:"userId"`
	RoundID   int64           `json:"roundId"`
	Choice    Side            `json:"choice"`
	Outcome   Side            `json:"outcome"`
	Stake     decimal.Decimal `json:"stake"`
	Won       bool            `json:"won"`
	Before    Balances        `json:"before"`
	After     Balances        `json:"after"`
	SettledAt time.Time       `json:"settledAt"`
}

type SettlementEngine struct {
	maxBet decimal.Decimal
}

func NewSettlementEngine(maxBet decimal.Decimal) (*SettlementEngine, error) {
	if !maxBet.IsPositive() {
		return nil, fmt.Errorf("max bet amount must be positive, got %s", maxBet)
	}
	return &SettlementEngine{maxBet: maxBet}, nil
}

func (e *SettlementEngine) MaxBet() decimal.Decimal { return e.maxBet }

// ValidateStake checks the bet on its own, before any account is read.
func (e *SettlementEngine) ValidateStake(side Side, stake decimal.Decimal) error {
	if !side.Valid() {
		return fmt.Errorf("%w: invalid face selection %q", ErrInvalidBet, side)
	}
	if !stake.IsPositive() {
		return fmt.Errorf("%w: stake must be positive", ErrInvalidBet)
	}
	if !HasMoneyScale(stake) {
		return fmt.Errorf("%w: stake has more than %d decimal places", ErrInvalidBet, MONEY_SCALE)
	}
	if stake.GreaterThan(e.maxBet) {
		return fmt.Errorf("%w: stake exceeds max bet %s", ErrInvalidBet, e.maxBet)
	}
	return nil
}

func (e *SettlementEngine) Validate(b Balances, bet Bet) error {
	if err := e.ValidateStake(bet.Side, bet.Stake); err != nil {
		return err
	}
	if b.Total().LessThan(bet.Stake) {
		return fmt.Errorf("%w: total %s < stake %s", ErrInsufficientFunds, b.Total(), bet.Stake)
	}
	return nil
}

// Settle computes tentative balances and returns them only if every check
// holds. It is a pure function of its arguments: SettledAt is left for the
// caller to stamp, and callers persist Settlement.After.
func (e *SettlementEngine) Settle(b Balances, bet Bet, outcome Side) (Settlement, error) {
	if err := e.Validate(b, bet); err != nil {
		return Settlement{}, err
	}
	if !outcome.Valid() {
		return Settlement{}, fmt.Errorf("%w: unknown outcome %q", ErrBalanceInvariant, outcome)
	}

	won := bet.Side == outcome
	after := b
	if won {
		after.Current = b.Current.Add(bet.Stake)
	} else {
		after.Wallet = b.Wallet.Sub(bet.Stake)
		after.Current = decimal.Zero
		if after.Wallet.IsNegative() {
			return Settlement{}, fmt.Errorf("%w: wallet %s cannot cover stake %s", ErrInsufficientFunds, b.Wallet, bet.Stake)
		}
	}

	if after.Total().IsNegative() {
		return Settlement{}, fmt.Errorf("%w: total would be %s", ErrBalanceInvariant, after.Total())
	}

	return Settlement{
		ID:      bet.ID,
		UserID:  bet.UserID,
		RoundID: bet.RoundID,
		Choice:  bet.Side,
		Outcome: outcome,
		Stake:   bet.Stake,
		Won:     won,
		Before:  b,
		After:   after,
	}, nil
}
