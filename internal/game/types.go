package game

import (
	"github.com/shopspring/decimal"
)

type PlaceBetRequest struct {
	UserID string          `json:"userId"`
	Face   string          `json:"face"`
	Amount decimal.Decimal `json:"amount"`
}

// RoundStatusResponse is the round-status payload: the snapshot fields at the
// top level next to success.
type RoundStatusResponse struct {
	Success bool `json:"success"`
	RoundSnapshot
}

type PlaceBetResponse struct {
	Success        bool            `json:"success"`
	Result         string          `json:"result"` // win, lose
	Won            bool            `json:"won"`
	CoinFlip       Side            `json:"coinFlip"`
	Choice         Side            `json:"choice"`
	RoundID        int64           `json:"roundId"`
	SettlementID   string          `json:"settlementId"`
	WalletBalance  decimal.Decimal `json:"walletBalance"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	TotalBalance   decimal.Decimal `json:"totalBalance"`
	NextGame       RoundSnapshot   `json:"nextGame"`
}

type BalanceResponse struct {
	UserID         string          `json:"userId"`
	WalletBalance  decimal.Decimal `json:"walletBalance"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	TotalBalance   decimal.Decimal `json:"totalBalance"`
}

// RoundReveal is the audit view of a finished round.
type RoundReveal struct {
	Round   Round  `json:"round"`
	Outcome Side   `json:"outcome"`
	Digest  string `json:"digest"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

const (
	MessageRoundStart  = "round_start"
	MessageRoundResult = "round_result"
	MessageBetSettled  = "bet_settled"
	MessageBetResult   = "bet_result"
	MessageInitial     = "initial_state"
	MessageError       = "error"
	MessagePing        = "ping"
	MessagePong        = "pong"
	MessagePlaceBet    = "place_bet"
)

// BetSettledMessage is broadcast to other players; it carries no balances.
type BetSettledMessage struct {
	UserID  string `json:"userId"`
	RoundID int64  `json:"roundId"`
	Choice  Side   `json:"choice"`
	Won     bool   `json:"won"`
	Amount  string `json:"amount"`
}
