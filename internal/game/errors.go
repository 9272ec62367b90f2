package game

import "errors"

var (
	// ErrInvalidBet covers missing fields, an unknown side, stakes outside
	// (0, maxBet] and amounts finer than MONEY_SCALE.
	ErrInvalidBet = errors.New("invalid bet")

	// ErrInsufficientFunds is returned when the stake exceeds the total balance
	// or a loss would drive the wallet balance negative.
	ErrInsufficientFunds = errors.New("insufficient balance")

	// ErrBettingLocked is returned inside the trailing lock window of a round.
	ErrBettingLocked = errors.New("betting is locked for this round")

	// ErrBalanceInvariant means a settlement produced a negative total. It is a
	// defect, never a user error, and nothing is persisted.
	ErrBalanceInvariant = errors.New("balance calculation error")

	// ErrMissingSecret is returned when the oracle is built without a key.
	ErrMissingSecret = errors.New("game secret is not configured")

	ErrInvalidRound     = errors.New("invalid round id")
	ErrRoundNotFinished = errors.New("round has not finished")

	ErrAccountNotFound    = errors.New("account not found")
	ErrWriteConflict      = errors.New("concurrent account update, retry")
	ErrStorageUnavailable = errors.New("account storage unavailable")
)

// IsRetryable reports whether the caller may retry the request as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrWriteConflict) || errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrBettingLocked)
}
