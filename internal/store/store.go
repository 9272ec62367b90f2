// Package store holds the account backends behind game.AccountStore.
package store

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fliptowin/internal/game"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

var (
	_ game.AccountStore = (*MemoryStore)(nil)
	_ game.AccountStore = (*PostgresStore)(nil)
	_ game.AccountStore = (*RedisStore)(nil)
)

func parseBalances(wallet, current string) (game.Balances, error) {
	w, err := decimal.NewFromString(wallet)
	if err != nil {
		return game.Balances{}, fmt.Errorf("%w: bad wallet balance %q: %v", game.ErrStorageUnavailable, wallet, err)
	}
	c, err := decimal.NewFromString(current)
	if err != nil {
		return game.Balances{}, fmt.Errorf("%w: bad current balance %q: %v", game.ErrStorageUnavailable, current, err)
	}
	return game.Balances{Wallet: w, Current: c}, nil
}
