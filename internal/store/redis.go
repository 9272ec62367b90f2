package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"fliptowin/internal/game"
)

const (
	accountKeyPrefix  = "coinflip:account:"
	settlementsStream = "coinflip:settlements"

	fieldWallet  = "wallet"
	fieldCurrent = "current"
	fieldVersion = "version"

	DEFAULT_REDIS_MAX_RETRIES = 10
)

// RedisStore keeps each account in a hash and settles it with an optimistic
// WATCH/MULTI transaction. The ledger entry is appended to a stream inside
// the same MULTI block.
type RedisStore struct {
	client     *redis.Client
	stream     string
	maxRetries int
}

func NewRedisStore(client *redis.Client, maxRetries int) *RedisStore {
	if maxRetries < 1 {
		maxRetries = DEFAULT_REDIS_MAX_RETRIES
	}
	return &RedisStore{client: client, stream: settlementsStream, maxRetries: maxRetries}
}

func accountKey(userID string) string {
	return accountKeyPrefix + userID
}

func (s *RedisStore) Balances(ctx context.Context, userID string) (game.Balances, error) {
	vals, err := s.client.HGetAll(ctx, accountKey(userID)).Result()
	if err != nil {
		return game.Balances{}, fmt.Errorf("%w: %v", game.ErrStorageUnavailable, err)
	}
	return balancesFromHash(vals)
}

func balancesFromHash(vals map[string]string) (game.Balances, error) {
	if len(vals) == 0 {
		return game.Balances{}, game.ErrAccountNotFound
	}
	return parseBalances(vals[fieldWallet], vals[fieldCurrent])
}

func (s *RedisStore) Settle(ctx context.Context, userID string, fn func(game.Balances) (game.Settlement, error)) (game.Settlement, error) {
	key := accountKey(userID)

	var (
		result game.Settlement
		fnErr  error
	)
	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		before, err := balancesFromHash(vals)
		if err != nil {
			fnErr = err
			return err
		}

		st, err := fn(before)
		if err != nil {
			fnErr = err
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldWallet, st.After.Wallet.String(), fieldCurrent, st.After.Current.String())
			pipe.HIncrBy(ctx, key, fieldVersion, 1)
			pipe.XAdd(ctx, &redis.XAddArgs{Stream: s.stream, Values: settlementFields(st)})
			return nil
		})
		if err != nil {
			return err
		}
		result = st
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		fnErr = nil
		err := s.client.Watch(ctx, txf, key)
		if fnErr != nil {
			return game.Settlement{}, fnErr
		}
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return game.Settlement{}, err
		}
		return game.Settlement{}, fmt.Errorf("%w: %v", game.ErrStorageUnavailable, err)
	}
	return game.Settlement{}, fmt.Errorf("%w: user %s after %d attempts", game.ErrWriteConflict, userID, s.maxRetries)
}

// SetBalances writes both fields in one MULTI block; a Settle watching the
// key sees the change and retries.
func (s *RedisStore) SetBalances(ctx context.Context, userID string, b game.Balances) error {
	key := accountKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldWallet, b.Wallet.String(), fieldCurrent, b.Current.String())
		pipe.HIncrBy(ctx, key, fieldVersion, 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", game.ErrStorageUnavailable, err)
	}
	return nil
}

func settlementFields(st game.Settlement) map[string]interface{} {
	return map[string]interface{}{
		"id":             st.ID,
		"user_id":        st.UserID,
		"round_id":       strconv.FormatInt(st.RoundID, 10),
		"choice":         string(st.Choice),
		"outcome":        string(st.Outcome),
		"stake":          st.Stake.String(),
		"won":            strconv.FormatBool(st.Won),
		"wallet_before":  st.Before.Wallet.String(),
		"current_before": st.Before.Current.String(),
		"wallet_after":   st.After.Wallet.String(),
		"current_after":  st.After.Current.String(),
		"settled_at_ms":  strconv.FormatInt(st.SettledAt.UnixMilli(), 10),
	}
}
