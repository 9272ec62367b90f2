package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fliptowin/internal/game"
)

const (
	selectBalancesSQL = `SELECT wallet_balance::text, current_balance::text FROM accounts WHERE user_id = $1`

	lockBalancesSQL = selectBalancesSQL + ` FOR UPDATE`

	updateBalancesSQL = `
		UPDATE accounts
		SET wallet_balance = $2::numeric, current_balance = $3::numeric,
		    version = version + 1, updated_at = NOW()
		WHERE user_id = $1`

	insertSettlementSQL = `
		INSERT INTO bet_settlements (
			id, user_id, round_id, choice, outcome, stake, won,
			wallet_before, current_before, wallet_after, current_after, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12)`

	upsertBalancesSQL = `
		INSERT INTO accounts (user_id, wallet_balance, current_balance)
		VALUES ($1, $2::numeric, $3::numeric)
		ON CONFLICT (user_id) DO UPDATE
		SET wallet_balance = EXCLUDED.wallet_balance,
		    current_balance = EXCLUDED.current_balance,
		    version = accounts.version + 1,
		    updated_at = NOW()`
)

// PostgresStore serialises settlements per account with a row lock and
// writes the ledger row in the same transaction as the balance update.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Balances(ctx context.Context, userID string) (game.Balances, error) {
	var wallet, current string
	err := s.pool.QueryRow(ctx, selectBalancesSQL, userID).Scan(&wallet, &current)
	if err != nil {
		return game.Balances{}, classifyPgError(err)
	}
	return parseBalances(wallet, current)
}

func (s *PostgresStore) Settle(ctx context.Context, userID string, fn func(game.Balances) (game.Settlement, error)) (game.Settlement, error) {
	var (
		result game.Settlement
		fnErr  error
	)

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var wallet, current string
		if err := tx.QueryRow(ctx, lockBalancesSQL, userID).Scan(&wallet, &current); err != nil {
			return err
		}
		before, err := parseBalances(wallet, current)
		if err != nil {
			fnErr = err
			return err
		}

		st, err := fn(before)
		if err != nil {
			fnErr = err
			return err
		}

		if _, err := tx.Exec(ctx, updateBalancesSQL, userID, st.After.Wallet.String(), st.After.Current.String()); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertSettlementSQL,
			st.ID, st.UserID, st.RoundID, string(st.Choice), string(st.Outcome), st.Stake.String(), st.Won,
			st.Before.Wallet.String(), st.Before.Current.String(),
			st.After.Wallet.String(), st.After.Current.String(),
			st.SettledAt,
		); err != nil {
			return err
		}

		result = st
		return nil
	})
	if fnErr != nil {
		return game.Settlement{}, fnErr
	}
	if err != nil {
		return game.Settlement{}, classifyPgError(err)
	}
	return result, nil
}

func (s *PostgresStore) SetBalances(ctx context.Context, userID string, b game.Balances) error {
	if _, err := s.pool.Exec(ctx, upsertBalancesSQL, userID, b.Wallet.String(), b.Current.String()); err != nil {
		return classifyPgError(err)
	}
	return nil
}

func classifyPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return game.ErrAccountNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", game.ErrWriteConflict, pgErr.Message)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", game.ErrBalanceInvariant, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%w: %v", game.ErrStorageUnavailable, err)
}
