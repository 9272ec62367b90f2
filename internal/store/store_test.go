package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fliptowin/internal/game"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func mustEngine(t *testing.T) *game.SettlementEngine {
	t.Helper()
	e, err := game.NewSettlementEngine(d(game.DEFAULT_MAX_BET_AMOUNT))
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// settleFn plays one bet on head against a fixed outcome.
func settleFn(engine *game.SettlementEngine, userID string, stake int64, outcome game.Side) func(game.Balances) (game.Settlement, error) {
	return func(b game.Balances) (game.Settlement, error) {
		st, err := engine.Settle(b, game.Bet{ID: uuid.NewString(), UserID: userID, Side: game.SideHead, Stake: d(stake), RoundID: 100000}, outcome)
		if err != nil {
			return game.Settlement{}, err
		}
		st.SettledAt = time.Now().UTC()
		return st, nil
	}
}

type storeCase struct {
	name string
	run  func(t *testing.T, s game.AccountStore)
}

// accountStoreSuite is shared by every backend. exactConcurrency asserts that
// no attempt was lost to write conflicts, which holds for locking backends.
func accountStoreSuite(t *testing.T, exactConcurrency bool) []storeCase {
	engine := mustEngine(t)
	ctx := context.Background()

	return []storeCase{
		{
			name: "SetBalances then Balances",
			run: func(t *testing.T, s game.AccountStore) {
				if err := s.SetBalances(ctx, "seed", game.Balances{Wallet: d(100), Current: d(25)}); err != nil {
					t.Fatalf("SetBalances() error = %v", err)
				}
				got, err := s.Balances(ctx, "seed")
				if err != nil {
					t.Fatalf("Balances() error = %v", err)
				}
				if !got.Wallet.Equal(d(100)) || !got.Current.Equal(d(25)) {
					t.Errorf("Balances() = %+v", got)
				}
			},
		},
		{
			name: "Unknown account",
			run: func(t *testing.T, s game.AccountStore) {
				if _, err := s.Balances(ctx, "ghost"); !errors.Is(err, game.ErrAccountNotFound) {
					t.Errorf("Balances() error = %v, want ErrAccountNotFound", err)
				}
				_, err := s.Settle(ctx, "ghost", settleFn(engine, "ghost", 10, game.SideHead))
				if !errors.Is(err, game.ErrAccountNotFound) {
					t.Errorf("Settle() error = %v, want ErrAccountNotFound", err)
				}
			},
		},
		{
			name: "Settle persists win and loss",
			run: func(t *testing.T, s game.AccountStore) {
				user := "settle-user"
				if err := s.SetBalances(ctx, user, game.Balances{Wallet: d(100), Current: d(0)}); err != nil {
					t.Fatal(err)
				}

				win, err := s.Settle(ctx, user, settleFn(engine, user, 20, game.SideHead))
				if err != nil {
					t.Fatalf("Settle(win) error = %v", err)
				}
				if !win.Won || !win.After.Current.Equal(d(20)) {
					t.Errorf("win settlement = %+v", win)
				}

				loss, err := s.Settle(ctx, user, settleFn(engine, user, 30, game.SideTail))
				if err != nil {
					t.Fatalf("Settle(loss) error = %v", err)
				}
				if loss.Won {
					t.Error("loss reported as win")
				}

				got, err := s.Balances(ctx, user)
				if err != nil {
					t.Fatal(err)
				}
				if !got.Wallet.Equal(d(70)) || !got.Current.Equal(d(0)) {
					t.Errorf("Balances() = %+v, want wallet 70 current 0", got)
				}
			},
		},
		{
			name: "Rejected settlement leaves balances untouched",
			run: func(t *testing.T, s game.AccountStore) {
				user := "reject-user"
				start := game.Balances{Wallet: d(10), Current: d(50)}
				if err := s.SetBalances(ctx, user, start); err != nil {
					t.Fatal(err)
				}

				_, err := s.Settle(ctx, user, settleFn(engine, user, 30, game.SideTail))
				if !errors.Is(err, game.ErrInsufficientFunds) {
					t.Fatalf("Settle() error = %v, want ErrInsufficientFunds", err)
				}

				got, err := s.Balances(ctx, user)
				if err != nil {
					t.Fatal(err)
				}
				if !got.Wallet.Equal(start.Wallet) || !got.Current.Equal(start.Current) {
					t.Errorf("Balances() = %+v, want %+v", got, start)
				}
			},
		},
		{
			name: "Concurrent losses never overdraw",
			run: func(t *testing.T, s game.AccountStore) {
				user := "race-loss"
				if err := s.SetBalances(ctx, user, game.Balances{Wallet: d(100), Current: d(0)}); err != nil {
					t.Fatal(err)
				}

				const attempts = 20
				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					succeeded int
					conflicts int
				)
				for i := 0; i < attempts; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := s.Settle(ctx, user, settleFn(engine, user, 10, game.SideTail))
						mu.Lock()
						defer mu.Unlock()
						switch {
						case err == nil:
							succeeded++
						case errors.Is(err, game.ErrWriteConflict):
							conflicts++
						case !errors.Is(err, game.ErrInsufficientFunds):
							t.Errorf("Settle() unexpected error = %v", err)
						}
					}()
				}
				wg.Wait()

				got, err := s.Balances(ctx, user)
				if err != nil {
					t.Fatal(err)
				}
				want := d(100).Sub(d(int64(succeeded) * 10))
				if !got.Wallet.Equal(want) {
					t.Errorf("wallet = %s after %d losses, want %s", got.Wallet, succeeded, want)
				}
				if got.Wallet.IsNegative() {
					t.Errorf("wallet overdrawn: %s", got.Wallet)
				}
				if succeeded > 10 {
					t.Errorf("succeeded = %d, want at most 10", succeeded)
				}
				if exactConcurrency && (succeeded != 10 || conflicts != 0) {
					t.Errorf("succeeded = %d conflicts = %d, want 10 and 0", succeeded, conflicts)
				}
			},
		},
		{
			name: "Concurrent wins accumulate",
			run: func(t *testing.T, s game.AccountStore) {
				user := "race-win"
				if err := s.SetBalances(ctx, user, game.Balances{Wallet: d(100), Current: d(0)}); err != nil {
					t.Fatal(err)
				}

				const attempts = 10
				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					succeeded int
				)
				for i := 0; i < attempts; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := s.Settle(ctx, user, settleFn(engine, user, 5, game.SideHead))
						if err == nil {
							mu.Lock()
							succeeded++
							mu.Unlock()
						}
					}()
				}
				wg.Wait()

				got, err := s.Balances(ctx, user)
				if err != nil {
					t.Fatal(err)
				}
				if want := d(int64(succeeded) * 5); !got.Current.Equal(want) {
					t.Errorf("current = %s after %d wins, want %s", got.Current, succeeded, want)
				}
				if !got.Wallet.Equal(d(100)) {
					t.Errorf("wallet = %s, want 100", got.Wallet)
				}
				if exactConcurrency && succeeded != attempts {
					t.Errorf("succeeded = %d, want %d", succeeded, attempts)
				}
			},
		},
	}
}

func runAccountStoreSuite(t *testing.T, s game.AccountStore, exactConcurrency bool) {
	for _, tc := range accountStoreSuite(t, exactConcurrency) {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t, s)
		})
	}
}
