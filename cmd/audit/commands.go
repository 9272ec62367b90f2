package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"fliptowin/internal/game"
)

// maxAuditRange bounds one listing.
const maxAuditRange = 10000

var errOutcomeMismatch = errors.New("outcome mismatch")

type auditEnv struct {
	clock  clockwork.Clock
	getenv func(string) string
}

func newRootCmd(clock clockwork.Clock, getenv func(string) string) *cobra.Command {
	env := &auditEnv{clock: clock, getenv: getenv}

	rootCmd := &cobra.Command{
		Use:           "coinflip-audit",
		Short:         "Recompute and verify coin-flip round outcomes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Int64("duration", durationDefault(getenv), "round duration in milliseconds")

	rootCmd.AddCommand(
		roundsCmd(env),
		verifyCmd(env),
		commitmentCmd(env),
	)
	return rootCmd
}

func durationDefault(getenv func(string) string) int64 {
	if v, err := strconv.ParseInt(getenv("ROUND_DURATION_MS"), 10, 64); err == nil && v > 0 {
		return v
	}
	return game.DEFAULT_ROUND_DURATION_MS
}

func (e *auditEnv) setup(cmd *cobra.Command) (*game.RoundClock, *game.Oracle, error) {
	duration, err := cmd.Flags().GetInt64("duration")
	if err != nil {
		return nil, nil, err
	}
	clock, err := game.NewRoundClock(e.clock, duration, 0)
	if err != nil {
		return nil, nil, err
	}
	oracle, err := game.NewOracle([]byte(e.getenv("GAME_SECRET")))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: export GAME_SECRET", err)
	}
	return clock, oracle, nil
}

func roundsCmd(env *auditEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "List outcomes for a range of finished rounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetInt64("from")
			to, _ := cmd.Flags().GetInt64("to")
			if from < 0 || to < from {
				return fmt.Errorf("%w: need 0 <= from <= to", game.ErrInvalidRound)
			}
			if to-from >= maxAuditRange {
				return fmt.Errorf("range too large: at most %d rounds", maxAuditRange)
			}

			clock, oracle, err := env.setup(cmd)
			if err != nil {
				return err
			}
			if to > clock.MaxRoundID() {
				return fmt.Errorf("%w: %d is beyond the last round", game.ErrInvalidRound, to)
			}
			now := clock.NowMs()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROUND\tSTART\tEND\tOUTCOME\tDIGEST")
			for id := from; id <= to; id++ {
				if !clock.IsFinished(id, now) {
					break
				}
				r := clock.RoundByID(id)
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n", r.ID, r.StartTime, r.EndTime, oracle.ResultFor(id), oracle.Digest(id))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64("from", 0, "first round id")
	cmd.Flags().Int64("to", 0, "last round id")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func verifyCmd(env *auditEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a claimed outcome for a finished round",
		RunE: func(cmd *cobra.Command, args []string) error {
			roundID, _ := cmd.Flags().GetInt64("round")
			raw, _ := cmd.Flags().GetString("outcome")

			claimed, err := game.ParseSide(raw)
			if err != nil {
				return err
			}
			clock, oracle, err := env.setup(cmd)
			if err != nil {
				return err
			}
			if roundID < 0 || roundID > clock.MaxRoundID() {
				return fmt.Errorf("%w: %d", game.ErrInvalidRound, roundID)
			}
			if !clock.IsFinished(roundID, clock.NowMs()) {
				return fmt.Errorf("%w: round %d", game.ErrRoundNotFinished, roundID)
			}

			actual := oracle.ResultFor(roundID)
			if !oracle.Verify(roundID, claimed) {
				fmt.Fprintf(cmd.OutOrStdout(), "round %d: claimed %s, actual %s\n", roundID, claimed, actual)
				return fmt.Errorf("%w for round %d", errOutcomeMismatch, roundID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "round %d: %s verified (digest %s)\n", roundID, actual, oracle.Digest(roundID))
			return nil
		},
	}
	cmd.Flags().Int64("round", 0, "round id")
	cmd.Flags().String("outcome", "", "claimed outcome: head or tail")
	cmd.MarkFlagRequired("round")
	cmd.MarkFlagRequired("outcome")
	return cmd
}

func commitmentCmd(env *auditEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "commitment",
		Short: "Print the SHA-256 commitment of GAME_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, oracle, err := env.setup(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), oracle.Commitment())
			return nil
		},
	}
}
