package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

var tallyCmd = &cobra.Command{
	Use:   "tally <voteable type>",
	Short: "list voteables of a type by number of votes",
	Args:  cobra.ExactArgs(1),
	Run:   tally,
}

var rankCmd = &cobra.Command{
	Use:   "rank <voteable type>",
	Short: "list voteables of a type by net score",
	Args:  cobra.ExactArgs(1),
	Run:   rank,
}

func init() {
	addWindowFlags(tallyCmd.Flags())
	addWindowFlags(rankCmd.Flags())

	tallyCmd.Flags().String("order", "count-desc", "count-desc, count-asc, total-desc, total-asc or id")
	rankCmd.Flags().Bool("ascending", false, "Lowest net score first")

	rootCmd.AddCommand(tallyCmd)
	rootCmd.AddCommand(rankCmd)
}

func tally(cmd *cobra.Command, args []string) {
	config := loadConfigOrPanic(cmd)

	w, err := parseWindow(cmd.Flags())
	if err != nil {
		panicWithError(err, "invalid tally options")
	}

	order, err := parseOrdering(mustGetString(cmd.Flags(), "order"))
	if err != nil {
		panicWithError(err, "invalid tally options")
	}

	svc := getService(openLedgerOrPanic(config), config)
	defer closeOrLog(svc)

	result, err := svc.Tally(context.Background(), args[0], thumbsup.TallyOptions{
		StartAt:    w.startAt,
		EndAt:      w.endAt,
		Conditions: w.conditions,
		Dimension:  w.dimension,
		Limit:      w.limit,
		Order:      order,
		AtLeast:    w.atLeast,
		AtMost:     w.atMost,
	})
	if err != nil {
		panicWithError(err, "failed to tally %v", args[0])
	}

	printTallies(cmd.OutOrStdout(), result)
}

func rank(cmd *cobra.Command, args []string) {
	config := loadConfigOrPanic(cmd)

	w, err := parseWindow(cmd.Flags())
	if err != nil {
		panicWithError(err, "invalid rank options")
	}

	ascending, err := cmd.Flags().GetBool("ascending")
	if err != nil {
		panicWithError(err, "invalid rank options")
	}

	svc := getService(openLedgerOrPanic(config), config)
	defer closeOrLog(svc)

	result, err := svc.RankTally(context.Background(), args[0], thumbsup.RankOptions{
		StartAt:    w.startAt,
		EndAt:      w.endAt,
		Conditions: w.conditions,
		Dimension:  w.dimension,
		Limit:      w.limit,
		Ascending:  ascending,
		AtLeast:    w.atLeast,
		AtMost:     w.atMost,
	})
	if err != nil {
		panicWithError(err, "failed to rank %v", args[0])
	}

	printTallies(cmd.OutOrStdout(), result)
}

func addWindowFlags(flags *pflag.FlagSet) {
	flags.String("start-at", "", "Only count votes cast at or after this RFC3339 time")
	flags.String("end-at", "", "Only count votes cast at or before this RFC3339 time")
	flags.String("voter", "", "Only count votes cast by this Type#ID or Type")
	flags.String("direction", "", "Only count up or down votes")
	flags.String("dimension", "", "Only count votes in this dimension; empty selects the default one")
	flags.Int("limit", 0, "Maximum number of rows, 0 for all")
	flags.Int64("at-least", 0, "Drop voteables whose metric is below this value")
	flags.Int64("at-most", 0, "Drop voteables whose metric is above this value")
}

type window struct {
	startAt    time.Time
	endAt      time.Time
	conditions thumbsup.Filter
	dimension  *thumbsup.Dimension
	limit      int
	atLeast    *int64
	atMost     *int64
}

func parseWindow(flags *pflag.FlagSet) (window, error) {
	var (
		result window
		err    error
	)

	if result.startAt, err = parseTime(mustGetString(flags, "start-at")); err != nil {
		return window{}, errors.Wrap(err, "start-at")
	}
	if result.endAt, err = parseTime(mustGetString(flags, "end-at")); err != nil {
		return window{}, errors.Wrap(err, "end-at")
	}

	if voter := mustGetString(flags, "voter"); voter != "" {
		if result.conditions.Voter, err = parseRefPattern(voter); err != nil {
			return window{}, err
		}
	}

	result.conditions.Direction = thumbsup.Direction(strings.ToLower(mustGetString(flags, "direction")))
	if err := result.conditions.Validate(); err != nil {
		return window{}, err
	}

	if flags.Changed("dimension") {
		dimension := thumbsup.NoDimension
		if name := mustGetString(flags, "dimension"); name != "" {
			dimension = thumbsup.Dim(name)
		}
		result.dimension = &dimension
	}

	if result.limit, err = flags.GetInt("limit"); err != nil {
		return window{}, err
	}
	if result.atLeast, err = optionalInt64(flags, "at-least"); err != nil {
		return window{}, err
	}
	if result.atMost, err = optionalInt64(flags, "at-most"); err != nil {
		return window{}, err
	}

	return result, nil
}

func parseOrdering(name string) (thumbsup.Ordering, error) {
	switch strings.ToLower(name) {
	case "", "count-desc":
		return thumbsup.ByVoteCountDesc, nil
	case "count-asc":
		return thumbsup.ByVoteCountAsc, nil
	case "total-desc":
		return thumbsup.ByVoteTotalDesc, nil
	case "total-asc":
		return thumbsup.ByVoteTotalAsc, nil
	case "id":
		return thumbsup.ByVoteableID, nil
	default:
		return nil, errors.Errorf("unrecognized order: %v", name)
	}
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339, value)
}

// parseRef reads a complete Type#ID reference.
func parseRef(value string) (thumbsup.Ref, error) {
	ref, err := parseRefPattern(value)
	if err != nil {
		return thumbsup.Ref{}, err
	}
	if !ref.Complete() {
		return thumbsup.Ref{}, errors.Errorf("expected Type#ID, got %q", value)
	}

	return ref, nil
}

// parseRefPattern reads Type#ID or a bare Type.
func parseRefPattern(value string) (thumbsup.Ref, error) {
	parts := strings.SplitN(value, "#", 2)
	if parts[0] == "" {
		return thumbsup.Ref{}, errors.Errorf("missing type in %q", value)
	}

	ref := thumbsup.Ref{Type: parts[0]}
	if len(parts) == 2 {
		ref.ID = parts[1]
	}

	return ref, nil
}

func optionalInt64(flags *pflag.FlagSet, name string) (*int64, error) {
	if !flags.Changed(name) {
		return nil, nil
	}

	value, err := flags.GetInt64(name)
	if err != nil {
		return nil, err
	}

	return &value, nil
}

func mustGetString(flags *pflag.FlagSet, name string) string {
	value, err := flags.GetString(name)
	if err != nil {
		panicWithError(err, "missing flag %v", name)
	}
	return value
}

func printTallies(out io.Writer, tallies []thumbsup.Tally) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VOTEABLE\tCOUNT\tTOTAL")

	for _, t := range tallies {
		fmt.Fprintf(w, "%v\t%d\t%+d\n", t.Voteable, t.VoteCount, t.VoteTotal)
	}

	_ = w.Flush()
}
