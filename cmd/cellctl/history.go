package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cellinfo/cell"
	"cellinfo/csvlog"
	"cellinfo/history"
)

func exportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the history as CSV (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			w, closeOut, err := output(cmd, args)
			if err != nil {
				return err
			}
			n, err := csvlog.Export(store, w)
			if cerr := closeOut(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d cells\n", n)
			return nil
		},
	}
}

func importCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge a CSV log into the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			store, err := g.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			n, err := csvlog.Import(store, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d cells from %s\n", n, args[0])
			return nil
		},
	}
}

func listCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the most recently seen cells",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			total, err := store.Count()
			if err != nil {
				return err
			}
			recent, err := store.Recent(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s cells logged\n", humanize.Comma(total))
			for _, rec := range recent {
				fmt.Fprintln(out, listLine(rec))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of cells to show")
	return cmd
}

func listLine(rec history.LoggedCell) string {
	best := cell.Unavailable
	if rec.BestSignal != nil {
		best = cell.FormatPower(*rec.BestSignal)
	}
	bandText := fmt.Sprintf("%d", rec.Band)
	if rec.Technology == cell.TechNR {
		bandText = cell.FormatNRBand(rec.Band)
	}
	return fmt.Sprintf("%-4s %-12s band %-5s ch %-7d pci %-4d best %-9s last seen %s",
		rec.Technology, rec.ID, bandText, rec.Channel, rec.PCI, best, humanize.Time(rec.LastSeen))
}

func clearCmd(g *globals) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cell from the history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear history without --yes")
			}
			store, err := g.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.ClearAll(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func purgeCmd(g *globals) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete cells not seen in the given number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return errors.New("--days must be > 0")
			}
			store, err := g.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			cutoff := time.Now().UTC().AddDate(0, 0, -days)
			removed, err := store.PurgeOlderThan(cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d cells not seen since %s\n", removed, cutoff.Format(time.DateOnly))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days")
	return cmd
}

func checkpointCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint <dir>",
		Short: "Write a consistent copy of the history store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Checkpoint(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checkpoint written to %s\n", args[0])
			return nil
		},
	}
}

func verifyCmd(g *globals) *cobra.Command {
	var checkpoint string
	var budget time.Duration
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Scan the history store (or a checkpoint) and check its counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var st history.IntegrityStats
			var err error
			if checkpoint != "" {
				st, err = history.VerifyCheckpoint(ctx, checkpoint, budget)
			} else {
				var store *history.Store
				store, err = g.openHistory()
				if err != nil {
					return err
				}
				defer store.Close()
				st, err = store.Verify(ctx, budget)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s records, %s index entries in %s\n",
				humanize.Comma(st.Records), humanize.Comma(st.IndexEntries), st.Duration.Truncate(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "verify this checkpoint directory instead of the live store")
	cmd.Flags().DurationVar(&budget, "timeout", time.Minute, "maximum scan time")
	return cmd
}

// output returns stdout for no args or "-", otherwise a created file.
func output(cmd *cobra.Command, args []string) (io.Writer, func() error, error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(args[0])
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
