package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cellinfo/band"
	"cellinfo/cell"
)

func bandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "band",
		Short: "Classify channel numbers into 3GPP bands",
	}
	cmd.AddCommand(
		bandLookupCmd("lte", "EARFCN", band.LTETable(), strconv.Itoa),
		bandLookupCmd("nr", "NR-ARFCN", band.NRTable(), cell.FormatNRBand),
	)
	return cmd
}

func bandLookupCmd(name, unit string, table band.Table, label func(int) string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <channel>...",
		Short: "Look up the band for one or more " + unit + " values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, arg := range args {
				ch, err := strconv.Atoi(strings.TrimSpace(arg))
				if err != nil {
					return fmt.Errorf("invalid %s %q", unit, arg)
				}
				b := table.Lookup(ch)
				if b == band.Unknown {
					lo, hi := table.Bounds()
					fmt.Fprintf(out, "%s %d: unknown band (table covers %d-%d)\n", unit, ch, lo, hi)
					continue
				}
				fmt.Fprintf(out, "%s %d: band %s (%s)\n", unit, ch, label(b), rangeText(table.RangesFor(b)))
			}
			return nil
		},
	}
}

func rangeText(ranges []band.Range) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = fmt.Sprintf("%d-%d", r.Min, r.Max)
	}
	return strings.Join(parts, ", ")
}
