package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cellinfo/csvlog"
)

func mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <out> <in>...",
		Short: "Merge CSV logs into one, keeping the newest and best values per cell",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logs := make([][]csvlog.Row, 0, len(args)-1)
			total := 0
			for _, path := range args[1:] {
				rows, err := readCSV(path)
				if err != nil {
					return err
				}
				total += len(rows)
				logs = append(logs, rows)
			}
			merged := csvlog.Merge(logs...)
			if err := writeCSV(args[0], merged); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %d rows into %d cells in %s\n", total, len(merged), args[0])
			return nil
		},
	}
}

func convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <cellmapper.csv> <out>",
		Short: "Convert a CellMapper export into the CSV log format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			rows, err := csvlog.ConvertCellMapper(f, info.ModTime())
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := writeCSV(args[1], rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "converted %d cells into %s\n", len(rows), args[1])
			return nil
		},
	}
}

func readCSV(path string) ([]csvlog.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := csvlog.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// writeCSV writes to a temp file next to path and renames it into place.
func writeCSV(path string, rows []csvlog.Row) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := csvlog.Write(f, rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
