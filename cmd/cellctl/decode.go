package main

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"cellinfo/fields"
	"cellinfo/reconcile"
	"cellinfo/source"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func decodeCmd(g *globals) *cobra.Command {
	var (
		compact bool
		match   bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "decode <frames.jsonl>",
		Short: "Render captured frames through the field builder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replay, err := source.OpenReplay(args[0], false)
			if err != nil {
				return err
			}
			store, err := g.prefsStore()
			if err != nil {
				return err
			}
			var matcher fields.Matcher
			if match {
				hist, err := g.openHistory()
				if err != nil {
					return err
				}
				defer hist.Close()
				matcher = reconcile.NewMatcher(hist)
			}
			builder := fields.NewBuilder(store, matcher)
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			for i := 0; i < replay.Len(); i++ {
				ms, err := replay.Measurements(ctx)
				if err != nil {
					return fmt.Errorf("frame %d: %w", i+1, err)
				}
				here, err := replay.Location(ctx)
				if err != nil {
					return fmt.Errorf("frame %d: %w", i+1, err)
				}
				cards := builder.BuildAll(ms, compact, here)
				if asJSON {
					if err := writeJSONCards(out, cards); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(out, "frame %d: %d cells\n", i+1, len(cards))
				for _, card := range cards {
					writeCard(out, card)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "use the compressed component sets")
	cmd.Flags().BoolVar(&match, "match", false, "reconcile anonymized cells against the history store")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit one JSON array of cards per frame")
	return cmd
}

func writeCard(w io.Writer, card fields.Card) {
	fmt.Fprintf(w, "  %s\n", card.Measurement.Technology.GroupLabel())
	for _, f := range card.Fields {
		fmt.Fprintf(w, "    %-22s %s\n", f.Label, f.Value)
	}
}

func writeJSONCards(w io.Writer, cards []fields.Card) error {
	data, err := json.Marshal(cards)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
