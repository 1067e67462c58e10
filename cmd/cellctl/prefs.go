package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cellinfo/prefs"
)

func prefsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Inspect and edit field component sets (" + strings.Join(prefs.SetNames(), ", ") + ")",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <set>",
			Short: "Show a component set in display order",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := g.prefsStore()
				if err != nil {
					return err
				}
				list, err := store.Load(args[0])
				if err != nil {
					return err
				}
				printComponents(cmd.OutOrStdout(), list)
				return nil
			},
		},
		&cobra.Command{
			Use:   "toggle <set> <field>",
			Short: "Enable or disable a field by id or label",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := g.prefsStore()
				if err != nil {
					return err
				}
				set := args[0]
				id, ok := prefs.Lookup(set, args[1])
				if !ok {
					if guess, near := prefs.Suggest(set, args[1]); near {
						return fmt.Errorf("unknown field %q in %s (did you mean %q?)", args[1], set, guess)
					}
					return fmt.Errorf("unknown field %q in %s", args[1], set)
				}
				list, err := store.ToggleEnabled(set, id)
				if err != nil {
					return err
				}
				printComponents(cmd.OutOrStdout(), list)
				return nil
			},
		},
		&cobra.Command{
			Use:   "move <set> <from> <to>",
			Short: "Move the field at one position to another (1-based)",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				from, err1 := strconv.Atoi(args[1])
				to, err2 := strconv.Atoi(args[2])
				if err := errors.Join(err1, err2); err != nil {
					return fmt.Errorf("positions must be integers: %w", err)
				}
				store, err := g.prefsStore()
				if err != nil {
					return err
				}
				list, err := store.Reorder(args[0], from-1, to-1)
				if err != nil {
					return err
				}
				printComponents(cmd.OutOrStdout(), list)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset <set>",
			Short: "Restore a component set to its defaults",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := g.prefsStore()
				if err != nil {
					return err
				}
				list, err := store.Reset(args[0])
				if err != nil {
					return err
				}
				printComponents(cmd.OutOrStdout(), list)
				return nil
			},
		},
	)
	return cmd
}

func (g *globals) prefsStore() (*prefs.Store, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	return prefs.NewStore(cfg.Prefs.Dir), nil
}

func printComponents(w io.Writer, list []prefs.Component) {
	for i, c := range list {
		mark := " "
		if c.Enabled {
			mark = "x"
		}
		fmt.Fprintf(w, "%2d [%s] %-18s %s\n", i+1, mark, c.ID, c.Label)
	}
}
