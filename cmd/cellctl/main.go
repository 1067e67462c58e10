// Command cellctl is the operator tool for the cellinfo history and field
// preferences: CSV interchange, band lookups, preference edits, and store
// maintenance.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"cellinfo/config"
	"cellinfo/history"
)

const appName = "cellctl"

// Version is stamped at build time.
var Version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globals are the paths shared by every subcommand. Explicit flags win over
// the loaded config.
type globals struct {
	configPath  string
	historyPath string
	prefsDir    string
}

func (g *globals) config() (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(g.configPath))
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if g.historyPath != "" {
		cfg.History.Path = g.historyPath
	}
	if g.prefsDir != "" {
		cfg.Prefs.Dir = g.prefsDir
	}
	return cfg, nil
}

func (g *globals) openHistory() (*history.Store, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.History.Path, history.Options{})
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Manage cellinfo history and field preferences",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file or directory")
	cmd.PersistentFlags().StringVar(&g.historyPath, "history", "", "history store path (overrides config)")
	cmd.PersistentFlags().StringVar(&g.prefsDir, "prefs", "", "preferences directory (overrides config)")

	cmd.AddCommand(
		exportCmd(g),
		importCmd(g),
		mergeCmd(),
		convertCmd(),
		listCmd(g),
		clearCmd(g),
		purgeCmd(g),
		checkpointCmd(g),
		verifyCmd(g),
		bandCmd(),
		prefsCmd(g),
		decodeCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}
