package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "pilotage",
		Short:         "Pilotage RH - normalisation des tableaux de bord",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: config.toml next to the executable)")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newNormalizeCmd(&configPath),
		newConfigCmd(&configPath),
	)
	return rootCmd
}
