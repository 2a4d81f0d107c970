// Command lammastudio runs the GPU inference backend launch controller, or
// drives its recipe store from the command line, against the same sqlite
// file the server uses.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "lammastudio",
		Short: "Launch and manage GPU-resident inference backends",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the server YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newRecipeCmd(&configPath))
	return root
}
