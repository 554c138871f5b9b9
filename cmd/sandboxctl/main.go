// Command sandboxctl is an operator CLI for the Controller's HTTP API:
// create/list/exec/remove sessions without writing curl by hand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var hostFlag string

var rootCmd = &cobra.Command{
	Use:   "sandboxctl",
	Short: "Operator CLI for the codesandbox controller",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "http://127.0.0.1:8080", "controller base URL")
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(rmCmd)
}
