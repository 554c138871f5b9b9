package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Release a sandbox session and remove its container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient(hostFlag)
		if err := client.removeSession(args[0]); err != nil {
			return err
		}
		fmt.Println(args[0])
		return nil
	},
}
