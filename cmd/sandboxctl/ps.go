package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List sandbox sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient(hostFlag)
		sessions, err := client.listSessions()
		if err != nil {
			return err
		}

		fmt.Printf("%-38s %-10s %-16s %s\n", "SESSION ID", "STATE", "CONTAINER IP", "LAST USED")
		for _, s := range sessions {
			fmt.Printf("%-38s %-10s %-16s %s\n", s.SessionID, stateColor(s.State), s.ContainerIP, s.LastUsedAt)
		}
		return nil
	},
}

func stateColor(state string) string {
	switch state {
	case "ready":
		return color.GreenString(state)
	case "executing":
		return color.YellowString(state)
	case "error":
		return color.RedString(state)
	default:
		return color.CyanString(state)
	}
}
