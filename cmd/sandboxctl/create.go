package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new sandbox session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient(hostFlag)
		info, err := client.createSession()
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", color.GreenString("created"), info.SessionID)
		return nil
	},
}
