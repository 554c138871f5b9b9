package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var execResultVar string

var execCmd = &cobra.Command{
	Use:   "exec <session-id> <code>",
	Short: "Run code in a session and stream its output",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient(hostFlag)
		sessionID, code := args[0], args[1]

		return client.streamExec(sessionID, code, execResultVar, func(line string) {
			switch {
			case strings.HasPrefix(line, "<err>"):
				fmt.Println(color.RedString(line))
			case strings.HasPrefix(line, "<result>"):
				fmt.Println(color.CyanString(line))
			default:
				fmt.Println(line)
			}
		})
	},
}

func init() {
	execCmd.Flags().StringVar(&execResultVar, "result-var", "", "variable name to return serialized in the result chunk")
}
