package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var siblingsCmd = &cobra.Command{
	Use:   "siblings <chat-id> <message-id>",
	Short: "List the sibling branches of a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.service.OpenChat(cmd.Context(), args[0]); err != nil {
			return err
		}

		nav := a.service.Navigator()
		siblings, err := nav.Siblings(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		idx, total, err := nav.Cursor(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		for i, s := range siblings {
			marker := " "
			if i == idx {
				marker = "*"
			}
			state := "complete"
			if !s.IsComplete {
				state = "incomplete"
			}
			fmt.Printf("%s %d/%d\t%s\t%s\t%s\n", marker, i+1, total, s.ID, s.ModelUsed, state)
		}
		return nil
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch <chat-id> <message-id> <sibling-id>",
	Short: "Switch a message to one of its siblings",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.service.OpenChat(cmd.Context(), args[0]); err != nil {
			return err
		}
		return a.service.Navigator().Navigate(cmd.Context(), args[0], args[1], args[2])
	},
}

func init() {
	siblingsCmd.AddCommand(switchCmd)
}
