package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage chats on the backend",
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		chats, err := a.service.ListChats(cmd.Context())
		if err != nil {
			return err
		}
		for _, c := range chats {
			fmt.Printf("%s\t%s\t%s\n", c.ID, c.Model, c.Title)
		}
		return nil
	},
}

var chatsCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		info, err := a.service.CreateChat(cmd.Context(), args[0], viper.GetString("model"))
		if err != nil {
			return err
		}
		fmt.Println(info.ID)
		return nil
	},
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <chat-id>",
	Short: "Delete a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.service.DeleteChat(cmd.Context(), args[0])
	},
}

var chatsRenameCmd = &cobra.Command{
	Use:   "rename <chat-id> <title>",
	Short: "Rename a chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.service.UpdateChat(cmd.Context(), args[0], args[1], viper.GetString("model"))
	},
}

func init() {
	chatsCmd.AddCommand(chatsListCmd, chatsCreateCmd, chatsDeleteCmd, chatsRenameCmd)
}
