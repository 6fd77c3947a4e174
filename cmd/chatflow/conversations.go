package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsCreateCmd)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convs"},
	Short:   "Manage conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		convs, err := client.Conversations.List(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if len(convs) == 0 {
			fmt.Println("No conversations yet. Start one with 'chatflow conversations create <user-id>'.")
			return nil
		}

		for _, conv := range convs {
			name := "(unknown)"
			convID := conv.ID
			if conv.Receiver != nil {
				name = conv.Receiver.DisplayName()
				if conv.Receiver.ConversationID != 0 {
					convID = conv.Receiver.ConversationID
				}
			}
			last := ""
			if conv.LastMessage != nil {
				last = conv.LastMessage.Content
				if len(last) > 48 {
					last = last[:48] + "…"
				}
			}
			fmt.Printf("%-6d %-30s %s\n", convID, name, last)
		}
		return nil
	},
}

var conversationsCreateCmd = &cobra.Command{
	Use:   "create <user-id>",
	Short: "Start a direct conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		receiverID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}

		client, _ := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conv, err := client.Conversations.Create(ctx, receiverID)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		fmt.Printf("Conversation %d created.\n", conv.ID)
		return nil
	},
}
