package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/messageai/tacsync/internal/apiv1"
)

var chatsLimit int

func init() {
	rootCmd.AddCommand(chatsCmd)
	chatsCmd.Flags().IntVar(&chatsLimit, "limit", 0, "maximum chats to list")
}

var chatsCmd = &cobra.Command{
	Use:   "chats [chat-id]",
	Short: "List cached chats, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			if len(args) == 1 {
				resp, err := c.Chat.GetChat(ctx, &apiv1.GetChatRequest{ChatID: args[0]})
				if err != nil {
					return err
				}
				if jsonFlag {
					outputJSON(resp.Chat)
					return nil
				}
				printChat(resp.Chat)
				return nil
			}

			resp, err := c.Chat.ListChats(ctx, &apiv1.ListChatsRequest{Limit: chatsLimit})
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			if len(resp.Chats) == 0 {
				fmt.Println("No chats cached.")
				return nil
			}
			for _, ch := range resp.Chats {
				printChat(ch)
			}
			return nil
		})
	},
}

func printChat(ch apiv1.Chat) {
	unread := ""
	if ch.UnreadCount > 0 {
		unread = fmt.Sprintf(" [%d unread]", ch.UnreadCount)
	}
	fmt.Printf("%-24s %-6s %-24s %s %s%s\n",
		ch.ID, ch.Type, ch.Name, formatTime(ch.UpdatedAt), deref(ch.LastMessage), unread)
}
