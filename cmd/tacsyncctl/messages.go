package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/messageai/tacsync/internal/apiv1"
)

var (
	messagesToken    string
	messagesPageSize int

	loadPageSize int

	sendImage string
	sendID    string

	searchChat  string
	searchLimit int
)

func init() {
	rootCmd.AddCommand(messagesCmd, loadCmd, sendCmd, pendingCmd, resendCmd, searchCmd)

	messagesCmd.Flags().StringVar(&messagesToken, "token", "", "page token from a previous call")
	messagesCmd.Flags().IntVar(&messagesPageSize, "page-size", 0, "messages per page")

	loadCmd.Flags().IntVar(&loadPageSize, "page-size", 0, "remote page size")

	sendCmd.Flags().StringVar(&sendImage, "image", "", "image URL to attach")
	sendCmd.Flags().StringVar(&sendID, "id", "", "message id (generated when empty)")

	searchCmd.Flags().StringVar(&searchChat, "chat", "", "restrict to one chat")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results")
}

var messagesCmd = &cobra.Command{
	Use:   "messages <chat-id>",
	Short: "Show a page of messages, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			resp, err := c.Message.ListMessages(ctx, &apiv1.ListMessagesRequest{
				ChatID:    args[0],
				PageToken: messagesToken,
				PageSize:  messagesPageSize,
			})
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			for _, m := range resp.Messages {
				printMessage(m)
			}
			switch {
			case resp.RemoteError != "":
				fmt.Printf("-- offline: %s (retry with --token %s)\n", resp.RemoteError, resp.NextPageToken)
			case resp.EndOfPagination:
				fmt.Println("-- end of history")
			case resp.NextPageToken != "":
				fmt.Printf("-- more: --token %s\n", resp.NextPageToken)
			}
			return nil
		})
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <chat-id> <refresh|prepend|append>",
	Short: "Run one mediator load against the remote feed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			resp, err := c.Message.LoadMessages(ctx, &apiv1.LoadMessagesRequest{
				ChatID:   args[0],
				LoadType: args[1],
				PageSize: loadPageSize,
			})
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Fetched: %d\nEnd of pagination: %v\n", resp.Fetched, resp.EndOfPagination)
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> [text]",
	Short: "Queue a message for delivery",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &apiv1.SendTextRequest{ChatID: args[0], ImageURL: sendImage, MessageID: sendID}
		if len(args) == 2 {
			req.Text = args[1]
		}
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			resp, err := c.Message.SendText(ctx, req)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			if !resp.Accepted {
				fmt.Println("Not sent: no user signed in.")
				return nil
			}
			fmt.Printf("Queued %s\n", resp.Message.ID)
			return nil
		})
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List messages waiting in the outbound queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			resp, err := c.Message.ListPending(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			if len(resp.Entries) == 0 {
				fmt.Println("Outbound queue is empty.")
				return nil
			}
			for _, e := range resp.Entries {
				fmt.Printf("%-36s %-24s retries=%d queued=%s %s\n",
					e.MessageID, e.ChatID, e.RetryCount, formatTime(e.CreatedAt), e.LastError)
			}
			return nil
		})
	},
}

var resendCmd = &cobra.Command{
	Use:   "resend <message-id>",
	Short: "Schedule delivery of a stuck message again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			return c.Message.Resend(ctx, &apiv1.ResendRequest{MessageID: args[0]})
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search cached messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			resp, err := c.Message.SearchMessages(ctx, &apiv1.SearchMessagesRequest{
				Query:  args[0],
				ChatID: searchChat,
				Limit:  searchLimit,
			})
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			for _, r := range resp.Results {
				fmt.Printf("%s %-24s %s\n", formatTime(r.Message.Timestamp), r.Message.ChatID, r.Snippet)
			}
			return nil
		})
	},
}

func printMessage(m apiv1.Message) {
	body := deref(m.Text)
	if m.ImageURL != nil {
		body += " [image " + *m.ImageURL + "]"
	}
	fmt.Printf("%s %-12s %-9s %s\n", formatTime(m.Timestamp), m.SenderID, m.Status, body)
}
