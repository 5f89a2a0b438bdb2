package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/messageai/tacsync/internal/apiv1"
)

var openPageSize int

func init() {
	rootCmd.AddCommand(statusCmd, openCmd, closeCmd, signInCmd, signOutCmd)
	openCmd.Flags().IntVar(&openPageSize, "page-size", 0, "messages per remote page (default from profile)")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			resp, err := c.Sync.GetStatus(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			user := resp.UserID
			if user == "" {
				user = "(signed out)"
			}
			fmt.Printf("Profile:   %s\n", resp.Profile)
			fmt.Printf("State:     %s\n", resp.State)
			fmt.Printf("User:      %s\n", user)
			if resp.OpenChat != "" {
				fmt.Printf("Open chat: %s\n", resp.OpenChat)
			}
			fmt.Printf("Uptime:    %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
			fmt.Printf("Chats:     %d\n", resp.ChatCount)
			fmt.Printf("Messages:  %d\n", resp.MessageCount)
			fmt.Printf("Pending:   %d\n", resp.PendingSends)
			return nil
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open <chat-id>",
	Short: "Open a chat: refresh it if never loaded and attach live updates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			resp, err := c.Sync.OpenChat(ctx, &apiv1.OpenChatRequest{ChatID: args[0], PageSize: openPageSize})
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Refreshed: %v\nLive:      %v\n", resp.Refreshed, resp.Live)
			if resp.RemoteError != "" {
				fmt.Printf("Remote:    %s\n", resp.RemoteError)
			}
			return nil
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Detach live updates from the open chat",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			return c.Sync.CloseChat(ctx)
		})
	},
}

var signInCmd = &cobra.Command{
	Use:   "signin <user-id>",
	Short: "Set the current user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			return c.Sync.SignIn(ctx, args[0])
		})
	},
}

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Clear the current user and stop listeners",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *apiv1.Client) error {
			return c.Sync.SignOut(ctx)
		})
	},
}
