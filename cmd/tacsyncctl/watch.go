package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/messageai/tacsync/internal/apiv1"
)

var (
	watchChats   bool
	watchPending bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchChats, "chats", false, "watch the chat list instead of messages")
	watchCmd.Flags().BoolVar(&watchPending, "pending", false, "watch the outbound queue instead of messages")
	watchCmd.MarkFlagsMutuallyExclusive("chats", "pending")
}

var watchCmd = &cobra.Command{
	Use:   "watch [chat-id]",
	Short: "Stream change notices until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		req := &apiv1.WatchRequest{}
		if len(args) == 1 {
			req.ChatID = args[0]
		}
		var stream *apiv1.EventReceiver
		switch {
		case watchChats:
			stream, err = c.Chat.WatchChats(ctx, req)
		case watchPending:
			stream, err = c.Message.WatchPending(ctx, req)
		default:
			stream, err = c.Message.WatchMessages(ctx, req)
		}
		if err != nil {
			return err
		}

		for {
			env, err := stream.Recv()
			if errors.Is(err, io.EOF) || grpcstatus.Code(err) == codes.Canceled {
				return nil
			}
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(env)
				continue
			}
			at := time.UnixMilli(env.OccurredAtUnixMs).Format("15:04:05.000")
			fmt.Printf("%s %-22s %s\n", at, env.Kind, env.ChatID)
		}
	},
}
