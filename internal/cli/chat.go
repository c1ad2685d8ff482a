package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-watchparty/internal/chat"
)

func (a *app) chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <streamId>",
		Short: "Chat on a stream; each input line is sent as a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.requireIdentity()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tr, release, err := a.openTransport(ctx, p)
			if err != nil {
				return err
			}
			defer release()

			room, err := chat.Join(ctx, tr, args[0], p)
			if err != nil {
				return err
			}
			defer room.Leave()

			lines := readLines(cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					return nil

				case msg, ok := <-room.Messages():
					if !ok {
						return room.Err()
					}
					fmt.Fprintf(a.out, "%s %s: %s\n", msg.SentAt.Local().Format("15:04"), msg.Sender, msg.Content)

				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if line == "" {
						continue
					}
					if err := room.Send(ctx, line); err != nil {
						fmt.Fprintf(a.out, "error: %v\n", err)
					}
				}
			}
		},
	}
}
