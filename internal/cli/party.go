package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-watchparty/internal/client"
	"github.com/weiawesome/wes-io-watchparty/internal/party"
)

func (a *app) partyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "party",
		Short: "Create, join and run watch parties",
	}
	cmd.AddCommand(
		a.partyCreateCommand(),
		a.partyListCommand(),
		a.partyJoinCommand(),
		a.partyStartCommand(),
		a.partyCloseCommand(),
	)
	return cmd
}

func (a *app) partyClient() (*client.PartyClient, error) {
	p, err := a.requireIdentity()
	if err != nil {
		return nil, err
	}
	return client.NewPartyClient(a.rest(p)), nil
}

func (a *app) partyCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Open a new watch party",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := a.partyClient()
			if err != nil {
				return err
			}
			wp, err := pc.Create(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "created %q, room code %s\n", wp.Name, wp.RoomCode)
			return nil
		},
	}
}

func (a *app) partyListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open watch parties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.identity()
			if err != nil {
				return err
			}
			parties, err := client.NewPartyClient(a.rest(p)).ListActive(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tOWNER\tMEMBERS\tNOW PLAYING")
			for _, wp := range parties {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", wp.RoomCode, wp.Name, wp.OwnerUsername,
					len(wp.ParticipantUsernames), wp.CurrentVideoTitle)
			}
			return w.Flush()
		},
	}
}

func (a *app) partyStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start <code> <videoId>",
		Short: "Switch a party you own to a video",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseVideoID(args[1])
			if err != nil {
				return err
			}
			pc, err := a.partyClient()
			if err != nil {
				return err
			}
			return pc.StartVideo(cmd.Context(), args[0], id)
		},
	}
}

func (a *app) partyCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close <code>",
		Short: "Close a party you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := a.partyClient()
			if err != nil {
				return err
			}
			return pc.Close(cmd.Context(), args[0])
		},
	}
}

func (a *app) partyJoinCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "join <code>",
		Short: "Join a party and follow it",
		Long: `Join a watch party and follow the owner's video selection.
Owners can type "start <videoId>" or "close". Everyone can type leave,
pause, play, refresh or pos.`,
		Args: cobra.ExactArgs(1),
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

			coord := party.NewCoordinator(client.NewPartyClient(a.rest(p)), tr, p, party.Options{})
			v := a.newViewer(p)
			defer v.sync.Detach()
			go v.run(ctx)

			wp, err := coord.Join(ctx, args[0])
			if err != nil {
				return err
			}
			role := "member"
			if coord.IsOwner() {
				role = "owner"
			}
			fmt.Fprintf(a.out, "joined %q (%s) as %s with %s\n", wp.Name, wp.RoomCode, role,
				strings.Join(wp.ParticipantUsernames, ", "))
			if wp.CurrentVideoID != nil {
				fmt.Fprintf(a.out, "party is on video %d %q; it plays here on the next start\n",
					*wp.CurrentVideoID, wp.CurrentVideoTitle)
			}

			defer func() {
				leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				coord.Leave(leaveCtx)
			}()

			lines := readLines(cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					return nil

				case ev := <-coord.Events():
					if done := a.reportParty(ctx, v, ev); done {
						return nil
					}

				case line, ok := <-lines:
					if !ok {
						lines = nil
						continue
					}
					if done, err := a.partyInput(ctx, coord, v, line); err != nil {
						fmt.Fprintf(a.out, "error: %v\n", err)
					} else if done {
						return nil
					}
				}
			}
		},
	}
}

// reportParty prints a coordinator event and reports whether the session
// is over.
func (a *app) reportParty(ctx context.Context, v *viewer, ev party.Event) bool {
	switch ev.Kind {
	case party.EventStateChanged:
		fmt.Fprintf(a.out, "party %s: %s\n", ev.RoomCode, ev.State)
	case party.EventPartyUpdated:
		if ev.Party != nil {
			fmt.Fprintf(a.out, "members: %s\n", strings.Join(ev.Party.ParticipantUsernames, ", "))
		}
	case party.EventNavigate:
		fmt.Fprintf(a.out, "now playing %q\n", ev.VideoTitle)
		if err := v.attach(ctx, ev.VideoID); err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
		}
	case party.EventReconnecting:
		fmt.Fprintln(a.out, "connection lost, reconnecting...")
	case party.EventReconnected:
		fmt.Fprintln(a.out, "reconnected")
	case party.EventClosed:
		fmt.Fprintln(a.out, ev.Message)
		return true
	}
	return false
}

func (a *app) partyInput(ctx context.Context, coord *party.Coordinator, v *viewer, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "leave", "quit":
		return true, nil
	case "close":
		return false, coord.Close(ctx)
	case "start":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: start <videoId>")
		}
		id, err := parseVideoID(fields[1])
		if err != nil {
			return false, err
		}
		return false, coord.StartVideo(ctx, id)
	default:
		if !v.control(line) {
			return false, fmt.Errorf("unknown command %q", line)
		}
		return false, nil
	}
}
