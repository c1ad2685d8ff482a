package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-watchparty/internal/client"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
)

func (a *app) loginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Get a development token for username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := a.rest(nil).Login(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, tok.AccessToken)
			return nil
		},
	}
}

func (a *app) videosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "videos",
		Short: "List the video catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.identity()
			if err != nil {
				return err
			}
			videos, err := client.NewVideoClient(a.rest(p)).ListVideos(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSCHEDULE\tVIEWS\tLIKES")
			for _, v := range videos {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\n", v.ID, v.Title, schedule(v), v.Views, v.LikesCount)
			}
			return w.Flush()
		},
	}
}

func (a *app) likeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "like <videoId>",
		Short: "Toggle your like on a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			p, err := a.requireIdentity()
			if err != nil {
				return err
			}
			res, err := client.NewVideoClient(a.rest(p)).ToggleLike(cmd.Context(), id)
			if err != nil {
				return err
			}
			state := "unliked"
			if res.LikedByCurrentUser {
				state = "liked"
			}
			fmt.Fprintf(a.out, "%s (%d likes)\n", state, res.LikesCount)
			return nil
		},
	}
}

func schedule(v domain.Video) string {
	if v.ScheduledAt == nil {
		return "on demand"
	}
	return v.ScheduledAt.Local().Format(time.DateTime)
}

func parseVideoID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid video id %q", s)
	}
	return id, nil
}
