package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-watchparty/internal/auth"
	"github.com/weiawesome/wes-io-watchparty/internal/client"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/player"
	"github.com/weiawesome/wes-io-watchparty/internal/stream"
)

// viewer drives a virtual player from a synchronizer and reports what
// happens on out.
type viewer struct {
	sync   *stream.Synchronizer
	player *player.Virtual
	out    io.Writer
}

func (a *app) newViewer(p auth.Provider) *viewer {
	pl := player.NewVirtual(nil)
	s := stream.New(client.NewVideoClient(a.rest(p)), pl, stream.Options{
		PollInterval:   a.cfg.Sync.PollInterval,
		DriftTolerance: a.cfg.Sync.DriftTolerance,
		DebounceWindow: a.cfg.Sync.DebounceWindow,
	})
	return &viewer{sync: s, player: pl, out: a.out}
}

// attach switches the viewer to videoID.
func (v *viewer) attach(ctx context.Context, videoID int64) error {
	v.player.Pause()
	v.player.Seek(0)

	phase, snap, err := v.sync.Attach(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to open video %d: %w", videoID, err)
	}
	if phase == domain.PhaseNotStarted && snap == nil {
		fmt.Fprintf(v.out, "video %d is not released yet\n", videoID)
	}
	return nil
}

// run reports synchronizer events until ctx is done.
func (v *viewer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-v.sync.Events():
			v.report(ev)
		}
	}
}

func (v *viewer) report(ev stream.Event) {
	switch ev.Kind {
	case stream.EventPhaseChanged:
		switch ev.Phase {
		case domain.PhaseNotStarted:
			if ev.ScheduledAt != nil {
				fmt.Fprintf(v.out, "[%d] premieres at %s (in %s)\n", ev.VideoID,
					ev.ScheduledAt.Local().Format(time.DateTime), time.Until(*ev.ScheduledAt).Round(time.Second))
			} else {
				fmt.Fprintf(v.out, "[%d] waiting for the premiere\n", ev.VideoID)
			}
		case domain.PhaseLive:
			fmt.Fprintf(v.out, "[%d] live\n", ev.VideoID)
		case domain.PhaseEnded:
			v.player.Pause()
			fmt.Fprintf(v.out, "[%d] the premiere has ended\n", ev.VideoID)
		case domain.PhaseRegular:
			v.player.Play()
			fmt.Fprintf(v.out, "[%d] playing on demand\n", ev.VideoID)
		}
	case stream.EventCorrected:
		fmt.Fprintf(v.out, "[%d] synced %.1fs -> %.1fs\n", ev.VideoID, ev.From, ev.To)
	case stream.EventViewRecorded:
		if ev.Video != nil {
			if ev.Video.DurationSeconds > 0 {
				v.player.SetDuration(float64(ev.Video.DurationSeconds))
			}
			fmt.Fprintf(v.out, "[%d] now watching %q (%d views)\n", ev.VideoID, ev.Video.Title, ev.Video.Views)
		}
	case stream.EventError:
		fmt.Fprintf(v.out, "[%d] error: %v\n", ev.VideoID, ev.Err)
	}
}

// control applies a viewer command. It reports false for unknown input.
func (v *viewer) control(line string) bool {
	switch line {
	case "pause":
		v.player.Pause()
		v.sync.UserPaused()
	case "play":
		v.player.Play()
		v.sync.UserResumed()
	case "refresh":
		v.sync.Refresh()
	case "pos":
		fmt.Fprintf(v.out, "position %.1fs (%s)\n", v.player.Position(), v.sync.Phase())
	default:
		return false
	}
	return true
}

func (a *app) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <videoId>",
		Short: "Watch a video, following its premiere timeline",
		Long: `Attach to a video and keep a local virtual player in step with the
server. Type pause, play, refresh or pos; Ctrl-C quits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			p, err := a.identity()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			v := a.newViewer(p)
			defer v.sync.Detach()
			go v.run(ctx)

			if err := v.attach(ctx, id); err != nil {
				return err
			}

			lines := readLines(cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						<-ctx.Done()
						return nil
					}
					if line != "" && !v.control(line) {
						fmt.Fprintf(a.out, "unknown command %q\n", line)
					}
				}
			}
		},
	}
}

// readLines streams trimmed input lines until r is exhausted.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- strings.TrimSpace(sc.Text())
		}
	}()
	return ch
}
