package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weiawesome/wes-io-watchparty/internal/auth"
	"github.com/weiawesome/wes-io-watchparty/internal/client"
	"github.com/weiawesome/wes-io-watchparty/internal/config"
	"github.com/weiawesome/wes-io-watchparty/internal/transport"
	pkgconfig "github.com/weiawesome/wes-io-watchparty/pkg/config"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
	"github.com/weiawesome/wes-io-watchparty/pkg/pubsub"
)

const (
	apiURLKey    = "api.base_url"
	wsURLKey     = "transport.url"
	driverKey    = "transport.driver"
	tokenKey     = "auth.token"
	logLevelKey  = "log.level"
	logPrettyKey = "log.pretty"
)

// app holds what every subcommand needs once flags and config are read.
type app struct {
	cfgFile string
	cfg     *config.Config
	out     io.Writer
	errOut  io.Writer
}

// Execute runs the watchparty command line.
func Execute() {
	if err := NewRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree writing results to out and logs to
// errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	v := viper.New()

	root := &cobra.Command{
		Use:           "watchparty",
		Short:         "Watch scheduled premieres and co-watch with friends",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(v)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./config/config.yaml)")
	flags.String("api", "", "REST base URL")
	flags.String("ws", "", "STOMP WebSocket URL")
	flags.String("transport", "", `session transport: "stomp" or "bus"`)
	flags.String("token", "", "bearer token (see: watchparty login)")
	flags.String("log-level", "", "log level")
	flags.Bool("log-pretty", false, "human readable logs")

	v.BindPFlag(apiURLKey, flags.Lookup("api"))
	v.BindPFlag(wsURLKey, flags.Lookup("ws"))
	v.BindPFlag(driverKey, flags.Lookup("transport"))
	v.BindPFlag(tokenKey, flags.Lookup("token"))
	v.BindPFlag(logLevelKey, flags.Lookup("log-level"))
	v.BindPFlag(logPrettyKey, flags.Lookup("log-pretty"))

	root.AddCommand(
		a.loginCommand(),
		a.videosCommand(),
		a.likeCommand(),
		a.watchCommand(),
		a.partyCommand(),
		a.chatCommand(),
	)
	return root
}

func (a *app) init(v *viper.Viper) error {
	if _, err := pkgconfig.ReadInto(v, "./config", "config", a.cfgFile); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "watchparty",
		Output:      a.errOut,
	})
	return nil
}

// identity returns the configured credentials, or Anonymous.
func (a *app) identity() (auth.Provider, error) {
	if a.cfg.Auth.Token == "" {
		return auth.Anonymous, nil
	}
	p, err := auth.NewTokenProvider(a.cfg.Auth.Token)
	if err != nil {
		return nil, fmt.Errorf("invalid --token: %w", err)
	}
	return p, nil
}

func (a *app) requireIdentity() (auth.Provider, error) {
	p, err := a.identity()
	if err != nil {
		return nil, err
	}
	if _, ok := p.Username(); !ok {
		return nil, fmt.Errorf("this command needs a token: run `watchparty login <username>` and pass --token")
	}
	return p, nil
}

func (a *app) rest(p auth.Provider) *client.Client {
	return client.New(a.cfg.API.BaseURL, a.cfg.API.Timeout, p)
}

// openTransport connects the configured session transport. The returned
// release func also closes any bus the transport was built on.
func (a *app) openTransport(ctx context.Context, p auth.Provider) (transport.Transport, func(), error) {
	switch a.cfg.Transport.Driver {
	case "", "stomp":
		tr := transport.NewStompTransport(transport.StompOptions{
			URL:               a.cfg.Transport.URL,
			ReconnectDelay:    a.cfg.Transport.ReconnectDelay,
			HeartbeatOutgoing: a.cfg.Transport.HeartbeatOutgoing,
			HeartbeatIncoming: a.cfg.Transport.HeartbeatIncoming,
			Auth:              p,
		})
		if err := tr.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return tr, func() { tr.Disconnect() }, nil

	case "bus":
		ps, err := pubsub.NewPubSub(a.cfg.PubSub)
		if err != nil {
			return nil, nil, err
		}
		tr := transport.NewBusTransport(ps)
		if err := tr.Connect(ctx); err != nil {
			ps.Close()
			return nil, nil, err
		}
		return tr, func() {
			tr.Disconnect()
			ps.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport driver: %q", a.cfg.Transport.Driver)
	}
}
