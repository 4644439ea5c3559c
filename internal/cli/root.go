// Package cli wires the localnotify command line.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"localnotify/internal/dbusapi"
)

var (
	version = "dev"
	commit  = "none"
)

// client is the subset of *dbusapi.Client the commands use.
type client interface {
	Show(ctx context.Context, title, body string, id int) error
	ShowAt(ctx context.Context, title, body string, id int, at time.Time) error
	Cancel(ctx context.Context, id int) error
	Clear(ctx context.Context, id int) error
	Scheduled(ctx context.Context) ([]dbusapi.ScheduledItem, error)
	Close() error
}

type dialFunc func(name string) (client, error)

func dialBus(name string) (client, error) {
	c, err := dbusapi.Dial(name)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type rootOptions struct {
	busName string
	timeout time.Duration
	dial    dialFunc
}

func newRootCmd(dial dialFunc) *cobra.Command {
	opts := &rootOptions{dial: dial}
	cmd := &cobra.Command{
		Use:           "localnotify",
		Short:         "Schedule, cancel and clear local notifications",
		Long:          "localnotify runs a notification daemon (serve) and talks to it over the session bus.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.busName, "dbus-name", dbusapi.DefaultName, "well-known bus name of the daemon")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "per-call timeout for client commands")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newShowCmd(opts))
	cmd.AddCommand(newCancelCmd(opts))
	cmd.AddCommand(newClearCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	return cmd
}

func Execute(ctx context.Context) error {
	return newRootCmd(dialBus).ExecuteContext(ctx)
}

// withClient dials the daemon and runs fn with a bounded context.
func (o *rootOptions) withClient(cmd *cobra.Command, fn func(ctx context.Context, c client) error) error {
	c, err := o.dial(o.busName)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return fn(ctx, c)
}
