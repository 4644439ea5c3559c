package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newShowCmd(o *rootOptions) *cobra.Command {
	var (
		title string
		body  string
		id    int
		at    string
		in    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a notification now or schedule it for later",
		RunE: func(cmd *cobra.Command, args []string) error {
			fireAt, scheduled, err := resolveFireTime(at, in, time.Now())
			if err != nil {
				return err
			}
			return o.withClient(cmd, func(ctx context.Context, c client) error {
				if scheduled {
					return c.ShowAt(ctx, title, body, id, fireAt)
				}
				return c.Show(ctx, title, body, id)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "notification title")
	cmd.Flags().StringVar(&body, "body", "", "notification body")
	cmd.Flags().IntVar(&id, "id", 0, "numeric id used by cancel and clear")
	cmd.Flags().StringVar(&at, "at", "", "fire time (RFC3339)")
	cmd.Flags().DurationVar(&in, "in", 0, "fire after this delay")
	return cmd
}

func newCancelCmd(o *rootOptions) *cobra.Command {
	var id int
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a scheduled notification by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd, func(ctx context.Context, c client) error {
				return c.Cancel(ctx, id)
			})
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "notification id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newClearCmd(o *rootOptions) *cobra.Command {
	var id int
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove delivered notifications by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd, func(ctx context.Context, c client) error {
				return c.Clear(ctx, id)
			})
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "notification id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd, func(ctx context.Context, c client) error {
				items, err := c.Scheduled(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tFIRE AT\tTITLE\tIDENTIFIER")
				for _, it := range items {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", it.ID, time.UnixMilli(it.FireAt).Format(time.RFC3339), it.Title, it.Identifier)
				}
				return w.Flush()
			})
		},
	}
}

// resolveFireTime turns --at / --in into a fire time. scheduled is false when
// neither is set and the notification should show immediately.
func resolveFireTime(at string, in time.Duration, now time.Time) (fireAt time.Time, scheduled bool, err error) {
	at = strings.TrimSpace(at)
	switch {
	case at != "" && in != 0:
		return time.Time{}, false, errors.New("--at and --in are mutually exclusive")
	case in < 0:
		return time.Time{}, false, errors.New("--in must be >= 0")
	case in > 0:
		return now.Add(in), true, nil
	case at != "":
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("--at: %w", err)
		}
		return t, true, nil
	default:
		return time.Time{}, false, nil
	}
}
