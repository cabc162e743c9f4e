package commands

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/sodular/sodular-go/internal/cache"
	"github.com/sodular/sodular-go/internal/client"
	"github.com/sodular/sodular-go/internal/model"
	"github.com/sodular/sodular-go/internal/realtime"
)

const (
	// publishTimeout bounds one XADD to the event stream.
	publishTimeout = 2 * time.Second
	// reauthTimeout bounds the session check made before a reconnect.
	reauthTimeout = 10 * time.Second
	// watchReconnectAttempts ends watch when the server stays unreachable
	// or keeps refusing the session.
	watchReconnectAttempts = 10
)

// reauthSession makes one authenticated call so an expired access token is
// refreshed through the client before the relay reconnects with it.
func reauthSession(c *client.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, reauthTimeout)
		defer cancel()
		_, err := c.Auth.Me(ctx)
		return err
	}
}

func watchCmd(a *app) *cobra.Command {
	var (
		table       string
		events      []string
		redisStream bool
	)
	cmd := &cobra.Command{
		Use:               "watch",
		Short:             "Print table events as JSON lines until interrupted",
		Args:              cobra.NoArgs,
		PersistentPreRunE: a.requireDatabaseHook,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sink := func(model.Event) {}
			if redisStream {
				c, err := a.redis(ctx)
				if err != nil {
					return err
				}
				sink = func(ev model.Event) {
					pctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
					defer cancel()
					if _, err := c.PublishEvent(pctx, ev); err != nil {
						a.logger.Warn("failed to publish event", slog.String("event", ev.Name), slog.String("error", err.Error()))
					}
				}
			}

			reauth := reauthSession(a.client)
			if err := reauth(ctx); err != nil {
				return err
			}
			relay, err := realtime.Dial(ctx, a.cfg.RealtimeURL(), realtime.Options{
				Token:                a.client.Session().AccessToken,
				Reauth:               reauth,
				MaxReconnectAttempts: watchReconnectAttempts,
				Logger:               a.logger,
				Metrics:              a.statsRecorder(),
			})
			if err != nil {
				return err
			}
			defer relay.Close()

			ch := realtime.Channel{DatabaseID: a.client.DatabaseID(), TableID: table}
			var mu sync.Mutex
			enc := json.NewEncoder(a.out)
			for _, name := range events {
				relay.On(ch, name, func(ev model.Event) {
					mu.Lock()
					_ = enc.Encode(ev)
					mu.Unlock()
					sink(ev)
				})
			}
			if err := relay.Join(ctx, ch); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case <-relay.Done():
				if err := relay.Err(); err != nil && !errors.Is(err, realtime.ErrClosed) {
					return err
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "table uid")
	cmd.Flags().StringSliceVar(&events, "events", model.RefEvents, "events to print ("+strings.Join(model.RefEvents, ",")+")")
	cmd.Flags().BoolVar(&redisStream, "redis-stream", false, "also append events to the Redis stream "+cache.EventStreamKey)
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
