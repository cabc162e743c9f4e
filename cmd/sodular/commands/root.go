package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sodular/sodular-go/internal/cache"
	"github.com/sodular/sodular-go/internal/client"
	"github.com/sodular/sodular-go/internal/config"
	"github.com/sodular/sodular-go/internal/metrics"
	"github.com/sodular/sodular-go/internal/repository"
	"github.com/sodular/sodular-go/internal/token"
)

// connectTimeout bounds connecting to Redis or Postgres token stores.
const connectTimeout = 10 * time.Second

// app carries the dependencies subcommands share.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	client *client.Client
	stats  *metrics.InMemoryRecorder
	cache  *cache.Cache

	out    io.Writer
	errOut io.Writer

	closers []func()
}

// Execute runs the CLI with the process's arguments and signals.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd(os.Stdout, os.Stderr)
	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, client.ErrUnauthorized) {
			fmt.Fprintln(os.Stderr, "hint: run `sodular login` to sign in again")
		}
	}
	return err
}

// newRootCmd builds the command tree. The caller closes the returned app after
// Execute so connections are released on failure too.
func newRootCmd(out, errOut io.Writer) (*cobra.Command, *app) {
	a := &app{out: out, errOut: errOut}
	var (
		databaseID string
		stats      bool
	)

	root := &cobra.Command{
		Use:           "sodular",
		Short:         "Command line client for the Sodular API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context(), databaseID, stats)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&databaseID, "database", "", "database uid (overrides SODULAR_DATABASE_ID)")
	root.PersistentFlags().BoolVar(&stats, "stats", false, "print request and refresh counters to stderr on exit")

	root.AddCommand(
		loginCmd(a), registerCmd(a), logoutCmd(a), whoamiCmd(a),
		dbCmd(a), tablesCmd(a), refCmd(a),
		storageCmd(a), bucketsCmd(a), filesCmd(a),
		watchCmd(a),
	)
	return root, a
}

func (a *app) init(ctx context.Context, databaseID string, stats bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if databaseID != "" {
		cfg.DatabaseID = databaseID
	}
	a.cfg = cfg
	a.logger = initLogger(cfg, a.errOut)

	store, err := a.tokenStore(ctx)
	if err != nil {
		return err
	}

	var recorder metrics.Recorder = metrics.NewNoop()
	if stats {
		a.stats = metrics.NewInMemory()
		recorder = a.stats
	}

	c, err := client.New(cfg.BaseURL,
		client.WithTimeout(cfg.Timeout),
		client.WithTokenStore(store),
		client.WithLogger(a.logger),
		client.WithMetrics(recorder),
		client.WithDatabase(cfg.DatabaseID),
	)
	if err != nil {
		return err
	}
	if err := c.LoadSession(ctx); err != nil {
		// A broken store only costs the saved login.
		a.logger.Warn("failed to load saved session", slog.String("error", err.Error()))
	}
	a.client = c
	return nil
}

func (a *app) tokenStore(ctx context.Context) (token.Store, error) {
	switch a.cfg.TokenStore {
	case config.StoreMemory:
		return token.NewMemoryStore(), nil
	case config.StoreFile:
		return token.NewFileStore(a.cfg.TokenFile, a.cfg.TokenPassphrase), nil
	case config.StoreRedis:
		c, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		return c.TokenStore(a.cfg.Profile), nil
	case config.StorePostgres:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		repo, err := repository.New(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres (%s): %s", redactURL(a.cfg.DatabaseURL), sanitizeError(err, a.cfg.DatabaseURL))
		}
		a.closers = append(a.closers, repo.Close)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo.TokenStore(a.cfg.Profile), nil
	}
	return nil, fmt.Errorf("unknown token store %q", a.cfg.TokenStore)
}

// redis connects once and reuses the connection for tokens and the event sink.
func (a *app) redis(ctx context.Context) (*cache.Cache, error) {
	if a.cache != nil {
		return a.cache, nil
	}
	if a.cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is not set")
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	c, err := cache.New(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis (%s): %s", redactURL(a.cfg.RedisURL), sanitizeError(err, a.cfg.RedisURL))
	}
	a.cache = c
	a.closers = append(a.closers, func() { _ = c.Close() })
	return c, nil
}

// statsRecorder returns the --stats recorder, or nil when stats are off.
func (a *app) statsRecorder() metrics.Recorder {
	if a.stats == nil {
		return nil
	}
	return a.stats
}

func (a *app) close() {
	if a.stats != nil {
		s := a.stats.Snapshot()
		fmt.Fprintf(a.errOut, "requests=%d errors=%d unauthorized=%d refresh_ok=%d refresh_failed=%d replays=%d events=%d reconnects=%d\n",
			s.Requests, s.RequestErrors, s.Unauthorized, s.RefreshSuccess, s.RefreshFailed, s.Replays, s.RealtimeEvents, s.RealtimeReconnects)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// requireDatabaseHook is the PersistentPreRunE of commands scoped to a
// database. Cobra runs only the nearest hook, so it runs the root's first.
func (a *app) requireDatabaseHook(cmd *cobra.Command, args []string) error {
	if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
		return err
	}
	if a.client.DatabaseID() == "" {
		return errors.New("no database selected: pass --database or set SODULAR_DATABASE_ID")
	}
	return nil
}
