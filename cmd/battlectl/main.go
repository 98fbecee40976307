// battlectl inspects the persisted frame log and runs offline simulations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"idle-arena/internal/config"
	"idle-arena/internal/eventlog"
	"idle-arena/internal/storage/redisstore"
	"idle-arena/internal/storage/sqlite"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	backend       string
	sqlitePath    string
	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string
	jsonOutput    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	storage := config.DefaultStorage()
	journal := config.DefaultJournal()
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "battlectl",
		Short: "battlectl - inspect the idle-arena frame log",
		Long: `battlectl reads the frame log written by the arena server.

Frames can live in SQLite or Redis; point the tool at the same backend the
server journals to.`,
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.backend, "backend", "sqlite", "frame store backend (sqlite, redis)")
	flags.StringVar(&opts.sqlitePath, "db", storage.SQLitePath, "SQLite database path")
	flags.StringVar(&opts.redisAddr, "redis-addr", journal.RedisAddr, "Redis address")
	flags.StringVar(&opts.redisPassword, "redis-password", "", "Redis password")
	flags.IntVar(&opts.redisDB, "redis-db", 0, "Redis database")
	flags.StringVar(&opts.redisPrefix, "redis-prefix", journal.RedisPrefix, "Redis key prefix")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		newDumpCmd(opts),
		newValidateCmd(opts),
		newVerifyCmd(opts),
		newStatsCmd(opts),
		newSimulateCmd(opts),
	)
	return root
}

// openJournal opens the configured frame store behind a synchronous journal
func (o *globalOptions) openJournal() (*eventlog.Journal, func() error, error) {
	switch strings.ToLower(o.backend) {
	case "sqlite":
		store, err := sqlite.Open(o.sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return eventlog.NewJournal(store, eventlog.JournalConfig{}), store.Close, nil
	case "redis":
		cfg := redisstore.DefaultConfig(o.redisAddr)
		cfg.Password = o.redisPassword
		cfg.Database = o.redisDB
		cfg.Prefix = o.redisPrefix
		store, err := redisstore.NewFrameStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		return eventlog.NewJournal(store, eventlog.JournalConfig{}), store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want sqlite or redis)", o.backend)
	}
}

func parseFrameArg(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid frame %q", s)
	}
	return uint32(v), nil
}
