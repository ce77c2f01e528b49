// Package cli implements atlasctl, the administrative command line for the
// province atlas. Commands talk to the database directly; HTTP bearer
// tokens do not apply, so the caller principal comes from flags.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"

	"github.com/JonMunkholm/geoatlas/internal/cache"
	"github.com/JonMunkholm/geoatlas/internal/config"
	"github.com/JonMunkholm/geoatlas/internal/core"
	_ "github.com/JonMunkholm/geoatlas/internal/core/datasets" // Register all datasets
	"github.com/JonMunkholm/geoatlas/internal/logging"
	"github.com/JonMunkholm/geoatlas/internal/store"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// options holds the global flags.
type options struct {
	cfgFile string
	name    string
	role    string
	output  string
}

type envKey struct{}

// env is what PersistentPreRunE prepares for every command.
type env struct {
	cfg  *config.Config
	opts *options
	out  io.Writer
}

// NewRootCmd creates the atlasctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:     "atlasctl",
		Short:   "Administer the province atlas database",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			flags := cmd.Root().PersistentFlags()
			if err := flags.Set("require-auth", "false"); err != nil {
				return err
			}
			cfg, err := config.LoadWithFlags(opts.cfgFile, flags)
			if err != nil {
				return err
			}
			logging.SetupTo(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, &env{
				cfg:  cfg,
				opts: opts,
				out:  cmd.OutOrStdout(),
			}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "config file (default: $CONFIG_FILE)")
	pf.StringVar(&opts.name, "as", defaultPrincipal(), "principal recorded on writes")
	pf.StringVar(&opts.role, "role", core.AdminRole, "role of the principal")
	pf.StringVarP(&opts.output, "output", "o", "table", "output format (table|json)")
	pf.String("db-driver", "", "database driver (postgres|sqlite)")
	pf.String("database-url", "", "database URL or SQLite path")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (text|json)")
	pf.Int("chunk-size", 0, "rows reconciled per transaction")
	pf.String("redis-addr", "", "Redis address for map cache invalidation")
	pf.String("geometry", "", "GeoJSON source (file path or s3://bucket/key)")
	pf.Bool("require-auth", false, "")
	_ = pf.MarkHidden("require-auth")

	_ = root.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newImportCmd(),
		newStatsCmd(),
		newMapCmd(),
		newResetCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		}
		return err
	}
	return nil
}

func envFrom(cmd *cobra.Command) *env {
	e, ok := cmd.Context().Value(envKey{}).(*env)
	if !ok {
		panic("cli: command run without PersistentPreRunE")
	}
	return e
}

func (e *env) principal() core.Principal {
	return core.Principal{Name: e.opts.name, Role: e.opts.role}
}

// openStore connects to the configured database.
func (e *env) openStore(ctx context.Context) (*store.Store, error) {
	db, err := store.Open(ctx, e.cfg.Database)
	if err != nil {
		return nil, err
	}
	if e.cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// openService connects the store and cache and builds a Service. Writes
// bump the shared cache generations so a running server drops stale maps.
func (e *env) openService(ctx context.Context) (*core.Service, func(), error) {
	db, err := e.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	mapCache, err := cache.New(ctx, e.cfg.Cache)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	svc, err := core.NewService(db, e.cfg, core.WithCache(mapCache))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	closeAll := func() {
		if c, ok := mapCache.(io.Closer); ok {
			c.Close()
		}
		db.Close()
	}
	return svc, closeAll, nil
}

func defaultPrincipal() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "atlasctl"
}
