// Package cli implements routinesctl, the maintenance command line: schema
// migration, first admin bootstrap and catalog synchronization from a feed
// directory or bucket prefix.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rutinasds/routines-app/internal/app"
	"rutinasds/routines-app/internal/config"
)

type rootOptions struct {
	configDir string
	driver    string
	dsn       string
	verbose   bool
}

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "routinesctl",
		Short:         "routinesctl maintains the gym routines engine",
		Long:          "routinesctl migrates the database, creates the first admin and imports the routine catalog feed.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config", ".", "Directory holding config.yaml")
	root.PersistentFlags().StringVar(&opts.driver, "driver", "", "Database driver override (postgres or sqlite)")
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "Database DSN override")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(newMigrateCmd(opts), newBootstrapAdminCmd(opts), newSyncCmd(opts))
	return root
}

// Execute runs routinesctl and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (o *rootOptions) config() (config.Config, error) {
	cfg, err := config.Read(o.configDir)
	if err != nil {
		return cfg, err
	}
	if o.driver != "" {
		cfg.Database.Driver = o.driver
	}
	if o.dsn != "" {
		cfg.Database.DSN = o.dsn
	}
	cfg.Log.Level = "warn"
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// open wires the whole engine; callers must Close it.
func (o *rootOptions) open(cmd *cobra.Command, mutate func(*config.Config)) (*app.App, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return app.New(cmdContext(cmd), cfg, app.NewLogger(cfg.Log, cmd.ErrOrStderr()))
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
