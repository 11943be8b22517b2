package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/app"
	"rutinasds/routines-app/internal/config"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/feed"
	"rutinasds/routines-app/internal/service"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmdContext(cmd), cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema ready on %s\n", store.Dialect())
			return nil
		},
	}
}

func newBootstrapAdminCmd(opts *rootOptions) *cobra.Command {
	var in service.NewStaff
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the first ADMIN user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.Services.Identity.BootstrapAdmin(cmdContext(cmd), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (DNI %s)\n", user.ID, user.DNI)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.DNI, "dni", "", "Admin DNI, also the login")
	cmd.Flags().StringVar(&in.Password, "password", "", "Admin password")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "Last name")
	_ = cmd.MarkFlagRequired("dni")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

type syncOptions struct {
	dir      string
	s3Prefix string
	asDNI    string
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	so := &syncOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import the routine catalog feed",
		Long: "Reads exercises.csv, routines.csv and routine_items.csv from a directory or a bucket prefix " +
			"and synchronizes the catalog. The whole feed is rejected if any row is invalid.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, so)
		},
	}
	cmd.Flags().StringVar(&so.dir, "dir", "", "Feed directory")
	cmd.Flags().StringVar(&so.s3Prefix, "s3-prefix", "", "Feed key prefix in the configured bucket")
	cmd.Flags().StringVar(&so.asDNI, "as", "", "DNI of the coordinator or admin running the sync")
	cmd.MarkFlagsMutuallyExclusive("dir", "s3-prefix")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func runSync(cmd *cobra.Command, opts *rootOptions, so *syncOptions) error {
	a, err := opts.open(cmd, func(cfg *config.Config) {
		if so.dir != "" || so.s3Prefix != "" {
			// An explicit feed replaces the configured one, which must not fail startup.
			cfg.Feed.Source = "dir"
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmdContext(cmd)

	var src feed.Source
	switch {
	case so.dir != "":
		src = feed.DirSource{Dir: so.dir}
	case so.s3Prefix != "":
		if a.Objects == nil {
			return errors.New("--s3-prefix needs s3.bucket_name in the configuration")
		}
		src = feed.ObjectSource{Store: a.Objects, Prefix: so.s3Prefix}
	case a.Feed != nil:
		src = a.Feed
	default:
		return errors.New("no feed given: use --dir or --s3-prefix")
	}

	dni, err := domain.NormalizeDNI(so.asDNI)
	if err != nil {
		return err
	}
	user, err := a.Store.Users().GetByDNI(ctx, dni)
	if err != nil {
		return fmt.Errorf("look up --as %s: %w", dni, err)
	}
	if !user.Active {
		return fmt.Errorf("user %s is inactive", dni)
	}
	actor := access.Actor{ID: user.ID, Role: user.Role}

	summary, err := a.Services.Sync.SyncFromSource(ctx, actor, src)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			for _, row := range de.Rows {
				fmt.Fprintln(cmd.ErrOrStderr(), "  "+row.String())
			}
		}
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
