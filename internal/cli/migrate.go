package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"booklisting/internal/storage"
)

func MigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the listing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			db, err := storage.Open(opts.dbType, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := storage.Migrate(db, opts.dbType); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", opts.dbType)
			return nil
		},
	}
}
