package cli

import (
	"os"

	"github.com/spf13/cobra"

	"booklisting/internal/config"
)

func Execute() error {
	return NewRoot().Execute()
}

type rootOptions struct {
	configPath string
	dbType     string
}

func NewRoot() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "booklisting",
		Short:         "Book listing wizard service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("BOOKLISTING_CONFIG"), "Path to the JSON config file")
	root.PersistentFlags().StringVar(&opts.dbType, "db", envOr("BOOKLISTING_DB", "sqlite3"), "Database driver (sqlite3 or mysql)")
	root.AddCommand(
		ServeCmd(opts),
		MigrateCmd(opts),
		QuestionsCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
