package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kemicky/forage/pkg/config"
	"github.com/kemicky/forage/pkg/stores"
)

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file and an empty database",
		Long: `Write a config file with the default settings and create the database it
points at, applying all migrations.

The config is written to --config, or ./forage.yaml when no path is given.`,
		Example: `  # Initialize in the current directory
  forage init

  # Initialize with a custom database location
  forage init --config ~/.config/forage/forage.yaml --db ~/.local/share/forage/forage.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := configPath
			if target == "" {
				target = "./forage.yaml"
			}
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", target)
			}

			cfg := config.Default()
			if dbPath != "" {
				cfg.Database.Path = dbPath
			}

			log.Info().
				Str("config", target).
				Str("db", cfg.Database.Path).
				Msg("Initializing forage")

			if dir := filepath.Dir(cfg.Database.Path); dir != "." {
				if err := os.MkdirAll(dir, 0700); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
			}

			ctx := cmd.Context()
			store, err := stores.NewSQLiteStore(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			defer store.Close()

			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Initialized SQLite database: %s\n", cfg.Database.Path)

			if err := cfg.Save(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created config file: %s\n", target)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}
