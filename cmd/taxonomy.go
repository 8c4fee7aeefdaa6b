package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lexhaven/docintel/internal/store"
	"github.com/lexhaven/docintel/internal/taxonomy"
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Manage taxonomy packs",
}

var taxonomyImportCmd = &cobra.Command{
	Use:   "import <pack.yaml>",
	Short: "Install a system-default taxonomy pack from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.DatabaseURL == "" {
			return eris.New("store.database_url is required (DOCINTEL_STORE_DATABASE_URL)")
		}

		pack, err := taxonomy.LoadPackFile(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		if err := st.UpsertSystemPack(ctx, pack); err != nil {
			return err
		}

		zap.L().Info("taxonomy: pack installed",
			zap.String("practice_area", pack.PracticeArea),
			zap.String("name", pack.Name),
			zap.Int("version", pack.Version),
			zap.Int("categories", len(pack.Categories)),
			zap.Int("document_types", len(pack.DocumentTypes)),
		)
		return nil
	},
}

func init() {
	taxonomyCmd.AddCommand(taxonomyImportCmd)
	rootCmd.AddCommand(taxonomyCmd)
}
