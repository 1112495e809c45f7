package main

import (
	"github.com/spf13/cobra"

	pgrepo "github.com/yoockh/mockinterview/internal/repositories/postgres"
)

func newMigrateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and seed the reference catalogs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx, *configFile, false)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := pgrepo.Migrate(ctx, rt.db); err != nil {
				return err
			}
			rt.log.Info("migration complete")
			return nil
		},
	}
}
