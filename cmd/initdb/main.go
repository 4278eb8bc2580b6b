// cmd/initdb/main.go
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meditech/meditech-backend/config"
	"github.com/meditech/meditech-backend/internal/logger"
	"github.com/meditech/meditech-backend/internal/storage"
)

var (
	customLog = logger.NewLogger()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		customLog.Errorf("initdb: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var ddlPath string

	cmd := &cobra.Command{
		Use:           "initdb",
		Short:         "Apply the DDL script to the configured database",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return run(ctx, ddlPath)
		},
	}
	cmd.Flags().StringVar(&ddlPath, "ddl", defaultDDLPath(), "path to the DDL script")
	return cmd
}

// defaultDDLPath is ddl.sql next to the executable.
func defaultDDLPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "ddl.sql"
	}
	return filepath.Join(filepath.Dir(exe), "ddl.sql")
}

func run(ctx context.Context, ddlPath string) error {
	cfg, err := config.LoadConfig(config.WithStrictDatabaseURL())
	if err != nil {
		return err
	}

	ddl, err := storage.ReadDDL(ddlPath)
	if err != nil {
		return err
	}

	customLog.Printf("Applying %s...", ddlPath)
	if err := storage.ApplySchema(ctx, cfg.DatabaseURI, ddl); err != nil {
		return err
	}
	customLog.Println("Schema applied successfully")
	return nil
}
