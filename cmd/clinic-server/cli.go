package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ehr/clinic/internal/config"
	"github.com/ehr/clinic/internal/domain/terminology"
	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/internal/platform/telemetry"
	"github.com/ehr/clinic/migrations"
)

// newMigrator reads migrations from dir, or from the embedded set when dir
// is empty.
func newMigrator(pool *pgxpool.Pool, dir string) *db.Migrator {
	if dir == "" {
		return db.NewMigratorFS(pool, migrations.FS)
	}
	return db.NewMigrator(pool, dir)
}

// withPool loads the configuration, opens a pool and hands both to fn.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Running migrations on schema: %s\n", schema)
				count, err := newMigrator(pool, dir).Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Path to migrations directory (embedded migrations when empty)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				statuses, err := newMigrator(pool, dir).Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatuses(cmd.OutOrStdout(), schema, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (embedded migrations when empty)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatuses(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage clinics",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a clinic schema and migrate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				if err := db.CreateTenantSchema(ctx, pool, name, newMigrator(pool, dir)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Clinic %q created (schema %s).\n", name, db.SchemaName(name))
				return nil
			})
		},
	}
	createCmd.Flags().String("name", "", "Clinic identifier (letters, digits and underscores)")
	createCmd.Flags().String("dir", "", "Path to migrations directory (embedded migrations when empty)")
	cmd.AddCommand(createCmd)

	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the diagnosis code catalog",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load diagnosis codes and clinical constants from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			tenant, _ := cmd.Flags().GetString("tenant")

			cat, err := readCatalog(path)
			if err != nil {
				return err
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if tenant == "" {
					tenant = cfg.DefaultTenant
				}
				res, err := importCatalog(ctx, pool, tenant, cat)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d diagnosis code(s) and %d clinical constant(s) into %s.\n",
					res.DiagnosisCodes, res.ClinicalConstants, db.SchemaName(tenant))
				return nil
			})
		},
	}
	importCmd.Flags().String("file", "catalog/codes.yaml", "Catalog file")
	importCmd.Flags().String("tenant", "", "Clinic identifier (DEFAULT_TENANT when empty)")
	cmd.AddCommand(importCmd)

	return cmd
}

func readCatalog(path string) (*terminology.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	cat, err := terminology.ParseCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// importCatalog writes cat into the clinic's schema in one transaction.
func importCatalog(ctx context.Context, pool *pgxpool.Pool, tenant string, cat *terminology.Catalog) (*terminology.ImportResult, error) {
	var res *terminology.ImportResult
	ctx, conn, err := db.AcquireTenant(ctx, pool, tenant)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	svc := terminology.NewService(
		terminology.NewCodeRepoPG(pool),
		terminology.NewConstantRepoPG(pool),
		terminology.DefaultCacheTTL,
		telemetry.NewNopMetrics(),
	)
	err = db.RunInTx(ctx, pool, func(ctx context.Context) error {
		var err error
		res, err = svc.Import(ctx, cat)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
