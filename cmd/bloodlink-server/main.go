package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/bloodlink/bloodlink/internal/config"
	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/domain/patient"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bloodlink-server",
		Short: "BloodLink patient workflow API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

type poolHandle struct {
	Pool   *pgxpool.Pool
	Schema string
}

// openPool loads config and connects; callers close the pool.
func openPool(ctx context.Context, schemaOverride string) (*config.Config, *poolHandle, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	schema := cfg.DBSchema
	if schemaOverride != "" {
		schema = schemaOverride
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, schema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, &poolHandle{Pool: pool, Schema: schema}, nil
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
			ctx := context.Background()
			_, h, err := openPool(ctx, schema)
			if err != nil {
				return err
			}
			defer h.Pool.Close()

			migrator := db.NewMigrator(h.Pool, migrations.FS)
			fmt.Printf("Running migrations on schema: %s\n", h.Schema)
			count, err := migrator.Up(ctx, h.Schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			ctx := context.Background()
			_, h, err := openPool(ctx, schema)
			if err != nil {
				return err
			}
			defer h.Pool.Close()

			statuses, err := db.NewMigrator(h.Pool, migrations.FS).Status(ctx, h.Schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", h.Schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage database schemas",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a schema and apply all migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if !db.ValidSchema(name) {
				return fmt.Errorf("invalid schema name %q", name)
			}
			ctx := context.Background()
			// Connect through public; the target schema may not exist yet.
			_, h, err := openPool(ctx, "public")
			if err != nil {
				return err
			}
			defer h.Pool.Close()

			fmt.Printf("Creating schema: %s\n", name)
			if err := db.CreateSchema(ctx, h.Pool, name, db.NewMigrator(h.Pool, migrations.FS)); err != nil {
				return err
			}
			fmt.Println("Schema created and migrated.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Schema name")
	cmd.AddCommand(createCmd)
	return cmd
}

// cliActor is who offline commands act as. Imports need a role that may
// add patients.
func cliActor(email, role string) (access.Actor, error) {
	if email == "" {
		return access.Actor{}, fmt.Errorf("--as is required")
	}
	actor := access.Actor{Email: email, Role: role}
	if !access.CanAddPatient(actor.Role) {
		return access.Actor{}, fmt.Errorf("role %q cannot register patients", role)
	}
	return actor, nil
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import data",
	}

	patientsCmd := &cobra.Command{
		Use:   "patients",
		Short: "Import patients from an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			as, _ := cmd.Flags().GetString("as")
			role, _ := cmd.Flags().GetString("role")
			actor, err := cliActor(as, role)
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			defer f.Close()
			rows, err := patient.ParseWorkbook(f)
			if err != nil {
				return err
			}

			ctx := context.Background()
			cfg, h, err := openPool(ctx, "")
			if err != nil {
				return err
			}
			defer h.Pool.Close()

			svc := newCLIPatientService(cfg, h)
			res, err := svc.Import(ctx, rows, actor)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d patient(s), %d failed.\n", res.Success, res.Failed)
			for _, e := range res.Errors {
				fmt.Printf("  row %d: %s\n", e.Row, e.Message)
			}
			return nil
		},
	}
	patientsCmd.Flags().String("file", "", "Path to the xlsx workbook")
	patientsCmd.Flags().String("as", "", "Email recorded as the creator")
	patientsCmd.Flags().String("role", "admin", "Role to import with")
	_ = patientsCmd.MarkFlagRequired("file")
	cmd.AddCommand(patientsCmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export data",
	}

	patientsCmd := &cobra.Command{
		Use:   "patients",
		Short: "Export all patients to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			cfg, h, err := openPool(ctx, "")
			if err != nil {
				return err
			}
			defer h.Pool.Close()

			items, _, err := newCLIPatientService(cfg, h).List(ctx, patient.Filter{}, 10000, 0)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := patient.WriteWorkbook(&buf, items); err != nil {
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Printf("Exported %d patient(s) to %s\n", len(items), out)
			return nil
		},
	}
	patientsCmd.Flags().String("out", "patients.xlsx", "Output path")
	cmd.AddCommand(patientsCmd)
	return cmd
}
