package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/config"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/db"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/logger"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/reconcile"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Inspect and resolve consultations that were not saved after completion",
	}
	rootCmd.PersistentFlags().String("config", "", "path to an env-style config file (default .env)")
	rootCmd.PersistentFlags().String("schema", reconcile.DefaultSchema, "journal schema")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(purgeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withJournal opens the journal database for the duration of fn.
func withJournal(cmd *cobra.Command, fn func(ctx context.Context, j *reconcile.Journal) error) error {
	configPath, _ := cmd.Flags().GetString("config")
	schema, _ := cmd.Flags().GetString("schema")

	dsn, err := config.DatabaseURL(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(os.Getenv("LOG_LEVEL"), "console", "telemed-reconcile")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var database *sql.DB
	if database, err = db.Connect(ctx, dsn, log); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer database.Close()

	j := reconcile.NewJournal(database, schema, log)
	if err := j.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := fn(ctx, j); err != nil {
		log.Error("reconcile command failed", zap.String("command", cmd.Name()), zap.Error(err))
		return err
	}
	return nil
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return withJournal(cmd, func(ctx context.Context, j *reconcile.Journal) error {
				entries, err := j.List(ctx, all)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No entries.")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPATIENT\tSTEP\tCREATED\tSTATUS")
				for _, e := range entries {
					status := "open"
					if e.ResolvedAt != nil {
						status = "resolved: " + e.Resolution
					}
					fmt.Fprintf(w, "%s\t%s (%s)\t%s\t%s\t%s\n",
						e.ID, e.PatientName, e.PatientID, e.Step, e.CreatedAt.Format(time.RFC3339), status)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().Bool("all", false, "include resolved entries")
	return cmd
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <entry-id>",
		Short: "Mark an entry as resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolution, _ := cmd.Flags().GetString("resolution")
			if resolution == "" {
				return fmt.Errorf("--resolution is required")
			}
			return withJournal(cmd, func(ctx context.Context, j *reconcile.Journal) error {
				if err := j.Resolve(ctx, args[0], resolution); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().String("resolution", "", "what was done to fix the record")
	return cmd
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete entries resolved more than a year ago",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd, func(ctx context.Context, j *reconcile.Journal) error {
				n, err := j.Purge(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d entries\n", n)
				return nil
			})
		},
	}
}
