package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Doctor dashboard for the telemedicine platform",
	}
	rootCmd.PersistentFlags().String("config", "", "path to an env-style config file (default .env)")
	rootCmd.PersistentFlags().String("email", os.Getenv("DASHBOARD_EMAIL"), "account email")
	rootCmd.PersistentFlags().String("password", os.Getenv("DASHBOARD_PASSWORD"), "account password")

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(queueCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func credentials(cmd *cobra.Command) (string, string, error) {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if email == "" || password == "" {
		return "", "", fmt.Errorf("--email and --password are required")
	}
	return email, password, nil
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sign in and keep the dashboard refreshed until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			noClear, _ := cmd.Flags().GetBool("no-clear")
			email, password, err := credentials(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, appOptions{
				configPath: configPath,
				display:    view.NewTerminal(cmd.OutOrStdout(), !noClear),
			})
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.controller.SignIn(ctx, email, password); err != nil {
				return err
			}
			a.logger.Info("dashboard running", zap.Duration("refresh_interval", a.cfg.RefreshInterval))

			<-ctx.Done()
			a.logger.Info("shutting down")
			a.controller.SignOut(context.WithoutCancel(ctx))
			return nil
		},
	}
	cmd.Flags().Bool("no-clear", false, "append frames instead of redrawing the screen")
	return cmd
}

func queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Print the patient queue and today's stats once",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			email, password, err := credentials(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, appOptions{configPath: configPath, manual: true})
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.controller.SignIn(ctx, email, password); err != nil {
				return err
			}
			defer a.controller.SignOut(ctx)

			if err := a.controller.Refresh(ctx); err != nil {
				return err
			}

			out := view.NewBuffer()
			for _, id := range []view.PanelID{view.PanelStats, view.PanelQueue} {
				if f, ok := a.buffer.Panel(id); ok {
					out.Render(id, f.Content)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), view.Compose(out))
			return nil
		},
	}
}
