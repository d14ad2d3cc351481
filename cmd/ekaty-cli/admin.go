package main

import (
	"context"
	"fmt"
	"time"

	grpcapi "github.com/Dhoini/ekaty/internal/api/grpc"
	"github.com/Dhoini/ekaty/internal/app"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	adminEmail    string
	adminPassword string
	adminName     string
	healthAddr    string
	healthTLS     bool
)

// migrateCmd применяет миграции обеих баз
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, app.Options{Migrate: true}, func(_ context.Context, a *app.App) error {
			a.Logger.Infow("Migrations applied")
			return nil
		})
	},
}

// verifyCmd проверяет готовность окружения к запуску
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check configuration and dependencies before launch",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
			report := a.Verifier().Run(ctx)
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("environment is not ready")
			}
			return nil
		})
	},
}

// healthCmd опрашивает gRPC health-check запущенного сервера
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe a running server over gRPC health checking",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := grpcapi.DefaultClientOptions()
		opts.Address = healthAddr
		opts.UseTLS = healthTLS
		client, err := grpcapi.NewClient(opts, logger.New(logger.WARN))
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		st, err := client.Probe(ctx, grpcapi.ServiceName)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), st.String())
		if st != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("server is %s", st)
		}
		return nil
	},
}

// partnersCmd база партнеров
var partnersCmd = &cobra.Command{
	Use:   "partners",
	Short: "Partner database maintenance",
}

var partnersReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Link partner restaurants to catalog entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
			report, err := a.Services.Partners.Reconcile(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		})
	},
}

// adminCmd учетные записи администраторов
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an administrator or promote an existing user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.App) error {
			user, err := a.Services.Auth.CreateAdmin(ctx, adminEmail, adminPassword, adminName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s (%s) is ready\n", user.Email, user.ID)
			return nil
		})
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "localhost:9090", "gRPC server address")
	healthCmd.Flags().BoolVar(&healthTLS, "tls", false, "use TLS")

	adminCreateCmd.Flags().StringVar(&adminEmail, "email", "", "administrator email")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "password for a new account")
	adminCreateCmd.Flags().StringVar(&adminName, "name", "", "display name")
	_ = adminCreateCmd.MarkFlagRequired("email")

	partnersCmd.AddCommand(partnersReconcileCmd)
	adminCmd.AddCommand(adminCreateCmd)
}
