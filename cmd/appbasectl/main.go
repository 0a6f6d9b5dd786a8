package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/appbase/internal/app"
	"github.com/dropDatabas3/appbase/internal/billing/reconcile"
	"github.com/dropDatabas3/appbase/internal/config"
	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
	"github.com/dropDatabas3/appbase/internal/security/token"
	"github.com/dropDatabas3/appbase/internal/session"
	"github.com/dropDatabas3/appbase/internal/store/pg"
	migrations "github.com/dropDatabas3/appbase/migrations/postgres"
)

type cli struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

// open abre el store configurado sin migrar.
func (c *cli) open(ctx context.Context) (repository.Store, error) {
	return app.OpenStore(ctx, c.cfg, false)
}

func main() {
	c := &cli{}

	root := &cobra.Command{
		Use:           "appbasectl",
		Short:         "Operaciones de mantenimiento de appbase",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.envFile != "" {
				if _, err := os.Stat(c.envFile); err == nil {
					_ = godotenv.Load(c.envFile)
				}
			}
			if c.configPath == "" {
				c.configPath = os.Getenv("CONFIG_PATH")
			}
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "appbasectl"})
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "ruta a config.yaml (env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "ruta a .env (si existe, se carga)")

	root.AddCommand(c.migrateCmd(), c.sessionsCmd(), c.entitlementsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de Postgres embebidas",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requiere storage.driver=postgres (actual %q)", c.cfg.Storage.Driver)
			}
			st, err := pg.Open(cmd.Context(), pg.Config{DSN: c.cfg.Storage.DSN, MaxOpenConns: 2})
			if err != nil {
				return err
			}
			defer st.Close()
			n, err := st.RunMigrations(cmd.Context(), migrations.FS)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied: %d\n", n)
			return nil
		},
	}
}

func (c *cli) sessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Mantenimiento de sesiones",
	}
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Borra sesiones vencidas de todos los tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			m := session.NewManager(st.Sessions(), token.NewCodec(c.cfg.Session.Pepper, c.cfg.Session.TokenBytes),
				session.Options{TTL: c.cfg.SessionTTL()})
			n, err := m.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired sessions purged: %d\n", n)
			return nil
		},
	})
	return sessionsCmd
}

func (c *cli) entitlementsCmd() *cobra.Command {
	var appID, subjectID string
	entCmd := &cobra.Command{
		Use:   "entitlements",
		Short: "Operaciones sobre entitlements de billing",
	}
	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Recalcula entitlements desde el ledger (un subject o toda la app)",
		RunE: func(cmd *cobra.Command, args []string) error {
			appID = strings.TrimSpace(appID)
			if appID == "" {
				return fmt.Errorf("--app es requerido")
			}
			st, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			r := reconcile.NewReconciler(st.Ledger(), st.Entitlements(), reconcile.Config{
				PastDueGrace:  c.cfg.PastDueGrace(),
				OneTimeAccess: c.cfg.OneTimeAccess(),
			})
			n, err := r.Rebuild(cmd.Context(), appID, strings.TrimSpace(subjectID))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entitlements rebuilt: %d\n", n)
			return nil
		},
	}
	rebuild.Flags().StringVar(&appID, "app", "", "id de la app (tenant)")
	rebuild.Flags().StringVar(&subjectID, "subject", "", "id del end user; vacío = todos los facturados")
	entCmd.AddCommand(rebuild)
	return entCmd
}
