package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/scribehealth/recordstore/internal/config"
	"github.com/scribehealth/recordstore/internal/domain/audit"
	"github.com/scribehealth/recordstore/internal/domain/encounter"
	"github.com/scribehealth/recordstore/internal/domain/media"
	"github.com/scribehealth/recordstore/internal/domain/note"
	"github.com/scribehealth/recordstore/internal/domain/patient"
	"github.com/scribehealth/recordstore/internal/domain/tenant"
	"github.com/scribehealth/recordstore/internal/platform/auth"
	"github.com/scribehealth/recordstore/internal/platform/db"
	"github.com/scribehealth/recordstore/internal/platform/middleware"
	"github.com/scribehealth/recordstore/internal/platform/scope"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "recordstore",
		Short: "Tenant-isolated clinical record store",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(retentionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env := os.Getenv("ENV"); env == "" || env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func loadAndConnect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the record store API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
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
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := loadAndConnect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := loadAndConnect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// operator identifies CLI-invoked mutations in the audit trail.
func operator(cmd *cobra.Command) (uuid.UUID, audit.RequestMeta, error) {
	actorStr, _ := cmd.Flags().GetString("actor")
	if actorStr == "" {
		return uuid.Nil, audit.RequestMeta{}, fmt.Errorf("--actor is required")
	}
	actor, err := uuid.Parse(actorStr)
	if err != nil {
		return uuid.Nil, audit.RequestMeta{}, fmt.Errorf("invalid --actor: %w", err)
	}
	return actor, audit.RequestMeta{UserAgent: "recordstore-cli"}, nil
}

func buildTenantService(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) *tenant.Service {
	ledger := audit.NewLedger(audit.NewRepoPG(pool))
	runner := db.NewPoolRunner(pool)
	return tenant.NewService(tenant.NewRepoPG(pool), ledger, runner, logger, cfg.RetentionYears)
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a new tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			slug, _ := cmd.Flags().GetString("slug")
			retention, _ := cmd.Flags().GetInt("retention-years")
			actor, meta, err := operator(cmd)
			if err != nil {
				return err
			}

			ctx := context.Background()
			cfg, pool, err := loadAndConnect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := buildTenantService(pool, cfg, newLogger())
			t, err := svc.Create(ctx, name, slug, retention, actor, meta)
			if err != nil {
				return err
			}
			fmt.Printf("Tenant %s created (id %s).\n", t.Slug, t.ID)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant display name")
	createCmd.Flags().String("slug", "", "Tenant slug (lowercase alphanumerics and hyphens)")
	createCmd.Flags().Int("retention-years", 0, "Record retention in years (default from config)")
	createCmd.Flags().String("actor", "", "Operator UUID for the audit trail")
	cmd.AddCommand(createCmd)

	deactivateCmd := &cobra.Command{
		Use:   "deactivate <tenant-id>",
		Short: "Freeze a tenant (writes rejected, reads allowed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			actor, meta, err := operator(cmd)
			if err != nil {
				return err
			}

			ctx := context.Background()
			cfg, pool, err := loadAndConnect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := buildTenantService(pool, cfg, newLogger())
			if err := svc.Deactivate(ctx, id, actor, meta); err != nil {
				return err
			}
			fmt.Println("Tenant deactivated.")
			return nil
		},
	}
	deactivateCmd.Flags().String("actor", "", "Operator UUID for the audit trail")
	cmd.AddCommand(deactivateCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Delete a tenant and all its records (audit chain preserved)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			actor, meta, err := operator(cmd)
			if err != nil {
				return err
			}
			confirmed, _ := cmd.Flags().GetBool("yes")
			if !confirmed {
				return fmt.Errorf("refusing to delete without --yes")
			}

			ctx := context.Background()
			cfg, pool, err := loadAndConnect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := buildTenantService(pool, cfg, newLogger())
			if err := svc.Delete(ctx, id, actor, meta); err != nil {
				return err
			}
			fmt.Println("Tenant deleted. Audit chain retained.")
			return nil
		},
	}
	deleteCmd.Flags().String("actor", "", "Operator UUID for the audit trail")
	deleteCmd.Flags().Bool("yes", false, "Confirm the deletion")
	cmd.AddCommand(deleteCmd)

	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit ledger",
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <tenant-id>",
		Short: "Recompute and verify a tenant's hash chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			fromSeq, _ := cmd.Flags().GetInt64("from-seq")
			toSeq, _ := cmd.Flags().GetInt64("to-seq")

			ctx := context.Background()
			_, pool, err := loadAndConnect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			ledger := audit.NewLedger(audit.NewRepoPG(pool))
			sc := scope.New(tenantID, uuid.Nil)
			res, err := ledger.VerifyChain(ctx, sc, fromSeq, toSeq)
			if err != nil {
				var verr *audit.ChainVerificationError
				if errors.As(err, &verr) {
					fmt.Printf("CHAIN BROKEN at seq %d (event %s): %s\n", verr.Seq, verr.EventID, verr.Reason)
					os.Exit(2)
				}
				return err
			}
			fmt.Printf("Chain intact: %d event(s) verified (seq %d..%d).\n",
				res.EventsChecked, res.FirstSeq, res.LastSeq)
			return nil
		},
	}
	verifyCmd.Flags().Int64("from-seq", 1, "First sequence number to verify")
	verifyCmd.Flags().Int64("to-seq", 0, "Last sequence number to verify (0 = chain tail)")
	cmd.AddCommand(verifyCmd)

	return cmd
}

func retentionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Retention lifecycle operations",
	}

	purgeCmd := &cobra.Command{
		Use:   "purge <tenant-id>",
		Short: "Purge archived notes past the tenant's retention window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			actor, _, err := operator(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			logger := newLogger()
			ctx := context.Background()
			cfg, pool, err := loadAndConnect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			ledger := audit.NewLedger(audit.NewRepoPG(pool))
			runner := db.NewPoolRunner(pool)
			tenantSvc := tenant.NewService(tenant.NewRepoPG(pool), ledger, runner, logger, cfg.RetentionYears)
			noteSvc := note.NewService(note.NewRepoPG(pool), ledger, tenantSvc, runner, logger)

			t, err := tenantSvc.Get(ctx, tenantID)
			if err != nil {
				return err
			}
			cutoff := t.RetentionCutoff(time.Now().UTC())

			purged, err := noteSvc.PurgeExpired(ctx, scope.New(tenantID, actor), cutoff, limit)
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d note(s) archived before %s.\n", purged, cutoff.Format(time.RFC3339))
			return nil
		},
	}
	purgeCmd.Flags().String("actor", "", "Operator UUID for the audit trail")
	purgeCmd.Flags().Int("limit", 1000, "Maximum notes to purge in one run")
	cmd.AddCommand(purgeCmd)

	return cmd
}

func runServer() error {
	logger := newLogger()

	ctx := context.Background()
	cfg, pool, err := loadAndConnect(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	if cfg.IsDev() {
		devTenant, err := uuid.Parse(cfg.DevTenantID)
		if err != nil {
			logger.Fatal().Err(err).Msg("DEV_TENANT_ID must be a UUID in development")
		}
		devActor, err := uuid.Parse(cfg.DevActorID)
		if err != nil {
			logger.Fatal().Err(err).Msg("DEV_ACTOR_ID must be a UUID in development")
		}
		e.Use(auth.DevAuthMiddleware(devTenant, devActor))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.JWTSigningKey),
		}))
	}
	e.Use(scope.Middleware(logger))

	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")

	ledger := audit.NewLedger(audit.NewRepoPG(pool))
	runner := db.NewPoolRunner(pool)

	// The tenant service doubles as the write gate for every scoped domain.
	tenantSvc := tenant.NewService(tenant.NewRepoPG(pool), ledger, runner, logger, cfg.RetentionYears)
	tenant.NewHandler(tenantSvc).RegisterRoutes(apiV1)

	audit.NewHandler(ledger, runner).RegisterRoutes(apiV1)

	patientSvc := patient.NewService(patient.NewRepoPG(pool), ledger, tenantSvc, runner)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	encounterSvc := encounter.NewService(encounter.NewRepoPG(pool), ledger, tenantSvc, runner)
	encounter.NewHandler(encounterSvc).RegisterRoutes(apiV1)

	noteSvc := note.NewService(note.NewRepoPG(pool), ledger, tenantSvc, runner, logger)
	note.NewHandler(noteSvc).RegisterRoutes(apiV1)

	mediaSvc := media.NewService(media.NewRepoPG(pool), ledger, tenantSvc, runner)
	media.NewHandler(mediaSvc).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
