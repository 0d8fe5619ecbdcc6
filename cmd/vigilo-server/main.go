package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vigilo/vigilo/internal/config"
	"github.com/vigilo/vigilo/internal/domain/action"
	"github.com/vigilo/vigilo/internal/domain/auditevent"
	"github.com/vigilo/vigilo/internal/domain/identity"
	"github.com/vigilo/vigilo/internal/domain/incident"
	"github.com/vigilo/vigilo/internal/domain/indicator"
	"github.com/vigilo/vigilo/internal/domain/risk"
	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/internal/platform/blobstore"
	"github.com/vigilo/vigilo/internal/platform/db"
	"github.com/vigilo/vigilo/internal/platform/middleware"
	"github.com/vigilo/vigilo/internal/platform/notification"
	"github.com/vigilo/vigilo/internal/platform/reporting"
	"github.com/vigilo/vigilo/internal/platform/telemetry"
)

const serverVersion = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "vigilo-server",
		Short: "Patient safety incident reporting API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the incident reporting API server",
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a database backup or write a forward migration instead.")
			return nil
		},
	})

	return cmd
}

// createAdminCmd bootstraps the first administrator account. Self-service
// registration only creates staff users, so a fresh deployment needs this
// once before anyone can manage users or departments over the API.
func createAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || name == "" || password == "" {
				return fmt.Errorf("--email, --name and --password are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}

			u := &identity.User{
				Email:        email,
				FullName:     name,
				Role:         identity.RoleAdmin,
				PasswordHash: hash,
				Active:       true,
			}
			if err := identity.NewUserRepo(pool).Create(ctx, u); err != nil {
				return err
			}

			fmt.Printf("Created admin user %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Login email for the new admin")
	cmd.Flags().String("name", "", "Full name of the new admin")
	cmd.Flags().String("password", "", "Initial password")
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Token signing key. In token mode Validate guarantees JWT_SECRET is
	// set; in development a random key keeps /api/auth/login working.
	signingKey, randomKey, err := resolveSigningKey(cfg.JWTSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("signing key error")
	}
	if randomKey {
		logger.Warn().Msg("JWT_SECRET not set; using random signing key (tokens will not survive restart)")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Telemetry
	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    "vigilo-server",
		ServiceVersion: serverVersion,
		Environment:    cfg.Env,
	})
	defer tp.Shutdown(ctx)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(tp.MetricsMiddleware())
	e.Use(tp.TracingMiddleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: signingKey,
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Audit middleware, backed by the persistent trail. Mutations and reads
	// of patient-identifying records end up in the audit_event table.
	auditSvc := auditevent.NewService(auditevent.NewRepo(pool), logger)
	e.Use(middleware.Audit(logger, auditSvc))

	// API group
	api := e.Group("/api")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Request bodies are small JSON except attachment uploads.
	uploadLimit := fmt.Sprintf("%dM", cfg.UploadMaxBytes()>>20)
	api.Use(middleware.BodyLimit("1M", uploadLimit))
	api.Use(middleware.RequestTimeout(30 * time.Second))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": serverVersion,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", tp.PrometheusHandler())

	// Notifications: template rendering over a log-backed email sender.
	// Swapping in a real SMTP sender is a config change here, not a
	// service change.
	sender := notification.NewLogEmailSender(logger)
	notifyMgr := notification.NewNotificationManager(sender, notification.NewTemplateEngine())
	notifyHandler := notification.NewNotificationHandler(notifyMgr)
	notifyHandler.RegisterRoutes(api.Group("", auth.RequireRole("quality")))

	// Attachment content store
	var blobs blobstore.Store
	if cfg.BlobDir != "" {
		blobs, err = blobstore.NewFilesystemStore(cfg.BlobDir, cfg.UploadMaxBytes())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open blob store")
		}
	} else {
		blobs = blobstore.NewMemoryStore(cfg.UploadMaxBytes())
		logger.Warn().Msg("BLOB_DIR not set; attachments held in memory and will not survive restart")
	}

	// Identity domain
	userRepo := identity.NewUserRepo(pool)
	deptRepo := identity.NewDepartmentRepo(pool)
	physRepo := identity.NewPhysicianRepo(pool)
	issuer := auth.NewTokenIssuer(signingKey, time.Duration(cfg.TokenTTL())*time.Hour)
	identitySvc := identity.NewService(userRepo, deptRepo, physRepo, issuer)
	identityHandler := identity.NewHandler(identitySvc)
	identityHandler.RegisterRoutes(api)

	// Incident domain
	actionRepo := action.NewRepo(pool)
	incidentSvc := incident.NewService(incident.ServiceConfig{
		Incidents:   incident.NewIncidentRepo(pool),
		Approvals:   incident.NewApprovalRepo(pool),
		Attachments: incident.NewAttachmentRepo(pool),
		Actions:     actionRepo,
		Recipients:  incident.NewRecipientResolver(pool),
		Notifier:    notifyMgr,
		Blobs:       blobs,
		MaxUpload:   cfg.UploadMaxBytes(),
		Pool:        pool,
		Logger:      logger,
	})
	incidentHandler := incident.NewHandler(incidentSvc)
	incidentHandler.RegisterRoutes(api)

	// Corrective action domain
	actionSvc := action.NewService(actionRepo, action.NewContactResolver(pool), notifyMgr, logger)
	actionHandler := action.NewHandler(actionSvc)
	actionHandler.RegisterRoutes(api)

	// Risk register domain
	riskSvc := risk.NewService(risk.NewRepo(pool), pool)
	riskHandler := risk.NewHandler(riskSvc)
	riskHandler.RegisterRoutes(api)

	// Quality indicator domain
	indicatorSvc := indicator.NewService(indicator.NewRepo(pool))
	indicatorHandler := indicator.NewHandler(indicatorSvc)
	indicatorHandler.RegisterRoutes(api)

	// Aggregate reporting
	reportHandler := reporting.NewHandler(pool)
	reportHandler.RegisterRoutes(api)

	// Audit trail queries
	auditHandler := auditevent.NewHandler(auditSvc)
	auditHandler.RegisterRoutes(api)

	// DB pool gauges for /metrics
	health := tp.HealthMetrics()
	gaugeCtx, gaugeCancel := context.WithCancel(context.Background())
	defer gaugeCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gaugeCtx.Done():
				return
			case <-ticker.C:
				stats := db.GetPoolStats(pool)
				health.SetDBPoolActive(int64(stats.AcquiredConns))
				health.SetDBPoolIdle(int64(stats.IdleConns))
			}
		}
	}()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// resolveSigningKey returns the token signing key from JWT_SECRET or, when
// unset, generates a random 32-byte key. The second return value is true
// when a random key was generated.
func resolveSigningKey(secret string) ([]byte, bool, error) {
	if secret != "" {
		return []byte(secret), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}
