package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/glucohealth/glucohealth/internal/config"
	"github.com/glucohealth/glucohealth/internal/domain/identity"
	"github.com/glucohealth/glucohealth/internal/domain/intake"
	"github.com/glucohealth/glucohealth/internal/domain/medicament"
	"github.com/glucohealth/glucohealth/internal/domain/reminder"
	"github.com/glucohealth/glucohealth/internal/domain/schedule"
	"github.com/glucohealth/glucohealth/internal/domain/treatment"
	"github.com/glucohealth/glucohealth/internal/platform/auth"
	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/internal/platform/middleware"
	"github.com/glucohealth/glucohealth/internal/platform/notification"
	"github.com/glucohealth/glucohealth/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "glucohealth-server",
		Short:         "GlucoHealth medication schedule and reminder API",
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(remindersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the reminder scheduler",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(_ *config.Config, pool *pgxpool.Pool, _ zerolog.Logger) error {
				count, err := db.NewMigrator(db.NewTransactor(pool), migrations.FS).Up(cmd.Context())
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(_ *config.Config, pool *pgxpool.Pool, _ zerolog.Logger) error {
				statuses, err := db.NewMigrator(db.NewTransactor(pool), migrations.FS).Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						appliedAt = s.AppliedAt.Format(time.DateTime)
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Run reminder jobs once, outside the server",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run-once",
		Short: "Run a single reminder tick and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) error {
				svcs, err := newServices(cfg, pool, logger)
				if err != nil {
					return err
				}
				report, err := svcs.reminders.Tick(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("scanned=%d due=%d sent=%d already_notified=%d failed=%d\n",
					report.PatientsScanned, report.Due, report.Sent, report.AlreadyNotified, report.Failed)
				return nil
			})
		},
	})

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete reminder markers older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("retention-days")
			return withPool(cmd.Context(), func(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) error {
				svcs, err := newServices(cfg, pool, logger)
				if err != nil {
					return err
				}
				retention := cfg.MarkerRetention()
				if days > 0 {
					retention = time.Duration(days) * 24 * time.Hour
				}
				n, err := svcs.reminders.Prune(cmd.Context(), retention)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d marker(s).\n", n)
				return nil
			})
		},
	}
	pruneCmd.Flags().Int("retention-days", 0, "Override MARKER_RETENTION_DAYS")
	cmd.AddCommand(pruneCmd)

	return cmd
}

func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, newLogger(os.Getenv("ENV"), ""), err
	}
	logger := newLogger(cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, logger, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, logger, nil
}

// withPool loads config and opens the pool for one-shot commands.
func withPool(ctx context.Context, fn func(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(cfg, pool, logger)
}

// resolveTokenKey returns AUTH_TOKEN_SECRET, or a random 32-byte key when it
// is empty. The second value reports that a key was generated.
func resolveTokenKey(secret string) ([]byte, bool, error) {
	if secret != "" {
		return []byte(secret), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate token signing key: %w", err)
	}
	return key, true, nil
}

func newPushSender(cfg *config.Config, logger zerolog.Logger) notification.PushSender {
	if cfg.OneSignalAppID == "" {
		return notification.LogPushSender{Logger: logger}
	}
	var opts []notification.OneSignalOption
	if cfg.OneSignalAPIURL != "" {
		opts = append(opts, notification.WithAPIURL(cfg.OneSignalAPIURL))
	}
	return notification.NewOneSignalSender(cfg.OneSignalAppID, cfg.OneSignalRESTAPIKey, opts...)
}

func newEmailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if cfg.SMTPHost == "" {
		return notification.LogEmailSender{Logger: logger}
	}
	return notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}

type services struct {
	loc         *time.Location
	signingKey  []byte
	identity    *identity.Service
	medicaments *medicament.Service
	treatments  *treatment.Service
	intake      *intake.Service
	schedules   *schedule.Service
	reminders   *reminder.Engine
}

func newServices(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	key, generated, err := resolveTokenKey(cfg.AuthTokenSecret)
	if err != nil {
		return nil, err
	}
	if generated {
		logger.Warn().Msg("AUTH_TOKEN_SECRET not set; using a random key, tokens will not survive a restart")
	}

	tx := db.NewTransactor(pool)
	templates := notification.NewTemplateEngine()
	tokens := auth.NewTokenIssuer(key, cfg.AuthIssuer, cfg.AuthTokenTTL)

	users := identity.NewUserRepoPG()
	identitySvc := identity.NewService(tx, users, identity.NewPatientRepoPG(users),
		newEmailSender(cfg, logger), templates, tokens)
	medicamentSvc := medicament.NewService(tx, medicament.NewRepoPG())
	treatmentSvc := treatment.NewService(tx, treatment.NewRepoPG(), loc)
	intakeSvc := intake.NewService(tx, intake.NewRepoPG(), treatmentSvc)
	scheduleSvc := schedule.NewService(tx, identitySvc, treatmentSvc, intakeSvc, loc)

	engine := reminder.NewEngine(tx, identitySvc, scheduleSvc, medicamentSvc,
		reminder.NewPGMarkerStore(pool), newPushSender(cfg, logger), templates, logger,
		reminder.Config{PageSize: cfg.ReminderPageSize, Concurrency: cfg.ReminderConcurrency})

	return &services{
		loc:         loc,
		signingKey:  key,
		identity:    identitySvc,
		medicaments: medicamentSvc,
		treatments:  treatmentSvc,
		intake:      intakeSvc,
		schedules:   scheduleSvc,
		reminders:   engine,
	}, nil
}

func newRouter(cfg *config.Config, svcs *services, pool *pgxpool.Pool, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.Secure())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: svcs.signingKey}
	skipper := auth.PathSkipper("/api/v1/auth/login", "/health", "/health/db")
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg, skipper))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg, skipper))
	}

	e.GET("/health", db.LivenessHandler(version))
	e.GET("/health/db", db.HealthHandler(pool))

	api := e.Group("/api/v1", middleware.RequestTimeout(30*time.Second))
	identity.NewHandler(svcs.identity).RegisterRoutes(api)
	medicament.NewHandler(svcs.medicaments).RegisterRoutes(api)
	treatment.NewHandler(svcs.treatments).RegisterRoutes(api)
	intake.NewHandler(svcs.intake).RegisterRoutes(api)
	schedule.NewHandler(svcs.schedules).RegisterRoutes(api)
	reminder.NewHandler(svcs.reminders).RegisterRoutes(api)

	return e
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}
	if cfg.IsDev() {
		logger.Warn().Msg("ENV=development: requests without a token are served as admin")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	svcs, err := newServices(cfg, pool, logger)
	if err != nil {
		return err
	}
	e := newRouter(cfg, svcs, pool, logger)

	var scheduler *reminder.Scheduler
	if cfg.ReminderEnabled {
		scheduler = reminder.NewScheduler(svcs.reminders, svcs.loc, logger)
		if err := scheduler.AddTick(cfg.ReminderSchedule); err != nil {
			return err
		}
		if err := scheduler.AddPrune(cfg.MarkerPruneSchedule, cfg.MarkerRetention()); err != nil {
			return err
		}
		scheduler.Start()
	}

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", svcs.loc.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server error")
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("reminder scheduler did not stop in time")
		}
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
