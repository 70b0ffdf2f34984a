package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	charm "github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	accounts "github.com/kettlebit/go-accounts"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func main() {
	// Missing .env is fine; the environment may be set by the supervisor.
	_ = godotenv.Load()

	logger := newLogger()

	cfg, err := accounts.LoadConfig()
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *accounts.Config, logger accounts.Logger) error {
	db, err := openDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := accounts.NewRepositoryManager(db)
	repo.MustValidate()

	provider := accounts.NewUserProvider(repo.Users()).WithLogger(logger)
	auther := accounts.NewAuthenticator(provider, cfg).WithLogger(logger)

	mailer, err := buildMailer(cfg, logger)
	if err != nil {
		return err
	}

	controller := accounts.NewAccountController(
		accounts.WithConfig(cfg),
		accounts.WithRepository(repo),
		accounts.WithMailer(mailer),
		accounts.WithAuthenticator(auther),
		accounts.WithTokenValidator(auther.TokenService()),
		accounts.WithControllerLogger(logger),
		accounts.WithDebug(cfg.Debug),
	)

	app := fiber.New(fiber.Config{
		AppName:               "accountsd",
		DisableStartupMessage: true,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Hello World!")
	})

	controller.RegisterRoutes(app.Group("/api/v1/users"))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}

func openDatabase(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().
		Model((*accounts.User)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func buildMailer(cfg *accounts.Config, logger accounts.Logger) (accounts.Mailer, error) {
	if cfg.Mail.Host == "" {
		logger.Warn("no SMTP host configured, outbound email goes to the log")
		return accounts.NewLogMailer(logger), nil
	}
	return accounts.NewSMTPMailer(cfg.Mail)
}

// charmLogger adapts charmbracelet/log to the accounts.Logger surface
type charmLogger struct {
	l *charm.Logger
}

func newLogger() charmLogger {
	return charmLogger{
		l: charm.NewWithOptions(os.Stderr, charm.Options{
			ReportTimestamp: true,
			Prefix:          "accountsd",
		}),
	}
}

func (c charmLogger) Debug(msg string, args ...any) { c.l.Debug(msg, args...) }
func (c charmLogger) Info(msg string, args ...any)  { c.l.Info(msg, args...) }
func (c charmLogger) Warn(msg string, args ...any)  { c.l.Warn(msg, args...) }
func (c charmLogger) Error(msg string, args ...any) { c.l.Error(msg, args...) }
