package main

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"vaxsched/internal/config"
	"vaxsched/internal/service/accounts"
	"vaxsched/internal/service/scheduling"
	"vaxsched/internal/session"
	"vaxsched/internal/store"
	"vaxsched/internal/store/memstore"
	"vaxsched/internal/store/postgres"
	"vaxsched/internal/transport/cli"
)

func main() {
	os.Exit(run(os.Stdin, os.Stdout, os.Stderr))
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)})).With(
		slog.String("service", "vaxsched"),
	)
}

func run(stdin *os.File, stdout, stderr io.Writer) int {
	log := newLogger(stderr, "info")
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		return 1
	}

	log = newLogger(stderr, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		sched store.SchedulingStore
		creds store.CredentialRepository
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Info("using in-memory store")
		mem := memstore.New()
		sched, creds = mem, mem
	default:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		}, log)
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return 1
		}
		defer func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}()

		if cfg.Migrate {
			if err := postgres.Migrate(ctx, db, log); err != nil {
				log.Error("database migration failed", slog.Any("err", err))
				return 1
			}
		}
		sched = postgres.NewSchedulingRepo(db, cfg.TxMaxAttempts)
		creds = postgres.NewCredentialRepo(db)
	}

	accountsSvc := accounts.NewService(creds, log)
	schedulingSvc := scheduling.NewService(sched, scheduling.Options{
		CancelPolicy: cfg.CancelPolicy,
		SlotMode:     cfg.SlotMode,
	}, log)

	sess := session.New()
	shell := cli.NewShell(accountsSvc, schedulingSvc, sess, stdout, cli.Options{
		CommandTimeout: cfg.CommandTimeout,
		Prompt:         cli.IsTerminal(stdin),
	}, log)

	log.Info("session started",
		slog.String("session", sess.ID.String()),
		slog.String("store", cfg.StoreDriver),
		slog.String("cancel_policy", string(cfg.CancelPolicy)),
		slog.String("slot_mode", string(cfg.SlotMode)),
	)
	if err := shell.Run(ctx, stdin); err != nil {
		log.Error("shell stopped with error", slog.Any("err", err))
		return 1
	}
	log.Info("session ended", slog.String("session", sess.ID.String()))
	return 0
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
