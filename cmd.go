package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	cleanupInterval = 1 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "postboard",
		Short:        "A small authenticated entry board",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	load := func() (*Config, *logrus.Logger, error) {
		cfg, err := loadConfig(envFile)
		if err != nil {
			return nil, nil, err
		}
		log, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return nil, nil, err
		}
		return cfg, log, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newInitDBCmd(load),
		newHashPasswordCmd(),
	)

	return root
}

type loadFunc func() (*Config, *logrus.Logger, error)

func openAndInit(cfg *Config) (*sql.DB, error) {
	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := initDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	return db, nil
}

func newServeCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *Config, log *logrus.Logger) error {
	db, err := openAndInit(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.PasswordHash == "" && cfg.Password == "admin" {
		log.Warn("ADMIN_PASS not set, using default password")
	}
	creds, err := newCredentials(cfg)
	if err != nil {
		return err
	}

	blog := NewBlog(db, cfg, creds, log)
	if err := blog.metrics.refreshEntries(db); err != nil {
		log.WithError(err).Warn("initializing entries gauge")
	}

	go blog.cleanupSessions(ctx, cleanupInterval)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           blog.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("server starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// cleanupSessions purges expired session rows now and then every interval
// until ctx is done.
func (b *Blog) cleanupSessions(ctx context.Context, interval time.Duration) {
	purge := func() {
		n, err := cleanupExpiredSessions(b.db)
		if err != nil {
			b.log.WithError(err).Error("cleaning up expired sessions")
			return
		}
		if n > 0 {
			b.log.WithField("removed", n).Info("expired sessions removed")
		}
	}

	purge()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}

func newInitDBCmd(load loadFunc) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			db, err := openAndInit(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if seed {
				if err := seedDB(db); err != nil {
					return fmt.Errorf("seeding database: %w", err)
				}
			}

			log.WithField("database", cfg.DatabaseURL).Info("database initialized")
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert sample entries into an empty database")

	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash suitable for ADMIN_PASS_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := hashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
