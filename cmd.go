package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Build information, set via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile  string
	logLevel string
	log      = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "signalquery",
	Short: "Query builder backend for traces, logs and metrics",
	Long: `signalquery serves WHERE clause autocomplete, compiles query drafts into
structured query specs and forwards them to the execution engine. Facet
values are read from the OpenTelemetry tables in ClickHouse; saved queries
are kept in DuckDB.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}

		log.SetLevel(level)
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})

		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	serveHost      string
	servePort      int
	serveStaticDir string
	versionJSON    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run:   runVersion,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.yaml or $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host. Overrides config.")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port number. Overrides config.")
	serveCmd.Flags().StringVar(&serveStaticDir, "static-dir", "", "Directory of static UI files. Overrides config.")

	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output in JSON format")

	rootCmd.AddCommand(serveCmd, versionCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithField("version", Version).Info("Starting signalquery")

	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveStaticDir != "" {
		cfg.Server.StaticDir = serveStaticDir
	}

	conn, err := openClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		return err
	}
	defer conn.Close()

	storage, err := NewDuckDBStorage(cfg.Storage.Path, log)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer storage.Close()
	log.WithField("path", cfg.Storage.Path).Info("DuckDB storage initialized")

	facets := NewFacetStore(clickhouseStrings(conn), cfg.Facets, log)
	executor := NewExecutor(cfg.Executor, log)
	if cfg.Executor.URL == "" {
		log.Warn("No executor URL configured, query execution is disabled")
	}

	server := NewServer(storage, facets, executor, conn, log)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: server.Routes(cfg.Server.StaticDir),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log.WithField("address", httpServer.Addr).Info("HTTP server listening")

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// openClickHouse connects to ClickHouse. A failed ping is logged but not
// fatal; facets stay empty until the server becomes reachable.
func openClickHouse(ctx context.Context, cfg ClickHouseConfig) (driver.Conn, error) {
	log.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"database": cfg.Database,
		"user":     cfg.User,
		"password": maskPassword(cfg.Password),
		"secure":   cfg.Secure,
	}).Info("ClickHouse connection details")

	options := &clickhouse.Options{
		Addr: []string{cfg.Host},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: "signalquery", Version: Version},
			},
		},
		Debug: false,
		Settings: clickhouse.Settings{
			"send_logs_level": "none",
		},
	}

	if cfg.Secure {
		options.TLS = &tls.Config{
			InsecureSkipVerify: true,
		}
		log.Info("Using secure connection to ClickHouse (TLS enabled, accepting invalid certificates)")
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("connecting to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		log.WithError(err).Warn("ClickHouse ping failed")
	} else {
		log.Info("Successfully connected to ClickHouse")
	}

	return conn, nil
}

func runVersion(_ *cobra.Command, _ []string) {
	info := map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
	}

	if versionJSON {
		data, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("signalquery version %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
	}
}
