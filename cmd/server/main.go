package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tuannm99/novarel"
	"github.com/tuannm99/novarel/internal"
	"github.com/tuannm99/novarel/server/httpapi"
	"github.com/tuannm99/novarel/server/novarelwire"
)

func main() {
	var (
		cfgPath  = flag.String("config", "", "path to YAML config file")
		workDir  = flag.String("data-dir", "", "working directory for table files (overrides storage.workdir)")
		addr     = flag.String("addr", "", "TCP wire address (overrides server.addr)")
		httpAddr = flag.String("http-addr", "", "HTTP address, empty string from config disables it (overrides server.http_addr)")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *workDir != "" {
		cfg.Storage.Workdir = *workDir
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}

	slog.SetDefault(slog.New(newHandler(os.Stderr, cfg)))

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newHandler(w io.Writer, cfg *internal.NovarelConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func run(cfg *internal.NovarelConfig) error {
	db, err := novarel.Open(cfg.Storage.Workdir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("close database", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("novarel started", "app", cfg.AppName, "workdir", cfg.Storage.Workdir, "tables", len(db.ListTables()))

	g, ctx := errgroup.WithContext(ctx)

	wire := novarelwire.NewServer(db)
	wire.ValidateSQL = cfg.Security.ValidateSQL
	wire.MaxSQLLength = cfg.Security.MaxSQLLength
	g.Go(func() error { return wire.ListenAndServe(ctx, cfg.Server.Addr) })

	if cfg.Server.HTTPAddr != "" {
		api := httpapi.New(db, httpapi.Config{
			ValidateSQL:  cfg.Security.ValidateSQL,
			MaxSQLLength: cfg.Security.MaxSQLLength,
		})
		g.Go(func() error { return api.ListenAndServe(ctx, cfg.Server.HTTPAddr) })
	}

	err = g.Wait()
	slog.Info("shutting down")
	return err
}
