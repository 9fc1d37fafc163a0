package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/tuannm99/novarel"
	"github.com/tuannm99/novarel/internal"
	"github.com/tuannm99/novarel/internal/console"
	"github.com/tuannm99/novarel/internal/export"
	"github.com/tuannm99/novarel/sqlclient"
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "path to YAML config file")
		dataDir    = flag.String("data-dir", "", "open the database in-process from this directory (overrides storage.workdir)")
		addr       = flag.String("addr", "", "connect to a novarel server instead of opening the database in-process")
		timeout    = flag.Duration("timeout", 3*time.Second, "dial timeout")
		histPath   = flag.String("history", console.DefaultHistoryPath(), "history file path")
		histMax    = flag.Int("history-max", 2000, "max history lines loaded into memory")
		oneShotSQL = flag.String("c", "", "execute the given statements and exit")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		fatalf("config: %v", err)
	}
	// keep engine logs out of the prompt unless asked for
	level := cfg.LogLevel()
	if level < slog.LevelWarn && !cfg.Server.Debug {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	backend, banner, closeFn := openBackend(cfg, *dataDir, *addr, *timeout)
	defer func() {
		if err := closeFn(); err != nil {
			fmt.Fprintf(os.Stderr, "close: %v\n", err)
		}
	}()

	h := console.NewHistory(*histPath)
	if err := h.Load(*histMax); err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
	}

	c := console.New(backend, os.Stdout, h)
	c.ExportOptions = exportOptions(cfg)

	if strings.TrimSpace(*oneShotSQL) != "" {
		sql := strings.TrimSpace(*oneShotSQL)
		if !strings.HasSuffix(sql, ";") {
			sql += ";"
		}
		c.Feed(sql)
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.Prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fatalf("readline: %v", err)
	}
	defer func() { _ = rl.Close() }()

	fmt.Println(banner)
	fmt.Println("type HELP for help, EXIT to quit")

	if err := c.Run(rl); err != nil {
		fatalf("console: %v", err)
	}
}

func openBackend(cfg *internal.NovarelConfig, dataDir, addr string, timeout time.Duration) (console.Backend, string, func() error) {
	if addr != "" {
		cli, err := sqlclient.Dial(addr, timeout)
		if err != nil {
			fatalf("dial: %v", err)
		}
		return cli, fmt.Sprintf("connected to %s", addr), cli.Close
	}

	if dataDir == "" {
		dataDir = cfg.Storage.Workdir
	}
	db, err := novarel.Open(dataDir)
	if err != nil {
		fatalf("open database: %v", err)
	}
	return db, fmt.Sprintf("novarel (embedded) data directory: %s", dataDir), db.Close
}

func exportOptions(cfg *internal.NovarelConfig) export.DumpOptions {
	opts := export.NewDumpOptions()
	if f, err := export.ParseFormat(cfg.Export.Format); err == nil {
		opts = opts.WithFormat(f)
	} else {
		fmt.Fprintf(os.Stderr, "export: %v, using csv\n", err)
	}
	if c, err := export.ParseCompression(cfg.Export.Compression); err == nil {
		opts = opts.WithCompression(c)
	} else {
		fmt.Fprintf(os.Stderr, "export: %v, using no compression\n", err)
	}
	return opts
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
