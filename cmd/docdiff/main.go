// CLAUDE:SUMMARY CLI entry point for docdiff: one-shot compare, HTTP server, or MCP over stdio.
// Command docdiff compares two versions of a PDF.
//
// Usage:
//
//	docdiff compare [-config docdiff.yaml] [-keep] original.pdf modified.pdf
//	docdiff serve   [-config docdiff.yaml] [-addr :8090]
//	docdiff mcp     [-config docdiff.yaml]
//
// Environment: DOCDIFF_CONFIG, DOCDIFF_SCRATCH, LOG_LEVEL, PORT.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docdiff/compare"
	"github.com/hazyhaar/docdiff/kit"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", env("DOCDIFF_CONFIG", ""), "path to docdiff.yaml config file")
	logLevel := fs.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	keep := fs.Bool("keep", false, "compare: keep the request workspace (annotated output)")
	addr := fs.String("addr", ":"+env("PORT", "8090"), "serve: listen address")
	fs.Parse(args)

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "compare":
		err = runCompare(ctx, logger, *configPath, *keep, fs.Args())
	case "serve":
		err = runServe(ctx, logger, *configPath, *addr)
	case "mcp":
		err = runMCP(ctx, logger, *configPath)
	case "version":
		fmt.Println("docdiff", version)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("docdiff: fatal", "cmd", cmd, "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  docdiff compare [-config f] [-keep] original.pdf modified.pdf
  docdiff serve   [-config f] [-addr :8090]
  docdiff mcp     [-config f]
  docdiff version`)
}

func newLogger(name string) *slog.Logger {
	var level slog.Level
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig(path string, logger *slog.Logger) (*compare.Config, error) {
	cfg := compare.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = compare.LoadConfigFile(path); err != nil {
			return nil, err
		}
	}
	if dir := os.Getenv("DOCDIFF_SCRATCH"); dir != "" {
		cfg.ScratchDir = dir
	}
	cfg.Logger = logger
	return cfg, nil
}

func runCompare(ctx context.Context, logger *slog.Logger, configPath string, keep bool, files []string) error {
	if len(files) != 2 {
		usage()
		return errors.New("compare needs exactly two files")
	}
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}
	c, err := compare.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var uploads [2]compare.Upload
	for i, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		uploads[i] = compare.Upload{Name: filepath.Base(f), Data: data}
	}

	res := c.Compare(kit.WithTransport(ctx, "cli"), compare.Request{Original: uploads[0], Modified: uploads[1]})
	if !keep {
		defer c.Release(res.RequestID())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if e, ok := res.(*compare.ErrorResult); ok {
		return e.Err()
	}
	return nil
}

func runServe(ctx context.Context, logger *slog.Logger, configPath, addr string) error {
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}
	c, err := compare.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           compare.NewHandler(c),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("docdiff: listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("docdiff: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}
	c, err := compare.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := mcp.NewServer(&mcp.Implementation{Name: "docdiff", Version: version}, nil)
	compare.RegisterMCP(srv, c)
	logger.Info("docdiff: MCP on stdio")
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
