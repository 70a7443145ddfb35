package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"liverun/internal/cli/config"
	httpclient "liverun/internal/cli/http"
	"liverun/internal/cli/repl"
	"liverun/internal/cli/runnerclient"

	"github.com/chzyer/readline"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override server base URL")
	timeout := flag.Duration("timeout", 0, "Override dial/HTTP timeout (e.g. 10s)")
	lang := flag.String("lang", "", "Language for -file or the default for run")
	file := flag.String("file", "", "Run this file once with stdin attached, then exit with its code")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *lang != "" {
		cfg.Language = *lang
	}

	if *file != "" {
		os.Exit(runOnce(cfg, *file))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "^D",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init terminal failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	session := repl.New(httpclient.New(cfg.BaseURL, cfg.Timeout), cfg, rl)
	if err := session.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func runOnce(cfg config.Config, path string) int {
	if cfg.Language == "" {
		fmt.Fprintln(os.Stderr, "-lang is required with -file")
		return 2
	}
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read source failed: %v\n", err)
		return 1
	}
	url, err := config.SessionURL(cfg.BaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	c, err := runnerclient.Dial(dialCtx, url, nil)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer func() { _ = c.Close() }()

	res, err := runnerclient.RunOnce(ctx, c, cfg.Language, string(source), os.Stdin,
		runnerclient.Output{Stdout: os.Stdout, Stderr: os.Stderr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if res.Exit.Reason != "" {
		fmt.Fprintf(os.Stderr, "[%s]\n", res.Exit.Reason)
	}
	// Shells cannot carry negative statuses.
	if code := res.Code(); code >= 0 && code < 256 {
		return code
	}
	return 1
}
