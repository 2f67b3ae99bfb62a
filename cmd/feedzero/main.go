package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"feedzero/internal/config"
	"feedzero/internal/fetch"
	"feedzero/internal/ingest"
	"feedzero/internal/model"
	"feedzero/internal/rules"
	"feedzero/internal/scheduler"
	"feedzero/internal/slug"
	"feedzero/internal/states"
	"feedzero/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	fetcher := fetch.New(http.DefaultClient, cfg.FetchTimeout)
	ingestor := ingest.New(store, fetcher, log)
	machine := states.New(store, log)
	engine := rules.New(store, machine, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var runErr error
	switch cmd := os.Args[1]; cmd {
	case "sync":
		runErr = runSync(ctx, store, ingestor, os.Args[2:])
	case "rules":
		runErr = runRules(ctx, engine, os.Args[2:])
	case "watch":
		sched := scheduler.New(ingestor, engine, log)
		sched.SetTickInterval(cfg.PollInterval)
		log.Info("watching feeds", "interval", cfg.PollInterval)
		sched.Run(ctx)
	case "addfeed":
		runErr = runAddFeed(ctx, store, os.Args[2:])
	case "adduser":
		runErr = runAddUser(ctx, store, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if runErr != nil {
		log.Error("command failed", "command", os.Args[1], "error", runErr)
		os.Exit(1)
	}
}

func runSync(ctx context.Context, store storage.Storage, ingestor *ingest.Service, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	feedID := fs.Int64("feed", 0, "sync a single feed by id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *feedID != 0 {
		feed, err := store.GetFeed(ctx, *feedID)
		if err != nil {
			return fmt.Errorf("get feed %d: %w", *feedID, err)
		}
		return ingestor.SyncFeed(ctx, *feed)
	}
	return ingestor.SyncAll(ctx)
}

func runRules(ctx context.Context, engine *rules.Engine, args []string) error {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	userID := fs.Int64("user", 0, "process rules for a single user by id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *userID != 0 {
		return engine.ProcessUser(ctx, *userID)
	}
	return engine.ProcessAll(ctx)
}

func runAddFeed(ctx context.Context, store storage.Storage, args []string) error {
	fs := flag.NewFlagSet("addfeed", flag.ExitOnError)
	url := fs.String("url", "", "feed document URL (required)")
	title := fs.String("title", "", "feed title (required)")
	disabled := fs.Bool("disabled", false, "register without enabling scraping")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *url == "" || *title == "" {
		return fmt.Errorf("addfeed requires -url and -title")
	}

	feedSlug, err := slug.Make(*title, func(s string) (bool, error) {
		return store.FeedSlugExists(ctx, s)
	})
	if err != nil {
		return fmt.Errorf("build slug: %w", err)
	}

	feed := model.Feed{
		Title:           *title,
		Link:            *url,
		Slug:            feedSlug,
		ScrapingEnabled: !*disabled,
	}
	if err := store.CreateFeed(ctx, &feed); err != nil {
		return fmt.Errorf("create feed: %w", err)
	}
	fmt.Printf("added feed %d (%s)\n", feed.ID, feed.Slug)
	return nil
}

func runAddUser(ctx context.Context, store storage.Storage, args []string) error {
	fs := flag.NewFlagSet("adduser", flag.ExitOnError)
	name := fs.String("name", "", "username (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("adduser requires -name")
	}

	user := model.User{Username: *name, IsActive: true}
	if err := store.CreateUser(ctx, &user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Printf("added user %d (%s)\n", user.ID, user.Username)
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: feedzero <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  sync [-feed id]     Fetch and ingest feeds once")
	fmt.Fprintln(os.Stderr, "  rules [-user id]    Apply stored rules to unread entries")
	fmt.Fprintln(os.Stderr, "  watch               Run the sync+rules cycle on an interval")
	fmt.Fprintln(os.Stderr, "  addfeed -url U -title T [-disabled]")
	fmt.Fprintln(os.Stderr, "                      Register a feed")
	fmt.Fprintln(os.Stderr, "  adduser -name N     Register an active user")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
