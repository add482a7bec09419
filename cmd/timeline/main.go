package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/abelbrown/timeline/internal/cache"
	"github.com/abelbrown/timeline/internal/config"
	"github.com/abelbrown/timeline/internal/debounce"
	"github.com/abelbrown/timeline/internal/logging"
	"github.com/abelbrown/timeline/internal/netmon"
	"github.com/abelbrown/timeline/internal/repo"
	"github.com/abelbrown/timeline/internal/store"
	"github.com/abelbrown/timeline/internal/stream"
	"github.com/abelbrown/timeline/internal/timeline"
)

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := logging.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
	}
	defer logging.Close()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("failed to load configuration", "error", err)
	}

	dbPath := cfg.Cache.DBPath
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logging.Fatal("failed to create data directory", "error", err)
	}

	// Open store
	st, err := store.Open(dbPath)
	if err != nil {
		logging.Fatal("failed to open database", "path", dbPath, "error", err)
	}
	defer st.Close()

	// Cache manager owns the background eviction sweep
	mgr := cache.NewWithStore(st, cfg.Cache.Interval())
	defer mgr.Close()

	// Connectivity probe against the configured server
	monitor := netmon.NewProbe(cfg.Server.BaseURL)
	monitor.Start(ctx)

	client := stream.New(stream.Config{
		BaseURL:     cfg.Server.BaseURL,
		AccessToken: cfg.Server.AccessToken,
	}, monitor)
	repository := repo.New(client, mgr, monitor)

	// Log connection state transitions as they happen
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-client.States():
				logging.Info("connection state", "kind", s.Kind, "message", s.Message)
			}
		}
	}()

	// Debounced query input from stdin, one edit per line
	deb := debounce.New(cfg.Search.Debounce())
	go deb.Run(ctx)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			deb.Submit(scanner.Text())
		}
		cancel()
	}()

	fmt.Println("type a query and press enter (empty line clears, ctrl-c quits)")

	// Latest query wins: each committed query cancels the previous
	// subscription before the next one starts.
	var stopCurrent context.CancelFunc
	for {
		select {
		case <-ctx.Done():
			if stopCurrent != nil {
				stopCurrent()
			}
			return

		case q, ok := <-deb.Queries():
			if !ok {
				return
			}
			if stopCurrent != nil {
				stopCurrent()
			}
			var qctx context.Context
			qctx, stopCurrent = context.WithCancel(ctx)
			logging.Info("query committed", "query", q.Value(), "empty", q.IsEmpty())
			go render(qctx, q, repository.Timeline(qctx, q))
		}
	}
}

// render prints each reconciled snapshot until the subscription ends.
func render(ctx context.Context, q timeline.SearchQuery, views <-chan []timeline.Item) {
	label := q.Value()
	if q.IsEmpty() {
		label = "(all cached)"
	}
	for {
		select {
		case <-ctx.Done():
			return
		case view, ok := <-views:
			if !ok {
				return
			}
			fmt.Printf("--- %s: %d items ---\n", label, len(view))
			for _, item := range view {
				fmt.Printf("%s  @%s  %s\n",
					item.CreatedAt.Local().Format("15:04:05"),
					item.Account.Username,
					item.Content)
			}
		}
	}
}
