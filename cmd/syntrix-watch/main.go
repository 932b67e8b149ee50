// Command syntrix-watch live-tails a query against a Syntrix backend:
// it wires the local store, the WebSocket remote store, the sync engine
// and the event manager together and prints every snapshot.
//
// Usage:
//
//	syntrix-watch [-config config.yml] [-limit n] [-order field] collection
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/syntrixbase/syntrix-go/internal/auth"
	"github.com/syntrixbase/syntrix-go/internal/config"
	"github.com/syntrixbase/syntrix-go/internal/events"
	"github.com/syntrixbase/syntrix-go/internal/local"
	"github.com/syntrixbase/syntrix-go/internal/local/pebblecache"
	"github.com/syntrixbase/syntrix-go/internal/logging"
	"github.com/syntrixbase/syntrix-go/internal/remote/wsremote"
	"github.com/syntrixbase/syntrix-go/internal/sync"
	"github.com/syntrixbase/syntrix-go/internal/worker"
	"github.com/syntrixbase/syntrix-go/pkg/model"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "syntrix-watch:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yml", "configuration file")
	orderBy := flag.String("order", "", "order results by this field")
	limit := flag.Int("limit", 0, "limit the result set")
	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("usage: syntrix-watch [flags] <collection>")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	closeLogs := logging.Initialize(cfg.Logging)
	defer func() { _ = closeLogs() }()

	creds, err := auth.NewTokenProvider(cfg.Remote.Token)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	initialUser, err := auth.UserFromToken(cfg.Remote.Token)
	if err != nil {
		return err
	}

	var cache local.DocumentCache
	if cfg.Cache.Persistent {
		pebble, err := pebblecache.Open(cfg.Cache.Pebble)
		if err != nil {
			return err
		}
		defer func() { _ = pebble.Close() }()
		cache = pebble
	} else {
		cache = local.NewMemoryCache()
	}

	wq := worker.NewQueue()
	defer wq.Close()

	store := local.NewMemoryStore(cache, initialUser)
	remoteStore := wsremote.New(cfg.Remote.Config, creds, store, wq)
	engine := sync.New(store, remoteStore, initialUser)
	remoteStore.SetCallback(engine)

	manager := events.New(engine)
	engine.SetCallback(manager)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := remoteStore.Start(ctx); err != nil {
		return err
	}
	defer remoteStore.Stop()

	// The provider replays the current user on registration; only real
	// changes should restart the streams.
	initialNotify := true
	creds.SetChangeListener(func(user auth.User) {
		if initialNotify {
			initialNotify = false
			return
		}
		wq.Enqueue(func() { engine.HandleCredentialChange(user) })
	})

	q := model.NewQuery(flag.Arg(0))
	if *orderBy != "" {
		q = q.OrderedBy(*orderBy, false)
	}
	if *limit > 0 {
		q = q.WithLimit(*limit)
	}

	listener := events.NewQueryListener(q, printSnapshot)
	errCh := make(chan error, 1)
	wq.Enqueue(func() {
		errCh <- manager.AddQueryListener(listener)
	})
	if err := <-errCh; err != nil {
		return err
	}

	slog.Info("Watching", "query", q.CanonicalID())
	<-ctx.Done()

	wq.Enqueue(func() {
		if err := manager.RemoveQueryListener(listener); err != nil {
			slog.Warn("Remove listener", "err", err)
		}
	})
	wq.Await()
	return nil
}

func printSnapshot(snapshot *sync.ViewSnapshot, err error) {
	if err != nil {
		fmt.Printf("listen failed: %v\n", err)
		return
	}
	state := "synced"
	if snapshot.FromCache {
		state = "cache"
	}
	fmt.Printf("-- %d document(s) [%s]\n", snapshot.Documents.Len(), state)
	for _, change := range snapshot.Changes {
		fmt.Printf("   %-8s %s\n", change.Type, change.Doc.Key())
	}
}
