package index

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcherNewFileIndexed(t *testing.T) {
	vault, root := newTestVault(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	ix := New()
	var events []string

	go Watch(ctx, root, logger,
		func() (ChangeReport, error) {
			mu.Lock()
			defer mu.Unlock()
			return Reconcile(ix, vault)
		},
		func(kind string, id int) {
			mu.Lock()
			events = append(events, kind)
			mu.Unlock()
		})

	time.Sleep(100 * time.Millisecond)

	writeNote(t, vault, 1, "watched", "g", "@w")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := ix.Get(1)
		return ok
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created" {
				return true
			}
		}
		return false
	}, "expected created callback")
}

func TestWatcherDeleteRemovesFromIndex(t *testing.T) {
	vault, root := newTestVault(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	writeNote(t, vault, 1, "doomed", "g", "")
	var mu sync.Mutex
	ix := New()
	if _, err := Reconcile(ix, vault); err != nil {
		t.Fatal(err)
	}
	if _, ok := ix.Get(1); !ok {
		t.Fatal("precondition: note should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, root, logger,
		func() (ChangeReport, error) {
			mu.Lock()
			defer mu.Unlock()
			return Reconcile(ix, vault)
		}, nil)
	time.Sleep(100 * time.Millisecond)

	if err := vault.Delete(1); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := ix.Get(1)
		return !ok
	}, "deleted note still in index")
}
