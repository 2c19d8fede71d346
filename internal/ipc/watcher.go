package ipc

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// Dispatcher is the minimal channel-adapter contract the watcher needs to
// deliver decoded IPC text to a chat. Concrete adapters implement this.
type Dispatcher interface {
	OwnsJID(jid string) bool
	SendMessage(ctx context.Context, jid, text string) error
}

const defaultPollInterval = 500 * time.Millisecond

// Watcher polls per-workspace IPC output directories, dispatches decoded
// text to the owning channel adapter, and deletes each file after it is
// read exactly once.
type Watcher struct {
	DataDir      string
	PollInterval time.Duration
	Adapters     []Dispatcher

	mu      sync.Mutex
	pollers map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewWatcher(dataDir string, pollInterval time.Duration, adapters []Dispatcher) *Watcher {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Watcher{
		DataDir:      dataDir,
		PollInterval: pollInterval,
		Adapters:     adapters,
		pollers:      make(map[string]context.CancelFunc),
	}
}

// Watch starts a poller for jid if one is not already running. Idempotent.
func (w *Watcher) Watch(jid string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pollers[jid]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.pollers[jid] = cancel
	w.wg.Add(1)
	go w.pollLoop(ctx, jid)
}

// Stop transitions all pollers to terminate at their next sleep boundary and
// waits for them to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for _, cancel := range w.pollers {
		cancel()
	}
	w.pollers = make(map[string]context.CancelFunc)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) pollLoop(ctx context.Context, jid string) {
	defer w.wg.Done()
	outDir := filepath.Join(w.DataDir, "ipc", jid, "output")

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx, jid, outDir)
		}
	}
}

func (w *Watcher) drain(ctx context.Context, jid, outDir string) {
	names, err := ListReady(outDir)
	if err != nil {
		slog.Warn("ipc watcher list failed", "jid", jid, "error", err)
		return
	}

	for _, name := range names {
		data, err := ReadAndRemove(outDir, name)
		if err != nil {
			slog.Warn("ipc watcher read failed", "jid", jid, "file", name, "error", err)
			continue
		}
		text := ExtractText(data)
		w.dispatch(ctx, jid, text)
	}
}

func (w *Watcher) dispatch(ctx context.Context, jid, text string) {
	for _, a := range w.Adapters {
		if a.OwnsJID(jid) {
			if err := a.SendMessage(ctx, jid, text); err != nil {
				slog.Warn("ipc watcher dispatch failed", "jid", jid, "error", err)
			}
			return
		}
	}
	slog.Warn("ipc watcher: no adapter owns jid", "jid", jid)
}
