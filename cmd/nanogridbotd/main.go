package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nanogridbot/nanogridbot/internal/channel"
	"github.com/nanogridbot/nanogridbot/internal/channel/discord"
	"github.com/nanogridbot/nanogridbot/internal/channel/telegram"
	"github.com/nanogridbot/nanogridbot/internal/config"
	"github.com/nanogridbot/nanogridbot/internal/container"
	"github.com/nanogridbot/nanogridbot/internal/eventbus"
	"github.com/nanogridbot/nanogridbot/internal/ipc"
	"github.com/nanogridbot/nanogridbot/internal/mount"
	"github.com/nanogridbot/nanogridbot/internal/orchestrator"
	"github.com/nanogridbot/nanogridbot/internal/queue"
	"github.com/nanogridbot/nanogridbot/internal/router"
	"github.com/nanogridbot/nanogridbot/internal/scheduler"
	"github.com/nanogridbot/nanogridbot/internal/store"
	"github.com/nanogridbot/nanogridbot/internal/webhealth"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("nanogridbotd %s\n", version)
		return
	}

	if err := run(); err != nil {
		slog.Error("nanogridbotd failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfgStore := config.NewStore(cfg)

	slog.Info("starting nanogridbotd", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	bus, err := eventbus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("init eventbus: %w", err)
	}
	defer bus.Close()

	publisher, err := eventbus.NewPublisher(bus)
	if err != nil {
		return fmt.Errorf("init eventbus publisher: %w", err)
	}
	defer publisher.Close()

	validator := mount.New(mount.Roots{
		GroupsDir: cfg.Store.GroupsDir,
		DataDir:   cfg.Store.DataDir,
		StoreDir:  cfg.Store.DataDir,
		BaseDir:   cfg.Store.BaseDir,
	})

	launcher := container.NewLauncher(cfg.Defaults.Image, cfg.Defaults.ContainerRuntime, cfg.Defaults.MemoryLimit, cfg.Defaults.CPULimit, validator, db)

	adapters, err := buildAdapters(cfg, db)
	if err != nil {
		return fmt.Errorf("init channel adapters: %w", err)
	}

	rtr := router.New(db, cfg.Router.AssistantName, asRouterAdapters(adapters))

	wq := queue.New(cfg.Defaults.MaxConcurrent, &launcherAdapter{launcher: launcher, timeout: cfg.Defaults.ContainerTimeout}, db)

	watcher := ipc.NewWatcher(cfg.Store.DataDir, 500*time.Millisecond, asDispatchers(adapters))

	sched := scheduler.New(db, wq, cfg.Scheduler.TickInterval)

	orch := orchestrator.New(db, rtr, sched, watcher, wq, adapters, publisher, 2*time.Second, cfg.Defaults.RetentionMaxAge)

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	if cfg.Web.Enabled {
		srv := webhealth.NewServer(healthAdapter{orch: orch}, publisher, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("webhealth server error", "error", err)
			}
		}()
	}

	_ = cfgStore // reload support is wired through config.Store.Reload on SIGHUP

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if err := cfgStore.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
			} else {
				slog.Info("config reloaded")
			}
			continue
		}
		slog.Info("shutting down", "signal", sig)
		cancel()
		orch.Stop(context.Background())
		return nil
	}
	return nil
}

func buildAdapters(cfg *config.Config, db *store.Store) ([]channel.Adapter, error) {
	var adapters []channel.Adapter

	if cfg.Telegram.Token != "" {
		tg, err := telegram.New(cfg.Telegram, db)
		if err != nil {
			return nil, fmt.Errorf("telegram adapter: %w", err)
		}
		adapters = append(adapters, tg)
	}

	if cfg.Discord.Token != "" {
		dc, err := discord.New(cfg.Discord, db)
		if err != nil {
			return nil, fmt.Errorf("discord adapter: %w", err)
		}
		adapters = append(adapters, dc)
	}

	return adapters, nil
}

func asRouterAdapters(adapters []channel.Adapter) []router.Adapter {
	out := make([]router.Adapter, len(adapters))
	for i, a := range adapters {
		out[i] = a
	}
	return out
}

func asDispatchers(adapters []channel.Adapter) []ipc.Dispatcher {
	out := make([]ipc.Dispatcher, len(adapters))
	for i, a := range adapters {
		out[i] = a
	}
	return out
}

// healthAdapter narrows orchestrator.HealthStatus to the `any` the
// webhealth package's transport-agnostic HealthProvider contract expects.
type healthAdapter struct {
	orch *orchestrator.Orchestrator
}

func (h healthAdapter) HealthSnapshot() any {
	return h.orch.HealthSnapshot()
}

// launcherAdapter narrows container.Launcher to the queue.Launcher
// interface.
type launcherAdapter struct {
	launcher *container.Launcher
	timeout  time.Duration
}

func (a *launcherAdapter) Run(ctx context.Context, groupFolder, prompt, sessionID, chatJID string, isMain bool) (string, string, error) {
	result, err := a.launcher.Run(ctx, container.RunRequest{
		GroupFolder: groupFolder,
		Prompt:      prompt,
		SessionID:   sessionID,
		ChatJID:     chatJID,
		IsMain:      isMain,
		Timeout:     a.timeout,
	})
	if err != nil {
		return "", "", err
	}
	if result.Status == "error" {
		return result.Status, "", fmt.Errorf("%s", result.Error)
	}
	return result.Status, result.NewSessionID, nil
}
