// Package orchestrator is the lifecycle owner: it starts and stops all
// subsystems, runs the message-poll loop, and reports health snapshots.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nanogridbot/nanogridbot/internal/channel"
	"github.com/nanogridbot/nanogridbot/internal/eventbus"
	"github.com/nanogridbot/nanogridbot/internal/ipc"
	"github.com/nanogridbot/nanogridbot/internal/mount"
	"github.com/nanogridbot/nanogridbot/internal/queue"
	"github.com/nanogridbot/nanogridbot/internal/rterr"
	"github.com/nanogridbot/nanogridbot/internal/router"
	"github.com/nanogridbot/nanogridbot/internal/scheduler"
	"github.com/nanogridbot/nanogridbot/internal/store"
)

// HealthStatus is the health/websocket payload surfaced at the §6 health
// endpoint.
type HealthStatus struct {
	Healthy            bool  `json:"healthy"`
	ChannelsConnected   int   `json:"channels_connected"`
	ChannelsTotal       int   `json:"channels_total"`
	RegisteredGroups    int   `json:"registered_groups"`
	ActiveContainers    int   `json:"active_containers"`
	PendingTasks        int   `json:"pending_tasks"`
	UptimeSeconds       int64 `json:"uptime_seconds"`
}

// Queue is the subset of queue.Queue the orchestrator depends on.
type Queue interface {
	EnqueueMessage(jid, workspaceFolder, chatJID string, isMain bool, msg queue.PendingMessage)
	ActiveCount() int
	WaitingCount() int
}

type Orchestrator struct {
	store     *store.Store
	router    *router.Router
	sched     *scheduler.Scheduler
	watcher   *ipc.Watcher
	wq        Queue
	adapters  []channel.Adapter
	publisher *eventbus.Publisher
	pollInterval    time.Duration
	retentionMaxAge time.Duration

	mu        sync.RWMutex
	lastSeen  time.Time
	healthy   atomic.Bool
	startedAt time.Time

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// retentionSweepInterval is how often the message-retention sweep runs,
// independent of the (usually much shorter) message-poll interval.
const retentionSweepInterval = time.Hour

func New(st *store.Store, r *router.Router, sched *scheduler.Scheduler, watcher *ipc.Watcher, wq Queue, adapters []channel.Adapter, publisher *eventbus.Publisher, pollInterval, retentionMaxAge time.Duration) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Orchestrator{
		store:           st,
		router:          r,
		sched:           sched,
		watcher:         watcher,
		wq:              wq,
		adapters:        adapters,
		publisher:       publisher,
		pollInterval:    pollInterval,
		retentionMaxAge: retentionMaxAge,
		shutdown:        make(chan struct{}),
	}
}

// Start loads registered groups, seeds the IPC watcher, starts channel
// adapters and the scheduler, marks the service healthy, and kicks off the
// message-poll loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	groups, err := o.store.ListGroups()
	if err != nil {
		return err
	}
	for _, g := range groups {
		o.watcher.Watch(g.JID)
	}

	for _, a := range o.adapters {
		if err := a.Start(ctx); err != nil {
			slog.Error("orchestrator: adapter start failed", "platform", a.Platform(), "error", err)
		}
	}

	go o.sched.Start(ctx)

	o.startedAt = time.Now()
	o.healthy.Store(true)

	o.wg.Add(1)
	go o.runMessageLoop(ctx)

	if o.retentionMaxAge > 0 {
		o.wg.Add(1)
		go o.runRetentionSweep(ctx)
	}

	return nil
}

// Stop flips the shutdown signal, stops the scheduler and the IPC watcher,
// and marks the service unhealthy.
func (o *Orchestrator) Stop(ctx context.Context) {
	close(o.shutdown)
	o.wg.Wait()

	o.sched.Stop()
	o.watcher.Stop()

	for _, a := range o.adapters {
		if err := a.Stop(ctx); err != nil {
			slog.Warn("orchestrator: adapter stop failed", "platform", a.Platform(), "error", err)
		}
	}

	o.healthy.Store(false)
}

func (o *Orchestrator) runMessageLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.shutdown:
			return
		case <-ticker.C:
			o.pollMessages()
		}
	}
}

// runRetentionSweep periodically prunes messages older than retentionMaxAge.
func (o *Orchestrator) runRetentionSweep(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.shutdown:
			return
		case <-ticker.C:
			o.sweepRetention()
		}
	}
}

func (o *Orchestrator) sweepRetention() {
	cutoff := time.Now().UTC().Add(-o.retentionMaxAge)
	n, err := o.store.DeleteOlderThan(cutoff)
	if err != nil {
		slog.Error("orchestrator: retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("orchestrator: retention sweep pruned messages", "count", n, "cutoff", cutoff)
	}
}

// pollMessages reads messages newer than lastSeen, advances lastSeen to the
// maximum observed timestamp, groups by chat, evaluates the last message of
// each chat's burst against the router, and enqueues matches.
func (o *Orchestrator) pollMessages() {
	o.mu.RLock()
	after := o.lastSeen
	o.mu.RUnlock()

	messages, err := o.store.MessagesSince(after)
	if err != nil {
		slog.Error("orchestrator: poll messages failed", "error", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	var maxTS time.Time
	lastByChat := make(map[string]store.Message)
	for _, m := range messages {
		lastByChat[m.ChatJID] = m
		if m.Timestamp.After(maxTS) {
			maxTS = m.Timestamp
		}
	}

	o.mu.Lock()
	if maxTS.After(o.lastSeen) {
		o.lastSeen = maxTS
	}
	o.mu.Unlock()

	for _, m := range lastByChat {
		match, err := o.router.Route(&m)
		if err != nil {
			slog.Error("orchestrator: route failed", "chat_jid", m.ChatJID, "error", err)
			continue
		}
		if match == nil {
			continue
		}

		group, err := o.store.GetGroup(m.ChatJID)
		if err != nil || group == nil {
			continue
		}

		sessionID := "msg-" + strconv.FormatInt(m.Timestamp.UnixMilli(), 10)
		ts := m.Timestamp
		o.wq.EnqueueMessage(match.GroupJID, match.GroupFolder, m.ChatJID, group.IsMain, queue.PendingMessage{
			SessionID:     sessionID,
			LastTimestamp: &ts,
		})
	}
}

// RegisterGroup persists a group and begins watching its jid for IPC
// output. folder must be a single path component and never "..", since it
// is later joined directly into host mount paths.
func (o *Orchestrator) RegisterGroup(g *store.Group) error {
	if !mount.ValidFolder(g.Folder) {
		return rterr.New(rterr.Security, "register group", errors.New("invalid group folder"))
	}
	if err := o.store.SaveGroup(g); err != nil {
		return err
	}
	o.watcher.Watch(g.JID)
	return nil
}

// UnregisterGroup removes a group. The watcher may continue watching its
// jid benignly; its directory simply stays empty.
func (o *Orchestrator) UnregisterGroup(jid string) error {
	return o.store.DeleteGroup(jid)
}

// HealthSnapshot reports the current HealthStatus.
func (o *Orchestrator) HealthSnapshot() HealthStatus {
	connected := 0
	for _, a := range o.adapters {
		if a.Connected() {
			connected++
		}
	}

	groups, _ := o.store.ListGroups()

	var uptime int64
	if !o.startedAt.IsZero() {
		uptime = int64(time.Since(o.startedAt).Seconds())
	}

	return HealthStatus{
		Healthy:           o.healthy.Load(),
		ChannelsConnected: connected,
		ChannelsTotal:     len(o.adapters),
		RegisteredGroups:  len(groups),
		ActiveContainers:  o.wq.ActiveCount(),
		PendingTasks:      o.wq.WaitingCount(),
		UptimeSeconds:     uptime,
	}
}
