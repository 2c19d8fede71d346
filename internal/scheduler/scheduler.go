// Package scheduler evaluates cron/interval/once schedules, enqueues due
// tasks into the WorkspaceQueue, advances next_run, and retires one-shots.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nanogridbot/nanogridbot/internal/store"
)

// Enqueuer is the subset of queue.Queue the scheduler needs.
type Enqueuer interface {
	EnqueueTask(jid, workspaceFolder, chatJID string, isMain bool, task store.Task)
}

type Scheduler struct {
	store        *store.Store
	queue        Enqueuer
	tickInterval time.Duration

	stopped atomic.Bool
	done    chan struct{}
}

func New(st *store.Store, q Enqueuer, tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = 60 * time.Second
	}
	return &Scheduler{
		store:        st,
		queue:        q,
		tickInterval: tickInterval,
		done:         make(chan struct{}),
	}
}

// Start runs the background tick loop until ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		if s.stopped.Load() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Stop flips the shared flag each loop iteration checks between sleeps.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

func (s *Scheduler) tick() {
	tasks, err := s.store.GetDueTasks(time.Now().UTC())
	if err != nil {
		slog.Error("scheduler: get due tasks failed", "error", err)
		return
	}

	for _, task := range tasks {
		s.fire(task)
	}
}

func (s *Scheduler) fire(task store.Task) {
	jid := task.TargetChatJID
	if jid == "" {
		jid = "task:" + task.GroupFolder
	}

	s.queue.EnqueueTask(jid, task.GroupFolder, jid, false, task)

	if task.ScheduleType == store.ScheduleOnce {
		if err := s.store.UpdateTaskStatus(task.ID, store.TaskCompleted); err != nil {
			slog.Error("scheduler: complete once task failed", "id", task.ID, "error", err)
		}
		return
	}

	next, err := nextRun(task.ScheduleType, task.ScheduleValue, time.Now().UTC())
	if err != nil {
		slog.Error("scheduler: compute next_run failed", "id", task.ID, "error", err)
		return
	}
	if err := s.store.UpdateNextRun(task.ID, next); err != nil {
		slog.Error("scheduler: advance next_run failed", "id", task.ID, "error", err)
	}
}

// Schedule persists task with a freshly computed next_run and status=active.
func (s *Scheduler) Schedule(task *store.Task) error {
	next, err := nextRun(task.ScheduleType, task.ScheduleValue, time.Now().UTC())
	if err != nil {
		return err
	}
	task.NextRun = next
	task.Status = store.TaskActive
	return s.store.SaveTask(task)
}

func (s *Scheduler) Cancel(id int64) error {
	return s.store.DeleteTask(id)
}

func (s *Scheduler) Pause(id int64) error {
	return s.store.UpdateTaskStatus(id, store.TaskPaused)
}

// Resume reactivates a paused task and recomputes next_run.
func (s *Scheduler) Resume(id int64) error {
	task, err := s.store.GetTask(id)
	if err != nil {
		return err
	}
	if task == nil {
		return nil
	}
	next, err := nextRun(task.ScheduleType, task.ScheduleValue, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := s.store.UpdateNextRun(id, next); err != nil {
		return err
	}
	return s.store.UpdateTaskStatus(id, store.TaskActive)
}
