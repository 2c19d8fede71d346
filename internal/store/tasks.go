package store

import (
	"time"

	"github.com/nanogridbot/nanogridbot/internal/rterr"
)

type ScheduleType string

const (
	ScheduleCron     ScheduleType = "cron"
	ScheduleInterval ScheduleType = "interval"
	ScheduleOnce     ScheduleType = "once"
)

type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
)

// Task is spec.md's ScheduledTask.
type Task struct {
	ID             int64        `json:"id"`
	GroupFolder    string       `json:"group_folder"`
	Prompt         string       `json:"prompt"`
	ScheduleType   ScheduleType `json:"schedule_type"`
	ScheduleValue  string       `json:"schedule_value"`
	Status         TaskStatus   `json:"status"`
	NextRun        *time.Time   `json:"next_run,omitempty"`
	ContextMode    string       `json:"context_mode"`
	TargetChatJID  string       `json:"target_chat_jid,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// SaveTask inserts a new task (ID==0) or updates all mutable columns of an
// existing one.
func (s *Store) SaveTask(t *Task) error {
	if t.ID == 0 {
		res, err := s.db.Exec(`
			INSERT INTO tasks (group_folder, prompt, schedule_type, schedule_value, status, next_run, context_mode, target_chat_jid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.GroupFolder, t.Prompt, string(t.ScheduleType), t.ScheduleValue, string(t.Status), t.NextRun, t.ContextMode, nullableString(t.TargetChatJID))
		if err != nil {
			return rterr.New(rterr.Database, "save task", err)
		}
		id, _ := res.LastInsertId()
		t.ID = id
		return nil
	}

	_, err := s.db.Exec(`
		UPDATE tasks SET group_folder=?, prompt=?, schedule_type=?, schedule_value=?,
			status=?, next_run=?, context_mode=?, target_chat_jid=?
		WHERE id = ?`,
		t.GroupFolder, t.Prompt, string(t.ScheduleType), t.ScheduleValue, string(t.Status), t.NextRun, t.ContextMode, nullableString(t.TargetChatJID), t.ID)
	if err != nil {
		return rterr.New(rterr.Database, "update task", err)
	}
	return nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var t Task
	var scheduleType, status, contextMode string
	var targetChatJID *string
	if err := scanner.Scan(&t.ID, &t.GroupFolder, &t.Prompt, &scheduleType, &t.ScheduleValue,
		&status, &t.NextRun, &contextMode, &targetChatJID, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ScheduleType = ScheduleType(scheduleType)
	t.Status = TaskStatus(status)
	t.ContextMode = contextMode
	if targetChatJID != nil {
		t.TargetChatJID = *targetChatJID
	}
	return &t, nil
}

const taskColumns = `id, group_folder, prompt, schedule_type, schedule_value, status, next_run, context_mode, target_chat_jid, created_at`

func (s *Store) GetTask(id int64) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, rterr.New(rterr.Database, "get task", err)
	}
	return t, nil
}

// GetDueTasks returns active tasks whose next_run is at or before now,
// ordered ascending by next_run.
func (s *Store) GetDueTasks(now time.Time) ([]Task, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE status = 'active' AND next_run IS NOT NULL AND next_run <= ?
		ORDER BY next_run ASC`, now)
	if err != nil {
		return nil, rterr.New(rterr.Database, "get due tasks", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, rterr.New(rterr.Database, "scan task", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) ListTasksForGroup(groupFolder string) ([]Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks WHERE group_folder = ? ORDER BY created_at`, groupFolder)
	if err != nil {
		return nil, rterr.New(rterr.Database, "list tasks for group", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, rterr.New(rterr.Database, "scan task", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTaskStatus(id int64, status TaskStatus) error {
	_, err := s.db.Exec(`UPDATE tasks SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return rterr.New(rterr.Database, "update task status", err)
	}
	return nil
}

// UpdateNextRun advances next_run (nil clears it) without touching status.
func (s *Store) UpdateNextRun(id int64, nextRun *time.Time) error {
	_, err := s.db.Exec(`UPDATE tasks SET next_run = ? WHERE id = ?`, nextRun, id)
	if err != nil {
		return rterr.New(rterr.Database, "update next run", err)
	}
	return nil
}

func (s *Store) DeleteTask(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return rterr.New(rterr.Database, "delete task", err)
	}
	return nil
}
