package store

import (
	"time"

	"github.com/nanogridbot/nanogridbot/internal/rterr"
)

type ContainerStatus string

const (
	ContainerRunning   ContainerStatus = "running"
	ContainerSucceeded ContainerStatus = "succeeded"
	ContainerFailed    ContainerStatus = "failed"
	ContainerTimedOut  ContainerStatus = "timed_out"
)

// ContainerMetric tracks one container invocation from launch to exit.
type ContainerMetric struct {
	ID          int64
	GroupFolder string
	ChatJID     string
	Status      ContainerStatus
	StartTime   time.Time
	EndTime     *time.Time
	DurationMS  *int64
}

func (s *Store) StartContainerMetric(m *ContainerMetric) error {
	res, err := s.db.Exec(`
		INSERT INTO container_metrics (group_folder, chat_jid, status, start_time)
		VALUES (?, ?, ?, ?)`,
		m.GroupFolder, nullableString(m.ChatJID), string(m.Status), m.StartTime)
	if err != nil {
		return rterr.New(rterr.Database, "start container metric", err)
	}
	id, _ := res.LastInsertId()
	m.ID = id
	return nil
}

// FinishContainerMetric records the terminal status and duration exactly
// once; it is the caller's responsibility not to call this twice per id.
func (s *Store) FinishContainerMetric(id int64, status ContainerStatus, endTime time.Time, durationMS int64) error {
	_, err := s.db.Exec(`
		UPDATE container_metrics SET status = ?, end_time = ?, duration_ms = ? WHERE id = ?`,
		string(status), endTime, durationMS, id)
	if err != nil {
		return rterr.New(rterr.Database, "finish container metric", err)
	}
	return nil
}

// RequestMetric is a lightweight counter row for router/queue-level events
// (messages handled, tasks run, errors), sliced by group and kind.
type RequestMetric struct {
	ID          int64
	GroupFolder string
	Kind        string
	Status      string
	CreatedAt   time.Time
}

func (s *Store) RecordRequestMetric(m *RequestMetric) error {
	_, err := s.db.Exec(`
		INSERT INTO request_metrics (group_folder, kind, status) VALUES (?, ?, ?)`,
		m.GroupFolder, m.Kind, m.Status)
	if err != nil {
		return rterr.New(rterr.Database, "record request metric", err)
	}
	return nil
}

// CountRequestMetrics returns the number of rows for groupFolder/kind with
// the given status since the cutoff.
func (s *Store) CountRequestMetrics(groupFolder, kind, status string, since time.Time) (int64, error) {
	row := s.db.QueryRow(`
		SELECT COUNT(*) FROM request_metrics
		WHERE group_folder = ? AND kind = ? AND status = ? AND created_at >= ?`,
		groupFolder, kind, status, since)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, rterr.New(rterr.Database, "count request metrics", err)
	}
	return n, nil
}
