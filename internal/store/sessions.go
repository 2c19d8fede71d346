package store

import (
	"time"

	"github.com/nanogridbot/nanogridbot/internal/rterr"
)

// WorkspaceSession remembers the sandbox's own conversation/session id for a
// group folder so the WorkspaceQueue can pass it to the next sandbox
// invocation for that folder and resume context across invocations.
type WorkspaceSession struct {
	GroupFolder string    `json:"group_folder"`
	SessionID   string    `json:"session_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Store) SaveSession(sess *WorkspaceSession) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (group_folder, session_id, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(group_folder) DO UPDATE SET
			session_id = excluded.session_id,
			updated_at = CURRENT_TIMESTAMP`,
		sess.GroupFolder, sess.SessionID)
	if err != nil {
		return rterr.New(rterr.Database, "save session", err)
	}
	return nil
}

func (s *Store) GetSession(groupFolder string) (*WorkspaceSession, error) {
	row := s.db.QueryRow(`SELECT group_folder, session_id, updated_at FROM sessions WHERE group_folder = ?`, groupFolder)
	var sess WorkspaceSession
	if err := row.Scan(&sess.GroupFolder, &sess.SessionID, &sess.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, rterr.New(rterr.Database, "get session", err)
	}
	return &sess, nil
}

func (s *Store) DeleteSession(groupFolder string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE group_folder = ?`, groupFolder)
	if err != nil {
		return rterr.New(rterr.Database, "delete session", err)
	}
	return nil
}
