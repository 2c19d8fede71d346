package store

import (
	"time"

	"github.com/nanogridbot/nanogridbot/internal/rterr"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	ID         string    `json:"id"`
	ChatJID    string    `json:"chat_jid"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsFromMe   bool      `json:"is_from_me"`
	Role       Role      `json:"role"`
}

// SaveMessage inserts or replaces a message by id.
func (s *Store) SaveMessage(m *Message) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (id, chat_jid, sender, sender_name, content, timestamp, is_from_me, role)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_jid = excluded.chat_jid,
			sender = excluded.sender,
			sender_name = excluded.sender_name,
			content = excluded.content,
			timestamp = excluded.timestamp,
			is_from_me = excluded.is_from_me,
			role = excluded.role`,
		m.ID, m.ChatJID, m.Sender, nullableString(m.SenderName), m.Content, m.Timestamp, m.IsFromMe, string(m.Role))
	if err != nil {
		return rterr.New(rterr.Database, "save message", err)
	}
	return nil
}

func scanMessage(scanner interface{ Scan(dest ...any) error }) (*Message, error) {
	var m Message
	var senderName *string
	var role string
	if err := scanner.Scan(&m.ID, &m.ChatJID, &m.Sender, &senderName, &m.Content, &m.Timestamp, &m.IsFromMe, &role); err != nil {
		return nil, err
	}
	if senderName != nil {
		m.SenderName = *senderName
	}
	m.Role = Role(role)
	return &m, nil
}

// GetMessage returns the message for id, or nil if not found.
func (s *Store) GetMessage(id string) (*Message, error) {
	row := s.db.QueryRow(`
		SELECT id, chat_jid, sender, sender_name, content, timestamp, is_from_me, role
		FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, rterr.New(rterr.Database, "get message", err)
	}
	return m, nil
}

// MessagesSince returns all messages with timestamp strictly greater than
// after, ordered ascending by timestamp.
func (s *Store) MessagesSince(after time.Time) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_jid, sender, sender_name, content, timestamp, is_from_me, role
		FROM messages WHERE timestamp > ? ORDER BY timestamp ASC`, after)
	if err != nil {
		return nil, rterr.New(rterr.Database, "messages since", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, rterr.New(rterr.Database, "scan message", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// MessagesForChat returns messages for chatJID ordered ascending by timestamp.
func (s *Store) MessagesForChat(chatJID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, chat_jid, sender, sender_name, content, timestamp, is_from_me, role
		FROM messages WHERE chat_jid = ? ORDER BY timestamp ASC LIMIT ?`, chatJID, limit)
	if err != nil {
		return nil, rterr.New(rterr.Database, "messages for chat", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, rterr.New(rterr.Database, "scan message", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes messages whose timestamp is before the cutoff,
// implementing the retention policy.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, rterr.New(rterr.Database, "delete old messages", err)
	}
	return res.RowsAffected()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
