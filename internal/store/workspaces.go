package store

import (
	"time"

	"github.com/nanogridbot/nanogridbot/internal/rterr"
)

type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) SaveWorkspace(w *Workspace) error {
	_, err := s.db.Exec(`
		INSERT INTO workspaces (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		w.ID, w.Name)
	if err != nil {
		return rterr.New(rterr.Database, "save workspace", err)
	}
	return nil
}

func (s *Store) GetWorkspace(id string) (*Workspace, error) {
	row := s.db.QueryRow(`SELECT id, name, created_at FROM workspaces WHERE id = ?`, id)
	var w Workspace
	if err := row.Scan(&w.ID, &w.Name, &w.CreatedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, rterr.New(rterr.Database, "get workspace", err)
	}
	return &w, nil
}

func (s *Store) ListWorkspaces() ([]Workspace, error) {
	rows, err := s.db.Query(`SELECT id, name, created_at FROM workspaces ORDER BY created_at`)
	if err != nil {
		return nil, rterr.New(rterr.Database, "list workspaces", err)
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		var w Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.CreatedAt); err != nil {
			return nil, rterr.New(rterr.Database, "scan workspace", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// AccessToken is an Argon2id-hashed, single-use bootstrap token bound to a
// workspace. The plaintext token is never persisted, only its hash and salt;
// Used flips to true the first time it is redeemed and the redemption is
// rejected thereafter.
type AccessToken struct {
	ID          string    `json:"id"`
	TokenHash   []byte    `json:"-"`
	Salt        []byte    `json:"-"`
	WorkspaceID string    `json:"workspace_id"`
	Used        bool      `json:"used"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) SaveAccessToken(t *AccessToken) error {
	_, err := s.db.Exec(`
		INSERT INTO access_tokens (id, token_hash, salt, workspace_id, used)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.Salt, t.WorkspaceID, t.Used)
	if err != nil {
		return rterr.New(rterr.Database, "save access token", err)
	}
	return nil
}

func (s *Store) GetAccessToken(id string) (*AccessToken, error) {
	row := s.db.QueryRow(`SELECT id, token_hash, salt, workspace_id, used, created_at FROM access_tokens WHERE id = ?`, id)
	var t AccessToken
	if err := row.Scan(&t.ID, &t.TokenHash, &t.Salt, &t.WorkspaceID, &t.Used, &t.CreatedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, rterr.New(rterr.Database, "get access token", err)
	}
	return &t, nil
}

// RedeemAccessToken atomically marks the token used and returns false if it
// had already been redeemed, preventing a second binding from the same token.
func (s *Store) RedeemAccessToken(id string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, rterr.New(rterr.Database, "begin redeem", err)
	}
	defer tx.Rollback()

	var used bool
	if err := tx.QueryRow(`SELECT used FROM access_tokens WHERE id = ?`, id).Scan(&used); err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, rterr.New(rterr.Database, "check access token", err)
	}
	if used {
		return false, nil
	}

	if _, err := tx.Exec(`UPDATE access_tokens SET used = 1 WHERE id = ?`, id); err != nil {
		return false, rterr.New(rterr.Database, "mark access token used", err)
	}
	if err := tx.Commit(); err != nil {
		return false, rterr.New(rterr.Database, "commit redeem", err)
	}
	return true, nil
}

type ChannelBinding struct {
	ChannelJID  string    `json:"channel_jid"`
	WorkspaceID string    `json:"workspace_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) SaveChannelBinding(b *ChannelBinding) error {
	_, err := s.db.Exec(`
		INSERT INTO channel_bindings (channel_jid, workspace_id) VALUES (?, ?)
		ON CONFLICT(channel_jid) DO UPDATE SET workspace_id = excluded.workspace_id`,
		b.ChannelJID, b.WorkspaceID)
	if err != nil {
		return rterr.New(rterr.Database, "save channel binding", err)
	}
	return nil
}

func (s *Store) GetChannelBinding(channelJID string) (*ChannelBinding, error) {
	row := s.db.QueryRow(`SELECT channel_jid, workspace_id, created_at FROM channel_bindings WHERE channel_jid = ?`, channelJID)
	var b ChannelBinding
	if err := row.Scan(&b.ChannelJID, &b.WorkspaceID, &b.CreatedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, rterr.New(rterr.Database, "get channel binding", err)
	}
	return &b, nil
}

func (s *Store) DeleteChannelBinding(channelJID string) error {
	_, err := s.db.Exec(`DELETE FROM channel_bindings WHERE channel_jid = ?`, channelJID)
	if err != nil {
		return rterr.New(rterr.Database, "delete channel binding", err)
	}
	return nil
}
