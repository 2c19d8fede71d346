package store

import (
	"time"

	"github.com/nanogridbot/nanogridbot/internal/rterr"
)

// Group is the workspace binding registered against a chat jid (spec.md's
// RegisteredGroup). Folder must be a single path component, never "..".
type Group struct {
	JID             string    `json:"jid"`
	Name            string    `json:"name"`
	Folder          string    `json:"folder"`
	TriggerPattern  string    `json:"trigger_pattern,omitempty"`
	ContainerConfig string    `json:"container_config,omitempty"` // opaque JSON attribute bag
	RequiresTrigger bool      `json:"requires_trigger"`
	IsMain          bool      `json:"is_main"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s *Store) SaveGroup(g *Group) error {
	_, err := s.db.Exec(`
		INSERT INTO groups (jid, name, folder, trigger_pattern, container_config, requires_trigger, is_main, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(jid) DO UPDATE SET
			name = excluded.name,
			folder = excluded.folder,
			trigger_pattern = excluded.trigger_pattern,
			container_config = excluded.container_config,
			requires_trigger = excluded.requires_trigger,
			is_main = excluded.is_main,
			updated_at = CURRENT_TIMESTAMP`,
		g.JID, g.Name, g.Folder, nullableString(g.TriggerPattern), nullableString(g.ContainerConfig), g.RequiresTrigger, g.IsMain)
	if err != nil {
		return rterr.New(rterr.Database, "save group", err)
	}
	return nil
}

func scanGroup(scanner interface{ Scan(dest ...any) error }) (*Group, error) {
	var g Group
	var trigger, cc *string
	if err := scanner.Scan(&g.JID, &g.Name, &g.Folder, &trigger, &cc, &g.RequiresTrigger, &g.IsMain, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	if trigger != nil {
		g.TriggerPattern = *trigger
	}
	if cc != nil {
		g.ContainerConfig = *cc
	}
	return &g, nil
}

func (s *Store) GetGroup(jid string) (*Group, error) {
	row := s.db.QueryRow(`
		SELECT jid, name, folder, trigger_pattern, container_config, requires_trigger, is_main, created_at, updated_at
		FROM groups WHERE jid = ?`, jid)
	g, err := scanGroup(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, rterr.New(rterr.Database, "get group", err)
	}
	return g, nil
}

func (s *Store) ListGroups() ([]Group, error) {
	rows, err := s.db.Query(`
		SELECT jid, name, folder, trigger_pattern, container_config, requires_trigger, is_main, created_at, updated_at
		FROM groups ORDER BY created_at`)
	if err != nil {
		return nil, rterr.New(rterr.Database, "list groups", err)
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, rterr.New(rterr.Database, "scan group", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (s *Store) DeleteGroup(jid string) error {
	_, err := s.db.Exec(`DELETE FROM groups WHERE jid = ?`, jid)
	if err != nil {
		return rterr.New(rterr.Database, "delete group", err)
	}
	return nil
}
