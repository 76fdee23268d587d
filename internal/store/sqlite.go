package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"canopy/internal/model"

	_ "modernc.org/sqlite"
)

const sqliteFileName = "canopy.sqlite"

func (s Store) sqlitePath() string {
	return filepath.Join(filepath.Clean(s.Dir), sqliteFileName)
}

// HasDatabase reports whether the state database was created already.
func (s Store) HasDatabase() bool {
	if strings.TrimSpace(s.Dir) == "" {
		return false
	}
	fi, err := os.Stat(s.sqlitePath())
	return err == nil && !fi.IsDir()
}

func (s Store) openSQLite(ctx context.Context) (*sql.DB, error) {
	if strings.TrimSpace(s.Dir) == "" {
		return nil, errors.New("store: dir is empty")
	}
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", s.sqlitePath())
	if err != nil {
		return nil, err
	}
	// WAL enables one writer + many readers; busy_timeout helps avoid "database is locked" flakiness.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tree_state (
			session_id TEXT NOT NULL,
			tree_id TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL,
			PRIMARY KEY(session_id, tree_id)
		);`,
		`CREATE TABLE IF NOT EXISTS tree_activity (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			tree_id TEXT NOT NULL,
			type TEXT NOT NULL,
			item_id TEXT NOT NULL,
			at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tree_activity_at ON tree_activity(at_unixms);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// persisted form of the tree_state json column
type treeStateRow struct {
	Selected []string `json:"selected"`
	Expanded []string `json:"expanded"`
	Custom   string   `json:"custom,omitempty"`
}

// SaveTreeState replaces the stored state of st.TreeID for st.SessionID.
func (s Store) SaveTreeState(ctx context.Context, st model.TreeState) error {
	st.SessionID = strings.TrimSpace(st.SessionID)
	st.TreeID = strings.TrimSpace(st.TreeID)
	if st.SessionID == "" || st.TreeID == "" {
		return errors.New("store: tree state needs a session id and a tree id")
	}
	db, err := s.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	raw, err := json.Marshal(treeStateRow{Selected: st.Selected, Expanded: st.Expanded, Custom: st.Custom})
	if err != nil {
		return err
	}
	at := st.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO tree_state(session_id, tree_id, json, updated_at_unixms) VALUES(?, ?, ?, ?)`,
		st.SessionID, st.TreeID, string(raw), at.UTC().UnixMilli())
	return err
}

// LoadTreeState returns the stored state, or false when there is none.
func (s Store) LoadTreeState(ctx context.Context, sessionID, treeID string) (model.TreeState, bool, error) {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return model.TreeState{}, false, err
	}
	defer db.Close()

	var raw string
	var ms int64
	err = db.QueryRowContext(ctx, `SELECT json, updated_at_unixms FROM tree_state WHERE session_id = ? AND tree_id = ?`,
		strings.TrimSpace(sessionID), strings.TrimSpace(treeID)).Scan(&raw, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TreeState{}, false, nil
	}
	if err != nil {
		return model.TreeState{}, false, err
	}
	st, err := decodeTreeState(sessionID, treeID, raw, ms)
	if err != nil {
		return model.TreeState{}, false, err
	}
	return st, true, nil
}

// ListTreeStates lists stored states, newest first. An empty sessionID lists every session.
func (s Store) ListTreeStates(ctx context.Context, sessionID string) ([]model.TreeState, error) {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	q := `SELECT session_id, tree_id, json, updated_at_unixms FROM tree_state`
	var rows *sql.Rows
	if sid := strings.TrimSpace(sessionID); sid != "" {
		rows, err = db.QueryContext(ctx, q+` WHERE session_id = ? ORDER BY updated_at_unixms DESC, tree_id ASC`, sid)
	} else {
		rows, err = db.QueryContext(ctx, q+` ORDER BY updated_at_unixms DESC, session_id ASC, tree_id ASC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TreeState
	for rows.Next() {
		var sid, tid, raw string
		var ms int64
		if err := rows.Scan(&sid, &tid, &raw, &ms); err != nil {
			return nil, err
		}
		st, err := decodeTreeState(sid, tid, raw, ms)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func decodeTreeState(sessionID, treeID, raw string, ms int64) (model.TreeState, error) {
	var row treeStateRow
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return model.TreeState{}, err
	}
	return model.TreeState{
		SessionID: sessionID,
		TreeID:    treeID,
		Selected:  row.Selected,
		Expanded:  row.Expanded,
		Custom:    row.Custom,
		UpdatedAt: time.UnixMilli(ms).UTC(),
	}, nil
}

// DeleteSession removes the stored tree states of sessionID and reports how
// many were removed. Activity is kept.
func (s Store) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return 0, errors.New("store: session id is empty")
	}
	db, err := s.openSQLite(ctx)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	res, err := db.ExecContext(ctx, `DELETE FROM tree_state WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, NotFoundError{Kind: "session", ID: sessionID}
	}
	return int(n), nil
}

// AppendActivity stores a, filling in the id and timestamp when missing.
func (s Store) AppendActivity(ctx context.Context, a model.Activity) (model.Activity, error) {
	a.Type = strings.TrimSpace(a.Type)
	if a.Type == "" {
		return model.Activity{}, errors.New("store: activity type is empty")
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	if strings.TrimSpace(a.ID) == "" {
		a.ID = ulid.MustNew(ulid.Timestamp(a.At), ulid.DefaultEntropy()).String()
	}
	db, err := s.openSQLite(ctx)
	if err != nil {
		return model.Activity{}, err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `INSERT INTO tree_activity(id, session_id, tree_id, type, item_id, at_unixms) VALUES(?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.TreeID, a.Type, a.ItemID, a.At.UTC().UnixMilli())
	if err != nil {
		return model.Activity{}, err
	}
	return a, nil
}

type ActivityFilter struct {
	SessionID string
	TreeID    string
	// Limit keeps the newest entries; 0 means all.
	Limit int
}

// ReadActivity returns matching activity, oldest first.
func (s Store) ReadActivity(ctx context.Context, f ActivityFilter) ([]model.Activity, error) {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	q := `SELECT id, session_id, tree_id, type, item_id, at_unixms FROM tree_activity WHERE 1 = 1`
	var args []any
	if v := strings.TrimSpace(f.SessionID); v != "" {
		q += ` AND session_id = ?`
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.TreeID); v != "" {
		q += ` AND tree_id = ?`
		args = append(args, v)
	}
	q += ` ORDER BY at_unixms DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var a model.Activity
		var ms int64
		if err := rows.Scan(&a.ID, &a.SessionID, &a.TreeID, &a.Type, &a.ItemID, &ms); err != nil {
			return nil, err
		}
		a.At = time.UnixMilli(ms).UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
