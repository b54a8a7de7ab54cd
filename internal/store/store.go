package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hirewire/interview-core/internal/config"
	"github.com/hirewire/interview-core/internal/session"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Timestamps are stored as TEXT and compared lexicographically, so the
// fractional part must be fixed width. RFC3339Nano drops trailing zeros
// and would sort whole seconds after fractional ones.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Role  string
	State session.State
}

// Store persists sessions keyed by id. Writes are full-session upserts
// executed as a single statement, so readers never observe a session in
// a half-written state. In ephemeral mode sessions are held in memory
// with the same copy semantics.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time

	mu  sync.RWMutex
	mem map[string][]byte
}

// Open initializes the session store according to config.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.Mode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now, mem: make(map[string][]byte)}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("session store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("session store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    role TEXT NOT NULL,
    state TEXT NOT NULL,
    payload BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_role ON sessions(role);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put writes the full session, replacing any previous version with the
// same id. The call is idempotent for equal content.
func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if s.db == nil {
		s.mu.Lock()
		s.mem[sess.ID] = payload
		s.mu.Unlock()
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, role, state, payload, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   state=excluded.state, payload=excluded.payload, updated_at=excluded.updated_at`,
		sess.ID, sess.Role, string(sess.State), payload,
		sess.CreatedAt.UTC().Format(storedTimeLayout),
		sess.UpdatedAt.UTC().Format(storedTimeLayout))
	return err
}

// Get retrieves one session by id.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var payload []byte

	if s.db == nil {
		s.mu.RLock()
		stored, ok := s.mem[id]
		s.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		payload = stored
	} else {
		row := s.db.QueryRowContext(ctx,
			`SELECT payload FROM sessions WHERE session_id = ?`, id)
		if err := row.Scan(&payload); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return nil, err
		}
	}

	var sess session.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if sess.Responses == nil {
		sess.Responses = make(map[int]*session.Response)
	}
	return &sess, nil
}

// List returns summaries of stored sessions, newest first, optionally
// filtered by role and state.
func (s *Store) List(ctx context.Context, filter Filter) ([]session.Summary, error) {
	if s.db == nil {
		return s.listEphemeral(filter)
	}

	query := `SELECT payload FROM sessions`
	var conditions []string
	var args []any
	if filter.Role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, filter.Role)
	}
	if filter.State != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, string(filter.State))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []session.Summary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var sess session.Session
		if err := json.Unmarshal(payload, &sess); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		summaries = append(summaries, sess.Summarize())
	}
	return summaries, rows.Err()
}

func (s *Store) listEphemeral(filter Filter) ([]session.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summaries []session.Summary
	for _, payload := range s.mem {
		var sess session.Session
		if err := json.Unmarshal(payload, &sess); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		if filter.Role != "" && sess.Role != filter.Role {
			continue
		}
		if filter.State != "" && sess.State != filter.State {
			continue
		}
		summaries = append(summaries, sess.Summarize())
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// Prune applies configured retention: sessions older than the retention
// window are dropped, then the newest max_sessions are kept.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE created_at < ?`,
			cutoff.UTC().Format(storedTimeLayout)); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
