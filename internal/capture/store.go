package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Reason says why a frame was captured.
type Reason string

const (
	ReasonUnknown Reason = "unknown"
	ReasonDesync  Reason = "desync"
)

// ErrNotFound is returned by Get for a missing capture id.
var ErrNotFound = errors.New("capture not found")

// Record is one captured frame.
type Record struct {
	ID         int64     `json:"id"`
	CapturedAt time.Time `json:"captured_at"`
	SessionID  string    `json:"session_id"`
	Direction  string    `json:"direction"`
	TypeID     uint8     `json:"type_id"`
	Reason     Reason    `json:"reason"`
	Error      string    `json:"error,omitempty"`
	Size       int       `json:"size"`
	Payload    []byte    `json:"payload"`
}

// Truncated reports whether Payload holds less than the original frame.
func (r Record) Truncated() bool {
	return len(r.Payload) < r.Size
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Reason    Reason
	SessionID string
	TypeID    *uint8
	Limit     int
}

// ForType returns a pointer suitable for Filter.TypeID.
func ForType(id uint8) *uint8 {
	return &id
}

// DefaultListLimit caps List when Filter.Limit is zero.
const DefaultListLimit = 100

// Store persists captured frames.
type Store struct {
	db         *Database
	maxPayload int
}

// NewStore opens the capture database at dbPath and migrates its schema.
// Payloads longer than maxPayload bytes are truncated; 0 keeps them whole.
func NewStore(dbPath string, maxPayload int) (*Store, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: database, maxPayload: maxPayload}
	if err := s.migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate capture database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS captures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			captured_at INTEGER NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			direction TEXT NOT NULL DEFAULT '',
			type_id INTEGER NOT NULL,
			reason TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL,
			payload BLOB
		);

		CREATE INDEX IF NOT EXISTS idx_captures_captured_at ON captures(captured_at);
		CREATE INDEX IF NOT EXISTS idx_captures_reason ON captures(reason);
		CREATE INDEX IF NOT EXISTS idx_captures_session ON captures(session_id);
	`

	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("capture schema migrated")
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores rec and returns its id. A zero CapturedAt is set to now.
func (s *Store) Save(ctx context.Context, rec Record) (int64, error) {
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now()
	}
	if rec.Size == 0 {
		rec.Size = len(rec.Payload)
	}
	payload := rec.Payload
	if s.maxPayload > 0 && len(payload) > s.maxPayload {
		payload = payload[:s.maxPayload]
	}

	res, err := s.db.Exec(ctx,
		`INSERT INTO captures (captured_at, session_id, direction, type_id, reason, error, size, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CapturedAt.UnixNano(), rec.SessionID, rec.Direction, int(rec.TypeID),
		string(rec.Reason), rec.Error, rec.Size, payload,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save capture: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read capture id: %w", err)
	}

	log.Debug().
		Int64("id", id).
		Str("session", rec.SessionID).
		Uint8("type", rec.TypeID).
		Str("reason", string(rec.Reason)).
		Msg("frame captured")
	return id, nil
}

const selectColumns = `SELECT id, captured_at, session_id, direction, type_id, reason, error, size, payload FROM captures`

func scanRecord(row interface{ Scan(...interface{}) error }) (Record, error) {
	var (
		rec    Record
		nanos  int64
		typeID int
		reason string
	)
	if err := row.Scan(&rec.ID, &nanos, &rec.SessionID, &rec.Direction, &typeID, &reason, &rec.Error, &rec.Size, &rec.Payload); err != nil {
		return Record{}, err
	}
	rec.CapturedAt = time.Unix(0, nanos)
	rec.TypeID = uint8(typeID)
	rec.Reason = Reason(reason)
	return rec, nil
}

// Get returns a single capture by id.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load capture %d: %w", id, err)
	}
	return rec, nil
}

// List returns captures matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Reason != "" {
		where = append(where, "reason = ?")
		args = append(args, string(f.Reason))
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.TypeID != nil {
		where = append(where, "type_id = ?")
		args = append(args, int(*f.TypeID))
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of stored captures.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM captures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count captures: %w", err)
	}
	return n, nil
}

// CountByReason returns the number of stored captures per reason.
func (s *Store) CountByReason(ctx context.Context) (map[Reason]int, error) {
	rows, err := s.db.Query(ctx, `SELECT reason, COUNT(*) FROM captures GROUP BY reason`)
	if err != nil {
		return nil, fmt.Errorf("failed to count captures: %w", err)
	}
	defer rows.Close()

	out := make(map[Reason]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[Reason(reason)] = n
	}
	return out, rows.Err()
}

// Prune deletes captures older than cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, `DELETE FROM captures WHERE captured_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune captures: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("pruned captures")
	}
	return n, nil
}

// PruneRetention deletes captures older than the given number of days.
func (s *Store) PruneRetention(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	return s.Prune(ctx, time.Now().AddDate(0, 0, -days))
}
