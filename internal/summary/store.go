package summary

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Store is a lazily-connected *sql.DB pool plus a prepared upsert
// statement, opened once and reused across calls.
type Store struct {
	dsn   string
	table string
	db    *sql.DB
	stmt  *sql.Stmt
}

// NewStore creates a Store that connects on first use.
func NewStore(dsn, table string) *Store {
	return &Store{dsn: dsn, table: table}
}

// Reset drops the pool so it is reinitialised lazily on next use,
// per the control surface's restart behaviour (§4.6 step 2).
func (s *Store) Reset() {
	if s.db != nil {
		s.db.Close()
	}
	s.db = nil
	s.stmt = nil
}

func (s *Store) ensureOpen() error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("mysql", s.dsn)
	if err != nil {
		return fmt.Errorf("opening mysql pool: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("connecting to mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	stmt, err := db.Prepare(s.upsertSQL())
	if err != nil {
		db.Close()
		return fmt.Errorf("preparing upsert statement: %w", err)
	}

	s.db = db
	s.stmt = stmt
	return nil
}

func (s *Store) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (
		call_id, recording_path,
		leg_a_status, leg_a_number, leg_a_channel, leg_a_paired_channel, leg_a_peer, leg_a_caller, leg_a_dial_string, leg_a_answered_by, leg_a_start, leg_a_answer, leg_a_end,
		leg_b_status, leg_b_number, leg_b_channel, leg_b_paired_channel, leg_b_peer, leg_b_caller, leg_b_dial_string, leg_b_answered_by, leg_b_start, leg_b_answer, leg_b_end
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		recording_path = VALUES(recording_path),
		leg_a_status = VALUES(leg_a_status), leg_a_number = VALUES(leg_a_number), leg_a_channel = VALUES(leg_a_channel),
		leg_a_paired_channel = VALUES(leg_a_paired_channel), leg_a_peer = VALUES(leg_a_peer), leg_a_caller = VALUES(leg_a_caller),
		leg_a_dial_string = VALUES(leg_a_dial_string), leg_a_answered_by = VALUES(leg_a_answered_by),
		leg_a_start = VALUES(leg_a_start), leg_a_answer = VALUES(leg_a_answer), leg_a_end = VALUES(leg_a_end),
		leg_b_status = VALUES(leg_b_status), leg_b_number = VALUES(leg_b_number), leg_b_channel = VALUES(leg_b_channel),
		leg_b_paired_channel = VALUES(leg_b_paired_channel), leg_b_peer = VALUES(leg_b_peer), leg_b_caller = VALUES(leg_b_caller),
		leg_b_dial_string = VALUES(leg_b_dial_string), leg_b_answered_by = VALUES(leg_b_answered_by),
		leg_b_start = VALUES(leg_b_start), leg_b_answer = VALUES(leg_b_answer), leg_b_end = VALUES(leg_b_end)`, s.table)
}

// Row is the set of columns persisted per call, mirroring §6's schema.
type Row struct {
	CallID        string
	RecordingPath string
	LegA          RowLeg
	LegB          RowLeg
}

// RowLeg is the per-leg column set.
type RowLeg struct {
	Status        string
	Number        string
	Channel       string
	PairedChannel string
	Peer          string
	Caller        string
	DialString    string
	AnsweredBy    string
	Start         time.Time
	Answer        time.Time
	End           time.Time
}

// Upsert inserts or updates the row for row.CallID.
func (s *Store) Upsert(ctx context.Context, row Row) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.stmt.ExecContext(ctx,
		row.CallID, row.RecordingPath,
		row.LegA.Status, row.LegA.Number, row.LegA.Channel, row.LegA.PairedChannel, row.LegA.Peer, row.LegA.Caller, row.LegA.DialString, row.LegA.AnsweredBy,
		nullableTime(row.LegA.Start), nullableTime(row.LegA.Answer), nullableTime(row.LegA.End),
		row.LegB.Status, row.LegB.Number, row.LegB.Channel, row.LegB.PairedChannel, row.LegB.Peer, row.LegB.Caller, row.LegB.DialString, row.LegB.AnsweredBy,
		nullableTime(row.LegB.Start), nullableTime(row.LegB.Answer), nullableTime(row.LegB.End),
	)
	if err != nil {
		return fmt.Errorf("upserting call_leg_timelines row for %s: %w", row.CallID, err)
	}
	return nil
}

// Close releases the pool, if open.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format("2006-01-02 15:04:05")
}
