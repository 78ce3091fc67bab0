// Package mergelog keeps an audit trail of pseudo-merge runs in a SQLite file.
// Each Log is one run; every merge the engine performs becomes one row.
package mergelog

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/wgdzlh/obialib/log"
	"github.com/wgdzlh/obialib/obia"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const logTag = "MergeLog:"

//go:embed schema.sql
var schemaSQL string

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

type Log struct {
	db    *sql.DB
	runID string
	seq   int
}

// Open opens (or creates) the database at path and starts a new run.
func Open(path string) (l *Log, err error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()
	for _, p := range pragmas {
		if _, err = db.Exec(p); err != nil {
			err = fmt.Errorf("failed to execute %q: %w", p, err)
			return
		}
	}
	if _, err = db.Exec(schemaSQL); err != nil {
		err = fmt.Errorf("failed to apply merge log schema: %w", err)
		return
	}
	l = &Log{db: db, runID: uuid.NewString()}
	if _, err = db.Exec(`INSERT INTO merge_runs (run_id, started_at) VALUES (?, ?)`,
		l.runID, time.Now().UnixNano()); err != nil {
		err = fmt.Errorf("failed to start run: %w", err)
		l = nil
		return
	}
	log.Info(logTag+"run started", zap.String("path", path), zap.String("run", l.runID))
	return
}

func (l *Log) RunID() string {
	return l.runID
}

// RecordMerge implements obia.MergeRecorder.
func (l *Log) RecordMerge(ev obia.MergeEvent) error {
	l.seq++
	_, err := l.db.Exec(`
		INSERT INTO merge_events (run_id, seq, round, source_id, target_id, distance, source_area, target_area)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.runID, l.seq, ev.Round, ev.Source, ev.Target, ev.Distance, ev.SourceArea, ev.TargetArea)
	if err != nil {
		return fmt.Errorf("failed to insert merge event: %w", err)
	}
	return nil
}

// Finish stores the run summary.
func (l *Log) Finish(sum obia.MergeSummary) error {
	_, err := l.db.Exec(`
		UPDATE merge_runs SET finished_at = ?, rounds = ?, merges = ?, retired = ?, dissolved = ?
		WHERE run_id = ?`,
		time.Now().UnixNano(), sum.Rounds, sum.Merges, sum.Retired, sum.Dissolved, l.runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	log.Info(logTag+"run finished", zap.String("run", l.runID), zap.Int("merges", sum.Merges))
	return nil
}

// Events returns the merges of a run in the order they happened.
func (l *Log) Events(runID string) (evs []obia.MergeEvent, err error) {
	rows, err := l.db.Query(`
		SELECT round, source_id, target_id, distance, source_area, target_area
		FROM merge_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ev           obia.MergeEvent
			dist, sA, tA sql.NullFloat64
		)
		if err = rows.Scan(&ev.Round, &ev.Source, &ev.Target, &dist, &sA, &tA); err != nil {
			return
		}
		ev.Distance, ev.SourceArea, ev.TargetArea = dist.Float64, sA.Float64, tA.Float64
		evs = append(evs, ev)
	}
	err = rows.Err()
	return
}

// Summary reads back what Finish stored. ok is false for an unfinished run.
func (l *Log) Summary(runID string) (sum obia.MergeSummary, ok bool, err error) {
	var rounds, merges, retired, dissolved sql.NullInt64
	err = l.db.QueryRow(`SELECT rounds, merges, retired, dissolved FROM merge_runs WHERE run_id = ?`, runID).
		Scan(&rounds, &merges, &retired, &dissolved)
	if err != nil {
		return
	}
	if !rounds.Valid {
		return
	}
	sum = obia.MergeSummary{Rounds: int(rounds.Int64), Merges: int(merges.Int64),
		Retired: int(retired.Int64), Dissolved: int(dissolved.Int64)}
	ok = true
	return
}

func (l *Log) Close() error {
	return l.db.Close()
}
