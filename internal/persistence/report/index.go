package report

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"episim.ai/internal/sim/epi"
)

// Index is an asynchronous SQLite index of run metadata and daily counts.
// Writes go through a buffered channel so the simulation never blocks on
// the database; the text output files remain the source of truth.
type Index struct {
	db    *sql.DB
	runID string

	ch   chan dayRow
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type dayRow struct {
	cond  string
	state string
	day   int
	new   int
	cur   int
	total int
}

func OpenIndex(path string, eng *epi.Engine) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	idx := &Index{
		db:    db,
		runID: uuid.NewString(),
		ch:    make(chan dayRow, 65536),
	}

	cfg := eng.Config()
	_, err = db.Exec(
		`INSERT INTO runs (run_id, run_number, seed, days, population, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		idx.runID, cfg.RunNumber, cfg.Seed, cfg.Days, eng.PopulationSize(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.loop()
	}()
	return idx, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only write pattern.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			run_number INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			days INTEGER NOT NULL,
			population INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS daily_counts (
			run_id TEXT NOT NULL,
			condition TEXT NOT NULL,
			state TEXT NOT NULL,
			day INTEGER NOT NULL,
			new_count INTEGER NOT NULL,
			current_count INTEGER NOT NULL,
			total_count INTEGER NOT NULL,
			PRIMARY KEY (run_id, condition, state, day)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_daily_cond_day ON daily_counts(condition, day);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// WriteDay queues one day of one condition's counts. Drops on backlog rather
// than stalling the run.
func (idx *Index) WriteDay(cond string, states []string, day int, dc dayCounts) {
	if idx == nil || idx.closed.Load() {
		return
	}
	for s, state := range states {
		row := dayRow{
			cond: cond, state: state, day: day,
			new: dc.new[s], cur: dc.cur[s], total: dc.to[s],
		}
		select {
		case idx.ch <- row:
		default:
		}
	}
}

func (idx *Index) loop() {
	for row := range idx.ch {
		_, _ = idx.db.Exec(
			`INSERT OR REPLACE INTO daily_counts
			 (run_id, condition, state, day, new_count, current_count, total_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			idx.runID, row.cond, row.state, row.day, row.new, row.cur, row.total,
		)
	}
}

func (idx *Index) Close() error {
	var err error
	idx.once.Do(func() {
		idx.closed.Store(true)
		close(idx.ch)
		idx.wg.Wait()
		_, _ = idx.db.Exec(`UPDATE runs SET finished_at = ? WHERE run_id = ?`,
			time.Now().UTC().Format(time.RFC3339), idx.runID)
		err = idx.db.Close()
	})
	return err
}
