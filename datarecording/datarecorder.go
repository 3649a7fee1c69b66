// Package datarecording persists a run's scheduling events into a
// per-run SQLite database for offline inspection.
package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// A SpawnRow records one worker launch.
type SpawnRow struct {
	Pid           int
	Slot          int
	StartSec      int64
	StartNanos    int64
	LifetimeSec   int64
	LifetimeNanos int64
}

// An ExitRow records one worker reap.
type ExitRow struct {
	Pid      int
	SimSec   int64
	SimNanos int64
}

// A ReportRow records one periodic table report.
type ReportRow struct {
	SimSec   int64
	SimNanos int64
	Occupied int
}

// A Recorder buffers rows and writes them into SQLite in batches.
type Recorder struct {
	*sql.DB

	mu      sync.Mutex
	path    string
	spawns  []SpawnRow
	exits   []ExitRow
	reports []ReportRow

	batchSize int
}

// New creates a Recorder backed by a fresh database file. An empty
// path selects an xid-suffixed name in the working directory. Flush is
// registered to run at process exit.
func New(path string) *Recorder {
	r := &Recorder{
		path:      path,
		batchSize: 1024,
	}

	r.init()

	atexit.Register(func() { r.Flush() })

	return r
}

func (r *Recorder) init() {
	if r.path == "" {
		r.path = "ossim_run_" + xid.New().String()
	}

	filename := r.path + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	fmt.Fprintf(os.Stderr, "Database created for recording: %s\n", filename)

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	r.DB = db
	r.createTables()
}

func (r *Recorder) createTables() {
	stmts := []string{
		`CREATE TABLE spawns (
			pid INTEGER,
			slot INTEGER,
			start_sec INTEGER,
			start_nanos INTEGER,
			lifetime_sec INTEGER,
			lifetime_nanos INTEGER
		)`,
		`CREATE TABLE exits (
			pid INTEGER,
			sim_sec INTEGER,
			sim_nanos INTEGER
		)`,
		`CREATE TABLE table_reports (
			sim_sec INTEGER,
			sim_nanos INTEGER,
			occupied INTEGER
		)`,
	}

	for _, stmt := range stmts {
		if _, err := r.Exec(stmt); err != nil {
			panic(err)
		}
	}
}

// RecordSpawn buffers a worker launch.
func (r *Recorder) RecordSpawn(row SpawnRow) {
	r.mu.Lock()
	r.spawns = append(r.spawns, row)
	full := len(r.spawns) >= r.batchSize
	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

// RecordExit buffers a worker reap.
func (r *Recorder) RecordExit(row ExitRow) {
	r.mu.Lock()
	r.exits = append(r.exits, row)
	full := len(r.exits) >= r.batchSize
	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

// RecordReport buffers a periodic table report.
func (r *Recorder) RecordReport(row ReportRow) {
	r.mu.Lock()
	r.reports = append(r.reports, row)
	full := len(r.reports) >= r.batchSize
	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

// Flush writes all buffered rows into the database.
func (r *Recorder) Flush() {
	r.mu.Lock()
	spawns := r.spawns
	exits := r.exits
	reports := r.reports
	r.spawns = nil
	r.exits = nil
	r.reports = nil
	r.mu.Unlock()

	if len(spawns) == 0 && len(exits) == 0 && len(reports) == 0 {
		return
	}

	tx, err := r.Begin()
	if err != nil {
		panic(err)
	}

	for _, row := range spawns {
		_, err = tx.Exec(
			`INSERT INTO spawns VALUES (?, ?, ?, ?, ?, ?)`,
			row.Pid, row.Slot,
			row.StartSec, row.StartNanos,
			row.LifetimeSec, row.LifetimeNanos,
		)
		if err != nil {
			panic(err)
		}
	}

	for _, row := range exits {
		_, err = tx.Exec(
			`INSERT INTO exits VALUES (?, ?, ?)`,
			row.Pid, row.SimSec, row.SimNanos,
		)
		if err != nil {
			panic(err)
		}
	}

	for _, row := range reports {
		_, err = tx.Exec(
			`INSERT INTO table_reports VALUES (?, ?, ?)`,
			row.SimSec, row.SimNanos, row.Occupied,
		)
		if err != nil {
			panic(err)
		}
	}

	if err := tx.Commit(); err != nil {
		panic(err)
	}
}

// Path returns the database file name without the .sqlite3 suffix.
func (r *Recorder) Path() string {
	return r.path
}

// Close flushes buffered rows and closes the database.
func (r *Recorder) Close() error {
	r.Flush()
	return r.DB.Close()
}
