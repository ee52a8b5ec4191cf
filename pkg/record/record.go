// Package record stores prune statistics and report rows of channel check
// runs in a SQLite database.
package record

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"
	"github.com/go-logr/logr"
	// SQLite driver for database/sql.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/linmingchih/channel-check-tool-v2/pkg/metrics"
	"github.com/linmingchih/channel-check-tool-v2/pkg/prune"
)

const (
	PruneTable  = "prune_stats"
	ReportTable = "report_rows"
)

// ErrEntry is returned for entries that cannot be mapped to columns.
var ErrEntry = errors.New("entry is invalid")

// PruneEntry is one row of the prune statistics table.
type PruneEntry struct {
	RunID         string
	TxLabel       string
	HasThreshold  bool
	ThresholdDB   float64
	KeptPorts     int
	TotalPorts    int
	KeptRxPorts   int
	TotalRxPorts  int
	KeptRxGroups  int
	TotalRxGroups int
	Touchstone    string
}

// ReportEntry is one row of the report table.
type ReportEntry struct {
	RunID      string
	Tx         string
	Rx         string
	Sig        float64
	ISI        float64
	Xtalk      float64
	PseudoEye  float64
	PowerRatio float64
}

type table struct {
	structType reflect.Type
	entries    []any
}

// Recorder buffers entries in memory and writes them on Flush. Every
// recorder owns one run ID.
type Recorder struct {
	db     *sql.DB
	runID  string
	log    logr.Logger
	tables map[string]*table
	order  []string
}

// New opens <path>.sqlite3, refusing to reuse an existing file. An empty
// path picks a name from a fresh run ID. The recorder is flushed when the
// program leaves through atexit.
func New(path string, log logr.Logger) (*Recorder, error) {
	runID := xid.New().String()
	if path == "" {
		path = "cct_run_" + runID
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}

	r := newRecorder(db, runID, log)
	r.log.Info("database created for recording", "file", filename, "run", runID)

	atexit.Register(func() {
		if err := r.Flush(); err != nil {
			r.log.Error(err, "flushing records at exit")
		}
	})
	return r, nil
}

// NewWithDB records into an open database under a fresh run ID.
func NewWithDB(db *sql.DB, log logr.Logger) *Recorder {
	return newRecorder(db, xid.New().String(), log)
}

func newRecorder(db *sql.DB, runID string, log logr.Logger) *Recorder {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Recorder{
		db:     db,
		runID:  runID,
		log:    log.WithName("record"),
		tables: make(map[string]*table),
	}
}

func (r *Recorder) RunID() string { return r.runID }

func (r *Recorder) DB() *sql.DB { return r.db }

// RecordPrune buffers the statistics of one prune result.
func (r *Recorder) RecordPrune(stats prune.Stats) error {
	e := PruneEntry{
		RunID:         r.runID,
		TxLabel:       stats.TxLabel,
		KeptPorts:     stats.KeptPortCount,
		TotalPorts:    stats.TotalPortCount,
		KeptRxPorts:   stats.KeptRxPortCount,
		TotalRxPorts:  stats.TotalRxPortCount,
		KeptRxGroups:  stats.KeptRxGroupCount,
		TotalRxGroups: stats.TotalRxGroupCount,
		Touchstone:    stats.TouchstonePath,
	}
	if stats.ThresholdDB != nil {
		e.HasThreshold = true
		e.ThresholdDB = *stats.ThresholdDB
	}
	return r.insert(PruneTable, e)
}

// RecordRows buffers the report rows of one run.
func (r *Recorder) RecordRows(rows []metrics.Row) error {
	for _, row := range rows {
		err := r.insert(ReportTable, ReportEntry{
			RunID:      r.runID,
			Tx:         row.Tx,
			Rx:         row.Rx,
			Sig:        row.Sig,
			ISI:        row.ISI,
			Xtalk:      row.Xtalk,
			PseudoEye:  row.PseudoEye,
			PowerRatio: row.PowerRatio,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) insert(name string, entry any) error {
	t, ok := r.tables[name]
	if !ok {
		if err := r.createTable(name, entry); err != nil {
			return err
		}
		t = r.tables[name]
	}
	if reflect.TypeOf(entry) != t.structType {
		return fmt.Errorf("%w: %T does not match table %s", ErrEntry, entry, name)
	}
	t.entries = append(t.entries, entry)
	return nil
}

func isAllowedKind(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func (r *Recorder) createTable(name string, sample any) error {
	typ := reflect.TypeOf(sample)
	if typ.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %T is not a struct", ErrEntry, sample)
	}
	for i := 0; i < typ.NumField(); i++ {
		if f := typ.Field(i); !isAllowedKind(f.Type.Kind()) {
			return fmt.Errorf("%w: field %s has kind %s", ErrEntry, f.Name, f.Type.Kind())
		}
	}

	fields := strings.Join(structs.Names(sample), ", \n\t")
	query := `CREATE TABLE IF NOT EXISTS ` + name +
		` (` + "\n\t" + fields + "\n" + `);`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("creating table %s: %w", name, err)
	}

	r.tables[name] = &table{structType: typ}
	r.order = append(r.order, name)
	return nil
}

// Flush writes every buffered entry in one transaction.
func (r *Recorder) Flush() error {
	pending := 0
	for _, t := range r.tables {
		pending += len(t.entries)
	}
	if pending == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	for _, name := range r.order {
		t := r.tables[name]
		if len(t.entries) == 0 {
			continue
		}
		if err := insertAll(tx, name, t.entries); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing records: %w", err)
	}

	for _, t := range r.tables {
		t.entries = nil
	}
	r.log.V(1).Info("records flushed", "run", r.runID, "entries", pending)
	return nil
}

func insertAll(tx *sql.Tx, name string, entries []any) error {
	marks := structs.Names(entries[0])
	for i := range marks {
		marks[i] = "?"
	}

	stmt, err := tx.Prepare("INSERT INTO " + name + " VALUES (" + strings.Join(marks, ", ") + ")")
	if err != nil {
		return fmt.Errorf("preparing insert into %s: %w", name, err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		v := reflect.ValueOf(entry)
		values := make([]any, 0, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			values = append(values, v.Field(i).Interface())
		}
		if _, err := stmt.Exec(values...); err != nil {
			return fmt.Errorf("inserting into %s: %w", name, err)
		}
	}
	return nil
}

// Close flushes and closes the database.
func (r *Recorder) Close() error {
	if err := r.Flush(); err != nil {
		return err
	}
	return r.db.Close()
}
