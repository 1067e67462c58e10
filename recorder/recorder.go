// Package recorder persists a bounded number of raw sightings per technology
// to SQLite for offline analysis without slowing the live pipeline.
package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cellinfo/cell"
	"cellinfo/geo"

	_ "modernc.org/sqlite"
)

// Recorder persists a limited number of sightings per technology into SQLite.
type Recorder struct {
	db            *sql.DB
	perTechLimit  int
	mu            sync.Mutex
	perTechCounts map[string]int
	wg            sync.WaitGroup
}

// NewRecorder opens (or creates) the SQLite database at path and ensures schema exists.
// A database that fails its preflight check is quarantined and replaced.
func NewRecorder(path string, perTechLimit int) (*Recorder, error) {
	if perTechLimit <= 0 {
		return nil, errors.New("recorder: per-technology limit must be > 0")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recorder: ensure dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := Preflight(path, 2*time.Second, log.Printf); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: schema: %w", err)
	}
	counts, err := loadCounts(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{
		db:            db,
		perTechLimit:  perTechLimit,
		perTechCounts: counts,
	}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS sightings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    technology TEXT,
    cell_id TEXT,
    band INTEGER,
    channel INTEGER,
    pci INTEGER,
    tac INTEGER,
    mcc TEXT,
    mnc TEXT,
    operator TEXT,
    signal INTEGER,
    rsrq INTEGER,
    sinr INTEGER,
    timing_advance INTEGER,
    lat REAL,
    lon REAL,
    grid TEXT,
    observed_at INTEGER,
    raw TEXT
);
CREATE INDEX IF NOT EXISTS sightings_cell ON sightings(cell_id);`
	_, err := db.Exec(schema)
	return err
}

func loadCounts(db *sql.DB) (map[string]int, error) {
	rows, err := db.Query(`SELECT technology, COUNT(*) FROM sightings GROUP BY technology`)
	if err != nil {
		return nil, fmt.Errorf("recorder: load counts: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var tech string
		var n int
		if err := rows.Scan(&tech, &n); err != nil {
			return nil, fmt.Errorf("recorder: load counts: %w", err)
		}
		counts[tech] = n
	}
	return counts, rows.Err()
}

// Close waits for pending inserts and closes the underlying database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	r.wg.Wait()
	return r.db.Close()
}

// Record inserts the sighting if the per-technology limit has not been reached.
func (r *Recorder) Record(at time.Time, m cell.Measurement, loc *geo.Point, band int) {
	if r == nil || r.db == nil {
		return
	}
	tech := techKey(m.Technology)

	r.mu.Lock()
	count := r.perTechCounts[tech]
	if count >= r.perTechLimit {
		r.mu.Unlock()
		return
	}
	r.perTechCounts[tech] = count + 1
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.insert(tech, at, m, loc, band)
	}()
}

// Count returns the number of stored sightings for a technology.
func (r *Recorder) Count(tech cell.Technology) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM sightings WHERE technology = ?`, techKey(tech)).Scan(&n)
	return n, err
}

func (r *Recorder) insert(tech string, at time.Time, m cell.Measurement, loc *geo.Point, band int) {
	var lat, lon sql.NullFloat64
	var grid string
	if loc != nil && loc.Valid() {
		lat = sql.NullFloat64{Float64: loc.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: loc.Lon, Valid: true}
		grid, _ = geo.Grid6(*loc)
	}
	signal, rsrq, sinr := m.RSRP, m.RSRQ, m.RSSNR
	if m.Technology == cell.TechNR {
		signal, rsrq, sinr = m.SSRSRP, m.SSRSRQ, m.SSSINR
	}
	operator := m.OperatorLong
	if operator == "" {
		operator = m.OperatorShort
	}
	_, err := r.db.Exec(`
INSERT INTO sightings (
    technology, cell_id, band, channel, pci, tac, mcc, mnc, operator,
    signal, rsrq, sinr, timing_advance, lat, lon, grid, observed_at, raw
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tech,
		m.Identifier(),
		band,
		m.Channel,
		m.PCI,
		m.TAC,
		m.MCC,
		m.MNC,
		operator,
		nullable(signal),
		nullable(rsrq),
		nullable(sinr),
		nullable(m.TimingAdvance),
		lat,
		lon,
		grid,
		at.UTC().Unix(),
		m.Raw,
	)
	if err != nil {
		log.Printf("Recorder: failed to insert sighting: %v", err)
	}
}

// nullable stores unreported integers as NULL.
func nullable(v int) sql.NullInt64 {
	if cell.SignalSentinels.Is(int64(v)) {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func techKey(t cell.Technology) string {
	tech := strings.ToUpper(strings.TrimSpace(string(t)))
	if tech == "" {
		tech = "UNKNOWN"
	}
	return tech
}
