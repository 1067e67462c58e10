package csvlog

import (
	"errors"
	"fmt"
	"io"
	"log"

	"cellinfo/history"
)

// Source lists history records for export.
type Source interface {
	Entries() ([]history.LoggedCell, error)
}

// Target is the history store side used by Import.
type Target interface {
	Get(id string) (*history.LoggedCell, error)
	PutBatch(recs []history.LoggedCell) error
}

// Export writes every history record as CSV and returns the row count.
func Export(src Source, w io.Writer) (int, error) {
	cells, err := src.Entries()
	if err != nil {
		return 0, fmt.Errorf("csvlog: export: %w", err)
	}
	rows := make([]Row, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, FromCell(c))
	}
	return len(rows), Write(w, rows)
}

// Purpose: Load a CSV log into the history store.
// Key aspects: Rows whose id already has a record are folded in with the
// MergeRow rules; the resulting records are written in one batch. Rows with
// sentinel cell ids are skipped, since history only holds real cells.
// Upstream: cellctl import.
// Downstream: Read, history.Store.PutBatch.
func Import(dst Target, r io.Reader) (int, error) {
	rows, err := Read(r)
	if err != nil {
		return 0, err
	}
	rows = Merge(rows)
	pending := make(map[string]int)
	recs := make([]history.LoggedCell, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		if sentinelRow(row) {
			skipped++
			continue
		}
		if i, ok := pending[row.CellID]; ok {
			merged, err := ToCell(MergeRow(FromCell(recs[i]), row))
			if err != nil {
				return 0, err
			}
			recs[i] = keepIdentity(recs[i], merged)
			continue
		}
		existing, err := dst.Get(row.CellID)
		if err != nil {
			return 0, fmt.Errorf("csvlog: import %s: %w", row.CellID, err)
		}
		if existing != nil {
			row = MergeRow(FromCell(*existing), row)
		}
		rec, err := ToCell(row)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			rec = keepIdentity(*existing, rec)
		}
		pending[row.CellID] = len(recs)
		recs = append(recs, rec)
	}
	if skipped > 0 {
		log.Printf("CSV: skipped %d rows with withheld cell ids", skipped)
	}
	if err := dst.PutBatch(recs); err != nil {
		return 0, fmt.Errorf("csvlog: import: %w", err)
	}
	return len(recs), nil
}

func sentinelRow(row Row) bool {
	_, err := ToCell(Row{CellID: row.CellID, Type: row.Type})
	return errors.Is(err, ErrSentinelID)
}

// keepIdentity carries forward fields the CSV format does not hold.
func keepIdentity(prev, next history.LoggedCell) history.LoggedCell {
	next.Seq = prev.Seq
	if !prev.FirstSeen.IsZero() && (next.FirstSeen.IsZero() || prev.FirstSeen.Before(next.FirstSeen)) {
		next.FirstSeen = prev.FirstSeen
	}
	return next
}
