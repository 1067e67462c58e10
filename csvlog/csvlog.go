// Package csvlog moves cell history in and out of the CSV interchange format
// shared with other tools, merges CSV logs, and converts CellMapper exports.
package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"cellinfo/band"
	"cellinfo/cell"
	"cellinfo/geo"
	"cellinfo/history"
)

// Header is the column order written by Write.
var Header = []string{
	"cellId", "type", "timestamp", "enbId", "earfcn", "pci", "cellSector",
	"bandNumber", "tac", "mcc", "mnc", "operator", "rsrp", "latitude",
	"longitude", "bestRsrp", "bestLatitude", "bestLongitude", "seen",
}

var requiredColumns = []string{"cellId", "bandNumber"}

// ErrMissingColumn is returned when a CSV lacks a key column.
var ErrMissingColumn = errors.New("csvlog: missing required column")

// ErrSentinelID is returned for rows whose cellId is a hardware "unknown"
// marker. Such rows appear in logs written by tools that record every cell.
var ErrSentinelID = errors.New("csvlog: cellId is a sentinel")

// Row is one CSV line. Values are kept as text so unknown formatting in
// imported files survives a merge and rewrite unchanged.
type Row struct {
	CellID        string
	Type          string
	Timestamp     int64 // unix milliseconds
	EnbID         string
	EARFCN        string
	PCI           string
	CellSector    string
	BandNumber    string
	TAC           string
	MCC           string
	MNC           string
	Operator      string
	RSRP          string
	Latitude      string
	Longitude     string
	BestRSRP      string
	BestLatitude  string
	BestLongitude string
	Seen          bool
}

// Key identifies a row for merging.
type Key struct {
	CellID string
	Band   string
}

// Key returns the merge key of the row.
func (r Row) Key() Key {
	return Key{CellID: r.CellID, Band: r.BandNumber}
}

func (r Row) record() []string {
	return []string{
		r.CellID, r.Type, strconv.FormatInt(r.Timestamp, 10), r.EnbID, r.EARFCN,
		r.PCI, r.CellSector, r.BandNumber, r.TAC, r.MCC, r.MNC, r.Operator,
		r.RSRP, r.Latitude, r.Longitude, r.BestRSRP, r.BestLatitude,
		r.BestLongitude, strconv.FormatBool(r.Seen),
	}
}

// Read parses a CSV log with a header line. Columns may appear in any order;
// cellId and bandNumber are required, other missing columns read as empty.
func Read(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csvlog: file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("csvlog: read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w %q (have %s)", ErrMissingColumn, name, strings.Join(header, ","))
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvlog: line %d: %w", line, err)
		}
		get := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		row := Row{
			CellID:        get("cellId"),
			Type:          get("type"),
			EnbID:         get("enbId"),
			EARFCN:        get("earfcn"),
			PCI:           get("pci"),
			CellSector:    get("cellSector"),
			BandNumber:    get("bandNumber"),
			TAC:           get("tac"),
			MCC:           get("mcc"),
			MNC:           get("mnc"),
			Operator:      get("operator"),
			RSRP:          get("rsrp"),
			Latitude:      get("latitude"),
			Longitude:     get("longitude"),
			BestRSRP:      get("bestRsrp"),
			BestLatitude:  get("bestLatitude"),
			BestLongitude: get("bestLongitude"),
			Seen:          strings.EqualFold(get("seen"), "true"),
		}
		if ts := get("timestamp"); ts != "" {
			row.Timestamp, err = strconv.ParseInt(ts, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("csvlog: line %d: bad timestamp %q", line, ts)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Write emits rows with the standard header.
func Write(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("csvlog: write header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row.record()); err != nil {
			return fmt.Errorf("csvlog: write %s: %w", row.CellID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// MergeRow folds b into a for the same key. A newer timestamp takes the
// last-known signal and position, a strictly better best signal takes the
// best triple, and seen is true when either side is.
func MergeRow(a, b Row) Row {
	if b.Timestamp > a.Timestamp {
		a.Timestamp = b.Timestamp
		a.RSRP = b.RSRP
		a.Latitude = b.Latitude
		a.Longitude = b.Longitude
	}
	if bestValue(b.BestRSRP) > bestValue(a.BestRSRP) {
		a.BestRSRP = b.BestRSRP
		a.BestLatitude = b.BestLatitude
		a.BestLongitude = b.BestLongitude
	}
	a.Seen = a.Seen || b.Seen
	return a
}

// Merge combines logs keyed by (cellId, bandNumber). Rows keep the order in
// which their key first appears.
func Merge(logs ...[]Row) []Row {
	var out []Row
	pos := make(map[Key]int)
	for _, rows := range logs {
		for _, row := range rows {
			k := row.Key()
			if i, ok := pos[k]; ok {
				out[i] = MergeRow(out[i], row)
				continue
			}
			pos[k] = len(out)
			out = append(out, row)
		}
	}
	return out
}

func bestValue(s string) float64 {
	if s == "" {
		return math.Inf(-1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.Inf(-1)
	}
	return v
}

// FromCell renders a history record as a CSV row.
func FromCell(rec history.LoggedCell) Row {
	row := Row{
		CellID:     rec.ID,
		Type:       string(rec.Technology),
		Timestamp:  rec.LastSeen.UnixMilli(),
		EnbID:      rec.SiteID,
		EARFCN:     intText(rec.Channel),
		PCI:        intText(rec.PCI),
		CellSector: rec.SectorID,
		BandNumber: strconv.Itoa(rec.Band),
		TAC:        intText(rec.TAC),
		MCC:        rec.MCC,
		MNC:        rec.MNC,
		Operator:   rec.Operator,
		RSRP:       ptrText(rec.Signal),
		BestRSRP:   ptrText(rec.BestSignal),
		Seen:       rec.Seen,
	}
	if rec.LastSeen.IsZero() {
		row.Timestamp = 0
	}
	row.Latitude, row.Longitude = pointText(rec.Location)
	row.BestLatitude, row.BestLongitude = pointText(rec.BestLocation)
	return row
}

// ToCell parses a CSV row back into a history record.
func ToCell(row Row) (history.LoggedCell, error) {
	if strings.TrimSpace(row.CellID) == "" {
		return history.LoggedCell{}, errors.New("csvlog: row has no cellId")
	}
	rec := history.LoggedCell{
		ID:         row.CellID,
		Technology: cell.ParseTechnology(row.Type),
		SiteID:     row.EnbID,
		SectorID:   row.CellSector,
		MCC:        row.MCC,
		MNC:        row.MNC,
		Operator:   row.Operator,
		Seen:       row.Seen,
		Band:       band.Unknown,
	}
	if history.SentinelID(rec) {
		return rec, fmt.Errorf("%w: %s", ErrSentinelID, row.CellID)
	}
	if row.Timestamp > 0 {
		rec.LastSeen = time.UnixMilli(row.Timestamp).UTC()
		rec.FirstSeen = rec.LastSeen
	}
	var err error
	if rec.Channel, err = parseInt(row.EARFCN, math.MaxInt32); err != nil {
		return rec, fmt.Errorf("csvlog: %s earfcn: %w", row.CellID, err)
	}
	if rec.PCI, err = parseInt(row.PCI, math.MaxInt32); err != nil {
		return rec, fmt.Errorf("csvlog: %s pci: %w", row.CellID, err)
	}
	if rec.TAC, err = parseInt(row.TAC, math.MaxInt32); err != nil {
		return rec, fmt.Errorf("csvlog: %s tac: %w", row.CellID, err)
	}
	if rec.Band, err = parseInt(row.BandNumber, band.Unknown); err != nil {
		return rec, fmt.Errorf("csvlog: %s bandNumber: %w", row.CellID, err)
	}
	if rec.Signal, err = parsePtr(row.RSRP); err != nil {
		return rec, fmt.Errorf("csvlog: %s rsrp: %w", row.CellID, err)
	}
	if rec.BestSignal, err = parsePtr(row.BestRSRP); err != nil {
		return rec, fmt.Errorf("csvlog: %s bestRsrp: %w", row.CellID, err)
	}
	rec.Location = parsePoint(row.Latitude, row.Longitude)
	rec.BestLocation = parsePoint(row.BestLatitude, row.BestLongitude)
	return rec, nil
}

func intText(v int) string {
	if cell.SignalSentinels.Is(int64(v)) {
		return ""
	}
	return strconv.Itoa(v)
}

func ptrText(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func pointText(p *geo.Point) (string, string) {
	if p == nil || !p.Valid() {
		return "", ""
	}
	return strconv.FormatFloat(p.Lat, 'f', 7, 64), strconv.FormatFloat(p.Lon, 'f', 7, 64)
}

func parseInt(s string, empty int) (int, error) {
	if s == "" {
		return empty, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func parsePtr(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := parseInt(s, 0)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parsePoint(lat, lon string) *geo.Point {
	if lat == "" || lon == "" {
		return nil
	}
	la, err1 := strconv.ParseFloat(lat, 64)
	lo, err2 := strconv.ParseFloat(lon, 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	p := geo.Point{Lat: la, Lon: lo}
	if !p.Valid() {
		return nil
	}
	return &p
}
