package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"cellinfo/band"
	"cellinfo/cell"
)

// cellMapperPlaceholderRSRP is the value CellMapper writes when it has no
// reading for a point.
const cellMapperPlaceholderRSRP = -44

const cellMapperColumns = 12

type mapperPoint struct {
	lat, lon float64
	rsrp     int
}

type mapperCell struct {
	cellID, mcc, mnc, tac, earfcn, pci string
	band                               int
	points                             []mapperPoint
}

// Purpose: Convert a CellMapper point export into CSV log rows.
// Key aspects: Only LTE rows are kept, grouped by cell id and band; the best
// point ignores the placeholder RSRP. Every row is stamped with at.
// Upstream: cellctl convert.
// Downstream: band.LTEBand, cell.SiteID/SectorID.
func ConvertCellMapper(r io.Reader, at time.Time) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var order []string
	cells := make(map[string]*mapperCell)
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvlog: cellmapper line %d: %w", line, err)
		}
		if hasField(rec, "NR") {
			continue
		}
		if len(rec) != cellMapperColumns {
			return nil, fmt.Errorf("csvlog: cellmapper line %d: expected %d columns, got %d", line, cellMapperColumns, len(rec))
		}
		lat, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("csvlog: cellmapper line %d: bad latitude %q", line, rec[0])
		}
		if rec[8] != "LTE" {
			continue
		}
		lon, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("csvlog: cellmapper line %d: bad longitude %q", line, rec[1])
		}
		rsrp, err := strconv.Atoi(rec[7])
		if err != nil {
			return nil, fmt.Errorf("csvlog: cellmapper line %d: bad rsrp %q", line, rec[7])
		}
		earfcn, err := strconv.Atoi(rec[10])
		if err != nil {
			return nil, fmt.Errorf("csvlog: cellmapper line %d: bad earfcn %q", line, rec[10])
		}
		b := band.LTEBand(earfcn)
		key := rec[6] + "_" + strconv.Itoa(b)
		c, ok := cells[key]
		if !ok {
			c = &mapperCell{}
			cells[key] = c
			order = append(order, key)
		}
		c.mcc, c.mnc, c.tac, c.cellID = rec[3], rec[4], rec[5], rec[6]
		c.earfcn, c.pci, c.band = rec[10], rec[11], b
		c.points = append(c.points, mapperPoint{lat: lat, lon: lon, rsrp: rsrp})
	}

	rows := make([]Row, 0, len(order))
	for _, key := range order {
		c := cells[key]
		site, err := cell.SiteID(c.cellID)
		if err != nil {
			return nil, fmt.Errorf("csvlog: cellmapper cell %q: %w", c.cellID, err)
		}
		sector, _ := cell.SectorID(c.cellID)
		row := Row{
			CellID:     c.cellID,
			Type:       string(cell.TechLTE),
			Timestamp:  at.UnixMilli(),
			EnbID:      site,
			EARFCN:     c.earfcn,
			PCI:        c.pci,
			CellSector: sector,
			BandNumber: strconv.Itoa(c.band),
			TAC:        c.tac,
			MCC:        c.mcc,
			MNC:        c.mnc,
			Seen:       true,
		}
		if best, ok := bestPoint(c.points); ok {
			row.RSRP = strconv.Itoa(best.rsrp)
			row.Latitude = strconv.FormatFloat(best.lat, 'f', 7, 64)
			row.Longitude = strconv.FormatFloat(best.lon, 'f', 7, 64)
			row.BestRSRP = row.RSRP
			row.BestLatitude = row.Latitude
			row.BestLongitude = row.Longitude
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// bestPoint returns the first point with the strongest real RSRP.
func bestPoint(points []mapperPoint) (mapperPoint, bool) {
	var best mapperPoint
	found := false
	for _, p := range points {
		if p.rsrp == cellMapperPlaceholderRSRP {
			continue
		}
		if !found || p.rsrp > best.rsrp {
			best = p
			found = true
		}
	}
	return best, found
}

func hasField(rec []string, v string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) == v {
			return true
		}
	}
	return false
}
