package history

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"cellinfo/cell"
	"cellinfo/geo"
)

const (
	recordVersion    = 1
	recordHeaderSize = 93
)

const (
	recordFlagSignal       = 1 << 0
	recordFlagLocation     = 1 << 1
	recordFlagBestSignal   = 1 << 2
	recordFlagBestLocation = 1 << 3
	recordFlagSeen         = 1 << 4
)

const (
	techByteUnknown = 0
	techByteLTE     = 1
	techByteNR      = 2
)

const (
	cellPrefix   = "c|"
	seenPrefix   = "t|"
	metaCountKey = "meta|count"
	metaSeqKey   = "meta|seq"
)

var (
	errInvalidRecord = errors.New("history: invalid record encoding")
	errInvalidMeta   = errors.New("history: invalid metadata")
)

// encodeRecord lays a cell out as a fixed big-endian header followed by its
// variable-length strings. The identifier lives in the key, not the value.
func encodeRecord(rec LoggedCell) []byte {
	strs := [5]string{rec.SiteID, rec.SectorID, rec.MCC, rec.MNC, rec.Operator}
	total := recordHeaderSize
	for i := range strs {
		if len(strs[i]) > math.MaxUint16 {
			strs[i] = strs[i][:math.MaxUint16]
		}
		total += len(strs[i])
	}
	buf := make([]byte, total)
	buf[0] = recordVersion
	buf[1] = techToByte(rec.Technology)

	flags := byte(0)
	if rec.Signal != nil {
		flags |= recordFlagSignal
	}
	if rec.Location != nil {
		flags |= recordFlagLocation
	}
	if rec.BestSignal != nil {
		flags |= recordFlagBestSignal
	}
	if rec.BestLocation != nil {
		flags |= recordFlagBestLocation
	}
	if rec.Seen {
		flags |= recordFlagSeen
	}
	buf[2] = flags

	binary.BigEndian.PutUint64(buf[3:], rec.Seq)
	binary.BigEndian.PutUint64(buf[11:], uint64(unixMilli(rec.FirstSeen)))
	binary.BigEndian.PutUint64(buf[19:], uint64(unixMilli(rec.LastSeen)))
	putInt32(buf[27:], rec.Channel)
	putInt32(buf[31:], rec.PCI)
	putInt32(buf[35:], rec.Band)
	putInt32(buf[39:], rec.TAC)
	putInt32(buf[43:], derefInt(rec.Signal))
	putInt32(buf[47:], derefInt(rec.BestSignal))
	putPoint(buf[51:], rec.Location)
	putPoint(buf[67:], rec.BestLocation)

	offset := 83
	for _, s := range strs {
		binary.BigEndian.PutUint16(buf[offset:], uint16(len(s)))
		offset += 2
	}
	offset = recordHeaderSize
	for _, s := range strs {
		copy(buf[offset:], s)
		offset += len(s)
	}
	return buf
}

func decodeRecord(id string, raw []byte) (LoggedCell, error) {
	if len(raw) < recordHeaderSize || raw[0] != recordVersion {
		return LoggedCell{}, errInvalidRecord
	}
	flags := raw[2]
	rec := LoggedCell{
		ID:         id,
		Technology: byteToTech(raw[1]),
		Seq:        binary.BigEndian.Uint64(raw[3:]),
		FirstSeen:  fromUnixMilli(int64(binary.BigEndian.Uint64(raw[11:]))),
		LastSeen:   fromUnixMilli(int64(binary.BigEndian.Uint64(raw[19:]))),
		Channel:    getInt32(raw[27:]),
		PCI:        getInt32(raw[31:]),
		Band:       getInt32(raw[35:]),
		TAC:        getInt32(raw[39:]),
		Seen:       flags&recordFlagSeen != 0,
	}
	if flags&recordFlagSignal != 0 {
		v := getInt32(raw[43:])
		rec.Signal = &v
	}
	if flags&recordFlagBestSignal != 0 {
		v := getInt32(raw[47:])
		rec.BestSignal = &v
	}
	if flags&recordFlagLocation != 0 {
		rec.Location = getPoint(raw[51:])
	}
	if flags&recordFlagBestLocation != 0 {
		rec.BestLocation = getPoint(raw[67:])
	}

	var lens [5]int
	total := recordHeaderSize
	for i := range lens {
		lens[i] = int(binary.BigEndian.Uint16(raw[83+2*i:]))
		total += lens[i]
	}
	if total > len(raw) {
		return LoggedCell{}, errInvalidRecord
	}
	dst := [5]*string{&rec.SiteID, &rec.SectorID, &rec.MCC, &rec.MNC, &rec.Operator}
	offset := recordHeaderSize
	for i, n := range lens {
		if n > 0 {
			*dst[i] = string(raw[offset : offset+n])
		}
		offset += n
	}
	return rec, nil
}

func techToByte(t cell.Technology) byte {
	switch t {
	case cell.TechLTE:
		return techByteLTE
	case cell.TechNR:
		return techByteNR
	default:
		return techByteUnknown
	}
}

func byteToTech(b byte) cell.Technology {
	switch b {
	case techByteLTE:
		return cell.TechLTE
	case techByteNR:
		return cell.TechNR
	default:
		return cell.TechUnknown
	}
}

func putInt32(buf []byte, v int) {
	if v > math.MaxInt32 {
		v = math.MaxInt32
	} else if v < math.MinInt32 {
		v = math.MinInt32
	}
	binary.BigEndian.PutUint32(buf, uint32(int32(v)))
}

func getInt32(buf []byte) int {
	return int(int32(binary.BigEndian.Uint32(buf)))
}

func putPoint(buf []byte, p *geo.Point) {
	if p == nil {
		return
	}
	binary.BigEndian.PutUint64(buf, math.Float64bits(p.Lat))
	binary.BigEndian.PutUint64(buf[8:], math.Float64bits(p.Lon))
}

func getPoint(buf []byte) *geo.Point {
	return &geo.Point{
		Lat: math.Float64frombits(binary.BigEndian.Uint64(buf)),
		Lon: math.Float64frombits(binary.BigEndian.Uint64(buf[8:])),
	}
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, errInvalidMeta
	}
	return binary.BigEndian.Uint64(raw), nil
}

func cellKeyBytes(id string) []byte {
	return append([]byte(cellPrefix), id...)
}

func parseCellKey(key []byte) (string, bool) {
	prefix := []byte(cellPrefix)
	if len(key) <= len(prefix) || !bytes.HasPrefix(key, prefix) {
		return "", false
	}
	return string(key[len(prefix):]), true
}

// seenKeyBytes indexes a cell by its last-seen time so purges and the
// most-recent-first log view can walk it in time order.
func seenKeyBytes(lastSeenMs int64, id string) []byte {
	buf := make([]byte, len(seenPrefix)+8+len(id))
	copy(buf, seenPrefix)
	binary.BigEndian.PutUint64(buf[len(seenPrefix):], uint64(lastSeenMs))
	copy(buf[len(seenPrefix)+8:], id)
	return buf
}

func parseSeenKey(key []byte) (int64, string, bool) {
	prefix := []byte(seenPrefix)
	if len(key) <= len(prefix)+8 || !bytes.HasPrefix(key, prefix) {
		return 0, "", false
	}
	ts := int64(binary.BigEndian.Uint64(key[len(prefix):]))
	return ts, string(key[len(prefix)+8:]), true
}
