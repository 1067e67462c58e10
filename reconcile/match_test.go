package reconcile

import (
	"errors"
	"math"
	"testing"

	"cellinfo/cell"
	"cellinfo/geo"
	"cellinfo/history"
)

// pointNorth moves a point due north by the given number of miles.
func pointNorth(p geo.Point, miles float64) geo.Point {
	return geo.Point{Lat: p.Lat + geo.Miles(miles)/geo.EarthRadiusMeters*180/math.Pi, Lon: p.Lon}
}

func TestFindMatchDistanceThreshold(t *testing.T) {
	here := geo.Point{Lat: 40, Lon: -75}
	near := pointNorth(here, 19.9)
	far := pointNorth(here, 21)
	cells := []history.LoggedCell{
		{ID: "near", Channel: 5230, PCI: 101, BestLocation: &near},
		{ID: "far", Channel: 5230, PCI: 101, BestLocation: &far},
	}
	got := FindMatch(cells, 5230, 101, &here)
	if got == nil || got.ID != "near" {
		t.Fatalf("expected near record, got %+v", got)
	}

	got = FindMatch(cells[1:], 5230, 101, &here)
	if got != nil {
		t.Fatalf("expected no match beyond 20 miles, got %s", got.ID)
	}
}

func TestFindMatchFirstInOrder(t *testing.T) {
	here := geo.Point{Lat: 51.5, Lon: -0.12}
	a := pointNorth(here, 5)
	b := here
	cells := []history.LoggedCell{
		{ID: "first", Channel: 100, PCI: 1, BestLocation: &a},
		{ID: "second", Channel: 100, PCI: 1, BestLocation: &b},
	}
	if got := FindMatch(cells, 100, 1, &here); got == nil || got.ID != "first" {
		t.Fatalf("expected first record in scan order, got %+v", got)
	}
}

func TestFindMatchRequiresAllConditions(t *testing.T) {
	here := geo.Point{Lat: 10, Lon: 10}
	cases := []struct {
		name  string
		cells []history.LoggedCell
		here  *geo.Point
	}{
		{"no fix", []history.LoggedCell{{Channel: 1, PCI: 2, BestLocation: &here}}, nil},
		{"no best location", []history.LoggedCell{{Channel: 1, PCI: 2}}, &here},
		{"channel differs", []history.LoggedCell{{Channel: 9, PCI: 2, BestLocation: &here}}, &here},
		{"pci differs", []history.LoggedCell{{Channel: 1, PCI: 9, BestLocation: &here}}, &here},
		{"sentinel id", []history.LoggedCell{{ID: "268435455", Channel: 1, PCI: 2, BestLocation: &here}}, &here},
		{"empty history", nil, &here},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FindMatch(tc.cells, 1, 2, tc.here); got != nil {
				t.Fatalf("expected no match, got %+v", got)
			}
		})
	}
}

type fakeReader struct {
	cells []history.LoggedCell
	err   error
	calls int
}

func (f *fakeReader) Entries() ([]history.LoggedCell, error) {
	f.calls++
	out := make([]history.LoggedCell, len(f.cells))
	copy(out, f.cells)
	return out, f.err
}

func TestMatcherIgnoresTechnologyTag(t *testing.T) {
	here := geo.Point{Lat: 35, Lon: 139}
	reader := &fakeReader{cells: []history.LoggedCell{
		{ID: "1000001", Technology: cell.TechNR, Channel: 500, PCI: 3, BestLocation: &here},
		{ID: "1000002", Technology: cell.TechLTE, Channel: 500, PCI: 3, BestLocation: &here},
	}}
	m := NewMatcher(reader)
	meas := cell.Measurement{Technology: cell.TechLTE, CellID: 268435455, Channel: 500, PCI: 3}
	got, err := m.Match(meas, &here)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got == nil || got.ID != "1000001" {
		t.Fatalf("expected first record in scan order, got %+v", got)
	}
}

func TestMatcherSkipsSentinelRecords(t *testing.T) {
	here := geo.Point{Lat: 40.001, Lon: -75}
	logged := geo.Point{Lat: 40, Lon: -75}
	tests := []struct {
		name  string
		cells []history.LoggedCell
		want  string
	}{
		{
			name:  "only sentinel",
			cells: []history.LoggedCell{{ID: "268435455", Technology: cell.TechLTE, Channel: 5230, PCI: 7, BestLocation: &logged}},
		},
		{
			name: "int max then real",
			cells: []history.LoggedCell{
				{ID: "2147483647", Technology: cell.TechLTE, Channel: 5230, PCI: 7, BestLocation: &logged},
				{ID: "25600", Technology: cell.TechLTE, Channel: 5230, PCI: 7, BestLocation: &logged},
			},
			want: "25600",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(&fakeReader{cells: tt.cells})
			got, err := m.Match(cell.Measurement{Technology: cell.TechLTE, CellID: 268435455, Channel: 5230, PCI: 7}, &here)
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			switch {
			case tt.want == "" && got != nil:
				t.Fatalf("expected no match, got %+v", got)
			case tt.want != "" && (got == nil || got.ID != tt.want):
				t.Fatalf("expected %s, got %+v", tt.want, got)
			}
		})
	}
}

func TestMatcherSkipsKnownIdentifiers(t *testing.T) {
	here := geo.Point{Lat: 35, Lon: 139}
	reader := &fakeReader{cells: []history.LoggedCell{{ID: "x", Channel: 1, PCI: 1, BestLocation: &here}}}
	m := NewMatcher(reader)
	got, err := m.Match(cell.Measurement{Technology: cell.TechLTE, CellID: 12345, Channel: 1, PCI: 1}, &here)
	if err != nil || got != nil {
		t.Fatalf("expected no lookup for known id, got %+v, %v", got, err)
	}
	if reader.calls != 0 {
		t.Fatalf("history should not be scanned for known ids")
	}
}

func TestMatcherPropagatesReadError(t *testing.T) {
	here := geo.Point{}
	boom := errors.New("boom")
	m := NewMatcher(&fakeReader{err: boom})
	_, err := m.Match(cell.Measurement{Technology: cell.TechLTE, CellID: 268435455}, &here)
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}
