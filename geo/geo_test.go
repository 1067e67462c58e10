package geo

import (
	"math"
	"testing"
)

func TestHaversineSamePointIsZero(t *testing.T) {
	if d := HaversineMeters(40.7128, -74.0060, 40.7128, -74.0060); math.Abs(d) > 1e-6 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineOneDegreeLatitudeAtEquator(t *testing.T) {
	d := HaversineMeters(0, 0, 1, 0)
	want := 111195.0
	if math.Abs(d-want)/want > 0.01 {
		t.Fatalf("distance=%f want ~%f", d, want)
	}
}

func TestHaversineIsSymmetric(t *testing.T) {
	a := Point{Lat: 35.0, Lon: -97.0}
	b := Point{Lat: 35.3, Lon: -97.2}
	if math.Abs(DistanceMeters(a, b)-DistanceMeters(b, a)) > 1e-9 {
		t.Fatalf("distance not symmetric")
	}
}

func TestMiles(t *testing.T) {
	if got := Miles(20); math.Abs(got-32186.88) > 1e-6 {
		t.Fatalf("Miles(20)=%f", got)
	}
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{name: "origin", p: Point{}, want: true},
		{name: "edge", p: Point{Lat: -90, Lon: 180}, want: true},
		{name: "lat_out", p: Point{Lat: 91}, want: false},
		{name: "nan", p: Point{Lat: math.NaN()}, want: false},
		{name: "inf", p: Point{Lon: math.Inf(1)}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Valid(); got != tt.want {
				t.Fatalf("Valid()=%v want %v", got, tt.want)
			}
		})
	}
}

func TestBestFixPrefersSmallestAccuracy(t *testing.T) {
	fixes := []Fix{
		{Point: Point{Lat: 1, Lon: 1}, AccuracyMeters: 50, Provider: "network"},
		{Point: Point{Lat: 2, Lon: 2}, AccuracyMeters: 5, Provider: "gps"},
		{Point: Point{Lat: 3, Lon: 3}, AccuracyMeters: 0, Provider: "passive"},
		{Point: Point{Lat: 200, Lon: 2}, AccuracyMeters: 1, Provider: "broken"},
	}
	got := BestFix(fixes)
	if got == nil || got.Lat != 2 {
		t.Fatalf("expected gps fix, got %+v", got)
	}
}

func TestBestFixFallsBackToUnrankedFix(t *testing.T) {
	got := BestFix([]Fix{{Point: Point{Lat: 3, Lon: 3}}})
	if got == nil || got.Lat != 3 {
		t.Fatalf("expected unranked fix, got %+v", got)
	}
	if BestFix(nil) != nil {
		t.Fatalf("expected nil for no fixes")
	}
}

func TestGrid6(t *testing.T) {
	tests := []struct {
		name   string
		p      Point
		want   string
		wantOK bool
	}{
		{name: "origin", p: Point{}, want: "JJ00aa", wantOK: true},
		{name: "munich", p: Point{Lat: 48.1467, Lon: 11.6083}, want: "JN58td", wantOK: true},
		{name: "pole_clamp", p: Point{Lat: 90, Lon: 180}, want: "RR99xx", wantOK: true},
		{name: "invalid", p: Point{Lat: 95}, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Grid6(tt.p)
			if ok != tt.wantOK {
				t.Fatalf("ok=%v want %v (grid=%q)", ok, tt.wantOK, got)
			}
			if ok && got != tt.want {
				t.Fatalf("grid=%q want %q", got, tt.want)
			}
		})
	}
}
