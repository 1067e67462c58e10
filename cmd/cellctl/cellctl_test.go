package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cellinfo/csvlog"
	"cellinfo/prefs"
)

type env struct {
	dir     string
	history string
	prefs   string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	return env{
		dir:     dir,
		history: filepath.Join(dir, "history"),
		prefs:   filepath.Join(dir, "prefs"),
	}
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	base := []string{
		"--config", filepath.Join(e.dir, "missing-config"),
		"--history", e.history,
		"--prefs", e.prefs,
	}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func (e env) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const sampleLog = "cellId,type,timestamp,earfcn,pci,bandNumber,rsrp,bestRsrp,seen\n" +
	"12345678,LTE,1700000000000,66586,42,66,-101,-95,TRUE\n"

func TestImportListExport(t *testing.T) {
	e := newEnv(t)
	in := e.writeFile(t, "in.csv", sampleLog)

	if out := e.mustRun(t, "import", in); !strings.Contains(out, "imported 1 cells") {
		t.Fatalf("unexpected import output %q", out)
	}
	out := e.mustRun(t, "list", "--limit", "5")
	if !strings.Contains(out, "1 cells logged") || !strings.Contains(out, "12345678") || !strings.Contains(out, "-95 dBm") {
		t.Fatalf("unexpected list output %q", out)
	}

	exported := filepath.Join(e.dir, "out.csv")
	e.mustRun(t, "export", exported)
	f, err := os.Open(exported)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := csvlog.Read(f)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(rows) != 1 || rows[0].CellID != "12345678" || rows[0].BandNumber != "66" || rows[0].BestRSRP != "-95" {
		t.Fatalf("unexpected export rows %+v", rows)
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "import", e.writeFile(t, "in.csv", sampleLog))
	if _, err := e.run(t, "clear"); err == nil {
		t.Fatalf("clear without --yes should fail")
	}
	e.mustRun(t, "clear", "--yes")
	if out := e.mustRun(t, "list"); !strings.Contains(out, "0 cells logged") {
		t.Fatalf("history not cleared: %q", out)
	}
}

func TestCheckpointAndVerify(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "import", e.writeFile(t, "in.csv", sampleLog))
	dest := filepath.Join(e.dir, "ckpt")
	e.mustRun(t, "checkpoint", dest)
	if out := e.mustRun(t, "verify", "--checkpoint", dest); !strings.HasPrefix(out, "ok: 1 records") {
		t.Fatalf("unexpected verify output %q", out)
	}
	if out := e.mustRun(t, "verify"); !strings.HasPrefix(out, "ok: 1 records") {
		t.Fatalf("unexpected live verify output %q", out)
	}
}

func TestMergeKeepsNewestAndBest(t *testing.T) {
	e := newEnv(t)
	a := e.writeFile(t, "a.csv", "cellId,bandNumber,timestamp,rsrp,bestRsrp\n1,66,100,-110,-90\n")
	b := e.writeFile(t, "b.csv", "cellId,bandNumber,timestamp,rsrp,bestRsrp\n1,66,200,-100,-99\n2,12,150,-80,-80\n")
	out := filepath.Join(e.dir, "merged.csv")
	if msg := e.mustRun(t, "merge", out, a, b); !strings.Contains(msg, "merged 3 rows into 2 cells") {
		t.Fatalf("unexpected merge output %q", msg)
	}
	rows, err := readCSV(out)
	if err != nil {
		t.Fatalf("read merged: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", rows)
	}
	if rows[0].RSRP != "-100" || rows[0].BestRSRP != "-90" || rows[0].Timestamp != 200 {
		t.Fatalf("unexpected merged row %+v", rows[0])
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestConvertCellMapperFile(t *testing.T) {
	e := newEnv(t)
	in := e.writeFile(t, "mapper.csv", strings.Join([]string{
		"lat,lon,alt,mcc,mnc,tac,cellid,rsrp,type,subtype,earfcn,pci",
		"47.1,-122.1,0,310,260,100,12345678,-98,LTE,,66586,42",
		"47.2,-122.2,0,310,260,100,12345678,-91,LTE,,66586,42",
	}, "\n"))
	out := filepath.Join(e.dir, "log.csv")
	if msg := e.mustRun(t, "convert", in, out); !strings.Contains(msg, "converted 1 cells") {
		t.Fatalf("unexpected convert output %q", msg)
	}
	rows, err := readCSV(out)
	if err != nil {
		t.Fatalf("read converted: %v", err)
	}
	if len(rows) != 1 || rows[0].BestRSRP != "-91" || rows[0].Timestamp == 0 {
		t.Fatalf("unexpected converted rows %+v", rows)
	}
}

func TestBandLookup(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"band", "lte", "1300"}, "EARFCN 1300: band 3 (1200-1949)"},
		{[]string{"band", "nr", "632628"}, "NR-ARFCN 632628: band n77"},
		{[]string{"band", "lte", "999999"}, "unknown band"},
	}
	for _, tt := range tests {
		out := e.mustRun(t, tt.args...)
		if !strings.Contains(out, tt.want) {
			t.Fatalf("%v: expected %q in %q", tt.args, tt.want, out)
		}
	}
	if _, err := e.run(t, "band", "lte", "abc"); err == nil {
		t.Fatalf("expected error for non-numeric channel")
	}
}

func TestPrefsToggleMoveReset(t *testing.T) {
	e := newEnv(t)
	defaults, err := prefs.Defaults(prefs.SetLTE)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}

	e.mustRun(t, "prefs", "toggle", prefs.SetLTE, "RSRP")
	list, err := prefs.NewStore(e.prefs).Load(prefs.SetLTE)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, c := range list {
		if c.ID == "rsrp" && c.Enabled {
			t.Fatalf("rsrp should be disabled after toggle")
		}
	}

	e.mustRun(t, "prefs", "move", prefs.SetLTE, "1", "3")
	list, err = prefs.NewStore(e.prefs).Load(prefs.SetLTE)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if list[2].ID != defaults[0].ID {
		t.Fatalf("expected %s at position 3, got %s", defaults[0].ID, list[2].ID)
	}

	e.mustRun(t, "prefs", "reset", prefs.SetLTE)
	out := e.mustRun(t, "prefs", "list", prefs.SetLTE)
	if !strings.HasPrefix(out, " 1 [x] "+defaults[0].ID) {
		t.Fatalf("reset did not restore defaults: %q", out)
	}
}

func TestPrefsToggleSuggestsTypo(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "prefs", "toggle", prefs.SetLTE, "rsprp")
	if err == nil || !strings.Contains(err.Error(), `did you mean "rsrp"`) {
		t.Fatalf("expected suggestion, got %v", err)
	}
	if _, err := e.run(t, "prefs", "list", "Bogus"); err == nil {
		t.Fatalf("expected unknown set error")
	}
}

func TestDecodeFrames(t *testing.T) {
	e := newEnv(t)
	frames := e.writeFile(t, "frames.jsonl",
		`{"cells":[{"technology":"LTE","cell_id":12345678,"channel":66586,"pci":42,"rsrp":-97}],"location":{"lat":47.6,"lon":-122.3}}`+"\n")
	out := e.mustRun(t, "decode", frames)
	if !strings.Contains(out, "frame 1: 1 cells") || !strings.Contains(out, "-97 dBm") {
		t.Fatalf("unexpected decode output %q", out)
	}
	out = e.mustRun(t, "decode", "--json", frames)
	if !strings.HasPrefix(out, "[{") || !strings.Contains(out, `"label":"RSRP"`) {
		t.Fatalf("unexpected json output %q", out)
	}
}
