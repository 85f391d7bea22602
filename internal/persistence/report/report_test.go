package report

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"episim.ai/internal/sim/epi"
	"episim.ai/internal/sim/program"
)

const testProgram = `
condition REP {
	states = A B
	state A { wait(24); next(B) }
	state B { wait() }
}
`

func testRun(t *testing.T) (*Writer, *epi.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := program.RunConfig{
		Seed:      7,
		Days:      3,
		StartDate: "2020-01-01",
		RunNumber: 1,
		OutputDir: dir,
		MaxLoops:  10,
	}
	src, err := program.ParseText(testProgram)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	eng, err := epi.New(cfg, src, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	w, err := New(dir, cfg.RunNumber, eng)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	return w, eng, dir
}

func TestWriterOutputTree(t *testing.T) {
	w, eng, dir := testRun(t)
	if err := w.EnableIndex(eng); err != nil {
		t.Fatalf("index: %v", err)
	}
	eng.OnDayEnd = func(day int) { w.Capture(day, eng) }
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	runDir := filepath.Join(dir, "RUN1")
	if w.RunDir() != runDir {
		t.Fatalf("run dir = %q", w.RunDir())
	}

	// One file per state and counter kind, one line per day.
	for _, name := range []string{"REP.newA.txt", "REP.A.txt", "REP.totA.txt", "REP.B.txt"} {
		data, err := os.ReadFile(filepath.Join(runDir, "DAILY", name))
		if err != nil {
			t.Fatalf("daily file: %v", err)
		}
		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if len(lines) != 3 {
			t.Fatalf("%s has %d lines, want 3", name, len(lines))
		}
		if !strings.HasPrefix(lines[0], "0 ") || !strings.HasPrefix(lines[2], "2 ") {
			t.Fatalf("%s day column wrong: %v", name, lines)
		}
	}

	data, err := os.ReadFile(filepath.Join(runDir, "REP.csv"))
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("csv has %d lines, want header + 3 days", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Day,") || !strings.HasSuffix(lines[0], ",REP.RR,REP.report") {
		t.Fatalf("csv header: %q", lines[0])
	}
	// A non-transmissible condition has empty cohorts and no report sum.
	if !strings.HasSuffix(lines[1], ",NA,0") {
		t.Fatalf("csv day row: %q", lines[1])
	}

	rr, err := os.ReadFile(filepath.Join(runDir, "REP.RR.txt"))
	if err != nil {
		t.Fatalf("rr file: %v", err)
	}
	if !strings.HasPrefix(string(rr), "0 NA\n") {
		t.Fatalf("rr series: %q", rr)
	}

	if _, err := os.Stat(filepath.Join(runDir, "index.db")); err != nil {
		t.Fatalf("index db: %v", err)
	}
}

const spreadProgram = `
condition INF {
	transmission_mode = proximity
	transmissibility = 1.0
	exposed_state = Exposed
	states = Susceptible Exposed Infectious Recovered
	state Susceptible { susceptibility = 1; wait() }
	state Exposed { susceptibility = 0; wait(24); next(Infectious) }
	state Infectious { transmissibility = 1; wait(72); next(Recovered) }
	state Recovered { wait() }
}
Household.contact_count_for_INF = 50
Household.can_transmit_INF = 1
Household.density_contact_prob_for_INF = 1
Household.deterministic_contacts_for_INF = 1
if state(INF.Start) and id == 1 then set_state(INF.Exposed)
`

// Secondary cases keep accruing to the seed's exposure cohort for days after
// the cohort's own day is captured, so the written series must carry the
// end-of-run rate, not a day-of snapshot.
func TestReproductionRateSeries(t *testing.T) {
	dir := t.TempDir()
	people := filepath.Join(t.TempDir(), "people.txt")
	content := "sp_id hh_id age sex race relate school_id work_id\n" +
		"1 H1 30 1 0 0 X X\n" +
		"2 H1 28 2 0 0 X X\n" +
		"3 H1 8 2 0 0 X X\n" +
		"4 H1 65 1 0 0 X X\n"
	if err := os.WriteFile(people, []byte(content), 0o644); err != nil {
		t.Fatalf("write population: %v", err)
	}
	cfg := program.RunConfig{
		Seed:                   12345,
		Days:                   10,
		StartDate:              "2020-01-01",
		RunNumber:              1,
		OutputDir:              dir,
		Households:             people,
		FrequencyReferenceSize: 10,
	}
	src, err := program.ParseText(spreadProgram)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	eng, err := epi.New(cfg, src, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	w, err := New(dir, cfg.RunNumber, eng)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	eng.OnDayEnd = func(day int) { w.Capture(day, eng) }
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	// The seed is exposed on day 0; its three household members become its
	// secondary cases on day 1, after day 0 was captured.
	rr, err := os.ReadFile(filepath.Join(dir, "RUN1", "INF.RR.txt"))
	if err != nil {
		t.Fatalf("rr file: %v", err)
	}
	if !strings.HasPrefix(string(rr), "0 3.0000\n") {
		t.Fatalf("day-0 reproduction rate = %q, want 3.0000", strings.SplitN(string(rr), "\n", 2)[0])
	}

	data, err := os.ReadFile(filepath.Join(dir, "RUN1", "INF.csv"))
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if !strings.HasSuffix(lines[1], ",3.0000,0") {
		t.Fatalf("csv day-0 row: %q", lines[1])
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Records.txt.zst")
	r, err := NewRecordsWriter(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r.WriteLine("2020-01-01 1 REP A B")
	r.WriteLine("2020-01-02 2 REP A B")
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	r.WriteLine("dropped after close")

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	defer dec.Close()
	got, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	want := "2020-01-01 1 REP A B\n2020-01-02 2 REP A B\n"
	if string(got) != want {
		t.Fatalf("records = %q, want %q", got, want)
	}
}

func TestFormatRR(t *testing.T) {
	if formatRR(-1) != "NA" {
		t.Fatalf("empty cohort should format as NA")
	}
	if got := formatRR(1.5); got != "1.5000" {
		t.Fatalf("formatRR(1.5) = %q", got)
	}
}
