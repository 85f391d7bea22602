// Package report writes the per-run output tree: daily per-state count
// files, the joined per-condition CSV with the reproduction-rate series,
// compressed health records, and a SQLite run index.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"episim.ai/internal/sim/epi"
)

// dayCounts is one day of one condition's counters, per state.
type dayCounts struct {
	day          int
	new, cur, to []int
	reportSum    float64
}

// condSeries holds one condition's captured days. The reproduction rate is
// not snapshotted with them: a day's cohort keeps accruing secondary cases
// for as long as its members transmit, so the series is read back from the
// live epidemic when the files are written.
type condSeries struct {
	name   string
	states []string
	rr     func(day int) float64
	days   []dayCounts
}

func (cs *condSeries) rrAt(day int) float64 {
	if cs.rr == nil {
		return -1
	}
	return cs.rr(day)
}

// Writer accumulates daily snapshots and writes the output tree on Finish.
type Writer struct {
	runDir string
	conds  []*condSeries

	records *RecordsWriter
	index   *Index
}

// New creates RUN<n>/ under outputDir and prepares one series per condition.
func New(outputDir string, runNumber int, eng *epi.Engine) (*Writer, error) {
	runDir := filepath.Join(outputDir, fmt.Sprintf("RUN%d", runNumber))
	if err := os.MkdirAll(filepath.Join(runDir, "DAILY"), 0o755); err != nil {
		return nil, err
	}
	w := &Writer{runDir: runDir}
	for _, c := range eng.Conditions() {
		cs := &condSeries{name: c.Name, rr: c.Epi.RR}
		for s := 0; s < c.States.Size(); s++ {
			cs.states = append(cs.states, c.States.Name(s))
		}
		w.conds = append(w.conds, cs)
	}
	return w, nil
}

func (w *Writer) RunDir() string { return w.runDir }

// EnableRecords attaches a compressed health-record stream and returns the
// line sink to install as the engine's record hook.
func (w *Writer) EnableRecords() (func(string), error) {
	r, err := NewRecordsWriter(filepath.Join(w.runDir, "Records.txt.zst"))
	if err != nil {
		return nil, err
	}
	w.records = r
	return r.WriteLine, nil
}

// EnableIndex attaches the SQLite run index.
func (w *Writer) EnableIndex(eng *epi.Engine) error {
	idx, err := OpenIndex(filepath.Join(w.runDir, "index.db"), eng)
	if err != nil {
		return err
	}
	w.index = idx
	return nil
}

// Capture snapshots one finished day. Install as the engine's OnDayEnd hook.
func (w *Writer) Capture(day int, eng *epi.Engine) {
	for i, c := range eng.Conditions() {
		cs := w.conds[i]
		dc := dayCounts{day: day, reportSum: c.Epi.ReportSum}
		for s := range cs.states {
			dc.new = append(dc.new, c.Epi.Incidence(s))
			dc.cur = append(dc.cur, c.Epi.Current(s))
			dc.to = append(dc.to, c.Epi.Total(s))
		}
		cs.days = append(cs.days, dc)
		if w.index != nil {
			w.index.WriteDay(cs.name, cs.states, day, dc)
		}
	}
}

// Finish writes every output file and closes the attached streams.
func (w *Writer) Finish() error {
	for _, cs := range w.conds {
		if err := w.writeDailyFiles(cs); err != nil {
			return err
		}
		if err := w.writeCSV(cs); err != nil {
			return err
		}
		if err := w.writeRR(cs); err != nil {
			return err
		}
	}
	if w.records != nil {
		if err := w.records.Close(); err != nil {
			return err
		}
	}
	if w.index != nil {
		return w.index.Close()
	}
	return nil
}

// writeDailyFiles emits DAILY/<C>.new<S>.txt, <C>.<S>.txt and <C>.tot<S>.txt
// with one "day count" line per day.
func (w *Writer) writeDailyFiles(cs *condSeries) error {
	dir := filepath.Join(w.runDir, "DAILY")
	for s, state := range cs.states {
		files := map[string]func(dayCounts) int{
			fmt.Sprintf("%s.new%s.txt", cs.name, state): func(d dayCounts) int { return d.new[s] },
			fmt.Sprintf("%s.%s.txt", cs.name, state):    func(d dayCounts) int { return d.cur[s] },
			fmt.Sprintf("%s.tot%s.txt", cs.name, state): func(d dayCounts) int { return d.to[s] },
		}
		for name, get := range files {
			var b strings.Builder
			for _, d := range cs.days {
				fmt.Fprintf(&b, "%d %d\n", d.day, get(d))
			}
			if err := os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeCSV emits the joined <C>.csv: Day, then new/current/total per state,
// then the RR column.
func (w *Writer) writeCSV(cs *condSeries) error {
	var b strings.Builder
	b.WriteString("Day")
	for _, state := range cs.states {
		fmt.Fprintf(&b, ",%s.new%s,%s.%s,%s.tot%s", cs.name, state, cs.name, state, cs.name, state)
	}
	fmt.Fprintf(&b, ",%s.RR,%s.report\n", cs.name, cs.name)

	for _, d := range cs.days {
		fmt.Fprintf(&b, "%d", d.day)
		for s := range cs.states {
			fmt.Fprintf(&b, ",%d,%d,%d", d.new[s], d.cur[s], d.to[s])
		}
		fmt.Fprintf(&b, ",%s,%g\n", formatRR(cs.rrAt(d.day)), d.reportSum)
	}
	return os.WriteFile(filepath.Join(w.runDir, cs.name+".csv"), []byte(b.String()), 0o644)
}

func (w *Writer) writeRR(cs *condSeries) error {
	var b strings.Builder
	for _, d := range cs.days {
		fmt.Fprintf(&b, "%d %s\n", d.day, formatRR(cs.rrAt(d.day)))
	}
	name := fmt.Sprintf("%s.RR.txt", cs.name)
	return os.WriteFile(filepath.Join(w.runDir, name), []byte(b.String()), 0o644)
}

// formatRR renders -1 (empty cohort) as "NA".
func formatRR(rr float64) string {
	if rr < 0 {
		return "NA"
	}
	return fmt.Sprintf("%.4f", rr)
}
