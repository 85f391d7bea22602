// Command episim runs one simulation: it loads the run config and model
// program, builds the synthetic population, steps the epidemic hour by hour
// and writes the output tree under OUT/RUN<n>/.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"episim.ai/internal/persistence/report"
	"episim.ai/internal/protocol"
	"episim.ai/internal/sim/epi"
	"episim.ai/internal/sim/program"
	"episim.ai/internal/transport/monitor"
)

func main() {
	var (
		configPath = flag.String("config", "", "run config yaml path (optional)")
		programArg = flag.String("program", "", "model program path (overrides config)")
		seed       = flag.Int64("seed", 0, "rng seed (overrides config when nonzero)")
		days       = flag.Int("days", 0, "days to simulate (overrides config when nonzero)")
		runNumber  = flag.Int("run", 0, "run number (overrides config when nonzero)")
		outDir     = flag.String("out", "", "output directory (overrides config)")
		monAddr    = flag.String("monitor", "", "monitor listen address (overrides config)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[episim] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := program.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *programArg != "" {
		cfg.Program = *programArg
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *days != 0 {
		cfg.Days = *days
	}
	if *runNumber != 0 {
		cfg.RunNumber = *runNumber
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *monAddr != "" {
		cfg.MonitorAddr = *monAddr
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	src, err := program.Parse(cfg.Program, cfg.LibraryDir)
	if err != nil {
		logger.Fatalf("parse program: %v", err)
	}

	eng, err := epi.New(cfg, src, logger)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	for _, w := range eng.Warnings() {
		logger.Printf("warning: %s", w)
	}

	rep, err := report.New(cfg.OutputDir, cfg.RunNumber, eng)
	if err != nil {
		logger.Fatalf("report: %v", err)
	}
	if cfg.EnableHealthRecords {
		sink, err := rep.EnableRecords()
		if err != nil {
			logger.Fatalf("health records: %v", err)
		}
		eng.RecordFn = sink
	}
	if cfg.EnableSQLiteIndex {
		if err := rep.EnableIndex(eng); err != nil {
			logger.Fatalf("sqlite index: %v", err)
		}
	}

	var mon *monitor.Server
	var monSrv *http.Server
	if cfg.MonitorAddr != "" {
		mon = monitor.NewServer(runInfo(eng), logger)
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(200)
			_, _ = rw.Write([]byte("ok"))
		})
		mux.HandleFunc("/monitor/v1/bootstrap", mon.BootstrapHandler())
		mux.HandleFunc("/monitor/v1/ws", mon.WSHandler())
		monSrv = &http.Server{
			Addr:              cfg.MonitorAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("monitor listening on %s", cfg.MonitorAddr)
			if err := monSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("monitor: %v", err)
			}
		}()
	}

	eng.OnDayEnd = func(day int) {
		rep.Capture(day, eng)
		if mon != nil {
			mon.PublishDay(dayCounts(eng, day))
		}
	}

	start := time.Now()
	if err := eng.Run(); err != nil {
		logger.Fatalf("run: %v", err)
	}
	logger.Printf("simulated %d days in %s", cfg.Days, time.Since(start).Round(time.Millisecond))

	if err := rep.Finish(); err != nil {
		logger.Fatalf("write output: %v", err)
	}
	logger.Printf("output written to %s", rep.RunDir())

	if monSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = monSrv.Shutdown(ctx)
	}
}

func runInfo(eng *epi.Engine) protocol.RunInfoMsg {
	cfg := eng.Config()
	info := protocol.RunInfoMsg{
		RunNumber:  cfg.RunNumber,
		Seed:       cfg.Seed,
		Days:       cfg.Days,
		StartDate:  cfg.StartDate,
		Population: eng.PopulationSize(),
	}
	for _, c := range eng.Conditions() {
		ci := protocol.ConditionInfo{
			Name:             c.Name,
			TransmissionMode: c.Mode.String(),
		}
		for s := 0; s < c.States.Size(); s++ {
			ci.States = append(ci.States, c.States.Name(s))
		}
		info.Conditions = append(info.Conditions, ci)
	}
	return info
}

func dayCounts(eng *epi.Engine, day int) protocol.DayMsg {
	msg := protocol.DayMsg{
		Day:  day,
		Date: eng.Calendar().DateString(day),
	}
	for _, c := range eng.Conditions() {
		cc := protocol.ConditionCounts{Name: c.Name, RR: c.Epi.RR(day)}
		for s := 0; s < c.States.Size(); s++ {
			cc.New = append(cc.New, c.Epi.Incidence(s))
			cc.Current = append(cc.Current, c.Epi.Current(s))
			cc.Total = append(cc.Total, c.Epi.Total(s))
		}
		msg.Conditions = append(msg.Conditions, cc)
	}
	return msg
}
