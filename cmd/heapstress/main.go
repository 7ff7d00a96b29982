// Heapstress drives the Ferrite object-lifecycle core under concurrent
// load: mutator goroutines churn reference counts and defer frees
// through a shared epoch GC while a background collector reclaims,
// then the run is checked for leaks and pause-budget violations.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/ferrite/heap"
)

var log = commonlog.GetLogger("heapstress")

func main() {
	configPath := flag.String("config", "", "TOML stress profile (defaults apply if omitted)")
	mutators := flag.Int("mutators", 0, "Override mutator count from the profile")
	ops := flag.Int("ops", 0, "Override ops-per-mutator from the profile")
	reportPath := flag.String("report", "", "Write a CBOR run report to this path")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: heapstress [options]\n\n")
		fmt.Fprintf(os.Stderr, "Stresses the Ferrite heap core and reports reclaim/pause statistics.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  heapstress                        # Default profile: 8 mutators x 10k ops\n")
		fmt.Fprintf(os.Stderr, "  heapstress -config soak.toml      # Run a saved profile\n")
		fmt.Fprintf(os.Stderr, "  heapstress -mutators 16 -ops 50000 -report run.cbor\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	cfg := heap.DefaultStressConfig()
	if *configPath != "" {
		loaded, err := heap.LoadStressConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading profile: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *mutators > 0 {
		cfg.Mutators = *mutators
	}
	if *ops > 0 {
		cfg.OpsPerMutator = *ops
	}
	if *reportPath != "" {
		cfg.ReportPath = *reportPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid profile: %v\n", err)
		os.Exit(1)
	}

	report, err := run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("run %s: %d mutators, %d submitted, %d reclaimed, %d sweeps\n",
		report.RunID, report.Mutators, report.Submitted, report.Reclaimed, report.Sweeps)
	fmt.Printf("pauses: last %v, max %v (budget %v)\n",
		report.LastPause, report.MaxPause, cfg.PauseBudget)

	if cfg.ReportPath != "" {
		data, err := heap.MarshalReport(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(cfg.ReportPath, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Printf("Wrote report to %s (%d bytes)\n", cfg.ReportPath, len(data))
		}
	}

	failed := false
	if report.LeakedCount != 0 {
		fmt.Fprintf(os.Stderr, "LEAK: %d deferred entries never dropped\n", report.LeakedCount)
		failed = true
	}
	if report.MaxPause > cfg.PauseBudget {
		fmt.Fprintf(os.Stderr, "PAUSE: max pause %v exceeded budget %v\n", report.MaxPause, cfg.PauseBudget)
		failed = true
	}
	if failed {
		os.Exit(1)
	}
}

// node is a stand-in heap value: a header at offset zero plus an
// opaque payload, matching how the allocator lays out real objects.
type node struct {
	header  heap.ObjectHeader
	payload []byte
}

// run executes one stress pass and returns its report.
func run(cfg *heap.StressConfig) (*heap.CollectorReport, error) {
	gc := heap.NewEpochGC(cfg.SlotCapacity)

	var collector *heap.Collector
	if !cfg.CollectInline {
		collector = heap.NewCollector(gc, cfg.CollectInterval)
		collector.Start()
	}

	report := heap.NewCollectorReport(cfg.Mutators)
	start := time.Now()

	var submitted, dropped atomic.Uint64
	var wg sync.WaitGroup
	errs := make(chan error, cfg.Mutators)

	for i := 0; i < cfg.Mutators; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			id, ok := gc.RegisterThread()
			if !ok {
				errs <- fmt.Errorf("mutator %d: no free thread slot", worker)
				return
			}
			defer gc.UnregisterThread(id)

			for op := 0; op < cfg.OpsPerMutator; op++ {
				gc.EnterEpoch(id)

				n := &node{payload: make([]byte, cfg.PayloadBytes)}
				n.header.Init(heap.TagInstance, heap.FlagsNone)

				// Churn the count the way interpreter pointer copies
				// would, ending back at one.
				n.header.IncRef()
				n.header.IncRef()
				n.header.DecRef()
				n.header.DecRef()

				for w := 0; w < cfg.WeakRefsPerCycle; w++ {
					wr := heap.NewWeakRef(&n.header)
					if wr.Upgrade() {
						n.header.DecRef()
					}
					wr.Release()
				}

				if n.header.DecRefWithCleanup(nil) {
					submitted.Add(1)
					gc.DeferFree(id, unsafe.Pointer(n), func(p unsafe.Pointer) {
						obj := (*node)(p)
						obj.payload = nil
						dropped.Add(1)
					})
				}

				gc.ExitEpoch(id)

				if cfg.CollectInline && op%256 == 0 {
					gc.TryCollect()
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			if collector != nil {
				collector.Stop()
			}
			return nil, err
		}
	}

	if collector != nil {
		// One final timed sweep before teardown so the stats include
		// the post-load state.
		collector.Sweep()
		collector.Stop()
	} else {
		gc.TryCollect()
	}

	leaked := gc.ForceCollectAll()
	log.Infof("drained %d entries at teardown", leaked)

	report.Duration = time.Since(start)
	report.Submitted = submitted.Load()
	report.Reclaimed = dropped.Load()
	report.FinalEpoch = gc.CurrentEpoch()
	report.LeakedCount = int(submitted.Load() - dropped.Load())
	if collector != nil {
		stats := collector.Stats()
		report.Sweeps = stats.Sweeps
		report.LastPause = stats.LastPause
		report.MaxPause = stats.MaxPause
	}
	return report, nil
}
