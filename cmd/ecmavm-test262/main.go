package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"ecmavm/pkg/config"
	"ecmavm/pkg/parser"
)

const debugHarness = false

func debugPrintf(format string, args ...interface{}) {
	if debugHarness {
		fmt.Printf(format, args...)
	}
}

var log = commonlog.GetLogger("ecmavm.test262")

func main() {
	var (
		testPath   = flag.String("path", "", "Path to test262 directory")
		subPath    = flag.String("subpath", "", "Subdirectory within test/ (e.g., 'language/expressions', 'built-ins/Array')")
		pattern    = flag.String("pattern", "*.js", "File pattern for test files")
		limit      = flag.Int("limit", 0, "Limit number of tests to run (0 = no limit)")
		timeout    = flag.Duration("timeout", 5*time.Second, "Timeout per test (e.g., 5s, 1m)")
		jobs       = flag.Int("j", 0, "Number of tests run in parallel (0 = one per CPU)")
		verbose    = flag.Bool("verbose", false, "Print every result, not only failures")
		quiet      = flag.Bool("q", false, "Print only the summary")
		suiteMode  = flag.Bool("suite", false, "Show pass rates per directory below test/")
		dbPath     = flag.String("db", "", "Store results in this SQLite database and report changes since the previous run")
		configPath = flag.String("config", "", "Engine configuration file")
		disasm     = flag.Bool("disasm", false, "Print bytecode disassembly on failures")
		gcstats    = flag.Bool("gcstats", false, "Print Go memory statistics after the run")
		verbosity  = flag.Int("v", 0, "Log verbosity")
	)
	flag.Parse()
	parser.DumpASTEnabled = false
	commonlog.Configure(*verbosity, nil)

	if *testPath == "" {
		fmt.Fprintf(os.Stderr, "Error: test262 path not specified\n")
		fmt.Fprintf(os.Stderr, "Usage: %s -path /path/to/test262\n", os.Args[0])
		os.Exit(1)
	}
	testDir := filepath.Join(*testPath, "test")
	if _, err := os.Stat(testDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: test262 test directory not found at %s\n", testDir)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}
	cfg.Cache.Dir = ""

	searchDir := testDir
	if *subPath != "" {
		searchDir = filepath.Join(testDir, strings.TrimSuffix(*subPath, "/**"))
	}
	testFiles, err := findTestFiles(searchDir, *pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error finding test files: %v\n", err)
		os.Exit(1)
	}
	if *limit > 0 && len(testFiles) > *limit {
		testFiles = testFiles[:*limit]
	}
	fmt.Printf("Running Test262 suite from: %s\n", *testPath)
	fmt.Printf("Found %d test files\n", len(testFiles))

	runner := NewRunner(*testPath, cfg, *timeout)
	runner.Disasm = *disasm

	started := time.Now()
	results := runAll(runner, testFiles, *jobs, func(r Result) {
		report(r, *verbose, *quiet, *disasm)
	})
	stats := tally(results)
	stats.Duration = time.Since(started)

	if *suiteMode {
		printSuiteSummary(results)
	}
	printSummary(&stats)

	if *dbPath != "" {
		if err := saveRun(*dbPath, *testPath, started, results, stats); err != nil {
			fmt.Fprintf(os.Stderr, "Error storing results: %v\n", err)
			os.Exit(1)
		}
	}
	if *gcstats {
		printGCStats()
	}
	if stats.Failed > 0 || stats.Crashed > 0 {
		os.Exit(1)
	}
}

// findTestFiles lists the test files below dir matching pattern, in
// lexical order. Fixture files are support files, not tests.
func findTestFiles(dir, pattern string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.Contains(name, "_FIXTURE") {
			return nil
		}
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return err
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// runAll runs files on a worker pool, calling each for every result as
// it arrives. The returned results are sorted by path and mode.
func runAll(r *Runner, files []string, workers int, each func(Result)) []Result {
	pool := newWorkerPool(r, workers)
	if err := pool.Start(context.Background()); err != nil {
		log.Errorf("%s", err)
		return nil
	}
	go func() {
		defer pool.Close()
		for _, f := range files {
			if err := pool.Submit(f); err != nil {
				log.Errorf("cannot submit %s: %s", f, err)
				return
			}
		}
	}()

	var all []Result
	for batch := range pool.Results() {
		for _, res := range batch {
			each(res)
			all = append(all, res)
		}
	}
	st := pool.Stats()
	log.Infof("%d workers ran %d files in %v of test time", st.Workers, st.Completed, st.TotalTime)

	sort.Slice(all, func(i, j int) bool {
		if all[i].Path != all[j].Path {
			return all[i].Path < all[j].Path
		}
		return all[i].Mode < all[j].Mode
	})
	return all
}

func report(r Result, verbose, quiet, disasm bool) {
	if quiet {
		return
	}
	name := r.Path
	if r.Mode != "" {
		name += " [" + r.Mode + "]"
	}
	switch r.Status {
	case StatusPass:
		if verbose {
			fmt.Printf("PASS %s (%v)\n", name, r.Duration.Round(time.Millisecond))
		}
	case StatusSkip:
		if verbose {
			fmt.Printf("SKIP %s - %s\n", name, r.Message)
		}
	default:
		fmt.Printf("%s %s - %s\n", strings.ToUpper(string(r.Status)), name, r.Message)
		log.Infof("%s %s: %s", r.Status, name, r.Message)
		if disasm && r.Disasm != "" {
			fmt.Println(r.Disasm)
		}
	}
}

// Stats tracks test statistics.
type Stats struct {
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	Timeouts int
	Crashed  int
	Duration time.Duration
}

func (s *Stats) add(status Status) {
	s.Total++
	switch status {
	case StatusPass:
		s.Passed++
	case StatusFail:
		s.Failed++
	case StatusSkip:
		s.Skipped++
	case StatusTimeout:
		s.Timeouts++
	case StatusCrash:
		s.Crashed++
	}
}

func tally(results []Result) Stats {
	var s Stats
	for _, r := range results {
		s.add(r.Status)
	}
	return s
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func printSummary(stats *Stats) {
	fmt.Printf("\n=== Test262 Summary ===\n")
	fmt.Printf("Total:    %d\n", stats.Total)
	fmt.Printf("Passed:   %d (%.1f%%)\n", stats.Passed, percent(stats.Passed, stats.Total))
	fmt.Printf("Failed:   %d (%.1f%%)\n", stats.Failed, percent(stats.Failed, stats.Total))
	fmt.Printf("Timeouts: %d (%.1f%%)\n", stats.Timeouts, percent(stats.Timeouts, stats.Total))
	fmt.Printf("Crashed:  %d (%.1f%%)\n", stats.Crashed, percent(stats.Crashed, stats.Total))
	fmt.Printf("Skipped:  %d (%.1f%%)\n", stats.Skipped, percent(stats.Skipped, stats.Total))
	fmt.Printf("Duration: %v\n", stats.Duration)
	fmt.Printf("======================\n")
}

// printSuiteSummary prints pass rates grouped by the first two path
// segments below test/, e.g. "language/expressions".
func printSuiteSummary(results []Result) {
	groups := make(map[string]*Stats)
	var names []string
	for _, r := range results {
		parts := strings.Split(filepath.ToSlash(r.Path), "/")
		if len(parts) > 2 {
			parts = parts[:2]
		} else {
			parts = parts[:len(parts)-1]
		}
		key := strings.Join(parts, "/")
		s, ok := groups[key]
		if !ok {
			s = &Stats{}
			groups[key] = s
			names = append(names, key)
		}
		s.add(r.Status)
	}
	sort.Strings(names)
	fmt.Printf("\n%-50s %8s %34s\n", "Suite", "% Passed", "Total/Pass/Fail/Skip/Timeout/Crash")
	fmt.Println(strings.Repeat("-", 94))
	for _, name := range names {
		s := groups[name]
		run := s.Total - s.Skipped
		fmt.Printf("%-50s %7.1f%% %34s\n", name, percent(s.Passed, run),
			fmt.Sprintf("%d/%d/%d/%d/%d/%d", s.Total, s.Passed, s.Failed, s.Skipped, s.Timeouts, s.Crashed))
	}
}

func saveRun(dbPath, root string, started time.Time, results []Result, stats Stats) error {
	store, err := OpenStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	runID, err := store.BeginRun(root, started)
	if err != nil {
		return err
	}
	if err := store.SaveResults(runID, results); err != nil {
		return err
	}
	if err := store.FinishRun(runID, stats); err != nil {
		return err
	}
	changes, err := store.Changes(runID)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	fmt.Printf("\n=== Changes since previous run ===\n")
	for _, c := range changes {
		fmt.Printf("%-8s -> %-8s %s [%s]\n", c.Before, c.After, c.Path, c.Mode)
	}
	return nil
}

// printGCStats prints Go runtime memory statistics.
func printGCStats() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fmt.Printf("\n=== Memory Statistics ===\n")
	fmt.Printf("TotalAlloc (total):  %.2f MB\n", float64(memStats.TotalAlloc)/1024/1024)
	fmt.Printf("Sys (from OS):       %.2f MB\n", float64(memStats.Sys)/1024/1024)
	fmt.Printf("HeapInuse:           %.2f MB\n", float64(memStats.HeapInuse)/1024/1024)
	fmt.Printf("NumGC:               %d\n", memStats.NumGC)
	fmt.Printf("PauseTotalNs:        %.2f ms\n", float64(memStats.PauseTotalNs)/1000000)
	fmt.Printf("========================\n")
}
