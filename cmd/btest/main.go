// btest runs bright scripts in-process and compares what they print, return and
// fail with against golden files stored next to them.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/xplshn/bright"
	"github.com/xplshn/bright/pkg/cli"
	"github.com/xplshn/bright/pkg/config"
	"github.com/xplshn/bright/pkg/util"
	"github.com/xplshn/bright/pkg/value"
)

type Execution struct {
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	Results        []string      `json:"results,omitempty"`
	Error          string        `json:"error,omitempty"`
	ExitCode       int           `json:"exitCode"`
	Duration       time.Duration `json:"duration"`
	TimedOut       bool          `json:"timed_out"`
	UnstableOutput bool          `json:"unstable_output,omitempty"`
}

type TestRun struct {
	Name   string    `json:"name"`
	Args   []string  `json:"args,omitempty"`
	Result Execution `json:"result"`
}

type ScriptResult struct {
	Compile Execution `json:"compile"`
	Runs    []TestRun `json:"runs"`
}

type FileTestResult struct {
	File    string        `json:"file"`
	Status  string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string        `json:"message,omitempty"`
	Diff    string        `json:"diff,omitempty"`
	Golden  *ScriptResult `json:"golden,omitempty"`
	Actual  *ScriptResult `json:"actual,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

// A `// [btest]: name arg...` line in a script adds a run with those arguments.
const runDirective = "[btest]:"

type options struct {
	generate   bool
	testFiles  string
	skipFiles  string
	outputJSON string
	jsonDir    string
	profile    string
	timeout    time.Duration
	jobs       int
	runs       int
	verbose    bool
}

func main() {
	log.SetFlags(0)

	app := cli.NewApp("btest")
	app.Synopsis = "[options] [--generate-golden] [script.bright...]"
	app.Description = "Runs bright scripts and checks their output against golden files."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/bright>"
	app.Since = 2025

	var o options
	jobs, runs := "4", "3"
	fs := app.FlagSet
	fs.Bool(&o.generate, "generate-golden", "g", false, "Write golden files for the given scripts instead of testing.")
	fs.String(&o.testFiles, "test-files", "", "tests/*.bright", "Glob pattern(s) for scripts to test (space-separated).", "globs")
	fs.String(&o.skipFiles, "skip-files", "", "", "Scripts to skip (space-separated).", "files")
	fs.String(&o.outputJSON, "output", "o", ".test_results.json", "Write the JSON test report to <file>.", "file")
	fs.String(&o.jsonDir, "dir", "", "", "Directory for golden files (defaults to each script's directory).", "dir")
	fs.String(&o.profile, "profile", "P", "strict", "Settings profile scripts compile with.", "profile")
	fs.Duration(&o.timeout, "timeout", "t", 5*time.Second, "Timeout for each run.")
	fs.String(&jobs, "jobs", "j", jobs, "Number of parallel test jobs.", "n")
	fs.String(&runs, "runs", "r", runs, "Runs per case; differing output marks the case unstable.", "n")
	fs.Bool(&o.verbose, "verbose", "v", false, "Print per-run timings.")

	app.Action = func(args []string) error {
		if _, err := fmt.Sscan(jobs, &o.jobs); err != nil || o.jobs < 1 {
			return fmt.Errorf("invalid --jobs value %q", jobs)
		}
		if _, err := fmt.Sscan(runs, &o.runs); err != nil || o.runs < 1 {
			return fmt.Errorf("invalid --runs value %q", runs)
		}
		if err := config.NewConfig().ApplyProfile(o.profile); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		patterns := o.testFiles
		if len(args) > 0 {
			patterns = strings.Join(args, " ")
		}
		files, err := expandGlobPatterns(patterns)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			log.Println("No test files found matching the pattern(s).")
			return nil
		}
		if o.generate {
			return handleGenerateGolden(ctx, &o, files)
		}
		return handleRunTestSuite(ctx, &o, files)
	}

	if err := app.Run(os.Args[1:]); err != nil {
		log.Printf("%s[ERROR]%s %v", cRed, cNone, err)
		os.Exit(1)
	}
}

func (o *options) goldenPath(sourceFile string) string {
	name := "." + filepath.Base(sourceFile) + ".json"
	if o.jsonDir != "" {
		return filepath.Join(o.jsonDir, name)
	}
	return filepath.Join(filepath.Dir(sourceFile), name)
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func handleGenerateGolden(ctx context.Context, o *options, files []string) error {
	if o.jsonDir != "" {
		if err := os.MkdirAll(o.jsonDir, 0755); err != nil {
			return err
		}
	}
	for _, file := range files {
		result, err := runScript(ctx, o, file)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		golden := o.goldenPath(file)
		if err := os.WriteFile(golden, data, 0644); err != nil {
			return err
		}
		log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, golden)
	}
	return nil
}

func handleRunTestSuite(ctx context.Context, o *options, files []string) error {
	skipList := make(map[string]bool)
	for _, f := range strings.Fields(o.skipFiles) {
		if abs, err := filepath.Abs(f); err == nil {
			skipList[abs] = true
		}
	}

	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup
	for i := 0; i < o.jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(ctx, o, file)
			}
		}()
	}

	// Feed the workers, skipping files with identical content
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if original, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", original)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- file
	}
	close(tasks)
	wg.Wait()
	close(resultsChan)

	var all []*FileTestResult
	for r := range resultsChan {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].File < all[j].File })

	printSummary(o, all)
	if hasFailures(writeJSONReport(o, all)) {
		return errors.New("some tests failed")
	}
	return nil
}

func testFile(ctx context.Context, o *options, file string) *FileTestResult {
	goldenFile := o.goldenPath(file)
	data, err := os.ReadFile(goldenFile)
	if errors.Is(err, os.ErrNotExist) {
		return &FileTestResult{File: file, Status: "SKIP", Message: "No golden file; create one with --generate-golden"}
	}
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var golden ScriptResult
	if err := json.Unmarshal(data, &golden); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	actual, err := runScript(ctx, o, file)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error()}
	}
	return compareResults(file, &golden, actual)
}

var compareOpts = cmp.Options{
	cmpopts.IgnoreFields(Execution{}, "Duration"),
	cmpopts.EquateEmpty(),
}

func compareResults(file string, golden, actual *ScriptResult) *FileTestResult {
	var diffs strings.Builder
	if d := cmp.Diff(golden.Compile, actual.Compile, compareOpts); d != "" {
		fmt.Fprintf(&diffs, "Compile mismatch (-golden +actual):\n%s", d)
	}

	actualRuns := make(map[string]TestRun, len(actual.Runs))
	for _, run := range actual.Runs {
		actualRuns[run.Name] = run
	}
	for _, want := range golden.Runs {
		got, ok := actualRuns[want.Name]
		if !ok {
			fmt.Fprintf(&diffs, "Run '%s' missing from actual results.\n", want.Name)
			continue
		}
		if d := cmp.Diff(want, got, compareOpts); d != "" {
			fmt.Fprintf(&diffs, "Run '%s' mismatch (-golden +actual):\n%s", want.Name, d)
		}
	}

	if diffs.Len() > 0 {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Output, results or errors differ from the golden file", Diff: diffs.String(), Golden: golden, Actual: actual}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: "All test cases passed", Golden: golden, Actual: actual}
}

// runScript compiles file once and runs each of its cases o.runs times, keeping the
// fastest duration.
func runScript(ctx context.Context, o *options, file string) (*ScriptResult, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	source := string(content)
	cfg := config.NewConfig()
	if err := cfg.ApplyProfile(o.profile); err != nil {
		return nil, err
	}
	cache := bright.NewCache()

	var diag bytes.Buffer
	reporter := util.NewReporter(util.NewSource(filepath.Base(file), source), &diag)
	start := time.Now()
	prog, err := bright.Parse(source, bright.WithConfig(cfg), bright.WithCache(cache))
	compile := Execution{Duration: time.Since(start)}
	if err != nil {
		reporter.Report(err)
		compile.ExitCode = 1
		compile.Stderr = diag.String()
		return &ScriptResult{Compile: compile}, nil
	}
	for _, w := range prog.Warnings {
		reporter.Warn(w.Kind, w.Tok.Line, w.Tok.Column, w.Tok.Len(), "%s", w.Message)
	}
	compile.Stderr = diag.String()

	result := &ScriptResult{Compile: compile}
	for _, tc := range testCases(source) {
		var first Execution
		var durations []time.Duration
		unstable := false
		for i := 0; i < o.runs; i++ {
			exec := runOnce(ctx, o, file, cfg, cache, tc.Args)
			if i == 0 {
				first = exec
			} else if !cmp.Equal(first, exec, compareOpts) {
				unstable = true
				break
			}
			durations = append(durations, exec.Duration)
			if exec.ExitCode != 0 {
				break
			}
		}
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		first.Duration = durations[0]
		first.UnstableOutput = unstable
		tc.Result = first
		result.Runs = append(result.Runs, tc)
	}
	return result, nil
}

func runOnce(ctx context.Context, o *options, file string, cfg *config.Config, cache *bright.Cache, args []string) Execution {
	var stdout, stderr bytes.Buffer
	unit, err := bright.CompileFile(file,
		bright.WithConfig(cfg),
		bright.WithCache(cache),
		bright.WithName(filepath.Base(file)),
		bright.WithOutput(&stdout, &stderr),
	)
	if err != nil {
		return Execution{ExitCode: 1, Error: err.Error()}
	}

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	scriptArgs := make([]any, len(args))
	for i, a := range args {
		scriptArgs[i] = a
	}
	start := time.Now()
	results, err := unit.Run(runCtx, scriptArgs...)
	exec := Execution{Duration: time.Since(start)}
	for _, r := range results {
		exec.Results = append(exec.Results, value.Inspect(r))
	}
	if err != nil {
		exec.ExitCode = 1
		exec.Error = err.Error()
		exec.TimedOut = errors.Is(err, context.DeadlineExceeded) && runCtx.Err() != nil
	}
	exec.Stdout, exec.Stderr = stdout.String(), stderr.String()
	return exec
}

// testCases reads the run directives of a script. A script without any gets a single
// run with no arguments.
func testCases(source string) []TestRun {
	var runs []TestRun
	for _, line := range strings.Split(source, "\n") {
		text := strings.TrimSpace(line)
		if !strings.HasPrefix(text, "//") {
			continue
		}
		rest, ok := strings.CutPrefix(strings.TrimSpace(strings.TrimPrefix(text, "//")), runDirective)
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		runs = append(runs, TestRun{Name: fields[0], Args: fields[1:]})
	}
	if len(runs) == 0 {
		runs = append(runs, TestRun{Name: "no_args"})
	}
	return runs
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func printSummary(o *options, results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var total time.Duration
	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)
		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}
		if result.Actual == nil {
			continue
		}
		total += result.Actual.Compile.Duration
		for _, run := range result.Actual.Runs {
			total += run.Result.Duration
			if o.verbose {
				fmt.Printf("    %-20s %s\n", run.Name, formatDuration(run.Result.Duration))
			}
		}
	}
	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total (%s)\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results), total.Round(time.Microsecond))
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmed, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(o *options, results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}
	data, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}
	outputFile := o.outputJSON
	if o.jsonDir != "" {
		if err := os.MkdirAll(o.jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, o.jsonDir, err)
		}
		outputFile = filepath.Join(o.jsonDir, o.outputJSON)
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, r := range results {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var all []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			abs, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[abs] {
				if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
					all = append(all, abs)
					seen[abs] = true
				}
			}
		}
	}
	return all, nil
}
