package pipeline

import (
	"bytes"
	"context"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"runpar/pkg/template"
)

// runPipeline executes a full run with captured output.
func runPipeline(t *testing.T, cfg *Config) (*Stats, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cfg.Stdout = &stdout
	cfg.Stderr = &stderr
	if cfg.Stdin == nil {
		cfg.Stdin = strings.NewReader("")
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = 4
	}
	stats := Run(context.Background(), cfg)
	return stats, stdout.String(), stderr.String()
}

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestRun_CartesianProduct(t *testing.T) {
	cfg := &Config{
		Template: &template.Template{Prefix: []string{"echo"}},
		Groups:   [][]string{{"A", "B"}, {"C", "D"}, {"E", "F", "G"}},
	}
	stats, stdout, _ := runPipeline(t, cfg)

	got := lines(stdout)
	if len(got) != 12 {
		t.Fatalf("expected 12 lines, got %d: %q", len(got), stdout)
	}
	sort.Strings(got)
	want := []string{
		"A C E", "A C F", "A C G", "A D E", "A D F", "A D G",
		"B C E", "B C F", "B C G", "B D E", "B D F", "B D G",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if stats.Succeeded.Load() != 12 || stats.ExitCode() != 0 {
		t.Fatalf("stats %s", stats.Summary())
	}
}

func TestRun_SequentialWithOneJob(t *testing.T) {
	cfg := &Config{
		Template: &template.Template{Prefix: []string{"echo"}},
		Groups:   [][]string{{"hi", "there", "how", "are", "you"}},
		Jobs:     1,
	}
	_, stdout, _ := runPipeline(t, cfg)
	if stdout != "hi\nthere\nhow\nare\nyou\n" {
		t.Fatalf("stdout %q", stdout)
	}
}

func TestRun_KeepOrderWithVariableDelays(t *testing.T) {
	cfg := &Config{
		Template:  &template.Template{Prefix: []string{"sleep 0.{}; echo {}"}},
		Groups:    [][]string{{"3", "1", "2"}},
		Shell:     true,
		ShellPath: "/bin/sh",
		KeepOrder: true,
		Jobs:      3,
	}
	stats, stdout, _ := runPipeline(t, cfg)
	if stdout != "3\n1\n2\n" {
		t.Fatalf("stdout %q", stdout)
	}
	if stats.ExitCode() != 0 {
		t.Fatalf("stats %s", stats.Summary())
	}
}

func TestRun_RegexSubstitution(t *testing.T) {
	cfg := &Config{
		Template: &template.Template{
			Prefix: []string{"echo", "url={u}", "file={f}"},
			Regex:  regexp.MustCompile(`(?P<u>.*),(?P<f>.*)`),
		},
		Groups:    [][]string{{"URL1,FN1", "URL2,FN2"}},
		KeepOrder: true,
	}
	_, stdout, _ := runPipeline(t, cfg)
	if stdout != "url=URL1 file=FN1\nurl=URL2 file=FN2\n" {
		t.Fatalf("stdout %q", stdout)
	}
}

func TestRun_StreamInputRoundTrip(t *testing.T) {
	in := "alpha\nbeta\ngamma\n"
	cfg := &Config{
		Template:  &template.Template{Prefix: []string{"echo"}},
		Inputs:    []string{"-"},
		Stdin:     strings.NewReader(in),
		KeepOrder: true,
	}
	_, stdout, _ := runPipeline(t, cfg)
	if stdout != in {
		t.Fatalf("round trip broke: %q", stdout)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	cfg := &Config{
		Template: &template.Template{Prefix: []string{"echo"}},
		Inputs:   []string{"-"},
		Stdin:    strings.NewReader(""),
	}
	stats, stdout, _ := runPipeline(t, cfg)
	if stdout != "" || stats.Spawned.Load() != 0 || stats.ExitCode() != 0 {
		t.Fatalf("stdout=%q stats=%s", stdout, stats.Summary())
	}
}

func TestRun_Timeout(t *testing.T) {
	cfg := &Config{
		Template:  &template.Template{Prefix: []string{"sleep"}},
		Groups:    [][]string{{"0", "2"}},
		Timeout:   300 * time.Millisecond,
		KeepOrder: true,
	}
	start := time.Now()
	stats, _, _ := runPipeline(t, cfg)
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout was not enforced")
	}
	if stats.Succeeded.Load() != 1 || stats.TimedOut.Load() != 1 {
		t.Fatalf("stats %s", stats.Summary())
	}
	if stats.ExitCode() != 1 {
		t.Fatal("timeouts must fail the run")
	}
}

func TestRun_FailuresSetExitCode(t *testing.T) {
	cfg := &Config{
		Template:  &template.Template{Prefix: []string{"exit {}"}},
		Groups:    [][]string{{"0", "1", "0"}},
		Shell:     true,
		ShellPath: "/bin/sh",
	}
	stats, _, _ := runPipeline(t, cfg)
	if stats.Succeeded.Load() != 2 || stats.FailedState.Load() != 1 {
		t.Fatalf("stats %s", stats.Summary())
	}
	if stats.ExitCode() != 1 {
		t.Fatal("exit code must be 1 after a failure")
	}
}

func TestRun_ExitOnError(t *testing.T) {
	cfg := &Config{
		Template:    &template.Template{Prefix: []string{"{}"}},
		Groups:      [][]string{{"exit 1", "sleep 5", "sleep 5"}},
		Shell:       true,
		ShellPath:   "/bin/sh",
		Jobs:        1,
		ExitOnError: true,
	}
	start := time.Now()
	stats, _, _ := runPipeline(t, cfg)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("run was not cut short: %v", elapsed)
	}
	if stats.FailedState.Load() == 0 {
		t.Fatalf("stats %s", stats.Summary())
	}
	if stats.ExitCode() != 1 {
		t.Fatal("exit code must be 1")
	}
}

func TestRun_SpawnErrorDoesNotStopPipeline(t *testing.T) {
	cfg := &Config{
		Template:  &template.Template{},
		Inputs:    []string{"-"},
		Stdin:     strings.NewReader("definitely-not-a-command-xyz\necho ok\n"),
		KeepOrder: true,
	}
	stats, stdout, _ := runPipeline(t, cfg)
	if stats.SpawnErrors.Load() != 1 {
		t.Fatalf("stats %s", stats.Summary())
	}
	if stdout != "ok\n" {
		t.Fatalf("stdout %q", stdout)
	}
	if stats.ExitCode() != 1 {
		t.Fatal("spawn errors must fail the run")
	}
}

func TestRun_DryRun(t *testing.T) {
	cfg := &Config{
		Template: &template.Template{Prefix: []string{"echo"}},
		Groups:   [][]string{{"a", "b"}},
		DryRun:   true,
	}
	stats, stdout, _ := runPipeline(t, cfg)
	if stdout != "" || stats.Spawned.Load() != 0 || stats.ExitCode() != 0 {
		t.Fatalf("dry-run spawned something: stdout=%q stats=%s", stdout, stats.Summary())
	}
}

func TestRun_ConcurrencyIsBounded(t *testing.T) {
	// Four 300ms sleeps with J=1 cannot finish in under 1.2s.
	cfg := &Config{
		Template: &template.Template{Prefix: []string{"sleep"}},
		Groups:   [][]string{{"0.3", "0.3", "0.3", "0.3"}},
		Jobs:     1,
	}
	start := time.Now()
	runPipeline(t, cfg)
	if elapsed := time.Since(start); elapsed < 1200*time.Millisecond {
		t.Fatalf("J=1 ran concurrently: %v", elapsed)
	}

	// The same workload with J=4 overlaps.
	cfg = &Config{
		Template: &template.Template{Prefix: []string{"sleep"}},
		Groups:   [][]string{{"0.3", "0.3", "0.3", "0.3"}},
		Jobs:     4,
	}
	start = time.Now()
	runPipeline(t, cfg)
	if elapsed := time.Since(start); elapsed > 1100*time.Millisecond {
		t.Fatalf("J=4 did not overlap: %v", elapsed)
	}
}

func TestRun_NullSeparatedFilenames(t *testing.T) {
	in := "with space\x00with\nnewline\x00plain\x00"
	cfg := &Config{
		Template:  &template.Template{Prefix: []string{"printf", "%s|"}},
		Inputs:    []string{"-"},
		Stdin:     strings.NewReader(in),
		NullSep:   true,
		KeepOrder: true,
	}
	_, stdout, _ := runPipeline(t, cfg)
	// Each record must arrive as exactly one argv element.
	if stdout != "with space|with\nnewline|plain|" {
		t.Fatalf("stdout %q", stdout)
	}
}
