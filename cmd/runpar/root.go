package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"runpar/pkg/pathcache"
	"runpar/pkg/pipeline"
	"runpar/pkg/progressbar"
	"runpar/pkg/template"
)

// appName is the single source of truth for the application name.
const appName = "runpar"

const version = "1.2.0"

var (
	flagJobs             int64
	flagInputFiles       []string
	flagNullSeparator    bool
	flagShell            bool
	flagShellPath        string
	flagRegex            string
	flagTimeoutSeconds   float64
	flagDiscardOutput    string
	flagProgressBar      bool
	flagKeepOrder        bool
	flagDryRun           bool
	flagExitOnError      bool
	flagChannelCapacity  int
	flagDisablePathCache bool
	flagSeparator        string
)

// exitCode is what main hands to os.Exit after Execute returns.
var exitCode int

func newRootCommand(log *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName + " [flags] [command [initial-args...]] [::: group1 ::: group2 ...]",
		Short: "Run commands in parallel with bounded concurrency",
		Long: appName + ` executes a command template once per input, up to -j at a
time, and relays each child's stdout/stderr as atomic blocks.

Inputs come from stdin, from --input-file sources, or from :::
argument groups forming a Cartesian product. {}, {0}, {1}… and regex
capture groups ({name}) are substituted into the template.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, args, log)
			if err != nil {
				return err
			}
			exitCode = run(cfg, log)
			return nil
		},
	}

	// The command template may contain dashed arguments; stop flag
	// parsing at the first positional.
	cmd.Flags().SetInterspersed(false)

	cmd.Flags().Int64VarP(&flagJobs, "jobs", "j", 0,
		"maximum concurrent commands (default: detected CPU count)")
	cmd.Flags().StringArrayVarP(&flagInputFiles, "input-file", "i", nil,
		"input file to read commands/arguments from, - for stdin (repeatable)")
	cmd.Flags().BoolVarP(&flagNullSeparator, "null-separator", "0", false,
		"input records are NUL-separated instead of newline-separated")
	cmd.Flags().BoolVarP(&flagShell, "shell", "s", false,
		"run each command through the shell as a single -c argument")
	cmd.Flags().StringVar(&flagShellPath, "shell-path", "",
		"shell binary for --shell mode (default /bin/bash)")
	cmd.Flags().StringVarP(&flagRegex, "regex", "r", "",
		"regex applied to each input; its capture groups expand {name}/{N} tokens")
	cmd.Flags().Float64VarP(&flagTimeoutSeconds, "timeout-seconds", "t", 0,
		"per-command timeout in seconds (fractional allowed)")
	cmd.Flags().StringVarP(&flagDiscardOutput, "discard-output", "d", "",
		"discard the named child stream(s): stdout, stderr, or all")
	cmd.Flags().BoolVarP(&flagProgressBar, "progress-bar", "p", false,
		"show a progress bar on stderr ($PROGRESS_STYLE: dark_bg, light_bg, simple)")
	cmd.Flags().BoolVarP(&flagKeepOrder, "keep-order", "k", false,
		"emit outputs in input order instead of completion order")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false,
		"log the commands that would run without spawning them")
	cmd.Flags().BoolVar(&flagExitOnError, "exit-on-error", false,
		"cancel remaining commands after the first failure")
	cmd.Flags().IntVar(&flagChannelCapacity, "channel-capacity", 0,
		"inter-stage queue capacity (default: 2×jobs)")
	cmd.Flags().BoolVar(&flagDisablePathCache, "disable-path-cache", false,
		"resolve executables with a fresh PATH lookup every time")
	cmd.Flags().StringVar(&flagSeparator, "separator", ":::",
		"token separating the template from argument groups")
	cmd.Flags().BoolP("version", "V", false, "print version and exit")

	return cmd
}

// buildConfig merges the defaults file, environment, and flags into
// the pipeline configuration. Flags win over the file.
func buildConfig(cmd *cobra.Command, args []string, log *zap.Logger) (*pipeline.Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	prefix, groups, err := splitArgGroups(args, flagSeparator)
	if err != nil {
		return nil, err
	}

	var re *regexp.Regexp
	if flagRegex != "" {
		if len(prefix) == 0 {
			return nil, fmt.Errorf("--regex requires a command template")
		}
		re, err = regexp.Compile(flagRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid --regex: %w", err)
		}
	}

	discard, err := pipeline.ParseDiscard(flagDiscardOutput)
	if err != nil {
		return nil, err
	}

	jobs := flagJobs
	if !cmd.Flags().Changed("jobs") && defaults.Jobs > 0 {
		jobs = defaults.Jobs
	}
	if jobs <= 0 {
		jobs = detectCPUs()
	}

	capacity := flagChannelCapacity
	if !cmd.Flags().Changed("channel-capacity") && defaults.ChannelCapacity > 0 {
		capacity = defaults.ChannelCapacity
	}
	if capacity < 0 {
		return nil, fmt.Errorf("--channel-capacity must be positive")
	}

	shellPath := flagShellPath
	if shellPath == "" {
		shellPath = defaults.ShellPath
	}
	if shellPath == "" {
		shellPath = "/bin/bash"
	}

	timeout := time.Duration(flagTimeoutSeconds * float64(time.Second))
	if !cmd.Flags().Changed("timeout-seconds") && defaults.TimeoutSeconds > 0 {
		timeout = time.Duration(defaults.TimeoutSeconds * float64(time.Second))
	}
	if timeout < 0 {
		return nil, fmt.Errorf("--timeout-seconds must not be negative")
	}

	inputs := flagInputFiles
	if len(groups) == 0 && len(inputs) == 0 {
		inputs = []string{"-"}
	}
	if len(groups) > 0 && len(inputs) > 0 {
		return nil, fmt.Errorf("argument groups and --input-file are mutually exclusive")
	}
	for _, in := range inputs {
		if in == "-" {
			continue
		}
		if _, err := os.Stat(in); err != nil {
			return nil, &startupError{fmt.Errorf("input file %s: %w", in, err)}
		}
	}

	var resolver pathcache.Resolver = pathcache.New()
	if flagDisablePathCache {
		resolver = pathcache.NewPassthrough()
	}

	var bar pipeline.Progress
	if flagProgressBar {
		total := int64(-1)
		if len(groups) > 0 {
			total = pipeline.ProductSize(groups)
		}
		// $PROGRESS_STYLE wins; the defaults file fills in only when
		// the environment is silent.
		if os.Getenv(progressbar.EnvVar) == "" && defaults.ProgressStyle != "" {
			bar = progressbar.NewWithStyle(os.Stderr, total, defaults.ProgressStyle)
		} else {
			bar = progressbar.New(os.Stderr, total)
		}
	}

	return &pipeline.Config{
		Template:        &template.Template{Prefix: prefix, Regex: re},
		Groups:          groups,
		Inputs:          inputs,
		NullSep:         flagNullSeparator,
		Shell:           flagShell,
		ShellPath:       shellPath,
		Timeout:         timeout,
		Discard:         discard,
		KeepOrder:       flagKeepOrder,
		DryRun:          flagDryRun,
		ExitOnError:     flagExitOnError,
		Jobs:            jobs,
		ChannelCapacity: capacity,
		Resolver:        resolver,
		Progress:        bar,
		Log:             log,
	}, nil
}

// run executes the pipeline under signal cancellation and returns the
// process exit code.
func run(cfg *pipeline.Config, log *zap.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := pipeline.Run(ctx, cfg)
	if stats.Failures() > 0 {
		log.Warn(stats.Summary())
	}
	return stats.ExitCode()
}

// splitArgGroups separates the command template from ::: argument
// groups. The separator is recognized only after the template.
func splitArgGroups(args []string, sep string) (prefix []string, groups [][]string, err error) {
	first := -1
	for i, a := range args {
		if a == sep {
			first = i
			break
		}
	}
	if first < 0 {
		return args, nil, nil
	}

	prefix = args[:first]
	current := []string{}
	for _, a := range args[first+1:] {
		if a == sep {
			if len(current) == 0 {
				return nil, nil, fmt.Errorf("empty argument group before %q", sep)
			}
			groups = append(groups, current)
			current = []string{}
			continue
		}
		current = append(current, a)
	}
	if len(current) == 0 {
		return nil, nil, fmt.Errorf("empty argument group after %q", sep)
	}
	groups = append(groups, current)
	return prefix, groups, nil
}

// detectCPUs returns the logical CPU count, falling back to the
// runtime's view when the platform probe fails.
func detectCPUs() int64 {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return int64(n)
	}
	return int64(runtime.NumCPU())
}
