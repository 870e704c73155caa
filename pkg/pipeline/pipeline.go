package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"runpar/pkg/pathcache"
	"runpar/pkg/template"
)

// Config is the read-only run configuration, fixed at startup and
// shared by every stage.
type Config struct {
	Template *template.Template
	Groups   [][]string // argument mode when non-empty
	Inputs   []string   // stream mode; "-" means stdin
	NullSep  bool

	Shell     bool
	ShellPath string
	Timeout   time.Duration
	Discard   DiscardMode

	KeepOrder   bool
	DryRun      bool
	ExitOnError bool

	Jobs            int64
	ChannelCapacity int // 0 = 2·Jobs

	Resolver pathcache.Resolver
	Progress Progress // nil disables the bar

	// Standard streams, injectable for tests. Nil selects the
	// process's own.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Log *zap.Logger
}

func (c *Config) stdin() io.Reader {
	if c.Stdin != nil {
		return c.Stdin
	}
	return os.Stdin
}

func (c *Config) stdoutWriter() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

func (c *Config) stderrWriter() io.Writer {
	if c.Stderr != nil {
		return c.Stderr
	}
	return os.Stderr
}

// Run executes the whole pipeline and blocks until the sink has
// drained. The returned statistics decide the process exit code.
//
// Cancellation of ctx (signal, or --exit-on-error via the sink)
// propagates to every stage: the source stops reading and closes its
// queue, the builder drains its input without emitting requests, the
// scheduler stops dispatching and waits for its runners, in-flight
// children get the
// SIGTERM → grace → SIGKILL ladder, and the sink consumes every
// record already produced. No record is lost and no child is
// abandoned.
func Run(ctx context.Context, cfg *Config) *Stats {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = pathcache.New()
	}
	jobs := cfg.Jobs
	if jobs < 1 {
		jobs = 1
	}

	capacity := cfg.ChannelCapacity
	if capacity <= 0 {
		capacity = int(2 * jobs)
	}
	records := make(chan Record, capacity)
	requests := make(chan SpawnRequest, capacity)
	results := make(chan OutputRecord, capacity)

	stats := &Stats{}

	src := &source{
		groups:  cfg.Groups,
		inputs:  cfg.Inputs,
		nullSep: cfg.NullSep,
		stdin:   cfg.stdin(),
		out:     records,
		log:     log.Named("source"),
	}
	bld := &builder{
		tpl:       cfg.Template,
		resolver:  resolver,
		argMode:   len(cfg.Groups) > 0,
		nullSep:   cfg.NullSep,
		shell:     cfg.Shell,
		shellPath: cfg.ShellPath,
		timeout:   cfg.Timeout,
		discard:   cfg.Discard,
		dryRun:    cfg.DryRun,
		in:        records,
		out:       requests,
		results:   results,
		log:       log.Named("builder"),
	}
	sch := &scheduler{
		jobs:    jobs,
		runner:  &runner{log: log.Named("runner")},
		in:      requests,
		results: results,
	}

	var onFailure func()
	if cfg.ExitOnError {
		onFailure = cancel
	}
	snk := &sink{
		keepOrder: cfg.KeepOrder,
		stdout:    cfg.stdoutWriter(),
		stderr:    cfg.stderrWriter(),
		progress:  cfg.Progress,
		onFailure: onFailure,
		stats:     stats,
		in:        results,
		log:       log.Named("sink"),
	}

	var producers errgroup.Group
	producers.Go(func() error { src.run(ctx); return nil })
	producers.Go(func() error { bld.run(ctx); return nil })
	producers.Go(func() error { sch.run(ctx); return nil })
	go func() {
		// Builder and scheduler both feed the sink; the result
		// channel closes only after both are done.
		_ = producers.Wait()
		close(results)
	}()

	snk.run()
	return stats
}
