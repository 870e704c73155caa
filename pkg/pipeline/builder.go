package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"runpar/pkg/pathcache"
	"runpar/pkg/template"
)

// builder turns records into spawn requests: substitution, shell
// wrapping, executable resolution. Records that produce no request
// (dry-run, regex miss, unresolvable executable) are reported to the
// sink directly so the keep-order counter still advances.
type builder struct {
	tpl       *template.Template
	resolver  pathcache.Resolver
	argMode   bool
	nullSep   bool
	shell     bool
	shellPath string
	timeout   time.Duration
	discard   DiscardMode
	dryRun    bool

	in      <-chan Record
	out     chan<- SpawnRequest
	results chan<- OutputRecord
	log     *zap.Logger
}

// run consumes every record, then closes the request channel. On
// cancellation it keeps draining its input (the source closes it
// promptly) without emitting further requests.
func (b *builder) run(ctx context.Context) {
	defer close(b.out)

	for rec := range b.in {
		select {
		case <-ctx.Done():
			continue
		default:
		}
		b.build(ctx, rec)
	}
}

// build processes one record.
func (b *builder) build(ctx context.Context, rec Record) {
	argv, ok := b.assemble(rec)
	if !ok {
		b.log.Warn("input did not match regex, skipping",
			zap.String("origin", rec.Origin.String()),
			zap.String("input", rec.Line()))
		b.emitResult(ctx, skipMarker(rec.ID, rec.Origin))
		return
	}
	if len(argv) == 0 {
		b.emitResult(ctx, skipMarker(rec.ID, rec.Origin))
		return
	}

	if b.shell {
		argv = []string{b.shellPath, "-c", template.ShellJoin(argv)}
	}

	if b.dryRun {
		b.log.Info("dry-run", zap.String("command", displayCommand(argv)),
			zap.String("origin", rec.Origin.String()))
		b.emitResult(ctx, skipMarker(rec.ID, rec.Origin))
		return
	}

	path, err := b.resolver.Resolve(argv[0])
	if err != nil {
		b.log.Warn("command failed",
			zap.String("command", displayCommand(argv)),
			zap.String("origin", rec.Origin.String()),
			zap.String("outcome", "executable not found"))
		b.emitResult(ctx, OutputRecord{
			ID:      rec.ID,
			Origin:  rec.Origin,
			Command: displayCommand(argv),
			Outcome: Outcome{Kind: OutcomeSpawnError, Err: err},
		})
		return
	}

	req := SpawnRequest{
		ID:      rec.ID,
		Origin:  rec.Origin,
		Argv:    argv,
		Path:    path,
		Timeout: b.timeout,
		Discard: b.discard,
	}
	select {
	case b.out <- req:
	case <-ctx.Done():
	}
}

// assemble produces the substituted argv for a record. ok=false means
// the configured regex did not match.
func (b *builder) assemble(rec Record) ([]string, bool) {
	line := rec.Line()

	// No command words given: the input line is the command itself.
	if !b.tpl.HasPrefix() && !b.argMode && b.tpl.Regex == nil {
		if b.shell {
			return []string{line}, true
		}
		return template.SplitCommand(line), true
	}

	splitAppend := !b.argMode && !b.nullSep && !b.shell
	return b.tpl.Render(rec.Fields, line, splitAppend)
}

// emitResult hands a builder-originated record to the sink.
func (b *builder) emitResult(ctx context.Context, rec OutputRecord) {
	select {
	case b.results <- rec:
	case <-ctx.Done():
	}
}
