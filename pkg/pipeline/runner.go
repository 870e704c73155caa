package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// termGrace is how long a child gets between SIGTERM and SIGKILL.
const termGrace = 500 * time.Millisecond

// runner spawns one child per spawn request, captures or discards its
// streams, enforces the per-command timeout, and classifies the exit.
type runner struct {
	log *zap.Logger
}

// run executes one request to completion. Both streams are buffered
// fully before the record is produced; that is the price of atomic,
// non-interleaved output blocks.
func (r *runner) run(ctx context.Context, req SpawnRequest) OutputRecord {
	rec := OutputRecord{
		ID:      req.ID,
		Origin:  req.Origin,
		Command: req.Display(),
	}

	cmd := &exec.Cmd{Path: req.Path, Args: req.Argv}
	// Children get their own process group so the SIGTERM/SIGKILL
	// ladder reaches grandchildren spawned by shell commands.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdoutBuf, stderrBuf bytes.Buffer
	if !req.Discard.stdout() {
		cmd.Stdout = &stdoutBuf
	}
	if !req.Discard.stderr() {
		cmd.Stderr = &stderrBuf
	}
	// Stdin, and any discarded stream, stay nil: exec wires them to
	// the null device.

	if err := cmd.Start(); err != nil {
		rec.Outcome = Outcome{Kind: OutcomeSpawnError, Err: err}
		return rec
	}
	pid := cmd.Process.Pid
	r.log.Debug("process started", zap.Uint64("id", uint64(req.ID)), zap.Int("pid", pid))

	// waitDone stops a pending SIGKILL escalation once the child is
	// reaped, so the signal cannot hit a reused pid.
	waitDone := make(chan struct{})
	defer close(waitDone)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var timeoutCh <-chan time.Time
	if req.Timeout > 0 {
		t := time.NewTimer(req.Timeout)
		defer t.Stop()
		timeoutCh = t.C
	}

	ctxDone := ctx.Done()
	timedOut := false
	for {
		select {
		case err := <-waitCh:
			rec.Outcome = classify(err, timedOut)
			r.log.Debug("process exited",
				zap.Uint64("id", uint64(req.ID)),
				zap.Int("pid", pid),
				zap.String("outcome", rec.Outcome.String()))
			rec.Stdout = stdoutBuf.Bytes()
			rec.Stderr = stderrBuf.Bytes()
			return rec

		case <-timeoutCh:
			timeoutCh = nil
			timedOut = true
			r.log.Debug("timeout fired", zap.Uint64("id", uint64(req.ID)), zap.Int("pid", pid))
			terminate(pid, waitDone)

		case <-ctxDone:
			// Cancellation: forward SIGTERM and apply the normal
			// grace ladder; keep waiting for the child.
			ctxDone = nil
			terminate(pid, waitDone)
		}
	}
}

// terminate sends SIGTERM to the child's process group and escalates
// to SIGKILL after the grace window unless the child is reaped first.
func terminate(pid int, waitDone <-chan struct{}) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	go func() {
		select {
		case <-waitDone:
		case <-time.After(termGrace):
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		}
	}()
}

// classify maps a Wait result onto the outcome taxonomy. Signal
// deaths use the 128+signal shell convention.
func classify(err error, timedOut bool) Outcome {
	if timedOut {
		return Outcome{Kind: OutcomeTimeout}
	}
	if err == nil {
		return Outcome{Kind: OutcomeSuccess}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return Outcome{Kind: OutcomeFailedStatus, Code: 128 + int(ws.Signal())}
			}
			return Outcome{Kind: OutcomeFailedStatus, Code: ws.ExitStatus()}
		}
		return Outcome{Kind: OutcomeFailedStatus, Code: exitErr.ExitCode()}
	}
	return Outcome{Kind: OutcomeIoError, Err: err}
}
