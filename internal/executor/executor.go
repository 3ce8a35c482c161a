// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigrun-toolguard/internal/security"
	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
	"github.com/jeranaias/rigrun-toolguard/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// waitDelay bounds how long Wait blocks after the context is done.
	waitDelay = 2 * time.Second

	// drainTimeout bounds how long output is drained after every stage has
	// exited. Only a process that left its group can hold a pipe that long.
	drainTimeout = 2 * time.Second
)

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor runs commands that pass the security context's checks. It holds
// no per-call state and is safe for concurrent use.
type Executor struct {
	sec     *security.Context
	logger  *slog.Logger
	environ func() []string
}

// New creates an Executor bound to sec. A nil logger discards output.
func New(sec *security.Context, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{
		sec:     sec,
		logger:  logger.With("component", "executor"),
		environ: os.Environ,
	}
}

// Security returns the context the executor validates against.
func (e *Executor) Security() *security.Context {
	return e.sec
}

// Execute validates and runs spec. A shell string that decomposes into
// several stages runs as a pipeline.
//
// The returned result is always populated. err is non-nil whenever the
// status is not success; its kind is also recorded in the result.
func (e *Executor) Execute(ctx context.Context, spec security.CommandSpec, timeout time.Duration) (ExecutionResult, error) {
	res := newResult(spec.String())

	checked, err := e.sec.CheckCommandSecurity(spec, timeout)
	if err != nil {
		return res.failed(StatusError, err)
	}
	return e.run(ctx, res, checked.Stages, checked.Timeout)
}

// ExecutePiped validates every command, then runs them as one pipeline with
// each command's stdout feeding the next command's stdin. Nothing starts
// unless every stage passes.
func (e *Executor) ExecutePiped(ctx context.Context, specs []security.CommandSpec, timeout time.Duration) (ExecutionResult, error) {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.String()
	}
	res := newResult(strings.Join(names, " | "))

	if len(specs) == 0 {
		return res.failed(StatusError, toolerr.InvalidParameter("execute_piped", "at least one command is required"))
	}

	var stages [][]string
	for _, spec := range specs {
		checked, err := e.sec.CheckCommandSecurity(spec, timeout)
		if err != nil {
			return res.failed(StatusError, err)
		}
		stages = append(stages, checked.Stages...)
	}

	// Re-check as a whole: some stages are only dangerous downstream of a pipe.
	checked, err := e.sec.CheckCommandSecurity(security.Pipeline(stages...), timeout)
	if err != nil {
		return res.failed(StatusError, err)
	}
	return e.run(ctx, res, checked.Stages, checked.Timeout)
}

func newResult(command string) ExecutionResult {
	return ExecutionResult{
		ID:          uuid.NewString(),
		Command:     command,
		Status:      StatusSuccess,
		FailedStage: -1,
	}
}

// =============================================================================
// PIPELINE
// =============================================================================

type stage struct {
	argv    []string
	cmd     *exec.Cmd
	stderr  *cappedBuffer
	waitErr error
}

// pipeline owns every process and pipe of one execution.
type pipeline struct {
	stages []*stage
	stdout *cappedBuffer

	// parentEnds are the child-side pipe ends, closed in the parent once the
	// children have them.
	parentEnds []*os.File
	readEnds   []*os.File
	readers    sync.WaitGroup
}

func (p *pipeline) closeParentEnds() {
	for _, f := range p.parentEnds {
		f.Close()
	}
	p.parentEnds = nil
}

// capture starts draining r into buf.
func (p *pipeline) capture(r *os.File, buf *cappedBuffer) {
	p.readEnds = append(p.readEnds, r)
	p.readers.Add(1)
	go func() {
		defer p.readers.Done()
		buf.ReadFrom(r)
	}()
}

// drain waits for the readers to see EOF, forcing the read ends closed if a
// stray process keeps a write end open past drainTimeout.
func (p *pipeline) drain() {
	done := make(chan struct{})
	go func() {
		p.readers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		for _, r := range p.readEnds {
			r.Close()
		}
		<-done
	}
	for _, r := range p.readEnds {
		r.Close()
	}
}

// killAll kills and reaps every started stage.
func (p *pipeline) killAll() {
	for _, st := range p.stages {
		if st.cmd.Process == nil {
			continue
		}
		killGroup(st.cmd)
		st.waitErr = st.cmd.Wait()
	}
}

// build creates the commands and wires their pipes without starting them.
func (e *Executor) build(ctx context.Context, argvs [][]string) (*pipeline, error) {
	env := e.sec.SanitizeEnvironment(e.environ())
	limit := 4*e.sec.MaxOutputSize() + 4

	p := &pipeline{stdout: newOutputBuffer(limit)}
	var nextStdin *os.File

	for i, argv := range argvs {
		cmd := exec.CommandContext(ctx, e.programPath(argv[0]), argv[1:]...)
		cmd.Args[0] = argv[0]
		cmd.Dir = e.sec.WorkspaceRoot()
		cmd.Env = env
		cmd.WaitDelay = waitDelay
		configureProcess(cmd)

		if nextStdin != nil {
			cmd.Stdin = nextStdin
			nextStdin = nil
		}

		st := &stage{argv: argv, cmd: cmd, stderr: newOutputBuffer(limit)}
		p.stages = append(p.stages, st)

		errR, errW, err := os.Pipe()
		if err != nil {
			return p, err
		}
		cmd.Stderr = errW
		p.parentEnds = append(p.parentEnds, errW)
		p.capture(errR, st.stderr)

		outR, outW, err := os.Pipe()
		if err != nil {
			return p, err
		}
		cmd.Stdout = outW
		p.parentEnds = append(p.parentEnds, outW)
		if i == len(argvs)-1 {
			p.capture(outR, p.stdout)
		} else {
			p.parentEnds = append(p.parentEnds, outR)
			nextStdin = outR
		}
	}
	return p, nil
}

// programPath anchors relative program paths at the workspace root; exec
// would otherwise resolve them against the current directory.
func (e *Executor) programPath(name string) string {
	if strings.ContainsRune(name, '/') && !filepath.IsAbs(name) {
		return filepath.Join(e.sec.WorkspaceRoot(), name)
	}
	return name
}

// run starts the validated stages and collects the result.
func (e *Executor) run(ctx context.Context, in ExecutionResult, argvs [][]string, timeout time.Duration) (res ExecutionResult, err error) {
	res = in
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		e.logger.Debug("command finished",
			"id", res.ID,
			"status", res.Status,
			"exit_code", res.ExitCode,
			"stages", len(argvs),
			"duration", util.FormatDuration(res.Duration),
		)
	}()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p, err := e.build(runCtx, argvs)
	if err != nil {
		p.closeParentEnds()
		p.drain()
		return res.failed(StatusError, toolerr.Wrap(toolerr.KindInternal, "execute", "", "failed to create pipes", err))
	}

	limits := e.sec.Policy().Limits
	for i, st := range p.stages {
		if err := st.cmd.Start(); err != nil {
			p.closeParentEnds()
			p.killAll()
			p.drain()
			res.FailedStage = i
			code, startErr := startError(st.argv[0], err)
			res.ExitCode = code
			return res.failed(StatusError, startErr)
		}
		if err := applyLimits(st.cmd.Process.Pid, limits); err != nil {
			p.closeParentEnds()
			p.killAll()
			p.drain()
			res.FailedStage = i
			res.ExitCode = -1
			return res.failed(StatusError, toolerr.Wrap(toolerr.KindExecution, "execute", "", "failed to apply resource limits", err))
		}
	}
	p.closeParentEnds()

	// Stages run concurrently; each one's group is killed as soon as its
	// leader exits so background children cannot linger.
	var g errgroup.Group
	for _, st := range p.stages {
		g.Go(func() error {
			st.waitErr = st.cmd.Wait()
			killGroup(st.cmd)
			return nil
		})
	}
	g.Wait()
	p.drain()

	return e.collect(res, p, runCtx, timeout)
}

// collect fills res from the finished pipeline.
func (e *Executor) collect(res ExecutionResult, p *pipeline, runCtx context.Context, timeout time.Duration) (ExecutionResult, error) {
	res.Stdout, res.StdoutTruncated = e.render(p.stdout)

	stages := make([]StageResult, len(p.stages))
	for i, st := range p.stages {
		stages[i] = StageResult{Argv: st.argv, ExitCode: exitCode(st.waitErr)}
		stages[i].Stderr, stages[i].StderrTruncated = e.render(st.stderr)
		if res.FailedStage < 0 && st.waitErr != nil {
			res.FailedStage = i
		}
	}
	if len(stages) > 1 {
		res.Stages = stages
	}

	reported := len(stages) - 1
	if res.FailedStage >= 0 {
		reported = res.FailedStage
	}
	res.ExitCode = stages[reported].ExitCode
	res.Stderr = stages[reported].Stderr
	res.StderrTruncated = stages[reported].StderrTruncated

	if res.FailedStage < 0 {
		return res, nil
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return res.failed(StatusTimeout, toolerr.New(toolerr.KindTimeout, "execute",
			"command timed out after "+util.FormatDuration(timeout)))
	case errors.Is(runCtx.Err(), context.Canceled):
		return res.failed(StatusError, toolerr.Wrap(toolerr.KindExecution, "execute", "", "command cancelled", runCtx.Err()))
	}

	msg := "command exited with code " + util.IntToStr(res.ExitCode)
	if len(stages) > 1 {
		msg = "stage " + util.IntToStr(res.FailedStage) + " (" + p.stages[res.FailedStage].argv[0] + ") exited with code " + util.IntToStr(res.ExitCode)
	}
	return res.failed(StatusError, toolerr.Wrap(toolerr.KindExecution, "execute", "", msg, p.stages[res.FailedStage].waitErr))
}

// render turns captured bytes into output text: control characters are
// stripped, secrets redacted, and the result capped. The buffers clean while
// capturing, so an overflowed capture holds more than MaxOutputSize runes;
// only redaction placeholders shorter than the secret they replace can
// leave a marked result below the limit.
func (e *Executor) render(buf *cappedBuffer) (string, bool) {
	raw, overflow := buf.Snapshot()
	text := e.sec.RedactSecrets(security.CleanText(string(raw)))
	if overflow {
		return e.sec.MarkTruncated(text), true
	}
	out := e.sec.SanitizeOutput(text)
	return out, out != text
}

// =============================================================================
// HELPERS
// =============================================================================

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// startError classifies a failure to start a process.
func startError(program string, err error) (int, error) {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ExitNotFound, toolerr.Wrap(toolerr.KindNotFound, "execute", "", "command not found: "+program, err)
	case errors.Is(err, fs.ErrPermission):
		return ExitNotExecutable, toolerr.Wrap(toolerr.KindPermission, "execute", "", "Permission denied: "+program, err)
	case errors.Is(err, context.DeadlineExceeded):
		return -1, toolerr.Wrap(toolerr.KindTimeout, "execute", "", "command timed out before starting", err)
	case toolerr.IsTransientErrno(err):
		return -1, toolerr.Wrap(toolerr.KindTransient, "execute", "", "failed to start command: "+program, err)
	}
	return -1, toolerr.Wrap(toolerr.KindExecution, "execute", "", "failed to start command: "+program, err)
}
