package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"coderank/internal/execution/language"
	"coderank/internal/execution/observer"
	appErr "coderank/pkg/errors"
	"coderank/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultScratchPrefix  = "coderank_"
	defaultTimeout        = 10 * time.Second
	defaultProbeTimeout   = 5 * time.Second
	defaultMaxOutputBytes = 64 << 10
	defaultWaitDelay      = 500 * time.Millisecond
)

// Config controls the process runner.
type Config struct {
	// ScratchRoot is the parent of per-execution scratch directories. Default os.TempDir().
	ScratchRoot    string        `yaml:"scratchRoot"`
	ScratchPrefix  string        `yaml:"scratchPrefix"`
	DefaultTimeout time.Duration `yaml:"defaultTimeout"`
	ProbeTimeout   time.Duration `yaml:"probeTimeout"`
	// ProbeCacheTTL caches availability per language. Zero probes on every run.
	ProbeCacheTTL time.Duration `yaml:"probeCacheTTL"`
	// MaxOutputBytes caps stdout and stderr independently.
	MaxOutputBytes int `yaml:"maxOutputBytes"`
	// WaitDelay bounds how long output pipes held open by stray children are drained after exit.
	WaitDelay time.Duration `yaml:"waitDelay"`
	// Env is the child environment. Empty means PATH from the service. HOME and TMPDIR
	// always point at the scratch directory.
	Env []string `yaml:"env"`
}

func (c *Config) setDefaults() {
	if c.ScratchRoot == "" {
		c.ScratchRoot = os.TempDir()
	}
	if c.ScratchPrefix == "" {
		c.ScratchPrefix = defaultScratchPrefix
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = defaultMaxOutputBytes
	}
	if c.WaitDelay <= 0 {
		c.WaitDelay = defaultWaitDelay
	}
	if len(c.Env) == 0 {
		c.Env = []string{"PATH=" + os.Getenv("PATH")}
	}
}

// ProcessRunner runs each pipeline step as a host child process in a fresh scratch directory.
type ProcessRunner struct {
	cfg      Config
	recorder observer.Recorder

	probeMu    sync.Mutex
	probeCache map[language.Language]probeEntry
}

type probeEntry struct {
	availability Availability
	expires      time.Time
}

// NewProcessRunner creates a runner. A nil recorder disables metrics.
func NewProcessRunner(cfg Config, recorder observer.Recorder) *ProcessRunner {
	cfg.setDefaults()
	return &ProcessRunner{
		cfg:        cfg,
		recorder:   observer.OrNop(recorder),
		probeCache: make(map[language.Language]probeEntry),
	}
}

// Run executes req. See Runner.
func (r *ProcessRunner) Run(ctx context.Context, req Request) (Result, error) {
	if req.Language == nil {
		return Result{}, appErr.New(appErr.JudgeSystemError).WithMessage("language descriptor is required")
	}
	langID := req.Language.ID().String()

	if avail := r.Probe(ctx, req.Language); !avail.Available {
		r.recorder.ObserveRun(ctx, langID, observer.OutcomeUnavailable, 0, 0)
		return Result{
			ExitCode: ExitCodeAbnormal,
			Stderr:   fmt.Sprintf("%s toolchain is not available: %s", langID, avail.Details),
		}, nil
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}

	dir, err := os.MkdirTemp(r.cfg.ScratchRoot, r.cfg.ScratchPrefix)
	if err != nil {
		r.recorder.ObserveRun(ctx, langID, observer.OutcomeError, 0, 0)
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "create scratch directory failed")
	}
	defer r.removeScratch(ctx, dir)

	fileName := req.Language.SourceFileName(req.Source)
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(req.Source), 0o600); err != nil {
		r.recorder.ObserveRun(ctx, langID, observer.OutcomeError, 0, 0)
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "write source file failed")
	}

	cmds, err := req.Language.Commands(dir, fileName)
	if err != nil {
		r.recorder.ObserveRun(ctx, langID, observer.OutcomeError, 0, 0)
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "expand commands failed")
	}

	stdout := newCappedBuffer(r.cfg.MaxOutputBytes)
	stderr := newCappedBuffer(r.cfg.MaxOutputBytes)

	start := time.Now()
	deadline := start.Add(timeout)
	res := Result{}

	for i, argv := range cmds {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			res.TimedOut = true
			break
		}

		var stdin io.Reader
		if i == len(cmds)-1 {
			stdin = strings.NewReader(req.Stdin)
		}

		step, err := r.runStep(ctx, dir, argv, stdin, stdout, stderr, remaining)
		if err != nil {
			r.recorder.ObserveRun(ctx, langID, observer.OutcomeError, time.Since(start).Milliseconds(), res.MemoryKB)
			return Result{}, err
		}
		if step.memoryKB > res.MemoryKB {
			res.MemoryKB = step.memoryKB
		}
		res.ExitCode = step.exitCode
		if step.timedOut {
			res.TimedOut = true
			break
		}
		if step.exitCode != 0 {
			break
		}
	}

	res.ElapsedMs = time.Since(start).Milliseconds()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.Truncated() || stderr.Truncated()
	if res.TimedOut {
		res.ExitCode = ExitCodeAbnormal
	}

	r.recorder.ObserveRun(ctx, langID, runOutcome(res), res.ElapsedMs, res.MemoryKB)
	return res, nil
}

type stepResult struct {
	exitCode int
	timedOut bool
	memoryKB int64
}

func (r *ProcessRunner) runStep(ctx context.Context, dir string, argv []string, stdin io.Reader, stdout, stderr io.Writer, limit time.Duration) (stepResult, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = r.childEnv(dir)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = processAttr()
	cmd.WaitDelay = r.cfg.WaitDelay

	if err := cmd.Start(); err != nil {
		return stepResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "start %s failed", filepath.Base(argv[0]))
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		select {
		case <-timer.C:
			timedOut.Store(true)
			killProcessTree(cmd)
		case <-ctx.Done():
			killProcessTree(cmd)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	killProcessTree(cmd)

	if ctx.Err() != nil && !timedOut.Load() {
		return stepResult{}, appErr.Wrapf(ctx.Err(), appErr.JudgeSystemError, "execution canceled")
	}

	step := stepResult{
		exitCode: exitCode(waitErr, cmd.ProcessState),
		timedOut: timedOut.Load(),
		memoryKB: peakMemoryKB(cmd.ProcessState),
	}
	if waitErr != nil && !errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState == nil {
		return stepResult{}, appErr.Wrapf(waitErr, appErr.JudgeSystemError, "wait for %s failed", filepath.Base(argv[0]))
	}
	return step, nil
}

func (r *ProcessRunner) childEnv(dir string) []string {
	env := make([]string, 0, len(r.cfg.Env)+2)
	env = append(env, r.cfg.Env...)
	return append(env, "HOME="+dir, "TMPDIR="+dir)
}

func (r *ProcessRunner) removeScratch(ctx context.Context, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn(ctx, "remove scratch directory failed", zap.String("dir", dir), zap.Error(err))
	}
}

func exitCode(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return ExitCodeAbnormal
}

func runOutcome(res Result) string {
	switch {
	case res.TimedOut:
		return observer.OutcomeTimeout
	case res.ExitCode == 0:
		return observer.OutcomeOK
	default:
		return observer.OutcomeNonZero
	}
}
