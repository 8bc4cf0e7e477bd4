package runner

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"coderank/internal/execution/language"
)

// Probe runs the language's probe command under ProbeTimeout. Results are cached for ProbeCacheTTL.
func (r *ProcessRunner) Probe(ctx context.Context, lang language.Descriptor) Availability {
	if lang == nil {
		return Availability{Details: "language descriptor is required"}
	}
	id := lang.ID()

	if r.cfg.ProbeCacheTTL > 0 {
		r.probeMu.Lock()
		entry, ok := r.probeCache[id]
		r.probeMu.Unlock()
		if ok && time.Now().Before(entry.expires) {
			return entry.availability
		}
	}

	avail := r.probe(ctx, lang.ProbeCommand())

	if r.cfg.ProbeCacheTTL > 0 {
		r.probeMu.Lock()
		r.probeCache[id] = probeEntry{availability: avail, expires: time.Now().Add(r.cfg.ProbeCacheTTL)}
		r.probeMu.Unlock()
	}
	return avail
}

func (r *ProcessRunner) probe(ctx context.Context, argv []string) Availability {
	if len(argv) == 0 {
		return Availability{Details: "probe command is empty"}
	}
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(probeCtx, argv[0], argv[1:]...)
	cmd.Env = r.cfg.Env
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = r.cfg.WaitDelay

	if err := cmd.Run(); err != nil {
		if probeCtx.Err() == context.DeadlineExceeded {
			return Availability{Details: "probe timed out after " + r.cfg.ProbeTimeout.String()}
		}
		return Availability{Details: err.Error()}
	}
	return Availability{Available: true, Details: firstLine(out.String())}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
