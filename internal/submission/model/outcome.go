package model

import (
	"strconv"
	"strings"

	"coderank/internal/execution/runner"
)

// OutcomeFor maps a runner result to terminal data. A timeout wins over the exit code.
// Stderr is kept verbatim; an empty stderr on a failed or timed out run gets a short reason.
// Invalid UTF-8 in either stream is replaced with U+FFFD so the record stays storable.
func OutcomeFor(res runner.Result) Outcome {
	out := Outcome{
		Output:          strings.ToValidUTF8(res.Stdout, "\uFFFD"),
		ErrorMessage:    strings.ToValidUTF8(res.Stderr, "\uFFFD"),
		ExecutionTimeMs: res.ElapsedMs,
		MemoryUsedKB:    res.MemoryKB,
	}
	blank := strings.TrimSpace(res.Stderr) == ""
	switch {
	case res.TimedOut:
		out.Status = StatusTimeout
		if blank {
			out.ErrorMessage = "Execution timed out"
		}
	case res.ExitCode == 0:
		out.Status = StatusCompleted
	default:
		out.Status = StatusFailed
		if blank {
			out.ErrorMessage = exitMessage(res.ExitCode)
		}
	}
	return out
}

func exitMessage(code int) string {
	if code == runner.ExitCodeAbnormal {
		return "Process terminated abnormally"
	}
	return "Process exited with code " + strconv.Itoa(code)
}
