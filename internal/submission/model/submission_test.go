package model

import (
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"coderank/internal/execution/language"
	"coderank/internal/execution/runner"
)

func TestStatusTerminal(t *testing.T) {
	t.Parallel()
	want := map[Status]bool{
		StatusPending:           false,
		StatusRunning:           false,
		StatusCompleted:         true,
		StatusFailed:            true,
		StatusTimeout:           true,
		StatusSecurityViolation: true,
	}
	for _, s := range Statuses {
		if s.Terminal() != want[s] {
			t.Fatalf("expected %s terminal=%v", s, want[s])
		}
	}
	if Status("BOGUS").Valid() {
		t.Fatalf("expected unknown status to be invalid")
	}
}

func TestTransitions(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		from    Status
		apply   func(*Submission) error
		want    Status
		wantErr bool
	}{
		{name: "start pending", from: StatusPending, apply: func(s *Submission) error { return s.Start() }, want: StatusRunning},
		{name: "start running", from: StatusRunning, apply: func(s *Submission) error { return s.Start() }, wantErr: true},
		{name: "complete running", from: StatusRunning, apply: func(s *Submission) error {
			return s.Complete(Outcome{Status: StatusCompleted, Output: "ok"}, now)
		}, want: StatusCompleted},
		{name: "complete pending", from: StatusPending, apply: func(s *Submission) error {
			return s.Complete(Outcome{Status: StatusCompleted}, now)
		}, wantErr: true},
		{name: "complete with non terminal outcome", from: StatusRunning, apply: func(s *Submission) error {
			return s.Complete(Outcome{Status: StatusPending}, now)
		}, wantErr: true},
		{name: "complete with security violation", from: StatusRunning, apply: func(s *Submission) error {
			return s.Complete(Outcome{Status: StatusSecurityViolation}, now)
		}, wantErr: true},
		{name: "fail running", from: StatusRunning, apply: func(s *Submission) error { return s.Fail("boom", now) }, want: StatusFailed},
		{name: "fail completed", from: StatusCompleted, apply: func(s *Submission) error { return s.Fail("boom", now) }, wantErr: true},
		{name: "reject pending", from: StatusPending, apply: func(s *Submission) error { return s.Reject("eval", now) }, want: StatusSecurityViolation},
		{name: "reject running", from: StatusRunning, apply: func(s *Submission) error { return s.Reject("eval", now) }, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewPending("id", "owner", language.Python, "print(1)", now)
			s.Status = tt.from
			before := *s

			err := tt.apply(s)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				if *s != before {
					t.Fatalf("expected record to be unchanged on failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, s.Status)
			}
			if tt.want.Terminal() && (s.CompletedAt == nil || !s.CompletedAt.Equal(now)) {
				t.Fatalf("expected completed at to be stamped")
			}
		})
	}
}

func TestOutcomeFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		res     runner.Result
		status  Status
		message string
	}{
		{name: "success", res: runner.Result{Stdout: "hi\n", ExitCode: 0}, status: StatusCompleted},
		{name: "success with warnings", res: runner.Result{Stderr: "warn", ExitCode: 0}, status: StatusCompleted, message: "warn"},
		{name: "program error", res: runner.Result{Stderr: "Traceback", ExitCode: 1}, status: StatusFailed, message: "Traceback"},
		{name: "silent failure", res: runner.Result{ExitCode: 2}, status: StatusFailed, message: "Process exited with code 2"},
		{name: "signal", res: runner.Result{ExitCode: runner.ExitCodeAbnormal}, status: StatusFailed, message: "Process terminated abnormally"},
		{name: "timeout wins over exit code", res: runner.Result{TimedOut: true, ExitCode: 0}, status: StatusTimeout, message: "Execution timed out"},
		{name: "timeout keeps stderr", res: runner.Result{TimedOut: true, ExitCode: -1, Stderr: "partial"}, status: StatusTimeout, message: "partial"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := OutcomeFor(tt.res)
			if got.Status != tt.status {
				t.Fatalf("expected %s, got %s", tt.status, got.Status)
			}
			if got.ErrorMessage != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, got.ErrorMessage)
			}
			if got.Output != tt.res.Stdout {
				t.Fatalf("expected output to be stdout")
			}
		})
	}
}

func TestOutcomeForInvalidUTF8(t *testing.T) {
	t.Parallel()
	got := OutcomeFor(runner.Result{Stdout: "ok\xff\xfe", Stderr: "bad \xc3", ExitCode: 1})
	if !utf8.ValidString(got.Output) || !utf8.ValidString(got.ErrorMessage) {
		t.Fatalf("expected valid UTF-8, got %q and %q", got.Output, got.ErrorMessage)
	}
	if got.Output != "ok\uFFFD" {
		t.Fatalf("expected replacement character in output, got %q", got.Output)
	}
	if got.ErrorMessage != "bad \uFFFD" {
		t.Fatalf("expected replacement character in error message, got %q", got.ErrorMessage)
	}
	if got.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
}

func TestClone(t *testing.T) {
	t.Parallel()
	now := time.Now()
	s := NewPending("id", "owner", language.Java, "class A {}", now)
	s.CompletedAt = &now
	c := s.Clone()
	later := now.Add(time.Hour)
	*c.CompletedAt = later
	if !s.CompletedAt.Equal(now) {
		t.Fatalf("expected clone to own its completed at")
	}
}
