package schedule

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestAdd_EmptySpecIsIgnored(t *testing.T) {
	s := New(newTestLogger(&bytes.Buffer{}))

	if err := s.Add("discover", "", func(context.Context) {}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestAdd_InvalidSpec(t *testing.T) {
	s := New(newTestLogger(&bytes.Buffer{}))

	err := s.Add("discover", "every day at noon", func(context.Context) {})
	if err == nil {
		t.Fatal("expected error for invalid spec")
	}
	if !strings.Contains(err.Error(), "discover") {
		t.Errorf("error should name the job, got %v", err)
	}
}

func TestAdd_ValidSpecs(t *testing.T) {
	s := New(newTestLogger(&bytes.Buffer{}))

	for _, spec := range []string{"0 6 * * *", "@every 6h", "@daily"} {
		if err := s.Add("job", spec, func(context.Context) {}); err != nil {
			t.Errorf("Add(%q) returned error: %v", spec, err)
		}
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestScheduler_RunsJobAndCancelsOnStop(t *testing.T) {
	var buf bytes.Buffer
	s := New(newTestLogger(&buf))

	var runs atomic.Int32
	cancelled := make(chan struct{})
	err := s.Add("archive", "@every 1s", func(ctx context.Context) {
		if runs.Add(1) == 1 {
			<-ctx.Done()
			close(cancelled)
		}
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	s.Start()

	deadline := time.After(5 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job did not run within 5s")
		case <-time.After(50 * time.Millisecond):
		}
	}

	done := s.Stop()
	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("job context was not cancelled on Stop")
	}
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not wait for the running job")
	}

	if !strings.Contains(buf.String(), "scheduled job started") {
		t.Errorf("start log should be written, got %s", buf.String())
	}
}

func TestCronLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{logger: newTestLogger(&buf)}

	l.Error(errors.New("boom"), "panic", "job", "discover")

	out := buf.String()
	for _, want := range []string{`"msg":"panic"`, `"error":"boom"`, `"job":"discover"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log should contain %s, got %s", want, out)
		}
	}
}
