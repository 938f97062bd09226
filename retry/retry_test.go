package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/datar-psa/divbench/api"
)

func transientErr() error {
	return &api.BackendError{Kind: api.KindConnection, Op: "generate", Err: errors.New("connection refused")}
}

func TestDo_TransientExhaustsAttempts(t *testing.T) {
	ctx := context.Background()

	calls := 0
	last := transientErr()
	_, err := Do(ctx, Policy{MaxAttempts: 3, Unit: time.Millisecond}, func(ctx context.Context) (string, error) {
		calls++
		return "", last
	})

	if calls != 3 {
		t.Errorf("Do() calls = %d, want 3", calls)
	}
	if !errors.Is(err, last) {
		t.Errorf("Do() err = %v, want the last transient error unchanged", err)
	}
}

func TestDo_FatalIsNotRetried(t *testing.T) {
	ctx := context.Background()

	fatal := &api.SubprocessError{Cmd: "llama-cli", Stderr: "segmentation fault", Err: errors.New("exit status 139")}
	calls := 0
	start := time.Now()
	_, err := Do(ctx, Policy{MaxAttempts: 5, Unit: time.Second}, func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})

	if calls != 1 {
		t.Errorf("Do() calls = %d, want 1", calls)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("Do() err = %v, want the fatal error", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Do() took %v, fatal errors must not wait on backoff", elapsed)
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	ctx := context.Background()

	unit := 5 * time.Millisecond
	calls := 0
	start := time.Now()
	got, err := Do(ctx, Policy{MaxAttempts: 5, Unit: unit}, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", transientErr()
		}
		return "answer", nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Do() err = %v", err)
	}
	if got != "answer" {
		t.Errorf("Do() = %q, want %q", got, "answer")
	}
	if calls != 3 {
		t.Errorf("Do() calls = %d, want 3", calls)
	}
	// Two backoff sleeps of 1 and 2 units.
	if elapsed < 3*unit {
		t.Errorf("Do() elapsed = %v, want at least %v of backoff", elapsed, 3*unit)
	}
}

func TestDo_DefaultsApplied(t *testing.T) {
	ctx := context.Background()

	calls := 0
	_, err := Do(ctx, Policy{Unit: time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		return 0, transientErr()
	})
	if calls != 5 {
		t.Errorf("Do() calls = %d, want default of 5 attempts", calls)
	}
	if err == nil {
		t.Error("Do() err = nil, want transient error")
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "connection kind",
			err:  &api.BackendError{Kind: api.KindConnection, Op: "op", Err: errors.New("refused")},
			want: true,
		},
		{
			name: "timeout kind",
			err:  &api.BackendError{Kind: api.KindTimeout, Op: "op", Err: errors.New("deadline")},
			want: true,
		},
		{
			name: "service unavailable kind",
			err:  &api.BackendError{Kind: api.KindServiceUnavailable, Op: "op", Err: errors.New("503")},
			want: true,
		},
		{
			name: "internal server error kind",
			err:  &api.BackendError{Kind: api.KindInternalServerError, Op: "op", Err: errors.New("500")},
			want: true,
		},
		{
			name: "wrapped backend error",
			err:  errors.Join(errors.New("outer"), &api.BackendError{Kind: api.KindTimeout, Op: "op", Err: errors.New("deadline")}),
			want: true,
		},
		{
			name: "subprocess stderr with network pattern",
			err:  &api.SubprocessError{Cmd: "llama-cli", Stderr: "requests.exceptions.ConnectionError: refused", Err: errors.New("exit status 1")},
			want: true,
		},
		{
			name: "subprocess stderr with timeout pattern",
			err:  &api.SubprocessError{Cmd: "llama-cli", Stderr: "ReadTimeout: read timed out", Err: errors.New("exit status 1")},
			want: true,
		},
		{
			name: "subprocess stderr without network pattern",
			err:  &api.SubprocessError{Cmd: "llama-cli", Stderr: "invalid model file", Err: errors.New("exit status 1")},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
		{
			name: "config error",
			err:  api.NewConfigError("bad task"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transient(tt.err); got != tt.want {
				t.Errorf("Transient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
