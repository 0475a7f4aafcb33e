package containerrt

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("local runtime tests need a POSIX shell")
	}
}

func TestLocalRuntime_CapturesOutputAndExitCode(t *testing.T) {
	requireShell(t)
	rt := NewLocalRuntime()

	out, err := rt.Run(context.Background(), RunSpec{
		Command: []string{"sh", "-c", "echo out; echo err >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", out.ExitCode)
	}
	if got := strings.TrimSpace(string(out.Stdout)); got != "out" {
		t.Errorf("Stdout = %q", got)
	}
	if got := strings.TrimSpace(string(out.Stderr)); got != "err" {
		t.Errorf("Stderr = %q", got)
	}
}

func TestLocalRuntime_StdinDelivered(t *testing.T) {
	requireShell(t)
	rt := NewLocalRuntime()

	out, err := rt.Run(context.Background(), RunSpec{
		Command: []string{"cat"},
		Stdin:   []byte("BASIS=sto-3g\n"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(out.Stdout) != "BASIS=sto-3g\n" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
}

func TestLocalRuntime_FileRoundTrip(t *testing.T) {
	requireShell(t)
	rt := NewLocalRuntime()

	out, err := rt.Run(context.Background(), RunSpec{
		Command:     []string{"sh", "-c", "tr a-z A-Z < input.txt > result.txt"},
		InputFiles:  map[string][]byte{"input.txt": []byte("h2o")},
		OutputFiles: []string{"result.txt", "absent.txt"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := string(out.Files["result.txt"]); got != "H2O" {
		t.Errorf("result.txt = %q", got)
	}
	if _, ok := out.Files["absent.txt"]; ok {
		t.Error("missing output files must be skipped, not reported")
	}
}

func TestLocalRuntime_Timeout(t *testing.T) {
	requireShell(t)
	rt := NewLocalRuntime()

	start := time.Now()
	_, err := rt.Run(context.Background(), RunSpec{
		Command: []string{"sleep", "30"},
		Limits:  ResourceLimits{Timeout: 50 * time.Millisecond},
	})
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("Run err = %v; want ErrTimedOut", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout enforcement took %v", elapsed)
	}
}

func TestLocalRuntime_CallerCancelIsNotATimeout(t *testing.T) {
	requireShell(t)
	rt := NewLocalRuntime()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := rt.Run(ctx, RunSpec{
		Command: []string{"sleep", "30"},
		Limits:  ResourceLimits{Timeout: time.Minute},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v; want context.Canceled", err)
	}
	if errors.Is(err, ErrTimedOut) {
		t.Error("caller cancellation must not be classified as a timeout")
	}
}

func TestLocalRuntime_EmptyCommandIsStartError(t *testing.T) {
	rt := NewLocalRuntime()
	_, err := rt.Run(context.Background(), RunSpec{})
	var start *StartError
	if !errors.As(err, &start) {
		t.Errorf("err = %v; want StartError", err)
	}
}

func TestLocalRuntime_MissingBinaryIsStartError(t *testing.T) {
	rt := NewLocalRuntime()
	_, err := rt.Run(context.Background(), RunSpec{
		Command: []string{"mdtk-no-such-binary-for-tests"},
	})
	var start *StartError
	if !errors.As(err, &start) {
		t.Errorf("err = %v; want StartError", err)
	}
}
