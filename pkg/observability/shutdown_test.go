package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestWaitForShutdownRunsFuncs(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(logger, server, 5*time.Second)

	var calls int32
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- sm.WaitForShutdown() }()

	// Give the manager time to install its signal handler.
	time.Sleep(50 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("WaitForShutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("shutdown funcs ran %d times, want 2", calls)
	}
}

func TestWaitForShutdownReportsErrors(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, 5*time.Second)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return errors.New("close failed")
	})

	errCh := make(chan error, 1)
	go func() { errCh <- sm.WaitForShutdown() }()

	time.Sleep(50 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected error from failing shutdown func")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}

func TestDefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(ErrorLevel, io.Discard), nil, 0)
	if sm.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", sm.timeout)
	}
}
