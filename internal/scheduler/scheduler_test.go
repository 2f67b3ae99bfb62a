package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type mockSyncer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockSyncer) SyncAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func (m *mockSyncer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockProcessor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockProcessor) ProcessAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func (m *mockProcessor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCycleRunsSyncThenRules(t *testing.T) {
	syncer := &mockSyncer{}
	rules := &mockProcessor{}

	sched := New(syncer, rules, discardLogger())
	sched.cycle(context.Background())

	if syncer.callCount() != 1 {
		t.Errorf("sync calls = %d, want 1", syncer.callCount())
	}
	if rules.callCount() != 1 {
		t.Errorf("rule calls = %d, want 1", rules.callCount())
	}
}

func TestCycleContinuesAfterSyncError(t *testing.T) {
	syncer := &mockSyncer{err: errors.New("upstream down")}
	rules := &mockProcessor{}

	sched := New(syncer, rules, discardLogger())
	sched.cycle(context.Background())

	if rules.callCount() != 1 {
		t.Errorf("rule calls = %d, want 1 despite sync error", rules.callCount())
	}
}

func TestCycleCancelledContext(t *testing.T) {
	syncer := &mockSyncer{}
	rules := &mockProcessor{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sched := New(syncer, rules, discardLogger())
	sched.cycle(ctx)

	if syncer.callCount() != 0 || rules.callCount() != 0 {
		t.Error("cancelled context should skip the cycle entirely")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	syncer := &mockSyncer{}
	rules := &mockProcessor{}

	sched := New(syncer, rules, discardLogger())
	sched.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}

	if syncer.callCount() == 0 {
		t.Error("expected at least one sync before cancellation")
	}
}
