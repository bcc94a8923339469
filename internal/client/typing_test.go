package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEmitter struct {
	mu      sync.Mutex
	signals []bool
}

func (r *recordingEmitter) EmitTyping(_ string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, active)
	return nil
}

func (r *recordingEmitter) recorded() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.signals))
	copy(out, r.signals)
	return out
}

func waitForSignals(t *testing.T, emitter *recordingEmitter, want int) []bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := emitter.recorded(); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d typing signals, got %v", want, emitter.recorded())
	return nil
}

func TestTypingBurstEmitsOneActiveSignal(t *testing.T) {
	emitter := &recordingEmitter{}
	notifier := NewTypingNotifier(emitter, "t1", 50*time.Millisecond, zap.NewNop())

	for i := 0; i < 10; i++ {
		notifier.Keystroke()
	}

	require.Equal(t, []bool{true}, emitter.recorded(),
		"a burst inside the window must emit exactly one active signal")

	signals := waitForSignals(t, emitter, 2)
	require.Equal(t, []bool{true, false}, signals,
		"the window elapsing with no keystroke must emit inactive")
}

func TestTypingKeystrokeReArmsWindow(t *testing.T) {
	emitter := &recordingEmitter{}
	notifier := NewTypingNotifier(emitter, "t1", 60*time.Millisecond, zap.NewNop())

	notifier.Keystroke()
	time.Sleep(30 * time.Millisecond)
	notifier.Keystroke()
	time.Sleep(30 * time.Millisecond)

	// 60ms after the first keystroke, but only 30ms after the second: the
	// re-armed timer has not fired yet.
	require.Equal(t, []bool{true}, emitter.recorded())

	signals := waitForSignals(t, emitter, 2)
	require.Equal(t, []bool{true, false}, signals)
}

func TestTypingNewBurstAfterExpiry(t *testing.T) {
	emitter := &recordingEmitter{}
	notifier := NewTypingNotifier(emitter, "t1", 30*time.Millisecond, zap.NewNop())

	notifier.Keystroke()
	waitForSignals(t, emitter, 2)

	notifier.Keystroke()
	signals := waitForSignals(t, emitter, 3)
	require.Equal(t, []bool{true, false, true}, signals)
}

func TestTypingStopCancelsTimerAndClearsRemoteState(t *testing.T) {
	emitter := &recordingEmitter{}
	notifier := NewTypingNotifier(emitter, "t1", time.Minute, zap.NewNop())

	notifier.Keystroke()
	notifier.Stop()

	require.Equal(t, []bool{true, false}, emitter.recorded())

	// Stopping while already idle emits nothing further.
	notifier.Stop()
	require.Equal(t, []bool{true, false}, emitter.recorded())
}
