package health

import (
	"testing"
	"time"
)

func TestUnknownProviderIsHealthy(t *testing.T) {
	tr := NewTracker(0, 0, nil)
	if got := tr.StateOf("openai"); got != StateHealthy {
		t.Errorf("expected healthy, got %s", got)
	}
}

func TestConsecutiveFailuresDegradeThenError(t *testing.T) {
	tr := NewTracker(3, 3.0, nil)

	tr.RecordFailure("openai")
	tr.RecordFailure("openai")
	if got := tr.StateOf("openai"); got != StateHealthy {
		t.Fatalf("2 failures should not degrade, got %s", got)
	}

	tr.RecordFailure("openai")
	if got := tr.StateOf("openai"); got != StateDegraded {
		t.Fatalf("3 failures should degrade, got %s", got)
	}

	tr.RecordFailure("openai")
	tr.RecordFailure("openai")
	if got := tr.StateOf("openai"); got != StateDegraded {
		t.Fatalf("5 failures should still be degraded, got %s", got)
	}

	tr.RecordFailure("openai")
	if got := tr.StateOf("openai"); got != StateError {
		t.Fatalf("6 failures should error, got %s", got)
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	tr := NewTracker(3, 3.0, nil)

	tr.RecordFailure("openai")
	tr.RecordFailure("openai")
	tr.RecordSuccess("openai", 100*time.Millisecond)
	tr.RecordFailure("openai")
	tr.RecordFailure("openai")

	if got := tr.StateOf("openai"); got != StateHealthy {
		t.Errorf("streak should have reset, got %s", got)
	}
}

func TestSustainedLatencySpikeDegrades(t *testing.T) {
	tr := NewTracker(3, 3.0, nil)

	for range 10 {
		tr.RecordSuccess("anthropic", 100*time.Millisecond)
	}
	if got := tr.StateOf("anthropic"); got != StateHealthy {
		t.Fatalf("steady latency should be healthy, got %s", got)
	}

	// Two slow samples are not sustained yet.
	tr.RecordSuccess("anthropic", time.Second)
	tr.RecordSuccess("anthropic", time.Second)
	if got := tr.StateOf("anthropic"); got != StateHealthy {
		t.Fatalf("2 slow samples should not degrade, got %s", got)
	}

	tr.RecordSuccess("anthropic", time.Second)
	if got := tr.StateOf("anthropic"); got != StateDegraded {
		t.Fatalf("3 slow samples should degrade, got %s", got)
	}
}

func TestLatencySpikeNeedsBaseline(t *testing.T) {
	tr := NewTracker(3, 3.0, nil)

	// All samples slow from the start: they ARE the baseline.
	for range 5 {
		tr.RecordSuccess("ollama", 2*time.Second)
	}
	if got := tr.StateOf("ollama"); got != StateHealthy {
		t.Errorf("uniformly slow provider is its own baseline, got %s", got)
	}
}

func TestProbeRecovery(t *testing.T) {
	tr := NewTracker(3, 3.0, nil)
	for range 3 {
		tr.RecordFailure("openai")
	}
	if got := tr.StateOf("openai"); got != StateDegraded {
		t.Fatalf("setup failed, got %s", got)
	}

	tr.RecordProbe("openai", true)
	tr.RecordProbe("openai", true)
	if got := tr.StateOf("openai"); got != StateDegraded {
		t.Fatalf("2 probe successes should not recover, got %s", got)
	}

	tr.RecordProbe("openai", true)
	if got := tr.StateOf("openai"); got != StateHealthy {
		t.Fatalf("3 probe successes should recover, got %s", got)
	}
}

func TestProbeFailureResetsStreak(t *testing.T) {
	tr := NewTracker(3, 3.0, nil)
	for range 6 {
		tr.RecordFailure("openai")
	}

	tr.RecordProbe("openai", true)
	tr.RecordProbe("openai", true)
	tr.RecordProbe("openai", false)
	tr.RecordProbe("openai", true)
	tr.RecordProbe("openai", true)
	if got := tr.StateOf("openai"); got != StateError {
		t.Fatalf("broken probe streak should not recover, got %s", got)
	}

	tr.RecordProbe("openai", true)
	if got := tr.StateOf("openai"); got != StateHealthy {
		t.Fatalf("fresh streak of 3 should recover, got %s", got)
	}
}

func TestUnhealthyList(t *testing.T) {
	tr := NewTracker(3, 3.0, nil)
	tr.RecordSuccess("ollama", 50*time.Millisecond)
	for range 3 {
		tr.RecordFailure("openai")
	}
	for range 6 {
		tr.RecordFailure("anthropic")
	}

	unhealthy := tr.Unhealthy()
	if len(unhealthy) != 2 {
		t.Fatalf("expected 2 unhealthy providers, got %v", unhealthy)
	}
	for _, name := range unhealthy {
		if name == "ollama" {
			t.Errorf("healthy provider listed as unhealthy")
		}
	}
}

func TestSnapshot(t *testing.T) {
	tr := NewTracker(3, 3.0, nil)
	tr.RecordSuccess("openai", 200*time.Millisecond)
	tr.RecordFailure("anthropic")

	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	if snap["openai"].LastLatency != 200*time.Millisecond {
		t.Errorf("unexpected openai status: %+v", snap["openai"])
	}
	if snap["anthropic"].ConsecutiveFailures != 1 {
		t.Errorf("unexpected anthropic status: %+v", snap["anthropic"])
	}
}
