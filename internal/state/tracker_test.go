package state

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedTracker(now time.Time) *Tracker {
	tr := NewTracker()
	tr.now = func() time.Time { return now }
	return tr
}

func TestRecordFailureBackoffGrows(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := fixedTracker(now)

	prev := time.Duration(0)
	for i := 1; i <= 6; i++ {
		tr.RecordFailure(1, 10, errors.New("connect refused"))
		st := tr.Snapshot(1)[10]

		delay := st.NextRetryAt.Sub(now)
		want := time.Duration(1<<uint(i)) * time.Second
		if delay < want || delay >= want+time.Second {
			t.Fatalf("failure %d: delay = %v, want [%v, %v)", i, delay, want, want+time.Second)
		}
		if delay <= prev {
			t.Fatalf("failure %d: delay %v did not grow past %v", i, delay, prev)
		}
		prev = delay
	}
}

func TestRecordFailureBackoffClamped(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := fixedTracker(now)

	for i := 0; i < 20; i++ {
		tr.RecordFailure(1, 10, errors.New("boom"))
	}

	st := tr.Snapshot(1)[10]
	delay := st.NextRetryAt.Sub(now)
	want := 64 * time.Second // shift is clamped, delay stops doubling
	if delay < want || delay >= want+time.Second {
		t.Fatalf("clamped delay = %v, want [%v, %v)", delay, want, want+time.Second)
	}
	if st.ConsecutiveFailures != 20 {
		t.Fatalf("ConsecutiveFailures = %d, want 20", st.ConsecutiveFailures)
	}
}

func TestRecordSuccessResetsBackoff(t *testing.T) {
	tr := NewTracker()

	tr.RecordFailure(1, 10, errors.New("boom"))
	tr.RecordFailure(1, 10, errors.New("boom"))
	tr.RecordSuccess(1, 10)

	st := tr.Snapshot(1)[10]
	if !st.Connected {
		t.Fatal("account not marked connected")
	}
	if st.ConsecutiveFailures != 0 {
		t.Fatalf("ConsecutiveFailures = %d, want 0", st.ConsecutiveFailures)
	}
	if !st.NextRetryAt.IsZero() {
		t.Fatalf("NextRetryAt = %v, want zero", st.NextRetryAt)
	}
	if st.LastError != "" {
		t.Fatalf("LastError = %q, want empty", st.LastError)
	}
}

func TestStartNotifiedOnce(t *testing.T) {
	tr := NewTracker()

	if !tr.RecordSuccess(1, 10) {
		t.Fatal("first success should request the start notification")
	}
	if tr.RecordSuccess(1, 10) {
		t.Fatal("second success should not re-notify")
	}

	// Even across a failure streak the start notice stays one-time
	tr.RecordFailure(1, 10, errors.New("boom"))
	if tr.RecordSuccess(1, 10) {
		t.Fatal("reconnect should not re-notify start")
	}
}

func TestErrorNotifiedOncePerStreak(t *testing.T) {
	tr := NewTracker()

	if !tr.RecordFailure(1, 10, errors.New("boom")) {
		t.Fatal("first failure should request the error notification")
	}
	if tr.RecordFailure(1, 10, errors.New("boom")) {
		t.Fatal("repeated failure should not re-notify")
	}

	// A success re-arms the notification for the next streak
	tr.RecordSuccess(1, 10)
	if !tr.RecordFailure(1, 10, errors.New("boom")) {
		t.Fatal("failure after recovery should notify again")
	}
}

func TestErrorMessageTruncated(t *testing.T) {
	tr := NewTracker()

	tr.RecordFailure(1, 10, errors.New(strings.Repeat("x", 1000)))
	st := tr.Snapshot(1)[10]
	if len(st.LastError) != 300 {
		t.Fatalf("LastError length = %d, want 300", len(st.LastError))
	}
}

func TestIsEligible(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := fixedTracker(now)

	if !tr.IsEligible(1, 10, now) {
		t.Fatal("untracked account should be eligible")
	}

	tr.RecordFailure(1, 10, errors.New("boom"))
	if tr.IsEligible(1, 10, now) {
		t.Fatal("account in backoff should not be eligible")
	}
	if !tr.IsEligible(1, 10, now.Add(time.Hour)) {
		t.Fatal("account past its retry time should be eligible")
	}

	tr.RecordSuccess(1, 10)
	if !tr.IsEligible(1, 10, now) {
		t.Fatal("recovered account should be eligible")
	}
}

func TestFirstPassConsumedOnce(t *testing.T) {
	tr := NewTracker()

	if tr.ConsumeFirstPass(1, 10) {
		t.Fatal("unmarked account should not report first pass")
	}
	if tr.PendingFirstPass(1, 10) {
		t.Fatal("unmarked account should not report a pending flag")
	}

	tr.MarkFirstPass(1, 10)
	tr.MarkFirstPass(1, 10) // idempotent
	if !tr.PendingFirstPass(1, 10) {
		t.Fatal("marked account should report a pending flag")
	}
	if !tr.PendingFirstPass(1, 10) {
		t.Fatal("peeking must not consume the flag")
	}
	if !tr.ConsumeFirstPass(1, 10) {
		t.Fatal("marked account should report first pass")
	}
	if tr.ConsumeFirstPass(1, 10) {
		t.Fatal("flag should be cleared after the first read")
	}
	if tr.PendingFirstPass(1, 10) {
		t.Fatal("consumed flag should no longer be pending")
	}
}

func TestForgetDropsState(t *testing.T) {
	tr := NewTracker()

	tr.RecordFailure(1, 10, errors.New("boom"))
	tr.MarkFirstPass(1, 10)
	tr.Forget(1, 10)

	if _, ok := tr.Snapshot(1)[10]; ok {
		t.Fatal("forgotten account still present in snapshot")
	}
	if !tr.IsEligible(1, 10, time.Now()) {
		t.Fatal("forgotten account should be eligible again")
	}
	if tr.ConsumeFirstPass(1, 10) {
		t.Fatal("forgotten account should lose its first-pass flag")
	}
}

func TestMarkAllDisconnected(t *testing.T) {
	tr := NewTracker()

	tr.RecordSuccess(1, 10)
	tr.RecordSuccess(1, 11)
	tr.MarkAllDisconnected(1)

	for id, st := range tr.Snapshot(1) {
		if st.Connected {
			t.Fatalf("account %d still connected", id)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := NewTracker()

	tr.RecordSuccess(1, 10)
	snap := tr.Snapshot(1)
	entry := snap[10]
	entry.Connected = false
	snap[10] = entry

	if got := tr.Snapshot(1)[10]; !got.Connected {
		t.Fatal("mutating a snapshot changed tracker state")
	}
}
