package lockstate

import (
	"errors"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"
)

func newFakeLock(t *testing.T, typ Type) (*Lock, *clocktesting.FakePassiveClock) {
	t.Helper()
	fc := clocktesting.NewFakePassiveClock(time.Unix(0, 0))
	return New("L", typ, Options{}, fc), fc
}

func TestNewStartsAcquiring(t *testing.T) {
	t.Parallel()

	l, _ := newFakeLock(t, Reader)

	if got := l.Status(); got != Acquiring {
		t.Fatalf("Status() = %v, want %v", got, Acquiring)
	}
	if l.ID() == "" {
		t.Fatal("ID() is empty")
	}
	if _, ok := l.SettledAt(); ok {
		t.Fatal("SettledAt() reports settled before any transition")
	}
}

func TestTransitions(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		from    Status
		to      Status
		wantErr bool
	}{
		"acquiring to acquired": {Acquiring, Acquired, false},
		"acquiring to rejected": {Acquiring, Rejected, false},
		"acquired to releasing": {Acquired, Releasing, false},
		"acquired to released":  {Acquired, Released, false},
		"releasing to released": {Releasing, Released, false},

		"acquiring to releasing": {Acquiring, Releasing, true},
		"acquiring to released":  {Acquiring, Released, true},
		"acquired to rejected":   {Acquired, Rejected, true},
		"releasing to acquired":  {Releasing, Acquired, true},
		"releasing to rejected":  {Releasing, Rejected, true},
		"released to acquired":   {Released, Acquired, true},
		"rejected to acquired":   {Rejected, Acquired, true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			l, _ := newFakeLock(t, Writer)
			l.status = tc.from
			if tc.from.settled() {
				l.settledAt = l.clock.Now()
			}

			var err error
			switch tc.to {
			case Acquired:
				err = l.MarkAcquired()
			case Rejected:
				err = l.Reject(errors.New("boom"))
			case Releasing:
				err = l.MarkReleasing()
			case Released:
				err = l.MarkReleased()
			default:
				t.Fatalf("unsupported target %v in test table", tc.to)
			}

			if tc.wantErr {
				if err == nil {
					t.Fatalf("%v -> %v: want error, got nil", tc.from, tc.to)
				}
				if !errors.Is(err, ErrIllegalTransition) {
					t.Fatalf("error = %v, want wrapping ErrIllegalTransition", err)
				}
				if got := l.Status(); got != tc.from {
					t.Fatalf("status mutated on illegal transition: got %v, want unchanged %v", got, tc.from)
				}
				return
			}

			if err != nil {
				t.Fatalf("%v -> %v: unexpected error: %v", tc.from, tc.to, err)
			}
			if got := l.Status(); got != tc.to {
				t.Fatalf("Status() = %v, want %v", got, tc.to)
			}
		})
	}
}

func TestRejectSetsReason(t *testing.T) {
	t.Parallel()

	l, _ := newFakeLock(t, Reader)
	cause := errors.New("timed out")

	if err := l.Reject(cause); err != nil {
		t.Fatalf("Reject() error: %v", err)
	}
	if got := l.Reason(); !errors.Is(got, cause) && got != cause {
		t.Fatalf("Reason() = %v, want %v", got, cause)
	}
}

func TestTimestampMonotonicity(t *testing.T) {
	t.Parallel()

	l, fc := newFakeLock(t, Writer)

	fc.SetTime(fc.Now().Add(10 * time.Millisecond))
	if err := l.MarkAcquired(); err != nil {
		t.Fatalf("MarkAcquired() error: %v", err)
	}
	settledAt, ok := l.SettledAt()
	if !ok {
		t.Fatal("SettledAt() not set after MarkAcquired")
	}
	if settledAt.Before(l.CreatedAt()) {
		t.Fatalf("settledAt %v before createdAt %v", settledAt, l.CreatedAt())
	}

	fc.SetTime(fc.Now().Add(10 * time.Millisecond))
	if err := l.MarkReleasing(); err != nil {
		t.Fatalf("MarkReleasing() error: %v", err)
	}
	fc.SetTime(fc.Now().Add(10 * time.Millisecond))
	if err := l.MarkReleased(); err != nil {
		t.Fatalf("MarkReleased() error: %v", err)
	}
	releasedAt, ok := l.ReleasedAt()
	if !ok {
		t.Fatal("ReleasedAt() not set after MarkReleased")
	}
	if releasedAt.Before(settledAt) {
		t.Fatalf("releasedAt %v before settledAt %v", releasedAt, settledAt)
	}

	settledIn, ok := l.SettledIn()
	if !ok || settledIn <= 0 {
		t.Fatalf("SettledIn() = %v, %v, want positive duration", settledIn, ok)
	}
	acquiredFor, ok := l.AcquiredFor()
	if !ok || acquiredFor <= 0 {
		t.Fatalf("AcquiredFor() = %v, %v, want positive duration", acquiredFor, ok)
	}
}

func TestMarkReleasedWithoutSettledAtPanics(t *testing.T) {
	t.Parallel()

	l, _ := newFakeLock(t, Reader)
	l.mu.Lock()
	l.status = Acquired // force Acquired without having gone through a settling transition
	l.mu.Unlock()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when Released is entered without a settledAt")
		}
	}()
	_ = l.MarkReleased()
}

func TestOptionsDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	var o Options
	if got := o.PullInterval(); got != DefaultPullIntervalMs*time.Millisecond {
		t.Fatalf("PullInterval() = %v, want default", got)
	}
	if _, ok := o.AcquireTimeout(); ok {
		t.Fatal("AcquireTimeout() reports set when zero")
	}

	o = Options{AcquireTimeoutMs: 100, PullIntervalMs: 10}
	d, ok := o.AcquireTimeout()
	if !ok || d != 100*time.Millisecond {
		t.Fatalf("AcquireTimeout() = %v, %v, want 100ms, true", d, ok)
	}
	if got := o.PullInterval(); got != 10*time.Millisecond {
		t.Fatalf("PullInterval() = %v, want 10ms", got)
	}
}

func TestOptionsNegativePanics(t *testing.T) {
	t.Parallel()

	t.Run("acquire timeout", func(t *testing.T) {
		t.Parallel()
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic for negative AcquireTimeoutMs")
			}
		}()
		Options{AcquireTimeoutMs: -1}.AcquireTimeout() //nolint:errcheck // panic path under test
	})

	t.Run("pull interval", func(t *testing.T) {
		t.Parallel()
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic for negative PullIntervalMs")
			}
		}()
		Options{PullIntervalMs: -1}.PullInterval()
	})
}
