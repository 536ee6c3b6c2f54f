package realm

import (
	"context"
	"errors"
	"testing"
)

func TestWithCacheFlushRetry_FirstAttemptSucceeds(t *testing.T) {
	calls, flushes := 0, 0

	v, err := withCacheFlushRetry(context.Background(), func() (int, error) {
		calls++
		return 42, nil
	}, func(context.Context) error {
		flushes++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("value = %d, want 42", v)
	}
	if calls != 1 || flushes != 0 {
		t.Errorf("calls = %d, flushes = %d, want 1 and 0", calls, flushes)
	}
}

func TestWithCacheFlushRetry_FlushesAndRetriesOnce(t *testing.T) {
	calls, flushes := 0, 0

	v, err := withCacheFlushRetry(context.Background(), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("stale cache")
		}
		return "recovered", nil
	}, func(context.Context) error {
		flushes++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "recovered" {
		t.Errorf("value = %q, want %q", v, "recovered")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if flushes != 1 {
		t.Errorf("flushes = %d, want 1", flushes)
	}
}

func TestWithCacheFlushRetry_SecondFailureReturned(t *testing.T) {
	calls := 0
	second := errors.New("still failing")

	_, err := withCacheFlushRetry(context.Background(), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("first failure")
		}
		return 0, second
	}, func(context.Context) error { return nil })
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if !errors.Is(err, second) {
		t.Errorf("error = %v, want the second failure", err)
	}
}

func TestWithCacheFlushRetry_FlushFailureStillRetries(t *testing.T) {
	calls := 0

	v, err := withCacheFlushRetry(context.Background(), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 7, nil
	}, func(context.Context) error {
		return errors.New("flush failed")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 7 {
		t.Errorf("value = %d, want 7", v)
	}
}
