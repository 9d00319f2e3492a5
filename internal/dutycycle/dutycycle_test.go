package dutycycle

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSleeper struct {
	calls []int
}

func (r *recordingSleeper) SleepBounded(_ context.Context, ms int) error {
	r.calls = append(r.calls, ms)
	return nil
}

func TestController_Sleep(t *testing.T) {
	tests := []struct {
		seconds   int
		wantUnits int
		wantLast  int
	}{
		{seconds: 3605, wantUnits: 450, wantLast: 5000},
		{seconds: 16, wantUnits: 2, wantLast: 0},
		{seconds: 7, wantUnits: 0, wantLast: 7000},
		{seconds: 0, wantUnits: 0, wantLast: 0},
	}

	for _, tt := range tests {
		rec := &recordingSleeper{}
		c := NewController(rec, nil)
		if err := c.Sleep(context.Background(), tt.seconds); err != nil {
			t.Fatalf("Sleep(%d) error = %v", tt.seconds, err)
		}

		if len(rec.calls) != tt.wantUnits+1 {
			t.Fatalf("Sleep(%d) made %d calls, want %d", tt.seconds, len(rec.calls), tt.wantUnits+1)
		}
		for i, ms := range rec.calls[:tt.wantUnits] {
			if ms != UnitMillis {
				t.Errorf("Sleep(%d) call %d = %dms, want %d", tt.seconds, i, ms, UnitMillis)
			}
		}
		if last := rec.calls[tt.wantUnits]; last != tt.wantLast {
			t.Errorf("Sleep(%d) final call = %dms, want %d", tt.seconds, last, tt.wantLast)
		}
	}
}

func TestController_SleepRejectsNegative(t *testing.T) {
	rec := &recordingSleeper{}
	if err := NewController(rec, nil).Sleep(context.Background(), -1); err == nil {
		t.Fatal("Sleep(-1) error = nil")
	}
	if len(rec.calls) != 0 {
		t.Errorf("primitive called %d times", len(rec.calls))
	}
}

func TestHostSleeper(t *testing.T) {
	var s HostSleeper
	ctx := context.Background()

	if err := s.SleepBounded(ctx, UnitMillis+1); !errors.Is(err, ErrUnitTooLong) {
		t.Errorf("SleepBounded(8001) error = %v, want ErrUnitTooLong", err)
	}
	if err := s.SleepBounded(ctx, 0); err != nil {
		t.Errorf("SleepBounded(0) error = %v", err)
	}

	start := time.Now()
	if err := s.SleepBounded(ctx, 20); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("SleepBounded(20) returned after %v", elapsed)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.SleepBounded(cancelled, UnitMillis); !errors.Is(err, context.Canceled) {
		t.Errorf("SleepBounded on cancelled ctx error = %v", err)
	}
}
