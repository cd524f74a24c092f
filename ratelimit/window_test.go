package ratelimit

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a settable clock for driving limiters without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestWindow(t *testing.T, max int, window time.Duration, opts ...Option) (*WindowLimiter, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	l, err := NewWindowLimiter(max, window, append([]Option{WithClock(clk.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("NewWindowLimiter: %v", err)
	}
	return l, clk
}

func TestNewWindowLimiter_InvalidArguments(t *testing.T) {
	cases := []struct {
		name   string
		max    int
		window time.Duration
	}{
		{"zero max", 0, time.Second},
		{"negative max", -1, time.Second},
		{"zero window", 3, 0},
		{"negative window", 3, -time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := NewWindowLimiter(tc.max, tc.window)
			if l != nil {
				t.Fatal("expected nil limiter")
			}
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestTryAdmit_SameInstant(t *testing.T) {
	l, _ := newTestWindow(t, 3, 60*time.Second)

	var got []bool
	for i := 0; i < 5; i++ {
		got = append(got, l.TryAdmit())
	}

	want := []bool{true, true, true, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("request %d: admitted = %v, want %v (all: %v)", i+1, got[i], want[i], got)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("retained = %d, want 3", l.Len())
	}
}

func TestTryAdmit_FullResetAfterWindow(t *testing.T) {
	l, clk := newTestWindow(t, 3, 60*time.Second)

	for i := 0; i < 5; i++ {
		l.TryAdmit()
	}

	clk.Advance(60 * time.Second)

	for i := 0; i < 3; i++ {
		if !l.TryAdmit() {
			t.Fatalf("request %d after window should be admitted", i+1)
		}
	}
	if l.TryAdmit() {
		t.Fatal("fourth request in new window should be rejected")
	}
}

func TestTryAdmit_WindowBoundary(t *testing.T) {
	l, clk := newTestWindow(t, 1, time.Second)

	if !l.TryAdmit() {
		t.Fatal("first request should be admitted")
	}

	// one tick short of the window, the old event still counts
	clk.Advance(time.Second - time.Nanosecond)
	if l.TryAdmit() {
		t.Fatal("request inside the window should be rejected")
	}

	// exactly window later the event is stale
	clk.Advance(time.Nanosecond)
	if !l.TryAdmit() {
		t.Fatal("request exactly one window later should be admitted")
	}
}

func TestTryAdmit_Sliding(t *testing.T) {
	l, clk := newTestWindow(t, 2, 10*time.Second)

	l.TryAdmit() // t=0
	clk.Advance(4 * time.Second)
	l.TryAdmit() // t=4
	clk.Advance(4 * time.Second)

	// t=8, both still inside the window
	if l.TryAdmit() {
		t.Fatal("t=8 should be rejected")
	}

	// t=10, the t=0 event expires and frees one slot only
	clk.Advance(2 * time.Second)
	if !l.TryAdmit() {
		t.Fatal("t=10 should be admitted")
	}
	if l.TryAdmit() {
		t.Fatal("second request at t=10 should be rejected")
	}

	// t=14, the t=4 event expires
	clk.Advance(4 * time.Second)
	if !l.TryAdmit() {
		t.Fatal("t=14 should be admitted")
	}
}

func TestTryAdmit_RejectionsDoNotExtendWindow(t *testing.T) {
	l, clk := newTestWindow(t, 1, 10*time.Second)

	l.TryAdmit()
	for i := 0; i < 9; i++ {
		clk.Advance(time.Second)
		if l.TryAdmit() {
			t.Fatalf("request at t=%ds should be rejected", i+1)
		}
	}

	clk.Advance(time.Second)
	if !l.TryAdmit() {
		t.Fatal("rejected requests must not be recorded")
	}
}

func TestTryAdmit_PrunesStaleOnReject(t *testing.T) {
	l, clk := newTestWindow(t, 2, 10*time.Second)

	l.TryAdmit()
	clk.Advance(5 * time.Second)
	l.TryAdmit()
	clk.Advance(5 * time.Second)

	l.TryAdmit()
	l.TryAdmit()
	if l.Len() != 2 {
		t.Fatalf("retained = %d, want 2", l.Len())
	}

	clk.Advance(30 * time.Second)
	l.TryAdmit()
	if l.Len() != 1 {
		t.Fatalf("retained after long idle = %d, want 1", l.Len())
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestWindow(t, 1, time.Minute)

	l.TryAdmit()
	if l.TryAdmit() {
		t.Fatal("should be rejected before reset")
	}

	l.Reset()
	if l.Len() != 0 {
		t.Fatalf("retained after reset = %d", l.Len())
	}
	if !l.TryAdmit() {
		t.Fatal("should be admitted after reset")
	}
}

func TestTryAdmit_ClockGoingBackwards(t *testing.T) {
	l, clk := newTestWindow(t, 2, 10*time.Second)

	clk.Advance(time.Minute)
	l.TryAdmit()
	clk.Advance(-30 * time.Second)

	if !l.TryAdmit() {
		t.Fatal("second admission should fit")
	}
	if l.TryAdmit() {
		t.Fatal("future timestamps must still count against the limit")
	}
}

type countingObserver struct {
	admitted, rejected atomic.Int64
}

func (o *countingObserver) Admitted() { o.admitted.Add(1) }
func (o *countingObserver) Rejected() { o.rejected.Add(1) }

func TestTryAdmit_Observer(t *testing.T) {
	obs := &countingObserver{}
	l, _ := newTestWindow(t, 2, time.Minute, WithObserver(obs))

	for i := 0; i < 5; i++ {
		l.TryAdmit()
	}

	if obs.admitted.Load() != 2 || obs.rejected.Load() != 3 {
		t.Fatalf("admitted=%d rejected=%d, want 2 and 3", obs.admitted.Load(), obs.rejected.Load())
	}
}

func TestTryAdmit_LogsFirstRejectionOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l, clk := newTestWindow(t, 1, time.Second, WithLogger(logger))

	l.TryAdmit()
	l.TryAdmit()
	l.TryAdmit()
	if n := strings.Count(buf.String(), "window limiter rejecting"); n != 1 {
		t.Fatalf("logged %d times, want 1\n%s", n, buf.String())
	}

	// an admission re-arms the log
	clk.Advance(time.Second)
	l.TryAdmit()
	l.TryAdmit()
	if n := strings.Count(buf.String(), "window limiter rejecting"); n != 2 {
		t.Fatalf("logged %d times, want 2\n%s", n, buf.String())
	}
	if !strings.Contains(buf.String(), "max_requests=1") {
		t.Errorf("expected max_requests attribute in log:\n%s", buf.String())
	}
}

func TestTryAdmit_Concurrent(t *testing.T) {
	const max = 50
	l, _ := newTestWindow(t, max, time.Hour)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAdmit() {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != max {
		t.Fatalf("admitted %d concurrent requests, want exactly %d", got, max)
	}
}

func TestTryAdmit_RealClock(t *testing.T) {
	l, err := NewWindowLimiter(2, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !l.TryAdmit() || !l.TryAdmit() {
		t.Fatal("first two should be admitted")
	}
	if l.TryAdmit() {
		t.Fatal("third should be rejected")
	}
}
