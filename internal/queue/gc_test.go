package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockDLQPurger struct {
	purgeFunc func(ctx context.Context, retention time.Duration) (int, error)
}

func (m *mockDLQPurger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	if m.purgeFunc != nil {
		return m.purgeFunc(ctx, retention)
	}
	return 0, nil
}

func TestGarbageCollector_Collect(t *testing.T) {
	t.Parallel()

	fixedNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		purger        DLQPurger
		wantCount     int
		wantErr       bool
		wantPurged    float64
		wantFailures  float64
		wantLastStamp float64
		wantLogged    bool
	}{
		{name: "no purger", purger: nil},
		{
			name:          "nothing to purge",
			purger:        &mockDLQPurger{purgeFunc: func(context.Context, time.Duration) (int, error) { return 0, nil }},
			wantLastStamp: float64(fixedNow.Unix()),
		},
		{
			name:          "purged jobs",
			purger:        &mockDLQPurger{purgeFunc: func(context.Context, time.Duration) (int, error) { return 5, nil }},
			wantCount:     5,
			wantPurged:    5,
			wantLastStamp: float64(fixedNow.Unix()),
			wantLogged:    true,
		},
		{
			name:         "partial purge then broker error",
			purger:       &mockDLQPurger{purgeFunc: func(context.Context, time.Duration) (int, error) { return 2, errors.New("channel closed") }},
			wantCount:    2,
			wantErr:      true,
			wantPurged:   2,
			wantFailures: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			metrics := NewGCMetrics(prometheus.NewRegistry())
			gc := NewGarbageCollector(tt.purger, time.Minute, time.Hour, metrics, zap.New(core))
			gc.now = func() time.Time { return fixedNow }

			n, err := gc.collect(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("collect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if n != tt.wantCount {
				t.Errorf("collect() = %d, want %d", n, tt.wantCount)
			}
			if got := testutil.ToFloat64(metrics.Purged); got != tt.wantPurged {
				t.Errorf("purged counter = %v, want %v", got, tt.wantPurged)
			}
			if got := testutil.ToFloat64(metrics.Failures); got != tt.wantFailures {
				t.Errorf("failure counter = %v, want %v", got, tt.wantFailures)
			}
			if got := testutil.ToFloat64(metrics.LastSuccess); got != tt.wantLastStamp {
				t.Errorf("last success = %v, want %v", got, tt.wantLastStamp)
			}

			entries := logs.FilterMessage("dlq_gc_purged").All()
			if tt.wantLogged != (len(entries) == 1) {
				t.Fatalf("dlq_gc_purged entries = %d, want logged %v", len(entries), tt.wantLogged)
			}
			if tt.wantLogged {
				if got := entries[0].ContextMap()["count"]; got != int64(tt.wantCount) {
					t.Errorf("count = %v, want %d", got, tt.wantCount)
				}
			}
		})
	}
}

func TestGarbageCollector_Collect_PassesRetention(t *testing.T) {
	t.Parallel()

	var got time.Duration
	purger := &mockDLQPurger{purgeFunc: func(ctx context.Context, retention time.Duration) (int, error) {
		got = retention
		if _, ok := ctx.Deadline(); !ok {
			t.Error("purge must run with a deadline")
		}
		return 0, nil
	}}
	gc := NewGarbageCollector(purger, time.Minute, 7*24*time.Hour, nil, nil)
	if _, err := gc.collect(context.Background()); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got != 7*24*time.Hour {
		t.Errorf("retention = %v, want 168h", got)
	}
}

func TestGarbageCollector_Start_PurgesBeforeFirstTick(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	purger := &mockDLQPurger{purgeFunc: func(context.Context, time.Duration) (int, error) {
		calls++
		cancel()
		return 1, nil
	}}
	gc := NewGarbageCollector(purger, 24*time.Hour, time.Hour, nil, nil)

	err := gc.Start(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("purge calls = %d, want 1", calls)
	}
}

func TestGarbageCollector_Start_SilentOnShutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	core, logs := observer.New(zap.WarnLevel)
	purger := &mockDLQPurger{purgeFunc: func(ctx context.Context, _ time.Duration) (int, error) {
		cancel()
		return 0, ctx.Err()
	}}
	gc := NewGarbageCollector(purger, 24*time.Hour, time.Hour, nil, zap.New(core))

	if err := gc.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() error = %v, want context.Canceled", err)
	}
	if logs.FilterMessage("dlq_gc_failed").Len() != 0 {
		t.Error("cancellation must not be reported as a purge failure")
	}
}
