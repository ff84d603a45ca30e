package cluster_test

import (
	"context"
	"testing"
	"time"

	"github.com/trbojevicstefan/taskwise/cluster"
)

func TestLocalGate_OncePerInterval(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g := cluster.NewLocalGate(time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	steps := []struct {
		advance time.Duration
		want    bool
	}{
		{0, true},
		{0, false},
		{59 * time.Second, false},
		{time.Second, true},
		{30 * time.Second, false},
	}
	for i, step := range steps {
		now = now.Add(step.advance)
		got, err := g.Allow(ctx)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got != step.want {
			t.Errorf("step %d: Allow = %v, want %v", i, got, step.want)
		}
	}
}

func TestLocalGate_ZeroIntervalAlwaysAllows(t *testing.T) {
	g := cluster.NewLocalGate(0)
	for i := range 3 {
		if ok, _ := g.Allow(context.Background()); !ok {
			t.Fatalf("call %d: expected allow", i)
		}
	}
}
