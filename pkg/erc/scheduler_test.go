package erc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/connectivity"
)

func TestSchedulerRunsAndReports(t *testing.T) {
	b := newBench(t, 1)
	r, err := NewRunner(Builtins(), RunnerConfig{})
	require.NoError(t, err)

	done := make(chan Report, 1)
	s := NewScheduler(context.Background(), r, func(rep Report) { done <- rep })
	assert.Equal(t, StateIdle, s.State())
	_, err = s.Wait(context.Background())
	assert.Error(t, err, "nothing scheduled yet")

	snap := b.snapshot()
	s.Request(snap)
	rep := <-done
	require.NoError(t, rep.Err)
	assert.Equal(t, snap.Token, rep.Token)
	assert.Len(t, rep.Violations, 2)

	last, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rep.Token, last.Token)
	assert.Equal(t, StateDone, s.State())
}

func TestSchedulerCoalescesRequests(t *testing.T) {
	b := newBench(t, 1)
	e, err := connectivity.NewEngine(connectivity.DefaultConfig(), nil)
	require.NoError(t, err)
	e.Load(b.model)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	reg := Builtins()
	reg.MustRegister(Check{
		Descriptor: Descriptor{Key: "test.blocks"},
		Scope:      ScopeNet,
		Net: func(*NetSubject) []Finding {
			once.Do(func() {
				close(started)
				<-release
			})
			return nil
		},
	})
	r, err := NewRunner(reg, RunnerConfig{})
	require.NoError(t, err)

	var mu sync.Mutex
	var tokens []connectivity.Token
	s := NewScheduler(context.Background(), r, func(rep Report) {
		mu.Lock()
		tokens = append(tokens, rep.Token)
		mu.Unlock()
	})

	first := e.Snapshot()
	s.Request(first)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}
	assert.Equal(t, StateRunning, s.State())

	var latest *connectivity.Snapshot
	for i := 0; i < 3; i++ {
		e.Load(b.model)
		latest = e.Snapshot()
		s.Request(latest)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, latest.Token, rep.Token)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []connectivity.Token{first.Token, latest.Token}, tokens, "pending requests collapse into one run")
}
