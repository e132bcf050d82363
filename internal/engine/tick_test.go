package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gempireio/conquest/internal/entropy"
)

func TestSchedulerStepRoundRobin(t *testing.T) {
	sim := newTestSim(t, 4, 3)
	mustAdd(t, sim, 1, 0, 20, 5)
	mustAdd(t, sim, 2, 20, 20, 5)
	mustAdd(t, sim, 3, 40, 20, 5)

	var mu sync.Mutex
	sched := NewScheduler(sim, &mu, entropy.NewSeeded(2))
	var rounds []int
	sched.OnRound = func(n int) { rounds = append(rounds, n) }
	var order []PlayerID
	sched.OnTurn = func(turn *Turn) { order = append(order, turn.Player().ID) }

	for i := 0; i < 6; i++ {
		sched.Step()
	}
	want := []PlayerID{1, 2, 3, 1, 2, 3}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("turn %d went to player %d, want %d", i, order[i], id)
		}
	}
	if len(rounds) != 2 || rounds[0] != 1 || rounds[1] != 2 {
		t.Fatalf("rounds reported %v", rounds)
	}
	if sim.Round != 2 || sim.Turns != 6 {
		t.Fatalf("round %d, turns %d", sim.Round, sim.Turns)
	}
	if sim.ActiveTurn() != nil {
		t.Fatal("turn left open after Step")
	}
	if err := sim.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestSchedulerDurations(t *testing.T) {
	sim := newTestSim(t, 2, 2)
	mustAdd(t, sim, 1, 0, 1, 0)
	mustAdd(t, sim, 2, 1, 1, 0)
	var mu sync.Mutex
	sched := NewScheduler(sim, &mu, entropy.NewSeeded(3))
	sched.Human = 7 * time.Second
	sched.AIMin, sched.AIMax = time.Second, 2*time.Second

	if d := sched.duration(sim.Player(1)); d != 7*time.Second {
		t.Fatalf("human turn lasts %v", d)
	}
	for i := 0; i < 20; i++ {
		if d := sched.duration(sim.Player(2)); d < time.Second || d > 2*time.Second {
			t.Fatalf("computer turn lasts %v", d)
		}
	}
	sim.AddPlayer("ghost", "", false)
	if d := sched.duration(sim.Player(3)); d != 0 {
		t.Fatalf("eliminated player gets %v", d)
	}
}

func TestSchedulerRunUntilCancelled(t *testing.T) {
	sim := newTestSim(t, 4, 2)
	sim.Players[0].Human = false
	mustAdd(t, sim, 1, 0, 20, 5)
	mustAdd(t, sim, 2, 30, 20, 5)

	var mu sync.Mutex
	sched := NewScheduler(sim, &mu, entropy.NewSeeded(4))
	sched.AIMin, sched.AIMax = time.Millisecond, 2*time.Millisecond
	sched.Interval = time.Millisecond

	rounds := make(chan int, 1000)
	sched.OnRound = func(n int) { rounds <- n }

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := sched.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if len(rounds) == 0 {
		t.Fatal("no rounds completed")
	}

	mu.Lock()
	defer mu.Unlock()
	if sim.ActiveTurn() != nil {
		t.Fatal("turn left open after Run returned")
	}
	if err := sim.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestSchedulerAdvanceEndsHumanTurn(t *testing.T) {
	sim := newTestSim(t, 3, 1)
	mustAdd(t, sim, 1, 0, 5, 0)

	var mu sync.Mutex
	sched := NewScheduler(sim, &mu, entropy.NewSeeded(5))
	sched.Human = time.Hour
	sched.Interval = time.Millisecond
	started := make(chan int, 10)
	sched.OnTurn = func(turn *Turn) { started <- turn.Number() }
	rounds := make(chan int, 10)
	sched.OnRound = func(n int) { rounds <- n }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	sched.Advance(<-started)
	select {
	case n := <-rounds:
		if n != 1 {
			t.Fatalf("first round reported as %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Advance did not end the turn")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestSchedulerIgnoresStaleAdvance(t *testing.T) {
	sim := newTestSim(t, 4, 2)
	sim.Players[1].Human = true
	mustAdd(t, sim, 1, 0, 5, 0)
	mustAdd(t, sim, 2, 30, 5, 0)

	var mu sync.Mutex
	sched := NewScheduler(sim, &mu, entropy.NewSeeded(6))
	sched.Human = time.Hour
	sched.Interval = time.Millisecond
	started := make(chan int, 10)
	sched.OnTurn = func(turn *Turn) { started <- turn.Number() }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	first := <-started
	sched.Advance(first)
	second := <-started

	// A late end-turn request for the first player's turn.
	sched.Advance(first)
	select {
	case n := <-started:
		t.Fatalf("stale request ended turn %d, turn %d started", second, n)
	case <-time.After(100 * time.Millisecond):
	}

	sched.Advance(second)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Advance did not end the second turn")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestSchedulerStopsWhenNoPlayerIsAlive(t *testing.T) {
	sim := newTestSim(t, 3, 2)

	var mu sync.Mutex
	sched := NewScheduler(sim, &mu, entropy.NewSeeded(7))
	sched.Interval = time.Millisecond
	rounds := 0
	sched.OnRound = func(int) { rounds++ }

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sched.Run(ctx); !errors.Is(err, ErrNoPlayersAlive) {
		t.Fatalf("expected ErrNoPlayersAlive, got %v", err)
	}
	if rounds != 0 || sim.Turns != 0 {
		t.Fatalf("played %d rounds and %d turns with nobody alive", rounds, sim.Turns)
	}
	if sim.ActiveTurn() != nil {
		t.Fatal("turn left open")
	}
}
