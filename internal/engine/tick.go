package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gempireio/conquest/internal/entropy"
)

// ErrNoPlayersAlive is returned by Run once every player has been eliminated.
var ErrNoPlayersAlive = errors.New("no players alive")

// Scheduler drives turns round-robin over the players. Human players get a
// fixed wall-clock budget, computer players a random one between AIMin and
// AIMax. Every mutation it performs holds Mu, which callers sharing the
// simulation (the HTTP API) must also take.
type Scheduler struct {
	Sim      *Simulation
	Mu       *sync.Mutex
	Human    time.Duration // Turn length for human players
	AIMin    time.Duration // Shortest computer turn
	AIMax    time.Duration // Longest computer turn
	Interval time.Duration // How often turn progress is refreshed

	// Callbacks, populated during setup. OnRound runs without Mu held.
	OnTurn  func(t *Turn)
	OnRound func(round int)

	current int
	rng     entropy.Source
	advance chan int
}

// NewScheduler creates a scheduler over sim guarded by mu.
func NewScheduler(sim *Simulation, mu *sync.Mutex, rng entropy.Source) *Scheduler {
	return &Scheduler{
		Sim:      sim,
		Mu:       mu,
		Human:    30 * time.Second,
		AIMin:    500 * time.Millisecond,
		AIMax:    2 * time.Second,
		Interval: 100 * time.Millisecond,
		rng:      rng,
		advance:  make(chan int, 1),
	}
}

// Current returns the id of the player whose turn it is or is next.
func (s *Scheduler) Current() PlayerID {
	return PlayerID(s.current + 1)
}

// Advance ends turn number turn early. A request for a turn that is no
// longer open is ignored, so callers should read the number under Mu.
func (s *Scheduler) Advance(turn int) {
	select {
	case s.advance <- turn:
	default:
	}
}

// duration returns the wall-clock budget for p's turn.
func (s *Scheduler) duration(p *Player) time.Duration {
	switch {
	case !p.Alive():
		return 0
	case p.Human:
		return s.Human
	case s.AIMax <= s.AIMin:
		return s.AIMin
	default:
		span := float64(s.AIMax - s.AIMin)
		return s.AIMin + time.Duration(s.rng.Float64()*span)
	}
}

// begin opens the current player's turn. Mu must be held.
func (s *Scheduler) begin() *Turn {
	p := s.Sim.Players[s.current]
	t := s.Sim.StartTurn(p.ID)
	if !p.Human && p.Alive() {
		PlayAI(t)
	}
	if s.OnTurn != nil {
		s.OnTurn(t)
	}
	return t
}

// finish ends t and moves to the next player. Mu must be held. Reports
// whether a round was completed.
func (s *Scheduler) finish(t *Turn) bool {
	t.End()
	s.current = (s.current + 1) % len(s.Sim.Players)
	if s.current == 0 {
		s.Sim.CompleteRound()
		return true
	}
	return false
}

// Step plays one whole turn without waiting on the clock.
func (s *Scheduler) Step() {
	s.Mu.Lock()
	t := s.begin()
	round := s.finish(t)
	n := s.Sim.Round
	s.Mu.Unlock()
	if round && s.OnRound != nil {
		s.OnRound(n)
	}
}

// Run plays turns until ctx is cancelled or no player is left alive, in
// which case it returns ErrNoPlayersAlive. The open turn is ended before
// returning.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.Sim.Players) == 0 {
		slog.Warn("scheduler has no players")
		<-ctx.Done()
		return ctx.Err()
	}
	slog.Info("scheduler started", "players", len(s.Sim.Players), "round", s.Sim.Round)

	for {
		// Drop an end-turn request that arrived between turns.
		select {
		case <-s.advance:
		default:
		}

		s.Mu.Lock()
		if s.Sim.AlivePlayers() == 0 {
			s.Mu.Unlock()
			slog.Info("game over, no players alive", "round", s.Sim.Round, "turns", s.Sim.Turns)
			return ErrNoPlayersAlive
		}
		t := s.begin()
		budget := s.duration(t.Player())
		s.Mu.Unlock()

		if err := s.wait(ctx, t, budget); err != nil {
			s.Mu.Lock()
			t.End()
			s.Mu.Unlock()
			slog.Info("scheduler stopped", "round", s.Sim.Round, "turns", s.Sim.Turns)
			return err
		}

		s.Mu.Lock()
		round := s.finish(t)
		n := s.Sim.Round
		s.Mu.Unlock()
		if round && s.OnRound != nil {
			s.OnRound(n)
		}
	}
}

// wait blocks until the turn budget runs out, Advance is called or ctx is
// done, refreshing the player's turn progress as it goes.
func (s *Scheduler) wait(ctx context.Context, t *Turn, budget time.Duration) error {
	if budget <= 0 {
		return ctx.Err()
	}
	start := time.Now()
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-s.advance:
			if n == t.Number() {
				return nil
			}
		case <-ticker.C:
			elapsed := time.Since(start)
			if elapsed >= budget {
				return nil
			}
			s.Mu.Lock()
			t.SetProgress(float64(elapsed) / float64(budget))
			s.Mu.Unlock()
		}
	}
}
