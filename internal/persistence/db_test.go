package persistence

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gempireio/conquest/internal/engine"
	"github.com/gempireio/conquest/internal/entropy"
	"github.com/gempireio/conquest/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "gempire.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func playedSession(t *testing.T) *engine.Simulation {
	t.Helper()
	m := world.Generate(world.SmallTestConfig())
	sim := engine.NewSimulation(m, engine.DefaultRules(), entropy.NewSeeded(11))
	if err := sim.SeedPlayers(3, 1); err != nil {
		t.Fatalf("SeedPlayers: %v", err)
	}
	p := sim.Player(1)
	turn := sim.StartTurn(1)
	target := -1
	for _, n := range m.NeighborsOf(p.StartTile) {
		if sim.Owner(n) == 0 {
			target = n
			break
		}
	}
	if target < 0 {
		// Every neighbor is garrisoned already.
		target = m.NeighborsOf(p.StartTile)[0]
	}
	if g := turn.MoveUnits(p.StartTile, target, 10, 2); g == nil {
		t.Fatal("move created no group")
	}
	turn.End()
	sim.CompleteRound()
	return sim
}

func TestLoadEmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LoadSimulation(engine.DefaultRules(), entropy.NewSeeded(1))
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	sim := playedSession(t)
	if err := db.SaveSimulation(sim); err != nil {
		t.Fatalf("SaveSimulation: %v", err)
	}

	got, err := db.LoadSimulation(engine.Rules{}, entropy.NewSeeded(2))
	if err != nil {
		t.Fatalf("LoadSimulation: %v", err)
	}
	if got.ID != sim.ID || got.Round != sim.Round || got.Turns != sim.Turns {
		t.Fatalf("session header mismatch: %v/%d/%d vs %v/%d/%d",
			got.ID, got.Round, got.Turns, sim.ID, sim.Round, sim.Turns)
	}
	if got.Rules != sim.Rules {
		t.Fatalf("rules not restored: %+v", got.Rules)
	}
	if !slices.Equal(got.Map.Elevations, sim.Map.Elevations) || !slices.Equal(got.Map.Names, sim.Map.Names) {
		t.Fatal("terrain not restored")
	}
	if got.Map.Seed != sim.Map.Seed {
		t.Fatalf("seed %d, want %d", got.Map.Seed, sim.Map.Seed)
	}
	if !slices.Equal(got.Owners(), sim.Owners()) {
		t.Fatal("ownership not restored")
	}
	if err := got.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	if len(got.Players) != len(sim.Players) {
		t.Fatalf("%d players, want %d", len(got.Players), len(sim.Players))
	}
	for i, want := range sim.Players {
		p := got.Players[i]
		if p.Summary() != want.Summary() {
			t.Fatalf("player %d summary\n got %+v\nwant %+v", want.ID, p.Summary(), want.Summary())
		}
		if !slices.Equal(p.FogOfWar, want.FogOfWar) || !slices.Equal(p.Influence, want.Influence) {
			t.Fatalf("player %d visibility not restored", want.ID)
		}
		if p.TurnProgress() != want.TurnProgress() {
			t.Fatalf("player %d progress %v, want %v", want.ID, p.TurnProgress(), want.TurnProgress())
		}
	}

	wantGroups, gotGroups := sim.Player(1).Groups(), got.Player(1).Groups()
	if len(gotGroups) != len(wantGroups) {
		t.Fatalf("%d groups, want %d", len(gotGroups), len(wantGroups))
	}
	for i := range wantGroups {
		if gotGroups[i].ID != wantGroups[i].ID || gotGroups[i].Progress() != wantGroups[i].Progress() {
			t.Fatalf("group %d mismatch: %+v vs %+v", i, *gotGroups[i], *wantGroups[i])
		}
	}
	if len(got.Events) != len(sim.Events) || got.Events[0].Description != sim.Events[0].Description {
		t.Fatalf("events not restored: %d vs %d", len(got.Events), len(sim.Events))
	}
}

func TestSaveReplacesPreviousSnapshot(t *testing.T) {
	db := openTestDB(t)
	sim := playedSession(t)
	if err := db.SaveSimulation(sim); err != nil {
		t.Fatal(err)
	}
	turn := sim.StartTurn(2)
	turn.End()
	if err := db.SaveSimulation(sim); err != nil {
		t.Fatal(err)
	}
	got, err := db.LoadSimulation(engine.DefaultRules(), entropy.NewSeeded(3))
	if err != nil {
		t.Fatal(err)
	}
	if got.Turns != sim.Turns || len(got.Players) != len(sim.Players) {
		t.Fatalf("stale snapshot: turns %d players %d", got.Turns, len(got.Players))
	}
	recent, err := db.RecentEvents(1)
	if err != nil || len(recent) != 1 {
		t.Fatalf("RecentEvents: %v %v", recent, err)
	}
	if recent[0].Description != sim.Events[len(sim.Events)-1].Description {
		t.Fatalf("newest stored event %q", recent[0].Description)
	}
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	if v, err := db.GetMeta("missing"); err != nil || v != "" {
		t.Fatalf("GetMeta(missing) = %q, %v", v, err)
	}
	if err := db.SaveMeta("entropy_source", "random.org"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetMeta("entropy_source"); v != "random.org" {
		t.Fatalf("GetMeta = %q", v)
	}
	if err := db.SaveSimulation(playedSession(t)); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetMeta("entropy_source"); v != "random.org" {
		t.Fatalf("snapshot dropped unrelated meta, got %q", v)
	}
}
