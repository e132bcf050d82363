package engine

import (
	"fmt"
	"slices"
	"testing"

	"github.com/gempireio/conquest/internal/entropy"
	"github.com/gempireio/conquest/internal/world"
)

// flatMap returns an all-grassland map with no ocean.
func flatMap(layers int) *world.Map {
	m := world.NewMap(layers, 35)
	for i := range m.Elevations {
		m.Elevations[i] = 120
		m.LandCover[i] = world.CoverGrassland
	}
	return m
}

func newTestSim(t *testing.T, layers, players int) *Simulation {
	t.Helper()
	sim := NewSimulation(flatMap(layers), DefaultRules(), entropy.NewSeeded(1))
	for i := 0; i < players; i++ {
		sim.AddPlayer(fmt.Sprintf("P%d", i+1), "", i == 0)
	}
	return sim
}

func mustAdd(t *testing.T, sim *Simulation, id PlayerID, tile, civs, soldiers int) {
	t.Helper()
	if err := sim.AddUnits(id, tile, civs, soldiers); err != nil {
		t.Fatalf("AddUnits: %v", err)
	}
}

func TestCaptureAndFog(t *testing.T) {
	sim := newTestSim(t, 4, 1)
	p := sim.Player(1)
	for id, f := range p.FogOfWar {
		if f != 255 {
			t.Fatalf("fresh fog[%d] = %d, want 255", id, f)
		}
	}

	turn := sim.StartTurn(1)
	if !turn.CaptureTile(5) {
		t.Fatal("capture of a free tile failed")
	}
	if p.FogOfWar[5] != 0 {
		t.Fatalf("fog[5] = %d after capture", p.FogOfWar[5])
	}
	if got := p.OwnedTiles(); !slices.Equal(got, []int{5}) {
		t.Fatalf("owned = %v, want [5]", got)
	}
	if sim.Owner(5) != 1 || sim.OwnerOf(5) != p {
		t.Fatalf("owner of 5 is %d", sim.Owner(5))
	}
	if sim.Owner(6) != 0 || sim.OwnerOf(6) != nil {
		t.Fatal("unowned tile reported an owner")
	}
	if p.Influence[5] != 2 {
		t.Fatalf("influence of a single civ = %d, want 2", p.Influence[5])
	}
	turn.End()
}

func TestCaptureRefusesEnemyTile(t *testing.T) {
	sim := newTestSim(t, 3, 2)
	mustAdd(t, sim, 2, 4, 5, 0)
	turn := sim.StartTurn(1)
	if turn.CaptureTile(4) {
		t.Fatal("captured a tile held by another player")
	}
	if sim.Owner(4) != 2 {
		t.Fatalf("owner of 4 changed to %d", sim.Owner(4))
	}
	turn.End()
}

func TestAttackEliminatesAndConverts(t *testing.T) {
	sim := newTestSim(t, 6, 2)
	attacker, defender := sim.Player(1), sim.Player(2)
	mustAdd(t, sim, 1, 1, 0, 100)
	mustAdd(t, sim, 2, 2, 10, 0)

	turn := sim.StartTurn(1)
	// Attacker draws 0.5, 0.5 (losing one soldier); defender draws 0, 0.
	sim.rng = entropy.NewScript(0.5, 0.5, 0, 0)
	res := turn.Attack(1, 2, 0, 100)

	if !res.AttackerWon || res.Mutual {
		t.Fatalf("expected attacker win, got %+v", res)
	}
	if res.AttackerLosses != 1 || res.DefenderLosses != 0 || res.Converted != 10 {
		t.Fatalf("unexpected casualties %+v", res)
	}
	if attacker.Civs[2] != 10 || attacker.Soldiers[2] != 99 {
		t.Fatalf("tile 2 holds %d civs and %d soldiers", attacker.Civs[2], attacker.Soldiers[2])
	}
	if sim.Owner(2) != 1 || defender.OwnedCount() != 0 || defender.Civs[2] != 0 {
		t.Fatalf("tile 2 not transferred: owner %d, defender owns %d", sim.Owner(2), defender.OwnedCount())
	}
	if attacker.Soldiers[1] != 0 {
		t.Fatalf("%d soldiers left behind", attacker.Soldiers[1])
	}
	if err := sim.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	turn.End()
}

func TestAttackRepelled(t *testing.T) {
	sim := newTestSim(t, 4, 2)
	mustAdd(t, sim, 1, 1, 0, 5)
	mustAdd(t, sim, 2, 2, 0, 50)

	turn := sim.StartTurn(1)
	sim.rng = entropy.NewScript(0)
	res := turn.Attack(1, 2, 0, 5)
	if res.AttackerWon {
		t.Fatalf("five soldiers took a tile held by fifty: %+v", res)
	}
	if sim.Player(1).Soldiers[1] != 5 {
		t.Fatalf("survivors did not return: %d", sim.Player(1).Soldiers[1])
	}
	if sim.Owner(2) != 2 || sim.Player(2).Soldiers[2] != 50 {
		t.Fatal("defender lost units on a zero roll")
	}
	turn.End()
}

func TestMutualDestructionKeepsTileFromAttacker(t *testing.T) {
	sim := newTestSim(t, 4, 2)
	mustAdd(t, sim, 1, 1, 0, 10)
	mustAdd(t, sim, 2, 2, 0, 10)

	turn := sim.StartTurn(1)
	sim.rng = entropy.NewScript(0.99)
	res := turn.Attack(1, 2, 0, 10)
	if !res.Mutual || res.AttackerWon {
		t.Fatalf("expected mutual destruction, got %+v", res)
	}
	if sim.Owner(2) == 1 {
		t.Fatal("attacker took the tile on mutual destruction")
	}
	if sim.Player(2).Soldiers[2] != 0 || sim.Player(1).Soldiers[2] != 0 {
		t.Fatal("units survived mutual destruction")
	}
	if err := sim.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	turn.End()
}

func TestAttackOwnTileReinforces(t *testing.T) {
	sim := newTestSim(t, 3, 1)
	p := sim.Player(1)
	mustAdd(t, sim, 1, 0, 10, 10)
	mustAdd(t, sim, 1, 1, 1, 0)

	turn := sim.StartTurn(1)
	before := int(p.Soldiers[0]) + int(p.Soldiers[1])
	res := turn.Attack(0, 1, 0, 4)
	if !res.AttackerWon || res.AttackerLosses != 0 {
		t.Fatalf("reinforcement reported %+v", res)
	}
	if p.Soldiers[1] != 4 || int(p.Soldiers[0])+int(p.Soldiers[1]) != before {
		t.Fatalf("reinforcement moved %d soldiers", p.Soldiers[1])
	}
	turn.End()
}

func TestMoveConservesUnits(t *testing.T) {
	sim := newTestSim(t, 6, 1)
	p := sim.Player(1)
	mustAdd(t, sim, 1, 0, 50, 20)

	turn := sim.StartTurn(1)
	civs := int(p.Civs[0]) + int(p.Civs[1])
	soldiers := int(p.Soldiers[0]) + int(p.Soldiers[1])

	g := turn.MoveUnits(0, 1, 20, 500)
	if g == nil || g.Civs != 20 || g.Soldiers != 20 || g.TotalTurns != 1 {
		t.Fatalf("unexpected group %+v", g)
	}
	if p.Soldiers[0] != 0 {
		t.Fatalf("soldiers not debited: %d", p.Soldiers[0])
	}
	if g.Progress() >= 1 || g.CurrentTile() != 0 {
		t.Fatal("group arrived before the turn ended")
	}
	turn.End()
	if g.CurrentTile() != 1 {
		t.Fatal("group past halfway should report its destination")
	}

	sim.resolveGroups(p)
	if len(p.Groups()) != 0 {
		t.Fatal("group still active after resolving")
	}
	if got := int(p.Civs[0]) + int(p.Civs[1]); got != civs {
		t.Fatalf("civs %d -> %d", civs, got)
	}
	if got := int(p.Soldiers[0]) + int(p.Soldiers[1]); got != soldiers {
		t.Fatalf("soldiers %d -> %d", soldiers, got)
	}
	if !p.Owns(1) {
		t.Fatal("destination not owned after landing")
	}
}

func TestMoveNothingCreatesNoGroup(t *testing.T) {
	sim := newTestSim(t, 3, 1)
	mustAdd(t, sim, 1, 0, 5, 0)
	turn := sim.StartTurn(1)
	if g := turn.MoveUnits(1, 2, 10, 10); g != nil {
		t.Fatalf("moved units from an empty tile: %+v", g)
	}
	if g := turn.MoveUnits(0, 2, 0, 0); g != nil {
		t.Fatalf("moved zero units: %+v", g)
	}
	turn.End()
}

func TestMultiTurnMove(t *testing.T) {
	sim := newTestSim(t, 6, 1)
	p := sim.Player(1)
	mustAdd(t, sim, 1, 0, 30, 10)
	far, ok := sim.Map.IDOf(world.HexCoord{Q: 3, R: 0})
	if !ok {
		t.Fatal("tile (3, 0) missing")
	}

	turn := sim.StartTurn(1)
	g := turn.MoveUnits(0, far, 10, 5)
	if g.TotalTurns != 3 {
		t.Fatalf("expected 3 turns for distance 3, got %d", g.TotalTurns)
	}
	for i := 1; i <= 3; i++ {
		turn.End()
		turn = sim.StartTurn(1)
		landed := p.Owns(far)
		if landed != (i == 3) {
			t.Fatalf("after %d turns landed=%v", i, landed)
		}
	}
	if p.Soldiers[far] != 5 || p.Civs[far] != 10 {
		t.Fatalf("landed %d civs and %d soldiers", p.Civs[far], p.Soldiers[far])
	}
	turn.End()
}

func TestArrivalOnEnemyTileAttacks(t *testing.T) {
	sim := newTestSim(t, 4, 2)
	mustAdd(t, sim, 1, 0, 0, 100)
	mustAdd(t, sim, 2, 3, 5, 0)

	turn := sim.StartTurn(1)
	turn.MoveUnits(0, 3, 0, 100)
	turn.End()

	sim.rng = entropy.NewScript(0.1, 0.1, 0, 0)
	turn = sim.StartTurn(1)
	if sim.Owner(3) != 1 {
		t.Fatalf("arrival did not take the enemy tile, owner %d", sim.Owner(3))
	}
	if sim.Player(2).Alive() {
		t.Fatal("defender should have nothing left")
	}
	if err := sim.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	turn.End()
}

func TestReproduce(t *testing.T) {
	sim := newTestSim(t, 3, 1)
	p := sim.Player(1)
	mustAdd(t, sim, 1, 0, 100, 0)
	mustAdd(t, sim, 1, 1, 50, 0)

	if born := sim.reproduce(p); born != 2 {
		t.Fatalf("expected 2 births, got %d", born)
	}
	if p.Civs[0] < 101 {
		t.Fatalf("top tile did not get half the births: %d", p.Civs[0])
	}
	if total := int(p.Civs[0]) + int(p.Civs[1]); total != 152 {
		t.Fatalf("expected 152 civs, got %d", total)
	}
}

func TestReproduceSaturates(t *testing.T) {
	sim := newTestSim(t, 2, 1)
	p := sim.Player(1)
	mustAdd(t, sim, 1, 0, 65535, 0)
	sim.reproduce(p)
	if p.Civs[0] != 65535 {
		t.Fatalf("civs wrapped to %d", p.Civs[0])
	}
}

func TestDarkenFogOfWar(t *testing.T) {
	sim := newTestSim(t, 3, 1)
	p := sim.Player(1)
	mustAdd(t, sim, 1, 0, 1, 0)
	for i := range p.FogOfWar {
		p.FogOfWar[i] = 100
	}
	p.FogOfWar[10] = 250

	sim.DarkenFogOfWarEverywhere(p, 12)
	if p.FogOfWar[0] != 0 {
		t.Fatalf("influenced tile fog = %d", p.FogOfWar[0])
	}
	for _, n := range sim.Map.NeighborsOf(0) {
		if p.FogOfWar[n] != 56 {
			t.Fatalf("neighbor %d fog = %d, want 56", n, p.FogOfWar[n])
		}
	}
	if p.FogOfWar[10] != 255 {
		t.Fatalf("fog did not saturate: %d", p.FogOfWar[10])
	}
	if p.FogOfWar[15] != 112 {
		t.Fatalf("far tile fog = %d, want 112", p.FogOfWar[15])
	}
}

func TestDarkenFogHalvesSharedNeighborOnce(t *testing.T) {
	sim := newTestSim(t, 3, 1)
	p := sim.Player(1)
	mustAdd(t, sim, 1, 0, 1, 0)
	mustAdd(t, sim, 1, 1, 1, 0)
	for i := range p.FogOfWar {
		p.FogOfWar[i] = 100
	}

	sim.DarkenFogOfWarEverywhere(p, 12)
	var shared []int
	for _, n := range sim.Map.NeighborsOf(0) {
		if n != 1 && sim.Map.IsNeighbor(1, n) {
			shared = append(shared, n)
		}
	}
	if len(shared) == 0 {
		t.Fatal("tiles 0 and 1 share no neighbors")
	}
	for _, n := range shared {
		if p.FogOfWar[n] != 56 {
			t.Fatalf("tile %d next to two influenced tiles has fog %d, want 56", n, p.FogOfWar[n])
		}
	}
	if p.FogOfWar[0] != 0 || p.FogOfWar[1] != 0 {
		t.Fatalf("influenced fog = %d, %d", p.FogOfWar[0], p.FogOfWar[1])
	}
}

func TestRevealedBoundsAndDisplay(t *testing.T) {
	sim := newTestSim(t, 5, 2)
	viewer := sim.Player(1)
	if _, _, ok := sim.RevealedBounds(viewer); ok {
		t.Fatal("fresh player should see nothing")
	}
	mustAdd(t, sim, 2, 30, 3, 0)
	mustAdd(t, sim, 1, 0, 3, 0)

	lo, hi, ok := sim.RevealedBounds(viewer)
	if !ok || lo.X > 0 || hi.X < 0 {
		t.Fatalf("bounds %v %v do not contain the viewer's tile", lo, hi)
	}
	display := sim.TileDisplay(viewer)
	if display[0] != 1 {
		t.Fatalf("viewer cannot see its own tile: %d", display[0])
	}
	if viewer.FogOfWar[30] >= RevealThreshold && display[30] != 0 {
		t.Fatal("fogged enemy tile leaked through the display")
	}
	if all := sim.TileDisplay(nil); all[30] != 2 {
		t.Fatalf("unfiltered display shows %d on tile 30", all[30])
	}
}

func TestTurnMisusePanics(t *testing.T) {
	sim := newTestSim(t, 2, 2)
	turn := sim.StartTurn(1)

	expectPanic(t, "second open turn", func() { sim.StartTurn(2) })
	turn.End()
	expectPanic(t, "move after end", func() { turn.MoveUnits(0, 1, 1, 1) })
	expectPanic(t, "end twice", func() { turn.End() })
	expectPanic(t, "invalid tile", func() { sim.StartTurn(1).CaptureTile(99) })
}

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestSelection(t *testing.T) {
	sim := newTestSim(t, 4, 2)
	p := sim.Player(1)
	mustAdd(t, sim, 1, 0, 40, 10)
	mustAdd(t, sim, 2, 6, 1, 0)

	turn := sim.StartTurn(1)
	civs := int(p.Civs[0])

	if a := turn.Select(0, true); a != ActionSelect {
		t.Fatalf("first select: %s", a)
	}
	if a := turn.Select(3, true); a != ActionMove {
		t.Fatalf("select neighbor: %s", a)
	}
	groups := p.Groups()
	if len(groups) != 1 || groups[0].Civs != civs/2 || groups[0].Soldiers != 10 {
		t.Fatalf("unexpected groups %+v", groups)
	}
	if a := turn.Select(3, true); a != ActionDeselect || sim.Selected() != -1 {
		t.Fatalf("toggle: %s, selected %d", a, sim.Selected())
	}

	// From the center toward an enemy neighbor: immediate attack.
	turn.Select(0, false)
	if a := turn.Select(6, false); a != ActionAttack {
		t.Fatalf("select enemy neighbor: %s", a)
	}

	tile, a := turn.SelectAt(sim.Layout.CenterOf(12), false)
	if tile != 12 || a != ActionSelect {
		t.Fatalf("SelectAt picked %d (%s)", tile, a)
	}
	turn.Deselect()
	if sim.Selected() != -1 {
		t.Fatal("deselect kept a selection")
	}
	turn.End()
}

func TestOwnershipExclusivityUnderRandomPlay(t *testing.T) {
	sim := newTestSim(t, 5, 3)
	rng := entropy.NewSeeded(99)
	mustAdd(t, sim, 1, 0, 60, 30)
	mustAdd(t, sim, 2, 40, 60, 30)
	mustAdd(t, sim, 3, 80, 60, 30)

	for round := 0; round < 40; round++ {
		for _, p := range sim.Players {
			turn := sim.StartTurn(p.ID)
			for op := 0; op < 5; op++ {
				owned := p.OwnedTiles()
				if len(owned) == 0 {
					break
				}
				from := owned[rng.Intn(len(owned))]
				to := sim.Map.RandomTileWithinRadius(rng, from, 2)
				switch rng.Intn(3) {
				case 0:
					turn.CaptureTile(to)
				case 1:
					turn.MoveUnits(from, to, rng.Intn(40), rng.Intn(20))
				default:
					def := sim.OwnerOf(to)
					var defBefore int
					if def != nil && def != p {
						defBefore = def.Units(to)
					}
					atkBefore := p.Units(from)
					res := turn.Attack(from, to, rng.Intn(40), rng.Intn(40))
					if res.AttackerLosses > res.AttackerCivs+res.AttackerSold {
						t.Fatalf("attacker lost more than it sent: %+v", res)
					}
					if def != nil && def != p && res.DefenderLosses > defBefore {
						t.Fatalf("defender lost %d of %d", res.DefenderLosses, defBefore)
					}
					if p.Units(from) > atkBefore {
						t.Fatalf("attack grew the source tile: %d -> %d", atkBefore, p.Units(from))
					}
				}
				if err := sim.CheckInvariants(); err != nil {
					t.Fatalf("round %d player %d: %v", round, p.ID, err)
				}
			}
			turn.End()
		}
		sim.CompleteRound()
	}
}

func TestOverlays(t *testing.T) {
	sim := newTestSim(t, 3, 2)
	mustAdd(t, sim, 1, 0, 10, 0)
	mustAdd(t, sim, 2, 1, 0, 10)

	for _, name := range []string{"all-influence", "player-influence", "fog-of-war", "ownership", "elevation"} {
		kind, err := ParseOverlayKind(name)
		if err != nil || kind.String() != name {
			t.Fatalf("ParseOverlayKind(%q) = %v, %v", name, kind, err)
		}
	}
	if _, err := ParseOverlayKind("weather"); err == nil {
		t.Fatal("expected error for unknown overlay")
	}

	all, err := sim.Overlay(OverlayAllInfluence, 0)
	if err != nil {
		t.Fatal(err)
	}
	if all.Values[0] != 20 || all.Values[1] != 30 {
		t.Fatalf("all-influence = %d, %d", all.Values[0], all.Values[1])
	}
	own, _ := sim.Overlay(OverlayOwnership, 0)
	if own.Values[0] != 1 || own.Values[1] != 2 || own.Values[2] != 0 {
		t.Fatalf("ownership overlay %v", own.Values[:3])
	}
	if _, err := sim.Overlay(OverlayFogOfWar, 9); err == nil {
		t.Fatal("expected error for unknown player")
	}
	fog, err := sim.Overlay(OverlayFogOfWar, 1)
	if err != nil || len(fog.Values) != sim.Map.TileCount() {
		t.Fatalf("fog overlay: %v", err)
	}
}

func TestEventsAreTrimmedAndBroadcast(t *testing.T) {
	sim := newTestSim(t, 2, 1)
	var heard int
	sim.OnEvent(func(Event) { heard++ })
	for i := 0; i < maxEvents+50; i++ {
		sim.emit(1, "test", "event %d", i)
	}
	if len(sim.Events) != maxEvents {
		t.Fatalf("expected %d events kept, got %d", maxEvents, len(sim.Events))
	}
	if heard != maxEvents+50 {
		t.Fatalf("listener heard %d events", heard)
	}
	recent := sim.RecentEvents(2)
	if len(recent) != 2 || recent[1].Description != fmt.Sprintf("event %d", maxEvents+49) {
		t.Fatalf("unexpected recent events %+v", recent)
	}
}

func TestSeedPlayers(t *testing.T) {
	m := world.Generate(world.SmallTestConfig())
	sim := NewSimulation(m, DefaultRules(), entropy.NewSeeded(5))
	if err := sim.SeedPlayers(4, 1); err != nil {
		t.Fatalf("SeedPlayers: %v", err)
	}
	if len(sim.Players) != 4 || !sim.Players[0].Human || sim.Players[1].Human {
		t.Fatalf("unexpected players %+v", sim.Players)
	}
	starts := make(map[int]bool)
	for _, p := range sim.Players {
		if starts[p.StartTile] {
			t.Fatalf("start tile %d shared", p.StartTile)
		}
		starts[p.StartTile] = true
		if m.IsOcean(p.StartTile) || !p.Owns(p.StartTile) {
			t.Fatalf("player %d start %d not owned land", p.ID, p.StartTile)
		}
		if p.OwnedCount() > sim.Rules.StartTiles {
			t.Fatalf("player %d owns %d tiles", p.ID, p.OwnedCount())
		}
		if int(p.Civs[p.StartTile]) != sim.Rules.StartCivs {
			t.Fatalf("player %d start civs %d", p.ID, p.Civs[p.StartTile])
		}
	}
	if err := sim.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestRebuildOwnership(t *testing.T) {
	sim := newTestSim(t, 3, 2)
	sim.Player(1).Civs[4] = 3
	sim.Player(2).Soldiers[7] = 2
	if err := sim.RebuildOwnership(); err != nil {
		t.Fatal(err)
	}
	if sim.Owner(4) != 1 || sim.Owner(7) != 2 || sim.Player(2).Influence[7] != 6 {
		t.Fatal("ownership not derived from unit arrays")
	}
	sim.Player(2).Civs[4] = 1
	if err := sim.RebuildOwnership(); err == nil {
		t.Fatal("expected conflict error for a shared tile")
	}
}
