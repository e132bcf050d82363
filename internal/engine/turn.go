package engine

import (
	"fmt"

	"github.com/gempireio/conquest/internal/world"
)

// Turn authorizes gameplay mutation for one player between StartTurn and
// End. Using a turn after End, or starting a turn while another is open,
// panics.
type Turn struct {
	sim    *Simulation
	player *Player
	number int
	ended  bool
}

// StartTurn opens a turn for player id: groups that have finished their
// journey land, the population grows and resources are collected.
func (s *Simulation) StartTurn(id PlayerID) *Turn {
	if s.active != nil {
		panic(fmt.Sprintf("engine: turn for player %d started while player %d's turn is open", id, s.active.player.ID))
	}
	p := s.Player(id)
	if p == nil {
		panic(fmt.Sprintf("engine: start turn for unknown player %d", id))
	}
	s.Turns++
	t := &Turn{sim: s, player: p, number: s.Turns}
	s.active = t
	s.selected = -1

	s.resolveGroups(p)
	s.reproduce(p)
	s.collectResources(p)
	p.turnProgress = 0
	return t
}

// Player returns the acting player.
func (t *Turn) Player() *Player { return t.player }

// Number returns the turn's sequence number within the session.
func (t *Turn) Number() int { return t.number }

// Ended reports whether End has been called.
func (t *Turn) Ended() bool { return t.ended }

func (t *Turn) check() {
	if t.ended {
		panic(fmt.Sprintf("engine: turn %d of player %d used after End", t.number, t.player.ID))
	}
}

// SetProgress records how far through the turn's wall-clock budget the
// player is, clamped to [0, 1].
func (t *Turn) SetProgress(f float64) {
	t.check()
	t.player.turnProgress = min(max(f, 0), 1)
}

// End closes the turn: every group advances a step and fog creeps back
// where the player has no influence.
func (t *Turn) End() {
	t.check()
	s, p := t.sim, t.player
	for _, g := range p.groups {
		g.CurrentTurn++
	}
	p.turnProgress = 1
	s.DarkenFogOfWarEverywhere(p, s.Rules.FogDarkening)
	s.selected = -1
	t.ended = true
	s.active = nil
}

// MoveUnits sends up to civs and soldiers from one of the player's tiles
// toward to. Counts are clamped to what is present; nothing is sent when
// both clamp to zero. The group lands after max(1, distance) turns.
// Moving onto a tile the player already holds or onto an empty tile is
// always a move; onto an enemy tile it becomes an attack on arrival.
func (t *Turn) MoveUnits(from, to, civs, soldiers int) *UnitGroup {
	t.check()
	s, p := t.sim, t.player
	s.Map.MustValid(from)
	s.Map.MustValid(to)
	civs = clampUnits(civs, p.Civs[from])
	soldiers = clampUnits(soldiers, p.Soldiers[from])
	if civs == 0 && soldiers == 0 || from == to {
		return nil
	}
	g := s.newGroup(p, from, to, civs, soldiers)
	s.emit(p.ID, "move", "%s sent %d civs and %d soldiers from %s to %s (%d turns)",
		p.Name, civs, soldiers, s.Map.Name(from), s.Map.Name(to), g.TotalTurns)
	return g
}

// Attack commits up to civs and soldiers from one of the player's tiles
// against to and resolves the battle immediately. Attacking one's own tile
// moves the units there at once.
func (t *Turn) Attack(from, to, civs, soldiers int) BattleResult {
	t.check()
	s, p := t.sim, t.player
	s.Map.MustValid(from)
	s.Map.MustValid(to)
	civs = clampUnits(civs, p.Civs[from])
	soldiers = clampUnits(soldiers, p.Soldiers[from])
	res := BattleResult{Attacker: p.ID, To: to, AttackerCivs: civs, AttackerSold: soldiers}
	if civs == 0 && soldiers == 0 || from == to {
		return res
	}

	p.Civs[from] -= uint16(civs)
	p.Soldiers[from] -= uint16(soldiers)
	s.updateOwnership(p, from)

	if s.owner[to] == p.ID {
		s.credit(p, to, civs, soldiers)
		res.Defender = p.ID
		res.AttackerWon = true
		s.emit(p.ID, "move", "%s reinforced %s with %d civs and %d soldiers", p.Name, s.Map.Name(to), civs, soldiers)
		return res
	}

	leftCivs, leftSoldiers, res := s.battle(p, to, civs, soldiers)
	if leftCivs+leftSoldiers > 0 {
		s.credit(p, from, leftCivs, leftSoldiers)
	}
	return res
}

// CaptureTile claims to for the player, placing a single civ there when the
// player has nothing on it yet. It fails on a tile held by another player.
func (t *Turn) CaptureTile(tile int) bool {
	t.check()
	return t.sim.captureTile(t.player, tile)
}

func (s *Simulation) captureTile(p *Player, tile int) bool {
	s.Map.MustValid(tile)
	if owner := s.owner[tile]; owner != 0 && owner != p.ID {
		return false
	}
	if p.Units(tile) == 0 {
		p.Civs[tile] = 1
	}
	s.updateOwnership(p, tile)
	s.revealTile(p, tile)
	s.Stats.Captures++
	s.emit(p.ID, "capture", "%s captured %s", p.Name, s.Map.Name(tile))
	return true
}

// SelectAction is what a selection did.
type SelectAction string

const (
	ActionSelect   SelectAction = "select"
	ActionDeselect SelectAction = "deselect"
	ActionMove     SelectAction = "move"
	ActionAttack   SelectAction = "attack"
)

// Select selects tile. Selecting the selected tile again with toggle
// deselects it. When the previous selection is one of the player's tiles
// and tile is next to it, all its soldiers and half its civs head there:
// a move onto free or friendly ground, an attack onto enemy ground.
func (t *Turn) Select(tile int, toggle bool) SelectAction {
	t.check()
	s, p := t.sim, t.player
	s.Map.MustValid(tile)
	prev := s.selected
	if prev == tile {
		if toggle {
			s.selected = -1
			return ActionDeselect
		}
		return ActionSelect
	}
	s.selected = tile
	if prev < 0 || s.owner[prev] != p.ID || !s.Map.IsNeighbor(prev, tile) {
		return ActionSelect
	}

	civs, soldiers := int(p.Civs[prev])/2, int(p.Soldiers[prev])
	if owner := s.owner[tile]; owner != 0 && owner != p.ID {
		t.Attack(prev, tile, civs, soldiers)
		return ActionAttack
	}
	if t.MoveUnits(prev, tile, civs, soldiers) == nil {
		return ActionSelect
	}
	return ActionMove
}

// SelectAt selects the tile nearest a unit-scale layout position.
func (t *Turn) SelectAt(pos world.Point, toggle bool) (int, SelectAction) {
	t.check()
	tile := t.sim.Layout.IDAtPosition(pos)
	return tile, t.Select(tile, toggle)
}

// Deselect clears the selection.
func (t *Turn) Deselect() {
	t.check()
	t.sim.selected = -1
}

func clampUnits(requested int, available uint16) int {
	return min(max(requested, 0), int(available))
}
