package engine

import (
	"github.com/google/uuid"
)

// UnitGroup is a detachment in transit between two tiles. Its units were
// debited from the start tile when it was created.
type UnitGroup struct {
	ID          uuid.UUID `json:"id"`
	Player      PlayerID  `json:"player"`
	Civs        int       `json:"civs"`
	Soldiers    int       `json:"soldiers"`
	From        int       `json:"from"`
	To          int       `json:"to"`
	TotalTurns  int       `json:"total_turns"`
	CurrentTurn int       `json:"current_turn"`

	player *Player
}

// Progress returns the fraction of the journey completed. The group
// resolves at the owner's next turn start once this reaches 1.
func (g *UnitGroup) Progress() float64 {
	return (float64(g.CurrentTurn) - 1 + g.player.TurnProgress()) / float64(g.TotalTurns)
}

// CurrentTile returns the start tile until the group is past halfway, then
// the end tile.
func (g *UnitGroup) CurrentTile() int {
	if g.Progress() > 0.5 {
		return g.To
	}
	return g.From
}

// newGroup debits the units from p's start tile and starts tracking them.
func (s *Simulation) newGroup(p *Player, from, to, civs, soldiers int) *UnitGroup {
	turns := max(1, s.Map.TileDistance(from, to))
	g := &UnitGroup{
		ID:         uuid.New(),
		Player:     p.ID,
		Civs:       civs,
		Soldiers:   soldiers,
		From:       from,
		To:         to,
		TotalTurns: turns,
		player:     p,
	}
	p.Civs[from] -= uint16(civs)
	p.Soldiers[from] -= uint16(soldiers)
	s.updateOwnership(p, from)
	p.groups = append(p.groups, g)
	return g
}

// RestoreGroup re-attaches a group loaded from a snapshot without touching
// any tile.
func (s *Simulation) RestoreGroup(g UnitGroup) error {
	p := s.Player(g.Player)
	if p == nil {
		return ErrUnknownPlayer
	}
	s.Map.MustValid(g.From)
	s.Map.MustValid(g.To)
	if g.TotalTurns < 1 {
		g.TotalTurns = 1
	}
	g.player = p
	p.groups = append(p.groups, &g)
	return nil
}

// resolveGroups lands every group of p whose journey is complete.
func (s *Simulation) resolveGroups(p *Player) {
	remaining := p.groups[:0]
	var arrived []*UnitGroup
	for _, g := range p.groups {
		if g.Progress() >= 1 {
			arrived = append(arrived, g)
		} else {
			remaining = append(remaining, g)
		}
	}
	p.groups = remaining
	for _, g := range arrived {
		s.landGroup(p, g)
	}
}

// landGroup credits a group's units at its destination. A destination held
// by another player is attacked instead.
func (s *Simulation) landGroup(p *Player, g *UnitGroup) {
	if owner := s.owner[g.To]; owner != 0 && owner != p.ID {
		civs, soldiers, _ := s.battle(p, g.To, g.Civs, g.Soldiers)
		s.retreat(p, g.From, civs, soldiers)
		return
	}
	s.credit(p, g.To, g.Civs, g.Soldiers)
	s.revealTile(p, g.To)
	s.emit(p.ID, "move", "%s arrived at %s with %d civs and %d soldiers",
		p.Name, s.Map.Name(g.To), g.Civs, g.Soldiers)
}

// retreat returns surviving units of a failed arrival to their start tile.
// They are lost if that tile now belongs to someone else.
func (s *Simulation) retreat(p *Player, tile, civs, soldiers int) {
	if civs+soldiers == 0 {
		return
	}
	if owner := s.owner[tile]; owner != 0 && owner != p.ID {
		s.emit(p.ID, "battle", "%s lost %d civs and %d soldiers with no tile to fall back to",
			p.Name, civs, soldiers)
		return
	}
	s.credit(p, tile, civs, soldiers)
}

// credit adds units to p on tile, saturating at the array limits.
func (s *Simulation) credit(p *Player, tile, civs, soldiers int) {
	p.Civs[tile] = addSaturating(p.Civs[tile], civs)
	p.Soldiers[tile] = addSaturating(p.Soldiers[tile], soldiers)
	s.updateOwnership(p, tile)
}

func addSaturating(v uint16, n int) uint16 {
	return uint16(min(int(v)+n, 65535))
}
