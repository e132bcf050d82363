package engine

import (
	"log/slog"
	"math"
)

// BattleResult describes one resolved attack.
type BattleResult struct {
	Attacker       PlayerID `json:"attacker"`
	Defender       PlayerID `json:"defender"`
	To             int      `json:"to"`
	AttackerCivs   int      `json:"attacker_civs"`
	AttackerSold   int      `json:"attacker_soldiers"`
	AttackerLosses int      `json:"attacker_losses"`
	DefenderLosses int      `json:"defender_losses"`
	Converted      int      `json:"converted"`
	AttackerWon    bool     `json:"attacker_won"`
	Mutual         bool     `json:"mutual_destruction"`
}

// Morale shift applied to the winner and loser of a battle.
const moraleShift = 0.05

// combatMultiplier is heavy-tailed: usually below 1, occasionally up to 11.
func (s *Simulation) combatMultiplier() float64 {
	return math.Pow(s.rng.Float64(), 0.3) + math.Pow(s.rng.Float64(), 10)*10
}

// splitLosses takes losses from soldiers first, then civs, never more than
// are present.
func splitLosses(losses, soldiers, civs int) (lostSoldiers, lostCivs int) {
	lostSoldiers = min(losses, soldiers)
	lostCivs = min(losses-lostSoldiers, civs)
	return lostSoldiers, lostCivs
}

// battle resolves a detachment of civs and soldiers, already removed from
// any tile, attacking tile to. On victory the survivors and the converted
// defenders are credited to p on to. On defeat the surviving attackers are
// returned for the caller to place.
func (s *Simulation) battle(p *Player, to, civs, soldiers int) (leftCivs, leftSoldiers int, res BattleResult) {
	res = BattleResult{Attacker: p.ID, To: to, AttackerCivs: civs, AttackerSold: soldiers}
	def := s.OwnerOf(to)

	var dCivs, dSoldiers int
	if def != nil {
		res.Defender = def.ID
		dCivs, dSoldiers = int(def.Civs[to]), int(def.Soldiers[to])
	}

	attackPower := float64(civs)/10 + float64(soldiers)/1.1
	defendPower := float64(dCivs)/7 + float64(dSoldiers)

	// Attacker's roll is drawn first.
	multA := s.combatMultiplier()
	multD := s.combatMultiplier()
	attackerLosses := int(math.Round(defendPower * multA))
	defenderLosses := int(math.Round(attackPower * multD))

	aLostS, aLostC := splitLosses(attackerLosses, soldiers, civs)
	dLostS, dLostC := splitLosses(defenderLosses, dSoldiers, dCivs)
	res.AttackerLosses = aLostS + aLostC
	res.DefenderLosses = dLostS + dLostC

	survCivs, survSoldiers := civs-aLostC, soldiers-aLostS
	defCivs, defSoldiers := dCivs-dLostC, dSoldiers-dLostS

	res.Mutual = survCivs+survSoldiers == 0 && defCivs+defSoldiers == 0 && civs+soldiers > 0 && dCivs+dSoldiers > 0
	lastStand := float64(civs) + float64(soldiers)*5 - float64(res.AttackerLosses)
	res.AttackerWon = !res.Mutual && defSoldiers == 0 && float64(defCivs) <= lastStand

	if def != nil {
		s.destroyUnits(def, to, dLostC, dLostS)
	}
	s.Stats.Battles++

	switch {
	case res.Mutual:
		slog.Info("mutual destruction", "tile", to, "attacker", p.ID, "defender", res.Defender)
		s.emit(p.ID, "battle", "%s and %s destroyed each other at %s",
			p.Name, s.playerName(res.Defender), s.Map.Name(to))
		s.shiftMorale(p, -moraleShift)
		s.shiftMorale(def, -moraleShift)
		return 0, 0, res

	case res.AttackerWon:
		converted := 0
		var buildings uint8
		if def != nil {
			converted = int(def.Civs[to])
			buildings = def.Buildings[to]
			def.Civs[to] = 0
			def.Buildings[to] = 0
			s.updateOwnership(def, to)
		}
		res.Converted = converted
		p.Buildings[to] = buildings
		s.credit(p, to, survCivs+converted, survSoldiers)
		s.revealTile(p, to)
		s.Stats.Captures++
		s.shiftMorale(p, moraleShift)
		s.shiftMorale(def, -moraleShift)
		s.emit(p.ID, "battle", "%s took %s from %s (lost %d, killed %d, converted %d)",
			p.Name, s.Map.Name(to), s.playerName(res.Defender), res.AttackerLosses, res.DefenderLosses, converted)
		return 0, 0, res

	default:
		s.shiftMorale(p, -moraleShift)
		s.shiftMorale(def, moraleShift)
		s.emit(p.ID, "battle", "%s failed to take %s from %s (lost %d, killed %d)",
			p.Name, s.Map.Name(to), s.playerName(res.Defender), res.AttackerLosses, res.DefenderLosses)
		return survCivs, survSoldiers, res
	}
}

// destroyUnits removes up to civs and soldiers from p on tile.
func (s *Simulation) destroyUnits(p *Player, tile, civs, soldiers int) {
	p.Civs[tile] = uint16(max(int(p.Civs[tile])-civs, 0))
	p.Soldiers[tile] = uint16(max(int(p.Soldiers[tile])-soldiers, 0))
	s.updateOwnership(p, tile)
}

func (s *Simulation) shiftMorale(p *Player, delta float64) {
	if p == nil {
		return
	}
	p.Morale = math.Min(math.Max(p.Morale+delta, 0), 1)
}

func (s *Simulation) playerName(id PlayerID) string {
	if p := s.Player(id); p != nil {
		return p.Name
	}
	return "nobody"
}
