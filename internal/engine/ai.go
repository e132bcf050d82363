package engine

// PlayAI takes a simple turn for a computer player: from its strongest tile
// it either expands onto a free neighbor, reinforces a friendly one, or
// attacks an enemy neighbor it outguns.
func PlayAI(t *Turn) {
	t.check()
	s, p := t.sim, t.player
	tiles := p.OwnedTiles()
	if len(tiles) == 0 {
		return
	}

	from, best := tiles[0], -1
	for _, id := range tiles {
		if u := int(p.Civs[id]) + int(p.Soldiers[id])*3; u > best {
			from, best = id, u
		}
	}
	if int(p.Civs[from])+int(p.Soldiers[from]) < 4 {
		return
	}

	var land []int
	for _, n := range s.Map.NeighborsOf(from) {
		if s.Map.IsLand(n) {
			land = append(land, n)
		}
	}
	if len(land) == 0 {
		return
	}
	to := land[s.rng.Intn(len(land))]
	civs, soldiers := int(p.Civs[from]), int(p.Soldiers[from])

	switch owner := s.owner[to]; {
	case owner == 0 || owner == p.ID:
		t.MoveUnits(from, to, civs/2, soldiers/2)
	default:
		def := s.Player(owner)
		ours := float64(civs/2)/10 + float64(soldiers)/1.1
		theirs := float64(def.Civs[to])/7 + float64(def.Soldiers[to])
		if ours > theirs*1.5 {
			t.Attack(from, to, civs/2, soldiers)
		}
	}
}
