package engine

import (
	"fmt"
	"slices"
)

// OverlayKind selects a per-tile view for renderers.
type OverlayKind uint8

const (
	OverlayAllInfluence    OverlayKind = iota // Highest influence of any player
	OverlayPlayerInfluence                    // One player's influence
	OverlayFogOfWar                           // One player's fog
	OverlayOwnership                          // Owner id per tile
	OverlayElevation                          // Terrain height
)

var overlayNames = [...]string{
	OverlayAllInfluence:    "all-influence",
	OverlayPlayerInfluence: "player-influence",
	OverlayFogOfWar:        "fog-of-war",
	OverlayOwnership:       "ownership",
	OverlayElevation:       "elevation",
}

func (k OverlayKind) String() string {
	if int(k) < len(overlayNames) {
		return overlayNames[k]
	}
	return fmt.Sprintf("OverlayKind(%d)", uint8(k))
}

// NeedsPlayer reports whether the overlay is computed for a single player.
func (k OverlayKind) NeedsPlayer() bool {
	return k == OverlayPlayerInfluence || k == OverlayFogOfWar
}

// ParseOverlayKind parses an overlay name as produced by String.
func ParseOverlayKind(name string) (OverlayKind, error) {
	for i, n := range overlayNames {
		if n == name {
			return OverlayKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown overlay %q", name)
}

// Overlay is a typed per-tile buffer.
type Overlay struct {
	Kind   OverlayKind `json:"-"`
	Name   string      `json:"kind"`
	Player PlayerID    `json:"player,omitempty"`
	Values []uint8     `json:"values"`
}

// Overlay computes the requested view. player is only consulted by
// per-player kinds.
func (s *Simulation) Overlay(kind OverlayKind, player PlayerID) (Overlay, error) {
	o := Overlay{Kind: kind, Name: kind.String()}
	if kind.NeedsPlayer() {
		p := s.Player(player)
		if p == nil {
			return o, fmt.Errorf("%s overlay for player %d: %w", kind, player, ErrUnknownPlayer)
		}
		o.Player = player
		if kind == OverlayPlayerInfluence {
			o.Values = slices.Clone(p.Influence)
		} else {
			o.Values = slices.Clone(p.FogOfWar)
		}
		return o, nil
	}

	switch kind {
	case OverlayAllInfluence:
		o.Values = s.AllInfluence()
	case OverlayOwnership:
		o.Values = make([]uint8, len(s.owner))
		for i, id := range s.owner {
			o.Values[i] = uint8(id)
		}
	case OverlayElevation:
		o.Values = slices.Clone(s.Map.Elevations)
	default:
		return o, fmt.Errorf("unknown overlay kind %d", kind)
	}
	return o, nil
}

// AllInfluence returns the highest influence any player has on each tile.
func (s *Simulation) AllInfluence() []uint8 {
	out := make([]uint8, s.Map.TileCount())
	for _, p := range s.Players {
		for i, v := range p.Influence {
			out[i] = max(out[i], v)
		}
	}
	return out
}
