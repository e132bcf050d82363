package world

import (
	"slices"
	"testing"

	"github.com/gempireio/conquest/internal/entropy"
)

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := SmallTestConfig()
	a := Generate(cfg)
	b := Generate(cfg)
	if !slices.Equal(a.Elevations, b.Elevations) {
		t.Fatal("same seed produced different elevations")
	}
	if !slices.Equal(a.LandCover, b.LandCover) {
		t.Fatal("same seed produced different land cover")
	}
	if !slices.Equal(a.Names, b.Names) {
		t.Fatal("same seed produced different names")
	}
}

func TestGenerateArrays(t *testing.T) {
	cfg := GenConfig{Layers: 20, SeaLevel: 35, Seed: 9}
	m := Generate(cfg)
	if len(m.Elevations) != m.TileCount() || len(m.LandCover) != m.TileCount() || len(m.Names) != m.TileCount() {
		t.Fatalf("array sizes %d/%d/%d, want %d", len(m.Elevations), len(m.LandCover), len(m.Names), m.TileCount())
	}
	oceans := 0
	for id := 0; id <= m.MaxTileID; id++ {
		ocean := m.IsOcean(id)
		if ocean != (m.LandCover[id] == CoverOcean) {
			t.Fatalf("tile %d: ocean=%v but cover %s", id, ocean, CoverName(m.LandCover[id]))
		}
		if m.Name(id) == "" {
			t.Fatalf("tile %d has no name", id)
		}
		if ocean {
			oceans++
		}
	}
	if oceans == 0 {
		t.Fatal("expected an ocean border")
	}
	if len(m.LandTiles())+oceans != m.TileCount() {
		t.Fatalf("land %d + ocean %d != %d", len(m.LandTiles()), oceans, m.TileCount())
	}
}

func TestSmoothElevationsAveragesNeighbors(t *testing.T) {
	m := NewMap(1, 35)
	for id := range m.Elevations {
		m.Elevations[id] = uint8(id * 10)
	}
	// Intn(7) of 0.0 picks the center.
	m.SmoothElevations(entropy.NewScript(0), 0)
	// (0+10+20+30+40+50+60)/7 = 30
	if m.Elevations[0] != 30 {
		t.Fatalf("expected center smoothed to 30, got %d", m.Elevations[0])
	}
}

func TestDeriveCover(t *testing.T) {
	tests := []struct {
		height, wet float64
		want        LandCover
	}{
		{0.9, 0.5, CoverMountain},
		{0.7, 0.2, CoverRocky},
		{0.7, 0.8, CoverForest},
		{0.1, 0.9, CoverWetland},
		{0.3, 0.1, CoverDesert},
		{0.3, 0.3, CoverSavanna},
		{0.3, 0.5, CoverGrassland},
		{0.3, 0.7, CoverForest},
		{0.3, 0.9, CoverJungle},
	}
	for _, tt := range tests {
		if got := deriveCover(tt.height, tt.wet); got != tt.want {
			t.Errorf("deriveCover(%v, %v) = %s, want %s", tt.height, tt.wet, CoverName(got), CoverName(tt.want))
		}
	}
}

func TestGenerateNamesAreDistinct(t *testing.T) {
	names := GenerateNames(entropy.NewSeeded(1), 40)
	if len(names) != 40 {
		t.Fatalf("expected 40 names, got %d", len(names))
	}
	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			t.Fatalf("duplicate name %q", n)
		}
		seen[n] = true
	}
}
