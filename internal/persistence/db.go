// Package persistence provides SQLite-based session snapshots.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/gempireio/conquest/internal/engine"
	"github.com/gempireio/conquest/internal/entropy"
	"github.com/gempireio/conquest/internal/world"
)

// ErrNoSnapshot is returned by LoadSimulation when nothing has been saved.
var ErrNoSnapshot = errors.New("no saved session")

// DB wraps a SQLite connection for session persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; keeps an in-memory database on a single connection too.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tiles (
		id INTEGER PRIMARY KEY,
		elevation INTEGER NOT NULL,
		cover INTEGER NOT NULL,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT NOT NULL,
		human INTEGER NOT NULL,
		start_tile INTEGER NOT NULL,
		gems REAL NOT NULL,
		food REAL NOT NULL,
		metal REAL NOT NULL,
		stone REAL NOT NULL,
		wood REAL NOT NULL,
		morale REAL NOT NULL,
		health REAL NOT NULL,
		turn_progress REAL NOT NULL,
		fog BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS player_tiles (
		player_id INTEGER NOT NULL,
		tile INTEGER NOT NULL,
		civs INTEGER NOT NULL,
		soldiers INTEGER NOT NULL,
		buildings INTEGER NOT NULL,
		PRIMARY KEY (player_id, tile)
	);

	CREATE TABLE IF NOT EXISTS unit_groups (
		id TEXT PRIMARY KEY,
		player_id INTEGER NOT NULL,
		civs INTEGER NOT NULL,
		soldiers INTEGER NOT NULL,
		from_tile INTEGER NOT NULL,
		to_tile INTEGER NOT NULL,
		total_turns INTEGER NOT NULL,
		current_turn INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		round INTEGER NOT NULL,
		turn INTEGER NOT NULL,
		player INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_round ON events(round);
	CREATE INDEX IF NOT EXISTS idx_player_tiles_tile ON player_tiles(tile);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type tileRow struct {
	ID        int    `db:"id"`
	Elevation uint8  `db:"elevation"`
	Cover     uint8  `db:"cover"`
	Name      string `db:"name"`
}

type playerRow struct {
	ID        int     `db:"id"`
	Name      string  `db:"name"`
	Color     string  `db:"color"`
	Human     bool    `db:"human"`
	StartTile int     `db:"start_tile"`
	Gems      float64 `db:"gems"`
	Food      float64 `db:"food"`
	Metal     float64 `db:"metal"`
	Stone     float64 `db:"stone"`
	Wood      float64 `db:"wood"`
	Morale    float64 `db:"morale"`
	Health    float64 `db:"health"`
	Progress  float64 `db:"turn_progress"`
	Fog       []byte  `db:"fog"`
}

type playerTileRow struct {
	PlayerID  int    `db:"player_id"`
	Tile      int    `db:"tile"`
	Civs      uint16 `db:"civs"`
	Soldiers  uint16 `db:"soldiers"`
	Buildings uint8  `db:"buildings"`
}

type groupRow struct {
	ID          string `db:"id"`
	PlayerID    int    `db:"player_id"`
	Civs        int    `db:"civs"`
	Soldiers    int    `db:"soldiers"`
	From        int    `db:"from_tile"`
	To          int    `db:"to_tile"`
	TotalTurns  int    `db:"total_turns"`
	CurrentTurn int    `db:"current_turn"`
}

type eventRow struct {
	Round       int    `db:"round"`
	Turn        int    `db:"turn"`
	Player      int    `db:"player"`
	Description string `db:"description"`
	Category    string `db:"category"`
	At          int64  `db:"at"`
}

func (r eventRow) event() engine.Event {
	return engine.Event{
		Round:       r.Round,
		Turn:        r.Turn,
		Player:      engine.PlayerID(r.Player),
		Description: r.Description,
		Category:    r.Category,
		Time:        time.Unix(0, r.At),
	}
}

// SaveSimulation writes the whole session in one transaction, replacing any
// previous snapshot. Metadata keys outside the snapshot are kept. Call it
// between turns.
func (db *DB) SaveSimulation(sim *engine.Simulation) error {
	start := time.Now()
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"tiles", "players", "player_tiles", "unit_groups", "events"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := saveMeta(tx, sim); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := saveTiles(tx, sim.Map); err != nil {
		return fmt.Errorf("save tiles: %w", err)
	}
	if err := savePlayers(tx, sim.Players); err != nil {
		return fmt.Errorf("save players: %w", err)
	}
	for _, e := range sim.Events {
		_, err := tx.Exec(`INSERT INTO events (round, turn, player, description, category, at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.Round, e.Turn, int(e.Player), e.Description, e.Category, e.Time.UnixNano())
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("session saved",
		"round", sim.Round,
		"players", len(sim.Players),
		"events", len(sim.Events),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func saveMeta(tx *sqlx.Tx, sim *engine.Simulation) error {
	rules, err := json.Marshal(sim.Rules)
	if err != nil {
		return err
	}
	meta := map[string]string{
		"session_id": sim.ID.String(),
		"layers":     strconv.Itoa(sim.Map.Layers),
		"sea_level":  strconv.Itoa(int(sim.Map.SeaLevel)),
		"seed":       strconv.FormatInt(sim.Map.Seed, 10),
		"round":      strconv.Itoa(sim.Round),
		"turns":      strconv.Itoa(sim.Turns),
		"battles":    strconv.Itoa(sim.Stats.Battles),
		"captures":   strconv.Itoa(sim.Stats.Captures),
		"rules":      string(rules),
		"saved_at":   time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return err
		}
	}
	return nil
}

func saveTiles(tx *sqlx.Tx, m *world.Map) error {
	stmt, err := tx.Preparex("INSERT INTO tiles (id, elevation, cover, name) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id := 0; id < m.TileCount(); id++ {
		name := ""
		if id < len(m.Names) {
			name = m.Names[id]
		}
		if _, err := stmt.Exec(id, m.Elevations[id], uint8(m.LandCover[id]), name); err != nil {
			return fmt.Errorf("insert tile %d: %w", id, err)
		}
	}
	return nil
}

func savePlayers(tx *sqlx.Tx, players []*engine.Player) error {
	tileStmt, err := tx.Preparex(`INSERT INTO player_tiles
		(player_id, tile, civs, soldiers, buildings) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tileStmt.Close()

	for _, p := range players {
		_, err := tx.NamedExec(`INSERT INTO players
			(id, name, color, human, start_tile, gems, food, metal, stone, wood, morale, health, turn_progress, fog)
			VALUES (:id, :name, :color, :human, :start_tile, :gems, :food, :metal, :stone, :wood, :morale, :health, :turn_progress, :fog)`,
			playerRow{
				ID: int(p.ID), Name: p.Name, Color: p.Color, Human: p.Human, StartTile: p.StartTile,
				Gems: p.Gems, Food: p.Food, Metal: p.Metal, Stone: p.Stone, Wood: p.Wood,
				Morale: p.Morale, Health: p.Health, Progress: p.TurnProgress(), Fog: p.FogOfWar,
			})
		if err != nil {
			return fmt.Errorf("insert player %d: %w", p.ID, err)
		}

		for _, tile := range p.OwnedTiles() {
			if _, err := tileStmt.Exec(int(p.ID), tile, p.Civs[tile], p.Soldiers[tile], p.Buildings[tile]); err != nil {
				return fmt.Errorf("insert tile %d of player %d: %w", tile, p.ID, err)
			}
		}

		for _, g := range p.Groups() {
			_, err := tx.Exec(`INSERT INTO unit_groups
				(id, player_id, civs, soldiers, from_tile, to_tile, total_turns, current_turn)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				g.ID.String(), int(g.Player), g.Civs, g.Soldiers, g.From, g.To, g.TotalTurns, g.CurrentTurn)
			if err != nil {
				return fmt.Errorf("insert group %s: %w", g.ID, err)
			}
		}
	}
	return nil
}

// LoadSimulation rebuilds the saved session. Rules stored with the snapshot
// take precedence over rules. Returns ErrNoSnapshot on an empty database.
func (db *DB) LoadSimulation(rules engine.Rules, rng entropy.Source) (*engine.Simulation, error) {
	meta, err := db.allMeta()
	if err != nil {
		return nil, err
	}
	if meta["session_id"] == "" {
		return nil, ErrNoSnapshot
	}

	ints := make(map[string]int)
	for _, k := range []string{"layers", "sea_level", "round", "turns", "battles", "captures"} {
		v, err := strconv.Atoi(meta[k])
		if err != nil {
			return nil, fmt.Errorf("meta %s: %w", k, err)
		}
		ints[k] = v
	}
	id, err := uuid.Parse(meta["session_id"])
	if err != nil {
		return nil, fmt.Errorf("meta session_id: %w", err)
	}
	if raw := meta["rules"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rules); err != nil {
			return nil, fmt.Errorf("meta rules: %w", err)
		}
	}

	m, err := db.loadMap(ints["layers"], uint8(ints["sea_level"]))
	if err != nil {
		return nil, err
	}
	m.Seed, _ = strconv.ParseInt(meta["seed"], 10, 64)

	sim := engine.NewSimulation(m, rules, rng)
	sim.ID = id
	sim.Round = ints["round"]
	sim.Turns = ints["turns"]
	sim.Stats.Battles = ints["battles"]
	sim.Stats.Captures = ints["captures"]

	if err := db.loadPlayers(sim); err != nil {
		return nil, err
	}
	if err := sim.RebuildOwnership(); err != nil {
		return nil, fmt.Errorf("rebuild ownership: %w", err)
	}

	var events []eventRow
	if err := db.conn.Select(&events,
		"SELECT round, turn, player, description, category, at FROM events ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	for _, r := range events {
		sim.Events = append(sim.Events, r.event())
	}

	sim.RefreshStats()
	slog.Info("session loaded", "id", sim.ID, "round", sim.Round, "players", len(sim.Players))
	return sim, nil
}

func (db *DB) allMeta() (map[string]string, error) {
	rows, err := db.conn.Queryx("SELECT key, value FROM world_meta")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (db *DB) loadMap(layers int, seaLevel uint8) (*world.Map, error) {
	m := world.NewMap(layers, seaLevel)
	var tiles []tileRow
	if err := db.conn.Select(&tiles, "SELECT id, elevation, cover, name FROM tiles ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load tiles: %w", err)
	}
	if len(tiles) != m.TileCount() {
		return nil, fmt.Errorf("load tiles: have %d rows, grid needs %d", len(tiles), m.TileCount())
	}
	for _, t := range tiles {
		if !m.Valid(t.ID) {
			return nil, fmt.Errorf("load tiles: id %d out of range", t.ID)
		}
		m.Elevations[t.ID] = t.Elevation
		m.LandCover[t.ID] = world.LandCover(t.Cover)
		m.Names[t.ID] = t.Name
	}
	return m, nil
}

func (db *DB) loadPlayers(sim *engine.Simulation) error {
	var players []playerRow
	if err := db.conn.Select(&players, "SELECT * FROM players ORDER BY id"); err != nil {
		return fmt.Errorf("load players: %w", err)
	}
	for i, r := range players {
		if r.ID != i+1 {
			return fmt.Errorf("load players: gap before player %d", r.ID)
		}
		p := sim.AddPlayer(r.Name, r.Color, r.Human)
		p.StartTile = r.StartTile
		p.Gems, p.Food, p.Metal, p.Stone, p.Wood = r.Gems, r.Food, r.Metal, r.Stone, r.Wood
		p.Morale, p.Health = r.Morale, r.Health
		p.RestoreTurnProgress(r.Progress)
		if len(r.Fog) == len(p.FogOfWar) {
			copy(p.FogOfWar, r.Fog)
		}
	}

	var tiles []playerTileRow
	if err := db.conn.Select(&tiles, "SELECT player_id, tile, civs, soldiers, buildings FROM player_tiles"); err != nil {
		return fmt.Errorf("load player tiles: %w", err)
	}
	for _, r := range tiles {
		p := sim.Player(engine.PlayerID(r.PlayerID))
		if p == nil || !sim.Map.Valid(r.Tile) {
			return fmt.Errorf("load player tiles: bad row player=%d tile=%d", r.PlayerID, r.Tile)
		}
		p.Civs[r.Tile], p.Soldiers[r.Tile], p.Buildings[r.Tile] = r.Civs, r.Soldiers, r.Buildings
	}

	var groups []groupRow
	if err := db.conn.Select(&groups, "SELECT * FROM unit_groups ORDER BY player_id, rowid"); err != nil {
		return fmt.Errorf("load unit groups: %w", err)
	}
	for _, r := range groups {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return fmt.Errorf("load unit groups: %w", err)
		}
		if !sim.Map.Valid(r.From) || !sim.Map.Valid(r.To) {
			return fmt.Errorf("load unit groups: group %s has bad tiles %d->%d", r.ID, r.From, r.To)
		}
		err = sim.RestoreGroup(engine.UnitGroup{
			ID: id, Player: engine.PlayerID(r.PlayerID), Civs: r.Civs, Soldiers: r.Soldiers,
			From: r.From, To: r.To, TotalTurns: r.TotalTurns, CurrentTurn: r.CurrentTurn,
		})
		if err != nil {
			return fmt.Errorf("restore group %s: %w", r.ID, err)
		}
	}
	return nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key yields "" and no error.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// RecentEvents returns the most recent N stored events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT round, turn, player, description, category, at FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	events := make([]engine.Event, len(rows))
	for i, r := range rows {
		events[i] = r.event()
	}
	return events, nil
}
