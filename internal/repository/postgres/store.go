// Package postgres stores game snapshots and the card catalog in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagebattle/sage-server-go/internal/game"
	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS game_snapshots (
    game_id TEXT PRIMARY KEY,
    phase TEXT NOT NULL,
    version INTEGER NOT NULL,
    checksum TEXT NOT NULL,
    data JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cards (
    name TEXT PRIMARY KEY,
    price INTEGER NOT NULL DEFAULT 0,
    kind TEXT NOT NULL,
    element TEXT NOT NULL DEFAULT '',
    attack INTEGER NOT NULL DEFAULT 0,
    health INTEGER NOT NULL DEFAULT 0,
    rows TEXT NOT NULL DEFAULT '',
    day_break BOOLEAN NOT NULL DEFAULT FALSE,
    script TEXT NOT NULL DEFAULT ''
);
`

// Options tune the connection pool. Zero values keep the pgx defaults.
type Options struct {
	MaxConns int32
	MinConns int32
}

// Store persists snapshots as JSONB rows.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Open connects to url, checks the connection and creates missing tables.
func Open(ctx context.Context, url string, opts Options, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	logger.Info("postgres store ready",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database),
		zap.Int32("max_conns", cfg.MaxConns))
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Save upserts the latest snapshot of a game.
func (s *Store) Save(ctx context.Context, snap *game.Snapshot) error {
	data, sum, err := snap.EncodeJSON()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO game_snapshots (game_id, phase, version, checksum, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (game_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			version = EXCLUDED.version,
			checksum = EXCLUDED.checksum,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, snap.GameID, string(snap.Phase), snap.Version, sum.Hash, data)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.GameID, err)
	}
	return nil
}

// Load returns the latest snapshot of a game, verified against its stored checksum.
func (s *Store) Load(ctx context.Context, gameID string) (*game.Snapshot, error) {
	var (
		data     []byte
		checksum string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT data, checksum FROM game_snapshots WHERE game_id = $1`, gameID,
	).Scan(&data, &checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrStoreMiss
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", gameID, err)
	}
	return game.DecodeJSON(data, checksum)
}

// Delete removes a game. Unknown IDs are ignored.
func (s *Store) Delete(ctx context.Context, gameID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM game_snapshots WHERE game_id = $1`, gameID); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", gameID, err)
	}
	return nil
}

// List returns the stored game IDs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT game_id FROM game_snapshots ORDER BY game_id`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// CountCards returns the number of rows in the cards table.
func (s *Store) CountCards(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}

// ImportCards upserts card templates in batches. Lua abilities are stored with their
// card; Go abilities cannot be stored and are left to the built-in catalog. With
// truncate set the table is cleared first.
func (s *Store) ImportCards(ctx context.Context, templates []*cards.Card, truncate bool) (int, error) {
	const batchSize = 500

	if truncate {
		if _, err := s.pool.Exec(ctx, `TRUNCATE cards`); err != nil {
			return 0, fmt.Errorf("clear cards: %w", err)
		}
	}

	imported := 0
	for i := 0; i < len(templates); i += batchSize {
		end := min(i+batchSize, len(templates))

		batch := &pgx.Batch{}
		for _, card := range templates[i:end] {
			rows := make([]string, 0, len(card.RowRequirement))
			for _, r := range card.RowRequirement {
				rows = append(rows, string(r))
			}
			script := ""
			if lua, ok := card.Ability.(*cards.LuaAbility); ok {
				script = lua.Source()
			}
			batch.Queue(`
				INSERT INTO cards (name, price, kind, element, attack, health, rows, day_break, script)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (name) DO UPDATE SET
					price = EXCLUDED.price,
					kind = EXCLUDED.kind,
					element = EXCLUDED.element,
					attack = EXCLUDED.attack,
					health = EXCLUDED.health,
					rows = EXCLUDED.rows,
					day_break = EXCLUDED.day_break,
					script = EXCLUDED.script
			`, card.Name, card.Price, string(card.Kind), string(card.Element), card.Attack, card.Health,
				strings.Join(rows, "|"), card.TriggersAtRoundStart, script)
		}

		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			return tx.SendBatch(ctx, batch).Close()
		})
		if err != nil {
			return imported, fmt.Errorf("import cards %d-%d: %w", i, end, err)
		}
		imported += end - i
		s.logger.Debug("imported card batch", zap.Int("from", i), zap.Int("to", end))
	}
	return imported, nil
}

// LoadCatalog registers every stored card into catalog, replacing templates with the
// same name. A card without a script keeps the ability it already had in catalog.
func (s *Store) LoadCatalog(ctx context.Context, catalog *cards.Catalog) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, price, kind, element, attack, health, rows, day_break, script
		FROM cards ORDER BY name`)
	if err != nil {
		return 0, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	type stored struct {
		card   *cards.Card
		script string
	}
	var loaded []stored
	for rows.Next() {
		var (
			card                  cards.Card
			kind, element, layout string
			script                string
		)
		if err := rows.Scan(&card.Name, &card.Price, &kind, &element, &card.Attack, &card.Health,
			&layout, &card.TriggersAtRoundStart, &script); err != nil {
			return 0, fmt.Errorf("scan card: %w", err)
		}
		card.Kind = cards.Kind(kind)
		card.Element = cards.Element(element)
		for _, r := range strings.Split(layout, "|") {
			if r != "" {
				card.RowRequirement = append(card.RowRequirement, cards.Row(r))
			}
		}
		loaded = append(loaded, stored{card: &card, script: script})
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate cards: %w", err)
	}

	for _, st := range loaded {
		if st.script == "" {
			if existing, err := catalog.Clone(st.card.Name); err == nil {
				st.card.Ability = existing.Ability
			}
		}
		if err := catalog.Register(st.card); err != nil {
			return 0, fmt.Errorf("register card %q: %w", st.card.Name, err)
		}
		if st.script != "" {
			if err := catalog.AttachScript(st.card.Name, st.script); err != nil {
				return 0, fmt.Errorf("attach script for %q: %w", st.card.Name, err)
			}
		}
	}
	s.logger.Info("loaded cards from database", zap.Int("count", len(loaded)))
	return len(loaded), nil
}
