package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/game/player"
	"github.com/sagebattle/sage-server-go/internal/game/rules"
	"github.com/sagebattle/sage-server-go/internal/game/team"
	"go.uber.org/zap"
)

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

// Snapshot is the persisted form of a game. Players are listed in join order.
type Snapshot struct {
	Version    int               `json:"version"`
	GameID     string            `json:"game_id"`
	TeamSize   int               `json:"team_size"`
	HandSize   int               `json:"hand_size"`
	Phase      rules.Phase       `json:"phase"`
	ActiveTeam int               `json:"active_team"`
	Round      int               `json:"round"`
	Winner     int               `json:"winner"`
	DayBreak   []int             `json:"day_break,omitempty"`
	Attacked   []int             `json:"attacked,omitempty"`
	SkillUsed  []string          `json:"skill_used,omitempty"`
	Teams      []team.Snapshot   `json:"teams"`
	Players    []player.Snapshot `json:"players"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Checksum is a deterministic digest of a snapshot. Timestamps are excluded so two
// games that reached the same state hash identically.
type Checksum struct {
	Hash      string
	Timestamp string
	Version   int
}

// Snapshot captures the whole game.
func (g *Game) Snapshot() *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := &Snapshot{
		Version:    SnapshotVersion,
		GameID:     g.id,
		TeamSize:   g.teams[0].Size(),
		HandSize:   g.handSize,
		Phase:      g.machine.Phase(),
		ActiveTeam: g.activeTeam,
		Round:      g.round,
		Winner:     g.winner,
		DayBreak:   append([]int(nil), g.dayBreak...),
		Timestamp:  time.Now().UTC(),
	}
	for slot := range g.attacked {
		snap.Attacked = append(snap.Attacked, slot)
	}
	sort.Ints(snap.Attacked)
	for id := range g.skillUsed {
		snap.SkillUsed = append(snap.SkillUsed, id)
	}
	sort.Strings(snap.SkillUsed)
	for _, t := range g.teams {
		snap.Teams = append(snap.Teams, t.Snapshot())
	}
	for _, id := range g.order {
		snap.Players = append(snap.Players, g.players[id].Snapshot())
	}
	return snap
}

// Restore rebuilds a game from a snapshot. Card abilities are re-attached from the
// catalog.
func Restore(snap *Snapshot, catalog Catalog, shuffle player.Shuffler, bus *rules.EventBus, logger *zap.Logger) (*Game, error) {
	if snap == nil {
		return nil, fmt.Errorf("restore game: nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("restore game %s: unsupported snapshot version %d", snap.GameID, snap.Version)
	}
	if len(snap.Teams) != 2 {
		return nil, fmt.Errorf("restore game %s: expected 2 teams, got %d", snap.GameID, len(snap.Teams))
	}

	g, err := New(snap.GameID, catalog, Options{TeamSize: snap.TeamSize, HandSize: snap.HandSize, Shuffle: shuffle}, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("restore game %s: %w", snap.GameID, err)
	}
	if err := g.machine.Restore(snap.Phase); err != nil {
		return nil, fmt.Errorf("restore game %s: %w", snap.GameID, err)
	}
	for i, ts := range snap.Teams {
		if g.teams[i], err = team.Restore(catalog, ts); err != nil {
			return nil, fmt.Errorf("restore game %s team %d: %w", snap.GameID, i, err)
		}
	}
	for _, ps := range snap.Players {
		p, err := player.Restore(catalog, ps, g.shuffle)
		if err != nil {
			return nil, fmt.Errorf("restore game %s: %w", snap.GameID, err)
		}
		if ps.Team != player.NoTeam {
			if ps.Team < 0 || ps.Team >= len(g.teams) {
				return nil, fmt.Errorf("restore game %s: player %s on unknown team %d", snap.GameID, ps.ID, ps.Team)
			}
			p.JoinTeam(ps.Team, g.teams[ps.Team])
		}
		g.players[p.ID()] = p
		g.order = append(g.order, p.ID())
	}

	g.activeTeam = snap.ActiveTeam
	g.round = snap.Round
	g.winner = snap.Winner
	g.dayBreak = append([]int(nil), snap.DayBreak...)
	for _, slot := range snap.Attacked {
		g.attacked[slot] = true
	}
	for _, id := range snap.SkillUsed {
		g.skillUsed[id] = true
	}
	return g, nil
}

// ComputeChecksum hashes the deterministic representation of the snapshot.
func (s *Snapshot) ComputeChecksum() (*Checksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(s.canonical())); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}
	return &Checksum{
		Hash:      hex.EncodeToString(hash.Sum(nil)),
		Timestamp: s.Timestamp.Format("2006-01-02T15:04:05.000Z"),
		Version:   s.Version,
	}, nil
}

// VerifyChecksum reports whether the snapshot still hashes to expected.
func (s *Snapshot) VerifyChecksum(expected *Checksum) (bool, error) {
	if expected == nil {
		return false, fmt.Errorf("expected checksum is nil")
	}
	actual, err := s.ComputeChecksum()
	if err != nil {
		return false, err
	}
	if actual.Version != expected.Version {
		return false, fmt.Errorf("checksum version mismatch: got %d, expected %d", actual.Version, expected.Version)
	}
	return actual.Hash == expected.Hash, nil
}

// canonical writes every field except the timestamp in a fixed order. Slices are
// already ordered by the snapshot builders.
func (s *Snapshot) canonical() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "GAME:%s|%d|%d|%s|%d|%d|%d\n",
		s.GameID, s.TeamSize, s.HandSize, s.Phase, s.ActiveTeam, s.Round, s.Winner)
	fmt.Fprintf(&buf, "TURN:%v|%v|%v\n", s.DayBreak, s.Attacked, s.SkillUsed)

	for i, t := range s.Teams {
		fmt.Fprintf(&buf, "TEAM:%d|%d|%d|%v|%v\n", i, t.Size, t.Gold, t.Members, t.Chosen)
		for _, slot := range t.Field.Slots {
			fmt.Fprintf(&buf, "  SLOT:%d|%s\n", slot.Slot, canonicalCard(slot.Card))
		}
		writePile(&buf, "REMOVED", t.Removed)
	}
	for _, p := range s.Players {
		fmt.Fprintf(&buf, "PLAYER:%s|%s|%d|%t|%t\n", p.ID, p.Sage, p.Team, p.Ready, p.SetupComplete)
		writePile(&buf, "DECK", p.Deck)
		writePile(&buf, "HAND", p.Hand)
		writePile(&buf, "DISCARD", p.Discard)
	}
	return buf.String()
}

func writePile(buf *bytes.Buffer, name string, pile []cards.Snapshot) {
	fmt.Fprintf(buf, "  %s:%d\n", name, len(pile))
	for _, c := range pile {
		fmt.Fprintf(buf, "    %s\n", canonicalCard(c))
	}
}

func canonicalCard(c cards.Snapshot) string {
	return fmt.Sprintf("%s|%d|%d|%d|%t|%t", c.Name, c.ShieldCount, c.BoostCount, c.DamageCount, c.RetainShield, c.RetainBoost)
}

// ErrChecksumMismatch is returned when a stored snapshot no longer matches its hash.
var ErrChecksumMismatch = errors.New("snapshot checksum mismatch")

// EncodeJSON returns the JSON form of the snapshot and its checksum.
func (s *Snapshot) EncodeJSON() ([]byte, *Checksum, error) {
	sum, err := s.ComputeChecksum()
	if err != nil {
		return nil, nil, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, sum, nil
}

// DecodeJSON parses a stored snapshot and checks it against hash. An empty hash skips
// the check.
func DecodeJSON(data []byte, hash string) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if hash == "" {
		return &snap, nil
	}
	sum, err := snap.ComputeChecksum()
	if err != nil {
		return nil, err
	}
	if sum.Hash != hash {
		return nil, fmt.Errorf("game %s: %w", snap.GameID, ErrChecksumMismatch)
	}
	return &snap, nil
}

// Encode serializes the snapshot with gob.
func (s *Snapshot) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot reverses Encode.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// ValidateRoundtrip encodes and decodes the snapshot and checks the checksum survives.
func (s *Snapshot) ValidateRoundtrip() error {
	before, err := s.ComputeChecksum()
	if err != nil {
		return err
	}
	data, err := s.Encode()
	if err != nil {
		return err
	}
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	ok, err := decoded.VerifyChecksum(before)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("checksum changed across serialization")
	}
	return nil
}
