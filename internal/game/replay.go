package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const replayVersion = 1

// Replay is the ordered list of snapshots taken after each accepted action of a game,
// with a cursor for stepping through them.
type Replay struct {
	mu     sync.RWMutex
	gameID string
	states []*Snapshot
	cursor int
}

// NewReplay creates an empty replay.
func NewReplay(gameID string) *Replay {
	return &Replay{gameID: gameID}
}

func (r *Replay) GameID() string { return r.gameID }

// Record appends a snapshot.
func (r *Replay) Record(snap *Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, snap)
}

// Len returns the number of recorded snapshots.
func (r *Replay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

// Cursor returns the index of the snapshot Next will return.
func (r *Replay) Cursor() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursor
}

// Rewind moves the cursor back to the first snapshot.
func (r *Replay) Rewind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = 0
}

// Next returns the snapshot under the cursor and advances it. It returns nil at the end.
func (r *Replay) Next() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor >= len(r.states) {
		return nil
	}
	snap := r.states[r.cursor]
	r.cursor++
	return snap
}

// Previous steps the cursor back and returns that snapshot. It returns nil at the start.
func (r *Replay) Previous() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor == 0 {
		return nil
	}
	r.cursor--
	return r.states[r.cursor]
}

// Skip moves the cursor by n, clamped to the recorded range, and returns the snapshot
// it lands on.
func (r *Replay) Skip(n int) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return nil
	}
	r.cursor = min(max(r.cursor+n, 0), len(r.states)-1)
	return r.states[r.cursor]
}

// At returns the snapshot at index, or nil.
func (r *Replay) At(index int) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.states) {
		return nil
	}
	return r.states[index]
}

type replayHeader struct {
	GameID    string
	SavedAt   time.Time
	Version   int
	Snapshots int
}

func replayPath(dir, gameID string) string {
	return filepath.Join(dir, gameID+".replay")
}

// Save writes the replay as a gzipped gob stream: a header followed by each snapshot.
func (r *Replay) Save(dir string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create replay directory: %w", err)
	}
	file, err := os.Create(replayPath(dir, r.gameID))
	if err != nil {
		return fmt.Errorf("failed to create replay file: %w", err)
	}
	defer file.Close()

	zw := gzip.NewWriter(file)
	enc := gob.NewEncoder(zw)
	header := replayHeader{GameID: r.gameID, SavedAt: time.Now().UTC(), Version: replayVersion, Snapshots: len(r.states)}
	if err := enc.Encode(&header); err != nil {
		return fmt.Errorf("failed to encode replay header: %w", err)
	}
	for i, snap := range r.states {
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode snapshot %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush replay: %w", err)
	}
	return nil
}

// LoadReplay reads a replay written by Save.
func LoadReplay(dir, gameID string) (*Replay, error) {
	file, err := os.Open(replayPath(dir, gameID))
	if err != nil {
		return nil, fmt.Errorf("failed to open replay: %w", err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var header replayHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to decode replay header: %w", err)
	}
	if header.Version != replayVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", header.Version)
	}

	replay := NewReplay(header.GameID)
	for i := 0; i < header.Snapshots; i++ {
		var snap Snapshot
		if err := dec.Decode(&snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %d: %w", i, err)
		}
		replay.states = append(replay.states, &snap)
	}
	return replay, nil
}

// Recorder keeps one replay per live game and flushes it to disk when the game ends.
type Recorder struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dir     string
	replays map[string]*Replay
}

// NewRecorder creates a recorder that saves into dir. An empty dir disables saving.
func NewRecorder(dir string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger, dir: dir, replays: make(map[string]*Replay)}
}

// Start begins a replay for gameID, replacing any earlier one.
func (rr *Recorder) Start(gameID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.replays[gameID] = NewReplay(gameID)
	rr.logger.Debug("replay started", zap.String("game_id", gameID))
}

// Record appends snap to the game's replay if one is running.
func (rr *Recorder) Record(snap *Snapshot) {
	rr.mu.RLock()
	replay := rr.replays[snap.GameID]
	rr.mu.RUnlock()
	if replay != nil {
		replay.Record(snap)
	}
}

// Replay returns the in-memory replay of a game.
func (rr *Recorder) Replay(gameID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	replay, ok := rr.replays[gameID]
	return replay, ok
}

// Finish saves the game's replay to disk and drops it from memory.
func (rr *Recorder) Finish(gameID string) error {
	rr.mu.Lock()
	replay, ok := rr.replays[gameID]
	delete(rr.replays, gameID)
	rr.mu.Unlock()

	if !ok {
		return fmt.Errorf("no replay for game %s", gameID)
	}
	if rr.dir == "" {
		return nil
	}
	if err := replay.Save(rr.dir); err != nil {
		return err
	}
	rr.logger.Info("replay saved",
		zap.String("game_id", gameID),
		zap.Int("snapshots", replay.Len()),
		zap.String("dir", rr.dir))
	return nil
}

// Load reads a saved replay from the recorder's directory.
func (rr *Recorder) Load(gameID string) (*Replay, error) {
	return LoadReplay(rr.dir, gameID)
}

// Discard drops a replay without saving it.
func (rr *Recorder) Discard(gameID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.replays, gameID)
}
