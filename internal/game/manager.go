package game

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
	"github.com/sagebattle/sage-server-go/internal/game/player"
	"github.com/sagebattle/sage-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// ErrStoreMiss is returned by a Store when no snapshot exists for a game.
var ErrStoreMiss = errors.New("snapshot not found")

// Store persists game snapshots.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, gameID string) (*Snapshot, error)
	Delete(ctx context.Context, gameID string) error
	List(ctx context.Context) ([]string, error)
}

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	HandSize  int
	QueueSize int
	ReplayDir string
	Shuffle   player.Shuffler
}

type persistJob struct {
	snap     *Snapshot
	finished bool
}

type entry struct {
	mu   sync.Mutex
	game *Game
}

// Manager is the registry of live games. Actions on one game are applied in order;
// different games proceed independently. Snapshots are persisted by Run off the
// action path.
type Manager struct {
	mu       sync.RWMutex
	games    map[string]*entry
	catalog  Catalog
	store    Store
	bus      *rules.EventBus
	recorder *Recorder
	queue    chan persistJob
	opts     ManagerOptions
	logger   *zap.Logger
}

// NewManager creates a manager. store may be nil, in which case nothing is persisted.
func NewManager(catalog Catalog, store Store, bus *rules.EventBus, logger *zap.Logger, opts ManagerOptions) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = rules.NewEventBus()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Manager{
		games:    make(map[string]*entry),
		catalog:  catalog,
		store:    store,
		bus:      bus,
		recorder: NewRecorder(opts.ReplayDir, logger),
		queue:    make(chan persistJob, opts.QueueSize),
		opts:     opts,
		logger:   logger,
	}
}

// Bus returns the event bus shared by every game of the manager.
func (m *Manager) Bus() *rules.EventBus { return m.bus }

// Recorder returns the replay recorder.
func (m *Manager) Recorder() *Recorder { return m.recorder }

// Catalog returns the card catalog games are built from.
func (m *Manager) Catalog() Catalog { return m.catalog }

// CreateGame registers a new game for teams of teamSize.
func (m *Manager) CreateGame(ctx context.Context, teamSize int) (*Game, error) {
	id := uuid.NewString()
	g, err := New(id, m.catalog, Options{TeamSize: teamSize, HandSize: m.opts.HandSize, Shuffle: m.opts.Shuffle}, m.bus, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.games[id] = &entry{game: g}
	m.mu.Unlock()

	m.recorder.Start(id)
	snap := g.Snapshot()
	m.recorder.Record(snap)
	m.enqueue(persistJob{snap: snap})

	m.logger.Info("game created", zap.String("game_id", id), zap.Int("team_size", teamSize))
	return g, nil
}

// Get returns a live game.
func (m *Manager) Get(gameID string) (*Game, error) {
	e, err := m.entry(gameID)
	if err != nil {
		return nil, err
	}
	return e.game, nil
}

func (m *Manager) entry(gameID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.games[gameID]
	if !ok {
		return nil, gameerr.New(gameerr.ErrGameNotFound, "game %s not found", gameID)
	}
	return e, nil
}

// List returns the IDs of live games, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.games))
	for id := range m.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AttemptAction applies a player action to a game and queues the resulting snapshot.
func (m *Manager) AttemptAction(ctx context.Context, gameID, playerID string, action rules.Action, payload Payload) (Result, error) {
	e, err := m.entry(gameID)
	if err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.game.AttemptAction(playerID, action, payload)
	if err != nil {
		if gameerr.IsInternal(err) {
			m.logger.Error("action failed",
				zap.String("game_id", gameID),
				zap.String("player_id", playerID),
				zap.String("action", string(action)),
				zap.Error(err))
		}
		return res, err
	}

	snap := e.game.Snapshot()
	m.recorder.Record(snap)
	m.enqueue(persistJob{snap: snap, finished: e.game.Finished()})
	return res, nil
}

// Load restores a game from the store and registers it. A game that is already live is
// returned as is.
func (m *Manager) Load(ctx context.Context, gameID string) (*Game, error) {
	if g, err := m.Get(gameID); err == nil {
		return g, nil
	}
	if m.store == nil {
		return nil, gameerr.New(gameerr.ErrGameNotFound, "game %s not found", gameID)
	}
	snap, err := m.store.Load(ctx, gameID)
	if errors.Is(err, ErrStoreMiss) {
		return nil, gameerr.New(gameerr.ErrGameNotFound, "game %s not found", gameID)
	}
	if err != nil {
		return nil, err
	}
	g, err := Restore(snap, m.catalog, m.opts.Shuffle, m.bus, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.games[gameID]; ok {
		return e.game, nil
	}
	m.games[gameID] = &entry{game: g}
	m.logger.Info("game restored", zap.String("game_id", gameID), zap.String("phase", string(g.Phase())))
	return g, nil
}

// Delete drops a game from memory and from the store.
func (m *Manager) Delete(ctx context.Context, gameID string) error {
	m.mu.Lock()
	_, ok := m.games[gameID]
	delete(m.games, gameID)
	m.mu.Unlock()

	if !ok {
		return gameerr.New(gameerr.ErrGameNotFound, "game %s not found", gameID)
	}
	m.recorder.Discard(gameID)
	if m.store != nil {
		return m.store.Delete(ctx, gameID)
	}
	return nil
}

// enqueue never blocks: it runs under the game's lock, and a full queue drops the job.
// The next accepted action queues a newer snapshot of the same game.
func (m *Manager) enqueue(job persistJob) {
	if m.store == nil && !job.finished {
		return
	}
	select {
	case m.queue <- job:
	default:
		m.logger.Warn("persistence queue full, snapshot dropped",
			zap.String("game_id", job.snap.GameID),
			zap.Bool("finished", job.finished),
			zap.Int("queue_size", cap(m.queue)))
	}
}

// Run persists queued snapshots until ctx is cancelled, then drains what is left.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case job := <-m.queue:
			m.persist(ctx, job)
		case <-ctx.Done():
			m.drain()
			return nil
		}
	}
}

func (m *Manager) drain() {
	for {
		select {
		case job := <-m.queue:
			m.persist(context.Background(), job)
		default:
			return
		}
	}
}

func (m *Manager) persist(ctx context.Context, job persistJob) {
	log := m.logger.With(zap.String("game_id", job.snap.GameID))
	if m.store != nil {
		if err := m.store.Save(ctx, job.snap); err != nil {
			log.Error("failed to save snapshot", zap.Error(err))
		} else {
			log.Debug("snapshot saved", zap.String("phase", string(job.snap.Phase)))
		}
	}
	if job.finished {
		if err := m.recorder.Finish(job.snap.GameID); err != nil {
			log.Warn("failed to save replay", zap.Error(err))
		}
	}
}
