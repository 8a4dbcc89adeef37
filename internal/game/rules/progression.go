package rules

import (
	"sync"

	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
)

// Phase is a stage of pre-game setup or of a round.
type Phase string

const (
	PhaseJoiningGame          Phase = "JOINING_GAME"
	PhaseJoiningTeams         Phase = "JOINING_TEAMS"
	PhaseReadyUp              Phase = "READY_UP"
	PhaseStartingSetup        Phase = "STARTING_SETUP"
	PhaseOne                  Phase = "PHASE_1"
	PhaseResolveDayBreakCards Phase = "RESOLVE_DAY_BREAK_CARDS"
	PhaseTwo                  Phase = "PHASE_2"
	PhaseThree                Phase = "PHASE_3"
	PhaseDiscardingCards      Phase = "DISCARDING_CARDS"
	PhaseDrawingNewHand       Phase = "DRAWING_NEW_HAND"
	PhaseEndGame              Phase = "END_GAME"
	PhaseGameFinished         Phase = "GAME_FINISHED"
)

func (p Phase) String() string { return string(p) }

// Terminal reports whether no action is accepted any more.
func (p Phase) Terminal() bool { return p == PhaseGameFinished }

// Action is an input to the progression machine.
type Action string

const (
	ActionPlayerJoined            Action = "PLAYER_JOINED"
	ActionPlayerSelectedSage      Action = "PLAYER_SELECTED_SAGE"
	ActionAllSagesSelected        Action = "ALL_SAGES_SELECTED"
	ActionPlayerJoinedTeam        Action = "PLAYER_JOINED_TEAM"
	ActionClearTeams              Action = "CLEAR_TEAMS"
	ActionAllTeamsJoined          Action = "ALL_TEAMS_JOINED"
	ActionToggleReadyStatus       Action = "TOGGLE_READY_STATUS"
	ActionAllPlayersReady         Action = "ALL_PLAYERS_READY"
	ActionChooseWarriors          Action = "CHOOSE_WARRIORS"
	ActionSwapWarriors            Action = "SWAP_WARRIORS"
	ActionPlayerFinishedSetup     Action = "PLAYER_FINISHED_SETUP"
	ActionCancelSetup             Action = "CANCEL_SETUP"
	ActionAllPlayersSetupComplete Action = "ALL_PLAYERS_SETUP_COMPLETE"
	ActionGetDayBreakCards        Action = "GET_DAY_BREAK_CARDS"
	ActionDayBreakCard            Action = "DAY_BREAK_CARD"
	ActionNextPhase               Action = "NEXT_PHASE"
	ActionDrawCard                Action = "DRAW_CARD"
	ActionSwapCards               Action = "SWAP_CARDS"
	ActionSummonCard              Action = "SUMMON_CARD"
	ActionAttack                  Action = "ATTACK"
	ActionUtility                 Action = "UTILITY"
	ActionSageSkill               Action = "SAGE_SKILL"
	ActionWinGame                 Action = "WIN_GAME"
	ActionBuyCard                 Action = "BUY_CARD"
	ActionSellCard                Action = "SELL_CARD"
	ActionRefreshShop             Action = "REFRESH_SHOP"
	ActionDoneDiscardingCards     Action = "DONE_DISCARDING_CARDS"
	ActionDoneDrawingNewHand      Action = "DONE_DRAWING_NEW_HAND"
)

// stage is one row of the transition table: actions that keep the phase, and actions
// that move it elsewhere.
type stage struct {
	stay    []Action
	advance map[Action]Phase
}

func (s stage) accepts(a Action) (Phase, bool) {
	if next, ok := s.advance[a]; ok {
		return next, true
	}
	for _, st := range s.stay {
		if st == a {
			return "", true
		}
	}
	return "", false
}

// transitions is shared by every machine and never mutated.
var transitions = map[Phase]stage{
	PhaseJoiningGame: {
		stay:    []Action{ActionPlayerJoined, ActionPlayerSelectedSage},
		advance: map[Action]Phase{ActionAllSagesSelected: PhaseJoiningTeams},
	},
	PhaseJoiningTeams: {
		stay:    []Action{ActionPlayerJoinedTeam, ActionClearTeams},
		advance: map[Action]Phase{ActionAllTeamsJoined: PhaseReadyUp},
	},
	PhaseReadyUp: {
		stay:    []Action{ActionToggleReadyStatus},
		advance: map[Action]Phase{ActionAllPlayersReady: PhaseStartingSetup},
	},
	PhaseStartingSetup: {
		stay:    []Action{ActionChooseWarriors, ActionSwapWarriors, ActionPlayerFinishedSetup, ActionCancelSetup},
		advance: map[Action]Phase{ActionAllPlayersSetupComplete: PhaseOne},
	},
	PhaseOne: {
		advance: map[Action]Phase{
			ActionGetDayBreakCards: PhaseResolveDayBreakCards,
			ActionNextPhase:        PhaseTwo,
		},
	},
	PhaseResolveDayBreakCards: {
		stay:    []Action{ActionDayBreakCard},
		advance: map[Action]Phase{ActionNextPhase: PhaseTwo},
	},
	PhaseTwo: {
		stay: []Action{ActionDrawCard, ActionSwapCards, ActionSummonCard, ActionAttack, ActionUtility, ActionSageSkill},
		advance: map[Action]Phase{
			ActionNextPhase: PhaseThree,
			ActionWinGame:   PhaseEndGame,
		},
	},
	PhaseThree: {
		stay:    []Action{ActionBuyCard, ActionSummonCard, ActionSellCard, ActionRefreshShop},
		advance: map[Action]Phase{ActionNextPhase: PhaseDiscardingCards},
	},
	PhaseDiscardingCards: {
		advance: map[Action]Phase{ActionDoneDiscardingCards: PhaseDrawingNewHand},
	},
	PhaseDrawingNewHand: {
		advance: map[Action]Phase{ActionDoneDrawingNewHand: PhaseOne},
	},
	PhaseEndGame: {
		advance: map[Action]Phase{ActionWinGame: PhaseGameFinished},
	},
	PhaseGameFinished: {},
}

// Machine gates every action against the current phase. It knows nothing about the
// board; the caller consults it before mutating anything.
type Machine struct {
	mu    sync.RWMutex
	table map[Phase]stage
	phase Phase
}

// NewMachine creates a machine in the JoiningGame phase.
func NewMachine() *Machine {
	return &Machine{table: transitions, phase: PhaseJoiningGame}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Accepts reports whether the action is legal right now.
func (m *Machine) Accepts(a Action) bool {
	return m.Verify(a) == nil
}

// Verify fails when the action is not accepted in the current phase. It never mutates.
func (m *Machine) Verify(a Action) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.next(a)
	return err
}

// Process applies the action and returns the resulting phase.
func (m *Machine) Process(a Action) (Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := m.next(a)
	if err != nil {
		return m.phase, err
	}
	if next == "" {
		return m.phase, nil
	}
	if _, ok := m.table[next]; !ok {
		return m.phase, gameerr.Internal("transition table has no entry for %s", next)
	}
	m.phase = next
	return m.phase, nil
}

func (m *Machine) next(a Action) (Phase, error) {
	st, ok := m.table[m.phase]
	if !ok {
		return "", gameerr.Internal("transition table has no entry for %s", m.phase)
	}
	next, ok := st.accepts(a)
	if !ok {
		return "", gameerr.New(gameerr.ErrInvalidTransition, "%s is not allowed during %s", a, m.phase)
	}
	return next, nil
}

// AcceptedActions lists the actions legal in the current phase.
func (m *Machine) AcceptedActions() []Action {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.table[m.phase]
	out := append([]Action(nil), st.stay...)
	for a := range st.advance {
		out = append(out, a)
	}
	return out
}

// Restore sets the current phase from a snapshot.
func (m *Machine) Restore(p Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.table[p]; !ok {
		return gameerr.New(gameerr.ErrValidation, "unknown phase %q", p)
	}
	m.phase = p
	return nil
}
