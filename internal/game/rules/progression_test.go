package rules

import (
	"errors"
	"testing"

	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
)

func feed(t *testing.T, m *Machine, actions ...Action) {
	t.Helper()
	for _, a := range actions {
		if _, err := m.Process(a); err != nil {
			t.Fatalf("process %s in %s: %v", a, m.Phase(), err)
		}
	}
}

func TestMachineJoiningToTeams(t *testing.T) {
	m := NewMachine()
	feed(t, m, ActionPlayerJoined, ActionPlayerSelectedSage, ActionAllSagesSelected)
	if m.Phase() != PhaseJoiningTeams {
		t.Fatalf("expected %s, got %s", PhaseJoiningTeams, m.Phase())
	}
}

func TestMachineRejectsWinGameAtStart(t *testing.T) {
	m := NewMachine()
	if err := m.Verify(ActionWinGame); !errors.Is(err, gameerr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from verify, got %v", err)
	}
	phase, err := m.Process(ActionWinGame)
	if !errors.Is(err, gameerr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from process, got %v", err)
	}
	if phase != PhaseJoiningGame || m.Phase() != PhaseJoiningGame {
		t.Fatalf("expected phase to stay %s, got %s", PhaseJoiningGame, m.Phase())
	}
	if gameerr.KindOf(err) != gameerr.KindTransition {
		t.Fatalf("expected transition kind, got %s", gameerr.KindOf(err))
	}
}

func TestMachineFullRound(t *testing.T) {
	m := NewMachine()
	feed(t, m,
		ActionPlayerJoined, ActionAllSagesSelected,
		ActionPlayerJoinedTeam, ActionClearTeams, ActionPlayerJoinedTeam, ActionAllTeamsJoined,
		ActionToggleReadyStatus, ActionAllPlayersReady,
		ActionChooseWarriors, ActionSwapWarriors, ActionPlayerFinishedSetup, ActionCancelSetup,
		ActionPlayerFinishedSetup, ActionAllPlayersSetupComplete,
	)
	if m.Phase() != PhaseOne {
		t.Fatalf("expected %s, got %s", PhaseOne, m.Phase())
	}

	steps := []struct {
		action Action
		want   Phase
	}{
		{ActionGetDayBreakCards, PhaseResolveDayBreakCards},
		{ActionDayBreakCard, PhaseResolveDayBreakCards},
		{ActionNextPhase, PhaseTwo},
		{ActionAttack, PhaseTwo},
		{ActionSummonCard, PhaseTwo},
		{ActionNextPhase, PhaseThree},
		{ActionBuyCard, PhaseThree},
		{ActionSummonCard, PhaseThree},
		{ActionNextPhase, PhaseDiscardingCards},
		{ActionDoneDiscardingCards, PhaseDrawingNewHand},
		{ActionDoneDrawingNewHand, PhaseOne},
		{ActionNextPhase, PhaseTwo},
		{ActionWinGame, PhaseEndGame},
		{ActionWinGame, PhaseGameFinished},
	}
	for i, step := range steps {
		got, err := m.Process(step.action)
		if err != nil {
			t.Fatalf("step %d (%s): %v", i, step.action, err)
		}
		if got != step.want {
			t.Fatalf("step %d (%s): expected %s, got %s", i, step.action, step.want, got)
		}
	}
	if !m.Phase().Terminal() {
		t.Fatal("expected terminal phase")
	}
	if len(m.AcceptedActions()) != 0 {
		t.Fatalf("expected no actions after the game finished, got %v", m.AcceptedActions())
	}
}

func TestMachinePhaseOneHasNoStayActions(t *testing.T) {
	m := NewMachine()
	if err := m.Restore(PhaseOne); err != nil {
		t.Fatal(err)
	}
	for _, a := range []Action{ActionDayBreakCard, ActionAttack, ActionDrawCard} {
		if m.Accepts(a) {
			t.Fatalf("%s must not be accepted in %s", a, PhaseOne)
		}
	}
}

func TestMachineEveryPhaseHasTableEntry(t *testing.T) {
	for phase, st := range transitions {
		for action, next := range st.advance {
			if _, ok := transitions[next]; !ok {
				t.Fatalf("%s --%s--> %s has no table entry", phase, action, next)
			}
		}
	}
}

func TestMachineBrokenTableIsInternal(t *testing.T) {
	m := &Machine{
		table: map[Phase]stage{
			PhaseJoiningGame: {advance: map[Action]Phase{ActionAllSagesSelected: PhaseJoiningTeams}},
		},
		phase: PhaseJoiningGame,
	}
	_, err := m.Process(ActionAllSagesSelected)
	if !gameerr.IsInternal(err) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if m.Phase() != PhaseJoiningGame {
		t.Fatalf("phase must not change on a broken table, got %s", m.Phase())
	}
}

func TestMachineRestore(t *testing.T) {
	m := NewMachine()
	if err := m.Restore(PhaseThree); err != nil {
		t.Fatal(err)
	}
	if !m.Accepts(ActionSellCard) {
		t.Fatal("expected SellCard to be accepted after restore")
	}
	if err := m.Restore(Phase("NOPE")); !errors.Is(err, gameerr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if m.Phase() != PhaseThree {
		t.Fatalf("expected phase unchanged, got %s", m.Phase())
	}
}
