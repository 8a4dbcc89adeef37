// Package game runs matches: it owns the players and teams of one game, routes player
// actions through the progression machine and applies their effects.
package game

import (
	"errors"
	"sync"

	"github.com/sagebattle/sage-server-go/internal/game/ability"
	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/game/effects"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
	"github.com/sagebattle/sage-server-go/internal/game/player"
	"github.com/sagebattle/sage-server-go/internal/game/rules"
	"github.com/sagebattle/sage-server-go/internal/game/team"
	"go.uber.org/zap"
)

// DefaultHandSize is the number of cards a player holds after drawing a new hand.
const DefaultHandSize = 5

// NoWinner is the winner index of a game still in progress.
const NoWinner = -1

// Catalog is the card data a game needs.
type Catalog interface {
	player.Catalog
	Price(name string) (int, error)
}

// Options configure a new game.
type Options struct {
	TeamSize int
	HandSize int
	Shuffle  player.Shuffler
}

// Payload carries the arguments of a player action. Each action reads only the fields
// it needs.
type Payload struct {
	Sage      string    `json:"sage,omitempty"`
	Team      int       `json:"team,omitempty"`
	Warriors  [2]string `json:"warriors,omitempty"`
	HandIndex int       `json:"hand_index,omitempty"`
	Slot      int       `json:"slot,omitempty"`
	OtherSlot int       `json:"other_slot,omitempty"`
	Targets   []int     `json:"targets,omitempty"`
	Card      string    `json:"card,omitempty"`
}

// Result reports the state of the game after an accepted action.
type Result struct {
	Phase  rules.Phase `json:"phase"`
	Winner int         `json:"winner"`
}

// Actions only the server may submit.
var serverActions = map[rules.Action]bool{
	rules.ActionAllSagesSelected:        true,
	rules.ActionAllTeamsJoined:          true,
	rules.ActionAllPlayersReady:         true,
	rules.ActionAllPlayersSetupComplete: true,
	rules.ActionGetDayBreakCards:        true,
	rules.ActionWinGame:                 true,
	rules.ActionDoneDiscardingCards:     true,
	rules.ActionDoneDrawingNewHand:      true,
}

// Actions restricted to members of the active team.
var turnActions = map[rules.Action]bool{
	rules.ActionDayBreakCard: true,
	rules.ActionNextPhase:    true,
	rules.ActionDrawCard:     true,
	rules.ActionSwapCards:    true,
	rules.ActionSummonCard:   true,
	rules.ActionAttack:       true,
	rules.ActionUtility:      true,
	rules.ActionSageSkill:    true,
	rules.ActionBuyCard:      true,
	rules.ActionSellCard:     true,
	rules.ActionRefreshShop:  true,
}

// Game is one match. All methods are safe for concurrent use; actions are applied one
// at a time.
type Game struct {
	mu       sync.Mutex
	id       string
	handSize int
	shuffle  player.Shuffler
	catalog  Catalog
	machine  *rules.Machine
	teams    [2]*team.Team
	players  map[string]*player.Player
	order    []string
	bus      *rules.EventBus
	resolver *effects.Resolver
	logger   *zap.Logger

	activeTeam int
	round      int
	winner     int
	dayBreak   []int
	attacked   map[int]bool
	skillUsed  map[string]bool
}

// New creates a game waiting for players.
func New(id string, catalog Catalog, opts Options, bus *rules.EventBus, logger *zap.Logger) (*Game, error) {
	if id == "" {
		return nil, gameerr.New(gameerr.ErrValidation, "game id is required")
	}
	if catalog == nil {
		return nil, gameerr.Internal("game %s has no catalog", id)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HandSize <= 0 {
		opts.HandSize = DefaultHandSize
	}
	if opts.Shuffle == nil {
		opts.Shuffle = player.RandomShuffle
	}

	g := &Game{
		id:        id,
		handSize:  opts.HandSize,
		shuffle:   opts.Shuffle,
		catalog:   catalog,
		machine:   rules.NewMachine(),
		players:   make(map[string]*player.Player),
		bus:       bus,
		resolver:  effects.NewResolver(id, bus, logger),
		logger:    logger.With(zap.String("game_id", id)),
		winner:    NoWinner,
		attacked:  make(map[int]bool),
		skillUsed: make(map[string]bool),
	}
	for i := range g.teams {
		t, err := team.New(opts.TeamSize)
		if err != nil {
			return nil, err
		}
		g.teams[i] = t
	}
	return g, nil
}

func (g *Game) ID() string { return g.id }

// Phase returns the current phase.
func (g *Game) Phase() rules.Phase {
	return g.machine.Phase()
}

// Finished reports whether the game reached its terminal phase.
func (g *Game) Finished() bool {
	return g.machine.Phase().Terminal()
}

// Winner returns the index of the winning team, or NoWinner.
func (g *Game) Winner() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.winner
}

// ActiveTeam returns the index of the team whose turn it is.
func (g *Game) ActiveTeam() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeTeam
}

func (g *Game) capacity() int {
	return 2 * g.teams[0].Size()
}

// Player implements effects.Table.
func (g *Game) Player(id string) (effects.Player, error) {
	p, err := g.player(id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (g *Game) player(id string) (*player.Player, error) {
	p, ok := g.players[id]
	if !ok {
		return nil, gameerr.New(gameerr.ErrPlayerNotFound, "player %s is not in game %s", id, g.id)
	}
	return p, nil
}

// TeamFor implements effects.Table.
func (g *Game) TeamFor(playerID string, side ability.TeamSide) (int, *team.Team, error) {
	p, err := g.player(playerID)
	if err != nil {
		return 0, nil, err
	}
	own := p.TeamIndex()
	if own == player.NoTeam {
		return 0, nil, gameerr.New(gameerr.ErrValidation, "player %s has not joined a team", playerID)
	}
	switch side {
	case ability.SideSelf:
		return own, g.teams[own], nil
	case ability.SideEnemy:
		return 1 - own, g.teams[1-own], nil
	default:
		return 0, nil, gameerr.Internal("unknown team side %q", side)
	}
}

// Checkpoint implements effects.Table. The returned function puts teams and players back
// the way they were; the objects are rebuilt, so callers must look them up again.
func (g *Game) Checkpoint() func() error {
	var teams [2]team.Snapshot
	for i, t := range g.teams {
		teams[i] = t.Snapshot()
	}
	players := make([]player.Snapshot, 0, len(g.order))
	for _, id := range g.order {
		players = append(players, g.players[id].Snapshot())
	}
	return func() error {
		var restored [2]*team.Team
		for i, ts := range teams {
			t, err := team.Restore(g.catalog, ts)
			if err != nil {
				return err
			}
			restored[i] = t
		}
		byID := make(map[string]*player.Player, len(players))
		for _, ps := range players {
			p, err := player.Restore(g.catalog, ps, g.shuffle)
			if err != nil {
				return err
			}
			if ps.Team != player.NoTeam {
				p.JoinTeam(ps.Team, restored[ps.Team])
			}
			byID[p.ID()] = p
		}
		g.teams = restored
		g.players = byID
		return nil
	}
}

// AttemptAction verifies an action against the current phase, applies it and advances
// the phase. A rejected action leaves the game unchanged.
func (g *Game) AttemptAction(playerID string, action rules.Action, payload Payload) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if serverActions[action] {
		return g.result(), gameerr.New(gameerr.ErrServerAction, "%s is issued by the server", action)
	}
	if err := g.machine.Verify(action); err != nil {
		return g.result(), err
	}
	if err := g.authorize(playerID, action); err != nil {
		return g.result(), err
	}
	if err := g.apply(playerID, action, payload); err != nil {
		g.logger.Debug("action rejected",
			zap.String("player_id", playerID),
			zap.String("action", string(action)),
			zap.Error(err))
		return g.result(), err
	}
	if err := g.process(playerID, action); err != nil {
		return g.result(), err
	}
	if err := g.settle(); err != nil {
		g.logger.Error("server action failed", zap.Error(err))
		return g.result(), err
	}
	return g.result(), nil
}

func (g *Game) result() Result {
	return Result{Phase: g.machine.Phase(), Winner: g.winner}
}

func (g *Game) authorize(playerID string, action rules.Action) error {
	if action == rules.ActionPlayerJoined {
		return nil
	}
	p, err := g.player(playerID)
	if err != nil {
		return err
	}
	if turnActions[action] && p.TeamIndex() != g.activeTeam {
		return gameerr.New(gameerr.ErrNotYourTurn, "team %d is playing", g.activeTeam)
	}
	return nil
}

func (g *Game) process(playerID string, action rules.Action) error {
	before := g.machine.Phase()
	after, err := g.machine.Process(action)
	if err != nil {
		return err
	}
	if after != before {
		evt := rules.NewEvent(rules.EventPhaseChanged, g.id, playerID)
		evt.Phase = after
		evt.Team = g.activeTeam
		g.bus.Publish(evt)
		g.logger.Debug("phase changed",
			zap.String("from", string(before)),
			zap.String("to", string(after)),
			zap.String("action", string(action)))
	}
	return nil
}

func (g *Game) apply(playerID string, action rules.Action, payload Payload) error {
	switch action {
	case rules.ActionPlayerJoined:
		return g.join(playerID)
	case rules.ActionPlayerSelectedSage:
		return g.selectSage(playerID, payload.Sage)
	case rules.ActionPlayerJoinedTeam:
		return g.joinTeam(playerID, payload.Team)
	case rules.ActionClearTeams:
		return g.clearTeams(playerID)
	case rules.ActionToggleReadyStatus:
		return g.toggleReady(playerID)
	case rules.ActionChooseWarriors:
		return g.chooseWarriors(playerID, payload.Warriors)
	case rules.ActionSwapWarriors:
		return g.swapWarriors(playerID)
	case rules.ActionPlayerFinishedSetup:
		return g.finishSetup(playerID, true)
	case rules.ActionCancelSetup:
		return g.finishSetup(playerID, false)
	case rules.ActionDayBreakCard:
		return g.resolveDayBreak(playerID, payload.Slot)
	case rules.ActionNextPhase:
		return nil
	case rules.ActionDrawCard:
		return g.drawCard(playerID)
	case rules.ActionSwapCards:
		return g.swapCards(playerID, payload.Slot, payload.OtherSlot)
	case rules.ActionSummonCard:
		return g.summon(playerID, payload.HandIndex, payload.Slot)
	case rules.ActionAttack:
		return g.attack(playerID, payload.Slot, payload.Targets)
	case rules.ActionUtility:
		return g.utility(playerID, payload.HandIndex, payload.Targets)
	case rules.ActionSageSkill:
		return g.sageSkill(playerID, payload.Targets)
	case rules.ActionBuyCard:
		return g.buy(playerID, payload.Card)
	case rules.ActionSellCard:
		return g.sell(playerID, payload.HandIndex)
	case rules.ActionRefreshShop:
		g.bus.Publish(rules.NewEvent(rules.EventShopRefresh, g.id, playerID))
		return nil
	default:
		return gameerr.Internal("no handler for action %s", action)
	}
}

// settle runs server actions until the game waits on a player again.
func (g *Game) settle() error {
	for {
		action, ok := g.pendingServerAction()
		if !ok {
			return nil
		}
		if err := g.machine.Verify(action); err != nil {
			return gameerr.Internal("server action %s rejected in %s", action, g.machine.Phase())
		}
		if err := g.applyServer(action); err != nil {
			return err
		}
		if err := g.process("", action); err != nil {
			return err
		}
		if err := g.afterServer(action); err != nil {
			return err
		}
	}
}

func (g *Game) pendingServerAction() (rules.Action, bool) {
	switch g.machine.Phase() {
	case rules.PhaseJoiningGame:
		if len(g.order) == g.capacity() && g.all((*player.Player).HasSage) {
			return rules.ActionAllSagesSelected, true
		}
	case rules.PhaseJoiningTeams:
		if g.teams[0].IsFull() && g.teams[1].IsFull() {
			return rules.ActionAllTeamsJoined, true
		}
	case rules.PhaseReadyUp:
		if g.all((*player.Player).Ready) {
			return rules.ActionAllPlayersReady, true
		}
	case rules.PhaseStartingSetup:
		if g.all((*player.Player).SetupComplete) {
			return rules.ActionAllPlayersSetupComplete, true
		}
	case rules.PhaseOne:
		if len(g.dayBreak) > 0 {
			return rules.ActionGetDayBreakCards, true
		}
	case rules.PhaseTwo, rules.PhaseEndGame:
		if g.winner != NoWinner {
			return rules.ActionWinGame, true
		}
	case rules.PhaseDiscardingCards:
		return rules.ActionDoneDiscardingCards, true
	case rules.PhaseDrawingNewHand:
		return rules.ActionDoneDrawingNewHand, true
	}
	return "", false
}

func (g *Game) all(pred func(*player.Player) bool) bool {
	if len(g.order) == 0 {
		return false
	}
	for _, id := range g.order {
		if !pred(g.players[id]) {
			return false
		}
	}
	return true
}

func (g *Game) applyServer(action rules.Action) error {
	switch action {
	case rules.ActionAllSagesSelected:
		g.bus.Publish(rules.NewEvent(rules.EventAllSagesSelected, g.id, ""))
	case rules.ActionAllPlayersReady:
		return g.placeStartingCards()
	case rules.ActionAllPlayersSetupComplete:
		for _, id := range g.order {
			g.drawHand(g.players[id])
		}
		g.bus.Publish(rules.NewEvent(rules.EventSetupComplete, g.id, ""))
	case rules.ActionGetDayBreakCards:
		evt := rules.NewTeamEvent(rules.EventDayBreak, g.id, "", g.activeTeam, g.dayBreak...)
		g.bus.Publish(evt)
	case rules.ActionDoneDiscardingCards:
		for _, id := range g.teams[g.activeTeam].Members() {
			g.players[id].DiscardHand()
		}
	case rules.ActionDoneDrawingNewHand:
		for _, id := range g.teams[g.activeTeam].Members() {
			g.drawHand(g.players[id])
		}
		g.teams[g.activeTeam].Battlefield().ExpireCounters()
		g.activeTeam = 1 - g.activeTeam
		g.round++
	}
	return nil
}

func (g *Game) afterServer(action rules.Action) error {
	switch action {
	case rules.ActionAllPlayersSetupComplete, rules.ActionDoneDrawingNewHand:
		g.beginTurn()
	case rules.ActionWinGame:
		if g.machine.Phase().Terminal() {
			evt := rules.NewEvent(rules.EventGameWon, g.id, "")
			evt.Team = g.winner
			g.bus.Publish(evt)
			g.logger.Info("game won", zap.Int("team", g.winner), zap.Int("round", g.round))
		}
	}
	return nil
}

func (g *Game) drawHand(p *player.Player) {
	before := len(p.Hand())
	if drawn := p.DrawHand(g.handSize); drawn > 0 {
		evt := rules.NewTeamEvent(rules.EventCardDrawn, g.id, p.ID(), p.TeamIndex())
		evt.Amount = drawn
		g.bus.Publish(evt)
	}
	g.logger.Debug("hand drawn",
		zap.String("player_id", p.ID()),
		zap.Int("before", before),
		zap.Int("after", len(p.Hand())))
}

func (g *Game) beginTurn() {
	g.attacked = make(map[int]bool)
	g.skillUsed = make(map[string]bool)
	g.dayBreak = g.teams[g.activeTeam].Battlefield().TriggerSlots()

	for i, t := range g.teams {
		kind := rules.EventTurnWaiting
		if i == g.activeTeam {
			kind = rules.EventTurnStarted
		}
		for _, id := range t.Members() {
			evt := rules.NewEvent(kind, g.id, id)
			evt.Team = g.activeTeam
			evt.Amount = g.round
			g.bus.Publish(evt)
		}
	}
}

func (g *Game) placeStartingCards() error {
	for i, t := range g.teams {
		decklists := make([]cards.Decklist, 0, t.Size())
		for _, id := range t.Members() {
			decklists = append(decklists, g.players[id].Decklist())
		}
		if err := t.PlaceStartingCards(g.catalog, decklists...); err != nil {
			return err
		}
		g.bus.Publish(rules.NewTeamEvent(rules.EventStartingCardsDone, g.id, "", i, t.Battlefield().OccupiedSlots()...))
	}
	return nil
}

func (g *Game) join(playerID string) error {
	if _, ok := g.players[playerID]; ok {
		return gameerr.New(gameerr.ErrAlreadyJoined, "player %s already joined", playerID)
	}
	if len(g.order) >= g.capacity() {
		return gameerr.New(gameerr.ErrGameFull, "game %s already has %d players", g.id, g.capacity())
	}
	p, err := player.New(playerID, g.shuffle)
	if err != nil {
		return err
	}
	g.players[p.ID()] = p
	g.order = append(g.order, p.ID())
	g.logger.Info("player joined", zap.String("player_id", p.ID()), zap.Int("players", len(g.order)))
	return nil
}

func (g *Game) selectSage(playerID, sage string) error {
	p := g.players[playerID]
	for _, id := range g.order {
		if id != playerID && g.players[id].Sage() == sage {
			return gameerr.New(gameerr.ErrSageTaken, "%s was selected by %s", sage, id)
		}
	}
	if err := p.SelectSage(g.catalog, sage); err != nil {
		return err
	}
	evt := rules.NewEvent(rules.EventSageSelected, g.id, playerID)
	evt.Card = sage
	g.bus.Publish(evt)
	return nil
}

func (g *Game) joinTeam(playerID string, index int) error {
	if index < 0 || index >= len(g.teams) {
		return gameerr.New(gameerr.ErrRange, "team %d does not exist", index)
	}
	p := g.players[playerID]
	if p.TeamIndex() == index {
		return gameerr.New(gameerr.ErrAlreadyJoined, "player %s is already on team %d", playerID, index)
	}
	if err := g.teams[index].AddMember(playerID); err != nil {
		return err
	}
	if old := p.TeamIndex(); old != player.NoTeam {
		g.teams[old].RemoveMember(playerID)
	}
	p.JoinTeam(index, g.teams[index])
	g.bus.Publish(rules.NewTeamEvent(rules.EventTeamJoined, g.id, playerID, index))
	return nil
}

func (g *Game) clearTeams(playerID string) error {
	for _, t := range g.teams {
		t.ClearMembers()
	}
	for _, p := range g.players {
		p.LeaveTeam()
	}
	g.bus.Publish(rules.NewEvent(rules.EventTeamsCleared, g.id, playerID))
	return nil
}

func (g *Game) toggleReady(playerID string) error {
	p := g.players[playerID]
	if p.TeamIndex() == player.NoTeam {
		return gameerr.New(gameerr.ErrNotReady, "player %s has not joined a team", playerID)
	}
	ready := p.ToggleReady()
	evt := rules.NewTeamEvent(rules.EventReadyToggled, g.id, playerID, p.TeamIndex())
	if ready {
		evt.Amount = 1
	}
	g.bus.Publish(evt)
	return nil
}

func (g *Game) chooseWarriors(playerID string, choice [2]string) error {
	p := g.players[playerID]
	t := p.Team()
	if err := t.ChooseWarriors(p, g.catalog, choice[0], choice[1]); err != nil {
		return err
	}
	evt := rules.NewTeamEvent(rules.EventWarriorsChosen, g.id, playerID, p.TeamIndex())
	evt.Metadata = map[string]string{"first": choice[0], "second": choice[1]}
	g.bus.Publish(evt)
	return nil
}

func (g *Game) swapWarriors(playerID string) error {
	p := g.players[playerID]
	if !p.Team().HasChosenWarriors(playerID) {
		return gameerr.New(gameerr.ErrNotReady, "player %s has not chosen warriors", playerID)
	}
	if err := p.Team().SwapWarriors(p); err != nil {
		return err
	}
	g.bus.Publish(rules.NewTeamEvent(rules.EventWarriorsSwapped, g.id, playerID, p.TeamIndex()))
	return nil
}

func (g *Game) finishSetup(playerID string, done bool) error {
	p := g.players[playerID]
	if done && !p.Team().HasChosenWarriors(playerID) {
		return gameerr.New(gameerr.ErrNotReady, "player %s has not chosen warriors", playerID)
	}
	p.SetSetupComplete(done)
	return nil
}

func (g *Game) resolveDayBreak(playerID string, slot int) error {
	i := -1
	for j, s := range g.dayBreak {
		if s == slot {
			i = j
			break
		}
	}
	if i < 0 {
		return gameerr.New(gameerr.ErrNotTriggerable, "slot %d has no pending day-break card", slot)
	}
	outcomes, err := g.teams[g.activeTeam].Battlefield().TriggerAbility(slot, playerID)
	if err != nil {
		return err
	}
	if err := g.resolve(playerID, outcomes); err != nil {
		return err
	}
	g.dayBreak = append(g.dayBreak[:i:i], g.dayBreak[i+1:]...)
	return nil
}

func (g *Game) drawCard(playerID string) error {
	p := g.players[playerID]
	if err := p.DrawCard(); err != nil {
		return err
	}
	evt := rules.NewTeamEvent(rules.EventCardDrawn, g.id, playerID, p.TeamIndex())
	evt.Amount = 1
	g.bus.Publish(evt)
	return nil
}

func (g *Game) swapCards(playerID string, a, b int) error {
	p := g.players[playerID]
	if err := p.Team().Battlefield().SwapCards(a, b); err != nil {
		return err
	}
	g.bus.Publish(rules.NewTeamEvent(rules.EventCardsSwapped, g.id, playerID, p.TeamIndex(), a, b))
	return nil
}

func (g *Game) summon(playerID string, handIndex, slot int) error {
	p := g.players[playerID]
	field := p.Team().Battlefield()
	hand := p.Hand()
	if handIndex < 0 || handIndex >= len(hand) {
		return gameerr.New(gameerr.ErrInvalidIndex, "hand index %d out of range (size %d)", handIndex, len(hand))
	}
	card := hand[handIndex]
	if !card.IsElemental() {
		return gameerr.New(gameerr.ErrInvalidCardType, "%s cannot be summoned", card.Name)
	}
	occupant, err := field.Card(slot)
	if err != nil {
		return err
	}
	if occupant != nil {
		return gameerr.New(gameerr.ErrOccupiedSlot, "slot %d holds %s", slot, occupant.Name)
	}
	row, err := field.Row(slot)
	if err != nil {
		return err
	}
	if !card.CanOccupy(row) {
		return gameerr.New(gameerr.ErrValidation, "%s cannot be placed in the %s row", card.Name, row)
	}

	if _, err := p.RemoveCardFromHand(handIndex); err != nil {
		return err
	}
	if err := field.AddCard(card, slot); err != nil {
		p.AddCardToHand(card)
		return err
	}
	evt := rules.NewTeamEvent(rules.EventCardMoved, g.id, playerID, p.TeamIndex(), slot)
	evt.Card = card.Name
	evt.Metadata = map[string]string{"from": "hand", "to": "field"}
	g.bus.Publish(evt)
	return nil
}

// attack strikes one enemy slot with the card in slot. Each card attacks once per turn.
func (g *Game) attack(playerID string, slot int, targets []int) error {
	p := g.players[playerID]
	own, enemy := p.TeamIndex(), 1-p.TeamIndex()
	if len(targets) != 1 {
		return gameerr.New(gameerr.ErrValidation, "attack needs exactly one target, got %d", len(targets))
	}
	target := targets[0]

	attacker, err := p.Team().Battlefield().Card(slot)
	if err != nil {
		return err
	}
	if attacker == nil {
		return gameerr.New(gameerr.ErrEmptySlot, "slot %d is empty", slot)
	}
	if !attacker.IsElemental() {
		return gameerr.New(gameerr.ErrInvalidCardType, "%s cannot attack", attacker.Name)
	}
	if g.attacked[slot] {
		return gameerr.New(gameerr.ErrAlreadyActed, "%s already attacked this turn", attacker.Name)
	}
	enemyField := g.teams[enemy].Battlefield()
	defender, err := enemyField.Card(target)
	if err != nil {
		return err
	}
	if defender == nil {
		return gameerr.New(gameerr.ErrEmptySlot, "enemy slot %d is empty", target)
	}
	if !defender.IsElemental() {
		return gameerr.New(gameerr.ErrInvalidCardType, "%s cannot be attacked", defender.Name)
	}

	remaining, err := enemyField.AbsorbDamage(target, attacker.Attack+attacker.BoostCount)
	if err != nil {
		return err
	}
	destroyed, err := g.teams[enemy].DamageCardAt(target, remaining)
	if err != nil {
		return err
	}
	g.attacked[slot] = true

	evt := rules.NewTeamEvent(rules.EventCardDamaged, g.id, playerID, enemy, target)
	evt.Amount = remaining
	evt.Card = defender.Name
	evt.Metadata = map[string]string{"attacker": attacker.Name}
	g.bus.Publish(evt)
	if destroyed {
		evt := rules.NewTeamEvent(rules.EventCardDestroyed, g.id, playerID, enemy, target)
		evt.Card = defender.Name
		g.bus.Publish(evt)
		if defender.Kind == cards.KindSage {
			g.winner = own
		}
	}
	return nil
}

// utility plays an item from the hand and discards it once its outcomes resolve.
func (g *Game) utility(playerID string, handIndex int, targets []int) error {
	p := g.players[playerID]
	hand := p.Hand()
	if handIndex < 0 || handIndex >= len(hand) {
		return gameerr.New(gameerr.ErrInvalidIndex, "hand index %d out of range (size %d)", handIndex, len(hand))
	}
	card := hand[handIndex]
	if card.Kind != cards.KindItem || card.Ability == nil {
		return gameerr.New(gameerr.ErrInvalidCardType, "%s is not a usable item", card.Name)
	}
	outcomes, err := activate(card, ability.Context{Actor: playerID, Card: card.Name, Targets: targets})
	if err != nil {
		return err
	}

	rollback := g.Checkpoint()
	if _, err := p.RemoveCardFromHand(handIndex); err != nil {
		return err
	}
	if err := g.resolve(playerID, outcomes); err != nil {
		if rerr := rollback(); rerr != nil {
			return gameerr.Internal("roll back %s: %v", card.Name, rerr)
		}
		return err
	}
	p.AddCardToDiscardPile(card)
	evt := rules.NewTeamEvent(rules.EventCardMoved, g.id, playerID, p.TeamIndex())
	evt.Card = card.Name
	evt.Metadata = map[string]string{"from": "hand", "to": "discard"}
	g.bus.Publish(evt)
	return nil
}

// sageSkill activates the player's sage once per turn.
func (g *Game) sageSkill(playerID string, targets []int) error {
	p := g.players[playerID]
	if g.skillUsed[playerID] {
		return gameerr.New(gameerr.ErrAlreadyActed, "player %s already used their sage skill", playerID)
	}
	field := p.Team().Battlefield()
	slot, sage := -1, (*cards.Card)(nil)
	for _, s := range field.OccupiedSlots() {
		c, _ := field.Card(s)
		if c.Kind == cards.KindSage && c.Name == p.Sage() {
			slot, sage = s, c
			break
		}
	}
	if sage == nil {
		return gameerr.New(gameerr.ErrCardNotFound, "%s is not on the field", p.Sage())
	}
	if sage.Ability == nil {
		return gameerr.New(gameerr.ErrInvalidCardType, "%s has no skill", sage.Name)
	}
	outcomes, err := activate(sage, ability.Context{Actor: playerID, Slot: slot, Card: sage.Name, Targets: targets})
	if err != nil {
		return err
	}
	if err := g.resolve(playerID, outcomes); err != nil {
		return err
	}
	g.skillUsed[playerID] = true
	return nil
}

func activate(card *cards.Card, ctx ability.Context) ([]ability.Outcome, error) {
	outcomes, err := card.Ability.Activate(ctx)
	if err != nil {
		var gerr *gameerr.Error
		if errors.As(err, &gerr) {
			return nil, err
		}
		return nil, gameerr.Internal("card %s ability failed: %v", card.Name, err)
	}
	for i, o := range outcomes {
		if t := ability.TargetOf(o); t != nil && len(t.Positions) == 0 {
			return nil, gameerr.New(gameerr.ErrValidation, "%s needs at least one target slot", card.Name)
		}
		if o.ActingPlayer() == "" {
			if outcomes[i], err = ability.WithActor(o, ctx.Actor); err != nil {
				return nil, gameerr.Internal("card %s: %v", card.Name, err)
			}
		}
	}
	return outcomes, nil
}

// resolve applies ability outcomes as one unit. A sage destroyed by them ends the game:
// losing the enemy sage hands the win to the acting team, losing only its own hands it
// to the enemy.
func (g *Game) resolve(playerID string, outcomes []ability.Outcome) error {
	var before [2]int
	for i, t := range g.teams {
		before[i] = len(t.Removed())
	}
	if err := g.resolver.ResolveAll(g, outcomes); err != nil {
		return err
	}
	if g.winner != NoWinner {
		return nil
	}
	own := g.players[playerID].TeamIndex()
	for _, idx := range []int{1 - own, own} {
		for _, c := range g.teams[idx].Removed()[before[idx]:] {
			if c.Kind == cards.KindSage {
				g.winner = 1 - idx
				g.logger.Info("sage destroyed by ability",
					zap.String("player_id", playerID),
					zap.String("card", c.Name),
					zap.Int("winner", g.winner))
				return nil
			}
		}
	}
	return nil
}

func (g *Game) buy(playerID, name string) error {
	p := g.players[playerID]
	t := p.Team()
	price, err := g.catalog.Price(name)
	if err != nil {
		return err
	}
	if t.Gold() < price {
		return gameerr.New(gameerr.ErrNotEnoughGold, "%s costs %d, team has %d", name, price, t.Gold())
	}
	card, err := g.catalog.Clone(name)
	if err != nil {
		return err
	}
	t.RemoveGold(price)
	p.AddCardToDiscardPile(card)

	evt := rules.NewTeamEvent(rules.EventCardBought, g.id, playerID, p.TeamIndex())
	evt.Card = name
	evt.Amount = price
	g.bus.Publish(evt)
	g.publishGold(playerID, p.TeamIndex(), t)
	return nil
}

// sell removes a card from the hand for half its price, rounded down.
func (g *Game) sell(playerID string, handIndex int) error {
	p := g.players[playerID]
	card, err := p.RemoveCardFromHand(handIndex)
	if err != nil {
		return err
	}
	refund := card.Price / 2
	p.Team().AddGold(refund)

	evt := rules.NewTeamEvent(rules.EventCardSold, g.id, playerID, p.TeamIndex())
	evt.Card = card.Name
	evt.Amount = refund
	g.bus.Publish(evt)
	g.publishGold(playerID, p.TeamIndex(), p.Team())
	return nil
}

func (g *Game) publishGold(playerID string, index int, t *team.Team) {
	evt := rules.NewTeamEvent(rules.EventGoldChanged, g.id, playerID, index)
	evt.Amount = t.Gold()
	g.bus.Publish(evt)
}
