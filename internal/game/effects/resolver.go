// Package effects applies ability outcomes to players, teams and battlefields.
package effects

import (
	"sort"

	"github.com/sagebattle/sage-server-go/internal/game/ability"
	"github.com/sagebattle/sage-server-go/internal/game/battlefield"
	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
	"github.com/sagebattle/sage-server-go/internal/game/rules"
	"github.com/sagebattle/sage-server-go/internal/game/team"
	"go.uber.org/zap"
)

// Player is the capability surface the resolver needs from a player.
type Player interface {
	ID() string
	DrawCard() error
	Hand() []*cards.Card
	DiscardPile() []*cards.Card
	AddCardToHand(card *cards.Card)
	RemoveCardFromHand(index int) (*cards.Card, error)
	AddCardToDiscardPile(card *cards.Card)
	RemoveCardFromDiscardPile(index int) (*cards.Card, error)
	Team() *team.Team
}

// Table looks up the participants of a game.
type Table interface {
	Player(id string) (Player, error)
	// TeamFor resolves a side relative to the player and returns the team with its index.
	TeamFor(playerID string, side ability.TeamSide) (int, *team.Team, error)
	// Checkpoint captures the table. The returned function puts it back.
	Checkpoint() (rollback func() error)
}

// Resolver dispatches outcomes to the mutation they describe. It holds no game state;
// every call names the table it works on. Calls must not overlap.
type Resolver struct {
	gameID string
	bus    *rules.EventBus
	logger *zap.Logger

	batching bool
	pending  []rules.Event
}

// NewResolver creates a resolver that reports changes on bus. A nil bus is allowed.
func NewResolver(gameID string, bus *rules.EventBus, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{gameID: gameID, bus: bus, logger: logger}
}

// ResolveAll applies outcomes in order as one unit. When an outcome fails the table is
// rolled back to where it was before the first one and no event is published.
func (r *Resolver) ResolveAll(table Table, outcomes []ability.Outcome) error {
	rollback := table.Checkpoint()
	r.batching, r.pending = true, nil
	err := r.resolveAll(table, outcomes)
	pending := r.pending
	r.batching, r.pending = false, nil

	if err != nil {
		if rerr := rollback(); rerr != nil {
			return gameerr.Internal("roll back after %v: %v", err, rerr)
		}
		return err
	}
	for _, evt := range pending {
		r.bus.Publish(evt)
	}
	return nil
}

func (r *Resolver) resolveAll(table Table, outcomes []ability.Outcome) error {
	for _, o := range outcomes {
		if err := r.Resolve(table, o); err != nil {
			return err
		}
	}
	return nil
}

// Resolve applies one outcome.
func (r *Resolver) Resolve(table Table, o ability.Outcome) error {
	if o == nil {
		return gameerr.Internal("nil outcome")
	}
	p, err := table.Player(o.ActingPlayer())
	if err != nil {
		return err
	}

	r.logger.Debug("resolving outcome",
		zap.String("game_id", r.gameID),
		zap.String("player_id", p.ID()),
		zap.String("kind", string(o.Kind())))

	switch v := o.(type) {
	case ability.CollectGold:
		return r.collectGold(table, p, v)
	case ability.DealDamage:
		return r.dealDamage(table, p, v)
	case ability.ReduceDamage:
		return r.reduceDamage(table, p, v)
	case ability.RemoveAllDamage:
		return r.removeAllDamage(table, p, v)
	case ability.FieldToDiscard:
		return r.fieldToDiscard(table, p, v)
	case ability.DiscardToField:
		return r.discardToField(table, p, v)
	case ability.HandToField:
		return r.handToField(table, p, v)
	case ability.FieldToHand:
		return r.fieldToHand(table, p, v)
	case ability.SwapField:
		return r.swapField(table, p, v)
	case ability.Draw:
		return r.draw(p, v)
	case ability.DiscardToHand:
		return r.discardToHand(table, p, v)
	case ability.HandToDiscard:
		return r.handToDiscard(table, p, v)
	case ability.AddShield:
		return r.addCounters(table, p, v.Kind(), v.Target, v.Amount)
	case ability.AddBoost:
		return r.addCounters(table, p, v.Kind(), v.Target, v.Amount)
	case ability.KeepShield:
		return r.keepCounters(table, p, v.Kind(), v.Target)
	case ability.KeepBoost:
		return r.keepCounters(table, p, v.Kind(), v.Target)
	default:
		return gameerr.Internal("no resolver for outcome %T", o)
	}
}

func (r *Resolver) publish(evt rules.Event) {
	if r.batching {
		r.pending = append(r.pending, evt)
		return
	}
	r.bus.Publish(evt)
}

func requireAmount(kind ability.Kind, amount *int) (int, error) {
	if amount == nil {
		return 0, gameerr.Internal("%s outcome has no amount", kind)
	}
	if *amount < 0 {
		return 0, gameerr.Internal("%s outcome has negative amount %d", kind, *amount)
	}
	return *amount, nil
}

func requireTarget(kind ability.Kind, target *ability.FieldTarget) (*ability.FieldTarget, error) {
	if target == nil {
		return nil, gameerr.Internal("%s outcome has no field target", kind)
	}
	if len(target.Positions) == 0 {
		return nil, gameerr.New(gameerr.ErrValidation, "%s needs at least one target slot", kind)
	}
	if target.Side != ability.SideSelf && target.Side != ability.SideEnemy {
		return nil, gameerr.Internal("%s outcome has unknown side %q", kind, target.Side)
	}
	return target, nil
}

// requireOwnSlot checks for exactly one slot on the acting player's side.
func requireOwnSlot(kind ability.Kind, target *ability.FieldTarget) (int, error) {
	t, err := requireTarget(kind, target)
	if err != nil {
		return 0, err
	}
	if len(t.Positions) != 1 {
		return 0, gameerr.Internal("%s outcome needs exactly one slot, got %d", kind, len(t.Positions))
	}
	if t.Side != ability.SideSelf {
		return 0, gameerr.Internal("%s outcome must target the acting player's own field", kind)
	}
	return t.Positions[0], nil
}

// checkElementals verifies every slot holds a card with combat stats before anything
// is mutated, so multi-slot outcomes apply fully or not at all.
func checkElementals(field *battlefield.Battlefield, slots []int) error {
	for _, s := range slots {
		card, err := field.Card(s)
		if err != nil {
			return err
		}
		if card == nil {
			return gameerr.New(gameerr.ErrEmptySlot, "slot %d is empty", s)
		}
		if !card.IsElemental() {
			return gameerr.New(gameerr.ErrInvalidCardType, "card %s in slot %d has no combat stats", card.Name, s)
		}
	}
	return nil
}

func (r *Resolver) collectGold(table Table, p Player, o ability.CollectGold) error {
	amount, err := requireAmount(o.Kind(), o.Amount)
	if err != nil {
		return err
	}
	idx, t, err := table.TeamFor(p.ID(), ability.SideSelf)
	if err != nil {
		return err
	}
	t.AddGold(amount)
	evt := rules.NewEvent(rules.EventGoldChanged, r.gameID, p.ID())
	evt.Team = idx
	evt.Amount = t.Gold()
	r.publish(evt)
	return nil
}

func (r *Resolver) dealDamage(table Table, p Player, o ability.DealDamage) error {
	amount, err := requireAmount(o.Kind(), o.Amount)
	if err != nil {
		return err
	}
	target, err := requireTarget(o.Kind(), o.Target)
	if err != nil {
		return err
	}
	idx, t, err := table.TeamFor(p.ID(), target.Side)
	if err != nil {
		return err
	}
	if err := checkElementals(t.Battlefield(), target.Positions); err != nil {
		return err
	}
	for _, slot := range target.Positions {
		card, _ := t.Battlefield().Card(slot)
		if card == nil {
			// destroyed earlier in this outcome
			continue
		}
		destroyed, err := t.DamageCardAt(slot, amount)
		if err != nil {
			return err
		}
		evt := rules.NewTeamEvent(rules.EventCardDamaged, r.gameID, p.ID(), idx, slot)
		evt.Card = card.Name
		evt.Amount = amount
		r.publish(evt)
		if destroyed {
			evt := rules.NewTeamEvent(rules.EventCardDestroyed, r.gameID, p.ID(), idx, slot)
			evt.Card = card.Name
			r.publish(evt)
		}
	}
	return nil
}

func (r *Resolver) reduceDamage(table Table, p Player, o ability.ReduceDamage) error {
	amount, err := requireAmount(o.Kind(), o.Amount)
	if err != nil {
		return err
	}
	target, err := requireTarget(o.Kind(), o.Target)
	if err != nil {
		return err
	}
	idx, t, err := table.TeamFor(p.ID(), target.Side)
	if err != nil {
		return err
	}
	if err := checkElementals(t.Battlefield(), target.Positions); err != nil {
		return err
	}
	for _, slot := range target.Positions {
		if err := t.Battlefield().ReduceDamage(slot, amount); err != nil {
			return err
		}
	}
	evt := rules.NewTeamEvent(rules.EventCardDamaged, r.gameID, p.ID(), idx, target.Positions...)
	evt.Amount = -amount
	r.publish(evt)
	return nil
}

func (r *Resolver) removeAllDamage(table Table, p Player, o ability.RemoveAllDamage) error {
	target, err := requireTarget(o.Kind(), o.Target)
	if err != nil {
		return err
	}
	idx, t, err := table.TeamFor(p.ID(), target.Side)
	if err != nil {
		return err
	}
	if err := checkElementals(t.Battlefield(), target.Positions); err != nil {
		return err
	}
	for _, slot := range target.Positions {
		if err := t.Battlefield().ClearDamage(slot); err != nil {
			return err
		}
	}
	r.publish(rules.NewTeamEvent(rules.EventCardDamaged, r.gameID, p.ID(), idx, target.Positions...))
	return nil
}

func (r *Resolver) moved(p Player, idx int, card, from, to string, slots ...int) {
	evt := rules.NewTeamEvent(rules.EventCardMoved, r.gameID, p.ID(), idx, slots...)
	evt.Card = card
	evt.Metadata = map[string]string{"from": from, "to": to}
	r.publish(evt)
}

func (r *Resolver) fieldToDiscard(table Table, p Player, o ability.FieldToDiscard) error {
	slot, err := requireOwnSlot(o.Kind(), o.Target)
	if err != nil {
		return err
	}
	idx, t, err := table.TeamFor(p.ID(), ability.SideSelf)
	if err != nil {
		return err
	}
	card, err := t.Battlefield().RemoveCard(slot)
	if err != nil {
		return err
	}
	p.AddCardToDiscardPile(card)
	r.moved(p, idx, card.Name, "field", "discard", slot)
	return nil
}

// placeFromPile moves one elemental card from a pile onto an empty own slot.
func (r *Resolver) placeFromPile(table Table, p Player, kind ability.Kind, target *ability.FieldTarget, indices []int, from string, pile []*cards.Card, take func(int) (*cards.Card, error)) error {
	slot, err := requireOwnSlot(kind, target)
	if err != nil {
		return err
	}
	if len(indices) != 1 {
		return gameerr.Internal("%s outcome needs exactly one %s index, got %d", kind, from, len(indices))
	}
	index := indices[0]
	if index < 0 || index >= len(pile) {
		return gameerr.New(gameerr.ErrInvalidIndex, "%s index %d out of range 0..%d", from, index, len(pile)-1)
	}
	if !pile[index].IsElemental() {
		return gameerr.New(gameerr.ErrInvalidCardType, "%s is not an elemental card", pile[index].Name)
	}

	idx, t, err := table.TeamFor(p.ID(), ability.SideSelf)
	if err != nil {
		return err
	}
	occupant, err := t.Battlefield().Card(slot)
	if err != nil {
		return err
	}
	if occupant != nil {
		return gameerr.New(gameerr.ErrOccupiedSlot, "slot %d holds %s", slot, occupant.Name)
	}
	row, err := t.Battlefield().Row(slot)
	if err != nil {
		return err
	}
	if !pile[index].CanOccupy(row) {
		return gameerr.New(gameerr.ErrValidation, "%s cannot be placed in the %s row", pile[index].Name, row)
	}

	card, err := take(index)
	if err != nil {
		return err
	}
	if err := t.Battlefield().AddCard(card, slot); err != nil {
		return gameerr.Internal("place %s after checks: %v", card.Name, err)
	}
	r.moved(p, idx, card.Name, from, "field", slot)
	return nil
}

func (r *Resolver) discardToField(table Table, p Player, o ability.DiscardToField) error {
	return r.placeFromPile(table, p, o.Kind(), o.Target, o.DiscardIndex, "discard", p.DiscardPile(), p.RemoveCardFromDiscardPile)
}

func (r *Resolver) handToField(table Table, p Player, o ability.HandToField) error {
	return r.placeFromPile(table, p, o.Kind(), o.Target, o.HandIndex, "hand", p.Hand(), p.RemoveCardFromHand)
}

func (r *Resolver) fieldToHand(table Table, p Player, o ability.FieldToHand) error {
	slot, err := requireOwnSlot(o.Kind(), o.Target)
	if err != nil {
		return err
	}
	idx, t, err := table.TeamFor(p.ID(), ability.SideSelf)
	if err != nil {
		return err
	}
	card, err := t.Battlefield().RemoveCard(slot)
	if err != nil {
		return err
	}
	p.AddCardToHand(card)
	r.moved(p, idx, card.Name, "field", "hand", slot)
	return nil
}

func (r *Resolver) swapField(table Table, p Player, o ability.SwapField) error {
	if o.Target == nil {
		return gameerr.Internal("%s outcome has no field target", o.Kind())
	}
	if len(o.Target.Positions) != 2 {
		return gameerr.Internal("%s outcome needs exactly two slots, got %d", o.Kind(), len(o.Target.Positions))
	}
	idx, t, err := table.TeamFor(p.ID(), ability.SideSelf)
	if err != nil {
		return err
	}
	a, b := o.Target.Positions[0], o.Target.Positions[1]
	if err := t.Battlefield().SwapCards(a, b); err != nil {
		return err
	}
	r.publish(rules.NewTeamEvent(rules.EventCardsSwapped, r.gameID, p.ID(), idx, a, b))
	return nil
}

func (r *Resolver) draw(p Player, o ability.Draw) error {
	amount, err := requireAmount(o.Kind(), o.Amount)
	if err != nil {
		return err
	}
	for i := 0; i < amount; i++ {
		if err := p.DrawCard(); err != nil {
			return err
		}
	}
	evt := rules.NewEvent(rules.EventCardDrawn, r.gameID, p.ID())
	evt.Amount = amount
	r.publish(evt)
	return nil
}

// descending validates indices against a pile size and orders them high to low so
// earlier removals do not shift later ones.
func descending(kind ability.Kind, from string, indices []int, size int) ([]int, error) {
	if len(indices) == 0 {
		return nil, gameerr.Internal("%s outcome lists no %s indices", kind, from)
	}
	seen := make(map[int]bool, len(indices))
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= size {
			return nil, gameerr.New(gameerr.ErrInvalidIndex, "%s index %d out of range 0..%d", from, i, size-1)
		}
		if seen[i] {
			return nil, gameerr.New(gameerr.ErrInvalidIndex, "%s index %d listed twice", from, i)
		}
		seen[i] = true
		out = append(out, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}

func (r *Resolver) discardToHand(table Table, p Player, o ability.DiscardToHand) error {
	indices, err := descending(o.Kind(), "discard", o.DiscardIndex, len(p.DiscardPile()))
	if err != nil {
		return err
	}
	idx, _, err := table.TeamFor(p.ID(), ability.SideSelf)
	if err != nil {
		return err
	}
	for _, i := range indices {
		card, err := p.RemoveCardFromDiscardPile(i)
		if err != nil {
			return err
		}
		p.AddCardToHand(card)
		r.moved(p, idx, card.Name, "discard", "hand")
	}
	return nil
}

func (r *Resolver) handToDiscard(table Table, p Player, o ability.HandToDiscard) error {
	indices, err := descending(o.Kind(), "hand", o.HandIndex, len(p.Hand()))
	if err != nil {
		return err
	}
	idx, _, err := table.TeamFor(p.ID(), ability.SideSelf)
	if err != nil {
		return err
	}
	for _, i := range indices {
		card, err := p.RemoveCardFromHand(i)
		if err != nil {
			return err
		}
		p.AddCardToDiscardPile(card)
		r.moved(p, idx, card.Name, "hand", "discard")
	}
	return nil
}

func (r *Resolver) addCounters(table Table, p Player, kind ability.Kind, target *ability.FieldTarget, amount *int) error {
	n, err := requireAmount(kind, amount)
	if err != nil {
		return err
	}
	if target, err = requireTarget(kind, target); err != nil {
		return err
	}
	idx, t, err := table.TeamFor(p.ID(), target.Side)
	if err != nil {
		return err
	}
	field := t.Battlefield()
	if err := checkElementals(field, target.Positions); err != nil {
		return err
	}
	add := field.AddShield
	if kind == ability.KindAddBoost {
		add = field.AddBoost
	}
	for _, slot := range target.Positions {
		if err := add(slot, n); err != nil {
			return err
		}
	}
	evt := rules.NewTeamEvent(rules.EventCountersAdded, r.gameID, p.ID(), idx, target.Positions...)
	evt.Amount = n
	evt.Metadata = map[string]string{"counter": string(kind)}
	r.publish(evt)
	return nil
}

func (r *Resolver) keepCounters(table Table, p Player, kind ability.Kind, target *ability.FieldTarget) error {
	target, err := requireTarget(kind, target)
	if err != nil {
		return err
	}
	_, t, err := table.TeamFor(p.ID(), target.Side)
	if err != nil {
		return err
	}
	field := t.Battlefield()
	if err := checkElementals(field, target.Positions); err != nil {
		return err
	}
	keep := field.RetainShield
	if kind == ability.KindKeepBoost {
		keep = field.RetainBoost
	}
	for _, slot := range target.Positions {
		if err := keep(slot); err != nil {
			return err
		}
	}
	return nil
}
