package effects

import (
	"errors"
	"testing"

	"github.com/sagebattle/sage-server-go/internal/game/ability"
	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
	"github.com/sagebattle/sage-server-go/internal/game/player"
	"github.com/sagebattle/sage-server-go/internal/game/rules"
	"github.com/sagebattle/sage-server-go/internal/game/team"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type table struct {
	catalog *cards.Catalog
	players map[string]*player.Player
	teams   [2]*team.Team
}

func (tb *table) Checkpoint() func() error {
	var teams [2]team.Snapshot
	for i, t := range tb.teams {
		teams[i] = t.Snapshot()
	}
	players := make(map[string]player.Snapshot, len(tb.players))
	for id, p := range tb.players {
		players[id] = p.Snapshot()
	}
	return func() error {
		for i, ts := range teams {
			t, err := team.Restore(tb.catalog, ts)
			if err != nil {
				return err
			}
			tb.teams[i] = t
		}
		for id, ps := range players {
			p, err := player.Restore(tb.catalog, ps, func([]*cards.Card) {})
			if err != nil {
				return err
			}
			p.JoinTeam(ps.Team, tb.teams[ps.Team])
			tb.players[id] = p
		}
		return nil
	}
}

func (tb *table) Player(id string) (Player, error) {
	p, ok := tb.players[id]
	if !ok {
		return nil, gameerr.New(gameerr.ErrPlayerNotFound, "%s", id)
	}
	return p, nil
}

func (tb *table) TeamFor(id string, side ability.TeamSide) (int, *team.Team, error) {
	p, ok := tb.players[id]
	if !ok {
		return 0, nil, gameerr.New(gameerr.ErrPlayerNotFound, "%s", id)
	}
	idx := p.TeamIndex()
	if side == ability.SideEnemy {
		idx = 1 - idx
	}
	return idx, tb.teams[idx], nil
}

type fixture struct {
	table    *table
	resolver *Resolver
	alice    *player.Player
	bob      *player.Player
	catalog  *cards.Catalog
	events   []rules.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := cards.DefaultCatalog()
	require.NoError(t, err)

	f := &fixture{catalog: c, table: &table{catalog: c, players: map[string]*player.Player{}}}
	for i, id := range []string{"alice", "bob"} {
		tm, err := team.New(1)
		require.NoError(t, err)
		require.NoError(t, tm.AddMember(id))
		p, err := player.New(id, func([]*cards.Card) {})
		require.NoError(t, err)
		p.JoinTeam(i, tm)
		f.table.teams[i] = tm
		f.table.players[id] = p
	}
	f.alice, f.bob = f.table.players["alice"], f.table.players["bob"]

	bus := rules.NewEventBus()
	bus.Subscribe(func(e rules.Event) { f.events = append(f.events, e) })
	f.resolver = NewResolver("g1", bus, zaptest.NewLogger(t))
	return f
}

func (f *fixture) place(t *testing.T, teamIdx int, name string, slot int) *cards.Card {
	t.Helper()
	card, err := f.catalog.Clone(name)
	require.NoError(t, err)
	require.NoError(t, f.table.teams[teamIdx].Battlefield().AddCard(card, slot))
	return card
}

func (f *fixture) clone(t *testing.T, name string) *cards.Card {
	t.Helper()
	card, err := f.catalog.Clone(name)
	require.NoError(t, err)
	return card
}

func (f *fixture) eventTypes() []rules.EventType {
	out := make([]rules.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

func TestDealDamageDestroysAndRemoves(t *testing.T) {
	f := newFixture(t)
	target := &cards.Card{Name: "Boulder", Kind: cards.KindElemental, Element: cards.ElementPebble, Health: 5}
	require.NoError(t, f.table.teams[1].Battlefield().AddCard(target, 2))

	err := f.resolver.Resolve(f.table, ability.DealDamage{
		Actor:  ability.Actor{Player: "alice"},
		Target: ability.Enemy(2),
		Amount: ability.Int(5),
	})
	require.NoError(t, err)

	slot, _ := f.table.teams[1].Battlefield().Card(2)
	assert.Nil(t, slot)
	removed := f.table.teams[1].Removed()
	require.Len(t, removed, 1)
	assert.Same(t, target, removed[0])
	assert.Equal(t, []rules.EventType{rules.EventCardDamaged, rules.EventCardDestroyed}, f.eventTypes())
	assert.Equal(t, 1, f.events[1].Team)
}

func TestDealDamageAllOrNothing(t *testing.T) {
	f := newFixture(t)
	sprout := f.place(t, 1, "Twig Sprout", 1)

	err := f.resolver.Resolve(f.table, ability.DealDamage{
		Actor:  ability.Actor{Player: "alice"},
		Target: ability.Enemy(1, 6),
		Amount: ability.Int(1),
	})
	assert.True(t, errors.Is(err, gameerr.ErrEmptySlot))
	assert.Zero(t, sprout.DamageCount)
	assert.Empty(t, f.events)
}

func TestCollectGold(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.resolver.Resolve(f.table, ability.CollectGold{Actor: ability.Actor{Player: "bob"}, Amount: ability.Int(4)}))
	assert.Equal(t, 4, f.table.teams[1].Gold())
	assert.Zero(t, f.table.teams[0].Gold())
	require.Len(t, f.events, 1)
	assert.Equal(t, 4, f.events[0].Amount)
}

func TestMissingFieldsAreInternal(t *testing.T) {
	actor := ability.Actor{Player: "alice"}
	cases := map[string]ability.Outcome{
		"gold without amount":       ability.CollectGold{Actor: actor},
		"damage without target":     ability.DealDamage{Actor: actor, Amount: ability.Int(1)},
		"damage without amount":     ability.DealDamage{Actor: actor, Target: ability.Enemy(1)},
		"reduce without amount":     ability.ReduceDamage{Actor: actor, Target: ability.Self(1)},
		"clear without target":      ability.RemoveAllDamage{Actor: actor},
		"field to discard two":      ability.FieldToDiscard{Actor: actor, Target: ability.Self(1, 2)},
		"field to discard enemy":    ability.FieldToDiscard{Actor: actor, Target: ability.Enemy(1)},
		"discard to field no index": ability.DiscardToField{Actor: actor, Target: ability.Self(1)},
		"hand to field no target":   ability.HandToField{Actor: actor, HandIndex: []int{0}},
		"field to hand no target":   ability.FieldToHand{Actor: actor},
		"swap one slot":             ability.SwapField{Actor: actor, Target: ability.Self(1)},
		"draw without amount":       ability.Draw{Actor: actor},
		"discard to hand empty":     ability.DiscardToHand{Actor: actor},
		"hand to discard empty":     ability.HandToDiscard{Actor: actor},
		"shield without amount":     ability.AddShield{Actor: actor, Target: ability.Self(1)},
		"boost without target":      ability.AddBoost{Actor: actor, Amount: ability.Int(1)},
		"keep shield no target":     ability.KeepShield{Actor: actor},
		"negative amount":           ability.Draw{Actor: actor, Amount: ability.Int(-1)},
	}
	for name, o := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			err := f.resolver.Resolve(f.table, o)
			require.Error(t, err)
			assert.True(t, gameerr.IsInternal(err), "got %v", err)
		})
	}
}

func TestUnknownPlayer(t *testing.T) {
	f := newFixture(t)
	err := f.resolver.Resolve(f.table, ability.Draw{Actor: ability.Actor{Player: "carol"}, Amount: ability.Int(1)})
	assert.True(t, errors.Is(err, gameerr.ErrPlayerNotFound))
}

func TestFieldToDiscardAndBack(t *testing.T) {
	f := newFixture(t)
	f.place(t, 0, "Leaf Bud", 3)
	actor := ability.Actor{Player: "alice"}

	require.NoError(t, f.resolver.Resolve(f.table, ability.FieldToDiscard{Actor: actor, Target: ability.Self(3)}))
	slot, _ := f.table.teams[0].Battlefield().Card(3)
	assert.Nil(t, slot)
	require.Len(t, f.alice.DiscardPile(), 1)

	require.NoError(t, f.resolver.Resolve(f.table, ability.DiscardToField{Actor: actor, Target: ability.Self(1), DiscardIndex: []int{0}}))
	slot, _ = f.table.teams[0].Battlefield().Card(1)
	require.NotNil(t, slot)
	assert.Equal(t, "Leaf Bud", slot.Name)
	assert.Empty(t, f.alice.DiscardPile())
}

func TestDiscardToFieldRequiresElemental(t *testing.T) {
	f := newFixture(t)
	f.alice.AddCardToDiscardPile(f.clone(t, "Gold Pouch"))

	err := f.resolver.Resolve(f.table, ability.DiscardToField{Actor: ability.Actor{Player: "alice"}, Target: ability.Self(1), DiscardIndex: []int{0}})
	assert.True(t, errors.Is(err, gameerr.ErrInvalidCardType))
	assert.Len(t, f.alice.DiscardPile(), 1, "card stays in the pile")

	err = f.resolver.Resolve(f.table, ability.DiscardToField{Actor: ability.Actor{Player: "alice"}, Target: ability.Self(1), DiscardIndex: []int{3}})
	assert.True(t, errors.Is(err, gameerr.ErrInvalidIndex))
}

func TestHandToFieldAndBack(t *testing.T) {
	f := newFixture(t)
	f.alice.AddCardToHand(f.clone(t, "Gold Pouch"))
	f.alice.AddCardToHand(f.clone(t, "Twig Sprout"))
	f.place(t, 0, "Leaf Bud", 2)
	actor := ability.Actor{Player: "alice"}

	err := f.resolver.Resolve(f.table, ability.HandToField{Actor: actor, Target: ability.Self(2), HandIndex: []int{1}})
	assert.True(t, errors.Is(err, gameerr.ErrOccupiedSlot))
	assert.Len(t, f.alice.Hand(), 2)

	require.NoError(t, f.resolver.Resolve(f.table, ability.HandToField{Actor: actor, Target: ability.Self(4), HandIndex: []int{1}}))
	assert.Equal(t, []string{"Gold Pouch"}, handNames(f.alice))

	bud, _ := f.table.teams[0].Battlefield().Card(2)
	bud.DamageCount = 1
	require.NoError(t, f.resolver.Resolve(f.table, ability.FieldToHand{Actor: actor, Target: ability.Self(2)}))
	assert.Equal(t, []string{"Gold Pouch", "Leaf Bud"}, handNames(f.alice))
	assert.Zero(t, bud.DamageCount, "counters reset when leaving the field")
}

func handNames(p *player.Player) []string {
	var out []string
	for _, c := range p.Hand() {
		out = append(out, c.Name)
	}
	return out
}

func TestSwapFieldUsesOwnBattlefield(t *testing.T) {
	f := newFixture(t)
	a := f.place(t, 0, "Twig Sprout", 1)
	b := f.place(t, 0, "Twig Sage", 5)
	f.place(t, 1, "Pebble Pup", 1)

	require.NoError(t, f.resolver.Resolve(f.table, ability.SwapField{Actor: ability.Actor{Player: "alice"}, Target: ability.Enemy(1, 5)}))
	got, _ := f.table.teams[0].Battlefield().Card(1)
	assert.Same(t, b, got)
	got, _ = f.table.teams[0].Battlefield().Card(5)
	assert.Same(t, a, got)
}

func TestDrawAndPileMoves(t *testing.T) {
	f := newFixture(t)
	actor := ability.Actor{Player: "alice"}
	for _, name := range []string{"Leaf Bud", "Gold Pouch", "Twig Sprout"} {
		f.alice.AddCardToDeck(f.clone(t, name))
	}

	require.NoError(t, f.resolver.Resolve(f.table, ability.Draw{Actor: actor, Amount: ability.Int(3)}))
	assert.Equal(t, []string{"Leaf Bud", "Gold Pouch", "Twig Sprout"}, handNames(f.alice))

	require.NoError(t, f.resolver.Resolve(f.table, ability.HandToDiscard{Actor: actor, HandIndex: []int{0, 2}}))
	assert.Equal(t, []string{"Gold Pouch"}, handNames(f.alice))
	discard := f.alice.DiscardPile()
	require.Len(t, discard, 2)
	assert.Equal(t, "Twig Sprout", discard[0].Name, "highest index moves first")
	assert.Equal(t, "Leaf Bud", discard[1].Name)

	require.NoError(t, f.resolver.Resolve(f.table, ability.DiscardToHand{Actor: actor, DiscardIndex: []int{1, 0}}))
	assert.Equal(t, []string{"Gold Pouch", "Leaf Bud", "Twig Sprout"}, handNames(f.alice))

	err := f.resolver.Resolve(f.table, ability.HandToDiscard{Actor: actor, HandIndex: []int{0, 0}})
	assert.True(t, errors.Is(err, gameerr.ErrInvalidIndex))
	assert.Len(t, f.alice.Hand(), 3)

	err = f.resolver.Resolve(f.table, ability.Draw{Actor: actor, Amount: ability.Int(1)})
	assert.True(t, errors.Is(err, gameerr.ErrEmptyDeck))
}

func TestCountersAndDamageRepair(t *testing.T) {
	f := newFixture(t)
	actor := ability.Actor{Player: "alice"}
	sage := f.place(t, 0, "Twig Sage", 5)
	sage.DamageCount = 6

	require.NoError(t, f.resolver.Resolve(f.table, ability.ReduceDamage{Actor: actor, Target: ability.Self(5), Amount: ability.Int(2)}))
	assert.Equal(t, 4, sage.DamageCount)

	require.NoError(t, f.resolver.Resolve(f.table, ability.RemoveAllDamage{Actor: actor, Target: ability.Self(5)}))
	assert.Zero(t, sage.DamageCount)

	require.NoError(t, f.resolver.Resolve(f.table, ability.AddShield{Actor: actor, Target: ability.Self(5), Amount: ability.Int(2)}))
	require.NoError(t, f.resolver.Resolve(f.table, ability.AddBoost{Actor: actor, Target: ability.Self(5), Amount: ability.Int(3)}))
	require.NoError(t, f.resolver.Resolve(f.table, ability.KeepBoost{Actor: actor, Target: ability.Self(5)}))
	assert.Equal(t, 2, sage.ShieldCount)
	assert.Equal(t, 3, sage.BoostCount)

	f.table.teams[0].Battlefield().ExpireCounters()
	assert.Zero(t, sage.ShieldCount)
	assert.Equal(t, 3, sage.BoostCount)
	assert.False(t, sage.RetainBoost)

	require.NoError(t, f.resolver.Resolve(f.table, ability.KeepShield{Actor: actor, Target: ability.Self(5)}))
	assert.True(t, sage.RetainShield)
}

func TestEmptyTargetIsValidation(t *testing.T) {
	f := newFixture(t)
	actor := ability.Actor{Player: "alice"}
	for _, o := range []ability.Outcome{
		ability.KeepBoost{Actor: actor, Target: ability.Self()},
		ability.RemoveAllDamage{Actor: actor, Target: ability.Self()},
		ability.DealDamage{Actor: actor, Target: ability.Enemy(), Amount: ability.Int(1)},
	} {
		err := f.resolver.Resolve(f.table, o)
		assert.True(t, errors.Is(err, gameerr.ErrValidation), "%s: got %v", o.Kind(), err)
	}
}

func TestPlacementHonoursRowRequirement(t *testing.T) {
	f := newFixture(t)
	actor := ability.Actor{Player: "alice"}
	f.alice.AddCardToHand(f.clone(t, "Twig Lumberjack"))
	f.alice.AddCardToDiscardPile(f.clone(t, "Twig Lumberjack"))

	err := f.resolver.Resolve(f.table, ability.HandToField{Actor: actor, Target: ability.Self(1), HandIndex: []int{0}})
	assert.True(t, errors.Is(err, gameerr.ErrValidation), "got %v", err)
	err = f.resolver.Resolve(f.table, ability.DiscardToField{Actor: actor, Target: ability.Self(1), DiscardIndex: []int{0}})
	assert.True(t, errors.Is(err, gameerr.ErrValidation), "got %v", err)
	assert.Len(t, f.alice.Hand(), 1)
	assert.Len(t, f.alice.DiscardPile(), 1)

	require.NoError(t, f.resolver.Resolve(f.table, ability.HandToField{Actor: actor, Target: ability.Self(2), HandIndex: []int{0}}))
	require.NoError(t, f.resolver.Resolve(f.table, ability.DiscardToField{Actor: actor, Target: ability.Self(4), DiscardIndex: []int{0}}))
}

func TestResolveAllRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	f.place(t, 1, "Pebble Pup", 1)
	actor := ability.Actor{Player: "alice"}

	err := f.resolver.ResolveAll(f.table, []ability.Outcome{
		ability.CollectGold{Actor: actor, Amount: ability.Int(3)},
		ability.DealDamage{Actor: actor, Target: ability.Enemy(1), Amount: ability.Int(1)},
		ability.DealDamage{Actor: actor, Target: ability.Enemy(2), Amount: ability.Int(1)},
	})
	assert.True(t, errors.Is(err, gameerr.ErrEmptySlot), "got %v", err)
	assert.Zero(t, f.table.teams[0].Gold())
	pup, err := f.table.teams[1].Battlefield().Card(1)
	require.NoError(t, err)
	require.NotNil(t, pup)
	assert.Zero(t, pup.DamageCount)
	assert.Empty(t, f.events, "no event is published for a rolled back batch")

	err = f.resolver.ResolveAll(f.table, []ability.Outcome{
		ability.CollectGold{Actor: actor, Amount: ability.Int(2)},
		ability.Draw{Actor: actor},
	})
	assert.True(t, gameerr.IsInternal(err))
	assert.Zero(t, f.table.teams[0].Gold())
}

func TestResolveAllPublishesAfterSuccess(t *testing.T) {
	f := newFixture(t)
	actor := ability.Actor{Player: "alice"}
	require.NoError(t, f.resolver.ResolveAll(f.table, []ability.Outcome{
		ability.CollectGold{Actor: actor, Amount: ability.Int(1)},
		ability.CollectGold{Actor: actor, Amount: ability.Int(2)},
	}))
	assert.Equal(t, 3, f.table.teams[0].Gold())
	assert.Equal(t, []rules.EventType{rules.EventGoldChanged, rules.EventGoldChanged}, f.eventTypes())
}
