package team

import (
	"errors"
	"testing"

	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	id      string
	element cards.Element
	deck    cards.Decklist
	added   []*cards.Card
}

func (m *member) ID() string                     { return m.id }
func (m *member) Element() cards.Element         { return m.element }
func (m *member) Decklist() cards.Decklist       { return m.deck }
func (m *member) AddCardToDeck(card *cards.Card) { m.added = append(m.added, card) }

func catalog(t *testing.T) *cards.Catalog {
	t.Helper()
	c, err := cards.DefaultCatalog()
	require.NoError(t, err)
	return c
}

func newMember(t *testing.T, c *cards.Catalog, id, sage string) *member {
	t.Helper()
	d, err := c.Decklist(sage)
	require.NoError(t, err)
	s, err := c.Clone(sage)
	require.NoError(t, err)
	return &member{id: id, element: s.Element, deck: d}
}

func cardName(t *testing.T, tm *Team, slot int) string {
	t.Helper()
	card, err := tm.Battlefield().Card(slot)
	require.NoError(t, err)
	if card == nil {
		return ""
	}
	return card.Name
}

func TestGoldSaturates(t *testing.T) {
	single, err := New(1)
	require.NoError(t, err)
	single.AddGold(50)
	assert.Equal(t, 12, single.Gold())
	single.RemoveGold(20)
	assert.Zero(t, single.Gold())

	pair, err := New(2)
	require.NoError(t, err)
	pair.AddGold(19)
	pair.AddGold(5)
	assert.Equal(t, 20, pair.Gold())
}

func TestMembersBoundedBySize(t *testing.T) {
	tm, err := New(2)
	require.NoError(t, err)
	require.NoError(t, tm.AddMember("a"))
	assert.True(t, errors.Is(tm.AddMember("a"), gameerr.ErrAlreadyJoined))
	require.NoError(t, tm.AddMember("b"))
	assert.True(t, tm.IsFull())
	assert.True(t, errors.Is(tm.AddMember("c"), gameerr.ErrTeamFull))
	assert.Equal(t, []string{"a", "b"}, tm.Members())

	tm.ClearMembers()
	assert.Empty(t, tm.Members())
}

func TestPlaceStartingCardsSingle(t *testing.T) {
	c := catalog(t)
	tm, err := New(1)
	require.NoError(t, err)
	d, err := c.Decklist("Twig Sage")
	require.NoError(t, err)

	require.NoError(t, tm.PlaceStartingCards(c, d))
	for _, slot := range []int{1, 2, 3} {
		assert.Equal(t, "Twig Sprout", cardName(t, tm, slot))
	}
	assert.Equal(t, "Twig Sage", cardName(t, tm, 5))

	a, _ := tm.Battlefield().Card(1)
	b, _ := tm.Battlefield().Card(2)
	assert.NotSame(t, a, b, "each slot gets its own instance")

	err = tm.PlaceStartingCards(c, d)
	assert.True(t, errors.Is(err, gameerr.ErrOccupiedSlot))
}

func TestPlaceStartingCardsPair(t *testing.T) {
	c := catalog(t)
	tm, err := New(2)
	require.NoError(t, err)
	left, _ := c.Decklist("Twig Sage")
	right, _ := c.Decklist("Droplet Sage")

	require.NoError(t, tm.PlaceStartingCards(c, left, right))
	for _, slot := range []int{1, 3, 4} {
		assert.Equal(t, "Twig Sprout", cardName(t, tm, slot))
	}
	for _, slot := range []int{2, 5, 6} {
		assert.Equal(t, "Droplet Drip", cardName(t, tm, slot))
	}
	assert.Equal(t, "Twig Sage", cardName(t, tm, 8))
	assert.Equal(t, "Droplet Sage", cardName(t, tm, 11))

	assert.True(t, errors.Is(tm.PlaceStartingCards(c, left), gameerr.ErrValidation))
}

func TestChooseWarriorsSingle(t *testing.T) {
	c := catalog(t)
	tm, _ := New(1)
	m := newMember(t, c, "p1", "Pebble Sage")
	require.NoError(t, tm.PlaceStartingCards(c, m.deck))

	require.NoError(t, tm.ChooseWarriors(m, c, "Slate Sentinel", "Cobble Brute"))
	assert.Equal(t, "Slate Sentinel", cardName(t, tm, 4))
	assert.Equal(t, "Cobble Brute", cardName(t, tm, 6))
	require.Len(t, m.added, 1)
	assert.Equal(t, "Gravel Scout", m.added[0].Name)

	err := tm.ChooseWarriors(m, c, "Gravel Scout", "Cobble Brute")
	assert.True(t, errors.Is(err, gameerr.ErrAlreadyChosen))

	require.NoError(t, tm.SwapWarriors(m))
	assert.Equal(t, "Cobble Brute", cardName(t, tm, 4))
	assert.Equal(t, "Slate Sentinel", cardName(t, tm, 6))
}

func TestChooseWarriorsInvalidChoices(t *testing.T) {
	c := catalog(t)
	tm, _ := New(1)
	m := newMember(t, c, "p1", "Leaf Sage")
	require.NoError(t, tm.PlaceStartingCards(c, m.deck))

	assert.True(t, errors.Is(tm.ChooseWarriors(m, c, "Fern Dancer", "Fern Dancer"), gameerr.ErrInvalidChoice))
	assert.True(t, errors.Is(tm.ChooseWarriors(m, c, "Fern Dancer", "Tide Caller"), gameerr.ErrInvalidChoice))
	assert.False(t, tm.HasChosenWarriors("p1"))
}

func TestChooseWarriorsPairSides(t *testing.T) {
	c := catalog(t)
	tm, _ := New(2)
	twig := newMember(t, c, "p1", "Twig Sage")
	drop := newMember(t, c, "p2", "Droplet Sage")
	require.NoError(t, tm.PlaceStartingCards(c, twig.deck, drop.deck))

	require.NoError(t, tm.ChooseWarriors(twig, c, "Bramble Knight", "Thorn Archer"))
	assert.Equal(t, "Bramble Knight", cardName(t, tm, 7))
	assert.Equal(t, "Thorn Archer", cardName(t, tm, 9))

	require.NoError(t, tm.ChooseWarriors(drop, c, "Mist Stalker", "Tide Caller"))
	assert.Equal(t, "Mist Stalker", cardName(t, tm, 10))
	assert.Equal(t, "Tide Caller", cardName(t, tm, 12))

	require.NoError(t, tm.SwapWarriors(drop))
	assert.Equal(t, "Tide Caller", cardName(t, tm, 10))
	assert.Equal(t, "Bramble Knight", cardName(t, tm, 7), "other half untouched")
}

func TestChooseWarriorsPairNoMatchingSage(t *testing.T) {
	c := catalog(t)
	tm, _ := New(2)
	twig := newMember(t, c, "p1", "Twig Sage")
	drop := newMember(t, c, "p2", "Droplet Sage")
	leaf := newMember(t, c, "p3", "Leaf Sage")
	require.NoError(t, tm.PlaceStartingCards(c, twig.deck, drop.deck))
	before := tm.Battlefield().Snapshot()

	err := tm.ChooseWarriors(leaf, c, "Fern Dancer", "Moss Warden")
	assert.True(t, errors.Is(err, gameerr.ErrValidation))
	assert.Equal(t, before, tm.Battlefield().Snapshot())
	assert.False(t, tm.HasChosenWarriors("p3"))
	assert.Empty(t, leaf.added)

	assert.True(t, errors.Is(tm.SwapWarriors(leaf), gameerr.ErrValidation))
}

func TestDamageCardAtRemovesDestroyed(t *testing.T) {
	c := catalog(t)
	tm, _ := New(1)
	d, _ := c.Decklist("Twig Sage")
	require.NoError(t, tm.PlaceStartingCards(c, d))

	destroyed, err := tm.DamageCardAt(1, 1)
	require.NoError(t, err)
	assert.False(t, destroyed)
	assert.Empty(t, tm.Removed())

	destroyed, err = tm.DamageCardAt(1, 5)
	require.NoError(t, err)
	assert.True(t, destroyed)
	assert.Equal(t, "", cardName(t, tm, 1))
	require.Len(t, tm.Removed(), 1)
	assert.Equal(t, "Twig Sprout", tm.Removed()[0].Name)
	assert.Zero(t, tm.Removed()[0].DamageCount)
}

func TestTeamSnapshotRoundTrip(t *testing.T) {
	c := catalog(t)
	tm, _ := New(1)
	m := newMember(t, c, "p1", "Twig Sage")
	require.NoError(t, tm.AddMember("p1"))
	require.NoError(t, tm.PlaceStartingCards(c, m.deck))
	require.NoError(t, tm.ChooseWarriors(m, c, "Root Guard", "Thorn Archer"))
	tm.AddGold(7)
	_, err := tm.DamageCardAt(2, 10)
	require.NoError(t, err)
	_, err = tm.DamageCardAt(5, 3)
	require.NoError(t, err)

	snap := tm.Snapshot()
	restored, err := Restore(c, snap)
	require.NoError(t, err)
	assert.Equal(t, snap, restored.Snapshot())
	assert.True(t, restored.HasChosenWarriors("p1"))
	assert.Equal(t, 7, restored.Gold())
}

func TestResetReplacesBattlefield(t *testing.T) {
	c := catalog(t)
	tm, _ := New(1)
	d, _ := c.Decklist("Leaf Sage")
	require.NoError(t, tm.PlaceStartingCards(c, d))
	old := tm.Battlefield()

	require.NoError(t, tm.Reset())
	assert.NotSame(t, old, tm.Battlefield())
	assert.Empty(t, tm.Battlefield().OccupiedSlots())
	require.NoError(t, tm.PlaceStartingCards(c, d))
}
