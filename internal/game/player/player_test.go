package player

import (
	"errors"
	"testing"

	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noShuffle keeps decklist order so draws are predictable.
func noShuffle([]*cards.Card) {}

func newPlayer(t *testing.T, sage string) (*Player, *cards.Catalog) {
	t.Helper()
	c, err := cards.DefaultCatalog()
	require.NoError(t, err)
	p, err := New("p1", noShuffle)
	require.NoError(t, err)
	require.NoError(t, p.SelectSage(c, sage))
	return p, c
}

func names(pile []*cards.Card) []string {
	out := make([]string, 0, len(pile))
	for _, c := range pile {
		out = append(out, c.Name)
	}
	return out
}

func TestNewRequiresID(t *testing.T) {
	_, err := New("  ", nil)
	assert.True(t, errors.Is(err, gameerr.ErrValidation))
}

func TestSelectSageBuildsDeck(t *testing.T) {
	p, c := newPlayer(t, "Leaf Sage")
	d, _ := c.Decklist("Leaf Sage")

	assert.Equal(t, "Leaf Sage", p.Sage())
	assert.Equal(t, cards.ElementLeaf, p.Element())
	assert.Equal(t, d.Deck, names(p.Deck()))
	assert.Empty(t, p.Hand())

	assert.Error(t, p.SelectSage(c, "Nobody"))
	assert.Equal(t, "Leaf Sage", p.Sage(), "failed selection keeps the old sage")
}

func TestDrawAndRefillFromDiscard(t *testing.T) {
	p, _ := newPlayer(t, "Twig Sage")
	total := len(p.Deck())

	assert.Equal(t, 5, p.DrawHand(5))
	assert.Len(t, p.Hand(), 5)
	assert.Len(t, p.Deck(), total-5)

	assert.Equal(t, 5, p.DiscardHand())
	assert.Empty(t, p.Hand())
	assert.Len(t, p.DiscardPile(), 5)

	// Deck runs out; the discard pile is shuffled back in.
	for i := 0; i < total; i++ {
		require.NoError(t, p.DrawCard())
	}
	assert.Len(t, p.Hand(), total)
	assert.Empty(t, p.DiscardPile())

	err := p.DrawCard()
	assert.True(t, errors.Is(err, gameerr.ErrEmptyDeck))
	assert.Zero(t, p.DrawHand(total+3))
}

func TestRemoveByIndex(t *testing.T) {
	p, _ := newPlayer(t, "Pebble Sage")
	p.DrawHand(3)
	hand := names(p.Hand())

	card, err := p.RemoveCardFromHand(1)
	require.NoError(t, err)
	assert.Equal(t, hand[1], card.Name)
	assert.Equal(t, []string{hand[0], hand[2]}, names(p.Hand()))

	_, err = p.RemoveCardFromHand(2)
	assert.True(t, errors.Is(err, gameerr.ErrInvalidIndex))
	_, err = p.RemoveCardFromDiscardPile(0)
	assert.True(t, errors.Is(err, gameerr.ErrInvalidIndex))

	p.AddCardToDiscardPile(card)
	got, err := p.RemoveCardFromDiscardPile(0)
	require.NoError(t, err)
	assert.Same(t, card, got)
}

func TestFlags(t *testing.T) {
	p, err := New("p1", nil)
	require.NoError(t, err)
	assert.Equal(t, NoTeam, p.TeamIndex())
	assert.True(t, p.ToggleReady())
	assert.False(t, p.ToggleReady())

	p.ToggleReady()
	p.LeaveTeam()
	assert.False(t, p.Ready())

	p.SetSetupComplete(true)
	assert.True(t, p.SetupComplete())
}

func TestSnapshotRoundTrip(t *testing.T) {
	p, c := newPlayer(t, "Droplet Sage")
	p.DrawHand(3)
	card, err := p.RemoveCardFromHand(0)
	require.NoError(t, err)
	p.AddCardToDiscardPile(card)
	p.ToggleReady()
	p.JoinTeam(1, nil)

	snap := p.Snapshot()
	restored, err := Restore(c, snap, noShuffle)
	require.NoError(t, err)
	restored.JoinTeam(snap.Team, nil)

	assert.Equal(t, snap, restored.Snapshot())
	assert.Equal(t, cards.ElementDroplet, restored.Element())
	assert.Equal(t, p.Decklist(), restored.Decklist())
}
