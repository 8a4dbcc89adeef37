// Package player holds a participant's piles and lobby flags.
package player

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
	"github.com/sagebattle/sage-server-go/internal/game/team"
)

// NoTeam is the team index of a player who has not joined one.
const NoTeam = -1

// Catalog is what a player needs from the card catalog.
type Catalog interface {
	cards.Source
	Decklist(sage string) (cards.Decklist, error)
}

// Shuffler reorders a pile in place.
type Shuffler func([]*cards.Card)

// RandomShuffle is the default Shuffler.
func RandomShuffle(pile []*cards.Card) {
	rand.Shuffle(len(pile), func(i, j int) { pile[i], pile[j] = pile[j], pile[i] })
}

// Player is one participant. Index 0 of the deck is the top card.
type Player struct {
	id        string
	sage      string
	element   cards.Element
	decklist  cards.Decklist
	deck      []*cards.Card
	hand      []*cards.Card
	discard   []*cards.Card
	team      *team.Team
	teamIndex int
	ready     bool
	setupDone bool
	shuffle   Shuffler
}

// New creates a player without a sage or team.
func New(id string, shuffle Shuffler) (*Player, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, gameerr.New(gameerr.ErrValidation, "player id is required")
	}
	if shuffle == nil {
		shuffle = RandomShuffle
	}
	return &Player{id: id, teamIndex: NoTeam, shuffle: shuffle}, nil
}

func (p *Player) ID() string { return p.id }
func (p *Player) Sage() string { return p.sage }
func (p *Player) Element() cards.Element { return p.element }
func (p *Player) Decklist() cards.Decklist { return p.decklist }
func (p *Player) Team() *team.Team { return p.team }
func (p *Player) TeamIndex() int { return p.teamIndex }
func (p *Player) Ready() bool { return p.ready }
func (p *Player) SetupComplete() bool { return p.setupDone }
func (p *Player) HasSage() bool { return p.sage != "" }
func (p *Player) Hand() []*cards.Card { return append([]*cards.Card(nil), p.hand...) }
func (p *Player) Deck() []*cards.Card { return append([]*cards.Card(nil), p.deck...) }
func (p *Player) DiscardPile() []*cards.Card { return append([]*cards.Card(nil), p.discard...) }

// SelectSage picks a sage, replacing any earlier choice, and builds a shuffled deck
// from its decklist.
func (p *Player) SelectSage(c Catalog, sage string) error {
	decklist, err := c.Decklist(sage)
	if err != nil {
		return err
	}
	sageCard, err := c.Clone(decklist.Sage)
	if err != nil {
		return err
	}
	deck := make([]*cards.Card, 0, len(decklist.Deck))
	for _, name := range decklist.Deck {
		card, err := c.Clone(name)
		if err != nil {
			return err
		}
		deck = append(deck, card)
	}
	p.shuffle(deck)

	p.sage = decklist.Sage
	p.element = sageCard.Element
	p.decklist = decklist
	p.deck = deck
	p.hand = nil
	p.discard = nil
	return nil
}

// JoinTeam records the player's team. Roster bookkeeping lives on the team.
func (p *Player) JoinTeam(index int, t *team.Team) {
	p.teamIndex = index
	p.team = t
}

// LeaveTeam clears the player's team and ready flag.
func (p *Player) LeaveTeam() {
	p.teamIndex = NoTeam
	p.team = nil
	p.ready = false
}

// ToggleReady flips the ready flag and returns the new value.
func (p *Player) ToggleReady() bool {
	p.ready = !p.ready
	return p.ready
}

// SetSetupComplete marks setup as finished or reopens it.
func (p *Player) SetSetupComplete(done bool) {
	p.setupDone = done
}

// AddCardToDeck puts a card on the bottom of the deck.
func (p *Player) AddCardToDeck(card *cards.Card) {
	p.deck = append(p.deck, card)
}

// DrawCard moves the top card of the deck to the hand. An empty deck is refilled from
// the shuffled discard pile first.
func (p *Player) DrawCard() error {
	if len(p.deck) == 0 {
		if len(p.discard) == 0 {
			return gameerr.New(gameerr.ErrEmptyDeck, "player %s has no cards to draw", p.id)
		}
		p.deck, p.discard = p.discard, nil
		p.shuffle(p.deck)
	}
	p.hand = append(p.hand, p.deck[0])
	p.deck = p.deck[1:]
	return nil
}

// DrawHand draws until the hand holds size cards or nothing is left to draw, and
// returns how many cards were drawn.
func (p *Player) DrawHand(size int) int {
	drawn := 0
	for len(p.hand) < size {
		if err := p.DrawCard(); err != nil {
			break
		}
		drawn++
	}
	return drawn
}

// DiscardHand moves the whole hand to the discard pile.
func (p *Player) DiscardHand() int {
	n := len(p.hand)
	p.discard = append(p.discard, p.hand...)
	p.hand = nil
	return n
}

func (p *Player) AddCardToHand(card *cards.Card) {
	p.hand = append(p.hand, card)
}

func (p *Player) AddCardToDiscardPile(card *cards.Card) {
	p.discard = append(p.discard, card)
}

// RemoveCardFromHand takes the card at index out of the hand.
func (p *Player) RemoveCardFromHand(index int) (*cards.Card, error) {
	card, rest, err := removeAt(p.hand, index, "hand")
	if err != nil {
		return nil, err
	}
	p.hand = rest
	return card, nil
}

// RemoveCardFromDiscardPile takes the card at index out of the discard pile.
func (p *Player) RemoveCardFromDiscardPile(index int) (*cards.Card, error) {
	card, rest, err := removeAt(p.discard, index, "discard pile")
	if err != nil {
		return nil, err
	}
	p.discard = rest
	return card, nil
}

func removeAt(pile []*cards.Card, index int, name string) (*cards.Card, []*cards.Card, error) {
	if index < 0 || index >= len(pile) {
		return nil, pile, gameerr.New(gameerr.ErrInvalidIndex, "%s index %d out of range (size %d)", name, index, len(pile))
	}
	card := pile[index]
	rest := append(pile[:index:index], pile[index+1:]...)
	return card, rest, nil
}

// Snapshot is the plain-data form of a player.
type Snapshot struct {
	ID            string           `json:"id"`
	Sage          string           `json:"sage,omitempty"`
	Team          int              `json:"team"`
	Ready         bool             `json:"ready"`
	SetupComplete bool             `json:"setup_complete"`
	Deck          []cards.Snapshot `json:"deck"`
	Hand          []cards.Snapshot `json:"hand"`
	Discard       []cards.Snapshot `json:"discard"`
}

// Snapshot captures the player. The team pointer is re-attached by the game.
func (p *Player) Snapshot() Snapshot {
	return Snapshot{
		ID:            p.id,
		Sage:          p.sage,
		Team:          p.teamIndex,
		Ready:         p.ready,
		SetupComplete: p.setupDone,
		Deck:          cards.SnapshotAll(p.deck),
		Hand:          cards.SnapshotAll(p.hand),
		Discard:       cards.SnapshotAll(p.discard),
	}
}

// Restore rebuilds a player from a snapshot. Team is set to NoTeam until the caller
// re-attaches it with JoinTeam.
func Restore(c Catalog, snap Snapshot, shuffle Shuffler) (*Player, error) {
	p, err := New(snap.ID, shuffle)
	if err != nil {
		return nil, err
	}
	if snap.Sage != "" {
		if p.decklist, err = c.Decklist(snap.Sage); err != nil {
			return nil, fmt.Errorf("restore player %s: %w", snap.ID, err)
		}
		sageCard, err := c.Clone(snap.Sage)
		if err != nil {
			return nil, fmt.Errorf("restore player %s: %w", snap.ID, err)
		}
		p.sage = snap.Sage
		p.element = sageCard.Element
	}
	if p.deck, err = cards.RestoreAll(c, snap.Deck); err != nil {
		return nil, fmt.Errorf("restore player %s deck: %w", snap.ID, err)
	}
	if p.hand, err = cards.RestoreAll(c, snap.Hand); err != nil {
		return nil, fmt.Errorf("restore player %s hand: %w", snap.ID, err)
	}
	if p.discard, err = cards.RestoreAll(c, snap.Discard); err != nil {
		return nil, fmt.Errorf("restore player %s discard: %w", snap.ID, err)
	}
	p.ready = snap.Ready
	p.setupDone = snap.SetupComplete
	return p, nil
}
