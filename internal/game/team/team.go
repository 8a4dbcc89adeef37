// Package team owns a team's battlefield, gold and the placement rules that decide
// where chosen cards land.
package team

import (
	"fmt"
	"sort"

	"github.com/sagebattle/sage-server-go/internal/game/battlefield"
	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
)

var maxGoldBySize = map[int]int{1: 12, 2: 20}

// Sage and warrior slots for each half of a two-member battlefield.
const (
	leftSageSlot  = 8
	rightSageSlot = 11
)

var (
	singleStarterSlots = []int{1, 2, 3}
	singleSageSlot     = 5
	singleWarriorSlots = [2]int{4, 6}

	pairStarterSlots = [2][]int{{1, 3, 4}, {2, 5, 6}}
	pairSageSlots    = [2]int{leftSageSlot, rightSageSlot}
	pairWarriorSlots = map[int][2]int{
		leftSageSlot:  {7, 9},
		rightSageSlot: {10, 12},
	}
)

// Member is the part of a player the placement rules need.
type Member interface {
	ID() string
	Element() cards.Element
	Decklist() cards.Decklist
	AddCardToDeck(card *cards.Card)
}

// Team is one side of a match.
type Team struct {
	size    int
	maxGold int
	gold    int
	members []string
	field   *battlefield.Battlefield
	removed []*cards.Card
	chosen  map[string]bool
}

// New creates an empty team for one or two members.
func New(size int) (*Team, error) {
	maxGold, ok := maxGoldBySize[size]
	if !ok {
		return nil, gameerr.New(gameerr.ErrValidation, "team size must be 1 or 2, got %d", size)
	}
	field, err := battlefield.New(size)
	if err != nil {
		return nil, err
	}
	return &Team{
		size:    size,
		maxGold: maxGold,
		field:   field,
		chosen:  make(map[string]bool),
	}, nil
}

func (t *Team) Size() int { return t.size }
func (t *Team) Gold() int { return t.gold }
func (t *Team) MaxGold() int { return t.maxGold }
func (t *Team) Battlefield() *battlefield.Battlefield { return t.field }

// Members returns the member IDs in join order.
func (t *Team) Members() []string {
	return append([]string(nil), t.members...)
}

// Removed returns the cards destroyed on this team's field, oldest first.
func (t *Team) Removed() []*cards.Card {
	return append([]*cards.Card(nil), t.removed...)
}

// HasMember reports whether id belongs to the team.
func (t *Team) HasMember(id string) bool {
	return t.memberIndex(id) >= 0
}

func (t *Team) memberIndex(id string) int {
	for i, m := range t.members {
		if m == id {
			return i
		}
	}
	return -1
}

// IsFull reports whether every seat is taken.
func (t *Team) IsFull() bool {
	return len(t.members) >= t.size
}

// AddMember seats a player.
func (t *Team) AddMember(id string) error {
	if t.HasMember(id) {
		return gameerr.New(gameerr.ErrAlreadyJoined, "player %s is already on the team", id)
	}
	if t.IsFull() {
		return gameerr.New(gameerr.ErrTeamFull, "team already has %d members", t.size)
	}
	t.members = append(t.members, id)
	return nil
}

// RemoveMember unseats a player. Unknown IDs are ignored.
func (t *Team) RemoveMember(id string) {
	if i := t.memberIndex(id); i >= 0 {
		t.members = append(t.members[:i:i], t.members[i+1:]...)
	}
}

// ClearMembers empties the roster.
func (t *Team) ClearMembers() {
	t.members = nil
}

// AddGold adds gold, saturating at the team maximum.
func (t *Team) AddGold(amount int) {
	t.gold = clampGold(t.gold+amount, t.maxGold)
}

// RemoveGold spends gold, saturating at zero.
func (t *Team) RemoveGold(amount int) {
	t.gold = clampGold(t.gold-amount, t.maxGold)
}

func clampGold(v, maxGold int) int {
	return min(max(v, 0), maxGold)
}

// Reset replaces the battlefield and clears gold, choices and removed cards. The
// roster is kept.
func (t *Team) Reset() error {
	field, err := battlefield.New(t.size)
	if err != nil {
		return err
	}
	t.field = field
	t.gold = 0
	t.removed = nil
	t.chosen = make(map[string]bool)
	return nil
}

// PlaceStartingCards seeds starters and sages from one decklist per member.
func (t *Team) PlaceStartingCards(src cards.Source, decklists ...cards.Decklist) error {
	if len(decklists) != t.size {
		return gameerr.New(gameerr.ErrValidation, "expected %d decklists, got %d", t.size, len(decklists))
	}

	place := func(name string, slots ...int) error {
		for _, slot := range slots {
			card, err := src.Clone(name)
			if err != nil {
				return err
			}
			if err := t.field.AddCard(card, slot); err != nil {
				return err
			}
		}
		return nil
	}

	if t.size == 1 {
		if err := place(decklists[0].Starter, singleStarterSlots...); err != nil {
			return err
		}
		return place(decklists[0].Sage, singleSageSlot)
	}
	for i, d := range decklists {
		if err := place(d.Starter, pairStarterSlots[i]...); err != nil {
			return err
		}
		if err := place(d.Sage, pairSageSlots[i]); err != nil {
			return err
		}
	}
	return nil
}

// HasChosenWarriors reports whether the player already placed their warriors.
func (t *Team) HasChosenWarriors(id string) bool {
	return t.chosen[id]
}

// ChooseWarriors places the player's two chosen warriors on their half of the field and
// moves the remaining decklist warriors into the player's deck.
func (t *Team) ChooseWarriors(m Member, src cards.Source, choice1, choice2 string) error {
	if t.chosen[m.ID()] {
		return gameerr.New(gameerr.ErrAlreadyChosen, "player %s already chose warriors", m.ID())
	}
	if choice1 == choice2 {
		return gameerr.New(gameerr.ErrInvalidChoice, "warrior %s chosen twice", choice1)
	}
	deck := m.Decklist()
	for _, c := range []string{choice1, choice2} {
		if !deck.HasWarrior(c) {
			return gameerr.New(gameerr.ErrInvalidChoice, "%s is not one of %s's warriors", c, deck.Sage)
		}
	}

	first, err := src.Clone(choice1)
	if err != nil {
		return err
	}
	second, err := src.Clone(choice2)
	if err != nil {
		return err
	}

	slots := singleWarriorSlots
	if t.size == 2 {
		if slots, err = t.sideFor(first.Element); err != nil {
			return err
		}
	}
	for _, s := range slots {
		if occupant, _ := t.field.Card(s); occupant != nil {
			return gameerr.New(gameerr.ErrOccupiedSlot, "warrior slot %d holds %s", s, occupant.Name)
		}
	}
	if err := t.field.AddCard(first, slots[0]); err != nil {
		return err
	}
	if err := t.field.AddCard(second, slots[1]); err != nil {
		return err
	}

	for _, w := range deck.Warriors {
		if w == choice1 || w == choice2 {
			continue
		}
		card, err := src.Clone(w)
		if err != nil {
			return err
		}
		m.AddCardToDeck(card)
	}
	t.chosen[m.ID()] = true
	return nil
}

// SwapWarriors exchanges the player's two warriors.
func (t *Team) SwapWarriors(m Member) error {
	slots := singleWarriorSlots
	if t.size == 2 {
		var err error
		if slots, err = t.sideFor(m.Element()); err != nil {
			return err
		}
	}
	return t.field.SwapCards(slots[0], slots[1])
}

// sideFor picks the warrior slots of the half whose sage shares element, checking the
// left sage first.
func (t *Team) sideFor(element cards.Element) ([2]int, error) {
	for _, sageSlot := range pairSageSlots {
		sage, err := t.field.Card(sageSlot)
		if err != nil {
			return [2]int{}, err
		}
		if sage != nil && sage.Element == element {
			return pairWarriorSlots[sageSlot], nil
		}
	}
	return [2]int{}, gameerr.New(gameerr.ErrValidation, "element %q matches neither sage", element)
}

// DamageCardAt damages a slot and moves the card to the removed list if it is destroyed.
func (t *Team) DamageCardAt(slot, amount int) (bool, error) {
	destroyed, err := t.field.Damage(slot, amount)
	if err != nil || !destroyed {
		return false, err
	}
	card, err := t.field.RemoveCard(slot)
	if err != nil {
		return false, err
	}
	t.removed = append(t.removed, card)
	return true, nil
}

// Snapshot is the plain-data form of a team.
type Snapshot struct {
	Size    int                  `json:"size"`
	Gold    int                  `json:"gold"`
	Members []string             `json:"members"`
	Field   battlefield.Snapshot `json:"field"`
	Removed []cards.Snapshot     `json:"removed"`
	Chosen  []string             `json:"chosen"`
}

// Snapshot captures the team.
func (t *Team) Snapshot() Snapshot {
	chosen := make([]string, 0, len(t.chosen))
	for id := range t.chosen {
		chosen = append(chosen, id)
	}
	sort.Strings(chosen)
	return Snapshot{
		Size:    t.size,
		Gold:    t.gold,
		Members: append([]string{}, t.members...),
		Field:   t.field.Snapshot(),
		Removed: cards.SnapshotAll(t.removed),
		Chosen:  chosen,
	}
}

// Restore rebuilds a team from a snapshot.
func Restore(src cards.Source, snap Snapshot) (*Team, error) {
	t, err := New(snap.Size)
	if err != nil {
		return nil, err
	}
	if snap.Field.TeamSize != snap.Size {
		return nil, fmt.Errorf("restore team: field size %d does not match team size %d", snap.Field.TeamSize, snap.Size)
	}
	if t.field, err = battlefield.Restore(src, snap.Field); err != nil {
		return nil, fmt.Errorf("restore team: %w", err)
	}
	if t.removed, err = cards.RestoreAll(src, snap.Removed); err != nil {
		return nil, fmt.Errorf("restore team: %w", err)
	}
	t.gold = clampGold(snap.Gold, t.maxGold)
	for _, id := range snap.Members {
		if err := t.AddMember(id); err != nil {
			return nil, fmt.Errorf("restore team: %w", err)
		}
	}
	for _, id := range snap.Chosen {
		t.chosen[id] = true
	}
	return t, nil
}
