// Package battlefield models one team's grid of card slots.
//
// Slots are addressed 1..N in row-major, left-to-right order. The neighbor graph is
// derived from the team size alone, so it is rebuilt rather than stored.
package battlefield

import (
	"fmt"
	"sort"

	"github.com/sagebattle/sage-server-go/internal/game/ability"
	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
)

// Direction is one of the eight compass directions between neighboring slots.
type Direction int

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var directionNames = map[Direction]string{
	North:     "N",
	NorthEast: "NE",
	East:      "E",
	SouthEast: "SE",
	South:     "S",
	SouthWest: "SW",
	West:      "W",
	NorthWest: "NW",
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DIRECTION_%d", int(d))
}

// Opposite returns the direction pointing back.
func (d Direction) Opposite() Direction {
	return (d + 4) % 8
}

// Directions lists every direction in clockwise order starting at North.
var Directions = []Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

// offsets maps a direction to a (row, column) delta. Row 0 is the front lane.
var offsets = map[Direction][2]int{
	North:     {-1, 0},
	NorthEast: {-1, 1},
	East:      {0, 1},
	SouthEast: {1, 1},
	South:     {1, 0},
	SouthWest: {1, -1},
	West:      {0, -1},
	NorthWest: {-1, -1},
}

// layouts holds the occupied grid columns of each lane, front to back, per team size.
// Two-member teams are two 1-2-3 diamonds side by side.
var layouts = map[int][][]int{
	1: {
		{1},
		{0, 2},
		{0, 1, 2},
	},
	2: {
		{1, 4},
		{0, 2, 3, 5},
		{0, 1, 2, 3, 4, 5},
	},
}

var lanes = []cards.Row{cards.RowFront, cards.RowMiddle, cards.RowBack}

type node struct {
	slot      int
	row       int
	col       int
	card      *cards.Card
	neighbors map[Direction]int
}

// Battlefield holds one team's slots. It is owned by exactly one team and is not safe
// for concurrent use; the game serialises access.
type Battlefield struct {
	teamSize int
	nodes    []*node
}

// New builds an empty battlefield for a team of one or two members.
func New(teamSize int) (*Battlefield, error) {
	layout, ok := layouts[teamSize]
	if !ok {
		return nil, gameerr.New(gameerr.ErrValidation, "team size must be 1 or 2, got %d", teamSize)
	}

	b := &Battlefield{teamSize: teamSize}
	grid := make(map[[2]int]int)
	for row, cols := range layout {
		for _, col := range cols {
			n := &node{slot: len(b.nodes) + 1, row: row, col: col}
			b.nodes = append(b.nodes, n)
			grid[[2]int{row, col}] = n.slot
		}
	}

	for _, n := range b.nodes {
		n.neighbors = make(map[Direction]int)
		for _, d := range Directions {
			off := offsets[d]
			if slot, ok := grid[[2]int{n.row + off[0], n.col + off[1]}]; ok {
				n.neighbors[d] = slot
			}
		}
	}
	return b, nil
}

// TeamSize returns the member count the battlefield was built for.
func (b *Battlefield) TeamSize() int { return b.teamSize }

// SlotCount returns N, the highest valid slot.
func (b *Battlefield) SlotCount() int { return len(b.nodes) }

func (b *Battlefield) node(slot int) (*node, error) {
	if slot < 1 || slot > len(b.nodes) {
		return nil, gameerr.New(gameerr.ErrRange, "slot %d outside 1..%d", slot, len(b.nodes))
	}
	return b.nodes[slot-1], nil
}

func (b *Battlefield) occupied(slot int) (*node, error) {
	n, err := b.node(slot)
	if err != nil {
		return nil, err
	}
	if n.card == nil {
		return nil, gameerr.New(gameerr.ErrEmptySlot, "slot %d is empty", slot)
	}
	return n, nil
}

func (b *Battlefield) elemental(slot int) (*node, error) {
	n, err := b.occupied(slot)
	if err != nil {
		return nil, err
	}
	if !n.card.IsElemental() {
		return nil, gameerr.New(gameerr.ErrInvalidCardType, "card %s in slot %d has no combat stats", n.card.Name, slot)
	}
	return n, nil
}

// Card returns the card in slot, or nil when the slot is empty.
func (b *Battlefield) Card(slot int) (*cards.Card, error) {
	n, err := b.node(slot)
	if err != nil {
		return nil, err
	}
	return n.card, nil
}

// Row returns the lane a slot belongs to.
func (b *Battlefield) Row(slot int) (cards.Row, error) {
	n, err := b.node(slot)
	if err != nil {
		return "", err
	}
	return lanes[n.row], nil
}

// Neighbors returns the adjacent slots of slot keyed by direction.
func (b *Battlefield) Neighbors(slot int) (map[Direction]int, error) {
	n, err := b.node(slot)
	if err != nil {
		return nil, err
	}
	out := make(map[Direction]int, len(n.neighbors))
	for d, s := range n.neighbors {
		out[d] = s
	}
	return out, nil
}

// Neighbor returns the slot adjacent to slot in direction d.
func (b *Battlefield) Neighbor(slot int, d Direction) (int, bool) {
	n, err := b.node(slot)
	if err != nil {
		return 0, false
	}
	s, ok := n.neighbors[d]
	return s, ok
}

// AddCard places card in an empty slot.
func (b *Battlefield) AddCard(card *cards.Card, slot int) error {
	if card == nil {
		return gameerr.New(gameerr.ErrValidation, "cannot place a nil card")
	}
	n, err := b.node(slot)
	if err != nil {
		return err
	}
	if n.card != nil {
		return gameerr.New(gameerr.ErrOccupiedSlot, "slot %d holds %s", slot, n.card.Name)
	}
	n.card = card
	return nil
}

// RemoveCard empties slot and hands its card back with counters reset.
func (b *Battlefield) RemoveCard(slot int) (*cards.Card, error) {
	n, err := b.occupied(slot)
	if err != nil {
		return nil, err
	}
	card := n.card
	n.card = nil
	card.ResetCounters()
	return card, nil
}

// SwapCards exchanges the occupants of two distinct, occupied slots.
func (b *Battlefield) SwapCards(slotA, slotB int) error {
	if slotA == slotB {
		return gameerr.New(gameerr.ErrSameSlot, "cannot swap slot %d with itself", slotA)
	}
	a, err := b.occupied(slotA)
	if err != nil {
		return err
	}
	c, err := b.occupied(slotB)
	if err != nil {
		return err
	}
	a.card, c.card = c.card, a.card
	return nil
}

// Damage adds damage to the card in slot, never past its health, and reports whether
// the card is now destroyed. Removing a destroyed card is up to the caller.
func (b *Battlefield) Damage(slot, amount int) (bool, error) {
	if amount < 0 {
		return false, gameerr.New(gameerr.ErrInvalidAmount, "damage amount %d is negative", amount)
	}
	n, err := b.elemental(slot)
	if err != nil {
		return false, err
	}
	n.card.DamageCount = min(n.card.DamageCount+amount, n.card.Health)
	return n.card.IsDestroyed(), nil
}

// ReduceDamage lowers the damage counter by amount, stopping at zero.
func (b *Battlefield) ReduceDamage(slot, amount int) error {
	if amount < 0 {
		return gameerr.New(gameerr.ErrInvalidAmount, "reduce amount %d is negative", amount)
	}
	n, err := b.elemental(slot)
	if err != nil {
		return err
	}
	n.card.DamageCount = max(n.card.DamageCount-amount, 0)
	return nil
}

// ClearDamage resets the damage counter of the card in slot.
func (b *Battlefield) ClearDamage(slot int) error {
	n, err := b.elemental(slot)
	if err != nil {
		return err
	}
	n.card.DamageCount = 0
	return nil
}

// AddShield stacks shield counters. There is no cap.
func (b *Battlefield) AddShield(slot, amount int) error {
	if amount < 0 {
		return gameerr.New(gameerr.ErrInvalidAmount, "shield amount %d is negative", amount)
	}
	n, err := b.elemental(slot)
	if err != nil {
		return err
	}
	n.card.ShieldCount += amount
	return nil
}

// AddBoost stacks boost counters. There is no cap.
func (b *Battlefield) AddBoost(slot, amount int) error {
	if amount < 0 {
		return gameerr.New(gameerr.ErrInvalidAmount, "boost amount %d is negative", amount)
	}
	n, err := b.elemental(slot)
	if err != nil {
		return err
	}
	n.card.BoostCount += amount
	return nil
}

// RetainShield keeps the card's shields through the next ExpireCounters.
func (b *Battlefield) RetainShield(slot int) error {
	n, err := b.elemental(slot)
	if err != nil {
		return err
	}
	n.card.RetainShield = true
	return nil
}

// RetainBoost keeps the card's boosts through the next ExpireCounters.
func (b *Battlefield) RetainBoost(slot int) error {
	n, err := b.elemental(slot)
	if err != nil {
		return err
	}
	n.card.RetainBoost = true
	return nil
}

// AbsorbDamage spends shield counters against incoming damage and returns what is
// left to apply.
func (b *Battlefield) AbsorbDamage(slot, amount int) (int, error) {
	if amount < 0 {
		return 0, gameerr.New(gameerr.ErrInvalidAmount, "damage amount %d is negative", amount)
	}
	n, err := b.elemental(slot)
	if err != nil {
		return 0, err
	}
	absorbed := min(n.card.ShieldCount, amount)
	n.card.ShieldCount -= absorbed
	return amount - absorbed, nil
}

// ExpireCounters clears shields and boosts at the end of a round. A retained counter
// survives once and its retain flag is spent.
func (b *Battlefield) ExpireCounters() {
	for _, n := range b.nodes {
		if n.card == nil {
			continue
		}
		if n.card.RetainShield {
			n.card.RetainShield = false
		} else {
			n.card.ShieldCount = 0
		}
		if n.card.RetainBoost {
			n.card.RetainBoost = false
		} else {
			n.card.BoostCount = 0
		}
	}
}

// OccupiedSlots lists every slot holding a card, ascending.
func (b *Battlefield) OccupiedSlots() []int {
	var out []int
	for _, n := range b.nodes {
		if n.card != nil {
			out = append(out, n.slot)
		}
	}
	return out
}

// TriggerSlots lists occupied slots whose card triggers at round start, front to back
// and left to right. Slot numbering already follows that order.
func (b *Battlefield) TriggerSlots() []int {
	var out []int
	for _, n := range b.nodes {
		if n.card != nil && n.card.TriggersAtRoundStart {
			out = append(out, n.slot)
		}
	}
	return out
}

// TriggerAbility activates the day-break ability of the card in slot on behalf of actor.
func (b *Battlefield) TriggerAbility(slot int, actor string) ([]ability.Outcome, error) {
	n, err := b.occupied(slot)
	if err != nil {
		return nil, err
	}
	if !n.card.TriggersAtRoundStart {
		return nil, gameerr.New(gameerr.ErrNotTriggerable, "card %s in slot %d has no day-break ability", n.card.Name, slot)
	}
	if n.card.Ability == nil {
		return nil, gameerr.Internal("card %s triggers at round start but has no ability", n.card.Name)
	}
	outcomes, err := n.card.Ability.Activate(ability.Context{Actor: actor, Slot: slot, Card: n.card.Name})
	if err != nil {
		return nil, gameerr.Internal("card %s ability failed: %v", n.card.Name, err)
	}
	for i, o := range outcomes {
		if o.ActingPlayer() == "" {
			if outcomes[i], err = ability.WithActor(o, actor); err != nil {
				return nil, gameerr.Internal("card %s: %v", n.card.Name, err)
			}
		}
	}
	return outcomes, nil
}

// SlotSnapshot is one occupied slot in a snapshot.
type SlotSnapshot struct {
	Slot int            `json:"slot"`
	Card cards.Snapshot `json:"card"`
}

// Snapshot is the plain-data form of a battlefield. Topology is not included.
type Snapshot struct {
	TeamSize int            `json:"team_size"`
	Slots    []SlotSnapshot `json:"slots"`
}

// Snapshot captures occupancy and counters in slot order.
func (b *Battlefield) Snapshot() Snapshot {
	snap := Snapshot{TeamSize: b.teamSize, Slots: []SlotSnapshot{}}
	for _, n := range b.nodes {
		if n.card != nil {
			snap.Slots = append(snap.Slots, SlotSnapshot{Slot: n.slot, Card: n.card.Snapshot()})
		}
	}
	return snap
}

// Restore rebuilds a battlefield from a snapshot, re-deriving topology from team size.
func Restore(src cards.Source, snap Snapshot) (*Battlefield, error) {
	b, err := New(snap.TeamSize)
	if err != nil {
		return nil, err
	}
	slots := append([]SlotSnapshot(nil), snap.Slots...)
	sort.Slice(slots, func(i, j int) bool { return slots[i].Slot < slots[j].Slot })
	for _, s := range slots {
		card, err := cards.Restore(src, s.Card)
		if err != nil {
			return nil, fmt.Errorf("restore slot %d: %w", s.Slot, err)
		}
		if err := b.AddCard(card, s.Slot); err != nil {
			return nil, fmt.Errorf("restore slot %d: %w", s.Slot, err)
		}
	}
	return b, nil
}
