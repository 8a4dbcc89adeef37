package cards

import (
	"github.com/sagebattle/sage-server-go/internal/game/ability"
)

// Kind is the category of a card.
type Kind string

const (
	KindSage      Kind = "SAGE"
	KindWarrior   Kind = "WARRIOR"
	KindElemental Kind = "ELEMENTAL"
	KindItem      Kind = "ITEM"
)

// Element is the affinity of an elemental card. Items have none.
type Element string

const (
	ElementNone    Element = ""
	ElementTwig    Element = "twig"
	ElementPebble  Element = "pebble"
	ElementLeaf    Element = "leaf"
	ElementDroplet Element = "droplet"
)

// Row is a depth lane of a battlefield.
type Row string

const (
	RowFront  Row = "front"
	RowMiddle Row = "middle"
	RowBack   Row = "back"
)

// Ability produces outcomes when a card is activated.
type Ability interface {
	Activate(ctx ability.Context) ([]ability.Outcome, error)
}

// AbilityFunc adapts a Go function to Ability.
type AbilityFunc func(ctx ability.Context) ([]ability.Outcome, error)

// Activate calls f.
func (f AbilityFunc) Activate(ctx ability.Context) ([]ability.Outcome, error) {
	return f(ctx)
}

// Card is a mutable card instance. Instances are owned by exactly one zone at a time.
type Card struct {
	Name    string
	Price   int
	Kind    Kind
	Element Element
	Attack  int
	Health  int

	ShieldCount int
	BoostCount  int
	DamageCount int

	// RetainShield and RetainBoost survive one counter expiry.
	RetainShield bool
	RetainBoost  bool

	RowRequirement       []Row
	TriggersAtRoundStart bool
	Ability              Ability
}

// IsElemental reports whether the card has an element, and therefore combat stats.
func (c *Card) IsElemental() bool {
	return c != nil && c.Element != ElementNone
}

// IsDestroyed reports whether the card has taken lethal damage.
func (c *Card) IsDestroyed() bool {
	return c.IsElemental() && c.DamageCount >= c.Health
}

// CanOccupy reports whether the card may be placed in the given row.
func (c *Card) CanOccupy(row Row) bool {
	if len(c.RowRequirement) == 0 {
		return true
	}
	for _, r := range c.RowRequirement {
		if r == row {
			return true
		}
	}
	return false
}

// ResetCounters clears all combat counters. Called when a card leaves the field.
func (c *Card) ResetCounters() {
	c.ShieldCount = 0
	c.BoostCount = 0
	c.DamageCount = 0
	c.RetainShield = false
	c.RetainBoost = false
}

// Clone returns an independent copy. The ability is shared; abilities are stateless.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	cp := *c
	if c.RowRequirement != nil {
		cp.RowRequirement = append([]Row(nil), c.RowRequirement...)
	}
	return &cp
}

// Snapshot is the plain-data form of a card instance. The ability is not stored; it is
// re-attached from the catalog by name on restore.
type Snapshot struct {
	Name         string `json:"name"`
	ShieldCount  int    `json:"shield_count,omitempty"`
	BoostCount   int    `json:"boost_count,omitempty"`
	DamageCount  int    `json:"damage_count,omitempty"`
	RetainShield bool   `json:"retain_shield,omitempty"`
	RetainBoost  bool   `json:"retain_boost,omitempty"`
}

// Snapshot captures the card's identity and counters.
func (c *Card) Snapshot() Snapshot {
	return Snapshot{
		Name:         c.Name,
		ShieldCount:  c.ShieldCount,
		BoostCount:   c.BoostCount,
		DamageCount:  c.DamageCount,
		RetainShield: c.RetainShield,
		RetainBoost:  c.RetainBoost,
	}
}

// Source produces fresh card instances by name.
type Source interface {
	Clone(name string) (*Card, error)
}

// Restore rebuilds a card instance from its snapshot.
func Restore(src Source, snap Snapshot) (*Card, error) {
	card, err := src.Clone(snap.Name)
	if err != nil {
		return nil, err
	}
	card.ShieldCount = snap.ShieldCount
	card.BoostCount = snap.BoostCount
	card.DamageCount = snap.DamageCount
	card.RetainShield = snap.RetainShield
	card.RetainBoost = snap.RetainBoost
	return card, nil
}

// SnapshotAll captures a pile of cards in order.
func SnapshotAll(pile []*Card) []Snapshot {
	out := make([]Snapshot, 0, len(pile))
	for _, c := range pile {
		out = append(out, c.Snapshot())
	}
	return out
}

// RestoreAll rebuilds a pile of cards in order.
func RestoreAll(src Source, snaps []Snapshot) ([]*Card, error) {
	out := make([]*Card, 0, len(snaps))
	for _, s := range snaps {
		c, err := Restore(src, s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
