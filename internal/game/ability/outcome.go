// Package ability describes the effects a card ability can produce.
//
// An Outcome is a closed sum type: one struct per action kind, each carrying only the
// fields that kind needs. Outcomes are never persisted; the effects resolver consumes
// them immediately.
package ability

import "fmt"

// Kind names an action kind.
type Kind string

const (
	KindCollectGold     Kind = "collect_gold"
	KindDealDamage      Kind = "deal_damage"
	KindReduceDamage    Kind = "reduce_damage"
	KindRemoveAllDamage Kind = "remove_all_damage"
	KindFieldToDiscard  Kind = "field_to_discard"
	KindDiscardToField  Kind = "discard_to_field"
	KindHandToField     Kind = "hand_to_field"
	KindFieldToHand     Kind = "field_to_hand"
	KindSwapField       Kind = "swap_field"
	KindDraw            Kind = "draw"
	KindDiscardToHand   Kind = "discard_to_hand"
	KindHandToDiscard   Kind = "hand_to_discard"
	KindAddShield       Kind = "add_shield"
	KindAddBoost        Kind = "add_boost"
	KindKeepShield      Kind = "keep_shield"
	KindKeepBoost       Kind = "keep_boost"
)

// TeamSide selects which team a field target refers to, relative to the acting player.
type TeamSide string

const (
	SideSelf  TeamSide = "self"
	SideEnemy TeamSide = "enemy"
)

// FieldTarget addresses slots on one team's battlefield.
type FieldTarget struct {
	Side      TeamSide
	Positions []int
}

// Context is handed to an ability when it is activated.
type Context struct {
	Actor   string
	Slot    int
	Card    string
	Targets []int
}

// Outcome is one effect to apply. The unexported method closes the set of variants.
type Outcome interface {
	Kind() Kind
	ActingPlayer() string
	isOutcome()
}

// Actor carries the acting player for every variant.
type Actor struct {
	Player string
}

// ActingPlayer returns the player on whose behalf the outcome is applied.
func (a Actor) ActingPlayer() string { return a.Player }

func (Actor) isOutcome() {}

// CollectGold adds gold to the acting player's team.
type CollectGold struct {
	Actor
	Amount *int
}

// DealDamage damages every listed slot of the target team.
type DealDamage struct {
	Actor
	Target *FieldTarget
	Amount *int
}

// ReduceDamage lowers the damage counter of every listed slot, never below zero.
type ReduceDamage struct {
	Actor
	Target *FieldTarget
	Amount *int
}

// RemoveAllDamage clears the damage counter of every listed slot.
type RemoveAllDamage struct {
	Actor
	Target *FieldTarget
}

// FieldToDiscard moves one card from the acting player's field to their discard pile.
type FieldToDiscard struct {
	Actor
	Target *FieldTarget
}

// DiscardToField moves one elemental card from the discard pile onto an empty slot.
type DiscardToField struct {
	Actor
	Target       *FieldTarget
	DiscardIndex []int
}

// HandToField moves one elemental card from the hand onto an empty slot.
type HandToField struct {
	Actor
	Target    *FieldTarget
	HandIndex []int
}

// FieldToHand returns one card from the acting player's field to their hand.
type FieldToHand struct {
	Actor
	Target *FieldTarget
}

// SwapField swaps two slots on the acting player's own battlefield.
type SwapField struct {
	Actor
	Target *FieldTarget
}

// Draw draws cards from deck to hand, one at a time.
type Draw struct {
	Actor
	Amount *int
}

// DiscardToHand moves the listed discard pile cards to the hand.
type DiscardToHand struct {
	Actor
	DiscardIndex []int
}

// HandToDiscard moves the listed hand cards to the discard pile.
type HandToDiscard struct {
	Actor
	HandIndex []int
}

// AddShield adds shield counters to every listed slot.
type AddShield struct {
	Actor
	Target *FieldTarget
	Amount *int
}

// AddBoost adds boost counters to every listed slot.
type AddBoost struct {
	Actor
	Target *FieldTarget
	Amount *int
}

// KeepShield keeps the shields of every listed slot through the next expiry.
type KeepShield struct {
	Actor
	Target *FieldTarget
}

// KeepBoost keeps the boosts of every listed slot through the next expiry.
type KeepBoost struct {
	Actor
	Target *FieldTarget
}

func (CollectGold) Kind() Kind { return KindCollectGold }
func (DealDamage) Kind() Kind { return KindDealDamage }
func (ReduceDamage) Kind() Kind { return KindReduceDamage }
func (RemoveAllDamage) Kind() Kind { return KindRemoveAllDamage }
func (FieldToDiscard) Kind() Kind { return KindFieldToDiscard }
func (DiscardToField) Kind() Kind { return KindDiscardToField }
func (HandToField) Kind() Kind { return KindHandToField }
func (FieldToHand) Kind() Kind { return KindFieldToHand }
func (SwapField) Kind() Kind { return KindSwapField }
func (Draw) Kind() Kind { return KindDraw }
func (DiscardToHand) Kind() Kind { return KindDiscardToHand }
func (HandToDiscard) Kind() Kind { return KindHandToDiscard }
func (AddShield) Kind() Kind { return KindAddShield }
func (AddBoost) Kind() Kind { return KindAddBoost }
func (KeepShield) Kind() Kind { return KindKeepShield }
func (KeepBoost) Kind() Kind { return KindKeepBoost }

// Int returns a pointer to v, for building outcomes with optional amounts.
func Int(v int) *int { return &v }

// Self targets the acting player's own battlefield.
func Self(positions ...int) *FieldTarget {
	return &FieldTarget{Side: SideSelf, Positions: positions}
}

// Enemy targets the opposing team's battlefield.
func Enemy(positions ...int) *FieldTarget {
	return &FieldTarget{Side: SideEnemy, Positions: positions}
}

// TargetOf returns the field target of o, or nil for kinds that address no slots.
func TargetOf(o Outcome) *FieldTarget {
	switch v := o.(type) {
	case DealDamage:
		return v.Target
	case ReduceDamage:
		return v.Target
	case RemoveAllDamage:
		return v.Target
	case FieldToDiscard:
		return v.Target
	case DiscardToField:
		return v.Target
	case HandToField:
		return v.Target
	case FieldToHand:
		return v.Target
	case SwapField:
		return v.Target
	case AddShield:
		return v.Target
	case AddBoost:
		return v.Target
	case KeepShield:
		return v.Target
	case KeepBoost:
		return v.Target
	}
	return nil
}

// WithActor returns a copy of o attributed to player. Abilities may leave the actor
// empty; the caller that activated them stamps it.
func WithActor(o Outcome, player string) (Outcome, error) {
	a := Actor{Player: player}
	switch v := o.(type) {
	case CollectGold:
		v.Actor = a
		return v, nil
	case DealDamage:
		v.Actor = a
		return v, nil
	case ReduceDamage:
		v.Actor = a
		return v, nil
	case RemoveAllDamage:
		v.Actor = a
		return v, nil
	case FieldToDiscard:
		v.Actor = a
		return v, nil
	case DiscardToField:
		v.Actor = a
		return v, nil
	case HandToField:
		v.Actor = a
		return v, nil
	case FieldToHand:
		v.Actor = a
		return v, nil
	case SwapField:
		v.Actor = a
		return v, nil
	case Draw:
		v.Actor = a
		return v, nil
	case DiscardToHand:
		v.Actor = a
		return v, nil
	case HandToDiscard:
		v.Actor = a
		return v, nil
	case AddShield:
		v.Actor = a
		return v, nil
	case AddBoost:
		v.Actor = a
		return v, nil
	case KeepShield:
		v.Actor = a
		return v, nil
	case KeepBoost:
		v.Actor = a
		return v, nil
	default:
		return nil, fmt.Errorf("unknown outcome type %T", o)
	}
}

// Fields is the loosely typed form of an outcome, as written by ability scripts.
// Absent values stay nil so the resolver can report the authoring bug.
type Fields struct {
	Amount       *int
	Side         string
	Positions    []int
	HandIndex    []int
	DiscardIndex []int
}

func (f Fields) target() *FieldTarget {
	if f.Side == "" && f.Positions == nil {
		return nil
	}
	side := TeamSide(f.Side)
	if side == "" {
		side = SideSelf
	}
	return &FieldTarget{Side: side, Positions: f.Positions}
}

// Build converts a kind and its fields into the typed outcome variant.
func Build(kind Kind, player string, f Fields) (Outcome, error) {
	a := Actor{Player: player}
	switch kind {
	case KindCollectGold:
		return CollectGold{Actor: a, Amount: f.Amount}, nil
	case KindDealDamage:
		return DealDamage{Actor: a, Target: f.target(), Amount: f.Amount}, nil
	case KindReduceDamage:
		return ReduceDamage{Actor: a, Target: f.target(), Amount: f.Amount}, nil
	case KindRemoveAllDamage:
		return RemoveAllDamage{Actor: a, Target: f.target()}, nil
	case KindFieldToDiscard:
		return FieldToDiscard{Actor: a, Target: f.target()}, nil
	case KindDiscardToField:
		return DiscardToField{Actor: a, Target: f.target(), DiscardIndex: f.DiscardIndex}, nil
	case KindHandToField:
		return HandToField{Actor: a, Target: f.target(), HandIndex: f.HandIndex}, nil
	case KindFieldToHand:
		return FieldToHand{Actor: a, Target: f.target()}, nil
	case KindSwapField:
		return SwapField{Actor: a, Target: f.target()}, nil
	case KindDraw:
		return Draw{Actor: a, Amount: f.Amount}, nil
	case KindDiscardToHand:
		return DiscardToHand{Actor: a, DiscardIndex: f.DiscardIndex}, nil
	case KindHandToDiscard:
		return HandToDiscard{Actor: a, HandIndex: f.HandIndex}, nil
	case KindAddShield:
		return AddShield{Actor: a, Target: f.target(), Amount: f.Amount}, nil
	case KindAddBoost:
		return AddBoost{Actor: a, Target: f.target(), Amount: f.Amount}, nil
	case KindKeepShield:
		return KeepShield{Actor: a, Target: f.target()}, nil
	case KindKeepBoost:
		return KeepBoost{Actor: a, Target: f.target()}, nil
	default:
		return nil, fmt.Errorf("unknown outcome kind %q", kind)
	}
}
